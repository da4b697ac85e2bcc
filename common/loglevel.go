package common

import "reflect"

// LogLevel follows azcopy's common.LogLevel: a plain numeric type whose
// methods double as the symbol table (see EnumHelper in enum.go), so a
// higher-numbered level always means "more verbose" and ShouldLog is a
// single comparison.
type LogLevel uint8

var ELogLevel = LogLevel(0)

func (LogLevel) None() LogLevel    { return LogLevel(0) }
func (LogLevel) Error() LogLevel   { return LogLevel(1) }
func (LogLevel) Warning() LogLevel { return LogLevel(2) }
func (LogLevel) Info() LogLevel    { return LogLevel(3) }
func (LogLevel) Debug() LogLevel   { return LogLevel(4) }

func (l LogLevel) String() string {
	return enumHelper{}.String(l, reflect.TypeOf(l))
}

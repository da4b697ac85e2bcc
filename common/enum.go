package common

import (
	"reflect"
	"strings"
)

// enumHelper mirrors azcopy's common.EnumHelper: it turns a set of
// zero-argument methods on a named numeric type into a symbol table, so
// each enum gets String()/Parse() for free from its own method set instead
// of a hand-maintained switch statement.
type enumHelper struct{}

type enumSymbolInfo func(name string, value interface{}) (stop bool)

func (enumHelper) isValidSymbolMethod(enumType reflect.Type, m reflect.Method) bool {
	return m.Type.NumIn() == 1 && m.Type.NumOut() == 1 && m.Type.Out(0) == enumType
}

func (h enumHelper) symbols(enumType reflect.Type, visit enumSymbolInfo) {
	args := [1]reflect.Value{reflect.Zero(enumType)}
	for m := 0; m < enumType.NumMethod(); m++ {
		method := enumType.Method(m)
		if !h.isValidSymbolMethod(enumType, method) {
			continue
		}
		value := method.Func.Call(args[:])[0].Convert(enumType).Interface()
		if visit(method.Name, value) {
			return
		}
	}
}

func (h enumHelper) String(enumValue interface{}, enumType reflect.Type) string {
	result := ""
	h.symbols(enumType, func(name string, value interface{}) bool {
		if value == enumValue {
			result = name
			return true
		}
		return false
	})
	return result
}

func (h enumHelper) Parse(enumType reflect.Type, text string, caseInsensitive bool) (interface{}, bool) {
	var found interface{}
	ok := false
	h.symbols(enumType, func(name string, value interface{}) bool {
		match := name == text
		if caseInsensitive {
			match = strings.EqualFold(name, text)
		}
		if match {
			found, ok = value, true
			return true
		}
		return false
	})
	return found, ok
}

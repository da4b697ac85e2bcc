//go:build windows

package common

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// IsHiddenName checks FILE_ATTRIBUTE_HIDDEN, the Windows definition of
// "hidden" that original_source/src/fileswn4.cpp falls back to when the
// panel's local pane asks about a disk-side Upload/Delete item (§3.1).
func IsHiddenName(path string) bool {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return false
	}
	attrs, err := windows.GetFileAttributes(p)
	if err != nil {
		return false
	}
	return attrs&syscall.FILE_ATTRIBUTE_HIDDEN != 0
}

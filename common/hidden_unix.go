//go:build !windows

package common

import "strings"

// IsHiddenName applies the Unix dot-prefix convention. Grounded on
// original_source/src/fileswn4.cpp's platform split for hidden-file
// detection, paired with hidden_windows.go the way azcopy pairs
// default_file_perm_unix.go/_windows.go.
func IsHiddenName(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

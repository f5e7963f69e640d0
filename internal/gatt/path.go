package gatt

import "strings"

// ParentPath returns the given D-Bus object path with its last segment
// removed. An empty string is returned when no parent segment remains,
// which callers treat as a failed lookup rather than an error.
//
//	ParentPath("/org/bluez/hci0/dev_AA/service0001") == "/org/bluez/hci0/dev_AA"
//	ParentPath("/a") == ""
func ParentPath(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return ""
	}
	return path[:idx]
}

package gatt

import (
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Properties is a raw D-Bus property bag for a single interface.
type Properties = map[string]dbus.Variant

// ErrMissingProperty indicates a property bag lacks a field required to
// construct an entity. Such notifications are discarded by the caller.
var ErrMissingProperty = errors.New("missing required property")

func stringProp(props Properties, key string) (string, bool) {
	v, ok := props[key]
	if !ok {
		return "", false
	}
	s, ok := v.Value().(string)
	return s, ok
}

func boolProp(props Properties, key string) (bool, bool) {
	v, ok := props[key]
	if !ok {
		return false, false
	}
	b, ok := v.Value().(bool)
	return b, ok
}

// RSSI extracts the signal sample from a Device1 property bag.
func RSSI(props Properties) (int16, bool) {
	return rssiProp(props, "RSSI")
}

// rssiProp extracts a signed RSSI sample. BlueZ emits RSSI as int16
// ("n"), but be tolerant of wider integer encodings.
func rssiProp(props Properties, key string) (int16, bool) {
	v, ok := props[key]
	if !ok {
		return 0, false
	}
	switch n := v.Value().(type) {
	case int16:
		return n, true
	case int32:
		return int16(n), true
	case int64:
		return int16(n), true
	case int:
		return int16(n), true
	default:
		return 0, false
	}
}

// pathProp extracts an object-path reference such as a service's owning
// Device or a descriptor's owning Characteristic.
func pathProp(props Properties, key string) (string, bool) {
	v, ok := props[key]
	if !ok {
		return "", false
	}
	switch p := v.Value().(type) {
	case dbus.ObjectPath:
		return string(p), true
	case string:
		return p, true
	default:
		return "", false
	}
}

func bytesProp(props Properties, key string) []byte {
	v, ok := props[key]
	if !ok {
		return nil
	}
	b, _ := v.Value().([]byte)
	return b
}

func stringsProp(props Properties, key string) []string {
	v, ok := props[key]
	if !ok {
		return nil
	}
	s, _ := v.Value().([]string)
	return s
}

func missing(iface, key string) error {
	return fmt.Errorf("%w: %s.%s", ErrMissingProperty, iface, key)
}

package bluez

import (
	"github.com/godbus/dbus/v5"

	"github.com/btlesniffer/btlesniffer/internal/gatt"
)

// EventKind classifies a translated BlueZ notification.
type EventKind int

const (
	// InterfacesAdded reports that an object appeared on the bus with
	// one or more of the interfaces we track.
	InterfacesAdded EventKind = iota
	// InterfacesRemoved reports that interfaces vanished from an object.
	InterfacesRemoved
	// PropertiesChanged reports changed Device1 properties.
	PropertiesChanged
)

func (k EventKind) String() string {
	switch k {
	case InterfacesAdded:
		return "interfaces_added"
	case InterfacesRemoved:
		return "interfaces_removed"
	case PropertiesChanged:
		return "properties_changed"
	default:
		return "unknown"
	}
}

// Event is one notification from the BlueZ object tree, decoded into
// the shape the dispatcher works with.
type Event struct {
	Kind EventKind
	Path string

	// Interfaces carries the per-interface property bags of an
	// InterfacesAdded event.
	Interfaces map[string]gatt.Properties

	// Removed lists the interface names of an InterfacesRemoved event.
	Removed []string

	// Changed carries the Device1 property bag of a PropertiesChanged
	// event.
	Changed gatt.Properties
}

// DecodeSignal translates a raw D-Bus signal into an Event. Signals
// that are not ours, or whose bodies do not have the expected shape,
// are dropped (ok == false); a chatty bus must never crash dispatch.
func DecodeSignal(sig *dbus.Signal) (Event, bool) {
	switch sig.Name {
	case objectManagerInterface + ".InterfacesAdded":
		return decodeInterfacesAdded(sig)
	case objectManagerInterface + ".InterfacesRemoved":
		return decodeInterfacesRemoved(sig)
	case propertiesInterface + ".PropertiesChanged":
		return decodePropertiesChanged(sig)
	default:
		return Event{}, false
	}
}

func decodeInterfacesAdded(sig *dbus.Signal) (Event, bool) {
	if len(sig.Body) < 2 {
		return Event{}, false
	}
	path, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok {
		return Event{}, false
	}
	ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
	if !ok {
		return Event{}, false
	}

	bags := make(map[string]gatt.Properties, len(ifaces))
	for name, props := range ifaces {
		bags[name] = props
	}
	return Event{
		Kind:       InterfacesAdded,
		Path:       string(path),
		Interfaces: bags,
	}, true
}

func decodeInterfacesRemoved(sig *dbus.Signal) (Event, bool) {
	if len(sig.Body) < 2 {
		return Event{}, false
	}
	path, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok {
		return Event{}, false
	}
	removed, ok := sig.Body[1].([]string)
	if !ok {
		return Event{}, false
	}
	return Event{
		Kind:    InterfacesRemoved,
		Path:    string(path),
		Removed: removed,
	}, true
}

func decodePropertiesChanged(sig *dbus.Signal) (Event, bool) {
	if len(sig.Body) < 2 {
		return Event{}, false
	}
	iface, ok := sig.Body[0].(string)
	if !ok || iface != DeviceInterface {
		// Subscription is filtered by arg0, but a second match rule on
		// the same connection can still deliver others.
		return Event{}, false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return Event{}, false
	}
	return Event{
		Kind:    PropertiesChanged,
		Path:    string(sig.Path),
		Changed: changed,
	}, true
}

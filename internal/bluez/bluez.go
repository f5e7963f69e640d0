// Package bluez adapts the BlueZ D-Bus surface to the event stream the
// dispatcher consumes: it owns the system-bus connection, adapter
// discovery and the signal subscriptions, and translates raw D-Bus
// signals into typed events.
package bluez

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
)

// BlueZ bus and interface names.
// https://git.kernel.org/pub/scm/bluetooth/bluez.git/tree/doc
const (
	Service = "org.bluez"

	AdapterInterface        = "org.bluez.Adapter1"
	DeviceInterface         = "org.bluez.Device1"
	ServiceInterface        = "org.bluez.GattService1"
	CharacteristicInterface = "org.bluez.GattCharacteristic1"
	DescriptorInterface     = "org.bluez.GattDescriptor1"

	objectManagerInterface = "org.freedesktop.DBus.ObjectManager"
	propertiesInterface    = "org.freedesktop.DBus.Properties"
)

// managedObjects is the shape returned by ObjectManager.GetManagedObjects.
type managedObjects = map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// Bus wraps a BlueZ system-bus connection and exposes discovery
// lifecycle calls plus the translated signal stream.
type Bus struct {
	conn    *dbus.Conn
	adapter dbus.BusObject
	signals chan *dbus.Signal
	events  chan Event
	log     *logrus.Logger
}

// New connects to the system bus. Discovery does not start until Start
// is called.
func New(logger *logrus.Logger) (*Bus, error) {
	if logger == nil {
		logger = logrus.New()
	}
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connecting to system bus: %w", err)
	}
	return &Bus{
		conn:    conn,
		signals: make(chan *dbus.Signal, 64),
		events:  make(chan Event, 64),
		log:     logger,
	}, nil
}

// Start locates the first Bluetooth adapter, clears BlueZ's cached
// device objects, restricts discovery to LE and begins scanning, then
// subscribes to the ObjectManager and Properties signals. Any failure
// here is fatal for the enclosing process.
func (b *Bus) Start(ctx context.Context) error {
	adapter, cached, err := b.findAdapter()
	if err != nil {
		return err
	}
	b.adapter = adapter

	filter := map[string]interface{}{"Transport": "le"}
	if err := adapter.Call(AdapterInterface+".SetDiscoveryFilter", 0, filter).Err; err != nil {
		return fmt.Errorf("setting LE discovery filter: %w", err)
	}
	if err := adapter.Call(AdapterInterface+".StartDiscovery", 0).Err; err != nil {
		return fmt.Errorf("starting discovery (is the controller powered on? try `bluetoothctl power on`): %w", err)
	}

	// BlueZ keeps device objects around for minutes; stale entries
	// would replay as fresh appearances, so clear them before
	// subscribing.
	for _, path := range cached {
		b.log.WithField("path", path).Debug("Removing cached device object")
		if err := adapter.Call(AdapterInterface+".RemoveDevice", 0, path).Err; err != nil {
			b.log.WithError(err).WithField("path", string(path)).Debug("Failed to remove cached device")
		}
	}

	matches := [][]dbus.MatchOption{
		{
			dbus.WithMatchSender(Service),
			dbus.WithMatchInterface(objectManagerInterface),
			dbus.WithMatchMember("InterfacesAdded"),
		},
		{
			dbus.WithMatchSender(Service),
			dbus.WithMatchInterface(objectManagerInterface),
			dbus.WithMatchMember("InterfacesRemoved"),
		},
		{
			dbus.WithMatchSender(Service),
			dbus.WithMatchInterface(propertiesInterface),
			dbus.WithMatchMember("PropertiesChanged"),
			dbus.WithMatchArg(0, DeviceInterface),
		},
	}
	for _, opts := range matches {
		if err := b.conn.AddMatchSignal(opts...); err != nil {
			return fmt.Errorf("subscribing to BlueZ signals: %w", err)
		}
	}

	b.conn.Signal(b.signals)
	go b.translate(ctx)
	return nil
}

// Stop halts discovery and tears down the bus connection.
func (b *Bus) Stop() {
	if b.adapter != nil {
		if err := b.adapter.Call(AdapterInterface+".StopDiscovery", 0).Err; err != nil {
			b.log.WithError(err).Debug("Failed to stop discovery")
		}
	}
	b.conn.RemoveSignal(b.signals)
	if err := b.conn.Close(); err != nil {
		b.log.WithError(err).Debug("Failed to close system bus connection")
	}
}

// Events returns the translated event stream.
func (b *Bus) Events() <-chan Event {
	return b.events
}

// findAdapter walks the managed-object tree for the first object
// implementing Adapter1 and collects the paths of any cached Device1
// objects along the way.
func (b *Bus) findAdapter() (adapter dbus.BusObject, cachedDevices []dbus.ObjectPath, err error) {
	var objects managedObjects
	root := b.conn.Object(Service, "/")
	if err := root.Call(objectManagerInterface+".GetManagedObjects", 0).Store(&objects); err != nil {
		return nil, nil, fmt.Errorf("listing BlueZ objects: %w", err)
	}

	var adapterPath dbus.ObjectPath
	for path, ifaces := range objects {
		if _, ok := ifaces[AdapterInterface]; ok && adapterPath == "" {
			adapterPath = path
		}
		if _, ok := ifaces[DeviceInterface]; ok {
			cachedDevices = append(cachedDevices, path)
		}
	}
	if adapterPath == "" {
		return nil, nil, fmt.Errorf("no Bluetooth adapter found on %s", Service)
	}

	b.log.WithField("adapter", string(adapterPath)).Debug("Using Bluetooth adapter")
	return b.conn.Object(Service, adapterPath), cachedDevices, nil
}

// translate converts raw D-Bus signals to events until the context is
// cancelled or the signal channel is drained by Stop.
func (b *Bus) translate(ctx context.Context) {
	defer close(b.events)
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-b.signals:
			if !ok {
				return
			}
			ev, ok := DecodeSignal(sig)
			if !ok {
				continue
			}
			select {
			case b.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

package gatt

import (
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Device is the in-memory view of one remote BLE device as reported by
// BlueZ. The object path is the lookup key for hierarchy operations;
// the hardware address is the merge key on rediscovery.
type Device struct {
	Path    string
	Address string
	Name    string
	Alias   string

	Connected bool
	Paired    bool
	Trusted   bool

	// ServiceUUIDs holds the UUIDs advertised by the device, distinct
	// from the resolved GATT services below.
	ServiceUUIDs []string

	// RSSIHistory is append-only, most-recent-last. It is never empty
	// once a device is constructed.
	RSSIHistory []int16

	// Active is true while BlueZ reports the device as present.
	Active bool

	// LastEmitted is the time of the last observation accepted by the
	// gate; zero until the first emission.
	LastEmitted time.Time

	Services *orderedmap.OrderedMap[string, *Service]
}

// DeviceFromProperties builds a Device from an org.bluez.Device1
// property bag. Address and an initial RSSI sample are required; every
// other field is optional.
func DeviceFromProperties(path string, props Properties) (*Device, error) {
	addr, ok := stringProp(props, "Address")
	if !ok {
		return nil, missing("Device1", "Address")
	}
	rssi, ok := rssiProp(props, "RSSI")
	if !ok {
		return nil, missing("Device1", "RSSI")
	}

	d := &Device{
		Path:        path,
		Address:     addr,
		RSSIHistory: []int16{rssi},
		Active:      true,
		Services:    orderedmap.New[string, *Service](),
	}
	d.applyOptional(props)
	return d, nil
}

// Apply merges a PropertiesChanged bag into the device. RSSI is
// deliberately excluded; the dispatcher appends samples itself so that
// signal history and gating stay in one place.
func (d *Device) Apply(changes Properties) {
	d.applyOptional(changes)
}

func (d *Device) applyOptional(props Properties) {
	if name, ok := stringProp(props, "Name"); ok {
		d.Name = name
	}
	if alias, ok := stringProp(props, "Alias"); ok {
		d.Alias = alias
	}
	if connected, ok := boolProp(props, "Connected"); ok {
		d.Connected = connected
	}
	if paired, ok := boolProp(props, "Paired"); ok {
		d.Paired = paired
	}
	if trusted, ok := boolProp(props, "Trusted"); ok {
		d.Trusted = trusted
	}
	if uuids := stringsProp(props, "UUIDs"); uuids != nil {
		d.ServiceUUIDs = uuids
	}
}

// Merge folds a rediscovery of the same hardware address into the
// receiver: the path follows the newer notification, the newest RSSI
// sample is appended, and the device is reactivated. Identity fields
// only change when the update actually carries them.
func (d *Device) Merge(update *Device) {
	d.Path = update.Path
	d.Active = true
	d.RSSIHistory = append(d.RSSIHistory, update.LatestRSSI())

	if update.Name != "" {
		d.Name = update.Name
	}
	if update.Alias != "" {
		d.Alias = update.Alias
	}
	if update.ServiceUUIDs != nil {
		d.ServiceUUIDs = update.ServiceUUIDs
	}
	d.Connected = update.Connected
	d.Paired = update.Paired
	d.Trusted = update.Trusted
}

// AppendRSSI records a new signal sample, most-recent-last.
func (d *Device) AppendRSSI(rssi int16) {
	d.RSSIHistory = append(d.RSSIHistory, rssi)
}

// LatestRSSI returns the most recent signal sample.
func (d *Device) LatestRSSI() int16 {
	return d.RSSIHistory[len(d.RSSIHistory)-1]
}

// DisplayName returns the best human-readable identifier available.
func (d *Device) DisplayName() string {
	switch {
	case d.Name != "":
		return d.Name
	case d.Alias != "":
		return d.Alias
	default:
		return d.Address
	}
}

// SetService indexes a resolved GATT service under its object path.
func (d *Device) SetService(path string, svc *Service) {
	d.Services.Set(path, svc)
}

// Service returns the service registered under the given path.
func (d *Device) Service(path string) (*Service, bool) {
	return d.Services.Get(path)
}

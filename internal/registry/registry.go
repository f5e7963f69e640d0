// Package registry owns the collection of devices discovered during a
// sniffing session and enforces the hierarchy's ownership rules.
package registry

import (
	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/btlesniffer/btlesniffer/internal/gatt"
)

// Registry tracks every device seen since startup, indexed both by
// D-Bus object path and by hardware address. Devices are retained after
// they disappear (marked inactive) so that later notifications can
// still be reconciled against them.
//
// All mutation happens on the dispatcher goroutine; the concurrent map
// keeps reads from other goroutines (metrics, display) safe without a
// registry-level lock.
type Registry struct {
	byPath    *hashmap.Map[string, *gatt.Device]
	byAddress *hashmap.Map[string, *gatt.Device]
	log       *logrus.Logger
}

// New creates an empty registry.
func New(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		byPath:    hashmap.New[string, *gatt.Device](),
		byAddress: hashmap.New[string, *gatt.Device](),
		log:       logger,
	}
}

// FindByPath returns the device registered under the given object path.
func (r *Registry) FindByPath(path string) (*gatt.Device, bool) {
	return r.byPath.Get(path)
}

// FindByAddress returns the device with the given hardware address,
// regardless of which path it is currently known under.
func (r *Registry) FindByAddress(address string) (*gatt.Device, bool) {
	return r.byAddress.Get(address)
}

// Register inserts a newly constructed device or, when its address is
// already known, merges the notification into the existing entry. The
// returned device is the canonical registry entry; merged reports
// whether an existing device absorbed the update.
//
// Identity fields are idempotent under repeated registration; the RSSI
// history is not, by design: every registration appends its sample.
func (r *Registry) Register(candidate *gatt.Device) (dev *gatt.Device, merged bool) {
	if existing, ok := r.byAddress.Get(candidate.Address); ok {
		oldPath := existing.Path
		existing.Merge(candidate)
		if oldPath != existing.Path {
			r.byPath.Del(oldPath)
			r.byPath.Set(existing.Path, existing)
		}
		return existing, true
	}

	r.byPath.Set(candidate.Path, candidate)
	r.byAddress.Set(candidate.Address, candidate)
	return candidate, false
}

// MarkInactive flags the device at the given path as no longer present.
// The device stays in the registry. Unknown paths are a logged no-op.
func (r *Registry) MarkInactive(path string) (*gatt.Device, bool) {
	dev, ok := r.byPath.Get(path)
	if !ok {
		r.log.WithField("path", path).Debug("Removal notification for an unknown device")
		return nil, false
	}
	dev.Active = false
	return dev, true
}

// AttachService attaches a resolved GATT service to the device named by
// the service's owning-device reference. Unknown devices are a logged
// no-op; the hierarchy never materializes speculative ancestors.
func (r *Registry) AttachService(devicePath, servicePath string, svc *gatt.Service) (*gatt.Device, bool) {
	dev, ok := r.byPath.Get(devicePath)
	if !ok {
		r.log.WithField("path", servicePath).Debug("Received a service for an unknown device")
		return nil, false
	}
	dev.SetService(servicePath, svc)
	return dev, true
}

// AttachCharacteristic attaches a characteristic beneath its declared
// service. The owning device path is derived from the service path by
// decomposition. Missing ancestors drop the attachment.
func (r *Registry) AttachCharacteristic(servicePath, charPath string, c *gatt.Characteristic) (*gatt.Device, bool) {
	devicePath := gatt.ParentPath(servicePath)
	dev, ok := r.byPath.Get(devicePath)
	if !ok {
		r.log.WithField("path", charPath).Debug("Received a characteristic for an unknown device")
		return nil, false
	}
	svc, ok := dev.Service(servicePath)
	if !ok {
		r.log.WithField("path", charPath).Debug("Received a characteristic for an unknown service")
		return nil, false
	}
	svc.SetCharacteristic(charPath, c)
	return dev, true
}

// AttachDescriptor attaches a descriptor beneath its declared
// characteristic, walking the full ancestor chain derived from the
// characteristic path. Missing ancestors drop the attachment.
func (r *Registry) AttachDescriptor(charPath, descPath string, d *gatt.Descriptor) (*gatt.Device, bool) {
	servicePath := gatt.ParentPath(charPath)
	devicePath := gatt.ParentPath(servicePath)

	dev, ok := r.byPath.Get(devicePath)
	if !ok {
		r.log.WithField("path", descPath).Debug("Received a descriptor for an unknown device")
		return nil, false
	}
	svc, ok := dev.Service(servicePath)
	if !ok {
		r.log.WithField("path", descPath).Debug("Received a descriptor for an unknown service")
		return nil, false
	}
	c, ok := svc.Characteristic(charPath)
	if !ok {
		r.log.WithField("path", descPath).Debug("Received a descriptor for an unknown characteristic")
		return nil, false
	}
	c.SetDescriptor(descPath, d)
	return dev, true
}

// Len returns the number of known devices, active or not.
func (r *Registry) Len() int {
	return r.byPath.Len()
}

// Range calls fn for every known device until fn returns false.
func (r *Registry) Range(fn func(*gatt.Device) bool) {
	r.byPath.Range(func(_ string, dev *gatt.Device) bool {
		return fn(dev)
	})
}

package gatt

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Service represents a resolved GATT service.
type Service struct {
	UUID            string
	Primary         bool
	Characteristics *orderedmap.OrderedMap[string, *Characteristic]
}

// ServiceFromProperties builds a Service from an org.bluez.GattService1
// property bag. The returned devicePath is the bag's owning Device
// reference.
func ServiceFromProperties(props Properties) (svc *Service, devicePath string, err error) {
	uuid, ok := stringProp(props, "UUID")
	if !ok {
		return nil, "", missing("GattService1", "UUID")
	}
	devicePath, ok = pathProp(props, "Device")
	if !ok {
		return nil, "", missing("GattService1", "Device")
	}
	primary, _ := boolProp(props, "Primary")

	return &Service{
		UUID:            uuid,
		Primary:         primary,
		Characteristics: orderedmap.New[string, *Characteristic](),
	}, devicePath, nil
}

// SetCharacteristic indexes a characteristic under its object path.
func (s *Service) SetCharacteristic(path string, c *Characteristic) {
	s.Characteristics.Set(path, c)
}

// Characteristic returns the characteristic registered under the given path.
func (s *Service) Characteristic(path string) (*Characteristic, bool) {
	return s.Characteristics.Get(path)
}

package gatt

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Characteristic represents a resolved GATT characteristic.
type Characteristic struct {
	UUID        string
	Value       []byte
	Flags       []string
	Descriptors *orderedmap.OrderedMap[string, *Descriptor]
}

// CharacteristicFromProperties builds a Characteristic from an
// org.bluez.GattCharacteristic1 property bag. The returned servicePath
// is the bag's owning Service reference.
func CharacteristicFromProperties(props Properties) (c *Characteristic, servicePath string, err error) {
	uuid, ok := stringProp(props, "UUID")
	if !ok {
		return nil, "", missing("GattCharacteristic1", "UUID")
	}
	servicePath, ok = pathProp(props, "Service")
	if !ok {
		return nil, "", missing("GattCharacteristic1", "Service")
	}
	flags := stringsProp(props, "Flags")
	if flags == nil {
		return nil, "", missing("GattCharacteristic1", "Flags")
	}

	return &Characteristic{
		UUID:        uuid,
		Value:       bytesProp(props, "Value"),
		Flags:       flags,
		Descriptors: orderedmap.New[string, *Descriptor](),
	}, servicePath, nil
}

// SetDescriptor indexes a descriptor under its object path.
func (c *Characteristic) SetDescriptor(path string, d *Descriptor) {
	c.Descriptors.Set(path, d)
}

// Descriptor returns the descriptor registered under the given path.
func (c *Characteristic) Descriptor(path string) (*Descriptor, bool) {
	return c.Descriptors.Get(path)
}

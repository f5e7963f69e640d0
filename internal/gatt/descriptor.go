package gatt

// Descriptor represents a resolved GATT descriptor.
type Descriptor struct {
	UUID  string
	Value []byte
	Flags []string
}

// DescriptorFromProperties builds a Descriptor from an
// org.bluez.GattDescriptor1 property bag. The returned charPath is the
// bag's owning Characteristic reference. Value and Flags are optional.
func DescriptorFromProperties(props Properties) (d *Descriptor, charPath string, err error) {
	uuid, ok := stringProp(props, "UUID")
	if !ok {
		return nil, "", missing("GattDescriptor1", "UUID")
	}
	charPath, ok = pathProp(props, "Characteristic")
	if !ok {
		return nil, "", missing("GattDescriptor1", "Characteristic")
	}

	return &Descriptor{
		UUID:  uuid,
		Value: bytesProp(props, "Value"),
		Flags: stringsProp(props, "Flags"),
	}, charPath, nil
}

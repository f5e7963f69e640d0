// Package gatt models the GATT hierarchy exposed by BlueZ on the D-Bus
// object tree.
//
// Entities mirror the BlueZ interfaces they are built from:
//   - Device (org.bluez.Device1)
//   - Service (org.bluez.GattService1)
//   - Characteristic (org.bluez.GattCharacteristic1)
//   - Descriptor (org.bluez.GattDescriptor1)
//
// Constructors take the raw D-Bus property bag of the corresponding
// interface and validate shape only; ownership and existence checks are
// the registry's job. ParentPath derives owning object paths by
// structural decomposition of BlueZ's hierarchical path scheme
// (device/serviceXXXX/charYYYY/descZZZZ).
package gatt

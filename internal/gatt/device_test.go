package gatt_test

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btlesniffer/btlesniffer/internal/gatt"
)

func deviceBag(addr string, rssi int16) gatt.Properties {
	return gatt.Properties{
		"Address": dbus.MakeVariant(addr),
		"RSSI":    dbus.MakeVariant(rssi),
	}
}

func TestDeviceFromProperties(t *testing.T) {
	t.Run("builds device from a full property bag", func(t *testing.T) {
		bag := deviceBag("AA:BB:CC:DD:EE:FF", -70)
		bag["Name"] = dbus.MakeVariant("Thermometer")
		bag["Alias"] = dbus.MakeVariant("thermo-1")
		bag["Connected"] = dbus.MakeVariant(true)
		bag["Paired"] = dbus.MakeVariant(false)
		bag["UUIDs"] = dbus.MakeVariant([]string{"180f", "1809"})

		dev, err := gatt.DeviceFromProperties("/org/bluez/hci0/dev0", bag)
		require.NoError(t, err)

		assert.Equal(t, "/org/bluez/hci0/dev0", dev.Path)
		assert.Equal(t, "AA:BB:CC:DD:EE:FF", dev.Address)
		assert.Equal(t, "Thermometer", dev.Name)
		assert.Equal(t, "thermo-1", dev.Alias)
		assert.True(t, dev.Connected)
		assert.Equal(t, []string{"180f", "1809"}, dev.ServiceUUIDs)
		assert.Equal(t, []int16{-70}, dev.RSSIHistory)
		assert.True(t, dev.Active)
		assert.True(t, dev.LastEmitted.IsZero())
		assert.Equal(t, 0, dev.Services.Len())
	})

	t.Run("requires an address", func(t *testing.T) {
		bag := gatt.Properties{"RSSI": dbus.MakeVariant(int16(-70))}

		_, err := gatt.DeviceFromProperties("/dev0", bag)
		require.ErrorIs(t, err, gatt.ErrMissingProperty)
	})

	t.Run("requires an initial RSSI sample", func(t *testing.T) {
		bag := gatt.Properties{"Address": dbus.MakeVariant("AA:BB:CC:DD:EE:FF")}

		_, err := gatt.DeviceFromProperties("/dev0", bag)
		require.ErrorIs(t, err, gatt.ErrMissingProperty)
	})

	t.Run("tolerates wider RSSI encodings", func(t *testing.T) {
		bag := gatt.Properties{
			"Address": dbus.MakeVariant("AA:BB:CC:DD:EE:FF"),
			"RSSI":    dbus.MakeVariant(int32(-55)),
		}

		dev, err := gatt.DeviceFromProperties("/dev0", bag)
		require.NoError(t, err)
		assert.Equal(t, int16(-55), dev.LatestRSSI())
	})
}

func TestDeviceApply(t *testing.T) {
	dev, err := gatt.DeviceFromProperties("/dev0", deviceBag("AA:BB:CC:DD:EE:FF", -70))
	require.NoError(t, err)

	dev.Apply(gatt.Properties{
		"Name":      dbus.MakeVariant("Beacon"),
		"Connected": dbus.MakeVariant(true),
		// RSSI is ignored by Apply; the dispatcher appends samples.
		"RSSI": dbus.MakeVariant(int16(-40)),
	})

	assert.Equal(t, "Beacon", dev.Name)
	assert.True(t, dev.Connected)
	assert.Equal(t, []int16{-70}, dev.RSSIHistory)
}

func TestDeviceMerge(t *testing.T) {
	original, err := gatt.DeviceFromProperties("/dev0", deviceBag("AA:BB:CC:DD:EE:FF", -70))
	require.NoError(t, err)
	original.Name = "Beacon"
	original.Active = false

	update, err := gatt.DeviceFromProperties("/dev1", deviceBag("AA:BB:CC:DD:EE:FF", -60))
	require.NoError(t, err)

	original.Merge(update)

	assert.Equal(t, "/dev1", original.Path)
	assert.True(t, original.Active)
	assert.Equal(t, []int16{-70, -60}, original.RSSIHistory)
	// Update carried no name; the known one survives the merge.
	assert.Equal(t, "Beacon", original.Name)
}

func TestDeviceDisplayName(t *testing.T) {
	dev, err := gatt.DeviceFromProperties("/dev0", deviceBag("AA:BB:CC:DD:EE:FF", -70))
	require.NoError(t, err)

	assert.Equal(t, "AA:BB:CC:DD:EE:FF", dev.DisplayName())

	dev.Alias = "thermo-1"
	assert.Equal(t, "thermo-1", dev.DisplayName())

	dev.Name = "Thermometer"
	assert.Equal(t, "Thermometer", dev.DisplayName())
}

func TestServiceFromProperties(t *testing.T) {
	t.Run("builds service with owning device reference", func(t *testing.T) {
		svc, devicePath, err := gatt.ServiceFromProperties(gatt.Properties{
			"UUID":    dbus.MakeVariant("0000180f-0000-1000-8000-00805f9b34fb"),
			"Primary": dbus.MakeVariant(true),
			"Device":  dbus.MakeVariant(dbus.ObjectPath("/org/bluez/hci0/dev0")),
		})
		require.NoError(t, err)

		assert.Equal(t, "0000180f-0000-1000-8000-00805f9b34fb", svc.UUID)
		assert.True(t, svc.Primary)
		assert.Equal(t, "/org/bluez/hci0/dev0", devicePath)
	})

	t.Run("requires UUID and device reference", func(t *testing.T) {
		_, _, err := gatt.ServiceFromProperties(gatt.Properties{
			"UUID": dbus.MakeVariant("180f"),
		})
		require.ErrorIs(t, err, gatt.ErrMissingProperty)

		_, _, err = gatt.ServiceFromProperties(gatt.Properties{
			"Device": dbus.MakeVariant(dbus.ObjectPath("/dev0")),
		})
		require.ErrorIs(t, err, gatt.ErrMissingProperty)
	})
}

func TestCharacteristicFromProperties(t *testing.T) {
	t.Run("builds characteristic with owning service reference", func(t *testing.T) {
		c, servicePath, err := gatt.CharacteristicFromProperties(gatt.Properties{
			"UUID":    dbus.MakeVariant("2a19"),
			"Service": dbus.MakeVariant(dbus.ObjectPath("/dev0/service0001")),
			"Flags":   dbus.MakeVariant([]string{"read", "notify"}),
			"Value":   dbus.MakeVariant([]byte{0x64}),
		})
		require.NoError(t, err)

		assert.Equal(t, "2a19", c.UUID)
		assert.Equal(t, "/dev0/service0001", servicePath)
		assert.Equal(t, []string{"read", "notify"}, c.Flags)
		assert.Equal(t, []byte{0x64}, c.Value)
	})

	t.Run("requires flags", func(t *testing.T) {
		_, _, err := gatt.CharacteristicFromProperties(gatt.Properties{
			"UUID":    dbus.MakeVariant("2a19"),
			"Service": dbus.MakeVariant(dbus.ObjectPath("/dev0/service0001")),
		})
		require.ErrorIs(t, err, gatt.ErrMissingProperty)
	})
}

func TestDescriptorFromProperties(t *testing.T) {
	t.Run("value and flags are optional", func(t *testing.T) {
		d, charPath, err := gatt.DescriptorFromProperties(gatt.Properties{
			"UUID":           dbus.MakeVariant("2902"),
			"Characteristic": dbus.MakeVariant(dbus.ObjectPath("/dev0/service0001/char0002")),
		})
		require.NoError(t, err)

		assert.Equal(t, "2902", d.UUID)
		assert.Equal(t, "/dev0/service0001/char0002", charPath)
		assert.Nil(t, d.Value)
		assert.Nil(t, d.Flags)
	})

	t.Run("requires characteristic reference", func(t *testing.T) {
		_, _, err := gatt.DescriptorFromProperties(gatt.Properties{
			"UUID": dbus.MakeVariant("2902"),
		})
		require.ErrorIs(t, err, gatt.ErrMissingProperty)
	})
}

func TestHierarchyMutation(t *testing.T) {
	dev, err := gatt.DeviceFromProperties("/dev0", deviceBag("AA:BB:CC:DD:EE:FF", -70))
	require.NoError(t, err)

	svc, _, err := gatt.ServiceFromProperties(gatt.Properties{
		"UUID":   dbus.MakeVariant("180f"),
		"Device": dbus.MakeVariant(dbus.ObjectPath("/dev0")),
	})
	require.NoError(t, err)
	dev.SetService("/dev0/service0001", svc)

	c, _, err := gatt.CharacteristicFromProperties(gatt.Properties{
		"UUID":    dbus.MakeVariant("2a19"),
		"Service": dbus.MakeVariant(dbus.ObjectPath("/dev0/service0001")),
		"Flags":   dbus.MakeVariant([]string{"read"}),
	})
	require.NoError(t, err)
	svc.SetCharacteristic("/dev0/service0001/char0002", c)

	d, _, err := gatt.DescriptorFromProperties(gatt.Properties{
		"UUID":           dbus.MakeVariant("2902"),
		"Characteristic": dbus.MakeVariant(dbus.ObjectPath("/dev0/service0001/char0002")),
	})
	require.NoError(t, err)
	c.SetDescriptor("/dev0/service0001/char0002/desc0003", d)

	gotSvc, ok := dev.Service("/dev0/service0001")
	require.True(t, ok)
	gotChar, ok := gotSvc.Characteristic("/dev0/service0001/char0002")
	require.True(t, ok)
	gotDesc, ok := gotChar.Descriptor("/dev0/service0001/char0002/desc0003")
	require.True(t, ok)
	assert.Equal(t, "2902", gotDesc.UUID)
}

package registry_test

import (
	"io"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/btlesniffer/btlesniffer/internal/gatt"
	"github.com/btlesniffer/btlesniffer/internal/registry"
)

type RegistryTestSuite struct {
	suite.Suite

	reg *registry.Registry
}

func (s *RegistryTestSuite) SetupTest() {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s.reg = registry.New(logger)
}

func (s *RegistryTestSuite) newDevice(path, addr string, rssi int16) *gatt.Device {
	dev, err := gatt.DeviceFromProperties(path, gatt.Properties{
		"Address": dbus.MakeVariant(addr),
		"RSSI":    dbus.MakeVariant(rssi),
	})
	s.Require().NoError(err)
	return dev
}

func (s *RegistryTestSuite) newService(devicePath string) *gatt.Service {
	svc, _, err := gatt.ServiceFromProperties(gatt.Properties{
		"UUID":   dbus.MakeVariant("180f"),
		"Device": dbus.MakeVariant(dbus.ObjectPath(devicePath)),
	})
	s.Require().NoError(err)
	return svc
}

func (s *RegistryTestSuite) newCharacteristic(servicePath string) *gatt.Characteristic {
	c, _, err := gatt.CharacteristicFromProperties(gatt.Properties{
		"UUID":    dbus.MakeVariant("2a19"),
		"Service": dbus.MakeVariant(dbus.ObjectPath(servicePath)),
		"Flags":   dbus.MakeVariant([]string{"read"}),
	})
	s.Require().NoError(err)
	return c
}

func (s *RegistryTestSuite) TestRegisterNewDevice() {
	dev, merged := s.reg.Register(s.newDevice("/dev0", "AA:BB:CC:DD:EE:FF", -70))

	s.False(merged)
	s.Equal(1, s.reg.Len())

	byPath, ok := s.reg.FindByPath("/dev0")
	s.True(ok)
	s.Same(dev, byPath)

	byAddr, ok := s.reg.FindByAddress("AA:BB:CC:DD:EE:FF")
	s.True(ok)
	s.Same(dev, byAddr)
}

func (s *RegistryTestSuite) TestRegisterMergesOnRediscovery() {
	first, _ := s.reg.Register(s.newDevice("/dev0", "AA:BB:CC:DD:EE:FF", -70))
	second, merged := s.reg.Register(s.newDevice("/dev1", "AA:BB:CC:DD:EE:FF", -60))

	s.True(merged)
	s.Same(first, second)
	s.Equal(1, s.reg.Len(), "rediscovery must not create a second device")

	// The path follows the newer notification and the index moves with it.
	s.Equal("/dev1", second.Path)
	_, ok := s.reg.FindByPath("/dev0")
	s.False(ok)
	_, ok = s.reg.FindByPath("/dev1")
	s.True(ok)

	s.Equal([]int16{-70, -60}, second.RSSIHistory)
}

func (s *RegistryTestSuite) TestRegisterIsIdempotentExceptHistory() {
	s.reg.Register(s.newDevice("/dev0", "AA:BB:CC:DD:EE:FF", -70))
	dev, merged := s.reg.Register(s.newDevice("/dev0", "AA:BB:CC:DD:EE:FF", -70))

	s.True(merged)
	s.Equal(1, s.reg.Len())
	s.Equal("/dev0", dev.Path)
	s.Equal("AA:BB:CC:DD:EE:FF", dev.Address)
	s.True(dev.Active)
	// The history log is the documented exception: the sample repeats.
	s.Equal([]int16{-70, -70}, dev.RSSIHistory)
}

func (s *RegistryTestSuite) TestRegisterReactivatesLostDevice() {
	s.reg.Register(s.newDevice("/dev0", "AA:BB:CC:DD:EE:FF", -70))
	_, ok := s.reg.MarkInactive("/dev0")
	s.True(ok)

	dev, merged := s.reg.Register(s.newDevice("/dev0", "AA:BB:CC:DD:EE:FF", -65))
	s.True(merged)
	s.True(dev.Active)
}

func (s *RegistryTestSuite) TestMarkInactive() {
	s.reg.Register(s.newDevice("/dev0", "AA:BB:CC:DD:EE:FF", -70))

	dev, ok := s.reg.MarkInactive("/dev0")
	s.True(ok)
	s.False(dev.Active)
	s.Equal(1, s.reg.Len(), "inactive devices stay registered")
}

func (s *RegistryTestSuite) TestMarkInactiveUnknownPathIsNoOp() {
	s.reg.Register(s.newDevice("/dev0", "AA:BB:CC:DD:EE:FF", -70))

	_, ok := s.reg.MarkInactive("/nope")
	s.False(ok)

	dev, found := s.reg.FindByPath("/dev0")
	s.True(found)
	s.True(dev.Active)
	s.Equal(1, s.reg.Len())
}

func (s *RegistryTestSuite) TestAttachService() {
	s.reg.Register(s.newDevice("/dev0", "AA:BB:CC:DD:EE:FF", -70))

	dev, ok := s.reg.AttachService("/dev0", "/dev0/service0001", s.newService("/dev0"))
	s.True(ok)
	s.Equal(1, dev.Services.Len())
}

func (s *RegistryTestSuite) TestAttachServiceUnknownDeviceIsDropped() {
	_, ok := s.reg.AttachService("/nope", "/nope/service0001", s.newService("/nope"))
	s.False(ok)
	s.Equal(0, s.reg.Len())
}

func (s *RegistryTestSuite) TestAttachCharacteristic() {
	s.reg.Register(s.newDevice("/dev0", "AA:BB:CC:DD:EE:FF", -70))
	s.reg.AttachService("/dev0", "/dev0/service0001", s.newService("/dev0"))

	c := s.newCharacteristic("/dev0/service0001")
	dev, ok := s.reg.AttachCharacteristic("/dev0/service0001", "/dev0/service0001/char0002", c)
	s.True(ok)

	svc, _ := dev.Service("/dev0/service0001")
	_, found := svc.Characteristic("/dev0/service0001/char0002")
	s.True(found)
}

func (s *RegistryTestSuite) TestAttachCharacteristicUnknownServiceIsDropped() {
	s.reg.Register(s.newDevice("/dev0", "AA:BB:CC:DD:EE:FF", -70))

	c := s.newCharacteristic("/dev0/service0009")
	_, ok := s.reg.AttachCharacteristic("/dev0/service0009", "/dev0/service0009/char0002", c)
	s.False(ok)

	dev, _ := s.reg.FindByPath("/dev0")
	s.Equal(0, dev.Services.Len(), "orphan attachment must not materialize ancestors")
}

func (s *RegistryTestSuite) TestAttachDescriptorWalksAncestorChain() {
	s.reg.Register(s.newDevice("/dev0", "AA:BB:CC:DD:EE:FF", -70))
	svc := s.newService("/dev0")
	s.reg.AttachService("/dev0", "/dev0/service0001", svc)
	c := s.newCharacteristic("/dev0/service0001")
	s.reg.AttachCharacteristic("/dev0/service0001", "/dev0/service0001/char0002", c)

	d := &gatt.Descriptor{UUID: "2902"}
	_, ok := s.reg.AttachDescriptor("/dev0/service0001/char0002", "/dev0/service0001/char0002/desc0003", d)
	s.True(ok)

	_, found := c.Descriptor("/dev0/service0001/char0002/desc0003")
	s.True(found)
}

func (s *RegistryTestSuite) TestAttachDescriptorUnknownCharacteristicIsDropped() {
	s.reg.Register(s.newDevice("/dev0", "AA:BB:CC:DD:EE:FF", -70))
	s.reg.AttachService("/dev0", "/dev0/service0001", s.newService("/dev0"))

	d := &gatt.Descriptor{UUID: "2902"}
	_, ok := s.reg.AttachDescriptor("/dev0/service0001/char0009", "/dev0/service0001/char0009/desc0003", d)
	s.False(ok)
}

func (s *RegistryTestSuite) TestRange() {
	s.reg.Register(s.newDevice("/dev0", "AA:BB:CC:DD:EE:FF", -70))
	s.reg.Register(s.newDevice("/dev1", "11:22:33:44:55:66", -60))

	count := 0
	s.reg.Range(func(*gatt.Device) bool {
		count++
		return true
	})
	s.Equal(2, count)
}

func TestRegistryTestSuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}

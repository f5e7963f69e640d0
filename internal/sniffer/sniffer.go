// Package sniffer dispatches BlueZ notifications against the device
// registry and decides, per observation, whether to emit to the
// reporting queue.
package sniffer

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/btlesniffer/btlesniffer/internal/bluez"
	"github.com/btlesniffer/btlesniffer/internal/gate"
	"github.com/btlesniffer/btlesniffer/internal/gatt"
	"github.com/btlesniffer/btlesniffer/internal/publisher"
	"github.com/btlesniffer/btlesniffer/internal/registry"
)

// EventSource is the notification feed the dispatcher consumes,
// normally a bluez.Bus. Start must fail if discovery cannot begin.
type EventSource interface {
	Start(ctx context.Context) error
	Stop()
	Events() <-chan bluez.Event
}

// ChangeKind labels registry changes for display hooks.
type ChangeKind int

const (
	DeviceNew ChangeKind = iota
	DeviceMerged
	DeviceUpdated
	DeviceLost
	ServiceResolved
	CharacteristicResolved
	DescriptorResolved
)

func (k ChangeKind) String() string {
	switch k {
	case DeviceNew:
		return "New"
	case DeviceMerged:
		return "Merge"
	case DeviceUpdated:
		return "Update"
	case DeviceLost:
		return "Lost"
	case ServiceResolved:
		return "Service"
	case CharacteristicResolved:
		return "Characteristic"
	case DescriptorResolved:
		return "Descriptor"
	default:
		return "Unknown"
	}
}

// Listener observes registry changes. Called synchronously on the
// dispatch goroutine; implementations must not block.
type Listener func(kind ChangeKind, dev *gatt.Device)

// Option configures a Sniffer.
type Option func(*Sniffer)

// WithListener installs a registry-change hook.
func WithListener(l Listener) Option {
	return func(s *Sniffer) { s.listener = l }
}

// WithClock overrides the time source. Used by tests to drive the
// rate-limit window deterministically.
func WithClock(now func() time.Time) Option {
	return func(s *Sniffer) { s.now = now }
}

// Sniffer is the single-goroutine event dispatcher. All registry and
// hierarchy mutation happens here, one notification at a time; the
// publisher queue is the only concurrency boundary.
type Sniffer struct {
	source   EventSource
	registry *registry.Registry
	policy   gate.Policy
	pub      *publisher.Publisher
	log      *logrus.Logger
	listener Listener
	now      func() time.Time
}

// New assembles a dispatcher. The publisher queue is injected rather
// than owned so the enclosing process controls its lifetime.
func New(source EventSource, reg *registry.Registry, policy gate.Policy, pub *publisher.Publisher, logger *logrus.Logger, opts ...Option) *Sniffer {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Sniffer{
		source:   source,
		registry: reg,
		policy:   policy,
		pub:      pub,
		log:      logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run starts discovery and processes notifications until the context
// is cancelled or the event stream ends. A discovery startup failure is
// returned as-is: the process cannot operate without it.
func (s *Sniffer) Run(ctx context.Context) error {
	if err := s.source.Start(ctx); err != nil {
		return fmt.Errorf("starting BLE discovery: %w", err)
	}
	defer s.source.Stop()

	s.log.Debug("Dispatching BlueZ notifications")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-s.source.Events():
			if !ok {
				return nil
			}
			s.dispatch(ctx, ev)
		}
	}
}

// dispatch routes one notification. Every failure below this point is
// per-notification and recoverable: log at debug, drop, continue.
func (s *Sniffer) dispatch(ctx context.Context, ev bluez.Event) {
	switch ev.Kind {
	case bluez.InterfacesAdded:
		s.handleAdded(ctx, ev)
	case bluez.InterfacesRemoved:
		s.handleRemoved(ev)
	case bluez.PropertiesChanged:
		s.handleChanged(ctx, ev)
	}
}

func (s *Sniffer) handleAdded(ctx context.Context, ev bluez.Event) {
	if bag, ok := ev.Interfaces[bluez.DeviceInterface]; ok {
		s.registerDevice(ctx, ev.Path, bag)
	}
	if bag, ok := ev.Interfaces[bluez.ServiceInterface]; ok {
		s.registerService(ev.Path, bag)
	}
	if bag, ok := ev.Interfaces[bluez.CharacteristicInterface]; ok {
		s.registerCharacteristic(ev.Path, bag)
	}
	if bag, ok := ev.Interfaces[bluez.DescriptorInterface]; ok {
		s.registerDescriptor(ev.Path, bag)
	}
}

func (s *Sniffer) handleRemoved(ev bluez.Event) {
	if dev, ok := s.registry.MarkInactive(ev.Path); ok {
		s.notify(DeviceLost, dev)
	}
}

func (s *Sniffer) handleChanged(ctx context.Context, ev bluez.Event) {
	dev, ok := s.registry.FindByPath(ev.Path)
	if !ok {
		s.log.WithField("path", ev.Path).Debug("Received PropertiesChanged for an unknown device")
		return
	}

	dev.Apply(ev.Changed)

	// The sample always lands in the history; only emission is gated.
	if rssi, ok := gatt.RSSI(ev.Changed); ok {
		dev.AppendRSSI(rssi)
		s.notify(DeviceUpdated, dev)
		s.emit(ctx, dev, rssi)
	}
}

func (s *Sniffer) registerDevice(ctx context.Context, path string, bag gatt.Properties) {
	candidate, err := gatt.DeviceFromProperties(path, bag)
	if err != nil {
		s.log.WithError(err).WithField("path", path).Debug("Discarding malformed device notification")
		return
	}

	dev, merged := s.registry.Register(candidate)
	if merged {
		s.notify(DeviceMerged, dev)
	} else {
		s.log.WithFields(logrus.Fields{
			"device":  dev.DisplayName(),
			"address": dev.Address,
			"rssi":    dev.LatestRSSI(),
		}).Info("Discovered new device")
		s.notify(DeviceNew, dev)
	}

	s.emit(ctx, dev, dev.LatestRSSI())
}

func (s *Sniffer) registerService(path string, bag gatt.Properties) {
	svc, devicePath, err := gatt.ServiceFromProperties(bag)
	if err != nil {
		s.log.WithError(err).WithField("path", path).Debug("Discarding malformed service notification")
		return
	}
	if dev, ok := s.registry.AttachService(devicePath, path, svc); ok {
		s.notify(ServiceResolved, dev)
	}
}

func (s *Sniffer) registerCharacteristic(path string, bag gatt.Properties) {
	c, servicePath, err := gatt.CharacteristicFromProperties(bag)
	if err != nil {
		s.log.WithError(err).WithField("path", path).Debug("Discarding malformed characteristic notification")
		return
	}
	if dev, ok := s.registry.AttachCharacteristic(servicePath, path, c); ok {
		s.notify(CharacteristicResolved, dev)
	}
}

func (s *Sniffer) registerDescriptor(path string, bag gatt.Properties) {
	d, charPath, err := gatt.DescriptorFromProperties(bag)
	if err != nil {
		s.log.WithError(err).WithField("path", path).Debug("Discarding malformed descriptor notification")
		return
	}
	if dev, ok := s.registry.AttachDescriptor(charPath, path, d); ok {
		s.notify(DescriptorResolved, dev)
	}
}

// emit runs the gate and, on acceptance, records the emission time and
// enqueues the observation. Rejections are normal filtering outcomes,
// logged at debug only.
func (s *Sniffer) emit(ctx context.Context, dev *gatt.Device, rssi int16) {
	now := s.now()
	decision := s.policy.Evaluate(dev, rssi, now)
	if decision != gate.Accepted {
		s.log.WithFields(logrus.Fields{
			"address":  dev.Address,
			"rssi":     rssi,
			"decision": decision.String(),
		}).Debug("Observation filtered")
		return
	}

	dev.LastEmitted = now
	s.pub.Publish(ctx, publisher.Observation{
		Identifier:        dev.Address,
		Timestamp:         now,
		SignalStrengthDbm: float64(rssi),
	})
}

func (s *Sniffer) notify(kind ChangeKind, dev *gatt.Device) {
	if s.listener != nil {
		s.listener(kind, dev)
	}
}

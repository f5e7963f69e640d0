// Package gate implements the emission policy applied to every
// candidate observation: an RSSI admission threshold followed by a
// per-device minimum emission interval.
package gate

import (
	"time"

	"github.com/btlesniffer/btlesniffer/internal/gatt"
)

// Decision is the outcome of evaluating one candidate observation.
type Decision int

const (
	// Accepted means the observation passes both checks and should be
	// emitted.
	Accepted Decision = iota
	// BelowThreshold means the sample did not exceed the configured
	// RSSI floor. Not an error; expected filtering.
	BelowThreshold
	// RateLimited means the device emitted within the minimum interval.
	// Not an error; expected filtering.
	RateLimited
)

func (d Decision) String() string {
	switch d {
	case Accepted:
		return "accepted"
	case BelowThreshold:
		return "below_threshold"
	case RateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Policy holds the configured gate parameters. The zero value rejects
// nothing on the interval check and admits samples above 0 dBm, so
// callers always construct it explicitly from configuration.
type Policy struct {
	// ThresholdRSSI is the admission floor in dBm. A sample is admitted
	// only if strictly greater than the threshold.
	ThresholdRSSI int16

	// MinimumInterval is the smallest allowed gap between two accepted
	// observations of the same device.
	MinimumInterval time.Duration
}

// Evaluate applies the policy to one candidate sample. It never
// mutates the device; on Accepted the caller records the emission time
// and constructs the observation.
//
// The threshold is checked before the interval so that a device
// permanently below the floor never consumes or resets its rate-limit
// timer.
func (p Policy) Evaluate(dev *gatt.Device, rssi int16, now time.Time) Decision {
	if rssi <= p.ThresholdRSSI {
		return BelowThreshold
	}
	if !dev.LastEmitted.IsZero() && now.Sub(dev.LastEmitted) < p.MinimumInterval {
		return RateLimited
	}
	return Accepted
}

// Package publisher carries accepted observations from the dispatcher
// to the reporting channel over a bounded queue.
package publisher

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Observation is one accepted signal-strength sample, ready for the
// reporting channel.
type Observation struct {
	// Identifier is the device hardware address.
	Identifier string `json:"identifier"`
	// Timestamp is the moment the sample was accepted.
	Timestamp time.Time `json:"timestamp"`
	// SignalStrengthDbm is the sampled RSSI in dBm.
	SignalStrengthDbm float64 `json:"signal_strength_dbm"`
}

// Publisher enqueues observations for the reporting worker. It is the
// only concurrency boundary in the core: the dispatcher produces on its
// own goroutine, the reporter consumes on another.
type Publisher struct {
	queue *Queue[Observation]
	log   *logrus.Logger
}

// New creates a Publisher with a bounded queue of the given capacity.
func New(capacity int, logger *logrus.Logger) *Publisher {
	if logger == nil {
		logger = logrus.New()
	}
	return &Publisher{
		queue: NewQueue[Observation](capacity),
		log:   logger,
	}
}

// Publish enqueues an observation, blocking while the queue is full.
// A cancelled context abandons the observation; the loss is logged.
func (p *Publisher) Publish(ctx context.Context, obs Observation) {
	if !p.queue.Send(ctx, obs) {
		p.log.WithFields(logrus.Fields{
			"identifier": obs.Identifier,
			"rssi":       obs.SignalStrengthDbm,
		}).Debug("Observation dropped during shutdown")
	}
}

// Observations returns the consumer side of the queue.
func (p *Publisher) Observations() <-chan Observation {
	return p.queue.C()
}

// Close closes the queue, signalling consumers that no more
// observations will arrive.
func (p *Publisher) Close() {
	p.queue.Close()
}

// Metrics returns a snapshot of queue counters.
func (p *Publisher) Metrics() QueueMetrics {
	return p.queue.Metrics()
}

// Package reporter drains the observation queue and publishes each
// accepted sample to the MQTT reporting channel. The antenna announces
// itself (client id plus location) with a retained message before any
// measurement is sent.
package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/btlesniffer/btlesniffer/internal/config"
	"github.com/btlesniffer/btlesniffer/internal/publisher"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second

	// disconnectQuiesce is how long Disconnect waits for in-flight
	// messages, in milliseconds (paho API).
	disconnectQuiesce = 1000
)

// Reporter owns the broker connection and the forwarding loop.
type Reporter struct {
	cfg    config.ReportConfig
	loc    config.LocationConfig
	client pahomqtt.Client
	log    *logrus.Logger
}

// New creates a Reporter. No connection is made until Run.
func New(cfg config.ReportConfig, loc config.LocationConfig, logger *logrus.Logger) *Reporter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Reporter{cfg: cfg, loc: loc, log: logger}
}

// Run connects, announces the antenna, then forwards observations
// until the context is cancelled or the queue is closed and drained.
// Connection and announcement failures are fatal; per-measurement send
// failures are logged and skipped.
func (r *Reporter) Run(ctx context.Context, observations <-chan publisher.Observation) error {
	if err := r.connect(); err != nil {
		return err
	}
	defer r.client.Disconnect(disconnectQuiesce)

	if err := r.announce(); err != nil {
		return fmt.Errorf("registering antenna: %w", err)
	}
	r.log.WithFields(logrus.Fields{
		"client_id": r.cfg.ClientID,
		"x":         r.loc.X,
		"y":         r.loc.Y,
	}).Info("Registered antenna")

	for {
		select {
		case <-ctx.Done():
			return nil
		case obs, ok := <-observations:
			if !ok {
				return nil
			}
			if err := r.send(obs); err != nil {
				r.log.WithError(err).WithField("identifier", obs.Identifier).
					Warn("Failed to send measurement")
			}
		}
	}
}

func (r *Reporter) connect() error {
	opts := buildClientOptions(r.cfg)
	r.client = pahomqtt.NewClient(opts)

	token := r.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("connecting to broker %s: timeout after %v", r.cfg.Broker, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connecting to broker %s: %w", r.cfg.Broker, err)
	}
	return nil
}

// announce publishes the retained antenna registration so subscribers
// learn the antenna's position before measurements arrive.
func (r *Reporter) announce() error {
	payload, err := announcePayload(r.cfg.ClientID, r.loc, time.Now())
	if err != nil {
		return err
	}
	return r.publish(announceTopic(r.cfg.TopicPrefix, r.cfg.ClientID), payload, true)
}

func (r *Reporter) send(obs publisher.Observation) error {
	payload, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("encoding measurement: %w", err)
	}
	return r.publish(measurementTopic(r.cfg.TopicPrefix, r.cfg.ClientID), payload, false)
}

func (r *Reporter) publish(topic string, payload []byte, retained bool) error {
	token := r.client.Publish(topic, byte(r.cfg.QoS), retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publishing to %s: timeout after %v", topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

func buildClientOptions(cfg config.ReportConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetOrderMatters(false)
	return opts
}

func announceTopic(prefix, clientID string) string {
	return fmt.Sprintf("%s/antenna/%s", prefix, clientID)
}

func measurementTopic(prefix, clientID string) string {
	return fmt.Sprintf("%s/antenna/%s/measurement", prefix, clientID)
}

type announcement struct {
	ClientID  string    `json:"client_id"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	StartedAt time.Time `json:"started_at"`
}

func announcePayload(clientID string, loc config.LocationConfig, now time.Time) ([]byte, error) {
	return json.Marshal(announcement{
		ClientID:  clientID,
		X:         loc.X,
		Y:         loc.Y,
		StartedAt: now,
	})
}

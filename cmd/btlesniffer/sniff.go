package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/btlesniffer/btlesniffer/internal/bluez"
	"github.com/btlesniffer/btlesniffer/internal/config"
	"github.com/btlesniffer/btlesniffer/internal/gate"
	"github.com/btlesniffer/btlesniffer/internal/publisher"
	"github.com/btlesniffer/btlesniffer/internal/registry"
	"github.com/btlesniffer/btlesniffer/internal/reporter"
	"github.com/btlesniffer/btlesniffer/internal/sniffer"
)

// sniffCmd represents the sniff command
var sniffCmd = &cobra.Command{
	Use:   "sniff",
	Short: "Sniff for BLE devices and report observations",
	Long: `Start LE-only discovery on the first available Bluetooth adapter and
process BlueZ notifications until interrupted.

Devices whose signal strength exceeds the RSSI threshold are reported
to the MQTT channel, at most once per device within the minimum
interval. The broker address and the antenna location can also be
provided via the ` + config.EnvBroker + `, ` + config.EnvLocationX + ` and ` + config.EnvLocationY + `
environment variables.`,
	RunE: runSniff,
}

var (
	sniffConfigPath    string
	sniffThresholdRSSI int
	sniffMinInterval   time.Duration
	sniffBroker        string
	sniffQueueCap      int
	sniffQuiet         bool
)

func init() {
	sniffCmd.Flags().StringVarP(&sniffConfigPath, "config", "c", "", "Path to YAML config file")
	sniffCmd.Flags().IntVar(&sniffThresholdRSSI, "threshold-rssi", -80,
		"Lower bound RSSI at which to report devices (in dBm)")
	sniffCmd.Flags().DurationVar(&sniffMinInterval, "minimum-interval", 5*time.Second,
		"Minimum interval between two reports for the same device")
	sniffCmd.Flags().StringVar(&sniffBroker, "broker", "", "MQTT broker address (e.g. tcp://host:1883)")
	sniffCmd.Flags().IntVar(&sniffQueueCap, "queue-capacity", 0, "Observation queue capacity")
	sniffCmd.Flags().BoolVarP(&sniffQuiet, "quiet", "q", false, "Suppress device event output")
	sniffCmd.Flags().CountP("verbose", "V", "Increase logging verbosity (-V info, -VV debug)")
}

func runSniff(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	cfg, err := config.Load(sniffConfigPath)
	if err != nil {
		return err
	}

	// Flags beat the file and the environment.
	if cmd.Flags().Changed("threshold-rssi") {
		cfg.Sniffer.ThresholdRSSI = sniffThresholdRSSI
	}
	interval := cfg.Sniffer.Interval()
	if cmd.Flags().Changed("minimum-interval") {
		interval = sniffMinInterval
	}
	if sniffBroker != "" {
		cfg.Report.Broker = sniffBroker
	}
	if sniffQueueCap > 0 {
		cfg.Sniffer.QueueCapacity = sniffQueueCap
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nInterrupted, shutting down...")
		cancel()
	}()

	bus, err := bluez.New(logger)
	if err != nil {
		return err
	}

	reg := registry.New(logger)
	policy := gate.Policy{
		ThresholdRSSI:   int16(cfg.Sniffer.ThresholdRSSI),
		MinimumInterval: interval,
	}
	pub := publisher.New(cfg.Sniffer.QueueCapacity, logger)

	opts := []sniffer.Option{}
	if !sniffQuiet {
		printer := newEventPrinter(os.Stdout)
		opts = append(opts, sniffer.WithListener(printer.OnChange))
	}
	snf := sniffer.New(bus, reg, policy, pub, logger, opts...)
	rep := reporter.New(cfg.Report, cfg.Location, logger)

	repErr := make(chan error, 1)
	go func() {
		repErr <- rep.Run(ctx, pub.Observations())
	}()

	snifErr := make(chan error, 1)
	go func() {
		snifErr <- snf.Run(ctx)
	}()

	var runErr error
	select {
	case err := <-repErr:
		// Reporting channel failed (or finished); stop dispatching.
		cancel()
		runErr = err
		<-snifErr
	case err := <-snifErr:
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = err
		}
		pub.Close()
		if rerr := <-repErr; runErr == nil && rerr != nil {
			runErr = rerr
		}
	}

	m := pub.Metrics()
	logger.WithField("sent", m.Sent).WithField("delivered", m.Received).
		Info("Sniffer stopped")
	return runErr
}

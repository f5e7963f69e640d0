package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/btlesniffer/btlesniffer/internal/gatt"
	"github.com/btlesniffer/btlesniffer/internal/sniffer"
)

// eventPrinter renders registry changes as one-line console entries,
// color-coded by change kind.
type eventPrinter struct {
	w      io.Writer
	colors map[sniffer.ChangeKind]*color.Color
}

func newEventPrinter(w io.Writer) *eventPrinter {
	return &eventPrinter{
		w: w,
		colors: map[sniffer.ChangeKind]*color.Color{
			sniffer.DeviceNew:              color.New(color.FgGreen, color.Bold),
			sniffer.DeviceMerged:           color.New(color.FgYellow),
			sniffer.DeviceUpdated:          color.New(color.FgCyan),
			sniffer.DeviceLost:             color.New(color.FgRed),
			sniffer.ServiceResolved:        color.New(color.FgBlue),
			sniffer.CharacteristicResolved: color.New(color.FgMagenta),
			sniffer.DescriptorResolved:     color.New(color.FgMagenta),
		},
	}
}

// OnChange implements sniffer.Listener.
func (p *eventPrinter) OnChange(kind sniffer.ChangeKind, dev *gatt.Device) {
	c, ok := p.colors[kind]
	if !ok {
		c = color.New(color.Reset)
	}

	state := "active"
	if !dev.Active {
		state = "inactive"
	}
	fmt.Fprintf(p.w, "%s %s (%s) rssi=%d dBm services=%d %s\n",
		c.Sprintf("%-14s", kind.String()),
		dev.DisplayName(), dev.Address, dev.LatestRSSI(), dev.Services.Len(), state)
}

// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build tinygo && (rp2040 || rp2350)

// ledkey-pico is the RP2040/RP2350 firmware: the panel is clocked by a PIO
// SPI and the step pulses by a PIO pulse generator.
//
// Wiring:
//
//	GP2 SCK, GP3 SDO, GP4 SDI, GP5 strobe    control panel
//	GP6 step, GP7 dir, GP8 enable            stepper driver
//	GP9                                      tick indicator
package main

import (
	"context"
	"log"
	"machine"
	"time"

	"github.com/GermanBionicSystems/ledkey/controlpanel"
	"github.com/GermanBionicSystems/ledkey/frontpanel"
	"github.com/GermanBionicSystems/ledkey/stepperdrive"
	"github.com/GermanBionicSystems/ledkey/tick"
	pio "github.com/tinygo-org/pio/rp2-pio"
	"github.com/tinygo-org/pio/rp2-pio/piolib"
)

const (
	panelFrequency = 1_000_000
	stepPulse      = 10 * time.Microsecond
)

func mainImpl() error {
	sm, err := pio.PIO0.ClaimStateMachine()
	if err != nil {
		return err
	}
	bus, err := piolib.NewSPI(sm, machine.SPIConfig{
		Frequency: panelFrequency,
		SCK:       machine.GPIO2,
		SDO:       machine.GPIO3,
		SDI:       machine.GPIO4,
		Mode:      0,
	})
	if err != nil {
		return err
	}
	link, err := controlpanel.NewConn(controlpanel.TinyGoConn(bus, "PIO0-SPI"), newOutPin(machine.GPIO5, "STROBE"), nil)
	if err != nil {
		return err
	}
	if err := link.Init(); err != nil {
		return err
	}

	sm, err = pio.PIO0.ClaimStateMachine()
	if err != nil {
		return err
	}
	out, err := newPulseStep(sm, machine.GPIO6, newOutPin(machine.GPIO7, "DIR"), newOutPin(machine.GPIO8, "EN"), stepPulse)
	if err != nil {
		return err
	}
	motor, err := stepperdrive.New(out)
	if err != nil {
		return err
	}
	t, err := tick.New(&tick.Opts{Indicator: newOutPin(machine.GPIO9, "TICK")})
	if err != nil {
		return err
	}
	loop, err := frontpanel.New(link, motor, nil)
	if err != nil {
		return err
	}
	log.Printf("%s, %s, %s", motor, link, t)

	ctx := context.Background()
	go t.Run(ctx, motor.ServiceTick)
	return loop.Run(ctx)
}

func main() {
	// Give the USB console time to come up.
	time.Sleep(time.Second)
	if err := mainImpl(); err != nil {
		for {
			log.Printf("ledkey: %v", err)
			time.Sleep(5 * time.Second)
		}
	}
}

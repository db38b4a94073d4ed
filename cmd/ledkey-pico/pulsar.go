// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build tinygo && (rp2040 || rp2350)

package main

import (
	"fmt"
	"machine"
	"time"

	"github.com/GermanBionicSystems/ledkey/stepperdrive"
	pio "github.com/tinygo-org/pio/rp2-pio"
	"github.com/tinygo-org/pio/rp2-pio/piolib"
	"periph.io/x/conn/v3/gpio"
)

// pulseStep is a step/dir Phaser whose step pulses are generated by a PIO
// state machine, so a tick only queues a pulse and returns.
type pulseStep struct {
	pulsar *piolib.Pulsar
	dir    gpio.PinOut
	enable gpio.PinOut

	lastDir int
}

func newPulseStep(sm pio.StateMachine, step machine.Pin, dir, enable gpio.PinOut, width time.Duration) (*pulseStep, error) {
	p, err := piolib.NewPulsar(sm, step)
	if err != nil {
		return nil, err
	}
	if err := p.SetPeriod(2 * width); err != nil {
		return nil, err
	}
	if err := enable.Out(gpio.High); err != nil {
		return nil, err
	}
	return &pulseStep{pulsar: p, dir: dir, enable: enable}, nil
}

func (s *pulseStep) String() string {
	return fmt.Sprintf("PulseStep{%s}", s.dir)
}

// Phases implements stepperdrive.Phaser.
func (s *pulseStep) Phases() int {
	return 1
}

// Drive implements stepperdrive.Phaser.
func (s *pulseStep) Drive(phase, dir int) error {
	if err := s.enable.Out(gpio.Low); err != nil {
		return err
	}
	if dir == 0 {
		return nil
	}
	if dir != s.lastDir {
		if err := s.dir.Out(gpio.Level(dir > 0)); err != nil {
			return err
		}
		s.lastDir = dir
	}
	// A full queue means the previous pulses never went out; report it so the
	// step is retried instead of counted.
	return s.pulsar.TryQueue(1)
}

// Release implements stepperdrive.Phaser.
func (s *pulseStep) Release() error {
	s.pulsar.Stop()
	return s.enable.Out(gpio.High)
}

var _ stepperdrive.Phaser = &pulseStep{}

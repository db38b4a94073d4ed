// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package stepperdrive

import (
	"errors"
	"fmt"
	"strings"

	"periph.io/x/conn/v3/gpio"
)

// Phaser drives the motor outputs for a phase index.
type Phaser interface {
	fmt.Stringer
	// Phases returns the number of phases in one electrical cycle. The engine
	// keeps its phase index in [0, Phases()).
	Phases() int
	// Drive energizes the outputs for phase. dir is the direction of the step
	// that led to phase: +1, -1, or 0 when the outputs are set to the home
	// phase at initialization.
	Drive(phase, dir int) error
	// Release de-energizes the outputs.
	Release() error
}

// Sequence is a coil energization table. Each entry is the bitmask of the
// coils energized for that phase, coil i being bit i.
type Sequence []uint8

var (
	// Wave energizes one coil at a time. Lowest torque, lowest current.
	Wave = Sequence{0b0001, 0b0010, 0b0100, 0b1000}
	// FullStep energizes two adjacent coils at a time.
	FullStep = Sequence{0b0011, 0b0110, 0b1100, 0b1001}
	// HalfStep alternates between one and two coils, doubling the resolution.
	HalfStep = Sequence{0b0001, 0b0011, 0b0010, 0b0110, 0b0100, 0b1100, 0b1000, 0b1001}
)

// SequenceFromString returns the Sequence for the given name: "wave", "full"
// or "half".
func SequenceFromString(name string) (Sequence, error) {
	switch strings.ToLower(name) {
	case "wave":
		return Wave, nil
	case "full", "fullstep":
		return FullStep, nil
	case "half", "halfstep":
		return HalfStep, nil
	}
	return nil, fmt.Errorf("stepperdrive: unknown coil sequence %q", name)
}

// Coils drives the motor coils directly, one GPIO per coil.
type Coils struct {
	pins []gpio.PinOut
	seq  Sequence

	last  uint8
	valid bool
}

// NewCoils returns a Phaser that drives pins with seq. Each mask in seq must
// fit in len(pins) bits.
func NewCoils(seq Sequence, pins ...gpio.PinOut) (*Coils, error) {
	if len(seq) == 0 {
		return nil, errors.New("stepperdrive: empty coil sequence")
	}
	if len(pins) == 0 || len(pins) > 8 {
		return nil, fmt.Errorf("stepperdrive: need 1 to 8 coil pins, got %d", len(pins))
	}
	for i, p := range pins {
		if p == nil {
			return nil, fmt.Errorf("stepperdrive: coil pin %d is nil", i)
		}
	}
	for i, m := range seq {
		if int(m)>>len(pins) != 0 {
			return nil, fmt.Errorf("stepperdrive: sequence entry %d (%#04b) uses more than %d coils", i, m, len(pins))
		}
	}
	return &Coils{pins: pins, seq: seq}, nil
}

func (c *Coils) String() string {
	names := make([]string, len(c.pins))
	for i, p := range c.pins {
		names[i] = p.String()
	}
	return fmt.Sprintf("Coils{%s}", strings.Join(names, ", "))
}

// Phases implements Phaser.
func (c *Coils) Phases() int {
	return len(c.seq)
}

// Drive implements Phaser.
//
// Only the coils whose state changes are written.
func (c *Coils) Drive(phase, dir int) error {
	if phase < 0 || phase >= len(c.seq) {
		return fmt.Errorf("stepperdrive: phase %d out of range", phase)
	}
	return c.write(c.seq[phase])
}

// Release implements Phaser.
func (c *Coils) Release() error {
	return c.write(0)
}

// Halt implements conn.Resource.
func (c *Coils) Halt() error {
	return c.Release()
}

func (c *Coils) write(mask uint8) error {
	for i, p := range c.pins {
		bit := uint8(1) << i
		if c.valid && c.last&bit == mask&bit {
			continue
		}
		if err := p.Out(gpio.Level(mask&bit != 0)); err != nil {
			// The pins are now in an unknown state; rewrite all of them next
			// time.
			c.valid = false
			return fmt.Errorf("stepperdrive: %s: %w", p, err)
		}
	}
	c.last = mask
	c.valid = true
	return nil
}

// StepDirOpts holds the optional settings of a step/dir driver.
type StepDirOpts struct {
	// Enable is the driver enable line. Leave nil if it is hard wired.
	Enable gpio.PinOut
	// InvertStep makes the step pulse active low.
	InvertStep bool
	// InvertDir swaps the meaning of the direction line.
	InvertDir bool
	// InvertEnable makes Enable active high. Most drivers use an active low
	// enable.
	InvertEnable bool
}

// StepDir drives a step/dir motor driver. Every step is one pulse on the
// step line, the direction line being updated before the pulse when it
// changes.
type StepDir struct {
	step gpio.PinOut
	dir  gpio.PinOut
	opts StepDirOpts

	lastDir int
	enabled bool
}

// NewStepDir returns a Phaser for a step/dir driver.
func NewStepDir(step, dir gpio.PinOut, opts *StepDirOpts) (*StepDir, error) {
	if step == nil || dir == nil {
		return nil, errors.New("stepperdrive: step and dir pins are required")
	}
	s := &StepDir{step: step, dir: dir}
	if opts != nil {
		s.opts = *opts
	}
	return s, nil
}

func (s *StepDir) String() string {
	return fmt.Sprintf("StepDir{%s, %s}", s.step, s.dir)
}

// Phases implements Phaser.
//
// The driver chip tracks the microstep position itself, so the engine only
// sees a single phase.
func (s *StepDir) Phases() int {
	return 1
}

// Drive implements Phaser.
func (s *StepDir) Drive(phase, dir int) error {
	if err := s.enable(true); err != nil {
		return err
	}
	if dir == 0 {
		return s.step.Out(s.stepLevel(false))
	}
	if dir != s.lastDir {
		if err := s.dir.Out(gpio.Level((dir > 0) != s.opts.InvertDir)); err != nil {
			return fmt.Errorf("stepperdrive: %s: %w", s.dir, err)
		}
		s.lastDir = dir
	}
	if err := s.step.Out(s.stepLevel(true)); err != nil {
		return fmt.Errorf("stepperdrive: %s: %w", s.step, err)
	}
	if err := s.step.Out(s.stepLevel(false)); err != nil {
		return fmt.Errorf("stepperdrive: %s: %w", s.step, err)
	}
	return nil
}

// Release implements Phaser.
//
// Without an enable line the motor stays energized; the driver chip owns the
// hold current.
func (s *StepDir) Release() error {
	return s.enable(false)
}

// Halt implements conn.Resource.
func (s *StepDir) Halt() error {
	return s.Release()
}

func (s *StepDir) stepLevel(active bool) gpio.Level {
	return gpio.Level(active != s.opts.InvertStep)
}

func (s *StepDir) enable(on bool) error {
	if s.opts.Enable == nil || s.enabled == on {
		return nil
	}
	// Active low unless inverted.
	if err := s.opts.Enable.Out(gpio.Level(on == s.opts.InvertEnable)); err != nil {
		return fmt.Errorf("stepperdrive: %s: %w", s.opts.Enable, err)
	}
	s.enabled = on
	return nil
}

var _ Phaser = &Coils{}
var _ Phaser = &StepDir{}

// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package stepperdrive

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Stats are the counters maintained by ServiceTick.
type Stats struct {
	// Ticks is the number of ServiceTick calls.
	Ticks uint64
	// Steps is the number of steps taken.
	Steps uint64
	// Idle is the number of ticks where the motor was already on target.
	Idle uint64
	// Skipped is the number of ticks dropped because the foreground held the
	// outputs.
	Skipped uint64
	// Faults is the number of steps not taken because the outputs failed.
	Faults uint64
}

func (s Stats) String() string {
	return fmt.Sprintf("ticks=%d steps=%d idle=%d skipped=%d faults=%d", s.Ticks, s.Steps, s.Idle, s.Skipped, s.Faults)
}

// Dev is a stepper drive engine.
//
// ServiceTick must only be called from one goroutine (or one interrupt
// handler) at a time. All other methods are safe for concurrent use.
type Dev struct {
	out    Phaser
	phases int

	// mu guards out and phase. ServiceTick only ever tries it.
	mu    sync.Mutex
	phase int

	current atomic.Int64
	desired atomic.Int64

	ticks   atomic.Uint64
	steps   atomic.Uint64
	idle    atomic.Uint64
	skipped atomic.Uint64
	faults  atomic.Uint64
	lastErr atomic.Pointer[fault]
}

type fault struct {
	err error
}

// New returns an engine driving out. The outputs are set to the home phase and
// both positions start at 0.
func New(out Phaser) (*Dev, error) {
	if out == nil {
		return nil, errors.New("stepperdrive: nil output")
	}
	d := &Dev{out: out, phases: out.Phases()}
	if d.phases < 1 {
		return nil, fmt.Errorf("stepperdrive: %s reports %d phases", out, d.phases)
	}
	if err := out.Drive(0, 0); err != nil {
		return nil, fmt.Errorf("stepperdrive: failed to set home phase: %w", err)
	}
	return d, nil
}

// SetDesiredPosition sets the position the motor moves toward. It does not
// move the motor and never blocks.
//
// Targets are not bounded; clamping belongs to the caller.
func (d *Dev) SetDesiredPosition(target int64) {
	d.desired.Store(target)
}

// DesiredPosition returns the last commanded target.
func (d *Dev) DesiredPosition() int64 {
	return d.desired.Load()
}

// Position returns the current position in steps relative to power on.
func (d *Dev) Position() int64 {
	return d.current.Load()
}

// Phase returns the current phase index.
func (d *Dev) Phase() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase
}

// ServiceTick advances the motor by at most one step toward the desired
// position.
//
// It runs in bounded time and never blocks. When the outputs fail, the step
// is not taken and is retried on the next tick.
func (d *Dev) ServiceTick() {
	d.ticks.Add(1)
	if !d.mu.TryLock() {
		d.skipped.Add(1)
		return
	}
	defer d.mu.Unlock()

	current := d.current.Load()
	delta := d.desired.Load() - current
	if delta == 0 {
		d.idle.Add(1)
		return
	}
	dir := 1
	if delta < 0 {
		dir = -1
	}
	next := (d.phase + dir + d.phases) % d.phases
	if err := d.out.Drive(next, dir); err != nil {
		d.faults.Add(1)
		d.lastErr.Store(&fault{err})
		return
	}
	d.phase = next
	d.current.Store(current + int64(dir))
	d.steps.Add(1)
}

// Stats returns a snapshot of the tick counters.
func (d *Dev) Stats() Stats {
	return Stats{
		Ticks:   d.ticks.Load(),
		Steps:   d.steps.Load(),
		Idle:    d.idle.Load(),
		Skipped: d.skipped.Load(),
		Faults:  d.faults.Load(),
	}
}

// LastError returns the most recent output error seen by ServiceTick, if any.
func (d *Dev) LastError() error {
	if f := d.lastErr.Load(); f != nil {
		return f.err
	}
	return nil
}

// Halt implements conn.Resource.
//
// It retargets the motor to where it stands and de-energizes the outputs. A
// later SetDesiredPosition energizes them again.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.desired.Store(d.current.Load())
	if err := d.out.Release(); err != nil {
		return fmt.Errorf("stepperdrive: %w", err)
	}
	return nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("StepperDrive{%s}", d.out)
}

// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package tick calls a handler at a fixed period, standing in for a hardware
// timer interrupt on hosts that have none.
//
// An optional indicator pin is raised on entry and lowered on exit of each
// call, so the handler duration and jitter can be measured with a scope.
package tick

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3/gpio"
)

// DefaultPeriod is the reference stepper tick.
const DefaultPeriod = 500 * time.Millisecond

// Opts holds the tick settings.
type Opts struct {
	// Period between calls. Defaults to DefaultPeriod.
	Period time.Duration
	// Indicator is raised for the duration of every call. Optional.
	Indicator gpio.PinOut
	// Clock defaults to the real clock.
	Clock clockwork.Clock
}

// Driver fires a handler periodically.
type Driver struct {
	period    time.Duration
	indicator gpio.PinOut
	clock     clockwork.Clock

	running  atomic.Bool
	fired    atomic.Uint64
	overruns atomic.Uint64
}

// New returns a Driver.
func New(opts *Opts) (*Driver, error) {
	d := &Driver{period: DefaultPeriod}
	if opts != nil {
		if opts.Period < 0 {
			return nil, fmt.Errorf("tick: invalid period %s", opts.Period)
		}
		if opts.Period != 0 {
			d.period = opts.Period
		}
		d.indicator = opts.Indicator
		d.clock = opts.Clock
	}
	if d.clock == nil {
		d.clock = clockwork.NewRealClock()
	}
	if d.indicator != nil {
		if err := d.indicator.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("tick: %w", err)
		}
	}
	return d, nil
}

// Run calls fn once per period until ctx is done. Only one Run may be active
// at a time.
//
// Ticks that arrive while fn is still running are dropped, not queued; fn
// must tolerate missed ticks.
func (d *Driver) Run(ctx context.Context, fn func()) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("tick: already running")
	}
	defer d.running.Store(false)
	t := d.clock.NewTicker(d.period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.Chan():
			d.fire(fn)
		}
	}
}

func (d *Driver) fire(fn func()) {
	d.fired.Add(1)
	if d.indicator != nil {
		_ = d.indicator.Out(gpio.High)
	}
	start := d.clock.Now()
	fn()
	if d.clock.Since(start) > d.period {
		d.overruns.Add(1)
	}
	if d.indicator != nil {
		_ = d.indicator.Out(gpio.Low)
	}
}

// Period returns the tick period.
func (d *Driver) Period() time.Duration {
	return d.period
}

// Fired returns the number of handler calls so far.
func (d *Driver) Fired() uint64 {
	return d.fired.Load()
}

// Overruns returns the number of calls that lasted longer than the period.
func (d *Driver) Overruns() uint64 {
	return d.overruns.Load()
}

// Halt implements conn.Resource. It lowers the indicator pin.
func (d *Driver) Halt() error {
	if d.indicator != nil {
		return d.indicator.Out(gpio.Low)
	}
	return nil
}

func (d *Driver) String() string {
	return fmt.Sprintf("Tick{%s}", d.period)
}

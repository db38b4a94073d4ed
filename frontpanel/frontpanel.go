// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package frontpanel runs the foreground loop tying the control panel to the
// stepper drive: it refreshes the LEDs, reads the keys and turns key presses
// into target positions.
//
// Exchange failures are logged and the loop carries on; the next poll is the
// retry.
package frontpanel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/GermanBionicSystems/ledkey/controlpanel"
	"github.com/GermanBionicSystems/ledkey/keymap"
	"github.com/GermanBionicSystems/ledkey/stepperdrive"
	"github.com/jonboulle/clockwork"
)

// DefaultPeriod polls the panel at about 100Hz.
const DefaultPeriod = 10 * time.Millisecond

// initialAux is sent with the first frame, before any key was read.
const initialAux = 0xff

// Exchanger is the control panel link.
type Exchanger interface {
	Exchange(f controlpanel.Frame) (controlpanel.Keys, error)
}

// Positioner is the motor side.
type Positioner interface {
	SetDesiredPosition(target int64)
	DesiredPosition() int64
	Position() int64
}

// Viewer mirrors the panel somewhere else, a terminal for example.
type Viewer interface {
	Show(leds []byte, keys controlpanel.Keys) error
}

// faulter is implemented by *stepperdrive.Dev.
type faulter interface {
	Stats() stepperdrive.Stats
	LastError() error
}

// State is a snapshot of the loop.
type State struct {
	Position int64
	Desired  int64
	Keys     controlpanel.Keys
	LEDs     []byte
	// Err is the error of the last poll, nil if it succeeded.
	Err     error
	Updated time.Time
}

// Stats are the loop counters.
type Stats struct {
	Polls    uint64
	Failures uint64
	Commands uint64
}

func (s Stats) String() string {
	return fmt.Sprintf("polls=%d failures=%d commands=%d", s.Polls, s.Failures, s.Commands)
}

// Opts holds the loop settings.
type Opts struct {
	// Period between polls. Defaults to DefaultPeriod.
	Period time.Duration
	// Table maps keys to targets. Defaults to keymap.Default.
	Table *keymap.Table
	// Limits clamps the targets. The zero value does not clamp.
	Limits keymap.Limits
	// LEDs is the LED payload size. Defaults to controlpanel.DefaultLEDs.
	LEDs int
	// Pattern computes the LED payload. Defaults to Static 0, 1, 2 ... n-1.
	Pattern Pattern
	// View, if set, is shown every frame.
	View Viewer
	// Clock defaults to the real clock.
	Clock clockwork.Clock
}

// Loop is the foreground loop.
type Loop struct {
	link    Exchanger
	drive   Positioner
	table   keymap.Table
	limits  keymap.Limits
	period  time.Duration
	leds    int
	pattern Pattern
	view    Viewer
	clock   clockwork.Clock

	mu     sync.Mutex
	aux    uint16
	state  State
	stats  Stats
	faults uint64
}

// New returns a Loop polling link and commanding drive.
func New(link Exchanger, drive Positioner, opts *Opts) (*Loop, error) {
	if link == nil || drive == nil {
		return nil, errors.New("frontpanel: link and drive are required")
	}
	l := &Loop{
		link:   link,
		drive:  drive,
		table:  keymap.Default,
		period: DefaultPeriod,
		leds:   controlpanel.DefaultLEDs,
		aux:    initialAux,
	}
	if opts != nil {
		if opts.Period < 0 {
			return nil, fmt.Errorf("frontpanel: invalid period %s", opts.Period)
		}
		if opts.Period != 0 {
			l.period = opts.Period
		}
		if opts.Table != nil {
			l.table = *opts.Table
		}
		if err := opts.Limits.Validate(); err != nil {
			return nil, err
		}
		l.limits = opts.Limits
		if opts.LEDs != 0 {
			l.leds = opts.LEDs
		}
		l.pattern = opts.Pattern
		l.view = opts.View
		l.clock = opts.Clock
	}
	if l.pattern == nil {
		l.pattern = Counting(l.leds)
	}
	if l.clock == nil {
		l.clock = clockwork.NewRealClock()
	}
	return l, nil
}

// Poll runs one iteration: refresh the LEDs, read the keys and command the
// target of the highest key pressed.
func (l *Loop) Poll() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.Polls++

	s := State{Position: l.drive.Position(), Desired: l.drive.DesiredPosition(), Keys: l.state.Keys}
	leds := l.pattern(s)
	if len(leds) != l.leds {
		leds = fit(leds, l.leds)
	}
	keys, err := l.link.Exchange(controlpanel.Frame{LEDs: leds, Aux: l.aux})
	l.state.LEDs = leds
	l.state.Updated = l.clock.Now()
	if err != nil {
		l.stats.Failures++
		l.state.Err = err
		l.state.Position, l.state.Desired = s.Position, s.Desired
		return err
	}
	l.aux = uint16(keys)
	l.state.Keys = keys
	l.state.Err = nil
	if c, ok := l.table.Decode(uint8(keys)); ok {
		target := l.limits.Clamp(c.Target)
		if target != l.drive.DesiredPosition() {
			l.stats.Commands++
		}
		l.drive.SetDesiredPosition(target)
	}
	l.state.Position = l.drive.Position()
	l.state.Desired = l.drive.DesiredPosition()
	if l.view != nil {
		if err := l.view.Show(leds, keys); err != nil {
			return fmt.Errorf("frontpanel: view: %w", err)
		}
	}
	return nil
}

// Run polls every period until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	t := l.clock.NewTicker(l.period)
	defer t.Stop()
	var last error
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.Chan():
		}
		err := l.Poll()
		// Log transitions only; a dead panel would otherwise log at the poll
		// rate.
		if err != nil && (last == nil || err.Error() != last.Error()) {
			log.Printf("frontpanel: %v", err)
		} else if err == nil && last != nil {
			log.Printf("frontpanel: panel back after %v", last)
		}
		last = err
		l.checkFaults()
	}
}

func (l *Loop) checkFaults() {
	f, ok := l.drive.(faulter)
	if !ok {
		return
	}
	n := f.Stats().Faults
	l.mu.Lock()
	grew := n > l.faults
	l.faults = n
	l.mu.Unlock()
	if grew {
		log.Printf("frontpanel: motor output faults: %d, last: %v", n, f.LastError())
	}
}

// State returns a snapshot of the loop.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.state
	s.LEDs = append([]byte(nil), s.LEDs...)
	s.Position = l.drive.Position()
	s.Desired = l.drive.DesiredPosition()
	return s
}

// Stats returns the loop counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Target commands a target as if its key had been pressed, limits included.
// It returns the target actually set.
func (l *Loop) Target(target int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	target = l.limits.Clamp(target)
	l.stats.Commands++
	l.drive.SetDesiredPosition(target)
	return target
}

func (l *Loop) String() string {
	return fmt.Sprintf("FrontPanel{%s}", l.period)
}

func fit(b []byte, n int) []byte {
	out := make([]byte, n)
	copy(out, b)
	return out
}

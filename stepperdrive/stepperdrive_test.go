// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package stepperdrive

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type drive struct {
	Phase, Dir int
}

// recorder is a Phaser that records every call.
type recorder struct {
	phases   int
	drives   []drive
	released int
	err      error
}

func (r *recorder) String() string { return "recorder" }
func (r *recorder) Phases() int    { return r.phases }

func (r *recorder) Drive(phase, dir int) error {
	if r.err != nil {
		return r.err
	}
	r.drives = append(r.drives, drive{phase, dir})
	return nil
}

func (r *recorder) Release() error {
	r.released++
	return nil
}

func newDev(t *testing.T, phases int) (*Dev, *recorder) {
	t.Helper()
	r := &recorder{phases: phases}
	d, err := New(r)
	if err != nil {
		t.Fatal(err)
	}
	return d, r
}

// moveTo ticks until the engine stops moving and returns the positions seen
// after each tick. It fails past limit ticks.
func moveTo(t *testing.T, d *Dev, target int64, limit int) []int64 {
	t.Helper()
	d.SetDesiredPosition(target)
	var got []int64
	for range limit {
		if d.Position() == target {
			return got
		}
		d.ServiceTick()
		got = append(got, d.Position())
	}
	if d.Position() != target {
		t.Fatalf("position %d after %d ticks, want %d", d.Position(), limit, target)
	}
	return got
}

func TestNew(t *testing.T) {
	d, r := newDev(t, 8)
	if diff := cmp.Diff([]drive{{0, 0}}, r.drives); diff != "" {
		t.Errorf("home phase (-want +got):\n%s", diff)
	}
	if d.Position() != 0 || d.DesiredPosition() != 0 {
		t.Errorf("got position %d desired %d, want 0 0", d.Position(), d.DesiredPosition())
	}
	if s := d.String(); s != "StepperDrive{recorder}" {
		t.Errorf("String() = %q", s)
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("expected error with nil output")
	}
	if _, err := New(&recorder{}); err == nil {
		t.Error("expected error with 0 phases")
	}
	e := errors.New("pin busy")
	if _, err := New(&recorder{phases: 4, err: e}); !errors.Is(err, e) {
		t.Errorf("got %v, want %v", err, e)
	}
}

func TestConvergence(t *testing.T) {
	for _, tc := range []struct {
		start, target int64
	}{
		{0, 0},
		{0, 1},
		{0, -1},
		{0, 4},
		{0, -3},
		{3, -3},
		{-7, 12},
		{100, 37},
		{-5, -5},
	} {
		t.Run(fmt.Sprintf("%d_to_%d", tc.start, tc.target), func(t *testing.T) {
			d, _ := newDev(t, 8)
			moveTo(t, d, tc.start, 1000)
			before := d.Stats().Steps

			want := tc.target - tc.start
			dir := int64(1)
			if want < 0 {
				want, dir = -want, -1
			}
			got := moveTo(t, d, tc.target, 1000)
			if int64(len(got)) != want {
				t.Fatalf("took %d ticks, want %d", len(got), want)
			}
			prev := tc.start
			for i, p := range got {
				if p-prev != dir {
					t.Fatalf("tick %d moved from %d to %d", i, prev, p)
				}
				prev = p
			}
			if s := d.Stats().Steps - before; s != uint64(want) {
				t.Errorf("Stats().Steps grew by %d, want %d", s, want)
			}
		})
	}
}

func TestScenario(t *testing.T) {
	d, _ := newDev(t, 4)
	d.SetDesiredPosition(-2)
	var got []int64
	for range 3 {
		d.ServiceTick()
		got = append(got, d.Position())
	}
	if diff := cmp.Diff([]int64{-1, -2, -2}, got); diff != "" {
		t.Errorf("positions (-want +got):\n%s", diff)
	}
	want := Stats{Ticks: 3, Steps: 2, Idle: 1}
	if diff := cmp.Diff(want, d.Stats()); diff != "" {
		t.Errorf("stats (-want +got):\n%s", diff)
	}
}

func TestIdleStability(t *testing.T) {
	d, r := newDev(t, 8)
	moveTo(t, d, 3, 10)
	n := len(r.drives)
	phase := d.Phase()
	for range 20 {
		d.ServiceTick()
	}
	if d.Position() != 3 {
		t.Errorf("position moved to %d at rest", d.Position())
	}
	if len(r.drives) != n {
		t.Errorf("outputs written %d times at rest", len(r.drives)-n)
	}
	if d.Phase() != phase {
		t.Errorf("phase changed from %d to %d at rest", phase, d.Phase())
	}
	if s := d.Stats(); s.Idle != 20 {
		t.Errorf("Stats().Idle = %d, want 20", s.Idle)
	}
}

func TestPhaseWraps(t *testing.T) {
	d, r := newDev(t, 4)
	moveTo(t, d, 5, 10)
	moveTo(t, d, -2, 10)
	want := []drive{
		{0, 0},
		{1, 1}, {2, 1}, {3, 1}, {0, 1}, {1, 1},
		{0, -1}, {3, -1}, {2, -1}, {1, -1}, {0, -1}, {3, -1}, {2, -1},
	}
	if diff := cmp.Diff(want, r.drives); diff != "" {
		t.Errorf("drives (-want +got):\n%s", diff)
	}
}

func TestRetarget(t *testing.T) {
	d, r := newDev(t, 8)
	d.SetDesiredPosition(10)
	for range 3 {
		d.ServiceTick()
	}
	if d.Position() != 3 {
		t.Fatalf("position %d, want 3", d.Position())
	}
	d.SetDesiredPosition(-1)
	d.ServiceTick()
	if d.Position() != 2 {
		t.Errorf("position %d after retarget, want 2", d.Position())
	}
	if last := r.drives[len(r.drives)-1]; last.Dir != -1 {
		t.Errorf("first step after retarget went %d", last.Dir)
	}
}

func TestFault(t *testing.T) {
	d, r := newDev(t, 4)
	e := errors.New("short circuit")
	r.err = e
	d.SetDesiredPosition(2)
	d.ServiceTick()
	d.ServiceTick()
	if d.Position() != 0 {
		t.Errorf("position %d after faults, want 0", d.Position())
	}
	if d.Phase() != 0 {
		t.Errorf("phase %d after faults, want 0", d.Phase())
	}
	if s := d.Stats(); s.Faults != 2 || s.Steps != 0 {
		t.Errorf("stats %s", s)
	}
	if !errors.Is(d.LastError(), e) {
		t.Errorf("LastError() = %v", d.LastError())
	}
	r.err = nil
	moveTo(t, d, 2, 2)
}

func TestSkippedWhileHeld(t *testing.T) {
	d, _ := newDev(t, 4)
	d.SetDesiredPosition(1)
	d.mu.Lock()
	d.ServiceTick()
	d.mu.Unlock()
	if d.Position() != 0 {
		t.Errorf("position %d after skipped tick", d.Position())
	}
	if s := d.Stats(); s.Skipped != 1 {
		t.Errorf("Stats().Skipped = %d", s.Skipped)
	}
	d.ServiceTick()
	if d.Position() != 1 {
		t.Errorf("position %d, want 1", d.Position())
	}
}

func TestHalt(t *testing.T) {
	d, r := newDev(t, 8)
	d.SetDesiredPosition(5)
	d.ServiceTick()
	d.ServiceTick()
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	if r.released != 1 {
		t.Errorf("Release() called %d times", r.released)
	}
	if d.DesiredPosition() != 2 {
		t.Errorf("DesiredPosition() = %d after Halt, want 2", d.DesiredPosition())
	}
	d.ServiceTick()
	if d.Position() != 2 {
		t.Errorf("moved after Halt")
	}
}

func TestConcurrentTarget(t *testing.T) {
	d, _ := newDev(t, 8)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 1000 {
			d.SetDesiredPosition(int64(i%7 - 3))
		}
	}()
	prev := d.Position()
	for range 1000 {
		d.ServiceTick()
		p := d.Position()
		if p-prev > 1 || prev-p > 1 {
			t.Fatalf("jumped from %d to %d", prev, p)
		}
		prev = p
	}
	wg.Wait()
	moveTo(t, d, d.DesiredPosition(), 20)
}

// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package keymap turns a key bitmask into position commands.
//
// A Table maps each of the 8 key bits to a target position. When several
// keys are held, the highest bit wins.
package keymap

import (
	"fmt"
	"math/bits"
)

// Table maps key bit i to a target position.
type Table [8]int64

// Default is the reference panel layout: key 0 goes to 4, key 7 to -3.
var Default = Table{4, 3, 2, 1, 0, -1, -2, -3}

// FromSlice returns a Table from exactly 8 targets.
func FromSlice(targets []int64) (Table, error) {
	var t Table
	if len(targets) != len(t) {
		return t, fmt.Errorf("keymap: need %d targets, got %d", len(t), len(targets))
	}
	copy(t[:], targets)
	return t, nil
}

// Command is the target selected by a key.
type Command struct {
	Key    int
	Target int64
}

func (c Command) String() string {
	return fmt.Sprintf("key%d->%d", c.Key, c.Target)
}

// Commands returns one Command per key set in mask, lowest key first.
func (t *Table) Commands(mask uint8) []Command {
	out := make([]Command, 0, bits.OnesCount8(mask))
	for m := mask; m != 0; m &= m - 1 {
		k := bits.TrailingZeros8(m)
		out = append(out, Command{Key: k, Target: t[k]})
	}
	return out
}

// Decode returns the Command for the highest key set in mask. ok is false
// when no key is pressed.
func (t *Table) Decode(mask uint8) (c Command, ok bool) {
	if mask == 0 {
		return Command{}, false
	}
	k := 7 - bits.LeadingZeros8(mask)
	return Command{Key: k, Target: t[k]}, true
}

// Limits bounds the targets handed to the motor. The zero value does not
// limit anything.
type Limits struct {
	Min, Max int64
}

// Enabled reports whether l bounds anything.
func (l Limits) Enabled() bool {
	return l.Min != 0 || l.Max != 0
}

// Clamp returns target bounded to [Min, Max] when l is enabled.
func (l Limits) Clamp(target int64) int64 {
	if !l.Enabled() {
		return target
	}
	if target < l.Min {
		return l.Min
	}
	if target > l.Max {
		return l.Max
	}
	return target
}

// Validate returns an error when Min is above Max.
func (l Limits) Validate() error {
	if l.Enabled() && l.Min > l.Max {
		return fmt.Errorf("keymap: limits min %d above max %d", l.Min, l.Max)
	}
	return nil
}

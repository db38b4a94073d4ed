// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package frontpanel

import "github.com/GermanBionicSystems/ledkey/keymap"

// Pattern computes the LED payload for the next frame.
type Pattern func(s State) []byte

// Static always shows payload.
func Static(payload []byte) Pattern {
	p := append([]byte(nil), payload...)
	return func(State) []byte {
		return p
	}
}

// Counting shows 0, 1, 2 ... n-1, the panel self test pattern.
func Counting(n int) Pattern {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i)
	}
	return Static(p)
}

// Lit and Pending are the LED values used by PositionBar.
const (
	Lit     = 0xff
	Pending = 0x0f
)

// PositionBar lights LED i when the motor stands on the target of key i, and
// half lights the LED of the key whose target the motor is moving to.
func PositionBar(t keymap.Table, n int) Pattern {
	return func(s State) []byte {
		p := make([]byte, n)
		for i := 0; i < n && i < len(t); i++ {
			switch {
			case t[i] == s.Position:
				p[i] = Lit
			case t[i] == s.Desired:
				p[i] = Pending
			}
		}
		return p
	}
}

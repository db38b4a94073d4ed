// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package stepperdrive moves a stepper motor one step per timer tick toward a
// commanded position.
//
// The engine keeps two positions: the current one, owned by the tick, and the
// desired one, written by the foreground through SetDesiredPosition. Each call
// to ServiceTick compares the two and advances the motor phase by at most one
// step toward the target. There is no stored mode; a late or missed tick only
// delays arrival.
//
// ServiceTick is meant to run from a periodic callback (a timer interrupt on a
// microcontroller, a ticker goroutine on a host). It never blocks: when the
// foreground holds the outputs, for example during Halt, the tick is skipped.
//
// Outputs are abstracted by Phaser. Coils drives a unipolar or bipolar motor
// through four GPIO lines using a Sequence table, StepDir drives a step/dir
// driver chip such as the A4988 or the TMC2209 in standalone mode.
package stepperdrive

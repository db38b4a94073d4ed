// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package controlpanel talks to an LED and key control panel made of daisy
// chained shift registers on an SPI bus.
//
// Each Exchange shifts one frame: the LED payload bytes in order, then a 16
// bit auxiliary word, most significant byte first. While the frame is shifted
// out, the key scan register shifts its captured state back in; the last byte
// received holds one bit per key.
//
// The latch strobe is driven low for the duration of the frame and released
// high at the end, the rising edge latching the LED drivers.
//
// # Timeouts
//
// Exchange waits for the bus with a bounded timeout. A transfer that does not
// complete in time returns ErrTimeout; the link then returns ErrBusy until the
// stuck transfer finally returns. Key data is never returned from an
// incomplete frame.
//
// # Hardware
//
// Typical panels pair 74HC595 LED drivers with a 74HC165 key register, or use
// a TM1638 style board in raw SPI mode.
package controlpanel

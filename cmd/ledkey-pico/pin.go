// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build tinygo && (rp2040 || rp2350)

package main

import (
	"errors"
	"fmt"
	"machine"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// outPin exposes a TinyGo pin as a periph output.
type outPin struct {
	p    machine.Pin
	name string
}

func newOutPin(p machine.Pin, name string) *outPin {
	p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return &outPin{p: p, name: name}
}

func (o *outPin) String() string {
	return fmt.Sprintf("%s(GP%d)", o.name, o.p)
}

func (o *outPin) Halt() error {
	return nil
}

func (o *outPin) Name() string {
	return o.name
}

func (o *outPin) Number() int {
	return int(o.p)
}

func (o *outPin) Function() string {
	return "Out"
}

func (o *outPin) Out(l gpio.Level) error {
	o.p.Set(bool(l))
	return nil
}

func (o *outPin) PWM(gpio.Duty, physic.Frequency) error {
	return errors.New("pico: PWM not supported")
}

var _ gpio.PinOut = &outPin{}

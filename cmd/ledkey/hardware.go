// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/GermanBionicSystems/ledkey/panelsim"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/conn/v3/spi/spitest"
	"periph.io/x/host/v3"
)

// hardware hands out the buses and pins named in the configuration.
type hardware interface {
	SPI(name string) (spi.PortCloser, error)
	Pin(name string) (gpio.PinIO, error)
}

// hostHardware is the real thing, through periph's host drivers.
type hostHardware struct {
	verbose bool
}

func newHostHardware(verbose bool) (*hostHardware, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	return &hostHardware{verbose: verbose}, nil
}

func (h *hostHardware) SPI(name string) (spi.PortCloser, error) {
	p, err := spireg.Open(name)
	if err != nil {
		return nil, err
	}
	if h.verbose {
		return &spitest.Log{PortCloser: p}, nil
	}
	return p, nil
}

func (h *hostHardware) Pin(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("no pin named %q", name)
	}
	return p, nil
}

// simHardware runs everything against a simulated panel and fake pins.
type simHardware struct {
	peer    *panelsim.Peer
	verbose bool
	pins    map[string]*gpiotest.Pin
}

func newSimHardware(verbose bool) *simHardware {
	return &simHardware{
		peer:    panelsim.New(),
		verbose: verbose,
		pins:    map[string]*gpiotest.Pin{},
	}
}

func (s *simHardware) SPI(name string) (spi.PortCloser, error) {
	if s.verbose {
		return &spitest.Log{PortCloser: s.peer}, nil
	}
	return s.peer, nil
}

func (s *simHardware) Pin(name string) (gpio.PinIO, error) {
	if p, ok := s.pins[name]; ok {
		return p, nil
	}
	p := &gpiotest.Pin{N: name, Num: len(s.pins)}
	s.pins[name] = p
	return p, nil
}

// typeKeys sets the simulated key register from lines read on r.
//
// A line holding a key number 0 to 7 presses that key alone, "-" or an empty
// line releases all of them and "m <mask>" sets the raw register.
func typeKeys(ctx context.Context, r io.Reader, peer *panelsim.Peer) error {
	s := bufio.NewScanner(r)
	for s.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		keys, err := parseKeys(s.Text())
		if err != nil {
			log.Printf("sim: %v", err)
			continue
		}
		peer.SetKeys(keys)
	}
	return s.Err()
}

func parseKeys(line string) (byte, error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "" || line == "-":
		return 0, nil
	case strings.HasPrefix(line, "m "):
		v, err := strconv.ParseUint(strings.TrimSpace(line[2:]), 0, 8)
		if err != nil {
			return 0, fmt.Errorf("bad mask %q", line[2:])
		}
		return byte(v), nil
	}
	k, err := strconv.Atoi(line)
	if err != nil || k < 0 || k > 7 {
		return 0, errors.New("type a key number 0-7, \"-\" or \"m <mask>\"")
	}
	return 1 << uint(k), nil
}

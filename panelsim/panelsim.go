// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package panelsim simulates the control panel hardware so the rest of the
// stack can run on a host without it.
//
// Peer behaves like the shift register chain on the SPI bus: it keeps the
// last frame shifted in and returns the previous chain content followed by
// the key state, as real daisy chained registers do.
package panelsim

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// Peer is a simulated control panel. It implements spi.PortCloser.
type Peer struct {
	// OnFrame, if set, is called after every complete frame with the frame
	// shifted in. It must not call back into the Peer.
	OnFrame func(w []byte)

	mu        sync.Mutex
	keys      byte
	chain     []byte
	frames    int
	stall     chan struct{}
	connected bool
	freq      physic.Frequency
	mode      spi.Mode
}

// New returns a Peer with no key pressed.
func New() *Peer {
	return &Peer{}
}

func (p *Peer) String() string {
	return "panelsim"
}

// Close implements spi.PortCloser.
func (p *Peer) Close() error {
	p.Resume()
	return nil
}

// LimitSpeed implements spi.PortCloser.
func (p *Peer) LimitSpeed(f physic.Frequency) error {
	return nil
}

// Connect implements spi.PortCloser.
func (p *Peer) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	if bits != 8 {
		return nil, fmt.Errorf("panelsim: %d bits per word not supported", bits)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected {
		return nil, errors.New("panelsim: already connected")
	}
	p.connected = true
	p.freq = f
	p.mode = mode
	return &peerConn{p}, nil
}

// SetKeys sets the state of the key register, bit i for key i.
func (p *Peer) SetKeys(keys byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = keys
}

// Keys returns the state of the key register.
func (p *Peer) Keys() byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.keys
}

// Last returns a copy of the last frame shifted in.
func (p *Peer) Last() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.chain...)
}

// Frames returns the number of complete frames received.
func (p *Peer) Frames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames
}

// Stall makes the following transfers hang until Resume is called.
func (p *Peer) Stall() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stall == nil {
		p.stall = make(chan struct{})
	}
}

// Resume releases the stalled transfers.
func (p *Peer) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stall != nil {
		close(p.stall)
		p.stall = nil
	}
}

func (p *Peer) tx(w, r []byte) error {
	if len(r) != 0 && len(r) != len(w) {
		return errors.New("panelsim: read and write buffers differ in length")
	}
	p.mu.Lock()
	stall := p.stall
	p.mu.Unlock()
	if stall != nil {
		<-stall
	}

	p.mu.Lock()
	if len(r) != 0 {
		// The old chain content leaves first, the key register is the last
		// stage before MISO.
		for i := range r[:len(r)-1] {
			if i+1 < len(p.chain) {
				r[i] = p.chain[i+1]
			} else {
				r[i] = 0
			}
		}
		r[len(r)-1] = p.keys
	}
	p.chain = append(p.chain[:0], w...)
	p.frames++
	cb := p.OnFrame
	frame := append([]byte(nil), w...)
	p.mu.Unlock()

	if cb != nil {
		cb(frame)
	}
	return nil
}

type peerConn struct {
	p *Peer
}

func (c *peerConn) String() string {
	return c.p.String()
}

func (c *peerConn) Duplex() conn.Duplex {
	return conn.Full
}

func (c *peerConn) Tx(w, r []byte) error {
	return c.p.tx(w, r)
}

func (c *peerConn) TxPackets(pkts []spi.Packet) error {
	for _, pkt := range pkts {
		if err := c.p.tx(pkt.W, pkt.R); err != nil {
			return err
		}
	}
	return nil
}

// Pins returns n simulated output pins named prefix0 to prefixN-1.
func Pins(prefix string, n int) []*gpiotest.Pin {
	pins := make([]*gpiotest.Pin, n)
	for i := range pins {
		pins[i] = &gpiotest.Pin{N: fmt.Sprintf("%s%d", prefix, i), Num: i}
	}
	return pins
}

// Levels returns the state of pins as a bitmask, pin i being bit i.
func Levels(pins []*gpiotest.Pin) uint8 {
	var m uint8
	for i, p := range pins {
		if p.Read() == gpio.High {
			m |= 1 << i
		}
	}
	return m
}

var _ spi.PortCloser = &Peer{}

// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package controlpanel

import (
	"errors"
	"testing"
	"time"

	"github.com/GermanBionicSystems/ledkey/panelsim"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/conntest"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spitest"
)

var payload = []byte{0, 1, 2, 3, 4, 5, 6, 7}

// strobePin records the levels written to it.
type strobePin struct {
	gpiotest.Pin
	levels []gpio.Level
}

func (p *strobePin) Out(l gpio.Level) error {
	p.levels = append(p.levels, l)
	return p.Pin.Out(l)
}

func TestExchangeWire(t *testing.T) {
	for _, tc := range []struct {
		name  string
		opts  Opts
		frame Frame
		io    conntest.IO
		want  Keys
	}{
		{
			name:  "reference panel",
			frame: Frame{LEDs: payload, Aux: 0x00ff},
			io: conntest.IO{
				W: []byte{0, 1, 2, 3, 4, 5, 6, 7, 0x00, 0xff},
				R: []byte{0xee, 0xee, 0xee, 0xee, 0xee, 0xee, 0xee, 0xee, 0xee, 0x11},
			},
			want: 0x11,
		},
		{
			name:  "active low keys",
			opts:  Opts{ActiveLow: true},
			frame: Frame{LEDs: payload, Aux: 0x1234},
			io: conntest.IO{
				W: []byte{0, 1, 2, 3, 4, 5, 6, 7, 0x12, 0x34},
				R: []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0xfe},
			},
			want: 0x01,
		},
		{
			name:  "short panel",
			opts:  Opts{LEDs: 2},
			frame: Frame{LEDs: []byte{0xaa, 0x55}, Aux: 0xbeef},
			io: conntest.IO{
				W: []byte{0xaa, 0x55, 0xbe, 0xef},
				R: []byte{1, 2, 3, 0x80},
			},
			want: 0x80,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			pb := &spitest.Playback{Playback: conntest.Playback{Ops: []conntest.IO{tc.io}, DontPanic: true}}
			defer pb.Close()
			strobe := &strobePin{Pin: gpiotest.Pin{N: "STB"}}
			d, err := New(pb, strobe, &tc.opts)
			if err != nil {
				t.Fatal(err)
			}
			got, err := d.Exchange(tc.frame)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("keys %s, want %s", got, tc.want)
			}
			// Idle high at init, low while shifting, released to latch.
			if diff := cmp.Diff([]gpio.Level{gpio.High, gpio.Low, gpio.High}, strobe.levels); diff != "" {
				t.Errorf("strobe (-want +got):\n%s", diff)
			}
			if err := pb.Close(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestExchangeOrdering(t *testing.T) {
	peer := panelsim.New()
	peer.SetKeys(0x5a)
	rec := &spitest.Record{Port: peer}
	d, err := New(rec, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := range 2 {
		got, err := d.Exchange(Frame{LEDs: payload, Aux: 0xabcd})
		if err != nil {
			t.Fatal(err)
		}
		if got != 0x5a {
			t.Errorf("exchange %d: keys %s, want %s", i, got, Keys(0x5a))
		}
	}
	want := []conntest.IO{
		{
			W: []byte{0, 1, 2, 3, 4, 5, 6, 7, 0xab, 0xcd},
			R: []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0x5a},
		},
		{
			// The chain returns the previous frame before the key register;
			// only the final byte is key data.
			W: []byte{0, 1, 2, 3, 4, 5, 6, 7, 0xab, 0xcd},
			R: []byte{1, 2, 3, 4, 5, 6, 7, 0xab, 0xcd, 0x5a},
		},
	}
	if diff := cmp.Diff(want, rec.Ops); diff != "" {
		t.Errorf("ops (-want +got):\n%s", diff)
	}
}

func TestExchangeFrameSize(t *testing.T) {
	d, err := NewConn(&conntest.Discard{D: conn.Full}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Exchange(Frame{LEDs: payload[:7]}); !errors.Is(err, ErrFrameSize) {
		t.Errorf("got %v, want %v", err, ErrFrameSize)
	}
}

func TestExchangeTxError(t *testing.T) {
	pb := &spitest.Playback{Playback: conntest.Playback{DontPanic: true}}
	d, err := New(pb, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Exchange(Frame{LEDs: payload}); err == nil || !conntest.IsErr(errors.Unwrap(err)) {
		t.Errorf("got %v, want a playback error", err)
	}
}

func TestExchangeTimeout(t *testing.T) {
	clk := clockwork.NewFakeClock()
	peer := panelsim.New()
	peer.SetKeys(0x03)
	peer.Stall()
	defer peer.Close()
	d, err := New(peer, nil, &Opts{Clock: clk, Timeout: 10 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	errc := make(chan error)
	go func() {
		k, err := d.Exchange(Frame{LEDs: payload})
		if err == nil {
			t.Errorf("got keys %s from a stalled peer", k)
		}
		errc <- err
	}()
	clk.BlockUntil(1)
	clk.Advance(10 * time.Millisecond)
	if err := <-errc; !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want %v", err, ErrTimeout)
	}
	if _, err := d.Exchange(Frame{LEDs: payload}); !errors.Is(err, ErrBusy) {
		t.Fatalf("got %v, want %v", err, ErrBusy)
	}

	peer.Resume()
	var k Keys
	for range 1000 {
		if k, err = d.Exchange(Frame{LEDs: payload}); !errors.Is(err, ErrBusy) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if err != nil {
		t.Fatal(err)
	}
	if k != 0x03 {
		t.Errorf("keys %s after recovery", k)
	}
}

func TestExchangeTimeoutBound(t *testing.T) {
	peer := panelsim.New()
	peer.Stall()
	defer peer.Close()
	const timeout = 50 * time.Millisecond
	d, err := New(peer, nil, &Opts{Timeout: timeout})
	if err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	_, err = d.Exchange(Frame{LEDs: payload})
	elapsed := time.Since(start)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want %v", err, ErrTimeout)
	}
	if elapsed < timeout || elapsed > 2*timeout {
		t.Errorf("returned after %s, want between %s and %s", elapsed, timeout, 2*timeout)
	}
}

func TestInitIdempotent(t *testing.T) {
	strobe := &strobePin{Pin: gpiotest.Pin{N: "STB"}}
	d, err := NewConn(&conntest.Discard{D: conn.Full}, strobe, nil)
	if err != nil {
		t.Fatal(err)
	}
	for range 3 {
		if err := d.Init(); err != nil {
			t.Fatal(err)
		}
	}
	if diff := cmp.Diff([]gpio.Level{gpio.High}, strobe.levels); diff != "" {
		t.Errorf("strobe (-want +got):\n%s", diff)
	}
}

func TestDefaultTimeout(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts Opts
		want time.Duration
	}{
		{"floor", Opts{}, MinTimeout},
		{"slow clock", Opts{Frequency: 10 * physic.KiloHertz}, 2 * 8 * 10 * 100 * time.Microsecond},
		{"explicit", Opts{Timeout: time.Second}, time.Second},
	} {
		t.Run(tc.name, func(t *testing.T) {
			d, err := NewConn(&conntest.Discard{D: conn.Full}, nil, &tc.opts)
			if err != nil {
				t.Fatal(err)
			}
			if d.Timeout() != tc.want {
				t.Errorf("Timeout() = %s, want %s", d.Timeout(), tc.want)
			}
		})
	}
}

func TestNewConnErrors(t *testing.T) {
	if _, err := NewConn(nil, nil, nil); err == nil {
		t.Error("expected error with nil conn")
	}
	if _, err := NewConn(&conntest.Discard{D: conn.Half}, nil, nil); err == nil {
		t.Error("expected error with half duplex conn")
	}
	if _, err := NewConn(&conntest.Discard{D: conn.Full}, nil, &Opts{LEDs: -1}); err == nil {
		t.Error("expected error with negative payload size")
	}
}

func TestFrameDuration(t *testing.T) {
	if got := FrameDuration(physic.MegaHertz, 8); got != 80*time.Microsecond {
		t.Errorf("FrameDuration() = %s", got)
	}
}

func TestKeys(t *testing.T) {
	k := Keys(0b10000101)
	for i, want := range []bool{true, false, true, false, false, false, false, true} {
		if k.Pressed(i) != want {
			t.Errorf("Pressed(%d) = %t", i, !want)
		}
	}
	if k.Pressed(8) || k.Pressed(-1) {
		t.Error("out of range keys reported pressed")
	}
	if s := k.String(); s != "10000101" {
		t.Errorf("String() = %q", s)
	}
}

func TestHalt(t *testing.T) {
	pb := &spitest.Playback{Playback: conntest.Playback{
		Ops: []conntest.IO{{
			W: make([]byte, 10),
			R: make([]byte, 10),
		}},
		DontPanic: true,
	}}
	d, err := New(pb, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	if err := pb.Close(); err != nil {
		t.Error(err)
	}
	if d.String() != "ControlPanel{playback}" {
		t.Errorf("String() = %q", d.String())
	}
}

// tinyBus is a drivers.SPI that echoes inverted bytes.
type tinyBus struct{}

func (tinyBus) Tx(w, r []byte) error {
	for i := range r {
		r[i] = ^w[i]
	}
	return nil
}

func (tinyBus) Transfer(b byte) (byte, error) {
	return ^b, nil
}

func TestTinyGoConn(t *testing.T) {
	c := TinyGoConn(tinyBus{}, "PIO0")
	d, err := NewConn(c, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	k, err := d.Exchange(Frame{LEDs: payload, Aux: 0x00f0})
	if err != nil {
		t.Fatal(err)
	}
	if k != 0x0f {
		t.Errorf("keys %s, want 00001111", k)
	}
	if d.String() != "ControlPanel{PIO0}" {
		t.Errorf("String() = %q", d.String())
	}
}

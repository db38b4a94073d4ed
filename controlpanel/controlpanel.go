// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package controlpanel

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

const (
	// DefaultLEDs is the LED payload size of the reference panel.
	DefaultLEDs = 8
	// DefaultFrequency is the SPI clock used when Opts.Frequency is 0.
	DefaultFrequency = physic.MegaHertz
	// MinTimeout is the smallest exchange timeout computed by default. Host
	// SPI drivers add scheduling latency well above the wire time.
	MinTimeout = 5 * time.Millisecond

	auxBytes = 2
)

var (
	// ErrTimeout is returned when the bus did not complete a frame in time.
	ErrTimeout = errors.New("controlpanel: transfer timed out")
	// ErrBusy is returned while a timed out transfer is still running.
	ErrBusy = errors.New("controlpanel: previous transfer still running")
	// ErrFrameSize is returned when the LED payload has the wrong length.
	ErrFrameSize = errors.New("controlpanel: wrong LED payload size")
)

// Opts holds the configuration of the link.
type Opts struct {
	// Frequency is the SPI clock. Defaults to DefaultFrequency.
	Frequency physic.Frequency
	// Mode is the SPI clock polarity and phase.
	Mode spi.Mode
	// LEDs is the number of LED payload bytes per frame. Defaults to
	// DefaultLEDs.
	LEDs int
	// Timeout bounds the wait for one frame. Defaults to twice FrameDuration,
	// but not less than MinTimeout.
	Timeout time.Duration
	// ActiveLow is set when a pressed key reads as 0.
	ActiveLow bool
	// Clock is used for the timeout. Defaults to the real clock.
	Clock clockwork.Clock
}

// DefaultOpts is the reference panel: 8 LED bytes at 1MHz in mode 0.
var DefaultOpts = Opts{
	Frequency: DefaultFrequency,
	Mode:      spi.Mode0,
	LEDs:      DefaultLEDs,
}

// Frame is the data sent in one exchange.
type Frame struct {
	LEDs []byte
	Aux  uint16
}

// Keys is the key state captured during an exchange, bit i set when key i is
// pressed.
type Keys uint8

// Pressed reports whether key i is pressed.
func (k Keys) Pressed(i int) bool {
	return i >= 0 && i < 8 && k&(1<<i) != 0
}

func (k Keys) String() string {
	return fmt.Sprintf("%08b", uint8(k))
}

// FrameDuration returns the wire time of a frame carrying leds payload bytes
// at f.
func FrameDuration(f physic.Frequency, leds int) time.Duration {
	return f.Period() * time.Duration(8*(leds+auxBytes))
}

// Dev is a control panel link.
type Dev struct {
	c      conn.Conn
	strobe gpio.PinOut
	opts   Opts

	mu          sync.Mutex
	initialized bool
	pending     <-chan error
}

// New connects to p and returns a link. strobe is the latch line; it may be
// nil when the port chip select does the latching.
func New(p spi.Port, strobe gpio.PinOut, opts *Opts) (*Dev, error) {
	o := resolve(opts)
	c, err := p.Connect(o.Frequency, o.Mode, 8)
	if err != nil {
		return nil, fmt.Errorf("controlpanel: %w", err)
	}
	return NewConn(c, strobe, &o)
}

// NewConn returns a link over an already configured connection.
//
// Only Opts.Frequency is used from the bus settings, to compute the default
// timeout.
func NewConn(c conn.Conn, strobe gpio.PinOut, opts *Opts) (*Dev, error) {
	if c == nil {
		return nil, errors.New("controlpanel: nil connection")
	}
	if c.Duplex() == conn.Half {
		return nil, fmt.Errorf("controlpanel: %s is half duplex", c)
	}
	o := resolve(opts)
	if o.LEDs < 1 {
		return nil, fmt.Errorf("controlpanel: invalid LED payload size %d", o.LEDs)
	}
	if o.Timeout <= 0 {
		o.Timeout = 2 * FrameDuration(o.Frequency, o.LEDs)
		if o.Timeout < MinTimeout {
			o.Timeout = MinTimeout
		}
	}
	return &Dev{c: c, strobe: strobe, opts: o}, nil
}

func resolve(opts *Opts) Opts {
	o := DefaultOpts
	if opts != nil {
		o = *opts
	}
	if o.Frequency == 0 {
		o.Frequency = DefaultFrequency
	}
	if o.LEDs == 0 {
		o.LEDs = DefaultLEDs
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return o
}

// Init sets the latch line to its idle level. Calling it more than once has
// no effect.
func (d *Dev) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initLocked()
}

func (d *Dev) initLocked() error {
	if d.initialized {
		return nil
	}
	if err := d.latch(); err != nil {
		return err
	}
	d.initialized = true
	return nil
}

// Timeout returns the bound applied to each exchange.
func (d *Dev) Timeout() time.Duration {
	return d.opts.Timeout
}

// Exchange sends f and returns the key state shifted in during the same
// frame. It initializes the link if needed.
//
// It must not be called from the tick handler; it blocks for up to Timeout.
func (d *Dev) Exchange(f Frame) (Keys, error) {
	if len(f.LEDs) != d.opts.LEDs {
		return 0, fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(f.LEDs), d.opts.LEDs)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.initLocked(); err != nil {
		return 0, err
	}
	if d.pending != nil {
		select {
		case <-d.pending:
			d.pending = nil
		default:
			return 0, ErrBusy
		}
	}

	n := len(f.LEDs)
	w := make([]byte, n+auxBytes)
	copy(w, f.LEDs)
	w[n] = byte(f.Aux >> 8)
	w[n+1] = byte(f.Aux)
	r := make([]byte, len(w))

	if d.strobe != nil {
		if err := d.strobe.Out(gpio.Low); err != nil {
			return 0, fmt.Errorf("controlpanel: %s: %w", d.strobe, err)
		}
	}
	done := make(chan error, 1)
	go func() {
		done <- d.c.Tx(w, r)
	}()
	t := d.opts.Clock.NewTimer(d.opts.Timeout)
	select {
	case err := <-done:
		t.Stop()
		if lerr := d.latch(); err == nil {
			err = lerr
		}
		if err != nil {
			return 0, fmt.Errorf("controlpanel: %w", err)
		}
	case <-t.Chan():
		d.pending = done
		// Abort the frame; whatever the LED drivers latch is replaced by the
		// next successful exchange.
		_ = d.latch()
		return 0, ErrTimeout
	}

	k := Keys(r[len(r)-1])
	if d.opts.ActiveLow {
		k = ^k
	}
	return k, nil
}

// latch releases the strobe line; the rising edge latches the frame.
func (d *Dev) latch() error {
	if d.strobe == nil {
		return nil
	}
	if err := d.strobe.Out(gpio.High); err != nil {
		return fmt.Errorf("controlpanel: %s: %w", d.strobe, err)
	}
	return nil
}

// Halt implements conn.Resource.
//
// It turns all the LEDs off.
func (d *Dev) Halt() error {
	_, err := d.Exchange(Frame{LEDs: make([]byte, d.opts.LEDs)})
	return err
}

func (d *Dev) String() string {
	return fmt.Sprintf("ControlPanel{%s}", d.c)
}

var _ conn.Resource = &Dev{}

// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ledview shows the control panel LEDs and keys on a terminal using
// ANSI color codes.
//
// Useful to run the whole loop on a workstation with a simulated panel.
package ledview

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/GermanBionicSystems/ledkey/controlpanel"
	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"periph.io/x/conn/v3/display"
)

// Opts represents the options available for this view.
type Opts struct {
	// LEDs is the number of LEDs. Defaults to controlpanel.DefaultLEDs.
	LEDs int
	// On is the color of a fully lit LED. Defaults to red.
	On color.NRGBA
	// Palette defaults to ansi256.Default.
	Palette *ansi256.Palette
	// W defaults to a colorable stdout.
	W io.Writer

	_ struct{}
}

var (
	red     = color.NRGBA{R: 255, A: 255}
	keyDown = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	keyUp   = color.NRGBA{R: 40, G: 40, B: 40, A: 255}
)

// Dev is a control panel emulator that outputs to the console.
type Dev struct {
	w       io.Writer
	palette ansi256.Palette
	on      color.NRGBA

	leds []byte
	keys controlpanel.Keys
	buf  bytes.Buffer
}

// New returns a Dev that displays at the console.
func New(opts *Opts) *Dev {
	var o Opts
	if opts != nil {
		o = *opts
	}
	if o.LEDs == 0 {
		o.LEDs = controlpanel.DefaultLEDs
	}
	if o.On == (color.NRGBA{}) {
		o.On = red
	}
	p := o.Palette
	if p == nil {
		p = ansi256.Default
	}
	w := o.W
	if w == nil {
		w = colorable.NewColorableStdout()
	}
	return &Dev{
		w:       w,
		palette: *p,
		on:      o.On,
		leds:    make([]byte, o.LEDs),
	}
}

func (d *Dev) String() string {
	return "LEDView"
}

// Halt implements conn.Resource.
//
// It resets the terminal colors and moves to the next line.
func (d *Dev) Halt() error {
	_, err := d.w.Write([]byte("\n\033[0m"))
	return err
}

// Show displays leds, one brightness byte per LED, followed by the key state.
func (d *Dev) Show(leds []byte, keys controlpanel.Keys) error {
	copy(d.leds, leds)
	d.keys = keys
	return d.refresh()
}

// ColorModel implements display.Drawer.
func (d *Dev) ColorModel() color.Model {
	return color.GrayModel
}

// Bounds implements display.Drawer.
func (d *Dev) Bounds() image.Rectangle {
	return image.Rectangle{Max: image.Point{X: len(d.leds), Y: 1}}
}

// Draw implements display.Drawer.
//
// Each pixel of the first row of src sets the brightness of one LED.
func (d *Dev) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	r = r.Intersect(d.Bounds())
	srcR := src.Bounds()
	srcR.Min = srcR.Min.Add(sp)
	if dX := r.Dx(); dX < srcR.Dx() {
		srcR.Max.X = srcR.Min.X + dX
	}
	delta := r.Min.X - srcR.Min.X
	for sX := srcR.Min.X; sX < srcR.Max.X; sX++ {
		g := color.GrayModel.Convert(src.At(sX, srcR.Min.Y)).(color.Gray)
		d.leds[sX+delta] = g.Y
	}
	return d.refresh()
}

func (d *Dev) refresh() error {
	d.buf.Reset()
	_, _ = d.buf.WriteString("\r\033[0m")
	for _, v := range d.leds {
		_, _ = io.WriteString(&d.buf, d.palette.Block(scale(d.on, v)))
	}
	_, _ = d.buf.WriteString("\033[0m  ")
	for i := range 8 {
		c := keyUp
		if d.keys.Pressed(i) {
			c = keyDown
		}
		_, _ = io.WriteString(&d.buf, d.palette.Block(c))
	}
	_, _ = fmt.Fprintf(&d.buf, "\033[0m %s ", d.keys)
	_, err := d.buf.WriteTo(d.w)
	return err
}

// scale dims c by v/255.
func scale(c color.NRGBA, v byte) color.NRGBA {
	return color.NRGBA{
		R: byte(uint16(c.R) * uint16(v) / 255),
		G: byte(uint16(c.G) * uint16(v) / 255),
		B: byte(uint16(c.B) * uint16(v) / 255),
		A: 255,
	}
}

var _ display.Drawer = &Dev{}
var _ fmt.Stringer = &Dev{}

// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ledview

import (
	"bytes"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/maruel/ansi256"
)

func TestShow(t *testing.T) {
	var b bytes.Buffer
	d := New(&Opts{W: &b})
	if err := d.Show([]byte{0, 255, 0, 0, 0, 0, 0, 128}, 0x81); err != nil {
		t.Fatal(err)
	}
	out := b.String()
	if !strings.HasPrefix(out, "\r\033[0m") {
		t.Errorf("missing line reset: %q", out)
	}
	if !strings.Contains(out, ansi256.Default.Block(red)) {
		t.Errorf("lit LED not rendered: %q", out)
	}
	if !strings.HasSuffix(out, "10000001 ") {
		t.Errorf("keys not rendered: %q", out)
	}
	if diff := cmp.Diff([]byte{0, 255, 0, 0, 0, 0, 0, 128}, d.leds); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestDraw(t *testing.T) {
	var b bytes.Buffer
	d := New(&Opts{LEDs: 4, W: &b})
	if got := d.Bounds(); got != image.Rect(0, 0, 4, 1) {
		t.Errorf("Bounds() = %v", got)
	}
	img := image.NewGray(image.Rect(0, 0, 8, 2))
	img.SetGray(1, 0, color.Gray{Y: 200})
	img.SetGray(3, 0, color.Gray{Y: 50})
	img.SetGray(2, 1, color.Gray{Y: 255})
	if err := d.Draw(d.Bounds(), img, image.Point{}); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0, 200, 0, 50}, d.leds); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestHalt(t *testing.T) {
	var b bytes.Buffer
	d := New(&Opts{W: &b})
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	if b.String() != "\n\033[0m" {
		t.Errorf("got %q", b.String())
	}
	if d.String() != "LEDView" {
		t.Errorf("String() = %q", d.String())
	}
}

func TestScale(t *testing.T) {
	got := scale(color.NRGBA{R: 255, G: 100, A: 255}, 128)
	want := color.NRGBA{R: 128, G: 50, A: 255}
	if got != want {
		t.Errorf("scale() = %v, want %v", got, want)
	}
}

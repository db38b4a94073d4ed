// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package panelview renders the control panel state as an image and serves
// it over HTTP.
//
// The rendering shows one lamp per LED, one square per key and the current
// and desired motor positions.
package panelview

import (
	"bytes"
	"fmt"
	"image"
	"log"
	"net/http"
	"sync"

	"github.com/GermanBionicSystems/ledkey/frontpanel"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// Source provides the state to render; *frontpanel.Loop implements it.
type Source interface {
	State() frontpanel.State
}

// Opts holds the rendering options.
type Opts struct {
	// Width and Height of the image. Default to 480x160.
	Width, Height int
	// LEDs is the number of lamps drawn. Defaults to the payload length.
	LEDs int
	// FontSize in points. Defaults to 16.
	FontSize float64
	// Format is the format served when the request does not ask for one.
	Format ImageFormat
}

// Renderer draws panel states.
type Renderer struct {
	w, h int
	leds int
	face font.Face
}

// NewRenderer returns a Renderer using the Go Regular font.
func NewRenderer(opts *Opts) (*Renderer, error) {
	o := Opts{Width: 480, Height: 160, FontSize: 16}
	if opts != nil {
		if opts.Width > 0 {
			o.Width = opts.Width
		}
		if opts.Height > 0 {
			o.Height = opts.Height
		}
		if opts.FontSize > 0 {
			o.FontSize = opts.FontSize
		}
		o.LEDs = opts.LEDs
	}
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("panelview: %w", err)
	}
	face := truetype.NewFace(f, &truetype.Options{Size: o.FontSize})
	return &Renderer{w: o.Width, h: o.Height, leds: o.LEDs, face: face}, nil
}

// Render draws s.
func (r *Renderer) Render(s frontpanel.State) image.Image {
	dc := gg.NewContext(r.w, r.h)
	dc.SetRGB(0.1, 0.1, 0.12)
	dc.Clear()
	dc.SetFontFace(r.face)

	w, h := float64(r.w), float64(r.h)
	n := r.leds
	if n == 0 {
		n = len(s.LEDs)
	}
	if n == 0 {
		n = 8
	}
	cell := w / float64(n)
	radius := min(cell, h/3) * 0.35

	// LEDs on the top row.
	for i := range n {
		var v byte
		if i < len(s.LEDs) {
			v = s.LEDs[i]
		}
		x := cell * (float64(i) + 0.5)
		dc.DrawCircle(x, h*0.22, radius)
		dc.SetRGB(0.15+0.85*float64(v)/255, 0.05, 0.05)
		dc.FillPreserve()
		dc.SetRGB(0.4, 0.4, 0.4)
		dc.SetLineWidth(1)
		dc.Stroke()
	}
	// Keys on the middle row.
	for i := range 8 {
		x := w / 8 * (float64(i) + 0.5)
		dc.DrawRoundedRectangle(x-radius, h*0.5-radius, 2*radius, 2*radius, radius/4)
		if s.Keys.Pressed(i) {
			dc.SetRGB(0.9, 0.9, 0.9)
		} else {
			dc.SetRGB(0.25, 0.25, 0.25)
		}
		dc.Fill()
	}
	// Status line.
	status := fmt.Sprintf("position %d  target %d", s.Position, s.Desired)
	dc.SetRGB(0.9, 0.9, 0.9)
	if s.Err != nil {
		status = s.Err.Error()
		dc.SetRGB(1, 0.3, 0.3)
	}
	dc.DrawStringAnchored(status, w/2, h*0.85, 0.5, 0.5)
	return dc.Image()
}

// Handler serves snapshots of a Source.
type Handler struct {
	src    Source
	r      *Renderer
	format ImageFormat

	// mu serializes rendering; the font face is not safe for concurrent use.
	mu sync.Mutex
}

// NewHandler returns a Handler rendering src with r.
func NewHandler(src Source, r *Renderer, opts *Opts) *Handler {
	h := &Handler{src: src, r: r, format: DefaultFormat}
	if opts != nil {
		h.format = opts.Format
	}
	return h
}

// ServeHTTP handles HTTP GET requests and sends one image of the current
// panel state. Clients can explicitly request PNG or JPEG images using the
// "format" parameter ("?format=png", "?format=jpeg").
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.Body.Close(); err != nil {
		log.Printf("Closing request body failed: %v", err)
	}
	if r.Method != http.MethodGet {
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}
	format := h.format
	if value := r.URL.Query().Get("format"); value != "" {
		f, err := ImageFormatFromString(value)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		format = f
	}

	h.mu.Lock()
	img := h.r.Render(h.src.State())
	h.mu.Unlock()

	var buf bytes.Buffer
	if err := format.encode(&buf, img); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", format.mimeType())
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}

// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config loads the JSON description of a panel and motor setup.
//
// Durations are written as Go duration strings ("500ms") and frequencies as
// periph frequency strings ("1MHz"). Missing values get defaults matching the
// reference hardware.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/GermanBionicSystems/ledkey/keymap"
	"github.com/GermanBionicSystems/ledkey/stepperdrive"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("config: invalid")

// Duration is a time.Duration read from a JSON string.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("config: duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	*d = Duration(v)
	return nil
}

// Frequency is a physic.Frequency read from a JSON string.
type Frequency physic.Frequency

func (f Frequency) MarshalJSON() ([]byte, error) {
	return json.Marshal(physic.Frequency(f).String())
}

func (f *Frequency) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("config: frequency must be a string: %w", err)
	}
	var v physic.Frequency
	if err := v.Set(s); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	*f = Frequency(v)
	return nil
}

// Panel describes the control panel link.
type Panel struct {
	// Port is the SPI port name, "" for the first one.
	Port      string    `json:"port"`
	Frequency Frequency `json:"frequency"`
	Mode      int       `json:"mode"`
	// Strobe is the latch GPIO name. Empty when chip select latches.
	Strobe    string   `json:"strobe"`
	LEDs      int      `json:"leds"`
	Timeout   Duration `json:"timeout"`
	ActiveLow bool     `json:"active_low"`
	// Poll is the foreground loop period.
	Poll Duration `json:"poll"`
	// Pattern is "counting", "position" or "static".
	Pattern string `json:"pattern"`
	// Static is the payload shown with the "static" pattern.
	Static []byte `json:"static"`
}

// Motor describes the stepper outputs.
type Motor struct {
	// Kind is "coils" or "stepdir".
	Kind string `json:"kind"`
	// Tick is the step period.
	Tick Duration `json:"tick"`
	// Indicator is a GPIO raised during each tick. Optional.
	Indicator string `json:"indicator"`

	Coils    []string `json:"coils"`
	Sequence string   `json:"sequence"`

	Step         string `json:"step"`
	Dir          string `json:"dir"`
	Enable       string `json:"enable"`
	InvertStep   bool   `json:"invert_step"`
	InvertDir    bool   `json:"invert_dir"`
	InvertEnable bool   `json:"invert_enable"`
}

// Serial describes the remote console.
type Serial struct {
	Device string `json:"device"`
	Baud   int    `json:"baud"`
}

// Config is the whole setup.
type Config struct {
	Panel  Panel   `json:"panel"`
	Motor  Motor   `json:"motor"`
	Keymap []int64 `json:"keymap"`
	Min    int64   `json:"min"`
	Max    int64   `json:"max"`
	Serial Serial  `json:"serial"`
	// HTTP is the listen address of the snapshot server. Empty disables it.
	HTTP string `json:"http"`
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(b)
}

// Parse parses a JSON document, applies the defaults and validates it.
func Parse(b []byte) (*Config, error) {
	c := &Config{}
	if err := json.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	applyDefaults(c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Default returns the reference setup.
func Default() *Config {
	c := &Config{}
	applyDefaults(c)
	return c
}

// applyDefaults fills in missing values with the reference hardware settings.
func applyDefaults(c *Config) {
	if c.Panel.Frequency == 0 {
		c.Panel.Frequency = Frequency(physic.MegaHertz)
	}
	if c.Panel.LEDs == 0 {
		c.Panel.LEDs = 8
	}
	if c.Panel.Poll == 0 {
		c.Panel.Poll = Duration(10 * time.Millisecond)
	}
	if c.Panel.Pattern == "" {
		c.Panel.Pattern = "counting"
	}
	if c.Motor.Kind == "" {
		c.Motor.Kind = "coils"
	}
	if c.Motor.Tick == 0 {
		c.Motor.Tick = Duration(500 * time.Millisecond)
	}
	if c.Motor.Sequence == "" {
		c.Motor.Sequence = "half"
	}
	if c.Keymap == nil {
		c.Keymap = append([]int64(nil), keymap.Default[:]...)
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = 115200
	}
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []string
	if c.Panel.Mode < 0 || c.Panel.Mode > 3 {
		errs = append(errs, fmt.Sprintf("panel.mode %d not in 0..3", c.Panel.Mode))
	}
	if c.Panel.LEDs < 1 {
		errs = append(errs, fmt.Sprintf("panel.leds %d", c.Panel.LEDs))
	}
	if c.Panel.Timeout < 0 || c.Panel.Poll < 0 || c.Motor.Tick < 0 {
		errs = append(errs, "negative duration")
	}
	switch c.Panel.Pattern {
	case "counting", "position":
	case "static":
		if len(c.Panel.Static) == 0 {
			errs = append(errs, "panel.static is empty")
		}
	default:
		errs = append(errs, fmt.Sprintf("panel.pattern %q", c.Panel.Pattern))
	}
	switch c.Motor.Kind {
	case "coils":
		if _, err := stepperdrive.SequenceFromString(c.Motor.Sequence); err != nil {
			errs = append(errs, err.Error())
		}
	case "stepdir":
	default:
		errs = append(errs, fmt.Sprintf("motor.kind %q", c.Motor.Kind))
	}
	if _, err := keymap.FromSlice(c.Keymap); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.Limits().Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) != 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return nil
}

// SPIMode returns the panel SPI mode.
func (c *Config) SPIMode() spi.Mode {
	return spi.Mode(c.Panel.Mode)
}

// Table returns the key map. Validate guarantees it has 8 entries.
func (c *Config) Table() keymap.Table {
	t, _ := keymap.FromSlice(c.Keymap)
	return t
}

// Limits returns the target clamp.
func (c *Config) Limits() keymap.Limits {
	return keymap.Limits{Min: c.Min, Max: c.Max}
}

// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// ledkey drives a stepper motor to the position selected on an LED and key
// control panel.
//
// Usage:
//
//	ledkey -config ledkey.json
//	ledkey -sim
//
// With -sim the panel is simulated: its LEDs are shown in the terminal and
// keys are pressed by typing their number followed by enter.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/GermanBionicSystems/ledkey/config"
	"github.com/GermanBionicSystems/ledkey/frontpanel"
	"github.com/GermanBionicSystems/ledkey/ledview"
	"github.com/GermanBionicSystems/ledkey/serialctl"
	"github.com/jonboulle/clockwork"
)

func mainImpl() error {
	cfgPath := flag.String("config", "", "JSON configuration file; defaults apply when empty")
	sim := flag.Bool("sim", false, "simulate the panel and the motor pins")
	httpAddr := flag.String("http", "", "serve panel snapshots on this address, e.g. :8080")
	serialDev := flag.String("serial", "", "serial device of the remote console")
	verbose := flag.Bool("v", false, "log every SPI operation")
	flag.Parse()
	if flag.NArg() != 0 {
		return fmt.Errorf("unexpected argument: %v", flag.Args())
	}
	log.SetFlags(log.Lmicroseconds)

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			return err
		}
	}
	if *httpAddr != "" {
		cfg.HTTP = *httpAddr
	}
	if *serialDev != "" {
		cfg.Serial.Device = *serialDev
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var hw hardware
	var view frontpanel.Viewer
	if *sim {
		s := newSimHardware(*verbose)
		simDefaults(cfg)
		hw = s
		view = ledview.New(&ledview.Opts{LEDs: cfg.Panel.LEDs})
		go func() {
			if err := typeKeys(ctx, os.Stdin, s.peer); err != nil {
				log.Printf("sim: %v", err)
			}
		}()
	} else {
		h, err := newHostHardware(*verbose)
		if err != nil {
			return err
		}
		hw = h
	}

	sys, err := newSystem(cfg, hw, view, clockwork.NewRealClock())
	if err != nil {
		return err
	}
	log.Printf("%s, %s, %s", sys.motor, sys.link, sys.tick)

	var console serialctl.Port
	if cfg.Serial.Device != "" {
		sc := serialctl.DefaultConfig(cfg.Serial.Device)
		sc.Baud = cfg.Serial.Baud
		if console, err = serialctl.Open(sc); err != nil {
			_ = sys.halt()
			return err
		}
		_ = console.Flush()
	}
	var srv *http.Server
	if cfg.HTTP != "" {
		srv = &http.Server{Addr: cfg.HTTP}
		log.Printf("serving http://%s/panel", cfg.HTTP)
	}
	return sys.run(ctx, console, srv)
}

// simDefaults gives the simulated motor pin names when the configuration has
// none.
func simDefaults(cfg *config.Config) {
	m := &cfg.Motor
	if m.Kind == "coils" && len(m.Coils) == 0 {
		m.Coils = []string{"A", "B", "C", "D"}
	}
	if m.Kind == "stepdir" {
		if m.Step == "" {
			m.Step = "STEP"
		}
		if m.Dir == "" {
			m.Dir = "DIR"
		}
	}
	if m.Indicator == "" {
		m.Indicator = "TICK"
	}
	if cfg.Panel.Strobe == "" {
		cfg.Panel.Strobe = "STROBE"
	}
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "ledkey: %s.\n", err)
		os.Exit(1)
	}
}

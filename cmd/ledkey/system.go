// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/GermanBionicSystems/ledkey/config"
	"github.com/GermanBionicSystems/ledkey/controlpanel"
	"github.com/GermanBionicSystems/ledkey/frontpanel"
	"github.com/GermanBionicSystems/ledkey/keymap"
	"github.com/GermanBionicSystems/ledkey/panelview"
	"github.com/GermanBionicSystems/ledkey/serialctl"
	"github.com/GermanBionicSystems/ledkey/stepperdrive"
	"github.com/GermanBionicSystems/ledkey/tick"
	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// system is the wired up drive: motor, panel link and the loops feeding them.
type system struct {
	cfg   *config.Config
	port  spi.PortCloser
	out   stepperdrive.Phaser
	motor *stepperdrive.Dev
	link  *controlpanel.Dev
	loop  *frontpanel.Loop
	tick  *tick.Driver
}

// newSystem builds the system described by cfg on hw. view may be nil.
func newSystem(cfg *config.Config, hw hardware, view frontpanel.Viewer, clock clockwork.Clock) (*system, error) {
	s := &system{cfg: cfg}
	var err error
	if s.out, err = newPhaser(&cfg.Motor, hw); err != nil {
		return nil, err
	}
	if s.motor, err = stepperdrive.New(s.out); err != nil {
		return nil, err
	}
	var indicator gpio.PinOut
	if cfg.Motor.Indicator != "" {
		if indicator, err = hw.Pin(cfg.Motor.Indicator); err != nil {
			return nil, err
		}
	}
	if s.tick, err = tick.New(&tick.Opts{Period: time.Duration(cfg.Motor.Tick), Indicator: indicator, Clock: clock}); err != nil {
		return nil, err
	}

	if s.port, err = hw.SPI(cfg.Panel.Port); err != nil {
		return nil, err
	}
	var strobe gpio.PinOut
	if cfg.Panel.Strobe != "" {
		if strobe, err = hw.Pin(cfg.Panel.Strobe); err != nil {
			s.port.Close()
			return nil, err
		}
	}
	s.link, err = controlpanel.New(s.port, strobe, &controlpanel.Opts{
		Frequency: physic.Frequency(cfg.Panel.Frequency),
		Mode:      cfg.SPIMode(),
		LEDs:      cfg.Panel.LEDs,
		Timeout:   time.Duration(cfg.Panel.Timeout),
		ActiveLow: cfg.Panel.ActiveLow,
		Clock:     clock,
	})
	if err == nil {
		err = s.link.Init()
	}
	if err != nil {
		s.port.Close()
		return nil, err
	}

	table := cfg.Table()
	s.loop, err = frontpanel.New(s.link, s.motor, &frontpanel.Opts{
		Period:  time.Duration(cfg.Panel.Poll),
		Table:   &table,
		Limits:  cfg.Limits(),
		LEDs:    cfg.Panel.LEDs,
		Pattern: newPattern(cfg, table),
		View:    view,
		Clock:   clock,
	})
	if err != nil {
		s.port.Close()
		return nil, err
	}
	return s, nil
}

func newPhaser(m *config.Motor, hw hardware) (stepperdrive.Phaser, error) {
	switch m.Kind {
	case "stepdir":
		step, err := hw.Pin(m.Step)
		if err != nil {
			return nil, err
		}
		dir, err := hw.Pin(m.Dir)
		if err != nil {
			return nil, err
		}
		opts := &stepperdrive.StepDirOpts{InvertStep: m.InvertStep, InvertDir: m.InvertDir, InvertEnable: m.InvertEnable}
		if m.Enable != "" {
			if opts.Enable, err = hw.Pin(m.Enable); err != nil {
				return nil, err
			}
		}
		return stepperdrive.NewStepDir(step, dir, opts)
	case "coils":
		seq, err := stepperdrive.SequenceFromString(m.Sequence)
		if err != nil {
			return nil, err
		}
		pins := make([]gpio.PinOut, len(m.Coils))
		for i, name := range m.Coils {
			if pins[i], err = hw.Pin(name); err != nil {
				return nil, err
			}
		}
		return stepperdrive.NewCoils(seq, pins...)
	}
	return nil, fmt.Errorf("unknown motor kind %q", m.Kind)
}

func newPattern(cfg *config.Config, t keymap.Table) frontpanel.Pattern {
	switch cfg.Panel.Pattern {
	case "position":
		return frontpanel.PositionBar(t, cfg.Panel.LEDs)
	case "static":
		return frontpanel.Static(cfg.Panel.Static)
	}
	return frontpanel.Counting(cfg.Panel.LEDs)
}

// run drives the motor and polls the panel until ctx is done, then stops the
// motor and blanks the panel. console and srv are optional; console is
// closed on return.
func (s *system) run(ctx context.Context, console serialctl.Port, srv *http.Server) error {
	var wg sync.WaitGroup
	errs := make(chan error, 4)
	start := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
				errs <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start("tick", func() error { return s.tick.Run(ctx, s.motor.ServiceTick) })
	start("panel", func() error { return s.loop.Run(ctx) })
	if console != nil {
		c := serialctl.NewConsole(s.loop, s.motor)
		start("serial", func() error {
			for ctx.Err() == nil {
				if err := c.Serve(ctx, console); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if srv != nil {
		srv.Handler = s.handler(srv.Handler)
		start("http", srv.ListenAndServe)
		go func() {
			<-ctx.Done()
			sctx, c := context.WithTimeout(context.Background(), time.Second)
			defer c()
			_ = srv.Shutdown(sctx)
		}()
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errs:
		cancel()
	}
	if console != nil {
		// Unblocks a pending Read.
		_ = console.Close()
	}
	wg.Wait()
	return errors.Join(err, s.halt())
}

// handler returns h, or the panel snapshot handler when h is nil.
func (s *system) handler(h http.Handler) http.Handler {
	if h != nil {
		return h
	}
	r, err := panelview.NewRenderer(&panelview.Opts{LEDs: s.cfg.Panel.LEDs})
	if err != nil {
		log.Printf("http: %v", err)
		return http.NotFoundHandler()
	}
	mux := http.NewServeMux()
	mux.Handle("/panel", panelview.NewHandler(s.loop, r, nil))
	return mux
}

// halt releases the motor, blanks the panel and lowers the indicator.
func (s *system) halt() error {
	return errors.Join(s.motor.Halt(), s.link.Halt(), s.tick.Halt(), s.port.Close())
}

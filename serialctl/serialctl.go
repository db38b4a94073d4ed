// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package serialctl exposes a line based command console, typically on a
// serial port, to command the motor without touching the panel.
//
// Commands:
//
//	goto <n>   set the target position (limits apply)
//	status     print position, target, keys and panel error
//	stats      print the motor and panel counters
//	halt       stop where the motor stands and release it
//	help       list the commands
//
// Every command gets a one line reply, "ok ..." or "err ...".
package serialctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/GermanBionicSystems/ledkey/frontpanel"
	"github.com/GermanBionicSystems/ledkey/stepperdrive"
)

// ErrUnknownCommand is returned by Exec for unrecognized commands.
var ErrUnknownCommand = errors.New("serialctl: unknown command")

const maxLine = 128

// Panel is the foreground loop; *frontpanel.Loop implements it.
type Panel interface {
	Target(target int64) int64
	State() frontpanel.State
	Stats() frontpanel.Stats
}

// Motor is the stepper engine; *stepperdrive.Dev implements it.
type Motor interface {
	Halt() error
	Stats() stepperdrive.Stats
}

// Console parses and runs commands.
type Console struct {
	panel Panel
	motor Motor
	buf   []byte
}

// NewConsole returns a Console driving panel and motor.
func NewConsole(panel Panel, motor Motor) *Console {
	return &Console{panel: panel, motor: motor}
}

// ProcessByte adds b to the line being received. When b ends a non empty
// line, the line is run and its reply returned with ok set.
func (c *Console) ProcessByte(b byte) (reply string, ok bool) {
	if b != '\n' && b != '\r' {
		if len(c.buf) < maxLine {
			c.buf = append(c.buf, b)
		}
		return "", false
	}
	line := strings.TrimSpace(string(c.buf))
	c.buf = c.buf[:0]
	if line == "" {
		return "", false
	}
	out, err := c.Exec(line)
	if err != nil {
		return "err " + strings.TrimPrefix(err.Error(), "serialctl: "), true
	}
	return out, true
}

// Exec runs one command line.
func (c *Console) Exec(line string) (string, error) {
	f := strings.Fields(line)
	if len(f) == 0 {
		return "", fmt.Errorf("%w: empty line", ErrUnknownCommand)
	}
	switch strings.ToLower(f[0]) {
	case "goto", "target":
		if len(f) != 2 {
			return "", fmt.Errorf("serialctl: usage: %s <position>", f[0])
		}
		n, err := strconv.ParseInt(f[1], 0, 64)
		if err != nil {
			return "", fmt.Errorf("serialctl: bad position %q", f[1])
		}
		return fmt.Sprintf("ok target=%d", c.panel.Target(n)), nil
	case "status":
		s := c.panel.State()
		out := fmt.Sprintf("ok pos=%d target=%d keys=%s", s.Position, s.Desired, s.Keys)
		if s.Err != nil {
			out += fmt.Sprintf(" panel=%q", s.Err.Error())
		}
		return out, nil
	case "stats":
		return fmt.Sprintf("ok motor[%s] panel[%s]", c.motor.Stats(), c.panel.Stats()), nil
	case "halt", "stop":
		if err := c.motor.Halt(); err != nil {
			return "", err
		}
		return "ok", nil
	case "help", "?":
		return "ok goto <n> | status | stats | halt | help", nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownCommand, f[0])
}

// Serve reads commands from rw and writes the replies, until ctx is done or
// rw returns an error. io.EOF, which a serial port returns on read timeout,
// ends Serve with a nil error; a partial line is kept for the next call.
func (c *Console) Serve(ctx context.Context, rw io.ReadWriter) error {
	buf := make([]byte, 64)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := rw.Read(buf)
		for _, b := range buf[:n] {
			if reply, ok := c.ProcessByte(b); ok {
				if _, werr := io.WriteString(rw, reply+"\r\n"); werr != nil {
					return fmt.Errorf("serialctl: %w", werr)
				}
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("serialctl: %w", err)
		}
	}
}

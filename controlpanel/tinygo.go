// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package controlpanel

import (
	"periph.io/x/conn/v3"
	"tinygo.org/x/drivers"
)

// TinyGoConn adapts a TinyGo SPI bus, such as machine.SPI or a PIO SPI, so it
// can be used with NewConn.
func TinyGoConn(bus drivers.SPI, name string) conn.Conn {
	return &tinyConn{bus: bus, name: name}
}

type tinyConn struct {
	bus  drivers.SPI
	name string
}

func (c *tinyConn) String() string {
	return c.name
}

func (c *tinyConn) Tx(w, r []byte) error {
	return c.bus.Tx(w, r)
}

func (c *tinyConn) Duplex() conn.Duplex {
	return conn.Full
}

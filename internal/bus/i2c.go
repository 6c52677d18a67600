// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bus

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

var hostOnce sync.Once

type i2cTransport struct {
	bus  i2c.BusCloser
	dev  i2c.Dev
	addr uint16
}

// Open opens the named I2C bus ("" picks the first available one) and
// binds the device at the given 7-bit address. Bus enumeration itself
// is left to platform tooling (i2cdetect); we only take the identifier.
func Open(busID string, addr uint16) (Transport, error) {
	if addr < 0x08 || addr > 0x77 {
		return nil, fmt.Errorf("device address 0x%02X outside 7-bit range 0x08-0x77", addr)
	}

	var hostErr error
	hostOnce.Do(func() {
		_, hostErr = host.Init()
	})
	if hostErr != nil {
		return nil, fmt.Errorf("periph host init: %w", hostErr)
	}

	b, err := i2creg.Open(busID)
	if err != nil {
		// %w keeps os.ErrPermission visible to the caller: opening
		// /dev/i2c-* normally needs root or i2c group membership, and
		// that failure must stay distinguishable from a dead bus.
		return nil, fmt.Errorf("open I2C bus %q: %w", busID, err)
	}

	return &i2cTransport{
		bus:  b,
		dev:  i2c.Dev{Bus: b, Addr: addr},
		addr: addr,
	}, nil
}

func (t *i2cTransport) Read(reg byte, buf []byte) error {
	if err := t.dev.Tx([]byte{reg}, buf); err != nil {
		return &Error{Op: "read", Addr: t.addr, Reg: reg, Err: err}
	}
	return nil
}

func (t *i2cTransport) Write(reg byte, data ...byte) error {
	if err := t.dev.Tx(append([]byte{reg}, data...), nil); err != nil {
		return &Error{Op: "write", Addr: t.addr, Reg: reg, Err: err}
	}
	return nil
}

func (t *i2cTransport) Close() error {
	return t.bus.Close()
}

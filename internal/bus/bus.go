// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package bus abstracts a register-addressed I2C device so the driver
// can run against real hardware or an in-memory mock.
package bus

import (
	"fmt"
)

// Transport is a register-addressed view of one device on the bus.
// The device address is bound at open time; the bus must only ever be
// accessed from a single goroutine.
type Transport interface {
	// Read fills buf with len(buf) bytes starting at register reg.
	Read(reg byte, buf []byte) error
	// Write writes data to register reg.
	Write(reg byte, data ...byte) error
	// Close releases the underlying bus handle.
	Close() error
}

// Error is a transport-layer failure (no ACK, timeout, access denied).
// It is always recoverable at the caller's discretion.
type Error struct {
	Op   string // "read" or "write"
	Addr uint16 // 7-bit device address
	Reg  byte
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("i2c %s addr 0x%02X reg 0x%02X: %v", e.Op, e.Addr, e.Reg, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bus

import (
	"errors"
	"sync"
)

// RegWrite is one journaled register write observed by the mock device.
type RegWrite struct {
	Reg  byte
	Data []byte
}

// MockDevice is an in-memory register map implementing Transport.
// Used by driver and loop tests, and usable as a stand-in device on
// machines without an I2C bus.
type MockDevice struct {
	mu       sync.Mutex
	regs     [256]byte
	writes   []RegWrite
	readErrs int
	closed   bool
}

// ErrMockIO is the transport failure injected by FailReads.
var ErrMockIO = errors.New("injected i2c failure")

const mockAddr = 0x29

func NewMockDevice() *MockDevice {
	return &MockDevice{}
}

// SetRegs loads a contiguous block into the register map.
func (m *MockDevice) SetRegs(reg byte, data ...byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy(m.regs[int(reg):], data)
}

// Reg returns the current value of one register.
func (m *MockDevice) Reg(reg byte) byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs[reg]
}

// FailReads makes the next n Read calls fail with a transport error.
func (m *MockDevice) FailReads(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErrs = n
}

// Writes returns the journal of every write seen so far.
func (m *MockDevice) Writes() []RegWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RegWrite, len(m.writes))
	copy(out, m.writes)
	return out
}

// LastWrite returns the most recent write to reg, or ok=false if the
// register was never written.
func (m *MockDevice) LastWrite(reg byte) (byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.writes) - 1; i >= 0; i-- {
		if m.writes[i].Reg == reg && len(m.writes[i].Data) > 0 {
			return m.writes[i].Data[0], true
		}
	}
	return 0, false
}

func (m *MockDevice) Read(reg byte, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErrs > 0 {
		m.readErrs--
		return &Error{Op: "read", Addr: mockAddr, Reg: reg, Err: ErrMockIO}
	}
	copy(buf, m.regs[int(reg):])
	return nil
}

func (m *MockDevice) Write(reg byte, data ...byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy(m.regs[int(reg):], data)
	m.writes = append(m.writes, RegWrite{Reg: reg, Data: append([]byte(nil), data...)})
	return nil
}

func (m *MockDevice) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockDevice) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

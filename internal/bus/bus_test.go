package bus

import (
	"errors"
	"os"
	"strings"
	"testing"
)

func TestErrorWrapping(t *testing.T) {
	e := &Error{Op: "read", Addr: 0x29, Reg: 0x20, Err: os.ErrPermission}

	if !errors.Is(e, os.ErrPermission) {
		t.Error("bus.Error must preserve the underlying cause")
	}
	msg := e.Error()
	for _, want := range []string{"read", "0x29", "0x20"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message %q missing %q", msg, want)
		}
	}
}

func TestMockDeviceRegisters(t *testing.T) {
	m := NewMockDevice()
	m.SetRegs(0x20, 0x01, 0x02, 0x03)

	buf := make([]byte, 3)
	if err := m.Read(0x20, buf); err != nil {
		t.Fatalf("Read() = %v", err)
	}
	if buf[0] != 0x01 || buf[1] != 0x02 || buf[2] != 0x03 {
		t.Errorf("read %v, want 01 02 03", buf)
	}
}

func TestMockDeviceJournal(t *testing.T) {
	m := NewMockDevice()
	if err := m.Write(0x3D, 0x0C); err != nil {
		t.Fatalf("Write() = %v", err)
	}
	if err := m.Write(0x3D, 0x00); err != nil {
		t.Fatalf("Write() = %v", err)
	}

	if v, ok := m.LastWrite(0x3D); !ok || v != 0x00 {
		t.Errorf("LastWrite = 0x%02X (ok=%v), want 0x00", v, ok)
	}
	if got := len(m.Writes()); got != 2 {
		t.Errorf("journal length = %d, want 2", got)
	}
	if m.Reg(0x3D) != 0x00 {
		t.Errorf("register not updated by write")
	}
}

func TestMockDeviceClose(t *testing.T) {
	m := NewMockDevice()
	if m.Closed() {
		t.Error("new mock reports closed")
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if !m.Closed() {
		t.Error("Closed() = false after Close")
	}
}

func TestMockDeviceFailReads(t *testing.T) {
	m := NewMockDevice()
	m.FailReads(2)

	buf := make([]byte, 1)
	for i := 0; i < 2; i++ {
		err := m.Read(0x00, buf)
		var be *Error
		if !errors.As(err, &be) {
			t.Fatalf("read %d: got %v, want injected bus error", i, err)
		}
	}
	if err := m.Read(0x00, buf); err != nil {
		t.Errorf("third read should succeed, got %v", err)
	}
}

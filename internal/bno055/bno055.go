// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package bno055 drives the Bosch BNO055 9-axis IMU over a
// register-addressed bus: identity check, operating-mode state machine
// with settle-delay discipline, calibration status and quaternion
// orientation reads.
package bno055

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/imu_viewer/internal/bus"
	"github.com/relabs-tech/imu_viewer/internal/orientation"
)

// NormTolerance is the accepted deviation of a decoded quaternion's
// magnitude from 1.0. Reads outside it are malformed, not data.
const NormTolerance = 0.01

// ErrMalformedSample marks a decoded orientation read that failed
// validation (all-zero block or out-of-tolerance magnitude). Transient:
// drop the sample and keep polling.
var ErrMalformedSample = errors.New("malformed orientation sample")

// UnexpectedDeviceError means the identity register did not return the
// BNO055 chip ID. Fatal at startup: refuse to poll an unverified device.
type UnexpectedDeviceError struct {
	Got byte
}

func (e *UnexpectedDeviceError) Error() string {
	return fmt.Sprintf("unexpected device: WHO_AM_I = 0x%02X, want 0x%02X", e.Got, chipID)
}

// Device is one bound BNO055 instance. It owns protocol correctness:
// callers never see a read issued before a mode-transition settle delay
// has elapsed. Not safe for concurrent use; the acquisition loop owns
// it exclusively while polling.
type Device struct {
	tr      bus.Transport
	mode    Mode
	readyAt time.Time
	lastCal orientation.Calibration

	// Clock indirection so tests can run the settle-delay state
	// machine without real sleeps.
	now   func() time.Time
	sleep func(time.Duration)
}

// New binds a driver to an open transport. The device starts in CONFIG
// mode as far as the driver knows; call Identify then Initialize.
func New(tr bus.Transport) *Device {
	return &Device{
		tr:    tr,
		mode:  ModeConfig,
		now:   time.Now,
		sleep: time.Sleep,
	}
}

// Identify reads WHO_AM_I and verifies the BNO055 chip ID, guarding
// against wiring to the wrong chip.
func (d *Device) Identify() error {
	var b [1]byte
	if err := d.tr.Read(regChipID, b[:]); err != nil {
		return fmt.Errorf("identity read: %w", err)
	}
	if b[0] != chipID {
		return &UnexpectedDeviceError{Got: b[0]}
	}
	return nil
}

// Initialize resets the chip and brings it into NDOF fusion mode:
// CONFIG, soft reset, normal power, default units, NDOF. The CONFIG
// write is unconditional: the chip's actual mode after power-up or a
// crashed previous run is unknown.
func (d *Device) Initialize() error {
	if err := d.writeSettle(regOprMode, byte(ModeConfig), settleConfig); err != nil {
		return fmt.Errorf("set mode %s: %w", ModeConfig, err)
	}
	d.mode = ModeConfig
	if err := d.writeSettle(regSysTrigger, sysTriggerReset, settleReset); err != nil {
		return fmt.Errorf("soft reset: %w", err)
	}
	if err := d.writeSettle(regPwrMode, pwrModeNormal, settleWrite); err != nil {
		return fmt.Errorf("power mode: %w", err)
	}
	if err := d.writeSettle(regUnitSel, unitSelDefault, settleWrite); err != nil {
		return fmt.Errorf("unit select: %w", err)
	}
	return d.SetMode(ModeNDOF)
}

// Reinitialize is the recovery path after repeated bus failures:
// re-verify identity, then run the full init sequence again.
func (d *Device) Reinitialize() error {
	log.Warn("bno055: reinitializing device")
	if err := d.Identify(); err != nil {
		return err
	}
	return d.Initialize()
}

// SetMode writes OPR_MODE and records the settle deadline. Setting the
// current mode again is a no-op: no extra register traffic, no delay
// stacking.
func (d *Device) SetMode(m Mode) error {
	if d.mode == m {
		return nil
	}
	settle := settleNDOF
	if m == ModeConfig {
		settle = settleConfig
	}
	if err := d.writeSettle(regOprMode, byte(m), settle); err != nil {
		return fmt.Errorf("set mode %s: %w", m, err)
	}
	d.mode = m
	return nil
}

// Mode returns the operating mode the driver last commanded.
func (d *Device) Mode() Mode {
	return d.mode
}

// ReadCalibration decodes CALIB_STAT into the four 0-3 scores. It never
// fails on its own: a bus error here is logged and the last known
// status is reused, so a flaky status read cannot abort a poll cycle.
func (d *Device) ReadCalibration() orientation.Calibration {
	d.waitReady()
	var b [1]byte
	if err := d.tr.Read(regCalibStat, b[:]); err != nil {
		log.Warnf("bno055: calibration status read failed, reusing last known: %v", err)
		return d.lastCal
	}
	d.lastCal = orientation.Calibration{
		Sys:   (b[0] >> 6) & 0x03,
		Gyro:  (b[0] >> 4) & 0x03,
		Accel: (b[0] >> 2) & 0x03,
		Mag:   b[0] & 0x03,
	}
	return d.lastCal
}

// ReadOrientation reads the 8-byte quaternion block, converts it to a
// unit quaternion in the render frame and validates it. A bus failure
// comes back as a *bus.Error; a block that decodes to garbage comes
// back as ErrMalformedSample.
func (d *Device) ReadOrientation() (orientation.Sample, error) {
	d.waitReady()

	var raw [8]byte
	if err := d.tr.Read(regQuatDataWLSB, raw[:]); err != nil {
		return orientation.Sample{}, err
	}

	q, err := decodeQuaternion(raw)
	if err != nil {
		return orientation.Sample{}, err
	}

	cal := d.ReadCalibration()
	return orientation.FromQuaternion(q, d.now(), cal), nil
}

// Shutdown returns the device to CONFIG mode, its lowest-power safe
// state, before the transport handle is released.
func (d *Device) Shutdown() error {
	return d.SetMode(ModeConfig)
}

// decodeQuaternion converts the raw register block to a quaternion,
// remapping from the BNO055 body frame (X right, Y forward, Z up) to
// the render frame (X forward, Y up, Z right).
func decodeQuaternion(raw [8]byte) (orientation.Quaternion, error) {
	allZero := true
	for _, b := range raw {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return orientation.Quaternion{}, fmt.Errorf("%w: all-zero register block", ErrMalformedSample)
	}

	w := float64(int16(binary.LittleEndian.Uint16(raw[0:2]))) * quatScale
	x := float64(int16(binary.LittleEndian.Uint16(raw[2:4]))) * quatScale
	y := float64(int16(binary.LittleEndian.Uint16(raw[4:6]))) * quatScale
	z := float64(int16(binary.LittleEndian.Uint16(raw[6:8]))) * quatScale

	q := orientation.Quaternion{W: w, X: y, Y: z, Z: x}
	if norm := q.Norm(); math.Abs(norm-1) > NormTolerance {
		return orientation.Quaternion{}, fmt.Errorf("%w: |q| = %.4f", ErrMalformedSample, norm)
	}
	return q, nil
}

// writeSettle performs a register write that the chip needs settle time
// after: wait out any pending deadline, write, record the new one.
func (d *Device) writeSettle(reg, val byte, settle time.Duration) error {
	d.waitReady()
	if err := d.tr.Write(reg, val); err != nil {
		return err
	}
	d.readyAt = d.now().Add(settle)
	return nil
}

// waitReady defers register traffic until the last settle deadline has
// passed. Reads issued earlier would return pre-transition garbage per
// the datasheet.
func (d *Device) waitReady() {
	if wait := d.readyAt.Sub(d.now()); wait > 0 {
		d.sleep(wait)
	}
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bno055

import "time"

// BNO055 register map (page 0). Fixed by the hardware; treat as a
// versionless external constant.
const (
	// Identification
	regChipID = 0x00 // WHO_AM_I, reads chipID

	// Orientation data
	regEulerHLSB    = 0x1A // EUL_HEADING_LSB, 6 bytes H/R/P
	regQuatDataWLSB = 0x20 // QUA_DATA_W_LSB, 8 bytes W/X/Y/Z

	// Status
	regCalibStat = 0x35 // CALIB_STAT, four 2-bit scores in one byte

	// Configuration
	regUnitSel    = 0x3B // UNIT_SEL
	regOprMode    = 0x3D // OPR_MODE
	regPwrMode    = 0x3E // PWR_MODE
	regSysTrigger = 0x3F // SYS_TRIGGER
)

// Expected WHO_AM_I value. Anything else means we are wired to the
// wrong chip.
const chipID = 0xA0

// Mode is the BNO055 operating mode (OPR_MODE register values).
type Mode byte

const (
	// ModeConfig allows register configuration; no sensor fusion runs
	// and orientation reads are undefined.
	ModeConfig Mode = 0x00
	// ModeNDOF is full 9-axis sensor fusion with absolute orientation.
	ModeNDOF Mode = 0x0C
)

func (m Mode) String() string {
	switch m {
	case ModeConfig:
		return "CONFIG"
	case ModeNDOF:
		return "NDOF"
	default:
		return "UNKNOWN"
	}
}

// Register values used during initialization.
const (
	sysTriggerReset = 0x20 // RST_SYS bit
	pwrModeNormal   = 0x00
	unitSelDefault  = 0x00 // degrees, Celsius, m/s²
)

// Settle delays: after these writes the chip needs time before further
// register traffic is valid.
const (
	settleConfig = 25 * time.Millisecond
	settleNDOF   = 20 * time.Millisecond
	settleReset  = 650 * time.Millisecond
	settleWrite  = 10 * time.Millisecond
)

// Quaternion fixed-point scale: 1 LSB = 1/2^14.
const quatScale = 1.0 / 16384.0

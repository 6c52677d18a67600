// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
	"time"
)

type mockSource struct {
	start time.Time
}

// NewMockSource creates a mock orientation source that generates
// smooth quaternion motion, for running the viewer without hardware.
func NewMockSource() Source {
	return &mockSource{start: time.Now()}
}

func (m *mockSource) Next() (Sample, error) {
	elapsed := time.Since(m.start).Seconds()

	heading := math.Mod(elapsed*20, 360) * math.Pi / 180 // around Y
	roll := 30 * math.Sin(elapsed*0.5) * math.Pi / 180   // around X
	pitch := 20 * math.Sin(elapsed*0.3) * math.Pi / 180  // around Z

	ch, sh := math.Cos(heading/2), math.Sin(heading/2)
	cp, sp := math.Cos(pitch/2), math.Sin(pitch/2)
	cr, sr := math.Cos(roll/2), math.Sin(roll/2)

	// Closed form of roll*pitch*heading so ToEuler recovers the input
	// angles exactly.
	q := Quaternion{
		W: cr*cp*ch + sr*sp*sh,
		X: sr*cp*ch - cr*sp*sh,
		Y: cr*cp*sh - sr*sp*ch,
		Z: cr*sp*ch + sr*cp*sh,
	}

	return FromQuaternion(q, time.Now(), Calibration{Sys: 3, Gyro: 3, Accel: 3, Mag: 3}), nil
}

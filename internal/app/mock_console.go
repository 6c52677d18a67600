// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"time"

	"github.com/relabs-tech/imu_viewer/internal/orientation"
)

// RunMockConsole prints mock orientation samples to stdout. Quick
// sanity check of the sample pipeline with no hardware and no broker.
func RunMockConsole() error {
	src := orientation.NewMockSource()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		sample, err := src.Next()
		if err != nil {
			return err
		}

		fmt.Printf(
			"HDG=%6.1f  ROLL=%6.1f  PITCH=%6.1f  q=(%.3f %.3f %.3f %.3f)\n",
			sample.Heading,
			sample.Roll,
			sample.Pitch,
			sample.Quat.W, sample.Quat.X, sample.Quat.Y, sample.Quat.Z,
		)
	}
	return nil
}

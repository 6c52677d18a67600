// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"errors"
	"flag"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/imu_viewer/internal/app"
	"github.com/relabs-tech/imu_viewer/internal/config"
	"github.com/relabs-tech/imu_viewer/internal/poll"
)

// Exit codes, so scripts can tell the failure classes apart.
const (
	exitOK            = 0
	exitFatal         = 1
	exitBadConfig     = 2
	exitDeviceMissing = 3
	exitDeviceLost    = 4
)

func main() {
	configPath := flag.String("config", "./imu_viewer.conf", "path to configuration file")
	mock := flag.Bool("mock", false, "use mock sensor (for testing without hardware)")
	flag.Parse()

	log.Info("starting BNO055 orientation viewer")

	// Load configuration before touching the bus.
	if err := config.InitGlobal(*configPath); err != nil {
		log.Errorf("invalid configuration: %v", err)
		os.Exit(exitBadConfig)
	}

	if err := app.RunViewer(*mock); err != nil {
		log.Errorf("fatal: %v", err)
		switch {
		case errors.Is(err, app.ErrDeviceNotFound):
			os.Exit(exitDeviceMissing)
		case errors.Is(err, poll.ErrDeviceLost):
			os.Exit(exitDeviceLost)
		default:
			os.Exit(exitFatal)
		}
	}

	log.Info("viewer closed")
	os.Exit(exitOK)
}

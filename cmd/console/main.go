// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/imu_viewer/internal/app"
	"github.com/relabs-tech/imu_viewer/internal/config"
)

func main() {
	configPath := flag.String("config", "./imu_viewer.conf", "path to configuration file")
	mock := flag.Bool("mock", false, "print mock samples instead of subscribing to MQTT")
	flag.Parse()

	if *mock {
		log.Info("starting imu-viewer console (mock source)")
		if err := app.RunMockConsole(); err != nil {
			log.Fatalf("fatal: %v", err)
		}
		return
	}

	log.Info("starting imu-viewer console (MQTT subscriber)")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunConsoleMQTT(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

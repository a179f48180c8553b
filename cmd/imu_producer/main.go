// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/wristcuff/fingertrace/internal/app"
	"github.com/wristcuff/fingertrace/internal/config"
)

func main() {
	configPath := flag.String("config", "./fingertrace_config.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting fingertrace IMU producer (wrist IMU -> pipeline -> MQTT)")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunProducer(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

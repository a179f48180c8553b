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
	configPath := flag.String("config", "fingertrace_config.txt", "path to config file")
	flag.Parse()

	log.Println("starting fingertrace external HMC5983 cross-check producer")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunHMC5983Producer(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

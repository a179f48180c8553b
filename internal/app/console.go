// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/wristcuff/fingertrace/internal/config"
	"github.com/wristcuff/fingertrace/internal/pipeline"
)

// RunConsole subscribes to the pipeline's telemetry topics and prints a
// periodic one-line summary, a lightweight substitute for the display
// or web dashboard when neither is available.
func RunConsole() error {
	cfg := config.Get()

	var (
		mu        sync.RWMutex
		stage     pipeline.Stage
		haveStage bool
	)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("MQTT connect error: %v", token.Error())
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	stageToken := client.Subscribe(cfg.TopicStage, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s pipeline.Stage
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("console: stage unmarshal error: %v", err)
			return
		}
		mu.Lock()
		stage = s
		haveStage = true
		mu.Unlock()
	})
	stageToken.Wait()
	if stageToken.Error() != nil {
		return stageToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicStage)

	ticker := time.NewTicker(time.Duration(cfg.ConsoleLogInterval) * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		mu.RLock()
		s := stage
		ok := haveStage
		mu.RUnlock()

		if !ok {
			log.Println("console: waiting for telemetry...")
			continue
		}

		log.Printf("R=%7.2f P=%7.2f Y=%7.2f | moving=%-5v biasReady=%-5v | residual=%6.1fuT detect=%-9s | calib=%s",
			s.Euler.Roll, s.Euler.Pitch, s.Euler.Yaw,
			s.IsMoving, s.BiasReady,
			s.ResidualMag, s.Detection.Status,
			calibrationSummary(s))
	}

	return nil
}

func calibrationSummary(s pipeline.Stage) string {
	if !s.HasCalibration() {
		return "n/a"
	}
	if !s.Calibration.Ready {
		return "warming up"
	}
	return "ready"
}

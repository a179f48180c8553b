// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"log"
	"net/http"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/wristcuff/fingertrace/internal/config"
)

// RunWeb serves the dashboard: a set of JSON snapshot endpoints backed by
// the latest MQTT payload on each pipeline topic, plus a websocket feed
// of live calibration status.
func RunWeb() error {
	cfg := config.Get()

	var (
		mu             sync.RWMutex
		lastStage      []byte
		lastFingers    []byte
		lastDetection  []byte
		lastGPSPos     []byte
		lastGPSVel     []byte
		lastGPSQuality []byte
	)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDWeb)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("web: connected to MQTT broker at %s", cfg.MQTTBroker)

	hub := newCalibrationHub()

	subscribe := func(topic string, store func([]byte)) error {
		token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			payload := msg.Payload()
			mu.Lock()
			store(payload)
			mu.Unlock()
		})
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
		log.Printf("web: subscribed to MQTT topic %s", topic)
		return nil
	}

	if err := subscribe(cfg.TopicStage, func(p []byte) { lastStage = p }); err != nil {
		return err
	}
	if err := subscribe(cfg.TopicFingers, func(p []byte) { lastFingers = p }); err != nil {
		return err
	}
	if err := subscribe(cfg.TopicDetection, func(p []byte) { lastDetection = p }); err != nil {
		return err
	}
	if err := subscribe(cfg.TopicGPSPosition, func(p []byte) { lastGPSPos = p }); err != nil {
		return err
	}
	if err := subscribe(cfg.TopicGPSVelocity, func(p []byte) { lastGPSVel = p }); err != nil {
		return err
	}
	if err := subscribe(cfg.TopicGPSQuality, func(p []byte) { lastGPSQuality = p }); err != nil {
		return err
	}

	calToken := client.Subscribe(cfg.TopicCalibration, 0, func(_ mqtt.Client, msg mqtt.Message) {
		hub.Update(msg.Payload())
	})
	calToken.Wait()
	if calToken.Error() != nil {
		return calToken.Error()
	}
	log.Printf("web: subscribed to MQTT topic %s", cfg.TopicCalibration)

	serveLatest := func(get func() []byte, notYetMsg string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			mu.RLock()
			payload := get()
			mu.RUnlock()

			if payload == nil {
				http.Error(w, notYetMsg, http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			if _, err := w.Write(payload); err != nil {
				log.Printf("web: response write error: %v", err)
			}
		}
	}

	http.HandleFunc("/api/stage", serveLatest(func() []byte { return lastStage }, "no stage data yet"))
	http.HandleFunc("/api/fingers", serveLatest(func() []byte { return lastFingers }, "no finger position data yet"))
	http.HandleFunc("/api/detection", serveLatest(func() []byte { return lastDetection }, "no detection data yet"))
	http.HandleFunc("/api/gps/position", serveLatest(func() []byte { return lastGPSPos }, "no gps position data yet"))
	http.HandleFunc("/api/gps/velocity", serveLatest(func() []byte { return lastGPSVel }, "no gps velocity data yet"))
	http.HandleFunc("/api/gps/quality", serveLatest(func() []byte { return lastGPSQuality }, "no gps quality data yet"))

	http.HandleFunc("/api/calibration/ws", hub.HandleCalibrationWS)

	fs := http.FileServer(http.Dir("web"))
	http.Handle("/", fs)

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web: listening on %s", addr)
	return http.ListenAndServe(addr, nil)
}

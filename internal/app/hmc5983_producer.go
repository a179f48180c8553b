// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/hmc5983"
	"periph.io/x/host/v3"

	"github.com/wristcuff/fingertrace/internal/config"
)

// hmcPayload is the JSON schema published for each HMC5983 reading. Values
// are scaled by 10 for one decimal of precision in an int16 LSB, matching
// the wrist IMU's own magnetometer convention.
type hmcPayload struct {
	Mx   int16   `json:"mx"`
	My   int16   `json:"my"`
	Mz   int16   `json:"mz"`
	Norm float64 `json:"norm"`
	Time string  `json:"time"`
}

// RunHMC5983Producer reads an external HMC5983 magnetometer mounted apart
// from the wrist IMU and publishes readings independently, so a calibration
// session can cross-check the wrist IMU's own magnetometer against a
// second sensor unaffected by the wrist's own hard-iron sources.
func RunHMC5983Producer() error {
	cfg := config.Get()

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("hmc: periph host init: %w", err)
	}

	bus, err := i2creg.Open(fmt.Sprintf("%d", cfg.HMCI2CBus))
	if err != nil {
		return fmt.Errorf("hmc: i2c open on bus %d: %w", cfg.HMCI2CBus, err)
	}
	defer bus.Close()

	dev, err := hmc5983.New(bus, hmc5983.Opts{
		Addr:       cfg.HMCI2CAddr,
		ODRHz:      cfg.HMCODRHz,
		AvgSamples: cfg.HMCAvgSamples,
		GainCode:   cfg.HMCGainCode,
		Mode:       cfg.HMCMode,
	})
	if err != nil {
		return fmt.Errorf("hmc: device init: %w", err)
	}
	idA, idB, idC, _ := dev.ID()
	fmt.Printf("hmc: ID=%q %q %q (addr=0x%X)\n", idA, idB, idC, cfg.HMCI2CAddr)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDHMC)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	fmt.Println("hmc: producer started")

	interval := time.Duration(cfg.HMCSampleInterval) * time.Millisecond

	for {
		x, y, z, err := dev.Sense()
		if err != nil {
			fmt.Printf("hmc: read error: %v\n", err)
			time.Sleep(interval)
			continue
		}

		mx := float64(x) / 10.0
		my := float64(y) / 10.0
		mz := float64(z) / 10.0
		norm := math.Sqrt(mx*mx + my*my + mz*mz)

		payload := hmcPayload{Mx: x, My: y, Mz: z, Norm: norm, Time: time.Now().UTC().Format(time.RFC3339)}
		b, err := json.Marshal(payload)
		if err != nil {
			fmt.Printf("hmc: marshal error: %v\n", err)
			time.Sleep(interval)
			continue
		}
		if token := client.Publish(cfg.TopicMagHMC, 0, false, b); token.Wait() && token.Error() != nil {
			fmt.Printf("hmc: publish error: %v\n", token.Error())
		}

		time.Sleep(interval)
	}
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/wristcuff/fingertrace/internal/config"
	"github.com/wristcuff/fingertrace/internal/pipeline"
)

// displayData holds the latest telemetry this process needs to render.
type displayData struct {
	mu sync.RWMutex

	stage      pipeline.Stage
	haveStage  bool
}

// RunDisplay drives the single wrist-mounted OLED, rendering orientation
// and magnet-detection status from the pipeline's Stage telemetry.
func RunDisplay() error {
	cfg := config.Get()

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, cfg.DisplayI2CAddr, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: initialized at 0x%02X", cfg.DisplayI2CAddr)

	if err := showSplash(dev); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	data := &displayData{}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDDisplay)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("display: connected to MQTT broker at %s", cfg.MQTTBroker)

	stageToken := client.Subscribe(cfg.TopicStage, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s pipeline.Stage
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("display: stage unmarshal error: %v", err)
			return
		}
		data.mu.Lock()
		data.stage = s
		data.haveStage = true
		data.mu.Unlock()
	})
	stageToken.Wait()
	if stageToken.Error() != nil {
		return stageToken.Error()
	}
	log.Printf("display: subscribed to %s", cfg.TopicStage)

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	log.Println("display: starting update loop")

	for range ticker.C {
		data.mu.RLock()
		stage := data.stage
		haveStage := data.haveStage
		data.mu.RUnlock()

		if err := updateStageDisplay(dev, stage, haveStage); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}

	return nil
}

func blankImage() *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))
	for i := range img.Pix {
		img.Pix[i] = 0
	}
	return img
}

func updateStageDisplay(dev *ssd1306.Dev, stage pipeline.Stage, haveData bool) error {
	img := blankImage()

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	if !haveData {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte("fingertrace"))
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte("Waiting..."))
		return dev.Draw(dev.Bounds(), img, image.Point{})
	}

	drawer.Dot = fixed.P(0, 13)
	drawer.DrawBytes([]byte(fmt.Sprintf("R:%6.1f P:%5.1f", stage.Euler.Roll, stage.Euler.Pitch)))

	drawer.Dot = fixed.P(0, 26)
	drawer.DrawBytes([]byte(fmt.Sprintf("Y:%6.1f", stage.Euler.Yaw)))

	drawer.Dot = fixed.P(0, 39)
	if stage.HasMagResidual() {
		drawer.DrawBytes([]byte(fmt.Sprintf("Res:%6.1fuT", stage.ResidualMag)))
	} else {
		drawer.DrawBytes([]byte("Res: --"))
	}

	drawer.Dot = fixed.P(0, 52)
	if stage.HasDetection() {
		drawer.DrawBytes([]byte("Mag: " + stage.Detection.Status.String()))
	} else {
		drawer.DrawBytes([]byte("Mag: --"))
	}

	return dev.Draw(dev.Bounds(), img, image.Point{})
}

func showSplash(dev *ssd1306.Dev) error {
	img := blankImage()

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	drawer.Dot = fixed.P(10, 26)
	drawer.DrawBytes([]byte("fingertrace"))

	drawer.Dot = fixed.P(5, 43)
	drawer.DrawBytes([]byte("acquiring"))

	drawer.Dot = fixed.P(15, 56)
	drawer.DrawBytes([]byte("orientation"))

	return dev.Draw(dev.Bounds(), img, image.Point{})
}

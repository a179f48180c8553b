package app

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/wristcuff/fingertrace/internal/config"
	"github.com/wristcuff/fingertrace/internal/geomag"
	"github.com/wristcuff/fingertrace/internal/imu"
	"github.com/wristcuff/fingertrace/internal/particle"
	"github.com/wristcuff/fingertrace/internal/pipeline"
	"github.com/wristcuff/fingertrace/internal/sensors"
)

// RunProducer reads the wrist IMU, drives it through the telemetry
// pipeline and the fingertip particle filter, and publishes both the
// per-sample stage and the finger position estimate to MQTT.
func RunProducer() error {
	log.Println("starting fingertrace producer")

	cfg := config.Get()

	imuManager := sensors.GetIMUManager()
	if err := imuManager.Init(); err != nil {
		return err
	}

	p := pipeline.New(pipelineConfigFromApp(cfg))
	if blob, err := os.ReadFile(cfg.CalibrationFilePath); err == nil {
		if err := p.LoadCalibration(blob); err != nil {
			log.Printf("producer: calibration load failed, starting fresh: %v", err)
		} else {
			log.Printf("producer: loaded calibration from %s", cfg.CalibrationFilePath)
		}
	}
	p.SaveFn = func(blob []byte) {
		if err := os.WriteFile(cfg.CalibrationFilePath, blob, 0644); err != nil {
			log.Printf("producer: calibration save failed: %v", err)
		}
	}

	dipoles := particle.DefaultDipoles()
	pf := particle.New(particle.Config{
		NumParticles:        cfg.ParticleCount,
		PositionNoiseMM:     cfg.ParticlePositionNoiseMM,
		VelocityNoiseMMS:    cfg.ParticleVelocityNoiseMMS,
		ResampleThreshold:   cfg.ParticleResampleThreshold,
		MeasurementSigmaUT:  cfg.ParticleMeasurementSigma,
	}, dipoles, 1)
	extended := particle.ExtendedHandPose()
	flexed := particle.FlexedHandPose()
	pf.Initialize(extended)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDProducer)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("MQTT connect error: %v", token.Error())
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Println("producer: connected to MQTT, starting publish loop")

	// The GPS producer republishes a geomag.Reference derived from the
	// fix's latitude whenever it gets a valid fix (internal/app/
	// gps_producer.go); track the latest one here and apply it between
	// ticks so stage 4/5's Earth-field expectation tracks the wearer's
	// actual location instead of staying pinned to the session default.
	var refMu sync.Mutex
	var pendingRef *geomag.Reference
	if token := client.Subscribe(cfg.TopicGPSReference, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var ref geomag.Reference
		if err := json.Unmarshal(msg.Payload(), &ref); err != nil {
			log.Printf("producer: geomag reference unmarshal error: %v", err)
			return
		}
		refMu.Lock()
		pendingRef = &ref
		refMu.Unlock()
	}); token.Wait() && token.Error() != nil {
		log.Printf("producer: MQTT subscribe error (%s): %v", cfg.TopicGPSReference, token.Error())
	}

	tickCounter := 0
	logInterval := cfg.ConsoleLogInterval / cfg.IMUSampleInterval
	if logInterval <= 0 {
		logInterval = 1
	}

	ticker := time.NewTicker(time.Duration(cfg.IMUSampleInterval) * time.Millisecond)
	defer ticker.Stop()

	var lastDt float64 = 1.0 / cfg.PipelineSampleFreqHz

	for range ticker.C {
		tickCounter++

		refMu.Lock()
		ref := pendingRef
		pendingRef = nil
		refMu.Unlock()
		if ref != nil {
			p.SetGeomagneticReference(*ref)
		}

		raw, err := imuManager.ReadRaw()
		if err != nil {
			log.Printf("producer: IMU read error: %v", err)
			continue
		}

		stage, err := p.Process(raw)
		if err != nil {
			log.Printf("producer: pipeline error: %v", err)
			continue
		}
		if stage.DtS > 0 {
			lastDt = stage.DtS
		}

		if payload, err := json.Marshal(stage); err != nil {
			log.Printf("producer: stage marshal error: %v", err)
		} else if token := client.Publish(cfg.TopicStage, 0, false, payload); token.Wait() && token.Error() != nil {
			log.Printf("producer: MQTT publish error (stage): %v", token.Error())
		}

		wire := imu.EncodeFrame(raw, 0)
		if token := client.Publish(cfg.TopicStageWire, 0, false, wire); token.Wait() && token.Error() != nil {
			log.Printf("producer: MQTT publish error (stage/wire): %v", token.Error())
		}

		if payload, err := json.Marshal(stage.Detection); err == nil {
			client.Publish(cfg.TopicDetection, 0, false, payload)
		}
		if payload, err := json.Marshal(stage.Calibration); err == nil {
			client.Publish(cfg.TopicCalibration, 0, false, payload)
		}

		// Fingertip localization only runs once the magnet detector sees
		// something worth tracking — running the particle filter against
		// pure sensor noise wastes cycles and drifts the estimate.
		if stage.HasDetection() && stage.Detection.Status > 0 {
			pf.Predict(lastDt)
			pf.Update(particle.Vector3{X: stage.FilteredResidual.X, Y: stage.FilteredResidual.Y, Z: stage.FilteredResidual.Z})
			estimate := pf.Estimate()

			var fingers [5]fingerState
			for i, pos := range estimate {
				fingers[i] = fingerState{
					Position: pos,
					Flexion:  particle.FlexionFraction(pos, extended[i], flexed[i]),
				}
			}
			if payload, err := json.Marshal(fingers); err == nil {
				client.Publish(cfg.TopicFingers, 0, false, payload)
			}
		}

		if tickCounter >= logInterval {
			tickCounter = 0
			log.Printf("orientation R=%.2f P=%.2f Y=%.2f | residual=%.1fuT | detect=%v",
				stage.Euler.Roll, stage.Euler.Pitch, stage.Euler.Yaw, stage.ResidualMag, stage.Detection.Status)
		}
	}
	return nil
}

func pipelineConfigFromApp(cfg *config.Config) pipeline.Config {
	return pipeline.Config{
		SampleFreqHz:          cfg.PipelineSampleFreqHz,
		MadgwickBeta:          cfg.PipelineMadgwickBeta,
		MadgwickUntrustedBeta: cfg.PipelineMadgwickUntrustedBeta,
		MadgwickBiasAlpha:     cfg.PipelineMadgwickBiasAlpha,
		MagTrust:              cfg.PipelineMagTrust,
		MotionWindow:          cfg.PipelineMotionWindow,
		MotionAccelStdLSB:     cfg.PipelineMotionAccelStdLSB,
		MotionGyroStdLSB:      cfg.PipelineMotionGyroStdLSB,
		BiasCalibratedSamples: cfg.PipelineBiasCalibratedSamples,
		KalmanQ:               cfg.PipelineKalmanQ,
		KalmanR:               cfg.PipelineKalmanR,
		MinStationarySamples:  cfg.PipelineMinStationarySamples,
		GeomagneticReference:  geomag.Default,
	}
}

// fingerState is the per-finger payload published to TopicFingers: the
// particle filter's position estimate plus a continuous flexion fraction
// derived from where that position falls between the default extended and
// flexed hand-geometry references (spec.md §3).
type fingerState struct {
	Position particle.Vector3
	Flexion  float64
}

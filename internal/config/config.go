// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker          string
	MQTTClientIDProducer string
	MQTTClientIDGPS      string
	MQTTClientIDConsole  string
	MQTTClientIDWeb      string
	MQTTClientIDDisplay  string

	// Topics
	TopicStage        string // telemetry stage updates, JSON
	TopicStageWire    string // raw sample of each update, 28-byte binary wire frame
	TopicFingers      string // particle filter finger position estimates
	TopicDetection    string // magnet detector status transitions
	TopicCalibration  string // magnetometer calibration state
	TopicGPSPosition  string
	TopicGPSVelocity  string
	TopicGPSQuality   string
	TopicGPSReference string // derived geomagnetic reference, republished on every fix

	// Wrist IMU hardware
	IMUSPIDevice string
	IMUCSPin     string

	// IMU sensor ranges
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange byte

	IMUDLPFConfig    byte // Digital Low Pass Filter configuration (0-7)
	IMUSampleRateDiv byte // Sample rate divider (output rate = internal rate / (1 + div))
	IMUAccelDLPF     byte // Accelerometer DLPF configuration (0-7)

	// GPS (position/velocity/quality topics and the latitude-derived
	// geomagnetic reference)
	GPSSerialPort string
	GPSBaudRate   int

	// External HMC5983 magnetometer, used as an independent cross-check
	// against the wrist IMU's own magnetometer during calibration.
	MQTTClientIDHMC   string
	TopicMagHMC       string
	HMCI2CBus         int
	HMCI2CAddr        uint16
	HMCODRHz          int
	HMCAvgSamples     int
	HMCGainCode       int
	HMCMode           string
	HMCSampleInterval int // milliseconds

	// Timing
	IMUSampleInterval  int // milliseconds
	ConsoleLogInterval int // milliseconds

	// Web server
	WebServerPort int

	// Display
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int // milliseconds

	// Pipeline tuning (spec.md §6 defaults; overridable per-deployment)
	PipelineSampleFreqHz          float64
	PipelineMadgwickBeta          float64
	PipelineMadgwickUntrustedBeta float64
	PipelineMadgwickBiasAlpha     float64
	PipelineMagTrust              float64
	PipelineMotionWindow          int
	PipelineMotionAccelStdLSB     float64
	PipelineMotionGyroStdLSB      float64
	PipelineBiasCalibratedSamples int
	PipelineKalmanQ               float64
	PipelineKalmanR               float64
	PipelineMinStationarySamples  int

	// Particle filter tuning (spec.md §4.9)
	ParticleCount             int
	ParticlePositionNoiseMM   float64
	ParticleVelocityNoiseMMS  float64
	ParticleResampleThreshold float64
	ParticleMeasurementSigma  float64

	// Calibration persistence
	CalibrationFilePath string
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := defaults()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with the pipeline and particle
// filter defaults from spec.md §6/§4.9, so a config file only needs to
// override what differs from a stock deployment.
func defaults() *Config {
	return &Config{
		PipelineSampleFreqHz:          26,
		PipelineMadgwickBeta:          0.05,
		PipelineMadgwickUntrustedBeta: 0.1,
		PipelineMadgwickBiasAlpha:     0.2,
		PipelineMagTrust:              1.0,
		PipelineMotionWindow:          10,
		PipelineMotionAccelStdLSB:     2000,
		PipelineMotionGyroStdLSB:      500,
		PipelineBiasCalibratedSamples: 50,
		PipelineKalmanQ:               0.01,
		PipelineKalmanR:               1.0,
		PipelineMinStationarySamples:  50,

		ParticleCount:             500,
		ParticlePositionNoiseMM:   2,
		ParticleVelocityNoiseMMS:  5,
		ParticleResampleThreshold: 0.5,
		ParticleMeasurementSigma:  10,

		CalibrationFilePath: "fingertrace_magcal.json",

		HMCI2CBus:         1,
		HMCI2CAddr:        0x1E,
		HMCODRHz:          15,
		HMCAvgSamples:     1,
		HMCMode:           "continuous",
		HMCSampleInterval: 100,
	}
}

func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_GPS":
		c.MQTTClientIDGPS = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_STAGE":
		c.TopicStage = value
	case "TOPIC_STAGE_WIRE":
		c.TopicStageWire = value
	case "TOPIC_FINGERS":
		c.TopicFingers = value
	case "TOPIC_DETECTION":
		c.TopicDetection = value
	case "TOPIC_CALIBRATION":
		c.TopicCalibration = value
	case "TOPIC_GPS_POSITION":
		c.TopicGPSPosition = value
	case "TOPIC_GPS_VELOCITY":
		c.TopicGPSVelocity = value
	case "TOPIC_GPS_QUALITY":
		c.TopicGPSQuality = value
	case "TOPIC_GPS_REFERENCE":
		c.TopicGPSReference = value

	// IMU hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value

	case "IMU_ACCEL_RANGE":
		v, err := parseRanged(value, 0, 3, "IMU_ACCEL_RANGE")
		if err != nil {
			return err
		}
		c.IMUAccelRange = byte(v)
	case "IMU_GYRO_RANGE":
		v, err := parseRanged(value, 0, 3, "IMU_GYRO_RANGE")
		if err != nil {
			return err
		}
		c.IMUGyroRange = byte(v)
	case "IMU_DLPF_CFG":
		v, err := parseRanged(value, 0, 7, "IMU_DLPF_CFG")
		if err != nil {
			return err
		}
		c.IMUDLPFConfig = byte(v)
	case "IMU_SMPLRT_DIV":
		v, err := parseRanged(value, 0, 255, "IMU_SMPLRT_DIV")
		if err != nil {
			return err
		}
		c.IMUSampleRateDiv = byte(v)
	case "IMU_ACCEL_DLPF":
		v, err := parseRanged(value, 0, 7, "IMU_ACCEL_DLPF")
		if err != nil {
			return err
		}
		c.IMUAccelDLPF = byte(v)

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid GPS_BAUD_RATE %q: %w", value, err)
		}
		c.GPSBaudRate = rate

	// External HMC5983 cross-check magnetometer
	case "MQTT_CLIENT_ID_HMC":
		c.MQTTClientIDHMC = value
	case "TOPIC_MAG_HMC":
		c.TopicMagHMC = value
	case "HMC_I2C_BUS":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid HMC_I2C_BUS %q: %w", value, err)
		}
		c.HMCI2CBus = v
	case "HMC_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid HMC_I2C_ADDR %q: %w", value, err)
		}
		c.HMCI2CAddr = uint16(addr)
	case "HMC_ODR_HZ":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid HMC_ODR_HZ %q: %w", value, err)
		}
		c.HMCODRHz = v
	case "HMC_AVG_SAMPLES":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid HMC_AVG_SAMPLES %q: %w", value, err)
		}
		c.HMCAvgSamples = v
	case "HMC_GAIN_CODE":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid HMC_GAIN_CODE %q: %w", value, err)
		}
		c.HMCGainCode = v
	case "HMC_MODE":
		c.HMCMode = value
	case "HMC_SAMPLE_INTERVAL":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid HMC_SAMPLE_INTERVAL %q: %w", value, err)
		}
		c.HMCSampleInterval = v

	// Timing
	case "IMU_SAMPLE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_SAMPLE_INTERVAL %q: %w", value, err)
		}
		c.IMUSampleInterval = interval
	case "CONSOLE_LOG_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CONSOLE_LOG_INTERVAL %q: %w", value, err)
		}
		c.ConsoleLogInterval = interval

	// Web server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	// Display
	case "DISPLAY_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayUpdateInterval = interval

	// Pipeline tuning
	case "PIPELINE_SAMPLE_FREQ_HZ":
		return setFloat(&c.PipelineSampleFreqHz, key, value)
	case "PIPELINE_MADGWICK_BETA":
		return setFloat(&c.PipelineMadgwickBeta, key, value)
	case "PIPELINE_MADGWICK_UNTRUSTED_BETA":
		return setFloat(&c.PipelineMadgwickUntrustedBeta, key, value)
	case "PIPELINE_MADGWICK_BIAS_ALPHA":
		return setFloat(&c.PipelineMadgwickBiasAlpha, key, value)
	case "PIPELINE_MAG_TRUST":
		return setFloat(&c.PipelineMagTrust, key, value)
	case "PIPELINE_MOTION_WINDOW":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		c.PipelineMotionWindow = v
	case "PIPELINE_MOTION_ACCEL_STD_LSB":
		return setFloat(&c.PipelineMotionAccelStdLSB, key, value)
	case "PIPELINE_MOTION_GYRO_STD_LSB":
		return setFloat(&c.PipelineMotionGyroStdLSB, key, value)
	case "PIPELINE_BIAS_CALIBRATED_SAMPLES":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		c.PipelineBiasCalibratedSamples = v
	case "PIPELINE_KALMAN_Q":
		return setFloat(&c.PipelineKalmanQ, key, value)
	case "PIPELINE_KALMAN_R":
		return setFloat(&c.PipelineKalmanR, key, value)
	case "PIPELINE_MIN_STATIONARY_SAMPLES":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		c.PipelineMinStationarySamples = v

	// Particle filter tuning
	case "PARTICLE_COUNT":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		c.ParticleCount = v
	case "PARTICLE_POSITION_NOISE_MM":
		return setFloat(&c.ParticlePositionNoiseMM, key, value)
	case "PARTICLE_VELOCITY_NOISE_MMS":
		return setFloat(&c.ParticleVelocityNoiseMMS, key, value)
	case "PARTICLE_RESAMPLE_THRESHOLD":
		return setFloat(&c.ParticleResampleThreshold, key, value)
	case "PARTICLE_MEASUREMENT_SIGMA":
		return setFloat(&c.ParticleMeasurementSigma, key, value)

	case "CALIBRATION_FILE_PATH":
		c.CalibrationFilePath = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

func setFloat(dst *float64, key, value string) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = v
	return nil
}

func parseRanged(value string, min, max int, key string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%s must be %d-%d, got %d", key, min, max, v)
	}
	return v, nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.IMUSPIDevice == "" {
		return fmt.Errorf("IMU_SPI_DEVICE is required")
	}
	if c.IMUSampleInterval == 0 {
		return fmt.Errorf("IMU_SAMPLE_INTERVAL is required")
	}
	if c.ConsoleLogInterval == 0 {
		return fmt.Errorf("CONSOLE_LOG_INTERVAL is required")
	}
	if c.PipelineSampleFreqHz <= 0 {
		return fmt.Errorf("PIPELINE_SAMPLE_FREQ_HZ must be positive")
	}
	if c.ParticleCount <= 0 {
		return fmt.Errorf("PARTICLE_COUNT must be positive")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}

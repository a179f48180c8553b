// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"log"
	"time"

	"github.com/wristcuff/fingertrace/internal/config"
	"github.com/wristcuff/fingertrace/internal/imu"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"
)

type wristIMU struct {
	dev      *mpu9250.MPU9250
	magCal   *mpu9250.MagCal
	magReady bool
	start    time.Time
}

// NewWristIMU initializes the wrist-worn MPU9250 over SPI.
func NewWristIMU() (imu.RawSource, error) {
	cfg := config.Get()

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("wrist IMU: periph host init: %w", err)
	}

	cs := gpioreg.ByName(cfg.IMUCSPin)
	if cs == nil {
		return nil, fmt.Errorf("wrist IMU: CS pin %q not found", cfg.IMUCSPin)
	}

	tr, err := mpu9250.NewSpiTransport(cfg.IMUSPIDevice, cs)
	if err != nil {
		return nil, fmt.Errorf("wrist IMU: SPI transport (%s): %w", cfg.IMUSPIDevice, err)
	}

	dev, err := mpu9250.New(tr)
	if err != nil {
		return nil, fmt.Errorf("wrist IMU: device creation: %w", err)
	}

	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("wrist IMU: initialization: %w", err)
	}

	if err := dev.SetAccelRange(cfg.IMUAccelRange); err != nil {
		return nil, fmt.Errorf("wrist IMU: set accel range: %w", err)
	}
	log.Printf("wrist IMU: accelerometer range set to %d (±%dg)", cfg.IMUAccelRange, []int{2, 4, 8, 16}[cfg.IMUAccelRange])

	if err := dev.SetGyroRange(cfg.IMUGyroRange); err != nil {
		return nil, fmt.Errorf("wrist IMU: set gyro range: %w", err)
	}
	log.Printf("wrist IMU: gyroscope range set to %d (±%d°/s)", cfg.IMUGyroRange, []int{250, 500, 1000, 2000}[cfg.IMUGyroRange])

	if err := dev.SetDLPFMode(cfg.IMUDLPFConfig); err != nil {
		return nil, fmt.Errorf("wrist IMU: set DLPF config: %w", err)
	}
	if err := dev.SetSampleRateDivider(cfg.IMUSampleRateDiv); err != nil {
		return nil, fmt.Errorf("wrist IMU: set sample rate divider: %w", err)
	}
	internalRate := 1000
	if cfg.IMUDLPFConfig == 7 {
		internalRate = 8000
	}
	outputRate := internalRate / (1 + int(cfg.IMUSampleRateDiv))
	log.Printf("wrist IMU: sample rate divider set to %d (output rate: %d Hz)", cfg.IMUSampleRateDiv, outputRate)

	if err := dev.SetAccelDLPF(cfg.IMUAccelDLPF); err != nil {
		return nil, fmt.Errorf("wrist IMU: set accel DLPF: %w", err)
	}

	if testResult, err := dev.SelfTest(); err != nil {
		log.Printf("Warning: wrist IMU self-test failed: %v", err)
	} else {
		log.Printf("wrist IMU self-test passed: accel dev X:%.2f%% Y:%.2f%% Z:%.2f%%, gyro dev X:%.2f%% Y:%.2f%% Z:%.2f%%",
			testResult.AccelDeviation.X, testResult.AccelDeviation.Y, testResult.AccelDeviation.Z,
			testResult.GyroDeviation.X, testResult.GyroDeviation.Y, testResult.GyroDeviation.Z)
	}

	if err := dev.Calibrate(); err != nil {
		log.Printf("Warning: wrist IMU calibration failed: %v", err)
	} else {
		log.Println("wrist IMU calibration complete")
	}

	magCal, err := dev.InitMag()
	if err != nil {
		log.Printf("wrist IMU: magnetometer initialization failed (will continue without mag): %v", err)
		return &wristIMU{dev: dev, start: time.Now()}, nil
	}

	log.Println("wrist IMU: magnetometer initialized successfully")
	return &wristIMU{dev: dev, magCal: magCal, magReady: true, start: time.Now()}, nil
}

// ReadRaw reads accelerometer, gyroscope, and magnetometer data from the
// wrist IMU and stamps it with a millisecond-resolution timestamp relative
// to device start, the form spec.md's wire frame carries.
func (s *wristIMU) ReadRaw() (imu.RawSample, error) {
	ax, err := s.dev.GetAccelerationX()
	if err != nil {
		return imu.RawSample{}, fmt.Errorf("wrist IMU accel X: %w", err)
	}
	ay, err := s.dev.GetAccelerationY()
	if err != nil {
		return imu.RawSample{}, fmt.Errorf("wrist IMU accel Y: %w", err)
	}
	az, err := s.dev.GetAccelerationZ()
	if err != nil {
		return imu.RawSample{}, fmt.Errorf("wrist IMU accel Z: %w", err)
	}

	gx, err := s.dev.GetRotationX()
	if err != nil {
		return imu.RawSample{}, fmt.Errorf("wrist IMU gyro X: %w", err)
	}
	gy, err := s.dev.GetRotationY()
	if err != nil {
		return imu.RawSample{}, fmt.Errorf("wrist IMU gyro Y: %w", err)
	}
	gz, err := s.dev.GetRotationZ()
	if err != nil {
		return imu.RawSample{}, fmt.Errorf("wrist IMU gyro Z: %w", err)
	}

	var mx, my, mz int16
	if s.magReady {
		mag, err := s.dev.ReadMag(s.magCal)
		if err != nil {
			log.Printf("wrist IMU: magnetometer read error: %v", err)
		} else if mag.Overflow {
			log.Println("wrist IMU: magnetometer overflow detected")
		} else {
			// Scaled by 10 for one decimal of precision in an int16 LSB.
			mx = int16(mag.X * 10)
			my = int16(mag.Y * 10)
			mz = int16(mag.Z * 10)
		}
	}

	return imu.RawSample{
		Ax: ax, Ay: ay, Az: az,
		Gx: gx, Gy: gy, Gz: gz,
		Mx: mx, My: my, Mz: mz,
		TimestampMs: uint32(time.Since(s.start).Milliseconds()),
	}, nil
}

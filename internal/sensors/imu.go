// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"sync"

	"github.com/wristcuff/fingertrace/internal/imu"
)

// IMUManager owns the single persistent wrist IMU instance. It initializes
// the hardware once and provides thread-safe access across producer,
// console, and display consumers.
type IMUManager struct {
	dev         imu.RawSource
	mu          sync.RWMutex
	initialized bool
}

var (
	defaultManager *IMUManager
	managerOnce    sync.Once
)

// GetIMUManager returns the singleton IMU manager instance.
func GetIMUManager() *IMUManager {
	managerOnce.Do(func() {
		defaultManager = &IMUManager{}
	})
	return defaultManager
}

// Init initializes the wrist IMU sensor. Should be called once at
// application startup.
func (m *IMUManager) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}

	dev, err := NewWristIMU()
	if err != nil {
		return fmt.Errorf("wrist IMU initialization failed: %w", err)
	}

	m.dev = dev
	m.initialized = true
	return nil
}

// ReadRaw reads one raw 9-DOF sample from the wrist IMU.
func (m *IMUManager) ReadRaw() (imu.RawSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		return imu.RawSample{}, fmt.Errorf("IMU manager not initialized")
	}
	return m.dev.ReadRaw()
}

// IsAvailable returns true if the wrist IMU is initialized and available.
func (m *IMUManager) IsAvailable() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized && m.dev != nil
}

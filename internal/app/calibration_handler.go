// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// calibrationHub fans the latest magnetometer calibration state (spec.md
// §4.5, published to TopicCalibration by the producer) out to any number
// of connected dashboard websocket clients. Calibration is automatic and
// online, so there is no session state machine to drive here, only the
// most recent snapshot to relay.
type calibrationHub struct {
	mu      sync.RWMutex
	latest  []byte
	clients map[*websocket.Conn]bool
}

func newCalibrationHub() *calibrationHub {
	return &calibrationHub{clients: make(map[*websocket.Conn]bool)}
}

// Update records a fresh calibration payload and pushes it to every
// connected client, dropping any connection that fails to accept it.
func (h *calibrationHub) Update(payload []byte) {
	h.mu.Lock()
	h.latest = payload
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.remove(c)
			c.Close()
		}
	}
}

func (h *calibrationHub) add(c *websocket.Conn) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	return h.latest
}

func (h *calibrationHub) remove(c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// HandleCalibrationWS upgrades the connection and streams calibration
// snapshots as they arrive. The client sends nothing of its own; this is
// a read-only status feed, not the old guided calibration wizard.
func (h *calibrationHub) HandleCalibrationWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("calibration: websocket upgrade error: %v", err)
		return
	}

	if latest := h.add(conn); latest != nil {
		if err := conn.WriteMessage(websocket.TextMessage, latest); err != nil {
			h.remove(conn)
			conn.Close()
			return
		}
	}

	// Drain the read side until the client disconnects; the hub has
	// nothing to accept from it.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.remove(conn)
			conn.Close()
			return
		}
	}
}

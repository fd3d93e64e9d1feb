// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/spine_trainer/internal/config"
	"github.com/relabs-tech/spine_trainer/internal/stage"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// recentEventCap bounds the in-memory event history served to new clients.
const recentEventCap = 200

// monitorHub caches the latest processed sample and recent training events
// arriving over MQTT, and relays operator commands back to the trainer.
type monitorHub struct {
	cfg    *config.Config
	client mqtt.Client

	mu     sync.RWMutex
	sample *stage.ProcessedSample
	events []stage.TrainingEvent
}

// wsUpdate is one websocket push to a browser client.
type wsUpdate struct {
	Type   string                 `json:"type"` // sample, events, error
	Sample *stage.ProcessedSample `json:"sample,omitempty"`
	Events []stage.TrainingEvent  `json:"events,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// RunMonitor serves the clinician's live view: an HTTP API plus a websocket
// that pushes processed samples at the display rate and accepts operator
// commands, all bridged over MQTT to the trainer process.
func RunMonitor() error {
	cfg := config.Get()
	if cfg.MQTTBroker == "" {
		return fmt.Errorf("monitor needs MQTT_BROKER set")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID + "-monitor").
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("monitor: connected to MQTT broker at %s", cfg.MQTTBroker)

	hub := &monitorHub{cfg: cfg, client: client}

	token := client.Subscribe(cfg.TopicProcessed, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s stage.ProcessedSample
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("monitor: sample unmarshal error: %v", err)
			return
		}
		hub.mu.Lock()
		hub.sample = &s
		hub.mu.Unlock()
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("monitor: subscribed to %s", cfg.TopicProcessed)

	token = client.Subscribe(cfg.TopicEvents, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var ev stage.TrainingEvent
		if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
			log.Printf("monitor: event unmarshal error: %v", err)
			return
		}
		hub.mu.Lock()
		hub.events = append(hub.events, ev)
		if len(hub.events) > recentEventCap {
			hub.events = hub.events[len(hub.events)-recentEventCap:]
		}
		hub.mu.Unlock()
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("monitor: subscribed to %s", cfg.TopicEvents)

	http.HandleFunc("/api/sample", hub.handleSample)
	http.HandleFunc("/api/events", hub.handleEvents)
	http.HandleFunc("/ws", hub.handleWS)
	http.Handle("/", http.FileServer(http.Dir("web")))

	addr := fmt.Sprintf(":%d", cfg.MonitorPort)
	log.Printf("monitor: listening on %s", addr)
	return http.ListenAndServe(addr, nil)
}

func (h *monitorHub) handleSample(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	sample := h.sample
	h.mu.RUnlock()

	if sample == nil {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(sample); err != nil {
		log.Printf("monitor: json encode error: %v", err)
	}
}

func (h *monitorHub) handleEvents(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	events := append([]stage.TrainingEvent(nil), h.events...)
	h.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(events); err != nil {
		log.Printf("monitor: json encode error: %v", err)
	}
}

// handleWS pushes samples at the display rate and relays commands from the
// browser to the trainer.
func (h *monitorHub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("monitor: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			var cmd Command
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			payload, err := json.Marshal(cmd)
			if err != nil {
				continue
			}
			token := h.client.Publish(h.cfg.TopicCommands, 0, false, payload)
			token.Wait()
			if token.Error() != nil {
				writeMu.Lock()
				conn.WriteJSON(wsUpdate{Type: "error", Error: token.Error().Error()})
				writeMu.Unlock()
			}
		}
	}()

	// Seed the client with recent history.
	h.mu.RLock()
	events := append([]stage.TrainingEvent(nil), h.events...)
	h.mu.RUnlock()
	writeMu.Lock()
	conn.WriteJSON(wsUpdate{Type: "events", Events: events})
	writeMu.Unlock()

	ticker := time.NewTicker(rateInterval(h.cfg.DisplayRateHz))
	defer ticker.Stop()

	var lastTS float64
	sent := false
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			h.mu.RLock()
			sample := h.sample
			h.mu.RUnlock()
			if sample == nil || (sent && sample.Timestamp == lastTS) {
				continue
			}
			lastTS = sample.Timestamp
			sent = true
			writeMu.Lock()
			err := conn.WriteJSON(wsUpdate{Type: "sample", Sample: sample})
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package app assembles the configured components into runnable programs.
package app

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/spine_trainer/internal/config"
	"github.com/relabs-tech/spine_trainer/internal/fanout"
	"github.com/relabs-tech/spine_trainer/internal/session"
	"github.com/relabs-tech/spine_trainer/internal/telemetry"
)

// RunTrainer runs the full pipeline: acquisition, filtering, stage
// evaluation, fan-out to UDP telemetry and (when a broker is configured) to
// MQTT for the monitor. Blocks until SIGINT/SIGTERM, then drains and exports.
func RunTrainer() error {
	cfg := config.Get()

	s, err := session.New(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sender := telemetry.NewSender(cfg.UDPHost, cfg.UDPPort, cfg.DoctorMode)
	defer sender.Close()

	consumers := []fanout.Consumer{{
		Name:     "telemetry",
		Interval: rateInterval(cfg.TelemetryRateHz),
		Sink:     sender,
	}}

	if cfg.MQTTBroker != "" {
		bridge, err := newMQTTBridge(cfg, s)
		if err != nil {
			// The broker being down must not keep a patient from training.
			log.Printf("trainer: MQTT bridge unavailable: %v", err)
		} else {
			defer bridge.Close()
			s.OnEvent(bridge.PublishEvent)
			s.OnAlert(bridge.PublishAlert)
			consumers = append(consumers, fanout.Consumer{
				Name:     "monitor",
				Interval: rateInterval(cfg.DisplayRateHz),
				Sink:     fanout.SinkFunc(bridge.PublishSample),
			})
		}
	}

	sched := fanout.NewScheduler(s.Mailbox(), consumers...)
	go sched.Run(ctx)

	if err := s.Run(ctx); err != nil {
		return err
	}

	res, err := s.Export()
	if err != nil {
		return err
	}
	sent, dropped := sender.Stats()
	log.Printf("trainer: done, session %s (%d telemetry packets sent, %d dropped)",
		res.Dir, sent, dropped)
	return nil
}

func rateInterval(hz float64) time.Duration {
	if hz <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / hz)
}

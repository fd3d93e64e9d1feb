// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/spine_trainer/internal/config"
	"github.com/relabs-tech/spine_trainer/internal/session"
	"github.com/relabs-tech/spine_trainer/internal/stage"
)

// mqttBridge connects the trainer to the clinic broker: processed samples and
// training events go out, operator commands come in. Everything here is
// optional; the trainer runs fine with no broker configured.
type mqttBridge struct {
	client mqtt.Client
	cfg    *config.Config
}

func newMQTTBridge(cfg *config.Config, s *session.Session) (*mqttBridge, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID + "-trainer").
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	log.Printf("trainer: connected to MQTT broker at %s", cfg.MQTTBroker)

	b := &mqttBridge{client: client, cfg: cfg}

	token := client.Subscribe(cfg.TopicCommands, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var cmd Command
		if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
			log.Printf("trainer: command unmarshal error: %v", err)
			return
		}
		if err := applyCommand(s, cmd); err != nil {
			log.Printf("trainer: command %s: %v", cmd.Action, err)
		}
	})
	token.Wait()
	if token.Error() != nil {
		client.Disconnect(250)
		return nil, token.Error()
	}
	log.Printf("trainer: subscribed to %s", cfg.TopicCommands)
	return b, nil
}

// publish marshals and fires; delivery problems are logged, never propagated
// into the pipeline.
func (b *mqttBridge) publish(topic string, v any, retain bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("trainer: marshal for %s: %v", topic, err)
		return
	}
	token := b.client.Publish(topic, 0, retain, payload)
	token.Wait()
	if token.Error() != nil {
		log.Printf("trainer: publish to %s: %v", topic, token.Error())
	}
}

// PublishSample is the display-rate fan-out sink.
func (b *mqttBridge) PublishSample(sample stage.ProcessedSample) {
	b.publish(b.cfg.TopicProcessed, sample, true)
}

func (b *mqttBridge) PublishEvent(ev stage.TrainingEvent) {
	b.publish(b.cfg.TopicEvents, ev, false)
}

func (b *mqttBridge) PublishAlert(a stage.Alert) {
	b.publish(b.cfg.TopicEvents+"/alerts", a, false)
}

func (b *mqttBridge) Close() {
	b.client.Disconnect(250)
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package acquire

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/spine_trainer/internal/frame"
)

// RadioOptions configures the MQTT bridge to the garment's radio receiver.
type RadioOptions struct {
	Broker      string
	ClientID    string
	TopicFrames string
	SensorCount int

	// PollInterval enables the pull fallback: when no frame arrives within
	// this window a poll request is published, nudging receivers that only
	// transmit on demand. Zero disables polling.
	PollInterval time.Duration

	// ErrorLogWindow rate-limits the "stream stalled" log line.
	ErrorLogWindow time.Duration
}

// RadioSource receives frames pushed over MQTT. Frames arrive as JSON on the
// frames topic; malformed payloads and wrong channel counts are dropped with
// a rate-limited log line, never treated as fatal.
type RadioSource struct {
	opts  RadioOptions
	state stateVar

	lastFrame atomic.Int64 // unix nanos of last good frame
}

// NewRadioSource validates the options and returns the source.
func NewRadioSource(opts RadioOptions) (*RadioSource, error) {
	if opts.Broker == "" {
		return nil, fmt.Errorf("radio source needs a broker address")
	}
	if opts.ErrorLogWindow <= 0 {
		opts.ErrorLogWindow = 5 * time.Second
	}
	r := &RadioSource{opts: opts}
	r.state.set(StateDisconnected)
	return r, nil
}

func (r *RadioSource) Name() string { return "radio:" + r.opts.Broker }

func (r *RadioSource) State() State { return r.state.get() }

// pollTopic is where poll requests go; receivers that push unconditionally
// simply never subscribe to it.
func (r *RadioSource) pollTopic() string { return r.opts.TopicFrames + "/poll" }

// Run connects to the broker and streams until ctx ends.
func (r *RadioSource) Run(ctx context.Context, out chan<- frame.Frame) error {
	r.state.set(StateConnecting)

	mqttOpts := mqtt.NewClientOptions().
		AddBroker(r.opts.Broker).
		SetClientID(r.opts.ClientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(mqttOpts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		r.state.set(StateError)
		return fmt.Errorf("connect to broker %s: %w", r.opts.Broker, token.Error())
	}
	defer client.Disconnect(250)
	log.Printf("acquire: connected to MQTT broker at %s", r.opts.Broker)

	badPayload := &throttle{window: r.opts.ErrorLogWindow}
	token := client.Subscribe(r.opts.TopicFrames, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var f frame.Frame
		if err := json.Unmarshal(msg.Payload(), &f); err != nil {
			if badPayload.ok() {
				log.Printf("acquire: dropping radio frame: %v", err)
			}
			return
		}
		if err := f.Validate(r.opts.SensorCount); err != nil {
			if badPayload.ok() {
				log.Printf("acquire: dropping radio frame: %v", err)
			}
			return
		}
		r.lastFrame.Store(time.Now().UnixNano())
		deliver(ctx, out, f)
	})
	token.Wait()
	if token.Error() != nil {
		r.state.set(StateError)
		return fmt.Errorf("subscribe %s: %w", r.opts.TopicFrames, token.Error())
	}
	log.Printf("acquire: subscribed to %s", r.opts.TopicFrames)
	r.state.set(StateStreaming)
	r.lastFrame.Store(time.Now().UnixNano())

	if r.opts.PollInterval > 0 {
		r.pollLoop(ctx, client)
	} else {
		<-ctx.Done()
	}
	r.state.set(StateDisconnected)
	return nil
}

// pollLoop watches for a stalled stream and publishes poll requests until
// frames flow again.
func (r *RadioSource) pollLoop(ctx context.Context, client mqtt.Client) {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()
	stalled := &throttle{window: r.opts.ErrorLogWindow}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			age := time.Since(time.Unix(0, r.lastFrame.Load()))
			if age < r.opts.PollInterval {
				continue
			}
			if stalled.ok() {
				log.Printf("acquire: no radio frame for %s, polling %s", age.Round(time.Millisecond), r.pollTopic())
			}
			token := client.Publish(r.pollTopic(), 0, false, []byte("poll"))
			token.Wait()
			if token.Error() != nil && stalled.ok() {
				log.Printf("acquire: poll publish failed: %v", token.Error())
			}
		}
	}
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/spine_trainer/internal/config"
	"github.com/relabs-tech/spine_trainer/internal/frame"
)

// RunReplay plays a recorded raw-session CSV back through the radio path: it
// publishes each frame to the frames topic with the original inter-frame
// timing, standing in for the garment. A trainer configured with SOURCE=radio
// then processes the session as if it were live.
func RunReplay(path string) error {
	cfg := config.Get()
	if cfg.MQTTBroker == "" {
		return fmt.Errorf("replay needs MQTT_BROKER set")
	}

	frames, err := readRawCSV(path)
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		return fmt.Errorf("replay file %s has no frames", path)
	}
	log.Printf("replay: loaded %d frames from %s", len(frames), path)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID + "-replay")

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("replay: connected to MQTT broker at %s", cfg.MQTTBroker)

	start := time.Now()
	base := frames[0].Timestamp
	for i, f := range frames {
		// Pace against the recording's own clock.
		due := time.Duration((f.Timestamp - base) * float64(time.Second))
		if sleep := due - time.Since(start); sleep > 0 {
			time.Sleep(sleep)
		}

		payload, err := json.Marshal(f)
		if err != nil {
			log.Printf("replay: marshal frame %d: %v", i, err)
			continue
		}
		token := client.Publish(cfg.TopicFrames, 0, false, payload)
		token.Wait()
		if token.Error() != nil {
			log.Printf("replay: publish frame %d: %v", i, token.Error())
		}
	}

	log.Printf("replay: finished, %d frames over %s", len(frames), time.Since(start).Round(time.Millisecond))
	return nil
}

// readRawCSV loads a session export: header time(s), sensor1..N, one frame
// per row.
func readRawCSV(path string) ([]frame.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("replay file %s: no header: %w", path, err)
	}
	if len(header) < 2 || strings.TrimSpace(header[0]) != "time(s)" {
		return nil, fmt.Errorf("replay file %s: not a raw session export", path)
	}

	var frames []frame.Frame
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("replay file %s: %w", path, err)
		}

		values := make([]float64, 0, len(row))
		for _, raw := range row {
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return nil, fmt.Errorf("replay file %s: field %q: %w", path, raw, err)
			}
			values = append(values, v)
		}
		frames = append(frames, frame.New(values[0], values[1:]))
	}
	return frames, nil
}

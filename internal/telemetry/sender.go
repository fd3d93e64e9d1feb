// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/relabs-tech/spine_trainer/internal/stage"
)

// reinitAfter is the consecutive-failure count that triggers a socket
// rebuild. UDP sends rarely fail, but a down interface leaves the connected
// socket permanently broken until it is redialed.
const reinitAfter = 25

const statusInterval = 10 * time.Second

// Sender ships telemetry packets to a fixed UDP destination. Delivery is
// fire and forget: a failed send is counted and the sample dropped, the
// pipeline never stalls on the network. Implements fanout.Sink via Deliver.
type Sender struct {
	addr       string
	doctorMode bool

	mu         sync.Mutex
	conn       net.Conn
	failStreak int
	sent       uint64
	dropped    uint64
	lastStatus time.Time
}

// NewSender dials the destination. A dial failure is not fatal; the sender
// starts disconnected and retries on the reinit path.
func NewSender(host string, port int, doctorMode bool) *Sender {
	s := &Sender{
		addr:       fmt.Sprintf("%s:%d", host, port),
		doctorMode: doctorMode,
		lastStatus: time.Now(),
	}
	conn, err := net.Dial("udp", s.addr)
	if err != nil {
		log.Printf("telemetry: dial %s: %v", s.addr, err)
	} else {
		s.conn = conn
	}
	return s
}

// Deliver encodes and sends one sample, dropping it on any failure.
func (s *Sender) Deliver(sample stage.ProcessedSample) {
	raw, err := json.Marshal(Encode(sample, s.doctorMode))
	if err != nil {
		log.Printf("telemetry: encode: %v", err)
		return
	}
	s.send(raw)
}

func (s *Sender) send(raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		s.redialLocked()
	}
	if s.conn != nil {
		if _, err := s.conn.Write(raw); err != nil {
			s.failStreak++
			s.dropped++
			if s.failStreak == 1 || s.failStreak%reinitAfter == 0 {
				log.Printf("telemetry: send to %s failed (%d in a row): %v", s.addr, s.failStreak, err)
			}
			if s.failStreak >= reinitAfter {
				s.redialLocked()
			}
		} else {
			s.failStreak = 0
			s.sent++
		}
	} else {
		s.dropped++
	}

	if now := time.Now(); now.Sub(s.lastStatus) >= statusInterval {
		s.lastStatus = now
		log.Printf("telemetry: %d packets sent, %d dropped, destination %s", s.sent, s.dropped, s.addr)
	}
}

func (s *Sender) redialLocked() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	conn, err := net.Dial("udp", s.addr)
	if err != nil {
		log.Printf("telemetry: redial %s: %v", s.addr, err)
		return
	}
	s.conn = conn
	s.failStreak = 0
}

// Stats reports packets sent and dropped since start.
func (s *Sender) Stats() (sent, dropped uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent, s.dropped
}

// Close releases the socket.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

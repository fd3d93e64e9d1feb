package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sort"

	"github.com/relabs-tech/spine_trainer/internal/config"
	"github.com/relabs-tech/spine_trainer/internal/telemetry"
)

// RunUDPListener binds the telemetry port and prints every packet, one line
// per datagram. Debug tool for checking what a clinician station would see.
func RunUDPListener() error {
	cfg := config.Get()

	addr := fmt.Sprintf(":%d", cfg.UDPPort)
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	defer pc.Close()
	log.Printf("udp_listener: listening on %s", addr)

	buf := make([]byte, 64*1024)
	for {
		n, from, err := pc.ReadFrom(buf)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var p telemetry.Packet
		if err := json.Unmarshal(buf[:n], &p); err != nil {
			log.Printf("udp_listener: bad packet from %s: %v", from, err)
			continue
		}

		names := make([]string, 0, len(p.StageValues))
		for name := range p.StageValues {
			names = append(names, name)
		}
		sort.Strings(names)

		line := fmt.Sprintf("[TLM] t=%8.3f type=%s curve=%6.3f", p.Timestamp, p.SpineType, p.SpineCurve)
		for _, name := range names {
			line += fmt.Sprintf("  %s=%6.3f", name, p.StageValues[name])
		}
		if p.SpineDirection != "" {
			line += "  dir=" + p.SpineDirection
		}
		fmt.Println(line)
	}
}

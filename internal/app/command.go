package app

import (
	"fmt"

	"github.com/relabs-tech/spine_trainer/internal/calib"
	"github.com/relabs-tech/spine_trainer/internal/session"
)

// Command is an operator instruction, carried as JSON over the commands MQTT
// topic and over the monitor's websocket.
type Command struct {
	Action    string `json:"action"` // arm, baseline, target, complete, topology
	Stage     string `json:"stage,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Direction string `json:"direction,omitempty"`
}

// applyCommand executes one operator command against the running session.
func applyCommand(s *session.Session, cmd Command) error {
	switch cmd.Action {
	case "arm":
		return s.ArmStage(calib.StageName(cmd.Stage))
	case "baseline":
		return s.RecordBaseline()
	case "target":
		return s.RecordTarget()
	case "complete":
		return s.CompleteStage()
	case "topology":
		kind := calib.Kind(cmd.Kind)
		direction := calib.Direction(cmd.Direction)
		if direction == "" {
			direction = calib.DefaultDirection(kind)
		}
		return s.SetTopology(kind, direction)
	default:
		return fmt.Errorf("unknown command action %q", cmd.Action)
	}
}

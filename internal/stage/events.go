package stage

import "github.com/relabs-tech/spine_trainer/internal/calib"

// EventKind names a training lifecycle event. The strings are what lands in
// the event_name column of the session events file.
type EventKind string

const (
	SessionStarted   EventKind = "session_started"
	StageArmed       EventKind = "stage_armed"
	BaselineRecorded EventKind = "baseline_recorded"
	TargetRecorded   EventKind = "target_recorded"
	StageCompleted   EventKind = "stage_completed"
	ToleranceExit    EventKind = "tolerance_exit"
	ToleranceEntry   EventKind = "tolerance_entry"
)

// Numeric codes, stable across releases so recorded files stay parseable.
const (
	CodeSessionStarted   = 1
	CodeStageArmed       = 2
	CodeBaselineRecorded = 10
	CodeTargetRecorded   = 11
	CodeStageCompleted   = 12
	CodeToleranceExit    = 20
	CodeToleranceEntry   = 21
)

var eventCodes = map[EventKind]int{
	SessionStarted:   CodeSessionStarted,
	StageArmed:       CodeStageArmed,
	BaselineRecorded: CodeBaselineRecorded,
	TargetRecorded:   CodeTargetRecorded,
	StageCompleted:   CodeStageCompleted,
	ToleranceExit:    CodeToleranceExit,
	ToleranceEntry:   CodeToleranceEntry,
}

// TrainingEvent is one row of the session events log. Sensors and Weights are
// captured for calibration events so a recorded file can later reconstruct
// the stage params; lifecycle events leave them nil.
type TrainingEvent struct {
	Time       float64         `json:"time"`
	Kind       EventKind       `json:"event_name"`
	Code       int             `json:"event_code"`
	Stage      calib.StageName `json:"stage,omitempty"`
	Sensors    []float64       `json:"sensors,omitempty"`
	Weights    []float64       `json:"weights,omitempty"`
	ErrorRange float64         `json:"error_range,omitempty"`
}

func newEvent(ts float64, kind EventKind, stage calib.StageName) TrainingEvent {
	return TrainingEvent{Time: ts, Kind: kind, Code: eventCodes[kind], Stage: stage}
}

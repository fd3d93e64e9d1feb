package calib

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// presetsFile is the on-disk layout of a calibration presets document. A
// preset carries the topology plus an explicit param list; unlike the events
// file it is authored by hand, typically by a clinician.
type presetsFile struct {
	Topology Topology     `yaml:"topology"`
	Stages   []StageParam `yaml:"stages"`
}

// LoadPresets replaces the active topology and its stage params from a YAML
// preset. Stages in the file that do not belong to the preset topology are an
// error; stages the file omits fall back to defaults.
func (m *Model) LoadPresets(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read presets file: %w", err)
	}

	var doc presetsFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("presets file %s: %w", path, err)
	}
	if err := doc.Topology.Validate(); err != nil {
		return fmt.Errorf("presets file %s: %w", path, err)
	}

	active := make(map[StageName]bool)
	for _, name := range doc.Topology.Stages() {
		active[name] = true
	}
	loaded := make(map[StageName]StageParam, len(doc.Stages))
	for _, p := range doc.Stages {
		if !active[p.Name] {
			return fmt.Errorf("presets file %s: stage %q is not valid for %s-type spine",
				path, p.Name, doc.Topology.Kind)
		}
		if p.Tolerance <= 0 {
			p.Tolerance = DefaultTolerance
		}
		loaded[p.Name] = p
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.snap.Store(buildSnapshot(doc.Topology, loaded, m.snap.Load().EventsLoaded))
	return nil
}

// SavePresets writes the active calibration as a YAML preset document.
func (m *Model) SavePresets(path string) error {
	snap := m.Active()
	doc := presetsFile{Topology: snap.Topology, Stages: snap.Params}
	raw, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encode presets: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write presets file: %w", err)
	}
	return nil
}

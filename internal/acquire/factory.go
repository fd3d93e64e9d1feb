package acquire

import (
	"fmt"
	"time"

	"github.com/relabs-tech/spine_trainer/internal/config"
)

// New builds the configured source.
func New(cfg *config.Config) (Source, error) {
	switch cfg.Source {
	case "serial":
		return NewSerialSource(cfg.SerialPort, cfg.SerialBaud, cfg.SerialFormat, cfg.SensorCount)
	case "radio":
		return NewRadioSource(RadioOptions{
			Broker:         cfg.MQTTBroker,
			ClientID:       cfg.MQTTClientID,
			TopicFrames:    cfg.TopicFrames,
			SensorCount:    cfg.SensorCount,
			PollInterval:   time.Duration(cfg.RadioPollInterval) * time.Millisecond,
			ErrorLogWindow: time.Duration(cfg.PollErrorLogWindow) * time.Millisecond,
		})
	case "mock":
		return NewMockSource(cfg.SensorCount, cfg.SampleRateHz), nil
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}

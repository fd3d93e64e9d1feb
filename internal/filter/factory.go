package filter

import (
	"github.com/relabs-tech/spine_trainer/internal/config"
)

// New builds the configured filter strategy. The three kinds are
// interchangeable behind the Filter interface.
func New(cfg *config.Config) (Filter, error) {
	switch cfg.FilterKind {
	case "kalman":
		return NewKalman(cfg.KalmanProcessVar, cfg.KalmanMeasureVar)
	case "savgol":
		return NewSavitzkyGolay(cfg.SavgolWindow, cfg.SavgolPolyOrder)
	default:
		return NewButterworth(cfg.ButterCutoffHz, cfg.SampleRateHz, cfg.ButterOrder)
	}
}

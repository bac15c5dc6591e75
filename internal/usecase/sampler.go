// Package usecase contains application business logic.
package usecase

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/appguard/internal/domain"
)

// Sampler is the only source of ground truth about the foreground app.
// A failing lookup yields no observation instead of an error, so one bad
// sample never halts monitoring.
type Sampler struct {
	source domain.ForegroundSource
	logger *zap.Logger
}

// NewSampler creates a sampler over a host foreground source.
func NewSampler(source domain.ForegroundSource, logger *zap.Logger) *Sampler {
	return &Sampler{source: source, logger: logger}
}

// Poll returns the foreground app, or false when it is indeterminate.
func (s *Sampler) Poll() (domain.AppID, bool) {
	id, err := s.query()
	if err != nil {
		if !errors.Is(err, domain.ErrNoForeground) {
			s.logger.Debug("foreground sample failed", zap.Error(err))
		}
		return "", false
	}
	if id == "" {
		return "", false
	}
	return id, true
}

func (s *Sampler) query() (id domain.AppID, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("foreground source panicked: %v", r)
		}
	}()
	return s.source.Foreground()
}

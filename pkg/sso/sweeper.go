package sso

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/mediakeep/mediakeep/pkg/observability"
)

// Sweeper periodically removes expired CSRF states. Sweep failures are
// logged and never stop the schedule.
type Sweeper struct {
	states  StateStore
	logger  *observability.Logger
	metrics *observability.Metrics

	mu   sync.Mutex
	cron *cron.Cron
}

// NewSweeper creates a sweeper over the given state store
func NewSweeper(states StateStore, logger *observability.Logger, metrics *observability.Metrics) *Sweeper {
	return &Sweeper{states: states, logger: logger, metrics: metrics}
}

// Start begins the 10-minute sweep schedule. Calling Start on a running
// sweeper is a no-op.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc("@every 10m", s.sweep); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.logger.Info("state sweeper started")
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
// Calling Stop on a stopped sweeper is a no-op.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	s.logger.Info("state sweeper stopped")
}

func (s *Sweeper) sweep() {
	n, err := s.states.SweepExpired(context.Background())
	if err != nil {
		s.logger.WithError(err).Error("state sweep failed")
		return
	}
	if n > 0 {
		s.metrics.SSOStatesSwept.Add(float64(n))
		s.logger.WithField("deleted", n).Debug("swept expired states")
	}
}

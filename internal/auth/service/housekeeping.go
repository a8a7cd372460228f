package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/sydsec/gatehouse/internal/auth/domain"
	"github.com/sydsec/gatehouse/internal/auth/store"
)

// SweeperService periodically reclaims abandoned push sessions and expired
// ceremony challenges so the tables don't grow without bound. Challenge TTLs
// are additionally enforced lazily on read; the sweep is the backstop.
type SweeperService struct {
	Store      store.Store
	Challenges store.Challenges
	Logger     *slog.Logger
	Interval   time.Duration

	// Lifecycle channels
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewSweeperService creates a sweeper with the given interval. If interval
// is 0 or negative, defaults to 60 seconds.
func NewSweeperService(st store.Store, challenges store.Challenges, logger *slog.Logger, interval time.Duration) *SweeperService {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &SweeperService{
		Store:      st,
		Challenges: challenges,
		Logger:     logger,
		Interval:   interval,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start begins the background sweep loop. Non-blocking; call Stop to shut
// it down.
func (s *SweeperService) Start() {
	go s.run()
	s.Logger.Info("sweeper started", "interval", s.Interval)
}

// Stop shuts the loop down, blocking until any in-progress sweep finishes.
func (s *SweeperService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("sweeper stopped")
}

func (s *SweeperService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Sweep()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stopCh:
			return
		}
	}
}

// Sweep runs one pass. Failures are independent; one table failing doesn't
// stop the other.
func (s *SweeperService) Sweep() {
	ctx := context.Background()
	now := time.Now()

	if err := s.Store.PushSessions().DeleteOlderThan(ctx, now.Add(-domain.PushSessionMaxAge)); err != nil {
		s.Logger.Error("failed to sweep push sessions", "error", err)
	}

	if err := s.Challenges.DeleteExpired(ctx, now); err != nil {
		s.Logger.Error("failed to sweep challenges", "error", err)
	}
}

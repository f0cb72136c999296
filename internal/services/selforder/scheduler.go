package selforder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"selforder-system/internal/logger"
	"selforder-system/internal/models"
)

const sweepBatchSize = 100

// Scheduler runs the two background sweeps: a short-interval expire sweep
// that transitions overdue active sessions to expired, and a long-interval
// cleanup sweep that garbage-collects expired sessions past retention.
// Every transition goes through the same conditional primitive the request
// paths use, so a concurrent submit or payment always wins.
type Scheduler struct {
	store           Store
	logger          *logger.Logger
	expireInterval  time.Duration
	cleanupInterval time.Duration
	retention       time.Duration
	paymentWindow   time.Duration
}

// NewScheduler creates an expiry scheduler
func NewScheduler(store Store, log *logger.Logger, expireInterval, cleanupInterval, retention, paymentWindow time.Duration) *Scheduler {
	return &Scheduler{
		store:           store,
		logger:          log,
		expireInterval:  expireInterval,
		cleanupInterval: cleanupInterval,
		retention:       retention,
		paymentWindow:   paymentWindow,
	}
}

// Start launches both sweeps; they run until the context is cancelled
func (s *Scheduler) Start(ctx context.Context) {
	go s.runSweep(ctx, "expire_sweep", s.expireInterval, s.ExpireSweepOnce)
	go s.runSweep(ctx, "cleanup_sweep", s.cleanupInterval, s.CleanupSweepOnce)

	s.logger.Info("scheduler_started", "Expiry scheduler started", "", map[string]interface{}{
		"expire_interval_seconds":  s.expireInterval.Seconds(),
		"cleanup_interval_seconds": s.cleanupInterval.Seconds(),
		"retention_hours":          s.retention.Hours(),
	})
}

func (s *Scheduler) runSweep(ctx context.Context, name string, interval time.Duration, sweep func(context.Context) (int, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweep_stopped", fmt.Sprintf("%s stopped", name), "", nil)
			return
		case <-ticker.C:
			requestID := logger.GenerateRequestID()
			count, err := sweep(ctx)
			if err != nil {
				s.logger.Error("sweep_failed", fmt.Sprintf("%s tick failed", name), requestID, err, nil)
				continue
			}
			if count > 0 {
				s.logger.Info("sweep_completed", fmt.Sprintf("%s processed %d sessions", name, count), requestID, map[string]interface{}{
					"processed": count,
				})
			}
		}
	}
}

// ExpireSweepOnce transitions every overdue active session to expired. One
// failing session never aborts the sweep; losing the race to a concurrent
// submit or payment is expected and skipped.
func (s *Scheduler) ExpireSweepOnce(ctx context.Context) (int, error) {
	codes, err := s.store.ListOverdue(ctx, time.Now().UTC(), sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list overdue sessions: %w", err)
	}

	expired := 0
	for _, code := range codes {
		_, err := s.store.Transition(ctx, code, models.SessionActive, models.SessionExpired)
		if err != nil {
			if errors.Is(err, models.ErrConflict) || errors.Is(err, models.ErrNotFound) {
				// Someone submitted, paid or deleted it between the query and
				// the conditional update. Their transition stands.
				continue
			}
			s.logger.Error("expire_failed", fmt.Sprintf("Failed to expire session %s", code), "", err, map[string]interface{}{
				"session_code": code,
			})
			continue
		}
		expired++
	}

	return expired, nil
}

// CleanupSweepOnce deletes expired sessions past the retention window along
// with their cart items, and drops stale pending payment references
func (s *Scheduler) CleanupSweepOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.retention)

	codes, err := s.store.ListReclaimable(ctx, cutoff, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list reclaimable sessions: %w", err)
	}

	deleted := 0
	for _, code := range codes {
		if err := s.store.DeleteSession(ctx, code); err != nil {
			s.logger.Error("cleanup_failed", fmt.Sprintf("Failed to delete session %s", code), "", err, map[string]interface{}{
				"session_code": code,
			})
			continue
		}
		deleted++
	}

	refCutoff := time.Now().UTC().Add(-s.paymentWindow)
	dropped, err := s.store.DeleteStalePaymentRefs(ctx, refCutoff)
	if err != nil {
		s.logger.Error("cleanup_failed", "Failed to delete stale payment references", "", err, nil)
	} else if dropped > 0 {
		s.logger.Debug("payment_refs_dropped", fmt.Sprintf("Dropped %d stale pending payment references", dropped), "", map[string]interface{}{
			"dropped": dropped,
		})
	}

	return deleted, nil
}

// ForceExpire expires a single session by code, using the same conditional
// guard as the sweep. Submitted sessions can be force-expired by staff.
func (s *Scheduler) ForceExpire(ctx context.Context, code string) (*models.Session, error) {
	session, err := s.store.Transition(ctx, code, models.SessionActive, models.SessionExpired)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, models.ErrConflict) {
		return nil, err
	}

	return s.store.Transition(ctx, code, models.SessionSubmitted, models.SessionExpired)
}

// Extend pushes a session's deadline out by the given number of minutes.
// Only meaningful while the session is still active.
func (s *Scheduler) Extend(ctx context.Context, code string, minutes int) (*models.Session, error) {
	if minutes <= 0 {
		minutes = 30
	}
	return s.store.ExtendSession(ctx, code, minutes)
}

// Package scheduler drives the recommendation agent across all users on a
// daily cadence and performs recommendation housekeeping.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ledgerwise/advisor/core"
	"github.com/ledgerwise/advisor/store"
)

const (
	defaultRunHourUTC     = 6
	defaultInterUserDelay = 2 * time.Second
	defaultRetryDelay     = 15 * time.Minute
	defaultRetention      = 30 * 24 * time.Hour
)

// Generator produces a user's recommendation batch. Satisfied by
// advisor.Agent.
type Generator interface {
	Generate(ctx context.Context, userID string) ([]core.Recommendation, error)
}

// Config tunes the scheduler. Zero values fall back to defaults.
type Config struct {
	// RunHourUTC is the wall-clock hour (UTC) each daily cycle starts at.
	// Nil means the default; 0 is a valid midnight schedule.
	RunHourUTC *int

	// InterUserDelay spaces out users within a cycle to keep provider load
	// smooth.
	InterUserDelay time.Duration

	// RetryDelay is the backoff after a failed cycle.
	RetryDelay time.Duration

	// Retention is how long recommendations are kept before hard deletion.
	Retention time.Duration
}

// Scheduler is the single long-lived background task that runs the agent
// for every user with transaction history.
type Scheduler struct {
	agent   Generator
	txs     store.TransactionStore
	recs    store.RecommendationStore
	cfg     Config
	runHour int
}

// New creates a scheduler.
func New(agent Generator, txs store.TransactionStore, recs store.RecommendationStore, cfg Config) *Scheduler {
	runHour := defaultRunHourUTC
	if cfg.RunHourUTC != nil && *cfg.RunHourUTC >= 0 && *cfg.RunHourUTC <= 23 {
		runHour = *cfg.RunHourUTC
	}
	if cfg.InterUserDelay == 0 {
		cfg.InterUserDelay = defaultInterUserDelay
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.Retention == 0 {
		cfg.Retention = defaultRetention
	}
	return &Scheduler{agent: agent, txs: txs, recs: recs, cfg: cfg, runHour: runHour}
}

// Start runs the scheduling loop in a goroutine until ctx is cancelled.
// Each cycle fires at the configured UTC hour; a failed cycle is retried
// after the backoff delay instead of waiting a full day.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		for {
			next := nextRunAt(time.Now().UTC(), s.runHour)
			log.Printf("[SCHEDULER] next cycle at %s", next.Format(time.RFC3339))

			if !sleepUntil(ctx, next) {
				return
			}

			if err := s.RunCycle(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("[SCHEDULER] cycle failed: %v, retrying in %s", err, s.cfg.RetryDelay)
				if !sleepFor(ctx, s.cfg.RetryDelay) {
					return
				}
			}
		}
	}()
}

// RunCycle processes every user with transaction data, one at a time, then
// runs housekeeping. One user's failure never stops the batch.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	users, err := s.txs.DistinctUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("enumerate users: %w", err)
	}
	log.Printf("[SCHEDULER] cycle started for %d users", len(users))

	failures := 0
	for i, userID := range users {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.runUser(ctx, userID); err != nil {
			failures++
			log.Printf("[SCHEDULER] user=%s generation failed: %v", userID, err)
		}
		if i < len(users)-1 {
			if !sleepFor(ctx, s.cfg.InterUserDelay) {
				return ctx.Err()
			}
		}
	}

	if err := s.housekeep(ctx); err != nil {
		return err
	}

	log.Printf("[SCHEDULER] cycle finished: %d users, %d failures", len(users), failures)
	return nil
}

// runUser isolates a single user's run, turning panics into errors.
func (s *Scheduler) runUser(ctx context.Context, userID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	_, err = s.agent.Generate(ctx, userID)
	return err
}

// housekeep expires overdue recommendations and purges rows past the
// retention window.
func (s *Scheduler) housekeep(ctx context.Context) error {
	now := time.Now().UTC()

	expired, err := s.recs.ExpireOverdue(ctx, now)
	if err != nil {
		return fmt.Errorf("expire overdue: %w", err)
	}
	purged, err := s.recs.PurgeOlderThan(ctx, now.Add(-s.cfg.Retention))
	if err != nil {
		return fmt.Errorf("purge old recommendations: %w", err)
	}
	if expired > 0 || purged > 0 {
		log.Printf("[SCHEDULER] housekeeping: expired %d, purged %d", expired, purged)
	}
	return nil
}

// nextRunAt returns the next occurrence of the given UTC hour strictly
// after now.
func nextRunAt(now time.Time, hour int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// sleepUntil blocks until t or ctx cancellation; it reports whether the
// deadline was reached.
func sleepUntil(ctx context.Context, t time.Time) bool {
	return sleepFor(ctx, time.Until(t))
}

func sleepFor(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Package scheduler runs periodic background jobs.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	appcommission "github.com/erp/salesync/internal/application/commission"
	"github.com/erp/salesync/internal/domain/replication"
)

// RecomputeLockKey guards a recomputation run across servers
const RecomputeLockKey = "commission:recompute_all"

// ErrInvalidInterval is returned by Start when the interval is not positive
var ErrInvalidInterval = errors.New("scheduler: interval must be positive")

// Recomputer recomputes every commission record
type Recomputer interface {
	RecomputeAll(ctx context.Context, companyID *int64) (appcommission.RecomputeSummary, error)
}

// RecomputeScheduler periodically recomputes the commission tiers of every
// record so rule and ledger changes are picked up without an invoice.
type RecomputeScheduler struct {
	interval   time.Duration
	recomputer Recomputer
	locker     replication.Locker
	runOnStart bool
	logger     *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	lastRun   RunResult
}

// RunResult describes the most recent run
type RunResult struct {
	StartedAt time.Time
	Duration  time.Duration
	Summary   appcommission.RecomputeSummary
	Err       error
	Skipped   bool
}

// Option configures a RecomputeScheduler
type Option func(*RecomputeScheduler)

// WithLocker makes concurrent servers skip a run another one is doing
func WithLocker(l replication.Locker) Option {
	return func(s *RecomputeScheduler) {
		s.locker = l
	}
}

// WithRunOnStart runs once immediately after Start
func WithRunOnStart(b bool) Option {
	return func(s *RecomputeScheduler) {
		s.runOnStart = b
	}
}

// NewRecomputeScheduler creates a scheduler
func NewRecomputeScheduler(interval time.Duration, recomputer Recomputer, logger *zap.Logger, opts ...Option) *RecomputeScheduler {
	s := &RecomputeScheduler{
		interval:   interval,
		recomputer: recomputer,
		logger:     logger.With(zap.String("component", "commission_scheduler")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the loop. Calling Start on a running scheduler is a no-op.
func (s *RecomputeScheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return ErrInvalidInterval
	}
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("Commission recompute scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// Stop cancels the loop and waits for a run in progress, or for ctx
func (s *RecomputeScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Commission recompute scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastRun returns the result of the most recent run
func (s *RecomputeScheduler) LastRun() RunResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

func (s *RecomputeScheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	if s.runOnStart {
		s.RunOnce(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single recomputation of every company
func (s *RecomputeScheduler) RunOnce(ctx context.Context) (result RunResult) {
	result.StartedAt = time.Now()
	defer func() {
		result.Duration = time.Since(result.StartedAt)
		s.mu.Lock()
		s.lastRun = result
		s.mu.Unlock()
	}()

	if s.locker != nil {
		lockCtx, cancel := context.WithTimeout(ctx, time.Second)
		lease, err := s.locker.Lock(lockCtx, RecomputeLockKey)
		cancel()
		if err != nil {
			s.logger.Debug("Recompute already running elsewhere, skipping", zap.Error(err))
			result.Skipped = true
			return result
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("Failed to release recompute lock", zap.Error(err))
			}
		}()
	}

	result.Summary, result.Err = s.recomputer.RecomputeAll(ctx, nil)
	if result.Err != nil && !errors.Is(result.Err, context.Canceled) {
		s.logger.Error("Commission recompute failed", zap.Error(result.Err))
		return result
	}
	s.logger.Info("Commission recompute finished",
		zap.Int("processed", result.Summary.Processed),
		zap.Int("failed", result.Summary.Failed),
		zap.Duration("elapsed", time.Since(result.StartedAt)),
	)
	return result
}

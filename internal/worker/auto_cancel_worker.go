package worker

import (
	"context"
	"time"

	"order-lifecycle/internal/service"
	"order-lifecycle/internal/util"

	"go.uber.org/zap"
)

const (
	autoCancelLockKey    = "auto-cancel-sweep"
	defaultSweepInterval = 15 * time.Minute
	defaultSweepLockTTL  = 5 * time.Minute
)

// AutoCanceller cancels stale pending orders
type AutoCanceller interface {
	AutoCancelPendingOrders(ctx context.Context, hoursAgo int) (*service.AutoCancelReport, error)
}

// Locker is a distributed mutual-exclusion lock
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// AutoCancelWorker periodically sweeps stale pending orders. Only one
// replica sweeps at a time.
type AutoCancelWorker struct {
	orders   AutoCanceller
	locker   Locker
	hours    int
	interval time.Duration
	lockTTL  time.Duration
	logger   *zap.Logger
	done     chan struct{}
}

// NewAutoCancelWorker creates a new auto-cancel worker. Non-positive
// interval or lockTTL fall back to the defaults.
func NewAutoCancelWorker(orders AutoCanceller, locker Locker, hours int, interval, lockTTL time.Duration) *AutoCancelWorker {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if lockTTL <= 0 {
		lockTTL = defaultSweepLockTTL
	}
	return &AutoCancelWorker{
		orders:   orders,
		locker:   locker,
		hours:    hours,
		interval: interval,
		lockTTL:  lockTTL,
		logger:   util.GetLogger(),
		done:     make(chan struct{}),
	}
}

// Start runs a sweep every interval until ctx is cancelled or Stop is called
func (w *AutoCancelWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting auto-cancel worker",
		zap.Int("hours", w.hours),
		zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return nil
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.Error("Auto-cancel sweep failed", zap.Error(err))
			}
		}
	}
}

// Stop stops the worker
func (w *AutoCancelWorker) Stop() {
	w.logger.Info("Stopping auto-cancel worker")
	close(w.done)
}

// RunOnce performs one sweep if the lock can be taken. A nil report with a
// nil error means another replica holds the lock.
func (w *AutoCancelWorker) RunOnce(ctx context.Context) (*service.AutoCancelReport, error) {
	token, ok, err := w.locker.AcquireLock(ctx, autoCancelLockKey, w.lockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		util.AutoCancelRunsTotal.WithLabelValues("skipped").Inc()
		w.logger.Debug("Auto-cancel lock held elsewhere, skipping")
		return nil, nil
	}
	defer func() {
		if err := w.locker.ReleaseLock(context.Background(), autoCancelLockKey, token); err != nil {
			w.logger.Error("Failed to release auto-cancel lock", zap.Error(err))
		}
	}()

	return w.orders.AutoCancelPendingOrders(ctx, w.hours)
}

package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/infinity-finance/backend/internal/logging"
	"golang.org/x/sync/singleflight"
)

const DefaultCleanupInterval = 24 * time.Hour

type CleanupResult struct {
	Denylist    int64
	ResetTokens int64
}

// CleanupTask periodically drops denylist entries and reset tokens whose
// expiry has passed. Overlapping runs share a single store pass.
type CleanupTask struct {
	denylist DenylistStore
	resets   ResetTokenStore
	interval time.Duration
	now      func() time.Time
	group    singleflight.Group
}

func NewCleanupTask(denylist DenylistStore, resets ResetTokenStore, interval time.Duration) *CleanupTask {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	return &CleanupTask{
		denylist: denylist,
		resets:   resets,
		interval: interval,
		now:      time.Now,
	}
}

func (t *CleanupTask) Interval() time.Duration {
	return t.interval
}

// RunOnce purges everything that expired strictly before now.
func (t *CleanupTask) RunOnce(ctx context.Context) (CleanupResult, error) {
	v, err, _ := t.group.Do("purge", func() (interface{}, error) {
		now := t.now()
		var result CleanupResult

		n, err := t.denylist.PurgeDenylist(ctx, now)
		if err != nil {
			return result, fmt.Errorf("purge denylist: %w", err)
		}
		result.Denylist = n

		if t.resets != nil {
			n, err = t.resets.PurgeResetTokens(ctx, now)
			if err != nil {
				return result, fmt.Errorf("purge reset tokens: %w", err)
			}
			result.ResetTokens = n
		}
		return result, nil
	})
	result, _ := v.(CleanupResult)
	return result, err
}

// Start runs a purge immediately and then on every interval until ctx is done.
func (t *CleanupTask) Start(ctx context.Context) {
	l := logging.FromContext(ctx).With("svc", "cleanup")

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.runLogged(ctx, l)
	for {
		select {
		case <-ctx.Done():
			l.Info("cleanup_stopped")
			return
		case <-ticker.C:
			t.runLogged(ctx, l)
		}
	}
}

func (t *CleanupTask) runLogged(ctx context.Context, l *slog.Logger) {
	result, err := t.RunOnce(ctx)
	if err != nil {
		l.Error("cleanup_failed", "error", err)
		return
	}
	l.Info("cleanup_completed", "denylist_purged", result.Denylist, "reset_tokens_purged", result.ResetTokens)
}

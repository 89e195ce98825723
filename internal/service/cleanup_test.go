package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/infinity-finance/backend/internal/db"
	"github.com/infinity-finance/backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingDenylist struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
}

func (b *blockingDenylist) AddDenylist(context.Context, string, time.Time) error { return nil }

func (b *blockingDenylist) ClaimDenylist(context.Context, string, time.Time) (bool, error) {
	return true, nil
}

func (b *blockingDenylist) IsDenylisted(context.Context, string) (bool, error) { return false, nil }

func (b *blockingDenylist) PurgeDenylist(context.Context, time.Time) (int64, error) {
	b.calls.Add(1)
	if b.release != nil {
		<-b.release
	}
	return 3, b.err
}

func TestCleanupPurgesOnlyExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

	store := db.NewMemory()
	user, err := store.CreateUser(ctx, &model.User{Username: "alice", Email: "alice@example.com", FullName: "Alice", PasswordHash: "x"})
	require.NoError(t, err)

	require.NoError(t, store.AddDenylist(ctx, "gone", now.Add(-time.Minute)))
	require.NoError(t, store.AddDenylist(ctx, "boundary", now))
	require.NoError(t, store.AddDenylist(ctx, "live", now.Add(time.Hour)))
	require.NoError(t, store.CreateResetToken(ctx, model.PasswordResetToken{ID: "old", UserID: user.ID, ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, store.CreateResetToken(ctx, model.PasswordResetToken{ID: "new", UserID: user.ID, ExpiresAt: now.Add(time.Minute)}))

	task := NewCleanupTask(store, store, time.Hour)
	task.now = func() time.Time { return now }

	result, err := task.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, CleanupResult{Denylist: 1, ResetTokens: 1}, result)

	for jti, want := range map[string]bool{"gone": false, "boundary": true, "live": true} {
		got, err := store.IsDenylisted(ctx, jti)
		require.NoError(t, err)
		assert.Equal(t, want, got, jti)
	}
	_, err = store.GetResetToken(ctx, "new")
	require.NoError(t, err)
}

func TestCleanupSharesConcurrentRuns(t *testing.T) {
	denylist := &blockingDenylist{release: make(chan struct{})}
	task := NewCleanupTask(denylist, nil, time.Hour)

	const callers = 5
	var wg sync.WaitGroup
	started := make(chan struct{}, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started <- struct{}{}
			result, err := task.RunOnce(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, int64(3), result.Denylist)
		}()
	}
	for i := 0; i < callers; i++ {
		<-started
	}
	require.Eventually(t, func() bool { return denylist.calls.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(denylist.release)
	wg.Wait()

	assert.Equal(t, int32(1), denylist.calls.Load())
}

func TestCleanupReportsStoreError(t *testing.T) {
	task := NewCleanupTask(&blockingDenylist{err: errors.New("db down")}, nil, 0)
	assert.Equal(t, DefaultCleanupInterval, task.Interval())

	_, err := task.RunOnce(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func TestCleanupStartStopsWithContext(t *testing.T) {
	denylist := &blockingDenylist{}
	task := NewCleanupTask(denylist, nil, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		task.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return denylist.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup loop did not stop")
	}
}

package db

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/infinity-finance/backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUsersUniqueness(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	alice, err := m.CreateUser(ctx, &model.User{Username: "alice", Email: "alice@example.com", PasswordHash: "h"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), alice.ID)

	_, err = m.CreateUser(ctx, &model.User{Username: "alice", Email: "other@example.com"})
	assert.ErrorIs(t, err, ErrDuplicate)
	_, err = m.CreateUser(ctx, &model.User{Username: "bob", Email: "alice@example.com"})
	assert.ErrorIs(t, err, ErrDuplicate)

	bob, err := m.CreateUser(ctx, &model.User{Username: "bob", Email: "bob@example.com"})
	require.NoError(t, err)

	bob.Email = "alice@example.com"
	assert.ErrorIs(t, m.UpdateUser(ctx, bob), ErrDuplicate)

	bob.Email = "robert@example.com"
	require.NoError(t, m.UpdateUser(ctx, bob))
	got, err := m.GetUserByEmail(ctx, "robert@example.com")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, got.ID)

	require.NoError(t, m.DeleteUser(ctx, bob.ID))
	_, err = m.GetUserByID(ctx, bob.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.DeleteUser(ctx, bob.ID), ErrNotFound)
}

func TestMemoryReturnsCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	created, err := m.CreateUser(ctx, &model.User{Username: "alice", Email: "alice@example.com", FullName: "Alice"})
	require.NoError(t, err)
	created.FullName = "mutated"

	got, err := m.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.FullName)
}

func TestMemoryDenylist(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.AddDenylist(ctx, "old", now.Add(-time.Minute)))
	require.NoError(t, m.AddDenylist(ctx, "live", now.Add(time.Hour)))
	require.NoError(t, m.AddDenylist(ctx, "live", now.Add(2*time.Hour)))

	ok, err := m.IsDenylisted(ctx, "live")
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := m.PurgeDenylist(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ok, _ = m.IsDenylisted(ctx, "old")
	assert.False(t, ok)
	ok, _ = m.IsDenylisted(ctx, "live")
	assert.True(t, ok)
}

func TestMemoryDenylistConcurrent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = m.AddDenylist(ctx, "shared", exp)
		}()
		go func() {
			defer wg.Done()
			_, _ = m.IsDenylisted(ctx, "shared")
		}()
	}
	wg.Wait()

	ok, err := m.IsDenylisted(ctx, "shared")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryClaimDenylistOnce(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	var claimed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.ClaimDenylist(ctx, "rotated", exp)
			if err == nil && ok {
				claimed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), claimed.Load())
	ok, err := m.IsDenylisted(ctx, "rotated")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryResetTokenSingleUse(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	user, err := m.CreateUser(ctx, &model.User{Username: "alice", Email: "alice@example.com", PasswordHash: "old"})
	require.NoError(t, err)

	token := model.PasswordResetToken{ID: "rid", UserID: user.ID, ExpiresAt: time.Now().Add(30 * time.Minute)}
	require.NoError(t, m.CreateResetToken(ctx, token))
	assert.ErrorIs(t, m.CreateResetToken(ctx, token), ErrDuplicate)

	require.NoError(t, m.ConsumeResetToken(ctx, "rid", user.ID, "new"))
	assert.ErrorIs(t, m.ConsumeResetToken(ctx, "rid", user.ID, "newer"), ErrNotFound)

	got, err := m.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.PasswordHash)
}

func TestMemoryResetTokensPurgeAndCascade(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()
	user, err := m.CreateUser(ctx, &model.User{Username: "alice", Email: "alice@example.com"})
	require.NoError(t, err)

	require.NoError(t, m.CreateResetToken(ctx, model.PasswordResetToken{ID: "expired", UserID: user.ID, ExpiresAt: now.Add(-time.Minute)}))
	require.NoError(t, m.CreateResetToken(ctx, model.PasswordResetToken{ID: "live", UserID: user.ID, ExpiresAt: now.Add(time.Minute)}))
	assert.ErrorIs(t, m.CreateResetToken(ctx, model.PasswordResetToken{ID: "orphan", UserID: 99}), ErrNotFound)

	n, err := m.PurgeResetTokens(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, m.DeleteUser(ctx, user.ID))
	_, err = m.GetResetToken(ctx, "live")
	assert.ErrorIs(t, err, ErrNotFound)
}

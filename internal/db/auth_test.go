package db

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/infinity-finance/backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userRowColumns = []string{"id", "username", "email", "full_name", "password_hash", "created_at", "updated_at"}

func newMockPostgres(t *testing.T) (*Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return NewPostgres(mock), mock
}

func TestEnsureAuthSchema(t *testing.T) {
	pg, mock := newMockPostgres(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS token_denylist").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS token_denylist_expires_at_idx").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS password_reset_tokens").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS password_reset_tokens_user_id_idx").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, pg.EnsureAuthSchema(context.Background()))
}

func TestGetUserByUsername(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("found", func(t *testing.T) {
		pg, mock := newMockPostgres(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE username = $1")).
			WithArgs("alice").
			WillReturnRows(pgxmock.NewRows(userRowColumns).
				AddRow(int64(1), "alice", "alice@example.com", "Alice", "hash", now, now))

		user, err := pg.GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(1), user.ID)
		assert.Equal(t, "alice@example.com", user.Email)
		assert.Equal(t, "hash", user.PasswordHash)
	})

	t.Run("not found", func(t *testing.T) {
		pg, mock := newMockPostgres(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE username = $1")).
			WithArgs("ghost").
			WillReturnError(pgx.ErrNoRows)

		user, err := pg.GetUserByUsername(ctx, "ghost")
		assert.Nil(t, user)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.True(t, IsNoRows(err))
	})

	t.Run("database error", func(t *testing.T) {
		pg, mock := newMockPostgres(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE username = $1")).
			WithArgs("alice").
			WillReturnError(errors.New("connection reset"))

		_, err := pg.GetUserByUsername(ctx, "alice")
		require.Error(t, err)
		assert.False(t, IsNoRows(err))
	})
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	in := &model.User{Username: "alice", Email: "alice@example.com", FullName: "Alice", PasswordHash: "hash"}

	t.Run("success", func(t *testing.T) {
		pg, mock := newMockPostgres(t)
		mock.ExpectQuery("INSERT INTO users").
			WithArgs("alice", "alice@example.com", "Alice", "hash").
			WillReturnRows(pgxmock.NewRows(userRowColumns).
				AddRow(int64(7), "alice", "alice@example.com", "Alice", "hash", now, now))

		user, err := pg.CreateUser(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, int64(7), user.ID)
	})

	t.Run("unique violation", func(t *testing.T) {
		pg, mock := newMockPostgres(t)
		mock.ExpectQuery("INSERT INTO users").
			WithArgs("alice", "alice@example.com", "Alice", "hash").
			WillReturnError(&pgconn.PgError{Code: "23505"})

		_, err := pg.CreateUser(ctx, in)
		assert.ErrorIs(t, err, ErrDuplicate)
	})
}

func TestUpdateAndDeleteUser(t *testing.T) {
	ctx := context.Background()
	user := &model.User{ID: 3, Username: "alice", Email: "alice@example.com", FullName: "Alice A.", PasswordHash: "hash"}

	t.Run("update", func(t *testing.T) {
		pg, mock := newMockPostgres(t)
		mock.ExpectExec("UPDATE users").
			WithArgs(int64(3), "alice", "alice@example.com", "Alice A.", "hash").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, pg.UpdateUser(ctx, user))
	})

	t.Run("update missing", func(t *testing.T) {
		pg, mock := newMockPostgres(t)
		mock.ExpectExec("UPDATE users").
			WithArgs(int64(3), "alice", "alice@example.com", "Alice A.", "hash").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		assert.ErrorIs(t, pg.UpdateUser(ctx, user), ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		pg, mock := newMockPostgres(t)
		mock.ExpectExec("DELETE FROM users").
			WithArgs(int64(3)).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		require.NoError(t, pg.DeleteUser(ctx, 3))
	})
}

func TestDenylist(t *testing.T) {
	ctx := context.Background()
	exp := time.Date(2026, 10, 23, 12, 0, 0, 0, time.UTC)

	t.Run("add upserts", func(t *testing.T) {
		pg, mock := newMockPostgres(t)
		mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (jti) DO UPDATE")).
			WithArgs("jti-1", exp).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, pg.AddDenylist(ctx, "jti-1", exp))
	})

	t.Run("claim inserts once", func(t *testing.T) {
		pg, mock := newMockPostgres(t)
		mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (jti) DO NOTHING")).
			WithArgs("jti-1", exp).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (jti) DO NOTHING")).
			WithArgs("jti-1", exp).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))

		claimed, err := pg.ClaimDenylist(ctx, "jti-1", exp)
		require.NoError(t, err)
		assert.True(t, claimed)

		claimed, err = pg.ClaimDenylist(ctx, "jti-1", exp)
		require.NoError(t, err)
		assert.False(t, claimed)
	})

	t.Run("contains", func(t *testing.T) {
		pg, mock := newMockPostgres(t)
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("jti-1").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		ok, err := pg.IsDenylisted(ctx, "jti-1")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("purge", func(t *testing.T) {
		pg, mock := newMockPostgres(t)
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM token_denylist WHERE expires_at < $1")).
			WithArgs(exp).
			WillReturnResult(pgxmock.NewResult("DELETE", 4))

		n, err := pg.PurgeDenylist(ctx, exp)
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)
	})
}

func TestResetTokens(t *testing.T) {
	ctx := context.Background()
	exp := time.Date(2026, 10, 16, 12, 30, 0, 0, time.UTC)

	t.Run("create", func(t *testing.T) {
		pg, mock := newMockPostgres(t)
		mock.ExpectExec("INSERT INTO password_reset_tokens").
			WithArgs("rid", int64(1), exp).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, pg.CreateResetToken(ctx, model.PasswordResetToken{ID: "rid", UserID: 1, ExpiresAt: exp}))
	})

	t.Run("get missing", func(t *testing.T) {
		pg, mock := newMockPostgres(t)
		mock.ExpectQuery("FROM password_reset_tokens").
			WithArgs("rid").
			WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "expires_at", "created_at"}))

		_, err := pg.GetResetToken(ctx, "rid")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("consume commits", func(t *testing.T) {
		pg, mock := newMockPostgres(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM password_reset_tokens").
			WithArgs("rid", int64(1)).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectExec("UPDATE users").
			WithArgs(int64(1), "new-hash").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		require.NoError(t, pg.ConsumeResetToken(ctx, "rid", 1, "new-hash"))
	})

	t.Run("consume used token rolls back", func(t *testing.T) {
		pg, mock := newMockPostgres(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM password_reset_tokens").
			WithArgs("rid", int64(1)).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mock.ExpectRollback()

		assert.ErrorIs(t, pg.ConsumeResetToken(ctx, "rid", 1, "new-hash"), ErrNotFound)
	})

	t.Run("purge", func(t *testing.T) {
		pg, mock := newMockPostgres(t)
		mock.ExpectExec("DELETE FROM password_reset_tokens WHERE expires_at").
			WithArgs(exp).
			WillReturnResult(pgxmock.NewResult("DELETE", 2))

		n, err := pg.PurgeResetTokens(ctx, exp)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})
}

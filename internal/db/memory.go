package db

import (
	"context"
	"sync"
	"time"

	"github.com/infinity-finance/backend/internal/model"
)

// Memory keeps users, denylist entries and reset tokens in process memory.
// It honors the same contract as Postgres and is used by tests and by
// STORE_DRIVER=memory.
type Memory struct {
	mu       sync.RWMutex
	nextID   int64
	users    map[int64]model.User
	denylist map[string]time.Time
	resets   map[string]model.PasswordResetToken
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		users:    make(map[int64]model.User),
		denylist: make(map[string]time.Time),
		resets:   make(map[string]model.PasswordResetToken),
		now:      time.Now,
	}
}

func (m *Memory) CreateUser(_ context.Context, user *model.User) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conflictLocked(0, user.Username, user.Email) {
		return nil, ErrDuplicate
	}
	m.nextID++
	now := m.now()
	created := *user
	created.ID = m.nextID
	created.CreatedAt = now
	created.UpdatedAt = now
	m.users[created.ID] = created
	return &created, nil
}

func (m *Memory) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	return m.findUser(func(u model.User) bool { return u.Username == username })
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	return m.findUser(func(u model.User) bool { return u.Email == email })
}

func (m *Memory) GetUserByID(_ context.Context, userID int64) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *Memory) UpdateUser(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.users[user.ID]
	if !ok {
		return ErrNotFound
	}
	if m.conflictLocked(user.ID, user.Username, user.Email) {
		return ErrDuplicate
	}
	updated := *user
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = m.now()
	m.users[user.ID] = updated
	return nil
}

func (m *Memory) DeleteUser(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[userID]; !ok {
		return ErrNotFound
	}
	delete(m.users, userID)
	for id, token := range m.resets {
		if token.UserID == userID {
			delete(m.resets, id)
		}
	}
	return nil
}

func (m *Memory) AddDenylist(_ context.Context, jti string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.denylist[jti] = expiresAt
	return nil
}

func (m *Memory) ClaimDenylist(_ context.Context, jti string, expiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.denylist[jti]; ok {
		return false, nil
	}
	m.denylist[jti] = expiresAt
	return true, nil
}

func (m *Memory) IsDenylisted(_ context.Context, jti string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.denylist[jti]
	return ok, nil
}

func (m *Memory) PurgeDenylist(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var purged int64
	for jti, exp := range m.denylist {
		if exp.Before(now) {
			delete(m.denylist, jti)
			purged++
		}
	}
	return purged, nil
}

func (m *Memory) CreateResetToken(_ context.Context, token model.PasswordResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[token.UserID]; !ok {
		return ErrNotFound
	}
	if _, ok := m.resets[token.ID]; ok {
		return ErrDuplicate
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = m.now()
	}
	m.resets[token.ID] = token
	return nil
}

func (m *Memory) GetResetToken(_ context.Context, id string) (*model.PasswordResetToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	token, ok := m.resets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &token, nil
}

func (m *Memory) DeleteResetToken(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.resets, id)
	return nil
}

func (m *Memory) ConsumeResetToken(_ context.Context, id string, userID int64, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.resets[id]
	if !ok || token.UserID != userID {
		return ErrNotFound
	}
	user, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	delete(m.resets, id)
	user.PasswordHash = passwordHash
	user.UpdatedAt = m.now()
	m.users[userID] = user
	return nil
}

func (m *Memory) PurgeResetTokens(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var purged int64
	for id, token := range m.resets {
		if token.ExpiresAt.Before(now) {
			delete(m.resets, id)
			purged++
		}
	}
	return purged, nil
}

func (m *Memory) findUser(match func(model.User) bool) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if match(u) {
			found := u
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) conflictLocked(selfID int64, username, email string) bool {
	for id, u := range m.users {
		if id == selfID {
			continue
		}
		if u.Username == username || u.Email == email {
			return true
		}
	}
	return false
}

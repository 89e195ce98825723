package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/infinity-finance/backend/internal/db"
	"github.com/infinity-finance/backend/internal/hash"
	"github.com/infinity-finance/backend/internal/logging"
	"github.com/infinity-finance/backend/internal/model"
)

// Presence, length and email format are enforced by the binding tags on the
// request models. The service keeps the rules a tag cannot express.
const (
	maxUsernameLength = 128
	// bcrypt only reads the first 72 bytes of its input.
	maxPasswordBytes = 72
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type UserService struct {
	users  UserDirectory
	hasher hash.Hasher
}

func NewUserService(users UserDirectory, hasher hash.Hasher) *UserService {
	return &UserService{users: users, hasher: hasher}
}

func (s *UserService) Register(ctx context.Context, req model.RegisterRequest) (*model.User, error) {
	username := strings.TrimSpace(req.Username)
	fullName := strings.TrimSpace(req.FullName)
	email := strings.TrimSpace(req.Email)

	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validateFullName(fullName); err != nil {
		return nil, err
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}

	if _, err := s.users.GetUserByUsername(ctx, username); err == nil {
		return nil, fmt.Errorf("%w: username already registered", ErrConflict)
	} else if !db.IsNoRows(err) {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: email already registered", ErrConflict)
	} else if !db.IsNoRows(err) {
		return nil, fmt.Errorf("load user: %w", err)
	}

	digest, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	created, err := s.users.CreateUser(ctx, &model.User{
		Username:     username,
		Email:        email,
		FullName:     fullName,
		PasswordHash: digest,
	})
	if err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil, fmt.Errorf("%w: user already registered", ErrConflict)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	logging.FromContext(ctx).Info("user_registered", "svc", "user.register", "user_id", created.ID)
	return created, nil
}

func (s *UserService) Get(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID int64, req model.UpdateProfileRequest) (*model.User, error) {
	fullName := strings.TrimSpace(req.FullName)
	if err := validateFullName(fullName); err != nil {
		return nil, err
	}

	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.FullName = fullName
	if err := s.users.UpdateUser(ctx, user); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return s.Get(ctx, userID)
}

func (s *UserService) ChangePassword(ctx context.Context, userID int64, req model.ChangePasswordRequest) error {
	if err := validatePassword(req.NewPassword); err != nil {
		return err
	}

	user, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(req.CurrentPassword, user.PasswordHash) {
		return ErrWrongPassword
	}

	digest, err := s.hashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = digest
	if err := s.users.UpdateUser(ctx, user); err != nil {
		if db.IsNoRows(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("update user: %w", err)
	}

	logging.FromContext(ctx).Info("password_changed", "svc", "user.change_password", "user_id", userID)
	return nil
}

func (s *UserService) Delete(ctx context.Context, userID int64) error {
	if err := s.users.DeleteUser(ctx, userID); err != nil {
		if db.IsNoRows(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}
	logging.FromContext(ctx).Info("user_deleted", "svc", "user.delete", "user_id", userID)
	return nil
}

func (s *UserService) hashPassword(password string) (string, error) {
	digest, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, hash.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: password too long", ErrInvalidInput)
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return digest, nil
}

func validateUsername(username string) error {
	if len(username) > maxUsernameLength || !usernamePattern.MatchString(username) {
		return fmt.Errorf("%w: username must be 1-%d letters, digits, '-' or '_'", ErrInvalidInput, maxUsernameLength)
	}
	return nil
}

// validateFullName rejects names that are only whitespace.
func validateFullName(fullName string) error {
	if fullName == "" {
		return fmt.Errorf("%w: full_name must not be blank", ErrInvalidInput)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) > maxPasswordBytes {
		return fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidInput, maxPasswordBytes)
	}
	return nil
}

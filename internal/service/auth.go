package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/infinity-finance/backend/internal/config"
	"github.com/infinity-finance/backend/internal/db"
	"github.com/infinity-finance/backend/internal/hash"
	"github.com/infinity-finance/backend/internal/logging"
	"github.com/infinity-finance/backend/internal/model"
	"github.com/infinity-finance/backend/internal/token"
)

const TokenTypeBearer = "bearer"

// Upper bounds for configured lifetimes; both stay far below the
// time.Duration range.
const (
	maxTTLMinutes     = 366 * 24 * 60
	maxRefreshTTLDays = 3660
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrUserNotFound        = errors.New("user not found")
	ErrWrongPassword       = errors.New("incorrect password")
	ErrCredentialsInvalid  = errors.New("could not validate credentials")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	ErrResetTokenInvalid   = errors.New("reset token invalid or expired")
	ErrConflict            = errors.New("conflict")
	ErrMisconfigured       = errors.New("auth config invalid")
)

type UserDirectory interface {
	CreateUser(ctx context.Context, user *model.User) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, userID int64) (*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
	DeleteUser(ctx context.Context, userID int64) error
}

// DenylistStore records revoked token ids until their expiry. ClaimDenylist
// inserts only when the jti is absent and reports whether it did.
type DenylistStore interface {
	AddDenylist(ctx context.Context, jti string, expiresAt time.Time) error
	ClaimDenylist(ctx context.Context, jti string, expiresAt time.Time) (bool, error)
	IsDenylisted(ctx context.Context, jti string) (bool, error)
	PurgeDenylist(ctx context.Context, now time.Time) (int64, error)
}

type ResetTokenStore interface {
	CreateResetToken(ctx context.Context, token model.PasswordResetToken) error
	GetResetToken(ctx context.Context, id string) (*model.PasswordResetToken, error)
	DeleteResetToken(ctx context.Context, id string) error
	ConsumeResetToken(ctx context.Context, id string, userID int64, passwordHash string) error
	PurgeResetTokens(ctx context.Context, now time.Time) (int64, error)
}

type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, user model.User, reset model.PasswordResetToken) error
}

type AuthDeps struct {
	Users    UserDirectory
	Denylist DenylistStore
	Resets   ResetTokenStore
	Notifier ResetNotifier
	Hasher   hash.Hasher
}

type AuthService struct {
	users    UserDirectory
	denylist DenylistStore
	resets   ResetTokenStore
	notifier ResetNotifier
	hasher   hash.Hasher
	codec    *token.Codec

	accessTTL  time.Duration
	refreshTTL time.Duration
	resetTTL   time.Duration
	scopes     []string

	checkAccessDenylist   bool
	rotateRefresh         bool
	hideUnknownResetEmail bool

	now   func() time.Time
	newID func() string
}

func NewAuthService(deps AuthDeps, cfg config.AuthConfig) (*AuthService, error) {
	if deps.Users == nil || deps.Denylist == nil || deps.Resets == nil || deps.Notifier == nil || deps.Hasher == nil {
		return nil, fmt.Errorf("%w: missing dependency", ErrMisconfigured)
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("%w: JWT_SECRET is required", ErrMisconfigured)
	}

	accessTTL, err := parsePositiveInt(cfg.AccessTTLMinutes, maxTTLMinutes)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ACCESS_TOKEN_EXPIRE_MINUTES", ErrMisconfigured)
	}
	refreshTTL, err := parsePositiveInt(cfg.RefreshTTLDays, maxRefreshTTLDays)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid REFRESH_TOKEN_EXPIRE_DAYS", ErrMisconfigured)
	}
	resetTTL, err := parsePositiveInt(cfg.ResetTTLMinutes, maxTTLMinutes)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid RESET_TOKEN_EXPIRE_MINUTES", ErrMisconfigured)
	}

	checkAccess, err := parseBool(cfg.CheckAccessDenylist, true)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid DENYLIST_CHECK_ACCESS", ErrMisconfigured)
	}
	rotate, err := parseBool(cfg.RefreshRotation, false)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid REFRESH_ROTATION", ErrMisconfigured)
	}
	hideUnknown, err := parseBool(cfg.HideUnknownResetEmail, false)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid RESET_HIDE_UNKNOWN_EMAIL", ErrMisconfigured)
	}

	s := &AuthService{
		users:                 deps.Users,
		denylist:              deps.Denylist,
		resets:                deps.Resets,
		notifier:              deps.Notifier,
		hasher:                deps.Hasher,
		accessTTL:             time.Duration(accessTTL) * time.Minute,
		refreshTTL:            time.Duration(refreshTTL) * 24 * time.Hour,
		resetTTL:              time.Duration(resetTTL) * time.Minute,
		scopes:                ParseScopes(cfg.Scopes),
		checkAccessDenylist:   checkAccess,
		rotateRefresh:         rotate,
		hideUnknownResetEmail: hideUnknown,
		now:                   time.Now,
		newID:                 uuid.NewString,
	}
	if s.accessTTL >= s.refreshTTL {
		return nil, fmt.Errorf("%w: access TTL must be shorter than refresh TTL", ErrMisconfigured)
	}

	codec, err := token.NewCodec([]byte(cfg.JWTSecret), cfg.JWTAlgorithm, token.WithClock(func() time.Time {
		return s.now()
	}))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid JWT_ALGORITHM: %v", ErrMisconfigured, err)
	}
	s.codec = codec

	return s, nil
}

func (s *AuthService) AccessTTL() time.Duration {
	return s.accessTTL
}

func (s *AuthService) Login(ctx context.Context, username, password string, requestedScopes []string) (*model.TokenPair, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login", "username", username)

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrUserNotFound
		}
		l.Error("login_failed", "reason", "user lookup", "error", err)
		return nil, fmt.Errorf("load user: %w", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		l.Warn("login_failed", "reason", "wrong password")
		return nil, ErrWrongPassword
	}

	scopes := s.grantScopes(requestedScopes)
	access, accessClaims, err := s.issue(token.KindAccess, *user, scopes, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, refreshClaims, err := s.issue(token.KindRefresh, *user, scopes, s.refreshTTL)
	if err != nil {
		return nil, err
	}

	l.Info("login_successful")
	return &model.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessClaims.ExpiresAt,
		RefreshExpiresAt: refreshClaims.ExpiresAt,
	}, nil
}

// AuthorizeAccess resolves a presented access token to the current user record.
func (s *AuthService) AuthorizeAccess(ctx context.Context, raw string) (*model.AuthUser, error) {
	claims, err := s.codec.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCredentialsInvalid, err)
	}
	if claims.Kind != token.KindAccess {
		return nil, fmt.Errorf("%w: not an access token", ErrCredentialsInvalid)
	}

	if s.checkAccessDenylist {
		revoked, err := s.denylist.IsDenylisted(ctx, claims.ID)
		if err != nil {
			logging.FromContext(ctx).Error("authorize_failed", "svc", "auth.authorize", "reason", "denylist lookup", "error", err)
			return nil, fmt.Errorf("check denylist: %w", err)
		}
		if revoked {
			return nil, fmt.Errorf("%w: token revoked", ErrCredentialsInvalid)
		}
	}

	user, err := s.resolveSubject(ctx, claims)
	if err != nil {
		if errors.Is(err, errUnknownSubject) {
			return nil, fmt.Errorf("%w: %w", ErrCredentialsInvalid, err)
		}
		return nil, err
	}

	return &model.AuthUser{
		User:      *user,
		Scopes:    claims.Scopes,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// Refresh mints a new access token from a refresh token. With rotation enabled
// the presented refresh token is revoked and a new one is returned as well.
func (s *AuthService) Refresh(ctx context.Context, raw string) (*model.TokenPair, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	claims, err := s.codec.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRefreshToken, err)
	}
	if claims.Kind != token.KindRefresh {
		return nil, fmt.Errorf("%w: not a refresh token", ErrInvalidRefreshToken)
	}

	revoked, err := s.denylist.IsDenylisted(ctx, claims.ID)
	if err != nil {
		l.Error("refresh_failed", "reason", "denylist lookup", "error", err)
		return nil, fmt.Errorf("check denylist: %w", err)
	}
	if revoked {
		return nil, fmt.Errorf("%w: token revoked", ErrInvalidRefreshToken)
	}

	user, err := s.resolveSubject(ctx, claims)
	if err != nil {
		if errors.Is(err, errUnknownSubject) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRefreshToken, err)
		}
		return nil, err
	}

	// The presented jti is claimed before anything is minted, so only one of
	// several concurrent rotations of the same token can succeed.
	if s.rotateRefresh {
		claimed, err := s.denylist.ClaimDenylist(ctx, claims.ID, claims.ExpiresAt)
		if err != nil {
			l.Error("refresh_failed", "reason", "revoke rotated token", "error", err)
			return nil, fmt.Errorf("revoke refresh token: %w", err)
		}
		if !claimed {
			return nil, fmt.Errorf("%w: token already rotated", ErrInvalidRefreshToken)
		}
	}

	access, accessClaims, err := s.issue(token.KindAccess, *user, claims.Scopes, s.accessTTL)
	if err != nil {
		return nil, err
	}
	pair := &model.TokenPair{
		AccessToken:     access,
		AccessExpiresAt: accessClaims.ExpiresAt,
	}

	if s.rotateRefresh {
		refresh, refreshClaims, err := s.issue(token.KindRefresh, *user, claims.Scopes, s.refreshTTL)
		if err != nil {
			return nil, err
		}
		pair.RefreshToken = refresh
		pair.RefreshExpiresAt = refreshClaims.ExpiresAt
	}

	return pair, nil
}

// Logout denylists the refresh token's jti until the token's own expiry.
// Logging out an invalid token is an error; repeating a logout is not.
func (s *AuthService) Logout(ctx context.Context, raw string) error {
	claims, err := s.codec.Decode(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCredentialsInvalid, err)
	}
	if claims.Kind != token.KindRefresh {
		return fmt.Errorf("%w: not a refresh token", ErrCredentialsInvalid)
	}

	if err := s.denylist.AddDenylist(ctx, claims.ID, claims.ExpiresAt); err != nil {
		logging.FromContext(ctx).Error("logout_failed", "svc", "auth.logout", "reason", "cannot revoke refresh token", "error", err)
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// LogoutSession revokes the refresh token and, when access tokens are checked
// against the denylist, the access token used for the call.
func (s *AuthService) LogoutSession(ctx context.Context, refreshRaw, accessRaw string) error {
	if err := s.Logout(ctx, refreshRaw); err != nil {
		return err
	}
	if !s.checkAccessDenylist || accessRaw == "" {
		return nil
	}

	claims, err := s.codec.Decode(accessRaw)
	if err != nil || claims.Kind != token.KindAccess {
		return nil
	}
	if err := s.denylist.AddDenylist(ctx, claims.ID, claims.ExpiresAt); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	l := logging.FromContext(ctx).With("svc", "auth.password_reset_request")

	user, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if db.IsNoRows(err) {
			if s.hideUnknownResetEmail {
				l.Info("password_reset_skipped", "reason", "unknown email")
				return nil
			}
			return ErrUserNotFound
		}
		return fmt.Errorf("load user: %w", err)
	}

	now := s.now()
	reset := model.PasswordResetToken{
		ID:        s.newID(),
		UserID:    user.ID,
		ExpiresAt: now.Add(s.resetTTL),
		CreatedAt: now,
	}
	if err := s.resets.CreateResetToken(ctx, reset); err != nil {
		l.Error("password_reset_failed", "reason", "store token", "error", err)
		return fmt.Errorf("store reset token: %w", err)
	}

	if err := s.notifier.SendPasswordReset(ctx, *user, reset); err != nil {
		l.Error("password_reset_failed", "reason", "notify", "user_id", user.ID, "error", err)
		return fmt.Errorf("send reset notification: %w", err)
	}

	l.Info("password_reset_requested", "user_id", user.ID)
	return nil
}

// ResetPassword consumes a reset token exactly once and stores the new password.
func (s *AuthService) ResetPassword(ctx context.Context, resetID, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	reset, err := s.resets.GetResetToken(ctx, resetID)
	if err != nil {
		if db.IsNoRows(err) {
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("load reset token: %w", err)
	}
	if reset.ExpiresAt.Before(s.now()) {
		if err := s.resets.DeleteResetToken(ctx, reset.ID); err != nil {
			logging.FromContext(ctx).Warn("password_reset_cleanup_failed", "error", err)
		}
		return ErrResetTokenInvalid
	}

	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		if errors.Is(err, hash.ErrPasswordTooLong) {
			return ErrInvalidInput
		}
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.resets.ConsumeResetToken(ctx, reset.ID, reset.UserID, digest); err != nil {
		if db.IsNoRows(err) {
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("consume reset token: %w", err)
	}
	return nil
}

var errUnknownSubject = errors.New("unknown subject")

// resolveSubject loads the account a token was issued to. A username that was
// deleted and registered again resolves to a different id and is rejected.
func (s *AuthService) resolveSubject(ctx context.Context, claims token.Claims) (*model.User, error) {
	user, err := s.users.GetUserByUsername(ctx, claims.Subject)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, errUnknownSubject
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user.ID != claims.UserID {
		return nil, errUnknownSubject
	}
	return user, nil
}

func (s *AuthService) issue(kind token.Kind, user model.User, scopes []string, ttl time.Duration) (string, token.Claims, error) {
	now := s.now()
	claims := token.Claims{
		Subject:   user.Username,
		UserID:    user.ID,
		Scopes:    scopes,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
		Kind:      kind,
		ID:        s.newID(),
	}
	signed, err := s.codec.Encode(claims)
	if err != nil {
		return "", token.Claims{}, fmt.Errorf("issue %s token: %w", kind, err)
	}
	return signed, claims, nil
}

// grantScopes keeps the requested scopes that are configured; an empty
// request grants every configured scope.
func (s *AuthService) grantScopes(requested []string) []string {
	if len(requested) == 0 {
		return append([]string(nil), s.scopes...)
	}
	granted := make([]string, 0, len(requested))
	for _, r := range requested {
		for _, allowed := range s.scopes {
			if r == allowed && !contains(granted, r) {
				granted = append(granted, r)
			}
		}
	}
	return granted
}

// ParseScopes splits a space or comma separated scope list.
func ParseScopes(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ' ' || r == ','
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if !contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

func contains(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}

func parsePositiveInt(value string, limit int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if n <= 0 || n > limit {
		return 0, fmt.Errorf("must be between 1 and %d: %d", limit, n)
	}
	return n, nil
}

func parseBool(value string, fallback bool) (bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, err
	}
	return parsed, nil
}

// Package token encodes and decodes the signed claims sets carried by access
// and refresh tokens.
//
// Tokens are compact JWS strings (header.claims.signature, base64url) signed
// with a shared HMAC secret. The claims payload always carries
// sub, scopes, iat, exp, token_type and jti. uid pins the token to one
// account row, since usernames can be reused after an account is deleted.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

var (
	ErrInvalidSignature = errors.New("token signature invalid")
	ErrExpired          = errors.New("token expired")
	ErrMalformed        = errors.New("token malformed")
	ErrInvalidClaims    = errors.New("claims invalid")
	ErrUnsupportedAlg   = errors.New("unsupported signing algorithm")
)

type Claims struct {
	Subject   string
	UserID    int64
	Scopes    []string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Kind      Kind
	ID        string
}

type wireClaims struct {
	Scopes    []string `json:"scopes"`
	TokenType string   `json:"token_type"`
	UserID    int64    `json:"uid,omitempty"`
	jwt.RegisteredClaims
}

type Codec struct {
	secret []byte
	method jwt.SigningMethod
	now    func() time.Time
}

type Option func(*Codec)

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCodec(secret []byte, algorithm string, opts ...Option) (*Codec, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: empty secret", ErrInvalidClaims)
	}
	alg := strings.ToUpper(strings.TrimSpace(algorithm))
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlg, algorithm)
	}

	c := &Codec{
		secret: append([]byte(nil), secret...),
		method: method,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Codec) Algorithm() string {
	return c.method.Alg()
}

func (c *Codec) Encode(claims Claims) (string, error) {
	if err := validate(claims); err != nil {
		return "", err
	}

	wire := wireClaims{
		Scopes:    claims.Scopes,
		TokenType: string(claims.Kind),
		UserID:    claims.UserID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
			ID:        claims.ID,
		},
	}
	if wire.Scopes == nil {
		wire.Scopes = []string{}
	}

	signed, err := jwt.NewWithClaims(c.method, wire).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature first, then expiry, then claim structure.
func (c *Codec) Decode(raw string) (Claims, error) {
	var wire wireClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	_, err := parser.ParseWithClaims(raw, &wire, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrInvalidSignature
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrExpired
		default:
			return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	kind := Kind(wire.TokenType)
	if kind != KindAccess && kind != KindRefresh {
		return Claims{}, fmt.Errorf("%w: unknown token_type %q", ErrMalformed, wire.TokenType)
	}
	if wire.Subject == "" || wire.ID == "" || wire.IssuedAt == nil {
		return Claims{}, fmt.Errorf("%w: missing sub, jti or iat", ErrMalformed)
	}

	return Claims{
		Subject:   wire.Subject,
		UserID:    wire.UserID,
		Scopes:    wire.Scopes,
		IssuedAt:  wire.IssuedAt.Time,
		ExpiresAt: wire.ExpiresAt.Time,
		Kind:      kind,
		ID:        wire.ID,
	}, nil
}

func validate(claims Claims) error {
	switch {
	case claims.Subject == "":
		return fmt.Errorf("%w: subject required", ErrInvalidClaims)
	case claims.ID == "":
		return fmt.Errorf("%w: jti required", ErrInvalidClaims)
	case claims.Kind != KindAccess && claims.Kind != KindRefresh:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidClaims, claims.Kind)
	case !claims.ExpiresAt.After(claims.IssuedAt):
		return fmt.Errorf("%w: expiry must be after issued_at", ErrInvalidClaims)
	}
	return nil
}

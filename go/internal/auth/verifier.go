// Package auth verifies the signed tokens peers present when connecting.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenRequired = errors.New("token is required")
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token is expired")
	ErrNotConfigured = errors.New("token verifier is not configured")
)

// Config holds the HS256 signing secret and the expected issuer.
type Config struct {
	Secret string
	Issuer string
	Now    func() time.Time
}

// Claims are the validated claims of a token.
type Claims struct {
	UserID    string
	Name      string
	ExpiresAt time.Time
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewVerifier(cfg Config) (*Verifier, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, ErrNotConfigured
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Verifier{secret: []byte(secret), issuer: cfg.Issuer, now: now}, nil
}

// Verify checks the signature, expiry and issuer of token and returns its
// subject as the user id.
func (v *Verifier) Verify(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrTokenRequired
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Claims{}, ErrTokenExpired
	case err != nil:
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(parsed.Subject) == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return Claims{
		UserID:    parsed.Subject,
		Name:      parsed.Name,
		ExpiresAt: parsed.ExpiresAt.Time,
	}, nil
}

// Issue signs a token for userID. Used by dev tooling and tests.
func (v *Verifier) Issue(userID, name string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name: name,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

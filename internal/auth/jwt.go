package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the lifetime of a connection token
const DefaultTokenTTL = 1 * time.Hour

// ErrMissingSecret is returned when signing or validating without a secret
var ErrMissingSecret = errors.New("jwt secret is not configured")

// SessionClaims represents the claims of a voice stream connection token
type SessionClaims struct {
	SessionID string `json:"session_id"`
	Role      string `json:"role"` // "client"
	jwt.RegisteredClaims
}

// Signer issues and validates HS256 session tokens
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner creates a signer; ttl <= 0 falls back to DefaultTokenTTL
func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// GenerateSessionToken generates a JWT token bound to sessionID
func (s *Signer) GenerateSessionToken(sessionID string) (string, error) {
	now := s.now()
	claims := &SessionClaims{
		SessionID: sessionID,
		Role:      "client",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Token implements the transport token source
func (s *Signer) Token(sessionID string) (string, error) {
	return s.GenerateSessionToken(sessionID)
}

// ValidateToken validates a JWT token and returns the claims
func (s *Signer) ValidateToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))

	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrTokenInvalidClaims
}

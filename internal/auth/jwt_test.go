package auth

import (
	"errors"
	"testing"
	"time"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	signer, err := NewSigner("test-secret", time.Minute)
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}

	token, err := signer.GenerateSessionToken("session-1")
	if err != nil {
		t.Fatalf("GenerateSessionToken failed: %v", err)
	}

	claims, err := signer.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.SessionID != "session-1" {
		t.Errorf("Expected session-1, got %s", claims.SessionID)
	}
	if claims.Role != "client" {
		t.Errorf("Expected role client, got %s", claims.Role)
	}
}

func TestValidateTokenRejectsOtherSecret(t *testing.T) {
	a, _ := NewSigner("secret-a", time.Minute)
	b, _ := NewSigner("secret-b", time.Minute)

	token, err := a.GenerateSessionToken("session-1")
	if err != nil {
		t.Fatalf("GenerateSessionToken failed: %v", err)
	}
	if _, err := b.ValidateToken(token); err == nil {
		t.Error("Expected validation failure with a different secret")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	signer, _ := NewSigner("test-secret", time.Minute)
	issued := time.Now().Add(-time.Hour)
	signer.now = func() time.Time { return issued }

	token, err := signer.GenerateSessionToken("session-1")
	if err != nil {
		t.Fatalf("GenerateSessionToken failed: %v", err)
	}

	signer.now = time.Now
	if _, err := signer.ValidateToken(token); err == nil {
		t.Error("Expected expired token to be rejected")
	}
}

func TestNewSignerRequiresSecret(t *testing.T) {
	if _, err := NewSigner("", time.Minute); !errors.Is(err, ErrMissingSecret) {
		t.Errorf("Expected ErrMissingSecret, got %v", err)
	}

	signer, err := NewSigner("x", 0)
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}
	if signer.ttl != DefaultTokenTTL {
		t.Errorf("Expected default ttl, got %v", signer.ttl)
	}
}

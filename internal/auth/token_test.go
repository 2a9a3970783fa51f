package auth

import (
	"testing"
	"time"
)

func TestGenerateAndParse_Success(t *testing.T) {
	t.Parallel()

	tokens := NewTokenManager("super-secret", "test", time.Hour)

	tok, expiresAt, err := tokens.Generate(42)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if until := time.Until(expiresAt); until < 59*time.Minute || until > time.Hour {
		t.Fatalf("unexpected expiry: %v", expiresAt)
	}

	userID, err := tokens.Parse(tok)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if userID != 42 {
		t.Fatalf("userID mismatch: got %d want 42", userID)
	}
}

func TestGenerate_DistinctTokensSameInstant(t *testing.T) {
	t.Parallel()

	tokens := NewTokenManager("super-secret", "test", time.Hour)
	a, _, err := tokens.Generate(1)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	b, _, err := tokens.Generate(1)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if a == b {
		t.Fatal("two tokens for the same user must not collide")
	}
}

func TestParse_Expired(t *testing.T) {
	t.Parallel()

	tokens := NewTokenManager("secret", "test", -1*time.Second)
	tok, _, err := tokens.Generate(1)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if _, err := tokens.Parse(tok); err == nil {
		t.Fatal("expected error for expired token, got nil")
	}
}

func TestParse_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, _, err := NewTokenManager("right-secret", "test", time.Hour).Generate(7)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if _, err := NewTokenManager("wrong-secret", "test", time.Hour).Parse(tok); err == nil {
		t.Fatal("expected error for invalid signature, got nil")
	}
}

func TestParse_MalformedString(t *testing.T) {
	t.Parallel()

	tokens := NewTokenManager("k", "test", time.Hour)
	if _, err := tokens.Parse("not.a.jwt"); err == nil {
		t.Fatal("expected error for malformed token, got nil")
	}
}

package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestTokensRoundTrip(t *testing.T) {
	tokens := NewTokens("0123456789abcdef", "fintraka", time.Hour)
	tok, err := tokens.Issue(42)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	id, err := tokens.Verify(tok)
	if err != nil || id != 42 {
		t.Fatalf("expected user 42, got %d (err=%v)", id, err)
	}
}

func TestTokensRejects(t *testing.T) {
	tokens := NewTokens("0123456789abcdef", "fintraka", time.Hour)
	tok, _ := tokens.Issue(1)

	other := NewTokens("fedcba9876543210", "fintraka", time.Hour)
	if _, err := other.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for wrong secret, got %v", err)
	}

	wrongIssuer := NewTokens("0123456789abcdef", "someone-else", time.Hour)
	if _, err := wrongIssuer.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for wrong issuer, got %v", err)
	}

	expired := NewTokens("0123456789abcdef", "fintraka", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, _ := expired.Issue(1)
	if _, err := tokens.Verify(old); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for expired, got %v", err)
	}

	for _, garbage := range []string{"", "abc", "a.b.c"} {
		if _, err := tokens.Verify(garbage); err == nil {
			t.Fatalf("%q expected error", garbage)
		}
	}
}

func TestPasswords(t *testing.T) {
	p := NewPasswords(bcrypt.MinCost)
	hash, err := p.Hash("s3cret!")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if ok, err := p.Matches(hash, "s3cret!"); !ok || err != nil {
		t.Fatalf("expected match, got %v %v", ok, err)
	}
	if ok, err := p.Matches(hash, "wrong"); ok || err != nil {
		t.Fatalf("expected mismatch without error, got %v %v", ok, err)
	}
	if ok, err := p.Matches(hash, strings.Repeat("p", 73)); ok || err != nil {
		t.Fatalf("over-long password should be a plain mismatch, got %v %v", ok, err)
	}
	if _, err := p.Matches([]byte("not-a-hash"), "x"); err == nil {
		t.Fatalf("expected error for malformed hash")
	}
}

package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sproutvoice/backend/internal/model/usage"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestVerifyValidToken(t *testing.T) {
	v := NewJWTVerifier("test-secret")
	credential := signToken(t, "test-secret", jwt.MapClaims{"sub": "acct-1", "tier": "unlimited"})

	id, err := v.Verify(context.Background(), credential)
	if err != nil {
		t.Fatalf("Verify err: %v", err)
	}
	if id.AccountID != "acct-1" {
		t.Fatalf("unexpected account id: %s", id.AccountID)
	}
	if id.Tier != usage.TierUnlimited {
		t.Fatalf("unexpected tier: %s", id.Tier)
	}
}

func TestVerifyDefaultsToFreeTier(t *testing.T) {
	v := NewJWTVerifier("test-secret")
	credential := signToken(t, "test-secret", jwt.MapClaims{"sub": "acct-2"})

	id, err := v.Verify(context.Background(), credential)
	if err != nil {
		t.Fatalf("Verify err: %v", err)
	}
	if id.Tier != usage.TierFree {
		t.Fatalf("expected free tier, got %s", id.Tier)
	}
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	v := NewJWTVerifier("test-secret")
	credential := signToken(t, "other-secret", jwt.MapClaims{"sub": "acct-3"})

	if _, err := v.Verify(context.Background(), credential); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestVerifyRejectsEmptyAndMissingSubject(t *testing.T) {
	v := NewJWTVerifier("test-secret")

	if _, err := v.Verify(context.Background(), ""); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for empty credential, got %v", err)
	}

	credential := signToken(t, "test-secret", jwt.MapClaims{"tier": "free"})
	if _, err := v.Verify(context.Background(), credential); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for missing subject, got %v", err)
	}
}

package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sproutvoice/backend/internal/model/usage"
)

// ErrUnauthenticated rejects a channel before any session state exists.
var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is the result of a successful credential check.
type Identity struct {
	AccountID string
	Tier      usage.Tier
}

// Verifier validates a bearer credential presented at channel-open time.
type Verifier interface {
	Verify(ctx context.Context, credential string) (Identity, error)
}

// JWTVerifier validates HS256 tokens minted by the account service. The
// subject claim is the account id; an optional "tier" claim snapshots the
// subscription class at token-issue time.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier builds a verifier for the shared signing secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses and validates the credential, returning the caller identity.
func (v *JWTVerifier) Verify(_ context.Context, credential string) (Identity, error) {
	if credential == "" {
		return Identity{}, ErrUnauthenticated
	}

	token, err := jwt.Parse(credential, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrUnauthenticated
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrUnauthenticated)
	}

	tier := usage.TierFree
	if raw, ok := claims["tier"].(string); ok {
		tier = usage.ParseTier(raw)
	}

	return Identity{AccountID: sub, Tier: tier}, nil
}

package xclient

import (
	"context"
	"time"

	"agentx/internal/apperr"
)

// Credentials are user-context OAuth 2.0 tokens.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // zero means no known expiry
}

// Expired reports whether the access token has passed its expiry.
func (c Credentials) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// CredentialSupplier resolves the linked X account of a user.
// Implementations return an apperr NotFound error when none is linked.
type CredentialSupplier interface {
	DecryptedTokens(ctx context.Context, userID string) (Credentials, error)
}

// NewForUser builds a client acting as userID.
func NewForUser(ctx context.Context, supplier CredentialSupplier, userID string, opts ...Option) (*Client, error) {
	if userID == "" {
		return nil, apperr.Validation("userId", "user id is required")
	}
	creds, err := supplier.DecryptedTokens(ctx, userID)
	if err != nil {
		return nil, err
	}
	if creds.AccessToken == "" {
		return nil, apperr.New(apperr.KindNotFound, "No linked X account for user %s", userID)
	}
	return New(append(opts, WithUserCredentials(creds))...), nil
}

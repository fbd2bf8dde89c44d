package adapter

import (
	"context"
	"crypto/subtle"

	"github.com/paris-agenda/service-promotion/internal/domain"
)

// AdminAuthorizer is the interface to the external admin-authentication
// check. Every failure surfaces as the same uniform unauthorized error so
// callers cannot distinguish a missing credential from a wrong one.
type AdminAuthorizer interface {
	Authorize(ctx context.Context, credential string) error
}

// APIKeyAuthorizer authorizes admins against a single shared API key.
type APIKeyAuthorizer struct {
	key string
}

// NewAPIKeyAuthorizer creates an authorizer for the configured admin key.
func NewAPIKeyAuthorizer(key string) *APIKeyAuthorizer {
	return &APIKeyAuthorizer{key: key}
}

// Authorize compares the credential in constant time. An empty configured key
// rejects everything rather than opening the admin surface.
func (a *APIKeyAuthorizer) Authorize(_ context.Context, credential string) error {
	if a.key == "" || len(credential) != len(a.key) {
		return domain.NewUnauthorizedError()
	}
	if subtle.ConstantTimeCompare([]byte(credential), []byte(a.key)) != 1 {
		return domain.NewUnauthorizedError()
	}
	return nil
}

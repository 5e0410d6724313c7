package auth

import (
	"context"

	"github.com/Padu76/lifeOS-sub000/internal"
)

// Provider resolves a bearer token to a user. Development validates locally,
// every other environment asks the auth service.
type Provider interface {
	ValidateTokenLocal(token string) (*internal.User, error)
	ValidateTokenRemote(ctx context.Context, token string) (*internal.User, error)
}

// NewProvider picks the provider matching the environment.
func NewProvider(env, token, devUserID, authServiceURL string, logger internal.Logger) Provider {
	if env == "development" {
		return NewLocalAuthProvider(token, devUserID, logger)
	}
	return NewRemoteAuthProvider(authServiceURL, logger)
}

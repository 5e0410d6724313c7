package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/Padu76/lifeOS-sub000/internal"
)

var ErrInvalidToken = errors.New("invalid token")

// LocalAuthProvider accepts the configured token for the demo user. A token of
// the form "<token>:<user id>" impersonates another user, which lets a single
// development server drive several users.
type LocalAuthProvider struct {
	Token  string
	UserID string
	logger internal.Logger
}

func (a *LocalAuthProvider) ValidateTokenLocal(token string) (*internal.User, error) {
	base, userID, scoped := strings.Cut(token, ":")
	if subtle.ConstantTimeCompare([]byte(base), []byte(a.Token)) != 1 {
		a.logger.Warnf("invalid token presented")
		return nil, ErrInvalidToken
	}
	if !scoped {
		userID = a.UserID
	}
	if userID == "" {
		return nil, ErrInvalidToken
	}
	return &internal.User{ID: userID, Token: token, Name: "Demo User"}, nil
}

func (a *LocalAuthProvider) ValidateTokenRemote(ctx context.Context, token string) (*internal.User, error) {
	a.logger.Warnf("ValidateTokenRemote not implemented in LocalAuthProvider")
	return nil, errors.New("not implemented in LocalAuthProvider")
}

func NewLocalAuthProvider(token, userID string, logger internal.Logger) *LocalAuthProvider {
	if userID == "" {
		userID = "u1"
	}
	return &LocalAuthProvider{Token: token, UserID: userID, logger: logger}
}

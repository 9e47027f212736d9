package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// LocalStrategy validates username/password pairs against the user store.
type LocalStrategy struct {
	store Store
}

var _ Strategy = (*LocalStrategy)(nil)

func NewLocalStrategy(store Store) *LocalStrategy {
	return &LocalStrategy{store: store}
}

func (s *LocalStrategy) Name() string { return "local" }

type localCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Authenticate reads a JSON credential body and runs the local login steps.
func (s *LocalStrategy) Authenticate(ctx context.Context, r *http.Request) (*User, error) {
	var creds localCredentials
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(&creds); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.Login(ctx, creds.Username, creds.Password)
}

// Login performs the credential check. SSO accounts are refused before any
// password comparison so the password path never runs for them.
func (s *LocalStrategy) Login(ctx context.Context, username, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.Users().FindActiveByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if user.IsSSOUser {
		return nil, ErrSSOOnlyAccount
	}

	if !CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	if err := s.store.Users().TouchLastLogin(ctx, user.ID); err != nil {
		return nil, err
	}
	return user, nil
}

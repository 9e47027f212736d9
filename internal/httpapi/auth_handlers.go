package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"automationstation.io/internal/audit"
	"automationstation.io/internal/auth"
	"automationstation.io/internal/obs"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
	Title    string `json:"title"`
}

type tokenResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      *auth.User `json:"user,omitempty"`
	Roles     []string   `json:"roles"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, codeValidation, "username, email, and password are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeStoreFailure, "registration failed")
		return
	}
	user := &auth.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(req.FullName),
		Title:        strings.TrimSpace(req.Title),
		IsActive:     true,
	}
	if err := a.store.Users().Create(r.Context(), user); err != nil {
		if errors.Is(err, auth.ErrDuplicateIdentity) {
			writeError(w, r, http.StatusBadRequest, codeDuplicate, "username or email already exists")
			return
		}
		a.log.Error("register failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, codeStoreFailure, "registration failed")
		return
	}

	token, expiresAt, err := a.tokens.Issue(user)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeStoreFailure, "token generation failed")
		return
	}
	a.recorder.RecordRequest(r, user.ID, audit.ActionRegister, "auth", "", "")

	writeJSON(w, http.StatusCreated, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
		Roles:     []string{},
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, err := a.local.Authenticate(r.Context(), r)
	if err != nil {
		obs.ObserveLogin("local", false)
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeError(w, r, http.StatusUnauthorized, codeInvalidCreds, "invalid username or password")
		case errors.Is(err, auth.ErrSSOOnlyAccount):
			writeError(w, r, http.StatusUnauthorized, codeSSOOnly, "please login using SSO")
		default:
			a.log.Error("login failed", zap.Error(err))
			writeError(w, r, http.StatusInternalServerError, codeStoreFailure, "login failed")
		}
		return
	}

	roles, err := a.store.Roles().ListForUser(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeStoreFailure, "login failed")
		return
	}
	token, expiresAt, err := a.tokens.Issue(user)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeStoreFailure, "token generation failed")
		return
	}

	obs.ObserveLogin("local", true)
	a.recorder.RecordRequest(r, user.ID, audit.ActionLogin, "auth", "", "")

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
		Roles:     rolesOrEmpty(roles),
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	identity, _ := auth.IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"user":  identity.User,
		"roles": rolesOrEmpty(identity.Roles),
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	identity, _ := auth.IdentityFromContext(r.Context())
	token, expiresAt, err := a.tokens.Refresh(identity.User)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeStoreFailure, "failed to refresh token")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Roles:     rolesOrEmpty(identity.Roles),
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	identity, _ := auth.IdentityFromContext(r.Context())
	a.recorder.RecordRequest(r, identity.User.ID, audit.ActionLogout, "auth", "", "")
	// Tokens are stateless; the client discards its copy.
	writeJSON(w, http.StatusOK, map[string]any{"message": "logout successful"})
}

type profileUpdateRequest struct {
	FullName       string `json:"full_name"`
	Title          string `json:"title"`
	ProfilePicture string `json:"profile_picture"`
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"user":  identity.User,
			"roles": rolesOrEmpty(identity.Roles),
		})
	case http.MethodPut:
		var req profileUpdateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
			return
		}
		err := a.store.Users().UpdateProfile(r.Context(), identity.User.ID,
			strings.TrimSpace(req.FullName), strings.TrimSpace(req.Title), strings.TrimSpace(req.ProfilePicture))
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, codeStoreFailure, "failed to update profile")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "profile updated successfully"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func rolesOrEmpty(roles []string) []string {
	if roles == nil {
		return []string{}
	}
	return roles
}

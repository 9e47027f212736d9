package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"automationstation.io/internal/auth"
)

const (
	authHeader   = "Authorization"
	bearerScheme = "Bearer "
)

var (
	errNoToken       = errors.New("no authorization token provided")
	errInvalidFormat = errors.New("invalid token format")
)

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errNoToken
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearerScheme)) {
		return "", errInvalidFormat
	}
	token := strings.TrimSpace(header[len(bearerScheme):])
	if token == "" {
		return "", errInvalidFormat
	}
	return token, nil
}

// resolveIdentity verifies the bearer token and re-reads the user from the
// store, so deactivation takes effect on the next request even though tokens
// are stateless.
func (a *API) resolveIdentity(r *http.Request) (auth.Identity, error) {
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		return auth.Identity{}, err
	}
	claims, err := a.tokens.Verify(token)
	if err != nil {
		return auth.Identity{}, err
	}
	user, err := a.store.Users().FindActive(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return auth.Identity{}, auth.ErrUserInactive
		}
		return auth.Identity{}, err
	}
	roles, err := a.store.Roles().ListForUser(r.Context(), user.ID)
	if err != nil {
		return auth.Identity{}, err
	}
	return auth.Identity{User: user, Roles: roles}, nil
}

// requireAuth is the mandatory gate: a valid bearer token resolving to an
// active user, or 401 with a reason code.
func (a *API) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := a.resolveIdentity(r)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="automation-station"`)
			switch {
			case errors.Is(err, errNoToken):
				writeError(w, r, http.StatusUnauthorized, codeNoToken, err.Error())
			case errors.Is(err, errInvalidFormat):
				writeError(w, r, http.StatusUnauthorized, codeInvalidFormat, err.Error())
			case errors.Is(err, auth.ErrTokenExpired):
				writeError(w, r, http.StatusUnauthorized, codeTokenExpired, "token expired")
			case errors.Is(err, auth.ErrTokenInvalid):
				writeError(w, r, http.StatusUnauthorized, codeTokenInvalid, "invalid token")
			case errors.Is(err, auth.ErrUserInactive):
				writeError(w, r, http.StatusUnauthorized, codeUserInactive, "user not found or inactive")
			default:
				writeError(w, r, http.StatusInternalServerError, codeStoreFailure, "authentication failed")
			}
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), identity)))
	}
}

// requireRole layers a role check after mandatory auth. The grant is queried
// fresh from the store, so a newly granted role works with an existing token.
func (a *API) requireRole(role string, next http.HandlerFunc) http.HandlerFunc {
	return a.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := auth.IdentityFromContext(r.Context())
		ok, err := a.store.Roles().Has(r.Context(), identity.User.ID, role)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, codeStoreFailure, "authorization check failed")
			return
		}
		if !ok {
			writeError(w, r, http.StatusForbidden, codeInsufficientRole, "role '"+role+"' required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// optionalAuth attaches an identity when a valid token is present and
// otherwise proceeds anonymously; it never fails the request.
func (a *API) optionalAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if identity, err := a.resolveIdentity(r); err == nil {
			r = r.WithContext(auth.ContextWithIdentity(r.Context(), identity))
		}
		next.ServeHTTP(w, r)
	}
}

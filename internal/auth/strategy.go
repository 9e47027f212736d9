package auth

import (
	"context"
	"net/http"
)

// Strategy establishes an identity from an incoming HTTP request. Strategies
// are selected by route, not by a global registry: the login route uses the
// local strategy, the SSO callback uses the SAML processor.
type Strategy interface {
	Name() string
	Authenticate(ctx context.Context, r *http.Request) (*User, error)
}

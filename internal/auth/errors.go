package auth

import "errors"

var (
	// ErrInvalidCredentials covers unknown usernames and wrong passwords alike
	// so the two cases are indistinguishable to a caller.
	ErrInvalidCredentials = errors.New("auth: invalid username or password")

	// ErrSSOOnlyAccount is returned when a local login is attempted against an
	// account federated through SSO, regardless of the supplied password.
	ErrSSOOnlyAccount = errors.New("auth: account requires SSO login")

	// ErrMissingEmail means a SAML assertion carried no resolvable email claim.
	ErrMissingEmail = errors.New("auth: assertion has no email claim")

	// ErrTokenExpired: signature valid, expiration in the past.
	ErrTokenExpired = errors.New("auth: token expired")

	// ErrTokenInvalid: bad signature or unparseable structure.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrUserInactive means the token subject no longer exists or was
	// deactivated after the token was issued.
	ErrUserInactive = errors.New("auth: user not found or inactive")

	// ErrDuplicateIdentity is a registration collision on username or email.
	ErrDuplicateIdentity = errors.New("auth: username or email already exists")

	// ErrSSODisabled is returned by SSO routes when no IdP is configured.
	ErrSSODisabled = errors.New("auth: sso is not enabled")

	ErrNotFound = errors.New("auth: not found")
)

package auth

import "context"

// Store describes the persistence operations required by the auth subsystem.
// Uniqueness of username and email is enforced by the store's own constraints;
// the application does no pre-locking.
type Store interface {
	Users() UserStore
	Roles() RoleStore
	Audit() AuditStore
	Settings() SettingStore
}

// UserStore manages identity records.
type UserStore interface {
	// Create inserts a local account. Collisions on username or email
	// surface as ErrDuplicateIdentity.
	Create(ctx context.Context, u *User) error
	// Provision inserts an SSO account together with its default role in a
	// single transaction, so a roleless account is never left behind.
	Provision(ctx context.Context, u *User, defaultRole string) error
	Find(ctx context.Context, id string) (*User, error)
	// FindActive returns ErrNotFound for missing and deactivated users alike.
	FindActive(ctx context.Context, id string) (*User, error)
	FindActiveByUsername(ctx context.Context, username string) (*User, error)
	// FindBySSO matches on the provider-assigned subject id or the email,
	// in that order of preference.
	FindBySSO(ctx context.Context, ssoUserID, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	UpdateProfile(ctx context.Context, id, fullName, title, picture string) error
	// RefreshFromSSO updates profile fields from a fresh assertion and
	// advances last_login.
	RefreshFromSSO(ctx context.Context, id, fullName, picture string) error
	TouchLastLogin(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) error
	// Delete removes the user; role assignments cascade.
	Delete(ctx context.Context, id string) error
}

// RoleStore manages role grants.
type RoleStore interface {
	// Assign is idempotent: a duplicate (user, role) grant is a no-op.
	Assign(ctx context.Context, a RoleAssignment) error
	Remove(ctx context.Context, userID, roleName string) error
	ListForUser(ctx context.Context, userID string) ([]string, error)
	Has(ctx context.Context, userID, roleName string) (bool, error)
}

// AuditStore appends immutable entries; nothing ever updates or deletes them.
type AuditStore interface {
	Append(ctx context.Context, e *AuditEntry) error
	List(ctx context.Context, limit int) ([]*AuditEntry, error)
}

// SettingStore manages the app_config key-value table.
type SettingStore interface {
	List(ctx context.Context) ([]Setting, error)
	// Update writes an editable key and reports whether a row changed.
	Update(ctx context.Context, key, value, updatedBy string) (bool, error)
}

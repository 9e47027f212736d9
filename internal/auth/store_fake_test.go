package auth

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// memStore is an in-memory Store used across the package tests. It mirrors
// the constraint behavior of the Postgres implementation: unique username and
// email, role grants deduplicated, deletes cascading to roles.
type memStore struct {
	mu       sync.Mutex
	seq      int
	users    map[string]*User
	roles    map[string]map[string]bool
	audits   []*AuditEntry
	settings map[string]*Setting
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]*User),
		roles:    make(map[string]map[string]bool),
		settings: make(map[string]*Setting),
	}
}

func (m *memStore) Users() UserStore       { return (*memUsers)(m) }
func (m *memStore) Roles() RoleStore       { return (*memRoles)(m) }
func (m *memStore) Audit() AuditStore      { return (*memAudit)(m) }
func (m *memStore) Settings() SettingStore { return (*memSettings)(m) }

func (m *memStore) nextID() string {
	m.seq++
	return "user-" + strconv.Itoa(m.seq)
}

func copyUser(u *User) *User {
	c := *u
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	return &c
}

type memUsers memStore

func (m *memUsers) insertLocked(u *User) error {
	for _, existing := range m.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return ErrDuplicateIdentity
		}
	}
	if u.ID == "" {
		u.ID = (*memStore)(m).nextID()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	m.users[u.ID] = copyUser(u)
	return nil
}

func (m *memUsers) Create(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(u)
}

func (m *memUsers) Provision(ctx context.Context, u *User, defaultRole string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.insertLocked(u); err != nil {
		return err
	}
	now := time.Now().UTC()
	m.users[u.ID].LastLogin = &now
	if defaultRole != "" {
		if m.roles[u.ID] == nil {
			m.roles[u.ID] = make(map[string]bool)
		}
		m.roles[u.ID][defaultRole] = true
	}
	return nil
}

func (m *memUsers) Find(ctx context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(u), nil
}

func (m *memUsers) FindActive(ctx context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || !u.IsActive {
		return nil, ErrNotFound
	}
	return copyUser(u), nil
}

func (m *memUsers) FindActiveByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username && u.IsActive {
			return copyUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUsers) FindBySSO(ctx context.Context, ssoUserID, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if ssoUserID != "" && u.SSOUserID == ssoUserID {
			return copyUser(u), nil
		}
	}
	for _, u := range m.users {
		if email != "" && u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUsers) List(ctx context.Context) ([]*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, copyUser(u))
	}
	return out, nil
}

func (m *memUsers) UpdateProfile(ctx context.Context, id, fullName, title, picture string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.FullName = fullName
	u.Title = title
	u.ProfilePicture = picture
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memUsers) RefreshFromSSO(ctx context.Context, id, fullName, picture string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	if fullName != "" {
		u.FullName = fullName
	}
	if picture != "" {
		u.ProfilePicture = picture
	}
	now := time.Now().UTC()
	u.LastLogin = &now
	u.UpdatedAt = now
	return nil
}

func (m *memUsers) TouchLastLogin(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	u.LastLogin = &now
	return nil
}

func (m *memUsers) SetActive(ctx context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsActive = active
	return nil
}

func (m *memUsers) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	delete(m.roles, id)
	return nil
}

type memRoles memStore

func (m *memRoles) Assign(ctx context.Context, a RoleAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.roles[a.UserID] == nil {
		m.roles[a.UserID] = make(map[string]bool)
	}
	m.roles[a.UserID][a.RoleName] = true
	return nil
}

func (m *memRoles) Remove(ctx context.Context, userID, roleName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.roles[userID], roleName)
	return nil
}

func (m *memRoles) ListForUser(ctx context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for role := range m.roles[userID] {
		out = append(out, role)
	}
	return out, nil
}

func (m *memRoles) Has(ctx context.Context, userID, roleName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roles[userID][roleName], nil
}

type memAudit memStore

func (m *memAudit) Append(ctx context.Context, e *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *e
	c.CreatedAt = time.Now().UTC()
	m.audits = append(m.audits, &c)
	return nil
}

func (m *memAudit) List(ctx context.Context, limit int) ([]*AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*AuditEntry, len(m.audits))
	copy(out, m.audits)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type memSettings memStore

func (m *memSettings) List(ctx context.Context) ([]Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Setting
	for _, s := range m.settings {
		if s.IsEditable {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memSettings) Update(ctx context.Context, key, value, updatedBy string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[key]
	if !ok || !s.IsEditable {
		return false, nil
	}
	s.Value = value
	s.UpdatedBy = updatedBy
	s.UpdatedAt = time.Now().UTC()
	return true, nil
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"automationstation.io/internal/audit"
	"automationstation.io/internal/auth"
	"automationstation.io/internal/config"
	"automationstation.io/internal/obs"
)

// stubStore is the in-memory auth.Store used by the handler tests. Failure
// injection hooks let individual tests force store errors.
type stubStore struct {
	mu       sync.Mutex
	seq      int
	users    map[string]*auth.User
	roles    map[string]map[string]bool
	audits   []*auth.AuditEntry
	settings map[string]*auth.Setting

	appendErr error
}

func newStubStore() *stubStore {
	return &stubStore{
		users:    make(map[string]*auth.User),
		roles:    make(map[string]map[string]bool),
		settings: make(map[string]*auth.Setting),
	}
}

func (s *stubStore) Users() auth.UserStore       { return (*stubUsers)(s) }
func (s *stubStore) Roles() auth.RoleStore       { return (*stubRoles)(s) }
func (s *stubStore) Audit() auth.AuditStore      { return (*stubAudit)(s) }
func (s *stubStore) Settings() auth.SettingStore { return (*stubSettings)(s) }

type stubUsers stubStore

func (s *stubUsers) insertLocked(u *auth.User) error {
	for _, existing := range s.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return auth.ErrDuplicateIdentity
		}
	}
	if u.ID == "" {
		s.seq++
		u.ID = "user-" + strconv.Itoa(s.seq)
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	c := *u
	s.users[u.ID] = &c
	return nil
}

func (s *stubUsers) Create(ctx context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(u)
}

func (s *stubUsers) Provision(ctx context.Context, u *auth.User, defaultRole string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.insertLocked(u); err != nil {
		return err
	}
	if defaultRole != "" {
		if s.roles[u.ID] == nil {
			s.roles[u.ID] = make(map[string]bool)
		}
		s.roles[u.ID][defaultRole] = true
	}
	return nil
}

func (s *stubUsers) Find(ctx context.Context, id string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (s *stubUsers) FindActive(ctx context.Context, id string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || !u.IsActive {
		return nil, auth.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (s *stubUsers) FindActiveByUsername(ctx context.Context, username string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username && u.IsActive {
			c := *u
			return &c, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *stubUsers) FindBySSO(ctx context.Context, ssoUserID, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if ssoUserID != "" && u.SSOUserID == ssoUserID {
			c := *u
			return &c, nil
		}
	}
	for _, u := range s.users {
		if email != "" && u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *stubUsers) List(ctx context.Context) ([]*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*auth.User, 0, len(s.users))
	for _, u := range s.users {
		c := *u
		out = append(out, &c)
	}
	return out, nil
}

func (s *stubUsers) UpdateProfile(ctx context.Context, id, fullName, title, picture string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.FullName = fullName
	u.Title = title
	u.ProfilePicture = picture
	return nil
}

func (s *stubUsers) RefreshFromSSO(ctx context.Context, id, fullName, picture string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	if fullName != "" {
		u.FullName = fullName
	}
	if picture != "" {
		u.ProfilePicture = picture
	}
	return nil
}

func (s *stubUsers) TouchLastLogin(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	now := time.Now().UTC()
	u.LastLogin = &now
	return nil
}

func (s *stubUsers) SetActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.IsActive = active
	return nil
}

func (s *stubUsers) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.users, id)
	delete(s.roles, id)
	return nil
}

type stubRoles stubStore

func (s *stubRoles) Assign(ctx context.Context, a auth.RoleAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roles[a.UserID] == nil {
		s.roles[a.UserID] = make(map[string]bool)
	}
	s.roles[a.UserID][a.RoleName] = true
	return nil
}

func (s *stubRoles) Remove(ctx context.Context, userID, roleName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roles[userID], roleName)
	return nil
}

func (s *stubRoles) ListForUser(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for role := range s.roles[userID] {
		out = append(out, role)
	}
	return out, nil
}

func (s *stubRoles) Has(ctx context.Context, userID, roleName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roles[userID][roleName], nil
}

type stubAudit stubStore

func (s *stubAudit) Append(ctx context.Context, e *auth.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	c := *e
	c.CreatedAt = time.Now().UTC()
	s.audits = append(s.audits, &c)
	return nil
}

func (s *stubAudit) List(ctx context.Context, limit int) ([]*auth.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*auth.AuditEntry, len(s.audits))
	copy(out, s.audits)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type stubSettings stubStore

func (s *stubSettings) List(ctx context.Context) ([]auth.Setting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auth.Setting
	for _, st := range s.settings {
		if st.IsEditable {
			out = append(out, *st)
		}
	}
	return out, nil
}

func (s *stubSettings) Update(ctx context.Context, key, value, updatedBy string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.settings[key]
	if !ok || !st.IsEditable {
		return false, nil
	}
	st.Value = value
	st.UpdatedBy = updatedBy
	return true, nil
}

// Test harness -------------------------------------------------------------

type testAPI struct {
	*API
	store  *stubStore
	tokens *auth.Tokens
	t      *testing.T
}

func newTestAPI(t *testing.T, opts ...func(*Options)) *testAPI {
	t.Helper()
	obs.SetLogger(zap.NewNop())

	store := newStubStore()
	tokens, err := auth.NewTokens("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	o := Options{
		Config: &config.Config{
			Addr:        ":0",
			FrontendURL: "https://station.example.com",
			LoginURL:    "https://station.example.com/login",
			DefaultRole: "viewer",
		},
		Store:    store,
		Tokens:   tokens,
		Recorder: audit.NewRecorder(store.Audit(), zap.NewNop()),
		Logger:   zap.NewNop(),
		Version:  "test",
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &testAPI{API: New(o), store: store, tokens: tokens, t: t}
}

// seedUser creates an active local account with the given roles and returns
// the user with a valid bearer token.
func (a *testAPI) seedUser(username, password string, roles ...string) (*auth.User, string) {
	a.t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		a.t.Fatalf("HashPassword: %v", err)
	}
	u := &auth.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := a.store.Users().Create(context.Background(), u); err != nil {
		a.t.Fatalf("Create: %v", err)
	}
	for _, role := range roles {
		if err := a.store.Roles().Assign(context.Background(), auth.RoleAssignment{UserID: u.ID, RoleName: role}); err != nil {
			a.t.Fatalf("Assign: %v", err)
		}
	}
	token, _, err := a.tokens.Issue(u)
	if err != nil {
		a.t.Fatalf("Issue: %v", err)
	}
	return u, token
}

func (a *testAPI) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			a.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.10:40000"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	decodeBody(t, rr, &body)
	return body.Code
}

// doHandler drives a bare handler func outside the full middleware chain.
func doHandler(h http.HandlerFunc, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

var errStoreDown = errors.New("store down")

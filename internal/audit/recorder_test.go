package audit

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"automationstation.io/internal/auth"
)

type captureStore struct {
	entries   []*auth.AuditEntry
	appendErr error
	lastLimit int
}

func (s *captureStore) Append(ctx context.Context, e *auth.AuditEntry) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *captureStore) List(ctx context.Context, limit int) ([]*auth.AuditEntry, error) {
	s.lastLimit = limit
	return s.entries, nil
}

func TestRecordAppendsEntry(t *testing.T) {
	store := &captureStore{}
	rec := NewRecorder(store, nil)

	rec.Record(context.Background(), "user-1", ActionLogin, "auth", "", "ok", "10.0.0.1", "curl/8")
	if len(store.entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(store.entries))
	}
	e := store.entries[0]
	if e.UserID != "user-1" || e.Action != ActionLogin || e.IPAddress != "10.0.0.1" {
		t.Fatalf("unexpected entry %+v", e)
	}
}

func TestRecordSwallowsStoreFailure(t *testing.T) {
	store := &captureStore{appendErr: errors.New("db down")}
	rec := NewRecorder(store, nil)

	// Must not panic or propagate; the login it accompanies still succeeds.
	rec.Record(context.Background(), "user-1", ActionLogin, "auth", "", "", "", "")
}

func TestRecordRequestLiftsClientDetails(t *testing.T) {
	store := &captureStore{}
	rec := NewRecorder(store, nil)

	req := httptest.NewRequest("POST", "/api/auth/login", nil)
	req.RemoteAddr = "192.0.2.7:51000"
	req.Header.Set("User-Agent", "station-test/1.0")

	rec.RecordRequest(req, "user-1", ActionLogin, "auth", "", "")
	if len(store.entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(store.entries))
	}
	e := store.entries[0]
	if e.IPAddress != "192.0.2.7" {
		t.Fatalf("expected host without port, got %q", e.IPAddress)
	}
	if e.UserAgent != "station-test/1.0" {
		t.Fatalf("unexpected user agent %q", e.UserAgent)
	}
}

func TestListClampsLimit(t *testing.T) {
	store := &captureStore{}
	rec := NewRecorder(store, nil)

	if _, err := rec.List(context.Background(), 0); err != nil {
		t.Fatalf("List: %v", err)
	}
	if store.lastLimit != 100 {
		t.Fatalf("expected default limit 100, got %d", store.lastLimit)
	}

	if _, err := rec.List(context.Background(), 5000); err != nil {
		t.Fatalf("List: %v", err)
	}
	if store.lastLimit != 100 {
		t.Fatalf("expected oversized limit clamped, got %d", store.lastLimit)
	}

	if _, err := rec.List(context.Background(), 25); err != nil {
		t.Fatalf("List: %v", err)
	}
	if store.lastLimit != 25 {
		t.Fatalf("expected limit passed through, got %d", store.lastLimit)
	}
}

func TestClientIPHonorsForwardedFor(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	if got := ClientIP(req); got != "203.0.113.9" {
		t.Fatalf("expected first forwarded hop, got %q", got)
	}

	req.Header.Del("X-Forwarded-For")
	if got := ClientIP(req); got != "10.0.0.1" {
		t.Fatalf("expected remote host, got %q", got)
	}
}

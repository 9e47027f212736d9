package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewSlackDisabledWithoutWebhook(t *testing.T) {
	s := NewSlack("", "#general")
	if s.Enabled() {
		t.Fatal("expected nil relay to report disabled")
	}
	if err := s.Notify(context.Background(), "", "hi", nil); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestNotifyPostsPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSlack(srv.URL, "#general")
	err := s.Notify(context.Background(), "", "build complete", json.RawMessage(`[{"type":"divider"}]`))
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if got["text"] != "build complete" {
		t.Fatalf("unexpected text %v", got["text"])
	}
	if got["channel"] != "#general" {
		t.Fatalf("expected default channel fallback, got %v", got["channel"])
	}
	if got["blocks"] == nil {
		t.Fatal("expected blocks to be forwarded")
	}
}

func TestNotifyChannelOverride(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)
	}))
	defer srv.Close()

	s := NewSlack(srv.URL, "#general")
	if err := s.Notify(context.Background(), "#deploys", "rolling", nil); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if got["channel"] != "#deploys" {
		t.Fatalf("expected channel override, got %v", got["channel"])
	}
}

func TestNotifyRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewSlack(srv.URL, "")
	if err := s.Notify(context.Background(), "", "hi", nil); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

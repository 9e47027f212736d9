package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

// Stable machine-checkable error codes returned alongside the HTTP status.
const (
	codeNoToken          = "no_token"
	codeInvalidFormat    = "invalid_format"
	codeTokenExpired     = "token_expired"
	codeTokenInvalid     = "token_invalid"
	codeUserInactive     = "user_not_found_or_inactive"
	codeInvalidCreds     = "invalid_credentials"
	codeSSOOnly          = "sso_only_account"
	codeMissingEmail     = "missing_email"
	codeInsufficientRole = "insufficient_role"
	codeDuplicate        = "duplicate_identity"
	codeValidation       = "validation_failed"
	codeSSODisabled      = "sso_disabled"
	codeNotFound         = "not_found"
	codeStoreFailure     = "store_failure"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	payload := map[string]any{
		"code":  code,
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, status, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

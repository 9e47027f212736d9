package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"automationstation.io/internal/audit"
	"automationstation.io/internal/auth"
)

// handleConfigList serves GET /api/config. Any authenticated user may read
// the table; only editable keys accept writes.
func (a *API) handleConfigList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	settings, err := a.store.Settings().List(r.Context())
	if err != nil {
		a.log.Error("config listing failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, codeStoreFailure, "failed to list configuration")
		return
	}
	if settings == nil {
		settings = []auth.Setting{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"config": settings})
}

// handleConfigUpdate serves PUT /api/config/{key}.
func (a *API) handleConfigUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	key := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/config/"), "/")
	if key == "" || strings.Contains(key, "/") {
		writeError(w, r, http.StatusNotFound, codeNotFound, "route not found")
		return
	}
	var req struct {
		Value string `json:"value"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	changed, err := a.store.Settings().Update(r.Context(), key, req.Value, actorID(r))
	if err != nil {
		a.log.Error("config update failed", zap.String("key", key), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, codeStoreFailure, "failed to update configuration")
		return
	}
	if !changed {
		writeError(w, r, http.StatusNotFound, codeNotFound, "config key not found or not editable")
		return
	}
	a.recorder.RecordRequest(r, actorID(r), audit.ActionConfigUpdated, "config", key, "")
	writeJSON(w, http.StatusOK, map[string]any{"config_key": key, "config_value": req.Value})
}

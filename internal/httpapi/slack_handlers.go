package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// handleSlackNotify serves POST /api/slack/notify.
func (a *API) handleSlackNotify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.slack.Enabled() {
		writeError(w, r, http.StatusBadRequest, codeValidation, "slack integration is not enabled")
		return
	}
	var req struct {
		Channel string          `json:"channel"`
		Message string          `json:"message"`
		Blocks  json.RawMessage `json:"blocks"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" && len(req.Blocks) == 0 {
		writeError(w, r, http.StatusBadRequest, codeValidation, "message or blocks is required")
		return
	}
	if err := a.slack.Notify(r.Context(), req.Channel, req.Message, req.Blocks); err != nil {
		a.log.Error("slack delivery failed", zap.Error(err))
		writeError(w, r, http.StatusBadGateway, codeStoreFailure, "failed to deliver message")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"delivered": true})
}

// handleSlackStatus serves GET /api/slack/status.
func (a *API) handleSlackStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": a.slack.Enabled()})
}

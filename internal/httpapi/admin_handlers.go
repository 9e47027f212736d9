package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"automationstation.io/internal/audit"
	"automationstation.io/internal/auth"
)

type adminUser struct {
	*auth.User
	Roles []string `json:"roles"`
}

// handleAdminUsers serves GET /api/admin/users with each user's roles
// attached.
func (a *API) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	users, err := a.store.Users().List(r.Context())
	if err != nil {
		a.log.Error("user listing failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, codeStoreFailure, "failed to list users")
		return
	}
	out := make([]adminUser, 0, len(users))
	for _, u := range users {
		roles, err := a.store.Roles().ListForUser(r.Context(), u.ID)
		if err != nil {
			a.log.Error("role listing failed", zap.String("user_id", u.ID), zap.Error(err))
			writeError(w, r, http.StatusInternalServerError, codeStoreFailure, "failed to list users")
			return
		}
		if roles == nil {
			roles = []string{}
		}
		out = append(out, adminUser{User: u, Roles: roles})
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

// handleAdminUserScoped dispatches the /api/admin/users/{id}... subtree:
//
//	POST   /api/admin/users/{id}/roles
//	DELETE /api/admin/users/{id}/roles/{role}
//	PUT    /api/admin/users/{id}/status
//	DELETE /api/admin/users/{id}
func (a *API) handleAdminUserScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/admin/users/"), "/")
	parts := strings.Split(path, "/")
	if parts[0] == "" {
		writeError(w, r, http.StatusNotFound, codeNotFound, "route not found")
		return
	}
	userID := parts[0]
	switch {
	case len(parts) == 1:
		a.handleAdminUserDelete(w, r, userID)
	case len(parts) == 2 && parts[1] == "roles":
		a.handleRoleAssign(w, r, userID)
	case len(parts) == 3 && parts[1] == "roles":
		a.handleRoleRemove(w, r, userID, parts[2])
	case len(parts) == 2 && parts[1] == "status":
		a.handleUserStatus(w, r, userID)
	default:
		writeError(w, r, http.StatusNotFound, codeNotFound, "route not found")
	}
}

func (a *API) handleRoleAssign(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req struct {
		RoleName string `json:"role_name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	req.RoleName = strings.TrimSpace(req.RoleName)
	if req.RoleName == "" {
		writeError(w, r, http.StatusBadRequest, codeValidation, "role_name is required")
		return
	}
	if _, err := a.store.Users().Find(r.Context(), userID); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, codeNotFound, "user not found")
			return
		}
		a.log.Error("user lookup failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, codeStoreFailure, "failed to assign role")
		return
	}
	assignment := auth.RoleAssignment{
		UserID:     userID,
		RoleName:   req.RoleName,
		AssignedAt: time.Now().UTC(),
	}
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		assignment.AssignedBy = identity.User.ID
	}
	if err := a.store.Roles().Assign(r.Context(), assignment); err != nil {
		a.log.Error("role assignment failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, codeStoreFailure, "failed to assign role")
		return
	}
	a.recorder.RecordRequest(r, assignment.AssignedBy, audit.ActionRoleAssigned, "user", userID,
		"granted role "+req.RoleName)
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "role_name": req.RoleName})
}

func (a *API) handleRoleRemove(w http.ResponseWriter, r *http.Request, userID, role string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if err := a.store.Roles().Remove(r.Context(), userID, role); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, codeNotFound, "role assignment not found")
			return
		}
		a.log.Error("role removal failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, codeStoreFailure, "failed to remove role")
		return
	}
	a.recorder.RecordRequest(r, actorID(r), audit.ActionRoleRemoved, "user", userID,
		"revoked role "+role)
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "role_name": role})
}

func (a *API) handleUserStatus(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	var req struct {
		IsActive *bool `json:"is_active"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	if req.IsActive == nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, "is_active is required")
		return
	}
	if err := a.store.Users().SetActive(r.Context(), userID, *req.IsActive); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, codeNotFound, "user not found")
			return
		}
		a.log.Error("user status update failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, codeStoreFailure, "failed to update user")
		return
	}
	a.recorder.RecordRequest(r, actorID(r), audit.ActionUserStatus, "user", userID,
		"is_active set to "+strconv.FormatBool(*req.IsActive))
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "is_active": *req.IsActive})
}

func (a *API) handleAdminUserDelete(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.User.ID == userID {
		writeError(w, r, http.StatusBadRequest, codeValidation, "cannot delete your own account")
		return
	}
	if err := a.store.Users().Delete(r.Context(), userID); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, codeNotFound, "user not found")
			return
		}
		a.log.Error("user deletion failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, codeStoreFailure, "failed to delete user")
		return
	}
	a.recorder.RecordRequest(r, actorID(r), audit.ActionUserDeleted, "user", userID, "")
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "deleted": true})
}

// handleAuditList serves GET /api/admin/audit?limit=N.
func (a *API) handleAuditList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, codeValidation, "limit must be a positive integer")
			return
		}
		limit = n
	}
	entries, err := a.recorder.List(r.Context(), limit)
	if err != nil {
		a.log.Error("audit listing failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, codeStoreFailure, "failed to list audit entries")
		return
	}
	if entries == nil {
		entries = []*auth.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func actorID(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		return identity.User.ID
	}
	return ""
}

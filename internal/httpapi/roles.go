package httpapi

import (
	"net/http"
	"strings"
	"time"

	"upets/platform-service/internal/auth"
	"upets/platform-service/internal/models"
	"upets/platform-service/internal/store"

	"github.com/go-chi/chi/v5"
)

type roleRequest struct {
	Name        string `json:"name"`
	Level       int    `json:"level"`
	Description string `json:"description"`
}

type permissionRequest struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

type grantRoleRequest struct {
	Role      string     `json:"role"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (h *Handler) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListRoles(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	role, err := h.store.CreateRole(r.Context(), models.Role{
		Name:        strings.TrimSpace(req.Name),
		Level:       req.Level,
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.audit(r, "role.create", "role", role.ID, map[string]any{"name": role.Name, "level": role.Level})
	writeJSON(w, http.StatusCreated, role)
}

func (h *Handler) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	permissions, err := h.store.ListPermissions(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": permissions})
}

func (h *Handler) handleGrantPermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resource := strings.TrimSpace(req.Resource)
	action := strings.TrimSpace(req.Action)
	if resource == "" || action == "" {
		h.fail(w, r, &store.ValidationError{Field: "resource", Message: "resource and action are required"})
		return
	}
	roleName := chi.URLParam(r, "role")
	if err := h.store.GrantPermission(r.Context(), roleName, resource, action); err != nil {
		h.fail(w, r, err)
		return
	}
	h.audit(r, "permission.grant", "role", roleName, map[string]any{"permission": store.PermissionKey(resource, action)})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListUserRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListUserRoles(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if roles == nil {
		roles = []models.UserRole{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

// handleGrantRole grants and drops the cached snapshot so the new level
// applies to the user's next request.
func (h *Handler) handleGrantRole(w http.ResponseWriter, r *http.Request) {
	var req grantRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	userID := chi.URLParam(r, "id")
	grant, err := h.store.GrantRole(r.Context(), store.GrantRoleInput{
		UserID:    userID,
		RoleName:  strings.TrimSpace(req.Role),
		GrantedBy: auth.UserID(r.Context()),
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.resolver.Invalidate(userID)
	writeJSON(w, http.StatusCreated, grant)
}

func (h *Handler) handleRevokeRole(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if err := h.store.RevokeRole(r.Context(), userID, chi.URLParam(r, "role")); err != nil {
		h.fail(w, r, err)
		return
	}
	h.resolver.Invalidate(userID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := h.store.ListAudit(r.Context(), store.AuditFilter{
		ActorUserID: strings.TrimSpace(q.Get("actor_user_id")),
		ActionType:  strings.TrimSpace(q.Get("action_type")),
		TargetType:  strings.TrimSpace(q.Get("target_type")),
		TargetID:    strings.TrimSpace(q.Get("target_id")),
		Limit:       queryInt(r, "limit"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.AuditLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit": entries})
}

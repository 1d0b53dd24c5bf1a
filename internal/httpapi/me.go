package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"upets/platform-service/internal/auth"
	"upets/platform-service/internal/models"
	"upets/platform-service/internal/store"
)

type meResponse struct {
	UserID  string             `json:"user_id"`
	Email   string             `json:"email,omitempty"`
	Profile *models.Profile    `json:"profile,omitempty"`
	Roles   []models.RoleGrant `json:"roles"`
	Level   int                `json:"level"`
}

type profileRequest struct {
	FullName     string `json:"full_name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Whatsapp     string `json:"whatsapp"`
	Address      string `json:"address"`
	City         string `json:"city"`
	ShowName     bool   `json:"show_name"`
	ShowPhone    bool   `json:"show_phone"`
	ShowEmail    bool   `json:"show_email"`
	ShowWhatsapp bool   `json:"show_whatsapp"`
	ShowAddress  bool   `json:"show_address"`
}

type sessionEventRequest struct {
	Event string `json:"event"`
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	resp := meResponse{UserID: userID, Roles: []models.RoleGrant{}}
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		resp.Email = claims.Email
	}

	profile, err := h.store.GetProfile(r.Context(), userID)
	switch {
	case err == nil:
		resp.Profile = &profile
	case errors.Is(err, store.ErrProfileNotFound):
	default:
		h.fail(w, r, err)
		return
	}

	snapshot := h.resolver.Snapshot(r.Context(), userID)
	if snapshot.Roles != nil {
		resp.Roles = snapshot.Roles
	}
	resp.Level = snapshot.Level()
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	profile, err := h.store.UpsertProfile(r.Context(), models.Profile{
		UserID:       auth.UserID(r.Context()),
		FullName:     strings.TrimSpace(req.FullName),
		Email:        strings.TrimSpace(req.Email),
		Phone:        strings.TrimSpace(req.Phone),
		Whatsapp:     strings.TrimSpace(req.Whatsapp),
		Address:      strings.TrimSpace(req.Address),
		City:         strings.TrimSpace(req.City),
		ShowName:     req.ShowName,
		ShowPhone:    req.ShowPhone,
		ShowEmail:    req.ShowEmail,
		ShowWhatsapp: req.ShowWhatsapp,
		ShowAddress:  req.ShowAddress,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// handleSessionEvent keeps the role cache in step with the identity
// provider's session lifecycle.
func (h *Handler) handleSessionEvent(w http.ResponseWriter, r *http.Request) {
	var req sessionEventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	userID := auth.UserID(r.Context())
	switch req.Event {
	case "signed_in", "token_refreshed":
		snapshot, err := h.resolver.Refresh(r.Context(), userID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": snapshot.Roles, "level": snapshot.Level()})
	case "signed_out":
		h.resolver.Invalidate(userID)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "event must be signed_in, token_refreshed or signed_out")
	}
}

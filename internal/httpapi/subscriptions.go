package httpapi

import (
	"net/http"
	"strings"

	"upets/platform-service/internal/auth"
	"upets/platform-service/internal/models"
	"upets/platform-service/internal/store"

	"github.com/go-chi/chi/v5"
)

type subscriptionRequest struct {
	QRCodeID string `json:"qr_code_id"`
	PlanType string `json:"plan_type"`
}

type subscriptionActionRequest struct {
	Action string `json:"action"`
}

type paymentRequest struct {
	PaymentStatus string `json:"payment_status"`
}

func (h *Handler) handleListMySubscriptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.listSubscriptions(w, r, store.SubscriptionFilter{
		UserID: auth.UserID(r.Context()),
		QRID:   strings.TrimSpace(q.Get("qr_code_id")),
		Status: strings.TrimSpace(q.Get("status")),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	})
}

func (h *Handler) handleAdminListSubscriptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.listSubscriptions(w, r, store.SubscriptionFilter{
		UserID:        strings.TrimSpace(q.Get("user_id")),
		QRID:          strings.TrimSpace(q.Get("qr_code_id")),
		Status:        strings.TrimSpace(q.Get("status")),
		PaymentStatus: strings.TrimSpace(q.Get("payment_status")),
		Limit:         queryInt(r, "limit"),
		Offset:        queryInt(r, "offset"),
	})
}

func (h *Handler) listSubscriptions(w http.ResponseWriter, r *http.Request, filter store.SubscriptionFilter) {
	if filter.Status != "" && !models.ValidSubscriptionStatus(filter.Status) {
		h.fail(w, r, &store.ValidationError{Field: "status", Message: "unknown subscription status"})
		return
	}
	if filter.PaymentStatus != "" && !models.ValidPaymentStatus(filter.PaymentStatus) {
		h.fail(w, r, &store.ValidationError{Field: "payment_status", Message: "unknown payment status"})
		return
	}
	subs, err := h.store.ListSubscriptions(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if subs == nil {
		subs = []models.Subscription{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscriptions": subs})
}

func (h *Handler) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sub, err := h.store.CreateSubscription(r.Context(), store.CreateSubscriptionInput{
		QRID:     strings.TrimSpace(req.QRCodeID),
		UserID:   auth.UserID(r.Context()),
		PlanType: strings.TrimSpace(req.PlanType),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// ownedSubscription loads a subscription the caller may see. Other users'
// rows are reported as missing.
func (h *Handler) ownedSubscription(r *http.Request, id string) (models.Subscription, error) {
	sub, err := h.store.GetSubscription(r.Context(), id)
	if err != nil {
		return models.Subscription{}, err
	}
	if sub.UserID != auth.UserID(r.Context()) && !h.isAdmin(r) {
		return models.Subscription{}, store.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (h *Handler) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.ownedSubscription(r, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) handleSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	var req subscriptionActionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sub, err := h.ownedSubscription(r, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	updated, err := h.store.UpdateSubscriptionStatus(r.Context(), sub.ID, strings.TrimSpace(req.Action))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sub, err := h.store.RecordPaymentResult(r.Context(), chi.URLParam(r, "id"), strings.TrimSpace(req.PaymentStatus))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.audit(r, "subscription.payment", "subscription", sub.ID, map[string]any{"payment_status": sub.PaymentStatus})
	writeJSON(w, http.StatusOK, sub)
}

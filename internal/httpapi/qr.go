package httpapi

import (
	"net/http"
	"strings"

	"upets/platform-service/internal/auth"
	"upets/platform-service/internal/models"
	"upets/platform-service/internal/store"

	"github.com/go-chi/chi/v5"
)

type activateRequest struct {
	PetID    string `json:"pet_id"`
	PlanType string `json:"plan_type"`
}

type transitionRequest struct {
	Action string `json:"action"`
	Notes  string `json:"notes"`
}

type generateRequest struct {
	Quantity     int     `json:"quantity"`
	QRType       string  `json:"qr_type"`
	PricePerUnit float64 `json:"price_per_unit"`
	BranchID     string  `json:"branch_id"`
	Notes        string  `json:"notes"`
}

type printRequest struct {
	Reason      string `json:"reason"`
	Quality     string `json:"quality"`
	PrinterInfo string `json:"printer_info"`
	Notes       string `json:"notes"`
}

type idsRequest struct {
	QRIDs []string `json:"qr_ids"`
	Notes string   `json:"notes"`
}

type assignRequest struct {
	QRIDs     []string `json:"qr_ids"`
	CompanyID string   `json:"company_id"`
	BranchID  string   `json:"branch_id"`
	Notes     string   `json:"notes"`
	Reassign  bool     `json:"reassign"`
}

// lookupQR accepts either the row id or the printed code.
func (h *Handler) lookupQR(r *http.Request, ref string) (models.QRCode, error) {
	if store.ValidCodeFormat(ref) {
		return h.store.GetQRCodeByCode(r.Context(), ref)
	}
	return h.store.GetQRCode(r.Context(), ref)
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	qr, err := h.lookupQR(r, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	activated, err := h.store.Activate(r.Context(), store.ActivateInput{
		QRID:     qr.ID,
		PetID:    strings.TrimSpace(req.PetID),
		OwnerID:  auth.UserID(r.Context()),
		PlanType: strings.TrimSpace(req.PlanType),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.metrics.Transitions.WithLabelValues(store.ActionActivate).Inc()
	writeJSON(w, http.StatusOK, activated)
}

// handleOwnerTransition lets an owner report their own tag lost or found
// and bring a found tag back to active. Admins calling this route act with
// the full transition table.
func (h *Handler) handleOwnerTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	input := req.input(auth.UserID(r.Context()))
	if !store.OwnerActions[input.Action] {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "action must be report_lost, report_found or reactivate")
		return
	}
	qr, err := h.lookupQR(r, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	input.QRID = qr.ID
	input.AsOwner = !h.isAdmin(r)
	h.transition(w, r, input)
}

func (h *Handler) handleAdminTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	input := req.input(auth.UserID(r.Context()))
	input.QRID = chi.URLParam(r, "id")
	h.transition(w, r, input)
}

func (req transitionRequest) input(actorID string) store.TransitionInput {
	return store.TransitionInput{
		Action:  strings.TrimSpace(req.Action),
		ActorID: actorID,
		Notes:   strings.TrimSpace(req.Notes),
	}
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, input store.TransitionInput) {
	qr, err := h.store.Transition(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.metrics.Transitions.WithLabelValues(input.Action).Inc()
	writeJSON(w, http.StatusOK, qr)
}

func (h *Handler) handleMyQRCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := h.store.ListQRCodes(r.Context(), store.QRFilter{
		OwnerID: auth.UserID(r.Context()),
		Limit:   queryInt(r, "limit"),
		Offset:  queryInt(r, "offset"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeQRList(w, codes)
}

func (h *Handler) handleGenerateBatch(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.store.GenerateBatch(r.Context(), store.GenerateInput{
		Quantity:     req.Quantity,
		QRType:       strings.TrimSpace(req.QRType),
		PricePerUnit: req.PricePerUnit,
		BranchID:     strings.TrimSpace(req.BranchID),
		Notes:        strings.TrimSpace(req.Notes),
		CreatedBy:    auth.UserID(r.Context()),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.metrics.CodesGenerated.Add(float64(len(result.Codes)))
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.store.ListBatches(r.Context(), queryInt(r, "limit"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if batches == nil {
		batches = []models.Batch{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func qrFilterFromQuery(r *http.Request) (store.QRFilter, error) {
	q := r.URL.Query()
	filter := store.QRFilter{
		Status:    strings.TrimSpace(q.Get("status")),
		QRType:    strings.TrimSpace(q.Get("qr_type")),
		CompanyID: strings.TrimSpace(q.Get("company_id")),
		BranchID:  strings.TrimSpace(q.Get("branch_id")),
		BatchID:   strings.TrimSpace(q.Get("batch_id")),
		OwnerID:   strings.TrimSpace(q.Get("owner_id")),
		Search:    strings.TrimSpace(q.Get("search")),
		Limit:     queryInt(r, "limit"),
		Offset:    queryInt(r, "offset"),
	}
	if filter.Status != "" && !models.ValidQRStatus(filter.Status) {
		return filter, &store.ValidationError{Field: "status", Message: "unknown qr status"}
	}
	if filter.QRType != "" && !models.ValidQRType(filter.QRType) {
		return filter, &store.ValidationError{Field: "qr_type", Message: "unknown qr type"}
	}
	var err error
	if filter.Assigned, err = store.ParseTriState(q.Get("assigned")); err != nil {
		return filter, err
	}
	if filter.Printed, err = store.ParseTriState(q.Get("printed")); err != nil {
		return filter, err
	}
	if filter.CreatedFrom, err = queryTime(r, "created_from"); err != nil {
		return filter, err
	}
	if filter.CreatedTo, err = queryTime(r, "created_to"); err != nil {
		return filter, err
	}
	return filter, nil
}

func (h *Handler) handleListQRCodes(w http.ResponseWriter, r *http.Request) {
	filter, err := qrFilterFromQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	codes, err := h.store.ListQRCodes(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeQRList(w, codes)
}

func writeQRList(w http.ResponseWriter, codes []models.QRCode) {
	if codes == nil {
		codes = []models.QRCode{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"qr_codes": codes})
}

func (h *Handler) handleGetQRCode(w http.ResponseWriter, r *http.Request) {
	qr, err := h.lookupQR(r, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, qr)
}

func (h *Handler) handleRecordPrint(w http.ResponseWriter, r *http.Request) {
	var req printRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := h.store.RecordPrint(r.Context(), store.RecordPrintInput{
		QRID:        chi.URLParam(r, "id"),
		PrintedBy:   auth.UserID(r.Context()),
		Reason:      strings.TrimSpace(req.Reason),
		Quality:     strings.TrimSpace(req.Quality),
		PrinterInfo: strings.TrimSpace(req.PrinterInfo),
		Notes:       strings.TrimSpace(req.Notes),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.metrics.Prints.Inc()
	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleListPrints(w http.ResponseWriter, r *http.Request) {
	history, err := h.store.ListPrintHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prints": history})
}

func (h *Handler) handleListScans(w http.ResponseWriter, r *http.Request) {
	scans, err := h.store.ListScans(r.Context(), chi.URLParam(r, "id"), queryInt(r, "limit"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if scans == nil {
		scans = []models.QRScan{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"scans": scans})
}

func (h *Handler) handleMarkPrinted(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	codes, err := h.store.MarkPrinted(r.Context(), req.QRIDs, auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.metrics.Transitions.WithLabelValues(store.ActionMarkPrinted).Add(float64(len(codes)))
	writeQRList(w, codes)
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	codes, err := h.store.AssignToCompany(r.Context(), store.AssignInput{
		QRIDs:     req.QRIDs,
		CompanyID: strings.TrimSpace(req.CompanyID),
		BranchID:  strings.TrimSpace(req.BranchID),
		Notes:     strings.TrimSpace(req.Notes),
		ActorID:   auth.UserID(r.Context()),
		Reassign:  req.Reassign,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	action := store.ActionAssign
	if req.Reassign {
		action = store.ActionReassign
	}
	h.metrics.Transitions.WithLabelValues(action).Add(float64(len(codes)))
	writeQRList(w, codes)
}

func (h *Handler) handleUnassign(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	codes, err := h.store.Unassign(r.Context(), store.UnassignInput{
		QRIDs:   req.QRIDs,
		Notes:   strings.TrimSpace(req.Notes),
		ActorID: auth.UserID(r.Context()),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.metrics.Transitions.WithLabelValues(store.ActionUnassign).Add(float64(len(codes)))
	writeQRList(w, codes)
}

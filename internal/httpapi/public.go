package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"upets/platform-service/internal/qrimage"
	"upets/platform-service/internal/store"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// handleQRImage renders the tag image without touching the store, so it
// keeps working for print jobs while the database is down.
func (h *Handler) handleQRImage(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if !store.ValidCodeFormat(code) {
		h.fail(w, r, store.ErrQRNotFound)
		return
	}
	png, err := h.images.PNG(code, qrimage.ClampSize(queryInt(r, "size")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// handlePublicResolve is what a finder's phone opens. Every resolution of
// an existing code counts as a scan.
func (h *Handler) handlePublicResolve(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if !store.ValidCodeFormat(code) {
		h.fail(w, r, store.ErrQRNotFound)
		return
	}
	qr, err := h.store.GetQRCodeByCode(r.Context(), code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	_, err = h.store.RecordScan(r.Context(), store.RecordScanInput{
		QRID:      qr.ID,
		ScannerIP: clientIP(r),
		UserAgent: r.UserAgent(),
		Location:  strings.TrimSpace(r.URL.Query().Get("location")),
	})
	if err != nil {
		loggerFrom(r).Warn("scan not recorded", zap.String("code", code), zap.Error(err))
	} else {
		h.metrics.Scans.Inc()
	}
	view, err := h.store.ResolvePublic(r.Context(), code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handlePublicContact(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if !store.ValidCodeFormat(code) {
		h.fail(w, r, store.ErrQRNotFound)
		return
	}
	qr, err := h.store.GetQRCodeByCode(r.Context(), code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	scan, err := h.store.MarkContactMade(r.Context(), qr.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scan_id": scan.ID, "contact_made": scan.ContactMade})
}

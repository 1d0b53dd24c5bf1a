package httpapi

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"upets/platform-service/internal/models"
	"upets/platform-service/internal/store"

	"go.uber.org/zap"
)

var exportHeader = []string{
	"code", "url", "qr_type", "status", "batch_id", "assigned_company_id", "assigned_branch_id",
	"is_printed", "print_count", "scan_count", "created_at", "expires_at",
}

// handleExportQRCodes streams the filtered inventory as CSV, the list a
// print vendor works from. Paging is internal; limit and offset are ignored.
func (h *Handler) handleExportQRCodes(w http.ResponseWriter, r *http.Request) {
	filter, err := qrFilterFromQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	filter.Limit = store.MaxListLimit
	filter.Offset = 0

	// first page before any header is written so a failure can still map to JSON
	page, err := h.store.ListQRCodes(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=qr-codes.csv")
	writer := csv.NewWriter(w)
	_ = writer.Write(exportHeader)
	for {
		for _, qr := range page {
			_ = writer.Write(h.exportRow(qr))
		}
		if len(page) < filter.Limit {
			break
		}
		filter.Offset += len(page)
		page, err = h.store.ListQRCodes(r.Context(), filter)
		if err != nil {
			loggerFrom(r).Error("export aborted", zap.Int("offset", filter.Offset), zap.Error(err))
			break
		}
	}
	writer.Flush()
}

func (h *Handler) exportRow(qr models.QRCode) []string {
	return []string{
		qr.Code,
		h.images.URL(qr.Code),
		qr.QRType,
		qr.Status,
		deref(qr.BatchID),
		deref(qr.AssignedCompanyID),
		deref(qr.AssignedBranchID),
		strconv.FormatBool(qr.IsPrinted),
		strconv.Itoa(qr.PrintCount),
		strconv.Itoa(qr.ScanCount),
		qr.CreatedAt.Format(time.RFC3339),
		formatTime(qr.ExpiresAt),
	}
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func formatTime(value *time.Time) string {
	if value == nil {
		return ""
	}
	return value.Format(time.RFC3339)
}

package httpapi

import (
	"net/http"
	"strings"

	"upets/platform-service/internal/auth"
	"upets/platform-service/internal/models"
	"upets/platform-service/internal/store"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type companyRequest struct {
	Name           string  `json:"name"`
	Type           string  `json:"type"`
	Email          string  `json:"email"`
	Phone          string  `json:"phone"`
	Address        string  `json:"address"`
	City           string  `json:"city"`
	ContactName    string  `json:"contact_name"`
	CommissionRate float64 `json:"commission_rate"`
	Status         string  `json:"status"`
}

func (req companyRequest) company() models.Company {
	return models.Company{
		Name:           req.Name,
		Type:           strings.TrimSpace(req.Type),
		Email:          req.Email,
		Phone:          strings.TrimSpace(req.Phone),
		Address:        strings.TrimSpace(req.Address),
		City:           req.City,
		ContactName:    strings.TrimSpace(req.ContactName),
		CommissionRate: req.CommissionRate,
		Status:         strings.TrimSpace(req.Status),
	}
}

type statusRequest struct {
	Status string `json:"status"`
}

type branchRequest struct {
	CompanyID   string `json:"company_id"`
	Name        string `json:"name"`
	Address     string `json:"address"`
	City        string `json:"city"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	ManagerName string `json:"manager_name"`
	Status      string `json:"status"`
}

func (req branchRequest) branch() models.Branch {
	return models.Branch{
		CompanyID:   strings.TrimSpace(req.CompanyID),
		Name:        req.Name,
		Address:     strings.TrimSpace(req.Address),
		City:        strings.TrimSpace(req.City),
		Phone:       strings.TrimSpace(req.Phone),
		Email:       strings.TrimSpace(req.Email),
		ManagerName: strings.TrimSpace(req.ManagerName),
		Status:      strings.TrimSpace(req.Status),
	}
}

func (h *Handler) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.CompanyFilter{
		Type:   strings.TrimSpace(q.Get("type")),
		Status: strings.TrimSpace(q.Get("status")),
		Search: strings.TrimSpace(q.Get("search")),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}
	var err error
	if filter.CreatedFrom, err = queryTime(r, "created_from"); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.CreatedTo, err = queryTime(r, "created_to"); err != nil {
		h.fail(w, r, err)
		return
	}
	companies, err := h.store.ListCompanies(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if companies == nil {
		companies = []models.Company{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"companies": companies})
}

func (h *Handler) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	var req companyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	company := req.company()
	company.CreatedBy = auth.UserID(r.Context())
	created, err := h.store.CreateCompany(r.Context(), company)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.audit(r, "company.create", "company", created.ID, map[string]any{"name": created.Name})
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	company, err := h.store.GetCompany(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, company)
}

// handleUpdateCompany replaces the editable fields. An omitted status keeps
// the current one; status changes normally go through the status route.
func (h *Handler) handleUpdateCompany(w http.ResponseWriter, r *http.Request) {
	var req companyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	current, err := h.store.GetCompany(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	company := req.company()
	company.ID = current.ID
	if company.Status == "" {
		company.Status = current.Status
	}
	updated, err := h.store.UpdateCompany(r.Context(), company)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.audit(r, "company.update", "company", updated.ID, nil)
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleCompanyStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	company, err := h.store.SetCompanyStatus(r.Context(), chi.URLParam(r, "id"), strings.TrimSpace(req.Status))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.audit(r, "company.status", "company", company.ID, map[string]any{"status": company.Status})
	writeJSON(w, http.StatusOK, company)
}

func (h *Handler) handleDeleteCompany(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "id")
	if err := h.store.DeleteCompany(r.Context(), companyID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.audit(r, "company.delete", "company", companyID, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListBranches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	branches, err := h.store.ListBranches(r.Context(), store.BranchFilter{
		CompanyID: strings.TrimSpace(q.Get("company_id")),
		Status:    strings.TrimSpace(q.Get("status")),
		Search:    strings.TrimSpace(q.Get("search")),
		Limit:     queryInt(r, "limit"),
		Offset:    queryInt(r, "offset"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if branches == nil {
		branches = []models.Branch{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"branches": branches})
}

func (h *Handler) handleCreateBranch(w http.ResponseWriter, r *http.Request) {
	var req branchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	branch, err := h.store.CreateBranch(r.Context(), req.branch())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.audit(r, "branch.create", "branch", branch.ID, map[string]any{"company_id": branch.CompanyID})
	writeJSON(w, http.StatusCreated, branch)
}

func (h *Handler) handleGetBranch(w http.ResponseWriter, r *http.Request) {
	branch, err := h.store.GetBranch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, branch)
}

func (h *Handler) handleUpdateBranch(w http.ResponseWriter, r *http.Request) {
	var req branchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	current, err := h.store.GetBranch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	branch := req.branch()
	branch.ID = current.ID
	if branch.CompanyID == "" {
		branch.CompanyID = current.CompanyID
	}
	if branch.Status == "" {
		branch.Status = current.Status
	}
	updated, err := h.store.UpdateBranch(r.Context(), branch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.audit(r, "branch.update", "branch", updated.ID, nil)
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteBranch(w http.ResponseWriter, r *http.Request) {
	branchID := chi.URLParam(r, "id")
	if err := h.store.DeleteBranch(r.Context(), branchID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.audit(r, "branch.delete", "branch", branchID, nil)
	w.WriteHeader(http.StatusNoContent)
}

// audit records an administrative action. Failures are logged and never
// fail the request that already succeeded.
func (h *Handler) audit(r *http.Request, action, targetType, targetID string, details map[string]any) {
	err := h.store.InsertAudit(r.Context(), models.AuditLog{
		ActorUserID: auth.UserID(r.Context()),
		ActionType:  action,
		TargetType:  targetType,
		TargetID:    targetID,
		Details:     details,
		IP:          clientIP(r),
		UserAgent:   r.UserAgent(),
	})
	if err != nil {
		loggerFrom(r).Warn("audit insert failed", zap.String("action", action), zap.Error(err))
	}
}

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"upets/platform-service/internal/access"
	"upets/platform-service/internal/auth"
	"upets/platform-service/internal/cart"
	"upets/platform-service/internal/metrics"
	"upets/platform-service/internal/qrimage"
	"upets/platform-service/internal/store"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	store    store.Store
	plans    *store.PlanTable
	resolver *access.Resolver
	verifier *auth.Verifier
	carts    *cart.Store
	images   qrimage.Renderer
	metrics  *metrics.Metrics
	log      *zap.Logger
	limiter  *RateLimiter
	public   *RateLimiter

	authDisabled   bool
	trustedProxies []netip.Prefix
}

type Options struct {
	Store        store.Store
	Plans        *store.PlanTable
	Resolver     *access.Resolver
	Verifier     *auth.Verifier
	AuthDisabled bool
	Carts        *cart.Store
	Images       qrimage.Renderer
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
	RateLimit    RateLimitConfig
	PublicLimit  RateLimitConfig

	// TrustedProxies are the peers whose X-Forwarded-For is honoured.
	TrustedProxies []netip.Prefix
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// NewHandler wires the API. A nil Store leaves the data routes answering
// 503 not_configured while health, metrics and plans keep working.
func NewHandler(options Options) *Handler {
	log := options.Logger
	if log == nil {
		log = zap.NewNop()
	}
	m := options.Metrics
	if m == nil {
		m = metrics.New()
	}
	plans := options.Plans
	if plans == nil {
		plans = store.DefaultPlans()
	}
	carts := options.Carts
	if carts == nil {
		carts = cart.NewStore()
	}
	resolver := options.Resolver
	if resolver == nil && options.Store != nil {
		resolver = access.NewResolver(options.Store, access.Options{TTL: 30 * time.Second, Logger: log, Metrics: m})
	}
	return &Handler{
		store:        options.Store,
		plans:        plans,
		resolver:     resolver,
		verifier:     options.Verifier,
		carts:        carts,
		images:       options.Images,
		metrics:      m,
		log:          log,
		limiter:      NewRateLimiter(options.RateLimit),
		public:       NewRateLimiter(options.PublicLimit),
		authDisabled: options.AuthDisabled,

		trustedProxies: options.TrustedProxies,
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(h.clientIPMiddleware)
	r.Use(h.loggingMiddleware)
	r.Use(h.metricsMiddleware)

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	r.Handle(realtimeCartPrefix+"/*", h.cartRealtime())

	r.Route("/api", func(api chi.Router) {
		api.Get("/plans", h.handleListPlans)

		api.Route("/public/qr/{code}", func(pub chi.Router) {
			pub.Use(h.public.Middleware)
			pub.Get("/image.png", h.handleQRImage)
			pub.Group(func(data chi.Router) {
				data.Use(h.requireStore)
				data.Get("/", h.handlePublicResolve)
				data.Post("/contact", h.handlePublicContact)
			})
		})

		api.Group(func(authed chi.Router) {
			authed.Use(auth.Middleware(h.verifier, auth.MiddlewareConfig{
				Disabled: h.authDisabled,
				Logger:   h.log,
				OnError:  writeAuthError,
			}))
			authed.Use(trackUser)
			authed.Use(h.limiter.Middleware)

			authed.Route("/cart", func(c chi.Router) {
				c.Get("/", h.handleGetCart)
				c.Delete("/", h.handleClearCart)
				c.Get("/stream", h.handleCartStream)
				c.Post("/items", h.handleAddCartItem)
				c.Patch("/items/{productID}", h.handleUpdateCartItem)
				c.Delete("/items/{productID}", h.handleRemoveCartItem)
			})

			authed.Group(func(data chi.Router) {
				data.Use(h.requireStore)
				h.ownerRoutes(data)
				data.Route("/admin", func(admin chi.Router) {
					admin.Use(h.requireLevel(store.AdminLevel))
					h.adminRoutes(admin)
				})
			})
		})
	})
	return r
}

func (h *Handler) ownerRoutes(r chi.Router) {
	r.Get("/me", h.handleMe)
	r.Put("/me/profile", h.handleUpdateProfile)
	r.Get("/me/qr", h.handleMyQRCodes)
	r.Post("/session/events", h.handleSessionEvent)

	r.Get("/pets", h.handleListPets)
	r.Post("/pets", h.handleCreatePet)
	r.Get("/pets/{id}", h.handleGetPet)
	r.Put("/pets/{id}", h.handleUpdatePet)
	r.Delete("/pets/{id}", h.handleDeletePet)

	r.Post("/qr/{id}/activate", h.handleActivate)
	r.Post("/qr/{id}/transitions", h.handleOwnerTransition)

	r.Get("/subscriptions", h.handleListMySubscriptions)
	r.Post("/subscriptions", h.handleCreateSubscription)
	r.Get("/subscriptions/{id}", h.handleGetSubscription)
	r.Post("/subscriptions/{id}/status", h.handleSubscriptionStatus)
}

func (h *Handler) adminRoutes(r chi.Router) {
	perm := h.requirePermission

	r.With(perm(store.ResourceQRCodes, store.PermCreate)).Post("/qr/batches", h.handleGenerateBatch)
	r.With(perm(store.ResourceQRCodes, store.PermRead)).Get("/qr/batches", h.handleListBatches)
	r.With(perm(store.ResourceQRCodes, store.PermRead)).Get("/qr", h.handleListQRCodes)
	r.With(perm(store.ResourceQRCodes, store.PermRead)).Get("/qr/export", h.handleExportQRCodes)
	r.With(perm(store.ResourceQRCodes, store.PermPrint)).Post("/qr/mark-printed", h.handleMarkPrinted)
	r.With(perm(store.ResourceQRCodes, store.PermAssign)).Post("/qr/assign", h.handleAssign)
	r.With(perm(store.ResourceQRCodes, store.PermAssign)).Post("/qr/unassign", h.handleUnassign)
	r.With(perm(store.ResourceQRCodes, store.PermRead)).Get("/qr/{id}", h.handleGetQRCode)
	r.With(perm(store.ResourceQRCodes, store.PermPrint)).Post("/qr/{id}/prints", h.handleRecordPrint)
	r.With(perm(store.ResourceQRCodes, store.PermRead)).Get("/qr/{id}/prints", h.handleListPrints)
	r.With(perm(store.ResourceQRCodes, store.PermRead)).Get("/qr/{id}/scans", h.handleListScans)
	r.With(perm(store.ResourceQRCodes, store.PermTransition)).Post("/qr/{id}/transitions", h.handleAdminTransition)

	r.With(perm(store.ResourceCompanies, store.PermRead)).Get("/companies", h.handleListCompanies)
	r.With(perm(store.ResourceCompanies, store.PermCreate)).Post("/companies", h.handleCreateCompany)
	r.With(perm(store.ResourceCompanies, store.PermRead)).Get("/companies/{id}", h.handleGetCompany)
	r.With(perm(store.ResourceCompanies, store.PermUpdate)).Put("/companies/{id}", h.handleUpdateCompany)
	r.With(perm(store.ResourceCompanies, store.PermUpdate)).Put("/companies/{id}/status", h.handleCompanyStatus)
	r.With(perm(store.ResourceCompanies, store.PermDelete)).Delete("/companies/{id}", h.handleDeleteCompany)

	r.With(perm(store.ResourceBranches, store.PermRead)).Get("/branches", h.handleListBranches)
	r.With(perm(store.ResourceBranches, store.PermCreate)).Post("/branches", h.handleCreateBranch)
	r.With(perm(store.ResourceBranches, store.PermRead)).Get("/branches/{id}", h.handleGetBranch)
	r.With(perm(store.ResourceBranches, store.PermUpdate)).Put("/branches/{id}", h.handleUpdateBranch)
	r.With(perm(store.ResourceBranches, store.PermDelete)).Delete("/branches/{id}", h.handleDeleteBranch)

	r.With(perm(store.ResourceRoles, store.PermManage)).Get("/roles", h.handleListRoles)
	r.With(perm(store.ResourceRoles, store.PermManage)).Post("/roles", h.handleCreateRole)
	r.With(perm(store.ResourceRoles, store.PermManage)).Post("/roles/{role}/permissions", h.handleGrantPermission)
	r.With(perm(store.ResourceRoles, store.PermManage)).Get("/permissions", h.handleListPermissions)
	r.With(perm(store.ResourceRoles, store.PermManage)).Get("/users/{id}/roles", h.handleListUserRoles)
	r.With(perm(store.ResourceRoles, store.PermManage)).Post("/users/{id}/roles", h.handleGrantRole)
	r.With(perm(store.ResourceRoles, store.PermManage)).Delete("/users/{id}/roles/{role}", h.handleRevokeRole)

	r.With(perm(store.ResourceSubscriptions, store.PermRead)).Get("/subscriptions", h.handleAdminListSubscriptions)
	r.With(perm(store.ResourceSubscriptions, store.PermUpdate)).Post("/subscriptions/{id}/payments", h.handleRecordPayment)
	r.With(perm(store.ResourceAudit, store.PermRead)).Get("/audit", h.handleListAudit)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok", "store": "ok"}
	if h.store == nil {
		status["store"] = "not_configured"
	} else if err := h.store.Ping(r.Context()); err != nil {
		status["status"] = "degraded"
		status["store"] = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handleListPlans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"plans": h.plans.List()})
}

// fail logs unexpected errors and writes the mapped response.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := mapError(err)
	if status >= http.StatusInternalServerError {
		loggerFrom(r).Error("request failed", zap.String("code", code), zap.Error(err))
	}
	writeError(w, requestIDFromRequest(r), status, code, msg)
}

func mapError(err error) (int, string, string) {
	var validation *store.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, "invalid_request", validation.Error()
	case errors.Is(err, store.ErrNotConfigured):
		return http.StatusServiceUnavailable, "not_configured", "data store not configured"
	case errors.Is(err, store.ErrQRNotFound):
		return http.StatusNotFound, "qr_not_found", "qr code not found"
	case errors.Is(err, store.ErrCompanyNotFound):
		return http.StatusNotFound, "company_not_found", "company not found"
	case errors.Is(err, store.ErrBranchNotFound):
		return http.StatusNotFound, "branch_not_found", "branch not found"
	case errors.Is(err, store.ErrPetNotFound):
		return http.StatusNotFound, "pet_not_found", "pet not found"
	case errors.Is(err, store.ErrSubscriptionNotFound):
		return http.StatusNotFound, "subscription_not_found", "subscription not found"
	case errors.Is(err, store.ErrRoleNotFound):
		return http.StatusNotFound, "role_not_found", "role not found"
	case errors.Is(err, store.ErrProfileNotFound):
		return http.StatusNotFound, "profile_not_found", "profile not found"
	case errors.Is(err, store.ErrScanNotFound):
		return http.StatusNotFound, "scan_not_found", "scan not found"
	case errors.Is(err, cart.ErrItemNotFound):
		return http.StatusNotFound, "cart_item_not_found", "cart item not found"
	case errors.Is(err, cart.ErrInvalidItem):
		return http.StatusBadRequest, "invalid_request", "invalid cart item"
	case errors.Is(err, store.ErrAccessDenied):
		return http.StatusForbidden, "access_denied", "access denied"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "qr code state does not allow this action"
	case errors.Is(err, store.ErrAlreadyAssigned):
		return http.StatusConflict, "already_assigned", "qr code already assigned"
	case errors.Is(err, store.ErrAlreadyActivated):
		return http.StatusConflict, "already_activated", "qr code already activated for another pet"
	case errors.Is(err, store.ErrPetLinked):
		return http.StatusConflict, "pet_linked", "pet already linked to a qr code"
	case errors.Is(err, store.ErrBranchMismatch):
		return http.StatusConflict, "branch_mismatch", "branch does not belong to company"
	case errors.Is(err, store.ErrCompanyInUse):
		return http.StatusConflict, "company_in_use", "company has active branches or assigned qr codes"
	case errors.Is(err, store.ErrBranchInUse):
		return http.StatusConflict, "branch_in_use", "branch has assigned qr codes"
	case errors.Is(err, store.ErrSubscriptionExists):
		return http.StatusConflict, "subscription_exists", "qr code already has an active subscription"
	case errors.Is(err, store.ErrSubscriptionState):
		return http.StatusConflict, "invalid_subscription_state", "subscription state does not allow this action"
	case errors.Is(err, store.ErrRoleExists):
		return http.StatusConflict, "role_exists", "role already exists"
	case errors.Is(err, store.ErrCodeCollision):
		return http.StatusServiceUnavailable, "code_collision", "could not allocate unique codes, retry"
	default:
		return http.StatusServiceUnavailable, "backend_error", "backend unavailable, retry later"
	}
}

// retryable marks transient failures; a missing store is a deployment
// problem and is not retried.
func retryable(status int, code string) bool {
	if code == "not_configured" {
		return false
	}
	return status == http.StatusServiceUnavailable || status == http.StatusTooManyRequests
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:      code,
			Message:   message,
			Retryable: retryable(status, code),
		},
	})
}

func writeAuthError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeError(w, requestIDFromRequest(r), status, code, message)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeJSON rejects unknown fields and bodies over 1 MiB.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func queryInt(r *http.Request, key string) int {
	value, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(key)))
	if err != nil {
		return 0
	}
	return value
}

// queryTime accepts RFC 3339 timestamps or plain dates.
func queryTime(r *http.Request, key string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, &store.ValidationError{Field: key, Message: "expected RFC 3339 time or YYYY-MM-DD"}
}

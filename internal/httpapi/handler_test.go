package httpapi

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"upets/platform-service/internal/auth"
	"upets/platform-service/internal/cart"
	"upets/platform-service/internal/models"
	"upets/platform-service/internal/store"
	"upets/platform-service/internal/store/memory"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "handler-test-secret-0123456789abcdef"
	testIssuer   = "https://auth.upets.example/"
	testAudience = "platform-service"

	adminUser = "admin-1"
	ownerUser = "owner-1"
	otherUser = "owner-2"
)

type testEnv struct {
	t       *testing.T
	store   *memory.Store
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := memory.New(memory.Options{})
	return newTestEnvWith(t, st, st, Options{})
}

func mustVerifier(t *testing.T) *auth.Verifier {
	t.Helper()
	verifier, err := auth.NewVerifier(context.Background(), auth.Options{
		Secret:   testSecret,
		Issuer:   testIssuer,
		Audience: testAudience,
	})
	require.NoError(t, err)
	return verifier
}

func newTestEnvWith(t *testing.T, mem *memory.Store, backend store.Store, options Options) *testEnv {
	t.Helper()
	verifier := mustVerifier(t)
	_, err := mem.GrantRole(context.Background(), store.GrantRoleInput{UserID: adminUser, RoleName: models.RoleSuperAdmin})
	require.NoError(t, err)

	options.Store = backend
	options.Verifier = verifier
	if options.RateLimit.PerMinute == 0 {
		options.RateLimit = RateLimitConfig{PerMinute: 6000, Burst: 1000}
	}
	if options.PublicLimit.PerMinute == 0 {
		options.PublicLimit = RateLimitConfig{PerMinute: 6000, Burst: 1000}
	}
	return &testEnv{t: t, store: mem, handler: NewHandler(options).Routes()}
}

func (e *testEnv) token(subject string) string {
	e.t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": testIssuer,
		"aud": testAudience,
		"sub": subject,
		"exp": time.Now().Add(10 * time.Minute).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(e.t, err)
	return token
}

func (e *testEnv) do(method, path, subject string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if subject != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(subject))
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) errorResponse {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	resp := decodeBody[errorResponse](t, rec)
	assert.Equal(t, code, resp.Error.Code)
	assert.NotEmpty(t, resp.RequestID)
	return resp
}

func TestHealthAndPlansWithoutStore(t *testing.T) {
	h := NewHandler(Options{AuthDisabled: true}).Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_configured")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/plans", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), models.QRTypePremium)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/pets", nil))
	resp := requireError(t, rec, http.StatusServiceUnavailable, "not_configured")
	assert.False(t, resp.Error.Retryable)
}

func TestQRImageRendersWithoutStore(t *testing.T) {
	h := NewHandler(Options{}).Routes()
	code, err := store.NewCode(time.Now())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/public/qr/"+code+"/image.png?size=300", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/public/qr/not-a-code/image.png", nil))
	requireError(t, rec, http.StatusNotFound, "qr_not_found")
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/me", "", nil)
	requireError(t, rec, http.StatusUnauthorized, "unauthorized")

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	requireError(t, rec, http.StatusUnauthorized, "unauthorized")
}

func TestAdminRoutesRequireLevel(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/admin/qr", ownerUser, nil)
	requireError(t, rec, http.StatusForbidden, "access_denied")

	rec = env.do(http.MethodGet, "/api/admin/qr", adminUser, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestGrantRoleTakesEffectImmediately(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/admin/qr", ownerUser, nil)
	requireError(t, rec, http.StatusForbidden, "access_denied")

	rec = env.do(http.MethodPost, "/api/admin/users/"+ownerUser+"/roles", adminUser, map[string]any{"role": models.RoleBranchAdmin})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(http.MethodGet, "/api/admin/qr", ownerUser, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// branch admins read inventory but cannot generate it
	rec = env.do(http.MethodPost, "/api/admin/qr/batches", ownerUser, map[string]any{"quantity": 1, "qr_type": "basic"})
	requireError(t, rec, http.StatusForbidden, "access_denied")

	rec = env.do(http.MethodDelete, "/api/admin/users/"+ownerUser+"/roles/"+models.RoleBranchAdmin, adminUser, nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = env.do(http.MethodGet, "/api/admin/qr", ownerUser, nil)
	requireError(t, rec, http.StatusForbidden, "access_denied")
}

func TestLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/admin/companies", adminUser, map[string]any{
		"name": "Vet Norte", "type": models.CompanyTypeVeterinary, "commission_rate": 12.5,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	company := decodeBody[models.Company](t, rec)

	rec = env.do(http.MethodPost, "/api/admin/qr/batches", adminUser, map[string]any{"quantity": 2, "qr_type": "basic", "price_per_unit": 3})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	batch := decodeBody[models.BatchResult](t, rec)
	require.Len(t, batch.Codes, 2)
	qr := batch.Codes[0]

	rec = env.do(http.MethodPost, "/api/admin/qr/"+qr.ID+"/prints", adminUser, map[string]any{"reason": "initial"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(http.MethodPost, "/api/admin/qr/assign", adminUser, map[string]any{"qr_ids": []string{qr.ID}, "company_id": company.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(http.MethodPost, "/api/admin/qr/assign", adminUser, map[string]any{"qr_ids": []string{qr.ID}, "company_id": company.ID})
	requireError(t, rec, http.StatusConflict, "already_assigned")

	rec = env.do(http.MethodPut, "/api/me/profile", ownerUser, map[string]any{
		"full_name": "Ana", "phone": "+5491100000000", "show_phone": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(http.MethodPost, "/api/pets", ownerUser, map[string]any{"name": "Luna", "species": models.SpeciesDog})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	pet := decodeBody[models.Pet](t, rec)

	rec = env.do(http.MethodPost, "/api/qr/"+qr.Code+"/activate", ownerUser, map[string]any{"pet_id": pet.ID, "plan_type": "basic"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	activated := decodeBody[models.QRCode](t, rec)
	assert.Equal(t, models.QRStatusActive, activated.Status)

	rec = env.do(http.MethodGet, "/api/subscriptions", ownerUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	subs := decodeBody[map[string][]models.Subscription](t, rec)["subscriptions"]
	require.Len(t, subs, 1)
	assert.Equal(t, 12.5, subs[0].CommissionRate)

	rec = env.do(http.MethodPost, "/api/qr/"+qr.ID+"/transitions", ownerUser, map[string]any{"action": store.ActionReportLost})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(http.MethodGet, "/api/public/qr/"+qr.Code+"?location=park", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decodeBody[models.PublicQRView](t, rec)
	assert.True(t, view.IsLost)
	require.NotNil(t, view.Pet)
	assert.Equal(t, "Luna", view.Pet.Name)
	require.NotNil(t, view.Owner)
	assert.Equal(t, "+5491100000000", view.Owner.Phone)
	assert.Empty(t, view.Owner.Email)

	rec = env.do(http.MethodPost, "/api/public/qr/"+qr.Code+"/contact", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(http.MethodGet, "/api/admin/qr/"+qr.ID+"/scans", adminUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	scans := decodeBody[map[string][]models.QRScan](t, rec)["scans"]
	require.Len(t, scans, 1)
	assert.Equal(t, "park", scans[0].ScanLocation)
	assert.True(t, scans[0].ContactMade)

	rec = env.do(http.MethodDelete, "/api/admin/companies/"+company.ID, adminUser, nil)
	requireError(t, rec, http.StatusConflict, "company_in_use")
}

func TestPublicUnknownCode(t *testing.T) {
	env := newTestEnv(t)
	code, err := store.NewCode(time.Now())
	require.NoError(t, err)

	rec := env.do(http.MethodGet, "/api/public/qr/"+code, "", nil)
	requireError(t, rec, http.StatusNotFound, "qr_not_found")
}

func TestOwnerCannotTouchOthersRecords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.store.GenerateBatch(ctx, store.GenerateInput{Quantity: 1, QRType: models.QRTypeBasic})
	require.NoError(t, err)
	qr := result.Codes[0]
	pet, err := env.store.CreatePet(ctx, models.Pet{OwnerID: ownerUser, Name: "Milo", Species: models.SpeciesCat})
	require.NoError(t, err)
	_, err = env.store.Activate(ctx, store.ActivateInput{QRID: qr.ID, PetID: pet.ID, OwnerID: ownerUser})
	require.NoError(t, err)

	rec := env.do(http.MethodPost, "/api/qr/"+qr.ID+"/transitions", otherUser, map[string]any{"action": store.ActionReportLost})
	requireError(t, rec, http.StatusForbidden, "access_denied")

	rec = env.do(http.MethodPost, "/api/qr/"+qr.ID+"/transitions", ownerUser, map[string]any{"action": store.ActionExpire})
	requireError(t, rec, http.StatusBadRequest, "invalid_request")

	rec = env.do(http.MethodGet, "/api/pets/"+pet.ID, otherUser, nil)
	requireError(t, rec, http.StatusNotFound, "pet_not_found")

	rec = env.do(http.MethodGet, "/api/pets/"+pet.ID, adminUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPost, "/api/qr/"+qr.ID+"/transitions", adminUser, map[string]any{"action": store.ActionReportLost})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestInvalidPayloads(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/pets", ownerUser, map[string]any{"name": "Rex", "species": "dog", "wings": 2})
	requireError(t, rec, http.StatusBadRequest, "invalid_json")

	rec = env.do(http.MethodPost, "/api/pets", ownerUser, map[string]any{"name": "Rex", "species": "dragon"})
	requireError(t, rec, http.StatusBadRequest, "invalid_request")

	rec = env.do(http.MethodPost, "/api/admin/qr/batches", adminUser, map[string]any{"quantity": 5000, "qr_type": "basic"})
	requireError(t, rec, http.StatusBadRequest, "invalid_request")

	rec = env.do(http.MethodGet, "/api/admin/qr?assigned=maybe", adminUser, nil)
	requireError(t, rec, http.StatusBadRequest, "invalid_request")

	rec = env.do(http.MethodPost, "/api/session/events", ownerUser, map[string]any{"event": "rebooted"})
	requireError(t, rec, http.StatusBadRequest, "invalid_request")
}

type failingStore struct {
	store.Store
}

func (failingStore) ListPets(ctx context.Context, ownerID string) ([]models.Pet, error) {
	return nil, errors.New("connection reset")
}

func TestBackendFailureIsRetryable(t *testing.T) {
	mem := memory.New(memory.Options{})
	env := newTestEnvWith(t, mem, failingStore{Store: mem}, Options{})

	rec := env.do(http.MethodGet, "/api/pets", ownerUser, nil)
	resp := requireError(t, rec, http.StatusServiceUnavailable, "backend_error")
	assert.True(t, resp.Error.Retryable)
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestCartEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/cart/items", ownerUser, map[string]any{
		"product_id": "tag-basic", "name": "Basic tag", "qr_type": "basic", "quantity": 2, "unit_price": 4.5,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	c := decodeBody[cart.Cart](t, rec)
	assert.Equal(t, 2, c.ItemCount)
	assert.InDelta(t, 9.0, c.Total, 0.0001)

	rec = env.do(http.MethodPatch, "/api/cart/items/tag-basic", ownerUser, map[string]any{"quantity": 3})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decodeBody[cart.Cart](t, rec).ItemCount)

	rec = env.do(http.MethodGet, "/api/cart", otherUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[cart.Cart](t, rec).Items)

	rec = env.do(http.MethodDelete, "/api/cart/items/tag-basic", ownerUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodDelete, "/api/cart/items/tag-basic", ownerUser, nil)
	requireError(t, rec, http.StatusNotFound, "cart_item_not_found")

	rec = env.do(http.MethodPost, "/api/cart/items", ownerUser, map[string]any{"product_id": "x", "quantity": 0})
	requireError(t, rec, http.StatusBadRequest, "invalid_request")
}

func TestCartStreamSendsCurrentState(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	req := httptest.NewRequest(http.MethodGet, "/api/cart/stream", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+env.token(ownerUser))
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		env.handler.ServeHTTP(rec, req)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after cancellation")
	}
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "event: cart")
}

func TestSubscriptionVisibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.store.GenerateBatch(ctx, store.GenerateInput{Quantity: 1, QRType: models.QRTypeBasic})
	require.NoError(t, err)
	qr := result.Codes[0]
	pet, err := env.store.CreatePet(ctx, models.Pet{OwnerID: ownerUser, Name: "Kiwi", Species: models.SpeciesBird})
	require.NoError(t, err)
	_, err = env.store.Activate(ctx, store.ActivateInput{QRID: qr.ID, PetID: pet.ID, OwnerID: ownerUser})
	require.NoError(t, err)

	rec := env.do(http.MethodPost, "/api/subscriptions", ownerUser, map[string]any{"qr_code_id": qr.ID, "plan_type": "premium"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sub := decodeBody[models.Subscription](t, rec)

	rec = env.do(http.MethodPost, "/api/subscriptions", ownerUser, map[string]any{"qr_code_id": qr.ID, "plan_type": "basic"})
	requireError(t, rec, http.StatusConflict, "subscription_exists")

	rec = env.do(http.MethodGet, "/api/subscriptions/"+sub.ID, otherUser, nil)
	requireError(t, rec, http.StatusNotFound, "subscription_not_found")

	rec = env.do(http.MethodPost, "/api/subscriptions/"+sub.ID+"/status", ownerUser, map[string]any{"action": "pause"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.SubscriptionPaused, decodeBody[models.Subscription](t, rec).Status)

	rec = env.do(http.MethodPost, "/api/admin/subscriptions/"+sub.ID+"/payments", adminUser, map[string]any{"payment_status": models.PaymentPaid})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	paid := decodeBody[models.Subscription](t, rec)
	assert.Equal(t, sub.NextBillingDate.Add(store.BillingPeriod).Unix(), paid.NextBillingDate.Unix())

	rec = env.do(http.MethodGet, "/api/admin/audit?action_type=subscription.payment", adminUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[map[string][]models.AuditLog](t, rec)["audit"], 1)
}

func TestRequestIDEchoed(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(requestIDHeader))
}

func TestExportQRCodesCSV(t *testing.T) {
	env := newTestEnv(t)
	result, err := env.store.GenerateBatch(context.Background(), store.GenerateInput{Quantity: 3, QRType: models.QRTypePremium})
	require.NoError(t, err)

	rec := env.do(http.MethodGet, "/api/admin/qr/export?qr_type=premium", adminUser, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))

	records, err := csv.NewReader(bytes.NewReader(rec.Body.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, exportHeader, records[0])
	codes := map[string]bool{}
	for _, row := range records[1:] {
		codes[row[0]] = true
		assert.Equal(t, "/qr/"+row[0], row[1])
		assert.Equal(t, models.QRTypePremium, row[2])
	}
	for _, qr := range result.Codes {
		assert.True(t, codes[qr.Code], qr.Code)
	}
}

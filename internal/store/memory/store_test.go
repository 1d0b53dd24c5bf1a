package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"upets/platform-service/internal/models"
	"upets/platform-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T, validity time.Duration) (*Store, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	return New(Options{ActivationValidity: validity, Now: c.Now}), c
}

func generateOne(t *testing.T, st *Store) models.QRCode {
	t.Helper()
	result, err := st.GenerateBatch(context.Background(), store.GenerateInput{Quantity: 1, QRType: models.QRTypeBasic})
	require.NoError(t, err)
	require.Len(t, result.Codes, 1)
	return result.Codes[0]
}

func TestLifecycleScenario(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t, 0)

	company, err := st.CreateCompany(ctx, models.Company{Name: "Vet Norte", Type: models.CompanyTypeVeterinary, CommissionRate: 10})
	require.NoError(t, err)

	qr := generateOne(t, st)
	assert.Equal(t, models.QRStatusInactive, qr.Status)
	assert.True(t, store.ValidCodeFormat(qr.Code))

	_, err = st.RecordPrint(ctx, store.RecordPrintInput{QRID: qr.ID, Reason: "batch"})
	require.NoError(t, err)

	assigned, err := st.AssignToCompany(ctx, store.AssignInput{QRIDs: []string{qr.ID}, CompanyID: company.ID, ActorID: "admin"})
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, models.QRStatusAssigned, assigned[0].Status)

	pet, err := st.CreatePet(ctx, models.Pet{OwnerID: "owner-1", Name: "Luna", Species: models.SpeciesDog})
	require.NoError(t, err)

	active, err := st.Activate(ctx, store.ActivateInput{QRID: qr.ID, PetID: pet.ID, OwnerID: "owner-1", PlanType: models.QRTypeBasic})
	require.NoError(t, err)
	assert.Equal(t, models.QRStatusActive, active.Status)
	assert.Nil(t, active.ExpiresAt)

	subs, err := st.ListSubscriptions(ctx, store.SubscriptionFilter{QRID: qr.ID})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, 10.0, subs[0].CommissionRate)
	assert.Equal(t, 1500.0, subs[0].MonthlyPrice)

	_, err = st.RecordScan(ctx, store.RecordScanInput{QRID: qr.ID, Location: "-34.60,-58.38"})
	require.NoError(t, err)

	lost, err := st.Transition(ctx, store.TransitionInput{QRID: qr.ID, Action: store.ActionReportLost, ActorID: "owner-1"})
	require.NoError(t, err)
	assert.Equal(t, models.QRStatusLost, lost.Status)

	view, err := st.ResolvePublic(ctx, qr.Code)
	require.NoError(t, err)
	assert.True(t, view.IsLost)
	require.NotNil(t, view.Pet)
	assert.Equal(t, "Luna", view.Pet.Name)

	found, err := st.Transition(ctx, store.TransitionInput{QRID: qr.ID, Action: store.ActionReportFound})
	require.NoError(t, err)
	assert.Equal(t, models.QRStatusFound, found.Status)
	back, err := st.Transition(ctx, store.TransitionInput{QRID: qr.ID, Action: store.ActionReactivate})
	require.NoError(t, err)
	assert.Equal(t, models.QRStatusActive, back.Status)
	assert.Equal(t, 1, back.ScanCount)

	events, err := st.ListOutboxEvents(ctx, 0, 100)
	require.NoError(t, err)
	var types []string
	for _, event := range events {
		types = append(types, event.Type)
	}
	assert.Contains(t, types, store.EventTypeFor(store.ActionActivate))
	assert.Contains(t, types, "qr.scanned")
}

func TestConcurrentScans(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t, 0)
	qr := generateOne(t, st)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.RecordScan(ctx, store.RecordScanInput{QRID: qr.ID})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := st.GetQRCode(ctx, qr.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.ScanCount)
	scans, err := st.ListScans(ctx, qr.ID, 100)
	require.NoError(t, err)
	assert.Len(t, scans, 50)
}

func TestGenerateBatchBounds(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t, 0)

	for _, quantity := range []int{0, -1, 1001} {
		_, err := st.GenerateBatch(ctx, store.GenerateInput{Quantity: quantity, QRType: models.QRTypeBasic})
		assert.True(t, store.IsValidation(err), "quantity %d", quantity)
	}
	_, err := st.GenerateBatch(ctx, store.GenerateInput{Quantity: 3, QRType: "gold"})
	assert.True(t, store.IsValidation(err))

	result, err := st.GenerateBatch(ctx, store.GenerateInput{Quantity: 1000, QRType: models.QRTypePremium, PricePerUnit: 2})
	require.NoError(t, err)
	assert.Len(t, result.Codes, 1000)
	assert.Equal(t, 2000.0, result.Batch.TotalAmount)
	seen := map[string]bool{}
	for _, qr := range result.Codes {
		assert.False(t, seen[qr.Code])
		seen[qr.Code] = true
	}
}

func TestAssignRejectsReassignUnlessRequested(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t, 0)
	first, err := st.CreateCompany(ctx, models.Company{Name: "First"})
	require.NoError(t, err)
	second, err := st.CreateCompany(ctx, models.Company{Name: "Second"})
	require.NoError(t, err)
	qr := generateOne(t, st)

	_, err = st.AssignToCompany(ctx, store.AssignInput{QRIDs: []string{qr.ID}, CompanyID: first.ID})
	require.NoError(t, err)
	_, err = st.AssignToCompany(ctx, store.AssignInput{QRIDs: []string{qr.ID}, CompanyID: second.ID})
	assert.ErrorIs(t, err, store.ErrAlreadyAssigned)

	moved, err := st.AssignToCompany(ctx, store.AssignInput{QRIDs: []string{qr.ID}, CompanyID: second.ID, Reassign: true, ActorID: "admin"})
	require.NoError(t, err)
	assert.Equal(t, second.ID, *moved[0].AssignedCompanyID)

	audits, err := st.ListAudit(ctx, store.AuditFilter{ActionType: "qr.reassign"})
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, first.ID, audits[0].Details["previous_company_id"])

	unassigned, err := st.Unassign(ctx, store.UnassignInput{QRIDs: []string{qr.ID}})
	require.NoError(t, err)
	assert.Equal(t, models.QRStatusInactive, unassigned[0].Status)
	assert.Nil(t, unassigned[0].AssignedCompanyID)
}

func TestAssignBranchMustBelongToCompany(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t, 0)
	first, err := st.CreateCompany(ctx, models.Company{Name: "First"})
	require.NoError(t, err)
	second, err := st.CreateCompany(ctx, models.Company{Name: "Second"})
	require.NoError(t, err)
	branch, err := st.CreateBranch(ctx, models.Branch{CompanyID: second.ID, Name: "Centro"})
	require.NoError(t, err)
	qr := generateOne(t, st)

	_, err = st.AssignToCompany(ctx, store.AssignInput{QRIDs: []string{qr.ID}, CompanyID: first.ID, BranchID: branch.ID})
	assert.ErrorIs(t, err, store.ErrBranchMismatch)
	_, err = st.AssignToCompany(ctx, store.AssignInput{QRIDs: []string{qr.ID, "missing"}, CompanyID: first.ID})
	assert.ErrorIs(t, err, store.ErrQRNotFound)

	got, err := st.GetQRCode(ctx, qr.ID)
	require.NoError(t, err)
	assert.Nil(t, got.AssignedCompanyID)
}

func TestActivateRules(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t, 0)
	qr := generateOne(t, st)
	other := generateOne(t, st)
	pet, err := st.CreatePet(ctx, models.Pet{OwnerID: "owner-1", Name: "Milo", Species: models.SpeciesCat})
	require.NoError(t, err)
	second, err := st.CreatePet(ctx, models.Pet{OwnerID: "owner-1", Name: "Nube", Species: models.SpeciesCat})
	require.NoError(t, err)

	_, err = st.Activate(ctx, store.ActivateInput{QRID: qr.ID, PetID: pet.ID, OwnerID: "owner-2"})
	assert.ErrorIs(t, err, store.ErrAccessDenied)

	_, err = st.Activate(ctx, store.ActivateInput{QRID: qr.ID, PetID: pet.ID, OwnerID: "owner-1"})
	require.NoError(t, err)
	again, err := st.Activate(ctx, store.ActivateInput{QRID: qr.ID, PetID: pet.ID, OwnerID: "owner-1"})
	require.NoError(t, err)
	assert.Equal(t, models.QRStatusActive, again.Status)

	_, err = st.Activate(ctx, store.ActivateInput{QRID: qr.ID, PetID: second.ID, OwnerID: "owner-1"})
	assert.ErrorIs(t, err, store.ErrAlreadyActivated)
	_, err = st.Activate(ctx, store.ActivateInput{QRID: other.ID, PetID: pet.ID, OwnerID: "owner-1"})
	assert.ErrorIs(t, err, store.ErrPetLinked)

	assert.ErrorIs(t, st.DeletePet(ctx, "owner-1", pet.ID), store.ErrPetLinked)
	assert.NoError(t, st.DeletePet(ctx, "owner-1", second.ID))
}

func TestTransitionRejectsInvalidState(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t, 0)
	qr := generateOne(t, st)

	_, err := st.Transition(ctx, store.TransitionInput{QRID: qr.ID, Action: store.ActionReportLost})
	assert.ErrorIs(t, err, store.ErrInvalidState)
	_, err = st.Transition(ctx, store.TransitionInput{QRID: "missing", Action: store.ActionReportLost})
	assert.ErrorIs(t, err, store.ErrQRNotFound)

	expired, err := st.Transition(ctx, store.TransitionInput{QRID: qr.ID, Action: store.ActionExpire})
	require.NoError(t, err)
	assert.Equal(t, models.QRStatusExpired, expired.Status)
	_, err = st.Transition(ctx, store.TransitionInput{QRID: qr.ID, Action: store.ActionReactivate})
	assert.ErrorIs(t, err, store.ErrInvalidState)
}

func TestExpireDue(t *testing.T) {
	ctx := context.Background()
	st, c := newTestStore(t, 24*time.Hour)
	qr := generateOne(t, st)
	pet, err := st.CreatePet(ctx, models.Pet{OwnerID: "owner-1", Name: "Rex", Species: models.SpeciesDog})
	require.NoError(t, err)
	active, err := st.Activate(ctx, store.ActivateInput{QRID: qr.ID, PetID: pet.ID, OwnerID: "owner-1", PlanType: models.QRTypePremium})
	require.NoError(t, err)
	require.NotNil(t, active.ExpiresAt)

	n, err := st.ExpireDue(ctx, c.Now(), 10)
	require.NoError(t, err)
	assert.Zero(t, n)

	c.Advance(25 * time.Hour)
	n, err = st.ExpireDue(ctx, c.Now(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := st.GetQRCode(ctx, qr.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QRStatusExpired, got.Status)
	subs, err := st.ListSubscriptions(ctx, store.SubscriptionFilter{QRID: qr.ID})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, models.SubscriptionExpired, subs[0].Status)

	view, err := st.ResolvePublic(ctx, qr.Code)
	require.NoError(t, err)
	assert.Equal(t, store.MessageExpired, view.Message)
	assert.Nil(t, view.Pet)

	back, err := st.Transition(ctx, store.TransitionInput{QRID: qr.ID, Action: store.ActionReactivate})
	require.NoError(t, err)
	require.NotNil(t, back.ExpiresAt)
	assert.True(t, back.ExpiresAt.After(c.Now()))
}

func TestSingleActiveSubscription(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t, 0)
	qr := generateOne(t, st)
	pet, err := st.CreatePet(ctx, models.Pet{OwnerID: "owner-1", Name: "Kiwi", Species: models.SpeciesBird})
	require.NoError(t, err)
	_, err = st.Activate(ctx, store.ActivateInput{QRID: qr.ID, PetID: pet.ID, OwnerID: "owner-1"})
	require.NoError(t, err)

	sub, err := st.CreateSubscription(ctx, store.CreateSubscriptionInput{QRID: qr.ID, UserID: "owner-1", PlanType: models.QRTypeBasic})
	require.NoError(t, err)
	_, err = st.CreateSubscription(ctx, store.CreateSubscriptionInput{QRID: qr.ID, UserID: "owner-1", PlanType: models.QRTypePremium})
	assert.ErrorIs(t, err, store.ErrSubscriptionExists)
	_, err = st.CreateSubscription(ctx, store.CreateSubscriptionInput{QRID: qr.ID, UserID: "owner-2", PlanType: models.QRTypeBasic})
	assert.ErrorIs(t, err, store.ErrAccessDenied)

	paused, err := st.UpdateSubscriptionStatus(ctx, sub.ID, "pause")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionPaused, paused.Status)
	_, err = st.CreateSubscription(ctx, store.CreateSubscriptionInput{QRID: qr.ID, UserID: "owner-1", PlanType: models.QRTypePremium})
	require.NoError(t, err)
	_, err = st.UpdateSubscriptionStatus(ctx, sub.ID, "resume")
	assert.ErrorIs(t, err, store.ErrSubscriptionExists)

	cancelled, err := st.UpdateSubscriptionStatus(ctx, sub.ID, "cancel")
	require.NoError(t, err)
	assert.NotNil(t, cancelled.CancelledAt)
	_, err = st.RecordPaymentResult(ctx, sub.ID, models.PaymentPaid)
	assert.ErrorIs(t, err, store.ErrSubscriptionState)
}

func TestDirectoryDeleteRules(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t, 0)
	company, err := st.CreateCompany(ctx, models.Company{Name: "Refugio Sur", Type: models.CompanyTypeShelter, CommissionRate: 150})
	require.NoError(t, err)
	assert.Equal(t, 100.0, company.CommissionRate)
	branch, err := st.CreateBranch(ctx, models.Branch{CompanyID: company.ID, Name: "Sede 1"})
	require.NoError(t, err)

	assert.ErrorIs(t, st.DeleteCompany(ctx, company.ID), store.ErrCompanyInUse)

	qr := generateOne(t, st)
	_, err = st.AssignToCompany(ctx, store.AssignInput{QRIDs: []string{qr.ID}, CompanyID: company.ID, BranchID: branch.ID})
	require.NoError(t, err)
	assert.ErrorIs(t, st.DeleteBranch(ctx, branch.ID), store.ErrBranchInUse)

	_, err = st.Unassign(ctx, store.UnassignInput{QRIDs: []string{qr.ID}})
	require.NoError(t, err)
	require.NoError(t, st.DeleteBranch(ctx, branch.ID))
	require.NoError(t, st.DeleteCompany(ctx, company.ID))

	_, err = st.GetCompany(ctx, company.ID)
	assert.ErrorIs(t, err, store.ErrCompanyNotFound)
	companies, err := st.ListCompanies(ctx, store.CompanyFilter{})
	require.NoError(t, err)
	assert.Empty(t, companies)
}

func TestListCompaniesFilters(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t, 0)
	for _, company := range []models.Company{
		{Name: "Alfa Vet", Type: models.CompanyTypeVeterinary, City: "Rosario"},
		{Name: "Beta Shop", Type: models.CompanyTypePetShop, City: "Cordoba"},
		{Name: "Gamma Vet", Type: models.CompanyTypeVeterinary, City: "Cordoba", Status: models.CompanyStatusPending},
	} {
		_, err := st.CreateCompany(ctx, company)
		require.NoError(t, err)
	}

	vets, err := st.ListCompanies(ctx, store.CompanyFilter{Type: models.CompanyTypeVeterinary})
	require.NoError(t, err)
	require.Len(t, vets, 2)
	assert.Equal(t, "Alfa Vet", vets[0].Name)

	cordoba, err := st.ListCompanies(ctx, store.CompanyFilter{Search: "CORDOBA"})
	require.NoError(t, err)
	assert.Len(t, cordoba, 2)

	paged, err := st.ListCompanies(ctx, store.CompanyFilter{Limit: 1, Offset: 2})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "Gamma Vet", paged[0].Name)
}

func TestRolesAndPermissions(t *testing.T) {
	ctx := context.Background()
	st, c := newTestStore(t, 0)

	has, err := st.UserHasPermission(ctx, "user-1", store.ResourceQRCodes, store.PermCreate)
	require.NoError(t, err)
	assert.False(t, has)

	expires := c.Now().Add(time.Hour)
	_, err = st.GrantRole(ctx, store.GrantRoleInput{UserID: "user-1", RoleName: models.RoleSuperAdmin, GrantedBy: "root", ExpiresAt: &expires})
	require.NoError(t, err)
	has, err = st.UserHasPermission(ctx, "user-1", store.ResourceQRCodes, store.PermCreate)
	require.NoError(t, err)
	assert.True(t, has)

	roles, err := st.GetUserRoles(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, models.LevelSuperAdmin, roles[0].RoleLevel)

	c.Advance(2 * time.Hour)
	roles, err = st.GetUserRoles(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, roles)

	_, err = st.GrantRole(ctx, store.GrantRoleInput{UserID: "user-1", RoleName: "nobody"})
	assert.ErrorIs(t, err, store.ErrRoleNotFound)

	_, err = st.CreateRole(ctx, models.Role{Name: "auditor", Level: 20})
	require.NoError(t, err)
	_, err = st.CreateRole(ctx, models.Role{Name: "auditor", Level: 20})
	assert.ErrorIs(t, err, store.ErrRoleExists)
	require.NoError(t, st.GrantPermission(ctx, "auditor", "audit_logs", "read"))
	_, err = st.GrantRole(ctx, store.GrantRoleInput{UserID: "user-2", RoleName: "auditor"})
	require.NoError(t, err)
	has, err = st.UserHasPermission(ctx, "user-2", "audit_logs", "read")
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, st.RevokeRole(ctx, "user-2", "auditor"))
	has, err = st.UserHasPermission(ctx, "user-2", "audit_logs", "read")
	require.NoError(t, err)
	assert.False(t, has)
	assert.ErrorIs(t, st.RevokeRole(ctx, "user-2", "auditor"), store.ErrRoleNotFound)
}

func TestMarkContactMadeWithoutScans(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t, 0)
	qr := generateOne(t, st)

	scan, err := st.MarkContactMade(ctx, qr.ID)
	require.NoError(t, err)
	assert.True(t, scan.ContactMade)

	got, err := st.GetQRCode(ctx, qr.ID)
	require.NoError(t, err)
	assert.Zero(t, got.ScanCount)
}

func TestOwnerTransitionsAreNarrowed(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t, 0)
	qr := generateOne(t, st)
	pet, err := st.CreatePet(ctx, models.Pet{OwnerID: "owner-1", Name: "Milo", Species: models.SpeciesCat})
	require.NoError(t, err)
	_, err = st.Activate(ctx, store.ActivateInput{QRID: qr.ID, PetID: pet.ID, OwnerID: "owner-1"})
	require.NoError(t, err)

	_, err = st.Transition(ctx, store.TransitionInput{QRID: qr.ID, Action: store.ActionReportLost, ActorID: "owner-2", AsOwner: true})
	assert.ErrorIs(t, err, store.ErrAccessDenied)

	_, err = st.Transition(ctx, store.TransitionInput{QRID: qr.ID, Action: store.ActionExpire, ActorID: "admin-1"})
	require.NoError(t, err)
	_, err = st.Transition(ctx, store.TransitionInput{QRID: qr.ID, Action: store.ActionReactivate, ActorID: "owner-1", AsOwner: true})
	assert.ErrorIs(t, err, store.ErrAccessDenied)
	still, err := st.GetQRCode(ctx, qr.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QRStatusExpired, still.Status)

	back, err := st.Transition(ctx, store.TransitionInput{QRID: qr.ID, Action: store.ActionReactivate, ActorID: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, models.QRStatusActive, back.Status)

	for _, action := range []string{store.ActionReportLost, store.ActionReportFound, store.ActionReactivate} {
		_, err = st.Transition(ctx, store.TransitionInput{QRID: qr.ID, Action: action, ActorID: "owner-1", AsOwner: true})
		require.NoError(t, err, action)
	}
}

func TestMarkPrintedLeavesPrintFactAlone(t *testing.T) {
	ctx := context.Background()
	st, c := newTestStore(t, 0)
	qr := generateOne(t, st)

	marked, err := st.MarkPrinted(ctx, []string{qr.ID}, "admin-1")
	require.NoError(t, err)
	require.Len(t, marked, 1)
	assert.Equal(t, models.QRStatusPrinted, marked[0].Status)
	assert.False(t, marked[0].IsPrinted)
	assert.Nil(t, marked[0].FirstPrintedAt)
	assert.Zero(t, marked[0].PrintCount)

	c.Advance(time.Hour)
	printedAt := c.Now()
	_, err = st.RecordPrint(ctx, store.RecordPrintInput{QRID: qr.ID, PrintedBy: "admin-1", Reason: "initial"})
	require.NoError(t, err)

	got, err := st.GetQRCode(ctx, qr.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPrinted)
	assert.Equal(t, 1, got.PrintCount)
	require.NotNil(t, got.FirstPrintedAt)
	assert.True(t, got.FirstPrintedAt.Equal(printedAt))
}

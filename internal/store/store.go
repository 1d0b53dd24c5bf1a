package store

import (
	"context"
	"encoding/json"
	"time"

	"upets/platform-service/internal/models"
)

const (
	MinBatchQuantity = 1
	MaxBatchQuantity = 1000
	BillingPeriod    = 30 * 24 * time.Hour
)

type GenerateInput struct {
	Quantity     int
	QRType       string
	PricePerUnit float64
	BranchID     string
	Notes        string
	CreatedBy    string
}

type RecordPrintInput struct {
	QRID        string
	PrintedBy   string
	Reason      string
	Quality     string
	PrinterInfo string
	Notes       string
	PrintedAt   time.Time
}

type AssignInput struct {
	QRIDs     []string
	CompanyID string
	BranchID  string
	Notes     string
	ActorID   string
	Reassign  bool
}

type UnassignInput struct {
	QRIDs   []string
	Notes   string
	ActorID string
}

// ActivateInput drives Activate. ExpiresAt overrides the configured
// validity window and is not exposed to owners.
type ActivateInput struct {
	QRID      string
	PetID     string
	OwnerID   string
	PlanType  string
	ExpiresAt *time.Time
}

// TransitionInput drives Transition. AsOwner restricts the action to the
// owner table and requires ActorID to own the code.
type TransitionInput struct {
	QRID    string
	Action  string
	ActorID string
	Notes   string
	AsOwner bool
}

type RecordScanInput struct {
	QRID        string
	ScannerIP   string
	UserAgent   string
	Location    string
	ContactMade bool
	Notes       string
	ScannedAt   time.Time
}

type CreateSubscriptionInput struct {
	QRID          string
	UserID        string
	PlanType      string
	PaymentStatus string
}

type GrantRoleInput struct {
	UserID    string
	RoleName  string
	GrantedBy string
	ExpiresAt *time.Time
}

type AccessStore interface {
	ListRoles(ctx context.Context) ([]models.Role, error)
	CreateRole(ctx context.Context, role models.Role) (models.Role, error)
	GetUserRoles(ctx context.Context, userID string) ([]models.RoleGrant, error)
	UserHasPermission(ctx context.Context, userID, resource, action string) (bool, error)
	ListUserRoles(ctx context.Context, userID string) ([]models.UserRole, error)
	GrantRole(ctx context.Context, input GrantRoleInput) (models.UserRole, error)
	RevokeRole(ctx context.Context, userID, roleName string) error
	ListPermissions(ctx context.Context) ([]models.Permission, error)
	GrantPermission(ctx context.Context, roleName, resource, action string) error
	GetProfile(ctx context.Context, userID string) (models.Profile, error)
	UpsertProfile(ctx context.Context, profile models.Profile) (models.Profile, error)
}

type DirectoryStore interface {
	CreateCompany(ctx context.Context, company models.Company) (models.Company, error)
	UpdateCompany(ctx context.Context, company models.Company) (models.Company, error)
	SetCompanyStatus(ctx context.Context, companyID, status string) (models.Company, error)
	GetCompany(ctx context.Context, companyID string) (models.Company, error)
	ListCompanies(ctx context.Context, filter CompanyFilter) ([]models.Company, error)
	DeleteCompany(ctx context.Context, companyID string) error

	CreateBranch(ctx context.Context, branch models.Branch) (models.Branch, error)
	UpdateBranch(ctx context.Context, branch models.Branch) (models.Branch, error)
	GetBranch(ctx context.Context, branchID string) (models.Branch, error)
	ListBranches(ctx context.Context, filter BranchFilter) ([]models.Branch, error)
	DeleteBranch(ctx context.Context, branchID string) error
}

type QRStore interface {
	GenerateBatch(ctx context.Context, input GenerateInput) (models.BatchResult, error)
	ListBatches(ctx context.Context, limit int) ([]models.Batch, error)
	GetQRCode(ctx context.Context, qrID string) (models.QRCode, error)
	GetQRCodeByCode(ctx context.Context, code string) (models.QRCode, error)
	ListQRCodes(ctx context.Context, filter QRFilter) ([]models.QRCode, error)
	RecordPrint(ctx context.Context, input RecordPrintInput) (models.PrintHistoryEntry, error)
	ListPrintHistory(ctx context.Context, qrID string) ([]models.PrintHistoryEntry, error)
	MarkPrinted(ctx context.Context, qrIDs []string, actorID string) ([]models.QRCode, error)
	AssignToCompany(ctx context.Context, input AssignInput) ([]models.QRCode, error)
	Unassign(ctx context.Context, input UnassignInput) ([]models.QRCode, error)
	Activate(ctx context.Context, input ActivateInput) (models.QRCode, error)
	Transition(ctx context.Context, input TransitionInput) (models.QRCode, error)
	RecordScan(ctx context.Context, input RecordScanInput) (models.QRScan, error)
	MarkContactMade(ctx context.Context, qrID string) (models.QRScan, error)
	ListScans(ctx context.Context, qrID string, limit int) ([]models.QRScan, error)
	ResolvePublic(ctx context.Context, code string) (models.PublicQRView, error)
	ExpireDue(ctx context.Context, now time.Time, batchSize int) (int, error)
}

type SubscriptionStore interface {
	CreateSubscription(ctx context.Context, input CreateSubscriptionInput) (models.Subscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (models.Subscription, error)
	ListSubscriptions(ctx context.Context, filter SubscriptionFilter) ([]models.Subscription, error)
	UpdateSubscriptionStatus(ctx context.Context, subscriptionID, action string) (models.Subscription, error)
	RecordPaymentResult(ctx context.Context, subscriptionID, paymentStatus string) (models.Subscription, error)
}

type PetStore interface {
	CreatePet(ctx context.Context, pet models.Pet) (models.Pet, error)
	UpdatePet(ctx context.Context, pet models.Pet) (models.Pet, error)
	GetPet(ctx context.Context, petID string) (models.Pet, error)
	ListPets(ctx context.Context, ownerID string) ([]models.Pet, error)
	DeletePet(ctx context.Context, ownerID, petID string) error
}

type AuditStore interface {
	InsertAudit(ctx context.Context, audit models.AuditLog) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]models.AuditLog, error)
}

type EventStore interface {
	ListOutboxEvents(ctx context.Context, afterSeq int64, limit int) ([]OutboxEvent, error)
	GetOutboxOffset(ctx context.Context, consumer string) (int64, error)
	SetOutboxOffset(ctx context.Context, consumer string, seq int64) error
}

type Store interface {
	AccessStore
	DirectoryStore
	QRStore
	SubscriptionStore
	PetStore
	AuditStore
	EventStore
	Ping(ctx context.Context) error
}

// OutboxEvent is one committed change. Seq is the publish position a
// consumer offset refers to.
type OutboxEvent struct {
	Seq       int64           `json:"seq"`
	EventID   string          `json:"event_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

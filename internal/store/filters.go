package store

import "time"

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// TriState is a closed three-way filter for boolean facts.
type TriState string

const (
	Any TriState = ""
	Yes TriState = "yes"
	No  TriState = "no"
)

func ParseTriState(value string) (TriState, error) {
	switch TriState(value) {
	case Any, Yes, No:
		return TriState(value), nil
	}
	return Any, invalid("filter", "expected yes or no, got %q", value)
}

// CompanyFilter narrows ListCompanies.
//   - Type, Status: exact enum match when set.
//   - Search: case-insensitive substring over name, email and city.
//   - CreatedFrom/CreatedTo: inclusive bounds on created_at.
type CompanyFilter struct {
	Type        string
	Status      string
	Search      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// BranchFilter narrows ListBranches.
//   - CompanyID: owning company.
//   - Status: active or inactive.
//   - Search: case-insensitive substring over name and city.
type BranchFilter struct {
	CompanyID string
	Status    string
	Search    string
	Limit     int
	Offset    int
}

// QRFilter narrows ListQRCodes.
//   - Status, QRType: exact enum match.
//   - CompanyID, BranchID: assigned inventory.
//   - BatchID, OwnerID: provenance and ownership.
//   - Assigned: yes = has a company, no = unassigned.
//   - Printed: yes = is_printed, no = never printed.
//   - Search: case-insensitive substring of the code.
//   - CreatedFrom/CreatedTo: inclusive bounds on created_at.
type QRFilter struct {
	Status      string
	QRType      string
	CompanyID   string
	BranchID    string
	BatchID     string
	OwnerID     string
	Assigned    TriState
	Printed     TriState
	Search      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// SubscriptionFilter narrows ListSubscriptions.
type SubscriptionFilter struct {
	UserID        string
	QRID          string
	Status        string
	PaymentStatus string
	Limit         int
	Offset        int
}

// AuditFilter narrows ListAudit.
type AuditFilter struct {
	ActorUserID string
	ActionType  string
	TargetType  string
	TargetID    string
	Limit       int
}

// NormalizeLimit applies the default and the ceiling to a page size.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

func NormalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

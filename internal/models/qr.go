package models

import "time"

type QRCode struct {
	ID                string         `json:"id"`
	Code              string         `json:"code"`
	QRType            string         `json:"qr_type"`
	Status            string         `json:"status"`
	BatchID           *string        `json:"batch_id,omitempty"`
	PetID             *string        `json:"pet_id,omitempty"`
	OwnerID           *string        `json:"owner_id,omitempty"`
	AssignedCompanyID *string        `json:"assigned_company_id,omitempty"`
	AssignedBranchID  *string        `json:"assigned_branch_id,omitempty"`
	IsPrinted         bool           `json:"is_printed"`
	PrintCount        int            `json:"print_count"`
	FirstPrintedAt    *time.Time     `json:"first_printed_at,omitempty"`
	LastPrintedAt     *time.Time     `json:"last_printed_at,omitempty"`
	ScanCount         int            `json:"scan_count"`
	LastScanDate      *time.Time     `json:"last_scan_date,omitempty"`
	LastScanLocation  *string        `json:"last_scan_location,omitempty"`
	PurchasePrice     float64        `json:"purchase_price"`
	ActivationDate    *time.Time     `json:"activation_date,omitempty"`
	ExpiresAt         *time.Time     `json:"expires_at,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Linked reports whether the code is bound to a pet and an owner.
func (q QRCode) Linked() bool {
	return q.PetID != nil && q.OwnerID != nil
}

type Batch struct {
	ID           string    `json:"id"`
	Quantity     int       `json:"quantity"`
	QRType       string    `json:"qr_type"`
	PricePerUnit float64   `json:"price_per_unit"`
	TotalAmount  float64   `json:"total_amount"`
	BranchID     *string   `json:"branch_id,omitempty"`
	CompanyID    *string   `json:"company_id,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	CreatedBy    string    `json:"created_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type BatchResult struct {
	Batch Batch    `json:"batch"`
	Codes []QRCode `json:"codes"`
}

type QRScan struct {
	ID               string    `json:"id"`
	QRCodeID         string    `json:"qr_code_id"`
	ScannerIP        string    `json:"scanner_ip,omitempty"`
	ScannerUserAgent string    `json:"scanner_user_agent,omitempty"`
	ScanLocation     string    `json:"scan_location,omitempty"`
	ScanDate         time.Time `json:"scan_date"`
	ContactMade      bool      `json:"contact_made"`
	Notes            string    `json:"notes,omitempty"`
}

type PrintHistoryEntry struct {
	ID           string    `json:"id"`
	QRCodeID     string    `json:"qr_code_id"`
	PrintedBy    string    `json:"printed_by,omitempty"`
	PrintReason  string    `json:"print_reason,omitempty"`
	PrintQuality string    `json:"print_quality,omitempty"`
	PrinterInfo  string    `json:"printer_info,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	PrintedAt    time.Time `json:"printed_at"`
}

// PublicQRView is what an anonymous finder sees after scanning a tag.
type PublicQRView struct {
	Code      string         `json:"code"`
	Status    string         `json:"status"`
	Activated bool           `json:"activated"`
	IsLost    bool           `json:"is_lost"`
	Message   string         `json:"message,omitempty"`
	Pet       *PublicPet     `json:"pet,omitempty"`
	Owner     *PublicContact `json:"owner,omitempty"`
}

type PublicPet struct {
	Name         string `json:"name"`
	Species      string `json:"species"`
	Breed        string `json:"breed,omitempty"`
	Color        string `json:"color,omitempty"`
	PhotoURL     string `json:"photo_url,omitempty"`
	MedicalNotes string `json:"medical_notes,omitempty"`
}

type PublicContact struct {
	Name     string `json:"name,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Whatsapp string `json:"whatsapp,omitempty"`
	Address  string `json:"address,omitempty"`
}

const (
	QRTypeBasic         = "basic"
	QRTypePremium       = "premium"
	QRTypeInstitutional = "institutional"
)

const (
	QRStatusInactive = "inactive"
	QRStatusPrinted  = "printed"
	QRStatusAssigned = "assigned"
	QRStatusActive   = "active"
	QRStatusLost     = "lost"
	QRStatusFound    = "found"
	QRStatusExpired  = "expired"
)

func ValidQRType(value string) bool {
	switch value {
	case QRTypeBasic, QRTypePremium, QRTypeInstitutional:
		return true
	}
	return false
}

func ValidQRStatus(value string) bool {
	switch value {
	case QRStatusInactive, QRStatusPrinted, QRStatusAssigned, QRStatusActive,
		QRStatusLost, QRStatusFound, QRStatusExpired:
		return true
	}
	return false
}

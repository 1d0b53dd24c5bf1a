package models

import "time"

type Company struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Type           string     `json:"type"`
	Email          string     `json:"email,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	Address        string     `json:"address,omitempty"`
	City           string     `json:"city,omitempty"`
	ContactName    string     `json:"contact_name,omitempty"`
	CommissionRate float64    `json:"commission_rate"`
	Status         string     `json:"status"`
	CreatedBy      string     `json:"created_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

type Branch struct {
	ID          string     `json:"id"`
	CompanyID   string     `json:"company_id"`
	Name        string     `json:"name"`
	Address     string     `json:"address,omitempty"`
	City        string     `json:"city,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Email       string     `json:"email,omitempty"`
	ManagerName string     `json:"manager_name,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

const (
	CompanyTypeVeterinary = "veterinary"
	CompanyTypeShelter    = "shelter"
	CompanyTypePetShop    = "pet_shop"
	CompanyTypeGrooming   = "grooming"
	CompanyTypeOther      = "other"
)

const (
	CompanyStatusActive    = "active"
	CompanyStatusInactive  = "inactive"
	CompanyStatusPending   = "pending"
	CompanyStatusSuspended = "suspended"
)

const (
	BranchStatusActive   = "active"
	BranchStatusInactive = "inactive"
)

func ValidCompanyType(value string) bool {
	switch value {
	case CompanyTypeVeterinary, CompanyTypeShelter, CompanyTypePetShop, CompanyTypeGrooming, CompanyTypeOther:
		return true
	}
	return false
}

func ValidCompanyStatus(value string) bool {
	switch value {
	case CompanyStatusActive, CompanyStatusInactive, CompanyStatusPending, CompanyStatusSuspended:
		return true
	}
	return false
}

func ValidBranchStatus(value string) bool {
	return value == BranchStatusActive || value == BranchStatusInactive
}

package store

import (
	"strings"

	"upets/platform-service/internal/models"
)

func ValidateGenerate(input GenerateInput) error {
	if input.Quantity < MinBatchQuantity || input.Quantity > MaxBatchQuantity {
		return invalid("quantity", "must be between %d and %d", MinBatchQuantity, MaxBatchQuantity)
	}
	if !models.ValidQRType(input.QRType) {
		return invalid("qr_type", "unknown qr type %q", input.QRType)
	}
	if input.PricePerUnit < 0 {
		return invalid("price_per_unit", "must not be negative")
	}
	return nil
}

func ValidateIDs(field string, ids []string) error {
	if len(ids) == 0 {
		return invalid(field, "at least one id is required")
	}
	if len(ids) > MaxBatchQuantity {
		return invalid(field, "at most %d ids per request", MaxBatchQuantity)
	}
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return invalid(field, "empty id")
		}
	}
	return nil
}

// UniqueIDs drops duplicates while keeping order.
func UniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func ClampCommission(rate float64) float64 {
	if rate < 0 {
		return 0
	}
	if rate > 100 {
		return 100
	}
	return rate
}

// NormalizeCompany trims fields, applies defaults and validates enums.
func NormalizeCompany(company models.Company) (models.Company, error) {
	company.Name = strings.TrimSpace(company.Name)
	company.Email = strings.TrimSpace(company.Email)
	company.City = strings.TrimSpace(company.City)
	if company.Name == "" {
		return company, invalid("name", "required")
	}
	if company.Type == "" {
		company.Type = models.CompanyTypeOther
	}
	if !models.ValidCompanyType(company.Type) {
		return company, invalid("type", "unknown company type %q", company.Type)
	}
	if company.Status == "" {
		company.Status = models.CompanyStatusActive
	}
	if !models.ValidCompanyStatus(company.Status) {
		return company, invalid("status", "unknown company status %q", company.Status)
	}
	company.CommissionRate = ClampCommission(company.CommissionRate)
	return company, nil
}

func NormalizeBranch(branch models.Branch) (models.Branch, error) {
	branch.Name = strings.TrimSpace(branch.Name)
	if branch.Name == "" {
		return branch, invalid("name", "required")
	}
	if strings.TrimSpace(branch.CompanyID) == "" {
		return branch, invalid("company_id", "required")
	}
	if branch.Status == "" {
		branch.Status = models.BranchStatusActive
	}
	if !models.ValidBranchStatus(branch.Status) {
		return branch, invalid("status", "unknown branch status %q", branch.Status)
	}
	return branch, nil
}

func NormalizePet(pet models.Pet) (models.Pet, error) {
	pet.Name = strings.TrimSpace(pet.Name)
	if pet.Name == "" {
		return pet, invalid("name", "required")
	}
	if strings.TrimSpace(pet.OwnerID) == "" {
		return pet, invalid("owner_id", "required")
	}
	if !models.ValidSpecies(pet.Species) {
		return pet, invalid("species", "unknown species %q", pet.Species)
	}
	if !models.ValidPetSize(pet.Size) {
		return pet, invalid("size", "unknown size %q", pet.Size)
	}
	if pet.Weight < 0 {
		return pet, invalid("weight", "must not be negative")
	}
	return pet, nil
}

func ValidateActivate(input ActivateInput) error {
	if strings.TrimSpace(input.QRID) == "" {
		return invalid("qr_id", "required")
	}
	if strings.TrimSpace(input.PetID) == "" {
		return invalid("pet_id", "required")
	}
	if strings.TrimSpace(input.OwnerID) == "" {
		return invalid("owner_id", "required")
	}
	if input.PlanType != "" && !models.ValidQRType(input.PlanType) {
		return invalid("plan_type", "unknown plan type %q", input.PlanType)
	}
	return nil
}

func ValidateTransition(input TransitionInput) error {
	if strings.TrimSpace(input.QRID) == "" {
		return invalid("qr_id", "required")
	}
	if !TransitionActions[input.Action] {
		return invalid("action", "unknown action %q", input.Action)
	}
	return nil
}

func ValidateRole(role models.Role) error {
	if strings.TrimSpace(role.Name) == "" {
		return invalid("name", "required")
	}
	if role.Level < 1 || role.Level > 100 {
		return invalid("level", "must be between 1 and 100")
	}
	return nil
}

func ValidateSubscription(input CreateSubscriptionInput) error {
	if strings.TrimSpace(input.QRID) == "" {
		return invalid("qr_code_id", "required")
	}
	if strings.TrimSpace(input.UserID) == "" {
		return invalid("user_id", "required")
	}
	if !models.ValidQRType(input.PlanType) {
		return invalid("plan_type", "unknown plan type %q", input.PlanType)
	}
	if input.PaymentStatus != "" && !models.ValidPaymentStatus(input.PaymentStatus) {
		return invalid("payment_status", "unknown payment status %q", input.PaymentStatus)
	}
	return nil
}

func ValidateSubscriptionAction(action string) error {
	if _, ok := SubscriptionTarget(action); !ok {
		return invalid("action", "unknown subscription action %q", action)
	}
	return nil
}

func ValidatePaymentResult(status string) error {
	if !models.ValidPaymentStatus(status) {
		return invalid("payment_status", "unknown payment status %q", status)
	}
	return nil
}

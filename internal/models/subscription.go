package models

import "time"

type Subscription struct {
	ID              string     `json:"id"`
	QRCodeID        string     `json:"qr_code_id"`
	UserID          string     `json:"user_id"`
	PlanType        string     `json:"plan_type"`
	MonthlyPrice    float64    `json:"monthly_price"`
	CommissionRate  float64    `json:"commission_rate"`
	Status          string     `json:"status"`
	StartDate       time.Time  `json:"start_date"`
	NextBillingDate time.Time  `json:"next_billing_date"`
	PaymentStatus   string     `json:"payment_status"`
	LastPaymentAt   *time.Time `json:"last_payment_at,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type Plan struct {
	Type         string  `json:"type" yaml:"type"`
	MonthlyPrice float64 `json:"monthly_price" yaml:"monthly_price"`
	Description  string  `json:"description,omitempty" yaml:"description"`
}

const (
	SubscriptionActive    = "active"
	SubscriptionPaused    = "paused"
	SubscriptionCancelled = "cancelled"
	SubscriptionExpired   = "expired"
)

const (
	PaymentPending   = "pending"
	PaymentPaid      = "paid"
	PaymentFailed    = "failed"
	PaymentCancelled = "cancelled"
)

func ValidSubscriptionStatus(value string) bool {
	switch value {
	case SubscriptionActive, SubscriptionPaused, SubscriptionCancelled, SubscriptionExpired:
		return true
	}
	return false
}

func ValidPaymentStatus(value string) bool {
	switch value {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentCancelled:
		return true
	}
	return false
}

package store

import (
	"time"

	"upets/platform-service/internal/models"
)

// NewSubscription builds the ledger row for a freshly activated plan.
func NewSubscription(id string, input CreateSubscriptionInput, price, commission float64, now time.Time) models.Subscription {
	paymentStatus := input.PaymentStatus
	if paymentStatus == "" {
		paymentStatus = models.PaymentPending
	}
	return models.Subscription{
		ID:              id,
		QRCodeID:        input.QRID,
		UserID:          input.UserID,
		PlanType:        input.PlanType,
		MonthlyPrice:    price,
		CommissionRate:  ClampCommission(commission),
		Status:          models.SubscriptionActive,
		StartDate:       now,
		NextBillingDate: now.Add(BillingPeriod),
		PaymentStatus:   paymentStatus,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// ApplySubscriptionAction moves a subscription through pause, resume, cancel
// or expire.
func ApplySubscriptionAction(sub models.Subscription, action string, now time.Time) (models.Subscription, error) {
	if err := ValidateSubscriptionAction(action); err != nil {
		return sub, err
	}
	if !ValidSubscriptionTransition(action, sub.Status) {
		return sub, ErrSubscriptionState
	}
	target, _ := SubscriptionTarget(action)
	sub.Status = target
	sub.UpdatedAt = now
	if action == "cancel" {
		cancelled := now
		sub.CancelledAt = &cancelled
	}
	return sub, nil
}

// ApplyPayment records an external payment result. A paid result moves the
// next billing date one period forward.
func ApplyPayment(sub models.Subscription, paymentStatus string, now time.Time) (models.Subscription, error) {
	if err := ValidatePaymentResult(paymentStatus); err != nil {
		return sub, err
	}
	if sub.Status != models.SubscriptionActive && sub.Status != models.SubscriptionPaused {
		return sub, ErrSubscriptionState
	}
	sub.PaymentStatus = paymentStatus
	sub.UpdatedAt = now
	if paymentStatus == models.PaymentPaid {
		paid := now
		sub.LastPaymentAt = &paid
		sub.NextBillingDate = sub.NextBillingDate.Add(BillingPeriod)
	}
	return sub, nil
}

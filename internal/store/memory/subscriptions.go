package memory

import (
	"context"
	"time"

	"upets/platform-service/internal/models"
	"upets/platform-service/internal/store"

	"github.com/google/uuid"
)

func (s *Store) CreateSubscription(ctx context.Context, input store.CreateSubscriptionInput) (models.Subscription, error) {
	if err := store.ValidateSubscription(input); err != nil {
		return models.Subscription{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	qr, ok := s.qrCodes[input.QRID]
	if !ok {
		return models.Subscription{}, store.ErrQRNotFound
	}
	if qr.Status != models.QRStatusActive {
		return models.Subscription{}, store.ErrInvalidState
	}
	if qr.OwnerID == nil || *qr.OwnerID != input.UserID {
		return models.Subscription{}, store.ErrAccessDenied
	}
	price, err := s.checkSubscription(qr.ID, input.PlanType)
	if err != nil {
		return models.Subscription{}, err
	}
	return s.insertSubscription(qr, input, price, s.now()), nil
}

// checkSubscription resolves the plan price and rejects a second active
// subscription for the code.
func (s *Store) checkSubscription(qrID, planType string) (float64, error) {
	price, ok := s.plans.Price(planType)
	if !ok {
		return 0, &store.ValidationError{Field: "plan_type", Message: "unknown plan"}
	}
	if s.hasActiveSubscription(qrID, "") {
		return 0, store.ErrSubscriptionExists
	}
	return price, nil
}

func (s *Store) hasActiveSubscription(qrID, exceptID string) bool {
	for _, sub := range s.subscriptions {
		if sub.QRCodeID == qrID && sub.ID != exceptID && sub.Status == models.SubscriptionActive {
			return true
		}
	}
	return false
}

func (s *Store) insertSubscription(qr models.QRCode, input store.CreateSubscriptionInput, price float64, now time.Time) models.Subscription {
	commission := 0.0
	if qr.AssignedCompanyID != nil {
		if company, ok := s.companies[*qr.AssignedCompanyID]; ok {
			commission = company.CommissionRate
		}
	}
	sub := store.NewSubscription(uuid.NewString(), input, price, commission, now)
	s.subscriptions[sub.ID] = sub
	s.appendOutbox("subscription.created", map[string]interface{}{
		"subscription_id": sub.ID,
		"qr_id":           sub.QRCodeID,
		"user_id":         sub.UserID,
		"plan_type":       sub.PlanType,
		"monthly_price":   sub.MonthlyPrice,
	}, now)
	return sub
}

func (s *Store) GetSubscription(ctx context.Context, subscriptionID string) (models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[subscriptionID]
	if !ok {
		return models.Subscription{}, store.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (s *Store) ListSubscriptions(ctx context.Context, filter store.SubscriptionFilter) ([]models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Subscription
	for _, sub := range s.subscriptions {
		if filter.UserID != "" && sub.UserID != filter.UserID {
			continue
		}
		if filter.QRID != "" && sub.QRCodeID != filter.QRID {
			continue
		}
		if filter.Status != "" && sub.Status != filter.Status {
			continue
		}
		if filter.PaymentStatus != "" && sub.PaymentStatus != filter.PaymentStatus {
			continue
		}
		out = append(out, sub)
	}
	sortByCreated(out, func(s models.Subscription) time.Time { return s.CreatedAt }, func(s models.Subscription) string { return s.ID })
	return page(out, filter.Limit, filter.Offset), nil
}

func (s *Store) UpdateSubscriptionStatus(ctx context.Context, subscriptionID, action string) (models.Subscription, error) {
	if err := store.ValidateSubscriptionAction(action); err != nil {
		return models.Subscription{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.subscriptions[subscriptionID]
	if !ok {
		return models.Subscription{}, store.ErrSubscriptionNotFound
	}
	now := s.now()
	next, err := store.ApplySubscriptionAction(current, action, now)
	if err != nil {
		return models.Subscription{}, err
	}
	if next.Status == models.SubscriptionActive && s.hasActiveSubscription(next.QRCodeID, next.ID) {
		return models.Subscription{}, store.ErrSubscriptionExists
	}
	s.subscriptions[next.ID] = next
	s.appendOutbox("subscription."+action, map[string]interface{}{
		"subscription_id": next.ID,
		"qr_id":           next.QRCodeID,
		"status":          next.Status,
	}, now)
	return next, nil
}

func (s *Store) RecordPaymentResult(ctx context.Context, subscriptionID, paymentStatus string) (models.Subscription, error) {
	if err := store.ValidatePaymentResult(paymentStatus); err != nil {
		return models.Subscription{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.subscriptions[subscriptionID]
	if !ok {
		return models.Subscription{}, store.ErrSubscriptionNotFound
	}
	now := s.now()
	next, err := store.ApplyPayment(current, paymentStatus, now)
	if err != nil {
		return models.Subscription{}, err
	}
	s.subscriptions[next.ID] = next
	s.appendOutbox("subscription.payment_recorded", map[string]interface{}{
		"subscription_id":   next.ID,
		"payment_status":    next.PaymentStatus,
		"next_billing_date": next.NextBillingDate,
	}, now)
	return next, nil
}

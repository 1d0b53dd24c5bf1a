package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"upets/platform-service/internal/models"
	"upets/platform-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const activeSubscriptionIndex = "subscriptions_one_active_idx"

const subscriptionColumns = `subscription_id, qr_code_id, user_id, plan_type, monthly_price, commission_rate, status,
	start_date, next_billing_date, payment_status, last_payment_at, cancelled_at, created_at, updated_at`

func scanSubscription(row pgx.Row) (models.Subscription, error) {
	var sub models.Subscription
	var lastPayment, cancelledAt sql.NullTime
	if err := row.Scan(&sub.ID, &sub.QRCodeID, &sub.UserID, &sub.PlanType, &sub.MonthlyPrice, &sub.CommissionRate,
		&sub.Status, &sub.StartDate, &sub.NextBillingDate, &sub.PaymentStatus, &lastPayment, &cancelledAt,
		&sub.CreatedAt, &sub.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Subscription{}, store.ErrSubscriptionNotFound
		}
		return models.Subscription{}, err
	}
	sub.LastPaymentAt = nullTimePtr(lastPayment)
	sub.CancelledAt = nullTimePtr(cancelledAt)
	return sub, nil
}

func (s *Store) CreateSubscription(ctx context.Context, input store.CreateSubscriptionInput) (models.Subscription, error) {
	if err := store.ValidateSubscription(input); err != nil {
		return models.Subscription{}, err
	}
	var sub models.Subscription
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		sub, err = s.createSubscriptionTx(ctx, tx, input, s.now())
		return err
	})
	if err != nil {
		return models.Subscription{}, err
	}
	return sub, nil
}

func (s *Store) createSubscriptionTx(ctx context.Context, tx pgx.Tx, input store.CreateSubscriptionInput, now time.Time) (models.Subscription, error) {
	price, ok := s.plans.Price(input.PlanType)
	if !ok {
		return models.Subscription{}, &store.ValidationError{Field: "plan_type", Message: "unknown plan"}
	}
	qr, err := lockQRCode(ctx, tx, input.QRID)
	if err != nil {
		return models.Subscription{}, err
	}
	if qr.Status != models.QRStatusActive {
		return models.Subscription{}, store.ErrInvalidState
	}
	if qr.OwnerID == nil || *qr.OwnerID != input.UserID {
		return models.Subscription{}, store.ErrAccessDenied
	}

	var exists bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM subscriptions WHERE qr_code_id = $1 AND status = 'active')
	`, qr.ID).Scan(&exists); err != nil {
		return models.Subscription{}, err
	}
	if exists {
		return models.Subscription{}, store.ErrSubscriptionExists
	}

	commission := 0.0
	if qr.AssignedCompanyID != nil {
		err := tx.QueryRow(ctx, `SELECT commission_rate FROM companies WHERE company_id = $1`, *qr.AssignedCompanyID).Scan(&commission)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return models.Subscription{}, err
		}
	}

	sub := store.NewSubscription(uuid.NewString(), input, price, commission, now)
	created, err := scanSubscription(tx.QueryRow(ctx, `
		INSERT INTO subscriptions (subscription_id, qr_code_id, user_id, plan_type, monthly_price, commission_rate, status,
			start_date, next_billing_date, payment_status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11)
		RETURNING `+subscriptionColumns,
		sub.ID, sub.QRCodeID, sub.UserID, sub.PlanType, sub.MonthlyPrice, sub.CommissionRate, sub.Status,
		sub.StartDate, sub.NextBillingDate, sub.PaymentStatus, now))
	if err != nil {
		if isUniqueViolation(err, activeSubscriptionIndex) {
			return models.Subscription{}, store.ErrSubscriptionExists
		}
		return models.Subscription{}, err
	}

	if err := insertOutboxEvent(ctx, tx, "subscription.created", map[string]interface{}{
		"subscription_id": created.ID,
		"qr_id":           created.QRCodeID,
		"user_id":         created.UserID,
		"plan_type":       created.PlanType,
		"monthly_price":   created.MonthlyPrice,
	}); err != nil {
		return models.Subscription{}, err
	}
	return created, nil
}

func (s *Store) GetSubscription(ctx context.Context, subscriptionID string) (models.Subscription, error) {
	if !validID(subscriptionID) {
		return models.Subscription{}, store.ErrSubscriptionNotFound
	}
	return scanSubscription(s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions WHERE subscription_id = $1
	`, subscriptionID))
}

func (s *Store) ListSubscriptions(ctx context.Context, filter store.SubscriptionFilter) ([]models.Subscription, error) {
	w := &where{}
	if filter.UserID != "" {
		w.add("user_id = ?", filter.UserID)
	}
	if filter.QRID != "" {
		if !validID(filter.QRID) {
			return nil, nil
		}
		w.add("qr_code_id = ?", filter.QRID)
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	if filter.PaymentStatus != "" {
		w.add("payment_status = ?", filter.PaymentStatus)
	}
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions` + w.sql() + ` ORDER BY created_at DESC` + w.page(filter.Limit, filter.Offset)
	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return subs, nil
}

func (s *Store) UpdateSubscriptionStatus(ctx context.Context, subscriptionID, action string) (models.Subscription, error) {
	if err := store.ValidateSubscriptionAction(action); err != nil {
		return models.Subscription{}, err
	}
	if !validID(subscriptionID) {
		return models.Subscription{}, store.ErrSubscriptionNotFound
	}
	var updated models.Subscription
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		current, err := scanSubscription(tx.QueryRow(ctx, `
			SELECT `+subscriptionColumns+` FROM subscriptions WHERE subscription_id = $1 FOR UPDATE
		`, subscriptionID))
		if err != nil {
			return err
		}
		next, err := store.ApplySubscriptionAction(current, action, s.now())
		if err != nil {
			return err
		}
		updated, err = scanSubscription(tx.QueryRow(ctx, `
			UPDATE subscriptions SET status = $2, cancelled_at = $3, updated_at = $4
			WHERE subscription_id = $1
			RETURNING `+subscriptionColumns, next.ID, next.Status, next.CancelledAt, next.UpdatedAt))
		if err != nil {
			if isUniqueViolation(err, activeSubscriptionIndex) {
				return store.ErrSubscriptionExists
			}
			return err
		}
		return insertOutboxEvent(ctx, tx, "subscription."+action, map[string]interface{}{
			"subscription_id": updated.ID,
			"qr_id":           updated.QRCodeID,
			"status":          updated.Status,
		})
	})
	if err != nil {
		return models.Subscription{}, err
	}
	return updated, nil
}

func (s *Store) RecordPaymentResult(ctx context.Context, subscriptionID, paymentStatus string) (models.Subscription, error) {
	if err := store.ValidatePaymentResult(paymentStatus); err != nil {
		return models.Subscription{}, err
	}
	if !validID(subscriptionID) {
		return models.Subscription{}, store.ErrSubscriptionNotFound
	}
	var updated models.Subscription
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		current, err := scanSubscription(tx.QueryRow(ctx, `
			SELECT `+subscriptionColumns+` FROM subscriptions WHERE subscription_id = $1 FOR UPDATE
		`, subscriptionID))
		if err != nil {
			return err
		}
		next, err := store.ApplyPayment(current, paymentStatus, s.now())
		if err != nil {
			return err
		}
		updated, err = scanSubscription(tx.QueryRow(ctx, `
			UPDATE subscriptions
			SET payment_status = $2, last_payment_at = $3, next_billing_date = $4, updated_at = $5
			WHERE subscription_id = $1
			RETURNING `+subscriptionColumns, next.ID, next.PaymentStatus, next.LastPaymentAt, next.NextBillingDate, next.UpdatedAt))
		if err != nil {
			return err
		}
		return insertOutboxEvent(ctx, tx, "subscription.payment_recorded", map[string]interface{}{
			"subscription_id":   updated.ID,
			"payment_status":    updated.PaymentStatus,
			"next_billing_date": updated.NextBillingDate,
		})
	})
	if err != nil {
		return models.Subscription{}, err
	}
	return updated, nil
}

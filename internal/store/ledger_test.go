package store

import (
	"testing"
	"time"

	"upets/platform-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSubscriptionBilling(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	sub := NewSubscription("s1", CreateSubscriptionInput{QRID: "q1", UserID: "u1", PlanType: models.QRTypeBasic}, 1500, 12, now)

	assert.Equal(t, models.SubscriptionActive, sub.Status)
	assert.Equal(t, models.PaymentPending, sub.PaymentStatus)
	assert.Equal(t, now.Add(30*24*time.Hour), sub.NextBillingDate)
	assert.Equal(t, 12.0, sub.CommissionRate)
}

func TestApplyPaymentAdvancesBilling(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	sub := NewSubscription("s1", CreateSubscriptionInput{QRID: "q1", UserID: "u1", PlanType: models.QRTypeBasic}, 1500, 0, now)

	later := now.Add(time.Hour)
	paid, err := ApplyPayment(sub, models.PaymentPaid, later)
	require.NoError(t, err)
	assert.Equal(t, now.Add(60*24*time.Hour), paid.NextBillingDate)
	require.NotNil(t, paid.LastPaymentAt)
	assert.Equal(t, later, *paid.LastPaymentAt)

	failed, err := ApplyPayment(sub, models.PaymentFailed, later)
	require.NoError(t, err)
	assert.Equal(t, sub.NextBillingDate, failed.NextBillingDate)
	assert.Nil(t, failed.LastPaymentAt)

	_, err = ApplyPayment(sub, "refunded", later)
	assert.True(t, IsValidation(err))
}

func TestApplySubscriptionAction(t *testing.T) {
	now := time.Now().UTC()
	sub := models.Subscription{Status: models.SubscriptionActive}

	paused, err := ApplySubscriptionAction(sub, "pause", now)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionPaused, paused.Status)

	_, err = ApplySubscriptionAction(paused, "pause", now)
	assert.ErrorIs(t, err, ErrSubscriptionState)

	cancelled, err := ApplySubscriptionAction(paused, "cancel", now)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)

	_, err = ApplyPayment(cancelled, models.PaymentPaid, now)
	assert.ErrorIs(t, err, ErrSubscriptionState)
}

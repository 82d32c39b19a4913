package ledger

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/mother-bot/store"
	"github.com/BatmanBruc/mother-bot/types"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newLedger(t *testing.T, now time.Time) (*Ledger, *store.MemoryStore) {
	t.Helper()
	m := store.NewMemoryStore()
	_, err := m.InsertUser(context.Background(), &types.User{UserID: 7, ReferralCode: "CODE0007"})
	require.NoError(t, err)
	return New(m, func() time.Time { return now }, quietLogger()), m
}

func TestActivatePlan_Overwrites(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	l, _ := newLedger(t, now)
	ctx := context.Background()

	_, err := l.ActivatePlan(ctx, 7, "professional", 30)
	require.NoError(t, err)
	sub, err := l.ActivatePlan(ctx, 7, "professional", 30)
	require.NoError(t, err)

	assert.Equal(t, "professional", sub.Plan)
	assert.True(t, sub.IsActive)
	assert.True(t, sub.ExpiresAt.Equal(now.AddDate(0, 0, 30)))
	assert.False(t, sub.ExpiresAt.Before(sub.CreatedAt))
}

func TestRenew_OrderIndependent(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	cases := map[string]time.Time{
		"active":  now.AddDate(0, 0, 10),
		"expired": now.AddDate(0, 0, -10),
	}
	for name, original := range cases {
		t.Run(name, func(t *testing.T) {
			base := now
			if original.After(now) {
				base = original
			}
			want := base.AddDate(0, 0, 7+30)

			for _, order := range [][2]int{{7, 30}, {30, 7}} {
				l, m := newLedger(t, now)
				ctx := context.Background()
				_, err := m.MutateSubscription(ctx, 7, func(sub *types.Subscription) error {
					sub.Plan = "vip"
					sub.ExpiresAt = original
					sub.IsActive = true
					sub.CreatedAt = original.AddDate(0, -1, 0)
					return nil
				})
				require.NoError(t, err)

				_, err = l.Renew(ctx, 7, order[0])
				require.NoError(t, err)
				sub, err := l.Renew(ctx, 7, order[1])
				require.NoError(t, err)

				assert.True(t, sub.ExpiresAt.Equal(want), "order %v got %s", order, sub.ExpiresAt)
				assert.Equal(t, "vip", sub.Plan)
			}
		})
	}
}

func TestApplyPayment_Once(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	l, _ := newLedger(t, now)
	ctx := context.Background()

	sub, applied, err := l.ApplyPayment(ctx, &types.Payment{ID: "p1", UserID: 7, Plan: "professional", PaymentType: types.PaymentSubscription}, 30)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, "professional", sub.Plan)
	assert.Equal(t, "p1", sub.PaymentID)

	renewal := &types.Payment{ID: "p2", UserID: 7, Plan: "professional", PaymentType: types.PaymentRenewal}
	sub, applied, err = l.ApplyPayment(ctx, renewal, 30)
	require.NoError(t, err)
	assert.True(t, applied)
	want := now.AddDate(0, 0, 60)
	assert.True(t, sub.ExpiresAt.Equal(want))

	sub, applied, err = l.ApplyPayment(ctx, renewal, 30)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.True(t, sub.ExpiresAt.Equal(want), "a repeated renewal must not extend twice")
}

func TestUnknownUser(t *testing.T) {
	l, _ := newLedger(t, time.Now())
	ctx := context.Background()

	_, err := l.ActivatePlan(ctx, 404, "vip", 30)
	assert.True(t, errors.Is(err, types.ErrNotFound))
	_, err = l.Renew(ctx, 404, 30)
	assert.True(t, errors.Is(err, types.ErrNotFound))
	_, err = l.IsExpired(ctx, 404, time.Now())
	assert.True(t, errors.Is(err, types.ErrNotFound))
	_, err = l.DaysRemaining(ctx, 404, time.Now())
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestExpiryArithmetic(t *testing.T) {
	exp := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	sub := types.Subscription{ExpiresAt: exp, IsActive: true}

	tests := []struct {
		name    string
		now     time.Time
		expired bool
		days    int
	}{
		{"exactly at expiry", exp, true, 0},
		{"after expiry", exp.Add(time.Hour), true, 0},
		{"one second before", exp.Add(-time.Second), false, 1},
		{"exactly one day", exp.Add(-24 * time.Hour), false, 1},
		{"a day and a bit", exp.Add(-25 * time.Hour), false, 2},
		{"ten days", exp.AddDate(0, 0, -10), false, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expired, Expired(sub, tt.now))
			assert.Equal(t, tt.days, DaysRemaining(sub, tt.now))
		})
	}
}

// Package ledger owns subscription state: activation, renewal and expiry arithmetic.
package ledger

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BatmanBruc/mother-bot/types"
)

const day = 24 * time.Hour

type Ledger struct {
	users types.UserStore
	now   func() time.Time
	log   logrus.FieldLogger
}

func New(users types.UserStore, now func() time.Time, log logrus.FieldLogger) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{users: users, now: now, log: log}
}

// ActivatePlan overwrites the subscription with plan for durationDays from now.
// Repeating it does not accumulate duration.
func (l *Ledger) ActivatePlan(ctx context.Context, userID int64, plan string, durationDays int) (*types.Subscription, error) {
	now := l.now().UTC()
	sub, err := l.users.MutateSubscription(ctx, userID, func(sub *types.Subscription) error {
		activate(sub, plan, durationDays, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.log.WithFields(logrus.Fields{
		"user_id":    userID,
		"plan":       plan,
		"expires_at": sub.ExpiresAt,
	}).Info("plan activated")
	return sub, nil
}

// Renew extends the subscription by durationDays from max(now, expiresAt).
func (l *Ledger) Renew(ctx context.Context, userID int64, durationDays int) (*types.Subscription, error) {
	now := l.now().UTC()
	sub, err := l.users.MutateSubscription(ctx, userID, func(sub *types.Subscription) error {
		extend(sub, durationDays, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.log.WithFields(logrus.Fields{
		"user_id":    userID,
		"expires_at": sub.ExpiresAt,
	}).Info("subscription renewed")
	return sub, nil
}

// ApplyPayment activates or, for a renewal, extends the subscription paid by p. The
// payment id is stored with the subscription in the same write, so applying the same
// payment again changes nothing and reports applied false.
func (l *Ledger) ApplyPayment(ctx context.Context, p *types.Payment, durationDays int) (sub *types.Subscription, applied bool, err error) {
	now := l.now().UTC()
	sub, err = l.users.MutateSubscription(ctx, p.UserID, func(sub *types.Subscription) error {
		applied = false
		if sub.PaymentID == p.ID {
			return nil
		}
		if p.PaymentType == types.PaymentRenewal {
			extend(sub, durationDays, now)
		} else {
			activate(sub, p.Plan, durationDays, now)
		}
		sub.PaymentID = p.ID
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	log := l.log.WithFields(logrus.Fields{
		"user_id":    p.UserID,
		"payment_id": p.ID,
		"plan":       sub.Plan,
		"expires_at": sub.ExpiresAt,
	})
	if applied {
		log.Info("payment applied to subscription")
	} else {
		log.Debug("payment already applied")
	}
	return sub, applied, nil
}

func activate(sub *types.Subscription, plan string, durationDays int, now time.Time) {
	sub.Plan = plan
	sub.ExpiresAt = now.Add(time.Duration(durationDays) * day)
	sub.IsActive = true
	sub.CreatedAt = now
}

func extend(sub *types.Subscription, durationDays int, now time.Time) {
	base := now
	if sub.ExpiresAt.After(base) {
		base = sub.ExpiresAt
	}
	sub.ExpiresAt = base.Add(time.Duration(durationDays) * day)
	sub.IsActive = true
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
}

func (l *Ledger) Subscription(ctx context.Context, userID int64) (types.Subscription, error) {
	u, err := l.users.GetUser(ctx, userID)
	if err != nil {
		return types.Subscription{}, err
	}
	return u.Subscription, nil
}

func (l *Ledger) IsExpired(ctx context.Context, userID int64, now time.Time) (bool, error) {
	sub, err := l.Subscription(ctx, userID)
	if err != nil {
		return false, err
	}
	return Expired(sub, now), nil
}

func (l *Ledger) DaysRemaining(ctx context.Context, userID int64, now time.Time) (int, error) {
	sub, err := l.Subscription(ctx, userID)
	if err != nil {
		return 0, err
	}
	return DaysRemaining(sub, now), nil
}

func Expired(sub types.Subscription, now time.Time) bool {
	return !now.Before(sub.ExpiresAt)
}

func DaysRemaining(sub types.Subscription, now time.Time) int {
	left := sub.ExpiresAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(float64(left) / float64(day)))
}

package types

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type ReferralRecord struct {
	ID          string
	ReferrerID  int64
	ReferredID  int64
	Status      ReferralStatus
	BonusAmount decimal.Decimal
	Level       int
	CreatedAt   time.Time
	CreditedAt  *time.Time
}

type ReferralStore interface {
	CreateReferral(ctx context.Context, rec *ReferralRecord) error
	// PendingReferrals lists the pending records of referredID ordered by level.
	PendingReferrals(ctx context.Context, referredID int64) ([]ReferralRecord, error)
	// CountCredited counts level-1 credited records where referrerID is the referrer.
	CountCredited(ctx context.Context, referrerID int64) (int, error)
	// CreditReferral marks a pending record credited with bonus and adds bonus to the
	// referrer's earnings in one step. It reports false when the record was not pending.
	CreditReferral(ctx context.Context, recordID string, bonus decimal.Decimal, at time.Time) (bool, error)
}

// Package referral records who referred whom and pays commissions on confirmed payments.
package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/BatmanBruc/mother-bot/types"
)

const CodeLength = 8

// Credit is one commission paid out by CreditIfEligible.
type Credit struct {
	RecordID   string
	ReferrerID int64
	Level      int
	Rate       float64
	Bonus      decimal.Decimal
}

type Engine struct {
	users  types.UserStore
	refs   types.ReferralStore
	policy types.ReferralPolicy
	now    func() time.Time
	log    logrus.FieldLogger
}

func NewEngine(users types.UserStore, refs types.ReferralStore, policy types.ReferralPolicy, now func() time.Time, log logrus.FieldLogger) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{users: users, refs: refs, policy: policy, now: now, log: log}
}

// NewCode returns a fresh uppercase referral code.
func NewCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:CodeLength])
}

// Enroll creates pending records linking referred to its referrer chain, one per level
// up to the configured depth. Unknown codes and cycles end the chain.
func (e *Engine) Enroll(ctx context.Context, referred *types.User) (int, error) {
	code := strings.TrimSpace(referred.ReferredBy)
	seen := map[int64]bool{referred.UserID: true}
	created := 0

	for level := 1; level <= e.policy.MaxDepth && code != ""; level++ {
		referrer, err := e.users.GetUserByReferralCode(ctx, code)
		if errors.Is(err, types.ErrNotFound) {
			break
		}
		if err != nil {
			return created, fmt.Errorf("resolve referral code: %w", err)
		}
		if seen[referrer.UserID] {
			break
		}
		seen[referrer.UserID] = true

		rec := &types.ReferralRecord{
			ReferrerID: referrer.UserID,
			ReferredID: referred.UserID,
			Status:     types.ReferralPending,
			Level:      level,
		}
		if err := e.refs.CreateReferral(ctx, rec); err != nil {
			return created, fmt.Errorf("create referral level %d: %w", level, err)
		}
		created++
		code = strings.TrimSpace(referrer.ReferredBy)
	}
	return created, nil
}

// CreditIfEligible pays every pending record of referredID against amount. Records are
// credited at most once, so a repeated call is a no-op.
func (e *Engine) CreditIfEligible(ctx context.Context, referredID int64, amount decimal.Decimal) ([]Credit, error) {
	records, err := e.refs.PendingReferrals(ctx, referredID)
	if err != nil {
		return nil, err
	}

	var credits []Credit
	for _, rec := range records {
		if rec.Level > e.policy.MaxDepth {
			continue
		}
		rate, err := e.rate(ctx, rec)
		if err != nil {
			return credits, err
		}
		bonus := amount.Mul(decimal.NewFromFloat(rate)).Round(2)

		ok, err := e.refs.CreditReferral(ctx, rec.ID, bonus, e.now().UTC())
		if err != nil {
			return credits, fmt.Errorf("credit referral %s: %w", rec.ID, err)
		}
		if !ok {
			continue
		}
		credits = append(credits, Credit{RecordID: rec.ID, ReferrerID: rec.ReferrerID, Level: rec.Level, Rate: rate, Bonus: bonus})
		e.log.WithFields(logrus.Fields{
			"referrer_id": rec.ReferrerID,
			"referred_id": referredID,
			"level":       rec.Level,
			"bonus":       bonus.String(),
		}).Info("referral credited")
	}
	return credits, nil
}

func (e *Engine) rate(ctx context.Context, rec types.ReferralRecord) (float64, error) {
	if rec.Level == 1 {
		n, err := e.refs.CountCredited(ctx, rec.ReferrerID)
		if err != nil {
			return 0, err
		}
		return TierRate(e.policy.Tiers, n), nil
	}
	i := rec.Level - 2
	if i < len(e.policy.UplineRates) {
		return e.policy.UplineRates[i], nil
	}
	return 0, nil
}

// TierRate picks the rate of the highest tier whose threshold credited has reached.
func TierRate(tiers []types.ReferralTier, credited int) float64 {
	rate := 0.0
	for _, t := range tiers {
		if credited >= t.MinCredited {
			rate = t.Rate
		}
	}
	return rate
}

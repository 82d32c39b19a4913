// Package payments holds manually verified receipts until an administrator decides on them.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/BatmanBruc/mother-bot/internal/events"
	"github.com/BatmanBruc/mother-bot/internal/keylock"
	"github.com/BatmanBruc/mother-bot/internal/metrics"
	"github.com/BatmanBruc/mother-bot/internal/referral"
	"github.com/BatmanBruc/mother-bot/types"
)

type Ledger interface {
	ApplyPayment(ctx context.Context, p *types.Payment, durationDays int) (*types.Subscription, bool, error)
}

type Referrals interface {
	CreditIfEligible(ctx context.Context, referredID int64, amount decimal.Decimal) ([]referral.Credit, error)
}

// Resumer re-enters shop provisioning once a subscription payment is confirmed.
type Resumer interface {
	ResumeProvisioning(ctx context.Context, userID int64, plan, paymentID string) error
}

// Notifier tells the payer about the decision.
type Notifier interface {
	PaymentDecided(ctx context.Context, p *types.Payment) error
}

type SubmitRequest struct {
	UserID     int64             `validate:"gt=0"`
	ShopID     string            `validate:"omitempty,uuid"`
	Plan       string            `validate:"required"`
	Amount     decimal.Decimal   `validate:"-"`
	Type       types.PaymentType `validate:"oneof=subscription renewal"`
	ReceiptRef string            `validate:"required,max=512"`
}

// Outcome describes what a confirmation triggered.
type Outcome struct {
	Payment      *types.Payment
	Subscription *types.Subscription
	Credits      []referral.Credit
	Resumed      bool
}

type Queue struct {
	payments  types.PaymentStore
	catalog   *types.Catalog
	ledger    Ledger
	referrals Referrals
	resumer   Resumer
	notifier  Notifier
	events    events.Publisher
	locks     *keylock.Locker
	validate  *validator.Validate
	now       func() time.Time
	log       logrus.FieldLogger
}

type Deps struct {
	Payments  types.PaymentStore
	Catalog   *types.Catalog
	Ledger    Ledger
	Referrals Referrals
	Resumer   Resumer
	Notifier  Notifier
	Events    events.Publisher
	Now       func() time.Time
	Log       logrus.FieldLogger
}

func NewQueue(d Deps) *Queue {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	return &Queue{
		payments:  d.Payments,
		catalog:   d.Catalog,
		ledger:    d.Ledger,
		referrals: d.Referrals,
		resumer:   d.Resumer,
		notifier:  d.Notifier,
		events:    d.Events,
		locks:     keylock.New(),
		validate:  validator.New(),
		now:       d.Now,
		log:       d.Log,
	}
}

// SetResumer wires the provisioning resumer after construction; the onboarding
// service and the queue depend on each other.
func (q *Queue) SetResumer(r Resumer) {
	q.resumer = r
}

func (q *Queue) Submit(ctx context.Context, req SubmitRequest) (*types.Payment, error) {
	if err := q.validate.Struct(req); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			return nil, &types.ValidationError{Field: verrs[0].Field(), Reason: verrs[0].Tag()}
		}
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, &types.ValidationError{Field: "Amount", Reason: "gt"}
	}

	p := &types.Payment{
		UserID:      req.UserID,
		ShopID:      req.ShopID,
		Plan:        req.Plan,
		Amount:      req.Amount,
		PaymentType: req.Type,
		Status:      types.PaymentPending,
		ReceiptRef:  req.ReceiptRef,
	}
	if err := q.payments.CreatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	metrics.RecordPaymentSubmitted(string(req.Type))
	q.log.WithFields(logrus.Fields{
		"payment_id": p.ID,
		"user_id":    p.UserID,
		"plan":       p.Plan,
		"type":       p.PaymentType,
	}).Info("payment submitted")
	return p, nil
}

// Decide resolves a pending payment. A payment that is no longer pending yields an
// *types.AlreadyDecidedError and nothing else happens, except for a confirmation whose
// effects were not all applied: confirming it again finishes the settlement.
func (q *Queue) Decide(ctx context.Context, paymentID string, decision types.Decision, adminID int64) (*Outcome, error) {
	status := types.PaymentRejected
	switch decision {
	case types.DecisionConfirm:
		status = types.PaymentConfirmed
	case types.DecisionReject:
	default:
		return nil, &types.ValidationError{Field: "decision", Reason: string(decision)}
	}

	unlock, err := q.locks.Lock(ctx, "payment:"+paymentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, err := q.payments.DecidePayment(ctx, paymentID, status, adminID, q.now().UTC())
	resettle := false
	if err != nil {
		if p, resettle = q.unsettled(ctx, paymentID, decision, err); !resettle {
			return nil, err
		}
	}
	log := q.log.WithFields(logrus.Fields{
		"payment_id": p.ID,
		"user_id":    p.UserID,
		"admin_id":   adminID,
		"decision":   decision,
	})
	if resettle {
		log.Warn("settling a confirmed payment again")
	} else {
		metrics.RecordPaymentDecided(string(decision))
		log.Info("payment decided")
	}

	out := &Outcome{Payment: p}
	if status == types.PaymentConfirmed {
		if err := q.settle(ctx, p, out); err != nil {
			log.WithError(err).Error("confirmation side effects failed")
			return out, err
		}
	}

	subject := events.PaymentRejected
	if status == types.PaymentConfirmed {
		subject = events.PaymentConfirmed
	}
	if err := q.events.Publish(ctx, subject, paymentEvent(p)); err != nil {
		log.WithError(err).Warn("publish payment event")
	}
	if q.notifier != nil {
		if err := q.notifier.PaymentDecided(ctx, p); err != nil {
			log.WithError(err).Warn("notify payer")
		}
	}

	if status == types.PaymentConfirmed && p.PaymentType == types.PaymentSubscription && p.ShopID == "" && q.resumer != nil {
		if err := q.resumer.ResumeProvisioning(ctx, p.UserID, p.Plan, p.ID); err != nil {
			log.WithError(err).Error("resume provisioning")
			return out, fmt.Errorf("resume provisioning: %w", err)
		}
		out.Resumed = true
	}
	return out, nil
}

// unsettled reports whether decideErr is a confirm decision hitting a payment that was
// confirmed earlier but never settled, returning that payment.
func (q *Queue) unsettled(ctx context.Context, paymentID string, decision types.Decision, decideErr error) (*types.Payment, bool) {
	var already *types.AlreadyDecidedError
	if decision != types.DecisionConfirm || !errors.As(decideErr, &already) || already.Status != types.PaymentConfirmed {
		return nil, false
	}
	p, err := q.payments.GetPayment(ctx, paymentID)
	if err != nil || p.SettledAt != nil {
		return nil, false
	}
	return p, true
}

// settle applies the plan and the referral credits of a confirmed payment, then marks
// it settled. Both steps are idempotent, so a failed settlement can be repeated.
func (q *Queue) settle(ctx context.Context, p *types.Payment, out *Outcome) error {
	plan, ok := q.catalog.Plan(p.Plan)
	if !ok {
		return types.NotFound("plan", p.Plan)
	}

	var err error
	out.Subscription, _, err = q.ledger.ApplyPayment(ctx, p, plan.DurationDays)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}

	out.Credits, err = q.referrals.CreditIfEligible(ctx, p.UserID, p.Amount)
	if err != nil {
		return fmt.Errorf("referral credit: %w", err)
	}
	for _, c := range out.Credits {
		metrics.RecordReferralCredit(strconv.Itoa(c.Level))
	}

	settledAt := q.now().UTC()
	if err := q.payments.SettlePayment(ctx, p.ID, settledAt); err != nil {
		return fmt.Errorf("settle payment: %w", err)
	}
	p.SettledAt = &settledAt
	return nil
}

func (q *Queue) Get(ctx context.Context, paymentID string) (*types.Payment, error) {
	return q.payments.GetPayment(ctx, paymentID)
}

func (q *Queue) Pending(ctx context.Context, limit int) ([]types.Payment, error) {
	return q.payments.ListPendingPayments(ctx, limit)
}

func paymentEvent(p *types.Payment) map[string]any {
	return map[string]any{
		"payment_id":   p.ID,
		"user_id":      p.UserID,
		"shop_id":      p.ShopID,
		"plan":         p.Plan,
		"amount":       p.Amount.String(),
		"payment_type": p.PaymentType,
		"status":       p.Status,
		"verified_by":  p.VerifiedBy,
	}
}

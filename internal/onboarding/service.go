// Package onboarding runs workflow transitions against the stores: one event at a time
// per actor, commands executed in order, the session persisted only after they succeed.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BatmanBruc/mother-bot/internal/broadcast"
	"github.com/BatmanBruc/mother-bot/internal/events"
	"github.com/BatmanBruc/mother-bot/internal/keylock"
	"github.com/BatmanBruc/mother-bot/internal/metrics"
	"github.com/BatmanBruc/mother-bot/internal/payments"
	"github.com/BatmanBruc/mother-bot/internal/workflow"
	"github.com/BatmanBruc/mother-bot/types"
)

// Presenter delivers rendered prompts to a chat.
type Presenter interface {
	Present(ctx context.Context, chatID, userID int64, prompts []workflow.Prompt) error
}

// ReceiptForwarder shows a freshly submitted receipt to the administrators.
type ReceiptForwarder interface {
	ForwardReceipt(ctx context.Context, p *types.Payment) error
}

type BroadcastReporter interface {
	BroadcastDone(ctx context.Context, chatID int64, report broadcast.Report) error
}

type Submitter interface {
	Submit(ctx context.Context, req payments.SubmitRequest) (*types.Payment, error)
}

type Ledger interface {
	ActivatePlan(ctx context.Context, userID int64, plan string, durationDays int) (*types.Subscription, error)
}

type Broadcaster interface {
	Broadcast(ctx context.Context, text string, recipients []int64) (broadcast.Report, error)
}

type Referrals interface {
	Enroll(ctx context.Context, referred *types.User) (int, error)
}

type Deps struct {
	Sessions    types.SessionStore
	Users       types.UserStore
	Shops       types.ShopStore
	Payments    types.PaymentStore
	Engine      *workflow.Engine
	Queue       Submitter
	Ledger      Ledger
	Referrals   Referrals
	Broadcaster Broadcaster
	Presenter   Presenter
	Receipts    ReceiptForwarder
	Reports     BroadcastReporter
	Events      events.Publisher
	Timeout     time.Duration
	Now         func() time.Time
	Log         logrus.FieldLogger
}

type Service struct {
	sessions    types.SessionStore
	users       types.UserStore
	shops       types.ShopStore
	payments    types.PaymentStore
	engine      *workflow.Engine
	queue       Submitter
	ledger      Ledger
	referrals   Referrals
	broadcaster Broadcaster
	presenter   Presenter
	receipts    ReceiptForwarder
	reports     BroadcastReporter
	events      events.Publisher
	timeout     time.Duration
	now         func() time.Time
	log         logrus.FieldLogger

	locks *keylock.Locker
	bg    sync.WaitGroup
}

func NewService(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	return &Service{
		sessions:    d.Sessions,
		users:       d.Users,
		shops:       d.Shops,
		payments:    d.Payments,
		engine:      d.Engine,
		queue:       d.Queue,
		ledger:      d.Ledger,
		referrals:   d.Referrals,
		broadcaster: d.Broadcaster,
		presenter:   d.Presenter,
		receipts:    d.Receipts,
		reports:     d.Reports,
		events:      d.Events,
		timeout:     d.Timeout,
		now:         d.Now,
		log:         d.Log,
		locks:       keylock.New(),
	}
}

// HandleEvent processes one inbound event for key. Events of the same actor never
// interleave. A returned error means the event was dropped and the stored session is
// unchanged.
func (s *Service) HandleEvent(ctx context.Context, key types.SessionKey, chatID int64, ev workflow.Event) (workflow.Result, error) {
	started := time.Now()
	res, err := s.handle(ctx, key, chatID, ev)

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case res.Err != nil:
		outcome = "rejected"
	}
	metrics.RecordEvent(workflow.Kind(ev), outcome, time.Since(started))
	return res, err
}

func (s *Service) handle(ctx context.Context, key types.SessionKey, chatID int64, ev workflow.Event) (workflow.Result, error) {
	unlock, err := s.locks.Lock(ctx, key.String())
	if err != nil {
		return workflow.Result{}, err
	}
	defer unlock()

	log := s.log.WithFields(logrus.Fields{"user_id": key.UserID, "role": key.Role, "event": workflow.Kind(ev)})

	session, err := s.loadSession(ctx, key)
	if err != nil {
		return workflow.Result{}, err
	}
	facts, err := s.resolveFacts(ctx, key, session, ev)
	if err != nil {
		return workflow.Result{}, fmt.Errorf("resolve facts: %w", err)
	}

	res := s.engine.Transition(workflow.Input{
		Key:     key,
		ChatID:  chatID,
		Session: session,
		Event:   ev,
		Facts:   facts,
		Now:     s.now().UTC(),
	})

	res, err = s.execute(ctx, session, res)
	if err != nil {
		log.WithError(err).Error("execute commands")
		return res, err
	}
	if err := s.persist(ctx, key, session, res); err != nil {
		log.WithError(err).Error("persist session")
		return res, err
	}
	log.WithField("state", res.State).Debug("transition")

	s.present(ctx, chatID, key.UserID, res.Prompts)
	return res, nil
}

func (s *Service) loadSession(ctx context.Context, key types.SessionKey) (*types.Session, error) {
	session, err := s.sessions.GetSession(ctx, key)
	if errors.Is(err, types.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return session, nil
}

func (s *Service) resolveFacts(ctx context.Context, key types.SessionKey, session *types.Session, ev workflow.Event) (workflow.Facts, error) {
	var facts workflow.Facts
	need := workflow.Needs(session, ev)

	if need.Has(workflow.NeedHasShop) {
		_, err := s.shops.GetOwnerShop(ctx, key.UserID)
		switch {
		case err == nil:
			facts.HasShop = true
		case !errors.Is(err, types.ErrNotFound):
			return facts, err
		}
	}
	if need.Has(workflow.NeedUnprovisioned) && !facts.HasShop {
		p, err := s.payments.UnprovisionedPayment(ctx, key.UserID)
		switch {
		case err == nil:
			facts.Unprovisioned = p
		case !errors.Is(err, types.ErrNotFound):
			return facts, err
		}
	}
	if need.Has(workflow.NeedTokenInUse) {
		if text, ok := ev.(workflow.EvText); ok {
			token, err := workflow.ValidateBotToken(text.Text)
			if err == nil {
				facts.TokenInUse, err = s.shops.BotTokenInUse(ctx, token)
				if err != nil {
					return facts, err
				}
			}
		}
	}
	return facts, nil
}

func (s *Service) persist(ctx context.Context, key types.SessionKey, prev *types.Session, res workflow.Result) error {
	if res.Next != nil {
		return s.sessions.SaveSession(ctx, res.Next)
	}
	if prev != nil {
		return s.sessions.DeleteSession(ctx, key)
	}
	return nil
}

func (s *Service) present(ctx context.Context, chatID, userID int64, prompts []workflow.Prompt) {
	if len(prompts) == 0 || s.presenter == nil {
		return
	}
	if err := s.presenter.Present(ctx, chatID, userID, prompts); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("present prompts")
	}
}

// ResumeProvisioning puts the payer back into shop setup after their payment was
// confirmed, replacing whatever conversation they had open.
func (s *Service) ResumeProvisioning(ctx context.Context, userID int64, plan, paymentID string) error {
	key := types.SessionKey{UserID: userID, Role: types.RoleUser}
	unlock, err := s.locks.Lock(ctx, key.String())
	if err != nil {
		return err
	}
	defer unlock()

	res := s.engine.Resume(key, userID, plan, paymentID, s.now().UTC())
	if err := s.sessions.SaveSession(ctx, res.Next); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "payment_id": paymentID}).Info("provisioning resumed")
	s.present(ctx, userID, userID, res.Prompts)
	return nil
}

// Wait blocks until background broadcasts started by this service finish.
func (s *Service) Wait() {
	s.bg.Wait()
}

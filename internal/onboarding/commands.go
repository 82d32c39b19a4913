package onboarding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BatmanBruc/mother-bot/internal/events"
	"github.com/BatmanBruc/mother-bot/internal/payments"
	"github.com/BatmanBruc/mother-bot/internal/workflow"
	"github.com/BatmanBruc/mother-bot/types"
)

const shopCurrency = "UZS"

// execute runs res.Commands in order. A uniqueness conflict while creating the shop
// rewrites the result instead of failing the event.
func (s *Service) execute(ctx context.Context, prev *types.Session, res workflow.Result) (workflow.Result, error) {
	var payment *types.Payment

	for _, cmd := range res.Commands {
		switch c := cmd.(type) {
		case workflow.CmdCreatePayment:
			p, err := s.createPayment(ctx, c)
			if err != nil {
				return res, err
			}
			payment = p

		case workflow.CmdNotifyAdmin:
			if payment == nil || s.receipts == nil {
				continue
			}
			if err := s.receipts.ForwardReceipt(ctx, payment); err != nil {
				s.log.WithError(err).WithField("payment_id", payment.ID).Warn("forward receipt to admins")
			}

		case workflow.CmdCreateShop:
			shop, err := s.createShop(ctx, c)
			switch {
			case types.IsConflict(err, types.ConflictBotToken):
				return tokenTaken(prev, err, s.now().UTC()), nil
			case types.IsConflict(err, types.ConflictHasShop):
				return workflow.Result{
					State:   types.StateCancelled,
					Prompts: []workflow.Prompt{{Key: workflow.PromptAlreadyHasShop}},
					Err:     err,
				}, nil
			case err != nil:
				return res, err
			}
			s.log.WithFields(logrus.Fields{"user_id": c.OwnerID, "shop_id": shop.ID, "status": shop.Status}).Info("shop created")

		case workflow.CmdUpdatePhone:
			if err := s.users.UpdatePhone(ctx, c.UserID, c.Phone); err != nil {
				return res, fmt.Errorf("update phone: %w", err)
			}

		case workflow.CmdActivatePlan:
			if _, err := s.ledger.ActivatePlan(ctx, c.UserID, c.Plan, c.DurationDays); err != nil {
				return res, fmt.Errorf("activate plan: %w", err)
			}

		case workflow.CmdBroadcast:
			chatID := c.AdminID
			if prev != nil {
				chatID = prev.ChatID
			}
			if err := s.startBroadcast(ctx, c, chatID); err != nil {
				return res, err
			}

		default:
			return res, fmt.Errorf("unknown command %T", cmd)
		}
	}
	return res, nil
}

func (s *Service) createPayment(ctx context.Context, c workflow.CmdCreatePayment) (*types.Payment, error) {
	req := payments.SubmitRequest{
		UserID:     c.UserID,
		Plan:       c.Plan,
		Amount:     c.Amount,
		Type:       c.Purpose,
		ReceiptRef: c.ReceiptRef,
	}
	if c.Purpose == types.PaymentRenewal {
		shop, err := s.shops.GetOwnerShop(ctx, c.UserID)
		switch {
		case err == nil:
			req.ShopID = shop.ID
		case !errors.Is(err, types.ErrNotFound):
			return nil, fmt.Errorf("owner shop: %w", err)
		}
	}
	p, err := s.queue.Submit(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("submit payment: %w", err)
	}
	return p, nil
}

func (s *Service) createShop(ctx context.Context, c workflow.CmdCreateShop) (*types.Shop, error) {
	shop := &types.Shop{
		OwnerID:  c.OwnerID,
		Name:     c.Name,
		BotToken: c.BotToken,
		Plan:     c.Plan,
		Status:   c.Status,
		Settings: types.ShopSettings{
			Currency:    shopCurrency,
			MaxProducts: c.MaxProducts,
		},
	}
	if u, err := s.users.GetUser(ctx, c.OwnerID); err == nil {
		shop.Settings.Language = u.LanguageCode
	}
	if err := s.shops.CreateShop(ctx, shop); err != nil {
		return nil, err
	}

	if c.PaymentID != "" {
		if err := s.payments.AttachShop(ctx, c.PaymentID, shop.ID); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{"payment_id": c.PaymentID, "shop_id": shop.ID}).Warn("attach shop to payment")
		}
	}
	if err := s.events.Publish(ctx, events.ShopCreated, shopEvent(shop, c.PaymentID)); err != nil {
		s.log.WithError(err).Warn("publish shop event")
	}
	return shop, nil
}

// tokenTaken sends the actor back to the token step after losing a race for the token.
func tokenTaken(prev *types.Session, err error, now time.Time) workflow.Result {
	if prev == nil {
		return workflow.Result{
			State:   types.StateCancelled,
			Prompts: []workflow.Prompt{{Key: workflow.PromptBotTokenInUse}},
			Err:     err,
		}
	}
	next := *prev
	next.State = types.StateAwaitingBotToken
	next.Collected.BotToken = ""
	next.LastActivityAt = now
	return workflow.Result{
		Next:    &next,
		State:   next.State,
		Prompts: []workflow.Prompt{{Key: workflow.PromptBotTokenInUse}},
		Err:     err,
	}
}

func (s *Service) startBroadcast(ctx context.Context, c workflow.CmdBroadcast, chatID int64) error {
	recipients, err := s.users.ListActiveUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list recipients: %w", err)
	}
	log := s.log.WithFields(logrus.Fields{"admin_id": c.AdminID, "recipients": len(recipients)})
	log.Info("broadcast started")

	bctx := context.WithoutCancel(ctx)
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		report, err := s.broadcaster.Broadcast(bctx, c.Text, recipients)
		if err != nil {
			log.WithError(err).Error("broadcast")
		}
		log.WithFields(logrus.Fields{"sent": report.Sent, "failed": report.Failed, "deferred": report.Deferred}).Info("broadcast finished")
		if s.reports != nil {
			if err := s.reports.BroadcastDone(bctx, chatID, report); err != nil {
				log.WithError(err).Warn("report broadcast")
			}
		}
	}()
	return nil
}

func shopEvent(shop *types.Shop, paymentID string) map[string]any {
	return map[string]any{
		"shop_id":    shop.ID,
		"owner_id":   shop.OwnerID,
		"name":       shop.Name,
		"plan":       shop.Plan,
		"status":     shop.Status,
		"payment_id": paymentID,
	}
}

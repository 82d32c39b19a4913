package handlers

import (
	"context"
	"errors"

	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"github.com/BatmanBruc/mother-bot/internal/contextkeys"
	"github.com/BatmanBruc/mother-bot/internal/messages"
	"github.com/BatmanBruc/mother-bot/internal/utils"
	"github.com/BatmanBruc/mother-bot/internal/workflow"
	"github.com/BatmanBruc/mother-bot/types"
)

// HandleClickButton acts on a callback already parsed by the middleware. The query is
// always answered so the client stops its spinner.
func (bh *Handlers) HandleClickButton(ctx context.Context, cq *models.CallbackQuery, u *types.User, chatID int64) {
	if cq == nil {
		return
	}
	defer bh.out.AnswerCallback(ctx, cq.ID, "")

	cb, ok := contextkeys.GetCallback(ctx)
	if !ok {
		return
	}

	switch cb.Action {
	case utils.CbPlan:
		bh.dispatch(ctx, userKey(u.UserID), chatID, workflow.EvSelectPlan{Plan: cb.Arg})
	case utils.CbPaid:
		bh.dispatch(ctx, userKey(u.UserID), chatID, workflow.EvPaymentDone{})
	case utils.CbCancel:
		bh.dispatch(ctx, bh.keyFor(ctx, u.UserID), chatID, workflow.EvCancel{})
	case utils.CbBroadcastConfirm:
		if !bh.admin.IsAdmin(u.UserID) {
			bh.reply(ctx, chatID, messages.NotAdmin(contextkeys.GetLang(ctx)))
			return
		}
		bh.dispatch(ctx, adminKey(u.UserID), chatID, workflow.EvBroadcastConfirm{})
	case utils.CbPayConfirm:
		bh.decide(ctx, u.UserID, chatID, cb.Arg, types.DecisionConfirm)
	case utils.CbPayReject:
		bh.decide(ctx, u.UserID, chatID, cb.Arg, types.DecisionReject)
	case utils.CbMenuCreate:
		bh.dispatch(ctx, userKey(u.UserID), chatID, workflow.EvStart{})
	case utils.CbMenuStatus:
		bh.status(ctx, u, chatID)
	case utils.CbMenuReferral:
		bh.referral(ctx, u, chatID)
	case utils.CbMenuRenew:
		bh.renew(ctx, u, chatID, "")
	}
}

// decide applies an administrator's verdict on a receipt. Referrers credited by a
// confirmation are told about their bonus.
func (bh *Handlers) decide(ctx context.Context, adminID, chatID int64, paymentID string, decision types.Decision) {
	log := bh.log.WithFields(logrus.Fields{"admin_id": adminID, "payment_id": paymentID, "decision": decision})

	out, err := bh.admin.DecidePayment(ctx, adminID, paymentID, decision)
	var already *types.AlreadyDecidedError
	switch {
	case errors.As(err, &already):
		bh.reply(ctx, chatID, messages.AlreadyDecided(already))
		return
	case err != nil:
		bh.adminFailed(ctx, adminID, chatID, "decide", err)
		return
	}
	for _, c := range out.Credits {
		if err := bh.presenter.ReferralCredited(ctx, c); err != nil {
			log.WithError(err).WithField("referrer_id", c.ReferrerID).Warn("notify referrer")
		}
	}
	bh.reply(ctx, chatID, messages.PaymentDecidedAdmin(out.Payment))
}

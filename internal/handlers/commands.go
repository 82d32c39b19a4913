package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/BatmanBruc/mother-bot/internal/admin"
	"github.com/BatmanBruc/mother-bot/internal/contextkeys"
	"github.com/BatmanBruc/mother-bot/internal/ledger"
	"github.com/BatmanBruc/mother-bot/internal/messages"
	"github.com/BatmanBruc/mother-bot/internal/utils"
	"github.com/BatmanBruc/mother-bot/internal/workflow"
	"github.com/BatmanBruc/mother-bot/types"
)

func (bh *Handlers) HandleCommand(ctx context.Context, u *types.User, chatID int64, cmd contextkeys.Command) {
	lang := contextkeys.GetLang(ctx)

	switch cmd.Name {
	case "start":
		bh.replyWithMarkup(ctx, chatID, messages.StartWelcome(lang, u.FirstName), utils.MainMenuKeyboard(lang))
		bh.dispatch(ctx, userKey(u.UserID), chatID, workflow.EvStart{})
	case "menu", "help":
		bh.replyWithMarkup(ctx, chatID, messages.MainMenuText(lang), utils.MainMenuKeyboard(lang))
	case "cancel":
		bh.dispatch(ctx, bh.keyFor(ctx, u.UserID), chatID, workflow.EvCancel{})
	case "renew":
		bh.renew(ctx, u, chatID, cmd.Args)
	case "status":
		bh.status(ctx, u, chatID)
	case "referral":
		bh.referral(ctx, u, chatID)

	case "broadcast", "users", "shops", "pending", "approve", "suspend":
		if !bh.admin.IsAdmin(u.UserID) {
			bh.reply(ctx, chatID, messages.NotAdmin(lang))
			return
		}
		bh.adminCommand(ctx, u.UserID, chatID, cmd)

	default:
		bh.reply(ctx, chatID, messages.ErrorUnknownCommand(lang))
	}
}

// renew starts a renewal payment. Without an explicit plan the current one is extended.
func (bh *Handlers) renew(ctx context.Context, u *types.User, chatID int64, plan string) {
	plan = strings.TrimSpace(plan)
	if plan == "" {
		plan = u.Subscription.Plan
	}
	bh.dispatch(ctx, userKey(u.UserID), chatID, workflow.EvRenew{Plan: plan})
}

func (bh *Handlers) status(ctx context.Context, u *types.User, chatID int64) {
	shop, err := bh.shops.GetOwnerShop(ctx, u.UserID)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		bh.log.WithError(err).WithField("user_id", u.UserID).Error("load owner shop")
		bh.reply(ctx, chatID, messages.ErrorDefault(langOf(u)))
		return
	}
	now := bh.now()
	sub := u.Subscription
	bh.replyWithMarkup(ctx, chatID,
		messages.Status(contextkeys.GetLang(ctx), sub, shop, ledger.DaysRemaining(sub, now), now),
		utils.MainMenuKeyboard(contextkeys.GetLang(ctx)))
}

func (bh *Handlers) referral(ctx context.Context, u *types.User, chatID int64) {
	link := fmt.Sprintf("https://t.me/%s?start=%s", bh.botUsername, u.ReferralCode)
	bh.reply(ctx, chatID, messages.ReferralInfo(contextkeys.GetLang(ctx), u.ReferralCode, link, u.Statistics.ReferralEarnings))
}

func (bh *Handlers) adminCommand(ctx context.Context, adminID, chatID int64, cmd contextkeys.Command) {
	var (
		text string
		err  error
	)
	switch cmd.Name {
	case "broadcast":
		bh.dispatch(ctx, adminKey(adminID), chatID, workflow.EvBroadcastStart{})
		return
	case "users":
		page, ok := parsePage(cmd.Args)
		if !ok {
			bh.reply(ctx, chatID, messages.Usage("users", "[page]"))
			return
		}
		var res admin.Page[types.User]
		if res, err = bh.admin.ListUsers(ctx, adminID, page); err == nil {
			text = messages.UsersPage(res.Items, res.Page, res.Pages, res.Total, bh.now())
		}
	case "shops":
		page, ok := parsePage(cmd.Args)
		if !ok {
			bh.reply(ctx, chatID, messages.Usage("shops", "[page]"))
			return
		}
		var res admin.Page[types.Shop]
		if res, err = bh.admin.ListShops(ctx, adminID, page); err == nil {
			text = messages.ShopsPage(res.Items, res.Page, res.Pages, res.Total)
		}
	case "pending":
		bh.pending(ctx, adminID, chatID)
		return
	case "approve", "suspend":
		if cmd.Args == "" {
			bh.reply(ctx, chatID, messages.Usage(cmd.Name, "<shop_id>"))
			return
		}
		var shop *types.Shop
		if cmd.Name == "approve" {
			shop, err = bh.admin.ApproveShop(ctx, adminID, cmd.Args)
		} else {
			shop, err = bh.admin.SuspendShop(ctx, adminID, cmd.Args)
		}
		if err == nil {
			text = messages.ShopStatusAdmin(shop)
		}
	}

	if err != nil {
		bh.adminFailed(ctx, adminID, chatID, cmd.Name, err)
		return
	}
	bh.reply(ctx, chatID, text)
}

// pending lists receipts awaiting review, each with its decision buttons.
func (bh *Handlers) pending(ctx context.Context, adminID, chatID int64) {
	list, err := bh.admin.PendingPayments(ctx, adminID)
	if err != nil {
		bh.adminFailed(ctx, adminID, chatID, "pending", err)
		return
	}
	bh.reply(ctx, chatID, messages.PendingPayments(list))
	for i := range list {
		if err := bh.presenter.ForwardReceiptTo(ctx, chatID, &list[i]); err != nil {
			bh.log.WithError(err).WithField("payment_id", list[i].ID).Warn("show pending receipt")
		}
	}
}

func (bh *Handlers) adminFailed(ctx context.Context, adminID, chatID int64, command string, err error) {
	lang := contextkeys.GetLang(ctx)
	switch {
	case errors.Is(err, admin.ErrForbidden):
		bh.reply(ctx, chatID, messages.NotAdmin(lang))
	case errors.Is(err, types.ErrNotFound):
		bh.reply(ctx, chatID, messages.NotFound(err.Error()))
	default:
		bh.log.WithError(err).WithFields(logrus.Fields{"admin_id": adminID, "command": command}).Error("admin command failed")
		bh.reply(ctx, chatID, messages.ErrorDefault(lang))
	}
}

func parsePage(arg string) (int, bool) {
	if arg == "" {
		return 1, true
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

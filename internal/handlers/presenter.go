package handlers

import (
	"context"
	"errors"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"github.com/BatmanBruc/mother-bot/internal/broadcast"
	"github.com/BatmanBruc/mother-bot/internal/i18n"
	"github.com/BatmanBruc/mother-bot/internal/messages"
	"github.com/BatmanBruc/mother-bot/internal/referral"
	"github.com/BatmanBruc/mother-bot/internal/transport"
	"github.com/BatmanBruc/mother-bot/internal/utils"
	"github.com/BatmanBruc/mother-bot/internal/workflow"
	"github.com/BatmanBruc/mother-bot/types"
)

type Messenger interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) error
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) error
	SendDocument(ctx context.Context, params *bot.SendDocumentParams) error
	AnswerCallback(ctx context.Context, callbackID, text string)
}

// Presenter renders outbound notifications into Telegram messages.
type Presenter struct {
	out     Messenger
	users   types.UserStore
	render  *messages.Renderer
	catalog *types.Catalog
	admins  []int64
	log     logrus.FieldLogger
}

func NewPresenter(out Messenger, users types.UserStore, render *messages.Renderer, catalog *types.Catalog, admins []int64, log logrus.FieldLogger) *Presenter {
	return &Presenter{out: out, users: users, render: render, catalog: catalog, admins: admins, log: log}
}

func (p *Presenter) lang(ctx context.Context, userID int64) i18n.Lang {
	u, err := p.users.GetUser(ctx, userID)
	if err != nil {
		return i18n.RU
	}
	return i18n.FromLanguageCode(u.LanguageCode)
}

// send delivers one message. A recipient that blocked the bot is marked and the error
// swallowed; nothing more can be done for them.
func (p *Presenter) send(ctx context.Context, userID int64, params *bot.SendMessageParams) error {
	err := p.out.SendMessage(ctx, params)
	if transport.IsPermanent(err) {
		p.log.WithField("user_id", userID).Info("recipient unreachable, marking blocked")
		if serr := p.users.SetUserStatus(ctx, userID, types.UserBlocked); serr != nil && !errors.Is(serr, types.ErrNotFound) {
			p.log.WithError(serr).Warn("mark user blocked")
		}
		return nil
	}
	return err
}

func (p *Presenter) Present(ctx context.Context, chatID, userID int64, prompts []workflow.Prompt) error {
	lang := p.lang(ctx, userID)
	for _, pr := range prompts {
		params := &bot.SendMessageParams{
			ChatID:      chatID,
			Text:        p.render.Prompt(lang, pr),
			ParseMode:   messages.ParseModeHTML,
			ReplyMarkup: keyboardFor(lang, pr.Key, p.catalog),
		}
		if err := p.send(ctx, userID, params); err != nil {
			return err
		}
	}
	return nil
}

// keyboardFor picks the markup shown under a prompt. Nil means no markup.
func keyboardFor(lang i18n.Lang, key workflow.PromptKey, catalog *types.Catalog) models.ReplyMarkup {
	switch key {
	case workflow.PromptChoosePlan:
		return utils.PlanKeyboard(lang, catalog.Plans)
	case workflow.PromptPaymentDetails:
		return utils.PaidKeyboard(lang)
	case workflow.PromptSendReceipt, workflow.PromptAskShopName, workflow.PromptInvalidShopName,
		workflow.PromptAskBotToken, workflow.PromptInvalidBotToken, workflow.PromptBotTokenInUse,
		workflow.PromptAskBroadcastText, workflow.PromptInvalidBroadcast:
		return utils.CancelKeyboard(lang)
	case workflow.PromptAskPhone, workflow.PromptInvalidPhone:
		return utils.PhoneKeyboard(lang)
	case workflow.PromptConfirmBroadcast:
		return utils.BroadcastConfirmKeyboard(lang)
	case workflow.PromptShopCreatedActive, workflow.PromptShopCreatedPending,
		workflow.PromptCancelled, workflow.PromptTimedOut, workflow.PromptPlanUnavailable:
		return &models.ReplyKeyboardRemove{RemoveKeyboard: true}
	case workflow.PromptIdleHint, workflow.PromptNothingToCancel, workflow.PromptAlreadyHasShop, workflow.PromptNoShopToRenew:
		return utils.MainMenuKeyboard(lang)
	}
	return nil
}

// ForwardReceipt sends the receipt with decision buttons to every administrator.
func (p *Presenter) ForwardReceipt(ctx context.Context, payment *types.Payment) error {
	var errs []error
	for _, adminID := range p.admins {
		if err := p.ForwardReceiptTo(ctx, adminID, payment); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Presenter) ForwardReceiptTo(ctx context.Context, chatID int64, payment *types.Payment) error {
	var u *types.User
	if found, err := p.users.GetUser(ctx, payment.UserID); err == nil {
		u = found
	}
	fileID, document := types.ParseReceipt(payment.ReceiptRef)
	if document {
		return p.out.SendDocument(ctx, &bot.SendDocumentParams{
			ChatID:      chatID,
			Document:    &models.InputFileString{Data: fileID},
			Caption:     messages.ReceiptCaption(payment, u),
			ParseMode:   messages.ParseModeHTML,
			ReplyMarkup: utils.ReviewKeyboard(payment.ID),
		})
	}
	return p.out.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID:      chatID,
		Photo:       &models.InputFileString{Data: fileID},
		Caption:     messages.ReceiptCaption(payment, u),
		ParseMode:   messages.ParseModeHTML,
		ReplyMarkup: utils.ReviewKeyboard(payment.ID),
	})
}

func (p *Presenter) BroadcastDone(ctx context.Context, chatID int64, report broadcast.Report) error {
	return p.out.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      messages.BroadcastReport(report.Sent, report.Failed, report.Deferred),
		ParseMode: messages.ParseModeHTML,
	})
}

// PaymentDecided tells the payer about the administrator's decision.
func (p *Presenter) PaymentDecided(ctx context.Context, payment *types.Payment) error {
	lang := p.lang(ctx, payment.UserID)
	text := messages.PaymentRejected(lang)
	if payment.Status == types.PaymentConfirmed {
		name := payment.Plan
		if plan, ok := p.catalog.Plan(payment.Plan); ok {
			name = plan.Name
		}
		text = messages.PaymentConfirmed(lang, name)
	}
	return p.send(ctx, payment.UserID, &bot.SendMessageParams{
		ChatID:    payment.UserID,
		Text:      text,
		ParseMode: messages.ParseModeHTML,
	})
}

func (p *Presenter) ShopStatusChanged(ctx context.Context, shop *types.Shop) error {
	lang := p.lang(ctx, shop.OwnerID)
	var text string
	switch shop.Status {
	case types.ShopActive:
		text = messages.ShopApproved(lang, shop.Name)
	case types.ShopSuspended:
		text = messages.ShopSuspended(lang, shop.Name)
	default:
		return nil
	}
	return p.send(ctx, shop.OwnerID, &bot.SendMessageParams{
		ChatID:    shop.OwnerID,
		Text:      text,
		ParseMode: messages.ParseModeHTML,
	})
}

func (p *Presenter) ReferralCredited(ctx context.Context, c referral.Credit) error {
	return p.send(ctx, c.ReferrerID, &bot.SendMessageParams{
		ChatID:    c.ReferrerID,
		Text:      messages.ReferralBonus(p.lang(ctx, c.ReferrerID), c.Level, c.Bonus),
		ParseMode: messages.ParseModeHTML,
	})
}

package utils

import (
	"github.com/go-telegram/bot/models"

	"github.com/BatmanBruc/mother-bot/internal/i18n"
	"github.com/BatmanBruc/mother-bot/internal/messages"
	"github.com/BatmanBruc/mother-bot/types"
)

type Button struct {
	Text     string
	Callback Callback
}

func pad(s string) string { return " " + s + " " }

// BuildInlineKeyboard lays buttons out perRow to a row.
func BuildInlineKeyboard(buttons []Button, perRow int) *models.InlineKeyboardMarkup {
	if perRow <= 0 {
		perRow = 1
	}
	rows := make([][]models.InlineKeyboardButton, 0, (len(buttons)+perRow-1)/perRow)
	row := make([]models.InlineKeyboardButton, 0, perRow)
	for i, button := range buttons {
		if i > 0 && i%perRow == 0 {
			rows = append(rows, row)
			row = make([]models.InlineKeyboardButton, 0, perRow)
		}
		row = append(row, models.InlineKeyboardButton{
			Text:         pad(button.Text),
			CallbackData: button.Callback.Data(),
		})
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func cancelButton(lang i18n.Lang) Button {
	return Button{Text: messages.BtnCancel(lang), Callback: Callback{Action: CbCancel}}
}

func MainMenuKeyboard(lang i18n.Lang) *models.InlineKeyboardMarkup {
	return BuildInlineKeyboard([]Button{
		{Text: messages.MenuBtnCreateShop(lang), Callback: Callback{Action: CbMenuCreate}},
		{Text: messages.MenuBtnStatus(lang), Callback: Callback{Action: CbMenuStatus}},
		{Text: messages.MenuBtnReferral(lang), Callback: Callback{Action: CbMenuReferral}},
		{Text: messages.MenuBtnRenew(lang), Callback: Callback{Action: CbMenuRenew}},
	}, 1)
}

func PlanKeyboard(lang i18n.Lang, plans []types.Plan) *models.InlineKeyboardMarkup {
	buttons := make([]Button, 0, len(plans)+1)
	for _, p := range plans {
		buttons = append(buttons, Button{Text: messages.PlanButton(p), Callback: Callback{Action: CbPlan, Arg: p.ID}})
	}
	buttons = append(buttons, cancelButton(lang))
	return BuildInlineKeyboard(buttons, 1)
}

func PaidKeyboard(lang i18n.Lang) *models.InlineKeyboardMarkup {
	return BuildInlineKeyboard([]Button{
		{Text: messages.BtnPaid(lang), Callback: Callback{Action: CbPaid}},
		cancelButton(lang),
	}, 2)
}

func CancelKeyboard(lang i18n.Lang) *models.InlineKeyboardMarkup {
	return BuildInlineKeyboard([]Button{cancelButton(lang)}, 1)
}

func BroadcastConfirmKeyboard(lang i18n.Lang) *models.InlineKeyboardMarkup {
	return BuildInlineKeyboard([]Button{
		{Text: messages.BtnSendBroadcast(lang), Callback: Callback{Action: CbBroadcastConfirm}},
		cancelButton(lang),
	}, 2)
}

// ReviewKeyboard goes under a receipt forwarded to administrators.
func ReviewKeyboard(paymentID string) *models.InlineKeyboardMarkup {
	return BuildInlineKeyboard([]Button{
		{Text: messages.BtnConfirmPayment(), Callback: Callback{Action: CbPayConfirm, Arg: paymentID}},
		{Text: messages.BtnRejectPayment(), Callback: Callback{Action: CbPayReject, Arg: paymentID}},
	}, 2)
}

func PhoneKeyboard(lang i18n.Lang) *models.ReplyKeyboardMarkup {
	return &models.ReplyKeyboardMarkup{
		Keyboard: [][]models.KeyboardButton{
			{{Text: messages.BtnSharePhone(lang), RequestContact: true}},
		},
		ResizeKeyboard:  true,
		OneTimeKeyboard: true,
	}
}

package messages

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/BatmanBruc/mother-bot/internal/i18n"
	"github.com/BatmanBruc/mother-bot/types"
)

const ParseModeHTML = "HTML"

const dateLayout = "02.01.2006"

func Escape(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&#39;",
	)
	return replacer.Replace(strings.TrimSpace(s))
}

func Title(text string) string {
	return fmt.Sprintf("✨ <b>%s</b>", Escape(text))
}

func pick(lang i18n.Lang, ru, en string) string {
	if lang == i18n.RU {
		return ru
	}
	return en
}

// Amount formats money without trailing zeros for whole sums.
func Amount(d decimal.Decimal) string {
	if d.IsInteger() {
		return d.StringFixed(0) + " UZS"
	}
	return d.StringFixed(2) + " UZS"
}

func ErrorDefault(lang i18n.Lang) string {
	return pick(lang,
		"🚫 <b>Ошибка</b>\nПопробуйте ещё раз.",
		"🚫 <b>Something went wrong</b>\nPlease try again.")
}

func ErrorUnsupportedMessageType(lang i18n.Lang) string {
	return pick(lang,
		"🤖 <b>Я так не умею</b>\nОтправьте текст, фото или нажмите кнопку.",
		"🤖 <b>I can't handle that</b>\nSend text, a photo or press a button.")
}

func ForeignContact(lang i18n.Lang) string {
	return pick(lang,
		"📵 <b>Это чужой контакт</b>\nНажмите кнопку, чтобы отправить свой номер.",
		"📵 <b>That contact is not yours</b>\nPress the button to share your own number.")
}

func ErrorUnknownCommand(lang i18n.Lang) string {
	return pick(lang, "❓ <b>Команда не найдена</b>", "❓ <b>Unknown command</b>")
}

func NotAdmin(lang i18n.Lang) string {
	return pick(lang, "⛔️ Команда доступна только администраторам.", "⛔️ This command is for administrators only.")
}

func StartWelcome(lang i18n.Lang, firstName string) string {
	name := Escape(firstName)
	if name == "" {
		name = pick(lang, "друг", "there")
	}
	return pick(lang,
		fmt.Sprintf("👋 <b>Привет, %s!</b>\nЯ помогу запустить собственный магазин в Telegram.\n\n"+
			"🛍 Выберите тариф, придумайте название, подключите бота и начинайте продавать.", name),
		fmt.Sprintf("👋 <b>Hi, %s!</b>\nI'll help you launch your own Telegram shop.\n\n"+
			"🛍 Pick a plan, name your shop, connect a bot and start selling.", name))
}

func MainMenuText(lang i18n.Lang) string {
	return pick(lang, "📋 <b>Главное меню</b>", "📋 <b>Main menu</b>")
}

func MenuBtnCreateShop(lang i18n.Lang) string {
	return pick(lang, "🛍 Создать магазин", "🛍 Create shop")
}

func MenuBtnStatus(lang i18n.Lang) string {
	return pick(lang, "📊 Моя подписка", "📊 My subscription")
}

func MenuBtnReferral(lang i18n.Lang) string {
	return pick(lang, "🤝 Партнёрская программа", "🤝 Referral program")
}

func MenuBtnRenew(lang i18n.Lang) string {
	return pick(lang, "🔄 Продлить", "🔄 Renew")
}

func BtnCancel(lang i18n.Lang) string {
	return pick(lang, "✖️ Отмена", "✖️ Cancel")
}

func BtnPaid(lang i18n.Lang) string {
	return pick(lang, "✅ Я оплатил", "✅ I've paid")
}

func BtnSendBroadcast(lang i18n.Lang) string {
	return pick(lang, "📣 Отправить", "📣 Send")
}

func BtnConfirmPayment() string {
	return "✅ Подтвердить"
}

func BtnRejectPayment() string {
	return "❌ Отклонить"
}

func BtnSharePhone(lang i18n.Lang) string {
	return pick(lang, "📱 Отправить номер", "📱 Share phone number")
}

func PlanButton(p types.Plan) string {
	if p.Free() {
		return "🎁 " + p.Name
	}
	return fmt.Sprintf("💎 %s · %s", p.Name, Amount(p.Price))
}

func JoinChannel(lang i18n.Lang, channel string) string {
	return pick(lang,
		fmt.Sprintf("📢 Чтобы продолжить, подпишитесь на канал %s и повторите /start.", Escape(channel)),
		fmt.Sprintf("📢 Join %s to continue, then send /start again.", Escape(channel)))
}

func Status(lang i18n.Lang, sub types.Subscription, shop *types.Shop, daysRemaining int, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(pick(lang, "📊 <b>Подписка</b>\n", "📊 <b>Subscription</b>\n"))
	if sub.Plan == "" {
		sb.WriteString(pick(lang, "Тариф не подключён.", "No plan yet."))
	} else {
		sb.WriteString(fmt.Sprintf(pick(lang, "Тариф: <b>%s</b>\n", "Plan: <b>%s</b>\n"), Escape(sub.Plan)))
		if sub.Active(now) {
			sb.WriteString(fmt.Sprintf(pick(lang, "Действует до %s (осталось дней: %d)", "Valid until %s (%d days left)"),
				sub.ExpiresAt.Format(dateLayout), daysRemaining))
		} else {
			sb.WriteString(pick(lang, "⌛️ Подписка истекла. Продлите её командой /renew.", "⌛️ Expired. Renew it with /renew."))
		}
	}
	if shop != nil {
		sb.WriteString(fmt.Sprintf(pick(lang, "\n\n🛍 Магазин: <b>%s</b> (%s)", "\n\n🛍 Shop: <b>%s</b> (%s)"),
			Escape(shop.Name), ShopStatus(lang, shop.Status)))
	}
	return sb.String()
}

func ShopStatus(lang i18n.Lang, s types.ShopStatus) string {
	switch s {
	case types.ShopActive:
		return pick(lang, "активен", "active")
	case types.ShopPending:
		return pick(lang, "на проверке", "under review")
	case types.ShopSuspended:
		return pick(lang, "приостановлен", "suspended")
	default:
		return string(s)
	}
}

func ReferralInfo(lang i18n.Lang, code, link string, earnings decimal.Decimal) string {
	return pick(lang,
		fmt.Sprintf("🤝 <b>Партнёрская программа</b>\nВаш код: <code>%s</code>\nСсылка: %s\n\nЗаработано: <b>%s</b>",
			Escape(code), Escape(link), Amount(earnings)),
		fmt.Sprintf("🤝 <b>Referral program</b>\nYour code: <code>%s</code>\nLink: %s\n\nEarned: <b>%s</b>",
			Escape(code), Escape(link), Amount(earnings)))
}

func PaymentConfirmed(lang i18n.Lang, plan string) string {
	return pick(lang,
		fmt.Sprintf("✅ <b>Оплата подтверждена</b>\nТариф <b>%s</b> активирован.", Escape(plan)),
		fmt.Sprintf("✅ <b>Payment confirmed</b>\nPlan <b>%s</b> is active.", Escape(plan)))
}

func PaymentRejected(lang i18n.Lang) string {
	return pick(lang,
		"❌ <b>Оплата отклонена</b>\nЕсли это ошибка, отправьте чек заново через /start.",
		"❌ <b>Payment rejected</b>\nIf this is a mistake, send the receipt again via /start.")
}

func ShopApproved(lang i18n.Lang, name string) string {
	return pick(lang,
		fmt.Sprintf("🎉 Магазин <b>%s</b> одобрен и запущен.", Escape(name)),
		fmt.Sprintf("🎉 Shop <b>%s</b> is approved and live.", Escape(name)))
}

func ShopSuspended(lang i18n.Lang, name string) string {
	return pick(lang,
		fmt.Sprintf("⏸ Магазин <b>%s</b> приостановлен администратором.", Escape(name)),
		fmt.Sprintf("⏸ Shop <b>%s</b> was suspended by an administrator.", Escape(name)))
}

func ReferralBonus(lang i18n.Lang, level int, bonus decimal.Decimal) string {
	return pick(lang,
		fmt.Sprintf("💰 Партнёрский бонус (уровень %d): <b>%s</b>", level, Amount(bonus)),
		fmt.Sprintf("💰 Referral bonus (level %d): <b>%s</b>", level, Amount(bonus)))
}

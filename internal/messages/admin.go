package messages

import (
	"fmt"
	"strings"
	"time"

	"github.com/BatmanBruc/mother-bot/internal/i18n"
	"github.com/BatmanBruc/mother-bot/types"
)

const timeLayout = "02.01.2006 15:04"

func ReceiptCaption(p *types.Payment, u *types.User) string {
	var sb strings.Builder
	sb.WriteString("🧾 <b>Новый чек</b>\n")
	if u != nil {
		name := Escape(u.FirstName)
		if u.Username != "" {
			name += " @" + Escape(u.Username)
		}
		sb.WriteString(fmt.Sprintf("Пользователь: %s (<code>%d</code>)\n", name, u.UserID))
		if u.Phone != "" {
			sb.WriteString("Телефон: " + Escape(u.Phone) + "\n")
		}
	} else {
		sb.WriteString(fmt.Sprintf("Пользователь: <code>%d</code>\n", p.UserID))
	}
	sb.WriteString(fmt.Sprintf("Тариф: <b>%s</b> (%s)\n", Escape(p.Plan), paymentType(p.PaymentType)))
	sb.WriteString(fmt.Sprintf("Сумма: <b>%s</b>\n", Amount(p.Amount)))
	sb.WriteString(fmt.Sprintf("ID: <code>%s</code>", p.ID))
	return sb.String()
}

func paymentType(t types.PaymentType) string {
	if t == types.PaymentRenewal {
		return "продление"
	}
	return "подписка"
}

func PaymentDecidedAdmin(p *types.Payment) string {
	icon, verb := "✅", "подтверждён"
	if p.Status == types.PaymentRejected {
		icon, verb = "❌", "отклонён"
	}
	return fmt.Sprintf("%s Платёж <code>%s</code> %s администратором <code>%d</code>.", icon, p.ID, verb, p.VerifiedBy)
}

func AlreadyDecided(e *types.AlreadyDecidedError) string {
	verb := "подтверждён"
	if e.Status == types.PaymentRejected {
		verb = "отклонён"
	}
	return fmt.Sprintf("ℹ️ Платёж уже %s администратором <code>%d</code> в %s.", verb, e.By, e.At.UTC().Format(timeLayout))
}

func PendingPayments(list []types.Payment) string {
	if len(list) == 0 {
		return "📭 Непроверенных платежей нет."
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("⏳ <b>Ожидают проверки: %d</b>\n", len(list)))
	for _, p := range list {
		sb.WriteString(fmt.Sprintf("\n• <code>%s</code> · %d · %s · %s", p.ID, p.UserID, Escape(p.Plan), Amount(p.Amount)))
	}
	return sb.String()
}

func UsersPage(users []types.User, page, pages, total int, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("👥 <b>Пользователи</b> (%d) · стр. %d/%d\n", total, page, pages))
	for _, u := range users {
		plan := "—"
		if u.Subscription.Active(now) {
			plan = Escape(u.Subscription.Plan)
		}
		line := fmt.Sprintf("\n• <code>%d</code> %s · %s", u.UserID, Escape(u.FirstName), plan)
		if u.Status == types.UserBlocked {
			line += " · 🚫"
		}
		sb.WriteString(line)
	}
	return sb.String()
}

func ShopsPage(shops []types.Shop, page, pages, total int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🛍 <b>Магазины</b> (%d) · стр. %d/%d\n", total, page, pages))
	for _, s := range shops {
		sb.WriteString(fmt.Sprintf("\n• <b>%s</b> · %s · владелец <code>%d</code>\n  <code>%s</code>",
			Escape(s.Name), ShopStatus(i18n.RU, s.Status), s.OwnerID, s.ID))
	}
	return sb.String()
}

func ShopStatusAdmin(shop *types.Shop) string {
	return fmt.Sprintf("🛍 <b>%s</b>: %s", Escape(shop.Name), ShopStatus(i18n.RU, shop.Status))
}

func BroadcastReport(sent, failed, deferred int) string {
	text := fmt.Sprintf("📣 <b>Рассылка завершена</b>\nДоставлено: %d\nНе доставлено: %d", sent, failed)
	if deferred > 0 {
		text += fmt.Sprintf("\nОтложено из-за лимита Telegram: %d", deferred)
	}
	return text
}

func Usage(command, args string) string {
	return fmt.Sprintf("ℹ️ Использование: <code>/%s %s</code>", command, Escape(args))
}

func NotFound(what string) string {
	return "🔍 Не найдено: " + Escape(what)
}

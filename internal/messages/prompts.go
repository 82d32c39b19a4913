package messages

import (
	"fmt"

	"github.com/BatmanBruc/mother-bot/internal/i18n"
	"github.com/BatmanBruc/mother-bot/internal/workflow"
	"github.com/BatmanBruc/mother-bot/types"
)

// Renderer turns workflow prompts into HTML texts.
type Renderer struct {
	catalog     *types.Catalog
	paymentCard string
}

func NewRenderer(catalog *types.Catalog, paymentCard string) *Renderer {
	return &Renderer{catalog: catalog, paymentCard: paymentCard}
}

func (r *Renderer) planName(id string) string {
	if p, ok := r.catalog.Plan(id); ok {
		return p.Name
	}
	return id
}

func (r *Renderer) Prompt(lang i18n.Lang, p workflow.Prompt) string {
	plan := Escape(r.planName(p.Plan))
	switch p.Key {
	case workflow.PromptIdleHint:
		return pick(lang,
			"💬 Нажмите /start, чтобы создать магазин, или /status, чтобы проверить подписку.",
			"💬 Send /start to create a shop or /status to check your subscription.")
	case workflow.PromptNothingToCancel:
		return pick(lang, "🤷 Отменять нечего.", "🤷 Nothing to cancel.")
	case workflow.PromptChoosePlan:
		return pick(lang, "💎 <b>Выберите тариф</b>", "💎 <b>Choose a plan</b>")
	case workflow.PromptAlreadyHasShop:
		return pick(lang,
			"🛍 У вас уже есть магазин. Посмотреть его можно в /status.",
			"🛍 You already have a shop. See /status for details.")
	case workflow.PromptNoShopToRenew:
		return pick(lang,
			"🤷 Продлевать нечего: сначала создайте магазин через /start.",
			"🤷 Nothing to renew: create a shop with /start first.")
	case workflow.PromptPlanUnavailable:
		return pick(lang,
			fmt.Sprintf("🚫 Тариф <b>%s</b> сейчас недоступен. Начните заново: /start.", plan),
			fmt.Sprintf("🚫 Plan <b>%s</b> is not available. Start over with /start.", plan))
	case workflow.PromptPaymentDetails:
		return pick(lang,
			fmt.Sprintf("💳 <b>Оплата тарифа %s</b>\nСумма: <b>%s</b>\nКарта: <code>%s</code>\n\nПосле перевода нажмите «Я оплатил».",
				plan, Amount(p.Amount), Escape(r.paymentCard)),
			fmt.Sprintf("💳 <b>Paying for %s</b>\nAmount: <b>%s</b>\nCard: <code>%s</code>\n\nPress “I've paid” after the transfer.",
				plan, Amount(p.Amount), Escape(r.paymentCard)))
	case workflow.PromptSendReceipt:
		return pick(lang, "🧾 Отправьте фото или скриншот чека.", "🧾 Send a photo or screenshot of the receipt.")
	case workflow.PromptReceiptReceived:
		return pick(lang,
			"⏳ <b>Чек получен</b>\nАдминистратор проверит оплату, и я сразу сообщу результат.",
			"⏳ <b>Receipt received</b>\nAn administrator will verify the payment and I'll let you know.")
	case workflow.PromptAskShopName:
		return pick(lang,
			"🏷 Как будет называться магазин? (от 3 до 50 символов)",
			"🏷 What is your shop called? (3 to 50 characters)")
	case workflow.PromptInvalidShopName:
		return invalidShopName(lang, p.Reason)
	case workflow.PromptAskBotToken:
		return pick(lang,
			"🤖 Создайте бота у @BotFather и пришлите его токен.",
			"🤖 Create a bot with @BotFather and send me its token.")
	case workflow.PromptInvalidBotToken:
		return pick(lang,
			"🚫 Это не похоже на токен. Он выглядит так: <code>123456:ABC-DEF_ghi</code>",
			"🚫 That doesn't look like a token. It looks like <code>123456:ABC-DEF_ghi</code>")
	case workflow.PromptBotTokenInUse:
		return pick(lang,
			"⚠️ Этот бот уже подключён к другому магазину. Пришлите токен другого бота.",
			"⚠️ This bot is already connected to another shop. Send a different token.")
	case workflow.PromptAskPhone:
		return pick(lang,
			"📱 Укажите номер телефона в формате +998XXXXXXXXX.",
			"📱 Send your phone number as +998XXXXXXXXX.")
	case workflow.PromptInvalidPhone:
		return pick(lang,
			"🚫 Номер не распознан. Пример: <code>+998901234567</code>",
			"🚫 Can't read that number. Example: <code>+998901234567</code>")
	case workflow.PromptShopCreatedActive:
		return pick(lang,
			fmt.Sprintf("🎉 <b>Магазин создан!</b>\nТариф <b>%s</b> активирован, бот уже работает.", plan),
			fmt.Sprintf("🎉 <b>Your shop is live!</b>\nPlan <b>%s</b> is active and the bot is running.", plan))
	case workflow.PromptShopCreatedPending:
		return pick(lang,
			fmt.Sprintf("🕓 <b>Магазин создан</b>\nТариф <b>%s</b>. Запуск после проверки администратором.", plan),
			fmt.Sprintf("🕓 <b>Shop created</b>\nPlan <b>%s</b>. It goes live after an administrator review.", plan))
	case workflow.PromptProvisioningResume:
		return pick(lang,
			fmt.Sprintf("✅ Оплата тарифа <b>%s</b> подтверждена. Продолжим настройку магазина.", plan),
			fmt.Sprintf("✅ Payment for <b>%s</b> confirmed. Let's finish setting up your shop.", plan))
	case workflow.PromptCancelled:
		return pick(lang, "✖️ Отменено.", "✖️ Cancelled.")
	case workflow.PromptTimedOut:
		return pick(lang,
			"⌛️ Диалог закрыт из-за неактивности. Начните заново: /start.",
			"⌛️ The conversation expired. Start over with /start.")
	case workflow.PromptAskBroadcastText:
		return pick(lang, "📣 Пришлите текст рассылки.", "📣 Send the broadcast text.")
	case workflow.PromptInvalidBroadcast:
		return pick(lang,
			fmt.Sprintf("🚫 Текст должен быть непустым и не длиннее %d символов.", workflow.MaxBroadcastLen),
			fmt.Sprintf("🚫 The text must be non-empty and at most %d characters.", workflow.MaxBroadcastLen))
	case workflow.PromptConfirmBroadcast:
		return pick(lang, "📣 <b>Отправить рассылку?</b>\n\n", "📣 <b>Send this broadcast?</b>\n\n") + Escape(p.Text)
	case workflow.PromptBroadcastQueued:
		return pick(lang, "🚀 Рассылка запущена. Итог пришлю отдельно.", "🚀 Broadcast started. I'll report when it finishes.")
	}
	return ErrorDefault(lang)
}

func invalidShopName(lang i18n.Lang, reason string) string {
	switch reason {
	case "too_short":
		return pick(lang, "🚫 Слишком короткое название: нужно минимум 3 символа.", "🚫 Too short: use at least 3 characters.")
	case "too_long":
		return pick(lang, "🚫 Слишком длинное название: максимум 50 символов.", "🚫 Too long: use at most 50 characters.")
	case "control_chars":
		return pick(lang, "🚫 Название не должно содержать переносов строк и служебных символов.", "🚫 The name must not contain line breaks or control characters.")
	case "markup_chars":
		return pick(lang, "🚫 Уберите символы разметки: < > & ` * [ ]", "🚫 Remove markup characters: < > & ` * [ ]")
	}
	return pick(lang, "🚫 Неподходящее название, попробуйте другое.", "🚫 That name won't work, try another one.")
}

package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"github.com/BatmanBruc/mother-bot/internal/admin"
	"github.com/BatmanBruc/mother-bot/internal/contextkeys"
	"github.com/BatmanBruc/mother-bot/internal/i18n"
	"github.com/BatmanBruc/mother-bot/internal/messages"
	"github.com/BatmanBruc/mother-bot/internal/middleware"
	"github.com/BatmanBruc/mother-bot/internal/utils"
	"github.com/BatmanBruc/mother-bot/internal/workflow"
	"github.com/BatmanBruc/mother-bot/types"
)

// Flow runs one inbound event through the onboarding workflow.
type Flow interface {
	HandleEvent(ctx context.Context, key types.SessionKey, chatID int64, ev workflow.Event) (workflow.Result, error)
}

type Deps struct {
	Flow        Flow
	Admin       *admin.Service
	Sessions    types.SessionStore
	Shops       types.ShopStore
	Out         Messenger
	Presenter   *Presenter
	BotUsername string
	Now         func() time.Time
	Log         logrus.FieldLogger
}

type Handlers struct {
	flow        Flow
	admin       *admin.Service
	sessions    types.SessionStore
	shops       types.ShopStore
	out         Messenger
	presenter   *Presenter
	botUsername string
	now         func() time.Time
	log         logrus.FieldLogger
}

func NewHandlers(d Deps) *Handlers {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Handlers{
		flow:        d.Flow,
		admin:       d.Admin,
		sessions:    d.Sessions,
		shops:       d.Shops,
		out:         d.Out,
		presenter:   d.Presenter,
		botUsername: d.BotUsername,
		now:         d.Now,
		log:         d.Log,
	}
}

// MainHandler dispatches an update already classified by the middlewares.
func (bh *Handlers) MainHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	u, ok := contextkeys.GetUser(ctx)
	if !ok {
		return
	}
	chatID := middleware.ChatID(update)
	if chatID == 0 {
		chatID = u.UserID
	}
	lang := contextkeys.GetLang(ctx)
	messageType, _ := contextkeys.GetMessageType(ctx)

	switch messageType {
	case contextkeys.MessageTypeCommand:
		cmd, _ := contextkeys.GetCommand(ctx)
		bh.HandleCommand(ctx, u, chatID, cmd)
	case contextkeys.MessageTypeClickButton:
		bh.HandleClickButton(ctx, update.CallbackQuery, u, chatID)
	case contextkeys.MessageTypeText:
		bh.dispatch(ctx, bh.keyFor(ctx, u.UserID), chatID, workflow.EvText{Text: update.Message.Text})
	case contextkeys.MessageTypeContact:
		contact := update.Message.Contact
		if contact.UserID != u.UserID {
			bh.replyWithMarkup(ctx, chatID, messages.ForeignContact(lang), utils.PhoneKeyboard(lang))
			return
		}
		bh.dispatch(ctx, userKey(u.UserID), chatID, workflow.EvText{Text: contact.PhoneNumber})
	case contextkeys.MessageTypePhoto:
		ref, _ := contextkeys.GetFileRef(ctx)
		bh.dispatch(ctx, userKey(u.UserID), chatID, workflow.EvPhoto{FileRef: ref})
	default:
		bh.reply(ctx, chatID, messages.ErrorUnsupportedMessageType(lang))
	}
}

// dispatch hands the event to the workflow. Failures are logged and the actor gets a
// generic error; the stored session is untouched by the failed event.
func (bh *Handlers) dispatch(ctx context.Context, key types.SessionKey, chatID int64, ev workflow.Event) {
	if _, err := bh.flow.HandleEvent(ctx, key, chatID, ev); err != nil {
		log := bh.log.WithError(err).WithFields(logrus.Fields{"user_id": key.UserID, "event": workflow.Kind(ev)})
		if errors.Is(err, types.ErrNotFound) {
			log.Warn("event dropped")
		} else {
			log.Error("event failed")
		}
		bh.reply(ctx, chatID, messages.ErrorDefault(contextkeys.GetLang(ctx)))
	}
}

// keyFor routes free text of an administrator to their broadcast composition when one
// is open, and to their own onboarding otherwise.
func (bh *Handlers) keyFor(ctx context.Context, userID int64) types.SessionKey {
	if bh.admin == nil || !bh.admin.IsAdmin(userID) {
		return userKey(userID)
	}
	key := adminKey(userID)
	if _, err := bh.sessions.GetSession(ctx, key); err == nil {
		return key
	}
	return userKey(userID)
}

func (bh *Handlers) reply(ctx context.Context, chatID int64, text string) {
	if err := bh.out.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: messages.ParseModeHTML,
	}); err != nil {
		bh.log.WithError(err).WithField("chat_id", chatID).Warn("send reply")
	}
}

func (bh *Handlers) replyWithMarkup(ctx context.Context, chatID int64, text string, markup models.ReplyMarkup) {
	if err := bh.out.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ParseMode:   messages.ParseModeHTML,
		ReplyMarkup: markup,
	}); err != nil {
		bh.log.WithError(err).WithField("chat_id", chatID).Warn("send reply")
	}
}

func userKey(id int64) types.SessionKey {
	return types.SessionKey{UserID: id, Role: types.RoleUser}
}

func adminKey(id int64) types.SessionKey {
	return types.SessionKey{UserID: id, Role: types.RoleAdmin}
}

func langOf(u *types.User) i18n.Lang {
	return i18n.FromLanguageCode(u.LanguageCode)
}

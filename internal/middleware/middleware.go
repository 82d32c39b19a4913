package middleware

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"github.com/BatmanBruc/mother-bot/internal/contextkeys"
	"github.com/BatmanBruc/mother-bot/internal/i18n"
	"github.com/BatmanBruc/mother-bot/internal/messages"
	"github.com/BatmanBruc/mother-bot/internal/onboarding"
	"github.com/BatmanBruc/mother-bot/internal/utils"
	"github.com/BatmanBruc/mother-bot/types"
)

type UserResolver interface {
	EnsureUser(ctx context.Context, p onboarding.Profile, startCode string) (*types.User, bool, error)
}

type StatusSetter interface {
	SetUserStatus(ctx context.Context, userID int64, status types.UserStatus) error
}

type MembershipChecker interface {
	CheckMembership(ctx context.Context, userID int64, channel string) (bool, error)
}

type Messenger interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) error
	AnswerCallback(ctx context.Context, callbackID, text string)
}

type Middlewares struct {
	users    UserResolver
	statuses StatusSetter
	members  MembershipChecker
	channel  string
	out      Messenger
	log      logrus.FieldLogger
}

// New builds the update middlewares. An empty channel disables the membership gate.
func New(users UserResolver, statuses StatusSetter, members MembershipChecker, channel string, out Messenger, log logrus.FieldLogger) *Middlewares {
	return &Middlewares{
		users:    users,
		statuses: statuses,
		members:  members,
		channel:  strings.TrimSpace(channel),
		out:      out,
		log:      log,
	}
}

// AnalyzeMessageMiddleware classifies the update once. Callback data outside the known
// set is answered and dropped here.
func (m *Middlewares) AnalyzeMessageMiddleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		if update.CallbackQuery != nil {
			cb, err := utils.ParseCallback(update.CallbackQuery.Data)
			if err != nil {
				m.log.WithError(err).WithField("user_id", update.CallbackQuery.From.ID).Debug("drop callback")
				m.out.AnswerCallback(ctx, update.CallbackQuery.ID, "")
				return
			}
			ctx = contextkeys.WithMessageType(ctx, contextkeys.MessageTypeClickButton)
			ctx = contextkeys.WithCallback(ctx, cb)
			next(ctx, b, update)
			return
		}
		if update.Message == nil {
			return
		}
		next(analyzeMessage(ctx, update.Message), b, update)
	}
}

func analyzeMessage(ctx context.Context, msg *models.Message) context.Context {
	if cmd, ok := ParseCommand(msg.Text); ok {
		ctx = contextkeys.WithMessageType(ctx, contextkeys.MessageTypeCommand)
		return contextkeys.WithCommand(ctx, cmd)
	}
	msgType := determineMessageType(msg)
	ctx = contextkeys.WithMessageType(ctx, msgType)
	if msgType == contextkeys.MessageTypePhoto {
		ref := bestPhoto(msg.Photo)
		if ref == "" && msg.Document != nil {
			ref = types.DocumentReceipt(msg.Document.FileID)
		}
		ctx = contextkeys.WithFileRef(ctx, ref)
	}
	return ctx
}

func determineMessageType(msg *models.Message) contextkeys.MessageType {
	switch {
	case len(msg.Photo) > 0:
		return contextkeys.MessageTypePhoto
	case msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/"):
		return contextkeys.MessageTypePhoto
	case msg.Contact != nil:
		return contextkeys.MessageTypeContact
	case msg.Text != "":
		return contextkeys.MessageTypeText
	default:
		return contextkeys.MessageTypeUnknown
	}
}

// bestPhoto picks the largest size Telegram generated for the photo.
func bestPhoto(sizes []models.PhotoSize) string {
	if len(sizes) == 0 {
		return ""
	}
	best := sizes[0]
	for _, p := range sizes[1:] {
		if p.FileSize > best.FileSize || (p.FileSize == best.FileSize && p.Width*p.Height > best.Width*best.Height) {
			best = p
		}
	}
	return best.FileID
}

// ParseCommand splits "/name@bot args" into its parts.
func ParseCommand(text string) (contextkeys.Command, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) == 1 {
		return contextkeys.Command{}, false
	}
	head, args, _ := strings.Cut(text[1:], " ")
	name, _, _ := strings.Cut(head, "@")
	if name == "" {
		return contextkeys.Command{}, false
	}
	return contextkeys.Command{Name: strings.ToLower(name), Args: strings.TrimSpace(args)}, true
}

// ResolveUserMiddleware loads or registers the sender and stores the user and language in
// the context. A returning user that was marked blocked is reactivated.
func (m *Middlewares) ResolveUserMiddleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		from := sender(update)
		if from == nil || from.IsBot {
			return
		}

		startCode := ""
		if cmd, ok := contextkeys.GetCommand(ctx); ok && cmd.Name == "start" {
			startCode = cmd.Args
		}
		profile := onboarding.Profile{
			UserID:       from.ID,
			Username:     from.Username,
			FirstName:    from.FirstName,
			LanguageCode: from.LanguageCode,
		}
		lang := i18n.FromLanguageCode(from.LanguageCode)

		u, _, err := m.users.EnsureUser(ctx, profile, startCode)
		if err != nil {
			m.log.WithError(err).WithField("user_id", from.ID).Error("resolve user")
			if chatID := ChatID(update); chatID != 0 {
				_ = m.out.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: messages.ErrorDefault(lang)})
			}
			return
		}
		if u.Status == types.UserBlocked {
			if err := m.statuses.SetUserStatus(ctx, u.UserID, types.UserActive); err != nil {
				m.log.WithError(err).WithField("user_id", u.UserID).Warn("reactivate user")
			} else {
				u.Status = types.UserActive
			}
		}

		ctx = contextkeys.WithUser(ctx, u)
		ctx = contextkeys.WithLang(ctx, lang)
		next(ctx, b, update)
	}
}

// MembershipGateMiddleware stops shop creation until the user joins the required channel.
func (m *Middlewares) MembershipGateMiddleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		if m.channel == "" || !startsShopCreation(ctx) {
			next(ctx, b, update)
			return
		}
		from := sender(update)
		if from == nil {
			return
		}
		ok, err := m.members.CheckMembership(ctx, from.ID, m.channel)
		if err != nil {
			m.log.WithError(err).WithField("user_id", from.ID).Warn("membership check failed, letting through")
			next(ctx, b, update)
			return
		}
		if ok {
			next(ctx, b, update)
			return
		}
		if update.CallbackQuery != nil {
			m.out.AnswerCallback(ctx, update.CallbackQuery.ID, "")
		}
		_ = m.out.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: ChatID(update),
			Text:   messages.JoinChannel(contextkeys.GetLang(ctx), m.channel),
		})
	}
}

func startsShopCreation(ctx context.Context) bool {
	if cmd, ok := contextkeys.GetCommand(ctx); ok {
		return cmd.Name == "start"
	}
	if cb, ok := contextkeys.GetCallback(ctx); ok {
		return cb.Action == utils.CbMenuCreate
	}
	return false
}

func sender(update *models.Update) *models.User {
	switch {
	case update.Message != nil:
		return update.Message.From
	case update.CallbackQuery != nil:
		return &update.CallbackQuery.From
	default:
		return nil
	}
}

// ChatID returns the chat the update came from, or 0.
func ChatID(update *models.Update) int64 {
	switch {
	case update.Message != nil:
		return update.Message.Chat.ID
	case update.CallbackQuery != nil:
		return getChatIDFromMaybeInaccessibleMessage(update.CallbackQuery.Message)
	default:
		return 0
	}
}

func getChatIDFromMaybeInaccessibleMessage(m models.MaybeInaccessibleMessage) int64 {
	if m.Message != nil {
		return m.Message.Chat.ID
	}
	if m.InaccessibleMessage != nil {
		return m.InaccessibleMessage.Chat.ID
	}
	return 0
}

// Package transport adapts the Telegram Bot API to the delivery contract the rest of
// the bot relies on: ok, blocked, deactivated or rate limited.
package transport

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
)

const (
	ParseModeHTML = models.ParseModeHTML

	maxRetries     = 3
	maxRetryAfter  = 30 * time.Second
	retryBaseDelay = 300 * time.Millisecond
)

type Sender struct {
	bot     *bot.Bot
	log     logrus.FieldLogger
	backoff func() retry.Backoff
}

func NewSender(b *bot.Bot, log logrus.FieldLogger) *Sender {
	return &Sender{
		bot: b,
		log: log,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(maxRetries, retry.NewExponential(retryBaseDelay))
		},
	}
}

// Send delivers an HTML message for broadcasts. Flood control is returned to the
// caller as *RateLimitedError instead of being waited out here.
func (s *Sender) Send(ctx context.Context, chatID int64, text string) error {
	return s.do(ctx, false, func(ctx context.Context) error {
		_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      text,
			ParseMode: ParseModeHTML,
		})
		return err
	})
}

// SendMessage delivers a conversational message, waiting out short flood-control pauses.
func (s *Sender) SendMessage(ctx context.Context, params *bot.SendMessageParams) error {
	if params.ParseMode == "" {
		params.ParseMode = ParseModeHTML
	}
	return s.do(ctx, true, func(ctx context.Context) error {
		_, err := s.bot.SendMessage(ctx, params)
		return err
	})
}

func (s *Sender) SendPhoto(ctx context.Context, params *bot.SendPhotoParams) error {
	if params.ParseMode == "" {
		params.ParseMode = ParseModeHTML
	}
	return s.do(ctx, true, func(ctx context.Context) error {
		_, err := s.bot.SendPhoto(ctx, params)
		return err
	})
}

func (s *Sender) SendDocument(ctx context.Context, params *bot.SendDocumentParams) error {
	if params.ParseMode == "" {
		params.ParseMode = ParseModeHTML
	}
	return s.do(ctx, true, func(ctx context.Context) error {
		_, err := s.bot.SendDocument(ctx, params)
		return err
	})
}

func (s *Sender) AnswerCallback(ctx context.Context, callbackID, text string) {
	_, err := s.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
	if err != nil {
		s.log.WithError(err).Debug("answer callback")
	}
}

// CheckMembership reports whether userID is a member of channel (id or @username).
func (s *Sender) CheckMembership(ctx context.Context, userID int64, channel string) (bool, error) {
	var member *models.ChatMember
	err := s.do(ctx, true, func(ctx context.Context) error {
		var err error
		member, err = s.bot.GetChatMember(ctx, &bot.GetChatMemberParams{
			ChatID: channel,
			UserID: userID,
		})
		return err
	})
	if err != nil {
		return false, err
	}
	return IsMember(member), nil
}

func IsMember(m *models.ChatMember) bool {
	if m == nil {
		return false
	}
	switch m.Type {
	case models.ChatMemberTypeOwner, models.ChatMemberTypeAdministrator, models.ChatMemberTypeMember:
		return true
	case models.ChatMemberTypeRestricted:
		return m.Restricted != nil && m.Restricted.IsMember
	default:
		return false
	}
}

func (s *Sender) do(ctx context.Context, waitFlood bool, call func(ctx context.Context) error) error {
	return retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		err := Classify(call(ctx))
		if err == nil {
			return nil
		}
		if rl, ok := AsRateLimited(err); ok {
			if !waitFlood || rl.RetryAfter > maxRetryAfter {
				return err
			}
			s.log.WithField("retry_after", rl.RetryAfter).Warn("flood control, waiting")
			timer := time.NewTimer(rl.RetryAfter)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
			return retry.RetryableError(err)
		}
		if IsPermanent(err) || isAPIRejection(err) {
			return err
		}
		return retry.RetryableError(err)
	})
}

// Classify maps Bot API failures onto ErrBlocked, ErrDeactivated and *RateLimitedError.
// Other errors pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var tooMany *bot.TooManyRequestsError
	if errors.As(err, &tooMany) {
		return &RateLimitedError{RetryAfter: time.Duration(tooMany.RetryAfter) * time.Second}
	}
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, bot.ErrorForbidden):
		if strings.Contains(msg, "deactivated") {
			return ErrDeactivated
		}
		return ErrBlocked
	case errors.Is(err, bot.ErrorBadRequest) && strings.Contains(msg, "chat not found"):
		return ErrBlocked
	}
	return err
}

// isAPIRejection reports errors the API returned deliberately; repeating the call
// would get the same answer.
func isAPIRejection(err error) bool {
	return errors.Is(err, bot.ErrorBadRequest) ||
		errors.Is(err, bot.ErrorUnauthorized) ||
		errors.Is(err, bot.ErrorNotFound) ||
		errors.Is(err, bot.ErrorConflict)
}

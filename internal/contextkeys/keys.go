package contextkeys

import (
	"context"

	"github.com/BatmanBruc/mother-bot/internal/i18n"
	"github.com/BatmanBruc/mother-bot/internal/utils"
	"github.com/BatmanBruc/mother-bot/types"
)

type messageTypeKey struct{}
type commandKey struct{}
type callbackKey struct{}
type fileRefKey struct{}
type userKey struct{}
type langKey struct{}

type MessageType string

const (
	MessageTypeText        MessageType = "text"
	MessageTypePhoto       MessageType = "photo"
	MessageTypeContact     MessageType = "contact"
	MessageTypeCommand     MessageType = "command"
	MessageTypeClickButton MessageType = "clickButton"
	MessageTypeUnknown     MessageType = "unknown"
)

// Command is a parsed slash command: "/start@MyBot ABC" gives {Name: "start", Args: "ABC"}.
type Command struct {
	Name string
	Args string
}

func WithMessageType(ctx context.Context, msgType MessageType) context.Context {
	return context.WithValue(ctx, messageTypeKey{}, msgType)
}

func GetMessageType(ctx context.Context) (MessageType, bool) {
	v, ok := ctx.Value(messageTypeKey{}).(MessageType)
	if !ok {
		return MessageTypeUnknown, false
	}
	return v, true
}

func WithCommand(ctx context.Context, cmd Command) context.Context {
	return context.WithValue(ctx, commandKey{}, cmd)
}

func GetCommand(ctx context.Context) (Command, bool) {
	v, ok := ctx.Value(commandKey{}).(Command)
	return v, ok
}

func WithCallback(ctx context.Context, cb utils.Callback) context.Context {
	return context.WithValue(ctx, callbackKey{}, cb)
}

func GetCallback(ctx context.Context) (utils.Callback, bool) {
	v, ok := ctx.Value(callbackKey{}).(utils.Callback)
	return v, ok
}

// WithFileRef stores the receipt reference of a photo or image document.
func WithFileRef(ctx context.Context, ref string) context.Context {
	return context.WithValue(ctx, fileRefKey{}, ref)
}

func GetFileRef(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(fileRefKey{}).(string)
	return v, ok && v != ""
}

func WithUser(ctx context.Context, u *types.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

func GetUser(ctx context.Context) (*types.User, bool) {
	v, ok := ctx.Value(userKey{}).(*types.User)
	return v, ok && v != nil
}

func WithLang(ctx context.Context, lang i18n.Lang) context.Context {
	return context.WithValue(ctx, langKey{}, lang)
}

func GetLang(ctx context.Context) i18n.Lang {
	if v, ok := ctx.Value(langKey{}).(i18n.Lang); ok {
		return v
	}
	return i18n.RU
}

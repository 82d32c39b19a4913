package workflow

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/BatmanBruc/mother-bot/types"
)

const (
	MinShopNameLen   = 3
	MaxShopNameLen   = 50
	MaxBroadcastLen  = 4096
	phoneCountryCode = "998"
)

var (
	botTokenRe = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)
	phoneRe    = regexp.MustCompile(`^\d{9}$`)
)

const markupChars = "<>&`*[]"

func ValidateShopName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(name)
	if n < MinShopNameLen {
		return "", &types.ValidationError{Field: "shop_name", Reason: "too_short"}
	}
	if n > MaxShopNameLen {
		return "", &types.ValidationError{Field: "shop_name", Reason: "too_long"}
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", &types.ValidationError{Field: "shop_name", Reason: "control_chars"}
		}
		if strings.ContainsRune(markupChars, r) {
			return "", &types.ValidationError{Field: "shop_name", Reason: "markup_chars"}
		}
	}
	return name, nil
}

func ValidateBotToken(raw string) (string, error) {
	token := strings.TrimSpace(raw)
	if !botTokenRe.MatchString(token) {
		return "", &types.ValidationError{Field: "bot_token", Reason: "format"}
	}
	return token, nil
}

// NormalizePhone accepts a local mobile number with or without the country code and
// returns it as +998XXXXXXXXX. Spaces, dashes and parentheses are ignored.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')':
		case r == '+' && b.Len() == 0:
		default:
			return "", &types.ValidationError{Field: "phone", Reason: "format"}
		}
	}
	digits := b.String()
	if len(digits) == 12 && strings.HasPrefix(digits, phoneCountryCode) {
		digits = digits[len(phoneCountryCode):]
	}
	if !phoneRe.MatchString(digits) {
		return "", &types.ValidationError{Field: "phone", Reason: "format"}
	}
	return "+" + phoneCountryCode + digits, nil
}

func ValidateBroadcastText(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", &types.ValidationError{Field: "broadcast_text", Reason: "empty"}
	}
	if utf8.RuneCountInString(text) > MaxBroadcastLen {
		return "", &types.ValidationError{Field: "broadcast_text", Reason: "too_long"}
	}
	return text, nil
}

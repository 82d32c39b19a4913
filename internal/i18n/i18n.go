package i18n

import "strings"

type Lang string

const (
	RU Lang = "ru"
	EN Lang = "en"
)

// FromLanguageCode maps a Telegram language_code to a supported language. Russian is
// the fallback for the CIS locales the audience mostly uses.
func FromLanguageCode(code string) Lang {
	code = strings.ToLower(strings.TrimSpace(code))
	switch {
	case strings.HasPrefix(code, "en"):
		return EN
	case code == "", strings.HasPrefix(code, "ru"), strings.HasPrefix(code, "uz"),
		strings.HasPrefix(code, "kk"), strings.HasPrefix(code, "ky"), strings.HasPrefix(code, "tg"):
		return RU
	default:
		return EN
	}
}

func Parse(s string) Lang {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ru":
		return RU
	case "en":
		return EN
	default:
		return RU
	}
}

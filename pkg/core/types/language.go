package types

import "strings"

// Language is a site language tag.
type Language string

const (
	LangEnglish    Language = "en"
	LangSpanish    Language = "es"
	LangPortuguese Language = "pt"

	// DefaultLanguage is the base language; it carries no instruction suffix.
	DefaultLanguage = LangEnglish
)

// SupportedLanguages lists the languages the site is translated into.
var SupportedLanguages = []Language{LangEnglish, LangSpanish, LangPortuguese}

// ParseLanguage normalizes s ("ES", " pt-BR ") to a supported language.
// Unknown or empty values report false.
func ParseLanguage(s string) (Language, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexAny(s, "-_"); i > 0 {
		s = s[:i]
	}
	for _, l := range SupportedLanguages {
		if string(l) == s {
			return l, true
		}
	}
	return "", false
}

// LanguageOr parses s and falls back to def when s is not supported.
func LanguageOr(s string, def Language) Language {
	if l, ok := ParseLanguage(s); ok {
		return l
	}
	return def
}

// IsDefault reports whether l is the base language.
func (l Language) IsDefault() bool {
	return l == DefaultLanguage
}

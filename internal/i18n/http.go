package i18n

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/language"
)

const (
	// LangParam is the query parameter used to select a language.
	LangParam = "lang"
	// LangCookieName stores the user's language preference.
	LangCookieName = "jny_lang"
)

var (
	English = language.English
	Marathi = language.MustParse("mr")

	supported = []language.Tag{English, Marathi}
	matcher   = language.NewMatcher(supported)
)

// Supported returns the supported language tags, base locale first.
func Supported() []language.Tag {
	return append([]language.Tag(nil), supported...)
}

// LocaleFor maps a tag onto a catalog locale.
func LocaleFor(tag language.Tag) string {
	base, _ := tag.Base()
	return base.String()
}

// ParseTag accepts a supported language such as "mr" or "en-IN".
func ParseTag(value string) (language.Tag, bool) {
	tag, err := language.Parse(strings.TrimSpace(value))
	if err != nil {
		return language.Und, false
	}
	return matchTags([]language.Tag{tag})
}

func matchTags(tags []language.Tag) (language.Tag, bool) {
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return language.Und, false
	}
	return supported[idx], true
}

// ResolveTag determines the language of a request: the lang query parameter, then
// the language cookie, then Accept-Language, then def. The bool reports whether the
// query parameter chose it, in which case the caller should persist it.
func ResolveTag(r *http.Request, def language.Tag) (language.Tag, bool) {
	if r == nil {
		return def, false
	}
	if v := r.URL.Query().Get(LangParam); v != "" {
		if tag, ok := ParseTag(v); ok {
			return tag, true
		}
	}
	if c, err := r.Cookie(LangCookieName); err == nil {
		if tag, ok := ParseTag(c.Value); ok {
			return tag, false
		}
	}
	if accept := strings.TrimSpace(r.Header.Get("Accept-Language")); accept != "" {
		if tags, _, err := language.ParseAcceptLanguage(accept); err == nil && len(tags) > 0 {
			if tag, ok := matchTags(tags); ok {
				return tag, false
			}
		}
	}
	return def, false
}

// SetLanguageCookie persists the selected language on the response.
func SetLanguageCookie(w http.ResponseWriter, tag language.Tag) {
	http.SetCookie(w, &http.Cookie{
		Name:     LangCookieName,
		Value:    LocaleFor(tag),
		Path:     "/",
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
		SameSite: http.SameSiteLaxMode,
	})
}

// LanguageOption is a language switch entry for page headers.
type LanguageOption struct {
	Tag    string
	Label  string
	URL    string
	Active bool
}

var labels = map[string]string{"en": "English", "mr": "मराठी"}

// Options lists the supported languages, each linking to target in that language.
func Options(active language.Tag, target *url.URL) []LanguageOption {
	activeLocale := LocaleFor(active)
	out := make([]LanguageOption, 0, len(supported))
	for _, tag := range supported {
		locale := LocaleFor(tag)
		out = append(out, LanguageOption{
			Tag:    locale,
			Label:  labels[locale],
			URL:    languageURL(target, locale),
			Active: locale == activeLocale,
		})
	}
	return out
}

func languageURL(target *url.URL, locale string) string {
	p, q := "/", url.Values{}
	if target != nil {
		if target.Path != "" {
			p = target.Path
		}
		q = target.Query()
	}
	q.Set(LangParam, locale)
	return (&url.URL{Path: p, RawQuery: q.Encode()}).String()
}

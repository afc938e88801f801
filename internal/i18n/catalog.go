// Package i18n loads the English and Marathi message catalogs and picks the
// language of each request.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"
)

// BaseLocale is the locale every other catalog falls back to.
const BaseLocale = "en"

//go:embed locales/*/*.yaml
var embeddedLocales embed.FS

type catalogFile struct {
	Locale    string            `yaml:"locale"`
	Namespace string            `yaml:"namespace"`
	Messages  map[string]string `yaml:"messages"`
}

// Bundle holds every message of every locale.
type Bundle struct {
	messages map[string]map[string]string
	tags     map[string]language.Tag
	builder  *catalog.Builder
}

// LoadEmbedded loads the catalogs compiled into the binary.
func LoadEmbedded() (*Bundle, error) {
	return LoadFromFS(embeddedLocales)
}

// LoadFromFS loads locales/<locale>/<namespace>.yaml files from fsys.
func LoadFromFS(fsys fs.FS) (*Bundle, error) {
	paths, err := fs.Glob(fsys, "locales/*/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locale catalogs: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no catalog files found")
	}
	sort.Strings(paths)

	b := &Bundle{
		messages: map[string]map[string]string{},
		tags:     map[string]language.Tag{},
		builder:  catalog.NewBuilder(catalog.Fallback(language.English)),
	}
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", p, err)
		}
		var file catalogFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", p, err)
		}
		if err := b.addFile(p, file); err != nil {
			return nil, err
		}
	}
	if _, ok := b.messages[BaseLocale]; !ok {
		return nil, fmt.Errorf("base locale %s is not defined in catalogs", BaseLocale)
	}
	if err := b.checkComplete(); err != nil {
		return nil, err
	}
	return b, nil
}

// checkComplete requires every locale to define exactly the base locale's keys.
func (b *Bundle) checkComplete() error {
	base := b.Keys(BaseLocale)
	for _, locale := range b.Locales() {
		if locale == BaseLocale {
			continue
		}
		for _, key := range base {
			if !b.Has(locale, key) {
				return fmt.Errorf("locale %s is missing key %q", locale, key)
			}
		}
		for _, key := range b.Keys(locale) {
			if !b.Has(BaseLocale, key) {
				return fmt.Errorf("locale %s defines %q, which %s does not", locale, key, BaseLocale)
			}
		}
	}
	return nil
}

func (b *Bundle) addFile(p string, file catalogFile) error {
	localeFromPath := path.Base(path.Dir(p))
	namespaceFromPath := strings.TrimSuffix(path.Base(p), path.Ext(p))

	locale := strings.TrimSpace(file.Locale)
	if locale != localeFromPath {
		return fmt.Errorf("catalog %s: locale %q must match path locale %q", p, locale, localeFromPath)
	}
	if ns := strings.TrimSpace(file.Namespace); ns != namespaceFromPath {
		return fmt.Errorf("catalog %s: namespace %q must match filename namespace %q", p, ns, namespaceFromPath)
	}
	if file.Messages == nil {
		return fmt.Errorf("catalog %s: messages map is required", p)
	}

	tag, err := language.Parse(locale)
	if err != nil {
		return fmt.Errorf("catalog %s: parse locale %q: %w", p, locale, err)
	}
	b.tags[locale] = tag
	msgs, ok := b.messages[locale]
	if !ok {
		msgs = map[string]string{}
		b.messages[locale] = msgs
	}
	for key, value := range file.Messages {
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("catalog %s: message key cannot be blank", p)
		}
		if _, exists := msgs[key]; exists {
			return fmt.Errorf("catalog %s: duplicate key %q in locale %q", p, key, locale)
		}
		msgs[key] = value
		if err := b.builder.SetString(tag, key, value); err != nil {
			return fmt.Errorf("catalog %s: register %q: %w", p, key, err)
		}
	}
	return nil
}

// Locales returns the loaded locale identifiers, sorted.
func (b *Bundle) Locales() []string {
	out := make([]string, 0, len(b.messages))
	for l := range b.messages {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Has reports whether key exists in locale.
func (b *Bundle) Has(locale, key string) bool {
	_, ok := b.messages[locale][key]
	return ok
}

// Keys returns the sorted message keys of a locale.
func (b *Bundle) Keys(locale string) []string {
	out := make([]string, 0, len(b.messages[locale]))
	for k := range b.messages[locale] {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Translator renders messages in one language.
type Translator struct {
	Tag      language.Tag
	locale   string
	bundle   *Bundle
	printer  *message.Printer
	fallback *message.Printer
}

// Translator returns a translator for tag. Unsupported tags use the base locale.
func (b *Bundle) Translator(tag language.Tag) *Translator {
	locale := LocaleFor(tag)
	if _, ok := b.messages[locale]; !ok {
		locale = BaseLocale
	}
	t := b.tags[locale]
	return &Translator{
		Tag:      t,
		locale:   locale,
		bundle:   b,
		printer:  message.NewPrinter(t, message.Catalog(b.builder)),
		fallback: message.NewPrinter(b.tags[BaseLocale], message.Catalog(b.builder)),
	}
}

// Locale is the catalog locale in use, such as "mr".
func (t *Translator) Locale() string { return t.locale }

// T returns the message for key formatted with args. Keys missing from the active
// locale use the base locale, and unknown keys render as the key itself.
func (t *Translator) T(key string, args ...any) string {
	switch {
	case t.bundle.Has(t.locale, key):
		return t.printer.Sprintf(key, args...)
	case t.bundle.Has(BaseLocale, key):
		return t.fallback.Sprintf(key, args...)
	default:
		return key
	}
}

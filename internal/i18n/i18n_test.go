package i18n

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestEmbeddedCatalogsAreComplete(t *testing.T) {
	b, err := LoadEmbedded()
	require.NoError(t, err)
	assert.Equal(t, []string{"en", "mr"}, b.Locales())
	for _, tag := range Supported() {
		assert.Contains(t, b.Locales(), LocaleFor(tag))
	}

	for _, key := range b.Keys("en") {
		assert.True(t, b.Has("mr", key), "mr is missing %q", key)
	}
	for _, key := range b.Keys("mr") {
		assert.True(t, b.Has("en", key), "en is missing %q", key)
	}
}

func TestTranslator(t *testing.T) {
	b, err := LoadEmbedded()
	require.NoError(t, err)

	en := b.Translator(English)
	mr := b.Translator(Marathi)
	assert.Equal(t, "Welcome to Jñānayoni", en.T("welcome"))
	assert.Equal(t, "ज्ञानयोनी मध्ये आपले स्वागत आहे", mr.T("welcome"))
	assert.Equal(t, "Book returned. Fine: ₹6", en.T("bookReturned", 6))
	assert.Equal(t, "no.such.key", mr.T("no.such.key"))

	t.Run("should fall back to the base locale for unsupported tags", func(t *testing.T) {
		fr := b.Translator(language.French)
		assert.Equal(t, "en", fr.Locale())
		assert.Equal(t, "Logout", fr.T("logout"))
	})
}

func TestLoadFromFSValidates(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"locale mismatch": {
			"locales/en/common.yaml": {Data: []byte("locale: mr\nnamespace: common\nmessages:\n  a: b\n")},
		},
		"namespace mismatch": {
			"locales/en/common.yaml": {Data: []byte("locale: en\nnamespace: other\nmessages:\n  a: b\n")},
		},
		"duplicate key": {
			"locales/en/a.yaml": {Data: []byte("locale: en\nnamespace: a\nmessages:\n  k: one\n")},
			"locales/en/b.yaml": {Data: []byte("locale: en\nnamespace: b\nmessages:\n  k: two\n")},
		},
		"incomplete locale": {
			"locales/en/a.yaml": {Data: []byte("locale: en\nnamespace: a\nmessages:\n  k: v\n  j: w\n")},
			"locales/mr/a.yaml": {Data: []byte("locale: mr\nnamespace: a\nmessages:\n  k: v\n")},
		},
		"extra key": {
			"locales/en/a.yaml": {Data: []byte("locale: en\nnamespace: a\nmessages:\n  k: v\n")},
			"locales/mr/a.yaml": {Data: []byte("locale: mr\nnamespace: a\nmessages:\n  k: v\n  x: y\n")},
		},
		"missing base": {
			"locales/mr/a.yaml": {Data: []byte("locale: mr\nnamespace: a\nmessages:\n  k: v\n")},
		},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFromFS(fsys)
			assert.Error(t, err)
		})
	}
}

func TestResolveTag(t *testing.T) {
	req := func(query, cookie, accept string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/"+query, nil)
		if cookie != "" {
			r.AddCookie(&http.Cookie{Name: LangCookieName, Value: cookie})
		}
		if accept != "" {
			r.Header.Set("Accept-Language", accept)
		}
		return r
	}

	tests := []struct {
		name    string
		r       *http.Request
		want    string
		persist bool
	}{
		{"query wins", req("?lang=mr", "en", "en-US"), "mr", true},
		{"bad query falls through to cookie", req("?lang=xx", "mr", ""), "mr", false},
		{"cookie before header", req("", "en", "mr-IN,mr;q=0.9"), "en", false},
		{"accept-language", req("", "", "mr-IN,mr;q=0.9,en;q=0.5"), "mr", false},
		{"unsupported header uses default", req("", "", "fr-FR"), "en", false},
		{"nothing uses default", req("", "", ""), "en", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tag, persist := ResolveTag(tc.r, English)
			assert.Equal(t, tc.want, LocaleFor(tag))
			assert.Equal(t, tc.persist, persist)
		})
	}
}

func TestOptions(t *testing.T) {
	target := &url.URL{Path: "/student/library/lib_1", RawQuery: "tab=catalog"}
	opts := Options(Marathi, target)
	require.Len(t, opts, 2)
	assert.False(t, opts[0].Active)
	assert.True(t, opts[1].Active)
	assert.Equal(t, "/student/library/lib_1?lang=en&tab=catalog", opts[0].URL)

	opts = Options(English, nil)
	assert.Equal(t, "/?lang=mr", opts[1].URL)
}

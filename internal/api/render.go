package api

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"jnanayoni/internal/auth"
	"jnanayoni/internal/i18n"
	"jnanayoni/internal/library"
	"jnanayoni/internal/utils"
)

//go:embed templates/*.html
var templateFS embed.FS

type pageTemplate = *template.Template

var funcs = template.FuncMap{
	"date": func(t time.Time) string { return t.Format("02 Jan 2006") },
	"datep": func(t *time.Time) string {
		if t == nil {
			return "-"
		}
		return t.Format("02 Jan 2006")
	},
	"datetime": func(t time.Time) string { return t.Format("02 Jan 2006 15:04") },
	"size":     func(n int64) string { return humanize.Bytes(uint64(n)) },
	"ago":      humanize.Time,
}

// parsePages builds one template set per page, each joined with the shared layout.
func parsePages() (map[string]pageTemplate, error) {
	names, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	pages := make(map[string]pageTemplate, len(names))
	for _, name := range names {
		base := strings.TrimPrefix(name, "templates/")
		if base == "layout.html" {
			continue
		}
		t, err := template.New(base).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", base, err)
		}
		pages[strings.TrimSuffix(base, ".html")] = t
	}
	return pages, nil
}

// flashKeys are the confirmations a redirect may ask a page to show.
var flashKeys = map[string]bool{
	"bookAdded":    true,
	"bookReturned": true,
	"uploadSaved":  true,
	"profileSaved": true,
}

// page is the data every template receives.
type page struct {
	L         *i18n.Translator
	Langs     []i18n.LanguageOption
	Principal *auth.Principal
	CSRF      string
	Title     string
	Flash     string
	Error     string
	Now       time.Time
	Data      any
}

func (s *server) newPage(w http.ResponseWriter, r *http.Request, titleKey string, data any) (*page, error) {
	tr := s.translator(r)
	token, err := auth.EnsureCSRFToken(w, r, s.SecureCookies)
	if err != nil {
		return nil, err
	}
	p := &page{
		L:     tr,
		Langs: i18n.Options(tr.Tag, languageTarget(r)),
		CSRF:  token,
		Title: tr.T(titleKey),
		Now:   s.Service.Now(),
		Data:  data,
	}
	if pr, ok := auth.PrincipalFrom(r.Context()); ok {
		p.Principal = &pr
	}
	q := r.URL.Query()
	if key := q.Get("flash"); flashKeys[key] {
		if n, err := strconv.Atoi(q.Get("n")); err == nil {
			p.Flash = tr.T(key, n)
		} else {
			p.Flash = tr.T(key)
		}
	}
	if key := q.Get("error"); strings.HasPrefix(key, "err") && s.I18n.Has(i18n.BaseLocale, key) {
		p.Error = s.errorText(tr, key)
	}
	return p, nil
}

// languageTarget is the page the language switcher links to. A page rendered in reply
// to a form post links to the signed-in user's dashboard unless the handler picks another.
func languageTarget(r *http.Request) *url.URL {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return r.URL
	}
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		return &url.URL{Path: dashboardPath(p.Role)}
	}
	return &url.URL{Path: "/"}
}

// linkLanguagesTo points the language switcher at target.
func (p *page) linkLanguagesTo(target *url.URL) {
	p.Langs = i18n.Options(p.L.Tag, target)
}

func (s *server) errorText(tr *i18n.Translator, key string) string {
	if key == library.MsgTooLarge {
		return tr.T(key, humanize.Bytes(uint64(s.MaxUploadBytes)))
	}
	return tr.T(key)
}

func (s *server) render(w http.ResponseWriter, r *http.Request, status int, name, titleKey string, data any) {
	p, err := s.newPage(w, r, titleKey, data)
	if err != nil {
		s.Logger.Error("prepare page", zap.String("page", name), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	s.renderPage(w, status, name, p)
}

func (s *server) renderPage(w http.ResponseWriter, status int, name string, p *page) {
	t, ok := s.pages[name]
	if !ok {
		s.Logger.Error("unknown page", zap.String("page", name))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", p); err != nil {
		s.Logger.Error("render page", zap.String("page", name), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// renderError shows err on the error page in the request language.
func (s *server) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := utils.StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.Logger.Error("page request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	p, perr := s.newPage(w, r, "errInternal", nil)
	if perr != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	p.Error = s.errorText(p.L, utils.MessageFor(err, "errInternal"))
	p.Title = p.Error
	s.renderPage(w, status, "error", p)
}

// redirectWith sends a 303 to path with q as its query.
func redirectWith(w http.ResponseWriter, r *http.Request, path string, q url.Values) {
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

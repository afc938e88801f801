package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"jnanayoni/internal/auth"
	"jnanayoni/internal/i18n"
	"jnanayoni/internal/library"
	"jnanayoni/internal/utils"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rec *statusRecorder) WriteHeader(code int) {
	if rec.status == 0 {
		rec.status = code
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += n
	return n, err
}

func (rec *statusRecorder) Unwrap() http.ResponseWriter { return rec.ResponseWriter }

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Int("bytes", rec.bytes),
			zap.Duration("duration", time.Since(start)),
		}
		if p, ok := auth.PrincipalFrom(r.Context()); ok {
			fields = append(fields, zap.String("user", p.UserID))
		}
		s.Logger.Info("request", fields...)
	})
}

func (s *server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.Logger.Error("panic serving request", zap.String("path", r.URL.Path), zap.Any("panic", v), zap.Stack("stack"))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// uploadTabs maps the multipart form endpoints onto the dashboard tab holding the form.
var uploadTabs = map[string]string{
	"/library/books":  "books",
	"/library/upload": "upload",
}

// limitBody caps page request bodies at one upload plus the form overhead. A body that
// declares a larger length is turned away before anything reads it.
func (s *server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil || r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		limit := s.MaxUploadBytes + formOverhead
		if r.ContentLength > limit {
			tooLarge := utils.New(utils.ErrInvalid, library.MsgTooLarge)
			if tab, ok := uploadTabs[r.URL.Path]; ok {
				backToTab(w, r, tab, tooLarge)
				return
			}
			s.renderError(w, r, tooLarge)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		next.ServeHTTP(w, r)
	})
}

type translatorKey struct{}

// withLanguage resolves the request language and persists an explicit ?lang= choice.
func (s *server) withLanguage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tag, chosen := i18n.ResolveTag(r, s.DefaultLang)
		if chosen {
			i18n.SetLanguageCookie(w, tag)
		}
		tr := s.I18n.Translator(tag)
		w.Header().Set("Content-Language", tr.Locale())
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), translatorKey{}, tr)))
	})
}

func (s *server) translator(r *http.Request) *i18n.Translator {
	if tr, ok := r.Context().Value(translatorKey{}).(*i18n.Translator); ok {
		return tr
	}
	return s.I18n.Translator(s.DefaultLang)
}

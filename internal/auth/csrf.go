package auth

import (
	"crypto/hmac"
	"encoding/base64"
	"mime"
	"net/http"

	"jnanayoni/internal/crypto"
)

const (
	CSRFCookie = "jny_csrf"
	CSRFField  = "csrf_token"
	CSRFHeader = "X-CSRF-Token"
)

// GenerateCSRFToken generates a CSRF token.
func GenerateCSRFToken() (string, error) {
	b, err := crypto.RandomBytes(32)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// EnsureCSRFToken returns the request's CSRF token, issuing a fresh cookie when absent.
func EnsureCSRFToken(w http.ResponseWriter, r *http.Request, secure bool) (string, error) {
	if c, err := r.Cookie(CSRFCookie); err == nil && c.Value != "" {
		return c.Value, nil
	}
	token, err := GenerateCSRFToken()
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

// ValidateCSRFToken compares the submitted token against the cookie.
func ValidateCSRFToken(r *http.Request) bool {
	cookie, err := r.Cookie(CSRFCookie)
	if err != nil || cookie.Value == "" {
		return false
	}
	return hmac.Equal([]byte(submittedToken(r)), []byte(cookie.Value))
}

// submittedToken reads the token from the header, then the form. Multipart forms carry it
// in the action URL so the check never has to read an upload body.
func submittedToken(r *http.Request) string {
	if token := r.Header.Get(CSRFHeader); token != "" {
		return token
	}
	if isMultipart(r) {
		if token := r.URL.Query().Get(CSRFField); token != "" {
			return token
		}
		return r.FormValue(CSRFField)
	}
	return r.PostFormValue(CSRFField)
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

// CSRFProtect rejects state-changing requests whose form token does not match the cookie.
// Bearer-authenticated requests are exempt.
func CSRFProtect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		if ExtractTokenFromHeader(r) == "" && !ValidateCSRFToken(r) {
			http.Error(w, "invalid csrf token", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"jnanayoni/internal/models"
)

var (
	// ErrSessionNotFound is returned when a request carries no session token.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned when a session token is past its expiry.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionInvalid is returned when a token is malformed or badly signed.
	ErrSessionInvalid = errors.New("invalid session")
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID    string
	Role      models.Role
	Name      string
	LibraryID string
}

// IsAdmin reports whether the principal administers a library.
func (p Principal) IsAdmin() bool { return p.Role == models.RoleLibraryAdmin }

// PrincipalFor builds the session principal of a stored user.
func PrincipalFor(u *models.User) Principal {
	return Principal{UserID: u.ID, Role: u.Role, Name: u.Name, LibraryID: u.LibraryID}
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
	Name string `json:"name"`
	Lib  string `json:"lib,omitempty"`
}

// Sessions issues and verifies HS256 session tokens.
type Sessions struct {
	key    []byte
	ttl    time.Duration
	cookie string
	secure bool
	now    func() time.Time
}

// NewSessions returns a token issuer signing with key. Tokens live for ttl and travel in the
// named cookie. secure marks the cookie for HTTPS-only delivery.
func NewSessions(key []byte, ttl time.Duration, cookie string, secure bool) *Sessions {
	return &Sessions{key: key, ttl: ttl, cookie: cookie, secure: secure, now: time.Now}
}

// Issue signs a token for p and returns it with its expiry.
func (s *Sessions) Issue(p Principal) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role: string(p.Role),
		Name: p.Name,
		Lib:  p.LibraryID,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing session: %w", err)
	}
	return token, exp, nil
}

// Parse verifies token and returns its principal.
func (s *Sessions) Parse(token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, ErrSessionNotFound
	}
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, ErrSessionExpired
		}
		return Principal{}, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}
	role, ok := models.ParseRole(claims.Role)
	if !ok || claims.Subject == "" {
		return Principal{}, ErrSessionInvalid
	}
	return Principal{UserID: claims.Subject, Role: role, Name: claims.Name, LibraryID: claims.Lib}, nil
}

// SetCookie stores token in the session cookie.
func (s *Sessions) SetCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie removes the session cookie.
func (s *Sessions) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// TokenFromRequest returns the bearer token, or the session cookie when there is none.
func (s *Sessions) TokenFromRequest(r *http.Request) string {
	if token := ExtractTokenFromHeader(r); token != "" {
		return token
	}
	if c, err := r.Cookie(s.cookie); err == nil {
		return c.Value
	}
	return ""
}

// ExtractTokenFromHeader extracts the token from the Authorization header.
func ExtractTokenFromHeader(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored by Authenticate, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

type cookieSessionKey struct{}

// Authenticate attaches the principal of a valid token to the request context.
// Requests without a valid token pass through anonymously.
func (s *Sessions) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ExtractTokenFromHeader(r)
		fromCookie := token == ""
		if fromCookie {
			token = s.TokenFromRequest(r)
		}
		if p, err := s.Parse(token); err == nil {
			ctx := WithPrincipal(r.Context(), p)
			if fromCookie {
				ctx = context.WithValue(ctx, cookieSessionKey{}, true)
			}
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

// BearerOnly drops a principal that came from the session cookie, so routes exempt from
// CSRF checks only act for callers presenting an Authorization header.
func BearerOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fromCookie, _ := r.Context().Value(cookieSessionKey{}).(bool); fromCookie {
			ctx := context.WithValue(r.Context(), principalKey{}, nil)
			r = r.WithContext(context.WithValue(ctx, cookieSessionKey{}, false))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole guards page routes: anonymous callers are redirected to the landing page
// and callers with another role get 403.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return requireRole(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}, roles)
}

// RequireAPIRole guards JSON routes: anonymous callers get 401 and callers with another role 403.
func RequireAPIRole(roles ...models.Role) func(http.Handler) http.Handler {
	return requireRole(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
	}, roles)
}

func requireRole(anonymous http.HandlerFunc, roles []models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				anonymous(w, r)
				return
			}
			if len(roles) > 0 && !slices.Contains(roles, p.Role) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jnanayoni/internal/models"
	"jnanayoni/internal/utils"
)

type memUsers struct {
	byEmail map[string]*models.User
}

func (m *memUsers) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	u, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) CreateUser(_ context.Context, u *models.User) error {
	key := strings.ToLower(u.Email)
	if _, ok := m.byEmail[key]; ok {
		return utils.ErrConflict
	}
	u.ID = "usr_" + key
	m.byEmail[key] = u
	return nil
}

func newTestAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	a, err := NewAuthenticator(&memUsers{byEmail: map[string]*models.User{}})
	require.NoError(t, err)
	return a
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	a := newTestAuthenticator(t)

	_, err := a.Register(ctx, Registration{Email: "rahul@example.com", Name: "Rahul", Password: "secret123", Role: models.RoleStudent})
	require.NoError(t, err)

	t.Run("should log in with the right role", func(t *testing.T) {
		u, err := a.Login(ctx, "rahul@example.com", "secret123", models.RoleStudent)
		require.NoError(t, err)
		assert.Equal(t, "Rahul", u.Name)
	})

	t.Run("should not distinguish failure causes", func(t *testing.T) {
		_, err := a.Login(ctx, "rahul@example.com", "wrong", models.RoleStudent)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		_, err = a.Login(ctx, "rahul@example.com", "secret123", models.RoleLibraryAdmin)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		_, err = a.Login(ctx, "nobody@example.com", "secret123", models.RoleStudent)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("should validate registrations", func(t *testing.T) {
		cases := []Registration{
			{Email: "bad", Name: "X", Password: "secret123", Role: models.RoleStudent},
			{Email: "x@example.com", Name: "", Password: "secret123", Role: models.RoleStudent},
			{Email: "x@example.com", Name: "X", Password: "short", Role: models.RoleStudent},
			{Email: "x@example.com", Name: "X", Password: "secret123", Role: models.RoleLibraryAdmin},
			{Email: "x@example.com", Name: "X", Password: "secret123", Role: models.RoleGuest},
		}
		for _, reg := range cases {
			_, err := a.Register(ctx, reg)
			assert.ErrorIs(t, err, utils.ErrInvalid, "%+v", reg)
		}
	})
}

func TestSessions(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	s := NewSessions(key, time.Hour, "jny_session", false)
	p := Principal{UserID: "usr_1", Role: models.RoleLibraryAdmin, Name: "Admin", LibraryID: "lib_1"}

	token, exp, err := s.Issue(p)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	t.Run("should round-trip the principal", func(t *testing.T) {
		got, err := s.Parse(token)
		require.NoError(t, err)
		assert.Equal(t, p, got)
		assert.True(t, got.IsAdmin())
	})

	t.Run("should reject tokens signed with another key", func(t *testing.T) {
		other := NewSessions([]byte("ffffffffffffffffffffffffffffffff"), time.Hour, "jny_session", false)
		_, err := other.Parse(token)
		assert.ErrorIs(t, err, ErrSessionInvalid)
	})

	t.Run("should report expiry", func(t *testing.T) {
		later := NewSessions(key, time.Hour, "jny_session", false)
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := later.Parse(token)
		assert.ErrorIs(t, err, ErrSessionExpired)
	})

	t.Run("should report a missing token", func(t *testing.T) {
		_, err := s.Parse("")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestMiddleware(t *testing.T) {
	s := NewSessions([]byte("0123456789abcdef0123456789abcdef"), time.Hour, "jny_session", false)
	student, _, err := s.Issue(Principal{UserID: "usr_s", Role: models.RoleStudent, Name: "S"})
	require.NoError(t, err)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFrom(r.Context())
		w.Write([]byte(p.UserID))
	})
	page := s.Authenticate(RequireRole(models.RoleStudent)(ok))
	admin := s.Authenticate(RequireRole(models.RoleLibraryAdmin)(ok))
	api := s.Authenticate(BearerOnly(RequireAPIRole(models.RoleStudent)(ok)))

	t.Run("should redirect anonymous page requests", func(t *testing.T) {
		rec := httptest.NewRecorder()
		page.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/student/dashboard", nil))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/", rec.Header().Get("Location"))
	})

	t.Run("should reject anonymous api requests with 401", func(t *testing.T) {
		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/libraries", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("should accept the cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/student/dashboard", nil)
		req.AddCookie(&http.Cookie{Name: "jny_session", Value: student})
		rec := httptest.NewRecorder()
		page.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "usr_s", rec.Body.String())
	})

	t.Run("should accept a bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/libraries", nil)
		req.Header.Set("Authorization", "Bearer "+student)
		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("should ignore the session cookie on bearer-only routes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/libraries/lib_1/scan", nil)
		req.AddCookie(&http.Cookie{Name: "jny_session", Value: student})
		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("should prefer the bearer token over the cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/libraries", nil)
		req.Header.Set("Authorization", "Bearer "+student)
		req.AddCookie(&http.Cookie{Name: "jny_session", Value: "garbage"})
		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "usr_s", rec.Body.String())
	})

	t.Run("should forbid the wrong role", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/library/dashboard", nil)
		req.AddCookie(&http.Cookie{Name: "jny_session", Value: student})
		rec := httptest.NewRecorder()
		admin.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestCSRF(t *testing.T) {
	h := CSRFProtect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	post := func(cookie, field string) *httptest.ResponseRecorder {
		form := url.Values{CSRFField: {field}}
		req := httptest.NewRequest(http.MethodPost, "/logout", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if cookie != "" {
			req.AddCookie(&http.Cookie{Name: CSRFCookie, Value: cookie})
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, post("tok", "tok").Code)
	assert.Equal(t, http.StatusForbidden, post("tok", "other").Code)
	assert.Equal(t, http.StatusForbidden, post("", "").Code)

	t.Run("should read a multipart token from the action url without touching the body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/library/upload?"+CSRFField+"=tok", errReader{})
		req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")
		req.AddCookie(&http.Cookie{Name: CSRFCookie, Value: "tok"})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("should not take a url token for urlencoded forms", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/logout?"+CSRFField+"=tok", strings.NewReader(""))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(&http.Cookie{Name: CSRFCookie, Value: "tok"})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("should issue a cookie once", func(t *testing.T) {
		rec := httptest.NewRecorder()
		token, err := EnsureCSRFToken(rec, httptest.NewRequest(http.MethodGet, "/", nil), false)
		require.NoError(t, err)
		assert.NotEmpty(t, token)
		assert.Contains(t, rec.Header().Get("Set-Cookie"), CSRFCookie+"="+token)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookie, Value: token})
		rec = httptest.NewRecorder()
		again, err := EnsureCSRFToken(rec, req, false)
		require.NoError(t, err)
		assert.Equal(t, token, again)
		assert.Empty(t, rec.Header().Get("Set-Cookie"))
	})
}

// errReader fails every read.
type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("body must not be read") }

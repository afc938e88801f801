package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"jnanayoni/internal/auth"
	"jnanayoni/internal/i18n"
	"jnanayoni/internal/library"
	"jnanayoni/internal/models"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Service     *library.Service
	Auth        *auth.Authenticator
	Sessions    *auth.Sessions
	I18n        *i18n.Bundle
	DefaultLang language.Tag
	Logger      *zap.Logger
	// MaxUploadBytes bounds a single uploaded file. Request bodies may exceed it by the form overhead.
	MaxUploadBytes int64
	SecureCookies  bool
}

type server struct {
	Deps
	pages map[string]pageTemplate
}

// formOverhead is the request-body allowance on top of MaxUploadBytes for the other form fields.
const formOverhead = 1 << 20

func NewRouter(d Deps) (*mux.Router, error) {
	if d.Service == nil || d.Auth == nil || d.Sessions == nil || d.I18n == nil {
		return nil, errors.New("api: service, auth, sessions and i18n are required")
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.DefaultLang == language.Und {
		d.DefaultLang = i18n.English
	}
	pages, err := parsePages()
	if err != nil {
		return nil, err
	}
	s := &server{Deps: d, pages: pages}

	r := mux.NewRouter()
	r.Use(s.recoverer, d.Sessions.Authenticate, s.logRequests)

	r.HandleFunc("/health", s.health).Methods("GET")
	r.HandleFunc("/time", GetTimeHandler).Methods("GET")

	s.apiRoutes(r.PathPrefix("/api/v1").Subrouter())

	pagesRouter := r.NewRoute().Subrouter()
	pagesRouter.Use(s.withLanguage, s.limitBody, auth.CSRFProtect)

	pagesRouter.HandleFunc("/", s.landing).Methods("GET")
	pagesRouter.HandleFunc("/auth/{role:student|library}", s.loginPage).Methods("GET")
	pagesRouter.HandleFunc("/auth/{role:student|library}", s.loginSubmit).Methods("POST")
	pagesRouter.HandleFunc("/logout", s.logout).Methods("POST")

	student := pagesRouter.PathPrefix("/student").Subrouter()
	student.Use(auth.RequireRole(models.RoleStudent))
	student.HandleFunc("/dashboard", s.studentDashboard).Methods("GET")
	student.HandleFunc("/library/{id}", s.studentLibrary).Methods("GET")
	student.HandleFunc("/library/{id}/scan", s.studentScan).Methods("POST")
	student.HandleFunc("/notifications", s.notificationsPage).Methods("GET")
	student.HandleFunc("/notifications/{id}/read", s.markRead).Methods("POST")

	admin := pagesRouter.PathPrefix("/library").Subrouter()
	admin.Use(auth.RequireRole(models.RoleLibraryAdmin))
	admin.HandleFunc("/dashboard", s.adminDashboard).Methods("GET")
	admin.HandleFunc("/books", s.addBook).Methods("POST")
	admin.HandleFunc("/books/{id}/return", s.returnBook).Methods("POST")
	admin.HandleFunc("/books/{id}/qr.png", s.qrLabel).Methods("GET")
	admin.HandleFunc("/upload", s.upload).Methods("POST")
	admin.HandleFunc("/profile", s.updateProfile).Methods("POST")

	files := pagesRouter.PathPrefix("/files").Subrouter()
	files.Use(auth.RequireRole())
	files.HandleFunc("/{library}/{kind}/{name}", s.serveFile).Methods("GET")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})
	return r, nil
}

func (s *server) apiRoutes(r *mux.Router) {
	r.Use(auth.BearerOnly)
	r.HandleFunc("/login", s.apiLogin).Methods("POST")

	authed := r.NewRoute().Subrouter()
	authed.Use(auth.RequireAPIRole())
	authed.HandleFunc("/libraries", s.apiLibraries).Methods("GET")
	authed.HandleFunc("/notifications", s.apiNotifications).Methods("GET")
	authed.HandleFunc("/notifications/{id}/read", s.apiMarkRead).Methods("POST")

	reader := r.PathPrefix("/libraries/{id}").Subrouter()
	reader.Use(auth.RequireAPIRole(models.RoleStudent))
	reader.HandleFunc("/catalog", s.apiCatalog).Methods("GET")
	reader.HandleFunc("/scan", s.apiScan).Methods("POST")
	reader.HandleFunc("/mybooks", s.apiMyBooks).Methods("GET")

	admin := r.PathPrefix("/library").Subrouter()
	admin.Use(auth.RequireAPIRole(models.RoleLibraryAdmin))
	admin.HandleFunc("/records", s.apiRecords).Methods("GET")
	admin.HandleFunc("/books/{id}/return", s.apiReturn).Methods("POST")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not found")
	})
}

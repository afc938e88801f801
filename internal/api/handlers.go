package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"jnanayoni/internal/auth"
	"jnanayoni/internal/i18n"
	"jnanayoni/internal/models"
	"jnanayoni/internal/utils"
)

// health reports whether the database answers.
func (s *server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.Service.Ping(r.Context()); err != nil {
		s.Logger.Warn("health check failed", zap.Error(err))
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("OK"))
}

// GetTimeHandler returns the current server time in RFC3339 format
func GetTimeHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"time": time.Now().Format(time.RFC3339)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// apiError writes err in English. Unexpected failures are logged and reported generically.
func (s *server) apiError(w http.ResponseWriter, r *http.Request, err error) {
	status := utils.StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.Logger.Error("api request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	tr := s.I18n.Translator(i18n.English)
	writeJSONError(w, status, tr.T(utils.MessageFor(err, "errInternal")))
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

func (s *server) apiLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request")
		return
	}
	role, ok := models.ParseRole(req.Role)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "invalid role")
		return
	}
	user, err := s.Auth.Login(r.Context(), req.Email, req.Password, role)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeJSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	token, exp, err := s.Sessions.Issue(auth.PrincipalFor(user))
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	s.Logger.Info("api login", zap.String("user", user.ID), zap.String("role", string(user.Role)))
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: exp, User: user})
}

// apiLibraries lists a student's enrolled libraries, or the admin's own library.
func (s *server) apiLibraries(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if p.IsAdmin() {
		lib, stats, err := s.Service.Dashboard(r.Context(), p)
		if err != nil {
			s.apiError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"libraries": []*models.Library{lib}, "stats": stats})
		return
	}
	libs, err := s.Service.EnrolledLibraries(r.Context(), p)
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	if libs == nil {
		libs = []*models.Library{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"libraries": libs})
}

func (s *server) apiCatalog(w http.ResponseWriter, r *http.Request) {
	books, err := s.Service.SearchCatalog(r.Context(), principal(r), mux.Vars(r)["id"], r.URL.Query().Get("q"))
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"books": books})
}

type scanRequest struct {
	Code string `json:"code"`
}

func (s *server) apiScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request")
		return
	}
	res, err := s.Service.IssueByScan(r.Context(), principal(r), mux.Vars(r)["id"], req.Code)
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) apiMyBooks(w http.ResponseWriter, r *http.Request) {
	loans, err := s.Service.MyBooks(r.Context(), principal(r), mux.Vars(r)["id"])
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"loans": loans})
}

func (s *server) apiNotifications(w http.ResponseWriter, r *http.Request) {
	notes, err := s.Service.Notifications(r.Context(), principal(r))
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	if notes == nil {
		notes = []*models.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notes})
}

func (s *server) apiMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := s.Service.MarkRead(r.Context(), principal(r), mux.Vars(r)["id"]); err != nil {
		s.apiError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) apiRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.Service.IssuedRecords(r.Context(), principal(r))
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *server) apiReturn(w http.ResponseWriter, r *http.Request) {
	res, err := s.Service.ReturnBook(r.Context(), principal(r), mux.Vars(r)["id"])
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

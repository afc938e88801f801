package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"jnanayoni/internal/auth"
	"jnanayoni/internal/i18n"
	"jnanayoni/internal/library"
	"jnanayoni/internal/models"
	"jnanayoni/internal/utils"
)

func dashboardPath(role models.Role) string {
	if role == models.RoleLibraryAdmin {
		return "/library/dashboard"
	}
	return "/student/dashboard"
}

func (s *server) landing(w http.ResponseWriter, r *http.Request) {
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		http.Redirect(w, r, dashboardPath(p.Role), http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "landing", "welcome", nil)
}

type loginView struct {
	Slug  string
	Email string
	Role  models.Role
}

func loginRole(slug string) models.Role {
	if slug == "library" {
		return models.RoleLibraryAdmin
	}
	return models.RoleStudent
}

func loginHeading(role models.Role) string {
	if role == models.RoleLibraryAdmin {
		return "libraryLogin"
	}
	return "readerLogin"
}

func (s *server) loginPage(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["role"]
	role := loginRole(slug)
	if p, ok := auth.PrincipalFrom(r.Context()); ok && p.Role == role {
		http.Redirect(w, r, dashboardPath(role), http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "login", loginHeading(role), &loginView{Slug: slug, Role: role})
}

func (s *server) loginSubmit(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["role"]
	role := loginRole(slug)
	email := strings.TrimSpace(r.FormValue("email"))

	user, err := s.Auth.Login(r.Context(), email, r.FormValue("password"), role)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		p, perr := s.newPage(w, r, loginHeading(role), &loginView{Slug: slug, Role: role, Email: email})
		if perr != nil {
			s.renderError(w, r, perr)
			return
		}
		p.Error = p.L.T("errInvalidCredentials")
		p.linkLanguagesTo(&url.URL{Path: r.URL.Path})
		s.renderPage(w, http.StatusUnauthorized, "login", p)
		return
	}
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	token, exp, err := s.Sessions.Issue(auth.PrincipalFor(user))
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	s.Sessions.SetCookie(w, token, exp)
	s.Logger.Info("login", zap.String("user", user.ID), zap.String("role", string(user.Role)))
	http.Redirect(w, r, dashboardPath(user.Role), http.StatusSeeOther)
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	s.Sessions.ClearCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *server) studentDashboard(w http.ResponseWriter, r *http.Request) {
	libs, err := s.Service.EnrolledLibraries(r.Context(), principal(r))
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "student_dashboard", "myLibraries", libs)
}

type tabLink struct {
	Label  string
	URL    string
	Active bool
}

func tabs(tr *i18n.Translator, base, active string, keys [][2]string) []tabLink {
	out := make([]tabLink, 0, len(keys))
	for _, k := range keys {
		out = append(out, tabLink{
			Label:  tr.T(k[1]),
			URL:    base + "?" + url.Values{"tab": {k[0]}}.Encode(),
			Active: k[0] == active,
		})
	}
	return out
}

var studentTabs = [][2]string{
	{"home", "home"},
	{"catalog", "catalog"},
	{"issue", "issueBook"},
	{"mybooks", "myBooks"},
	{"history", "history"},
	{"digital", "digitalLibrary"},
}

var adminTabs = [][2]string{
	{"records", "records"},
	{"books", "books"},
	{"students", "students"},
	{"upload", "uploadResource"},
	{"profile", "profile"},
}

func activeTab(r *http.Request, keys [][2]string) string {
	tab := r.URL.Query().Get("tab")
	for _, k := range keys {
		if k[0] == tab {
			return tab
		}
	}
	return keys[0][0]
}

type scanView struct {
	OK      bool
	Message string
	Detail  string
	Book    *models.Book
}

type portalView struct {
	*library.Portal
	Tab     string
	Tabs    []tabLink
	Query   string
	Books   []*models.Book
	Loans   []library.Loan
	History []models.Transaction
	Digital *library.Digital
	Scan    *scanView
}

func (s *server) studentLibrary(w http.ResponseWriter, r *http.Request) {
	s.showPortal(w, r, activeTab(r, studentTabs), nil, "")
}

func (s *server) showPortal(w http.ResponseWriter, r *http.Request, tab string, scan *scanView, errKey string) {
	ctx, p, id := r.Context(), principal(r), mux.Vars(r)["id"]
	portal, err := s.Service.Portal(ctx, p, id)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	tr := s.translator(r)
	view := &portalView{
		Portal: portal,
		Tab:    tab,
		Tabs:   tabs(tr, "/student/library/"+id, tab, studentTabs),
		Query:  r.URL.Query().Get("q"),
		Scan:   scan,
	}
	switch tab {
	case "catalog":
		view.Books, err = s.Service.SearchCatalog(ctx, p, id, view.Query)
	case "mybooks":
		view.Loans, err = s.Service.MyBooks(ctx, p, id)
	case "history":
		view.History, err = s.Service.History(ctx, p, id)
	case "digital":
		view.Digital, err = s.Service.DigitalResources(ctx, p, id)
	}
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	page, err := s.newPage(w, r, "dashboard", view)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	page.Title = portal.Library.Name
	if r.Method != http.MethodGet {
		page.linkLanguagesTo(&url.URL{Path: "/student/library/" + id, RawQuery: url.Values{"tab": {tab}}.Encode()})
	}
	if errKey != "" {
		page.Error = s.errorText(tr, errKey)
	}
	s.renderPage(w, http.StatusOK, "student_library", page)
}

func (s *server) studentScan(w http.ResponseWriter, r *http.Request) {
	res, err := s.Service.IssueByScan(r.Context(), principal(r), mux.Vars(r)["id"], r.FormValue("code"))
	if err != nil {
		if utils.MessageFor(err, "") == library.MsgTampered {
			s.showPortal(w, r, "issue", nil, library.MsgTampered)
			return
		}
		s.renderError(w, r, err)
		return
	}
	s.showPortal(w, r, "issue", s.describeScan(s.translator(r), res), "")
}

func (s *server) describeScan(tr *i18n.Translator, res *library.ScanResult) *scanView {
	v := &scanView{Book: res.Book}
	switch res.Outcome {
	case library.OutcomeIssued:
		v.OK = true
		v.Message = tr.T("bookIssued")
		if res.Transaction != nil {
			v.Detail = tr.T("bookIssuedDue", res.Transaction.IssueDate.Format("02 Jan 2006"), res.Transaction.DueDate.Format("02 Jan 2006"))
		}
	case library.OutcomeAlreadyYours:
		v.Message = tr.T("outcomeAlreadyYours")
	case library.OutcomeLimitReached:
		v.Message = tr.T("outcomeLimitReached", s.Service.Loan().MaxActive)
	case library.OutcomeUnavailable:
		switch res.Reason {
		case library.ReasonWrongLibrary:
			v.Message = tr.T("outcomeWrongLibrary")
		case library.ReasonDigital:
			v.Message = tr.T("outcomeDigital")
		default:
			v.Message = tr.T("outcomeUnavailable")
		}
	default:
		v.Message = tr.T("outcomeUnknown")
	}
	return v
}

func (s *server) notificationsPage(w http.ResponseWriter, r *http.Request) {
	notes, err := s.Service.Notifications(r.Context(), principal(r))
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "notifications", "notifications", notes)
}

func (s *server) markRead(w http.ResponseWriter, r *http.Request) {
	if err := s.Service.MarkRead(r.Context(), principal(r), mux.Vars(r)["id"]); err != nil {
		s.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/student/notifications", http.StatusSeeOther)
}

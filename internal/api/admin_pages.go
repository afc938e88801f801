package api

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"

	"jnanayoni/internal/library"
	"jnanayoni/internal/models"
	"jnanayoni/internal/qr"
	"jnanayoni/internal/utils"
)

// multipartMemory is how much of a multipart form is held in memory before spilling to disk.
const multipartMemory = 8 << 20

type adminView struct {
	Library  *models.Library
	Stats    *library.DashboardStats
	Tab      string
	Tabs     []tabLink
	Query    string
	Records  []library.IssuedRecord
	Books    []*models.Book
	History  []models.StudentHistory
	Enrolled []*models.StudentSummary
	Kinds    []models.ResourceKind
	Types    []models.BookType
}

func (s *server) adminDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, p := r.Context(), principal(r)
	lib, stats, err := s.Service.Dashboard(ctx, p)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	tab := activeTab(r, adminTabs)
	view := &adminView{
		Library: lib,
		Stats:   stats,
		Tab:     tab,
		Tabs:    tabs(s.translator(r), "/library/dashboard", tab, adminTabs),
		Query:   r.URL.Query().Get("q"),
	}
	switch tab {
	case "records":
		view.Records, err = s.Service.IssuedRecords(ctx, p)
	case "books":
		view.Types = []models.BookType{models.BookPhysical, models.BookDigital, models.BookNewspaper}
		view.Books, err = s.Service.SearchInventory(ctx, p, view.Query)
	case "students":
		view.History, err = s.Service.Students(ctx, p, view.Query)
		if err == nil {
			view.Enrolled, err = s.Service.EnrolledStudents(ctx, p)
		}
	case "upload":
		view.Kinds = []models.ResourceKind{models.ResourceEPaper, models.ResourcePDFBook, models.ResourcePhoto}
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
	page.Title = lib.Name
	s.renderPage(w, http.StatusOK, "library_dashboard", page)
}

// backToTab redirects to a dashboard tab, carrying either a confirmation or the error's message key.
func backToTab(w http.ResponseWriter, r *http.Request, tab string, err error, flash ...string) {
	q := url.Values{"tab": {tab}}
	switch {
	case err != nil:
		q.Set("error", utils.MessageFor(err, "errInvalid"))
	case len(flash) > 0:
		q.Set("flash", flash[0])
		if len(flash) > 1 {
			q.Set("n", flash[1])
		}
	}
	redirectWith(w, r, "/library/dashboard", q)
}

// formError sends validation failures back to the form tab. Anything else is rendered on the error page.
func (s *server) formError(w http.ResponseWriter, r *http.Request, tab string, err error) {
	if status := utils.StatusFor(err); status < http.StatusInternalServerError && status != http.StatusForbidden && status != http.StatusNotFound {
		backToTab(w, r, tab, err)
		return
	}
	s.renderError(w, r, err)
}

// parseMultipart parses the upload form. A body that outgrows the limit while streaming
// maps onto the too-large message.
func parseMultipart(r *http.Request) error {
	err := r.ParseMultipartForm(multipartMemory)
	if err == nil || errors.Is(err, http.ErrNotMultipart) {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return utils.New(utils.ErrInvalid, library.MsgTooLarge)
	}
	return utils.New(utils.ErrInvalid, library.MsgInvalid)
}

// formFile returns the named upload, or nil when the field was left empty.
func formFile(r *http.Request, field string) (*library.FileInput, io.Closer, error) {
	f, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, utils.New(utils.ErrInvalid, library.MsgInvalid)
	}
	if hdr.Size == 0 {
		f.Close()
		return nil, nil, nil
	}
	return &library.FileInput{Name: hdr.Filename, Reader: f}, f, nil
}

func (s *server) addBook(w http.ResponseWriter, r *http.Request) {
	if err := parseMultipart(r); err != nil {
		backToTab(w, r, "books", err)
		return
	}
	defer cleanupForm(r.MultipartForm)
	cover, closer, err := formFile(r, "cover")
	if err != nil {
		backToTab(w, r, "books", err)
		return
	}
	if closer != nil {
		defer closer.Close()
	}
	in := library.BookInput{
		Title:  r.FormValue("title"),
		Author: r.FormValue("author"),
		ISBN:   r.FormValue("isbn"),
		Type:   models.BookType(r.FormValue("type")),
		Link:   r.FormValue("link"),
	}
	if _, err := s.Service.AddBook(r.Context(), principal(r), in, cover); err != nil {
		s.formError(w, r, "books", err)
		return
	}
	backToTab(w, r, "books", nil, "bookAdded")
}

func (s *server) returnBook(w http.ResponseWriter, r *http.Request) {
	res, err := s.Service.ReturnBook(r.Context(), principal(r), mux.Vars(r)["id"])
	if err != nil {
		s.formError(w, r, "records", err)
		return
	}
	backToTab(w, r, "records", nil, "bookReturned", strconv.Itoa(res.Fine))
}

func (s *server) qrLabel(w http.ResponseWriter, r *http.Request) {
	book, err := s.Service.Book(r.Context(), principal(r), mux.Vars(r)["id"])
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	size := qr.DefaultLabelSize
	if v, err := strconv.Atoi(r.URL.Query().Get("size")); err == nil && v >= 64 && v <= 1024 {
		size = v
	}
	png, err := s.Service.Codec().Label(book.ID, size)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", `inline; filename="`+book.ID+`.png"`)
	w.Write(png)
}

func (s *server) upload(w http.ResponseWriter, r *http.Request) {
	if err := parseMultipart(r); err != nil {
		backToTab(w, r, "upload", err)
		return
	}
	defer cleanupForm(r.MultipartForm)
	file, closer, err := formFile(r, "file")
	if err != nil {
		backToTab(w, r, "upload", err)
		return
	}
	if file == nil {
		backToTab(w, r, "upload", utils.New(utils.ErrInvalid, library.MsgInvalid))
		return
	}
	defer closer.Close()
	in := library.UploadInput{
		Kind:   models.ResourceKind(r.FormValue("kind")),
		Title:  r.FormValue("title"),
		File:   *file,
		Notify: r.FormValue("notify") != "",
	}
	if _, err := s.Service.Upload(r.Context(), principal(r), in); err != nil {
		s.formError(w, r, "upload", err)
		return
	}
	backToTab(w, r, "upload", nil, "uploadSaved")
}

func (s *server) updateProfile(w http.ResponseWriter, r *http.Request) {
	upd := models.ProfileUpdate{
		Description:  r.FormValue("description"),
		About:        r.FormValue("about"),
		Address:      r.FormValue("address"),
		ContactPhone: r.FormValue("contact_phone"),
		ContactEmail: r.FormValue("contact_email"),
		Hours:        r.FormValue("hours"),
	}
	if _, err := s.Service.UpdateProfile(r.Context(), principal(r), upd); err != nil {
		s.formError(w, r, "profile", err)
		return
	}
	backToTab(w, r, "profile", nil, "profileSaved")
}

func (s *server) serveFile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	kind, ok := models.ParseResourceKind(vars["kind"])
	if !ok {
		s.renderError(w, r, utils.New(utils.ErrNotFound, library.MsgNotFound))
		return
	}
	res, f, err := s.Service.OpenResource(r.Context(), vars["library"], kind, vars["name"])
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, res.FileName, res.UploadedAt, f)
}

func cleanupForm(form *multipart.Form) {
	if form != nil {
		form.RemoveAll()
	}
}

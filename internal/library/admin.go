package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"jnanayoni/internal/auth"
	"jnanayoni/internal/files"
	"jnanayoni/internal/models"
	"jnanayoni/internal/store"
	"jnanayoni/internal/utils"
)

// DashboardStats are the counters on the admin dashboard.
type DashboardStats struct {
	TotalBooks       int `json:"total_books"`
	TotalIssued      int `json:"total_issued"`
	Overdue          int `json:"overdue"`
	EnrolledStudents int `json:"enrolled_students"`
	PendingFines     int `json:"pending_fines"`
}

// IssuedRecord is an active loan as listed for admins.
type IssuedRecord struct {
	TransactionID string    `json:"transaction_id"`
	BookID        string    `json:"book_id"`
	BookTitle     string    `json:"book_title"`
	StudentID     string    `json:"student_id"`
	StudentName   string    `json:"student_name"`
	IssueDate     time.Time `json:"issue_date"`
	DueDate       time.Time `json:"due_date"`
	Overdue       bool      `json:"overdue"`
	Fine          int       `json:"fine"`
}

// BookInput is the add-book form.
type BookInput struct {
	Title  string
	Author string
	ISBN   string
	Type   models.BookType
	Link   string
}

// FileInput is an uploaded file stream with its client-side name.
type FileInput struct {
	Name   string
	Reader io.Reader
}

// UploadInput is the resource upload form.
type UploadInput struct {
	Kind   models.ResourceKind
	Title  string
	File   FileInput
	Notify bool
}

// ReturnResult reports a completed return.
type ReturnResult struct {
	Book *models.Book `json:"book"`
	Fine int          `json:"fine"`
}

// Dashboard returns the admin's library counters.
func (s *Service) Dashboard(ctx context.Context, p auth.Principal) (*models.Library, *DashboardStats, error) {
	lib, err := s.adminLibrary(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	books, err := s.repo.ListBooks(ctx, lib.ID)
	if err != nil {
		return nil, nil, err
	}
	students, err := s.repo.ListStudents(ctx, lib.ID)
	if err != nil {
		return nil, nil, err
	}
	records, err := s.activeRecords(ctx, lib.ID)
	if err != nil {
		return nil, nil, err
	}

	stats := &DashboardStats{TotalBooks: len(books), EnrolledStudents: len(students)}
	for _, b := range books {
		if b.Status == models.BookIssued {
			stats.TotalIssued++
		}
	}
	for _, r := range records {
		if r.Overdue {
			stats.Overdue++
			stats.PendingFines += r.Fine
		}
	}
	return lib, stats, nil
}

// IssuedRecords lists the active loans of the admin's library, earliest due first.
func (s *Service) IssuedRecords(ctx context.Context, p auth.Principal) ([]IssuedRecord, error) {
	lib, err := s.adminLibrary(ctx, p)
	if err != nil {
		return nil, err
	}
	return s.activeRecords(ctx, lib.ID)
}

func (s *Service) activeRecords(ctx context.Context, libraryID string) ([]IssuedRecord, error) {
	txs, err := s.repo.ListTransactions(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var out []IssuedRecord
	for _, t := range txs {
		if t.Status != models.TxActive {
			continue
		}
		out = append(out, IssuedRecord{
			TransactionID: t.ID,
			BookID:        t.BookID,
			BookTitle:     t.BookTitle,
			StudentID:     t.StudentID,
			StudentName:   t.StudentName,
			IssueDate:     t.IssueDate,
			DueDate:       t.DueDate,
			Overdue:       now.After(t.DueDate),
			Fine:          s.Fine(t.DueDate, now),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

// AddBook adds a book to the admin's library, storing cover when given.
func (s *Service) AddBook(ctx context.Context, p auth.Principal, in BookInput, cover *FileInput) (*models.Book, error) {
	lib, err := s.adminLibrary(ctx, p)
	if err != nil {
		return nil, err
	}
	in.Title, in.Author, in.ISBN = strings.TrimSpace(in.Title), strings.TrimSpace(in.Author), strings.TrimSpace(in.ISBN)
	if in.Title == "" || in.Author == "" || in.ISBN == "" {
		return nil, utils.New(utils.ErrInvalid, MsgRequiredFields)
	}
	switch in.Type {
	case "":
		in.Type = models.BookPhysical
	case models.BookPhysical, models.BookDigital, models.BookNewspaper:
	default:
		return nil, utils.New(utils.ErrInvalid, MsgInvalid)
	}

	book := &models.Book{
		LibraryID: lib.ID,
		Title:     in.Title,
		Author:    in.Author,
		ISBN:      in.ISBN,
		Status:    models.BookAvailable,
		Type:      in.Type,
		Link:      strings.TrimSpace(in.Link),
		CreatedAt: s.now(),
	}

	var coverRes *models.Resource
	if cover != nil && cover.Reader != nil {
		coverRes, err = s.store(lib.ID, models.ResourceCover, in.Title, *cover)
		if err != nil {
			return nil, err
		}
		book.CoverURL = coverRes.URL()
	}

	err = s.repo.WithTx(ctx, func(tx *store.Repository) error {
		if coverRes != nil {
			if err := tx.CreateResource(ctx, coverRes); err != nil {
				return err
			}
		}
		return tx.CreateBook(ctx, book)
	})
	if err != nil {
		if coverRes != nil {
			s.discard(coverRes)
		}
		return nil, err
	}
	s.logger.Info("book added", zap.String("book", book.ID), zap.String("library", lib.ID), zap.String("title", book.Title))
	return book, nil
}

// SearchInventory returns the admin's books whose title, author or borrower name contains term.
func (s *Service) SearchInventory(ctx context.Context, p auth.Principal, term string) ([]*models.Book, error) {
	lib, err := s.adminLibrary(ctx, p)
	if err != nil {
		return nil, err
	}
	books, err := s.repo.ListBooks(ctx, lib.ID)
	if err != nil {
		return nil, err
	}
	term = normalizeTerm(term)
	if term == "" {
		return books, nil
	}
	out := books[:0]
	for _, b := range books {
		if contains(b.Title, term) || contains(b.Author, term) || contains(b.IssuedToName, term) {
			out = append(out, b)
		}
	}
	return out, nil
}

// Book returns one of the admin's books.
func (s *Service) Book(ctx context.Context, p auth.Principal, bookID string) (*models.Book, error) {
	lib, err := s.adminLibrary(ctx, p)
	if err != nil {
		return nil, err
	}
	book, err := s.repo.GetBook(ctx, bookID)
	if err != nil || book.LibraryID != lib.ID {
		if err == nil || errors.Is(err, utils.ErrNotFound) {
			return nil, utils.New(utils.ErrNotFound, MsgNotFound)
		}
		return nil, err
	}
	return book, nil
}

// ReturnBook takes an issued book back and closes its loan with the accrued fine.
func (s *Service) ReturnBook(ctx context.Context, p auth.Principal, bookID string) (*ReturnResult, error) {
	lib, err := s.adminLibrary(ctx, p)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var result *ReturnResult
	err = s.repo.WithTx(ctx, func(tx *store.Repository) error {
		book, err := tx.GetBook(ctx, bookID)
		if err != nil || book.LibraryID != lib.ID {
			if err == nil || errors.Is(err, utils.ErrNotFound) {
				return utils.New(utils.ErrNotFound, MsgNotFound)
			}
			return err
		}
		if book.Status != models.BookIssued {
			return utils.New(utils.ErrConflict, MsgConflict)
		}

		fine := 0
		active, err := tx.ActiveTransactionForBook(ctx, bookID)
		switch {
		case err == nil:
			fine = s.Fine(active.DueDate, now)
			if err := tx.CloseTransaction(ctx, active.ID, now, fine); err != nil {
				return err
			}
		case errors.Is(err, utils.ErrNotFound):
			if book.DueDate != nil {
				fine = s.Fine(*book.DueDate, now)
			}
		default:
			return err
		}
		if err := tx.SetBookAvailable(ctx, bookID); err != nil {
			return err
		}
		book.Status = models.BookAvailable
		book.IssuedTo, book.IssuedToName, book.DueDate = "", "", nil
		result = &ReturnResult{Book: book, Fine: fine}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("book returned", zap.String("book", bookID), zap.String("library", lib.ID), zap.Int("fine", result.Fine))
	return result, nil
}

// Students groups the library's transactions by student in first-seen order, keeping
// students whose name contains term.
func (s *Service) Students(ctx context.Context, p auth.Principal, term string) ([]models.StudentHistory, error) {
	lib, err := s.adminLibrary(ctx, p)
	if err != nil {
		return nil, err
	}
	txs, err := s.repo.ListTransactions(ctx, lib.ID)
	if err != nil {
		return nil, err
	}
	return GroupByStudent(txs, term), nil
}

// GroupByStudent groups txs by student id in first-seen order and filters by name.
func GroupByStudent(txs []models.Transaction, term string) []models.StudentHistory {
	term = normalizeTerm(term)
	index := map[string]int{}
	var out []models.StudentHistory
	for _, t := range txs {
		i, ok := index[t.StudentID]
		if !ok {
			i = len(out)
			index[t.StudentID] = i
			out = append(out, models.StudentHistory{ID: t.StudentID, Name: t.StudentName})
		}
		out[i].History = append(out[i].History, t)
	}
	if term == "" {
		return out
	}
	filtered := out[:0]
	for _, h := range out {
		if contains(h.Name, term) {
			filtered = append(filtered, h)
		}
	}
	return filtered
}

// EnrolledStudents lists the students enrolled at the admin's library.
func (s *Service) EnrolledStudents(ctx context.Context, p auth.Principal) ([]*models.StudentSummary, error) {
	lib, err := s.adminLibrary(ctx, p)
	if err != nil {
		return nil, err
	}
	return s.repo.ListStudents(ctx, lib.ID)
}

// Upload stores a resource for the admin's library. PDFs also get a catalog entry. Photos
// join the library gallery and the newest one becomes the library image. Notify tells every
// enrolled student.
func (s *Service) Upload(ctx context.Context, p auth.Principal, in UploadInput) (*models.Resource, error) {
	lib, err := s.adminLibrary(ctx, p)
	if err != nil {
		return nil, err
	}
	kind, ok := models.ParseResourceKind(string(in.Kind))
	if !ok || in.File.Reader == nil {
		return nil, utils.New(utils.ErrInvalid, MsgInvalid)
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = strings.TrimSpace(in.File.Name)
	}
	if title == "" {
		return nil, utils.New(utils.ErrInvalid, MsgInvalid)
	}

	res, err := s.store(lib.ID, kind, title, in.File)
	if err != nil {
		return nil, err
	}

	now := s.now()
	notified := 0
	err = s.repo.WithTx(ctx, func(tx *store.Repository) error {
		if err := tx.CreateResource(ctx, res); err != nil {
			return err
		}
		switch kind {
		case models.ResourceEPaper, models.ResourcePDFBook:
			entry := &models.Book{
				LibraryID: lib.ID,
				Title:     title,
				Author:    lib.Name,
				ISBN:      models.NoISBN,
				Status:    models.BookAvailable,
				Type:      models.BookDigital,
				Link:      res.URL(),
				CreatedAt: now,
			}
			if kind == models.ResourceEPaper {
				entry.Type = models.BookNewspaper
			}
			if err := tx.CreateBook(ctx, entry); err != nil {
				return err
			}
		case models.ResourcePhoto:
			if err := tx.UpdateLibraryProfile(ctx, lib.ID, models.ProfileUpdate{ImageURL: res.URL()}); err != nil {
				return err
			}
		}
		if !in.Notify {
			return nil
		}
		noteTitle, message := uploadNotice(kind, title, lib.Name)
		if noteTitle == "" {
			return nil
		}
		students, err := tx.ListStudents(ctx, lib.ID)
		if err != nil {
			return err
		}
		for _, st := range students {
			n := &models.Notification{
				UserID:    st.ID,
				LibraryID: lib.ID,
				Title:     noteTitle,
				Message:   message,
				Date:      now,
				Type:      models.NotifyInfo,
				Ref:       res.ID,
			}
			if err := tx.CreateNotification(ctx, n); err != nil {
				return err
			}
			notified++
		}
		return nil
	})
	if err != nil {
		s.discard(res)
		return nil, err
	}
	s.logger.Info("upload stored",
		zap.String("resource", res.ID),
		zap.String("library", lib.ID),
		zap.String("kind", string(kind)),
		zap.Int64("size", res.Size),
		zap.Int("notified", notified))
	return res, nil
}

func uploadNotice(kind models.ResourceKind, title, libraryName string) (string, string) {
	switch kind {
	case models.ResourceEPaper:
		return "Today's ePaper Available", fmt.Sprintf("%s for today has been uploaded by %s.", title, libraryName)
	case models.ResourcePDFBook:
		return "New PDF Book Available", fmt.Sprintf("%s has been added to the digital library of %s.", title, libraryName)
	case models.ResourcePhoto:
		return "New Library Photos", fmt.Sprintf("%s shared new photos.", libraryName)
	}
	return "", ""
}

// UpdateProfile changes the non-empty fields of the admin's library profile.
func (s *Service) UpdateProfile(ctx context.Context, p auth.Principal, upd models.ProfileUpdate) (*models.Library, error) {
	lib, err := s.adminLibrary(ctx, p)
	if err != nil {
		return nil, err
	}
	upd = models.ProfileUpdate{
		Description:  strings.TrimSpace(upd.Description),
		About:        strings.TrimSpace(upd.About),
		Address:      strings.TrimSpace(upd.Address),
		ContactPhone: strings.TrimSpace(upd.ContactPhone),
		ContactEmail: strings.TrimSpace(upd.ContactEmail),
		Hours:        strings.TrimSpace(upd.Hours),
		ImageURL:     strings.TrimSpace(upd.ImageURL),
	}
	if err := s.repo.UpdateLibraryProfile(ctx, lib.ID, upd); err != nil {
		return nil, err
	}
	s.logger.Info("library profile updated", zap.String("library", lib.ID))
	return s.repo.GetLibrary(ctx, lib.ID)
}

// OpenResource opens an uploaded file for download by any signed-in user.
func (s *Service) OpenResource(ctx context.Context, libraryID string, kind models.ResourceKind, name string) (*models.Resource, io.ReadSeekCloser, error) {
	res, err := s.repo.GetResource(ctx, libraryID, name)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, nil, utils.New(utils.ErrNotFound, MsgNotFound)
		}
		return nil, nil, err
	}
	if res.Kind != kind {
		return nil, nil, utils.New(utils.ErrNotFound, MsgNotFound)
	}
	f, err := s.files.Open(libraryID, kind, name)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", name, err)
	}
	return res, f, nil
}

// store writes an upload to disk and returns its unsaved resource record.
func (s *Service) store(libraryID string, kind models.ResourceKind, title string, in FileInput) (*models.Resource, error) {
	stored, err := s.files.Save(kind, libraryID, in.Name, in.Reader)
	if err != nil {
		switch {
		case errors.Is(err, files.ErrTooLarge):
			return nil, &utils.AppError{Code: http.StatusRequestEntityTooLarge, Message: MsgTooLarge, Err: err}
		case errors.Is(err, files.ErrUnsupportedType):
			return nil, &utils.AppError{Code: http.StatusUnsupportedMediaType, Message: MsgUnsupportedType, Err: err}
		case errors.Is(err, files.ErrBadName):
			return nil, &utils.AppError{Code: http.StatusBadRequest, Message: MsgInvalid, Err: err}
		}
		return nil, err
	}
	id, err := store.NewID("res")
	if err != nil {
		return nil, err
	}
	return &models.Resource{
		ID:          id,
		LibraryID:   libraryID,
		Kind:        kind,
		Title:       title,
		FileName:    stored.FileName,
		ContentType: stored.ContentType,
		Size:        stored.Size,
		UploadedAt:  s.now(),
	}, nil
}

func (s *Service) discard(res *models.Resource) {
	if err := s.files.Remove(res.LibraryID, res.Kind, res.FileName); err != nil {
		s.logger.Error("removing orphaned upload", zap.String("file", res.FileName), zap.Error(err))
	}
}

package library

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"jnanayoni/internal/auth"
	"jnanayoni/internal/models"
	"jnanayoni/internal/qr"
	"jnanayoni/internal/store"
	"jnanayoni/internal/utils"
)

// PortalStats are the counters on a student's library home tab.
type PortalStats struct {
	MyIssued  int `json:"my_issued"`
	Digital   int `json:"digital"`
	Available int `json:"available"`
	Overdue   int `json:"overdue"`
}

// Portal is a library as seen by an enrolled student. Photos is the library's gallery,
// newest first.
type Portal struct {
	Library *models.Library    `json:"library"`
	Stats   PortalStats        `json:"stats"`
	Photos  []*models.Resource `json:"photos"`
}

// Loan is a book currently held by a student.
type Loan struct {
	Book    *models.Book `json:"book"`
	Overdue bool         `json:"overdue"`
	Fine    int          `json:"fine"`
}

// Digital lists a library's online reading material.
type Digital struct {
	Books     []*models.Book     `json:"books"`
	Resources []*models.Resource `json:"resources"`
}

// ScanOutcome is the result category of a QR scan.
type ScanOutcome string

const (
	OutcomeIssued       ScanOutcome = "ISSUED"
	OutcomeUnavailable  ScanOutcome = "UNAVAILABLE"
	OutcomeAlreadyYours ScanOutcome = "ALREADY_YOURS"
	OutcomeUnknown      ScanOutcome = "UNKNOWN"
	OutcomeLimitReached ScanOutcome = "LIMIT_REACHED"
)

// Reasons qualifying an OutcomeUnavailable.
const (
	ReasonIssued       = "issued"
	ReasonWrongLibrary = "wrong_library"
	ReasonDigital      = "digital"
)

// ScanResult reports what a scan did. Book is nil for OutcomeUnknown.
type ScanResult struct {
	Outcome     ScanOutcome         `json:"outcome"`
	Reason      string              `json:"reason,omitempty"`
	Book        *models.Book        `json:"book,omitempty"`
	Transaction *models.Transaction `json:"transaction,omitempty"`
}

// EnrolledLibraries returns the libraries of a student.
func (s *Service) EnrolledLibraries(ctx context.Context, p auth.Principal) ([]*models.Library, error) {
	if p.Role != models.RoleStudent {
		return nil, utils.New(utils.ErrForbidden, MsgForbidden)
	}
	return s.repo.EnrolledLibraries(ctx, p.UserID)
}

// Portal returns a library with the student's counters.
func (s *Service) Portal(ctx context.Context, p auth.Principal, libraryID string) (*Portal, error) {
	lib, err := s.enrolledLibrary(ctx, p, libraryID)
	if err != nil {
		return nil, err
	}
	books, err := s.repo.ListBooks(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	resources, err := s.repo.ListResources(ctx, libraryID, models.ResourceEPaper, models.ResourcePDFBook)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var stats PortalStats
	for _, b := range books {
		switch {
		case b.IsDigital():
			stats.Digital++
		case b.Status == models.BookAvailable:
			stats.Available++
		}
		if b.Status == models.BookIssued && b.IssuedTo == p.UserID {
			stats.MyIssued++
			if b.Overdue(now) {
				stats.Overdue++
			}
		}
	}
	stats.Digital += len(unlinked(resources, books))
	photos, err := s.repo.ListResources(ctx, libraryID, models.ResourcePhoto)
	if err != nil {
		return nil, err
	}
	return &Portal{Library: lib, Stats: stats, Photos: photos}, nil
}

// unlinked returns the uploads that no catalog entry links to.
func unlinked(resources []*models.Resource, books []*models.Book) []*models.Resource {
	linked := make(map[string]bool, len(books))
	for _, b := range books {
		if b.Link != "" {
			linked[b.Link] = true
		}
	}
	var out []*models.Resource
	for _, r := range resources {
		if !linked[r.URL()] {
			out = append(out, r)
		}
	}
	return out
}

// SearchCatalog returns the library's physical books whose title or author contains term.
func (s *Service) SearchCatalog(ctx context.Context, p auth.Principal, libraryID, term string) ([]*models.Book, error) {
	if _, err := s.enrolledLibrary(ctx, p, libraryID); err != nil {
		return nil, err
	}
	books, err := s.repo.ListBooks(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	term = normalizeTerm(term)
	out := make([]*models.Book, 0, len(books))
	for _, b := range books {
		if b.Type != models.BookPhysical {
			continue
		}
		if term == "" || contains(b.Title, term) || contains(b.Author, term) {
			out = append(out, b)
		}
	}
	return out, nil
}

// IssueByScan issues the book identified by scanned QR text to the student.
func (s *Service) IssueByScan(ctx context.Context, p auth.Principal, libraryID, text string) (*ScanResult, error) {
	if _, err := s.enrolledLibrary(ctx, p, libraryID); err != nil {
		return nil, err
	}
	code, err := s.codec.Decode(text)
	switch {
	case errors.Is(err, qr.ErrTampered):
		s.logger.Warn("tampered qr payload", zap.String("user", p.UserID), zap.String("library", libraryID))
		return nil, &utils.AppError{Code: utils.StatusFor(utils.ErrInvalid), Message: MsgTampered, Err: err}
	case err != nil:
		return &ScanResult{Outcome: OutcomeUnknown}, nil
	}

	var result *ScanResult
	err = s.repo.WithTx(ctx, func(tx *store.Repository) error {
		book, err := tx.FindBookByCode(ctx, code, libraryID)
		if errors.Is(err, utils.ErrNotFound) {
			result = &ScanResult{Outcome: OutcomeUnknown}
			return nil
		}
		if err != nil {
			return err
		}

		switch {
		case book.LibraryID != libraryID:
			result = &ScanResult{Outcome: OutcomeUnavailable, Reason: ReasonWrongLibrary, Book: book}
			return nil
		case book.IsDigital():
			result = &ScanResult{Outcome: OutcomeUnavailable, Reason: ReasonDigital, Book: book}
			return nil
		case book.Status == models.BookIssued && book.IssuedTo == p.UserID:
			result = &ScanResult{Outcome: OutcomeAlreadyYours, Book: book}
			return nil
		case book.Status == models.BookIssued:
			result = &ScanResult{Outcome: OutcomeUnavailable, Reason: ReasonIssued, Book: book}
			return nil
		}

		if s.loan.MaxActive > 0 {
			n, err := tx.CountActiveLoans(ctx, p.UserID)
			if err != nil {
				return err
			}
			if n >= s.loan.MaxActive {
				result = &ScanResult{Outcome: OutcomeLimitReached, Book: book}
				return nil
			}
		}

		now := s.now()
		due := s.loan.DueDate(now)
		if err := tx.SetBookIssued(ctx, book.ID, p.UserID, p.Name, due); err != nil {
			if errors.Is(err, utils.ErrConflict) {
				result = &ScanResult{Outcome: OutcomeUnavailable, Reason: ReasonIssued, Book: book}
				return nil
			}
			return err
		}
		t := &models.Transaction{
			BookID:      book.ID,
			BookTitle:   book.Title,
			StudentID:   p.UserID,
			StudentName: p.Name,
			LibraryID:   libraryID,
			IssueDate:   now,
			DueDate:     due,
			Status:      models.TxActive,
		}
		if err := tx.CreateTransaction(ctx, t); err != nil {
			return err
		}
		book.Status = models.BookIssued
		book.IssuedTo = p.UserID
		book.IssuedToName = p.Name
		book.DueDate = &due
		result = &ScanResult{Outcome: OutcomeIssued, Book: book, Transaction: t}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Outcome == OutcomeIssued {
		s.logger.Info("book issued",
			zap.String("book", result.Book.ID),
			zap.String("user", p.UserID),
			zap.String("library", libraryID),
			zap.Time("due", *result.Book.DueDate))
	}
	return result, nil
}

// MyBooks returns the books of the library currently issued to the student.
func (s *Service) MyBooks(ctx context.Context, p auth.Principal, libraryID string) ([]Loan, error) {
	if _, err := s.enrolledLibrary(ctx, p, libraryID); err != nil {
		return nil, err
	}
	books, err := s.repo.ListBooks(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var out []Loan
	for _, b := range books {
		if b.Status != models.BookIssued || b.IssuedTo != p.UserID {
			continue
		}
		loan := Loan{Book: b, Overdue: b.Overdue(now)}
		if b.DueDate != nil {
			loan.Fine = s.Fine(*b.DueDate, now)
		}
		out = append(out, loan)
	}
	return out, nil
}

// History returns the student's returned loans at the library, newest first.
func (s *Service) History(ctx context.Context, p auth.Principal, libraryID string) ([]models.Transaction, error) {
	if _, err := s.enrolledLibrary(ctx, p, libraryID); err != nil {
		return nil, err
	}
	txs, err := s.repo.StudentTransactions(ctx, p.UserID, libraryID)
	if err != nil {
		return nil, err
	}
	out := txs[:0]
	for _, t := range txs {
		if t.Status == models.TxReturned {
			out = append(out, t)
		}
	}
	return out, nil
}

// DigitalResources returns the library's online books, newspapers and uploaded PDFs.
func (s *Service) DigitalResources(ctx context.Context, p auth.Principal, libraryID string) (*Digital, error) {
	if _, err := s.enrolledLibrary(ctx, p, libraryID); err != nil {
		return nil, err
	}
	books, err := s.repo.ListBooks(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	resources, err := s.repo.ListResources(ctx, libraryID, models.ResourceEPaper, models.ResourcePDFBook)
	if err != nil {
		return nil, err
	}
	d := &Digital{Resources: unlinked(resources, books)}
	for _, b := range books {
		if b.IsDigital() {
			d.Books = append(d.Books, b)
		}
	}
	return d, nil
}

// Notifications returns the caller's notifications, newest first.
func (s *Service) Notifications(ctx context.Context, p auth.Principal) ([]*models.Notification, error) {
	return s.repo.ListNotifications(ctx, p.UserID)
}

// MarkRead marks one of the caller's notifications as read.
func (s *Service) MarkRead(ctx context.Context, p auth.Principal, id string) error {
	if err := s.repo.MarkNotificationRead(ctx, id, p.UserID); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return &utils.AppError{Code: utils.StatusFor(utils.ErrNotFound), Message: MsgNotFound, Err: err}
		}
		return err
	}
	return nil
}

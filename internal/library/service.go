// Package library implements the reader and library-admin operations on top of the store.
package library

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"jnanayoni/internal/auth"
	"jnanayoni/internal/config"
	"jnanayoni/internal/files"
	"jnanayoni/internal/models"
	"jnanayoni/internal/qr"
	"jnanayoni/internal/store"
	"jnanayoni/internal/utils"
)

// Message keys attached to errors returned by the service.
const (
	MsgLibraryNotFound = "errLibraryNotFound"
	MsgNotFound        = "errNotFound"
	MsgForbidden       = "errForbidden"
	MsgConflict        = "errConflict"
	MsgInvalid         = "errInvalid"
	MsgRequiredFields  = "errRequiredFields"
	MsgTampered        = "errTampered"
	MsgTooLarge        = "errTooLarge"
	MsgUnsupportedType = "errUnsupportedType"
)

// Service runs library operations for authenticated principals.
type Service struct {
	repo   *store.Repository
	files  *files.Store
	codec  *qr.Codec
	loan   config.LoanConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewService wires a Service. A nil logger discards logs.
func NewService(repo *store.Repository, uploads *files.Store, codec *qr.Codec, loan config.LoanConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		files:  uploads,
		codec:  codec,
		loan:   loan,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Now returns the service's current time.
func (s *Service) Now() time.Time { return s.now() }

// Loan is the loan policy in force.
func (s *Service) Loan() config.LoanConfig { return s.loan }

// Ping checks that the database answers.
func (s *Service) Ping(ctx context.Context) error { return s.repo.Ping(ctx) }

// Codec returns the QR payload codec.
func (s *Service) Codec() *qr.Codec { return s.codec }

// Fine is the fine accrued at now on a loan due at due: whole days late, rounded up, times the rate.
func Fine(due, now time.Time, perDay int) int {
	late := now.Sub(due)
	if late <= 0 {
		return 0
	}
	days := int(late / (24 * time.Hour))
	if late%(24*time.Hour) != 0 {
		days++
	}
	return days * perDay
}

// Fine applies the configured rate.
func (s *Service) Fine(due, now time.Time) int {
	return Fine(due, now, s.loan.FinePerDay)
}

func (s *Service) library(ctx context.Context, id string) (*models.Library, error) {
	lib, err := s.repo.GetLibrary(ctx, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, &utils.AppError{Code: utils.StatusFor(utils.ErrNotFound), Message: MsgLibraryNotFound, Err: err}
		}
		return nil, err
	}
	return lib, nil
}

// enrolledLibrary returns the library if p is a student enrolled in it.
func (s *Service) enrolledLibrary(ctx context.Context, p auth.Principal, libraryID string) (*models.Library, error) {
	if p.Role != models.RoleStudent {
		return nil, utils.New(utils.ErrForbidden, MsgForbidden)
	}
	lib, err := s.library(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	ok, err := s.repo.IsEnrolled(ctx, p.UserID, libraryID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, utils.New(utils.ErrForbidden, MsgForbidden)
	}
	return lib, nil
}

// adminLibrary returns the library administered by p.
func (s *Service) adminLibrary(ctx context.Context, p auth.Principal) (*models.Library, error) {
	if p.Role != models.RoleLibraryAdmin || p.LibraryID == "" {
		return nil, utils.New(utils.ErrForbidden, MsgForbidden)
	}
	return s.library(ctx, p.LibraryID)
}

func contains(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), needle)
}

func normalizeTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"jnanayoni/internal/models"
	"jnanayoni/internal/utils"
)

type dbBook struct {
	ID           string         `db:"id"`
	LibraryID    string         `db:"library_id"`
	Title        string         `db:"title"`
	Author       string         `db:"author"`
	ISBN         string         `db:"isbn"`
	CoverURL     string         `db:"cover_url"`
	Status       string         `db:"status"`
	Type         string         `db:"type"`
	Link         string         `db:"link"`
	IssuedTo     sql.NullString `db:"issued_to"`
	IssuedToName sql.NullString `db:"issued_to_name"`
	DueDate      sql.NullInt64  `db:"due_date"`
	CreatedAt    int64          `db:"created_at"`
}

func toDomainBook(b *dbBook) *models.Book {
	return &models.Book{
		ID:           b.ID,
		LibraryID:    b.LibraryID,
		Title:        b.Title,
		Author:       b.Author,
		ISBN:         b.ISBN,
		CoverURL:     b.CoverURL,
		Status:       models.BookStatus(b.Status),
		Type:         models.BookType(b.Type),
		Link:         b.Link,
		IssuedTo:     b.IssuedTo.String,
		IssuedToName: b.IssuedToName.String,
		DueDate:      fromNullMillis(b.DueDate),
		CreatedAt:    fromMillis(b.CreatedAt),
	}
}

const bookColumns = `id, library_id, title, author, isbn, cover_url, status, type, link, issued_to, issued_to_name, due_date, created_at`

// CreateBook inserts b. Missing ID, status, type and creation time are filled in.
func (repo *Repository) CreateBook(ctx context.Context, b *models.Book) error {
	if b.ID == "" {
		id, err := NewID("bk")
		if err != nil {
			return err
		}
		b.ID = id
	}
	if b.Status == "" {
		b.Status = models.BookAvailable
	}
	if b.Type == "" {
		b.Type = models.BookPhysical
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	issuedTo := sql.NullString{String: b.IssuedTo, Valid: b.IssuedTo != ""}
	issuedToName := sql.NullString{String: b.IssuedToName, Valid: b.IssuedTo != ""}

	query := `INSERT INTO books(` + bookColumns + `) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`
	_, err := repo.q.ExecContext(ctx, query, b.ID, b.LibraryID, b.Title, b.Author, b.ISBN, b.CoverURL,
		string(b.Status), string(b.Type), b.Link, issuedTo, issuedToName, nullMillis(b.DueDate), toMillis(b.CreatedAt))
	if err != nil {
		return fmt.Errorf("creating book %s: %w", b.Title, err)
	}
	return nil
}

// GetBook retrieves a book by ID.
func (repo *Repository) GetBook(ctx context.Context, id string) (*models.Book, error) {
	var row dbBook
	if err := repo.q.GetContext(ctx, &row, `SELECT `+bookColumns+` FROM books WHERE id = ?`, id); err != nil {
		return nil, notFound(err, "book "+id)
	}
	return toDomainBook(&row), nil
}

// FindBookByCode resolves a scanned code to a book: by ID first, then by ISBN.
// The placeholder ISBN "N/A" never matches. When several copies share an ISBN, an
// available copy in preferLibrary wins.
func (repo *Repository) FindBookByCode(ctx context.Context, code, preferLibrary string) (*models.Book, error) {
	code = strings.TrimSpace(code)
	if code == "" || strings.EqualFold(code, models.NoISBN) {
		return nil, fmt.Errorf("book %q: %w", code, utils.ErrNotFound)
	}
	book, err := repo.GetBook(ctx, code)
	if err == nil {
		return book, nil
	}
	if !errors.Is(err, utils.ErrNotFound) {
		return nil, err
	}

	var row dbBook
	query := `SELECT ` + bookColumns + ` FROM books WHERE isbn = ?
	          ORDER BY (library_id = ?) DESC, (status = 'AVAILABLE') DESC, created_at
	          LIMIT 1`
	if err := repo.q.GetContext(ctx, &row, query, code, preferLibrary); err != nil {
		return nil, notFound(err, "book "+code)
	}
	return toDomainBook(&row), nil
}

// ListBooks returns all books of a library ordered by title.
func (repo *Repository) ListBooks(ctx context.Context, libraryID string) ([]*models.Book, error) {
	var rows []*dbBook
	query := `SELECT ` + bookColumns + ` FROM books WHERE library_id = ? ORDER BY title COLLATE NOCASE, id`
	if err := repo.q.SelectContext(ctx, &rows, query, libraryID); err != nil {
		return nil, fmt.Errorf("getting books of %s: %w", libraryID, err)
	}
	out := make([]*models.Book, len(rows))
	for i, r := range rows {
		out[i] = toDomainBook(r)
	}
	return out, nil
}

// ListAllBooks returns every book in the store.
func (repo *Repository) ListAllBooks(ctx context.Context) ([]*models.Book, error) {
	var rows []*dbBook
	if err := repo.q.SelectContext(ctx, &rows, `SELECT `+bookColumns+` FROM books ORDER BY created_at, id`); err != nil {
		return nil, fmt.Errorf("getting books: %w", err)
	}
	out := make([]*models.Book, len(rows))
	for i, r := range rows {
		out[i] = toDomainBook(r)
	}
	return out, nil
}

// SetBookIssued marks an available book as issued. It fails with ErrConflict when the
// book is not available, so concurrent scans cannot both succeed.
func (repo *Repository) SetBookIssued(ctx context.Context, bookID, studentID, studentName string, due time.Time) error {
	query := `UPDATE books SET status = 'ISSUED', issued_to = ?, issued_to_name = ?, due_date = ?
	          WHERE id = ? AND status = 'AVAILABLE'`
	result, err := repo.q.ExecContext(ctx, query, studentID, studentName, toMillis(due), bookID)
	if err != nil {
		return fmt.Errorf("issuing book %s: %w", bookID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("fetching rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("book %s is not available: %w", bookID, utils.ErrConflict)
	}
	return nil
}

// SetBookAvailable clears the loan fields of an issued book.
func (repo *Repository) SetBookAvailable(ctx context.Context, bookID string) error {
	query := `UPDATE books SET status = 'AVAILABLE', issued_to = NULL, issued_to_name = NULL, due_date = NULL
	          WHERE id = ? AND status = 'ISSUED'`
	result, err := repo.q.ExecContext(ctx, query, bookID)
	if err != nil {
		return fmt.Errorf("returning book %s: %w", bookID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("fetching rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("book %s is not issued: %w", bookID, utils.ErrConflict)
	}
	return nil
}

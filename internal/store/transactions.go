package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"jnanayoni/internal/models"
	"jnanayoni/internal/utils"
)

type dbTransaction struct {
	ID          string        `db:"id"`
	BookID      string        `db:"book_id"`
	BookTitle   string        `db:"book_title"`
	StudentID   string        `db:"student_id"`
	StudentName string        `db:"student_name"`
	LibraryID   string        `db:"library_id"`
	IssueDate   int64         `db:"issue_date"`
	DueDate     int64         `db:"due_date"`
	ReturnDate  sql.NullInt64 `db:"return_date"`
	Fine        int           `db:"fine"`
	Status      string        `db:"status"`
}

func toDomainTransaction(t *dbTransaction) models.Transaction {
	return models.Transaction{
		ID:          t.ID,
		BookID:      t.BookID,
		BookTitle:   t.BookTitle,
		StudentID:   t.StudentID,
		StudentName: t.StudentName,
		LibraryID:   t.LibraryID,
		IssueDate:   fromMillis(t.IssueDate),
		DueDate:     fromMillis(t.DueDate),
		ReturnDate:  fromNullMillis(t.ReturnDate),
		Fine:        t.Fine,
		Status:      models.TransactionStatus(t.Status),
	}
}

func toDomainTransactions(rows []*dbTransaction) []models.Transaction {
	out := make([]models.Transaction, len(rows))
	for i, r := range rows {
		out[i] = toDomainTransaction(r)
	}
	return out
}

const transactionColumns = `id, book_id, book_title, student_id, student_name, library_id, issue_date, due_date, return_date, fine, status`

// CreateTransaction inserts t. A second ACTIVE transaction for the same book is rejected by
// the unique partial index and reported as ErrConflict.
func (repo *Repository) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	if t.ID == "" {
		id, err := NewID("tx")
		if err != nil {
			return err
		}
		t.ID = id
	}
	if t.Status == "" {
		t.Status = models.TxActive
	}
	query := `INSERT INTO transactions(` + transactionColumns + `) VALUES (?,?,?,?,?,?,?,?,?,?,?)`
	_, err := repo.q.ExecContext(ctx, query, t.ID, t.BookID, t.BookTitle, t.StudentID, t.StudentName, t.LibraryID,
		toMillis(t.IssueDate), toMillis(t.DueDate), nullMillis(t.ReturnDate), t.Fine, string(t.Status))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("creating transaction for %s: %w", t.BookID, utils.ErrConflict)
		}
		return fmt.Errorf("creating transaction for %s: %w", t.BookID, err)
	}
	return nil
}

// ActiveTransactionForBook returns the open loan of a book.
func (repo *Repository) ActiveTransactionForBook(ctx context.Context, bookID string) (*models.Transaction, error) {
	var row dbTransaction
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE book_id = ? AND status = 'ACTIVE'`
	if err := repo.q.GetContext(ctx, &row, query, bookID); err != nil {
		return nil, notFound(err, "active transaction for "+bookID)
	}
	t := toDomainTransaction(&row)
	return &t, nil
}

// CloseTransaction marks an active transaction RETURNED with the given fine.
func (repo *Repository) CloseTransaction(ctx context.Context, id string, returnedAt time.Time, fine int) error {
	query := `UPDATE transactions SET status = 'RETURNED', return_date = ?, fine = ? WHERE id = ? AND status = 'ACTIVE'`
	result, err := repo.q.ExecContext(ctx, query, toMillis(returnedAt), fine, id)
	if err != nil {
		return fmt.Errorf("closing transaction %s: %w", id, err)
	}
	return expectOne(result, "active transaction "+id)
}

// ListTransactions returns every transaction of a library, oldest first.
func (repo *Repository) ListTransactions(ctx context.Context, libraryID string) ([]models.Transaction, error) {
	var rows []*dbTransaction
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE library_id = ? ORDER BY issue_date, id`
	if err := repo.q.SelectContext(ctx, &rows, query, libraryID); err != nil {
		return nil, fmt.Errorf("getting transactions of %s: %w", libraryID, err)
	}
	return toDomainTransactions(rows), nil
}

// StudentTransactions returns a student's transactions at one library, newest first.
func (repo *Repository) StudentTransactions(ctx context.Context, studentID, libraryID string) ([]models.Transaction, error) {
	var rows []*dbTransaction
	query := `SELECT ` + transactionColumns + ` FROM transactions
	          WHERE student_id = ? AND library_id = ?
	          ORDER BY issue_date DESC, id DESC`
	if err := repo.q.SelectContext(ctx, &rows, query, studentID, libraryID); err != nil {
		return nil, fmt.Errorf("getting transactions of %s: %w", studentID, err)
	}
	return toDomainTransactions(rows), nil
}

// ActiveLoansDueBefore returns every ACTIVE transaction due before t, across all libraries.
func (repo *Repository) ActiveLoansDueBefore(ctx context.Context, t time.Time) ([]models.Transaction, error) {
	var rows []*dbTransaction
	query := `SELECT ` + transactionColumns + ` FROM transactions
	          WHERE status = 'ACTIVE' AND due_date < ?
	          ORDER BY due_date, id`
	if err := repo.q.SelectContext(ctx, &rows, query, toMillis(t)); err != nil {
		return nil, fmt.Errorf("getting loans due before %s: %w", t, err)
	}
	return toDomainTransactions(rows), nil
}

// CountActiveLoans returns how many books a student currently holds across all libraries.
func (repo *Repository) CountActiveLoans(ctx context.Context, studentID string) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM transactions WHERE student_id = ? AND status = 'ACTIVE'`
	if err := repo.q.GetContext(ctx, &n, query, studentID); err != nil {
		return 0, fmt.Errorf("counting loans of %s: %w", studentID, err)
	}
	return n, nil
}

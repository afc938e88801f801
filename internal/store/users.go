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

type dbUser struct {
	ID           string         `db:"id"`
	Email        string         `db:"email"`
	PasswordHash string         `db:"password_hash"`
	Role         string         `db:"role"`
	Name         string         `db:"name"`
	LibraryID    sql.NullString `db:"library_id"`
	CreatedAt    int64          `db:"created_at"`
}

func toDomainUser(u *dbUser) *models.User {
	return &models.User{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         models.Role(u.Role),
		Name:         u.Name,
		LibraryID:    u.LibraryID.String,
		CreatedAt:    fromMillis(u.CreatedAt),
	}
}

const userColumns = `id, email, password_hash, role, name, library_id, created_at`

// CreateUser inserts u, assigning an ID and creation time when unset.
func (repo *Repository) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		id, err := NewID("usr")
		if err != nil {
			return err
		}
		u.ID = id
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.Email = strings.TrimSpace(u.Email)
	libraryID := sql.NullString{String: u.LibraryID, Valid: u.LibraryID != ""}

	query := `INSERT INTO users(` + userColumns + `) VALUES (?,?,?,?,?,?,?)`
	_, err := repo.q.ExecContext(ctx, query, u.ID, u.Email, u.PasswordHash, string(u.Role), u.Name, libraryID, toMillis(u.CreatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("creating user %s: %w", u.Email, utils.ErrConflict)
		}
		return fmt.Errorf("creating user %s: %w", u.Email, err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (repo *Repository) GetUser(ctx context.Context, id string) (*models.User, error) {
	var row dbUser
	if err := repo.q.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = ?`, id); err != nil {
		return nil, notFound(err, "user "+id)
	}
	return toDomainUser(&row), nil
}

// GetUserByEmail retrieves a user by email, case-insensitively.
func (repo *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var row dbUser
	if err := repo.q.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE email = ?`, strings.TrimSpace(email)); err != nil {
		return nil, notFound(err, "user "+email)
	}
	return toDomainUser(&row), nil
}

// ListUsers returns every user ordered by creation.
func (repo *Repository) ListUsers(ctx context.Context) ([]*models.User, error) {
	var rows []*dbUser
	if err := repo.q.SelectContext(ctx, &rows, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`); err != nil {
		return nil, fmt.Errorf("getting users: %w", err)
	}
	out := make([]*models.User, len(rows))
	for i, r := range rows {
		out[i] = toDomainUser(r)
	}
	return out, nil
}

type dbStudentSummary struct {
	dbUser
	EnrolledAt  int64 `db:"enrolled_at"`
	ActiveLoans int   `db:"active_loans"`
}

// ListStudents returns the students enrolled at libraryID with their active loan counts.
func (repo *Repository) ListStudents(ctx context.Context, libraryID string) ([]*models.StudentSummary, error) {
	var rows []*dbStudentSummary
	query := `SELECT u.id, u.email, u.password_hash, u.role, u.name, u.library_id, u.created_at,
	                 e.enrolled_at,
	                 (SELECT COUNT(*) FROM transactions t
	                   WHERE t.student_id = u.id AND t.library_id = e.library_id AND t.status = 'ACTIVE') AS active_loans
	          FROM users u
	          JOIN enrollments e ON e.student_id = u.id
	          WHERE e.library_id = ?
	          ORDER BY u.name`
	if err := repo.q.SelectContext(ctx, &rows, query, libraryID); err != nil {
		return nil, fmt.Errorf("getting students of %s: %w", libraryID, err)
	}
	out := make([]*models.StudentSummary, len(rows))
	for i, r := range rows {
		out[i] = &models.StudentSummary{
			User:        *toDomainUser(&r.dbUser),
			EnrolledAt:  fromMillis(r.EnrolledAt),
			ActiveLoans: r.ActiveLoans,
		}
	}
	return out, nil
}

// Enroll records that a student belongs to a library. Re-enrolling is a no-op.
func (repo *Repository) Enroll(ctx context.Context, studentID, libraryID string, at time.Time) error {
	query := `INSERT OR IGNORE INTO enrollments(student_id, library_id, enrolled_at) VALUES (?,?,?)`
	if _, err := repo.q.ExecContext(ctx, query, studentID, libraryID, toMillis(at)); err != nil {
		return fmt.Errorf("enrolling %s in %s: %w", studentID, libraryID, err)
	}
	return nil
}

// IsEnrolled reports whether studentID is enrolled at libraryID.
func (repo *Repository) IsEnrolled(ctx context.Context, studentID, libraryID string) (bool, error) {
	var n int
	query := `SELECT COUNT(*) FROM enrollments WHERE student_id = ? AND library_id = ?`
	if err := repo.q.GetContext(ctx, &n, query, studentID, libraryID); err != nil {
		return false, fmt.Errorf("checking enrollment: %w", err)
	}
	return n > 0, nil
}

// ListEnrollments returns all enrollment rows.
func (repo *Repository) ListEnrollments(ctx context.Context) ([]models.Enrollment, error) {
	var rows []struct {
		StudentID  string `db:"student_id"`
		LibraryID  string `db:"library_id"`
		EnrolledAt int64  `db:"enrolled_at"`
	}
	if err := repo.q.SelectContext(ctx, &rows, `SELECT student_id, library_id, enrolled_at FROM enrollments ORDER BY enrolled_at`); err != nil {
		return nil, fmt.Errorf("getting enrollments: %w", err)
	}
	out := make([]models.Enrollment, len(rows))
	for i, r := range rows {
		out[i] = models.Enrollment{StudentID: r.StudentID, LibraryID: r.LibraryID, EnrolledAt: fromMillis(r.EnrolledAt)}
	}
	return out, nil
}

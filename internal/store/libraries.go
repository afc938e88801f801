package store

import (
	"context"
	"fmt"

	"jnanayoni/internal/models"
)

type dbLibrary struct {
	ID           string `db:"id"`
	Name         string `db:"name"`
	Description  string `db:"description"`
	About        string `db:"about"`
	Address      string `db:"address"`
	ContactPhone string `db:"contact_phone"`
	ContactEmail string `db:"contact_email"`
	Hours        string `db:"hours"`
	ImageURL     string `db:"image_url"`
}

func toDomainLibrary(l *dbLibrary) *models.Library {
	return &models.Library{
		ID:           l.ID,
		Name:         l.Name,
		Description:  l.Description,
		About:        l.About,
		Address:      l.Address,
		ContactPhone: l.ContactPhone,
		ContactEmail: l.ContactEmail,
		Hours:        l.Hours,
		ImageURL:     l.ImageURL,
	}
}

const libraryColumns = `id, name, description, about, address, contact_phone, contact_email, hours, image_url`

// CreateLibrary inserts lib, assigning an ID when unset.
func (repo *Repository) CreateLibrary(ctx context.Context, lib *models.Library) error {
	if lib.ID == "" {
		id, err := NewID("lib")
		if err != nil {
			return err
		}
		lib.ID = id
	}
	query := `INSERT INTO libraries(` + libraryColumns + `) VALUES (?,?,?,?,?,?,?,?,?)`
	_, err := repo.q.ExecContext(ctx, query, lib.ID, lib.Name, lib.Description, lib.About, lib.Address,
		lib.ContactPhone, lib.ContactEmail, lib.Hours, lib.ImageURL)
	if err != nil {
		return fmt.Errorf("creating library %s: %w", lib.Name, err)
	}
	return nil
}

// GetLibrary retrieves a library by ID.
func (repo *Repository) GetLibrary(ctx context.Context, id string) (*models.Library, error) {
	var row dbLibrary
	if err := repo.q.GetContext(ctx, &row, `SELECT `+libraryColumns+` FROM libraries WHERE id = ?`, id); err != nil {
		return nil, notFound(err, "library "+id)
	}
	return toDomainLibrary(&row), nil
}

// ListLibraries returns every library ordered by name.
func (repo *Repository) ListLibraries(ctx context.Context) ([]*models.Library, error) {
	var rows []*dbLibrary
	if err := repo.q.SelectContext(ctx, &rows, `SELECT `+libraryColumns+` FROM libraries ORDER BY name`); err != nil {
		return nil, fmt.Errorf("getting libraries: %w", err)
	}
	out := make([]*models.Library, len(rows))
	for i, r := range rows {
		out[i] = toDomainLibrary(r)
	}
	return out, nil
}

// EnrolledLibraries returns the libraries a student is enrolled in, ordered by name.
func (repo *Repository) EnrolledLibraries(ctx context.Context, studentID string) ([]*models.Library, error) {
	var rows []*dbLibrary
	query := `SELECT l.id, l.name, l.description, l.about, l.address, l.contact_phone, l.contact_email, l.hours, l.image_url
	          FROM libraries l
	          JOIN enrollments e ON e.library_id = l.id
	          WHERE e.student_id = ?
	          ORDER BY l.name`
	if err := repo.q.SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("getting enrolled libraries: %w", err)
	}
	out := make([]*models.Library, len(rows))
	for i, r := range rows {
		out[i] = toDomainLibrary(r)
	}
	return out, nil
}

// UpdateLibraryProfile applies the non-empty fields of upd to the library.
func (repo *Repository) UpdateLibraryProfile(ctx context.Context, id string, upd models.ProfileUpdate) error {
	query := `UPDATE libraries SET
	            description   = COALESCE(NULLIF(?, ''), description),
	            about         = COALESCE(NULLIF(?, ''), about),
	            address       = COALESCE(NULLIF(?, ''), address),
	            contact_phone = COALESCE(NULLIF(?, ''), contact_phone),
	            contact_email = COALESCE(NULLIF(?, ''), contact_email),
	            hours         = COALESCE(NULLIF(?, ''), hours),
	            image_url     = COALESCE(NULLIF(?, ''), image_url)
	          WHERE id = ?`
	result, err := repo.q.ExecContext(ctx, query, upd.Description, upd.About, upd.Address,
		upd.ContactPhone, upd.ContactEmail, upd.Hours, upd.ImageURL, id)
	if err != nil {
		return fmt.Errorf("updating library: %w", err)
	}
	return expectOne(result, "library "+id)
}

// CountLibraries returns the number of libraries.
func (repo *Repository) CountLibraries(ctx context.Context) (int, error) {
	var n int
	if err := repo.q.GetContext(ctx, &n, `SELECT COUNT(*) FROM libraries`); err != nil {
		return 0, fmt.Errorf("counting libraries: %w", err)
	}
	return n, nil
}

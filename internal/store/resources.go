package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"jnanayoni/internal/models"
)

type dbResource struct {
	ID          string `db:"id"`
	LibraryID   string `db:"library_id"`
	Kind        string `db:"kind"`
	Title       string `db:"title"`
	FileName    string `db:"file_name"`
	ContentType string `db:"content_type"`
	Size        int64  `db:"size"`
	UploadedAt  int64  `db:"uploaded_at"`
}

func toDomainResource(r *dbResource) *models.Resource {
	return &models.Resource{
		ID:          r.ID,
		LibraryID:   r.LibraryID,
		Kind:        models.ResourceKind(r.Kind),
		Title:       r.Title,
		FileName:    r.FileName,
		ContentType: r.ContentType,
		Size:        r.Size,
		UploadedAt:  fromMillis(r.UploadedAt),
	}
}

const resourceColumns = `id, library_id, kind, title, file_name, content_type, size, uploaded_at`

// CreateResource inserts an upload record, assigning an id and upload time when unset.
func (repo *Repository) CreateResource(ctx context.Context, r *models.Resource) error {
	if r.ID == "" {
		id, err := NewID("res")
		if err != nil {
			return err
		}
		r.ID = id
	}
	if r.UploadedAt.IsZero() {
		r.UploadedAt = time.Now().UTC()
	}
	query := `INSERT INTO resources(` + resourceColumns + `) VALUES (?,?,?,?,?,?,?,?)`
	_, err := repo.q.ExecContext(ctx, query, r.ID, r.LibraryID, string(r.Kind), r.Title, r.FileName,
		r.ContentType, r.Size, toMillis(r.UploadedAt))
	if err != nil {
		return fmt.Errorf("creating resource %s: %w", r.FileName, err)
	}
	return nil
}

// ListResources returns a library's uploads of the given kinds, newest first. No kinds lists all.
func (repo *Repository) ListResources(ctx context.Context, libraryID string, kinds ...models.ResourceKind) ([]*models.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources WHERE library_id = ? ORDER BY uploaded_at DESC, id DESC`
	args := []any{libraryID}
	if len(kinds) > 0 {
		var err error
		query, args, err = sqlx.In(`SELECT `+resourceColumns+` FROM resources
		                            WHERE library_id = ? AND kind IN (?)
		                            ORDER BY uploaded_at DESC, id DESC`, libraryID, kindStrings(kinds))
		if err != nil {
			return nil, fmt.Errorf("building resource query: %w", err)
		}
	}

	var rows []*dbResource
	if err := repo.q.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("getting resources of %s: %w", libraryID, err)
	}
	out := make([]*models.Resource, len(rows))
	for i, r := range rows {
		out[i] = toDomainResource(r)
	}
	return out, nil
}

// GetResource looks up an upload by its stored file name within a library.
func (repo *Repository) GetResource(ctx context.Context, libraryID, fileName string) (*models.Resource, error) {
	var row dbResource
	query := `SELECT ` + resourceColumns + ` FROM resources WHERE library_id = ? AND file_name = ?`
	if err := repo.q.GetContext(ctx, &row, query, libraryID, fileName); err != nil {
		return nil, notFound(err, "resource "+fileName)
	}
	return toDomainResource(&row), nil
}

func kindStrings(kinds []models.ResourceKind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

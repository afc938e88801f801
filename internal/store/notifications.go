package store

import (
	"context"
	"fmt"
	"time"

	"jnanayoni/internal/models"
)

type dbNotification struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	LibraryID string `db:"library_id"`
	Title     string `db:"title"`
	Message   string `db:"message"`
	Date      int64  `db:"date"`
	Read      bool   `db:"read"`
	Type      string `db:"type"`
	Ref       string `db:"ref"`
}

const notificationColumns = `id, user_id, library_id, title, message, date, read, type, ref`

// CreateNotification inserts n, assigning an ID and date when unset.
func (repo *Repository) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		id, err := NewID("not")
		if err != nil {
			return err
		}
		n.ID = id
	}
	if n.Date.IsZero() {
		n.Date = time.Now().UTC()
	}
	query := `INSERT INTO notifications(` + notificationColumns + `) VALUES (?,?,?,?,?,?,?,?,?)`
	_, err := repo.q.ExecContext(ctx, query, n.ID, n.UserID, n.LibraryID, n.Title, n.Message, toMillis(n.Date), n.Read, string(n.Type), n.Ref)
	if err != nil {
		return fmt.Errorf("creating notification for %s: %w", n.UserID, err)
	}
	return nil
}

// ListNotifications returns a user's notifications, newest first.
func (repo *Repository) ListNotifications(ctx context.Context, userID string) ([]*models.Notification, error) {
	var rows []*dbNotification
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = ? ORDER BY date DESC, id DESC`
	if err := repo.q.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("getting notifications of %s: %w", userID, err)
	}
	out := make([]*models.Notification, len(rows))
	for i, r := range rows {
		out[i] = &models.Notification{
			ID:        r.ID,
			UserID:    r.UserID,
			LibraryID: r.LibraryID,
			Title:     r.Title,
			Message:   r.Message,
			Date:      fromMillis(r.Date),
			Read:      r.Read,
			Type:      models.NotificationType(r.Type),
			Ref:       r.Ref,
		}
	}
	return out, nil
}

// MarkNotificationRead flags one of userID's notifications as read.
func (repo *Repository) MarkNotificationRead(ctx context.Context, id, userID string) error {
	result, err := repo.q.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("marking notification %s: %w", id, err)
	}
	return expectOne(result, "notification "+id)
}

// HasNotification reports whether userID already has a notification with title about ref
// dated on the same UTC day as day.
func (repo *Repository) HasNotification(ctx context.Context, userID, title, ref string, day time.Time) (bool, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	var n int
	query := `SELECT COUNT(*) FROM notifications
	          WHERE user_id = ? AND title = ? AND ref = ? AND date >= ? AND date < ?`
	if err := repo.q.GetContext(ctx, &n, query, userID, title, ref, toMillis(start), toMillis(end)); err != nil {
		return false, fmt.Errorf("checking notification: %w", err)
	}
	return n > 0, nil
}

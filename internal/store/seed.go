package store

import (
	"context"
	"fmt"
	"time"

	"jnanayoni/internal/models"
)

// Demo account emails created by Seed.
const (
	SeedStudentEmail   = "rahul@example.com"
	SeedSaraswatiAdmin = "admin@saraswatilib.com"
	SeedArchiveAdmin   = "info@modernarchive.org"
)

// Seed loads the demo libraries, accounts, books and notifications. Every account gets
// passwordHash. It does nothing and returns false when any library already exists.
func (repo *Repository) Seed(ctx context.Context, passwordHash string, now time.Time) (bool, error) {
	n, err := repo.CountLibraries(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	now = now.UTC()
	err = repo.WithTx(ctx, func(tx *Repository) error {
		libs := []*models.Library{
			{
				ID:           "lib_1",
				Name:         "Saraswati Public Library",
				Description:  "A historic library with a vast collection of literature and history books.",
				About:        "Serving Pune readers with Marathi and English collections.",
				Address:      "123 Heritage Road, Pune",
				ContactEmail: "contact@saraswatilib.com",
				ContactPhone: "+91 98765 43210",
				Hours:        "Mon-Sat 9:00-20:00",
				ImageURL:     "https://picsum.photos/800/400?random=1",
			},
			{
				ID:           "lib_2",
				Name:         "Modern Digital Archive",
				Description:  "Focused on digital resources, scientific journals, and e-learning.",
				Address:      "45 Tech Park, Mumbai",
				ContactEmail: "info@modernarchive.org",
				ContactPhone: "+91 91234 56789",
				Hours:        "Mon-Fri 10:00-18:00",
				ImageURL:     "https://picsum.photos/800/400?random=2",
			},
		}
		for _, l := range libs {
			if err := tx.CreateLibrary(ctx, l); err != nil {
				return err
			}
		}

		student := &models.User{ID: "std_1", Email: SeedStudentEmail, PasswordHash: passwordHash, Role: models.RoleStudent, Name: "Rahul Deshmukh", CreatedAt: now}
		users := []*models.User{
			student,
			{Email: SeedSaraswatiAdmin, PasswordHash: passwordHash, Role: models.RoleLibraryAdmin, Name: "Saraswati Public Library", LibraryID: "lib_1", CreatedAt: now},
			{Email: SeedArchiveAdmin, PasswordHash: passwordHash, Role: models.RoleLibraryAdmin, Name: "Modern Digital Archive", LibraryID: "lib_2", CreatedAt: now},
		}
		for _, u := range users {
			if err := tx.CreateUser(ctx, u); err != nil {
				return err
			}
		}
		for _, l := range libs {
			if err := tx.Enroll(ctx, student.ID, l.ID, now); err != nil {
				return err
			}
		}

		issuedAt := now.AddDate(0, 0, -17)
		due := now.AddDate(0, 0, -3)
		books := []*models.Book{
			{ID: "bk_1", LibraryID: "lib_1", Title: "History of Maratha Empire", Author: "James Grant Duff", ISBN: "978-1234567890",
				Status: models.BookAvailable, Type: models.BookPhysical, CoverURL: "https://picsum.photos/200/300?random=3"},
			{ID: "bk_2", LibraryID: "lib_1", Title: "Introduction to Algorithms", Author: "Cormen, Leiserson", ISBN: "978-0262033848",
				Status: models.BookIssued, Type: models.BookPhysical, CoverURL: "https://picsum.photos/200/300?random=4",
				IssuedTo: student.ID, IssuedToName: student.Name, DueDate: &due},
			{ID: "bk_3", LibraryID: "lib_1", Title: "Daily Times (ePaper)", Author: "Daily Times Group", ISBN: models.NoISBN,
				Status: models.BookAvailable, Type: models.BookNewspaper, Link: "#", CoverURL: "https://picsum.photos/200/300?random=5"},
			{ID: "bk_4", LibraryID: "lib_2", Title: "React Design Patterns", Author: "Various", ISBN: models.NoISBN,
				Status: models.BookAvailable, Type: models.BookDigital, Link: "#", CoverURL: "https://picsum.photos/200/300?random=6"},
		}
		for _, b := range books {
			b.CreatedAt = now
			if err := tx.CreateBook(ctx, b); err != nil {
				return err
			}
		}
		if err := tx.CreateTransaction(ctx, &models.Transaction{
			BookID: "bk_2", BookTitle: "Introduction to Algorithms",
			StudentID: student.ID, StudentName: student.Name, LibraryID: "lib_1",
			IssueDate: issuedAt, DueDate: due, Status: models.TxActive,
		}); err != nil {
			return err
		}

		notes := []*models.Notification{
			{UserID: student.ID, LibraryID: "lib_1", Title: "Today's ePaper Available",
				Message: "The Daily Times for today has been uploaded by Saraswati Public Library.",
				Date:    now.Add(-2 * time.Hour), Type: models.NotifyInfo},
			{UserID: student.ID, LibraryID: "lib_1", Title: "Book Due Soon",
				Message: "Introduction to Algorithms is due tomorrow.",
				Date:    due.AddDate(0, 0, -1), Type: models.NotifyDeadline},
		}
		for _, n := range notes {
			if err := tx.CreateNotification(ctx, n); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("seeding: %w", err)
	}
	return true, nil
}

package library

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"jnanayoni/internal/auth"
	"jnanayoni/internal/config"
	"jnanayoni/internal/files"
	"jnanayoni/internal/models"
	"jnanayoni/internal/qr"
	"jnanayoni/internal/store"
	"jnanayoni/internal/utils"
)

var minimalPDF = []byte("%PDF-1.4\n1 0 obj<<>>endobj\ntrailer<<>>\n%%EOF\n")

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

type fixture struct {
	svc     *Service
	repo    *store.Repository
	clock   time.Time
	lib     *models.Library
	other   *models.Library
	student auth.Principal
	peer    auth.Principal
	admin   auth.Principal
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	repo, err := store.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	uploads, err := files.NewStore(filepath.Join(dir, "uploads"), 1<<20)
	require.NoError(t, err)

	loan := config.LoanConfig{PeriodDays: 14, FinePerDay: 2, MaxActive: 2, RemindBeforeHours: 24}
	svc := NewService(repo, uploads, qr.NewCodec([]byte("0123456789abcdef0123456789abcdef")), loan, nil)

	f := &fixture{svc: svc, repo: repo, clock: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	svc.SetClock(func() time.Time { return f.clock })

	f.lib = &models.Library{Name: "Saraswati Public Library", Address: "Pune"}
	f.other = &models.Library{Name: "Modern Digital Archive", Address: "Mumbai"}
	require.NoError(t, repo.CreateLibrary(ctx, f.lib))
	require.NoError(t, repo.CreateLibrary(ctx, f.other))

	mk := func(email, name string, role models.Role, lib string) auth.Principal {
		u := &models.User{Email: email, PasswordHash: "x", Role: role, Name: name, LibraryID: lib}
		require.NoError(t, repo.CreateUser(ctx, u))
		return auth.PrincipalFor(u)
	}
	f.student = mk("rahul@example.com", "Rahul Deshmukh", models.RoleStudent, "")
	f.peer = mk("sita@example.com", "Sita Patil", models.RoleStudent, "")
	f.admin = mk("admin@saraswatilib.com", "Saraswati Admin", models.RoleLibraryAdmin, f.lib.ID)
	require.NoError(t, repo.Enroll(ctx, f.student.UserID, f.lib.ID, f.clock))
	require.NoError(t, repo.Enroll(ctx, f.peer.UserID, f.lib.ID, f.clock))
	require.NoError(t, repo.Enroll(ctx, f.student.UserID, f.other.ID, f.clock))
	return f
}

func (f *fixture) book(t *testing.T, lib *models.Library, title, author, isbn string, typ models.BookType) *models.Book {
	t.Helper()
	b := &models.Book{LibraryID: lib.ID, Title: title, Author: author, ISBN: isbn, Type: typ}
	require.NoError(t, f.repo.CreateBook(context.Background(), b))
	return b
}

func TestFine(t *testing.T) {
	due := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		at   time.Time
		want int
	}{
		{"before due", due.Add(-time.Hour), 0},
		{"exactly due", due, 0},
		{"one minute late", due.Add(time.Minute), 2},
		{"exactly one day", due.Add(24 * time.Hour), 2},
		{"a day and a bit", due.Add(25 * time.Hour), 4},
		{"three days", due.Add(72 * time.Hour), 6},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Fine(due, tc.at, 2))
		})
	}
}

func TestIssueByScan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	book := f.book(t, f.lib, "Shriman Yogi", "Ranjit Desai", "978-8171616663", models.BookPhysical)

	t.Run("should issue a signed scan", func(t *testing.T) {
		res, err := f.svc.IssueByScan(ctx, f.student, f.lib.ID, f.svc.Codec().Encode(book.ID))
		require.NoError(t, err)
		assert.Equal(t, OutcomeIssued, res.Outcome)
		require.NotNil(t, res.Book.DueDate)
		assert.Equal(t, f.clock.AddDate(0, 0, 14), *res.Book.DueDate)
		require.NotNil(t, res.Transaction)

		stored, err := f.repo.GetBook(ctx, book.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BookIssued, stored.Status)
		assert.Equal(t, "Rahul Deshmukh", stored.IssuedToName)
	})

	t.Run("should report the student's own copy", func(t *testing.T) {
		res, err := f.svc.IssueByScan(ctx, f.student, f.lib.ID, book.ID)
		require.NoError(t, err)
		assert.Equal(t, OutcomeAlreadyYours, res.Outcome)
	})

	t.Run("should leave another student's book unchanged", func(t *testing.T) {
		res, err := f.svc.IssueByScan(ctx, f.peer, f.lib.ID, "978-8171616663")
		require.NoError(t, err)
		assert.Equal(t, OutcomeUnavailable, res.Outcome)
		assert.Equal(t, ReasonIssued, res.Reason)

		stored, err := f.repo.GetBook(ctx, book.ID)
		require.NoError(t, err)
		assert.Equal(t, f.student.UserID, stored.IssuedTo)
	})

	t.Run("should report unknown codes", func(t *testing.T) {
		res, err := f.svc.IssueByScan(ctx, f.student, f.lib.ID, "bk_does_not_exist")
		require.NoError(t, err)
		assert.Equal(t, OutcomeUnknown, res.Outcome)
		assert.Nil(t, res.Book)

		res, err = f.svc.IssueByScan(ctx, f.student, f.lib.ID, "N/A")
		require.NoError(t, err)
		assert.Equal(t, OutcomeUnknown, res.Outcome)
	})

	t.Run("should reject tampered labels", func(t *testing.T) {
		forged := qr.NewCodec([]byte("ffffffffffffffffffffffffffffffff")).Encode(book.ID)
		_, err := f.svc.IssueByScan(ctx, f.student, f.lib.ID, forged)
		assert.ErrorIs(t, err, qr.ErrTampered)
		assert.Equal(t, MsgTampered, utils.MessageFor(err, ""))
	})

	t.Run("should refuse books of another library", func(t *testing.T) {
		elsewhere := f.book(t, f.other, "Yayati", "V. S. Khandekar", "978-1", models.BookPhysical)
		res, err := f.svc.IssueByScan(ctx, f.student, f.lib.ID, elsewhere.ID)
		require.NoError(t, err)
		assert.Equal(t, OutcomeUnavailable, res.Outcome)
		assert.Equal(t, ReasonWrongLibrary, res.Reason)
	})

	t.Run("should refuse digital entries", func(t *testing.T) {
		paper := f.book(t, f.lib, "Daily Times", "Daily Times Group", models.NoISBN, models.BookNewspaper)
		res, err := f.svc.IssueByScan(ctx, f.student, f.lib.ID, paper.ID)
		require.NoError(t, err)
		assert.Equal(t, OutcomeUnavailable, res.Outcome)
		assert.Equal(t, ReasonDigital, res.Reason)
	})

	t.Run("should stop at the loan limit", func(t *testing.T) {
		second := f.book(t, f.lib, "Mrutyunjay", "Shivaji Sawant", "978-2", models.BookPhysical)
		third := f.book(t, f.lib, "Batatyachi Chaal", "P. L. Deshpande", "978-3", models.BookPhysical)

		res, err := f.svc.IssueByScan(ctx, f.student, f.lib.ID, second.ID)
		require.NoError(t, err)
		require.Equal(t, OutcomeIssued, res.Outcome)

		res, err = f.svc.IssueByScan(ctx, f.student, f.lib.ID, third.ID)
		require.NoError(t, err)
		assert.Equal(t, OutcomeLimitReached, res.Outcome)
	})

	t.Run("should require enrollment", func(t *testing.T) {
		_, err := f.svc.IssueByScan(ctx, f.peer, f.other.ID, book.ID)
		assert.ErrorIs(t, err, utils.ErrForbidden)

		_, err = f.svc.IssueByScan(ctx, f.student, "lib_missing", book.ID)
		assert.ErrorIs(t, err, utils.ErrNotFound)
		assert.Equal(t, MsgLibraryNotFound, utils.MessageFor(err, ""))
	})
}

func TestReaderViews(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	yogi := f.book(t, f.lib, "Shriman Yogi", "Ranjit Desai", "978-1", models.BookPhysical)
	f.book(t, f.lib, "Swami", "Ranjit Desai", "978-2", models.BookPhysical)
	f.book(t, f.lib, "Wings of Fire", "A. P. J. Abdul Kalam", "978-3", models.BookPhysical)
	f.book(t, f.lib, "Daily Times", "Daily Times Group", models.NoISBN, models.BookNewspaper)

	_, err := f.svc.IssueByScan(ctx, f.student, f.lib.ID, yogi.ID)
	require.NoError(t, err)

	t.Run("should search physical books by title or author", func(t *testing.T) {
		got, err := f.svc.SearchCatalog(ctx, f.student, f.lib.ID, "ranjit")
		require.NoError(t, err)
		assert.Len(t, got, 2)

		got, err = f.svc.SearchCatalog(ctx, f.student, f.lib.ID, "")
		require.NoError(t, err)
		assert.Len(t, got, 3)

		got, err = f.svc.SearchCatalog(ctx, f.student, f.lib.ID, "daily")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("should count portal stats", func(t *testing.T) {
		portal, err := f.svc.Portal(ctx, f.student, f.lib.ID)
		require.NoError(t, err)
		assert.Equal(t, f.lib.Name, portal.Library.Name)
		assert.Equal(t, PortalStats{MyIssued: 1, Digital: 1, Available: 2, Overdue: 0}, portal.Stats)
	})

	t.Run("should show overdue loans with fines", func(t *testing.T) {
		f.advance(16 * 24 * time.Hour)
		loans, err := f.svc.MyBooks(ctx, f.student, f.lib.ID)
		require.NoError(t, err)
		require.Len(t, loans, 1)
		assert.True(t, loans[0].Overdue)
		assert.Equal(t, 4, loans[0].Fine)

		portal, err := f.svc.Portal(ctx, f.student, f.lib.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, portal.Stats.Overdue)
	})

	t.Run("should list returned loans in history", func(t *testing.T) {
		res, err := f.svc.ReturnBook(ctx, f.admin, yogi.ID)
		require.NoError(t, err)
		assert.Equal(t, 4, res.Fine)

		history, err := f.svc.History(ctx, f.student, f.lib.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, 4, history[0].Fine)
		assert.Equal(t, models.TxReturned, history[0].Status)

		loans, err := f.svc.MyBooks(ctx, f.student, f.lib.ID)
		require.NoError(t, err)
		assert.Empty(t, loans)
	})

	t.Run("should list enrolled libraries", func(t *testing.T) {
		libs, err := f.svc.EnrolledLibraries(ctx, f.student)
		require.NoError(t, err)
		assert.Len(t, libs, 2)

		_, err = f.svc.EnrolledLibraries(ctx, f.admin)
		assert.ErrorIs(t, err, utils.ErrForbidden)
	})
}

func TestAdminOperations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("should validate new books", func(t *testing.T) {
		_, err := f.svc.AddBook(ctx, f.admin, BookInput{Title: "Only title"}, nil)
		assert.ErrorIs(t, err, utils.ErrInvalid)
		assert.Equal(t, MsgRequiredFields, utils.MessageFor(err, ""))

		_, err = f.svc.AddBook(ctx, f.student, BookInput{Title: "a", Author: "b", ISBN: "c"}, nil)
		assert.ErrorIs(t, err, utils.ErrForbidden)
	})

	book, err := f.svc.AddBook(ctx, f.admin, BookInput{Title: " Ek Hota Carver ", Author: "Veena Gavankar", ISBN: "978-9"},
		&FileInput{Name: "cover.pdf", Reader: bytes.NewReader(minimalPDF)})
	require.Error(t, err, "a pdf is not a cover image")
	assert.ErrorIs(t, err, files.ErrUnsupportedType)
	assert.Nil(t, book)

	book, err = f.svc.AddBook(ctx, f.admin, BookInput{Title: " Ek Hota Carver ", Author: "Veena Gavankar", ISBN: "978-9"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Ek Hota Carver", book.Title)
	assert.Equal(t, models.BookPhysical, book.Type)
	assert.Equal(t, models.BookAvailable, book.Status)

	t.Run("should refuse to return an available book", func(t *testing.T) {
		_, err := f.svc.ReturnBook(ctx, f.admin, book.ID)
		assert.ErrorIs(t, err, utils.ErrConflict)
	})

	t.Run("should hide other libraries' books", func(t *testing.T) {
		elsewhere := f.book(t, f.other, "Yayati", "V. S. Khandekar", "978-1", models.BookPhysical)
		_, err := f.svc.ReturnBook(ctx, f.admin, elsewhere.ID)
		assert.ErrorIs(t, err, utils.ErrNotFound)
		_, err = f.svc.Book(ctx, f.admin, elsewhere.ID)
		assert.ErrorIs(t, err, utils.ErrNotFound)
	})

	_, err = f.svc.IssueByScan(ctx, f.student, f.lib.ID, book.ID)
	require.NoError(t, err)
	second := f.book(t, f.lib, "Natsamrat", "V. V. Shirwadkar", "978-10", models.BookPhysical)
	_, err = f.svc.IssueByScan(ctx, f.peer, f.lib.ID, second.ID)
	require.NoError(t, err)
	f.advance(15*24*time.Hour + time.Hour)

	t.Run("should summarize the dashboard", func(t *testing.T) {
		_, stats, err := f.svc.Dashboard(ctx, f.admin)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.TotalBooks)
		assert.Equal(t, 2, stats.TotalIssued)
		assert.Equal(t, 2, stats.Overdue)
		assert.Equal(t, 2, stats.EnrolledStudents)
		assert.Equal(t, 8, stats.PendingFines)

		records, err := f.svc.IssuedRecords(ctx, f.admin)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.True(t, records[0].Overdue)
		assert.Equal(t, 4, records[0].Fine)
	})

	t.Run("should search inventory by borrower", func(t *testing.T) {
		got, err := f.svc.SearchInventory(ctx, f.admin, "sita")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, second.ID, got[0].ID)
	})

	t.Run("should return with fine", func(t *testing.T) {
		res, err := f.svc.ReturnBook(ctx, f.admin, book.ID)
		require.NoError(t, err)
		assert.Equal(t, 4, res.Fine)
		assert.Equal(t, models.BookAvailable, res.Book.Status)
		assert.Nil(t, res.Book.DueDate)
	})

	t.Run("should group transactions by student", func(t *testing.T) {
		groups, err := f.svc.Students(ctx, f.admin, "")
		require.NoError(t, err)
		require.Len(t, groups, 2)
		assert.Equal(t, "Rahul Deshmukh", groups[0].Name)
		assert.Equal(t, "Sita Patil", groups[1].Name)

		groups, err = f.svc.Students(ctx, f.admin, "SITA")
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Len(t, groups[0].History, 1)
	})

	t.Run("should list enrolled students with loans", func(t *testing.T) {
		students, err := f.svc.EnrolledStudents(ctx, f.admin)
		require.NoError(t, err)
		require.Len(t, students, 2)
		counts := map[string]int{}
		for _, s := range students {
			counts[s.Name] = s.ActiveLoans
		}
		assert.Equal(t, map[string]int{"Rahul Deshmukh": 0, "Sita Patil": 1}, counts)
	})

	t.Run("should update the profile partially", func(t *testing.T) {
		lib, err := f.svc.UpdateProfile(ctx, f.admin, models.ProfileUpdate{About: " Founded 1901 ", ContactPhone: "+91 98765 43210"})
		require.NoError(t, err)
		assert.Equal(t, "Founded 1901", lib.About)
		assert.Equal(t, "Pune", lib.Address)
	})
}

func TestUpload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.Upload(ctx, f.admin, UploadInput{
		Kind:   models.ResourceEPaper,
		Title:  "Daily Times 1 June",
		File:   FileInput{Name: "paper.pdf", Reader: bytes.NewReader(minimalPDF)},
		Notify: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", res.ContentType)

	t.Run("should add a newspaper entry", func(t *testing.T) {
		digital, err := f.svc.DigitalResources(ctx, f.student, f.lib.ID)
		require.NoError(t, err)
		require.Len(t, digital.Books, 1)
		assert.Equal(t, models.BookNewspaper, digital.Books[0].Type)
		assert.Equal(t, res.URL(), digital.Books[0].Link)
		assert.Empty(t, digital.Resources, "linked uploads are not listed twice")
	})

	t.Run("should notify enrolled students", func(t *testing.T) {
		for _, p := range []auth.Principal{f.student, f.peer} {
			notes, err := f.svc.Notifications(ctx, p)
			require.NoError(t, err)
			require.Len(t, notes, 1)
			assert.Equal(t, "Today's ePaper Available", notes[0].Title)
			assert.Equal(t, models.NotifyInfo, notes[0].Type)
		}
	})

	t.Run("should mark only own notifications read", func(t *testing.T) {
		notes, err := f.svc.Notifications(ctx, f.student)
		require.NoError(t, err)
		assert.ErrorIs(t, f.svc.MarkRead(ctx, f.peer, notes[0].ID), utils.ErrNotFound)
		require.NoError(t, f.svc.MarkRead(ctx, f.student, notes[0].ID))
	})

	t.Run("should serve the stored file", func(t *testing.T) {
		got, rc, err := f.svc.OpenResource(ctx, f.lib.ID, models.ResourceEPaper, res.FileName)
		require.NoError(t, err)
		defer rc.Close()
		assert.Equal(t, res.ID, got.ID)

		_, _, err = f.svc.OpenResource(ctx, f.lib.ID, models.ResourcePhoto, res.FileName)
		assert.ErrorIs(t, err, utils.ErrNotFound)
	})

	t.Run("should keep every photo in the gallery", func(t *testing.T) {
		var ids []string
		var last *models.Resource
		for _, name := range []string{"reading-hall.png", "entrance.png"} {
			photo, err := f.svc.Upload(ctx, f.admin, UploadInput{
				Kind: models.ResourcePhoto,
				File: FileInput{Name: name, Reader: bytes.NewReader(pngBytes(t))},
			})
			require.NoError(t, err)
			ids = append(ids, photo.ID)
			last = photo
		}

		portal, err := f.svc.Portal(ctx, f.student, f.lib.ID)
		require.NoError(t, err)
		require.Len(t, portal.Photos, 2)
		var got []string
		for _, p := range portal.Photos {
			got = append(got, p.ID)
		}
		assert.ElementsMatch(t, ids, got)
		assert.Equal(t, last.URL(), portal.Library.ImageURL)
	})

	t.Run("should reject images as pdf books", func(t *testing.T) {
		_, err := f.svc.Upload(ctx, f.admin, UploadInput{
			Kind: models.ResourcePDFBook,
			File: FileInput{Name: "x.gif", Reader: bytes.NewReader([]byte("GIF89a......"))},
		})
		assert.Equal(t, 415, utils.StatusFor(err))
		assert.Equal(t, MsgUnsupportedType, utils.MessageFor(err, ""))
	})
}

func TestSweeper(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	soon := f.book(t, f.lib, "Swami", "Ranjit Desai", "978-1", models.BookPhysical)
	late := f.book(t, f.lib, "Yayati", "V. S. Khandekar", "978-2", models.BookPhysical)

	_, err := f.svc.IssueByScan(ctx, f.peer, f.lib.ID, late.ID)
	require.NoError(t, err)
	f.advance(24 * time.Hour)
	_, err = f.svc.IssueByScan(ctx, f.student, f.lib.ID, soon.ID)
	require.NoError(t, err)

	// late is now one hour overdue and soon is due in 23 hours.
	f.advance(13*24*time.Hour + time.Hour)
	sw := NewSweeper(f.svc, time.Hour)

	stats, err := sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepStats{Checked: 2, Reminders: 1, Alerts: 1}, stats)

	stats, err = sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepStats{Checked: 2}, stats, "same day is deduplicated")

	notes, err := f.svc.Notifications(ctx, f.peer)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, TitleOverdue, notes[0].Title)
	assert.Contains(t, notes[0].Message, "₹2")

	f.advance(24 * time.Hour)
	stats, err = sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Alerts, "a new day brings new alerts")
}

func TestSweeperRunStops(t *testing.T) {
	f := newFixture(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sw := NewSweeper(f.svc, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

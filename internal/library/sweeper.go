package library

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"jnanayoni/internal/models"
)

// Notification titles written by the sweeper.
const (
	TitleDueSoon = "Book Due Soon"
	TitleOverdue = "Book Overdue"
)

// SweepStats summarizes one sweep.
type SweepStats struct {
	Checked   int
	Reminders int
	Alerts    int
}

// Sweeper periodically notifies students about loans that are due soon or overdue.
type Sweeper struct {
	svc          *Service
	interval     time.Duration
	remindBefore time.Duration
}

// NewSweeper returns a sweeper that runs every interval.
func NewSweeper(svc *Service, interval time.Duration) *Sweeper {
	return &Sweeper{
		svc:          svc,
		interval:     interval,
		remindBefore: svc.loan.RemindBefore(),
	}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (sw *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		if _, err := sw.Sweep(ctx); err != nil && ctx.Err() == nil {
			sw.svc.logger.Error("sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep writes a DEADLINE notification for each loan due within the reminder window and
// an ALERT for each overdue loan, at most once per loan, title and day.
func (sw *Sweeper) Sweep(ctx context.Context) (SweepStats, error) {
	now := sw.svc.now()
	loans, err := sw.svc.repo.ActiveLoansDueBefore(ctx, now.Add(sw.remindBefore))
	if err != nil {
		return SweepStats{}, err
	}

	stats := SweepStats{Checked: len(loans)}
	for _, t := range loans {
		n := &models.Notification{
			UserID:    t.StudentID,
			LibraryID: t.LibraryID,
			Date:      now,
			Ref:       t.ID,
		}
		if now.After(t.DueDate) {
			n.Type = models.NotifyAlert
			n.Title = TitleOverdue
			n.Message = fmt.Sprintf("%s was due on %s. Fine so far: ₹%d.",
				t.BookTitle, t.DueDate.Format("2006-01-02"), sw.svc.Fine(t.DueDate, now))
		} else {
			n.Type = models.NotifyDeadline
			n.Title = TitleDueSoon
			n.Message = fmt.Sprintf("%s is due on %s.", t.BookTitle, t.DueDate.Format("2006-01-02"))
		}

		exists, err := sw.svc.repo.HasNotification(ctx, n.UserID, n.Title, n.Ref, now)
		if err != nil {
			return stats, err
		}
		if exists {
			continue
		}
		if err := sw.svc.repo.CreateNotification(ctx, n); err != nil {
			return stats, err
		}
		if n.Type == models.NotifyAlert {
			stats.Alerts++
		} else {
			stats.Reminders++
		}
	}
	sw.svc.logger.Info("sweep finished",
		zap.Int("checked", stats.Checked),
		zap.Int("reminders", stats.Reminders),
		zap.Int("alerts", stats.Alerts))
	return stats, nil
}

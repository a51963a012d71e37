package core

import (
	"context"
	"testing"
	"time"

	"flockcore/internal/infra/archive"
	"flockcore/internal/infra/localstore"
	"flockcore/internal/schedule"
)

type reminderClock struct {
	now   time.Time
	ticks chan time.Time
}

func (c *reminderClock) Now() time.Time                          { return c.now }
func (c *reminderClock) NewTicker(time.Duration) schedule.Ticker { return reminderTicker{c.ticks} }

type reminderTicker struct{ ch chan time.Time }

func (t reminderTicker) C() <-chan time.Time { return t.ch }
func (reminderTicker) Stop()                 {}

func marchReminder(local localstore.Store) *BackupReminder {
	r := NewBackupReminder(local, nil)
	r.nowFn = func() time.Time { return time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC) }
	return r
}

func TestBackupReminderDueUntilDismissed(t *testing.T) {
	local := localstore.NewMemory()
	r := marchReminder(local)

	period, due := r.Due()
	if period != "2025-03" || !due {
		t.Fatalf("expected 2025-03 due, got %s %v", period, due)
	}
	if err := r.Dismiss(period); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if _, due := r.Due(); due {
		t.Fatalf("dismissed period still due")
	}

	// The dismissal is persisted, not in-memory state.
	if _, due := marchReminder(local).Due(); due {
		t.Fatalf("dismissal lost across instances")
	}

	// A new month resurfaces the reminder.
	r.nowFn = func() time.Time { return time.Date(2025, 4, 6, 9, 0, 0, 0, time.UTC) }
	if period, due := r.Due(); period != "2025-04" || !due {
		t.Fatalf("expected 2025-04 due, got %s %v", period, due)
	}
}

func TestBackupReminderRejectsBadPeriod(t *testing.T) {
	r := marchReminder(localstore.NewMemory())
	if err := r.Dismiss("not-a-month"); err == nil {
		t.Fatalf("expected rejection of malformed period")
	}
}

func TestArchiveExportSettlesCurrentPeriod(t *testing.T) {
	svc, local, _, _ := newTestService(t)
	ctx := context.Background()

	at := time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)
	if _, err := svc.ArchiveExport(ctx, archive.NewMemory(), at); err != nil {
		t.Fatalf("archive export: %v", err)
	}
	if period, due := marchReminder(local).Due(); due {
		t.Fatalf("export did not settle reminder for %s", period)
	}
}

func TestBackupReminderScheduleNotifiesWhileDue(t *testing.T) {
	local := localstore.NewMemory()
	r := marchReminder(local)

	clock := &reminderClock{now: time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC), ticks: make(chan time.Time, 1)}
	runner := schedule.NewRunner(clock, nil)
	defer runner.Stop()

	notified := make(chan string, 2)
	r.Schedule(context.Background(), runner, time.Hour, func(period string) { notified <- period })

	clock.ticks <- clock.now
	select {
	case period := <-notified:
		if period != "2025-03" {
			t.Fatalf("unexpected period %s", period)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for reminder")
	}

	if err := r.Dismiss("2025-03"); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	clock.ticks <- clock.now
	select {
	case period := <-notified:
		t.Fatalf("dismissed reminder fired again for %s", period)
	case <-time.After(50 * time.Millisecond):
	}
}

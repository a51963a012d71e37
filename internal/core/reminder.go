package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"flockcore/internal/infra/localstore"
	"flockcore/internal/observability"
	"flockcore/internal/schedule"
)

// Backup reminder periods are calendar months.
const backupPeriodLayout = "2006-01"

// BackupReminderTask is the schedule name for the recurring due check.
const BackupReminderTask = "backup-reminder"

// BackupReminder surfaces a nag once per calendar month until the
// administrator either takes an export or dismisses it. Handled periods
// persist under localstore.KeyDismissed so a restart does not resurface a
// waved-off reminder.
type BackupReminder struct {
	local localstore.Store
	audit *observability.AuditTrail
	nowFn func() time.Time
}

// NewBackupReminder constructs a reminder over the local store. audit may be
// nil.
func NewBackupReminder(local localstore.Store, audit *observability.AuditTrail) *BackupReminder {
	return &BackupReminder{
		local: local,
		audit: audit,
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// Due returns the current period and whether a reminder should surface for
// it: no export was taken and nobody dismissed it.
func (r *BackupReminder) Due() (string, bool) {
	period := r.nowFn().UTC().Format(backupPeriodLayout)
	return period, !loadHandledPeriods(r.local)[period]
}

// Dismiss waves the reminder off for one period without taking an export.
func (r *BackupReminder) Dismiss(period string) error {
	if _, err := time.Parse(backupPeriodLayout, period); err != nil {
		return fmt.Errorf("bad reminder period %q: %w", period, err)
	}
	if err := settleBackupPeriod(r.local, period); err != nil {
		return err
	}
	if r.audit != nil {
		r.audit.Note("backup reminder dismissed for " + period)
	}
	return nil
}

// Schedule registers the recurring due check on the runner. notify fires
// with the period each tick the reminder is still due.
func (r *BackupReminder) Schedule(ctx context.Context, runner *schedule.Runner, interval time.Duration, notify func(period string)) {
	runner.Every(ctx, BackupReminderTask, interval, func(context.Context) error {
		if period, due := r.Due(); due {
			if r.audit != nil {
				r.audit.Note("backup reminder due for " + period)
			}
			notify(period)
		}
		return nil
	})
}

func loadHandledPeriods(local localstore.Store) map[string]bool {
	handled := map[string]bool{}
	if raw, ok := local.Load(localstore.KeyDismissed); ok {
		_ = json.Unmarshal(raw, &handled)
	}
	return handled
}

// settleBackupPeriod marks one period handled, whether by export or by an
// explicit dismissal.
func settleBackupPeriod(local localstore.Store, period string) error {
	handled := loadHandledPeriods(local)
	if handled[period] {
		return nil
	}
	handled[period] = true
	if err := local.Save(localstore.KeyDismissed, handled); err != nil {
		return fmt.Errorf("persist %s: %w", localstore.KeyDismissed, err)
	}
	return nil
}

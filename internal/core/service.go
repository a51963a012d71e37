package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"flockcore/internal/cache"
	"flockcore/internal/events"
	"flockcore/internal/infra/archive"
	"flockcore/internal/infra/localstore"
	"flockcore/internal/observability"
	"flockcore/pkg/domain"
)

// Service exposes one transactional entry point per user intent. After every
// committed mutation it persists the working set to the local store, marks
// touched members for recalculation, invalidates affected cache entries,
// publishes a typed event, and records the change in the audit trail. None
// of that can be skipped by a call site.
type Service struct {
	store *WorkingStore
	local localstore.Store
	bus   *events.Bus
	cache *cache.Manager
	audit *observability.AuditTrail
}

// NewService constructs a service. The store is required; local, bus, cache,
// and audit may each be nil and are then skipped.
func NewService(store *WorkingStore, local localstore.Store, bus *events.Bus, cacheMgr *cache.Manager, audit *observability.AuditTrail) *Service {
	return &Service{store: store, local: local, bus: bus, cache: cacheMgr, audit: audit}
}

// Store returns the underlying working-set store.
func (s *Service) Store() *WorkingStore {
	return s.store
}

// SignIn records one attendance event.
func (s *Service) SignIn(ctx context.Context, groupID, memberUUID string, at time.Time) (domain.AttendanceRecord, domain.Result, error) {
	var rec domain.AttendanceRecord
	res, changes, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		var err error
		rec, err = tx.SignIn(groupID, memberUUID, at)
		return err
	})
	if err != nil {
		return domain.AttendanceRecord{}, res, err
	}
	return rec, res, s.finish(changes)
}

// CreateGroup registers a new named group.
func (s *Service) CreateGroup(ctx context.Context, id, name string) (domain.Result, error) {
	res, changes, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		return tx.CreateGroup(id, name)
	})
	if err != nil {
		return res, err
	}
	return res, s.finish(changes)
}

// RenameGroup updates a group's display name.
func (s *Service) RenameGroup(ctx context.Context, id, name string) (domain.Result, error) {
	res, changes, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		return tx.RenameGroup(id, name)
	})
	if err != nil {
		return res, err
	}
	return res, s.finish(changes)
}

// DeleteGroup removes a group, cascading removal of its attendance records.
func (s *Service) DeleteGroup(ctx context.Context, id string) (domain.Result, error) {
	res, changes, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		return tx.DeleteGroup(id)
	})
	if err != nil {
		return res, err
	}
	return res, s.finish(changes)
}

// AddMember adds a member to a group, assigning a UUID when absent.
func (s *Service) AddMember(ctx context.Context, groupID string, member domain.Member) (domain.Member, domain.Result, error) {
	var added domain.Member
	res, changes, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		var err error
		added, err = tx.AddMember(groupID, member)
		return err
	})
	if err != nil {
		return domain.Member{}, res, err
	}
	return added, res, s.finish(changes)
}

// UpdateMember mutates a member using the provided mutator.
func (s *Service) UpdateMember(ctx context.Context, memberUUID string, mutator func(*domain.Member) error) (domain.Member, domain.Result, error) {
	var updated domain.Member
	res, changes, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		var err error
		updated, err = tx.UpdateMember(memberUUID, mutator)
		return err
	})
	if err != nil {
		return domain.Member{}, res, err
	}
	return updated, res, s.finish(changes)
}

// MoveMember relocates a member to another group.
func (s *Service) MoveMember(ctx context.Context, memberUUID, toGroup string) (domain.Result, error) {
	res, changes, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		return tx.MoveMember(memberUUID, toGroup)
	})
	if err != nil {
		return res, err
	}
	return res, s.finish(changes)
}

// DeleteMember removes a member from the roster.
func (s *Service) DeleteMember(ctx context.Context, memberUUID string) (domain.Result, error) {
	res, changes, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		return tx.DeleteMember(memberUUID)
	})
	if err != nil {
		return res, err
	}
	return res, s.finish(changes)
}

// ExcludeMember exempts a member from absence tracking.
func (s *Service) ExcludeMember(ctx context.Context, memberUUID, reason string) (domain.Result, error) {
	res, changes, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		return tx.ExcludeMember(memberUUID, reason)
	})
	if err != nil {
		return res, err
	}
	return res, s.finish(changes)
}

// IncludeMember lifts a member's absence-tracking exemption.
func (s *Service) IncludeMember(ctx context.Context, memberUUID string) (domain.Result, error) {
	res, changes, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		return tx.IncludeMember(memberUUID)
	})
	if err != nil {
		return res, err
	}
	return res, s.finish(changes)
}

// ClearRecords removes all attendance records, returning the removed count.
func (s *Service) ClearRecords(ctx context.Context) (int, domain.Result, error) {
	removed := 0
	res, changes, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		removed = tx.ClearRecords()
		return nil
	})
	if err != nil {
		return 0, res, err
	}
	return removed, res, s.finish(changes)
}

// ImportDataSet replaces the whole working set, for restores from backup.
func (s *Service) ImportDataSet(ctx context.Context, ds domain.DataSet) (domain.Result, error) {
	res, changes, err := s.store.RunInTransaction(ctx, func(tx *Transaction) error {
		tx.ReplaceAll(ds)
		return nil
	})
	if err != nil {
		return res, err
	}
	if err := s.finish(changes); err != nil {
		return res, err
	}
	s.publish(events.Event{Topic: events.TopicDataReloaded})
	return res, nil
}

// ExportDataSet returns a deep copy of the committed working set.
func (s *Service) ExportDataSet(ctx context.Context) (domain.DataSet, error) {
	return s.store.Snapshot(), nil
}

// ArchiveExport writes the current working set to the archive store as a
// timestamped, immutable export artifact.
func (s *Service) ArchiveExport(ctx context.Context, dst archive.Store, at time.Time) (archive.Info, error) {
	payload, err := json.Marshal(s.store.Snapshot())
	if err != nil {
		return archive.Info{}, err
	}
	info, err := dst.Put(ctx, archive.ExportKey(at), payload)
	if err != nil {
		return archive.Info{}, fmt.Errorf("archive export: %w", err)
	}
	if s.audit != nil {
		s.audit.Note("exported data set to " + info.Key)
	}
	// A taken export settles this month's backup reminder.
	if s.local != nil {
		if err := settleBackupPeriod(s.local, at.UTC().Format(backupPeriodLayout)); err != nil {
			return info, err
		}
	}
	return info, nil
}

// finish propagates committed changes: persist, recalc flags, cache
// invalidation, events, audit.
func (s *Service) finish(changes []domain.Change) error {
	if len(changes) == 0 {
		return nil
	}
	if err := s.persist(); err != nil {
		return err
	}
	touched := touchedMembers(changes)
	if err := s.markRecalc(touched); err != nil {
		return err
	}
	s.invalidate(changes, touched)
	for _, change := range changes {
		if s.audit != nil {
			s.audit.Record(change)
		}
		s.publish(events.Event{
			Topic:    topicFor(change),
			Entity:   change.Entity,
			EntityID: change.EntityID,
			Change:   change,
		})
	}
	return nil
}

func (s *Service) persist() error {
	if s.local == nil {
		return nil
	}
	snapshot := s.store.Snapshot()
	saves := []struct {
		key   string
		value any
	}{
		{localstore.KeyGroups, snapshot.Groups},
		{localstore.KeyGroupNames, snapshot.GroupNames},
		{localstore.KeyRecords, snapshot.Records},
		{localstore.KeyExcluded, snapshot.Excluded},
	}
	for _, save := range saves {
		if err := s.local.Save(save.key, save.value); err != nil {
			return fmt.Errorf("persist %s: %w", save.key, err)
		}
	}
	return nil
}

// markRecalc durably flags members whose derived values need lazy
// recomputation. Flags survive restarts; consumers clear them after
// recomputing.
func (s *Service) markRecalc(memberUUIDs []string) error {
	if s.local == nil || len(memberUUIDs) == 0 {
		return nil
	}
	flags := map[string]bool{}
	if raw, ok := s.local.Load(localstore.KeyRecalcFlags); ok {
		_ = json.Unmarshal(raw, &flags)
	}
	for _, id := range memberUUIDs {
		flags[id] = true
	}
	return s.local.Save(localstore.KeyRecalcFlags, flags)
}

func (s *Service) invalidate(changes []domain.Change, touched []string) {
	if s.cache == nil {
		return
	}
	for _, id := range touched {
		s.cache.ClearEntity(id)
	}
	for _, change := range changes {
		switch change.Entity {
		case domain.EntityAttendanceRecord, domain.EntityGroup:
			s.cache.ClearType(cache.TypeGroupAggregate)
			s.cache.ClearType(cache.TypeReport)
			return
		}
	}
}

func (s *Service) publish(ev events.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}

func topicFor(change domain.Change) events.Topic {
	switch change.Entity {
	case domain.EntityAttendanceRecord:
		if change.Action == domain.ActionCreate {
			return events.TopicSignIn
		}
		return events.TopicRecordsCleared
	case domain.EntityGroup:
		return events.TopicGroupChanged
	case domain.EntityExcludedMember:
		return events.TopicMemberChanged
	default:
		return events.TopicMemberChanged
	}
}

// touchedMembers extracts the member UUIDs affected by a change list from
// the typed payloads the transaction recorded.
func touchedMembers(changes []domain.Change) []string {
	seen := map[string]struct{}{}
	add := func(id string) {
		if id != "" {
			seen[id] = struct{}{}
		}
	}
	for _, change := range changes {
		switch change.Entity {
		case domain.EntityMember, domain.EntityExcludedMember:
			add(change.EntityID)
		case domain.EntityAttendanceRecord:
			for _, payload := range []any{change.Before, change.After} {
				switch v := payload.(type) {
				case domain.AttendanceRecord:
					add(v.MemberUUID)
				case []domain.AttendanceRecord:
					for _, rec := range v {
						add(rec.MemberUUID)
					}
				}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}

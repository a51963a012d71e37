package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"flockcore/pkg/domain"
)

func seedStore(t *testing.T) *WorkingStore {
	t.Helper()
	store := NewWorkingStore(NewDefaultRulesEngine())
	_, _, err := store.RunInTransaction(context.Background(), func(tx *Transaction) error {
		if err := tx.CreateGroup("g1", "Alpha"); err != nil {
			return err
		}
		_, err := tx.AddMember("g1", domain.Member{UUID: "u1", Name: "Ana", Nickname: "An"})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return store
}

func TestSignInCapturesSnapshotsAndSlot(t *testing.T) {
	store := seedStore(t)
	at := time.Date(2025, 3, 2, 9, 40, 0, 0, time.UTC)

	var rec domain.AttendanceRecord
	_, _, err := store.RunInTransaction(context.Background(), func(tx *Transaction) error {
		var err error
		rec, err = tx.SignIn("g1", "u1", at)
		return err
	})
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if rec.RecordID == "" {
		t.Fatalf("expected generated record id")
	}
	if rec.Slot != domain.SlotOnTime {
		t.Fatalf("slot = %s, want on_time", rec.Slot)
	}
	if rec.MemberSnapshot.Name != "Ana" || rec.MemberSnapshot.Nickname != "An" {
		t.Fatalf("member snapshot not captured: %+v", rec.MemberSnapshot)
	}
	if rec.GroupSnapshot.GroupName != "Alpha" {
		t.Fatalf("group snapshot not captured: %+v", rec.GroupSnapshot)
	}

	snapshot := store.Snapshot()
	if len(snapshot.Records) != 1 {
		t.Fatalf("record not committed")
	}
}

func TestSignInUnknownMemberRollsBack(t *testing.T) {
	store := seedStore(t)
	_, _, err := store.RunInTransaction(context.Background(), func(tx *Transaction) error {
		_, err := tx.SignIn("g1", "nope", time.Now())
		return err
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(store.Snapshot().Records) != 0 {
		t.Fatalf("failed transaction leaked state")
	}
}

func TestBlockingRuleAbortsCommit(t *testing.T) {
	store := NewWorkingStore(NewDefaultRulesEngine())
	bad := domain.NewDataSet()
	bad.GroupNames["phantom"] = "Phantom"

	res, _, err := store.RunInTransaction(context.Background(), func(tx *Transaction) error {
		tx.ReplaceAll(bad)
		return nil
	})
	var rve domain.RuleViolationError
	if !errors.As(err, &rve) {
		t.Fatalf("expected RuleViolationError, got %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("expected blocking violation in result")
	}
	if _, ok := store.Snapshot().GroupNames["phantom"]; ok {
		t.Fatalf("blocked transaction committed anyway")
	}
}

func TestDeleteGroupCascadesRecordsAndReparentsMembers(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()
	_, _, err := store.RunInTransaction(ctx, func(tx *Transaction) error {
		if _, err := tx.SignIn("g1", "u1", time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}

	_, changes, err := store.RunInTransaction(ctx, func(tx *Transaction) error {
		return tx.DeleteGroup("g1")
	})
	if err != nil {
		t.Fatalf("delete group: %v", err)
	}

	snapshot := store.Snapshot()
	if _, ok := snapshot.Groups["g1"]; ok {
		t.Fatalf("group survived delete")
	}
	if len(snapshot.Records) != 0 {
		t.Fatalf("cascade left records behind: %+v", snapshot.Records)
	}
	found := false
	for _, m := range snapshot.Groups[domain.UngroupedID] {
		if m.UUID == "u1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("member not moved to ungrouped")
	}
	if len(changes) != 2 {
		t.Fatalf("expected group delete + record delete changes, got %d", len(changes))
	}
}

func TestUngroupedCannotBeDeleted(t *testing.T) {
	store := seedStore(t)
	_, _, err := store.RunInTransaction(context.Background(), func(tx *Transaction) error {
		return tx.DeleteGroup(domain.UngroupedID)
	})
	if err == nil {
		t.Fatalf("expected rejection")
	}
}

func TestUpdateMemberPinsUUID(t *testing.T) {
	store := seedStore(t)
	updated, _, err := NewService(store, nil, nil, nil, nil).UpdateMember(context.Background(), "u1", func(m *domain.Member) error {
		m.Name = "Ana Maria"
		m.UUID = "hijacked"
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.UUID != "u1" || updated.Name != "Ana Maria" {
		t.Fatalf("unexpected member: %+v", updated)
	}
}

func TestMoveMemberKeepsHistoryAttached(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()
	_, _, err := store.RunInTransaction(ctx, func(tx *Transaction) error {
		if err := tx.CreateGroup("g2", "Beta"); err != nil {
			return err
		}
		if _, err := tx.SignIn("g1", "u1", time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)); err != nil {
			return err
		}
		return tx.MoveMember("u1", "g2")
	})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	snapshot := store.Snapshot()
	if len(snapshot.Groups["g1"]) != 0 || len(snapshot.Groups["g2"]) != 1 {
		t.Fatalf("member not moved: %+v", snapshot.Groups)
	}
	if snapshot.Records[0].MemberUUID != "u1" || snapshot.Records[0].Group != "g1" {
		t.Fatalf("history rewritten by move: %+v", snapshot.Records[0])
	}
}

func TestExcludeIncludeRoundTrip(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()
	_, _, err := store.RunInTransaction(ctx, func(tx *Transaction) error {
		return tx.ExcludeMember("u1", "travel")
	})
	if err != nil {
		t.Fatalf("exclude: %v", err)
	}
	if store.Snapshot().Excluded["u1"].Reason != "travel" {
		t.Fatalf("exclusion not stored")
	}
	_, _, err = store.RunInTransaction(ctx, func(tx *Transaction) error {
		return tx.IncludeMember("u1")
	})
	if err != nil {
		t.Fatalf("include: %v", err)
	}
	if len(store.Snapshot().Excluded) != 0 {
		t.Fatalf("exclusion survived include")
	}
}

func TestDeleteMemberDropsExclusion(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()
	_, _, err := store.RunInTransaction(ctx, func(tx *Transaction) error {
		if err := tx.ExcludeMember("u1", "travel"); err != nil {
			return err
		}
		return tx.DeleteMember("u1")
	})
	if err != nil {
		t.Fatalf("delete member: %v", err)
	}
	snapshot := store.Snapshot()
	if len(snapshot.Groups["g1"]) != 0 || len(snapshot.Excluded) != 0 {
		t.Fatalf("delete left residue: %+v", snapshot)
	}
}

func TestReplaceAllAssignsMissingUUIDs(t *testing.T) {
	store := NewWorkingStore(NewDefaultRulesEngine())
	ds := domain.NewDataSet()
	ds.Groups["g1"] = []domain.Member{{Name: "NoID"}}
	ds.GroupNames["g1"] = "Alpha"

	_, _, err := store.RunInTransaction(context.Background(), func(tx *Transaction) error {
		tx.ReplaceAll(ds)
		return nil
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	got := store.Snapshot().Groups["g1"][0]
	if got.UUID == "" {
		t.Fatalf("uuid not assigned on import")
	}
}

package core

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"flockcore/internal/cache"
	"flockcore/internal/events"
	"flockcore/internal/infra/archive"
	"flockcore/internal/infra/localstore"
	"flockcore/internal/observability"
	"flockcore/pkg/domain"
)

func newTestService(t *testing.T) (*Service, localstore.Store, *events.Bus, *cache.Manager) {
	t.Helper()
	local := localstore.NewMemory()
	bus := events.NewBus()
	cacheMgr := cache.New(nil)
	svc := NewService(NewWorkingStore(NewDefaultRulesEngine()), local, bus, cacheMgr, observability.NewAuditTrail(nil))
	ctx := context.Background()
	if _, err := svc.CreateGroup(ctx, "g1", "Alpha"); err != nil {
		t.Fatalf("create group: %v", err)
	}
	if _, _, err := svc.AddMember(ctx, "g1", domain.Member{UUID: "u1", Name: "Ana"}); err != nil {
		t.Fatalf("add member: %v", err)
	}
	return svc, local, bus, cacheMgr
}

func TestSignInPersistsAndPublishes(t *testing.T) {
	svc, local, bus, _ := newTestService(t)
	ctx := context.Background()

	var got []events.Event
	bus.Subscribe(events.TopicSignIn, func(ev events.Event) { got = append(got, ev) })

	rec, _, err := svc.SignIn(ctx, "g1", "u1", time.Date(2025, 3, 2, 9, 35, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}

	if len(got) != 1 || got[0].EntityID != rec.RecordID {
		t.Fatalf("expected one sign-in event for %s, got %+v", rec.RecordID, got)
	}

	raw, ok := local.Load(localstore.KeyRecords)
	if !ok {
		t.Fatalf("records not persisted")
	}
	var stored []domain.AttendanceRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(stored) != 1 || stored[0].RecordID != rec.RecordID {
		t.Fatalf("persisted records mismatch: %+v", stored)
	}

	raw, ok = local.Load(localstore.KeyRecalcFlags)
	if !ok {
		t.Fatalf("recalc flags not persisted")
	}
	var flags map[string]bool
	if err := json.Unmarshal(raw, &flags); err != nil {
		t.Fatalf("decode flags: %v", err)
	}
	if !flags["u1"] {
		t.Fatalf("member not flagged for recalculation: %+v", flags)
	}
}

func TestMutationInvalidatesCaches(t *testing.T) {
	svc, _, _, cacheMgr := newTestService(t)
	ctx := context.Background()

	cacheMgr.Set(cache.TypeAbsenceStreak, "u1", 3, nil)
	cacheMgr.Set(cache.TypeReport, "", "report-payload", map[string]any{"month": "2025-03"})

	if _, _, err := svc.SignIn(ctx, "g1", "u1", time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	if _, ok := cacheMgr.Get(cache.TypeAbsenceStreak, "u1", nil); ok {
		t.Fatalf("member entry survived mutation")
	}
	if _, ok := cacheMgr.Get(cache.TypeReport, "", map[string]any{"month": "2025-03"}); ok {
		t.Fatalf("report aggregate survived record mutation")
	}
}

func TestClearRecordsPublishesAndCounts(t *testing.T) {
	svc, local, bus, _ := newTestService(t)
	ctx := context.Background()

	cleared := 0
	bus.Subscribe(events.TopicRecordsCleared, func(events.Event) { cleared++ })

	for i := 0; i < 3; i++ {
		if _, _, err := svc.SignIn(ctx, "g1", "u1", time.Date(2025, 3, 2, 9, i, 0, 0, time.UTC)); err != nil {
			t.Fatalf("sign in: %v", err)
		}
	}
	removed, _, err := svc.ClearRecords(ctx)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if removed != 3 {
		t.Fatalf("removed = %d, want 3", removed)
	}
	if cleared != 1 {
		t.Fatalf("expected one records-cleared event, got %d", cleared)
	}

	raw, ok := local.Load(localstore.KeyRecords)
	if !ok {
		t.Fatalf("records blob missing after clear")
	}
	if string(raw) != "null" && string(raw) != "[]" {
		t.Fatalf("records not emptied: %s", raw)
	}
}

func TestImportExportRoundTrip(t *testing.T) {
	svc, _, bus, _ := newTestService(t)
	ctx := context.Background()

	reloaded := 0
	bus.Subscribe(events.TopicDataReloaded, func(events.Event) { reloaded++ })

	ds := domain.NewDataSet()
	ds.Groups["g9"] = []domain.Member{{UUID: "u9", Name: "Noa"}}
	ds.GroupNames["g9"] = "Gamma"

	if _, err := svc.ImportDataSet(ctx, ds); err != nil {
		t.Fatalf("import: %v", err)
	}
	if reloaded != 1 {
		t.Fatalf("expected data-reloaded event")
	}

	out, err := svc.ExportDataSet(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if out.GroupNames["g9"] != "Gamma" || len(out.Groups["g9"]) != 1 {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestArchiveExportWritesArtifact(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	dst := archive.NewMemory()

	at := time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)
	info, err := svc.ArchiveExport(ctx, dst, at)
	if err != nil {
		t.Fatalf("archive export: %v", err)
	}
	if info.Key != archive.ExportKey(at) {
		t.Fatalf("unexpected key %s", info.Key)
	}

	payload, _, err := dst.Get(ctx, info.Key)
	if err != nil {
		t.Fatalf("get artifact: %v", err)
	}
	var ds domain.DataSet
	if err := json.Unmarshal(payload, &ds); err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	if len(ds.Groups["g1"]) != 1 {
		t.Fatalf("artifact missing roster: %+v", ds)
	}
}

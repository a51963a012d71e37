// Package reconcile decides which replica of the data set to trust, repairs
// structural damage in the local copy, and merges concurrent divergence
// between local and remote through a common base snapshot.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"flockcore/internal/consistency"
	"flockcore/internal/core"
	"flockcore/internal/events"
	"flockcore/internal/infra/localstore"
	"flockcore/internal/infra/remotestore"
	"flockcore/internal/observability"
	"flockcore/internal/schedule"
	"flockcore/pkg/domain"
)

// State names the loader's lifecycle position.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateLoaded   State = "loaded"
	StateStale    State = "stale"
)

// Source records which replica the working set was adopted from.
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
	SourceMerged Source = "merged"
	SourceEmpty  Source = "empty"
)

// Recorder receives sync metrics. Nil is valid and drops everything.
type Recorder interface {
	RecordSync(outcome string)
	RecordConflicts(count int)
	RecordRecordsMerged(count int)
	RecordRemoteLatency(duration time.Duration)
}

// Outcome summarizes one load pass.
type Outcome struct {
	State          State
	Source         Source
	Violations     []domain.Violation
	RepairedGroups []string
	PushPending    bool
	DeferredRepair bool
	Degraded       bool // remote was needed but unavailable
	MergedRecords  int
}

// Loader owns the Unloaded -> Loading -> Loaded (<-> Stale) state machine.
// All methods are safe for concurrent use; loads are serialized.
type Loader struct {
	mu      sync.Mutex
	state   State
	local   localstore.Store
	remote  remotestore.Tree
	store   *core.WorkingStore
	bus     *events.Bus
	audit   *observability.AuditTrail
	metrics Recorder
	nowFn   func() time.Time

	// freshness is the threshold after which an incremental refresh gives
	// way to a full reload.
	freshness time.Duration

	base        domain.DataSet
	lastSync    time.Time
	pushPending bool
}

// Config wires a loader. Local and store are required; remote may be nil
// for local-only operation, and bus, audit, and metrics may each be nil.
// Freshness defaults to 30 minutes.
type Config struct {
	Local     localstore.Store
	Remote    remotestore.Tree
	Store     *core.WorkingStore
	Bus       *events.Bus
	Audit     *observability.AuditTrail
	Metrics   Recorder
	Freshness time.Duration
}

// NewLoader constructs an unloaded loader.
func NewLoader(cfg Config) (*Loader, error) {
	if cfg.Local == nil || cfg.Store == nil {
		return nil, fmt.Errorf("loader requires a local store and a working store")
	}
	freshness := cfg.Freshness
	if freshness <= 0 {
		freshness = 30 * time.Minute
	}
	return &Loader{
		state:     StateUnloaded,
		local:     cfg.Local,
		remote:    cfg.Remote,
		store:     cfg.Store,
		bus:       cfg.Bus,
		audit:     cfg.Audit,
		metrics:   cfg.Metrics,
		nowFn:     func() time.Time { return time.Now().UTC() },
		freshness: freshness,
	}, nil
}

// State returns the loader's current lifecycle position.
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// MarkStale flags a loaded working set for re-check on the next Refresh.
func (l *Loader) MarkStale() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateLoaded {
		l.state = StateStale
	}
}

// Load runs the first-load decision tree: adopt valid local data (repairing
// gaps with remote help), fall back to a full remote fetch when the local
// copy is structurally broken, and purge broken local data only when it is
// not protected. Remote unavailability is never fatal.
func (l *Loader) Load(ctx context.Context) (Outcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = StateLoading
	if l.lastSync.IsZero() {
		l.lastSync = l.loadLastSync()
	}

	raw := l.readRaw()
	violations := domain.ValidateRaw(raw)
	groupsValid := !hasBlocking(violations, domain.RuleGroupsShape)
	namesValid := !hasBlocking(violations, domain.RuleGroupNamesShape)

	var outcome Outcome
	var err error
	if groupsValid && namesValid {
		outcome, err = l.adoptLocal(ctx, raw, violations)
	} else {
		outcome, err = l.recoverFromRemote(ctx, raw, violations, groupsValid)
	}
	if err != nil {
		l.state = StateUnloaded
		l.recordSync("error")
		return outcome, err
	}
	l.state = StateLoaded
	outcome.State = l.state
	if outcome.Degraded {
		l.recordSync("degraded")
	} else {
		l.recordSync("success")
	}
	if l.bus != nil {
		l.bus.Publish(events.Event{Topic: events.TopicDataReloaded})
	}
	return outcome, nil
}

// adoptLocal is the valid-local path: repair coverage gaps with remote
// assistance, adopt local as the working set, reconcile exclusions, and
// detect unsynced changes against the previous base snapshot.
func (l *Loader) adoptLocal(ctx context.Context, raw domain.RawDataSet, violations []domain.Violation) (Outcome, error) {
	outcome := Outcome{Source: SourceLocal, Violations: violations}

	ds, decodeViolations := domain.DecodeRaw(raw)
	outcome.Violations = append(outcome.Violations, decodeViolations...)

	repaired, degraded := l.repairCoverageGaps(ctx, &ds)
	outcome.RepairedGroups = repaired
	outcome.Degraded = degraded
	if len(repaired) > 0 {
		if err := l.local.Save(localstore.KeyGroups, ds.Groups); err != nil {
			return outcome, fmt.Errorf("persist repaired groups: %w", err)
		}
		l.note(fmt.Sprintf("repaired %d group list gap(s) during load", len(repaired)))
	}

	// Exclusions reconcile from remote only when the remote strictly has
	// more; a non-empty local set is never silently discarded.
	if adopted, ok := l.reconcileExcluded(ctx, &ds); ok && adopted {
		if err := l.local.Save(localstore.KeyExcluded, ds.Excluded); err != nil {
			return outcome, fmt.Errorf("persist reconciled exclusions: %w", err)
		}
	}

	prevBase, hadBase := l.loadBaseSnapshot()
	if err := l.adopt(ctx, ds, SourceLocal); err != nil {
		return outcome, err
	}
	if hadBase && !dataSetsEqual(ds, prevBase) {
		l.pushPending = true
		outcome.PushPending = true
		l.note("unsynced local changes detected; push pending")
	}
	return outcome, nil
}

// recoverFromRemote is the invalid-local path: fetch the remote replica
// (joined before validation), preserve whichever local collection is still
// valid, and otherwise purge or defer depending on the protected flag.
func (l *Loader) recoverFromRemote(ctx context.Context, raw domain.RawDataSet, violations []domain.Violation, groupsValid bool) (Outcome, error) {
	outcome := Outcome{Violations: violations}

	fetched, err := l.fetchRemote(ctx)
	if err != nil {
		if !errors.Is(err, remotestore.ErrUnavailable) {
			return outcome, err
		}
		outcome.Degraded = true
		return l.purgeOrDefer(ctx, outcome)
	}
	if len(fetched.Groups) == 0 || len(fetched.GroupNames) == 0 {
		return l.purgeOrDefer(ctx, outcome)
	}

	ds := fetched
	if groupsValid {
		// The local member lists survived; keep them and take the remote
		// copy only for groups the local side is missing.
		var localGroups domain.Groups
		if err := json.Unmarshal(raw.Groups, &localGroups); err == nil && len(localGroups) > 0 {
			merged := localGroups
			for id, members := range fetched.Groups {
				if _, ok := merged[id]; !ok {
					merged[id] = members
				}
			}
			ds.Groups = merged
		}
	}

	if err := l.persistAll(ds); err != nil {
		return outcome, err
	}
	if err := l.adopt(ctx, ds, SourceRemote); err != nil {
		return outcome, err
	}
	outcome.Source = SourceRemote
	l.lastSync = l.nowFn()
	l.saveLastSync()
	l.note("adopted remote replica after structural validation failure")
	return outcome, nil
}

// purgeOrDefer handles the worst case: local is broken and remote has no
// usable copy. Protected data is left untouched with a deferred-repair
// signal; unprotected data is purged so the next load starts clean.
func (l *Loader) purgeOrDefer(ctx context.Context, outcome Outcome) (Outcome, error) {
	if l.protected() {
		outcome.Source = SourceEmpty
		outcome.DeferredRepair = true
		l.note("local data invalid and protected; repair deferred, nothing purged")
		// Protected data stays on disk untouched, including the stored merge
		// ancestor; only the in-memory working set goes empty.
		if err := l.install(ctx, domain.NewDataSet(), SourceEmpty); err != nil {
			return outcome, err
		}
		return outcome, nil
	}
	for _, key := range []string{localstore.KeyGroups, localstore.KeyGroupNames, localstore.KeyRecords, localstore.KeyExcluded} {
		if err := l.local.Delete(key); err != nil {
			return outcome, fmt.Errorf("purge %s: %w", key, err)
		}
	}
	l.note("purged structurally invalid local data; next load starts clean")
	outcome.Source = SourceEmpty
	if err := l.adopt(ctx, domain.NewDataSet(), SourceEmpty); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// Refresh runs the staleness path: fetch only records newer than the last
// sync point and merge them in when that can be done confidently; fall back
// to a full reload when it cannot, or when the freshness threshold elapsed.
func (l *Loader) Refresh(ctx context.Context) (Outcome, error) {
	l.mu.Lock()
	if l.state == StateUnloaded {
		l.mu.Unlock()
		return l.Load(ctx)
	}
	if l.remote == nil {
		l.state = StateLoaded
		l.mu.Unlock()
		return Outcome{State: StateLoaded, Source: SourceLocal, Degraded: true}, nil
	}
	now := l.nowFn()
	if l.lastSync.IsZero() || now.Sub(l.lastSync) > l.freshness {
		l.mu.Unlock()
		return l.Load(ctx)
	}
	l.state = StateStale

	started := now
	incoming, err := l.remote.ReadRecordsSince(ctx, l.lastSync)
	l.observeLatency(started)
	if err != nil {
		// Remote unavailable: stay on local data.
		l.state = StateLoaded
		l.recordSync("degraded")
		l.mu.Unlock()
		return Outcome{State: StateLoaded, Source: SourceLocal, Degraded: true}, nil
	}

	current := l.store.Snapshot()
	existing := recordsByKey(current.Records)
	var fresh []domain.AttendanceRecord
	for _, rec := range incoming {
		key := consistency.RecordKey(rec)
		if have, ok := existing[key]; ok {
			if !have.Equal(rec) {
				// Same key, different content: not confidently mergeable.
				l.mu.Unlock()
				return l.Load(ctx)
			}
			continue
		}
		fresh = append(fresh, rec)
	}
	if len(fresh) > 0 {
		current.Records = append(current.Records, fresh...)
		if err := l.adopt(ctx, current, SourceMerged); err != nil {
			l.mu.Unlock()
			return Outcome{}, err
		}
		if err := l.local.Save(localstore.KeyRecords, current.Records); err != nil {
			l.mu.Unlock()
			return Outcome{}, fmt.Errorf("persist merged records: %w", err)
		}
		if l.metrics != nil {
			l.metrics.RecordRecordsMerged(len(fresh))
		}
	}
	l.lastSync = now
	l.saveLastSync()
	l.state = StateLoaded
	l.recordSync("success")
	l.mu.Unlock()
	return Outcome{State: StateLoaded, Source: SourceMerged, MergedRecords: len(fresh)}, nil
}

// Reconcile runs the three-way merge path: local has unsynced changes and
// the remote may have moved independently since the base snapshot.
// Conflicts come back as data, never as an error.
func (l *Loader) Reconcile(ctx context.Context) (MergeResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.remote == nil {
		return MergeResult{}, remotestore.ErrUnavailable
	}
	remote, err := l.fetchRemote(ctx)
	if err != nil {
		return MergeResult{}, err
	}
	local := l.store.Snapshot()
	result := Merge(l.base, local, remote)
	if l.metrics != nil && len(result.Conflicts) > 0 {
		l.metrics.RecordConflicts(len(result.Conflicts))
	}
	if len(result.Conflicts) > 0 {
		l.note(fmt.Sprintf("merge found %d conflict(s) requiring resolution", len(result.Conflicts)))
	}
	return result, nil
}

// CommitMerge adopts a fully resolved merge result as the working set and
// persists it. The caller obtains ds from Resolve (or from a clean merge).
func (l *Loader) CommitMerge(ctx context.Context, ds domain.DataSet) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.persistAll(ds); err != nil {
		return err
	}
	if err := l.adopt(ctx, ds, SourceMerged); err != nil {
		return err
	}
	l.pushPending = true
	l.note("merged data set committed")
	return nil
}

// Push writes the working set to the remote tree. Success advances the base
// snapshot and the last-sync point. Remote unavailability surfaces as
// ErrUnavailable for the caller to retry later; local state is unchanged.
func (l *Loader) Push(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.remote == nil {
		return remotestore.ErrUnavailable
	}
	snapshot := l.store.Snapshot()
	started := l.nowFn()
	writes := []struct {
		path  string
		value any
	}{
		{remotestore.PathGroups, snapshot.Groups},
		{remotestore.PathGroupNames, snapshot.GroupNames},
		{remotestore.PathRecords, recordsByKey(snapshot.Records)},
		{remotestore.PathExcluded, snapshot.Excluded},
	}
	for _, w := range writes {
		if err := l.remote.Write(ctx, w.path, w.value); err != nil {
			l.recordSync("degraded")
			return err
		}
	}
	l.observeLatency(started)
	l.base = snapshot
	l.saveBaseSnapshot(snapshot)
	l.lastSync = l.nowFn()
	l.saveLastSync()
	l.pushPending = false
	l.note("pushed local changes to remote; base snapshot advanced")
	l.recordSync("success")
	return nil
}

// RefreshTask is the schedule name used for recurring staleness re-checks.
const RefreshTask = "reconcile-refresh"

// ScheduleRefresh registers a recurring staleness re-check on the runner.
// Each tick marks the working set stale and runs the incremental refresh
// path; remote outages degrade inside Refresh and do not surface here.
func (l *Loader) ScheduleRefresh(ctx context.Context, runner *schedule.Runner, interval time.Duration) {
	runner.Every(ctx, RefreshTask, interval, func(ctx context.Context) error {
		l.MarkStale()
		_, err := l.Refresh(ctx)
		return err
	})
}

// PushPending reports whether unsynced local changes are awaiting a push.
func (l *Loader) PushPending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pushPending
}

// Snapshot returns the current working set, for reporting pages.
func (l *Loader) Snapshot() domain.DataSet {
	return l.store.Snapshot()
}

// --- internals ---

func (l *Loader) readRaw() domain.RawDataSet {
	var raw domain.RawDataSet
	if v, ok := l.local.Load(localstore.KeyGroups); ok {
		raw.Groups = v
	}
	if v, ok := l.local.Load(localstore.KeyGroupNames); ok {
		raw.GroupNames = v
	}
	if v, ok := l.local.Load(localstore.KeyRecords); ok {
		raw.Records = v
	}
	if v, ok := l.local.Load(localstore.KeyExcluded); ok {
		raw.Excluded = v
	}
	return raw
}

// repairCoverageGaps fills member-list gaps for named groups, copying the
// remote list when available and synthesizing an empty one otherwise. The
// remote is fetched at most once.
func (l *Loader) repairCoverageGaps(ctx context.Context, ds *domain.DataSet) (repaired []string, degraded bool) {
	var gaps []string
	for id := range ds.GroupNames {
		if _, ok := ds.Groups[id]; !ok {
			gaps = append(gaps, id)
		}
	}
	if len(gaps) == 0 {
		return nil, false
	}

	var remoteGroups domain.Groups
	if l.remote != nil {
		started := l.nowFn()
		raw, err := l.remote.ReadOnce(ctx, remotestore.PathGroups)
		l.observeLatency(started)
		if err != nil {
			degraded = true
		} else if raw != nil {
			_ = json.Unmarshal(raw, &remoteGroups)
		}
	} else {
		degraded = true
	}

	if ds.Groups == nil {
		ds.Groups = domain.Groups{}
	}
	for _, id := range gaps {
		if members, ok := remoteGroups[id]; ok {
			ds.Groups[id] = members
		} else {
			ds.Groups[id] = nil
		}
		repaired = append(repaired, id)
	}
	return repaired, degraded
}

// reconcileExcluded adopts the remote exclusion set only when it strictly
// outnumbers the local one. Returns (adopted, remoteReachable).
func (l *Loader) reconcileExcluded(ctx context.Context, ds *domain.DataSet) (bool, bool) {
	if l.remote == nil {
		return false, false
	}
	started := l.nowFn()
	raw, err := l.remote.ReadOnce(ctx, remotestore.PathExcluded)
	l.observeLatency(started)
	if err != nil {
		return false, false
	}
	remote, err := domain.NormalizeExcluded(raw)
	if err != nil {
		return false, true
	}
	if len(remote) > len(ds.Excluded) {
		l.note(fmt.Sprintf("adopted remote exclusion set (%d > %d entries)", len(remote), len(ds.Excluded)))
		ds.Excluded = remote
		return true, true
	}
	return false, true
}

// fetchRemote reads all four collections concurrently and joins before any
// validation decision is made.
func (l *Loader) fetchRemote(ctx context.Context) (domain.DataSet, error) {
	if l.remote == nil {
		return domain.DataSet{}, remotestore.ErrUnavailable
	}
	started := l.nowFn()
	var (
		groups   domain.Groups
		names    domain.GroupNames
		records  []domain.AttendanceRecord
		excluded domain.ExcludedMembers
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		raw, err := l.remote.ReadOnce(gctx, remotestore.PathGroups)
		if err != nil {
			return err
		}
		if raw != nil {
			return json.Unmarshal(raw, &groups)
		}
		return nil
	})
	g.Go(func() error {
		raw, err := l.remote.ReadOnce(gctx, remotestore.PathGroupNames)
		if err != nil {
			return err
		}
		if raw != nil {
			return json.Unmarshal(raw, &names)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		records, err = l.remote.ReadRecordsSince(gctx, time.Time{})
		return err
	})
	g.Go(func() error {
		raw, err := l.remote.ReadOnce(gctx, remotestore.PathExcluded)
		if err != nil {
			return err
		}
		excluded, err = domain.NormalizeExcluded(raw)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.DataSet{}, err
	}
	l.observeLatency(started)
	if excluded == nil {
		excluded = domain.ExcludedMembers{}
	}
	return domain.DataSet{Groups: groups, GroupNames: names, Records: records, Excluded: excluded}, nil
}

// install replaces the working set without touching the base snapshot.
func (l *Loader) install(ctx context.Context, ds domain.DataSet, source Source) error {
	_, _, err := l.store.RunInTransaction(ctx, func(tx *core.Transaction) error {
		tx.ReplaceAll(ds)
		return nil
	})
	if err != nil {
		return fmt.Errorf("adopt %s data: %w", source, err)
	}
	return nil
}

// adopt installs ds as the working set and records it as the new base.
func (l *Loader) adopt(ctx context.Context, ds domain.DataSet, source Source) error {
	if err := l.install(ctx, ds, source); err != nil {
		return err
	}
	adopted := l.store.Snapshot()
	l.base = adopted
	l.saveBaseSnapshot(adopted)
	return nil
}

func (l *Loader) persistAll(ds domain.DataSet) error {
	saves := []struct {
		key   string
		value any
	}{
		{localstore.KeyGroups, ds.Groups},
		{localstore.KeyGroupNames, ds.GroupNames},
		{localstore.KeyRecords, ds.Records},
		{localstore.KeyExcluded, ds.Excluded},
	}
	for _, save := range saves {
		if err := l.local.Save(save.key, save.value); err != nil {
			return fmt.Errorf("persist %s: %w", save.key, err)
		}
	}
	return nil
}

func (l *Loader) loadBaseSnapshot() (domain.DataSet, bool) {
	raw, ok := l.local.Load(localstore.KeyBaseSnapshot)
	if !ok {
		return domain.DataSet{}, false
	}
	var ds domain.DataSet
	if err := json.Unmarshal(raw, &ds); err != nil {
		return domain.DataSet{}, false
	}
	return ds, true
}

func (l *Loader) saveBaseSnapshot(ds domain.DataSet) {
	_ = l.local.Save(localstore.KeyBaseSnapshot, ds)
}

func (l *Loader) saveLastSync() {
	_ = l.local.Save(localstore.KeyLastSync, l.lastSync.UTC().Format(time.RFC3339))
}

func (l *Loader) loadLastSync() time.Time {
	raw, ok := l.local.Load(localstore.KeyLastSync)
	if !ok {
		return time.Time{}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (l *Loader) protected() bool {
	raw, ok := l.local.Load(localstore.KeyProtected)
	if !ok {
		return false
	}
	var flag bool
	if err := json.Unmarshal(raw, &flag); err != nil {
		return false
	}
	return flag
}

func (l *Loader) note(msg string) {
	if l.audit != nil {
		l.audit.Note(msg)
	}
}

func (l *Loader) recordSync(outcome string) {
	if l.metrics != nil {
		l.metrics.RecordSync(outcome)
	}
}

func (l *Loader) observeLatency(started time.Time) {
	if l.metrics != nil {
		l.metrics.RecordRemoteLatency(l.nowFn().Sub(started))
	}
}

func hasBlocking(violations []domain.Violation, rule string) bool {
	for _, v := range violations {
		if v.Rule == rule && v.Severity == domain.SeverityBlock {
			return true
		}
	}
	return false
}

func dataSetsEqual(a, b domain.DataSet) bool {
	aj, err := json.Marshal(canonicalDataSet(a))
	if err != nil {
		return false
	}
	bj, err := json.Marshal(canonicalDataSet(b))
	if err != nil {
		return false
	}
	return string(aj) == string(bj)
}

// canonicalDataSet normalizes collection representations (nil vs empty) so
// equality checks compare content, not allocation history.
func canonicalDataSet(d domain.DataSet) domain.DataSet {
	out := d.Clone()
	if out.Groups == nil {
		out.Groups = domain.Groups{}
	}
	if out.GroupNames == nil {
		out.GroupNames = domain.GroupNames{}
	}
	if out.Excluded == nil {
		out.Excluded = domain.ExcludedMembers{}
	}
	if out.Records == nil {
		out.Records = []domain.AttendanceRecord{}
	}
	for id, members := range out.Groups {
		if members == nil {
			out.Groups[id] = []domain.Member{}
		}
	}
	return out
}

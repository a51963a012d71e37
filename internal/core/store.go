package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"flockcore/internal/identity"
	"flockcore/pkg/domain"
)

// WorkingStore is the in-memory transactional store for the working data
// set. Mutations run against a cloned state; registered rules evaluate the
// result, and blocking violations abort the commit.
type WorkingStore struct {
	mu     sync.RWMutex
	data   domain.DataSet
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewWorkingStore constructs a store backed by the provided rules engine.
func NewWorkingStore(engine *RulesEngine) *WorkingStore {
	if engine == nil {
		engine = NewRulesEngine()
	}
	return &WorkingStore{
		data:   domain.NewDataSet(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// Transaction represents a mutation set applied to the store state.
type Transaction struct {
	store   *WorkingStore
	data    domain.DataSet
	changes []domain.Change
	now     time.Time
}

// TransactionView exposes a read-only snapshot of the transactional state
// to rules.
type TransactionView struct {
	data *domain.DataSet
}

func newTransactionView(data *domain.DataSet) TransactionView {
	return TransactionView{data: data}
}

// Groups returns the group map within the snapshot.
func (v TransactionView) Groups() domain.Groups {
	return v.data.Clone().Groups
}

// GroupNames returns the display-name map within the snapshot.
func (v TransactionView) GroupNames() domain.GroupNames {
	return v.data.Clone().GroupNames
}

// Records returns all attendance records within the snapshot.
func (v TransactionView) Records() []domain.AttendanceRecord {
	return append([]domain.AttendanceRecord(nil), v.data.Records...)
}

// Excluded returns the exclusion map within the snapshot.
func (v TransactionView) Excluded() domain.ExcludedMembers {
	return v.data.Clone().Excluded
}

// FindMember locates a member by UUID, returning the containing group ID.
func (v TransactionView) FindMember(memberUUID string) (domain.Member, string, bool) {
	for groupID, members := range v.data.Groups {
		for _, m := range members {
			if m.UUID == memberUUID {
				return domain.CloneMember(m), groupID, true
			}
		}
	}
	return domain.Member{}, "", false
}

// RunInTransaction executes fn within a transactional copy of the store
// state. Committed changes come back alongside the rule result so callers
// can propagate them to caches, events, and the audit trail.
func (s *WorkingStore) RunInTransaction(ctx context.Context, fn func(tx *Transaction) error) (domain.Result, []domain.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Transaction{
		store: s,
		data:  s.data.Clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return domain.Result{}, nil, err
	}

	var result domain.Result
	if s.engine != nil {
		view := newTransactionView(&tx.data)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return domain.Result{}, nil, err
		}
		result = res
		if res.HasBlocking() {
			return res, nil, domain.RuleViolationError{Result: res}
		}
	}

	s.data = tx.data
	return result, tx.changes, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *WorkingStore) View(ctx context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.data.Clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// Snapshot returns a deep copy of the committed data set.
func (s *WorkingStore) Snapshot() domain.DataSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Clone()
}

func (tx *Transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

// CreateGroup registers a new group with an empty member list and its
// display name in one step, so name coverage can never be violated by
// creation.
func (tx *Transaction) CreateGroup(id, name string) error {
	if id == "" {
		return fmt.Errorf("group id required")
	}
	if _, exists := tx.data.Groups[id]; exists {
		return fmt.Errorf("group %q already exists", id)
	}
	tx.data.Groups[id] = nil
	tx.data.GroupNames[id] = name
	tx.recordChange(domain.Change{Entity: domain.EntityGroup, Action: domain.ActionCreate, EntityID: id, After: name})
	return nil
}

// RenameGroup updates a group's display name. Historical records keep their
// group snapshots, so renames never rewrite attendance data.
func (tx *Transaction) RenameGroup(id, name string) error {
	if _, exists := tx.data.Groups[id]; !exists {
		return fmt.Errorf("group %q not found", id)
	}
	before := tx.data.GroupNames[id]
	tx.data.GroupNames[id] = name
	tx.recordChange(domain.Change{Entity: domain.EntityGroup, Action: domain.ActionUpdate, EntityID: id, Before: before, After: name})
	return nil
}

// DeleteGroup removes a group, moves its members to the ungrouped bucket,
// and cascades removal of the group's attendance records.
func (tx *Transaction) DeleteGroup(id string) error {
	if id == domain.UngroupedID {
		return fmt.Errorf("the %s group cannot be deleted", domain.UngroupedID)
	}
	members, exists := tx.data.Groups[id]
	if !exists {
		return fmt.Errorf("group %q not found", id)
	}
	tx.data.Groups[domain.UngroupedID] = append(tx.data.Groups[domain.UngroupedID], members...)
	delete(tx.data.Groups, id)
	name := tx.data.GroupNames[id]
	delete(tx.data.GroupNames, id)

	kept := tx.data.Records[:0]
	var removed []domain.AttendanceRecord
	for _, rec := range tx.data.Records {
		if rec.Group == id {
			removed = append(removed, rec)
			continue
		}
		kept = append(kept, rec)
	}
	tx.data.Records = kept

	tx.recordChange(domain.Change{Entity: domain.EntityGroup, Action: domain.ActionDelete, EntityID: id, Before: name})
	for _, rec := range removed {
		tx.recordChange(domain.Change{Entity: domain.EntityAttendanceRecord, Action: domain.ActionDelete, EntityID: rec.RecordID, Before: rec})
	}
	return nil
}

// AddMember appends a member to a group, assigning a UUID when absent.
func (tx *Transaction) AddMember(groupID string, m domain.Member) (domain.Member, error) {
	if _, exists := tx.data.Groups[groupID]; !exists {
		return domain.Member{}, fmt.Errorf("group %q not found", groupID)
	}
	m = identity.EnsureUUID(m)
	if _, _, found := newTransactionView(&tx.data).FindMember(m.UUID); found {
		return domain.Member{}, fmt.Errorf("member %s already exists", m.UUID)
	}
	m.CreatedAt = tx.now
	m.UpdatedAt = tx.now
	tx.data.Groups[groupID] = append(tx.data.Groups[groupID], domain.CloneMember(m))
	tx.recordChange(domain.Change{Entity: domain.EntityMember, Action: domain.ActionCreate, EntityID: m.UUID, After: domain.CloneMember(m)})
	return m, nil
}

// UpdateMember mutates a member in place using the provided mutator. The
// UUID is pinned; mutators cannot reassign identity.
func (tx *Transaction) UpdateMember(memberUUID string, mutator func(*domain.Member) error) (domain.Member, error) {
	for groupID, members := range tx.data.Groups {
		for i, m := range members {
			if m.UUID != memberUUID {
				continue
			}
			before := domain.CloneMember(m)
			current := domain.CloneMember(m)
			if err := mutator(&current); err != nil {
				return domain.Member{}, err
			}
			current.UUID = memberUUID
			current.UpdatedAt = tx.now
			tx.data.Groups[groupID][i] = domain.CloneMember(current)
			tx.recordChange(domain.Change{Entity: domain.EntityMember, Action: domain.ActionUpdate, EntityID: memberUUID, Before: before, After: domain.CloneMember(current)})
			return current, nil
		}
	}
	return domain.Member{}, fmt.Errorf("member %s not found", memberUUID)
}

// MoveMember relocates a member to another group. Attendance history stays
// attached through the UUID.
func (tx *Transaction) MoveMember(memberUUID, toGroup string) error {
	if _, exists := tx.data.Groups[toGroup]; !exists {
		return fmt.Errorf("group %q not found", toGroup)
	}
	for groupID, members := range tx.data.Groups {
		for i, m := range members {
			if m.UUID != memberUUID {
				continue
			}
			if groupID == toGroup {
				return nil
			}
			tx.data.Groups[groupID] = append(members[:i:i], members[i+1:]...)
			moved := domain.CloneMember(m)
			moved.UpdatedAt = tx.now
			tx.data.Groups[toGroup] = append(tx.data.Groups[toGroup], moved)
			tx.recordChange(domain.Change{Entity: domain.EntityMember, Action: domain.ActionUpdate, EntityID: memberUUID, Before: groupID, After: toGroup})
			return nil
		}
	}
	return fmt.Errorf("member %s not found", memberUUID)
}

// DeleteMember removes a member from the roster and drops any exclusion
// entry. Attendance records survive on their snapshots.
func (tx *Transaction) DeleteMember(memberUUID string) error {
	for groupID, members := range tx.data.Groups {
		for i, m := range members {
			if m.UUID != memberUUID {
				continue
			}
			tx.data.Groups[groupID] = append(members[:i:i], members[i+1:]...)
			delete(tx.data.Excluded, memberUUID)
			tx.recordChange(domain.Change{Entity: domain.EntityMember, Action: domain.ActionDelete, EntityID: memberUUID, Before: domain.CloneMember(m)})
			return nil
		}
	}
	return fmt.Errorf("member %s not found", memberUUID)
}

// SignIn appends an attendance record for a member of the given group,
// capturing member and group snapshots and classifying the time slot.
func (tx *Transaction) SignIn(groupID, memberUUID string, at time.Time) (domain.AttendanceRecord, error) {
	members, exists := tx.data.Groups[groupID]
	if !exists {
		return domain.AttendanceRecord{}, fmt.Errorf("group %q not found", groupID)
	}
	var member domain.Member
	found := false
	for _, m := range members {
		if m.UUID == memberUUID {
			member = m
			found = true
			break
		}
	}
	if !found {
		return domain.AttendanceRecord{}, fmt.Errorf("member %s not in group %q", memberUUID, groupID)
	}
	rec := domain.AttendanceRecord{
		RecordID:   uuid.New().String(),
		Group:      groupID,
		MemberUUID: memberUUID,
		Time:       at.UTC(),
		Slot:       domain.ClassifySlot(at),
		MemberSnapshot: domain.MemberSnapshot{
			UUID:     member.UUID,
			Name:     member.Name,
			Nickname: member.Nickname,
		},
		GroupSnapshot: domain.GroupSnapshot{
			GroupID:   groupID,
			GroupName: tx.data.GroupNames[groupID],
		},
	}
	tx.data.Records = append(tx.data.Records, rec)
	tx.recordChange(domain.Change{Entity: domain.EntityAttendanceRecord, Action: domain.ActionCreate, EntityID: rec.RecordID, After: rec})
	return rec, nil
}

// ExcludeMember exempts a member from absence tracking.
func (tx *Transaction) ExcludeMember(memberUUID, reason string) error {
	if _, _, found := newTransactionView(&tx.data).FindMember(memberUUID); !found {
		return fmt.Errorf("member %s not found", memberUUID)
	}
	before, existed := tx.data.Excluded[memberUUID]
	entry := domain.ExcludedMember{UUID: memberUUID, Reason: reason, ExcludedAt: tx.now}
	tx.data.Excluded[memberUUID] = entry
	action := domain.ActionCreate
	var beforeAny any
	if existed {
		action = domain.ActionUpdate
		beforeAny = before
	}
	tx.recordChange(domain.Change{Entity: domain.EntityExcludedMember, Action: action, EntityID: memberUUID, Before: beforeAny, After: entry})
	return nil
}

// IncludeMember lifts a member's absence-tracking exemption.
func (tx *Transaction) IncludeMember(memberUUID string) error {
	entry, exists := tx.data.Excluded[memberUUID]
	if !exists {
		return fmt.Errorf("member %s is not excluded", memberUUID)
	}
	delete(tx.data.Excluded, memberUUID)
	tx.recordChange(domain.Change{Entity: domain.EntityExcludedMember, Action: domain.ActionDelete, EntityID: memberUUID, Before: entry})
	return nil
}

// ClearRecords removes every attendance record, returning the removed count.
func (tx *Transaction) ClearRecords() int {
	removed := len(tx.data.Records)
	if removed == 0 {
		return 0
	}
	before := tx.data.Records
	tx.data.Records = nil
	tx.recordChange(domain.Change{Entity: domain.EntityAttendanceRecord, Action: domain.ActionDelete, EntityID: "*", Before: before})
	return removed
}

// ReplaceAll swaps the entire working set, assigning missing member UUIDs.
// Used by imports and by the reconciliation loader when adopting data.
func (tx *Transaction) ReplaceAll(ds domain.DataSet) {
	cloned := ds.Clone()
	if cloned.Groups == nil {
		cloned.Groups = domain.Groups{domain.UngroupedID: nil}
	}
	if cloned.GroupNames == nil {
		cloned.GroupNames = domain.GroupNames{}
	}
	if cloned.Excluded == nil {
		cloned.Excluded = domain.ExcludedMembers{}
	}
	cloned.Groups, _ = identity.EnsureGroups(cloned.Groups)
	before := tx.data
	tx.data = cloned
	tx.recordChange(domain.Change{Entity: domain.EntityGroup, Action: domain.ActionUpdate, EntityID: "*", Before: before, After: cloned.Clone()})
}

package reconcile

import (
	"fmt"
	"sort"
	"time"

	"flockcore/internal/consistency"
	"flockcore/internal/identity"
	"flockcore/pkg/domain"
)

// Collection names conflicts refer to.
const (
	CollectionGroups     = "groups"
	CollectionGroupNames = "group_names"
	CollectionRecords    = "attendance_records"
	CollectionExcluded   = "excluded_members"
)

// FieldExistence marks a conflict over whether the entity exists at all,
// as opposed to a divergence in one of its fields.
const FieldExistence = "existence"

// Conflict is one same-key same-field divergence the merge cannot resolve
// on its own. Base carries the common-ancestor value; Local and Remote carry
// the two divergent values (nil meaning deleted on that side).
type Conflict struct {
	Collection string `json:"collection"`
	Key        string `json:"key"`
	Field      string `json:"field"`
	Base       any    `json:"base,omitempty"`
	Local      any    `json:"local"`
	Remote     any    `json:"remote"`
}

// MergeResult is the outcome of a three-way merge. Merged holds everything
// that reconciled automatically; Conflicts holds the divergences requiring
// explicit resolution before the result may be committed.
type MergeResult struct {
	Merged    domain.DataSet
	Conflicts []Conflict
}

// Clean reports whether the merge completed without conflicts.
func (r MergeResult) Clean() bool { return len(r.Conflicts) == 0 }

// Choice selects how one conflict resolves.
type Choice string

const (
	ChooseLocal  Choice = "local"
	ChooseRemote Choice = "remote"
	ChooseManual Choice = "manual"
)

// Resolution pairs a conflict with the chosen outcome.
type Resolution struct {
	Conflict Conflict
	Choice   Choice
	Manual   any // used when Choice is ChooseManual
}

// Merge performs a three-way merge of local and remote against their common
// base. Disjoint changes merge automatically with zero loss; same-key
// same-field divergence is returned as a conflict. Neither side's change is
// ever dropped without a conflict entry.
func Merge(base, local, remote domain.DataSet) MergeResult {
	out := MergeResult{Merged: domain.NewDataSet()}
	mergeGroupNames(&out, base.GroupNames, local.GroupNames, remote.GroupNames)
	mergeMembers(&out, base.Groups, local.Groups, remote.Groups)
	mergeRecords(&out, base.Records, local.Records, remote.Records)
	mergeExcluded(&out, base.Excluded, local.Excluded, remote.Excluded)
	// Every surviving group keeps a list, and every named group exists.
	for id := range out.Merged.GroupNames {
		if _, ok := out.Merged.Groups[id]; !ok {
			out.Merged.Groups[id] = nil
		}
	}
	return out
}

func mergeGroupNames(out *MergeResult, base, local, remote domain.GroupNames) {
	for _, id := range unionKeysStr(base, local, remote) {
		baseV, inBase := base[id]
		localV, inLocal := local[id]
		remoteV, inRemote := remote[id]

		localChanged := inLocal != inBase || (inLocal && localV != baseV)
		remoteChanged := inRemote != inBase || (inRemote && remoteV != baseV)

		switch {
		case localChanged && remoteChanged:
			if inLocal == inRemote && localV == remoteV {
				if inLocal {
					out.Merged.GroupNames[id] = localV
				} else {
					delete(out.Merged.GroupNames, id)
				}
				continue
			}
			out.Conflicts = append(out.Conflicts, Conflict{
				Collection: CollectionGroupNames,
				Key:        id,
				Field:      nameConflictField(inLocal, inRemote),
				Base:       presentOrNil(inBase, baseV),
				Local:      presentOrNil(inLocal, localV),
				Remote:     presentOrNil(inRemote, remoteV),
			})
		case localChanged:
			if inLocal {
				out.Merged.GroupNames[id] = localV
			} else {
				delete(out.Merged.GroupNames, id)
			}
		case remoteChanged:
			if inRemote {
				out.Merged.GroupNames[id] = remoteV
			} else {
				delete(out.Merged.GroupNames, id)
			}
		case inBase:
			out.Merged.GroupNames[id] = baseV
		}
	}
}

func nameConflictField(inLocal, inRemote bool) string {
	if inLocal != inRemote {
		return FieldExistence
	}
	return "name"
}

// memberFields is the per-field descriptor set used for member-level
// three-way merging.
var memberFields = []struct {
	name string
	get  func(domain.Member) any
	set  func(*domain.Member, any) error
}{
	{"name", func(m domain.Member) any { return m.Name }, func(m *domain.Member, v any) error { return setString(&m.Name, v) }},
	{"nickname", func(m domain.Member) any { return m.Nickname }, func(m *domain.Member, v any) error { return setString(&m.Nickname, v) }},
	{"phone", func(m domain.Member) any { return m.Phone }, func(m *domain.Member, v any) error { return setString(&m.Phone, v) }},
	{"gender", func(m domain.Member) any { return m.Gender }, func(m *domain.Member, v any) error {
		s, ok := v.(domain.Gender)
		if !ok {
			return fmt.Errorf("gender: unexpected %T", v)
		}
		m.Gender = s
		return nil
	}},
	{"baptized", func(m domain.Member) any { return m.Baptized }, func(m *domain.Member, v any) error {
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("baptized: unexpected %T", v)
		}
		m.Baptized = b
		return nil
	}},
	{"age_bracket", func(m domain.Member) any { return m.Age }, func(m *domain.Member, v any) error {
		a, ok := v.(domain.AgeBracket)
		if !ok {
			return fmt.Errorf("age_bracket: unexpected %T", v)
		}
		m.Age = a
		return nil
	}},
	{"join_date", func(m domain.Member) any { return joinDateValue(m) }, func(m *domain.Member, v any) error {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("join_date: unexpected %T", v)
		}
		return setJoinDate(m, s)
	}},
	{"quick_add", func(m domain.Member) any { return m.QuickAdd }, func(m *domain.Member, v any) error {
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("quick_add: unexpected %T", v)
		}
		m.QuickAdd = b
		return nil
	}},
}

// The group a member sits in merges like any other member field.
const memberFieldGroup = "group"

func mergeMembers(out *MergeResult, base, local, remote domain.Groups) {
	baseIdx, _ := identity.Index(base)
	localIdx, _ := identity.Index(local)
	remoteIdx, _ := identity.Index(remote)

	ids := map[string]struct{}{}
	for id := range baseIdx {
		ids[id] = struct{}{}
	}
	for id := range localIdx {
		ids[id] = struct{}{}
	}
	for id := range remoteIdx {
		ids[id] = struct{}{}
	}

	for _, id := range sortedKeys(ids) {
		baseRef, inBase := baseIdx[id]
		localRef, inLocal := localIdx[id]
		remoteRef, inRemote := remoteIdx[id]

		switch {
		case inLocal && inRemote:
			merged, conflicts := mergeOneMember(id, baseRef, localRef, remoteRef, inBase)
			out.Conflicts = append(out.Conflicts, conflicts...)
			placeMember(&out.Merged, merged.GroupID, merged.Member)
		case inLocal && !inRemote:
			if !inBase {
				// Added locally.
				placeMember(&out.Merged, localRef.GroupID, localRef.Member)
				continue
			}
			if memberEqual(baseRef, localRef) {
				// Deleted remotely, untouched locally: deletion wins.
				continue
			}
			out.Conflicts = append(out.Conflicts, Conflict{
				Collection: CollectionGroups,
				Key:        id,
				Field:      FieldExistence,
				Base:       baseRef.Member,
				Local:      localRef.Member,
				Remote:     nil,
			})
		case !inLocal && inRemote:
			if !inBase {
				placeMember(&out.Merged, remoteRef.GroupID, remoteRef.Member)
				continue
			}
			if memberEqual(baseRef, remoteRef) {
				continue
			}
			out.Conflicts = append(out.Conflicts, Conflict{
				Collection: CollectionGroups,
				Key:        id,
				Field:      FieldExistence,
				Base:       baseRef.Member,
				Local:      nil,
				Remote:     remoteRef.Member,
			})
		}
	}
}

func mergeOneMember(id string, baseRef, localRef, remoteRef identity.Ref, inBase bool) (identity.Ref, []Conflict) {
	merged := identity.Ref{GroupID: localRef.GroupID, Member: domain.CloneMember(localRef.Member)}
	var conflicts []Conflict

	if !inBase {
		// Added independently on both sides: there is no ancestor, so any
		// diverging field is a conflict outright.
		if localRef.GroupID != remoteRef.GroupID {
			conflicts = append(conflicts, Conflict{
				Collection: CollectionGroups,
				Key:        id,
				Field:      memberFieldGroup,
				Local:      localRef.GroupID,
				Remote:     remoteRef.GroupID,
			})
		}
		for _, f := range memberFields {
			localV := f.get(localRef.Member)
			remoteV := f.get(remoteRef.Member)
			if localV != remoteV {
				conflicts = append(conflicts, Conflict{
					Collection: CollectionGroups,
					Key:        id,
					Field:      f.name,
					Local:      localV,
					Remote:     remoteV,
				})
			}
		}
		return merged, conflicts
	}

	merged = identity.Ref{GroupID: baseRef.GroupID, Member: domain.CloneMember(baseRef.Member)}
	localMoved := localRef.GroupID != baseRef.GroupID
	remoteMoved := remoteRef.GroupID != baseRef.GroupID
	switch {
	case localMoved && remoteMoved && localRef.GroupID != remoteRef.GroupID:
		conflicts = append(conflicts, Conflict{
			Collection: CollectionGroups,
			Key:        id,
			Field:      memberFieldGroup,
			Base:       baseRef.GroupID,
			Local:      localRef.GroupID,
			Remote:     remoteRef.GroupID,
		})
	case localMoved:
		merged.GroupID = localRef.GroupID
	case remoteMoved:
		merged.GroupID = remoteRef.GroupID
	}

	for _, f := range memberFields {
		baseV := f.get(baseRef.Member)
		localV := f.get(localRef.Member)
		remoteV := f.get(remoteRef.Member)
		localChanged := localV != baseV
		remoteChanged := remoteV != baseV
		switch {
		case localChanged && remoteChanged && localV != remoteV:
			conflicts = append(conflicts, Conflict{
				Collection: CollectionGroups,
				Key:        id,
				Field:      f.name,
				Base:       baseV,
				Local:      localV,
				Remote:     remoteV,
			})
		case localChanged:
			_ = f.set(&merged.Member, localV)
		case remoteChanged:
			_ = f.set(&merged.Member, remoteV)
		}
	}
	return merged, conflicts
}

func mergeRecords(out *MergeResult, base, local, remote []domain.AttendanceRecord) {
	baseByKey := recordsByKey(base)
	localByKey := recordsByKey(local)
	remoteByKey := recordsByKey(remote)

	keys := map[string]struct{}{}
	for k := range baseByKey {
		keys[k] = struct{}{}
	}
	for k := range localByKey {
		keys[k] = struct{}{}
	}
	for k := range remoteByKey {
		keys[k] = struct{}{}
	}

	for _, key := range sortedKeys(keys) {
		baseRec, inBase := baseByKey[key]
		localRec, inLocal := localByKey[key]
		remoteRec, inRemote := remoteByKey[key]

		switch {
		case inLocal && inRemote:
			if localRec.Equal(remoteRec) {
				out.Merged.Records = append(out.Merged.Records, localRec)
				continue
			}
			if !inBase {
				// Same key created on both sides with different content. No
				// ancestor exists to merge field-by-field against, so the
				// whole record is one existence conflict and the chooser picks
				// a side.
				out.Conflicts = append(out.Conflicts, Conflict{
					Collection: CollectionRecords,
					Key:        key,
					Field:      FieldExistence,
					Local:      localRec,
					Remote:     remoteRec,
				})
				continue
			}
			merged := baseRec
			for _, field := range consistency.FieldNames() {
				baseV := consistency.FieldValue(baseRec, field)
				localV := consistency.FieldValue(localRec, field)
				remoteV := consistency.FieldValue(remoteRec, field)
				localChanged := localV != baseV
				remoteChanged := remoteV != baseV
				switch {
				case localChanged && remoteChanged && localV != remoteV:
					out.Conflicts = append(out.Conflicts, Conflict{
						Collection: CollectionRecords,
						Key:        key,
						Field:      field,
						Base:       baseV,
						Local:      localV,
						Remote:     remoteV,
					})
				case localChanged:
					setRecordField(&merged, field, localRec)
				case remoteChanged:
					setRecordField(&merged, field, remoteRec)
				}
			}
			// Conflicted fields keep the base value until a field-level
			// resolution patches them in place.
			out.Merged.Records = append(out.Merged.Records, merged)
		case inLocal:
			if inBase && baseRec.Equal(localRec) {
				// Deleted remotely, untouched locally.
				continue
			}
			if !inBase {
				out.Merged.Records = append(out.Merged.Records, localRec)
				continue
			}
			out.Conflicts = append(out.Conflicts, Conflict{
				Collection: CollectionRecords,
				Key:        key,
				Field:      FieldExistence,
				Base:       baseRec,
				Local:      localRec,
				Remote:     nil,
			})
		case inRemote:
			if inBase && baseRec.Equal(remoteRec) {
				continue
			}
			if !inBase {
				out.Merged.Records = append(out.Merged.Records, remoteRec)
				continue
			}
			out.Conflicts = append(out.Conflicts, Conflict{
				Collection: CollectionRecords,
				Key:        key,
				Field:      FieldExistence,
				Base:       baseRec,
				Local:      nil,
				Remote:     remoteRec,
			})
		}
	}
	sort.Slice(out.Merged.Records, func(i, j int) bool {
		return out.Merged.Records[i].Time.Before(out.Merged.Records[j].Time)
	})
}

func mergeExcluded(out *MergeResult, base, local, remote domain.ExcludedMembers) {
	ids := map[string]struct{}{}
	for id := range base {
		ids[id] = struct{}{}
	}
	for id := range local {
		ids[id] = struct{}{}
	}
	for id := range remote {
		ids[id] = struct{}{}
	}

	for _, id := range sortedKeys(ids) {
		baseV, inBase := base[id]
		localV, inLocal := local[id]
		remoteV, inRemote := remote[id]

		localChanged := inLocal != inBase || (inLocal && localV.Reason != baseV.Reason)
		remoteChanged := inRemote != inBase || (inRemote && remoteV.Reason != baseV.Reason)

		switch {
		case localChanged && remoteChanged:
			if inLocal == inRemote && (!inLocal || localV.Reason == remoteV.Reason) {
				if inLocal {
					out.Merged.Excluded[id] = localV
				}
				continue
			}
			field := "reason"
			if inLocal != inRemote {
				field = FieldExistence
			}
			out.Conflicts = append(out.Conflicts, Conflict{
				Collection: CollectionExcluded,
				Key:        id,
				Field:      field,
				Base:       presentOrNilExcluded(inBase, baseV),
				Local:      presentOrNilExcluded(inLocal, localV),
				Remote:     presentOrNilExcluded(inRemote, remoteV),
			})
		case localChanged:
			if inLocal {
				out.Merged.Excluded[id] = localV
			}
		case remoteChanged:
			if inRemote {
				out.Merged.Excluded[id] = remoteV
			}
		case inBase:
			out.Merged.Excluded[id] = baseV
		}
	}
}

// Resolve applies explicit resolutions to a conflicted merge and returns the
// final data set. Every conflict must carry a resolution; an unresolved
// conflict is an error, never a silent pick.
func Resolve(result MergeResult, resolutions []Resolution) (domain.DataSet, error) {
	byKey := map[string]Resolution{}
	for _, res := range resolutions {
		byKey[res.Conflict.Collection+"|"+res.Conflict.Key+"|"+res.Conflict.Field] = res
	}
	out := result.Merged.Clone()
	for _, c := range result.Conflicts {
		res, ok := byKey[c.Collection+"|"+c.Key+"|"+c.Field]
		if !ok {
			return domain.DataSet{}, fmt.Errorf("conflict %s/%s/%s unresolved", c.Collection, c.Key, c.Field)
		}
		var value any
		switch res.Choice {
		case ChooseLocal:
			value = c.Local
		case ChooseRemote:
			value = c.Remote
		case ChooseManual:
			value = res.Manual
		default:
			return domain.DataSet{}, fmt.Errorf("conflict %s/%s/%s: unknown choice %q", c.Collection, c.Key, c.Field, res.Choice)
		}
		if err := applyResolution(&out, c, value); err != nil {
			return domain.DataSet{}, err
		}
	}
	return out, nil
}

func applyResolution(ds *domain.DataSet, c Conflict, value any) error {
	switch c.Collection {
	case CollectionGroupNames:
		if value == nil {
			delete(ds.GroupNames, c.Key)
			return nil
		}
		name, ok := value.(string)
		if !ok {
			return fmt.Errorf("group name resolution: unexpected %T", value)
		}
		ds.GroupNames[c.Key] = name
		return nil
	case CollectionGroups:
		return applyMemberResolution(ds, c, value)
	case CollectionRecords:
		return applyRecordResolution(ds, c, value)
	case CollectionExcluded:
		if value == nil {
			delete(ds.Excluded, c.Key)
			return nil
		}
		switch v := value.(type) {
		case domain.ExcludedMember:
			ds.Excluded[c.Key] = v
			return nil
		case string:
			entry := ds.Excluded[c.Key]
			entry.UUID = c.Key
			entry.Reason = v
			ds.Excluded[c.Key] = entry
			return nil
		default:
			return fmt.Errorf("exclusion resolution: unexpected %T", value)
		}
	default:
		return fmt.Errorf("unknown conflict collection %q", c.Collection)
	}
}

func applyMemberResolution(ds *domain.DataSet, c Conflict, value any) error {
	if c.Field == FieldExistence {
		removeMember(ds, c.Key)
		if value == nil {
			return nil
		}
		member, ok := value.(domain.Member)
		if !ok {
			return fmt.Errorf("member resolution: unexpected %T", value)
		}
		// The conflict value carries the member but not its group; a kept
		// member lands in ungrouped and can be moved afterwards.
		placeMember(ds, domain.UngroupedID, member)
		return nil
	}
	if c.Field == memberFieldGroup {
		groupID, ok := value.(string)
		if !ok {
			return fmt.Errorf("member group resolution: unexpected %T", value)
		}
		idx, _ := identity.Index(ds.Groups)
		ref, found := idx[c.Key]
		if !found {
			return fmt.Errorf("member %s not present in merged set", c.Key)
		}
		removeMember(ds, c.Key)
		placeMember(ds, groupID, ref.Member)
		return nil
	}
	idx, _ := identity.Index(ds.Groups)
	ref, found := idx[c.Key]
	if !found {
		return fmt.Errorf("member %s not present in merged set", c.Key)
	}
	for _, f := range memberFields {
		if f.name != c.Field {
			continue
		}
		member := domain.CloneMember(ref.Member)
		if err := f.set(&member, value); err != nil {
			return err
		}
		removeMember(ds, c.Key)
		placeMember(ds, ref.GroupID, member)
		return nil
	}
	return fmt.Errorf("unknown member field %q", c.Field)
}

func applyRecordResolution(ds *domain.DataSet, c Conflict, value any) error {
	if c.Field == FieldExistence {
		kept := ds.Records[:0]
		for _, rec := range ds.Records {
			if consistency.RecordKey(rec) != c.Key {
				kept = append(kept, rec)
			}
		}
		ds.Records = kept
		if value == nil {
			return nil
		}
		rec, ok := value.(domain.AttendanceRecord)
		if !ok {
			return fmt.Errorf("record resolution: unexpected %T", value)
		}
		ds.Records = append(ds.Records, rec)
		return nil
	}
	// Field-level resolution: the record survived the merge minus this field;
	// source the field from whichever side was chosen.
	str, ok := value.(string)
	if !ok {
		return fmt.Errorf("record field resolution: unexpected %T", value)
	}
	for i := range ds.Records {
		if consistency.RecordKey(ds.Records[i]) == c.Key {
			donor := ds.Records[i]
			if err := setRecordFieldString(&donor, c.Field, str); err != nil {
				return err
			}
			ds.Records[i] = donor
			return nil
		}
	}
	// The record is absent only while its existence is itself in question
	// (delete-versus-edit, or the same key created fresh on both sides).
	return fmt.Errorf("record %s not present in merged set; resolve existence first", c.Key)
}

// --- helpers ---

func unionKeysStr(maps ...domain.GroupNames) []string {
	keys := map[string]struct{}{}
	for _, m := range maps {
		for k := range m {
			keys[k] = struct{}{}
		}
	}
	return sortedKeys(keys)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func presentOrNil(present bool, v string) any {
	if !present {
		return nil
	}
	return v
}

func presentOrNilExcluded(present bool, v domain.ExcludedMember) any {
	if !present {
		return nil
	}
	return v
}

func recordsByKey(records []domain.AttendanceRecord) map[string]domain.AttendanceRecord {
	out := make(map[string]domain.AttendanceRecord, len(records))
	for _, rec := range records {
		key := consistency.RecordKey(rec)
		if _, exists := out[key]; exists {
			continue
		}
		out[key] = rec
	}
	return out
}

func placeMember(ds *domain.DataSet, groupID string, m domain.Member) {
	if ds.Groups == nil {
		ds.Groups = domain.Groups{}
	}
	if _, ok := ds.Groups[groupID]; !ok {
		ds.Groups[groupID] = nil
	}
	ds.Groups[groupID] = append(ds.Groups[groupID], domain.CloneMember(m))
}

func removeMember(ds *domain.DataSet, memberUUID string) {
	for groupID, members := range ds.Groups {
		for i, m := range members {
			if m.UUID == memberUUID {
				ds.Groups[groupID] = append(members[:i:i], members[i+1:]...)
				return
			}
		}
	}
}

func memberEqual(a, b identity.Ref) bool {
	if a.GroupID != b.GroupID {
		return false
	}
	for _, f := range memberFields {
		if f.get(a.Member) != f.get(b.Member) {
			return false
		}
	}
	return true
}

func setString(dst *string, v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("unexpected %T, want string", v)
	}
	*dst = s
	return nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseRFC3339(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func joinDateValue(m domain.Member) any {
	if m.JoinDate == nil {
		return ""
	}
	return m.JoinDate.UTC().Format("2006-01-02")
}

func setJoinDate(m *domain.Member, s string) error {
	if s == "" {
		m.JoinDate = nil
		return nil
	}
	t, err := parseDate(s)
	if err != nil {
		return err
	}
	m.JoinDate = &t
	return nil
}

func setRecordField(dst *domain.AttendanceRecord, field string, donor domain.AttendanceRecord) {
	switch field {
	case "group":
		dst.Group = donor.Group
	case "member_uuid":
		dst.MemberUUID = donor.MemberUUID
	case "time":
		dst.Time = donor.Time
	case "time_slot":
		dst.Slot = donor.Slot
	case "member_snapshot.uuid":
		dst.MemberSnapshot.UUID = donor.MemberSnapshot.UUID
	case "member_snapshot.name":
		dst.MemberSnapshot.Name = donor.MemberSnapshot.Name
	case "member_snapshot.nickname":
		dst.MemberSnapshot.Nickname = donor.MemberSnapshot.Nickname
	case "group_snapshot.group_id":
		dst.GroupSnapshot.GroupID = donor.GroupSnapshot.GroupID
	case "group_snapshot.group_name":
		dst.GroupSnapshot.GroupName = donor.GroupSnapshot.GroupName
	}
}

func setRecordFieldString(dst *domain.AttendanceRecord, field, value string) error {
	switch field {
	case "time":
		t, err := parseRFC3339(value)
		if err != nil {
			return err
		}
		dst.Time = t
		return nil
	case "time_slot":
		dst.Slot = domain.TimeSlot(value)
		return nil
	default:
		donor := *dst
		setFieldFromString(&donor, field, value)
		*dst = donor
		return nil
	}
}

func setFieldFromString(dst *domain.AttendanceRecord, field, value string) {
	switch field {
	case "group":
		dst.Group = value
	case "member_uuid":
		dst.MemberUUID = value
	case "member_snapshot.uuid":
		dst.MemberSnapshot.UUID = value
	case "member_snapshot.name":
		dst.MemberSnapshot.Name = value
	case "member_snapshot.nickname":
		dst.MemberSnapshot.Nickname = value
	case "group_snapshot.group_id":
		dst.GroupSnapshot.GroupID = value
	case "group_snapshot.group_name":
		dst.GroupSnapshot.GroupName = value
	}
}

// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by flockcore.
package domain

import (
	"encoding/json"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityMember identifies an individual member record.
	EntityMember EntityType = "member"
	// EntityGroup identifies a group record (member list plus display name).
	EntityGroup EntityType = "group"
	// EntityAttendanceRecord identifies a single sign-in event record.
	EntityAttendanceRecord EntityType = "attendance_record"
	// EntityExcludedMember identifies an absence-tracking exemption record.
	EntityExcludedMember EntityType = "excluded_member"
)

// UngroupedID is the reserved group identifier holding members that have not
// been assigned to a named group. It always exists in a valid data set.
const UngroupedID = "ungrouped"

// Gender enumerates the member gender markers carried by the roster.
type Gender string

// Roster gender markers. Unknown is stored as the empty string.
const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// AgeBracket classifies members for reporting purposes.
type AgeBracket string

// Canonical age brackets used by the report pages.
const (
	AgeChild  AgeBracket = "child"
	AgeYouth  AgeBracket = "youth"
	AgeAdult  AgeBracket = "adult"
	AgeSenior AgeBracket = "senior"
)

// Member represents an individual tracked by the attendance system. The UUID
// is assigned once at first observation and never reassigned; display fields
// may change freely without affecting historical records.
type Member struct {
	UUID      string     `json:"uuid"`
	Name      string     `json:"name"`
	Nickname  string     `json:"nickname,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Gender    Gender     `json:"gender,omitempty"`
	Baptized  bool       `json:"baptized"`
	Age       AgeBracket `json:"age_bracket,omitempty"`
	JoinDate  *time.Time `json:"join_date,omitempty"`
	QuickAdd  bool       `json:"quick_add,omitempty"`
	CreatedAt time.Time  `json:"created_at,omitzero"`
	UpdatedAt time.Time  `json:"updated_at,omitzero"`
}

// Groups maps a stable group identifier to its ordered member list.
type Groups map[string][]Member

// GroupNames maps group identifiers to display names. Names are stored apart
// from the member lists so renames never break historical references.
type GroupNames map[string]string

// MemberSnapshot is the denormalized member identity captured on an
// attendance record at sign-in time, preserving display correctness if the
// member is later renamed or removed.
type MemberSnapshot struct {
	UUID     string `json:"uuid"`
	Name     string `json:"name"`
	Nickname string `json:"nickname,omitempty"`
}

// GroupSnapshot is the denormalized group identity captured at sign-in time.
type GroupSnapshot struct {
	GroupID   string `json:"group_id"`
	GroupName string `json:"group_name"`
}

// AttendanceRecord is one sign-in event. Records are append-only in normal
// operation; the record ID is distinct from any storage key.
type AttendanceRecord struct {
	RecordID       string         `json:"record_id"`
	Group          string         `json:"group"`
	MemberUUID     string         `json:"member_uuid"`
	Time           time.Time      `json:"time"`
	Slot           TimeSlot       `json:"time_slot"`
	MemberSnapshot MemberSnapshot `json:"member_snapshot"`
	GroupSnapshot  GroupSnapshot  `json:"group_snapshot"`
}

// ExcludedMember marks a member UUID as exempt from absence tracking.
type ExcludedMember struct {
	UUID       string    `json:"uuid"`
	Reason     string    `json:"reason"`
	ExcludedAt time.Time `json:"excluded_at,omitzero"`
}

// ExcludedMembers is the canonical map shape keyed by member UUID. Legacy
// array-shaped input is upgraded once at load time; see NormalizeExcluded.
type ExcludedMembers map[string]ExcludedMember

// DataSet aggregates the four persisted collections. It serves both as the
// in-memory working set and as the reconciliation base snapshot.
type DataSet struct {
	Groups     Groups             `json:"groups"`
	GroupNames GroupNames         `json:"group_names"`
	Records    []AttendanceRecord `json:"attendance_records"`
	Excluded   ExcludedMembers    `json:"excluded_members"`
}

// NewDataSet returns an empty data set with all collections allocated and
// the reserved ungrouped group present.
func NewDataSet() DataSet {
	return DataSet{
		Groups:     Groups{UngroupedID: nil},
		GroupNames: GroupNames{UngroupedID: "Ungrouped"},
		Records:    nil,
		Excluded:   ExcludedMembers{},
	}
}

// Clone returns a deep copy of the data set.
func (d DataSet) Clone() DataSet {
	out := DataSet{}
	if d.Groups != nil {
		out.Groups = make(Groups, len(d.Groups))
		for id, members := range d.Groups {
			out.Groups[id] = cloneMembers(members)
		}
	}
	if d.GroupNames != nil {
		out.GroupNames = make(GroupNames, len(d.GroupNames))
		for id, name := range d.GroupNames {
			out.GroupNames[id] = name
		}
	}
	if d.Records != nil {
		out.Records = append([]AttendanceRecord(nil), d.Records...)
	}
	if d.Excluded != nil {
		out.Excluded = make(ExcludedMembers, len(d.Excluded))
		for id, ex := range d.Excluded {
			out.Excluded[id] = ex
		}
	}
	return out
}

// IsEmpty reports whether the data set carries no groups beyond the reserved
// ungrouped bucket and no records.
func (d DataSet) IsEmpty() bool {
	for id, members := range d.Groups {
		if id != UngroupedID || len(members) > 0 {
			return false
		}
	}
	return len(d.Records) == 0
}

func cloneMembers(members []Member) []Member {
	if members == nil {
		return nil
	}
	out := make([]Member, len(members))
	for i, m := range members {
		out[i] = CloneMember(m)
	}
	return out
}

// CloneMember returns a deep copy of a member record.
func CloneMember(m Member) Member {
	cp := m
	if m.JoinDate != nil {
		jd := *m.JoinDate
		cp.JoinDate = &jd
	}
	return cp
}

// Equal reports field-for-field equality of two records across the canonical
// comparison field set, including snapshot sub-fields.
func (r AttendanceRecord) Equal(other AttendanceRecord) bool {
	return r.RecordID == other.RecordID &&
		r.Group == other.Group &&
		r.MemberUUID == other.MemberUUID &&
		r.Time.Equal(other.Time) &&
		r.Slot == other.Slot &&
		r.MemberSnapshot == other.MemberSnapshot &&
		r.GroupSnapshot == other.GroupSnapshot
}

type attendanceRecordAlias AttendanceRecord

// MarshalJSON serialises the timestamp in canonical RFC3339 form.
func (r AttendanceRecord) MarshalJSON() ([]byte, error) {
	type payload struct {
		attendanceRecordAlias
		Time string `json:"time"`
	}
	return json.Marshal(payload{
		attendanceRecordAlias: attendanceRecordAlias(r),
		Time:                  r.Time.UTC().Format(time.RFC3339),
	})
}

// UnmarshalJSON accepts RFC3339 timestamps, tolerating the fractional-second
// variants older exports produced.
func (r *AttendanceRecord) UnmarshalJSON(data []byte) error {
	type payload struct {
		attendanceRecordAlias
		Time string `json:"time"`
	}
	var aux payload
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = AttendanceRecord(aux.attendanceRecordAlias)
	if aux.Time == "" {
		r.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, aux.Time)
	if err != nil {
		return err
	}
	r.Time = t
	return nil
}

// Package consistency compares local and remote attendance record sets and
// classifies every key in their union. It is the one canonical comparison
// implementation; the merge engine reuses the same field set so the two can
// never disagree about what counts as a difference.
package consistency

import (
	"time"

	"flockcore/pkg/domain"
)

// comparisonFields is the fixed, ordered field set records are compared
// over, including the denormalized snapshot sub-fields.
var comparisonFields = []struct {
	name    string
	extract func(domain.AttendanceRecord) string
}{
	{"group", func(r domain.AttendanceRecord) string { return r.Group }},
	{"member_uuid", func(r domain.AttendanceRecord) string { return r.MemberUUID }},
	{"time", func(r domain.AttendanceRecord) string { return canonicalTime(r.Time) }},
	{"time_slot", func(r domain.AttendanceRecord) string { return string(r.Slot) }},
	{"member_snapshot.uuid", func(r domain.AttendanceRecord) string { return r.MemberSnapshot.UUID }},
	{"member_snapshot.name", func(r domain.AttendanceRecord) string { return r.MemberSnapshot.Name }},
	{"member_snapshot.nickname", func(r domain.AttendanceRecord) string { return r.MemberSnapshot.Nickname }},
	{"group_snapshot.group_id", func(r domain.AttendanceRecord) string { return r.GroupSnapshot.GroupID }},
	{"group_snapshot.group_name", func(r domain.AttendanceRecord) string { return r.GroupSnapshot.GroupName }},
}

// FieldNames returns the canonical comparison field set in order.
func FieldNames() []string {
	out := make([]string, len(comparisonFields))
	for i, f := range comparisonFields {
		out[i] = f.name
	}
	return out
}

// FieldValue extracts the canonical string form of one comparison field.
// Unknown fields yield the empty string.
func FieldValue(r domain.AttendanceRecord, name string) string {
	for _, f := range comparisonFields {
		if f.name == name {
			return f.extract(r)
		}
	}
	return ""
}

func canonicalTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// RecordKey derives the deterministic identity used to match records across
// replicas: the explicit record ID when present, otherwise a composite of
// group, member identity, and timestamp. Member identity prefers the UUID,
// then the snapshot UUID, then the snapshot name, which keeps the key stable
// under renames.
func RecordKey(r domain.AttendanceRecord) string {
	if r.RecordID != "" {
		return r.RecordID
	}
	member := r.MemberUUID
	if member == "" {
		member = r.MemberSnapshot.UUID
	}
	if member == "" {
		member = r.MemberSnapshot.Name
	}
	return r.Group + "|" + member + "|" + canonicalTime(r.Time)
}

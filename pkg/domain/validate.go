package domain

import (
	"encoding/json"
	"fmt"
)

// RawDataSet carries the four persisted payloads exactly as stored, before
// any decoding. Loaders validate shape on this form so corrupted JSON is
// classified instead of thrown.
type RawDataSet struct {
	Groups     json.RawMessage
	GroupNames json.RawMessage
	Records    json.RawMessage
	Excluded   json.RawMessage
}

// Structural validation rule names reported in violations.
const (
	RuleGroupsShape       = "groups_shape"
	RuleGroupNamesShape   = "group_names_shape"
	RuleRecordsShape      = "attendance_records_shape"
	RuleExcludedShape     = "excluded_members_shape"
	RuleGroupNameCoverage = "group_name_coverage"
	RuleRecordLinkage     = "record_linkage"
)

// ValidateRaw checks the structural shape of persisted payloads: groups and
// group names must be non-empty objects, records must be an array when
// present, excluded members may be the canonical map or a legacy array.
// Shape violations are blocking; they route the loader to the remote-fetch
// or repair path instead of adopting local data.
func ValidateRaw(raw RawDataSet) []Violation {
	var out []Violation
	out = appendShapeViolation(out, RuleGroupsShape, EntityGroup, raw.Groups, shapeObject, true)
	out = appendShapeViolation(out, RuleGroupNamesShape, EntityGroup, raw.GroupNames, shapeObject, true)
	if s := jsonShape(raw.Records); s != shapeAbsent && s != shapeArray {
		out = append(out, Violation{
			Rule:     RuleRecordsShape,
			Severity: SeverityBlock,
			Message:  fmt.Sprintf("attendance records payload is %s, expected array", s),
			Entity:   EntityAttendanceRecord,
		})
	}
	if s := jsonShape(raw.Excluded); s != shapeAbsent && s != shapeObject && s != shapeArray {
		out = append(out, Violation{
			Rule:     RuleExcludedShape,
			Severity: SeverityBlock,
			Message:  fmt.Sprintf("excluded members payload is %s, expected map or legacy array", s),
			Entity:   EntityExcludedMember,
		})
	}
	return out
}

func appendShapeViolation(out []Violation, rule string, entity EntityType, raw json.RawMessage, want payloadShape, requireNonEmpty bool) []Violation {
	s := jsonShape(raw)
	if s != want {
		return append(out, Violation{
			Rule:     rule,
			Severity: SeverityBlock,
			Message:  fmt.Sprintf("payload is %s, expected %s", s, want),
			Entity:   entity,
		})
	}
	if requireNonEmpty {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(raw, &probe); err != nil {
			return append(out, Violation{
				Rule:     rule,
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("payload does not decode as object: %v", err),
				Entity:   entity,
			})
		}
		if len(probe) == 0 {
			return append(out, Violation{
				Rule:     rule,
				Severity: SeverityBlock,
				Message:  "payload is an empty object",
				Entity:   entity,
			})
		}
	}
	return out
}

// DecodeRaw decodes a structurally valid raw payload into a DataSet,
// applying the excluded-members normalization step. Callers are expected to
// run ValidateRaw first; decode failures still come back as violations, not
// errors, so loaders never throw on corrupt local data.
func DecodeRaw(raw RawDataSet) (DataSet, []Violation) {
	var out DataSet
	var violations []Violation
	if err := json.Unmarshal(raw.Groups, &out.Groups); err != nil {
		violations = append(violations, Violation{Rule: RuleGroupsShape, Severity: SeverityBlock, Message: err.Error(), Entity: EntityGroup})
	}
	if err := json.Unmarshal(raw.GroupNames, &out.GroupNames); err != nil {
		violations = append(violations, Violation{Rule: RuleGroupNamesShape, Severity: SeverityBlock, Message: err.Error(), Entity: EntityGroup})
	}
	if len(raw.Records) > 0 && jsonShape(raw.Records) == shapeArray {
		if err := json.Unmarshal(raw.Records, &out.Records); err != nil {
			violations = append(violations, Violation{Rule: RuleRecordsShape, Severity: SeverityBlock, Message: err.Error(), Entity: EntityAttendanceRecord})
		}
	}
	excluded, err := NormalizeExcluded(raw.Excluded)
	if err != nil {
		violations = append(violations, Violation{Rule: RuleExcludedShape, Severity: SeverityBlock, Message: err.Error(), Entity: EntityExcludedMember})
		excluded = ExcludedMembers{}
	}
	out.Excluded = excluded
	return out, violations
}

// ValidateDataSet checks cross-collection invariants on a decoded data set
// and returns a structured violation list for the repair logic to consume.
// Coverage gaps are warnings (repairable by synthesizing member lists);
// unresolvable record linkage is logged, since snapshot fields keep the
// record displayable.
func ValidateDataSet(d DataSet) []Violation {
	var out []Violation
	for id := range d.GroupNames {
		if _, ok := d.Groups[id]; !ok {
			out = append(out, Violation{
				Rule:     RuleGroupNameCoverage,
				Severity: SeverityWarn,
				Message:  fmt.Sprintf("group %q has a display name but no member list", id),
				Entity:   EntityGroup,
				EntityID: id,
			})
		}
	}
	known := make(map[string]struct{})
	for _, members := range d.Groups {
		for _, m := range members {
			if m.UUID != "" {
				known[m.UUID] = struct{}{}
			}
		}
	}
	for _, rec := range d.Records {
		uuid := rec.MemberUUID
		if uuid == "" {
			uuid = rec.MemberSnapshot.UUID
		}
		if uuid == "" {
			out = append(out, Violation{
				Rule:     RuleRecordLinkage,
				Severity: SeverityLog,
				Message:  fmt.Sprintf("record %q carries no member identity", rec.RecordID),
				Entity:   EntityAttendanceRecord,
				EntityID: rec.RecordID,
			})
			continue
		}
		if _, ok := known[uuid]; !ok && rec.MemberSnapshot.Name == "" {
			out = append(out, Violation{
				Rule:     RuleRecordLinkage,
				Severity: SeverityLog,
				Message:  fmt.Sprintf("record %q references unknown member %s with no snapshot", rec.RecordID, uuid),
				Entity:   EntityAttendanceRecord,
				EntityID: rec.RecordID,
			})
		}
	}
	return out
}

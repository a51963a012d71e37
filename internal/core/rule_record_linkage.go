package core

import (
	"context"
	"fmt"

	"flockcore/pkg/domain"
)

// NewRecordLinkageRule returns the rule requiring every attendance record to
// resolve to a known member UUID or carry a display snapshot. Records with
// neither cannot be rendered or repaired and block the commit.
func NewRecordLinkageRule() Rule {
	return recordLinkageRule{}
}

type recordLinkageRule struct{}

func (recordLinkageRule) Name() string { return "record_linkage" }

func (recordLinkageRule) Evaluate(_ context.Context, view TransactionView, _ []domain.Change) (domain.Result, error) {
	known := make(map[string]struct{})
	for _, members := range view.Groups() {
		for _, m := range members {
			if m.UUID != "" {
				known[m.UUID] = struct{}{}
			}
		}
	}

	res := domain.Result{}
	for _, rec := range view.Records() {
		memberUUID := rec.MemberUUID
		if memberUUID == "" {
			memberUUID = rec.MemberSnapshot.UUID
		}
		if _, ok := known[memberUUID]; ok {
			continue
		}
		if rec.MemberSnapshot.Name != "" {
			// Departed member; the snapshot keeps the record displayable.
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "record_linkage",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("record %q resolves to no member and carries no snapshot", rec.RecordID),
			Entity:   domain.EntityAttendanceRecord,
			EntityID: rec.RecordID,
		})
	}
	return res, nil
}

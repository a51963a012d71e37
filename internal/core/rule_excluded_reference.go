package core

import (
	"context"
	"fmt"

	"flockcore/pkg/domain"
)

// NewExcludedReferenceRule returns the rule checking that exclusion entries
// reference members present in the roster. Stale entries are warnings, not
// blocks: imports of older backups may legitimately carry exclusions for
// members removed since the backup was taken.
func NewExcludedReferenceRule() Rule {
	return excludedReferenceRule{}
}

type excludedReferenceRule struct{}

func (excludedReferenceRule) Name() string { return "excluded_reference" }

func (excludedReferenceRule) Evaluate(_ context.Context, view TransactionView, _ []domain.Change) (domain.Result, error) {
	known := make(map[string]struct{})
	for _, members := range view.Groups() {
		for _, m := range members {
			if m.UUID != "" {
				known[m.UUID] = struct{}{}
			}
		}
	}

	res := domain.Result{}
	for memberUUID := range view.Excluded() {
		if _, ok := known[memberUUID]; !ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "excluded_reference",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("exclusion references unknown member %s", memberUUID),
				Entity:   domain.EntityExcludedMember,
				EntityID: memberUUID,
			})
		}
	}
	return res, nil
}

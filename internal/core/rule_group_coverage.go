package core

import (
	"context"
	"fmt"

	"flockcore/pkg/domain"
)

// NewGroupNameCoverageRule returns the rule requiring every named group to
// carry a member list. A name without a list renders as a phantom group, so
// commits introducing one are blocked.
func NewGroupNameCoverageRule() Rule {
	return groupNameCoverageRule{}
}

type groupNameCoverageRule struct{}

func (groupNameCoverageRule) Name() string { return "group_name_coverage" }

func (groupNameCoverageRule) Evaluate(_ context.Context, view TransactionView, _ []domain.Change) (domain.Result, error) {
	groups := view.Groups()
	res := domain.Result{}
	for id := range view.GroupNames() {
		if _, ok := groups[id]; !ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "group_name_coverage",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("group %q has a display name but no member list", id),
				Entity:   domain.EntityGroup,
				EntityID: id,
			})
		}
	}
	return res, nil
}

// Package identity assigns and indexes the stable member UUIDs that keep
// historical attendance linked across renames and regroupings.
package identity

import (
	"fmt"

	"github.com/google/uuid"

	"flockcore/pkg/domain"
)

// Ref locates a member within the working set.
type Ref struct {
	GroupID string
	Member  domain.Member
}

// EnsureUUID returns a copy of the member with a UUID assigned when absent.
// An existing UUID is never overwritten, so repeated application over the
// same data is a no-op.
func EnsureUUID(m domain.Member) domain.Member {
	if m.UUID != "" {
		return m
	}
	cp := domain.CloneMember(m)
	cp.UUID = uuid.New().String()
	return cp
}

// EnsureGroups walks every member list and assigns missing UUIDs. It returns
// the updated groups and the number of assignments made; zero means the
// input was already fully tagged.
func EnsureGroups(groups domain.Groups) (domain.Groups, int) {
	assigned := 0
	out := make(domain.Groups, len(groups))
	for id, members := range groups {
		if members == nil {
			out[id] = nil
			continue
		}
		list := make([]domain.Member, len(members))
		for i, m := range members {
			if m.UUID == "" {
				m = EnsureUUID(m)
				assigned++
			}
			list[i] = m
		}
		out[id] = list
	}
	return out, assigned
}

// Index builds a UUID lookup over all group member lists. Duplicate UUIDs
// are reported as violations rather than silently shadowed; the first
// occurrence wins in the index.
func Index(groups domain.Groups) (map[string]Ref, []domain.Violation) {
	index := make(map[string]Ref)
	var violations []domain.Violation
	for groupID, members := range groups {
		for _, m := range members {
			if m.UUID == "" {
				continue
			}
			if prev, exists := index[m.UUID]; exists {
				violations = append(violations, domain.Violation{
					Rule:     "uuid_uniqueness",
					Severity: domain.SeverityWarn,
					Message:  fmt.Sprintf("member %s appears in groups %q and %q with the same UUID", m.UUID, prev.GroupID, groupID),
					Entity:   domain.EntityMember,
					EntityID: m.UUID,
				})
				continue
			}
			index[m.UUID] = Ref{GroupID: groupID, Member: domain.CloneMember(m)}
		}
	}
	return index, violations
}

package identity

import (
	"reflect"
	"testing"

	"flockcore/pkg/domain"
)

func TestEnsureUUIDAssignsOnce(t *testing.T) {
	m := domain.Member{Name: "Ana"}
	tagged := EnsureUUID(m)
	if tagged.UUID == "" {
		t.Fatalf("expected UUID assigned")
	}
	if m.UUID != "" {
		t.Fatalf("input mutated: %+v", m)
	}
	again := EnsureUUID(tagged)
	if again.UUID != tagged.UUID {
		t.Fatalf("existing UUID overwritten: %s -> %s", tagged.UUID, again.UUID)
	}
}

func TestEnsureGroupsIsIdempotent(t *testing.T) {
	groups := domain.Groups{
		"g1":              {{Name: "Ana"}, {UUID: "u2", Name: "Ben"}},
		domain.UngroupedID: nil,
	}
	first, assigned := EnsureGroups(groups)
	if assigned != 1 {
		t.Fatalf("expected 1 assignment, got %d", assigned)
	}
	second, assigned := EnsureGroups(first)
	if assigned != 0 {
		t.Fatalf("second pass assigned %d, want 0", assigned)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("second pass changed data:\n  %+v\n  %+v", first, second)
	}
	if first[domain.UngroupedID] != nil {
		t.Fatalf("nil member list should stay nil")
	}
}

func TestIndexReportsDuplicates(t *testing.T) {
	groups := domain.Groups{
		"g1": {{UUID: "u1", Name: "Ana"}},
		"g2": {{UUID: "u1", Name: "Ana (copy)"}, {UUID: "u2", Name: "Ben"}},
	}
	index, violations := Index(groups)
	if len(index) != 2 {
		t.Fatalf("expected 2 indexed members, got %d", len(index))
	}
	if len(violations) != 1 {
		t.Fatalf("expected duplicate violation, got %+v", violations)
	}
	if violations[0].Rule != "uuid_uniqueness" || violations[0].EntityID != "u1" {
		t.Fatalf("unexpected violation: %+v", violations[0])
	}
	if ref := index["u2"]; ref.GroupID != "g2" || ref.Member.Name != "Ben" {
		t.Fatalf("unexpected ref: %+v", ref)
	}
}

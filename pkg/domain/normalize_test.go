package domain

import (
	"encoding/json"
	"testing"
)

func TestNormalizeExcludedCanonicalMap(t *testing.T) {
	raw := json.RawMessage(`{"u1":{"reason":"moved away"},"u2":{"uuid":"u2","reason":"homebound"}}`)
	got, err := NormalizeExcluded(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got["u1"].UUID != "u1" || got["u1"].Reason != "moved away" {
		t.Fatalf("map key not copied into entry: %+v", got["u1"])
	}
}

func TestNormalizeExcludedLegacyObjectArray(t *testing.T) {
	raw := json.RawMessage(`[{"uuid":"u1","reason":"abroad"},{"uuid":"","reason":"dropped"}]`)
	got, err := NormalizeExcluded(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected empty-uuid entry skipped, got %d entries", len(got))
	}
	if got["u1"].Reason != "abroad" {
		t.Fatalf("unexpected entry: %+v", got["u1"])
	}
}

func TestNormalizeExcludedLegacyStringArray(t *testing.T) {
	got, err := NormalizeExcluded(json.RawMessage(`["u1","u2",""]`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if _, ok := got["u2"]; !ok {
		t.Fatalf("missing u2: %+v", got)
	}
}

func TestNormalizeExcludedAbsent(t *testing.T) {
	for _, raw := range []json.RawMessage{nil, json.RawMessage(`null`)} {
		got, err := NormalizeExcluded(raw)
		if err != nil {
			t.Fatalf("normalize absent: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("expected empty map, got %+v", got)
		}
	}
}

func TestNormalizeExcludedRejectsScalar(t *testing.T) {
	if _, err := NormalizeExcluded(json.RawMessage(`42`)); err == nil {
		t.Fatalf("expected error for scalar payload")
	}
}

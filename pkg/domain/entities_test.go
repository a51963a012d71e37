package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestClassifySlot(t *testing.T) {
	cases := []struct {
		hour, min int
		want      TimeSlot
	}{
		{8, 0, SlotEarly},
		{9, 29, SlotEarly},
		{9, 30, SlotOnTime},
		{9, 45, SlotOnTime},
		{9, 46, SlotLate},
		{11, 59, SlotLate},
		{12, 0, SlotAfternoon},
		{16, 59, SlotAfternoon},
		{17, 0, SlotInvalid},
		{3, 0, SlotInvalid},
	}
	for _, tc := range cases {
		ts := time.Date(2025, 3, 2, tc.hour, tc.min, 0, 0, time.UTC)
		if got := ClassifySlot(ts); got != tc.want {
			t.Fatalf("%02d:%02d classified %s, want %s", tc.hour, tc.min, got, tc.want)
		}
	}
	if got := ClassifySlot(time.Time{}); got != SlotInvalid {
		t.Fatalf("zero time classified %s, want invalid", got)
	}
}

func TestAttendanceRecordJSONRoundTrip(t *testing.T) {
	rec := AttendanceRecord{
		RecordID:       "r1",
		Group:          "g1",
		MemberUUID:     "u1",
		Time:           time.Date(2025, 3, 2, 9, 35, 0, 0, time.UTC),
		Slot:           SlotOnTime,
		MemberSnapshot: MemberSnapshot{UUID: "u1", Name: "Ana", Nickname: "An"},
		GroupSnapshot:  GroupSnapshot{GroupID: "g1", GroupName: "Alpha"},
	}
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back AttendanceRecord
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !rec.Equal(back) {
		t.Fatalf("round trip mismatch:\n  in  %+v\n  out %+v", rec, back)
	}
}

func TestAttendanceRecordUnmarshalFractionalSeconds(t *testing.T) {
	var rec AttendanceRecord
	if err := json.Unmarshal([]byte(`{"record_id":"r1","time":"2025-03-02T09:35:12.345Z"}`), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.Time.Second() != 12 {
		t.Fatalf("unexpected time: %v", rec.Time)
	}
}

func TestDataSetCloneIsDeep(t *testing.T) {
	jd := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ds := NewDataSet()
	ds.Groups["g1"] = []Member{{UUID: "u1", Name: "Ana", JoinDate: &jd}}
	ds.GroupNames["g1"] = "Alpha"
	ds.Excluded["u2"] = ExcludedMember{UUID: "u2", Reason: "abroad"}

	cp := ds.Clone()
	cp.Groups["g1"][0].Name = "Changed"
	*cp.Groups["g1"][0].JoinDate = jd.AddDate(1, 0, 0)
	cp.GroupNames["g1"] = "Renamed"
	delete(cp.Excluded, "u2")

	if ds.Groups["g1"][0].Name != "Ana" || !ds.Groups["g1"][0].JoinDate.Equal(jd) {
		t.Fatalf("clone shares member storage: %+v", ds.Groups["g1"][0])
	}
	if ds.GroupNames["g1"] != "Alpha" || len(ds.Excluded) != 1 {
		t.Fatalf("clone shares map storage")
	}
}

func TestDataSetIsEmpty(t *testing.T) {
	ds := NewDataSet()
	if !ds.IsEmpty() {
		t.Fatalf("fresh data set should be empty")
	}
	ds.Groups["g1"] = nil
	if ds.IsEmpty() {
		t.Fatalf("data set with a named group is not empty")
	}
}

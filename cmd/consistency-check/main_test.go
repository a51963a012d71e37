package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"flockcore/internal/consistency"
	"flockcore/internal/infra/localstore"
	"flockcore/pkg/domain"
)

func record(id string, slot domain.TimeSlot) domain.AttendanceRecord {
	return domain.AttendanceRecord{
		RecordID:   id,
		Group:      "g1",
		MemberUUID: "u1",
		Time:       time.Date(2025, 3, 2, 9, 35, 0, 0, time.UTC),
		Slot:       slot,
	}
}

func seedDB(t *testing.T, records []domain.AttendanceRecord) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "check.db")
	store, err := localstore.NewSQLite(path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer store.Close()
	if err := store.Save(localstore.KeyRecords, records); err != nil {
		t.Fatalf("seed records: %v", err)
	}
	return path
}

func recordServer(t *testing.T, records []domain.AttendanceRecord) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "attendanceRecords") {
			http.NotFound(w, r)
			return
		}
		if err := json.NewEncoder(w).Encode(records); err != nil {
			t.Errorf("encode: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCLIReportsConsistentExitZero(t *testing.T) {
	records := []domain.AttendanceRecord{record("r1", domain.SlotOnTime)}
	db := seedDB(t, records)
	srv := recordServer(t, records)

	var stdout, stderr bytes.Buffer
	code := cli([]string{"-db", db, "-remote", srv.URL}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit = %d, stderr = %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "1 consistent") {
		t.Fatalf("unexpected output: %s", stdout.String())
	}
}

func TestCLIFlagsDivergenceExitOne(t *testing.T) {
	db := seedDB(t, []domain.AttendanceRecord{record("r1", domain.SlotOnTime)})
	srv := recordServer(t, []domain.AttendanceRecord{record("r1", domain.SlotLate)})

	var stdout, stderr bytes.Buffer
	code := cli([]string{"-db", db, "-remote", srv.URL}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit = %d, want 1; stderr = %s", code, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "inconsistent") || !strings.Contains(out, "time_slot") {
		t.Fatalf("divergent field not reported: %s", out)
	}
}

func TestCLIJSONOutput(t *testing.T) {
	db := seedDB(t, []domain.AttendanceRecord{record("r1", domain.SlotOnTime)})
	srv := recordServer(t, nil)

	var stdout, stderr bytes.Buffer
	code := cli([]string{"-db", db, "-remote", srv.URL, "-json"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit = %d, want 1 for local-only record", code)
	}
	var report consistency.Report
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, stdout.String())
	}
	if report.Counts.LocalOnly != 1 {
		t.Fatalf("counts = %+v", report.Counts)
	}
}

func TestCLIRequiresRemote(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := cli(nil, &stdout, &stderr); code != 2 {
		t.Fatalf("exit = %d, want usage failure", code)
	}
}

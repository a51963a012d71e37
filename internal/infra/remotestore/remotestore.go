// Package remotestore adapts the hierarchical key-tree store that holds the
// congregation's shared replica. Callers treat every failure here as
// "remote unavailable" and continue in local-only mode; nothing in this
// package is fatal to the hosting page.
package remotestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"flockcore/pkg/domain"
)

// Tree paths consumed by the reconciliation engine.
const (
	PathGroups     = "groups"
	PathGroupNames = "groupNames"
	PathRecords    = "attendanceRecords"
	PathExcluded   = "excludedMembers"
)

// ErrUnavailable wraps every connectivity or service failure. Callers match
// with errors.Is and degrade to local-only operation.
var ErrUnavailable = errors.New("remotestore: remote unavailable")

// Tree is the key-tree contract. ReadOnce returns (nil, nil) for an absent
// subtree; Append inserts with a server-generated key. Reads of the
// attendance subtree go through ReadRecordsSince so a page load never pulls
// the full history.
type Tree interface {
	ReadOnce(ctx context.Context, path string) (json.RawMessage, error)
	Write(ctx context.Context, path string, value any) error
	Append(ctx context.Context, path string, value any) (string, error)
	ReadRecordsSince(ctx context.Context, since time.Time) ([]domain.AttendanceRecord, error)
}

// Driver identifies a concrete remote tree implementation.
type Driver string

const (
	DriverHTTP     Driver = "http"     // hosted JSON tree endpoint
	DriverPostgres Driver = "postgres" // self-hosted PostgreSQL tree
)

// Open selects a backend using environment variables.
//
//	FLOCKCORE_REMOTE_DRIVER: http|postgres (default http)
//	FLOCKCORE_REMOTE_URL: base URL when driver=http
//	FLOCKCORE_REMOTE_TIMEOUT: per-call timeout (default 10s)
//	FLOCKCORE_POSTGRES_DSN: DSN when driver=postgres
func Open(ctx context.Context) (Tree, error) {
	driver := os.Getenv("FLOCKCORE_REMOTE_DRIVER")
	if driver == "" {
		driver = string(DriverHTTP)
	}
	switch Driver(driver) {
	case DriverHTTP:
		timeout := 10 * time.Second
		if v := os.Getenv("FLOCKCORE_REMOTE_TIMEOUT"); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				timeout = d
			}
		}
		return NewHTTP(Config{BaseURL: os.Getenv("FLOCKCORE_REMOTE_URL"), Timeout: timeout})
	case DriverPostgres:
		return NewPostgres(ctx, os.Getenv("FLOCKCORE_POSTGRES_DSN"))
	default:
		return nil, fmt.Errorf("unknown remote driver %s", driver)
	}
}

// decodeRecords turns a records subtree payload (map of storage key to
// record, or an array from older trees) into a flat slice.
func decodeRecords(raw json.RawMessage) ([]domain.AttendanceRecord, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var byKey map[string]domain.AttendanceRecord
	if err := json.Unmarshal(raw, &byKey); err == nil {
		out := make([]domain.AttendanceRecord, 0, len(byKey))
		for _, rec := range byKey {
			out = append(out, rec)
		}
		return out, nil
	}
	var list []domain.AttendanceRecord
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode attendance subtree: %w", err)
	}
	return list, nil
}

// Package localstore persists named JSON blobs on the device. It is the
// ground truth when the remote tree is unreachable. Each Save replaces one
// whole blob in a single call; there are no partial writes to corrupt on
// interruption.
package localstore

import (
	"encoding/json"
	"fmt"
	"os"
)

// Persisted blob keys. Auxiliary flags live beside the four collections so
// a structurally broken data set cannot clobber its own protection marker.
const (
	KeyGroups     = "groups"
	KeyGroupNames = "groupNames"
	KeyRecords    = "attendanceRecords"
	KeyExcluded   = "excludedMembers"

	KeyBaseSnapshot = "baseSnapshot"
	KeyLastSync     = "lastSync"
	KeyProtected    = "protectedFlag"
	KeyRecalcFlags  = "recalcFlags"
	KeyDismissed    = "dismissedReminders"
)

// Store is the named-blob contract. Load reports absent for missing keys
// AND for stored payloads that are not valid JSON — corruption is treated
// identically to absence and never surfaces as an error to callers.
type Store interface {
	Load(key string) (json.RawMessage, bool)
	Save(key string, value any) error
	Delete(key string) error
	Close() error
}

// Driver identifies a concrete local store implementation.
type Driver string

const (
	DriverMemory Driver = "memory" // in-memory only (tests / ephemeral)
	DriverSQLite Driver = "sqlite" // embedded sqlite file
)

// Open selects a backend using environment variables. Defaults to sqlite.
//
//	FLOCKCORE_LOCAL_DRIVER: memory|sqlite (default sqlite)
//	FLOCKCORE_SQLITE_PATH: path to sqlite file (default ./flockcore.db)
func Open() (Store, error) {
	driver := os.Getenv("FLOCKCORE_LOCAL_DRIVER")
	if driver == "" {
		driver = string(DriverSQLite)
	}
	switch Driver(driver) {
	case DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		return NewSQLite(os.Getenv("FLOCKCORE_SQLITE_PATH"))
	default:
		return nil, fmt.Errorf("unknown local store driver %s", driver)
	}
}

// Package archive stores full data-set export artifacts: the JSON backups an
// administrator takes before destructive operations and can restore from
// later. Artifacts are immutable once written.
package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Driver identifies a concrete archive backend.
type Driver string

const (
	DriverFilesystem Driver = "fs"     // local directory (default, dev)
	DriverS3         Driver = "s3"     // S3 / MinIO compatible
	DriverMemory     Driver = "memory" // in-memory (tests)
)

var (
	// ErrExists reports a create-only Put against an existing key.
	ErrExists = errors.New("archive: artifact already exists")
	// ErrNotFound reports a read of an absent artifact.
	ErrNotFound = errors.New("archive: artifact not found")
)

// Info describes a stored artifact.
type Info struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size_bytes"`
	ETag      string    `json:"etag,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the artifact contract. Put is create-only: writing an existing
// key fails with ErrExists so a backup can never be silently replaced.
type Store interface {
	Put(ctx context.Context, key string, payload []byte) (Info, error)
	Get(ctx context.Context, key string) ([]byte, Info, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	Driver() Driver
}

// ExportKey names an export artifact after its capture time. Colons are
// dropped so the key stays a valid path segment on every backend.
func ExportKey(ts time.Time) string {
	return "exports/" + ts.UTC().Format("20060102T150405Z") + ".json"
}

// Open selects an archive backend using environment variables.
//
//	FLOCKCORE_ARCHIVE_DRIVER: fs|s3|memory (default fs)
//	FLOCKCORE_ARCHIVE_FS_ROOT: directory root when driver=fs (default ./archivedata)
//	(S3 specific variables documented in s3.go)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("FLOCKCORE_ARCHIVE_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("FLOCKCORE_ARCHIVE_FS_ROOT"))
	case DriverS3:
		return OpenS3FromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown archive driver %s", driver)
	}
}

// sanitizeKey rejects keys that could escape a backend's namespace.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid absolute key")
	}
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key traversal")
	}
	return key, nil
}

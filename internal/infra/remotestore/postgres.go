package remotestore

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"flockcore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the tree interface.
var _ Tree = (*Postgres)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/flockcore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Postgres serves the key-tree contract from a single table for self-hosted
// deployments. Subtrees written with Write occupy one row; Append children
// occupy one row each under parent/key paths.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens the tree store using the provided DSN (falls back to a
// local default) and ensures the tree table exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: ping postgres: %v", ErrUnavailable, err)
	}
	ddl := `CREATE TABLE IF NOT EXISTS tree (
		path TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("ensure tree table: %w", err)
	}
	return &Postgres{db: db}, nil
}

// ReadOnce assembles the subtree at path: the row at the exact path when
// present, otherwise a map of direct children.
func (p *Postgres) ReadOnce(ctx context.Context, path string) (json.RawMessage, error) {
	var payload []byte
	err := p.db.QueryRowContext(ctx, `SELECT payload FROM tree WHERE path = $1`, path).Scan(&payload)
	switch {
	case err == nil:
		return payload, nil
	case err != sql.ErrNoRows:
		return nil, fmt.Errorf("%w: select %s: %v", ErrUnavailable, path, err)
	}

	rows, err := p.db.QueryContext(ctx, `SELECT path, payload FROM tree WHERE path LIKE $1`, path+"/%")
	if err != nil {
		return nil, fmt.Errorf("%w: select children of %s: %v", ErrUnavailable, path, err)
	}
	defer func() { _ = rows.Close() }()

	children := map[string]json.RawMessage{}
	for rows.Next() {
		var childPath string
		var payload []byte
		if err := rows.Scan(&childPath, &payload); err != nil {
			return nil, fmt.Errorf("%w: scan child: %v", ErrUnavailable, err)
		}
		key := strings.TrimPrefix(childPath, path+"/")
		if strings.Contains(key, "/") {
			continue
		}
		children[key] = payload
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate children: %v", ErrUnavailable, err)
	}
	if len(children) == 0 {
		return nil, nil
	}
	return json.Marshal(children)
}

// Write replaces the subtree at path, dropping any child rows beneath it.
func (p *Postgres) Write(ctx context.Context, path string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", ErrUnavailable, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `DELETE FROM tree WHERE path LIKE $1`, path+"/%"); err != nil {
		return fmt.Errorf("%w: clear children of %s: %v", ErrUnavailable, path, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO tree(path,payload) VALUES($1,$2) ON CONFLICT(path) DO UPDATE SET payload=EXCLUDED.payload`, path, data); err != nil {
		return fmt.Errorf("%w: upsert %s: %v", ErrUnavailable, path, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrUnavailable, err)
	}
	committed = true
	return nil
}

// Append inserts value as a child of path under a generated key.
func (p *Postgres) Append(ctx context.Context, path string, value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	key := newKey()
	if _, err := p.db.ExecContext(ctx, `INSERT INTO tree(path,payload) VALUES($1,$2)`, path+"/"+key, data); err != nil {
		return "", fmt.Errorf("%w: insert %s/%s: %v", ErrUnavailable, path, key, err)
	}
	return key, nil
}

// ReadRecordsSince filters the attendance subtree server-side on the
// record timestamp; RFC3339 strings compare correctly as text. The row at
// the exact path holds the whole keyed map and carries no top-level time
// key, so the predicate binds to child rows only and the map's entries are
// filtered after decoding.
func (p *Postgres) ReadRecordsSince(ctx context.Context, since time.Time) ([]domain.AttendanceRecord, error) {
	query := `SELECT payload FROM tree WHERE path = $1 OR path LIKE $2`
	args := []any{PathRecords, PathRecords + "/%"}
	if !since.IsZero() {
		query = `SELECT payload FROM tree WHERE path = $1 OR (path LIKE $2 AND payload->>'time' >= $3)`
		args = append(args, since.UTC().Format(time.RFC3339))
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: select records: %v", ErrUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	var records []domain.AttendanceRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("%w: scan record: %v", ErrUnavailable, err)
		}
		decoded, err := decodeRecords(payload)
		if err != nil {
			var single domain.AttendanceRecord
			if uerr := json.Unmarshal(payload, &single); uerr != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			decoded = []domain.AttendanceRecord{single}
		}
		for _, rec := range decoded {
			if since.IsZero() || !rec.Time.Before(since) {
				records = append(records, rec)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate records: %v", ErrUnavailable, err)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Time.Before(records[j].Time) })
	return records, nil
}

// Close closes the underlying database handle.
func (p *Postgres) Close() error { return p.db.Close() }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}

func newKey() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

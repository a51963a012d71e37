package remotestore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"flockcore/pkg/domain"
)

// treeServer is a minimal JSON tree endpoint backing the client tests.
type treeServer struct {
	mu    sync.Mutex
	paths map[string]json.RawMessage
	seq   int
}

func newTreeServer() *treeServer {
	return &treeServer{paths: map[string]json.RawMessage{}}
}

func (s *treeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodGet:
		raw, ok := s.paths[path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if since := r.URL.Query().Get("since"); since != "" && path == PathRecords {
			raw = filterSince(raw, since)
		}
		_, _ = w.Write(raw)
	case http.MethodPut:
		var raw json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.paths[path] = raw
		_, _ = w.Write(raw)
	case http.MethodPost:
		var raw json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.seq++
		key := "k" + string(rune('0'+s.seq))
		var children map[string]json.RawMessage
		if existing, ok := s.paths[path]; ok {
			_ = json.Unmarshal(existing, &children)
		}
		if children == nil {
			children = map[string]json.RawMessage{}
		}
		children[key] = raw
		merged, _ := json.Marshal(children)
		s.paths[path] = merged
		_ = json.NewEncoder(w).Encode(map[string]string{"name": key})
	default:
		http.Error(w, "method", http.StatusMethodNotAllowed)
	}
}

func filterSince(raw json.RawMessage, since string) json.RawMessage {
	var children map[string]domain.AttendanceRecord
	if err := json.Unmarshal(raw, &children); err != nil {
		return raw
	}
	cutoff, err := time.Parse(time.RFC3339, since)
	if err != nil {
		return raw
	}
	out := map[string]domain.AttendanceRecord{}
	for k, rec := range children {
		if !rec.Time.Before(cutoff) {
			out[k] = rec
		}
	}
	filtered, _ := json.Marshal(out)
	return filtered
}

func newClient(t *testing.T, handler http.Handler) (*HTTP, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewHTTP(Config{BaseURL: srv.URL, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, srv
}

func TestReadOnceAbsentSubtree(t *testing.T) {
	client, _ := newClient(t, newTreeServer())
	raw, err := client.ReadOnce(context.Background(), PathGroups)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if raw != nil {
		t.Fatalf("expected absent subtree, got %s", raw)
	}
}

func TestWriteThenReadOnce(t *testing.T) {
	client, _ := newClient(t, newTreeServer())
	ctx := context.Background()
	groups := domain.Groups{"g1": {{UUID: "u1", Name: "Ana"}}}
	if err := client.Write(ctx, PathGroups, groups); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw, err := client.ReadOnce(ctx, PathGroups)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var back domain.Groups
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back["g1"][0].Name != "Ana" {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}

func TestAppendReturnsServerKey(t *testing.T) {
	client, _ := newClient(t, newTreeServer())
	key, err := client.Append(context.Background(), PathRecords, domain.AttendanceRecord{RecordID: "r1", Time: time.Now()})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if key == "" {
		t.Fatalf("expected server-generated key")
	}
}

func TestReadRecordsSinceScopesQuery(t *testing.T) {
	client, _ := newClient(t, newTreeServer())
	ctx := context.Background()
	old := domain.AttendanceRecord{RecordID: "r-old", Time: time.Date(2025, 2, 23, 9, 0, 0, 0, time.UTC)}
	recent := domain.AttendanceRecord{RecordID: "r-new", Time: time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)}
	for _, rec := range []domain.AttendanceRecord{old, recent} {
		if _, err := client.Append(ctx, PathRecords, rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	got, err := client.ReadRecordsSince(ctx, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("read since: %v", err)
	}
	if len(got) != 1 || got[0].RecordID != "r-new" {
		t.Fatalf("expected only the recent record, got %+v", got)
	}
}

func TestServerErrorMapsToUnavailable(t *testing.T) {
	client, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	_, err := client.ReadOnce(context.Background(), PathGroups)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestConnectionFailureMapsToUnavailable(t *testing.T) {
	srv := httptest.NewServer(newTreeServer())
	url := srv.URL
	srv.Close()
	client, err := NewHTTP(Config{BaseURL: url, Timeout: 500 * time.Millisecond})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.ReadOnce(context.Background(), PathGroups); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

package remotestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"flockcore/pkg/domain"
)

// Config holds explicit construction parameters for the HTTP tree client.
type Config struct {
	BaseURL string
	Timeout time.Duration // per-call ceiling; contexts may be shorter
	Token   string        // optional bearer token
	Client  *http.Client  // optional; a default client is built when nil
}

// HTTP speaks a generic JSON tree protocol: GET /<path> reads a subtree
// (404 meaning absent), PUT /<path> replaces it, POST /<path> inserts a
// child and answers {"name": "<server key>"}. The attendance subtree
// accepts a ?since= query so incremental loads stay cheap.
type HTTP struct {
	base   *url.URL
	token  string
	client *http.Client
}

// NewHTTP constructs the client. Timeout defaults to 10s when unset.
func NewHTTP(cfg Config) (*HTTP, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote base URL required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse remote base URL: %w", err)
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTP{base: base, token: cfg.Token, client: client}, nil
}

// ReadOnce fetches a single consistent snapshot of the subtree at path.
func (h *HTTP) ReadOnce(ctx context.Context, path string) (json.RawMessage, error) {
	return h.get(ctx, path, nil)
}

// Write replaces the subtree at path with the JSON encoding of value.
func (h *HTTP) Write(ctx context.Context, path string, value any) error {
	_, err := h.send(ctx, http.MethodPut, path, value)
	return err
}

// Append inserts value under path with a server-generated key.
func (h *HTTP) Append(ctx context.Context, path string, value any) (string, error) {
	body, err := h.send(ctx, http.MethodPost, path, value)
	if err != nil {
		return "", err
	}
	var out struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%w: decode append response: %v", ErrUnavailable, err)
	}
	return out.Name, nil
}

// ReadRecordsSince fetches attendance records with a date-scoped query so
// only records at or after the sync point travel. Results are ordered by
// timestamp for deterministic merging.
func (h *HTTP) ReadRecordsSince(ctx context.Context, since time.Time) ([]domain.AttendanceRecord, error) {
	query := url.Values{}
	if !since.IsZero() {
		query.Set("since", since.UTC().Format(time.RFC3339))
	}
	raw, err := h.get(ctx, PathRecords, query)
	if err != nil {
		return nil, err
	}
	records, err := decodeRecords(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Time.Before(records[j].Time) })
	return records, nil
}

func (h *HTTP) get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	u := h.endpoint(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	h.authorize(req)
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: GET %s: status %d", ErrUnavailable, path, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(bytes.TrimSpace(body)) == 0 || bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
		return nil, nil
	}
	return body, nil
}

func (h *HTTP) send(ctx context.Context, method, path string, value any) (json.RawMessage, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, h.endpoint(path).String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	h.authorize(req)
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s %s: status %d", ErrUnavailable, method, path, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return body, nil
}

func (h *HTTP) endpoint(path string) *url.URL {
	u := *h.base
	u.Path, _ = url.JoinPath(h.base.Path, path)
	return &u
}

func (h *HTTP) authorize(req *http.Request) {
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
}

package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Filesystem keeps artifacts as files under a root directory with a JSON
// sidecar (key + ".meta") per artifact holding size, etag, and timestamp.
type Filesystem struct {
	root string
}

// NewFilesystem returns a directory-backed store rooted at path, creating
// the directory if needed.
func NewFilesystem(root string) (*Filesystem, error) {
	if root == "" {
		root = "./archivedata"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Filesystem{root: root}, nil
}

func (f *Filesystem) Driver() Driver { return DriverFilesystem }

type sidecar struct {
	ETag      string    `json:"etag"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

func (f *Filesystem) paths(key string) (dataPath, metaPath string, err error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return "", "", err
	}
	dataPath = filepath.Join(f.root, filepath.FromSlash(k))
	metaPath = dataPath + ".meta"
	return
}

func (f *Filesystem) Put(ctx context.Context, key string, payload []byte) (Info, error) {
	dataPath, metaPath, err := f.paths(key)
	if err != nil {
		return Info{}, err
	}
	if _, err := os.Stat(dataPath); err == nil {
		return Info{}, ErrExists
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		return Info{}, err
	}
	// Stage to a temp file then rename so a crash never leaves a torn artifact.
	tmp, err := os.CreateTemp(filepath.Dir(dataPath), ".tmp-*")
	if err != nil {
		return Info{}, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return Info{}, err
	}
	if err := tmp.Close(); err != nil {
		return Info{}, err
	}
	if err := os.Rename(tmp.Name(), dataPath); err != nil {
		return Info{}, err
	}
	sum := sha256.Sum256(payload)
	meta := sidecar{ETag: hex.EncodeToString(sum[:]), Size: int64(len(payload)), CreatedAt: time.Now().UTC()}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return Info{}, err
	}
	if err := os.WriteFile(metaPath, encoded, 0o644); err != nil {
		return Info{}, err
	}
	return Info{Key: key, Size: meta.Size, ETag: meta.ETag, CreatedAt: meta.CreatedAt}, nil
}

func (f *Filesystem) Get(ctx context.Context, key string) ([]byte, Info, error) {
	dataPath, metaPath, err := f.paths(key)
	if err != nil {
		return nil, Info{}, err
	}
	payload, err := os.ReadFile(dataPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, Info{}, ErrNotFound
	}
	if err != nil {
		return nil, Info{}, err
	}
	meta, err := readSidecar(metaPath)
	if err != nil {
		return nil, Info{}, err
	}
	return payload, Info{Key: key, Size: meta.Size, ETag: meta.ETag, CreatedAt: meta.CreatedAt}, nil
}

func (f *Filesystem) List(ctx context.Context, prefix string) ([]Info, error) {
	var infos []Info
	err := filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".meta") {
			return nil
		}
		meta, err := readSidecar(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(f.root, strings.TrimSuffix(path, ".meta"))
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix == "" || strings.HasPrefix(key, prefix) {
			infos = append(infos, Info{Key: key, Size: meta.Size, ETag: meta.ETag, CreatedAt: meta.CreatedAt})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (f *Filesystem) Delete(ctx context.Context, key string) (bool, error) {
	dataPath, metaPath, err := f.paths(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(dataPath); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err := os.Remove(dataPath); err != nil {
		return false, err
	}
	_ = os.Remove(metaPath)
	return true, nil
}

func readSidecar(path string) (sidecar, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return sidecar{}, err
	}
	var meta sidecar
	if err := json.Unmarshal(raw, &meta); err != nil {
		return sidecar{}, err
	}
	return meta, nil
}

// Package filetier implements the session storage tier as a single JSON file.
//
// The whole key space is rewritten on every write through a temp file and a
// rename, so a crash leaves either the old or the new contents on disk.
package filetier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fastprodman/coinsync/internal/storage"
)

var _ storage.Tier = (*Tier)(nil)

type fileRecord struct {
	Value     []byte `json:"value"`
	UpdatedAt int64  `json:"updated_at"`
}

type Tier struct {
	mu     sync.Mutex
	path   string
	data   map[string]fileRecord
	now    func() time.Time
	closed bool
}

type Option func(*Tier)

func WithClock(now func() time.Time) Option {
	return func(t *Tier) { t.now = now }
}

// Open loads path if it exists. A missing file is an empty tier; an
// unreadable one is reported so the caller can decide to discard it.
func Open(path string, opts ...Option) (*Tier, error) {
	t := &Tier{path: path, data: make(map[string]fileRecord), now: time.Now}
	for _, opt := range opts {
		opt(t)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return t, nil
		}

		return nil, fmt.Errorf("read session file: %w", err)
	}

	if len(raw) == 0 {
		return t, nil
	}

	err = json.Unmarshal(raw, &t.data)
	if err != nil {
		return nil, fmt.Errorf("decode session file: %w", err)
	}

	return t, nil
}

func (t *Tier) Get(_ context.Context, key string) (storage.Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return storage.Record{}, storage.ErrClosed
	}

	rec, ok := t.data[key]
	if !ok {
		return storage.Record{}, storage.ErrNotFound
	}

	return storage.Record{
		Value:     append([]byte(nil), rec.Value...),
		UpdatedAt: time.UnixMilli(rec.UpdatedAt),
	}, nil
}

func (t *Tier) Put(_ context.Context, entries ...storage.Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return storage.ErrClosed
	}

	next := t.copyData()
	ts := t.now().UnixMilli()

	for _, e := range entries {
		next[e.Key] = fileRecord{Value: append([]byte(nil), e.Value...), UpdatedAt: ts}
	}

	return t.commit(next)
}

func (t *Tier) Delete(_ context.Context, keys ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return storage.ErrClosed
	}

	next := t.copyData()
	for _, k := range keys {
		delete(next, k)
	}

	return t.commit(next)
}

func (t *Tier) Keys(_ context.Context, prefix string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, storage.ErrClosed
	}

	var keys []string

	for k := range t.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}

	sort.Strings(keys)

	return keys, nil
}

func (t *Tier) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true

	return nil
}

func (t *Tier) copyData() map[string]fileRecord {
	next := make(map[string]fileRecord, len(t.data))
	for k, v := range t.data {
		next[k] = v
	}

	return next
}

// commit writes next to disk and swaps it in only once the rename succeeded.
func (t *Tier) commit(next map[string]fileRecord) error {
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode session file: %w", err)
	}

	dir := filepath.Dir(t.path)

	err = os.MkdirAll(dir, 0o755)
	if err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}

	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}

	err = os.Rename(tmpName, t.path)
	if err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace session file: %w", err)
	}

	t.data = next

	return nil
}

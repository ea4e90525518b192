package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// JSONEntry marshals v into a write entry for key.
func JSONEntry(key string, v any) (Entry, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal %s: %w", key, err)
	}

	return Entry{Key: key, Value: data}, nil
}

// IntEntry encodes n as a decimal string entry.
func IntEntry(key string, n int64) Entry {
	return Entry{Key: key, Value: []byte(strconv.FormatInt(n, 10))}
}

// GetJSON decodes key into dst. It reports false without error when the key
// is absent.
func GetJSON(ctx context.Context, t Tier, key string, dst any) (bool, error) {
	rec, err := t.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}

		return false, fmt.Errorf("get %s: %w", key, err)
	}

	err = json.Unmarshal(rec.Value, dst)
	if err != nil {
		return false, fmt.Errorf("decode %s: %w: %w", key, ErrCorrupt, err)
	}

	return true, nil
}

// GetInt reads a decimal integer value. It reports false without error when
// the key is absent.
func GetInt(ctx context.Context, t Tier, key string) (int64, bool, error) {
	rec, err := t.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, false, nil
		}

		return 0, false, fmt.Errorf("get %s: %w", key, err)
	}

	n, err := strconv.ParseInt(string(rec.Value), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("decode %s: %w: %w", key, ErrCorrupt, err)
	}

	return n, true, nil
}

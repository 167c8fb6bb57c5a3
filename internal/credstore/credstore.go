// Package credstore reads service settings and credentials by key. Callers
// treat the store as advisory: a missing or malformed value falls back to
// hardcoded defaults rather than failing the operation.
package credstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store looks up a raw setting value by key.
type Store interface {
	// Get returns the raw value and true, or false when the key is absent.
	Get(ctx context.Context, key string) (string, bool, error)
}

// GetJSON fetches a key and unmarshals its value into dst. It returns false
// when the key is absent and an error when the value is not valid JSON.
func GetJSON(ctx context.Context, s Store, key string, dst any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("credstore: decode %s: %w", key, err)
	}
	return true, nil
}

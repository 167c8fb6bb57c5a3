// Package etag computes stable content fingerprints for conditional GET
// responses. Fingerprints are SHA-256 digests of the canonical JSON encoding
// of the payload, so two payloads with equal content always agree.
package etag

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Fingerprint hashes the canonical JSON encoding of v and returns a quoted
// entity tag suitable for an ETag header. Map keys are sorted by the JSON
// encoder, so field order in the source value does not affect the result.
func Fingerprint(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal fingerprint payload: %w", err)
	}
	sum := sha256.Sum256(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`, nil
}

// Match reports whether the client-supplied If-None-Match value names the
// current fingerprint. Quotes and a weak-validator prefix are ignored.
func Match(ifNoneMatch, current string) bool {
	if ifNoneMatch == "" || current == "" {
		return false
	}
	return normalize(ifNoneMatch) == normalize(current)
}

func normalize(tag string) string {
	tag = strings.TrimSpace(tag)
	tag = strings.TrimPrefix(tag, "W/")
	return strings.Trim(tag, `"`)
}

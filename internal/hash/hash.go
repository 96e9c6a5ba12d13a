// Package hash provides shared hashing utilities for content comparison
// and checksums.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// IDLength is the number of hex characters shown for a shortened hash.
const IDLength = 16

// Short returns the leading IDLength characters of a hex hash for display.
func Short(full string) string {
	if len(full) <= IDLength {
		return full
	}
	return full[:IDLength]
}

// SHA256Bytes returns the full hex SHA256 of data.
func SHA256Bytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Content returns the full SHA256 of v's JSON encoding.
// Callers are responsible for passing values with a stable field order
// (structs, sorted slices); map keys are sorted by encoding/json.
func Content(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode content: %w", err)
	}
	return SHA256Bytes(data), nil
}

// Package checksum computes content digests used as collection versions.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/starford/dagaz/internal/models"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Entities returns the digest of the canonical JSON encoding of entities.
// A nil and an empty collection share a digest.
func Entities(entities []models.Entity) (string, error) {
	if entities == nil {
		entities = []models.Entity{}
	}
	data, err := json.Marshal(entities)
	if err != nil {
		return "", err
	}
	return Sum(data), nil
}

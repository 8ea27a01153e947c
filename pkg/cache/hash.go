package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// hashKey builds a stage-scoped cache key, "<stage>:<sha256 of the parts>".
// Parts marshal through JSON so option structs key on their field values,
// not their addresses.
func hashKey(stage string, parts ...any) string {
	data, _ := json.Marshal(parts)
	sum := sha256.Sum256(data)
	return stage + ":" + hex.EncodeToString(sum[:])
}

// Hash returns the hex SHA-256 digest of data. Snapshot content hashes and
// layout hashes both come through here, so every pipeline stage keys the
// same way and a one-byte story edit changes every downstream key.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

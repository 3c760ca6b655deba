package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashContent returns the hex SHA-256 of content. Edit buffers compare
// these hashes to decide whether a file is dirty.
func HashContent(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

// ShortSHA trims a full git SHA down to the conventional short form.
func ShortSHA(sha string) string {
	if len(sha) <= 7 {
		return sha
	}
	return sha[:7]
}

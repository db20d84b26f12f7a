package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ContentHash returns the hex SHA-256 of the trimmed text
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

// EmbeddingCacheKey namespaces a cached vector by model so switching providers never
// serves vectors from a different embedding space.
func EmbeddingCacheKey(model, text string) string {
	return "emb:" + model + ":" + ContentHash(text)
}

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const apiKeyPrefix = "mk_"

// GenerateAPIKey creates a random device key and returns it along with
// its SHA-256 hash. The raw key goes to the client exactly once, the
// hash is what gets stored.
func GenerateAPIKey() (string, string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", err
	}
	key := apiKeyPrefix + hex.EncodeToString(bytes)
	return key, HashAPIKey(key), nil
}

// HashAPIKey calculates the SHA-256 hash of an API key.
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// LooksLikeAPIKey reports whether a credential carries the device key
// prefix, to give malformed keys a clean 401 without a DB round trip.
func LooksLikeAPIKey(key string) bool {
	return strings.HasPrefix(key, apiKeyPrefix)
}

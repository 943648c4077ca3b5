package auth

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// prefixLength is the number of leading key characters stored in
// api_keys.api_key_prefix for lookup.
const prefixLength = 12

// GeneratedKey is a freshly issued API key. Key is shown once; only Hash and
// Prefix are stored.
type GeneratedKey struct {
	Key    string
	Hash   string
	Prefix string
}

var keyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateAPIKey issues a random gqm_ key with its bcrypt hash.
func GenerateAPIKey() (*GeneratedKey, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("GenerateAPIKey: %w", err)
	}
	key := KeyPrefix + strings.ToLower(keyEncoding.EncodeToString(buf))
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("GenerateAPIKey: %w", err)
	}
	return &GeneratedKey{Key: key, Hash: string(hash), Prefix: key[:prefixLength]}, nil
}

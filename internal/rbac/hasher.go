package rbac

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

// KeyPrefix marks gateway-issued agent keys.
const KeyPrefix = "sfa_"

// Hasher turns raw agent keys into their stored form. Raw keys are never persisted.
type Hasher struct {
	salt []byte
}

func NewHasher(salt string) (Hasher, error) {
	if salt == "" {
		return Hasher{}, errors.New("AGENT_KEY_SALT is required")
	}
	return Hasher{salt: []byte(salt)}, nil
}

// Hash is HMAC-SHA256(salt, key), hex encoded.
func (h Hasher) Hash(rawKey string) string {
	mac := hmac.New(sha256.New, h.salt)
	mac.Write([]byte(rawKey))
	return hex.EncodeToString(mac.Sum(nil))
}

// GenerateKey returns a new 256-bit agent key.
func GenerateKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate agent key: %w", err)
	}
	return KeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

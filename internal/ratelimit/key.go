package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"

	"storefront-gateway/internal/clientip"

	"github.com/gin-gonic/gin"
)

// KeyFunc returns the identity a request is counted under.
type KeyFunc func(c *gin.Context) string

// ByClientIP counts per resolved client address.
func ByClientIP(c *gin.Context) string {
	return "ip:" + clientip.FromContext(c.Request.Context())
}

// ByAgentKey counts per agent API key, falling back to the client address.
// Only a fingerprint of the key is ever used as a store key.
func ByAgentKey(header string) KeyFunc {
	return func(c *gin.Context) string {
		if k := c.GetHeader(header); k != "" {
			sum := sha256.Sum256([]byte(k))
			return "key:" + hex.EncodeToString(sum[:])
		}
		return ByClientIP(c)
	}
}

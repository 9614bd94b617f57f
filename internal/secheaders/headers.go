// Package secheaders applies the response hardening headers and the per-response CSP nonce.
package secheaders

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"storefront-gateway/internal/pipeline"

	"github.com/gin-gonic/gin"
)

// NonceHeader carries the nonce to the upstream renderer.
const NonceHeader = "X-CSP-Nonce"

const nonceSize = 16

// Managed lists the response headers owned by the gateway. Upstream copies are dropped.
var Managed = []string{
	"Content-Security-Policy",
	"Strict-Transport-Security",
	"X-Frame-Options",
	"X-Content-Type-Options",
	"Referrer-Policy",
	"X-Permitted-Cross-Domain-Policies",
	"X-XSS-Protection",
	"X-Powered-By",
}

type nonceKey struct{}

func WithNonce(ctx context.Context, nonce string) context.Context {
	return context.WithValue(ctx, nonceKey{}, nonce)
}

// NonceFrom returns the nonce of the current response, or "".
func NonceFrom(ctx context.Context) string {
	s, _ := ctx.Value(nonceKey{}).(string)
	return s
}

type Headers struct {
	production bool
}

func New(production bool) *Headers {
	return &Headers{production: production}
}

func (h *Headers) Intercept(c *gin.Context) pipeline.Decision {
	nonce, err := newNonce()
	if err != nil {
		_ = c.Error(err)
		return pipeline.Reject(http.StatusInternalServerError, pipeline.Error("internal error"))
	}
	c.Request = c.Request.WithContext(WithNonce(c.Request.Context(), nonce))
	c.Set("csp_nonce", nonce)

	hdr := c.Writer.Header()
	hdr.Set("Content-Security-Policy", h.Policy(nonce))
	hdr.Set("X-Frame-Options", "DENY")
	hdr.Set("X-Content-Type-Options", "nosniff")
	hdr.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	hdr.Set("X-Permitted-Cross-Domain-Policies", "none")
	hdr.Set("X-XSS-Protection", "0")
	hdr.Del("X-Powered-By")
	if h.production {
		hdr.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
	return pipeline.Continue()
}

// Policy renders the Content-Security-Policy for one nonce.
func (h *Headers) Policy(nonce string) string {
	n := fmt.Sprintf("'nonce-%s'", nonce)

	connect := []string{"'self'", "https://api.stripe.com", "https://www.paypal.com"}
	if !h.production {
		connect = append(connect, "ws://localhost:*")
	}

	directives := [][]string{
		{"default-src", "'self'"},
		{"script-src", "'self'", n, "https://js.stripe.com", "https://www.paypal.com"},
		{"script-src-attr", "'none'"},
		{"style-src", "'self'", n, "https://fonts.googleapis.com"},
		{"font-src", "'self'", "https://fonts.gstatic.com"},
		{"img-src", "'self'", "data:", "https:"},
		append([]string{"connect-src"}, connect...),
		{"frame-src", "https://js.stripe.com", "https://www.paypal.com"},
		{"frame-ancestors", "'none'"},
		{"form-action", "'self'"},
		{"object-src", "'none'"},
		{"base-uri", "'self'"},
		{"upgrade-insecure-requests"},
	}

	parts := make([]string, 0, len(directives))
	for _, d := range directives {
		parts = append(parts, strings.Join(d, " "))
	}
	return strings.Join(parts, "; ")
}

func newNonce() (string, error) {
	buf := make([]byte, nonceSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate csp nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

package secheaders

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storefront-gateway/internal/pipeline"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(h *Headers) (*httptest.ResponseRecorder, string) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var seen string
	r.GET("/", pipeline.Handler(h), func(c *gin.Context) {
		seen = NonceFrom(c.Request.Context())
		c.String(http.StatusOK, "ok")
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w, seen
}

func TestIntercept_SetsHardeningHeaders(t *testing.T) {
	w, nonce := serve(New(true))

	raw, err := base64.RawURLEncoding.DecodeString(nonce)
	require.NoError(t, err)
	assert.Len(t, raw, 16)

	csp := w.Header().Get("Content-Security-Policy")
	assert.Contains(t, csp, "script-src 'self' 'nonce-"+nonce+"' https://js.stripe.com")
	assert.Contains(t, csp, "style-src 'self' 'nonce-"+nonce+"'")
	assert.Contains(t, csp, "frame-ancestors 'none'")
	assert.Contains(t, csp, "object-src 'none'")
	assert.NotContains(t, csp, "ws://localhost")

	assert.Equal(t, "max-age=31536000; includeSubDomains; preload", w.Header().Get("Strict-Transport-Security"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "none", w.Header().Get("X-Permitted-Cross-Domain-Policies"))
	assert.Equal(t, "0", w.Header().Get("X-XSS-Protection"))
	assert.Empty(t, w.Header().Get("X-Powered-By"))
}

func TestIntercept_FreshNoncePerResponse(t *testing.T) {
	h := New(false)
	_, a := serve(h)
	_, b := serve(h)
	assert.NotEqual(t, a, b)
}

func TestPolicy_Development(t *testing.T) {
	w, _ := serve(New(false))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
	csp := w.Header().Get("Content-Security-Policy")
	assert.True(t, strings.Contains(csp, "connect-src 'self' https://api.stripe.com https://www.paypal.com ws://localhost:*"))
}

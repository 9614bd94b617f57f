// Package csrf implements double-submit cookie protection for browser sessions.
package csrf

import (
	"bytes"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"

	"storefront-gateway/internal/clientip"
	"storefront-gateway/internal/metrics"
	"storefront-gateway/internal/pipeline"
	"storefront-gateway/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	// TokenSize is 512 bits before encoding.
	TokenSize = 64

	HeaderName = "X-CSRF-Token"
	FieldName  = "_csrf"

	cookieProduction  = "__Host-sf.csrf"
	cookieDevelopment = "sf.csrf"

	maxBodyInspect = 1 << 20
)

var ErrMismatch = errors.New("csrf: token mismatch")

type Guard struct {
	production bool
	metrics    *metrics.Security
}

func NewGuard(production bool, m *metrics.Security) *Guard {
	return &Guard{production: production, metrics: m}
}

// CookieName is the cookie that carries the server half of the token.
func (g *Guard) CookieName() string {
	if g.production {
		return cookieProduction
	}
	return cookieDevelopment
}

// IssueToken sets a fresh token cookie and returns the plaintext for the client to echo back.
func (g *Guard) IssueToken(c *gin.Context) (string, error) {
	tok, err := generateToken(TokenSize)
	if err != nil {
		return "", err
	}

	sameSite := http.SameSiteLaxMode
	if g.production {
		sameSite = http.SameSiteStrictMode
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     g.CookieName(),
		Value:    tok,
		Path:     "/",
		HttpOnly: true,
		Secure:   g.production,
		SameSite: sameSite,
	})
	return tok, nil
}

// Validate compares the cookie against the header, or the _csrf body field when no header is sent.
// The request body stays readable for downstream handlers.
func (g *Guard) Validate(r *http.Request) error {
	cookie, err := r.Cookie(g.CookieName())
	if err != nil || cookie.Value == "" {
		return fmt.Errorf("%w: cookie missing", ErrMismatch)
	}

	candidate := r.Header.Get(HeaderName)
	if candidate == "" {
		candidate = bodyToken(r)
	}
	if candidate == "" {
		return fmt.Errorf("%w: token missing", ErrMismatch)
	}

	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(candidate)) != 1 {
		return ErrMismatch
	}
	return nil
}

// Intercept rejects state-changing requests that fail Validate.
func (g *Guard) Intercept(c *gin.Context) pipeline.Decision {
	switch c.Request.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return pipeline.Continue()
	}

	if err := g.Validate(c.Request); err != nil {
		logger.FromGin(c).Warn("csrf rejected",
			slog.String("component", "csrf"),
			slog.String("reason", err.Error()),
			slog.String("identity", clientip.FromContext(c.Request.Context())),
			slog.String("path", c.Request.URL.Path),
		)
		g.metrics.Reject("csrf", "mismatch")
		return pipeline.Reject(http.StatusForbidden, pipeline.Error("invalid csrf token"))
	}
	return pipeline.Continue()
}

// TokenHandler serves GET /api/csrf-token.
func (g *Guard) TokenHandler(c *gin.Context) {
	tok, err := g.IssueToken(c)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, pipeline.Error("internal error"))
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{"csrfToken": tok})
}

func bodyToken(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, maxBodyInspect+1))
	// Whatever was consumed goes back in front of the unread remainder.
	r.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(buf), r.Body), Closer: r.Body}
	if err != nil || len(buf) > maxBodyInspect {
		return ""
	}

	switch mediaType {
	case "application/x-www-form-urlencoded":
		vals, err := url.ParseQuery(string(buf))
		if err != nil {
			return ""
		}
		return vals.Get(FieldName)
	case "multipart/form-data":
		clone := r.Clone(r.Context())
		clone.Body = io.NopCloser(bytes.NewReader(buf))
		if err := clone.ParseMultipartForm(maxBodyInspect); err != nil {
			return ""
		}
		defer func() { _ = clone.MultipartForm.RemoveAll() }()
		return clone.FormValue(FieldName)
	case "application/json":
		var body struct {
			CSRF string `json:"_csrf"`
		}
		if err := json.Unmarshal(buf, &body); err != nil {
			return ""
		}
		return body.CSRF
	default:
		return ""
	}
}

type readCloser struct {
	io.Reader
	io.Closer
}

func generateToken(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate csrf token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

package csrf

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"storefront-gateway/internal/metrics"
	"storefront-gateway/internal/pipeline"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(g *Guard, echoed *string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/csrf-token", g.TokenHandler)
	r.Any("/api/cart", pipeline.Handler(g), func(c *gin.Context) {
		b, _ := io.ReadAll(c.Request.Body)
		*echoed = string(b)
		c.Status(http.StatusOK)
	})
	return r
}

func issue(t *testing.T, r *gin.Engine) (string, *http.Cookie) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		CSRFToken string `json:"csrfToken"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	return body.CSRFToken, cookies[0]
}

func TestIssueToken_CookieAttributes(t *testing.T) {
	var echoed string

	prod := newRouter(NewGuard(true, nil), &echoed)
	tok, c := issue(t, prod)
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	require.NoError(t, err)
	assert.Len(t, raw, TokenSize)
	assert.Equal(t, "__Host-sf.csrf", c.Name)
	assert.Equal(t, tok, c.Value)
	assert.Equal(t, "/", c.Path)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)

	dev := newRouter(NewGuard(false, nil), &echoed)
	tok2, c2 := issue(t, dev)
	assert.NotEqual(t, tok, tok2)
	assert.Equal(t, "sf.csrf", c2.Name)
	assert.False(t, c2.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c2.SameSite)
}

func TestIntercept_SafeMethodsBypass(t *testing.T) {
	var echoed string
	r := newRouter(NewGuard(false, nil), &echoed)

	for _, m := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(m, "/api/cart", nil))
		assert.Equal(t, http.StatusOK, w.Code, m)
	}
}

func TestIntercept_HeaderToken(t *testing.T) {
	var echoed string
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	r := newRouter(NewGuard(false, m), &echoed)
	tok, cookie := issue(t, r)

	req := httptest.NewRequest(http.MethodPost, "/api/cart", strings.NewReader(`{"sku":"a"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderName, tok)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"sku":"a"}`, echoed)

	for name, mutate := range map[string]func(*http.Request){
		"no header":      func(req *http.Request) { req.Header.Del(HeaderName) },
		"wrong header":   func(req *http.Request) { req.Header.Set(HeaderName, tok[:len(tok)-1]+"x") },
		"no cookie":      func(req *http.Request) { req.Header.Del("Cookie") },
		"cookie swapped": func(req *http.Request) { req.Header.Set("Cookie", "sf.csrf=other") },
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/cart", nil)
			req.Header.Set(HeaderName, tok)
			req.AddCookie(cookie)
			mutate(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusForbidden, w.Code)
			assert.JSONEq(t, `{"success":false,"error":"invalid csrf token"}`, w.Body.String())
		})
	}
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Rejections.WithLabelValues("csrf", "mismatch")))
}

func TestIntercept_BodyFallbacks(t *testing.T) {
	var echoed string
	g := NewGuard(false, nil)
	r := newRouter(g, &echoed)
	tok, cookie := issue(t, r)

	form := url.Values{"_csrf": {tok}, "qty": {"2"}}.Encode()

	var mp bytes.Buffer
	mw := multipart.NewWriter(&mp)
	require.NoError(t, mw.WriteField("_csrf", tok))
	require.NoError(t, mw.Close())

	jsonBody := `{"_csrf":"` + tok + `","qty":2}`

	cases := []struct {
		name        string
		contentType string
		body        string
	}{
		{"urlencoded", "application/x-www-form-urlencoded", form},
		{"multipart", mw.FormDataContentType(), mp.String()},
		{"json", "application/json; charset=utf-8", jsonBody},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			echoed = ""
			req := httptest.NewRequest(http.MethodPost, "/api/cart", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", tc.contentType)
			req.AddCookie(cookie)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tc.body, echoed, "body must survive inspection")
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/cart", strings.NewReader(`_csrf=`+tok))
	req.Header.Set("Content-Type", "text/plain")
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestValidate_HeaderWinsOverBody(t *testing.T) {
	g := NewGuard(false, nil)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"_csrf":"good"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderName, "bad")
	req.AddCookie(&http.Cookie{Name: g.CookieName(), Value: "good"})

	assert.ErrorIs(t, g.Validate(req), ErrMismatch)
}

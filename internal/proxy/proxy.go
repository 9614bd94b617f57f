// Package proxy forwards requests the gateway does not own to the storefront upstream.
package proxy

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"storefront-gateway/internal/auth"
	"storefront-gateway/internal/rbac"
	"storefront-gateway/internal/secheaders"
	"storefront-gateway/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Identity headers the upstream trusts. Inbound copies are always removed.
const (
	HeaderAgentID    = "X-Agent-Id"
	HeaderAgentRole  = "X-Agent-Role"
	HeaderCustomerID = "X-Customer-Id"
)

type Proxy struct {
	rp  *httputil.ReverseProxy
	log *slog.Logger
}

// Options lists request state that must never reach the upstream. The identity headers
// and the refresh cookie are always removed.
type Options struct {
	StripHeaders []string
	StripCookies []string
}

// New builds a proxy to rawURL.
func New(rawURL string, log *slog.Logger, opts Options) (*Proxy, error) {
	target, err := url.Parse(rawURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid upstream url %q", rawURL)
	}
	if log == nil {
		log = slog.Default()
	}

	p := &Proxy{log: log}
	strip := append([]string{HeaderAgentID, HeaderAgentRole, HeaderCustomerID, secheaders.NonceHeader}, opts.StripHeaders...)
	dropCookies := map[string]bool{auth.RefreshCookieName: true}
	for _, name := range opts.StripCookies {
		dropCookies[name] = true
	}

	p.rp = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()

			for _, h := range strip {
				pr.Out.Header.Del(h)
			}
			stripCookies(pr.Out, dropCookies)

			ctx := pr.In.Context()
			if n := secheaders.NonceFrom(ctx); n != "" {
				pr.Out.Header.Set(secheaders.NonceHeader, n)
			}
			if a, ok := rbac.AgentFrom(ctx); ok {
				pr.Out.Header.Set(HeaderAgentID, a.ID)
				pr.Out.Header.Set(HeaderAgentRole, a.Role.String())
			}
			if id, ok := auth.IdentityFrom(ctx); ok {
				pr.Out.Header.Set(HeaderCustomerID, id.CustomerID)
			}
		},
		ModifyResponse: func(resp *http.Response) error {
			for _, h := range secheaders.Managed {
				resp.Header.Del(h)
			}
			return nil
		},
		ErrorHandler: p.errorHandler,
	}
	return p, nil
}

// stripCookies rewrites the Cookie header without the named cookies.
func stripCookies(r *http.Request, drop map[string]bool) {
	cookies := r.Cookies()
	if len(cookies) == 0 {
		return
	}
	kept := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if !drop[c.Name] {
			kept = append(kept, c.Name+"="+c.Value)
		}
	}
	r.Header.Del("Cookie")
	if len(kept) > 0 {
		r.Header.Set("Cookie", strings.Join(kept, "; "))
	}
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.rp.ServeHTTP(w, r)
}

// Handler adapts the proxy to a terminal gin handler.
func (p *Proxy) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p.rp.ServeHTTP(c.Writer, c.Request)
	}
}

func (p *Proxy) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	logger.FromContext(r.Context()).Error("proxy error",
		slog.String("component", "proxy"),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	_, _ = w.Write([]byte(`{"success":false,"error":"upstream unavailable"}`))
}

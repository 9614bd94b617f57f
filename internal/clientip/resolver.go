// Package clientip resolves the client network identity used for rate limiting, audit and logs.
package clientip

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const Unknown = "unknown"

// Resolver picks the client address in order: the trusted edge header, the first
// X-Forwarded-For hop, the socket peer. Values that are not IP addresses are skipped.
type Resolver struct {
	TrustedHeader string
}

func NewResolver(trustedHeader string) Resolver {
	return Resolver{TrustedHeader: trustedHeader}
}

func (r Resolver) Resolve(req *http.Request) string {
	if r.TrustedHeader != "" {
		if ip := parseIP(req.Header.Get(r.TrustedHeader)); ip != "" {
			return ip
		}
	}

	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := parseIP(first); ip != "" {
			return ip
		}
	}

	if host, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		if ip := parseIP(host); ip != "" {
			return ip
		}
	}
	if ip := parseIP(req.RemoteAddr); ip != "" {
		return ip
	}
	return Unknown
}

// Middleware attaches the resolved client to the request context.
func Middleware(r Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := r.Resolve(c.Request)
		c.Request = c.Request.WithContext(WithClientIP(c.Request.Context(), ip))
		c.Set("client_ip", ip)
		c.Next()
	}
}

func parseIP(v string) string {
	ip := net.ParseIP(strings.TrimSpace(v))
	if ip == nil {
		return ""
	}
	return ip.String()
}

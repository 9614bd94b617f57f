package auth

import (
	"net/http"
	"time"
)

const RefreshCookieName = "sf_refresh"

// CookiePolicy decides how the refresh token travels in the browser.
// The cookie is never readable from script and only sent to the auth routes.
type CookiePolicy struct {
	Path       string
	MaxAge     time.Duration
	Production bool
}

func NewCookiePolicy(path string, maxAge time.Duration, production bool) CookiePolicy {
	if path == "" {
		path = "/api/auth"
	}
	return CookiePolicy{Path: path, MaxAge: maxAge, Production: production}
}

func (p CookiePolicy) SetRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, p.cookie(token, int(p.MaxAge.Seconds())))
}

func (p CookiePolicy) ClearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, p.cookie("", -1))
}

// RefreshTokenFrom returns the refresh cookie value, or "" when absent.
func (p CookiePolicy) RefreshTokenFrom(r *http.Request) string {
	c, err := r.Cookie(RefreshCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (p CookiePolicy) cookie(value string, maxAge int) *http.Cookie {
	c := &http.Cookie{
		Name:     RefreshCookieName,
		Value:    value,
		Path:     p.Path,
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if p.Production {
		c.Secure = true
		c.SameSite = http.SameSiteStrictMode
	}
	return c
}

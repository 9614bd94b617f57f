package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"storefront-gateway/internal/config"
	"storefront-gateway/internal/kvstore"
	"storefront-gateway/internal/metrics"
	"storefront-gateway/internal/pipeline"
	"storefront-gateway/pkg/logger"

	"github.com/gin-gonic/gin"
)

const keyPrefix = "sf:rl:"

// Limiter enforces a fixed-window Policy per identity.
type Limiter struct {
	policy  Policy
	store   kvstore.Store
	key     KeyFunc
	local   *localLimiter
	metrics *metrics.Security
	now     func() time.Time
}

func NewLimiter(p Policy, store kvstore.Store, key KeyFunc, m *metrics.Security) *Limiter {
	if key == nil {
		key = ByClientIP
	}
	l := &Limiter{
		policy:  p,
		store:   store,
		key:     key,
		metrics: m,
		now:     time.Now,
	}
	if p.OnStoreError == config.OnStoreErrorLocal {
		l.local = newLocalLimiter(p, l.now())
	}
	return l
}

func (l *Limiter) Policy() Policy { return l.policy }

func (l *Limiter) undoKey() string { return "ratelimit.undo." + l.policy.Name }

func (l *Limiter) Intercept(c *gin.Context) pipeline.Decision {
	id := l.key(c)
	storeKey := keyPrefix + l.policy.Name + ":" + id

	ctr, err := l.store.Hit(c.Request.Context(), storeKey, l.policy.Window)
	if err != nil {
		return l.onStoreError(c, id, err)
	}

	reset := l.resetSeconds(ctr.ResetIn)
	remaining := int64(l.policy.Max) - ctr.Count
	if remaining < 0 {
		remaining = 0
	}
	l.setHeaders(c, remaining, reset)

	if ctr.Count > int64(l.policy.Max) {
		return l.reject(c, id, reset, "limit")
	}

	if l.policy.SkipSuccessful {
		c.Set(l.undoKey(), storeKey)
	}
	return pipeline.Continue()
}

// Finish returns the hit of a successful response when the policy only counts failures.
func (l *Limiter) Finish(c *gin.Context) {
	if !l.policy.SkipSuccessful || c.Writer.Status() >= http.StatusBadRequest {
		return
	}
	storeKey := c.GetString(l.undoKey())
	if storeKey == "" {
		return
	}
	if err := l.store.Undo(context.WithoutCancel(c.Request.Context()), storeKey); err != nil {
		logger.FromGin(c).Warn("rate limit undo failed",
			slog.String("component", "ratelimit"),
			slog.String("policy", l.policy.Name),
			slog.String("reason", err.Error()),
		)
	}
}

func (l *Limiter) onStoreError(c *gin.Context, id string, err error) pipeline.Decision {
	log := logger.FromGin(c)
	l.metrics.StoreFallback(l.policy.Name, l.policy.OnStoreError)

	switch l.policy.OnStoreError {
	case config.OnStoreErrorOpen:
		log.Warn("rate limit store unavailable, allowing",
			slog.String("component", "ratelimit"),
			slog.String("policy", l.policy.Name),
			slog.String("reason", err.Error()),
		)
		return pipeline.Continue()

	case config.OnStoreErrorLocal:
		ok, wait := l.local.allow(id, l.now())
		if ok {
			return pipeline.Continue()
		}
		reset := l.resetSeconds(wait)
		l.setHeaders(c, 0, reset)
		return l.reject(c, id, reset, "local_limit")

	default:
		log.Error("rate limit store unavailable, rejecting",
			slog.String("component", "ratelimit"),
			slog.String("policy", l.policy.Name),
			slog.String("reason", err.Error()),
		)
		l.metrics.Reject("ratelimit", "store_unavailable")
		return pipeline.Reject(http.StatusServiceUnavailable, pipeline.Error("service temporarily unavailable"))
	}
}

func (l *Limiter) reject(c *gin.Context, id string, reset int64, reason string) pipeline.Decision {
	c.Header("Retry-After", strconv.FormatInt(reset, 10))

	logger.FromGin(c).Warn("rate limit exceeded",
		slog.String("component", "ratelimit"),
		slog.String("policy", l.policy.Name),
		slog.String("reason", reason),
		slog.String("error", ErrRateLimited.Error()),
		slog.String("identity", id),
		slog.String("path", c.Request.URL.Path),
	)
	l.metrics.Reject("ratelimit", l.policy.Name)

	return pipeline.Reject(http.StatusTooManyRequests, gin.H{
		"success":    false,
		"error":      l.policy.Message,
		"retryAfter": reset,
	})
}

// setHeaders writes the draft-7 RateLimit and RateLimit-Policy fields.
func (l *Limiter) setHeaders(c *gin.Context, remaining, reset int64) {
	c.Header("RateLimit", fmt.Sprintf("limit=%d, remaining=%d, reset=%d", l.policy.Max, remaining, reset))
	c.Header("RateLimit-Policy", fmt.Sprintf("%d;w=%d", l.policy.Max, int64(l.policy.Window.Seconds())))
}

// resetSeconds rounds up to whole seconds and clamps to [1, window].
func (l *Limiter) resetSeconds(d time.Duration) int64 {
	s := int64(math.Ceil(d.Seconds()))
	if s < 1 {
		s = 1
	}
	if w := int64(math.Ceil(l.policy.Window.Seconds())); s > w {
		s = w
	}
	return s
}

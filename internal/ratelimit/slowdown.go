package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"storefront-gateway/internal/config"
	"storefront-gateway/internal/kvstore"
	"storefront-gateway/internal/metrics"
	"storefront-gateway/internal/pipeline"
	"storefront-gateway/pkg/logger"

	"github.com/gin-gonic/gin"
)

const slowDownPrefix = "sf:sd:"

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SlowDown delays repeated requests from one identity instead of rejecting them.
// Install it before the Limiter of the same route so both observe every attempt.
type SlowDown struct {
	cfg     config.SlowDownConfig
	store   kvstore.Store
	key     KeyFunc
	sleep   Sleeper
	metrics *metrics.Security
}

func NewSlowDown(cfg config.SlowDownConfig, store kvstore.Store, key KeyFunc, sleep Sleeper, m *metrics.Security) *SlowDown {
	if key == nil {
		key = ByClientIP
	}
	if sleep == nil {
		sleep = SleepContext
	}
	return &SlowDown{cfg: cfg, store: store, key: key, sleep: sleep, metrics: m}
}

// Delay is the penalty for the count-th request of a window.
func (s *SlowDown) Delay(count int64) time.Duration {
	over := count - int64(s.cfg.After)
	if over <= 0 {
		return 0
	}
	d := time.Duration(over) * s.cfg.Step
	if d > s.cfg.MaxDelay || d < 0 {
		return s.cfg.MaxDelay
	}
	return d
}

func (s *SlowDown) Intercept(c *gin.Context) pipeline.Decision {
	ctx := c.Request.Context()
	id := s.key(c)

	ctr, err := s.store.Hit(ctx, slowDownPrefix+id, s.cfg.Window)
	if err != nil {
		logger.FromGin(c).Warn("slow-down store unavailable, not delaying",
			slog.String("component", "slowdown"),
			slog.String("reason", err.Error()),
		)
		return pipeline.Continue()
	}

	d := s.Delay(ctr.Count)
	if d == 0 {
		return pipeline.Continue()
	}

	s.metrics.ObserveDelay(d)
	logger.FromGin(c).Debug("slowing down request",
		slog.String("component", "slowdown"),
		slog.String("identity", id),
		slog.Duration("delay", d),
	)
	if err := s.sleep(ctx, d); err != nil {
		return pipeline.Reject(http.StatusRequestTimeout, pipeline.Error("request cancelled"))
	}
	return pipeline.Continue()
}

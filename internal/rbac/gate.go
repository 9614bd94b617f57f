package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"storefront-gateway/internal/clientip"
	"storefront-gateway/internal/config"
	"storefront-gateway/internal/metrics"
	"storefront-gateway/internal/pipeline"
	"storefront-gateway/pkg/logger"

	"github.com/gin-gonic/gin"
)

var (
	ErrUnauthorized = errors.New("rbac: unauthorized")
	ErrForbidden    = errors.New("rbac: forbidden")

	// ErrLookupFailed means the key store could not answer in time.
	ErrLookupFailed = errors.New("rbac: key lookup failed")
)

// Gate authenticates agent API keys and enforces a minimum role per route.
type Gate struct {
	repo    KeyRepository
	hasher  Hasher
	header  string
	timeout time.Duration
	metrics *metrics.Security
}

func NewGate(repo KeyRepository, hasher Hasher, cfg config.AgentConfig, m *metrics.Security) *Gate {
	g := &Gate{
		repo:    repo,
		hasher:  hasher,
		header:  cfg.KeyHeader,
		timeout: cfg.LookupTimeout,
		metrics: m,
	}
	if g.header == "" {
		g.header = "X-Agent-Key"
	}
	if g.timeout <= 0 {
		g.timeout = 500 * time.Millisecond
	}
	return g
}

// Header is the request header carrying the raw key.
func (g *Gate) Header() string { return g.header }

// Authenticate resolves rawKey to an agent. Errors are ErrUnauthorized or ErrLookupFailed.
func (g *Gate) Authenticate(ctx context.Context, rawKey string) (Agent, error) {
	if rawKey == "" {
		return Agent{}, fmt.Errorf("%w: key missing", ErrUnauthorized)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	k, err := g.repo.FindActiveByHash(ctx, g.hasher.Hash(rawKey))
	if errors.Is(err, ErrKeyNotFound) {
		return Agent{}, fmt.Errorf("%w: key not recognised", ErrUnauthorized)
	}
	if err != nil {
		return Agent{}, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}

	role, err := ParseRole(k.Role)
	if err != nil {
		return Agent{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return Agent{ID: k.ID, Label: k.Label, Role: role}, nil
}

// Require admits agents whose role satisfies required.
func (g *Gate) Require(required Role) pipeline.Interceptor {
	return pipeline.InterceptorFunc(func(c *gin.Context) pipeline.Decision {
		a, err := g.Authenticate(c.Request.Context(), c.GetHeader(g.header))
		switch {
		case errors.Is(err, ErrLookupFailed):
			g.warn(c, "lookup_failed", err)
			return pipeline.Reject(http.StatusServiceUnavailable, pipeline.Error("service temporarily unavailable"))
		case err != nil:
			g.warn(c, "unauthorized", err)
			return pipeline.Reject(http.StatusUnauthorized, pipeline.Error("invalid or missing agent API key"))
		}

		if !a.Role.Satisfies(required) {
			g.warn(c, "forbidden", fmt.Errorf("%w: %s below %s", ErrForbidden, a.Role, required))
			return pipeline.Reject(http.StatusForbidden, pipeline.Error("insufficient agent permissions"))
		}

		c.Request = c.Request.WithContext(WithAgent(c.Request.Context(), a))
		c.Set("agent_id", a.ID)
		c.Set("agent_role", a.Role.String())
		return pipeline.Continue()
	})
}

func (g *Gate) warn(c *gin.Context, reason string, err error) {
	logger.FromGin(c).Warn("agent request rejected",
		slog.String("component", "agent_rbac"),
		slog.String("reason", err.Error()),
		slog.String("identity", clientip.FromContext(c.Request.Context())),
		slog.String("path", c.Request.URL.Path),
	)
	g.metrics.Reject("agent_rbac", reason)
}

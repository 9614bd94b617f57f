package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"storefront-gateway/internal/auth"
	"storefront-gateway/internal/clientip"
	"storefront-gateway/internal/httpapi"
	"storefront-gateway/internal/metrics"
	"storefront-gateway/internal/pipeline"
	"storefront-gateway/internal/ratelimit"
	"storefront-gateway/pkg/logger"
	"storefront-gateway/pkg/utils"

	"github.com/gin-gonic/gin"
)

// newRouter wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func newRouter(gw *gateway) *gin.Engine {
	r := gin.New()
	r.RedirectTrailingSlash = false
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(gw.log))
	r.Use(clientip.Middleware(clientip.NewResolver(gw.cfg.RateLimit.TrustedIPHeader)))

	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) { ready(c, gw) })
	if gw.cfg.App.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(metrics.Handler(gw.registry)))
	}

	// Every browser-facing request: nonce and hardening headers, the global limiter.
	edge := pipeline.Handler(gw.headers, gw.limiters[ratelimit.PolicyGlobal])
	// Cookie-authenticated clients additionally need a valid CSRF token on state changes.
	browser := pipeline.Handler(gw.csrf)
	requireCustomer := auth.RequireAccessToken(gw.auth)

	api := r.Group("/api", edge)
	api.GET("/csrf-token", gw.csrf.TokenHandler)

	h := gw.handlers
	// Limiters sit ahead of browser so attempts failing CSRF still count.
	authGroup := api.Group("/auth")
	{
		credentials := pipeline.Handler(gw.slowDown, gw.limiters[ratelimit.PolicyAuth])
		authGroup.POST("/login", credentials, browser, h.Login)
		authGroup.POST("/register", credentials, browser, h.Register)
		authGroup.POST("/refresh", pipeline.Handler(gw.limiters[ratelimit.PolicyAuth]), browser, h.Refresh)
		authGroup.POST("/logout", browser, h.Logout)
		authGroup.GET("/me", browser, requireCustomer, h.Me)

		recovery := pipeline.Handler(gw.slowDown, gw.limiters[ratelimit.PolicyRecovery])
		authGroup.POST("/forgot-password", recovery, browser, gw.proxy.Handler())
		authGroup.POST("/reset-password", recovery, browser, gw.proxy.Handler())
	}

	api.Any("/checkout/*path", pipeline.Handler(gw.limiters[ratelimit.PolicyCheckout]), browser, requireCustomer, gw.proxy.Handler())
	api.Any("/account/*path", browser, requireCustomer, gw.proxy.Handler())

	// Agent clients are cookie-less and carry an API key, so no CSRF here.
	mcp := api.Group("/mcp", pipeline.Handler(gw.limiters[ratelimit.PolicyAgent]))
	for _, tool := range httpapi.AgentTools {
		handler := gw.proxy.Handler()
		if tool.Name == httpapi.ToolRevokeAgentKey {
			handler = h.RevokeAgentKey
		}
		mcp.POST("/tools/"+tool.Name, pipeline.Handler(gw.gate.Require(tool.Role), gw.recorder), handler)
	}

	// Everything else belongs to the storefront.
	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/mcp/") {
			c.AbortWithStatusJSON(http.StatusNotFound, pipeline.Error("unknown agent tool"))
			return
		}
		c.Next()
	}, edge, browser, gw.proxy.Handler())

	return r
}

func ready(c *gin.Context, gw *gateway) {
	if err := utils.HealthCheck(c.Request.Context(), gw.db, 2*time.Second); err != nil {
		logger.FromGin(c).Error("readiness failed", "component", "postgres", "reason", err.Error())
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "component": "postgres"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := gw.rdb.Ping(ctx).Err(); err != nil {
		logger.FromGin(c).Error("readiness failed", "component", "redis", "reason", err.Error())
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "component": "redis"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

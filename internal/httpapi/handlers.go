package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"storefront-gateway/internal/audit"
	"storefront-gateway/internal/auth"
	"storefront-gateway/internal/clientip"
	"storefront-gateway/internal/customer"
	"storefront-gateway/internal/pipeline"
	"storefront-gateway/internal/rbac"
	"storefront-gateway/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups the gateway-owned HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth      *auth.Manager
	Cookies   auth.CookiePolicy
	Customers *customer.Service
	Keys      rbac.KeyRepository
	Audit     *audit.Service
}

// --- Auth ---

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type sessionResponse struct {
	Success     bool         `json:"success"`
	AccessToken string       `json:"accessToken"`
	ExpiresAt   time.Time    `json:"expiresAt"`
	Customer    *customerDTO `json:"customer,omitempty"`
}

type customerDTO struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Role      string `json:"role"`
}

func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, pipeline.Error("email and password are required"))
		return
	}

	cust, err := h.Customers.Authenticate(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, customer.ErrInvalidCredentials) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, pipeline.Error("invalid email or password"))
		return
	}
	if err != nil {
		logger.FromGin(c).Error("login lookup failed", "component", "httpapi", "reason", err.Error())
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, pipeline.Error("service temporarily unavailable"))
		return
	}

	h.startSession(c, http.StatusOK, cust)
}

func (h Handlers) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, pipeline.Error("invalid json"))
		return
	}

	cust, err := h.Customers.Register(c.Request.Context(), customer.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	switch {
	case errors.Is(err, customer.ErrInvalidInput):
		c.AbortWithStatusJSON(http.StatusBadRequest, pipeline.Error(inputMessage(err)))
		return
	case errors.Is(err, customer.ErrEmailTaken):
		c.AbortWithStatusJSON(http.StatusConflict, pipeline.Error("email already registered"))
		return
	case err != nil:
		logger.FromGin(c).Error("registration failed", "component", "httpapi", "reason", err.Error())
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, pipeline.Error("service temporarily unavailable"))
		return
	}

	h.startSession(c, http.StatusCreated, cust)
}

// Refresh rotates the refresh token from the cookie, or from the JSON body for non-browser clients.
func (h Handlers) Refresh(c *gin.Context) {
	tok := h.Cookies.RefreshTokenFrom(c.Request)
	if tok == "" {
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			tok = req.RefreshToken
		}
	}
	if tok == "" {
		h.Cookies.ClearRefreshCookie(c.Writer)
		c.AbortWithStatusJSON(http.StatusUnauthorized, pipeline.Error("refresh token required"))
		return
	}

	pair, err := h.Auth.Rotate(c.Request.Context(), tok)
	if err != nil {
		h.Cookies.ClearRefreshCookie(c.Writer)
		log := logger.FromGin(c)
		if errors.Is(err, auth.ErrRevocationUnavailable) {
			log.Error("refresh rotation failed", "component", "auth", "reason", err.Error())
		} else {
			log.Info("refresh token rejected", "component", "auth", "reason", err.Error())
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, pipeline.Error("invalid refresh token"))
		return
	}

	h.Cookies.SetRefreshCookie(c.Writer, pair.RefreshToken)
	c.JSON(http.StatusOK, sessionResponse{
		Success:     true,
		AccessToken: pair.AccessToken,
		ExpiresAt:   pair.AccessExpiresAt,
	})
}

// Logout always succeeds for the caller. A failed revocation is only logged.
func (h Handlers) Logout(c *gin.Context) {
	if tok := h.Cookies.RefreshTokenFrom(c.Request); tok != "" {
		if err := h.Auth.RevokeRefreshToken(c.Request.Context(), tok); err != nil {
			logger.FromGin(c).Error("logout revocation failed", "component", "auth", "reason", err.Error())
		}
	}
	h.Cookies.ClearRefreshCookie(c.Writer)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Me requires auth.RequireAccessToken in front of it.
func (h Handlers) Me(c *gin.Context) {
	id, ok := auth.IdentityFrom(c.Request.Context())
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, pipeline.Error("unauthenticated"))
		return
	}

	dto := customerDTO{ID: id.CustomerID, Email: id.Email, Role: id.Role}
	if h.Customers != nil {
		cust, err := h.Customers.Get(c.Request.Context(), id.CustomerID)
		switch {
		case errors.Is(err, customer.ErrNotFound):
			c.AbortWithStatusJSON(http.StatusUnauthorized, pipeline.Error("unauthenticated"))
			return
		case err != nil:
			logger.FromGin(c).Warn("customer profile lookup failed", "component", "httpapi", "reason", err.Error())
		default:
			dto.FirstName, dto.LastName = cust.FirstName, cust.LastName
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "customer": dto})
}

func (h Handlers) startSession(c *gin.Context, status int, cust customer.Customer) {
	pair, err := h.Auth.GenerateTokenPair(auth.TokenPayload{
		Subject: cust.ID,
		Email:   cust.Email,
		Role:    cust.Role,
	})
	if err != nil {
		logger.FromGin(c).Error("token issuance failed", "component", "auth", "reason", err.Error())
		c.AbortWithStatusJSON(http.StatusInternalServerError, pipeline.Error("token issuance failed"))
		return
	}

	h.Cookies.SetRefreshCookie(c.Writer, pair.RefreshToken)
	c.JSON(status, sessionResponse{
		Success:     true,
		AccessToken: pair.AccessToken,
		ExpiresAt:   pair.AccessExpiresAt,
		Customer: &customerDTO{
			ID:        cust.ID,
			Email:     cust.Email,
			FirstName: cust.FirstName,
			LastName:  cust.LastName,
			Role:      cust.Role,
		},
	})
}

func inputMessage(err error) string {
	return strings.TrimPrefix(err.Error(), customer.ErrInvalidInput.Error()+": ")
}

// --- Agent tools ---

type revokeKeyRequest struct {
	KeyID string `json:"keyId"`
}

// RevokeAgentKey is the one agent tool served by the gateway itself. It requires rbac.RoleAdmin.
func (h Handlers) RevokeAgentKey(c *gin.Context) {
	var req revokeKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.KeyID) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, pipeline.Error("keyId is required"))
		return
	}

	ctx := c.Request.Context()
	actor, ok := rbac.AgentFrom(ctx)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, pipeline.Error("invalid or missing agent API key"))
		return
	}
	if actor.ID == req.KeyID {
		c.AbortWithStatusJSON(http.StatusBadRequest, pipeline.Error("an agent cannot revoke its own key"))
		return
	}

	err := h.Keys.Revoke(ctx, req.KeyID)
	if errors.Is(err, rbac.ErrKeyNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, pipeline.Error("agent key not found"))
		return
	}
	if err != nil {
		logger.FromGin(c).Error("agent key revoke failed", "component", "rbac", "reason", err.Error())
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, pipeline.Error("service temporarily unavailable"))
		return
	}

	if err := h.Audit.LogKeyRevoked(ctx, actor.ID, actor.Role.String(), clientip.FromContext(ctx), req.KeyID); err != nil {
		logger.FromGin(c).Error("agent audit append failed", "component", "audit", "reason", err.Error())
	}
	logger.FromGin(c).Info("agent key revoked",
		slog.String("component", "rbac"),
		slog.String("agent_id", actor.ID),
		slog.String("target_key_id", req.KeyID),
	)
	c.JSON(http.StatusOK, gin.H{"success": true, "keyId": req.KeyID})
}

package rbac

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront-gateway/internal/config"
	"storefront-gateway/internal/metrics"
	"storefront-gateway/internal/pipeline"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRepo is an in-memory KeyRepository keyed by hash.
type memRepo struct {
	keys  map[string]AgentKey
	err   error
	delay time.Duration
}

func (m *memRepo) FindActiveByHash(ctx context.Context, keyHash string) (AgentKey, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return AgentKey{}, ctx.Err()
		}
	}
	if m.err != nil {
		return AgentKey{}, m.err
	}
	k, ok := m.keys[keyHash]
	if !ok || k.RevokedAt != nil {
		return AgentKey{}, ErrKeyNotFound
	}
	return k, nil
}

func (m *memRepo) Create(context.Context, string, Role, string) (AgentKey, error) {
	return AgentKey{}, errors.New("not implemented")
}

func (m *memRepo) Revoke(context.Context, string) error { return errors.New("not implemented") }

func newGateRouter(t *testing.T, repo KeyRepository, m *metrics.Security, required Role) (*gin.Engine, Hasher) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h, err := NewHasher("salt")
	require.NoError(t, err)
	g := NewGate(repo, h, config.AgentConfig{KeyHeader: "X-Agent-Key", LookupTimeout: 50 * time.Millisecond}, m)

	r := gin.New()
	r.POST("/api/mcp/tools/:tool", pipeline.Handler(g.Require(required)), func(c *gin.Context) {
		a, ok := AgentFrom(c.Request.Context())
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"agent": a.ID, "role": a.Role.String()})
	})
	return r, h
}

func call(r *gin.Engine, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/mcp/tools/manage_cart", nil)
	if key != "" {
		req.Header.Set("X-Agent-Key", key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGate_StateMachine(t *testing.T) {
	h, _ := NewHasher("salt")
	revoked := time.Now()
	repo := &memRepo{keys: map[string]AgentKey{
		h.Hash("sfa_read"):    {ID: "a-read", Role: RoleNameRead},
		h.Hash("sfa_write"):   {ID: "a-write", Role: RoleNameWrite},
		h.Hash("sfa_admin"):   {ID: "a-admin", Role: RoleNameAdmin},
		h.Hash("sfa_garbage"): {ID: "a-bad", Role: "superuser"},
		h.Hash("sfa_revoked"): {ID: "a-old", Role: RoleNameAdmin, RevokedAt: &revoked},
	}}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	r, _ := newGateRouter(t, repo, m, RoleWrite)

	cases := []struct {
		key    string
		status int
		body   string
	}{
		{"", http.StatusUnauthorized, `{"success":false,"error":"invalid or missing agent API key"}`},
		{"sfa_unknown", http.StatusUnauthorized, `{"success":false,"error":"invalid or missing agent API key"}`},
		{"sfa_revoked", http.StatusUnauthorized, `{"success":false,"error":"invalid or missing agent API key"}`},
		{"sfa_garbage", http.StatusUnauthorized, `{"success":false,"error":"invalid or missing agent API key"}`},
		{"sfa_read", http.StatusForbidden, `{"success":false,"error":"insufficient agent permissions"}`},
		{"sfa_write", http.StatusOK, `{"agent":"a-write","role":"agent:write"}`},
		{"sfa_admin", http.StatusOK, `{"agent":"a-admin","role":"agent:admin"}`},
	}
	for _, tc := range cases {
		w := call(r, tc.key)
		assert.Equal(t, tc.status, w.Code, tc.key)
		assert.JSONEq(t, tc.body, w.Body.String(), tc.key)
	}

	assert.Equal(t, 4.0, testutil.ToFloat64(m.Rejections.WithLabelValues("agent_rbac", "unauthorized")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejections.WithLabelValues("agent_rbac", "forbidden")))
}

func TestGate_LookupFailureIsUnavailable(t *testing.T) {
	r, _ := newGateRouter(t, &memRepo{err: errors.New("connection refused")}, nil, RoleRead)
	w := call(r, "sfa_any")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"service temporarily unavailable"}`, w.Body.String())
}

func TestGate_LookupTimeoutIsUnavailable(t *testing.T) {
	r, _ := newGateRouter(t, &memRepo{delay: time.Second}, nil, RoleRead)
	start := time.Now()
	w := call(r, "sfa_any")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

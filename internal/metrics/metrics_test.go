package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecurity_RecordsOnInjectedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Reject("csrf", "mismatch")
	m.Reject("csrf", "mismatch")
	m.Reject("ratelimit", "auth")
	m.ObserveDelay(1500 * time.Millisecond)
	m.SetBreakerState("redis", 2)
	m.StoreFallback("checkout", "local")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Rejections.WithLabelValues("csrf", "mismatch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejections.WithLabelValues("ratelimit", "auth")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("redis")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreFallbacks.WithLabelValues("checkout", "local")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.SlowDownDelay))
}

func TestSecurity_NilIsNoop(t *testing.T) {
	var m *Security
	assert.NotPanics(t, func() {
		m.Reject("csrf", "mismatch")
		m.ObserveDelay(time.Second)
		m.SetBreakerState("redis", 0)
		m.StoreFallback("global", "open")
	})
}

func TestHandler_ExposesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Reject("agent_rbac", "forbidden")

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `security_rejections_total{component="agent_rbac",reason="forbidden"} 1`)
}

package audit

import (
	"path"

	"storefront-gateway/internal/clientip"
	"storefront-gateway/internal/pipeline"
	"storefront-gateway/internal/rbac"
	"storefront-gateway/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Recorder audits every agent call that passed the gate, once the response status is known.
type Recorder struct {
	svc *Service
}

func NewRecorder(svc *Service) *Recorder {
	return &Recorder{svc: svc}
}

func (r *Recorder) Intercept(*gin.Context) pipeline.Decision {
	return pipeline.Continue()
}

func (r *Recorder) Finish(c *gin.Context) {
	a, ok := rbac.AgentFrom(c.Request.Context())
	if !ok {
		return
	}
	err := r.svc.LogAgentCall(c.Request.Context(), AgentCall{
		Tool:      path.Base(c.Request.URL.Path),
		AgentID:   a.ID,
		AgentRole: a.Role.String(),
		IP:        clientip.FromContext(c.Request.Context()),
		UserAgent: c.Request.UserAgent(),
		Method:    c.Request.Method,
		Path:      c.Request.URL.Path,
		Status:    c.Writer.Status(),
	})
	if err != nil {
		logger.FromGin(c).Error("agent audit append failed", "component", "audit", "reason", err.Error())
	}
}

package audit

import (
	"context"
	"log/slog"
)

// LogRepo writes each event as one structured "agent_audit" record.
type LogRepo struct {
	log *slog.Logger
}

func NewLogRepo(l *slog.Logger) *LogRepo {
	if l == nil {
		l = slog.Default()
	}
	return &LogRepo{log: l}
}

func (r *LogRepo) Append(ctx context.Context, e Event) error {
	attrs := []slog.Attr{
		slog.String("record", "agent_audit"),
		slog.String("id", e.ID),
		slog.String("type", string(e.Type)),
		slog.String("tool", e.Tool),
		slog.String("agent_id", e.AgentID),
		slog.String("role", e.AgentRole),
		slog.String("ip", e.IPAddress),
		slog.String("user_agent", e.UserAgent),
		slog.Time("timestamp", e.CreatedAt),
	}
	if e.Method != "" {
		attrs = append(attrs, slog.String("method", e.Method), slog.String("path", e.Path))
	}
	if e.Status != 0 {
		attrs = append(attrs, slog.Int("status", e.Status))
	}
	if e.TargetKeyID != "" {
		attrs = append(attrs, slog.String("target_key_id", e.TargetKeyID))
	}
	r.log.LogAttrs(ctx, slog.LevelInfo, "agent_audit", attrs...)
	return nil
}

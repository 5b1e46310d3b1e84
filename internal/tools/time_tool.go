package tools

import (
	"context"
	"time"
)

func (r *Registry) handleCurrentTime(ctx context.Context, ws *Workspace, args map[string]any) map[string]any {
	now := time.Now().UTC()
	return map[string]any{
		"time":      now.Format(time.RFC1123),
		"timestamp": now.UnixMilli(),
	}
}

package toolloop

import (
	"context"

	"github.com/go-go-golems/sqlagent/pkg/conversation"
)

// SnapshotHook captures the conversation at defined phases (pre_model, post_model, post_tools).
type SnapshotHook func(ctx context.Context, conv *conversation.Conversation, phase string)

type snapshotHookKey struct{}

// ContextWithSnapshotHook attaches a snapshot hook to the context.
func ContextWithSnapshotHook(ctx context.Context, hook SnapshotHook) context.Context {
	if hook == nil {
		return ctx
	}
	return context.WithValue(ctx, snapshotHookKey{}, hook)
}

// SnapshotHookFromContext returns the snapshot hook attached to the context, if any.
func SnapshotHookFromContext(ctx context.Context) (SnapshotHook, bool) {
	v := ctx.Value(snapshotHookKey{})
	if v == nil {
		return nil, false
	}
	h, ok := v.(SnapshotHook)
	return h, ok && h != nil
}

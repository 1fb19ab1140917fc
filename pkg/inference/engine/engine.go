package engine

import (
	"context"

	"github.com/go-go-golems/sqlagent/pkg/conversation"
	"github.com/go-go-golems/sqlagent/pkg/inference/tools"
)

// ModelClient sends a conversation plus the tool catalog to a chat model and
// returns the model's next assistant message.
//
// Implementations must reject conversations that are not ready for the model
// (see conversation.CheckReadyForModel), report transport failures as
// *BackendError and unusable responses as *MalformedResponseError. The
// returned message has gone through NormalizeResponse.
type ModelClient interface {
	Complete(ctx context.Context, conv *conversation.Conversation, catalog []tools.ToolSchema) (*conversation.Message, error)
}

// ModelClientFunc adapts a function to ModelClient.
type ModelClientFunc func(ctx context.Context, conv *conversation.Conversation, catalog []tools.ToolSchema) (*conversation.Message, error)

func (f ModelClientFunc) Complete(ctx context.Context, conv *conversation.Conversation, catalog []tools.ToolSchema) (*conversation.Message, error) {
	return f(ctx, conv, catalog)
}

package openai

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-go-golems/sqlagent/pkg/conversation"
	"github.com/go-go-golems/sqlagent/pkg/events"
	"github.com/go-go-golems/sqlagent/pkg/inference/engine"
	"github.com/go-go-golems/sqlagent/pkg/inference/tools"
	"github.com/go-go-golems/sqlagent/pkg/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

// Client implements engine.ModelClient on top of the chat-completions API,
// either on Azure OpenAI or on an OpenAI-compatible endpoint such as Ollama.
type Client struct {
	client   *go_openai.Client
	settings *settings.BackendSettings
	config   *engine.Config
	counter  *TokenCounter
}

// MakeClient builds the go-openai client for the configured backend.
func MakeClient(s *settings.BackendSettings) (*go_openai.Client, error) {
	var config go_openai.ClientConfig
	switch s.ApiType {
	case settings.ApiTypeAzure:
		config = go_openai.DefaultAzureConfig(s.APIKey, s.AzureEndpoint)
		config.APIVersion = s.AzureAPIVersion
		deployment := s.AzureDeployment
		config.AzureModelMapperFunc = func(model string) string {
			return deployment
		}
	case settings.ApiTypeOpenAI:
		config = go_openai.DefaultConfig(s.APIKey)
		if s.BaseURL != "" {
			config.BaseURL = strings.TrimSuffix(s.BaseURL, "/")
		}
	case settings.ApiTypeOllama:
		// Ollama ignores the key but go-openai always sends one.
		config = go_openai.DefaultConfig("ollama")
		config.BaseURL = strings.TrimSuffix(s.OllamaHost, "/") + "/v1"
	default:
		return nil, errors.Errorf("api type %s is not served by the openai client", s.ApiType)
	}
	if s.Timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: s.Timeout}
	}
	return go_openai.NewClientWithConfig(config), nil
}

func NewClient(s *settings.BackendSettings, options ...engine.Option) (*Client, error) {
	config := engine.NewConfig()
	if err := engine.ApplyOptions(config, options...); err != nil {
		return nil, err
	}

	client, err := MakeClient(s)
	if err != nil {
		return nil, err
	}

	ret := &Client{
		client:   client,
		settings: s,
		config:   config,
	}
	if s.CountTokens {
		counter, err := NewTokenCounter()
		if err != nil {
			log.Warn().Err(err).Msg("token counting disabled")
		} else {
			ret.counter = counter
		}
	}
	return ret, nil
}

// Complete sends the conversation and returns the next assistant message.
func (c *Client) Complete(ctx context.Context, conv *conversation.Conversation, catalog []tools.ToolSchema) (*conversation.Message, error) {
	if err := conv.CheckReadyForModel(); err != nil {
		return nil, errors.Wrap(err, "conversation is not ready for the model")
	}

	msgs := conv.Messages()
	req := MakeCompletionRequest(c.settings.Deployment(), msgs, catalog)
	c.logRequest(msgs, catalog)

	var (
		msg *conversation.Message
		err error
	)
	if c.settings.Stream {
		msg, err = c.completeStream(ctx, req)
	} else {
		msg, err = c.complete(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	if err := engine.NormalizeResponse(msg); err != nil {
		log.Warn().Err(err).Msg("model returned a malformed response")
		return nil, err
	}

	log.Debug().
		Int("content_bytes", len(msg.Content)).
		Int("tool_calls", len(msg.ToolCalls)).
		Msg("received model response")
	return msg, nil
}

func (c *Client) complete(ctx context.Context, req go_openai.ChatCompletionRequest) (*conversation.Message, error) {
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		log.Error().Err(err).Msg("chat completion request failed")
		return nil, wrapBackendError("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return nil, &engine.MalformedResponseError{Reason: "response has no choices"}
	}

	choice := resp.Choices[0]
	log.Debug().
		Str("finish_reason", string(choice.FinishReason)).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("chat completion finished")
	return fromOpenAIMessage(choice.Message.Content, choice.Message.ToolCalls), nil
}

func (c *Client) completeStream(ctx context.Context, req go_openai.ChatCompletionRequest) (*conversation.Message, error) {
	req.Stream = true
	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		log.Error().Err(err).Msg("streaming request failed")
		return nil, wrapBackendError("chat completion stream", err)
	}
	defer func() {
		if err := stream.Close(); err != nil {
			log.Debug().Err(err).Msg("failed to close stream")
		}
	}()

	message := ""
	toolCallMerger := NewToolCallMerger()
	chunkCount := 0
	sawChoice := false

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			log.Debug().Int("chunks_received", chunkCount).Msg("stream completed")
			break
		}
		if err != nil {
			log.Error().Err(err).Int("chunks_received", chunkCount).Msg("stream receive failed")
			return nil, wrapBackendError("chat completion stream", err)
		}
		chunkCount++

		if len(response.Choices) == 0 {
			continue
		}
		sawChoice = true
		choice := response.Choices[0]

		if delta := choice.Delta.Content; delta != "" {
			message += delta
			c.config.Publish(ctx, events.NewPartialEvent(delta, message))
		}
		if len(choice.Delta.ToolCalls) > 0 {
			toolCallMerger.AddToolCalls(choice.Delta.ToolCalls)
		}
	}

	if !sawChoice {
		return nil, &engine.MalformedResponseError{Reason: "response has no choices"}
	}
	return fromOpenAIMessage(message, toolCallMerger.GetToolCalls()), nil
}

// logRequest logs the shape of an outbound request. Message bodies and
// credentials are never logged.
func (c *Client) logRequest(msgs []conversation.Message, catalog []tools.ToolSchema) {
	roles := make([]string, 0, len(msgs))
	size := 0
	for _, m := range msgs {
		roles = append(roles, string(m.Role))
		size += len(m.Content)
		for _, tc := range m.ToolCalls {
			size += len(tc.Arguments)
		}
	}

	ev := log.Debug().
		Str("api_type", string(c.settings.ApiType)).
		Str("model", c.settings.Deployment()).
		Int("messages", len(msgs)).
		Strs("roles", roles).
		Int("bytes", size).
		Int("tools", len(catalog)).
		Bool("stream", c.settings.Stream)
	if c.counter != nil {
		ev = ev.Int("tokens", c.counter.CountMessages(msgs))
	}
	ev.Msg("sending model request")
}

var _ engine.ModelClient = (*Client)(nil)

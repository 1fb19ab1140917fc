package openai

import (
	"github.com/go-go-golems/sqlagent/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/weaviate/tiktoken-go"
)

// TokenCounter estimates prompt sizes with the cl100k_base encoding.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
}

func NewTokenCounter() (*TokenCounter, error) {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, errors.Wrap(err, "error initializing tiktoken")
	}
	return &TokenCounter{encoding: encoding}, nil
}

func (t *TokenCounter) Count(s string) int {
	return len(t.encoding.Encode(s, nil, nil))
}

// CountMessages approximates the prompt tokens of msgs, including tool call arguments.
func (t *TokenCounter) CountMessages(msgs []conversation.Message) int {
	n := 0
	for _, m := range msgs {
		// role and framing
		n += 4
		n += t.Count(m.Content)
		for _, tc := range m.ToolCalls {
			n += t.Count(tc.Name) + t.Count(string(tc.Arguments))
		}
	}
	return n
}

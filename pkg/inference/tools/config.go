package tools

import (
	"time"

	"github.com/mb0/glob"
	"github.com/rs/zerolog/log"
)

// ToolConfig specifies how tool calls are executed during a run
type ToolConfig struct {
	ExecutionTimeout time.Duration `json:"execution_timeout" yaml:"execution_timeout"`
	MaxParallelTools int           `json:"max_parallel_tools" yaml:"max_parallel_tools"`
	// AllowedTools holds glob patterns, nil means all tools are allowed
	AllowedTools []string `json:"allowed_tools" yaml:"allowed_tools"`
}

// DefaultToolConfig returns a sensible default configuration
func DefaultToolConfig() ToolConfig {
	return ToolConfig{
		ExecutionTimeout: 30 * time.Second,
		MaxParallelTools: 4,
		AllowedTools:     nil,
	}
}

func (tc ToolConfig) WithExecutionTimeout(timeout time.Duration) ToolConfig {
	tc.ExecutionTimeout = timeout
	return tc
}

func (tc ToolConfig) WithMaxParallelTools(maxParallel int) ToolConfig {
	tc.MaxParallelTools = maxParallel
	return tc
}

func (tc ToolConfig) WithAllowedTools(patterns []string) ToolConfig {
	tc.AllowedTools = patterns
	return tc
}

// IsToolAllowed checks if a tool name matches one of the allowed patterns.
func (tc ToolConfig) IsToolAllowed(toolName string) bool {
	if tc.AllowedTools == nil {
		return true
	}

	for _, pattern := range tc.AllowedTools {
		matching, err := glob.Match(pattern, toolName)
		if err != nil {
			log.Warn().Err(err).Str("pattern", pattern).Msg("invalid allowed-tool pattern")
			continue
		}
		if matching {
			return true
		}
	}

	return false
}

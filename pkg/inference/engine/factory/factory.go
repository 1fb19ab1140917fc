package factory

import (
	"strings"

	"github.com/go-go-golems/sqlagent/pkg/inference/engine"
	"github.com/go-go-golems/sqlagent/pkg/inference/engine/openai"
	"github.com/go-go-golems/sqlagent/pkg/inference/fixtures"
	"github.com/go-go-golems/sqlagent/pkg/settings"
	"github.com/pkg/errors"
)

// ClientFactory creates model clients based on backend settings.
// This interface allows the commands to swap the backend without knowing the
// concrete client implementations.
type ClientFactory interface {
	// CreateClient creates a ModelClient for s.ApiType.
	CreateClient(s *settings.BackendSettings, options ...engine.Option) (engine.ModelClient, error)

	// SupportedProviders returns the api types this factory supports.
	SupportedProviders() []string

	// DefaultProvider is used when the api type is empty.
	DefaultProvider() string
}

// StandardClientFactory supports Azure OpenAI, OpenAI-compatible endpoints,
// Ollama and scripted fixtures.
type StandardClientFactory struct{}

func NewStandardClientFactory() *StandardClientFactory {
	return &StandardClientFactory{}
}

// CreateClient validates s and creates the matching client.
func (f *StandardClientFactory) CreateClient(s *settings.BackendSettings, options ...engine.Option) (engine.ModelClient, error) {
	if s == nil {
		return nil, errors.New("settings cannot be nil")
	}

	provider := f.DefaultProvider()
	if s.ApiType != "" {
		provider = strings.ToLower(string(s.ApiType))
	}
	resolved := *s
	resolved.ApiType = settings.ApiType(provider)
	s = &resolved

	if err := s.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid settings for provider %s", provider)
	}

	switch settings.ApiType(provider) {
	case settings.ApiTypeAzure, settings.ApiTypeOpenAI, settings.ApiTypeOllama:
		c, err := openai.NewClient(s, options...)
		if err != nil {
			return nil, err
		}
		return c, nil
	case settings.ApiTypeFixture:
		c, err := fixtures.NewScriptedClientFromFile(s.FixtureFile)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		supported := strings.Join(f.SupportedProviders(), ", ")
		return nil, errors.Errorf("unsupported provider %s. Supported providers: %s", provider, supported)
	}
}

func (f *StandardClientFactory) SupportedProviders() []string {
	return []string{
		string(settings.ApiTypeAzure),
		string(settings.ApiTypeOpenAI),
		string(settings.ApiTypeOllama),
		string(settings.ApiTypeFixture),
	}
}

func (f *StandardClientFactory) DefaultProvider() string {
	return string(settings.ApiTypeAzure)
}

// NewModelClient creates a client with the standard factory.
func NewModelClient(s *settings.BackendSettings, options ...engine.Option) (engine.ModelClient, error) {
	return NewStandardClientFactory().CreateClient(s, options...)
}

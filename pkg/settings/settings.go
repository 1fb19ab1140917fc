package settings

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-go-golems/sqlagent/pkg/security"
	"github.com/go-sql-driver/mysql"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
)

type ApiType string

const (
	ApiTypeAzure  ApiType = "azure"
	ApiTypeOpenAI ApiType = "openai"

	// ApiTypeOllama talks to the OpenAI-compatible endpoint of an Ollama server.
	ApiTypeOllama ApiType = "ollama"

	// ApiTypeFixture replays a scripted YAML conversation instead of calling a model.
	ApiTypeFixture ApiType = "fixture"
)

// BackendSettings describe how to reach the chat model.
type BackendSettings struct {
	ApiType ApiType `yaml:"api_type"`

	AzureEndpoint   string `yaml:"azure_endpoint,omitempty"`
	AzureDeployment string `yaml:"azure_deployment,omitempty"`
	AzureAPIVersion string `yaml:"azure_api_version,omitempty"`

	APIKey  string `yaml:"-"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model,omitempty"`

	OllamaHost string `yaml:"ollama_host,omitempty"`

	Stream      bool          `yaml:"stream"`
	CountTokens bool          `yaml:"count_tokens"`
	Timeout     time.Duration `yaml:"timeout"`

	// AllowLocalEndpoints accepts http and local network endpoints.
	AllowLocalEndpoints bool `yaml:"allow_local_endpoints"`

	FixtureFile string `yaml:"fixture_file,omitempty"`
}

// Deployment returns the model or deployment name sent with requests.
func (b *BackendSettings) Deployment() string {
	if b.ApiType == ApiTypeAzure {
		return b.AzureDeployment
	}
	return b.Model
}

type DatabaseSettings struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"-"`
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"-"`
	Name     string `yaml:"name,omitempty"`
	SSLMode  string `yaml:"ssl_mode,omitempty"`

	MaxRows      int           `yaml:"max_rows"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// AgentSettings bound every run.
type AgentSettings struct {
	MaxTurns         int           `yaml:"max_turns"`
	ModelCallTimeout time.Duration `yaml:"model_call_timeout"`
	RunTimeout       time.Duration `yaml:"run_timeout"`
	ToolTimeout      time.Duration `yaml:"tool_timeout"`
	MaxParallelTools int           `yaml:"max_parallel_tools"`
	CorrectiveTurns  int           `yaml:"corrective_turns"`
	AllowedTools     []string      `yaml:"allowed_tools,omitempty"`
}

type ServerSettings struct {
	Address         string        `yaml:"address"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Settings struct {
	Backend     *BackendSettings  `yaml:"backend"`
	Database    *DatabaseSettings `yaml:"database"`
	Agent       *AgentSettings    `yaml:"agent"`
	Server      *ServerSettings   `yaml:"server"`
	PromptsFile string            `yaml:"prompts_file,omitempty"`
}

func NewSettings() *Settings {
	return &Settings{
		Backend: &BackendSettings{
			ApiType:         ApiTypeAzure,
			AzureDeployment: "gpt-4",
			AzureAPIVersion: "2024-02-15-preview",
			BaseURL:         "https://api.openai.com/v1",
			Model:           "gpt-4",
			OllamaHost:      "http://localhost:11434",
			Timeout:         60 * time.Second,
		},
		Database: &DatabaseSettings{
			Driver:       "postgres",
			SSLMode:      "disable",
			MaxRows:      500,
			QueryTimeout: 30 * time.Second,
		},
		Agent: &AgentSettings{
			MaxTurns:         10,
			ModelCallTimeout: 60 * time.Second,
			RunTimeout:       5 * time.Minute,
			ToolTimeout:      30 * time.Second,
			MaxParallelTools: 4,
			CorrectiveTurns:  1,
		},
		Server: &ServerSettings{
			Address:         ":8000",
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

// Validate checks the settings needed at startup. Missing backend
// credentials are reported here so the process can refuse to start.
func (s *Settings) Validate() error {
	if s.Backend == nil || s.Database == nil || s.Agent == nil || s.Server == nil {
		return errors.New("incomplete settings")
	}
	if err := s.Backend.Validate(); err != nil {
		return err
	}
	if err := s.Database.Validate(); err != nil {
		return err
	}
	return s.Agent.Validate()
}

func (b *BackendSettings) Validate() error {
	switch b.ApiType {
	case ApiTypeAzure:
		if b.AzureEndpoint == "" || b.APIKey == "" {
			return errors.New("missing Azure OpenAI settings: AZURE_OPENAI_ENDPOINT and AZURE_OPENAI_API_KEY are required")
		}
		if b.AzureDeployment == "" {
			return errors.New("missing Azure OpenAI deployment")
		}
		if err := security.CheckEndpoint(b.AzureEndpoint, b.endpointPolicy()); err != nil {
			return err
		}
	case ApiTypeOpenAI:
		if b.APIKey == "" {
			return errors.New("missing OpenAI API key")
		}
		if b.Model == "" {
			return errors.New("missing model name")
		}
		if b.BaseURL != "" {
			if err := security.CheckEndpoint(b.BaseURL, b.endpointPolicy()); err != nil {
				return err
			}
		}
	case ApiTypeOllama:
		if b.OllamaHost == "" {
			return errors.New("missing Ollama host")
		}
		if b.Model == "" {
			return errors.New("missing model name")
		}
		// an Ollama server usually runs on the local network
		if err := security.CheckEndpoint(b.OllamaHost, security.EndpointPolicy{AllowLocal: true}); err != nil {
			return err
		}
	case ApiTypeFixture:
		if b.FixtureFile == "" {
			return errors.New("fixture backend needs a fixture file")
		}
	default:
		return errors.Errorf("unsupported api type %q", b.ApiType)
	}
	return nil
}

func (b *BackendSettings) endpointPolicy() security.EndpointPolicy {
	return security.EndpointPolicy{AllowLocal: b.AllowLocalEndpoints}
}

func (d *DatabaseSettings) Validate() error {
	switch d.Driver {
	case "postgres", "mysql", "sqlite3":
	default:
		return errors.Errorf("unsupported database driver %q", d.Driver)
	}
	if d.DSN == "" && d.Name == "" {
		return errors.New("missing database: set a DSN or DB_NAME")
	}
	if d.MaxRows <= 0 {
		return errors.New("max rows must be positive")
	}
	return nil
}

func (a *AgentSettings) Validate() error {
	if a.MaxTurns <= 0 {
		return errors.New("max turns must be positive")
	}
	if a.CorrectiveTurns < 0 {
		return errors.New("corrective turns cannot be negative")
	}
	if a.MaxParallelTools < 0 {
		return errors.New("max parallel tools cannot be negative")
	}
	return nil
}

// DataSourceName returns the configured DSN, or composes one from the
// host/user/password/name fields for the selected driver.
func (d *DatabaseSettings) DataSourceName() string {
	if d.DSN != "" {
		return d.DSN
	}

	switch d.Driver {
	case "mysql":
		cfg := mysql.NewConfig()
		cfg.User = d.User
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(d.host(), strconv.Itoa(d.port(3306)))
		cfg.DBName = d.Name
		cfg.ParseTime = true
		return cfg.FormatDSN()
	case "sqlite3":
		return d.Name
	default:
		u := url.URL{
			Scheme: "postgres",
			Host:   net.JoinHostPort(d.host(), strconv.Itoa(d.port(5432))),
			Path:   "/" + d.Name,
		}
		if d.User != "" {
			if d.Password != "" {
				u.User = url.UserPassword(d.User, d.Password)
			} else {
				u.User = url.User(d.User)
			}
		}
		if d.SSLMode != "" {
			u.RawQuery = url.Values{"sslmode": []string{d.SSLMode}}.Encode()
		}
		return u.String()
	}
}

func (d *DatabaseSettings) host() string {
	if d.Host == "" {
		return "localhost"
	}
	return d.Host
}

func (d *DatabaseSettings) port(def int) int {
	if d.Port == 0 {
		return def
	}
	return d.Port
}

// Redacted describes the database target without credentials.
func (d *DatabaseSettings) Redacted() string {
	if d.DSN != "" {
		return fmt.Sprintf("%s (dsn)", d.Driver)
	}
	return fmt.Sprintf("%s %s/%s", d.Driver, d.host(), d.Name)
}

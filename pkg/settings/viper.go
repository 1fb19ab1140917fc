package settings

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "SQLAGENT"

// legacyEnv maps setting keys to the environment variable names the
// deployment already uses. The SQLAGENT_ prefixed name wins when both are set.
var legacyEnv = map[string][]string{
	"azure-endpoint":    {"AZURE_OPENAI_ENDPOINT"},
	"api-key":           {"AZURE_OPENAI_API_KEY", "OPENAI_API_KEY"},
	"azure-deployment":  {"AZURE_OPENAI_DEPLOYMENT"},
	"azure-api-version": {"AZURE_OPENAI_API_VERSION"},
	"openai-base-url":   {"OPENAI_BASE_URL"},
	"ollama-host":       {"OLLAMA_HOST"},
	"db-dsn":            {"DATABASE_URL"},
	"db-host":           {"DB_HOST"},
	"db-port":           {"DB_PORT"},
	"db-user":           {"DB_USER"},
	"db-password":       {"DB_PASSWORD"},
	"db-name":           {"DB_NAME"},
}

// AddFlags registers every setting as a flag, with defaults from NewSettings.
func AddFlags(fs *pflag.FlagSet) {
	d := NewSettings()

	fs.String("api-type", string(d.Backend.ApiType), "Model backend: azure, openai, ollama or fixture")
	fs.String("azure-endpoint", "", "Azure OpenAI endpoint")
	fs.String("api-key", "", "API key for the model backend")
	fs.String("azure-deployment", d.Backend.AzureDeployment, "Azure OpenAI deployment")
	fs.String("azure-api-version", d.Backend.AzureAPIVersion, "Azure OpenAI API version")
	fs.String("openai-base-url", d.Backend.BaseURL, "OpenAI-compatible base URL")
	fs.String("model", d.Backend.Model, "Model name for the openai and ollama backends")
	fs.String("ollama-host", d.Backend.OllamaHost, "Ollama server address")
	fs.Bool("stream", d.Backend.Stream, "Stream completions from the backend")
	fs.Bool("count-tokens", d.Backend.CountTokens, "Log the token count of each request")
	fs.Duration("client-timeout", d.Backend.Timeout, "HTTP timeout for backend requests")
	fs.Bool("allow-local-endpoints", d.Backend.AllowLocalEndpoints, "Accept http and local network backend endpoints")
	fs.String("fixture", "", "YAML fixture replayed by the fixture backend")

	fs.String("db-driver", d.Database.Driver, "Database driver: postgres, mysql or sqlite3")
	fs.String("db-dsn", "", "Database DSN, overrides the host/user/name settings")
	fs.String("db-host", "", "Database host")
	fs.Int("db-port", 0, "Database port")
	fs.String("db-user", "", "Database user")
	fs.String("db-password", "", "Database password")
	fs.String("db-name", "", "Database name (file path for sqlite3)")
	fs.String("db-sslmode", d.Database.SSLMode, "Postgres sslmode")
	fs.Int("max-rows", d.Database.MaxRows, "Maximum rows returned by read_query")
	fs.Duration("query-timeout", d.Database.QueryTimeout, "Timeout of a single database query")

	fs.Int("max-turns", d.Agent.MaxTurns, "Maximum model calls per run")
	fs.Duration("model-call-timeout", d.Agent.ModelCallTimeout, "Timeout of a single model call")
	fs.Duration("run-timeout", d.Agent.RunTimeout, "Wall clock limit of a run")
	fs.Duration("tool-timeout", d.Agent.ToolTimeout, "Timeout of a single tool call")
	fs.Int("max-parallel-tools", d.Agent.MaxParallelTools, "Sibling tool calls executed concurrently (0 = unbounded)")
	fs.Int("corrective-turns", d.Agent.CorrectiveTurns, "Corrective turns granted for an invalid dashboard")
	fs.StringSlice("allowed-tools", nil, "Glob patterns of tools offered to the model (default all)")

	fs.String("address", d.Server.Address, "HTTP listen address")
	fs.Duration("shutdown-timeout", d.Server.ShutdownTimeout, "Graceful shutdown timeout")
	fs.String("prompts-file", "", "YAML file overriding the built-in prompts")
}

// BindViper wires flags and environment variables into v.
func BindViper(v *viper.Viper, fs *pflag.FlagSet) error {
	if err := v.BindPFlags(fs); err != nil {
		return errors.Wrap(err, "could not bind flags")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, names := range legacyEnv {
		input := append([]string{key, EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))}, names...)
		if err := v.BindEnv(input...); err != nil {
			return errors.Wrapf(err, "could not bind environment for %s", key)
		}
	}
	return nil
}

// FromViper reads Settings out of a viper instance prepared with BindViper.
func FromViper(v *viper.Viper) (*Settings, error) {
	s := NewSettings()

	s.Backend.ApiType = ApiType(strings.ToLower(v.GetString("api-type")))
	s.Backend.AzureEndpoint = v.GetString("azure-endpoint")
	s.Backend.APIKey = v.GetString("api-key")
	s.Backend.AzureDeployment = v.GetString("azure-deployment")
	s.Backend.AzureAPIVersion = v.GetString("azure-api-version")
	s.Backend.BaseURL = v.GetString("openai-base-url")
	s.Backend.Model = v.GetString("model")
	s.Backend.OllamaHost = v.GetString("ollama-host")
	s.Backend.Stream = v.GetBool("stream")
	s.Backend.CountTokens = v.GetBool("count-tokens")
	s.Backend.Timeout = v.GetDuration("client-timeout")
	s.Backend.AllowLocalEndpoints = v.GetBool("allow-local-endpoints")
	s.Backend.FixtureFile = v.GetString("fixture")

	s.Database.Driver = v.GetString("db-driver")
	s.Database.DSN = v.GetString("db-dsn")
	s.Database.Host = v.GetString("db-host")
	s.Database.Port = v.GetInt("db-port")
	s.Database.User = v.GetString("db-user")
	s.Database.Password = v.GetString("db-password")
	s.Database.Name = v.GetString("db-name")
	s.Database.SSLMode = v.GetString("db-sslmode")
	s.Database.MaxRows = v.GetInt("max-rows")
	s.Database.QueryTimeout = v.GetDuration("query-timeout")

	s.Agent.MaxTurns = v.GetInt("max-turns")
	s.Agent.ModelCallTimeout = v.GetDuration("model-call-timeout")
	s.Agent.RunTimeout = v.GetDuration("run-timeout")
	s.Agent.ToolTimeout = v.GetDuration("tool-timeout")
	s.Agent.MaxParallelTools = v.GetInt("max-parallel-tools")
	s.Agent.CorrectiveTurns = v.GetInt("corrective-turns")
	s.Agent.AllowedTools = v.GetStringSlice("allowed-tools")
	if len(s.Agent.AllowedTools) == 0 {
		s.Agent.AllowedTools = nil
	}

	s.Server.Address = v.GetString("address")
	s.Server.ShutdownTimeout = v.GetDuration("shutdown-timeout")
	s.PromptsFile = v.GetString("prompts-file")

	return s, nil
}

// ReadConfigFile loads path into v, or searches ./.sqlagent/config.yaml,
// $HOME/.sqlagent/config.yaml and the XDG config dir when path is empty.
// A missing config file is not an error when searching.
func ReadConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".sqlagent")
		v.AddConfigPath("$HOME/.sqlagent")
		if xdgConfigPath, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(xdgConfigPath, "sqlagent"))
		}
	}

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) && path == "" {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "could not read config file")
	}
	return nil
}

package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed "prompts.yaml"
var defaultPromptsYAML []byte

type VisualizationType struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// Config holds the prompt templates of the agent and dashboard loops.
type Config struct {
	Agent              string              `yaml:"agent"`
	Dashboard          string              `yaml:"dashboard"`
	Correction         string              `yaml:"correction"`
	VisualizationTypes []VisualizationType `yaml:"visualization_types"`
}

// Data is passed to the prompt templates.
type Data struct {
	Driver             string
	Tools              []string
	VisualizationTypes []VisualizationType
	Now                time.Time
	Error              string
}

// Default returns the embedded prompts.
func Default() (*Config, error) {
	c := &Config{}
	if err := yaml.Unmarshal(defaultPromptsYAML, c); err != nil {
		return nil, errors.Wrap(err, "could not parse embedded prompts")
	}
	return c, nil
}

// Load returns the embedded prompts overridden by the keys present in path.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return c, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read prompts file %s", path)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, errors.Wrapf(err, "could not parse prompts file %s", path)
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid prompts file %s", path)
	}
	log.Debug().Str("path", path).Msg("loaded prompts")
	return c, nil
}

func (c *Config) Validate() error {
	for name, tmpl := range map[string]string{
		"agent":      c.Agent,
		"dashboard":  c.Dashboard,
		"correction": c.Correction,
	} {
		if strings.TrimSpace(tmpl) == "" {
			return errors.Errorf("prompt %s is empty", name)
		}
		if _, err := parse(name, tmpl); err != nil {
			return err
		}
	}
	return nil
}

func parse(name, tmpl string) (*template.Template, error) {
	t, err := template.New(name).Funcs(sprig.TxtFuncMap()).Parse(tmpl)
	if err != nil {
		return nil, errors.Wrapf(err, "could not parse prompt %s", name)
	}
	return t, nil
}

func render(name, tmpl string, data Data) (string, error) {
	t, err := parse(name, tmpl)
	if err != nil {
		return "", err
	}
	if data.Now.IsZero() {
		data.Now = time.Now()
	}
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", errors.Wrapf(err, "could not render prompt %s", name)
	}
	return strings.TrimSpace(sb.String()), nil
}

func (c *Config) AgentPrompt(data Data) (string, error) {
	return render("agent", c.Agent, data)
}

// DashboardPrompt renders the dashboard prompt. Visualization types default
// to the configured ones.
func (c *Config) DashboardPrompt(data Data) (string, error) {
	if len(data.VisualizationTypes) == 0 {
		data.VisualizationTypes = c.VisualizationTypes
	}
	return render("dashboard", c.Dashboard, data)
}

// CorrectionPrompt renders the user message of a corrective turn.
func (c *Config) CorrectionPrompt(err error) string {
	s, rerr := render("correction", c.Correction, Data{Error: err.Error()})
	if rerr != nil {
		log.Warn().Err(rerr).Msg("falling back to the plain correction prompt")
		return fmt.Sprintf("Your previous answer was rejected: %v", err)
	}
	return s
}

package prompts

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPromptsRender(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	require.NotEmpty(t, c.VisualizationTypes)

	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	agent, err := c.AgentPrompt(Data{Driver: "postgres", Tools: []string{"get_schema", "read_query"}, Now: now})
	require.NoError(t, err)
	assert.Contains(t, agent, "postgres database")
	assert.Contains(t, agent, "get_schema, read_query")
	assert.Contains(t, agent, "2024-03-01")

	dash, err := c.DashboardPrompt(Data{})
	require.NoError(t, err)
	assert.Contains(t, dash, "SQL database")
	assert.Contains(t, dash, "- bar_chart: ")
	assert.Contains(t, dash, "```html")

	assert.Contains(t, c.CorrectionPrompt(errors.New("missing </html>")), "missing </html>")
}

func TestLoadOverridesSingleKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent: \"Only use {{ .Driver }}.\"\n"), 0644))

	c, err := Load(path)
	require.NoError(t, err)
	agent, err := c.AgentPrompt(Data{Driver: "sqlite3"})
	require.NoError(t, err)
	assert.Equal(t, "Only use sqlite3.", agent)

	def, err := Default()
	require.NoError(t, err)
	assert.Equal(t, def.Dashboard, c.Dashboard)
}

func TestLoadRejectsBrokenTemplates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dashboard: \"{{ .Driver \"\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

package cmds

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-go-golems/sqlagent/pkg/conversation"
	"github.com/go-go-golems/sqlagent/pkg/events"
	"github.com/go-go-golems/sqlagent/pkg/gateway"
	"github.com/go-go-golems/sqlagent/pkg/inference/fixtures"
	"github.com/go-go-golems/sqlagent/pkg/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureScript = `
steps:
  - tool_calls:
      - id: call_1
        name: read_query
        arguments:
          query: SELECT count(*) AS n FROM customers
  - content: There are 2 customers.
`

func testSettings(t *testing.T) *settings.Settings {
	t.Helper()
	dir := t.TempDir()
	fixture := filepath.Join(dir, "fixture.yaml")
	require.NoError(t, os.WriteFile(fixture, []byte(fixtureScript), 0644))

	s := settings.NewSettings()
	s.Backend.ApiType = settings.ApiTypeFixture
	s.Backend.FixtureFile = fixture
	s.Database.Driver = "sqlite3"
	s.Database.Name = filepath.Join(dir, "agent.db")
	require.NoError(t, s.Validate())
	return s
}

func TestRuntimeAnswersThroughGateway(t *testing.T) {
	s := testSettings(t)
	sink := &events.CollectingSink{}
	r, err := NewRuntime(context.Background(), s, WithEventSinks(sink))
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	r.Store.DB().MustExec(`CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT)`)
	r.Store.DB().MustExec(`INSERT INTO customers (name) VALUES ('ada'), ('bob')`)

	resp := r.Gateway.Handle(context.Background(), gateway.KindAgent, "how many customers?")
	require.NotNil(t, resp.Result, "error: %v", resp.Error)
	assert.Equal(t, "There are 2 customers.", *resp.Result)

	client := r.Client.(*fixtures.ScriptedClient)
	second := client.Requests()[1]
	assert.Equal(t, conversation.RoleSystem, second[0].Role)
	assert.Contains(t, second[0].Content, "sqlite3")
	toolMsg := second[len(second)-1]
	assert.Equal(t, conversation.RoleTool, toolMsg.Role)
	assert.JSONEq(t, `[{"n":2}]`, toolMsg.Content)

	assert.Len(t, sink.OfType(events.EventTypeToolResult), 1)
	assert.Len(t, sink.OfType(events.EventTypeFinal), 1)
}

func TestRuntimeHonorsAllowedTools(t *testing.T) {
	s := testSettings(t)
	s.Agent.AllowedTools = []string{"get_*"}
	client := fixtures.NewScriptedClient(fixtures.Reply("ok"))

	r, err := NewRuntime(context.Background(), s, WithModelClient(client))
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	catalog := r.Registry.Catalog()
	require.Len(t, catalog, 1)
	assert.Equal(t, "get_schema", catalog[0].Name)
	assert.Equal(t, "dashboard", r.Dashboard.Name())
	assert.Equal(t, s.Agent.CorrectiveTurns, r.Dashboard.Config().CorrectiveTurns)
}

package cmds

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	glazed_settings "github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	agentcmds "github.com/go-go-golems/sqlagent/pkg/cmds"
	"github.com/go-go-golems/sqlagent/pkg/inference/tools"
	"github.com/go-go-golems/sqlagent/pkg/settings"
	"github.com/go-go-golems/sqlagent/pkg/sqltool"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// ToolsCommand emits one row per tool of the catalog the model is offered.
type ToolsCommand struct {
	*cmds.CommandDescription
	// loadSettings reads the backend and database settings from the
	// persistent flags of the built cobra command.
	loadSettings func() (*settings.Settings, error)
}

var _ cmds.GlazeCommand = (*ToolsCommand)(nil)

func newToolsCommand() (*ToolsCommand, error) {
	glazedParameterLayer, err := glazed_settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, fmt.Errorf("could not create Glazed parameter layer: %w", err)
	}

	return &ToolsCommand{
		CommandDescription: cmds.NewCommandDescription(
			"tools",
			cmds.WithShort("Print the tool catalog sent to the model"),
			cmds.WithLong("Print the name, description and parameter schema of every tool "+
				"the agent offers the model, after --allowed-tools filtering."),
			cmds.WithLayersList(glazedParameterLayer),
		),
	}, nil
}

func (c *ToolsCommand) RunIntoGlazeProcessor(ctx context.Context, parsedLayers *layers.ParsedLayers, gp middlewares.Processor) error {
	if c.loadSettings == nil {
		return errors.New("tools command is not attached to a cobra command")
	}
	s, err := c.loadSettings()
	if err != nil {
		return err
	}
	if err := s.Database.Validate(); err != nil {
		return err
	}

	store, err := sqltool.Open(ctx, *s.Database)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	reg := tools.NewRegistry(tools.WithAllowedTools(s.Agent.AllowedTools...))
	if err := store.Register(reg); err != nil {
		return err
	}

	for _, t := range reg.Catalog() {
		var parameters map[string]interface{}
		if err := json.Unmarshal(t.Parameters, &parameters); err != nil {
			return errors.Wrapf(err, "invalid parameter schema for %s", t.Name)
		}
		if err := gp.AddRow(ctx, types.NewRow(
			types.MRP("name", t.Name),
			types.MRP("description", t.Description),
			types.MRP("parameters", parameters),
		)); err != nil {
			return err
		}
	}
	return nil
}

// NewToolsCommand builds the cobra command for the glazed tools command.
func NewToolsCommand() (*cobra.Command, error) {
	toolsCmd, err := newToolsCommand()
	if err != nil {
		return nil, err
	}
	cobraCmd, err := cli.BuildCobraCommandFromGlazeCommand(toolsCmd)
	if err != nil {
		return nil, err
	}
	toolsCmd.loadSettings = func() (*settings.Settings, error) {
		return agentcmds.LoadSettings(cobraCmd)
	}
	return cobraCmd, nil
}

package sqltool

import (
	"context"

	"github.com/go-go-golems/sqlagent/pkg/inference/tools"
)

const (
	ToolGetSchema = "get_schema"
	ToolReadQuery = "read_query"
)

type GetSchemaInput struct{}

type ReadQueryInput struct {
	Query string `json:"query" jsonschema:"description=The SQL SELECT query to run"`
}

// Tools returns the get_schema and read_query tool definitions bound to s.
func (s *Store) Tools() []tools.ToolDefinition {
	return []tools.ToolDefinition{
		tools.NewTool(ToolGetSchema,
			"Returns every table column of the database as a list of {table_name, column_name, data_type}.",
			func(ctx context.Context, _ GetSchemaInput) ([]Column, error) {
				return s.Schema(ctx)
			}),
		tools.NewTool(ToolReadQuery,
			"Runs a single read-only SELECT query and returns the rows as a list of objects.",
			func(ctx context.Context, in ReadQueryInput) ([]map[string]any, error) {
				return s.Query(ctx, in.Query)
			}),
	}
}

// Register adds the database tools to reg.
func (s *Store) Register(reg *tools.Registry) error {
	for _, def := range s.Tools() {
		if err := reg.Register(def); err != nil {
			return err
		}
	}
	return nil
}

package sqltool

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/go-go-golems/sqlagent/pkg/conversation"
	"github.com/go-go-golems/sqlagent/pkg/inference/tools"
	"github.com/go-go-golems/sqlagent/pkg/settings"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, maxRows int) *Store {
	t.Helper()
	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	db.MustExec(`CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT, balance REAL, note TEXT)`)
	db.MustExec(`CREATE TABLE orders (id INTEGER PRIMARY KEY, customer_id INTEGER, total REAL)`)
	db.MustExec(`INSERT INTO customers (name, balance, note) VALUES ('ada', 12.5, NULL), ('bob', 3, 'vip'), ('cy', 0, NULL)`)

	return New(db, Config{Driver: "sqlite3", MaxRows: maxRows})
}

func TestSchemaListsColumns(t *testing.T) {
	s := newTestStore(t, 10)
	cols, err := s.Schema(context.Background())
	require.NoError(t, err)
	require.Len(t, cols, 7)
	assert.Equal(t, Column{TableName: "customers", ColumnName: "id", DataType: "INTEGER"}, cols[0])
	assert.Equal(t, "orders", cols[4].TableName)
}

func TestQueryReturnsTypedRows(t *testing.T) {
	s := newTestStore(t, 10)
	rows, err := s.Query(context.Background(), "SELECT name, balance, note FROM customers ORDER BY id;")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	b, err := json.Marshal(rows[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"ada","balance":12.5,"note":null}`, string(b))

	count, err := s.Query(context.Background(), "select count(*) AS n from customers")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count[0]["n"])
}

func TestQueryHonorsMaxRows(t *testing.T) {
	s := newTestStore(t, 2)
	rows, err := s.Query(context.Background(), "SELECT id FROM customers")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestQueryRejectsWrites(t *testing.T) {
	s := newTestStore(t, 10)
	for _, q := range []string{
		"",
		"DELETE FROM customers",
		"  update customers set name = 'x'",
		"SELECT 1; DROP TABLE customers",
		"WITH gone AS (SELECT id FROM customers) DELETE FROM customers WHERE id IN (SELECT id FROM gone)",
	} {
		_, err := s.Query(context.Background(), q)
		assert.True(t, errors.Is(err, ErrNotReadOnly), "query %q: %v", q, err)
	}

	rows, err := s.Query(context.Background(), "SELECT count(*) AS n FROM customers")
	require.NoError(t, err)
	assert.Equal(t, int64(3), rows[0]["n"])
}

func TestCheckReadOnlyIgnoresQuotedSemicolons(t *testing.T) {
	q, err := checkReadOnly("SELECT ';' AS sep -- trailing; comment\n;")
	require.NoError(t, err)
	assert.Equal(t, "SELECT ';' AS sep -- trailing; comment", q)

	_, err = checkReadOnly("WITH x AS (SELECT 1 AS created_at) SELECT * FROM x")
	assert.NoError(t, err)
}

func TestCheckReadOnlySkipsLiteralsInWith(t *testing.T) {
	for _, q := range []string{
		"WITH x AS (SELECT 'update' AS status) SELECT * FROM x WHERE status = 'update'",
		`WITH x AS (SELECT 1 AS "delete") SELECT * FROM x`,
		"WITH x AS (SELECT 1 AS n) -- drop later\nSELECT * FROM x",
		"WITH x AS (SELECT 1 AS n /* insert */) SELECT * FROM x",
	} {
		_, err := checkReadOnly(q)
		assert.NoError(t, err, q)
	}

	_, err := checkReadOnly("WITH x AS (SELECT 'a') UPDATE customers SET name = 'update'")
	assert.True(t, errors.Is(err, ErrNotReadOnly))
}

func TestQueryWithLiteralKeyword(t *testing.T) {
	s := newTestStore(t, 10)
	rows, err := s.Query(context.Background(),
		"WITH x AS (SELECT 'update' AS status) SELECT status FROM x WHERE status = 'update'")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "update", rows[0]["status"])
}

func TestToolsThroughRegistry(t *testing.T) {
	s := newTestStore(t, 10)
	reg := tools.NewRegistry()
	require.NoError(t, s.Register(reg))
	require.Len(t, reg.Catalog(), 2)

	res := reg.Dispatch(context.Background(), conversation.ToolCall{
		ID: "c1", Name: ToolReadQuery, Arguments: json.RawMessage(`{"query":"SELECT name FROM customers WHERE id = 2"}`),
	})
	require.True(t, res.OK, res.Error)
	assert.JSONEq(t, `[{"name":"bob"}]`, res.Content())

	res = reg.Dispatch(context.Background(), conversation.ToolCall{
		ID: "c2", Name: ToolReadQuery, Arguments: json.RawMessage(`{"query":"DROP TABLE customers"}`),
	})
	assert.False(t, res.OK)
	assert.True(t, errors.Is(res.Err, ErrNotReadOnly))

	res = reg.Dispatch(context.Background(), conversation.ToolCall{
		ID: "c3", Name: ToolReadQuery, Arguments: json.RawMessage(`{}`),
	})
	assert.False(t, res.OK)
	var invalid *tools.InvalidArgumentsError
	assert.True(t, errors.As(res.Err, &invalid))
}

func TestOpenSqliteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.db")
	s, err := Open(context.Background(), settings.DatabaseSettings{Driver: "sqlite3", Name: path, MaxRows: 5})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	s.DB().MustExec(`CREATE TABLE t (v TEXT)`)
	cols, err := s.Schema(context.Background())
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, "sqlite3", s.Driver())
}

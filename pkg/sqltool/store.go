package sqltool

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/go-go-golems/sqlagent/pkg/settings"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrNotReadOnly is returned for statements other than a single SELECT.
var ErrNotReadOnly = errors.New("only single SELECT statements are allowed")

type Config struct {
	Driver       string
	MaxRows      int
	QueryTimeout time.Duration
}

func DefaultConfig(driver string) Config {
	return Config{Driver: driver, MaxRows: 500, QueryTimeout: 30 * time.Second}
}

// Column is one row of the schema description handed to the model.
type Column struct {
	TableName  string `db:"table_name" json:"table_name"`
	ColumnName string `db:"column_name" json:"column_name"`
	DataType   string `db:"data_type" json:"data_type"`
}

// Store runs the database tools against a shared connection pool.
type Store struct {
	db  *sqlx.DB
	cfg Config
}

func New(db *sqlx.DB, cfg Config) *Store {
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultConfig(cfg.Driver).MaxRows
	}
	return &Store{db: db, cfg: cfg}
}

// Open connects to the configured database and checks that it answers.
func Open(ctx context.Context, s settings.DatabaseSettings) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, s.Driver, s.DataSourceName())
	if err != nil {
		return nil, errors.Wrapf(err, "could not connect to %s", s.Redacted())
	}
	if s.Driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}
	log.Debug().Str("database", s.Redacted()).Msg("connected to database")
	return New(db, Config{Driver: s.Driver, MaxRows: s.MaxRows, QueryTimeout: s.QueryTimeout}), nil
}

func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) Driver() string {
	return s.cfg.Driver
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.QueryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.QueryTimeout)
}

func schemaQuery(driver string) (string, error) {
	switch driver {
	case "postgres":
		return `SELECT table_name AS table_name, column_name AS column_name, data_type AS data_type
FROM information_schema.columns
WHERE table_schema = 'public'
ORDER BY table_name, ordinal_position`, nil
	case "mysql":
		return `SELECT table_name AS table_name, column_name AS column_name, data_type AS data_type
FROM information_schema.columns
WHERE table_schema = DATABASE()
ORDER BY table_name, ordinal_position`, nil
	case "sqlite3":
		return `SELECT m.name AS table_name, p.name AS column_name, p.type AS data_type
FROM sqlite_master m JOIN pragma_table_info(m.name) p
WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
ORDER BY m.name, p.cid`, nil
	}
	return "", errors.Errorf("unsupported database driver %q", driver)
}

// Schema lists every column of the user tables.
func (s *Store) Schema(ctx context.Context) ([]Column, error) {
	q, err := schemaQuery(s.cfg.Driver)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	columns := []Column{}
	if err := s.db.SelectContext(ctx, &columns, q); err != nil {
		return nil, errors.Wrap(err, "could not read schema")
	}
	log.Debug().Int("columns", len(columns)).Msg("read database schema")
	return columns, nil
}

// Query runs a single read-only SELECT and returns at most MaxRows rows.
func (s *Store) Query(ctx context.Context, query string) ([]map[string]any, error) {
	query, err := checkReadOnly(query)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	// go-sqlite3 has no read-only transactions; the statement check covers it.
	var opts *sql.TxOptions
	if s.cfg.Driver != "sqlite3" {
		opts = &sql.TxOptions{ReadOnly: true}
	}
	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "could not start transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	start := time.Now()
	rows, err := tx.QueryxContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "query failed")
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Debug().Err(err).Msg("failed to close rows")
		}
	}()

	result := []map[string]any{}
	truncated := false
	for rows.Next() {
		if len(result) >= s.cfg.MaxRows {
			truncated = true
			break
		}
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return nil, errors.Wrap(err, "could not scan row")
		}
		for k, v := range row {
			row[k] = jsonValue(v)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "query failed")
	}

	ev := log.Debug().Int("rows", len(result)).Dur("duration", time.Since(start))
	if truncated {
		ev = ev.Bool("truncated", true).Int("max_rows", s.cfg.MaxRows)
	}
	ev.Msg("query finished")
	return result, nil
}

// jsonValue keeps numbers, booleans and NULL and renders anything else as text.
func jsonValue(v any) any {
	switch x := v.(type) {
	case nil, int64, float64, bool, string:
		return x
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}

// checkReadOnly accepts one SELECT (or WITH ... SELECT) statement and returns
// it without trailing semicolons.
func checkReadOnly(query string) (string, error) {
	q := strings.TrimSpace(query)
	for strings.HasSuffix(q, ";") {
		q = strings.TrimSpace(strings.TrimSuffix(q, ";"))
	}
	if q == "" {
		return "", errors.Wrap(ErrNotReadOnly, "empty query")
	}

	fields := strings.Fields(q)
	switch strings.ToLower(fields[0]) {
	case "select", "with":
	default:
		return "", errors.Wrapf(ErrNotReadOnly, "statement starts with %s", fields[0])
	}
	code, separator := scanCode(q)
	if separator {
		return "", errors.Wrap(ErrNotReadOnly, "multiple statements")
	}
	if strings.EqualFold(fields[0], "with") {
		for _, w := range strings.FieldsFunc(strings.ToLower(code), isNotWordRune) {
			if writeKeywords[w] {
				return "", errors.Wrapf(ErrNotReadOnly, "WITH statement contains %s", strings.ToUpper(w))
			}
		}
	}
	return q, nil
}

var writeKeywords = map[string]bool{
	"insert": true, "update": true, "delete": true, "replace": true,
	"merge": true, "drop": true, "alter": true, "create": true,
}

func isNotWordRune(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
}

// scanCode returns q with quoted strings, quoted identifiers and comments
// blanked out, and whether a semicolon appears in the remaining code.
func scanCode(q string) (string, bool) {
	var (
		quote     rune
		separator bool
		code      strings.Builder
	)
	lineComment, blockComment := false, false
	runes := []rune(q)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}
		switch {
		case lineComment:
			if c == '\n' {
				lineComment = false
			}
		case blockComment:
			if c == '*' && next == '/' {
				blockComment = false
				i++
			}
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '-' && next == '-':
			lineComment = true
			i++
		case c == '/' && next == '*':
			blockComment = true
			i++
		case c == ';':
			separator = true
			code.WriteRune(c)
		default:
			code.WriteRune(c)
			continue
		}
		code.WriteRune(' ')
	}
	return code.String(), separator
}

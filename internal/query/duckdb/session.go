package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/marcboeker/go-duckdb/v2"

	"github.com/duckmesh/duckviz/internal/dataset"
)

// Session is a private in-memory DuckDB database holding one registered
// relation per dataset table. Sessions are never pooled.
type Session struct {
	connector *duckdb.Connector
	db        *sql.DB
}

func Open(ctx context.Context, set dataset.Set) (*Session, error) {
	connector, err := duckdb.NewConnector("", nil)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	session := &Session{connector: connector, db: sql.OpenDB(connector)}

	for _, name := range set.Names() {
		if err := session.register(ctx, set[name]); err != nil {
			_ = session.Close()
			return nil, fmt.Errorf("register table %q: %w", name, err)
		}
	}
	if err := session.lockdown(ctx); err != nil {
		_ = session.Close()
		return nil, err
	}
	return session, nil
}

// lockdown removes host file and network access once the tables are loaded
// and locks the configuration so a statement cannot restore it.
func (s *Session) lockdown(ctx context.Context) error {
	for _, statement := range []string{
		"SET enable_external_access = false",
		"SET lock_configuration = true",
	} {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("lock down duckdb (%s): %w", statement, err)
		}
	}
	return nil
}

func (s *Session) register(ctx context.Context, table dataset.Table) error {
	columns := table.Columns()
	defs := make([]string, len(columns))
	for i, column := range columns {
		defs[i] = quoteIdent(column.Name) + " " + string(column.Type)
	}
	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table.Name()), strings.Join(defs, ", "))
	if _, err := s.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	if table.Len() == 0 {
		return nil
	}

	conn, err := s.connector.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = conn.Close() }()

	appender, err := duckdb.NewAppenderFromConn(conn, "", table.Name())
	if err != nil {
		return fmt.Errorf("create appender: %w", err)
	}
	for index, row := range table.Rows() {
		values := make([]driver.Value, len(row))
		for i, value := range row {
			values[i] = value
		}
		if err := appender.AppendRow(values...); err != nil {
			_ = appender.Close()
			return fmt.Errorf("append row %d: %w", index, err)
		}
	}
	if err := appender.Close(); err != nil {
		return fmt.Errorf("flush appender: %w", err)
	}
	return nil
}

func (s *Session) Query(ctx context.Context, statement string) (dataset.Table, error) {
	sqlText := stripTrailingSemicolons(statement)
	if sqlText == "" {
		return dataset.Table{}, fmt.Errorf("sql is required")
	}
	rows, err := s.db.QueryContext(ctx, sqlText)
	if err != nil {
		return dataset.Table{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanTable("result", rows)
}

func (s *Session) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

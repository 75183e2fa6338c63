package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/duckmesh/duckviz/internal/dataset"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

type Source struct {
	db *sql.DB
}

func NewSource(db *sql.DB) *Source {
	return &Source{db: db}
}

func (s *Source) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// ReadTable reads at most limit rows of table, which may be schema
// qualified. Columns are typed from their database type names.
func (s *Source) ReadTable(ctx context.Context, table string, limit int) (dataset.Table, error) {
	relation, err := quoteRelation(table)
	if err != nil {
		return dataset.Table{}, err
	}
	if limit <= 0 {
		return dataset.Table{}, fmt.Errorf("row limit must be > 0")
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT $1", relation), limit)
	if err != nil {
		return dataset.Table{}, fmt.Errorf("query postgres table %s: %w", relation, err)
	}
	defer func() { _ = rows.Close() }()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return dataset.Table{}, fmt.Errorf("read column types: %w", err)
	}
	columns := make([]dataset.Column, len(columnTypes))
	for i, columnType := range columnTypes {
		columns[i] = dataset.Column{Name: columnType.Name(), Type: mapType(columnType.DatabaseTypeName())}
	}

	var values [][]any
	for rows.Next() {
		row := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range row {
			pointers[i] = &row[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return dataset.Table{}, fmt.Errorf("scan postgres row: %w", err)
		}
		values = append(values, row)
	}
	if err := rows.Err(); err != nil {
		return dataset.Table{}, fmt.Errorf("iterate postgres rows: %w", err)
	}
	return dataset.NewTable(unqualified(table), columns, values)
}

func quoteRelation(table string) (string, error) {
	parts := strings.Split(strings.TrimSpace(table), ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	for i, part := range parts {
		if !identifierPattern.MatchString(part) {
			return "", fmt.Errorf("invalid table name %q", table)
		}
		parts[i] = `"` + part + `"`
	}
	return strings.Join(parts, "."), nil
}

func unqualified(table string) string {
	table = strings.TrimSpace(table)
	if i := strings.LastIndex(table, "."); i >= 0 {
		return table[i+1:]
	}
	return table
}

func mapType(databaseType string) dataset.ColumnType {
	switch strings.ToUpper(databaseType) {
	case "INT2", "INT4", "INT8", "SMALLINT", "INTEGER", "BIGINT":
		return dataset.TypeInteger
	case "FLOAT4", "FLOAT8", "NUMERIC", "REAL", "DOUBLE PRECISION":
		return dataset.TypeFloat
	case "BOOL", "BOOLEAN":
		return dataset.TypeBoolean
	case "DATE", "TIMESTAMP", "TIMESTAMPTZ":
		return dataset.TypeTimestamp
	default:
		return dataset.TypeText
	}
}

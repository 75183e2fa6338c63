package duckdb

import (
	"database/sql"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/marcboeker/go-duckdb/v2"

	"github.com/duckmesh/duckviz/internal/dataset"
)

func scanTable(name string, rows *sql.Rows) (dataset.Table, error) {
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return dataset.Table{}, fmt.Errorf("query columns: %w", err)
	}
	columns := make([]dataset.Column, len(columnTypes))
	for i, columnType := range columnTypes {
		columns[i] = dataset.Column{
			Name: uniqueColumnName(columnType.Name(), i, columns[:i]),
			Type: mapType(columnType.DatabaseTypeName()),
		}
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return dataset.Table{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return dataset.Table{}, fmt.Errorf("iterate rows: %w", err)
	}

	table, err := dataset.NewTable(name, columns, resultRows)
	if err != nil {
		return dataset.Table{}, fmt.Errorf("materialize result: %w", err)
	}
	return table, nil
}

func mapType(databaseType string) dataset.ColumnType {
	base := strings.ToUpper(strings.TrimSpace(databaseType))
	if i := strings.IndexByte(base, '('); i >= 0 {
		base = base[:i]
	}
	switch base {
	case "BOOLEAN":
		return dataset.TypeBoolean
	case "TINYINT", "SMALLINT", "INTEGER", "BIGINT", "UTINYINT", "USMALLINT", "UINTEGER", "UBIGINT":
		return dataset.TypeInteger
	case "HUGEINT", "UHUGEINT", "FLOAT", "DOUBLE", "DECIMAL", "REAL":
		return dataset.TypeFloat
	case "DATE", "TIME", "TIMESTAMP", "TIMESTAMPTZ", "TIMESTAMP WITH TIME ZONE", "TIMESTAMP_S", "TIMESTAMP_MS", "TIMESTAMP_NS":
		return dataset.TypeTimestamp
	default:
		return dataset.TypeText
	}
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		case *big.Int:
			f, _ := new(big.Float).SetInt(typed).Float64()
			normalized[i] = f
		case duckdb.Decimal:
			normalized[i] = typed.Float64()
		case time.Time:
			normalized[i] = typed
		case fmt.Stringer:
			normalized[i] = typed.String()
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func uniqueColumnName(name string, index int, previous []dataset.Column) string {
	if strings.TrimSpace(name) == "" {
		name = fmt.Sprintf("column%d", index)
	}
	candidate := name
	for suffix := 1; ; suffix++ {
		clash := false
		for _, column := range previous {
			if column.Name == candidate {
				clash = true
				break
			}
		}
		if !clash {
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d", name, suffix)
	}
}

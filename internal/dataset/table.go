package dataset

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

type ColumnType string

const (
	TypeText      ColumnType = "VARCHAR"
	TypeInteger   ColumnType = "BIGINT"
	TypeFloat     ColumnType = "DOUBLE"
	TypeBoolean   ColumnType = "BOOLEAN"
	TypeTimestamp ColumnType = "TIMESTAMP"
)

func (t ColumnType) Valid() bool {
	switch t {
	case TypeText, TypeInteger, TypeFloat, TypeBoolean, TypeTimestamp:
		return true
	default:
		return false
	}
}

func (t ColumnType) Numeric() bool {
	return t == TypeInteger || t == TypeFloat
}

type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Table is a named, read-only rectangular dataset. Every cell holds nil or
// the Go type of its column: string, int64, float64, bool or time.Time.
type Table struct {
	name    string
	columns []Column
	rows    [][]any
	index   map[string]int
}

func NewTable(name string, columns []Column, rows [][]any) (Table, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Table{}, fmt.Errorf("table name is required")
	}
	if len(columns) == 0 {
		return Table{}, fmt.Errorf("table %q: at least one column is required", name)
	}

	cols := make([]Column, len(columns))
	index := make(map[string]int, len(columns))
	for i, column := range columns {
		if strings.TrimSpace(column.Name) == "" {
			return Table{}, fmt.Errorf("table %q: column %d has no name", name, i)
		}
		if !column.Type.Valid() {
			return Table{}, fmt.Errorf("table %q: column %q has unsupported type %q", name, column.Name, column.Type)
		}
		if _, exists := index[column.Name]; exists {
			return Table{}, fmt.Errorf("table %q: duplicate column %q", name, column.Name)
		}
		cols[i] = column
		index[column.Name] = i
	}

	copied := make([][]any, len(rows))
	for r, row := range rows {
		if len(row) != len(cols) {
			return Table{}, fmt.Errorf("table %q: row %d has %d values, want %d", name, r, len(row), len(cols))
		}
		values := make([]any, len(row))
		for c, value := range row {
			coerced, err := Coerce(value, cols[c].Type)
			if err != nil {
				return Table{}, fmt.Errorf("table %q: row %d column %q: %w", name, r, cols[c].Name, err)
			}
			values[c] = coerced
		}
		copied[r] = values
	}

	return Table{name: name, columns: cols, rows: copied, index: index}, nil
}

func (t Table) Name() string {
	return t.name
}

func (t Table) Columns() []Column {
	return append([]Column(nil), t.columns...)
}

func (t Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, column := range t.columns {
		names[i] = column.Name
	}
	return names
}

func (t Table) Column(name string) (Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return Column{}, false
	}
	return t.columns[i], true
}

func (t Table) Len() int {
	return len(t.rows)
}

func (t Table) Row(i int) []any {
	if i < 0 || i >= len(t.rows) {
		return nil
	}
	return append([]any(nil), t.rows[i]...)
}

func (t Table) Rows() [][]any {
	out := make([][]any, len(t.rows))
	for i := range t.rows {
		out[i] = append([]any(nil), t.rows[i]...)
	}
	return out
}

func (t Table) Head(n int) Table {
	if n < 0 {
		n = 0
	}
	if n > len(t.rows) {
		n = len(t.rows)
	}
	head := t
	head.rows = t.rows[:n:n]
	return head
}

func (t Table) Rename(name string) Table {
	renamed := t
	renamed.name = name
	return renamed
}

func (t Table) Values(column string) ([]any, error) {
	i, ok := t.index[column]
	if !ok {
		return nil, t.unknownColumn(column)
	}
	values := make([]any, len(t.rows))
	for r, row := range t.rows {
		values[r] = row[i]
	}
	return values, nil
}

func (t Table) Strings(column string) ([]string, error) {
	i, ok := t.index[column]
	if !ok {
		return nil, t.unknownColumn(column)
	}
	values := make([]string, len(t.rows))
	for r, row := range t.rows {
		values[r] = FormatValue(row[i])
	}
	return values, nil
}

// Floats returns a numeric column as float64. Nulls become NaN.
func (t Table) Floats(column string) ([]float64, error) {
	i, ok := t.index[column]
	if !ok {
		return nil, t.unknownColumn(column)
	}
	if !t.columns[i].Type.Numeric() {
		return nil, fmt.Errorf("column %q of table %q is %s, not numeric", column, t.name, t.columns[i].Type)
	}
	values := make([]float64, len(t.rows))
	for r, row := range t.rows {
		switch typed := row[i].(type) {
		case int64:
			values[r] = float64(typed)
		case float64:
			values[r] = typed
		default:
			values[r] = math.NaN()
		}
	}
	return values, nil
}

func (t Table) unknownColumn(column string) error {
	return fmt.Errorf("table %q has no column %q (columns: %s)", t.name, column, strings.Join(t.ColumnNames(), ", "))
}

type Set map[string]Table

func NewSet(tables ...Table) (Set, error) {
	set := make(Set, len(tables))
	for _, table := range tables {
		if _, exists := set[table.Name()]; exists {
			return nil, fmt.Errorf("duplicate dataset %q", table.Name())
		}
		set[table.Name()] = table
	}
	return set, nil
}

func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func Coerce(value any, columnType ColumnType) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch columnType {
	case TypeText:
		switch typed := value.(type) {
		case string:
			return typed, nil
		case []byte:
			return string(typed), nil
		default:
			return FormatValue(typed), nil
		}
	case TypeInteger:
		switch typed := value.(type) {
		case int64:
			return typed, nil
		case int:
			return int64(typed), nil
		case int32:
			return int64(typed), nil
		case int16:
			return int64(typed), nil
		case int8:
			return int64(typed), nil
		case uint8:
			return int64(typed), nil
		case uint16:
			return int64(typed), nil
		case uint32:
			return int64(typed), nil
		case uint64:
			if typed > math.MaxInt64 {
				return nil, fmt.Errorf("value %d overflows BIGINT", typed)
			}
			return int64(typed), nil
		case float64:
			if typed != math.Trunc(typed) {
				return nil, fmt.Errorf("value %v is not an integer", typed)
			}
			return int64(typed), nil
		case string:
			parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse BIGINT %q: %w", typed, err)
			}
			return parsed, nil
		}
	case TypeFloat:
		switch typed := value.(type) {
		case float64:
			return typed, nil
		case float32:
			return float64(typed), nil
		case int64:
			return float64(typed), nil
		case int:
			return float64(typed), nil
		case int32:
			return float64(typed), nil
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
			if err != nil {
				return nil, fmt.Errorf("parse DOUBLE %q: %w", typed, err)
			}
			return parsed, nil
		}
	case TypeBoolean:
		switch typed := value.(type) {
		case bool:
			return typed, nil
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(typed))
			if err != nil {
				return nil, fmt.Errorf("parse BOOLEAN %q: %w", typed, err)
			}
			return parsed, nil
		}
	case TypeTimestamp:
		switch typed := value.(type) {
		case time.Time:
			return typed.UTC(), nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(typed))
			if err != nil {
				return nil, fmt.Errorf("parse TIMESTAMP %q: %w", typed, err)
			}
			return parsed.UTC(), nil
		}
	}
	return nil, fmt.Errorf("cannot store %T in %s column", value, columnType)
}

func FormatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case time.Time:
		return typed.UTC().Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(typed, 'g', -1, 64)
	default:
		return fmt.Sprint(typed)
	}
}

package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/duckmesh/duckviz/internal/dataset"
)

const parquetReadBatch = 256

type parquetColumn struct {
	column  dataset.Column
	convert func(parquet.Value) any
}

// DecodeParquet reads a flat parquet file held in memory into a Table.
// Nested schemas are rejected.
func DecodeParquet(name string, data []byte) (dataset.Table, error) {
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return dataset.Table{}, fmt.Errorf("open parquet dataset %q: %w", name, err)
	}

	fields := file.Schema().Fields()
	columns := make([]parquetColumn, len(fields))
	for i, field := range fields {
		if !field.Leaf() {
			return dataset.Table{}, fmt.Errorf("parquet dataset %q: nested column %q is not supported", name, field.Name())
		}
		columns[i] = parquetColumnFor(field)
	}

	rows := make([][]any, 0, file.NumRows())
	buffer := make([]parquet.Row, parquetReadBatch)
	for _, group := range file.RowGroups() {
		groupRows, err := readRowGroup(group, columns, buffer)
		if err != nil {
			return dataset.Table{}, fmt.Errorf("read parquet dataset %q: %w", name, err)
		}
		rows = append(rows, groupRows...)
	}

	schema := make([]dataset.Column, len(columns))
	for i, column := range columns {
		schema[i] = column.column
	}
	return dataset.NewTable(name, schema, rows)
}

func readRowGroup(group parquet.RowGroup, columns []parquetColumn, buffer []parquet.Row) ([][]any, error) {
	reader := group.Rows()
	defer func() { _ = reader.Close() }()

	var out [][]any
	for {
		n, err := reader.ReadRows(buffer)
		for _, row := range buffer[:n] {
			values := make([]any, len(columns))
			for _, value := range row {
				index := value.Column()
				if index < 0 || index >= len(columns) || value.IsNull() {
					continue
				}
				values[index] = columns[index].convert(value)
			}
			out = append(out, values)
		}
		if errors.Is(err, io.EOF) || (err == nil && n == 0) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func parquetColumnFor(field parquet.Field) parquetColumn {
	name := field.Name()
	typ := field.Type()
	if logical := typ.LogicalType(); logical != nil && logical.Timestamp != nil {
		unit := time.Nanosecond
		switch {
		case logical.Timestamp.Unit.Millis != nil:
			unit = time.Millisecond
		case logical.Timestamp.Unit.Micros != nil:
			unit = time.Microsecond
		}
		return parquetColumn{
			column: dataset.Column{Name: name, Type: dataset.TypeTimestamp},
			convert: func(v parquet.Value) any {
				return time.Unix(0, v.Int64()*int64(unit)).UTC()
			},
		}
	}

	switch typ.Kind() {
	case parquet.Boolean:
		return parquetColumn{
			column:  dataset.Column{Name: name, Type: dataset.TypeBoolean},
			convert: func(v parquet.Value) any { return v.Boolean() },
		}
	case parquet.Int32:
		return parquetColumn{
			column:  dataset.Column{Name: name, Type: dataset.TypeInteger},
			convert: func(v parquet.Value) any { return int64(v.Int32()) },
		}
	case parquet.Int64:
		return parquetColumn{
			column:  dataset.Column{Name: name, Type: dataset.TypeInteger},
			convert: func(v parquet.Value) any { return v.Int64() },
		}
	case parquet.Float:
		return parquetColumn{
			column:  dataset.Column{Name: name, Type: dataset.TypeFloat},
			convert: func(v parquet.Value) any { return float64(v.Float()) },
		}
	case parquet.Double:
		return parquetColumn{
			column:  dataset.Column{Name: name, Type: dataset.TypeFloat},
			convert: func(v parquet.Value) any { return v.Double() },
		}
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return parquetColumn{
			column:  dataset.Column{Name: name, Type: dataset.TypeText},
			convert: func(v parquet.Value) any { return string(v.ByteArray()) },
		}
	default:
		return parquetColumn{
			column:  dataset.Column{Name: name, Type: dataset.TypeText},
			convert: func(v parquet.Value) any { return v.String() },
		}
	}
}

package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/duckmesh/duckviz/internal/dataset"
)

type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
	// FormatXLSX is decoded by the catalog; ReadFile does not accept it.
	FormatXLSX Format = "xlsx"
)

func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv":
		return FormatCSV, nil
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON, nil
	case ".parquet":
		return FormatParquet, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("cannot infer dataset format from %q", path)
	}
}

// ReadFile loads a local file into a Table through DuckDB's readers, which
// also infer column types.
func ReadFile(ctx context.Context, name, path string, format Format) (dataset.Table, error) {
	var reader string
	switch format {
	case FormatCSV:
		reader = "read_csv_auto"
	case FormatJSON:
		reader = "read_json_auto"
	case FormatParquet:
		reader = "read_parquet"
	default:
		return dataset.Table{}, fmt.Errorf("unsupported format %q", format)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return dataset.Table{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s(%s)", reader, quoteString(path)))
	if err != nil {
		return dataset.Table{}, fmt.Errorf("read %s file %q: %w", format, path, err)
	}
	defer func() { _ = rows.Close() }()

	return scanTable(name, rows)
}

// ReadObject stages a stream into a private temp directory and reads it
// like a local file.
func ReadObject(ctx context.Context, name string, body io.Reader, format Format) (dataset.Table, error) {
	workDir, err := os.MkdirTemp("", "duckviz-dataset-")
	if err != nil {
		return dataset.Table{}, fmt.Errorf("create dataset temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPath := filepath.Join(workDir, sanitizeFileComponent(name)+"."+string(format))
	if err := writeFile(localPath, body); err != nil {
		return dataset.Table{}, fmt.Errorf("write local dataset file %q: %w", localPath, err)
	}
	return ReadFile(ctx, name, localPath, format)
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}

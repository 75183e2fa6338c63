package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/duckmesh/duckviz/internal/dataset"
	"github.com/duckmesh/duckviz/internal/query/duckdb"
	"github.com/duckmesh/duckviz/internal/storage"
)

// TableReader reads a bounded snapshot of a relational table.
type TableReader interface {
	ReadTable(ctx context.Context, table string, limit int) (dataset.Table, error)
}

type LoaderOptions struct {
	Store    storage.ObjectStore
	Postgres TableReader
}

type Loader struct {
	store    storage.ObjectStore
	postgres TableReader
	logger   *slog.Logger
}

func NewLoader(opts LoaderOptions, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{store: opts.Store, postgres: opts.Postgres, logger: logger}
}

func (l *Loader) LoadAll(ctx context.Context, manifest Manifest) (dataset.Set, error) {
	tables := make([]dataset.Table, 0, len(manifest.Datasets))
	for _, entry := range manifest.Datasets {
		table, err := l.Load(ctx, entry, manifest.Dir)
		if err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}
	return dataset.NewSet(tables...)
}

// Load materializes one manifest entry. Relative file paths resolve
// against dir.
func (l *Loader) Load(ctx context.Context, entry Entry, dir string) (dataset.Table, error) {
	if err := entry.Validate(); err != nil {
		return dataset.Table{}, err
	}

	var (
		table dataset.Table
		err   error
	)
	switch entry.Source {
	case SourceFile:
		table, err = l.loadFile(ctx, entry, dir)
	case SourceObject:
		table, err = l.loadObject(ctx, entry)
	case SourcePostgres:
		table, err = l.loadPostgres(ctx, entry)
	}
	if err != nil {
		return dataset.Table{}, fmt.Errorf("load dataset %q: %w", entry.Name, err)
	}

	l.logger.Info("dataset loaded",
		slog.String("dataset", entry.Name),
		slog.String("source", string(entry.Source)),
		slog.Int("rows", table.Len()),
		slog.Int("columns", len(table.Columns())),
	)
	return table, nil
}

func (l *Loader) loadFile(ctx context.Context, entry Entry, dir string) (dataset.Table, error) {
	path := entry.Path
	if !filepath.IsAbs(path) && dir != "" {
		path = filepath.Join(dir, path)
	}
	format, err := entry.format()
	if err != nil {
		return dataset.Table{}, err
	}
	if decodedInMemory(format) {
		data, err := os.ReadFile(path)
		if err != nil {
			return dataset.Table{}, fmt.Errorf("read %s file: %w", format, err)
		}
		return decode(entry, format, data)
	}
	return duckdb.ReadFile(ctx, entry.Name, path, format)
}

func (l *Loader) loadObject(ctx context.Context, entry Entry) (dataset.Table, error) {
	if l.store == nil {
		return dataset.Table{}, fmt.Errorf("object store is not configured")
	}
	format, err := entry.format()
	if err != nil {
		return dataset.Table{}, err
	}
	body, err := l.store.Get(ctx, entry.Key)
	if err != nil {
		return dataset.Table{}, err
	}
	defer func() { _ = body.Close() }()

	if decodedInMemory(format) {
		data, err := io.ReadAll(body)
		if err != nil {
			return dataset.Table{}, fmt.Errorf("read object %q: %w", entry.Key, err)
		}
		return decode(entry, format, data)
	}
	return duckdb.ReadObject(ctx, entry.Name, body, format)
}

func (l *Loader) loadPostgres(ctx context.Context, entry Entry) (dataset.Table, error) {
	if l.postgres == nil {
		return dataset.Table{}, fmt.Errorf("postgres source is not configured")
	}
	limit := entry.Limit
	if limit == 0 {
		limit = DefaultPostgresRowLimit
	}
	table, err := l.postgres.ReadTable(ctx, entry.Table, limit)
	if err != nil {
		return dataset.Table{}, err
	}
	return table.Rename(entry.Name), nil
}

// decodedInMemory reports formats read in Go rather than through DuckDB.
func decodedInMemory(format duckdb.Format) bool {
	return format == duckdb.FormatParquet || format == duckdb.FormatXLSX
}

func decode(entry Entry, format duckdb.Format, data []byte) (dataset.Table, error) {
	if format == duckdb.FormatXLSX {
		return DecodeXLSX(entry.Name, data, entry.Sheet)
	}
	return DecodeParquet(entry.Name, data)
}

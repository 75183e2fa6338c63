package duckdb

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/duckmesh/duckviz/internal/dataset"
)

type row struct {
	ID    int64  `parquet:"id"`
	Value string `parquet:"value"`
}

func salesSet(t *testing.T) dataset.Set {
	t.Helper()
	table, err := dataset.NewTable("data", []dataset.Column{
		{Name: "category", Type: dataset.TypeText},
		{Name: "value", Type: dataset.TypeFloat},
		{Name: "sold_at", Type: dataset.TypeTimestamp},
	}, [][]any{
		{"a", 1.0, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"b", 2.5, nil},
		{"a", 4.0, time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)},
	})
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	return dataset.Set{"data": table}
}

func TestSessionQueriesRegisteredTables(t *testing.T) {
	session, err := Open(context.Background(), salesSet(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = session.Close() }()

	result, err := session.Query(context.Background(), "SELECT category, SUM(value) AS total FROM data GROUP BY category ORDER BY category;")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if result.Len() != 2 {
		t.Fatalf("rows = %d", result.Len())
	}
	if names := result.ColumnNames(); names[0] != "category" || names[1] != "total" {
		t.Fatalf("columns = %v", names)
	}
	totals, err := result.Floats("total")
	if err != nil {
		t.Fatalf("Floats() error = %v", err)
	}
	if totals[0] != 5.0 || totals[1] != 2.5 {
		t.Fatalf("totals = %v", totals)
	}
}

func TestSessionCountIsInteger(t *testing.T) {
	session, err := Open(context.Background(), salesSet(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = session.Close() }()

	result, err := session.Query(context.Background(), "SELECT COUNT(*) AS c, MAX(sold_at) AS latest FROM data")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if result.Row(0)[0] != int64(3) {
		t.Fatalf("count = %#v", result.Row(0)[0])
	}
	column, _ := result.Column("latest")
	if column.Type != dataset.TypeTimestamp {
		t.Fatalf("latest type = %s", column.Type)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	first, err := Open(context.Background(), salesSet(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = first.Close() }()

	second, err := Open(context.Background(), dataset.Set{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = second.Close() }()

	if _, err := second.Query(context.Background(), "SELECT * FROM data"); err == nil {
		t.Fatal("expected second session not to see tables registered in the first")
	}
}

func TestSessionHasNoHostFileAccess(t *testing.T) {
	session, err := Open(context.Background(), salesSet(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = session.Close() }()

	target := filepath.Join(t.TempDir(), "out.parquet")
	if _, err := session.Query(context.Background(), "COPY data TO "+quoteString(target)+" (FORMAT parquet)"); err == nil {
		t.Fatal("expected COPY to fail")
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Fatalf("COPY wrote %s (stat error = %v)", target, err)
	}
}

func TestReadFileInfersCSVTypes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sales.csv")
	if err := os.WriteFile(path, []byte("category,value\na,1.5\nb,2\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	table, err := ReadFile(context.Background(), "sales", path, FormatCSV)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if table.Name() != "sales" || table.Len() != 2 {
		t.Fatalf("table = %s rows=%d", table.Name(), table.Len())
	}
	column, _ := table.Column("value")
	if column.Type != dataset.TypeFloat {
		t.Fatalf("value type = %s", column.Type)
	}
}

func TestReadObjectStagesParquet(t *testing.T) {
	parquetBytes, err := buildParquet([]row{{ID: 1, Value: "a"}, {ID: 2, Value: "b"}})
	if err != nil {
		t.Fatalf("buildParquet() error = %v", err)
	}

	table, err := ReadObject(context.Background(), "events", bytes.NewReader(parquetBytes), FormatParquet)
	if err != nil {
		t.Fatalf("ReadObject() error = %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("rows = %d", table.Len())
	}
	if table.Row(1)[0] != int64(2) {
		t.Fatalf("id = %#v", table.Row(1)[0])
	}
}

func TestFormatFromPath(t *testing.T) {
	cases := map[string]Format{"a.csv": FormatCSV, "b.JSONL": FormatJSON, "c.parquet": FormatParquet, "d.XLSX": FormatXLSX}
	for path, want := range cases {
		got, err := FormatFromPath(path)
		if err != nil || got != want {
			t.Fatalf("FormatFromPath(%q) = %q, %v", path, got, err)
		}
	}
	if _, err := FormatFromPath("e.xls"); err == nil {
		t.Fatal("expected error for unknown extension")
	}
}

func buildParquet(rows []row) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[row](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

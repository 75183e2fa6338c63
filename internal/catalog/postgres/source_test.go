package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/duckmesh/duckviz/internal/dataset"
)

func TestOpenRequiresDSN(t *testing.T) {
	if _, err := Open(context.Background(), DBConfig{}); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestReadTableTypesColumns(t *testing.T) {
	db, mock := newSQLMock(t)
	source := NewSource(db)
	day := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	rows := mock.NewRowsWithColumnDefinition(
		mock.NewColumn("region").OfType("TEXT", ""),
		mock.NewColumn("orders").OfType("INT8", int64(0)),
		mock.NewColumn("revenue").OfType("NUMERIC", ""),
		mock.NewColumn("active").OfType("BOOL", false),
		mock.NewColumn("day").OfType("DATE", time.Time{}),
	).
		AddRow("north", int64(12), "1200.50", true, day).
		AddRow("south", int64(7), nil, false, day)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "public"."sales" LIMIT $1`)).
		WithArgs(100).
		WillReturnRows(rows)

	table, err := source.ReadTable(context.Background(), "public.sales", 100)
	if err != nil {
		t.Fatalf("ReadTable() error = %v", err)
	}
	if table.Name() != "sales" || table.Len() != 2 {
		t.Fatalf("ReadTable() = %s with %d rows", table.Name(), table.Len())
	}
	wantTypes := []dataset.ColumnType{dataset.TypeText, dataset.TypeInteger, dataset.TypeFloat, dataset.TypeBoolean, dataset.TypeTimestamp}
	for i, column := range table.Columns() {
		if column.Type != wantTypes[i] {
			t.Fatalf("column %s type = %s, want %s", column.Name, column.Type, wantTypes[i])
		}
	}
	if got := table.Row(0)[2]; got != 1200.5 {
		t.Fatalf("revenue = %v", got)
	}
	if got := table.Row(1)[2]; got != nil {
		t.Fatalf("null revenue = %v", got)
	}
	assertSQLMock(t, mock)
}

func TestReadTableRejectsInvalidNames(t *testing.T) {
	db, mock := newSQLMock(t)
	source := NewSource(db)
	for _, name := range []string{"", "sales; drop table x", `a"b`, "a.b.c", "1table"} {
		if _, err := source.ReadTable(context.Background(), name, 10); err == nil {
			t.Fatalf("ReadTable(%q) expected error", name)
		}
	}
	assertSQLMock(t, mock)
}

func TestReadTablePropagatesQueryError(t *testing.T) {
	db, mock := newSQLMock(t)
	source := NewSource(db)
	mock.ExpectQuery(`SELECT \* FROM "events" LIMIT \$1`).
		WithArgs(5).
		WillReturnError(sql.ErrConnDone)

	_, err := source.ReadTable(context.Background(), "events", 5)
	if !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("ReadTable() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

package query

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/duckmesh/duckviz/internal/dataset"
)

type fakeSession struct {
	statements []string
	closed     bool
}

func (s *fakeSession) Query(_ context.Context, statement string) (dataset.Table, error) {
	s.statements = append(s.statements, statement)
	return dataset.NewTable("result", []dataset.Column{{Name: "n", Type: dataset.TypeInteger}}, [][]any{{int64(1)}})
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeOpener struct {
	calls   int
	session *fakeSession
}

func (o *fakeOpener) open(context.Context, dataset.Set) (Session, error) {
	o.calls++
	o.session = &fakeSession{}
	return o.session, nil
}

func testSet(t *testing.T) dataset.Set {
	t.Helper()
	table, err := dataset.NewTable("data", []dataset.Column{
		{Name: "category", Type: dataset.TypeText},
		{Name: "value", Type: dataset.TypeFloat},
	}, [][]any{{"a", 1.0}})
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	return dataset.Set{"data": table}
}

func TestGatewayRejectsNonSelectBeforeOpeningEngine(t *testing.T) {
	opener := &fakeOpener{}
	gateway := NewGateway(testSet(t), opener.open, Options{})

	_, err := gateway.Query(context.Background(), "DROP TABLE data")
	var violation *PolicyViolation
	if !errors.As(err, &violation) {
		t.Fatalf("Query() error = %v, want *PolicyViolation", err)
	}
	if opener.calls != 0 {
		t.Fatalf("opener called %d times", opener.calls)
	}
	if gateway.Opened() {
		t.Fatal("expected engine to stay closed")
	}
	if gateway.Violation() == nil || gateway.Violation().Statement != "DROP TABLE data" {
		t.Fatalf("Violation() = %#v", gateway.Violation())
	}
}

func TestGatewayOpensEngineOnceAndReusesIt(t *testing.T) {
	opener := &fakeOpener{}
	gateway := NewGateway(testSet(t), opener.open, Options{})

	for _, statement := range []string{"  select * from data", "SELECT 1", "Select\ncount(*) from data"} {
		if _, err := gateway.Query(context.Background(), statement); err != nil {
			t.Fatalf("Query(%q) error = %v", statement, err)
		}
	}
	if opener.calls != 1 {
		t.Fatalf("opener calls = %d", opener.calls)
	}
	if gateway.Executed() != 3 {
		t.Fatalf("Executed() = %d", gateway.Executed())
	}
	if err := gateway.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !opener.session.closed {
		t.Fatal("expected session to be closed")
	}
}

func TestCheckReadOnly(t *testing.T) {
	cases := []struct {
		statement string
		opts      Options
		allowed   bool
	}{
		{statement: "SELECT 1", allowed: true},
		{statement: "\n\tselect * from data;", allowed: true},
		{statement: "WITH x AS (SELECT 1) SELECT * FROM x", allowed: false},
		{statement: "INSERT INTO data VALUES ('x', 1)", allowed: false},
		{statement: "", allowed: false},
		{statement: "SELECT 1; DROP TABLE data", allowed: true},
		{statement: "SELECT 1; DROP TABLE data", opts: Options{RejectMultiStatement: true}, allowed: false},
		{statement: "SELECT 'a;b' AS v;", opts: Options{RejectMultiStatement: true}, allowed: true},
	}
	for _, tc := range cases {
		err := CheckReadOnly(tc.statement, tc.opts)
		if tc.allowed && err != nil {
			t.Fatalf("CheckReadOnly(%q) error = %v", tc.statement, err)
		}
		if !tc.allowed && err == nil {
			t.Fatalf("CheckReadOnly(%q) expected violation", tc.statement)
		}
	}
}

func TestGatewayDescribeAndTables(t *testing.T) {
	gateway := NewGateway(testSet(t), (&fakeOpener{}).open, Options{})
	if names := gateway.Tables(); len(names) != 1 || names[0] != "data" {
		t.Fatalf("Tables() = %v", names)
	}
	described, err := gateway.Describe("data")
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if described.Len() != 2 || described.Row(1)[1] != "DOUBLE" {
		t.Fatalf("Describe() rows = %v", described.Rows())
	}
	if _, err := gateway.Describe("missing"); err == nil {
		t.Fatal("expected error for unknown table")
	}
	if gateway.Opened() {
		t.Fatal("Describe should not open the engine")
	}
}

func TestGatewayAgainstDuckDB(t *testing.T) {
	gateway := NewGateway(testSet(t), nil, Options{})
	defer func() { _ = gateway.Close() }()

	result, err := gateway.Query(context.Background(), "SELECT category, value * 2 AS doubled FROM data")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	doubled, err := result.Floats("doubled")
	if err != nil || doubled[0] != 2.0 {
		t.Fatalf("doubled = %v, %v", doubled, err)
	}
}

func TestGatewayCannotReachHostFiles(t *testing.T) {
	dir := t.TempDir()
	hostFile := filepath.Join(dir, "host.csv")
	if err := os.WriteFile(hostFile, []byte("secret\n1\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	target := filepath.Join(dir, "leak.csv")

	gateway := NewGateway(testSet(t), nil, Options{})
	defer func() { _ = gateway.Close() }()

	if _, err := gateway.Query(context.Background(), "SELECT 1; COPY data TO '"+target+"'"); err == nil {
		t.Fatal("expected COPY to a host file to fail")
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Fatalf("COPY wrote %s (stat error = %v)", target, err)
	}
	if _, err := gateway.Query(context.Background(), "SELECT * FROM read_csv_auto('"+hostFile+"')"); err == nil {
		t.Fatal("expected read_csv_auto of a host file to fail")
	}
	if _, err := gateway.Query(context.Background(), "SELECT 1; SET enable_external_access = true"); err == nil {
		t.Fatal("expected re-enabling external access to fail")
	}
	if _, err := gateway.Query(context.Background(), "SELECT COUNT(*) AS n FROM data"); err != nil {
		t.Fatalf("registered tables should stay queryable: %v", err)
	}
}

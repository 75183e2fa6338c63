package query

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/duckmesh/duckviz/internal/dataset"
	"github.com/duckmesh/duckviz/internal/query/duckdb"
)

const readOnlyKeyword = "select"

type Session interface {
	Query(ctx context.Context, statement string) (dataset.Table, error)
	Close() error
}

type OpenFunc func(ctx context.Context, set dataset.Set) (Session, error)

func OpenDuckDB(ctx context.Context, set dataset.Set) (Session, error) {
	session, err := duckdb.Open(ctx, set)
	if err != nil {
		return nil, err
	}
	return session, nil
}

type Options struct {
	// RejectMultiStatement refuses statements with a ';' before the end.
	// Off by default; the prefix check alone does not stop "SELECT 1; DROP ...".
	// The DuckDB session has no host file access either way.
	RejectMultiStatement bool
}

type PolicyViolation struct {
	Statement string
	Reason    string
}

func (e *PolicyViolation) Error() string {
	return fmt.Sprintf("policy violation: %s (statement %q)", e.Reason, preview(e.Statement))
}

// Gateway is the read-only query surface over one table set. The engine
// session is opened on the first permitted statement and lives until Close.
type Gateway struct {
	mu        sync.Mutex
	tables    dataset.Set
	open      OpenFunc
	opts      Options
	session   Session
	violation *PolicyViolation
	executed  int
	closed    bool
}

func NewGateway(tables dataset.Set, open OpenFunc, opts Options) *Gateway {
	if open == nil {
		open = OpenDuckDB
	}
	if tables == nil {
		tables = dataset.Set{}
	}
	return &Gateway{tables: tables, open: open, opts: opts}
}

func (g *Gateway) Query(ctx context.Context, statement string) (dataset.Table, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := CheckReadOnly(statement, g.opts); err != nil {
		var violation *PolicyViolation
		if errors.As(err, &violation) && g.violation == nil {
			g.violation = violation
		}
		return dataset.Table{}, err
	}

	if g.closed {
		return dataset.Table{}, errors.New("query gateway is closed")
	}
	if g.session == nil {
		session, err := g.open(ctx, g.tables)
		if err != nil {
			return dataset.Table{}, errors.Wrap(err, "open query engine")
		}
		g.session = session
	}

	g.executed++
	result, err := g.session.Query(ctx, statement)
	if err != nil {
		return dataset.Table{}, errors.Wrapf(err, "query %q", preview(statement))
	}
	return result, nil
}

// Describe reports the columns of a registered table without touching the engine.
func (g *Gateway) Describe(table string) (dataset.Table, error) {
	source, ok := g.tables[table]
	if !ok {
		return dataset.Table{}, errors.Newf("unknown table %q (available: %s)", table, strings.Join(g.tables.Names(), ", "))
	}
	columns := source.Columns()
	rows := make([][]any, len(columns))
	for i, column := range columns {
		rows[i] = []any{column.Name, string(column.Type)}
	}
	return dataset.NewTable("describe_"+table, []dataset.Column{
		{Name: "column_name", Type: dataset.TypeText},
		{Name: "column_type", Type: dataset.TypeText},
	}, rows)
}

func (g *Gateway) Tables() []string {
	return g.tables.Names()
}

func (g *Gateway) Violation() *PolicyViolation {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.violation
}

func (g *Gateway) Opened() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session != nil
}

func (g *Gateway) Executed() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.executed
}

func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	if g.session == nil {
		return nil
	}
	err := g.session.Close()
	g.session = nil
	return err
}

// CheckReadOnly is a textual prefix check, not a parse of the statement.
func CheckReadOnly(statement string, opts Options) error {
	normalized := strings.ToLower(strings.TrimSpace(statement))
	if !strings.HasPrefix(normalized, readOnlyKeyword) {
		return &PolicyViolation{Statement: statement, Reason: "only SELECT statements are allowed"}
	}
	if opts.RejectMultiStatement && hasInnerStatementBreak(normalized) {
		return &PolicyViolation{Statement: statement, Reason: "multiple statements are not allowed"}
	}
	return nil
}

func hasInnerStatementBreak(statement string) bool {
	trimmed := strings.TrimRight(statement, "; \t\r\n")
	var quote rune
	for _, r := range trimmed {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == ';':
			return true
		}
	}
	return false
}

func preview(statement string) string {
	statement = strings.Join(strings.Fields(statement), " ")
	if len(statement) > 80 {
		return statement[:77] + "..."
	}
	return statement
}

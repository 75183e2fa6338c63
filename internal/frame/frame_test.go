package frame

import (
	"math"
	"reflect"
	"testing"

	"github.com/duckmesh/duckviz/internal/dataset"
)

func salesTable(t *testing.T) dataset.Table {
	t.Helper()
	table, err := dataset.NewTable("data", []dataset.Column{
		{Name: "category", Type: dataset.TypeText},
		{Name: "value", Type: dataset.TypeFloat},
	}, [][]any{
		{"b", 2.0},
		{"a", 1.0},
		{"b", nil},
		{"a", 4.0},
		{"c", 3.0},
	})
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	return table
}

func TestGroupSumOrdersByKey(t *testing.T) {
	grouped := GroupSum(salesTable(t), "category", "value")
	if got := Strings(grouped, "category"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("keys = %v", got)
	}
	if got := Floats(grouped, "value"); !reflect.DeepEqual(got, []float64{5, 2, 3}) {
		t.Fatalf("sums = %v", got)
	}
}

func TestGroupMeanAndCount(t *testing.T) {
	means := Floats(GroupMean(salesTable(t), "category", "value"), "value")
	if means[0] != 2.5 || means[1] != 2 {
		t.Fatalf("means = %v", means)
	}
	counts := GroupCount(salesTable(t), "category")
	if counts.Row(1)[1] != int64(2) || counts.Row(2)[1] != int64(1) {
		t.Fatalf("counts = %v", counts.Rows())
	}
}

func TestGroupRenamesCollidingAggregate(t *testing.T) {
	table, err := dataset.NewTable("data", []dataset.Column{
		{Name: "count", Type: dataset.TypeInteger},
	}, [][]any{{int64(2)}, {int64(1)}, {int64(2)}})
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}

	counts := GroupCount(table, "count")
	if got := counts.ColumnNames(); !reflect.DeepEqual(got, []string{"count", "count_rows"}) {
		t.Fatalf("columns = %v", got)
	}
	sums := GroupSum(table, "count", "count")
	if got := sums.ColumnNames(); !reflect.DeepEqual(got, []string{"count", "count_sum"}) {
		t.Fatalf("columns = %v", got)
	}
	if got := Floats(sums, "count_sum"); !reflect.DeepEqual(got, []float64{1, 4}) {
		t.Fatalf("sums = %v", got)
	}
	if got := GroupMean(table, "count", "count").ColumnNames(); got[1] != "count_mean" {
		t.Fatalf("columns = %v", got)
	}
}

func TestAggregatesSkipNaN(t *testing.T) {
	values := Floats(salesTable(t), "value")
	if Sum(values) != 10 {
		t.Fatalf("Sum() = %v", Sum(values))
	}
	if Mean(values) != 2.5 {
		t.Fatalf("Mean() = %v", Mean(values))
	}
	if Min(values) != 1 || Max(values) != 4 {
		t.Fatalf("Min/Max = %v/%v", Min(values), Max(values))
	}
	if !math.IsNaN(Mean([]float64{math.NaN()})) {
		t.Fatal("Mean of only NaN should be NaN")
	}
}

func TestTopSortsDescendingWithNullsLast(t *testing.T) {
	sorted := SortBy(salesTable(t), "value", true)
	if got := Floats(sorted, "value"); got[0] != 4 || !math.IsNaN(got[4]) {
		t.Fatalf("sorted = %v", got)
	}
	top := Top(salesTable(t), "value", 2)
	if got := Strings(top, "category"); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Fatalf("top = %v", got)
	}
}

func TestWhereAndNormalize(t *testing.T) {
	filtered := Where(salesTable(t), "category", "a", "c")
	if filtered.Len() != 3 {
		t.Fatalf("rows = %d", filtered.Len())
	}
	if got := Normalize([]string{"  North ", "SOUTH"}); !reflect.DeepEqual(got, []string{"north", "south"}) {
		t.Fatalf("Normalize() = %v", got)
	}
}

func TestMisusePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for non-numeric column")
		}
	}()
	GroupSum(salesTable(t), "value", "category")
}

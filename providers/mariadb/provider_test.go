package mariadb

import (
	"strings"
	"testing"
	"time"

	"github.com/zoobzio/relq"
)

func newTable(t *testing.T) (*relq.Symbol, relq.Bindings) {
	t.Helper()
	sym := relq.NewSymbol("t", relq.Record(
		relq.Column{Name: "A", Type: relq.String},
		relq.Column{Name: "B", Type: relq.Int64},
		relq.Column{Name: "D", Type: relq.Datetime},
	))
	return sym, relq.Bind(sym, "tbl")
}

func mustField(t *testing.T, base relq.Expr, name string) *relq.FieldExpr {
	t.Helper()
	f, err := relq.Field(base, name)
	if err != nil {
		t.Fatalf("Field(%q): %v", name, err)
	}
	return f
}

func mustLit(t *testing.T, v any) *relq.LiteralExpr {
	t.Helper()
	l, err := relq.Lit(v)
	if err != nil {
		t.Fatalf("Lit(%v): %v", v, err)
	}
	return l
}

func TestCompileBacktickQuoting(t *testing.T) {
	sym, binds := newTable(t)
	pred, err := relq.Gt(mustField(t, sym, "B"), mustLit(t, int64(1)))
	if err != nil {
		t.Fatal(err)
	}
	f, err := relq.Filter(sym, pred)
	if err != nil {
		t.Fatal(err)
	}
	sql, args, err := Compile(f, binds)
	if err != nil {
		t.Fatal(err)
	}
	want := "SELECT `A`, `B`, `D` FROM `tbl` WHERE (`B` > ?)"
	if sql != want {
		t.Errorf("got  %s\nwant %s", sql, want)
	}
	if len(args) != 1 || args[0] != int64(1) {
		t.Errorf("args = %v", args)
	}
}

func TestCompileDatetimeArithmetic(t *testing.T) {
	sym, binds := newTable(t)
	d := mustField(t, sym, "D")

	plus, err := relq.Add(d, mustLit(t, 10*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	sql, args, err := Compile(plus, binds)
	if err != nil {
		t.Fatal(err)
	}
	if sql != "SELECT DATE_ADD(`D`, INTERVAL ? SECOND) AS `D` FROM `tbl`" {
		t.Errorf("got %s", sql)
	}
	if len(args) != 1 || args[0] != int64(10) {
		t.Errorf("args = %v", args)
	}

	minus, err := relq.Sub(d, mustLit(t, time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	sql, _, err = Compile(minus, binds)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(sql, "SELECT DATE_SUB(`D`, INTERVAL ? SECOND)") {
		t.Errorf("got %s", sql)
	}
}

func TestCompileOuterJoinUnsupported(t *testing.T) {
	l := relq.NewSymbol("l", relq.Record(
		relq.Column{Name: "id", Type: relq.Int64},
		relq.Column{Name: "name", Type: relq.String},
	))
	r := relq.NewSymbol("r", relq.Record(
		relq.Column{Name: "id", Type: relq.Int64},
		relq.Column{Name: "value", Type: relq.Float64},
	))
	binds := relq.Bindings{l: "lt", r: "rt"}

	j, err := relq.Join(l, r, relq.OuterJoin, "id")
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = Compile(j, binds)
	if err == nil || !strings.Contains(err.Error(), "outer join is not supported") {
		t.Errorf("expected outer-join error, got %v", err)
	}

	// Left joins still work.
	lj, err := relq.Join(l, r, relq.LeftJoin, "id")
	if err != nil {
		t.Fatal(err)
	}
	sql, _, err := Compile(lj, binds)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sql, "LEFT OUTER JOIN") {
		t.Errorf("got %s", sql)
	}
}

func TestCompileShiftHasNoCanonicalOrder(t *testing.T) {
	sym, binds := newTable(t)
	sh, err := relq.Shift(mustField(t, sym, "B"), 1)
	if err != nil {
		t.Fatal(err)
	}
	sql, _, err := Compile(sh, binds)
	if err != nil {
		t.Fatal(err)
	}
	// No physical row identifier: the window runs over natural order.
	if sql != "SELECT LAG(`B`, 1) OVER () AS `B` FROM `tbl`" {
		t.Errorf("got %s", sql)
	}
}

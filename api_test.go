package relq

import (
	"errors"
	"strings"
	"testing"
)

func TestFreeSymbols(t *testing.T) {
	a := testTable()

	j, err := Join(a, NewSymbol("r", Record(
		Column{Name: "A", Type: String},
		Column{Name: "V", Type: Float64},
	)), InnerJoin, "A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	syms := FreeSymbols(j)
	if len(syms) != 2 || syms[0] != a {
		t.Errorf("expected [a r] in first-visit order, got %d symbols", len(syms))
	}

	// A symbol shared by both operands counts once.
	pred, err := Gt(field(t, a, "B"), field(t, a, "B"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f, err := Filter(a, pred)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := FreeSymbols(f); len(got) != 1 {
		t.Errorf("shared symbol counted %d times", len(got))
	}
}

func TestBindTable(t *testing.T) {
	a := testTable()
	binds, err := BindTable(a, "tbl_42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if binds[a] != "tbl_42" {
		t.Errorf("bound to %q, want tbl_42", binds[a])
	}

	r := NewSymbol("r", Record(
		Column{Name: "A", Type: String},
		Column{Name: "V", Type: Float64},
	))
	j, err := Join(a, r, InnerJoin, "A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := BindTable(j, "tbl"); err == nil {
		t.Error("expected error binding a two-symbol expression")
	}
}

func TestLowerUnboundSymbol(t *testing.T) {
	a := testTable()
	_, err := Lower(a, Dialect("unregistered"), Bindings{})
	var ub *UnboundSymbolError
	if !errors.As(err, &ub) {
		t.Fatalf("expected UnboundSymbolError, got %v", err)
	}
	if ub.Name != "t" {
		t.Errorf("error names %q, want t", ub.Name)
	}
}

func TestLowerInvalidAxis(t *testing.T) {
	a := testTable()
	// Axis-1 concatenation constructs over scalar shapes but must be
	// rejected before any rule runs, even on a dialect with no rules.
	c, err := Concat(1, field(t, a, "B"), field(t, a, "F"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = Lower(c, Dialect("unregistered"), Bind(a, "tbl"))
	var ia *InvalidAxisError
	if !errors.As(err, &ia) {
		t.Fatalf("expected InvalidAxisError, got %v", err)
	}
	if !strings.Contains(err.Error(), "merge") {
		t.Errorf("error must point at merge, got: %v", err)
	}
}

func TestRuleLookupFailsClosed(t *testing.T) {
	_, err := ruleFor(Dialect("never-registered"), KindField)
	var ue *UnsupportedOperationError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnsupportedOperationError, got %v", err)
	}
	if ue.Kind != KindField || ue.Dialect != "never-registered" {
		t.Errorf("error carries %q/%q", ue.Kind, ue.Dialect)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	d := Dialect("dup-test")
	rule := func(_ *LowerContext, _ Expr, _ []*Fragment) (*Fragment, error) {
		return nil, nil
	}
	Register(d, KindField, rule)
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	Register(d, KindField, rule)
}

func TestLowerMemoizesSharedSubtrees(t *testing.T) {
	d := Dialect("memo-test")
	fieldCalls := 0
	Register(d, KindSymbol, func(ctx *LowerContext, node Expr, _ []*Fragment) (*Fragment, error) {
		sym := node.(*Symbol)
		cols := make([]ColumnSQL, len(sym.Out.Columns))
		for i, c := range sym.Out.Columns {
			cols[i] = ColumnSQL{Name: c.Name, Expr: SQLExpr{SQL: c.Name}}
		}
		return &Fragment{Table: ctx.TableFor(sym), Columns: cols}, nil
	})
	Register(d, KindField, func(_ *LowerContext, node Expr, children []*Fragment) (*Fragment, error) {
		fieldCalls++
		n := node.(*FieldExpr)
		return &Fragment{Col: &SQLExpr{SQL: n.Name}, Name: n.Name, Source: children[0]}, nil
	})
	Register(d, KindTransform, func(_ *LowerContext, _ Expr, children []*Fragment) (*Fragment, error) {
		return children[0], nil
	})

	tbl := testTable()
	b := field(t, tbl, "B")
	// The same field node feeds two derived columns; it must lower once.
	tr, err := Transform(tbl, Named{Name: "x", Expr: b}, Named{Name: "y", Expr: b})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := Lower(tr, d, Bind(tbl, "tbl")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fieldCalls != 1 {
		t.Errorf("shared field lowered %d times, want 1", fieldCalls)
	}
}

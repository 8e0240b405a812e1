// Package relq provides a symbolic relational-expression compiler.
//
// Expressions form an immutable algebra over named tables (symbols):
// selection, projection, joins, concatenation, sorting, distinct, windowed
// shifts, column transforms, type coercion, arithmetic, and reductions.
// Every node carries its output schema, inferred eagerly at construction.
//
// # Basic Usage
//
// Declare a symbol with a known schema, build an expression, then lower it
// for a backend dialect:
//
//	t := relq.NewSymbol("t", relq.Record(
//		relq.Column{Name: "A", Type: relq.String},
//		relq.Column{Name: "B", Type: relq.Int64},
//	))
//
//	b, _ := relq.Field(t, "B")
//	one, _ := relq.Lit(int64(1))
//	pred, _ := relq.Gt(b, one)
//	filtered, _ := relq.Filter(t, pred)
//
//	binds, _ := relq.BindTable(filtered, "tbl_42")
//	frag, err := relq.Lower(filtered, relq.Postgres, binds)
//
// Fragments are executed through a provider package, which owns the live
// connection and the result shape (lazy handle, materialized rows, or a
// single scalar):
//
//	import "github.com/zoobzio/relq/providers/postgres"
//
//	db, err := postgres.Open(ctx, "postgresql://user@localhost/test::tbl_42")
//	rows, err := db.Rows(ctx, filtered, binds)
//
// # Multi-Backend Support
//
// Lowering rules are registered per (node kind, dialect) pair by the
// provider packages at init time. Available providers: postgres, sqlite,
// mariadb, mssql. A node kind with no rule for the requested dialect fails
// with UnsupportedOperationError; there is no fallback.
//
// # Purity
//
// Lowering is a pure, synchronous tree walk: the same expression lowered
// twice under the same dialect yields semantically identical fragments.
// Shared subtrees are lowered once, keyed by node identity. The only
// side-effecting step is execution, which belongs to the providers.
package relq

// Bindings maps free symbols to backend-resident table names.
type Bindings map[*Symbol]string

// Bind builds a single-entry Bindings. Convenience for expressions over one
// symbol.
func Bind(sym *Symbol, table string) Bindings {
	return Bindings{sym: table}
}

// BindTable binds the unique free symbol of expr to table. It fails when the
// expression has no free symbols or more than one.
func BindTable(expr Expr, table string) (Bindings, error) {
	syms := FreeSymbols(expr)
	if len(syms) != 1 {
		return nil, &SchemaError{Op: "bind", Detail: "expression must reference exactly one symbol"}
	}
	return Bindings{syms[0]: table}, nil
}

// FreeSymbols returns the distinct symbols referenced by expr, in first-visit
// depth-first order.
func FreeSymbols(expr Expr) []*Symbol {
	var out []*Symbol
	seen := make(map[*Symbol]bool)
	var walk func(Expr)
	walk = func(e Expr) {
		if s, ok := e.(*Symbol); ok {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
			return
		}
		for _, c := range e.Children() {
			walk(c)
		}
	}
	walk(expr)
	return out
}

// LowerContext carries per-compilation state: the target dialect, the symbol
// bindings, and the memo table that deduplicates shared subtrees.
type LowerContext struct {
	Dialect Dialect
	binds   Bindings
	memo    map[Expr]*Fragment
}

// TableFor returns the backend table bound to sym.
func (c *LowerContext) TableFor(sym *Symbol) string {
	return c.binds[sym]
}

// Lower compiles expr into a backend query fragment for the given dialect.
//
// Every free symbol must appear in binds; otherwise Lower fails with
// UnboundSymbolError before any rule runs. Concatenation along axis 1 is
// rejected up front with InvalidAxisError: a SQL backend has no row
// alignment to offer, the column-wise combination callers want is a join.
//
// The walk is depth-first post-order. Subtrees shared by multiple parents
// (the algebra is a DAG) are lowered once, keyed by node identity.
func Lower(expr Expr, dialect Dialect, binds Bindings) (*Fragment, error) {
	if err := precheck(expr, binds, make(map[Expr]bool)); err != nil {
		return nil, err
	}
	ctx := &LowerContext{
		Dialect: dialect,
		binds:   binds,
		memo:    make(map[Expr]*Fragment),
	}
	return ctx.Lower(expr)
}

// Lower compiles a single node, recursing into children first. Exposed so
// rules can lower sub-expressions that are not plain children (none do
// today, but providers use it in tests).
func (c *LowerContext) Lower(expr Expr) (*Fragment, error) {
	if f, ok := c.memo[expr]; ok {
		return f, nil
	}
	kids := expr.Children()
	lowered := make([]*Fragment, len(kids))
	for i, k := range kids {
		f, err := c.Lower(k)
		if err != nil {
			return nil, err
		}
		lowered[i] = f
	}
	rule, err := ruleFor(c.Dialect, expr.Kind())
	if err != nil {
		return nil, err
	}
	frag, err := rule(c, expr, lowered)
	if err != nil {
		return nil, err
	}
	c.memo[expr] = frag
	return frag, nil
}

// precheck walks the tree once before lowering: unbound symbols and axis-1
// concatenation must surface before any fragment is built.
func precheck(expr Expr, binds Bindings, seen map[Expr]bool) error {
	if seen[expr] {
		return nil
	}
	seen[expr] = true
	switch n := expr.(type) {
	case *Symbol:
		if _, ok := binds[n]; !ok {
			return &UnboundSymbolError{Name: n.Name}
		}
	case *ConcatExpr:
		if n.Axis == 1 {
			return &InvalidAxisError{Axis: 1}
		}
	}
	for _, c := range expr.Children() {
		if err := precheck(c, binds, seen); err != nil {
			return err
		}
	}
	return nil
}

package relq

// SQLExpr is a dialect-specific SQL snippet paired with the positional
// arguments it consumes. Placeholders are always written as `?` and rebound
// to the dialect's style during final assembly; values are never
// interpolated into the text.
type SQLExpr struct {
	SQL      string
	Args     []any
	Windowed bool // contains a window function; cannot sit in a WHERE clause
}

// ColumnSQL is one output column of a select fragment.
type ColumnSQL struct {
	Name string
	Expr SQLExpr
}

// OrderSQL is one ORDER BY term. The expression is an already-quoted column
// reference.
type OrderSQL struct {
	SQL       string
	Direction Direction
}

// JoinSQL describes the join part of a fragment. Left and Right render as
// the two sources, aliased LeftAlias and RightAlias; On lists the equality
// columns (unquoted names, present on both sides).
type JoinSQL struct {
	How        JoinKind
	Left       *Fragment
	Right      *Fragment
	LeftAlias  string
	RightAlias string
	On         []string
}

// Fragment is an abstract composable query produced by lowering.
//
// It takes one of two forms. The column form (Col != nil) is a scalar
// expression over Source, used while scalar sub-expressions compose; the
// select form describes a full query: a source (base Table, subquery
// Source, Join, or Union operands), output Columns, AND-composed Filters,
// Ordering, and distinct markers.
//
// Fragments are shared between parents through the lowering memo, so rules
// must never mutate a child fragment in place; they copy first (Clone).
type Fragment struct {
	// Column form.
	Col  *SQLExpr
	Name string

	// Select form. Exactly one of Table, Source, Join, Union is set.
	Table      string
	Source     *Fragment
	Join       *JoinSQL
	Union      []*Fragment
	Columns    []ColumnSQL
	Filters    []SQLExpr
	Ordering   []OrderSQL
	Distinct   bool
	DistinctOn []string
}

// IsColumn reports whether the fragment is in column form.
func (f *Fragment) IsColumn() bool { return f.Col != nil }

// Composable reports whether filters and output columns can still be added
// to this fragment in place. Join, union, and distinct outputs are closed:
// extending them needs a wrapping subquery first, or predicates would apply
// in the wrong scope.
func (f *Fragment) Composable() bool {
	if f.IsColumn() {
		return false
	}
	return f.Join == nil && f.Union == nil && !f.Distinct && len(f.DistinctOn) == 0
}

// Clone returns a shallow copy with its own column, filter, and ordering
// slices, safe to extend without touching fragments shared via the memo.
func (f *Fragment) Clone() *Fragment {
	c := *f
	if f.Col != nil {
		col := *f.Col
		c.Col = &col
	}
	c.Columns = append([]ColumnSQL(nil), f.Columns...)
	c.Filters = append([]SQLExpr(nil), f.Filters...)
	c.Ordering = append([]OrderSQL(nil), f.Ordering...)
	c.DistinctOn = append([]string(nil), f.DistinctOn...)
	return &c
}

// ColumnNamed looks up an output column of a select fragment.
func (f *Fragment) ColumnNamed(name string) (ColumnSQL, bool) {
	for _, c := range f.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnSQL{}, false
}

// BaseTable reports the underlying table name when the fragment selects
// directly from a base table. Filters are fine, since the physical row
// identifier used as the canonical window order for Shift is still
// addressable under a WHERE clause. Subqueries, joins, unions, and distinct
// outputs are not base scans.
func (f *Fragment) BaseTable() (string, bool) {
	if f.Table == "" || f.Source != nil || f.Join != nil || f.Union != nil {
		return "", false
	}
	if f.Distinct || len(f.DistinctOn) > 0 {
		return "", false
	}
	return f.Table, true
}

package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/zoobzio/relq"
)

// columnName resolves a column fragment's output name; anonymous values
// (bare literals) render as "value".
func columnName(f *relq.Fragment) string {
	if f.Name != "" {
		return f.Name
	}
	return "value"
}

// plainColumn builds an output column that selects an already-exposed name.
func (d *Dialect) plainColumn(name string) relq.ColumnSQL {
	return relq.ColumnSQL{Name: name, Expr: relq.SQLExpr{SQL: d.Quote(name)}}
}

func (d *Dialect) plainColumns(names []string) []relq.ColumnSQL {
	cols := make([]relq.ColumnSQL, len(names))
	for i, n := range names {
		cols[i] = d.plainColumn(n)
	}
	return cols
}

// wrap pushes a select fragment into a subquery whose output columns are the
// plain names of the inner fragment. Ordering hoists to the wrapper so inner
// selects stay order-free, except over a native distinct-on select, whose
// ordering is its tie-break and must stay inside.
func (d *Dialect) wrap(f *relq.Fragment) *relq.Fragment {
	if f.IsColumn() {
		f = d.asSelect(f)
	}
	inner := f.Clone()
	var ord []relq.OrderSQL
	if len(inner.DistinctOn) == 0 {
		ord = inner.Ordering
		inner.Ordering = nil
	}
	cols := make([]relq.ColumnSQL, len(inner.Columns))
	for i, c := range inner.Columns {
		cols[i] = d.plainColumn(c.Name)
	}
	return &relq.Fragment{Source: inner, Columns: cols, Ordering: ord}
}

// edit returns a fragment that filters and output columns can be added to:
// a clone when the input composes in place, a wrapping subquery otherwise.
func (d *Dialect) edit(f *relq.Fragment) *relq.Fragment {
	if f.Composable() {
		return f.Clone()
	}
	return d.wrap(f)
}

// asSelect turns a column-form fragment into a single-column select over its
// source. Select-form fragments pass through.
func (d *Dialect) asSelect(f *relq.Fragment) *relq.Fragment {
	if !f.IsColumn() {
		return f
	}
	col := relq.ColumnSQL{Name: columnName(f), Expr: *f.Col}
	if f.Source == nil {
		return &relq.Fragment{Columns: []relq.ColumnSQL{col}}
	}
	out := d.edit(f.Source)
	out.Columns = []relq.ColumnSQL{col}
	return out
}

// combineSource resolves the shared source of two column fragments. Literals
// carry no source and adopt the other side's.
func combineSource(l, r *relq.Fragment) (*relq.Fragment, error) {
	switch {
	case l.Source == nil:
		return r.Source, nil
	case r.Source == nil:
		return l.Source, nil
	case l.Source == r.Source:
		return l.Source, nil
	}
	return nil, fmt.Errorf("render: cannot combine columns from different relations")
}

// orderTerms renders ORDER BY terms without the keyword.
func orderTerms(ord []relq.OrderSQL) string {
	var b strings.Builder
	for i, o := range ord {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(o.SQL)
		b.WriteString(" ")
		b.WriteString(string(o.Direction))
	}
	return b.String()
}

func (d *Dialect) lowerSymbol(ctx *relq.LowerContext, node relq.Expr, _ []*relq.Fragment) (*relq.Fragment, error) {
	sym := node.(*relq.Symbol)
	return &relq.Fragment{
		Table:   ctx.TableFor(sym),
		Columns: d.plainColumns(sym.Out.Names()),
	}, nil
}

func (d *Dialect) lowerField(_ *relq.LowerContext, node relq.Expr, children []*relq.Fragment) (*relq.Fragment, error) {
	n := node.(*relq.FieldExpr)
	base := children[0]
	c, ok := base.ColumnNamed(n.Name)
	if !ok {
		return nil, fmt.Errorf("render: no column %q in lowered base", n.Name)
	}
	expr := c.Expr
	return &relq.Fragment{Col: &expr, Name: n.Name, Source: base}, nil
}

func (d *Dialect) lowerProject(_ *relq.LowerContext, node relq.Expr, children []*relq.Fragment) (*relq.Fragment, error) {
	n := node.(*relq.ProjectExpr)
	b := d.edit(children[0])
	cols := make([]relq.ColumnSQL, len(n.Names))
	for i, name := range n.Names {
		c, ok := b.ColumnNamed(name)
		if !ok {
			return nil, fmt.Errorf("render: no column %q in lowered base", name)
		}
		cols[i] = c
	}
	b.Columns = cols
	return b, nil
}

func (d *Dialect) lowerFilter(_ *relq.LowerContext, node relq.Expr, children []*relq.Fragment) (*relq.Fragment, error) {
	base, pred := children[0], children[1]
	if pred.Col == nil {
		return nil, fmt.Errorf("render: predicate did not lower to a column expression")
	}
	if pred.Col.Windowed {
		return nil, fmt.Errorf("render: cannot filter on a windowed expression")
	}
	b := d.edit(base)
	b.Filters = append(b.Filters, *pred.Col)
	return b, nil
}

func (d *Dialect) lowerTransform(_ *relq.LowerContext, node relq.Expr, children []*relq.Fragment) (*relq.Fragment, error) {
	n := node.(*relq.TransformExpr)
	b := d.edit(children[0])
	for i, nc := range n.Cols {
		cf := children[i+1]
		if cf.Col == nil {
			return nil, fmt.Errorf("render: derived column %q did not lower to a column expression", nc.Name)
		}
		col := relq.ColumnSQL{Name: nc.Name, Expr: *cf.Col}
		replaced := false
		for j := range b.Columns {
			if b.Columns[j].Name == nc.Name {
				b.Columns[j] = col
				replaced = true
				break
			}
		}
		if !replaced {
			b.Columns = append(b.Columns, col)
		}
	}
	return b, nil
}

func (d *Dialect) lowerJoin(_ *relq.LowerContext, node relq.Expr, children []*relq.Fragment) (*relq.Fragment, error) {
	n := node.(*relq.JoinExpr)
	if _, ok := d.JoinSyntax(n.How); !ok {
		return nil, fmt.Errorf("%s: %s join is not supported", d.Name, n.How)
	}
	left, right := children[0], children[1]
	const la, ra = "t0", "t1"

	onSet := make(map[string]bool, len(n.On))
	for _, c := range n.On {
		onSet[c] = true
	}
	leftSchema := n.Left.Schema()

	cols := make([]relq.ColumnSQL, 0, len(n.Out.Columns))
	for _, c := range n.Out.Columns {
		q := d.Quote(c.Name)
		var sql string
		switch {
		case onSet[c.Name] && n.How == relq.OuterJoin:
			sql = "COALESCE(" + la + "." + q + ", " + ra + "." + q + ")"
		case onSet[c.Name] && n.How == relq.RightJoin:
			sql = ra + "." + q
		case onSet[c.Name]:
			sql = la + "." + q
		default:
			if _, fromLeft := leftSchema.Column(c.Name); fromLeft {
				sql = la + "." + q
			} else {
				sql = ra + "." + q
			}
		}
		cols = append(cols, relq.ColumnSQL{Name: c.Name, Expr: relq.SQLExpr{SQL: sql}})
	}

	jf := &relq.Fragment{
		Join: &relq.JoinSQL{
			How:        n.How,
			Left:       left,
			Right:      right,
			LeftAlias:  la,
			RightAlias: ra,
			On:         n.On,
		},
		Columns: cols,
	}
	// Wrapping keeps the invariant that fragments with closed scopes expose
	// plain output names, so downstream composition never sees a join alias.
	return d.wrap(jf), nil
}

func (d *Dialect) lowerConcat(_ *relq.LowerContext, node relq.Expr, children []*relq.Fragment) (*relq.Fragment, error) {
	n := node.(*relq.ConcatExpr)
	if n.Axis != 0 {
		return nil, &relq.InvalidAxisError{Axis: n.Axis}
	}
	names := n.Out.Names()
	parts := make([]*relq.Fragment, len(children))
	for i, ch := range children {
		p := d.edit(d.asSelect(ch))
		// Union operands are unordered multisets; ordering applies to the
		// concatenation as a whole, via Sort over the concat.
		p.Ordering = nil
		cols := make([]relq.ColumnSQL, len(names))
		for j, name := range names {
			c, ok := p.ColumnNamed(name)
			if !ok {
				return nil, fmt.Errorf("render: no column %q in concat operand %d", name, i)
			}
			cols[j] = c
		}
		p.Columns = cols
		parts[i] = p
	}
	return &relq.Fragment{Union: parts, Columns: d.plainColumns(names)}, nil
}

func (d *Dialect) lowerSort(_ *relq.LowerContext, node relq.Expr, children []*relq.Fragment) (*relq.Fragment, error) {
	n := node.(*relq.SortExpr)
	base := children[0]

	var b *relq.Fragment
	switch {
	case base.Composable():
		b = base.Clone()
	case base.Union != nil:
		// ORDER BY after the last operand orders the whole union.
		b = base.Clone()
	default:
		b = d.wrap(base)
	}
	ord := make([]relq.OrderSQL, len(n.Keys))
	for i, k := range n.Keys {
		ord[i] = relq.OrderSQL{SQL: d.Quote(k.Column), Direction: k.Direction}
	}
	b.Ordering = ord
	return b, nil
}

func (d *Dialect) lowerDistinct(_ *relq.LowerContext, node relq.Expr, children []*relq.Fragment) (*relq.Fragment, error) {
	n := node.(*relq.DistinctExpr)
	base := children[0]

	if len(n.On) == 0 {
		b := d.edit(base)
		b.Distinct = true
		return b, nil
	}

	// Subset distinct. One row survives per combination of the On columns,
	// chosen by the declared ordering, ascending on the subset when none is
	// declared.
	w := d.wrap(base)
	declared := w.Ordering
	w.Ordering = nil

	ord := make([]relq.OrderSQL, 0, len(n.On)+len(declared))
	onQuoted := make(map[string]bool, len(n.On))
	for _, c := range n.On {
		q := d.Quote(c)
		onQuoted[q] = true
		dir := relq.ASC
		for _, k := range declared {
			if k.SQL == q {
				dir = k.Direction
				break
			}
		}
		ord = append(ord, relq.OrderSQL{SQL: q, Direction: dir})
	}
	for _, k := range declared {
		if !onQuoted[k.SQL] {
			ord = append(ord, k)
		}
	}

	if d.DistinctOn {
		w.DistinctOn = append([]string(nil), n.On...)
		w.Ordering = ord
		return w, nil
	}

	// Emulation: rank rows within each duplicate group and keep the first.
	parts := make([]string, len(n.On))
	for i, c := range n.On {
		parts[i] = d.Quote(c)
	}
	rank := relq.SQLExpr{
		SQL:      "ROW_NUMBER() OVER (PARTITION BY " + strings.Join(parts, ", ") + " ORDER BY " + orderTerms(ord) + ")",
		Windowed: true,
	}
	w.Columns = append(w.Columns, relq.ColumnSQL{Name: "_rank", Expr: rank})

	outer := d.wrap(w)
	outer.Filters = append(outer.Filters, relq.SQLExpr{SQL: d.Quote("_rank") + " = 1"})
	outer.Columns = outer.Columns[:len(outer.Columns)-1]
	outer.Ordering = ord
	return outer, nil
}

func (d *Dialect) lowerShift(_ *relq.LowerContext, node relq.Expr, children []*relq.Fragment) (*relq.Fragment, error) {
	n := node.(*relq.ShiftExpr)
	child := children[0]
	if child.Col == nil {
		return nil, fmt.Errorf("render: shift operand did not lower to a column expression")
	}
	if n.N == 0 {
		return child, nil
	}

	fn, off := "LAG", n.N
	if n.N < 0 {
		fn, off = "LEAD", -n.N
	}

	var over string
	src := child.Source
	switch {
	case src != nil && len(src.Ordering) > 0:
		over = "ORDER BY " + orderTerms(src.Ordering)
	case src != nil && d.RowOrder != "":
		if _, ok := src.BaseTable(); ok {
			over = "ORDER BY " + d.RowOrder
		}
	}
	if over == "" && d.WindowOrder != "" {
		over = "ORDER BY " + d.WindowOrder
	}

	expr := relq.SQLExpr{
		SQL:      fmt.Sprintf("%s(%s, %d) OVER (%s)", fn, child.Col.SQL, off, over),
		Args:     append([]any(nil), child.Col.Args...),
		Windowed: true,
	}
	return &relq.Fragment{Col: &expr, Name: child.Name, Source: src}, nil
}

func (d *Dialect) lowerCoerce(_ *relq.LowerContext, node relq.Expr, children []*relq.Fragment) (*relq.Fragment, error) {
	n := node.(*relq.CoerceExpr)
	child := children[0]
	if child.Col == nil {
		return nil, fmt.Errorf("render: coerce operand did not lower to a column expression")
	}
	tname, ok := d.CastType(n.To)
	if !ok {
		return nil, fmt.Errorf("%s: no cast target for %s", d.Name, n.To)
	}
	expr := relq.SQLExpr{
		SQL:      "CAST(" + child.Col.SQL + " AS " + tname + ")",
		Args:     append([]any(nil), child.Col.Args...),
		Windowed: child.Col.Windowed,
	}
	return &relq.Fragment{Col: &expr, Name: child.Name, Source: child.Source}, nil
}

func (d *Dialect) lowerLiteral(_ *relq.LowerContext, node relq.Expr, _ []*relq.Fragment) (*relq.Fragment, error) {
	n := node.(*relq.LiteralExpr)
	v := n.Value
	if iv, ok := v.(int); ok {
		v = int64(iv)
	}
	return &relq.Fragment{Col: &relq.SQLExpr{SQL: "?", Args: []any{v}}}, nil
}

func (d *Dialect) lowerBinOp(_ *relq.LowerContext, node relq.Expr, children []*relq.Fragment) (*relq.Fragment, error) {
	n := node.(*relq.BinExpr)
	l, r := children[0], children[1]
	if l.Col == nil || r.Col == nil {
		return nil, fmt.Errorf("render: aggregated operands do not compose; execute them separately")
	}
	src, err := combineSource(l, r)
	if err != nil {
		return nil, err
	}
	name := n.Out.Columns[0].Name

	lt := n.Left.Schema().Columns[0].Type
	rt := n.Right.Schema().Columns[0].Type
	if (n.Op == relq.OpAdd || n.Op == relq.OpSub) && (lt == relq.Duration || rt == relq.Duration) {
		expr, err := d.temporal(n, l, r, lt)
		if err != nil {
			return nil, err
		}
		return &relq.Fragment{Col: expr, Name: name, Source: src}, nil
	}

	args := append(append([]any(nil), l.Col.Args...), r.Col.Args...)
	var sql string
	switch n.Op {
	case relq.OpPow:
		sql = d.PowFunc + "(" + l.Col.SQL + ", " + r.Col.SQL + ")"
	case relq.OpAtan2:
		sql = d.Atan2Func + "(" + l.Col.SQL + ", " + r.Col.SQL + ")"
	default:
		op := string(n.Op)
		if n.Op == relq.OpNe {
			op = "<>"
		}
		sql = "(" + l.Col.SQL + " " + op + " " + r.Col.SQL + ")"
	}
	expr := relq.SQLExpr{SQL: sql, Args: args, Windowed: l.Col.Windowed || r.Col.Windowed}
	return &relq.Fragment{Col: &expr, Name: name, Source: src}, nil
}

// temporal renders datetime ± duration through the dialect's date arithmetic.
// The duration side must be a literal: its magnitude becomes part of the
// dialect's interval syntax rather than a comparable column value.
func (d *Dialect) temporal(n *relq.BinExpr, l, r *relq.Fragment, lt relq.ScalarType) (*relq.SQLExpr, error) {
	var x *relq.SQLExpr
	var durExpr relq.Expr
	sub := n.Op == relq.OpSub
	if lt == relq.Duration {
		x, durExpr = r.Col, n.Left
	} else {
		x, durExpr = l.Col, n.Right
	}
	lit, ok := durExpr.(*relq.LiteralExpr)
	if !ok {
		return nil, fmt.Errorf("render: duration operand must be a literal")
	}
	dur, ok := lit.Value.(time.Duration)
	if !ok {
		return nil, fmt.Errorf("render: duration literal holds %T", lit.Value)
	}
	expr := d.DateAdd(*x, dur, sub)
	return &expr, nil
}

func (d *Dialect) lowerUnaryMath(_ *relq.LowerContext, node relq.Expr, children []*relq.Fragment) (*relq.Fragment, error) {
	n := node.(*relq.UnaryExpr)
	child := children[0]
	if child.Col == nil {
		return nil, fmt.Errorf("render: math operand did not lower to a column expression")
	}
	var sql string
	if n.Fn == relq.FnNeg {
		sql = "(-" + child.Col.SQL + ")"
	} else {
		fname, ok := d.MathFunc(n.Fn)
		if !ok {
			return nil, fmt.Errorf("%s: math function %s is not supported", d.Name, n.Fn)
		}
		sql = fname + "(" + child.Col.SQL + ")"
	}
	expr := relq.SQLExpr{
		SQL:      sql,
		Args:     append([]any(nil), child.Col.Args...),
		Windowed: child.Col.Windowed,
	}
	return &relq.Fragment{Col: &expr, Name: child.Name, Source: child.Source}, nil
}

func (d *Dialect) lowerIsNaN(_ *relq.LowerContext, node relq.Expr, children []*relq.Fragment) (*relq.Fragment, error) {
	n := node.(*relq.IsNaNExpr)
	child := children[0]
	if child.Col == nil {
		return nil, fmt.Errorf("render: isnan operand did not lower to a column expression")
	}
	expr := relq.SQLExpr{
		SQL:      "(" + child.Col.SQL + " = " + d.NaN + ")",
		Args:     append([]any(nil), child.Col.Args...),
		Windowed: child.Col.Windowed,
	}
	return &relq.Fragment{Col: &expr, Name: n.Out.Columns[0].Name, Source: child.Source}, nil
}

func (d *Dialect) lowerReduce(_ *relq.LowerContext, node relq.Expr, children []*relq.Fragment) (*relq.Fragment, error) {
	n := node.(*relq.ReduceExpr)
	operand := d.asSelect(children[0])
	if len(operand.Columns) != 1 {
		return nil, fmt.Errorf("render: reduction operand must be a single column")
	}
	inner := operand.Columns[0].Name

	var agg string
	switch n.Fn {
	case relq.ReduceSum:
		agg = "SUM"
	case relq.ReduceCount:
		agg = "COUNT"
	case relq.ReduceMin:
		agg = "MIN"
	case relq.ReduceMax:
		agg = "MAX"
	case relq.ReduceMean:
		agg = "AVG"
	default:
		return nil, fmt.Errorf("render: unknown reduction %q", n.Fn)
	}

	w := d.wrap(operand)
	w.Ordering = nil
	out := n.Out.Columns[0].Name
	w.Columns = []relq.ColumnSQL{{
		Name: out,
		Expr: relq.SQLExpr{SQL: agg + "(" + d.Quote(inner) + ")"},
	}}
	return w, nil
}

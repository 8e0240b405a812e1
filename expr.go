package relq

import (
	"fmt"
	"time"
)

// Expr represents a node in the expression algebra.
//
// This is a sealed interface: only types in this package implement it.
// Nodes are constructed once, carry their inferred output schema, and are
// immutable afterward. Subtrees may be shared between parents (the tree is
// a DAG at most); a node never references an ancestor.
type Expr interface {
	Kind() Kind
	Schema() Schema
	Children() []Expr
	exprNode()
}

// Symbol is a named leaf bound to an external schema: the data behind this
// name has this shape. Many nodes may share one symbol; bindings at lowering
// time attach it to a backend-resident table.
type Symbol struct {
	Name string
	Out  Schema
}

// NewSymbol declares a symbol with the given schema.
func NewSymbol(name string, schema Schema) *Symbol {
	return &Symbol{Name: name, Out: schema}
}

func (s *Symbol) Kind() Kind       { return KindSymbol }
func (s *Symbol) Schema() Schema   { return s.Out }
func (s *Symbol) Children() []Expr { return nil }
func (s *Symbol) exprNode()        {}

// FieldExpr selects a single column from a record-shaped expression.
type FieldExpr struct {
	Base Expr
	Name string
	Out  Schema
}

// Field selects the named column of base.
func Field(base Expr, name string) (*FieldExpr, error) {
	if !base.Schema().IsRecord() {
		return nil, &SchemaError{Op: "field", Detail: "base expression is not record-shaped"}
	}
	col, ok := base.Schema().Column(name)
	if !ok {
		return nil, &SchemaError{Op: "field", Detail: fmt.Sprintf("no column %q", name)}
	}
	return &FieldExpr{
		Base: base,
		Name: name,
		Out:  ScalarOf(col.Name, col.Type, col.Nullable),
	}, nil
}

func (f *FieldExpr) Kind() Kind       { return KindField }
func (f *FieldExpr) Schema() Schema   { return f.Out }
func (f *FieldExpr) Children() []Expr { return []Expr{f.Base} }
func (f *FieldExpr) exprNode()        {}

// ProjectExpr narrows a record-shaped expression to a subset of its columns.
type ProjectExpr struct {
	Base  Expr
	Names []string
	Out   Schema
}

// Project keeps only the named columns of base, in the given order.
func Project(base Expr, names ...string) (*ProjectExpr, error) {
	if !base.Schema().IsRecord() {
		return nil, &SchemaError{Op: "project", Detail: "base expression is not record-shaped"}
	}
	if len(names) == 0 {
		return nil, &SchemaError{Op: "project", Detail: "at least one column is required"}
	}
	cols := make([]Column, len(names))
	for i, n := range names {
		c, ok := base.Schema().Column(n)
		if !ok {
			return nil, &SchemaError{Op: "project", Detail: fmt.Sprintf("no column %q", n)}
		}
		cols[i] = c
	}
	return &ProjectExpr{Base: base, Names: names, Out: Record(cols...)}, nil
}

func (p *ProjectExpr) Kind() Kind       { return KindProject }
func (p *ProjectExpr) Schema() Schema   { return p.Out }
func (p *ProjectExpr) Children() []Expr { return []Expr{p.Base} }
func (p *ProjectExpr) exprNode()        {}

// FilterExpr keeps the rows of Base for which Pred holds.
type FilterExpr struct {
	Base Expr
	Pred Expr
	Out  Schema
}

// Filter selects the rows of base matching the boolean predicate.
func Filter(base, pred Expr) (*FilterExpr, error) {
	if !base.Schema().IsRecord() {
		return nil, &SchemaError{Op: "filter", Detail: "base expression is not record-shaped"}
	}
	ps := pred.Schema()
	if ps.IsRecord() || ps.only().Type != Bool {
		return nil, &SchemaError{Op: "filter", Detail: "predicate must be a boolean expression"}
	}
	return &FilterExpr{Base: base, Pred: pred, Out: base.Schema()}, nil
}

func (f *FilterExpr) Kind() Kind       { return KindFilter }
func (f *FilterExpr) Schema() Schema   { return f.Out }
func (f *FilterExpr) Children() []Expr { return []Expr{f.Base, f.Pred} }
func (f *FilterExpr) exprNode()        {}

// Named pairs an output column name with the expression deriving it.
type Named struct {
	Name string
	Expr Expr
}

// TransformExpr extends a record with derived columns. Existing names are
// overridden in place; new names append in mapping order.
type TransformExpr struct {
	Base Expr
	Cols []Named
	Out  Schema
}

// Transform extends base with derived columns.
func Transform(base Expr, cols ...Named) (*TransformExpr, error) {
	if !base.Schema().IsRecord() {
		return nil, &SchemaError{Op: "transform", Detail: "base expression is not record-shaped"}
	}
	if len(cols) == 0 {
		return nil, &SchemaError{Op: "transform", Detail: "at least one derived column is required"}
	}
	out := make([]Column, len(base.Schema().Columns))
	copy(out, base.Schema().Columns)
	for _, nc := range cols {
		s := nc.Expr.Schema()
		if s.IsRecord() {
			return nil, &SchemaError{Op: "transform", Detail: fmt.Sprintf("column %q is not scalar-valued", nc.Name)}
		}
		col := Column{Name: nc.Name, Type: s.only().Type, Nullable: s.only().Nullable}
		replaced := false
		for i := range out {
			if out[i].Name == nc.Name {
				out[i] = col
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, col)
		}
	}
	return &TransformExpr{Base: base, Cols: cols, Out: Record(out...)}, nil
}

func (t *TransformExpr) Kind() Kind     { return KindTransform }
func (t *TransformExpr) Schema() Schema { return t.Out }
func (t *TransformExpr) Children() []Expr {
	kids := make([]Expr, 0, len(t.Cols)+1)
	kids = append(kids, t.Base)
	for _, c := range t.Cols {
		kids = append(kids, c.Expr)
	}
	return kids
}
func (t *TransformExpr) exprNode() {}

// JoinExpr joins two record-shaped expressions on equality columns.
type JoinExpr struct {
	Left  Expr
	Right Expr
	How   JoinKind
	On    []string
	Out   Schema
}

// Join combines left and right on the declared equality columns. SQL
// equality semantics apply: a missing value never matches another missing
// value, and unmatched rows from an outer side appear with missing-value
// fill for the opposite side's columns.
func Join(left, right Expr, how JoinKind, on ...string) (*JoinExpr, error) {
	out, err := MergeForJoin(left.Schema(), right.Schema(), how, on)
	if err != nil {
		return nil, err
	}
	return &JoinExpr{Left: left, Right: right, How: how, On: on, Out: out}, nil
}

func (j *JoinExpr) Kind() Kind       { return KindJoin }
func (j *JoinExpr) Schema() Schema   { return j.Out }
func (j *JoinExpr) Children() []Expr { return []Expr{j.Left, j.Right} }
func (j *JoinExpr) exprNode()        {}

// ConcatExpr concatenates expressions along an axis. Axis 0 denotes
// multiset union of rows; duplicates are kept.
type ConcatExpr struct {
	Parts []Expr
	Axis  int
	Out   Schema
}

// Concat concatenates two or more expressions along the given axis. Axis 0
// requires identical schemas. Axis 1 requires scalar-shaped inputs; for
// record-shaped inputs use a merge/join instead.
func Concat(axis int, parts ...Expr) (*ConcatExpr, error) {
	schemas := make([]Schema, len(parts))
	for i, p := range parts {
		schemas[i] = p.Schema()
	}
	out, err := MergeForConcat(schemas, axis)
	if err != nil {
		return nil, err
	}
	return &ConcatExpr{Parts: parts, Axis: axis, Out: out}, nil
}

func (c *ConcatExpr) Kind() Kind       { return KindConcat }
func (c *ConcatExpr) Schema() Schema   { return c.Out }
func (c *ConcatExpr) Children() []Expr { return c.Parts }
func (c *ConcatExpr) exprNode()        {}

// SortExpr orders the rows of a record-shaped expression.
type SortExpr struct {
	Base Expr
	Keys []SortKey
	Out  Schema
}

// Sort orders base by the given keys. Key order and directions are
// preserved verbatim in the emitted query.
func Sort(base Expr, keys ...SortKey) (*SortExpr, error) {
	if !base.Schema().IsRecord() {
		return nil, &SchemaError{Op: "sort", Detail: "base expression is not record-shaped"}
	}
	if len(keys) == 0 {
		return nil, &SchemaError{Op: "sort", Detail: "at least one sort key is required"}
	}
	for _, k := range keys {
		if _, ok := base.Schema().Column(k.Column); !ok {
			return nil, &SchemaError{Op: "sort", Detail: fmt.Sprintf("no column %q", k.Column)}
		}
	}
	return &SortExpr{Base: base, Keys: keys, Out: base.Schema()}, nil
}

func (s *SortExpr) Kind() Kind       { return KindSort }
func (s *SortExpr) Schema() Schema   { return s.Out }
func (s *SortExpr) Children() []Expr { return []Expr{s.Base} }
func (s *SortExpr) exprNode()        {}

// DistinctExpr removes duplicate rows, optionally considering only a column
// subset with ties broken by the declared sort order.
type DistinctExpr struct {
	Base Expr
	On   []string
	Out  Schema
}

// Distinct removes duplicate rows of base. With columns given, one row is
// kept per distinct combination of those columns, chosen by the base's
// declared ordering (ascending on the subset when no ordering is declared).
func Distinct(base Expr, on ...string) (*DistinctExpr, error) {
	if !base.Schema().IsRecord() {
		return nil, &SchemaError{Op: "distinct", Detail: "base expression is not record-shaped"}
	}
	for _, n := range on {
		if _, ok := base.Schema().Column(n); !ok {
			return nil, &SchemaError{Op: "distinct", Detail: fmt.Sprintf("no column %q", n)}
		}
	}
	return &DistinctExpr{Base: base, On: on, Out: base.Schema()}, nil
}

func (d *DistinctExpr) Kind() Kind       { return KindDistinct }
func (d *DistinctExpr) Schema() Schema   { return d.Out }
func (d *DistinctExpr) Children() []Expr { return []Expr{d.Base} }
func (d *DistinctExpr) exprNode()        {}

// ShiftExpr lags (n>0) or leads (n<0) a column by n rows over the source's
// canonical row order. Boundary rows become missing, so the output type is
// forced nullable.
type ShiftExpr struct {
	Base Expr
	N    int
	Out  Schema
}

// Shift displaces the column by n positions. Shift(x, 0) is the identity.
func Shift(base Expr, n int) (*ShiftExpr, error) {
	s := base.Schema()
	if s.IsRecord() {
		return nil, &SchemaError{Op: "shift", Detail: "shift applies to a single column"}
	}
	col := s.only()
	nullable := col.Nullable || n != 0
	return &ShiftExpr{Base: base, N: n, Out: ScalarOf(col.Name, col.Type, nullable)}, nil
}

func (s *ShiftExpr) Kind() Kind       { return KindShift }
func (s *ShiftExpr) Schema() Schema   { return s.Out }
func (s *ShiftExpr) Children() []Expr { return []Expr{s.Base} }
func (s *ShiftExpr) exprNode()        {}

// CoerceExpr casts a column to a target scalar type.
type CoerceExpr struct {
	Base Expr
	To   ScalarType
	Out  Schema
}

// Coerce casts the column to the target type. Boolean to integer maps
// true to 1 and false to 0.
func Coerce(base Expr, to ScalarType) (*CoerceExpr, error) {
	s := base.Schema()
	if s.IsRecord() {
		return nil, &SchemaError{Op: "coerce", Detail: "coerce applies to a single column"}
	}
	col := s.only()
	return &CoerceExpr{Base: base, To: to, Out: ScalarOf(col.Name, to, col.Nullable)}, nil
}

func (c *CoerceExpr) Kind() Kind       { return KindCoerce }
func (c *CoerceExpr) Schema() Schema   { return c.Out }
func (c *CoerceExpr) Children() []Expr { return []Expr{c.Base} }
func (c *CoerceExpr) exprNode()        {}

// LiteralExpr embeds a constant. Literals always travel to the backend as
// query parameters, never interpolated into SQL text.
type LiteralExpr struct {
	Value any
	Out   Schema
}

// Lit wraps a Go value as a literal expression. Supported: bool, int,
// int32, int64, float64, string, time.Time, time.Duration.
func Lit(v any) (*LiteralExpr, error) {
	var t ScalarType
	switch v.(type) {
	case bool:
		t = Bool
	case int32:
		t = Int32
	case int, int64:
		t = Int64
	case float64:
		t = Float64
	case string:
		t = String
	case time.Time:
		t = Datetime
	case time.Duration:
		t = Duration
	default:
		return nil, &SchemaError{Op: "literal", Detail: fmt.Sprintf("unsupported literal type %T", v)}
	}
	return &LiteralExpr{Value: v, Out: ScalarOf("", t, false)}, nil
}

func (l *LiteralExpr) Kind() Kind       { return KindLiteral }
func (l *LiteralExpr) Schema() Schema   { return l.Out }
func (l *LiteralExpr) Children() []Expr { return nil }
func (l *LiteralExpr) exprNode()        {}

// BinExpr applies a binary operator to two scalar-shaped expressions.
type BinExpr struct {
	Op    BinOp
	Left  Expr
	Right Expr
	Out   Schema
}

func newBin(op BinOp, left, right Expr) (*BinExpr, error) {
	ls, rs := left.Schema(), right.Schema()
	if ls.IsRecord() || rs.IsRecord() {
		return nil, &SchemaError{Op: string(op), Detail: "operands must be scalar-valued"}
	}
	lc, rc := ls.only(), rs.only()
	nullable := lc.Nullable || rc.Nullable
	name := lc.Name
	if name == "" {
		name = rc.Name
	}

	var t ScalarType
	switch {
	case op.Logical():
		if lc.Type != Bool || rc.Type != Bool {
			return nil, &SchemaError{Op: string(op), Detail: "operands must be boolean"}
		}
		t = Bool
	case op.Comparison():
		if lc.Type != rc.Type && !(lc.Type.Numeric() && rc.Type.Numeric()) {
			return nil, &SchemaError{
				Op:     string(op),
				Detail: fmt.Sprintf("cannot compare %s with %s", lc.Type, rc.Type),
			}
		}
		t = Bool
	case op == OpDiv, op == OpPow, op == OpAtan2:
		if !lc.Type.Numeric() || !rc.Type.Numeric() {
			return nil, &SchemaError{Op: string(op), Detail: "operands must be numeric"}
		}
		t = Float64
	default: // +, -, *
		switch {
		case lc.Type.Numeric() && rc.Type.Numeric():
			t = promote(lc.Type, rc.Type)
		case lc.Type == Datetime && rc.Type == Duration && (op == OpAdd || op == OpSub):
			t = Datetime
		case lc.Type == Duration && rc.Type == Datetime && op == OpAdd:
			t = Datetime
		case lc.Type == Datetime && rc.Type == Datetime && op == OpSub:
			t = Duration
		default:
			return nil, &SchemaError{
				Op:     string(op),
				Detail: fmt.Sprintf("cannot apply %s to %s and %s", op, lc.Type, rc.Type),
			}
		}
	}
	return &BinExpr{Op: op, Left: left, Right: right, Out: ScalarOf(name, t, nullable)}, nil
}

// Arithmetic constructors.
func Add(l, r Expr) (*BinExpr, error)   { return newBin(OpAdd, l, r) }
func Sub(l, r Expr) (*BinExpr, error)   { return newBin(OpSub, l, r) }
func Mul(l, r Expr) (*BinExpr, error)   { return newBin(OpMul, l, r) }
func Div(l, r Expr) (*BinExpr, error)   { return newBin(OpDiv, l, r) }
func Pow(l, r Expr) (*BinExpr, error)   { return newBin(OpPow, l, r) }
func Atan2(l, r Expr) (*BinExpr, error) { return newBin(OpAtan2, l, r) }

// Comparison constructors.
func Eq(l, r Expr) (*BinExpr, error) { return newBin(OpEq, l, r) }
func Ne(l, r Expr) (*BinExpr, error) { return newBin(OpNe, l, r) }
func Gt(l, r Expr) (*BinExpr, error) { return newBin(OpGt, l, r) }
func Ge(l, r Expr) (*BinExpr, error) { return newBin(OpGe, l, r) }
func Lt(l, r Expr) (*BinExpr, error) { return newBin(OpLt, l, r) }
func Le(l, r Expr) (*BinExpr, error) { return newBin(OpLe, l, r) }

// Boolean connectives.
func And(l, r Expr) (*BinExpr, error) { return newBin(OpAnd, l, r) }
func Or(l, r Expr) (*BinExpr, error)  { return newBin(OpOr, l, r) }

func (b *BinExpr) Kind() Kind       { return KindBinOp }
func (b *BinExpr) Schema() Schema   { return b.Out }
func (b *BinExpr) Children() []Expr { return []Expr{b.Left, b.Right} }
func (b *BinExpr) exprNode()        {}

// UnaryExpr applies a unary math function to a scalar-shaped expression.
type UnaryExpr struct {
	Fn   UnaryFn
	Base Expr
	Out  Schema
}

func newUnary(fn UnaryFn, base Expr) (*UnaryExpr, error) {
	s := base.Schema()
	if s.IsRecord() {
		return nil, &SchemaError{Op: string(fn), Detail: "operand must be scalar-valued"}
	}
	col := s.only()
	if !col.Type.Numeric() {
		return nil, &SchemaError{Op: string(fn), Detail: "operand must be numeric"}
	}
	t := Float64
	if fn == FnAbs || fn == FnNeg {
		t = col.Type
	}
	return &UnaryExpr{Fn: fn, Base: base, Out: ScalarOf(col.Name, t, col.Nullable)}, nil
}

func Sin(x Expr) (*UnaryExpr, error)     { return newUnary(FnSin, x) }
func Cos(x Expr) (*UnaryExpr, error)     { return newUnary(FnCos, x) }
func Tan(x Expr) (*UnaryExpr, error)     { return newUnary(FnTan, x) }
func Sqrt(x Expr) (*UnaryExpr, error)    { return newUnary(FnSqrt, x) }
func Radians(x Expr) (*UnaryExpr, error) { return newUnary(FnRadians, x) }
func Degrees(x Expr) (*UnaryExpr, error) { return newUnary(FnDegrees, x) }
func Abs(x Expr) (*UnaryExpr, error)     { return newUnary(FnAbs, x) }
func Neg(x Expr) (*UnaryExpr, error)     { return newUnary(FnNeg, x) }

func (u *UnaryExpr) Kind() Kind       { return KindUnaryMath }
func (u *UnaryExpr) Schema() Schema   { return u.Out }
func (u *UnaryExpr) Children() []Expr { return []Expr{u.Base} }
func (u *UnaryExpr) exprNode()        {}

// IsNaNExpr tests a floating-point column against the backend's
// not-a-number representation. Missing values and not-a-number are distinct
// concepts: a NULL is never NaN, and this test never answers a NULL check.
// It is its own node kind so backends without a NaN representation fail
// closed at rule lookup.
type IsNaNExpr struct {
	Base Expr
	Out  Schema
}

// IsNaN tests whether the floating-point column holds not-a-number.
func IsNaN(base Expr) (*IsNaNExpr, error) {
	s := base.Schema()
	if s.IsRecord() || s.only().Type != Float64 {
		return nil, &SchemaError{Op: "isnan", Detail: "operand must be a float64 column"}
	}
	col := s.only()
	return &IsNaNExpr{Base: base, Out: ScalarOf(col.Name, Bool, col.Nullable)}, nil
}

func (n *IsNaNExpr) Kind() Kind       { return KindIsNaN }
func (n *IsNaNExpr) Schema() Schema   { return n.Out }
func (n *IsNaNExpr) Children() []Expr { return []Expr{n.Base} }
func (n *IsNaNExpr) exprNode()        {}

// ReduceExpr aggregates a column to a single scalar value.
type ReduceExpr struct {
	Fn   ReduceFn
	Base Expr
	Out  Schema
}

func newReduce(fn ReduceFn, base Expr) (*ReduceExpr, error) {
	s := base.Schema()
	if s.IsRecord() {
		return nil, &SchemaError{Op: string(fn), Detail: "reduction applies to a single column"}
	}
	col := s.only()
	name := string(fn)
	if col.Name != "" {
		name = col.Name + "_" + string(fn)
	}

	var out Column
	switch fn {
	case ReduceCount:
		out = Column{Name: name, Type: Int64}
	case ReduceSum:
		if !col.Type.Numeric() {
			return nil, &SchemaError{Op: string(fn), Detail: "operand must be numeric"}
		}
		t := Int64
		if col.Type == Float64 {
			t = Float64
		}
		// SUM over zero rows yields a missing value.
		out = Column{Name: name, Type: t, Nullable: true}
	case ReduceMean:
		if !col.Type.Numeric() {
			return nil, &SchemaError{Op: string(fn), Detail: "operand must be numeric"}
		}
		out = Column{Name: name, Type: Float64, Nullable: true}
	case ReduceMin, ReduceMax:
		out = Column{Name: name, Type: col.Type, Nullable: true}
	default:
		return nil, &SchemaError{Op: string(fn), Detail: "unknown reduction"}
	}
	return &ReduceExpr{Fn: fn, Base: base, Out: Schema{Columns: []Column{out}, Scalar: true}}, nil
}

func Sum(x Expr) (*ReduceExpr, error)   { return newReduce(ReduceSum, x) }
func Count(x Expr) (*ReduceExpr, error) { return newReduce(ReduceCount, x) }
func Min(x Expr) (*ReduceExpr, error)   { return newReduce(ReduceMin, x) }
func Max(x Expr) (*ReduceExpr, error)   { return newReduce(ReduceMax, x) }
func Mean(x Expr) (*ReduceExpr, error)  { return newReduce(ReduceMean, x) }

func (r *ReduceExpr) Kind() Kind       { return KindReduce }
func (r *ReduceExpr) Schema() Schema   { return r.Out }
func (r *ReduceExpr) Children() []Expr { return []Expr{r.Base} }
func (r *ReduceExpr) exprNode()        {}

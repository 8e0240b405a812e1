package relq

// Kind identifies an algebra node variant. The registry keys lowering rules
// by (Kind, Dialect).
type Kind string

const (
	KindSymbol    Kind = "symbol"
	KindField     Kind = "field"
	KindProject   Kind = "project"
	KindFilter    Kind = "filter"
	KindTransform Kind = "transform"
	KindJoin      Kind = "join"
	KindConcat    Kind = "concat"
	KindSort      Kind = "sort"
	KindDistinct  Kind = "distinct"
	KindShift     Kind = "shift"
	KindCoerce    Kind = "coerce"
	KindLiteral   Kind = "literal"
	KindBinOp     Kind = "binop"
	KindUnaryMath Kind = "unarymath"
	KindIsNaN     Kind = "isnan"
	KindReduce    Kind = "reduce"
)

// Dialect identifies a backend SQL dialect. Provider packages register their
// lowering rules under their dialect name.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
	MariaDB  Dialect = "mariadb"
	MSSQL    Dialect = "mssql"
)

// Direction represents sort direction.
type Direction string

const (
	ASC  Direction = "ASC"
	DESC Direction = "DESC"
)

// SortKey names a column and the direction it sorts in.
type SortKey struct {
	Column    string
	Direction Direction
}

// Asc builds an ascending sort key.
func Asc(column string) SortKey { return SortKey{Column: column, Direction: ASC} }

// Desc builds a descending sort key.
func Desc(column string) SortKey { return SortKey{Column: column, Direction: DESC} }

// JoinKind represents the join variant. Columns contributed by a side that
// can go unmatched are promoted to nullable in the merged schema.
type JoinKind string

const (
	InnerJoin JoinKind = "inner"
	LeftJoin  JoinKind = "left"
	RightJoin JoinKind = "right"
	OuterJoin JoinKind = "outer"
)

// BinOp represents a binary operator over scalar expressions.
type BinOp string

const (
	OpAdd   BinOp = "+"
	OpSub   BinOp = "-"
	OpMul   BinOp = "*"
	OpDiv   BinOp = "/"
	OpPow   BinOp = "pow"
	OpAtan2 BinOp = "atan2"

	OpEq BinOp = "="
	OpNe BinOp = "!="
	OpGt BinOp = ">"
	OpGe BinOp = ">="
	OpLt BinOp = "<"
	OpLe BinOp = "<="

	OpAnd BinOp = "AND"
	OpOr  BinOp = "OR"
)

// Arithmetic reports whether the operator produces a numeric (or temporal)
// value rather than a boolean.
func (op BinOp) Arithmetic() bool {
	switch op {
	case OpAdd, OpSub, OpMul, OpDiv, OpPow, OpAtan2:
		return true
	}
	return false
}

// Comparison reports whether the operator compares its operands.
func (op BinOp) Comparison() bool {
	switch op {
	case OpEq, OpNe, OpGt, OpGe, OpLt, OpLe:
		return true
	}
	return false
}

// Logical reports whether the operator is a boolean connective.
func (op BinOp) Logical() bool {
	return op == OpAnd || op == OpOr
}

// UnaryFn represents a unary math function over a scalar expression.
type UnaryFn string

const (
	FnSin     UnaryFn = "sin"
	FnCos     UnaryFn = "cos"
	FnTan     UnaryFn = "tan"
	FnSqrt    UnaryFn = "sqrt"
	FnRadians UnaryFn = "radians"
	FnDegrees UnaryFn = "degrees"
	FnAbs     UnaryFn = "abs"
	FnNeg     UnaryFn = "neg"
)

// ReduceFn represents an aggregate reduction.
type ReduceFn string

const (
	ReduceSum   ReduceFn = "sum"
	ReduceCount ReduceFn = "count"
	ReduceMin   ReduceFn = "min"
	ReduceMax   ReduceFn = "max"
	ReduceMean  ReduceFn = "mean"
)

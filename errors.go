package relq

import "fmt"

// SchemaError reports incompatible or missing columns during schema
// inference or merging. It is always surfaced, never silently coerced.
type SchemaError struct {
	Op     string // the operation being typed: "join", "concat", "field", ...
	Detail string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error in %s: %s", e.Op, e.Detail)
}

// InvalidAxisError reports a concatenation along an axis a SQL backend
// cannot express. The message names the merge/join path as the alternative.
type InvalidAxisError struct {
	Axis int
}

func (e *InvalidAxisError) Error() string {
	return fmt.Sprintf(
		"cannot concatenate along axis=%d against a SQL backend; use 'merge' (a column-wise join) instead",
		e.Axis)
}

// UnsupportedOperationError indicates no lowering rule is registered for a
// (node kind, dialect) pair. Lookups fail closed; there is no fallback rule.
type UnsupportedOperationError struct {
	Kind    Kind
	Dialect Dialect
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("no lowering rule for node kind %q on dialect %q", e.Kind, e.Dialect)
}

// UnboundSymbolError indicates a symbol in the expression has no table
// binding. Raised before any backend call is attempted.
type UnboundSymbolError struct {
	Name string
}

func (e *UnboundSymbolError) Error() string {
	return fmt.Sprintf("symbol %q has no table binding", e.Name)
}

// ScalarShapeError indicates scalar extraction ran against a result whose
// row count is not exactly one. Zero rows is an error, not a default value.
type ScalarShapeError struct {
	Rows int
}

func (e *ScalarShapeError) Error() string {
	return fmt.Sprintf("scalar extraction requires exactly one row, got %d", e.Rows)
}

package relq

import (
	"fmt"
	"strings"
)

// ScalarType enumerates the column types the compiler understands. The
// string values follow datashape spelling so Coerce targets round-trip
// through ParseScalarType.
type ScalarType string

const (
	Bool     ScalarType = "bool"
	Int32    ScalarType = "int32"
	Int64    ScalarType = "int64"
	Float64  ScalarType = "float64"
	String   ScalarType = "string"
	Datetime ScalarType = "datetime"
	Duration ScalarType = "duration"
)

// ParseScalarType resolves a type name to a ScalarType.
func ParseScalarType(s string) (ScalarType, error) {
	switch t := ScalarType(strings.ToLower(s)); t {
	case Bool, Int32, Int64, Float64, String, Datetime, Duration:
		return t, nil
	default:
		return "", fmt.Errorf("unknown scalar type %q", s)
	}
}

// Numeric reports whether t participates in arithmetic promotion.
func (t ScalarType) Numeric() bool {
	switch t {
	case Int32, Int64, Float64:
		return true
	}
	return false
}

// promote returns the wider of two numeric types.
func promote(a, b ScalarType) ScalarType {
	if a == Float64 || b == Float64 {
		return Float64
	}
	if a == Int64 || b == Int64 {
		return Int64
	}
	return Int32
}

// Column describes one named, typed, nullable-aware column.
type Column struct {
	Name     string
	Type     ScalarType
	Nullable bool
}

// Promote returns the column marked nullable. Idempotent.
func (c Column) Promote() Column {
	c.Nullable = true
	return c
}

// Schema describes the shape of an expression's output: an ordered set of
// named columns (record shape), or a single column (scalar/columnar shape)
// for column- and scalar-valued expressions.
//
// Every node's schema is derived statically from its children's schemas;
// nothing is executed during inference.
type Schema struct {
	Columns []Column
	Scalar  bool
}

// Record builds a record-shaped schema from ordered columns.
func Record(cols ...Column) Schema {
	return Schema{Columns: cols}
}

// ScalarOf builds a single-column (scalar/columnar) schema. The name may be
// empty for anonymous values such as literals.
func ScalarOf(name string, t ScalarType, nullable bool) Schema {
	return Schema{
		Columns: []Column{{Name: name, Type: t, Nullable: nullable}},
		Scalar:  true,
	}
}

// IsRecord reports whether the schema is record-shaped.
func (s Schema) IsRecord() bool { return !s.Scalar }

// Column looks up a column by name.
func (s Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Names returns the column names in schema order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// only returns the single column of a scalar-shaped schema.
func (s Schema) only() Column {
	return s.Columns[0]
}

// sameShape reports whether two schemas agree on column names and types,
// ignoring nullability. Axis-0 concatenation requires this.
func (s Schema) sameShape(o Schema) bool {
	if s.Scalar != o.Scalar || len(s.Columns) != len(o.Columns) {
		return false
	}
	for i := range s.Columns {
		if s.Columns[i].Name != o.Columns[i].Name || s.Columns[i].Type != o.Columns[i].Type {
			return false
		}
	}
	return true
}

// MergeForJoin computes the schema of joining left and right on the given
// equality columns. Join columns must be present on both sides with the same
// type. Columns contributed by a side that can have unmatched rows under the
// join kind are promoted to nullable even when the source column was not.
//
// Output order: join columns (in the declared order), then the remaining
// left columns, then the remaining right columns.
func MergeForJoin(left, right Schema, how JoinKind, on []string) (Schema, error) {
	if left.Scalar || right.Scalar {
		return Schema{}, &SchemaError{Op: "join", Detail: "both sides must be record-shaped"}
	}
	if len(on) == 0 {
		return Schema{}, &SchemaError{Op: "join", Detail: "at least one join column is required"}
	}
	switch how {
	case InnerJoin, LeftJoin, RightJoin, OuterJoin:
	default:
		return Schema{}, &SchemaError{Op: "join", Detail: fmt.Sprintf("unknown join kind %q", how)}
	}

	onSet := make(map[string]bool, len(on))
	var cols []Column
	for _, name := range on {
		lc, lok := left.Column(name)
		rc, rok := right.Column(name)
		if !lok || !rok {
			return Schema{}, &SchemaError{Op: "join", Detail: fmt.Sprintf("join column %q missing from one side", name)}
		}
		if lc.Type != rc.Type {
			return Schema{}, &SchemaError{
				Op:     "join",
				Detail: fmt.Sprintf("join column %q has incompatible types %s and %s", name, lc.Type, rc.Type),
			}
		}
		onSet[name] = true
		key := Column{Name: name, Type: lc.Type, Nullable: lc.Nullable || rc.Nullable}
		if how == OuterJoin {
			key = key.Promote()
		}
		cols = append(cols, key)
	}

	// A side is "loose" when the join kind admits rows with no match on it.
	leftLoose := how == RightJoin || how == OuterJoin
	rightLoose := how == LeftJoin || how == OuterJoin

	for _, c := range left.Columns {
		if onSet[c.Name] {
			continue
		}
		if leftLoose {
			c = c.Promote()
		}
		cols = append(cols, c)
	}
	for _, c := range right.Columns {
		if onSet[c.Name] {
			continue
		}
		if _, dup := left.Column(c.Name); dup {
			return Schema{}, &SchemaError{
				Op:     "join",
				Detail: fmt.Sprintf("column %q appears on both sides but is not a join column", c.Name),
			}
		}
		if rightLoose {
			c = c.Promote()
		}
		cols = append(cols, c)
	}
	return Record(cols...), nil
}

// MergeForConcat computes the schema of concatenating the given shapes.
//
// Axis 0 (row-wise) requires identical schemas by name and type; nullability
// is OR-ed. Axis 1 (column-wise) is accepted only for scalar-shaped inputs,
// which combine side by side into a record; record-shaped inputs are
// rejected because there is no row alignment to concatenate on; use a
// merge/join with an explicit key instead.
func MergeForConcat(schemas []Schema, axis int) (Schema, error) {
	if len(schemas) < 2 {
		return Schema{}, &SchemaError{Op: "concat", Detail: "at least two inputs are required"}
	}
	switch axis {
	case 0:
		out := schemas[0]
		cols := make([]Column, len(out.Columns))
		copy(cols, out.Columns)
		for _, s := range schemas[1:] {
			if !out.sameShape(s) {
				return Schema{}, &SchemaError{Op: "concat", Detail: "axis 0 concatenation requires identical schemas"}
			}
			for i := range cols {
				cols[i].Nullable = cols[i].Nullable || s.Columns[i].Nullable
			}
		}
		return Schema{Columns: cols, Scalar: out.Scalar}, nil
	case 1:
		var cols []Column
		for _, s := range schemas {
			if s.IsRecord() {
				return Schema{}, &SchemaError{
					Op:     "concat",
					Detail: "axis 1 concatenation unsupported for row-shaped inputs; use merge/join",
				}
			}
			cols = append(cols, s.only())
		}
		return Record(cols...), nil
	default:
		return Schema{}, &SchemaError{Op: "concat", Detail: fmt.Sprintf("axis must be 0 or 1, got %d", axis)}
	}
}

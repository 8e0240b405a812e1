// Package render holds the lowering rules and SQL assembly shared by the
// provider packages. Each provider describes its dialect once (quoting,
// parameter style, capability switches, and the handful of constructs whose
// spelling differs) and registers the shared rules under its dialect name.
package render

import (
	"time"

	"github.com/zoobzio/relq"
)

// BindStyle selects the placeholder syntax of the final statement. Rules
// always emit `?`; assembly rebinds at the end.
type BindStyle int

const (
	BindQuestion BindStyle = iota // ?        (sqlite, mariadb)
	BindDollar                    // $1, $2   (postgres)
	BindAt                        // @p1, @p2 (mssql)
)

// Dialect describes a backend's SQL surface. The zero value is not usable;
// providers construct one and call Register.
type Dialect struct {
	Name relq.Dialect
	Bind BindStyle

	// Quote renders an identifier.
	Quote func(string) string

	// DistinctOn is true when the backend has a native "distinct within a
	// column subset, tie-broken by sort order" construct. Without it the
	// rules emulate via window-function ranking.
	DistinctOn bool

	// NaN is a SQL expression for the backend's canonical not-a-number
	// value, for backends whose equality treats stored NaN as equal to it.
	// Empty means the backend cannot store NaN and the isnan rule is not
	// registered.
	NaN string

	// RowOrder names the physical row identifier of a base table, used as
	// the canonical window order for Shift when the source has no declared
	// ordering. Empty means the backend exposes none and the window falls
	// back to the backend's natural order.
	RowOrder string

	// WindowOrder is a last-resort ORDER BY expression for window functions
	// on backends that reject an empty OVER clause.
	WindowOrder string

	// JoinSyntax spells a join kind, or reports it unsupported.
	JoinSyntax func(relq.JoinKind) (string, bool)

	// CastType names the backend type for a CAST target.
	CastType func(relq.ScalarType) (string, bool)

	// MathFunc names a unary math function. Negation never reaches it.
	MathFunc func(relq.UnaryFn) (string, bool)

	// PowFunc and Atan2Func name the binary math functions.
	PowFunc   string
	Atan2Func string

	// DateAdd renders datetime ± duration. The duration arrives from a
	// literal operand; sub selects subtraction.
	DateAdd func(x relq.SQLExpr, d time.Duration, sub bool) relq.SQLExpr
}

// Register installs this dialect's lowering rules into the relq registry.
// Call once from the provider's init; the registry is read-only afterward.
func (d *Dialect) Register() {
	relq.Register(d.Name, relq.KindSymbol, d.lowerSymbol)
	relq.Register(d.Name, relq.KindField, d.lowerField)
	relq.Register(d.Name, relq.KindProject, d.lowerProject)
	relq.Register(d.Name, relq.KindFilter, d.lowerFilter)
	relq.Register(d.Name, relq.KindTransform, d.lowerTransform)
	relq.Register(d.Name, relq.KindJoin, d.lowerJoin)
	relq.Register(d.Name, relq.KindConcat, d.lowerConcat)
	relq.Register(d.Name, relq.KindSort, d.lowerSort)
	relq.Register(d.Name, relq.KindDistinct, d.lowerDistinct)
	relq.Register(d.Name, relq.KindShift, d.lowerShift)
	relq.Register(d.Name, relq.KindCoerce, d.lowerCoerce)
	relq.Register(d.Name, relq.KindLiteral, d.lowerLiteral)
	relq.Register(d.Name, relq.KindBinOp, d.lowerBinOp)
	relq.Register(d.Name, relq.KindUnaryMath, d.lowerUnaryMath)
	relq.Register(d.Name, relq.KindReduce, d.lowerReduce)
	if d.NaN != "" {
		relq.Register(d.Name, relq.KindIsNaN, d.lowerIsNaN)
	}
}

// AnsiJoins spells the four standard join kinds; dialects lacking one wrap
// this and report false for it.
func AnsiJoins(k relq.JoinKind) (string, bool) {
	switch k {
	case relq.InnerJoin:
		return "INNER JOIN", true
	case relq.LeftJoin:
		return "LEFT OUTER JOIN", true
	case relq.RightJoin:
		return "RIGHT OUTER JOIN", true
	case relq.OuterJoin:
		return "FULL OUTER JOIN", true
	}
	return "", false
}

// QuoteDouble renders an identifier in double quotes, escaping embedded
// quotes by doubling them (postgres, sqlite, mssql).
func QuoteDouble(name string) string {
	out := make([]byte, 0, len(name)+2)
	out = append(out, '"')
	for i := 0; i < len(name); i++ {
		if name[i] == '"' {
			out = append(out, '"')
		}
		out = append(out, name[i])
	}
	return string(append(out, '"'))
}

// QuoteBacktick renders an identifier in backticks (mariadb/mysql).
func QuoteBacktick(name string) string {
	out := make([]byte, 0, len(name)+2)
	out = append(out, '`')
	for i := 0; i < len(name); i++ {
		if name[i] == '`' {
			out = append(out, '`')
		}
		out = append(out, name[i])
	}
	return string(append(out, '`'))
}

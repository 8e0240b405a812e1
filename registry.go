package relq

import "fmt"

// Rule lowers one algebra node into a fragment, given its already-lowered
// children in Children() order.
type Rule func(ctx *LowerContext, node Expr, children []*Fragment) (*Fragment, error)

// registry maps (dialect, kind) to the registered lowering rule. Provider
// packages populate it from init; it is read-only afterward, which is what
// makes concurrent lowering safe without locks.
var registry = make(map[Dialect]map[Kind]Rule)

// Register installs the lowering rule for a (kind, dialect) pair. It panics
// on duplicate registration: two providers claiming the same pair is a
// programming error, not a runtime condition.
func Register(d Dialect, k Kind, r Rule) {
	rules, ok := registry[d]
	if !ok {
		rules = make(map[Kind]Rule)
		registry[d] = rules
	}
	if _, dup := rules[k]; dup {
		panic(fmt.Sprintf("relq: duplicate rule for kind %q on dialect %q", k, d))
	}
	rules[k] = r
}

// ruleFor resolves the rule for a (dialect, kind) pair. Lookups fail closed:
// a missing rule is an UnsupportedOperationError, never a fallback.
func ruleFor(d Dialect, k Kind) (Rule, error) {
	if r, ok := registry[d][k]; ok {
		return r, nil
	}
	return nil, &UnsupportedOperationError{Kind: k, Dialect: d}
}

package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zoobzio/relq"
)

// SQL assembles a lowered fragment into a single statement. Column-form
// fragments become single-column selects first. The returned args align with
// the placeholders in textual order; placeholders are rebound from `?` to
// the dialect's style as the last step.
func (d *Dialect) SQL(f *relq.Fragment) (string, []any, error) {
	w := &writer{d: d}
	if err := w.writeSelect(d.asSelect(f)); err != nil {
		return "", nil, err
	}
	return rebind(w.b.String(), d.Bind), w.args, nil
}

type writer struct {
	d      *Dialect
	b      strings.Builder
	args   []any
	aliasN int
}

func (w *writer) alias() string {
	w.aliasN++
	return "s" + strconv.Itoa(w.aliasN)
}

func (w *writer) writeSelect(f *relq.Fragment) error {
	if f.Union != nil {
		for i, p := range f.Union {
			if i > 0 {
				w.b.WriteString(" UNION ALL ")
			}
			if err := w.writeSelect(p); err != nil {
				return err
			}
		}
		w.writeOrdering(f.Ordering)
		return nil
	}

	if len(f.Columns) == 0 {
		return fmt.Errorf("render: fragment has no output columns")
	}
	w.b.WriteString("SELECT ")
	if f.Distinct {
		w.b.WriteString("DISTINCT ")
	}
	if len(f.DistinctOn) > 0 {
		w.b.WriteString("DISTINCT ON (")
		for i, c := range f.DistinctOn {
			if i > 0 {
				w.b.WriteString(", ")
			}
			w.b.WriteString(w.d.Quote(c))
		}
		w.b.WriteString(") ")
	}
	for i, c := range f.Columns {
		if i > 0 {
			w.b.WriteString(", ")
		}
		w.b.WriteString(c.Expr.SQL)
		w.args = append(w.args, c.Expr.Args...)
		if c.Expr.SQL != w.d.Quote(c.Name) {
			w.b.WriteString(" AS ")
			w.b.WriteString(w.d.Quote(c.Name))
		}
	}

	switch {
	case f.Table != "":
		w.b.WriteString(" FROM ")
		w.b.WriteString(w.d.Quote(f.Table))
	case f.Source != nil:
		w.b.WriteString(" FROM (")
		if err := w.writeSelect(f.Source); err != nil {
			return err
		}
		w.b.WriteString(") AS ")
		w.b.WriteString(w.alias())
	case f.Join != nil:
		if err := w.writeJoin(f.Join); err != nil {
			return err
		}
	}

	if len(f.Filters) > 0 {
		w.b.WriteString(" WHERE ")
		for i, flt := range f.Filters {
			if i > 0 {
				w.b.WriteString(" AND ")
			}
			w.b.WriteString(flt.SQL)
			w.args = append(w.args, flt.Args...)
		}
	}
	w.writeOrdering(f.Ordering)
	return nil
}

func (w *writer) writeJoin(j *relq.JoinSQL) error {
	how, ok := w.d.JoinSyntax(j.How)
	if !ok {
		return fmt.Errorf("%s: %s join is not supported", w.d.Name, j.How)
	}
	w.b.WriteString(" FROM ")
	if err := w.writeSource(j.Left, j.LeftAlias); err != nil {
		return err
	}
	w.b.WriteString(" ")
	w.b.WriteString(how)
	w.b.WriteString(" ")
	if err := w.writeSource(j.Right, j.RightAlias); err != nil {
		return err
	}
	w.b.WriteString(" ON ")
	for i, c := range j.On {
		if i > 0 {
			w.b.WriteString(" AND ")
		}
		q := w.d.Quote(c)
		w.b.WriteString(j.LeftAlias + "." + q + " = " + j.RightAlias + "." + q)
	}
	return nil
}

// writeSource renders a join operand. A bare base-table scan selecting only
// plain columns references the table directly; anything else becomes a
// parenthesized subquery.
func (w *writer) writeSource(f *relq.Fragment, alias string) error {
	if t, ok := f.BaseTable(); ok && len(f.Filters) == 0 && len(f.Ordering) == 0 && w.plainOnly(f) {
		w.b.WriteString(w.d.Quote(t))
		w.b.WriteString(" AS ")
		w.b.WriteString(alias)
		return nil
	}
	w.b.WriteString("(")
	if err := w.writeSelect(f); err != nil {
		return err
	}
	w.b.WriteString(") AS ")
	w.b.WriteString(alias)
	return nil
}

func (w *writer) plainOnly(f *relq.Fragment) bool {
	for _, c := range f.Columns {
		if c.Expr.SQL != w.d.Quote(c.Name) || len(c.Expr.Args) > 0 {
			return false
		}
	}
	return true
}

func (w *writer) writeOrdering(ord []relq.OrderSQL) {
	if len(ord) == 0 {
		return
	}
	w.b.WriteString(" ORDER BY ")
	w.b.WriteString(orderTerms(ord))
}

// rebind rewrites `?` placeholders into the dialect's style, numbering them
// in textual order. Question marks inside single-quoted literals are left
// alone.
func rebind(sql string, style BindStyle) string {
	if style == BindQuestion {
		return sql
	}
	prefix := "$"
	if style == BindAt {
		prefix = "@p"
	}
	var b strings.Builder
	b.Grow(len(sql) + 16)
	n := 0
	inStr := false
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		switch {
		case ch == '\'':
			inStr = !inStr
			b.WriteByte(ch)
		case ch == '?' && !inStr:
			n++
			b.WriteString(prefix)
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

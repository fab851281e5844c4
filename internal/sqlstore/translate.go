package sqlstore

import (
	"fmt"
	"strings"

	"pride-store/internal/criteria"
	"pride-store/internal/filter"
	"pride-store/internal/globalconst"
	"pride-store/internal/store"
)

// where accumulates a WHERE clause and its bound arguments.
type where struct {
	sql  strings.Builder
	args []any
}

// fieldPath is the JSON path of a top-level attribute. Quoting keeps dotted names flat.
func fieldPath(field string) string {
	return `$."` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

// translate renders c as a boolean SQL expression over the doc column. The expression keeps the
// semantics of criteria.Matches: array fields match when any element does, absent and null fields
// hold no values, and values only compare within their family.
func translate(c criteria.Criterion) (string, []any, error) {
	w := &where{}
	if err := w.node(c); err != nil {
		return "", nil, err
	}
	return w.sql.String(), w.args, nil
}

func (w *where) node(c criteria.Criterion) error {
	switch n := c.(type) {
	case nil, criteria.Everything:
		w.sql.WriteString("1")
	case criteria.And:
		if len(n.Terms) == 0 {
			w.sql.WriteString("1")
			return nil
		}
		w.sql.WriteString("(")
		for i, t := range n.Terms {
			if i > 0 {
				w.sql.WriteString(" AND ")
			}
			if err := w.node(t); err != nil {
				return err
			}
		}
		w.sql.WriteString(")")
	case criteria.Equal:
		w.anyValue(n.Field, func() bool { return w.equals(n.Value) })
	case criteria.NotEqual:
		// Present with at least one value, and no value equal to the operand.
		w.sql.WriteString("(")
		w.anyValue(n.Field, func() bool { w.sql.WriteString("1"); return true })
		w.sql.WriteString(" AND NOT ")
		w.anyValue(n.Field, func() bool { return w.equals(n.Value) })
		w.sql.WriteString(")")
	case criteria.In:
		w.anyValue(n.Field, func() bool {
			written := 0
			for _, v := range n.Values {
				if !comparable(v) {
					continue
				}
				if written > 0 {
					w.sql.WriteString(" OR ")
				} else {
					w.sql.WriteString("(")
				}
				w.equals(v)
				written++
			}
			if written > 0 {
				w.sql.WriteString(")")
			}
			return written > 0
		})
	case criteria.Contains:
		w.anyValue(n.Field, func() bool {
			if n.IgnoreCase {
				w.sql.WriteString("(je.type = 'text' AND instr(lower(je.value), ?) > 0)")
				w.args = append(w.args, strings.ToLower(n.Substring))
			} else {
				w.sql.WriteString("(je.type = 'text' AND instr(je.value, ?) > 0)")
				w.args = append(w.args, n.Substring)
			}
			return true
		})
	case criteria.Compare:
		op, err := sqlOperator(n.Op)
		if err != nil {
			return err
		}
		w.anyValue(n.Field, func() bool { return w.compare(op, n.Value) })
	default:
		return fmt.Errorf("unsupported criterion %T", c)
	}
	return nil
}

// anyValue writes an EXISTS over the values of field. cond writes the per-value condition on
// je.type and je.value and reports false when no value can ever match.
func (w *where) anyValue(field string, cond func() bool) {
	path := fieldPath(field)
	w.sql.WriteString("EXISTS (SELECT 1 FROM json_each(doc, ?) AS je WHERE coalesce(json_type(doc, ?), '') <> 'object' AND je.type NOT IN ('null', 'object', 'array') AND ")
	w.args = append(w.args, path, path)
	mark := w.sql.Len()
	if !cond() {
		// Nothing to compare against: the term matches no document.
		s := w.sql.String()[:mark]
		w.sql.Reset()
		w.sql.WriteString(s)
		w.sql.WriteString("0")
	}
	w.sql.WriteString(")")
}

func comparable(v any) bool {
	switch v.(type) {
	case string, bool:
		return true
	}
	_, ok := criteria.AsNumber(v)
	return ok
}

func (w *where) equals(v any) bool {
	return w.compare("=", v)
}

func (w *where) compare(op string, v any) bool {
	switch val := v.(type) {
	case string:
		w.sql.WriteString("(je.type = 'text' AND je.value " + op + " ?)")
		w.args = append(w.args, val)
		return true
	case bool:
		w.sql.WriteString("(je.type IN ('true', 'false') AND je.value " + op + " ?)")
		if val {
			w.args = append(w.args, 1)
		} else {
			w.args = append(w.args, 0)
		}
		return true
	}
	if f, ok := criteria.AsNumber(v); ok {
		w.sql.WriteString("(je.type IN ('integer', 'real') AND je.value " + op + " ?)")
		w.args = append(w.args, f)
		return true
	}
	return false
}

func sqlOperator(op filter.Operator) (string, error) {
	switch op {
	case filter.GreaterThan:
		return ">", nil
	case filter.GreaterThanOrEqual:
		return ">=", nil
	case filter.LessThan:
		return "<", nil
	case filter.LessThanOrEqual:
		return "<=", nil
	}
	return "", fmt.Errorf("operator %s is not an ordering", op)
}

// orderBy renders the sort keys, ranking values the way criteria.CompareValues does: absent or
// null first, then numbers and booleans, then strings, then arrays and objects.
func orderBy(sort []store.SortField) (string, []any) {
	var (
		parts []string
		args  []any
	)
	for _, sf := range sort {
		dir := "ASC"
		if sf.Desc {
			dir = "DESC"
		}
		if sf.Field == globalconst.ID {
			parts = append(parts, "id "+dir)
			continue
		}
		path := fieldPath(sf.Field)
		parts = append(parts,
			"CASE coalesce(json_type(doc, ?), 'null') WHEN 'null' THEN 0 WHEN 'integer' THEN 1 WHEN 'real' THEN 1 WHEN 'true' THEN 1 WHEN 'false' THEN 1 WHEN 'text' THEN 2 ELSE 3 END "+dir,
			"json_extract(doc, ?) "+dir,
		)
		args = append(args, path, path)
	}
	if len(parts) == 0 {
		return "", nil
	}
	return " ORDER BY " + strings.Join(parts, ", "), args
}

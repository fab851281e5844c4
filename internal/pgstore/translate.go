package pgstore

import (
	"fmt"
	"strconv"
	"strings"

	"pride-store/internal/criteria"
	"pride-store/internal/filter"
	"pride-store/internal/globalconst"
	"pride-store/internal/store"
)

// scalarTypes are the jsonb types a criterion can match.
const scalarTypes = `('string', 'number', 'boolean')`

// where accumulates a WHERE clause and its numbered arguments.
type where struct {
	sql  strings.Builder
	args []any
}

// arg binds v and returns its placeholder.
func (w *where) arg(v any) string {
	w.args = append(w.args, v)
	return "$" + strconv.Itoa(len(w.args))
}

// translate renders c as a boolean SQL expression over the doc column, with the semantics of
// criteria.Matches: array fields match when any element does, absent and null fields hold no
// values, and values only compare within their family.
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
		w.sql.WriteString("TRUE")
	case criteria.And:
		if len(n.Terms) == 0 {
			w.sql.WriteString("TRUE")
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
		w.anyValue(n.Field, func() bool { return w.compare("=", n.Value) })
	case criteria.NotEqual:
		w.sql.WriteString("(")
		w.anyValue(n.Field, func() bool { w.sql.WriteString("TRUE"); return true })
		w.sql.WriteString(" AND NOT ")
		w.anyValue(n.Field, func() bool { return w.compare("=", n.Value) })
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
				w.compare("=", v)
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
				w.sql.WriteString("(CASE WHEN jsonb_typeof(je.v) = 'string' THEN strpos(lower(je.v #>> '{}'), " + w.arg(strings.ToLower(n.Substring)) + ") > 0 ELSE FALSE END)")
			} else {
				w.sql.WriteString("(CASE WHEN jsonb_typeof(je.v) = 'string' THEN strpos(je.v #>> '{}', " + w.arg(n.Substring) + ") > 0 ELSE FALSE END)")
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

// anyValue writes an EXISTS over the scalar values of field: its elements when it is an array,
// itself otherwise. cond writes the condition on je.v and reports false when no value can match.
func (w *where) anyValue(field string, cond func() bool) {
	p := w.arg(field) + "::text"
	w.sql.WriteString("EXISTS (SELECT 1 FROM jsonb_array_elements(CASE WHEN jsonb_typeof(doc -> " + p +
		") = 'array' THEN doc -> " + p + " ELSE jsonb_build_array(doc -> " + p +
		") END) AS je(v) WHERE jsonb_typeof(je.v) IN " + scalarTypes + " AND ")
	mark := w.sql.Len()
	if !cond() {
		s := w.sql.String()[:mark]
		w.sql.Reset()
		w.sql.WriteString(s)
		w.sql.WriteString("FALSE")
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

// compare writes one typed comparison of je.v against v. The CASE keeps the cast from running on
// values of another type. Strings compare bytewise, as in the other backends.
func (w *where) compare(op string, v any) bool {
	switch val := v.(type) {
	case string:
		w.sql.WriteString("(CASE WHEN jsonb_typeof(je.v) = 'string' THEN (je.v #>> '{}') COLLATE \"C\" " + op + " " + w.arg(val) + " ELSE FALSE END)")
		return true
	case bool:
		w.sql.WriteString("(CASE WHEN jsonb_typeof(je.v) = 'boolean' THEN (je.v #>> '{}')::boolean " + op + " " + w.arg(val) + " ELSE FALSE END)")
		return true
	}
	if f, ok := criteria.AsNumber(v); ok {
		w.sql.WriteString("(CASE WHEN jsonb_typeof(je.v) = 'number' THEN (je.v #>> '{}')::float8 " + op + " " + w.arg(f) + " ELSE FALSE END)")
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

// orderBy renders the sort keys with the value ranking of criteria.CompareValues: absent or null
// first, then numbers and booleans, then strings, then arrays and objects. Within a rank the
// jsonb ordering applies.
func (w *where) orderBy(sort []store.SortField) string {
	var parts []string
	for _, sf := range sort {
		dir := "ASC"
		if sf.Desc {
			dir = "DESC"
		}
		if sf.Field == globalconst.ID {
			parts = append(parts, "id "+dir)
			continue
		}
		p := w.arg(sf.Field) + "::text"
		parts = append(parts,
			"CASE coalesce(jsonb_typeof(doc -> "+p+"), 'null') WHEN 'null' THEN 0 WHEN 'number' THEN 1 WHEN 'boolean' THEN 1 WHEN 'string' THEN 2 ELSE 3 END "+dir,
			"(doc -> "+p+") "+dir,
		)
	}
	if len(parts) == 0 {
		return ""
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

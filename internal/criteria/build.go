package criteria

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"pride-store/internal/filter"
	"pride-store/internal/globalconst"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	globalconst.DateLayout,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Build compiles predicates into one criterion, AND-combining them in order. Values are typed with
// the field registry; a value that does not fit its field kind is rejected as malformed.
//
// A field missing from the registry still compiles, with string operands. No stored document
// carries such a field, so the resulting criterion matches nothing. Callers rely on this being a
// silent no-op rather than an error.
func Build(preds []filter.Predicate, fields Fields) (Criterion, error) {
	if len(preds) == 0 {
		return Everything{}, nil
	}

	terms := make([]Criterion, 0, len(preds))
	for _, p := range preds {
		c, err := buildPredicate(p, fields)
		if err != nil {
			return nil, err
		}
		terms = append(terms, c)
	}
	if len(terms) == 1 {
		return terms[0], nil
	}
	return And{Terms: terms}, nil
}

func buildPredicate(p filter.Predicate, fields Fields) (Criterion, error) {
	spec, known := fields.Lookup(p.Field)

	if len(p.Values) == 0 {
		return nil, malformed(p, "missing value")
	}
	if !p.Op.MultiValued() && len(p.Values) != 1 {
		return nil, malformed(p, fmt.Sprintf("operator %s takes exactly one value", p.Op))
	}

	switch p.Op {
	case filter.Equal:
		v, err := typed(p, spec, p.Values[0])
		if err != nil {
			return nil, err
		}
		return Equal{Field: p.Field, Value: v}, nil

	case filter.NotEqual:
		v, err := typed(p, spec, p.Values[0])
		if err != nil {
			return nil, err
		}
		return NotEqual{Field: p.Field, Value: v}, nil

	case filter.In:
		values, err := typedAll(p, spec)
		if err != nil {
			return nil, err
		}
		return In{Field: p.Field, Values: values}, nil

	case filter.All:
		values, err := typedAll(p, spec)
		if err != nil {
			return nil, err
		}
		terms := make([]Criterion, len(values))
		for i, v := range values {
			terms[i] = Equal{Field: p.Field, Value: v}
		}
		if len(terms) == 1 {
			return terms[0], nil
		}
		return And{Terms: terms}, nil

	case filter.Contains:
		if known && spec.Kind != String {
			return nil, malformed(p, fmt.Sprintf("contains is only defined on string fields, not %s", spec.Kind))
		}
		return Contains{Field: p.Field, Substring: p.Values[0], IgnoreCase: spec.IgnoreCase}, nil

	case filter.GreaterThan, filter.GreaterThanOrEqual, filter.LessThan, filter.LessThanOrEqual:
		if spec.Kind == Bool {
			return nil, malformed(p, "ordering is not defined on bool fields")
		}
		v, err := typed(p, spec, p.Values[0])
		if err != nil {
			return nil, err
		}
		return Compare{Field: p.Field, Op: p.Op, Value: v}, nil

	default:
		return nil, &filter.UnsupportedOperatorError{Clause: p.String(), Field: p.Field, Operator: p.Op.Token()}
	}
}

func typedAll(p filter.Predicate, spec FieldSpec) ([]any, error) {
	values := make([]any, len(p.Values))
	for i, raw := range p.Values {
		v, err := typed(p, spec, raw)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// typed converts a raw operand to the representation documents use for the field kind.
func typed(p filter.Predicate, spec FieldSpec, raw string) (any, error) {
	switch spec.Kind {
	case Number:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, malformed(p, fmt.Sprintf("%q is not a number", raw))
		}
		return f, nil
	case Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return nil, malformed(p, fmt.Sprintf("%q is not a boolean", raw))
		}
		return b, nil
	case Date:
		s := strings.TrimSpace(raw)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC().Format(globalconst.DateLayout), nil
			}
		}
		return nil, malformed(p, fmt.Sprintf("%q is not a date", raw))
	default:
		return raw, nil
	}
}

func malformed(p filter.Predicate, reason string) error {
	return &filter.MalformedFilterError{Clause: p.String(), Field: p.Field, Reason: reason}
}

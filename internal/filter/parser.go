package filter

import (
	"strings"

	"pride-store/internal/globalconst"
)

// Parse splits a filter expression into predicates, in clause order. A blank expression yields no
// predicates. Field names are not validated here; an unknown field is left for the criteria builder.
func Parse(expression string) ([]Predicate, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, nil
	}

	clauses := strings.Split(expression, globalconst.ClauseSeparator)
	preds := make([]Predicate, 0, len(clauses))
	for _, raw := range clauses {
		p, err := parseClause(strings.TrimSpace(raw))
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}

func parseClause(clause string) (Predicate, error) {
	if clause == "" {
		return Predicate{}, &MalformedFilterError{Clause: clause, Reason: "empty clause"}
	}

	end := 0
	for end < len(clause) && isFieldChar(clause[end]) {
		end++
	}
	field := clause[:end]
	if field == "" {
		return Predicate{}, &MalformedFilterError{Clause: clause, Reason: "missing field name"}
	}

	op, rest, err := parseOperator(clause, field, strings.TrimLeft(clause[end:], " \t"))
	if err != nil {
		return Predicate{}, err
	}

	value := strings.TrimSpace(rest)
	if value == "" {
		return Predicate{}, &MalformedFilterError{Clause: clause, Field: field, Reason: "missing value"}
	}

	if !op.MultiValued() {
		return Predicate{Field: field, Op: op, Values: []string{value}}, nil
	}

	var values []string
	for _, candidate := range strings.Split(value, globalconst.ValueSeparator) {
		if c := strings.TrimSpace(candidate); c != "" {
			values = append(values, c)
		}
	}
	if len(values) == 0 {
		return Predicate{}, &MalformedFilterError{Clause: clause, Field: field, Reason: "empty candidate list"}
	}
	return Predicate{Field: field, Op: op, Values: values}, nil
}

// parseOperator reads the operator token at the start of s and returns the remainder.
func parseOperator(clause, field, s string) (Operator, string, error) {
	switch {
	case strings.HasPrefix(s, globalconst.OpEqual):
		return Equal, s[len(globalconst.OpEqual):], nil
	case strings.HasPrefix(s, globalconst.OpNotEqual):
		return NotEqual, s[len(globalconst.OpNotEqual):], nil
	case strings.HasPrefix(s, "="):
		closing := strings.IndexByte(s[1:], '=')
		if closing < 0 {
			return 0, "", &MalformedFilterError{Clause: clause, Field: field, Reason: "unterminated operator"}
		}
		name := s[1 : closing+1]
		if name == "" || !isOperatorName(name) {
			return 0, "", &MalformedFilterError{Clause: clause, Field: field, Reason: "invalid operator token"}
		}
		op, ok := namedOperators[strings.ToLower(name)]
		if !ok {
			return 0, "", &UnsupportedOperatorError{Clause: clause, Field: field, Operator: "=" + name + "="}
		}
		return op, s[closing+2:], nil
	default:
		return 0, "", &MalformedFilterError{Clause: clause, Field: field, Reason: "missing operator"}
	}
}

func isFieldChar(c byte) bool {
	return c == '_' || c == '.' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isOperatorName(name string) bool {
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
			return false
		}
	}
	return true
}

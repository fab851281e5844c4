// Package filter parses the textual filter expressions accepted by the archive search surface.
//
// An expression is a list of clauses joined by ";". Each clause is a field name, an operator token
// and a value:
//
//	projectAccession==PXD000001
//	projectAccession=in=PXD000001,PXD000002;isDecoy!=true
//	title=contains=phospho;bestSearchEngineScore=ge=0.9
//
// Token spellings are listed in globalconst and are part of the public query surface.
package filter

import (
	"fmt"
	"strings"

	"pride-store/internal/globalconst"
)

// Operator is the enumerated kind of a predicate.
type Operator int

const (
	Equal Operator = iota + 1
	NotEqual
	In
	All
	Contains
	GreaterThan
	GreaterThanOrEqual
	LessThan
	LessThanOrEqual
)

// namedOperators maps the name between the "=" signs of a =name= token to its kind.
var namedOperators = map[string]Operator{
	"in":       In,
	"all":      All,
	"contains": Contains,
	"gt":       GreaterThan,
	"ge":       GreaterThanOrEqual,
	"lt":       LessThan,
	"le":       LessThanOrEqual,
}

// Token returns the textual spelling of the operator.
func (o Operator) Token() string {
	switch o {
	case Equal:
		return globalconst.OpEqual
	case NotEqual:
		return globalconst.OpNotEqual
	case In:
		return globalconst.OpIn
	case All:
		return globalconst.OpAll
	case Contains:
		return globalconst.OpContains
	case GreaterThan:
		return globalconst.OpGreaterThan
	case GreaterThanOrEqual:
		return globalconst.OpGreaterThanOrEqual
	case LessThan:
		return globalconst.OpLessThan
	case LessThanOrEqual:
		return globalconst.OpLessThanOrEqual
	default:
		return fmt.Sprintf("Operator(%d)", int(o))
	}
}

func (o Operator) String() string { return o.Token() }

// MultiValued reports whether the operator takes a candidate list.
func (o Operator) MultiValued() bool {
	return o == In || o == All
}

// Ordering reports whether the operator is a range comparison.
func (o Operator) Ordering() bool {
	switch o {
	case GreaterThan, GreaterThanOrEqual, LessThan, LessThanOrEqual:
		return true
	}
	return false
}

// Predicate is one (field, operator, value) clause. Values holds a single element for scalar
// operators and one element per candidate for In and All.
type Predicate struct {
	Field  string
	Op     Operator
	Values []string
}

// Value returns the scalar operand, or the candidate list joined back with commas.
func (p Predicate) Value() string {
	return strings.Join(p.Values, globalconst.ValueSeparator)
}

// String renders the predicate in the expression syntax accepted by Parse.
func (p Predicate) String() string {
	return p.Field + p.Op.Token() + p.Value()
}

// Eq builds an equality predicate.
func Eq(field, value string) Predicate {
	return Predicate{Field: field, Op: Equal, Values: []string{value}}
}

// Ne builds an inequality predicate.
func Ne(field, value string) Predicate {
	return Predicate{Field: field, Op: NotEqual, Values: []string{value}}
}

// AnyOf builds an "in" predicate.
func AnyOf(field string, values ...string) Predicate {
	return Predicate{Field: field, Op: In, Values: values}
}

// Like builds a "contains" predicate.
func Like(field, text string) Predicate {
	return Predicate{Field: field, Op: Contains, Values: []string{text}}
}

// Format joins predicates into one expression.
func Format(preds []Predicate) string {
	parts := make([]string, len(preds))
	for i, p := range preds {
		parts[i] = p.String()
	}
	return strings.Join(parts, globalconst.ClauseSeparator)
}

// MalformedFilterError reports a clause that cannot be split into field, operator and value.
type MalformedFilterError struct {
	Clause string
	Field  string
	Reason string
}

func (e *MalformedFilterError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("malformed filter clause %q (field %q): %s", e.Clause, e.Field, e.Reason)
	}
	return fmt.Sprintf("malformed filter clause %q: %s", e.Clause, e.Reason)
}

// UnsupportedOperatorError reports a well-formed =name= token with an unknown name.
type UnsupportedOperatorError struct {
	Clause   string
	Field    string
	Operator string
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("unsupported operator %q on field %q in clause %q", e.Operator, e.Field, e.Clause)
}

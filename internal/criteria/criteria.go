// Package criteria holds the backend-neutral criterion tree built from filter predicates, and the
// reference evaluator every store backend must agree with.
package criteria

import (
	"pride-store/internal/filter"
)

// Criterion is a node of a compiled, AND-composed filter. The set of nodes is closed; backends
// translate it with a type switch.
type Criterion interface {
	criterion()
}

// Everything matches every document. It is what an empty predicate list compiles to.
type Everything struct{}

// And matches when every term matches.
type And struct {
	Terms []Criterion
}

// Equal matches when the field equals Value, or when the field is an array containing Value.
type Equal struct {
	Field string
	Value any
}

// NotEqual matches when the field is present and none of its values equals Value.
type NotEqual struct {
	Field string
	Value any
}

// In matches when any value of the field equals any candidate.
type In struct {
	Field  string
	Values []any
}

// Contains matches when a string value of the field contains Substring.
type Contains struct {
	Field      string
	Substring  string
	IgnoreCase bool
}

// Compare is a range comparison. Op is one of the ordering operators of the filter package.
type Compare struct {
	Field string
	Op    filter.Operator
	Value any
}

func (Everything) criterion() {}
func (And) criterion() {}
func (Equal) criterion() {}
func (NotEqual) criterion() {}
func (In) criterion() {}
func (Contains) criterion() {}
func (Compare) criterion() {}

// Kind is the value type of a registered field.
type Kind int

const (
	String Kind = iota
	Number
	Bool
	Date
)

func (k Kind) String() string {
	switch k {
	case Number:
		return "number"
	case Bool:
		return "bool"
	case Date:
		return "date"
	default:
		return "string"
	}
}

// FieldSpec describes one searchable attribute. IgnoreCase only affects "contains".
type FieldSpec struct {
	Kind       Kind
	IgnoreCase bool
}

// Fields is the registry of searchable attributes of one entity.
type Fields map[string]FieldSpec

// Lookup returns the spec of a field. Unregistered fields are treated as strings.
func (f Fields) Lookup(field string) (FieldSpec, bool) {
	spec, ok := f[field]
	if !ok {
		return FieldSpec{Kind: String}, false
	}
	return spec, true
}

// KeyMatch builds the criterion selecting exactly one natural key.
func KeyMatch(fields []string, values []any) Criterion {
	terms := make([]Criterion, len(fields))
	for i, f := range fields {
		terms[i] = Equal{Field: f, Value: values[i]}
	}
	if len(terms) == 1 {
		return terms[0]
	}
	return And{Terms: terms}
}

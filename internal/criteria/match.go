package criteria

import (
	"fmt"
	"strings"

	"pride-store/internal/filter"
)

// Matches evaluates a criterion against a decoded document. It is pure and is the reference
// semantics for every backend.
func Matches(c Criterion, doc map[string]any) bool {
	switch n := c.(type) {
	case nil, Everything:
		return true
	case And:
		for _, t := range n.Terms {
			if !Matches(t, doc) {
				return false
			}
		}
		return true
	case Equal:
		for _, v := range FieldValues(doc, n.Field) {
			if equal(v, n.Value) {
				return true
			}
		}
		return false
	case NotEqual:
		values := FieldValues(doc, n.Field)
		if len(values) == 0 {
			return false
		}
		for _, v := range values {
			if equal(v, n.Value) {
				return false
			}
		}
		return true
	case In:
		for _, v := range FieldValues(doc, n.Field) {
			for _, candidate := range n.Values {
				if equal(v, candidate) {
					return true
				}
			}
		}
		return false
	case Contains:
		sub := n.Substring
		if n.IgnoreCase {
			sub = strings.ToLower(sub)
		}
		for _, v := range FieldValues(doc, n.Field) {
			s, ok := v.(string)
			if !ok {
				continue
			}
			if n.IgnoreCase {
				s = strings.ToLower(s)
			}
			if strings.Contains(s, sub) {
				return true
			}
		}
		return false
	case Compare:
		for _, v := range FieldValues(doc, n.Field) {
			cmp, ok := compareScalars(v, n.Value)
			if !ok {
				continue
			}
			if satisfies(n.Op, cmp) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// FieldValues returns the scalar values a field holds: the elements of an array, the value itself
// otherwise, or nothing when the field is absent or null.
func FieldValues(doc map[string]any, field string) []any {
	v, ok := doc[field]
	if !ok || v == nil {
		return nil
	}
	switch arr := v.(type) {
	case []any:
		return arr
	case []string:
		out := make([]any, len(arr))
		for i, s := range arr {
			out[i] = s
		}
		return out
	default:
		return []any{v}
	}
}

func satisfies(op filter.Operator, cmp int) bool {
	switch op {
	case filter.GreaterThan:
		return cmp > 0
	case filter.GreaterThanOrEqual:
		return cmp >= 0
	case filter.LessThan:
		return cmp < 0
	case filter.LessThanOrEqual:
		return cmp <= 0
	}
	return false
}

func equal(a, b any) bool {
	cmp, ok := compareScalars(a, b)
	return ok && cmp == 0
}

// compareScalars compares two values of the same family: numbers with numbers, strings with
// strings, booleans with booleans. Values of different families are not comparable.
func compareScalars(a, b any) (int, bool) {
	if numA, okA := AsNumber(a); okA {
		numB, okB := AsNumber(b)
		if !okB {
			return 0, false
		}
		return compareFloats(numA, numB), true
	}
	if strA, okA := a.(string); okA {
		strB, okB := b.(string)
		if !okB {
			return 0, false
		}
		return strings.Compare(strA, strB), true
	}
	if boolA, okA := a.(bool); okA {
		boolB, okB := b.(bool)
		if !okB {
			return 0, false
		}
		return compareFloats(boolRank(boolA), boolRank(boolB)), true
	}
	return 0, false
}

// CompareValues totally orders document values for sorting. Absent values come first, then
// numbers and booleans, then strings, then anything else by its printed form.
func CompareValues(a, b any) int {
	rankA, rankB := sortRank(a), sortRank(b)
	if rankA != rankB {
		return compareFloats(float64(rankA), float64(rankB))
	}
	switch rankA {
	case 0:
		return 0
	case 1:
		return compareFloats(numericSortKey(a), numericSortKey(b))
	case 2:
		return strings.Compare(a.(string), b.(string))
	default:
		return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
	}
}

func sortRank(v any) int {
	if v == nil {
		return 0
	}
	if _, ok := AsNumber(v); ok {
		return 1
	}
	switch v.(type) {
	case bool:
		return 1
	case string:
		return 2
	}
	return 3
}

func numericSortKey(v any) float64 {
	if b, ok := v.(bool); ok {
		return boolRank(b)
	}
	f, _ := AsNumber(v)
	return f
}

func boolRank(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func compareFloats(a, b float64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// AsNumber reports whether val is a Go numeric type and converts it. Numeric-looking strings are
// deliberately not numbers: accessions such as "0001" must not equal "1".
func AsNumber(val any) (float64, bool) {
	switch v := val.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

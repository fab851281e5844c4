package criteria

import (
	"errors"
	"reflect"
	"testing"

	"pride-store/internal/filter"
)

var testFields = Fields{
	"projectAccession":      {Kind: String},
	"title":                 {Kind: String, IgnoreCase: true},
	"peptideSequence":       {Kind: String},
	"keywords":              {Kind: String},
	"bestSearchEngineScore": {Kind: Number},
	"isDecoy":               {Kind: Bool},
	"publicationDate":       {Kind: Date},
}

var testDocs = []map[string]any{
	{"_id": "1", "projectAccession": "PXD1", "title": "Phospho Proteome", "peptideSequence": "AAAK", "keywords": []any{"human", "liver"}, "bestSearchEngineScore": 0.95, "isDecoy": false, "publicationDate": "2020-01-10T00:00:00Z"},
	{"_id": "2", "projectAccession": "PXD1", "title": "kinase screen", "peptideSequence": "BBBK", "keywords": []any{"mouse"}, "bestSearchEngineScore": 0.5, "isDecoy": true, "publicationDate": "2021-06-01T12:00:00Z"},
	{"_id": "3", "projectAccession": "PXD2", "title": "PHOSPHO time course", "peptideSequence": "CAAK", "bestSearchEngineScore": 0.9},
	{"_id": "4", "projectAccession": "PXD3", "keywords": []any{"human"}},
}

func selectIDs(t *testing.T, expr string) []string {
	t.Helper()
	preds, err := filter.Parse(expr)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", expr, err)
	}
	c, err := Build(preds, testFields)
	if err != nil {
		t.Fatalf("Build(%q) failed: %v", expr, err)
	}
	var ids []string
	for _, doc := range testDocs {
		if Matches(c, doc) {
			ids = append(ids, doc["_id"].(string))
		}
	}
	return ids
}

func TestBuildAndMatch(t *testing.T) {
	tests := []struct {
		expr string
		want []string
	}{
		{"", []string{"1", "2", "3", "4"}},
		{"projectAccession==PXD1", []string{"1", "2"}},
		{"projectAccession!=PXD1", []string{"3", "4"}},
		{"projectAccession=in=PXD2,PXD3", []string{"3", "4"}},
		{"keywords==human", []string{"1", "4"}},
		{"keywords=in=mouse,liver", []string{"1", "2"}},
		{"keywords=all=human,liver", []string{"1"}},
		{"title=contains=phospho", []string{"1", "3"}},
		{"peptideSequence=contains=AAK", []string{"1", "3"}},
		{"peptideSequence=contains=aak", nil},
		{"bestSearchEngineScore=ge=0.9", []string{"1", "3"}},
		{"bestSearchEngineScore=lt=0.9", []string{"2"}},
		{"isDecoy==false", []string{"1"}},
		{"isDecoy!=false", []string{"2"}},
		{"publicationDate=gt=2021-01-01", []string{"2"}},
		{"projectAccession==PXD1;isDecoy==true", []string{"2"}},
		{"projectAccession==PXD1;bestSearchEngineScore=gt=0.99", nil},
		{"unknownField==x", nil},
		{"unknownField!=x", nil},
		{"projectAccession=in=PXD1;unknownField==x", nil},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got := selectIDs(t, tt.expr)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("%q selected %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestBuildEmptyMatchesEverything(t *testing.T) {
	c, err := Build(nil, testFields)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if _, ok := c.(Everything); !ok {
		t.Fatalf("expected Everything, got %#v", c)
	}
}

func TestBuildIsPure(t *testing.T) {
	preds, err := filter.Parse("projectAccession=in=PXD1,PXD2;bestSearchEngineScore=ge=0.5")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	first, err := Build(preds, testFields)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	second, err := Build(preds, testFields)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("two builds differ: %#v vs %#v", first, second)
	}
	for _, doc := range testDocs {
		if Matches(first, doc) != Matches(second, doc) {
			t.Errorf("criteria disagree on document %v", doc["_id"])
		}
	}
}

func TestBuildRejectsBadValues(t *testing.T) {
	exprs := []string{
		"bestSearchEngineScore==high",
		"isDecoy==maybe",
		"isDecoy=gt=true",
		"publicationDate==yesterday",
		"bestSearchEngineScore=contains=9",
	}
	for _, expr := range exprs {
		t.Run(expr, func(t *testing.T) {
			preds, err := filter.Parse(expr)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			_, err = Build(preds, testFields)
			var malformed *filter.MalformedFilterError
			if !errors.As(err, &malformed) {
				t.Fatalf("Build(%q) error = %v, want MalformedFilterError", expr, err)
			}
		})
	}
}

func TestBuildRejectsUnknownOperator(t *testing.T) {
	_, err := Build([]filter.Predicate{{Field: "title", Op: filter.Operator(99), Values: []string{"x"}}}, testFields)
	var unsupported *filter.UnsupportedOperatorError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedOperatorError, got %v", err)
	}
}

func TestKeyMatch(t *testing.T) {
	c := KeyMatch([]string{"projectAccession", "peptideSequence"}, []any{"PXD1", "BBBK"})
	var ids []string
	for _, doc := range testDocs {
		if Matches(c, doc) {
			ids = append(ids, doc["_id"].(string))
		}
	}
	if !reflect.DeepEqual(ids, []string{"2"}) {
		t.Errorf("KeyMatch selected %v", ids)
	}
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		a, b any
		want int
	}{
		{nil, 1.0, -1},
		{1.0, 2.0, -1},
		{int64(3), 2.5, 1},
		{"b", "a", 1},
		{1.0, "a", -1},
		{false, true, -1},
		{"x", "x", 0},
	}
	for _, tt := range tests {
		if got := CompareValues(tt.a, tt.b); got != tt.want {
			t.Errorf("CompareValues(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

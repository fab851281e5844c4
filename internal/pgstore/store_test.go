package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"pride-store/internal/criteria"
	"pride-store/internal/filter"
	"pride-store/internal/store"
)

// testDSNEnv names a Postgres database the integration tests may create tables in.
const testDSNEnv = "PRIDESTORE_TEST_POSTGRES_DSN"

func openTest(t *testing.T) (*Store, string) {
	t.Helper()
	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", testDSNEnv)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	collection := fmt.Sprintf("pride_psms_%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = s.DB().Exec(`DROP TABLE IF EXISTS ` + quote(collection))
		_ = s.Close()
	})
	return s, collection
}

func TestTranslateNumbersPlaceholders(t *testing.T) {
	c := criteria.And{Terms: []criteria.Criterion{
		criteria.Equal{Field: "projectAccession", Value: "PXD1"},
		criteria.Compare{Field: "charge", Op: filter.GreaterThan, Value: 2},
	}}
	q, args, err := translate(c)
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	want := []any{"projectAccession", "PXD1", "charge", 2.0}
	if !reflect.DeepEqual(args, want) {
		t.Errorf("args = %v, want %v", args, want)
	}
	for i := 1; i <= len(want); i++ {
		if !strings.Contains(q, fmt.Sprintf("$%d", i)) {
			t.Errorf("placeholder $%d missing from %s", i, q)
		}
	}
	if strings.Contains(q, "$5") {
		t.Errorf("unexpected placeholder in %s", q)
	}
}

func TestTranslateShapes(t *testing.T) {
	tests := []struct {
		name     string
		c        criteria.Criterion
		contains []string
		args     int
	}{
		{"everything", criteria.Everything{}, []string{"TRUE"}, 0},
		{"empty and", criteria.And{}, []string{"TRUE"}, 0},
		{"not equal needs presence", criteria.NotEqual{Field: "a", Value: "x"}, []string{"AND NOT EXISTS"}, 3},
		{"in skips unusable values", criteria.In{Field: "a", Values: []any{"x", nil, true}}, []string{" OR ", "::boolean"}, 3},
		{"in with nothing to match", criteria.In{Field: "a", Values: nil}, []string{"AND FALSE)"}, 1},
		{"contains ignore case", criteria.Contains{Field: "a", Substring: "MOD", IgnoreCase: true}, []string{"strpos(lower("}, 2},
		{"string order is bytewise", criteria.Compare{Field: "a", Op: filter.LessThan, Value: "b"}, []string{`COLLATE "C" <`}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, args, err := translate(tt.c)
			if err != nil {
				t.Fatalf("translate failed: %v", err)
			}
			for _, s := range tt.contains {
				if !strings.Contains(q, s) {
					t.Errorf("%q missing from %s", s, q)
				}
			}
			if len(args) != tt.args {
				t.Errorf("got %d args %v, want %d", len(args), args, tt.args)
			}
		})
	}
}

func TestTranslateLowercasesIgnoreCaseOperand(t *testing.T) {
	_, args, err := translate(criteria.Contains{Field: "ptms", Substring: "MOD", IgnoreCase: true})
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	if args[1] != "mod" {
		t.Errorf("substring arg = %v, want lower case", args[1])
	}
}

func TestTranslateRejectsEqualityAsOrdering(t *testing.T) {
	_, _, err := translate(criteria.Compare{Field: "a", Op: filter.Equal, Value: 1})
	if err == nil {
		t.Error("expected an error for a non-ordering operator")
	}
}

func TestOrderByRanksValues(t *testing.T) {
	w := &where{}
	order := w.orderBy([]store.SortField{{Field: "charge", Desc: true}, {Field: "_id"}})
	if !strings.HasPrefix(order, " ORDER BY CASE") || !strings.HasSuffix(order, "id ASC") {
		t.Errorf("unexpected order clause %s", order)
	}
	if !reflect.DeepEqual(w.args, []any{"charge", "charge"}) {
		t.Errorf("args = %v", w.args)
	}
	if (&where{}).orderBy(nil) != "" {
		t.Error("no sort keys must render nothing")
	}
}

func TestMapError(t *testing.T) {
	dup := mapError(fmt.Errorf("insert: %w", &pgconn.PgError{Code: uniqueViolation}))
	if !errors.Is(dup, store.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", dup)
	}
	other := &pgconn.PgError{Code: "23502"}
	if err := mapError(other); errors.Is(err, store.ErrDuplicateKey) {
		t.Errorf("not-null violation mapped to a duplicate key: %v", err)
	}
}

func TestIndexExprRejectsUnsafeFields(t *testing.T) {
	if _, err := indexExpr("a'); DROP TABLE x; --"); err == nil {
		t.Error("expected an error")
	}
	expr, err := indexExpr("projectAccession")
	if err != nil || !strings.Contains(expr, "'null'::jsonb") {
		t.Errorf("indexExpr = %q (err %v)", expr, err)
	}
}

func TestOpenReportsDriverFailure(t *testing.T) {
	orig := sqlOpen
	sqlOpen = func(string, string) (*sql.DB, error) { return nil, errors.New("no driver") }
	t.Cleanup(func() { sqlOpen = orig })
	if _, err := Open(context.Background(), ""); err == nil || !strings.Contains(err.Error(), "no driver") {
		t.Errorf("expected the driver error, got %v", err)
	}
}

func TestInvalidCollection(t *testing.T) {
	s := &Store{tables: make(map[string]*collectionInfo)}
	_, err := s.Count(context.Background(), `x"; DROP TABLE y; --`, criteria.Everything{})
	if !errors.Is(err, store.ErrInvalidCollection) {
		t.Errorf("expected ErrInvalidCollection, got %v", err)
	}
}

var fixtures = []store.Document{
	{"peptideSequence": "AAA", "projectAccession": "PXD1", "charge": 2, "isDecoy": false, "ptms": []any{"MOD:00001", "MOD:00002"}},
	{"peptideSequence": "BBB", "projectAccession": "PXD1", "charge": 3, "isDecoy": true, "bestSearchEngineScore": 0.91},
	{"peptideSequence": "CCC", "projectAccession": "PXD2", "charge": 2, "isDecoy": false, "ptms": []any{"mod:00003"}},
	{"peptideSequence": "DDD", "projectAccession": "PXD2", "bestSearchEngineScore": 0.5},
	{"peptideSequence": "EEE", "charge": 4.5, "submissionDate": "2021-03-04T00:00:00Z"},
}

func sequences(docs []store.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i], _ = d["peptideSequence"].(string)
	}
	return out
}

func TestFindMatchesMemStore(t *testing.T) {
	ctx := context.Background()
	pg, collection := openTest(t)
	mem := store.NewMemStore(2)
	for _, d := range fixtures {
		if _, err := pg.Insert(ctx, collection, d); err != nil {
			t.Fatalf("postgres Insert failed: %v", err)
		}
		if _, err := mem.Insert(ctx, collection, d); err != nil {
			t.Fatalf("memory Insert failed: %v", err)
		}
	}

	tests := []struct {
		name string
		c    criteria.Criterion
		sort []store.SortField
	}{
		{"everything", criteria.Everything{}, nil},
		{"equal string", criteria.Equal{Field: "projectAccession", Value: "PXD2"}, nil},
		{"equal number", criteria.Equal{Field: "charge", Value: 2.0}, nil},
		{"number never equals string", criteria.Equal{Field: "charge", Value: "2"}, nil},
		{"equal false", criteria.Equal{Field: "isDecoy", Value: false}, nil},
		{"equal array element", criteria.Equal{Field: "ptms", Value: "MOD:00002"}, nil},
		{"not equal", criteria.NotEqual{Field: "projectAccession", Value: "PXD1"}, nil},
		{"in", criteria.In{Field: "peptideSequence", Values: []any{"AAA", "EEE", "ZZZ"}}, nil},
		{"contains", criteria.Contains{Field: "ptms", Substring: "MOD"}, nil},
		{"contains ignore case", criteria.Contains{Field: "ptms", Substring: "MOD", IgnoreCase: true}, nil},
		{"greater or equal", criteria.Compare{Field: "charge", Op: filter.GreaterThanOrEqual, Value: 3.0}, nil},
		{"date range", criteria.Compare{Field: "submissionDate", Op: filter.GreaterThan, Value: "2020-01-01T00:00:00Z"}, nil},
		{"sort desc", criteria.Everything{}, []store.SortField{{Field: "charge", Desc: true}}},
		{"sort asc", criteria.Everything{}, []store.SortField{{Field: "bestSearchEngineScore"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pg.Find(ctx, collection, tt.c, tt.sort, 0, -1)
			if err != nil {
				t.Fatalf("Find failed: %v", err)
			}
			want, err := mem.Find(ctx, collection, tt.c, tt.sort, 0, -1)
			if err != nil {
				t.Fatalf("memory Find failed: %v", err)
			}
			if a, b := sequences(got), sequences(want); !reflect.DeepEqual(a, b) {
				t.Errorf("postgres returned %v, memory store %v", a, b)
			}
			n, err := pg.Count(ctx, collection, tt.c)
			if err != nil || n != int64(len(want)) {
				t.Errorf("Count = %d (err %v), want %d", n, err, len(want))
			}
		})
	}
}

func TestUniqueIndexAndReplace(t *testing.T) {
	ctx := context.Background()
	s, collection := openTest(t)
	key := []string{"spectrumAccession", "projectAccession"}
	if err := s.EnsureUniqueIndex(ctx, collection, key); err != nil {
		t.Fatalf("EnsureUniqueIndex failed: %v", err)
	}
	if err := s.EnsureUniqueIndex(ctx, collection, key); err != nil {
		t.Fatalf("EnsureUniqueIndex must be idempotent: %v", err)
	}

	doc := store.Document{"spectrumAccession": "S1", "projectAccession": "PXD1"}
	if _, err := s.Insert(ctx, collection, doc); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if _, err := s.Insert(ctx, collection, doc); !errors.Is(err, store.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
	id, err := s.Insert(ctx, collection, store.Document{"spectrumAccession": "S2", "projectAccession": "PXD1"})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := s.Replace(ctx, collection, id, doc); !errors.Is(err, store.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey on replace, got %v", err)
	}
	if err := s.Replace(ctx, collection, "missing", store.Document{}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	s, collection := openTest(t)
	if err := s.EnsureIndex(ctx, collection, "projectAccession"); err != nil {
		t.Fatalf("EnsureIndex failed: %v", err)
	}
	for _, d := range fixtures {
		if _, err := s.Insert(ctx, collection, d); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	snaps, err := s.Export(ctx)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	snap := snaps[collection]
	if len(snap.Data) != len(fixtures) || len(snap.Indexes) != 1 {
		t.Fatalf("exported %d documents and indexes %v", len(snap.Data), snap.Indexes)
	}

	if err := s.DeleteAll(ctx, collection); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}
	if err := s.Import(ctx, collection, snap); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	n, err := s.Count(ctx, collection, criteria.Everything{})
	if err != nil || n != int64(len(fixtures)) {
		t.Errorf("Count after import = %d (err %v)", n, err)
	}
}

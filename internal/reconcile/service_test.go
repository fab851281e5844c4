package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pride-store/internal/criteria"
	"pride-store/internal/metrics"
	"pride-store/internal/query"
	"pride-store/internal/store"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

const proteins = "pride_protein_evidences"

var proteinKey = []string{"reportedAccession", "assayAccession"}

func newService(s store.Store, m *metrics.Metrics) *Service {
	return NewService(s, query.NewExecutor(s, time.Second, m), Options{WriteTimeout: time.Second, Retries: 3, Metrics: m})
}

func all(t *testing.T, s store.Store, collection string) []store.Document {
	t.Helper()
	docs, err := s.Find(context.Background(), collection, criteria.Everything{}, nil, 0, -1)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	return docs
}

func TestUpsertIsIdempotent(t *testing.T) {
	s := store.NewMemStore(4)
	svc := newService(s, nil)
	doc := store.Document{"reportedAccession": "P12345", "assayAccession": "A1", "projectAccession": "PXD000001"}

	first, err := svc.Upsert(context.Background(), proteins, proteinKey, doc)
	if err != nil {
		t.Fatalf("first Upsert failed: %v", err)
	}
	second, err := svc.Upsert(context.Background(), proteins, proteinKey, doc)
	if err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	if first.ID() == "" || first.ID() != second.ID() {
		t.Errorf("identities differ: %q vs %q", first.ID(), second.ID())
	}
	if n := len(all(t, s, proteins)); n != 1 {
		t.Errorf("expected 1 stored record, got %d", n)
	}
	if _, ok := doc["_id"]; ok {
		t.Errorf("Upsert must not modify the caller's document")
	}
}

func TestUpsertReplacesContent(t *testing.T) {
	s := store.NewMemStore(4)
	m := metrics.NewMetrics(nil)
	svc := newService(s, m)

	_, err := svc.Upsert(context.Background(), proteins, proteinKey, store.Document{
		"reportedAccession":     "P12345",
		"assayAccession":        "A1",
		"bestSearchEngineScore": 0.9,
		"ptms":                  []any{"MOD:00696"},
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	updated, err := svc.Upsert(context.Background(), proteins, proteinKey, store.Document{
		"reportedAccession":     "P12345",
		"assayAccession":        "A1",
		"bestSearchEngineScore": 0.95,
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	docs := all(t, s, proteins)
	if len(docs) != 1 {
		t.Fatalf("expected 1 stored record, got %d", len(docs))
	}
	if docs[0]["bestSearchEngineScore"] != 0.95 {
		t.Errorf("score = %v, want 0.95", docs[0]["bestSearchEngineScore"])
	}
	if _, ok := docs[0]["ptms"]; ok {
		t.Errorf("ptms survived a full replace: %v", docs[0])
	}
	if docs[0].ID() != updated.ID() {
		t.Errorf("returned identity %q differs from stored %q", updated.ID(), docs[0].ID())
	}

	if got := testutil.ToFloat64(m.UpsertsTotal.WithLabelValues(proteins, metrics.OutcomeInserted)); got != 1 {
		t.Errorf("inserted = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.UpsertsTotal.WithLabelValues(proteins, metrics.OutcomeReplaced)); got != 1 {
		t.Errorf("replaced = %v, want 1", got)
	}
}

func TestUpsertDistinctKeys(t *testing.T) {
	s := store.NewMemStore(4)
	svc := newService(s, nil)

	for _, assay := range []string{"A1", "A2"} {
		if _, err := svc.Upsert(context.Background(), proteins, proteinKey, store.Document{"reportedAccession": "P12345", "assayAccession": assay}); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}
	if n := len(all(t, s, proteins)); n != 2 {
		t.Errorf("expected 2 records, got %d", n)
	}
}

func TestUpsertIncompleteKey(t *testing.T) {
	svc := newService(store.NewMemStore(1), nil)

	for _, doc := range []store.Document{
		{"reportedAccession": "P12345"},
		{"reportedAccession": "P12345", "assayAccession": ""},
		{"reportedAccession": nil, "assayAccession": "A1"},
	} {
		if _, err := svc.Upsert(context.Background(), proteins, proteinKey, doc); !errors.Is(err, ErrIncompleteNaturalKey) {
			t.Errorf("Upsert(%v): expected ErrIncompleteNaturalKey, got %v", doc, err)
		}
	}
}

func TestConcurrentUpsertsWithUniqueIndex(t *testing.T) {
	s := store.NewMemStore(4)
	if err := s.EnsureUniqueIndex(context.Background(), proteins, proteinKey); err != nil {
		t.Fatalf("EnsureUniqueIndex failed: %v", err)
	}
	svc := newService(s, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Upsert(context.Background(), proteins, proteinKey, store.Document{"reportedAccession": "P12345", "assayAccession": "A1"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Upsert failed: %v", err)
		}
	}
	if n := len(all(t, s, proteins)); n != 1 {
		t.Errorf("expected 1 record, got %d", n)
	}
}

// conflictingStore never finds the key and always rejects inserts as duplicates.
type conflictingStore struct {
	store.Store
	inserts int
}

func (c *conflictingStore) Insert(context.Context, string, store.Document) (string, error) {
	c.inserts++
	return "", store.ErrDuplicateKey
}

func TestUpsertGivesUpAfterRetries(t *testing.T) {
	cs := &conflictingStore{Store: store.NewMemStore(1)}
	svc := newService(cs, nil)

	_, err := svc.Upsert(context.Background(), proteins, proteinKey, store.Document{"reportedAccession": "P12345", "assayAccession": "A1"})
	var ce *ReconciliationConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ReconciliationConflictError, got %v", err)
	}
	if ce.Collection != proteins || ce.Attempts != 3 || ce.Key.Values[0] != "P12345" {
		t.Errorf("unexpected conflict details %+v", ce)
	}
	if cs.inserts != 3 {
		t.Errorf("inserts = %d, want 3", cs.inserts)
	}
}

// brokenStore fails every write.
type brokenStore struct {
	store.Store
	err error
}

func (b brokenStore) Insert(context.Context, string, store.Document) (string, error) {
	return "", b.err
}

func (b brokenStore) DeleteAll(context.Context, string) error {
	return b.err
}

func TestUpsertWriteFailure(t *testing.T) {
	disk := errors.New("disk full")
	svc := newService(brokenStore{Store: store.NewMemStore(1), err: disk}, nil)

	_, err := svc.Upsert(context.Background(), proteins, proteinKey, store.Document{"reportedAccession": "P12345", "assayAccession": "A1"})
	var we *StorageWriteError
	if !errors.As(err, &we) {
		t.Fatalf("expected StorageWriteError, got %v", err)
	}
	if we.Op != "insert" || !errors.Is(err, disk) || we.Key.String() != "reportedAccession=P12345,assayAccession=A1" {
		t.Errorf("unexpected write error %+v", we)
	}

	if err := svc.DeleteAll(context.Background(), proteins); !errors.As(err, &we) {
		t.Errorf("DeleteAll: expected StorageWriteError, got %v", err)
	}
}

// stallingStore blocks inserts until the deadline.
type stallingStore struct {
	store.Store
}

func (stallingStore) Insert(ctx context.Context, _ string, _ store.Document) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestUpsertWriteTimeout(t *testing.T) {
	s := stallingStore{Store: store.NewMemStore(1)}
	svc := NewService(s, query.NewExecutor(s, time.Second, nil), Options{WriteTimeout: 10 * time.Millisecond})

	_, err := svc.Upsert(context.Background(), proteins, proteinKey, store.Document{"reportedAccession": "P12345", "assayAccession": "A1"})
	var we *StorageWriteError
	var te *query.StorageTimeoutError
	if !errors.As(err, &we) || !errors.As(err, &te) {
		t.Fatalf("expected StorageWriteError wrapping StorageTimeoutError, got %v", err)
	}
	if te.Collection != proteins {
		t.Errorf("timeout collection = %q", te.Collection)
	}
}

func TestDeleteAll(t *testing.T) {
	s := store.NewMemStore(2)
	svc := newService(s, nil)
	for _, acc := range []string{"P1", "P2", "P3"} {
		if _, err := svc.Upsert(context.Background(), proteins, proteinKey, store.Document{"reportedAccession": acc, "assayAccession": "A1"}); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	if err := svc.DeleteAll(context.Background(), proteins); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}
	if n := len(all(t, s, proteins)); n != 0 {
		t.Errorf("expected empty collection, got %d", n)
	}
	// Deleting an empty collection is not an error.
	if err := svc.DeleteAll(context.Background(), proteins); err != nil {
		t.Errorf("second DeleteAll failed: %v", err)
	}
}

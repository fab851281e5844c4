package query

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"pride-store/internal/criteria"
	"pride-store/internal/filter"
	"pride-store/internal/store"
)

const psms = "pride_psms"

// countingStore records how often Count is called.
type countingStore struct {
	store.Store
	counts int
}

func (c *countingStore) Count(ctx context.Context, collection string, cr criteria.Criterion) (int64, error) {
	c.counts++
	return c.Store.Count(ctx, collection, cr)
}

// slowStore blocks every read until the context is done.
type slowStore struct {
	store.Store
}

func (slowStore) Find(ctx context.Context, _ string, _ criteria.Criterion, _ []store.SortField, _, _ int) ([]store.Document, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (slowStore) Count(ctx context.Context, _ string, _ criteria.Criterion) (int64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

// failingStore fails every read with err.
type failingStore struct {
	store.Store
	err error
}

func (f failingStore) Find(context.Context, string, criteria.Criterion, []store.SortField, int, int) ([]store.Document, error) {
	return nil, f.err
}

func seedPsms(t *testing.T, s store.Store, n int, project string) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := s.Insert(context.Background(), psms, store.Document{
			"projectAccession":  project,
			"spectrumAccession": "spec-" + string(rune('a'+i%26)),
			"charge":            float64(i % 3),
		})
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func byProject(t *testing.T, project string) criteria.Criterion {
	t.Helper()
	c, err := criteria.Build([]filter.Predicate{filter.Eq("projectAccession", project)}, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return c
}

func TestExecutePaginationIsComplete(t *testing.T) {
	s := store.NewMemStore(4)
	ids := seedPsms(t, s, 23, "PXD000001")
	seedPsms(t, s, 5, "PXD000002")
	e := NewExecutor(s, time.Second, nil)
	c := byProject(t, "PXD000001")

	seen := make(map[string]int)
	var order []string
	for page := 0; ; page++ {
		p, err := e.Execute(context.Background(), psms, c, PageRequest{Page: page, Size: 5, Sort: []store.SortField{{Field: "charge"}}})
		if err != nil {
			t.Fatalf("Execute page %d failed: %v", page, err)
		}
		if p.TotalElements != 23 {
			t.Fatalf("page %d: TotalElements = %d, want 23", page, p.TotalElements)
		}
		if p.TotalPages() != 5 {
			t.Fatalf("page %d: TotalPages = %d, want 5", page, p.TotalPages())
		}
		if len(p.Content) == 0 {
			break
		}
		for _, d := range p.Content {
			seen[d.ID()]++
			order = append(order, d.ID())
		}
	}

	if len(seen) != len(ids) {
		t.Fatalf("walked %d distinct documents, want %d", len(seen), len(ids))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("document %s returned %d times", id, n)
		}
	}

	// Within equal charge, identity order holds.
	byCharge := make(map[float64][]string)
	for _, id := range order {
		docs, _ := s.Find(context.Background(), psms, criteria.Equal{Field: "_id", Value: id}, nil, 0, 1)
		ch := docs[0]["charge"].(float64)
		byCharge[ch] = append(byCharge[ch], id)
	}
	for ch, group := range byCharge {
		if !sort.StringsAreSorted(group) {
			t.Errorf("charge %v: identities out of order: %v", ch, group)
		}
	}
}

func TestExecuteCountMatchesDirectCount(t *testing.T) {
	s := store.NewMemStore(2)
	seedPsms(t, s, 12, "PXD000001")
	e := NewExecutor(s, time.Second, nil)
	c := byProject(t, "PXD000001")

	direct, err := e.Count(context.Background(), psms, c)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}

	for _, req := range []PageRequest{{Page: 0, Size: 5}, {Page: 2, Size: 5}, {Page: 0, Size: 50}, {Page: 9, Size: 5}} {
		p, err := e.Execute(context.Background(), psms, c, req)
		if err != nil {
			t.Fatalf("Execute %+v failed: %v", req, err)
		}
		if p.TotalElements != direct {
			t.Errorf("Execute %+v: TotalElements = %d, want %d", req, p.TotalElements, direct)
		}
	}
}

func TestExecuteSkipsCountWhenPageDeterminesTotal(t *testing.T) {
	cs := &countingStore{Store: store.NewMemStore(2)}
	seedPsms(t, cs, 7, "PXD000001")
	e := NewExecutor(cs, time.Second, nil)
	c := byProject(t, "PXD000001")

	tests := []struct {
		name      string
		req       PageRequest
		wantCount int
		wantTotal int64
	}{
		{"short first page", PageRequest{Page: 0, Size: 10}, 0, 7},
		{"short last page", PageRequest{Page: 1, Size: 5}, 0, 7},
		{"full page", PageRequest{Page: 0, Size: 5}, 1, 7},
		{"past the end", PageRequest{Page: 4, Size: 5}, 1, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs.counts = 0
			p, err := e.Execute(context.Background(), psms, c, tt.req)
			if err != nil {
				t.Fatalf("Execute failed: %v", err)
			}
			if cs.counts != tt.wantCount {
				t.Errorf("count queries = %d, want %d", cs.counts, tt.wantCount)
			}
			if p.TotalElements != tt.wantTotal {
				t.Errorf("TotalElements = %d, want %d", p.TotalElements, tt.wantTotal)
			}
		})
	}
}

func TestExecuteSinglePsmPages(t *testing.T) {
	s := store.NewMemStore(2)
	seedPsms(t, s, 2, "PXD000001")
	e := NewExecutor(s, time.Second, nil)

	p, err := e.Execute(context.Background(), psms, byProject(t, "PXD000001"), PageRequest{Page: 0, Size: 1})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(p.Content) != 1 || p.TotalElements != 2 {
		t.Fatalf("got %d documents of %d, want 1 of 2", len(p.Content), p.TotalElements)
	}
}

func TestExecuteRejectsInvalidPageRequest(t *testing.T) {
	e := NewExecutor(store.NewMemStore(1), time.Second, nil)

	for _, req := range []PageRequest{{Page: -1, Size: 10}, {Page: 0, Size: 0}, {Page: 0, Size: -3}} {
		_, err := e.Execute(context.Background(), psms, criteria.Everything{}, req)
		var qe *QueryExecutionError
		if !errors.As(err, &qe) {
			t.Fatalf("Execute %+v: expected QueryExecutionError, got %v", req, err)
		}
		if !errors.Is(err, ErrInvalidPageRequest) {
			t.Errorf("Execute %+v: expected ErrInvalidPageRequest, got %v", req, err)
		}
	}
}

func TestExecuteTimeout(t *testing.T) {
	e := NewExecutor(slowStore{}, 20*time.Millisecond, nil)

	p, err := e.Execute(context.Background(), psms, criteria.Everything{}, PageRequest{Page: 0, Size: 10})
	if p.Content != nil {
		t.Errorf("expected no content on timeout, got %v", p.Content)
	}
	var qe *QueryExecutionError
	if !errors.As(err, &qe) {
		t.Fatalf("expected QueryExecutionError, got %v", err)
	}
	var te *StorageTimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected StorageTimeoutError, got %v", err)
	}
	if te.Timeout != 20*time.Millisecond || te.Collection != psms {
		t.Errorf("unexpected timeout details %+v", te)
	}

	if _, err := e.Count(context.Background(), psms, criteria.Everything{}); !errors.As(err, &te) {
		t.Errorf("Count: expected StorageTimeoutError, got %v", err)
	}
}

func TestExecuteSurfacesStoreErrors(t *testing.T) {
	boom := errors.New("connection reset")
	e := NewExecutor(failingStore{err: boom}, time.Second, nil)

	_, err := e.Execute(context.Background(), psms, criteria.Everything{}, PageRequest{Page: 0, Size: 10})
	var qe *QueryExecutionError
	if !errors.As(err, &qe) {
		t.Fatalf("expected QueryExecutionError, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected the store error to be wrapped, got %v", err)
	}
	var te *StorageTimeoutError
	if errors.As(err, &te) {
		t.Errorf("a plain store failure must not be reported as a timeout")
	}
}

func TestWithIdentityOrder(t *testing.T) {
	got := withIdentityOrder([]store.SortField{{Field: "charge", Desc: true}})
	if len(got) != 2 || got[1].Field != "_id" || got[1].Desc {
		t.Errorf("unexpected sort %+v", got)
	}
	explicit := []store.SortField{{Field: "_id", Desc: true}}
	if got := withIdentityOrder(explicit); len(got) != 1 {
		t.Errorf("explicit identity sort was extended: %+v", got)
	}
}

func TestMapKeepsPaging(t *testing.T) {
	p := Page[store.Document]{Content: []store.Document{{"a": "x"}, {"a": "y"}}, TotalElements: 12, Page: 3, Size: 2}
	out, err := Map(p, func(d store.Document) (string, error) { return d["a"].(string), nil })
	if err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	if out.TotalElements != 12 || out.Page != 3 || out.Size != 2 || len(out.Content) != 2 || out.Content[1] != "y" {
		t.Errorf("unexpected page %+v", out)
	}
}

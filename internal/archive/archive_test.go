package archive

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"pride-store/internal/model"
	"pride-store/internal/query"
	"pride-store/internal/reconcile"
	"pride-store/internal/repository"
	"pride-store/internal/store"
)

func newArchive(t *testing.T) *Archive {
	t.Helper()
	s := store.NewMemStore(4)
	exec := query.NewExecutor(s, time.Second, nil)
	a := New(s, exec, reconcile.NewService(s, exec, reconcile.Options{}), repository.Options{UniqueNaturalKeys: true, Workers: 2})
	if err := a.Setup(context.Background()); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	return a
}

func TestProjectScopedLookups(t *testing.T) {
	a := newArchive(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		project := "PXD1"
		if i == 2 {
			project = "PXD2"
		}
		if _, err := a.Proteins.Save(ctx, model.ProteinEvidence{ReportedAccession: fmt.Sprintf("P%d", i), AssayAccession: "A1", ProjectAccession: project}); err != nil {
			t.Fatalf("Save protein failed: %v", err)
		}
		if _, err := a.Peptides.Save(ctx, model.PeptideEvidence{ProteinAccession: fmt.Sprintf("P%d", i), AssayAccession: "A1", PeptideAccession: "PEP1", ProjectAccession: project}); err != nil {
			t.Fatalf("Save peptide failed: %v", err)
		}
		if _, err := a.Psms.Save(ctx, model.Psm{SpectrumAccession: fmt.Sprintf("S%d", i), ProjectAccession: project, ReportedFileAccession: "F1"}); err != nil {
			t.Fatalf("Save psm failed: %v", err)
		}
	}
	if _, err := a.Files.Save(ctx, model.File{Accession: "PXF1", ProjectAccessions: []string{"PXD1", "PXD2"}, FileName: "a.raw"}); err != nil {
		t.Fatalf("Save file failed: %v", err)
	}
	if _, err := a.MsRuns.Save(ctx, model.MsRun{Accession: "PXF1", ProjectAccessions: []string{"PXD2"}}); err != nil {
		t.Fatalf("Save msrun failed: %v", err)
	}

	counts := map[string]func(context.Context, string) (int64, error){
		"proteins": a.CountProteinsByProjectAccession,
		"peptides": a.CountPeptidesByProjectAccession,
		"psms":     a.CountPsmsByProjectAccession,
	}
	for name, count := range counts {
		n, err := count(ctx, "PXD1")
		if err != nil {
			t.Fatalf("count %s failed: %v", name, err)
		}
		if n != 2 {
			t.Errorf("%s of PXD1 = %d, want 2", name, n)
		}
	}

	psms, err := a.FindPsmsByProjectAccession(ctx, "PXD1", query.PageRequest{Page: 0, Size: 1})
	if err != nil {
		t.Fatalf("FindPsmsByProjectAccession failed: %v", err)
	}
	if len(psms.Content) != 1 || psms.TotalElements != 2 || psms.Content[0].SpectrumAccession != "S0" {
		t.Errorf("unexpected PSM page %+v", psms)
	}
	proteins, err := a.FindProteinsByProjectAccession(ctx, "PXD2", query.PageRequest{Size: 10})
	if err != nil || len(proteins.Content) != 1 || proteins.Content[0].ReportedAccession != "P2" {
		t.Errorf("unexpected protein page %+v (err %v)", proteins, err)
	}
	peptides, err := a.FindPeptidesByProjectAccession(ctx, "PXD3", query.PageRequest{Size: 10})
	if err != nil || len(peptides.Content) != 0 || peptides.TotalElements != 0 {
		t.Errorf("unexpected peptide page %+v (err %v)", peptides, err)
	}

	files, err := a.FindFilesByProjectAccession(ctx, "PXD2", query.PageRequest{Size: 10})
	if err != nil || files.TotalElements != 1 {
		t.Errorf("unexpected file page %+v (err %v)", files, err)
	}
	runs, err := a.FindMsRunsByProjectAccession(ctx, "PXD1", query.PageRequest{Size: 10})
	if err != nil || runs.TotalElements != 0 {
		t.Errorf("unexpected msrun page %+v (err %v)", runs, err)
	}
}

func TestAllProjectAccessions(t *testing.T) {
	a := newArchive(t)
	ctx := context.Background()

	var want []string
	for i := 0; i < 1203; i++ {
		acc := fmt.Sprintf("PXD%06d", i)
		want = append(want, acc)
		if _, err := a.Projects.Save(ctx, model.Project{Accession: acc}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	got, err := a.AllProjectAccessions(ctx)
	if err != nil {
		t.Fatalf("AllProjectAccessions failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %d accessions, want %d in insertion order", len(got), len(want))
	}
}

func TestDeleteAllEvidences(t *testing.T) {
	a := newArchive(t)
	ctx := context.Background()

	if _, err := a.Proteins.Save(ctx, model.ProteinEvidence{ReportedAccession: "P1", AssayAccession: "A1", ProjectAccession: "PXD1"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := a.Psms.Save(ctx, model.Psm{SpectrumAccession: "S1", ProjectAccession: "PXD1", ReportedFileAccession: "F1"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := a.Projects.Save(ctx, model.Project{Accession: "PXD1"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := a.DeleteAllEvidences(ctx); err != nil {
		t.Fatalf("DeleteAllEvidences failed: %v", err)
	}
	if n, _ := a.CountProteinsByProjectAccession(ctx, "PXD1"); n != 0 {
		t.Errorf("proteins left: %d", n)
	}
	if n, _ := a.CountPsmsByProjectAccession(ctx, "PXD1"); n != 0 {
		t.Errorf("psms left: %d", n)
	}
	if n, _ := a.Projects.Count(ctx, ""); n != 1 {
		t.Errorf("projects must survive an evidence reset, got %d", n)
	}
}

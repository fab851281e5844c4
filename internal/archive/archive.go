// Package archive exposes the project-centred lookups the archive services need on top of the
// entity repositories.
package archive

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"pride-store/internal/filter"
	gc "pride-store/internal/globalconst"
	"pride-store/internal/model"
	"pride-store/internal/query"
	"pride-store/internal/reconcile"
	"pride-store/internal/repository"
	"pride-store/internal/store"
)

// accessionPageSize is the page size used when walking all project accessions.
const accessionPageSize = 500

// Archive groups the repositories of every archive entity.
type Archive struct {
	Projects *repository.Repository[model.Project]
	Files    *repository.Repository[model.File]
	MsRuns   *repository.Repository[model.MsRun]
	Proteins *repository.Repository[model.ProteinEvidence]
	Peptides *repository.Repository[model.PeptideEvidence]
	Psms     *repository.Repository[model.Psm]
}

// New wires the repositories of every entity to one store.
func New(s store.Store, executor *query.Executor, reconciler *reconcile.Service, opts repository.Options) *Archive {
	return &Archive{
		Projects: repository.New(repository.Projects, s, executor, reconciler, opts),
		Files:    repository.New(repository.Files, s, executor, reconciler, opts),
		MsRuns:   repository.New(repository.MsRuns, s, executor, reconciler, opts),
		Proteins: repository.New(repository.ProteinEvidences, s, executor, reconciler, opts),
		Peptides: repository.New(repository.PeptideEvidences, s, executor, reconciler, opts),
		Psms:     repository.New(repository.Psms, s, executor, reconciler, opts),
	}
}

// Registry returns the untyped view of every repository.
func (a *Archive) Registry() *repository.Registry {
	return repository.NewRegistry(a.Projects, a.Files, a.MsRuns, a.Proteins, a.Peptides, a.Psms)
}

// Setup prepares the indexes of every collection.
func (a *Archive) Setup(ctx context.Context) error {
	return a.Registry().SetupAll(ctx)
}

func byProject(accession string) []filter.Predicate {
	return []filter.Predicate{filter.Eq(gc.PROJECT_ACCESSION, accession)}
}

func byProjects(accession string) []filter.Predicate {
	return []filter.Predicate{filter.Eq(gc.PROJECT_ACCESSIONS, accession)}
}

// FindProteinsByProjectAccession returns one page of the protein evidences of a project.
func (a *Archive) FindProteinsByProjectAccession(ctx context.Context, accession string, req query.PageRequest) (query.Page[model.ProteinEvidence], error) {
	return a.Proteins.Filter(ctx, byProject(accession), req)
}

// FindPeptidesByProjectAccession returns one page of the peptide evidences of a project.
func (a *Archive) FindPeptidesByProjectAccession(ctx context.Context, accession string, req query.PageRequest) (query.Page[model.PeptideEvidence], error) {
	return a.Peptides.Filter(ctx, byProject(accession), req)
}

// FindPsmsByProjectAccession returns one page of the PSMs of a project.
func (a *Archive) FindPsmsByProjectAccession(ctx context.Context, accession string, req query.PageRequest) (query.Page[model.Psm], error) {
	return a.Psms.Filter(ctx, byProject(accession), req)
}

// CountProteinsByProjectAccession counts the protein evidences of a project.
func (a *Archive) CountProteinsByProjectAccession(ctx context.Context, accession string) (int64, error) {
	return a.Proteins.CountFilter(ctx, byProject(accession))
}

// CountPeptidesByProjectAccession counts the peptide evidences of a project.
func (a *Archive) CountPeptidesByProjectAccession(ctx context.Context, accession string) (int64, error) {
	return a.Peptides.CountFilter(ctx, byProject(accession))
}

// CountPsmsByProjectAccession counts the PSMs of a project.
func (a *Archive) CountPsmsByProjectAccession(ctx context.Context, accession string) (int64, error) {
	return a.Psms.CountFilter(ctx, byProject(accession))
}

// FindFilesByProjectAccession returns one page of the files attached to a project.
func (a *Archive) FindFilesByProjectAccession(ctx context.Context, accession string, req query.PageRequest) (query.Page[model.File], error) {
	return a.Files.Filter(ctx, byProjects(accession), req)
}

// FindMsRunsByProjectAccession returns one page of the MS-runs attached to a project.
func (a *Archive) FindMsRunsByProjectAccession(ctx context.Context, accession string, req query.PageRequest) (query.Page[model.MsRun], error) {
	return a.MsRuns.Filter(ctx, byProjects(accession), req)
}

// AllProjectAccessions returns the accession of every stored project, in storage order.
func (a *Archive) AllProjectAccessions(ctx context.Context) ([]string, error) {
	var out []string
	err := a.Projects.ForEach(ctx, nil, accessionPageSize, func(p model.Project) error {
		out = append(out, p.Accession)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list project accessions: %w", err)
	}
	return out, nil
}

// DeleteAllEvidences clears proteins, peptides and PSMs ahead of a full re-import.
func (a *Archive) DeleteAllEvidences(ctx context.Context) error {
	for _, del := range []func(context.Context) error{a.Proteins.DeleteAll, a.Peptides.DeleteAll, a.Psms.DeleteAll} {
		if err := del(ctx); err != nil {
			return err
		}
	}
	log.Info().Msg("All evidences deleted")
	return nil
}

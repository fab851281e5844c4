package model

import (
	gc "pride-store/internal/globalconst"
	"pride-store/internal/store"
)

// ProteinEvidence is a protein identified in one assay.
type ProteinEvidence struct {
	ID                    string
	ReportedAccession     string
	AssayAccession        string
	ProjectAccession      string
	ProteinSequence       string
	PTMs                  []string
	BestSearchEngineScore float64
	IsDecoy               bool
	NumberPeptides        int
	NumberPSMs            int
	AdditionalAttributes  []CvParam
}

// EncodeProteinEvidence converts e to its stored form.
func EncodeProteinEvidence(e ProteinEvidence) store.Document {
	doc := store.Document{}
	putString(doc, gc.ID, e.ID)
	putString(doc, gc.REPORTED_ACCESSION, e.ReportedAccession)
	putString(doc, gc.ASSAY_ACCESSION, e.AssayAccession)
	putString(doc, gc.PROJECT_ACCESSION, e.ProjectAccession)
	putString(doc, gc.PROTEIN_SEQUENCE, e.ProteinSequence)
	putStrings(doc, gc.PTMS, e.PTMs)
	putFloat(doc, gc.SCORE, e.BestSearchEngineScore)
	putBool(doc, gc.IS_DECOY, e.IsDecoy)
	putInt(doc, gc.NUMBER_PEPTIDES, e.NumberPeptides)
	putInt(doc, gc.NUMBER_PSMS, e.NumberPSMs)
	putCvs(doc, gc.ADDITIONAL_ATTRIBUTES, e.AdditionalAttributes)
	return doc
}

// DecodeProteinEvidence reads a protein evidence back from its stored form.
func DecodeProteinEvidence(doc store.Document) (ProteinEvidence, error) {
	d := newDecoder(doc)
	e := ProteinEvidence{
		ID:                    d.id(),
		ReportedAccession:     d.str(gc.REPORTED_ACCESSION),
		AssayAccession:        d.str(gc.ASSAY_ACCESSION),
		ProjectAccession:      d.str(gc.PROJECT_ACCESSION),
		ProteinSequence:       d.str(gc.PROTEIN_SEQUENCE),
		PTMs:                  d.strs(gc.PTMS),
		BestSearchEngineScore: d.num(gc.SCORE),
		IsDecoy:               d.flag(gc.IS_DECOY),
		NumberPeptides:        d.integer(gc.NUMBER_PEPTIDES),
		NumberPSMs:            d.integer(gc.NUMBER_PSMS),
		AdditionalAttributes:  d.cvs(gc.ADDITIONAL_ATTRIBUTES),
	}
	return e, d.finish()
}

// PeptideEvidence is a peptide supporting a protein in one assay.
type PeptideEvidence struct {
	ID                    string
	ProteinAccession      string
	AssayAccession        string
	PeptideAccession      string
	ProjectAccession      string
	PeptideSequence       string
	StartPosition         int
	EndPosition           int
	MissedCleavages       int
	PTMs                  []string
	BestSearchEngineScore float64
	IsDecoy               bool
	PsmAccessions         []string
	AdditionalAttributes  []CvParam
}

// EncodePeptideEvidence converts e to its stored form.
func EncodePeptideEvidence(e PeptideEvidence) store.Document {
	doc := store.Document{}
	putString(doc, gc.ID, e.ID)
	putString(doc, gc.PROTEIN_ACCESSION, e.ProteinAccession)
	putString(doc, gc.ASSAY_ACCESSION, e.AssayAccession)
	putString(doc, gc.PEPTIDE_ACCESSION, e.PeptideAccession)
	putString(doc, gc.PROJECT_ACCESSION, e.ProjectAccession)
	putString(doc, gc.PEPTIDE_SEQUENCE, e.PeptideSequence)
	putInt(doc, gc.START_POSITION, e.StartPosition)
	putInt(doc, gc.END_POSITION, e.EndPosition)
	putInt(doc, gc.MISSED_CLEAVAGES, e.MissedCleavages)
	putStrings(doc, gc.PTMS, e.PTMs)
	putFloat(doc, gc.SCORE, e.BestSearchEngineScore)
	putBool(doc, gc.IS_DECOY, e.IsDecoy)
	putStrings(doc, gc.PSM_ACCESSIONS, e.PsmAccessions)
	putCvs(doc, gc.ADDITIONAL_ATTRIBUTES, e.AdditionalAttributes)
	return doc
}

// DecodePeptideEvidence reads a peptide evidence back from its stored form.
func DecodePeptideEvidence(doc store.Document) (PeptideEvidence, error) {
	d := newDecoder(doc)
	e := PeptideEvidence{
		ID:                    d.id(),
		ProteinAccession:      d.str(gc.PROTEIN_ACCESSION),
		AssayAccession:        d.str(gc.ASSAY_ACCESSION),
		PeptideAccession:      d.str(gc.PEPTIDE_ACCESSION),
		ProjectAccession:      d.str(gc.PROJECT_ACCESSION),
		PeptideSequence:       d.str(gc.PEPTIDE_SEQUENCE),
		StartPosition:         d.integer(gc.START_POSITION),
		EndPosition:           d.integer(gc.END_POSITION),
		MissedCleavages:       d.integer(gc.MISSED_CLEAVAGES),
		PTMs:                  d.strs(gc.PTMS),
		BestSearchEngineScore: d.num(gc.SCORE),
		IsDecoy:               d.flag(gc.IS_DECOY),
		PsmAccessions:         d.strs(gc.PSM_ACCESSIONS),
		AdditionalAttributes:  d.cvs(gc.ADDITIONAL_ATTRIBUTES),
	}
	return e, d.finish()
}

// Psm is a peptide-spectrum match.
type Psm struct {
	ID                       string
	SpectrumAccession        string
	ProjectAccession         string
	ReportedFileAccession    string
	AccessionInReportedFile  string
	AssayAccession           string
	PeptideSequence          string
	ReportedProteinAccession string
	DatabaseName             string
	DatabaseVersion          string
	Charge                   int
	PrecursorMz              float64
	RetentionTime            float64
	BestSearchEngineScore    float64
	IsDecoy                  bool
	PTMs                     []string
	AdditionalAttributes     []CvParam
}

// EncodePsm converts p to its stored form.
func EncodePsm(p Psm) store.Document {
	doc := store.Document{}
	putString(doc, gc.ID, p.ID)
	putString(doc, gc.SPECTRUM_ACCESSION, p.SpectrumAccession)
	putString(doc, gc.PROJECT_ACCESSION, p.ProjectAccession)
	putString(doc, gc.REPORTED_FILE_ACCESSION, p.ReportedFileAccession)
	putString(doc, gc.ACCESSION_IN_REPORTED_FILE, p.AccessionInReportedFile)
	putString(doc, gc.ASSAY_ACCESSION, p.AssayAccession)
	putString(doc, gc.PEPTIDE_SEQUENCE, p.PeptideSequence)
	putString(doc, gc.REPORTED_PROTEIN_ACCESSION, p.ReportedProteinAccession)
	putString(doc, gc.DATABASE_NAME, p.DatabaseName)
	putString(doc, gc.DATABASE_VERSION, p.DatabaseVersion)
	putInt(doc, gc.CHARGE, p.Charge)
	putFloat(doc, gc.PRECURSOR_MZ, p.PrecursorMz)
	putFloat(doc, gc.RETENTION_TIME, p.RetentionTime)
	putFloat(doc, gc.SCORE, p.BestSearchEngineScore)
	putBool(doc, gc.IS_DECOY, p.IsDecoy)
	putStrings(doc, gc.PTMS, p.PTMs)
	putCvs(doc, gc.ADDITIONAL_ATTRIBUTES, p.AdditionalAttributes)
	return doc
}

// DecodePsm reads a PSM back from its stored form.
func DecodePsm(doc store.Document) (Psm, error) {
	d := newDecoder(doc)
	p := Psm{
		ID:                       d.id(),
		SpectrumAccession:        d.str(gc.SPECTRUM_ACCESSION),
		ProjectAccession:         d.str(gc.PROJECT_ACCESSION),
		ReportedFileAccession:    d.str(gc.REPORTED_FILE_ACCESSION),
		AccessionInReportedFile:  d.str(gc.ACCESSION_IN_REPORTED_FILE),
		AssayAccession:           d.str(gc.ASSAY_ACCESSION),
		PeptideSequence:          d.str(gc.PEPTIDE_SEQUENCE),
		ReportedProteinAccession: d.str(gc.REPORTED_PROTEIN_ACCESSION),
		DatabaseName:             d.str(gc.DATABASE_NAME),
		DatabaseVersion:          d.str(gc.DATABASE_VERSION),
		Charge:                   d.integer(gc.CHARGE),
		PrecursorMz:              d.num(gc.PRECURSOR_MZ),
		RetentionTime:            d.num(gc.RETENTION_TIME),
		BestSearchEngineScore:    d.num(gc.SCORE),
		IsDecoy:                  d.flag(gc.IS_DECOY),
		PTMs:                     d.strs(gc.PTMS),
		AdditionalAttributes:     d.cvs(gc.ADDITIONAL_ATTRIBUTES),
	}
	return p, d.finish()
}

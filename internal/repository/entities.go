package repository

import (
	"pride-store/internal/criteria"
	gc "pride-store/internal/globalconst"
	"pride-store/internal/model"
)

var (
	str      = criteria.FieldSpec{Kind: criteria.String}
	text     = criteria.FieldSpec{Kind: criteria.String, IgnoreCase: true}
	number   = criteria.FieldSpec{Kind: criteria.Number}
	flag     = criteria.FieldSpec{Kind: criteria.Bool}
	date     = criteria.FieldSpec{Kind: criteria.Date}
	identity = criteria.FieldSpec{Kind: criteria.String}
)

// Projects describes archive projects.
var Projects = Entity[model.Project]{
	Name:       "project",
	Collection: gc.ProjectsCollection,
	NaturalKey: []string{gc.ACCESSION},
	Fields: criteria.Fields{
		gc.ID:               identity,
		gc.ACCESSION:        str,
		gc.TITLE:            text,
		gc.DESCRIPTION:      text,
		gc.SAMPLE_PROTOCOL:  text,
		gc.DATA_PROTOCOL:    text,
		gc.KEYWORDS:         text,
		gc.PROJECT_TAGS:     text,
		gc.SUBMISSION_TYPE:  str,
		gc.SUBMISSION_DATE:  date,
		gc.PUBLICATION_DATE: date,
		gc.UPDATED_DATE:     date,
		gc.SUBMITTERS:       text,
		gc.LAB_HEADS:        text,
		gc.COUNTRIES:        text,
		gc.REFERENCES:       text,
		gc.IDENTIFIED_PTMS:  str,
		gc.DOI:              str,
		gc.PUBLIC_PROJECT:   flag,
	},
	Indexed: []string{gc.ACCESSION, gc.SUBMISSION_TYPE, gc.PUBLICATION_DATE},
	Encode:  model.EncodeProject,
	Decode:  model.DecodeProject,
}

// Files describes submitted files.
var Files = Entity[model.File]{
	Name:       "file",
	Collection: gc.FilesCollection,
	NaturalKey: []string{gc.ACCESSION},
	Fields: criteria.Fields{
		gc.ID:                  identity,
		gc.ACCESSION:           str,
		gc.PROJECT_ACCESSIONS:  str,
		gc.ANALYSIS_ACCESSIONS: str,
		gc.FILE_SOURCE_TYPE:    str,
		gc.FILE_SOURCE_FOLDER:  str,
		gc.MD5_CHECKSUM:        str,
		gc.FILE_SIZE_BYTES:     number,
		gc.FILE_EXTENSION:      str,
		gc.FILE_NAME:           text,
		gc.COMPRESS:            flag,
		gc.SUBMISSION_DATE:     date,
		gc.PUBLICATION_DATE:    date,
		gc.UPDATED_DATE:        date,
	},
	Indexed: []string{gc.ACCESSION, gc.PROJECT_ACCESSIONS, gc.FILE_NAME},
	Encode:  model.EncodeFile,
	Decode:  model.DecodeFile,
}

// MsRuns describes MS-run metadata.
var MsRuns = Entity[model.MsRun]{
	Name:       "msrun",
	Collection: gc.MsRunsCollection,
	NaturalKey: []string{gc.ACCESSION},
	Fields: criteria.Fields{
		gc.ID:                  identity,
		gc.ACCESSION:           str,
		gc.PROJECT_ACCESSIONS:  str,
		gc.ANALYSIS_ACCESSIONS: str,
		gc.FILE_NAME:           text,
		gc.FILE_SIZE_BYTES:     number,
	},
	Indexed: []string{gc.ACCESSION, gc.PROJECT_ACCESSIONS},
	Encode:  model.EncodeMsRun,
	Decode:  model.DecodeMsRun,
}

// ProteinEvidences describes protein evidences.
var ProteinEvidences = Entity[model.ProteinEvidence]{
	Name:       "protein",
	Collection: gc.ProteinEvidenceCollection,
	NaturalKey: []string{gc.REPORTED_ACCESSION, gc.ASSAY_ACCESSION},
	Fields: criteria.Fields{
		gc.ID:                 identity,
		gc.REPORTED_ACCESSION: str,
		gc.ASSAY_ACCESSION:    str,
		gc.PROJECT_ACCESSION:  str,
		gc.PROTEIN_SEQUENCE:   str,
		gc.PTMS:               str,
		gc.SCORE:              number,
		gc.IS_DECOY:           flag,
		gc.NUMBER_PEPTIDES:    number,
		gc.NUMBER_PSMS:        number,
	},
	Indexed: []string{gc.PROJECT_ACCESSION, gc.REPORTED_ACCESSION, gc.ASSAY_ACCESSION},
	Encode:  model.EncodeProteinEvidence,
	Decode:  model.DecodeProteinEvidence,
}

// PeptideEvidences describes peptide evidences.
var PeptideEvidences = Entity[model.PeptideEvidence]{
	Name:       "peptide",
	Collection: gc.PeptideEvidenceCollection,
	NaturalKey: []string{gc.PROTEIN_ACCESSION, gc.ASSAY_ACCESSION, gc.PEPTIDE_ACCESSION},
	Fields: criteria.Fields{
		gc.ID:                identity,
		gc.PROTEIN_ACCESSION: str,
		gc.ASSAY_ACCESSION:   str,
		gc.PEPTIDE_ACCESSION: str,
		gc.PROJECT_ACCESSION: str,
		gc.PEPTIDE_SEQUENCE:  str,
		gc.START_POSITION:    number,
		gc.END_POSITION:      number,
		gc.MISSED_CLEAVAGES:  number,
		gc.PTMS:              str,
		gc.SCORE:             number,
		gc.IS_DECOY:          flag,
		gc.PSM_ACCESSIONS:    str,
	},
	Indexed: []string{gc.PROJECT_ACCESSION, gc.PROTEIN_ACCESSION, gc.PEPTIDE_ACCESSION},
	Encode:  model.EncodePeptideEvidence,
	Decode:  model.DecodePeptideEvidence,
}

// Psms describes peptide-spectrum matches.
var Psms = Entity[model.Psm]{
	Name:       "psm",
	Collection: gc.PsmCollection,
	NaturalKey: []string{gc.SPECTRUM_ACCESSION, gc.PROJECT_ACCESSION, gc.REPORTED_FILE_ACCESSION},
	Fields: criteria.Fields{
		gc.ID:                         identity,
		gc.SPECTRUM_ACCESSION:         str,
		gc.PROJECT_ACCESSION:          str,
		gc.REPORTED_FILE_ACCESSION:    str,
		gc.ACCESSION_IN_REPORTED_FILE: str,
		gc.ASSAY_ACCESSION:            str,
		gc.PEPTIDE_SEQUENCE:           str,
		gc.REPORTED_PROTEIN_ACCESSION: str,
		gc.DATABASE_NAME:              text,
		gc.DATABASE_VERSION:           str,
		gc.CHARGE:                     number,
		gc.PRECURSOR_MZ:               number,
		gc.RETENTION_TIME:             number,
		gc.SCORE:                      number,
		gc.IS_DECOY:                   flag,
		gc.PTMS:                       str,
	},
	Indexed: []string{gc.PROJECT_ACCESSION, gc.SPECTRUM_ACCESSION, gc.PEPTIDE_SEQUENCE},
	Encode:  model.EncodePsm,
	Decode:  model.DecodePsm,
}

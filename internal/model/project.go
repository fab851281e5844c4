package model

import (
	"time"

	gc "pride-store/internal/globalconst"
	"pride-store/internal/store"
)

// Project is one archive submission.
type Project struct {
	ID                    string
	Accession             string
	Title                 string
	Description           string
	SampleProtocol        string
	DataProtocol          string
	Keywords              []string
	ProjectTags           []string
	SubmissionType        string
	SubmissionDate        time.Time
	PublicationDate       time.Time
	UpdatedDate           time.Time
	Submitters            []string
	LabHeads              []string
	Instruments           []CvParam
	Softwares             []CvParam
	QuantificationMethods []CvParam
	Countries             []string
	SampleAttributes      []CvParam
	References            []string
	IdentifiedPTMs        []string
	DOI                   string
	PublicProject         bool
	ExperimentalFactors   []CvParam
	AdditionalAttributes  []CvParam
}

// EncodeProject converts p to its stored form.
func EncodeProject(p Project) store.Document {
	doc := store.Document{}
	putString(doc, gc.ID, p.ID)
	putString(doc, gc.ACCESSION, p.Accession)
	putString(doc, gc.TITLE, p.Title)
	putString(doc, gc.DESCRIPTION, p.Description)
	putString(doc, gc.SAMPLE_PROTOCOL, p.SampleProtocol)
	putString(doc, gc.DATA_PROTOCOL, p.DataProtocol)
	putStrings(doc, gc.KEYWORDS, p.Keywords)
	putStrings(doc, gc.PROJECT_TAGS, p.ProjectTags)
	putString(doc, gc.SUBMISSION_TYPE, p.SubmissionType)
	putDate(doc, gc.SUBMISSION_DATE, p.SubmissionDate)
	putDate(doc, gc.PUBLICATION_DATE, p.PublicationDate)
	putDate(doc, gc.UPDATED_DATE, p.UpdatedDate)
	putStrings(doc, gc.SUBMITTERS, p.Submitters)
	putStrings(doc, gc.LAB_HEADS, p.LabHeads)
	putCvs(doc, gc.INSTRUMENTS, p.Instruments)
	putCvs(doc, gc.SOFTWARES, p.Softwares)
	putCvs(doc, gc.QUANTIFICATION_METHODS, p.QuantificationMethods)
	putStrings(doc, gc.COUNTRIES, p.Countries)
	putCvs(doc, gc.SAMPLE_ATTRIBUTES, p.SampleAttributes)
	putStrings(doc, gc.REFERENCES, p.References)
	putStrings(doc, gc.IDENTIFIED_PTMS, p.IdentifiedPTMs)
	putString(doc, gc.DOI, p.DOI)
	putBool(doc, gc.PUBLIC_PROJECT, p.PublicProject)
	putCvs(doc, gc.EXPERIMENTAL_FACTORS, p.ExperimentalFactors)
	putCvs(doc, gc.ADDITIONAL_ATTRIBUTES, p.AdditionalAttributes)
	return doc
}

// DecodeProject reads a project back from its stored form.
func DecodeProject(doc store.Document) (Project, error) {
	d := newDecoder(doc)
	p := Project{
		ID:                    d.id(),
		Accession:             d.str(gc.ACCESSION),
		Title:                 d.str(gc.TITLE),
		Description:           d.str(gc.DESCRIPTION),
		SampleProtocol:        d.str(gc.SAMPLE_PROTOCOL),
		DataProtocol:          d.str(gc.DATA_PROTOCOL),
		Keywords:              d.strs(gc.KEYWORDS),
		ProjectTags:           d.strs(gc.PROJECT_TAGS),
		SubmissionType:        d.str(gc.SUBMISSION_TYPE),
		SubmissionDate:        d.date(gc.SUBMISSION_DATE),
		PublicationDate:       d.date(gc.PUBLICATION_DATE),
		UpdatedDate:           d.date(gc.UPDATED_DATE),
		Submitters:            d.strs(gc.SUBMITTERS),
		LabHeads:              d.strs(gc.LAB_HEADS),
		Instruments:           d.cvs(gc.INSTRUMENTS),
		Softwares:             d.cvs(gc.SOFTWARES),
		QuantificationMethods: d.cvs(gc.QUANTIFICATION_METHODS),
		Countries:             d.strs(gc.COUNTRIES),
		SampleAttributes:      d.cvs(gc.SAMPLE_ATTRIBUTES),
		References:            d.strs(gc.REFERENCES),
		IdentifiedPTMs:        d.strs(gc.IDENTIFIED_PTMS),
		DOI:                   d.str(gc.DOI),
		PublicProject:         d.flag(gc.PUBLIC_PROJECT),
		ExperimentalFactors:   d.cvs(gc.EXPERIMENTAL_FACTORS),
		AdditionalAttributes:  d.cvs(gc.ADDITIONAL_ATTRIBUTES),
	}
	return p, d.finish()
}

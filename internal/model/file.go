package model

import (
	"time"

	gc "pride-store/internal/globalconst"
	"pride-store/internal/store"
)

// File is one submitted file of a project.
type File struct {
	ID                   string
	Accession            string
	ProjectAccessions    []string
	AnalysisAccessions   []string
	FileCategory         CvParam
	FileSourceType       string
	FileSourceFolder     string
	Md5Checksum          string
	PublicFileLocations  []CvParam
	FileSizeBytes        int64
	FileExtension        string
	FileName             string
	Compress             bool
	SubmissionDate       time.Time
	PublicationDate      time.Time
	UpdatedDate          time.Time
	AdditionalAttributes []CvParam
}

// EncodeFile converts f to its stored form.
func EncodeFile(f File) store.Document {
	doc := store.Document{}
	putString(doc, gc.ID, f.ID)
	putString(doc, gc.ACCESSION, f.Accession)
	putStrings(doc, gc.PROJECT_ACCESSIONS, f.ProjectAccessions)
	putStrings(doc, gc.ANALYSIS_ACCESSIONS, f.AnalysisAccessions)
	putCv(doc, gc.FILE_CATEGORY, f.FileCategory)
	putString(doc, gc.FILE_SOURCE_TYPE, f.FileSourceType)
	putString(doc, gc.FILE_SOURCE_FOLDER, f.FileSourceFolder)
	putString(doc, gc.MD5_CHECKSUM, f.Md5Checksum)
	putCvs(doc, gc.PUBLIC_LOCATIONS, f.PublicFileLocations)
	putFloat(doc, gc.FILE_SIZE_BYTES, float64(f.FileSizeBytes))
	putString(doc, gc.FILE_EXTENSION, f.FileExtension)
	putString(doc, gc.FILE_NAME, f.FileName)
	putBool(doc, gc.COMPRESS, f.Compress)
	putDate(doc, gc.SUBMISSION_DATE, f.SubmissionDate)
	putDate(doc, gc.PUBLICATION_DATE, f.PublicationDate)
	putDate(doc, gc.UPDATED_DATE, f.UpdatedDate)
	putCvs(doc, gc.ADDITIONAL_ATTRIBUTES, f.AdditionalAttributes)
	return doc
}

// DecodeFile reads a file back from its stored form.
func DecodeFile(doc store.Document) (File, error) {
	d := newDecoder(doc)
	f := File{
		ID:                   d.id(),
		Accession:            d.str(gc.ACCESSION),
		ProjectAccessions:    d.strs(gc.PROJECT_ACCESSIONS),
		AnalysisAccessions:   d.strs(gc.ANALYSIS_ACCESSIONS),
		FileCategory:         d.cv(gc.FILE_CATEGORY),
		FileSourceType:       d.str(gc.FILE_SOURCE_TYPE),
		FileSourceFolder:     d.str(gc.FILE_SOURCE_FOLDER),
		Md5Checksum:          d.str(gc.MD5_CHECKSUM),
		PublicFileLocations:  d.cvs(gc.PUBLIC_LOCATIONS),
		FileSizeBytes:        d.long(gc.FILE_SIZE_BYTES),
		FileExtension:        d.str(gc.FILE_EXTENSION),
		FileName:             d.str(gc.FILE_NAME),
		Compress:             d.flag(gc.COMPRESS),
		SubmissionDate:       d.date(gc.SUBMISSION_DATE),
		PublicationDate:      d.date(gc.PUBLICATION_DATE),
		UpdatedDate:          d.date(gc.UPDATED_DATE),
		AdditionalAttributes: d.cvs(gc.ADDITIONAL_ATTRIBUTES),
	}
	return f, d.finish()
}

// Enzyme is the digestion enzyme of an identification setting.
type Enzyme struct {
	ID              string
	Name            CvParam
	CTermGain       string
	NTermGain       string
	MissedCleavages int
	SemiSpecific    bool
	SiteRegexp      string
}

// IdSetting describes how the spectra of a run were identified.
type IdSetting struct {
	FixedModifications    []CvParam
	VariableModifications []CvParam
	Enzymes               []Enzyme
	FragmentTolerance     float64
	ParentTolerance       float64
}

const (
	enzymeID              = "id"
	enzymeName            = "name"
	enzymeCTermGain       = "cTermGain"
	enzymeNTermGain       = "nTermGain"
	enzymeSemiSpecific    = "semiSpecific"
	enzymeSiteRegexp      = "siteRegexp"
	fixedModifications    = "fixedModifications"
	variableModifications = "variableModifications"
	enzymes               = "enzymes"
	fragmentTolerance     = "fragmentTolerance"
	parentTolerance       = "parentTolerance"
)

func (e Enzyme) document() map[string]any {
	out := map[string]any{}
	putString(out, enzymeID, e.ID)
	putCv(out, enzymeName, e.Name)
	putString(out, enzymeCTermGain, e.CTermGain)
	putString(out, enzymeNTermGain, e.NTermGain)
	putInt(out, gc.MISSED_CLEAVAGES, e.MissedCleavages)
	putBool(out, enzymeSemiSpecific, e.SemiSpecific)
	putString(out, enzymeSiteRegexp, e.SiteRegexp)
	return out
}

func (s IdSetting) document() map[string]any {
	out := map[string]any{}
	putCvs(out, fixedModifications, s.FixedModifications)
	putCvs(out, variableModifications, s.VariableModifications)
	if len(s.Enzymes) > 0 {
		arr := make([]any, len(s.Enzymes))
		for i, e := range s.Enzymes {
			arr[i] = e.document()
		}
		out[enzymes] = arr
	}
	putFloat(out, fragmentTolerance, s.FragmentTolerance)
	putFloat(out, parentTolerance, s.ParentTolerance)
	return out
}

func decodeIdSetting(d *decoder) IdSetting {
	s := IdSetting{
		FixedModifications:    d.cvs(fixedModifications),
		VariableModifications: d.cvs(variableModifications),
		FragmentTolerance:     d.num(fragmentTolerance),
		ParentTolerance:       d.num(parentTolerance),
	}
	for _, ed := range d.objects(enzymes) {
		s.Enzymes = append(s.Enzymes, Enzyme{
			ID:              ed.str(enzymeID),
			Name:            ed.cv(enzymeName),
			CTermGain:       ed.str(enzymeCTermGain),
			NTermGain:       ed.str(enzymeNTermGain),
			MissedCleavages: ed.integer(gc.MISSED_CLEAVAGES),
			SemiSpecific:    ed.flag(enzymeSemiSpecific),
			SiteRegexp:      ed.str(enzymeSiteRegexp),
		})
		d.collect(ed)
	}
	return s
}

// MsRun is the mass-spectrometry run metadata extracted from a raw file.
type MsRun struct {
	ID                   string
	Accession            string
	ProjectAccessions    []string
	AnalysisAccessions   []string
	FileName             string
	FileSizeBytes        int64
	FileProperties       []CvParam
	InstrumentProperties []CvParam
	MsData               []CvParam
	ScanSettings         []CvParam
	AdditionalAttributes []CvParam
	IdSettings           []IdSetting
}

// NewMsRun starts an MS-run from the file it was extracted from.
func NewMsRun(f File) MsRun {
	return MsRun{
		Accession:            f.Accession,
		ProjectAccessions:    f.ProjectAccessions,
		AnalysisAccessions:   f.AnalysisAccessions,
		FileName:             f.FileName,
		FileSizeBytes:        f.FileSizeBytes,
		AdditionalAttributes: f.AdditionalAttributes,
	}
}

// EncodeMsRun converts r to its stored form.
func EncodeMsRun(r MsRun) store.Document {
	doc := store.Document{}
	putString(doc, gc.ID, r.ID)
	putString(doc, gc.ACCESSION, r.Accession)
	putStrings(doc, gc.PROJECT_ACCESSIONS, r.ProjectAccessions)
	putStrings(doc, gc.ANALYSIS_ACCESSIONS, r.AnalysisAccessions)
	putString(doc, gc.FILE_NAME, r.FileName)
	putFloat(doc, gc.FILE_SIZE_BYTES, float64(r.FileSizeBytes))
	putCvs(doc, gc.FILE_PROPERTIES, r.FileProperties)
	putCvs(doc, gc.INSTRUMENT_PROPERTIES, r.InstrumentProperties)
	putCvs(doc, gc.MS_DATA, r.MsData)
	putCvs(doc, gc.SCAN_SETTINGS, r.ScanSettings)
	putCvs(doc, gc.ADDITIONAL_ATTRIBUTES, r.AdditionalAttributes)
	if len(r.IdSettings) > 0 {
		arr := make([]any, len(r.IdSettings))
		for i, s := range r.IdSettings {
			arr[i] = s.document()
		}
		doc[gc.ID_SETTINGS] = arr
	}
	return doc
}

// DecodeMsRun reads an MS-run back from its stored form.
func DecodeMsRun(doc store.Document) (MsRun, error) {
	d := newDecoder(doc)
	r := MsRun{
		ID:                   d.id(),
		Accession:            d.str(gc.ACCESSION),
		ProjectAccessions:    d.strs(gc.PROJECT_ACCESSIONS),
		AnalysisAccessions:   d.strs(gc.ANALYSIS_ACCESSIONS),
		FileName:             d.str(gc.FILE_NAME),
		FileSizeBytes:        d.long(gc.FILE_SIZE_BYTES),
		FileProperties:       d.cvs(gc.FILE_PROPERTIES),
		InstrumentProperties: d.cvs(gc.INSTRUMENT_PROPERTIES),
		MsData:               d.cvs(gc.MS_DATA),
		ScanSettings:         d.cvs(gc.SCAN_SETTINGS),
		AdditionalAttributes: d.cvs(gc.ADDITIONAL_ATTRIBUTES),
	}
	for _, sd := range d.objects(gc.ID_SETTINGS) {
		r.IdSettings = append(r.IdSettings, decodeIdSetting(sd))
		d.collect(sd)
	}
	return r, d.finish()
}

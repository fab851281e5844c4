package model

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"pride-store/internal/criteria"
	"pride-store/internal/store"
)

// roundTrip passes a document through a real store, so values come back the way a backend decodes
// them: numbers as float64 and arrays as []any.
func roundTrip(t *testing.T, doc store.Document) store.Document {
	t.Helper()
	s := store.NewMemStore(1)
	if _, err := s.Insert(context.Background(), "c", doc); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	docs, err := s.Find(context.Background(), "c", criteria.Everything{}, nil, 0, -1)
	if err != nil || len(docs) != 1 {
		t.Fatalf("Find returned %d documents, err %v", len(docs), err)
	}
	return docs[0]
}

func TestProjectCodec(t *testing.T) {
	in := Project{
		Accession:       "PXD000001",
		Title:           "Human liver proteome",
		Keywords:        []string{"liver", "human"},
		SubmissionDate:  time.Date(2018, 3, 5, 10, 30, 0, 0, time.UTC),
		PublicationDate: time.Date(2018, 6, 1, 0, 0, 0, 0, time.FixedZone("CET", 3600)),
		Instruments:     []CvParam{{CvLabel: "MS", Accession: "MS:1001742", Name: "LTQ Orbitrap Velos"}},
		PublicProject:   true,
	}

	doc := roundTrip(t, EncodeProject(in))
	if doc["publicationDate"] != "2018-05-31T23:00:00Z" {
		t.Errorf("publicationDate stored as %v", doc["publicationDate"])
	}
	if _, ok := doc["doi"]; ok {
		t.Errorf("empty DOI was stored")
	}

	out, err := DecodeProject(doc)
	if err != nil {
		t.Fatalf("DecodeProject failed: %v", err)
	}
	if out.ID == "" {
		t.Errorf("identity not decoded")
	}
	out.ID = ""
	in.PublicationDate = in.PublicationDate.UTC()
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestMsRunCodec(t *testing.T) {
	file := File{
		Accession:         "PXF00000001",
		ProjectAccessions: []string{"PXD000001"},
		FileName:          "run01.raw",
		FileSizeBytes:     123456789,
		FileCategory:      CvParam{CvLabel: "PRIDE", Accession: "PRIDE:0000404", Name: "RAW"},
	}
	in := NewMsRun(file)
	in.InstrumentProperties = []CvParam{{CvLabel: "MS", Accession: "MS:1000031", Name: "instrument model"}}
	in.IdSettings = []IdSetting{{
		FixedModifications: []CvParam{{CvLabel: "UNIMOD", Accession: "UNIMOD:4", Name: "Carbamidomethyl"}},
		Enzymes: []Enzyme{{
			ID:              "Trypsin",
			Name:            CvParam{CvLabel: "MS", Accession: "MS:1001251", Name: "Trypsin"},
			MissedCleavages: 2,
			SiteRegexp:      "(?<=[KR])(?!P)",
		}},
		FragmentTolerance: 0.02,
	}}

	out, err := DecodeMsRun(roundTrip(t, EncodeMsRun(in)))
	if err != nil {
		t.Fatalf("DecodeMsRun failed: %v", err)
	}
	out.ID = ""
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}

	fout, err := DecodeFile(roundTrip(t, EncodeFile(file)))
	if err != nil {
		t.Fatalf("DecodeFile failed: %v", err)
	}
	fout.ID = ""
	if !reflect.DeepEqual(file, fout) {
		t.Errorf("file round trip mismatch:\n got %+v\nwant %+v", fout, file)
	}
}

func TestEvidenceCodecs(t *testing.T) {
	protein := ProteinEvidence{ReportedAccession: "P12345", AssayAccession: "A1", ProjectAccession: "PXD000001", BestSearchEngineScore: 0.95, PTMs: []string{"MOD:00696"}, NumberPSMs: 4}
	gotProtein, err := DecodeProteinEvidence(roundTrip(t, EncodeProteinEvidence(protein)))
	if err != nil {
		t.Fatalf("DecodeProteinEvidence failed: %v", err)
	}
	gotProtein.ID = ""
	if !reflect.DeepEqual(protein, gotProtein) {
		t.Errorf("protein mismatch:\n got %+v\nwant %+v", gotProtein, protein)
	}

	psm := Psm{SpectrumAccession: "mzspec:PXD000001:run01:scan:42", ProjectAccession: "PXD000001", ReportedFileAccession: "F1", Charge: 2, PrecursorMz: 523.77, IsDecoy: true}
	doc := EncodePsm(psm)
	if doc["isDecoy"] != true || doc["charge"] != float64(2) {
		t.Errorf("unexpected stored PSM %v", doc)
	}
	gotPsm, err := DecodePsm(roundTrip(t, doc))
	if err != nil {
		t.Fatalf("DecodePsm failed: %v", err)
	}
	gotPsm.ID = ""
	if !reflect.DeepEqual(psm, gotPsm) {
		t.Errorf("psm mismatch:\n got %+v\nwant %+v", gotPsm, psm)
	}

	// False flags are stored so they can be filtered on.
	if v, ok := EncodePeptideEvidence(PeptideEvidence{PeptideAccession: "x"})["isDecoy"]; !ok || v != false {
		t.Errorf("isDecoy=false not stored")
	}
}

func TestDecodeRejectsWrongTypes(t *testing.T) {
	tests := []struct {
		name string
		doc  store.Document
		want string
	}{
		{"string field", store.Document{"reportedAccession": 12.0}, "reportedAccession"},
		{"number field", store.Document{"numberPSMs": "four"}, "numberPSMs"},
		{"array element", store.Document{"ptms": []any{"MOD:1", 2.0}}, "ptms"},
		{"nested cv", store.Document{"additionalAttributes": []any{map[string]any{"name": 1.0}}}, "additionalAttributes[0].name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeProteinEvidence(tt.doc)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error naming %s, got %v", tt.want, err)
			}
		})
	}

	if _, err := DecodeProject(store.Document{"submissionDate": "05/03/2018"}); err == nil {
		t.Errorf("expected a date error")
	}
}

func TestZeroNumbersAreStored(t *testing.T) {
	doc := roundTrip(t, EncodeProteinEvidence(ProteinEvidence{ReportedAccession: "P0", AssayAccession: "A1"}))
	for _, key := range []string{"bestSearchEngineScore", "numberPeptides", "numberPSMs"} {
		if v, ok := doc[key]; !ok || v != 0.0 {
			t.Errorf("%s stored as %v (present %v), want 0", key, v, ok)
		}
	}
	if v, ok := EncodeFile(File{Accession: "F1"})["fileSizeBytes"]; !ok || v != 0.0 {
		t.Errorf("fileSizeBytes stored as %v (present %v), want 0", v, ok)
	}
}

func TestDecodeRejectsReshapedInput(t *testing.T) {
	tests := []struct {
		name   string
		decode func(store.Document) error
		doc    store.Document
		want   string
	}{
		{
			name:   "fractional charge",
			decode: func(d store.Document) error { _, err := DecodePsm(d); return err },
			doc:    store.Document{"spectrumAccession": "S1", "charge": 2.7},
			want:   "charge",
		},
		{
			name:   "fractional file size",
			decode: func(d store.Document) error { _, err := DecodeFile(d); return err },
			doc:    store.Document{"accession": "F1", "fileSizeBytes": 10.5},
			want:   "fileSizeBytes",
		},
		{
			name:   "fractional missed cleavages in an enzyme",
			decode: func(d store.Document) error { _, err := DecodeMsRun(d); return err },
			doc: store.Document{"idSettings": []any{map[string]any{
				"enzymes": []any{map[string]any{"missedCleavages": 1.5}},
			}}},
			want: "idSettings[0].enzymes[0].missedCleavages",
		},
		{
			name:   "misspelled attribute",
			decode: func(d store.Document) error { _, err := DecodeProteinEvidence(d); return err },
			doc:    store.Document{"reportedAccession": "P1", "bestSearchEngineScroe": 0.9},
			want:   "bestSearchEngineScroe",
		},
		{
			name:   "every unknown key is named",
			decode: func(d store.Document) error { _, err := DecodeProject(d); return err },
			doc:    store.Document{"accession": "PXD1", "titel": "x", "authors": []any{"a"}},
			want:   "authors, titel",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.decode(tt.doc)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error naming %s, got %v", tt.want, err)
			}
		})
	}

	// Whole numbers still decode, nulls count as absent, and the identity is a known key.
	p, err := DecodePsm(store.Document{"_id": "x", "spectrumAccession": "S1", "charge": 3.0, "databaseName": nil})
	if err != nil || p.Charge != 3 || p.ID != "x" {
		t.Errorf("DecodePsm = %+v, %v", p, err)
	}
}

package globalconst

// This package centralizes the attribute names, collection names and query tokens shared by the
// store, the repositories, the HTTP API and the client.

const (
	// =========================================================================
	// Document Fields
	// =========================================================================

	// ID is the field holding the storage identity of a document.
	ID = "_id"

	// --- Shared archive fields ---
	ACCESSION             = "accession"
	PROJECT_ACCESSION     = "projectAccession"
	PROJECT_ACCESSIONS    = "projectAccessions"
	ANALYSIS_ACCESSIONS   = "analysisAccessions"
	ASSAY_ACCESSION       = "assayAccession"
	SUBMISSION_DATE       = "submissionDate"
	PUBLICATION_DATE      = "publicationDate"
	UPDATED_DATE          = "updatedDate"
	ADDITIONAL_ATTRIBUTES = "additionalAttributes"
	PTMS                  = "ptms"
	IS_DECOY              = "isDecoy"
	SCORE                 = "bestSearchEngineScore"

	// --- Project fields ---
	TITLE                  = "title"
	DESCRIPTION            = "description"
	SAMPLE_PROTOCOL        = "sampleProtocol"
	DATA_PROTOCOL          = "dataProtocol"
	KEYWORDS               = "keywords"
	PROJECT_TAGS           = "projectTags"
	SUBMISSION_TYPE        = "submissionType"
	SUBMITTERS             = "submitters"
	LAB_HEADS              = "labHeads"
	INSTRUMENTS            = "instruments"
	SOFTWARES              = "softwares"
	QUANTIFICATION_METHODS = "quantificationMethods"
	COUNTRIES              = "countries"
	SAMPLE_ATTRIBUTES      = "sampleAttributes"
	REFERENCES             = "references"
	IDENTIFIED_PTMS        = "identifiedPTMStrings"
	DOI                    = "doi"
	PUBLIC_PROJECT         = "publicProject"
	EXPERIMENTAL_FACTORS   = "experimentalFactors"

	// --- File and MS-run fields ---
	FILE_NAME             = "fileName"
	FILE_CATEGORY         = "fileCategory"
	FILE_SOURCE_TYPE      = "fileSourceType"
	FILE_SOURCE_FOLDER    = "fileSourceFolder"
	MD5_CHECKSUM          = "md5Checksum"
	PUBLIC_LOCATIONS      = "publicFileLocations"
	FILE_SIZE_BYTES       = "fileSizeBytes"
	FILE_EXTENSION        = "fileExtension"
	COMPRESS              = "compress"
	FILE_PROPERTIES       = "fileProperties"
	INSTRUMENT_PROPERTIES = "instrumentProperties"
	MS_DATA               = "msData"
	SCAN_SETTINGS         = "scanSettings"
	ID_SETTINGS           = "idSettings"

	// --- Evidence fields ---
	REPORTED_ACCESSION         = "reportedAccession"
	PROTEIN_ACCESSION          = "proteinAccession"
	PEPTIDE_ACCESSION          = "peptideAccession"
	PROTEIN_SEQUENCE           = "proteinSequence"
	PEPTIDE_SEQUENCE           = "peptideSequence"
	NUMBER_PEPTIDES            = "numberPeptides"
	NUMBER_PSMS                = "numberPSMs"
	START_POSITION             = "startPosition"
	END_POSITION               = "endPosition"
	MISSED_CLEAVAGES           = "missedCleavages"
	PSM_ACCESSIONS             = "psmAccessions"
	SPECTRUM_ACCESSION         = "spectrumAccession"
	REPORTED_FILE_ACCESSION    = "reportedFileAccession"
	ACCESSION_IN_REPORTED_FILE = "accessionInReportedFile"
	REPORTED_PROTEIN_ACCESSION = "reportedProteinAccession"
	DATABASE_NAME              = "databaseName"
	DATABASE_VERSION           = "databaseVersion"
	CHARGE                     = "charge"
	PRECURSOR_MZ               = "precursorMz"
	RETENTION_TIME             = "retentionTime"

	// DateLayout is the storage format of every date attribute. Fixed width keeps lexical and
	// chronological order identical.
	DateLayout = "2006-01-02T15:04:05Z"

	// =========================================================================
	// Collections
	// =========================================================================

	ProjectsCollection        = "pride_projects"
	FilesCollection           = "pride_files"
	MsRunsCollection          = "pride_msruns"
	ProteinEvidenceCollection = "pride_protein_evidences"
	PeptideEvidenceCollection = "pride_peptide_evidences"
	PsmCollection             = "pride_psms"

	// =========================================================================
	// Query Keywords
	// =========================================================================

	// ClauseSeparator joins the clauses of one filter expression.
	ClauseSeparator = ";"
	// ValueSeparator splits the candidate list of "in" and "all".
	ValueSeparator = ","

	// --- Comparison Operators ---
	OpEqual              = "=="
	OpNotEqual           = "!="
	OpIn                 = "=in="
	OpAll                = "=all="
	OpContains           = "=contains="
	OpGreaterThan        = "=gt="
	OpGreaterThanOrEqual = "=ge="
	OpLessThan           = "=lt="
	OpLessThanOrEqual    = "=le="

	// --- Sort Directions ---
	SortDesc = "desc"
	SortAsc  = "asc"

	// =========================================================================
	// Persistence Keywords
	// =========================================================================

	// BackupsDirName is the root directory name for backups.
	BackupsDirName = "backups"
	// CollectionsDirName is the root directory name for collection data.
	CollectionsDirName = "collections"
	// DBFileExtension is the file extension for collection snapshot files.
	DBFileExtension = ".psdb"
	// TempFileSuffix is the suffix added to temporary files during writes.
	TempFileSuffix = ".tmp"
	// WalFileName is the name of the write-ahead log inside the data directory.
	WalFileName = "pride-store.wal"
	// SQLiteBackupFile is the database copy written into a backup directory by the sqlite backend.
	SQLiteBackupFile = "pride-store.db"
)

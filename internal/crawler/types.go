package crawler

import "time"

// DocumentURL identifies a fetchable document page.
type DocumentURL = string

// MetadataRecord is the unit of output extracted from one document page.
// Absent fields keep their zero value; list fields are never nil once a
// record leaves the extractor so they serialize as [] instead of null.
type MetadataRecord struct {
	URL              DocumentURL `json:"url"`
	ReportName       string      `json:"report_name"`
	Sectors          []string    `json:"sectors"`
	Locations        []string    `json:"locations"`
	PublishDate      string      `json:"publish_date"`
	UploadDate       string      `json:"upload_date"`
	Downloads        int         `json:"downloads"`
	DocumentType     string      `json:"document_type"`
	DocumentLanguage string      `json:"document_language"`
	FileSize         string      `json:"file_size"`
	PopulationGroups []string    `json:"population_groups"`
}

// NewMetadataRecord returns a record for url with every list field initialized.
func NewMetadataRecord(url DocumentURL) MetadataRecord {
	return MetadataRecord{
		URL:              url,
		Sectors:          []string{},
		Locations:        []string{},
		PopulationGroups: []string{},
	}
}

// ResultCollection is the ordered list of successful records of one run.
type ResultCollection []MetadataRecord

// Outcome is the per-URL result of fetch+extract: either Record or Err is set.
type Outcome struct {
	URL      DocumentURL
	Record   MetadataRecord
	Err      error
	Duration time.Duration
}

// OK reports whether the outcome carries a record.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// RunSummary describes a finished pipeline run. It is also the payload
// published to downstream consumers.
type RunSummary struct {
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Discovered  int       `json:"discovered"`
	Extracted   int       `json:"extracted"`
	Failed      int       `json:"failed"`
	Batches     int       `json:"batches"`
	URLListURI  string    `json:"url_list_uri"`
	MetadataURI string    `json:"metadata_uri,omitempty"`
	// MetadataSHA256 fingerprints the metadata file so consumers can skip
	// unchanged runs.
	MetadataSHA256 string `json:"metadata_sha256,omitempty"`
}

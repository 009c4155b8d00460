package model

import (
	"strings"
	"time"
)

// Absent marks a field that could not be extracted. The historical corpus
// already stores this value, so it is kept verbatim.
const Absent = "N/A"

// DateLayout is the layout of Record.PublishedDate when present.
const DateLayout = "2006-01-02"

// Record is one fact-check entry harvested from a detail page
type Record struct {
	Statement     string `json:"statement"`      // Quoted claim text
	SourceURL     string `json:"source_url"`     // Absolute detail page URL, always populated
	PublishedDate string `json:"published_date"` // YYYY-MM-DD or Absent
	Source        string `json:"source"`         // Who made the claim
	Label         string `json:"label"`          // Verdict label (e.g. "false", "half-true")
}

// DegradedRecord returns the record used when a detail page could not be
// fetched or parsed at all.
func DegradedRecord(sourceURL string) Record {
	return Record{
		Statement:     Absent,
		SourceURL:     sourceURL,
		PublishedDate: Absent,
		Source:        Absent,
		Label:         Absent,
	}
}

// IsDegraded reports whether every extracted field is absent
func (r Record) IsDegraded() bool {
	return r.Statement == Absent &&
		r.PublishedDate == Absent &&
		r.Source == Absent &&
		r.Label == Absent
}

// AbsentFields returns the names of the fields holding Absent
func (r Record) AbsentFields() []string {
	var fields []string
	if r.Statement == Absent {
		fields = append(fields, "statement")
	}
	if r.PublishedDate == Absent {
		fields = append(fields, "date")
	}
	if r.Source == Absent {
		fields = append(fields, "source")
	}
	if r.Label == Absent {
		fields = append(fields, "label")
	}
	return fields
}

// Date parses PublishedDate. ok is false when the date is absent or malformed.
func (r Record) Date() (t time.Time, ok bool) {
	if r.PublishedDate == Absent || strings.TrimSpace(r.PublishedDate) == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, r.PublishedDate)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Key returns the identity used for duplicate suppression
func (r Record) Key() IdentityKey {
	return IdentityKey{Statement: r.Statement, SourceURL: r.SourceURL}
}

// Row converts the record into a corpus row
func (r Record) Row() Row {
	return Row{
		Statement: r.Statement,
		Link:      r.SourceURL,
		Date:      r.PublishedDate,
		Source:    r.Source,
		Label:     r.Label,
	}
}

// Batch is the ordered set of records produced by one harvest run.
// Order follows discovery order, not completion order.
type Batch []Record

// Degraded counts the degraded records in the batch
func (b Batch) Degraded() int {
	n := 0
	for _, r := range b {
		if r.IsDegraded() {
			n++
		}
	}
	return n
}

// Rows converts every record of the batch into a corpus row
func (b Batch) Rows() []Row {
	rows := make([]Row, len(b))
	for i, r := range b {
		rows[i] = r.Row()
	}
	return rows
}

// IdentityKey is the composite (statement, source URL) identity of a record.
// Comparison is exact: no trimming, case folding or whitespace collapsing.
type IdentityKey struct {
	Statement string
	SourceURL string
}

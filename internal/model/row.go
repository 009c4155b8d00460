package model

// Header is the column layout of the corpus and of batch artifacts
var Header = []string{"statement", "link", "date", "source", "label"}

// Row is one line of the historical corpus.
// Fields are named; the positional layout only exists in RowFromFields/Fields.
type Row struct {
	Statement string
	Link      string
	Date      string
	Source    string
	Label     string
	Extra     []string // Trailing columns beyond the known five, kept as-is
}

// RowFromFields builds a row from raw text fields.
// Missing trailing fields are left empty.
func RowFromFields(fields []string) Row {
	at := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}

	row := Row{
		Statement: at(0),
		Link:      at(1),
		Date:      at(2),
		Source:    at(3),
		Label:     at(4),
	}
	if len(fields) > len(Header) {
		row.Extra = append([]string(nil), fields[len(Header):]...)
	}
	return row
}

// Fields returns the raw text fields of the row in corpus column order
func (r Row) Fields() []string {
	fields := make([]string, 0, len(Header)+len(r.Extra))
	fields = append(fields, r.Statement, r.Link, r.Date, r.Source, r.Label)
	return append(fields, r.Extra...)
}

// Key returns the identity used for duplicate suppression
func (r Row) Key() IdentityKey {
	return IdentityKey{Statement: r.Statement, SourceURL: r.Link}
}

// IsHeader reports whether the row is the corpus header line
func (r Row) IsHeader() bool {
	fields := r.Fields()
	if len(fields) != len(Header) {
		return false
	}
	for i, name := range Header {
		if fields[i] != name {
			return false
		}
	}
	return true
}

package store

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/ppiankov/factharvest/internal/model"
)

// DecodeRows reads CSV corpus rows. A leading header row is dropped and
// rows may have any number of fields.
func DecodeRows(r io.Reader) ([]model.Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows []model.Row
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode corpus: %w", err)
		}

		row := model.RowFromFields(fields)
		if len(rows) == 0 && row.IsHeader() {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// EncodeRows writes the header followed by rows
func EncodeRows(w io.Writer, rows []model.Row) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(model.Header); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	for i, row := range rows {
		if err := writer.Write(row.Fields()); err != nil {
			return fmt.Errorf("encode row %d: %w", i, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("encode corpus: %w", err)
	}
	return nil
}

package extract

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/factharvest/internal/model"
)

// RecordExtractor turns a detail page into a Record
type RecordExtractor struct {
	layout         model.Layout
	fieldIsolation bool
	logger         *zap.Logger
}

// NewRecordExtractor creates an extractor from the extract configuration
func NewRecordExtractor(cfg model.ExtractConfig, logger *zap.Logger) *RecordExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordExtractor{
		layout:         cfg.Layout,
		fieldIsolation: cfg.FieldIsolation,
		logger:         logger,
	}
}

// errAnchorMissing aborts a coarse extraction
type errAnchorMissing struct{ anchor string }

func (e errAnchorMissing) Error() string {
	return fmt.Sprintf("anchor %q missing", e.anchor)
}

// Extract never fails: fields that cannot be read hold model.Absent and
// SourceURL is always detailURL.
func (e *RecordExtractor) Extract(detailHTML, detailURL string) (record model.Record) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("extraction panicked",
				zap.String("url", detailURL),
				zap.Any("panic", r),
			)
			record = model.DegradedRecord(detailURL)
		}
	}()

	record, err := e.extract(detailHTML, detailURL)
	if err != nil {
		e.logger.Debug("record degraded", zap.String("url", detailURL), zap.Error(err))
		return model.DegradedRecord(detailURL)
	}

	if missing := record.AbsentFields(); len(missing) > 0 {
		e.logger.Debug("fields absent",
			zap.String("url", detailURL),
			zap.Strings("fields", missing),
		)
	}
	return record
}

func (e *RecordExtractor) extract(detailHTML, detailURL string) (model.Record, error) {
	doc, err := parseDocument(detailHTML)
	if err != nil {
		return model.Record{}, err
	}

	record := model.DegradedRecord(detailURL)

	if text, ok := trimmedText(doc.Find(e.layout.Quote)); ok {
		record.Statement = text
	}

	if desc := doc.Find(e.layout.Description); desc.Length() > 0 {
		if date, ok := ParseDisplayDate(desc.First().Text()); ok {
			record.PublishedDate = date
		}
	}

	meta := doc.Find(e.layout.Meta)
	if meta.Length() == 0 && !e.fieldIsolation {
		return model.Record{}, errAnchorMissing{anchor: e.layout.Meta}
	}
	if source, ok := trimmedText(meta.First().Find(e.layout.MetaLink)); ok {
		record.Source = source
	}

	content := doc.Find(e.layout.Content)
	if content.Length() == 0 && !e.fieldIsolation {
		return model.Record{}, errAnchorMissing{anchor: e.layout.Content}
	}
	labelImage := content.First().Find(e.layout.LabelImage)
	if label, ok := trimmedAttr(labelImage, "alt"); ok {
		record.Label = label
	} else if labelImage.Length() > 0 && !e.fieldIsolation {
		return model.Record{}, errAnchorMissing{anchor: e.layout.LabelImage + "[alt]"}
	}

	return record, nil
}

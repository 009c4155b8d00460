package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/factharvest/internal/model"
)

func record(statement, url string) model.Record {
	return model.Record{
		Statement:     statement,
		SourceURL:     url,
		PublishedDate: "2024-01-05",
		Source:        "Jane Doe",
		Label:         "false",
	}
}

func TestMerge_EmptyHistory(t *testing.T) {
	batch := model.Batch{
		record("Says A", "https://site/a"),
		model.DegradedRecord("https://site/b"),
	}

	res := Merge(batch, nil)

	require.Len(t, res.Combined, len(batch))
	assert.Equal(t, batch.Rows(), res.Combined)
	assert.Equal(t, []model.Record(batch), res.Appended)
	assert.Zero(t, res.Duplicates)
}

func TestMerge_SkipsRecordsAlreadyInHistory(t *testing.T) {
	history := []model.Row{
		{Statement: "X", Link: "https://site/a", Date: "2023-12-01", Source: "old", Label: "true"},
	}
	batch := model.Batch{
		record("X", "https://site/a"),
		record("Y", "https://site/b"),
	}

	res := Merge(batch, history)

	require.Len(t, res.Combined, 2)
	assert.Equal(t, history[0], res.Combined[0], "history rows are kept untouched")
	assert.Equal(t, "Y", res.Combined[1].Statement)
	assert.Equal(t, 1, res.Duplicates)
	require.Len(t, res.Appended, 1)
	assert.Equal(t, "https://site/b", res.Appended[0].SourceURL)
}

func TestMerge_IsIdempotent(t *testing.T) {
	batch := model.Batch{
		record("Says A", "https://site/a"),
		record("Says B", "https://site/b"),
	}

	first := Merge(batch, nil)
	second := Merge(batch, first.Combined)

	assert.Equal(t, first.Combined, second.Combined)
	assert.Empty(t, second.Appended)
	assert.Equal(t, len(batch), second.Duplicates)
}

func TestMerge_IdentityIsExact(t *testing.T) {
	history := []model.Row{{Statement: "Says X", Link: "https://site/a"}}
	batch := model.Batch{
		record("Says X ", "https://site/a"),
		record("says x", "https://site/a"),
		record("Says X", "https://site/a/"),
	}

	res := Merge(batch, history)

	assert.Len(t, res.Appended, 3, "whitespace, case, and link variants are distinct identities")
	assert.Zero(t, res.Duplicates)
}

func TestMerge_DuplicatesInsideBatchAppendOnce(t *testing.T) {
	batch := model.Batch{
		record("Says A", "https://site/a"),
		record("Says A", "https://site/a"),
		model.DegradedRecord("https://site/b"),
		model.DegradedRecord("https://site/b"),
	}

	res := Merge(batch, nil)

	assert.Len(t, res.Combined, 2)
	assert.Equal(t, 2, res.Duplicates)
}

func TestMerge_KeepsHistoryOrderAndExtraColumns(t *testing.T) {
	history := []model.Row{
		model.RowFromFields([]string{"Z", "https://site/z", "2020-01-01", "s", "l", "extra"}),
		{Statement: "A", Link: "https://site/a"},
	}

	res := Merge(model.Batch{record("B", "https://site/b")}, history)

	require.Len(t, res.Combined, 3)
	assert.Equal(t, history, res.Combined[:2])
	assert.Equal(t, []string{"extra"}, res.Combined[0].Extra)
}

func TestMerge_DoesNotAliasHistory(t *testing.T) {
	history := make([]model.Row, 1, 4)
	history[0] = model.Row{Statement: "A", Link: "https://site/a"}

	res := Merge(model.Batch{record("B", "https://site/b")}, history)
	res.Combined[0].Statement = "changed"

	assert.Equal(t, "A", history[0].Statement)
}

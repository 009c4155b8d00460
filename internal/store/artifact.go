package store

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/ppiankov/factharvest/internal/model"
)

// ArtifactPath returns the path of the batch artifact of a run
func ArtifactPath(dir, runID string, day time.Time) string {
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	return filepath.Join(dir, fmt.Sprintf("scraped_data_%s_%s.csv", day.Format(model.DateLayout), short))
}

// WriteBatchArtifact writes the harvested batch, header first, to its
// artifact file and returns the path
func WriteBatchArtifact(dir, runID string, day time.Time, batch model.Batch) (string, error) {
	path := ArtifactPath(dir, runID, day)
	err := writeFileAtomic(path, func(w io.Writer) error {
		return EncodeRows(w, batch.Rows())
	})
	if err != nil {
		return "", fmt.Errorf("write batch artifact: %w", err)
	}
	return path, nil
}

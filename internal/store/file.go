package store

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ppiankov/factharvest/internal/model"
)

// FileStore keeps the corpus in a local CSV file
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the CSV file at path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// ReadAll returns every row; a missing file is an empty corpus
func (s *FileStore) ReadAll(ctx context.Context) ([]model.Row, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer func() { _ = f.Close() }()

	return DecodeRows(bufio.NewReader(f))
}

// WriteAll replaces the file atomically
func (s *FileStore) WriteAll(ctx context.Context, rows []model.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeFileAtomic(s.path, func(w io.Writer) error {
		return EncodeRows(w, rows)
	})
}

func (s *FileStore) Close() error { return nil }

// writeFileAtomic writes through a temp file in the target directory and
// renames it over path, so readers see either the old or the new file
func writeFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	buf := bufio.NewWriter(tmp)
	if err := write(buf); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	committed = true
	return nil
}

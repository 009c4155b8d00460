// Package store persists the historical corpus.
package store

import (
	"context"
	"fmt"

	"github.com/ppiankov/factharvest/internal/model"
)

// HistoricalStore holds the full corpus. WriteAll replaces the corpus as a
// whole: either every row is stored or the previous corpus stays intact.
type HistoricalStore interface {
	ReadAll(ctx context.Context) ([]model.Row, error)
	WriteAll(ctx context.Context, rows []model.Row) error
	Close() error
}

// New opens the store selected by cfg.Backend
func New(ctx context.Context, cfg model.StoreConfig) (HistoricalStore, error) {
	switch cfg.Backend {
	case "file", "":
		return NewFileStore(cfg.Path), nil
	case "drive":
		return NewDriveStore(ctx, cfg.Drive)
	case "postgres":
		return NewPostgresStore(ctx, cfg.Postgres)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

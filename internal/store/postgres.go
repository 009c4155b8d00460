package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ppiankov/factharvest/internal/model"
)

// PostgresStore keeps the corpus in a table, one row per corpus line,
// ordered by position
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

var postgresColumns = []string{"position", "statement", "link", "date", "source", "label", "extra"}

// NewPostgresStore connects and makes sure the corpus table exists.
// The table name is validated by model.Config.Validate.
func NewPostgresStore(ctx context.Context, cfg model.PostgresStoreConfig) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PostgresStore{pool: pool, table: cfg.Table}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the corpus table when missing
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		position  BIGINT PRIMARY KEY,
		statement TEXT NOT NULL,
		link      TEXT NOT NULL,
		date      TEXT NOT NULL,
		source    TEXT NOT NULL,
		label     TEXT NOT NULL,
		extra     TEXT[] NOT NULL DEFAULT '{}'
	)`, s.ident()))
	if err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

func (s *PostgresStore) ReadAll(ctx context.Context) ([]model.Row, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT statement, link, date, source, label, extra FROM %s ORDER BY position`, s.ident()))
	if err != nil {
		return nil, fmt.Errorf("query corpus: %w", err)
	}
	defer rows.Close()

	var out []model.Row
	for rows.Next() {
		var row model.Row
		if err := rows.Scan(&row.Statement, &row.Link, &row.Date, &row.Source, &row.Label, &row.Extra); err != nil {
			return nil, fmt.Errorf("scan corpus row: %w", err)
		}
		if len(row.Extra) == 0 {
			row.Extra = nil
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	return out, nil
}

// WriteAll replaces the table contents in one transaction
func (s *PostgresStore) WriteAll(ctx context.Context, rows []model.Row) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, s.ident())); err != nil {
			return fmt.Errorf("clear corpus: %w", err)
		}

		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{s.table},
			postgresColumns,
			pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
				r := rows[i]
				extra := r.Extra
				if extra == nil {
					extra = []string{}
				}
				return []any{int64(i), r.Statement, r.Link, r.Date, r.Source, r.Label, extra}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy corpus: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) ident() string {
	return pgx.Identifier{s.table}.Sanitize()
}

// Package gallery persists imported assets in an embedded SQLite database.
// It is the reference implementation of the collector collaborator: the
// import pipeline hands it normalized assets and the download pipeline reads
// selections back. The core pipeline itself never depends on this package —
// it only sees the Collector callback.
package gallery

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".

	"galleryflow/internal/asset"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// StoredAsset is one persisted asset row.
type StoredAsset struct {
	RowID      string
	Gallery    string
	Asset      asset.Asset
	ImportedAt time.Time
}

// Store wraps the SQLite database holding gallery assets.
// SetMaxOpenConns(1) keeps it a sole-writer database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at dbPath and applies all
// pending schema migrations.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("gallery: opening database %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("gallery: enabling WAL: %w", err)
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("gallery store opened",
		slog.String("path", dbPath),
	)

	return &Store{db: db, logger: logger}, nil
}

// runMigrations applies all pending schema migrations to the database.
// Uses the goose v3 Provider API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("gallery: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("gallery: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("gallery: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveAssets inserts all assets into the named gallery in one transaction.
// It satisfies the picker's Collector shape via a closure in the caller.
// Saving an empty slice is a no-op, matching the collector contract for
// empty selections.
func (s *Store) SaveAssets(ctx context.Context, galleryName string, assets []asset.Asset) error {
	if len(assets) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("gallery: begin save: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO assets
			(row_id, gallery, provider_id, name, mime_type, size, url, provenance, created_at, imported_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("gallery: prepare save: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()

	for _, a := range assets {
		if _, err := stmt.ExecContext(ctx,
			uuid.NewString(), galleryName, a.ID, a.Name, a.MimeType, a.Size,
			a.URL, string(a.Provenance), a.CreatedAt.UTC().Unix(), now.Unix(),
		); err != nil {
			return fmt.Errorf("gallery: inserting asset %q: %w", a.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("gallery: commit save: %w", err)
	}

	s.logger.Info("saved assets",
		slog.String("gallery", galleryName),
		slog.Int("count", len(assets)),
	)

	return nil
}

// ListAssets returns the gallery's assets in import order.
func (s *Store) ListAssets(ctx context.Context, galleryName string) ([]StoredAsset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT row_id, gallery, provider_id, name, mime_type, size, url, provenance, created_at, imported_at
			FROM assets WHERE gallery = ? ORDER BY imported_at, rowid`, galleryName)
	if err != nil {
		return nil, fmt.Errorf("gallery: listing assets: %w", err)
	}
	defer rows.Close()

	var out []StoredAsset

	for rows.Next() {
		var (
			sa                    StoredAsset
			provenance            string
			createdAt, importedAt int64
		)

		if err := rows.Scan(&sa.RowID, &sa.Gallery, &sa.Asset.ID, &sa.Asset.Name,
			&sa.Asset.MimeType, &sa.Asset.Size, &sa.Asset.URL, &provenance,
			&createdAt, &importedAt); err != nil {
			return nil, fmt.Errorf("gallery: scanning asset row: %w", err)
		}

		sa.Asset.Provenance = asset.Provenance(provenance)
		sa.Asset.CreatedAt = time.Unix(createdAt, 0).UTC()
		sa.ImportedAt = time.Unix(importedAt, 0).UTC()

		out = append(out, sa)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("gallery: iterating asset rows: %w", err)
	}

	return out, nil
}

// GetAssets returns the assets for the given row IDs, in the given order.
// Unknown IDs are skipped.
func (s *Store) GetAssets(ctx context.Context, galleryName string, rowIDs []string) ([]StoredAsset, error) {
	byID := make(map[string]StoredAsset)

	all, err := s.ListAssets(ctx, galleryName)
	if err != nil {
		return nil, err
	}

	for _, sa := range all {
		byID[sa.RowID] = sa
	}

	out := make([]StoredAsset, 0, len(rowIDs))

	for _, id := range rowIDs {
		if sa, ok := byID[id]; ok {
			out = append(out, sa)
		}
	}

	return out, nil
}

// Galleries returns the distinct gallery names in the store.
func (s *Store) Galleries(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT gallery FROM assets ORDER BY gallery`)
	if err != nil {
		return nil, fmt.Errorf("gallery: listing galleries: %w", err)
	}
	defer rows.Close()

	var names []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("gallery: scanning gallery name: %w", err)
		}

		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("gallery: iterating gallery names: %w", err)
	}

	return names, nil
}

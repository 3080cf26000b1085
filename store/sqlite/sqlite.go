/*
Package sqlite provides a SQLite-backed implementation of store.Store.

PURPOSE:
  Persists the staging and production areas of every domain in one
  documents table, plus audit tables for promotions and stale-staging
  purges. In production the same patterns apply to PostgreSQL with minor
  dialect differences.

KEY TABLES:
  documents:   (area, domain, id) → ordered JSON document
  promotions:  one row per successful staging → production promotion
  purge_runs:  one row per stale staging snapshot dropped by the janitor

ATOMIC PROMOTION:
  Promote runs in a single SQL transaction: production rows are replaced
  by a copy of the staging rows, staging rows are deleted, and the audit
  row is written. Any failure rolls the whole thing back.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. An in-memory database is pinned to
  a single connection so every query sees the same data.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  st, err := sqlite.New("./data/staging.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

SEE ALSO:
  - store/store.go: Interface definitions
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/staging-engine/store"
)

// timeLayout is fixed width so timestamp columns sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements store.Store using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if strings.HasPrefix(dbPath, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Staged and committed documents
	CREATE TABLE IF NOT EXISTS documents (
		area TEXT NOT NULL,
		domain TEXT NOT NULL,
		id TEXT NOT NULL,
		position INTEGER NOT NULL,
		data_json TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (area, domain, id)
	);

	-- Ordered listing of one area (hot path)
	CREATE INDEX IF NOT EXISTS idx_documents_area_domain_position
		ON documents(area, domain, position);

	-- Promotion audit
	CREATE TABLE IF NOT EXISTS promotions (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		record_count INTEGER NOT NULL,
		promoted_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_promotions_domain
		ON promotions(domain, promoted_at DESC);

	-- Stale staging purges
	CREATE TABLE IF NOT EXISTS purge_runs (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		record_count INTEGER NOT NULL,
		purged_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_purge_runs_domain
		ON purge_runs(domain, purged_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// List returns the documents of one area in position order.
func (s *Store) List(ctx context.Context, area store.Area, domain string) ([]store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listDocuments(ctx, s.db, area, domain)
}

func listDocuments(ctx context.Context, db querier, area store.Area, domain string) ([]store.Document, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, data_json
		FROM documents
		WHERE area = ? AND domain = ?
		ORDER BY position ASC
	`, area, domain)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	docs := []store.Document{}
	for rows.Next() {
		var (
			doc  store.Document
			data string
		)
		if err := rows.Scan(&doc.ID, &data); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc.Data = json.RawMessage(data)
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Replace swaps the whole area for docs in one transaction.
func (s *Store) Replace(ctx context.Context, area store.Area, domain string, docs []store.Document) error {
	if err := store.CheckUnique(docs); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM documents WHERE area = ? AND domain = ?", area, domain); err != nil {
		return fmt.Errorf("failed to clear %s %s: %w", domain, area, err)
	}

	now := s.now().UTC().Format(timeLayout)
	for i, doc := range docs {
		if err := insertDocument(ctx, tx, area, domain, i, doc, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertDocument(ctx context.Context, db execer, area store.Area, domain string, pos int, doc store.Document, now string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO documents (area, domain, id, position, data_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, area, domain, doc.ID, pos, string(doc.Data), now)
	if err != nil {
		if isUniqueConstraintError(err) {
			return store.ErrDuplicateID
		}
		return fmt.Errorf("failed to insert document %q: %w", doc.ID, err)
	}
	return nil
}

// Delete removes one document.
func (s *Store) Delete(ctx context.Context, area store.Area, domain, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE area = ? AND domain = ? AND id = ?", area, domain, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// PurgeIfUnchanged reads and clears the area in one transaction, so a
// Replace cannot land between the comparison and the delete.
func (s *Store) PurgeIfUnchanged(ctx context.Context, area store.Area, domain string, seen []store.Document) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := listDocuments(ctx, tx, area, domain)
	if err != nil {
		return 0, err
	}
	if !store.SameDocuments(current, seen) {
		return 0, store.ErrChanged
	}

	res, err := tx.ExecContext(ctx,
		"DELETE FROM documents WHERE area = ? AND domain = ?", area, domain)
	if err != nil {
		return 0, fmt.Errorf("failed to purge %s %s: %w", domain, area, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit purge: %w", err)
	}
	return int(n), nil
}

// =============================================================================
// PROMOTION
// =============================================================================

// Promote copies staging over production and clears staging atomically.
func (s *Store) Promote(ctx context.Context, domain string) (store.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Promotion{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE area = ? AND domain = ?",
		store.Staging, domain,
	).Scan(&count); err != nil {
		return store.Promotion{}, fmt.Errorf("failed to count staging: %w", err)
	}
	if count == 0 {
		return store.Promotion{}, store.ErrNothingToPromote
	}

	now := s.now()
	stamp := now.UTC().Format(timeLayout)

	steps := []struct {
		query string
		args  []any
	}{
		{"DELETE FROM documents WHERE area = ? AND domain = ?",
			[]any{store.Production, domain}},
		{`INSERT INTO documents (area, domain, id, position, data_json, updated_at)
		  SELECT ?, domain, id, position, data_json, ?
		  FROM documents WHERE area = ? AND domain = ?`,
			[]any{store.Production, stamp, store.Staging, domain}},
		{"DELETE FROM documents WHERE area = ? AND domain = ?",
			[]any{store.Staging, domain}},
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, step.query, step.args...); err != nil {
			return store.Promotion{}, fmt.Errorf("failed to promote %s: %w", domain, err)
		}
	}

	p := store.Promotion{
		ID:          uuid.NewString(),
		Domain:      domain,
		RecordCount: count,
		PromotedAt:  now,
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO promotions (id, domain, record_count, promoted_at)
		VALUES (?, ?, ?, ?)
	`, p.ID, p.Domain, p.RecordCount, stamp); err != nil {
		return store.Promotion{}, fmt.Errorf("failed to record promotion: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return store.Promotion{}, fmt.Errorf("failed to commit promotion: %w", err)
	}
	return p, nil
}

// Promotions returns the most recent promotions of a domain, newest first.
// An empty domain lists all domains.
func (s *Store) Promotions(ctx context.Context, domain string, limit int) ([]store.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, domain, record_count, promoted_at FROM promotions"
	var args []any
	if domain != "" {
		query += " WHERE domain = ?"
		args = append(args, domain)
	}
	query += " ORDER BY promoted_at DESC, rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query promotions: %w", err)
	}
	defer rows.Close()

	out := []store.Promotion{}
	for rows.Next() {
		var (
			p     store.Promotion
			stamp string
		)
		if err := rows.Scan(&p.ID, &p.Domain, &p.RecordCount, &stamp); err != nil {
			return nil, fmt.Errorf("failed to scan promotion: %w", err)
		}
		p.PromotedAt, _ = time.Parse(timeLayout, stamp)
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// PURGE AUDIT
// =============================================================================

// RecordPurge saves a janitor run.
func (s *Store) RecordPurge(ctx context.Context, run store.PurgeRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.PurgedAt.IsZero() {
		run.PurgedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO purge_runs (id, domain, record_count, purged_at)
		VALUES (?, ?, ?, ?)
	`, run.ID, run.Domain, run.RecordCount, run.PurgedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to record purge: %w", err)
	}
	return nil
}

// PurgeRuns returns the most recent purges, newest first.
func (s *Store) PurgeRuns(ctx context.Context, domain string, limit int) ([]store.PurgeRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, domain, record_count, purged_at FROM purge_runs"
	var args []any
	if domain != "" {
		query += " WHERE domain = ?"
		args = append(args, domain)
	}
	query += " ORDER BY purged_at DESC, rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query purge runs: %w", err)
	}
	defer rows.Close()

	out := []store.PurgeRun{}
	for rows.Next() {
		var (
			r     store.PurgeRun
			stamp string
		)
		if err := rows.Scan(&r.ID, &r.Domain, &r.RecordCount, &stamp); err != nil {
			return nil, fmt.Errorf("failed to scan purge run: %w", err)
		}
		r.PurgedAt, _ = time.Parse(timeLayout, stamp)
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"documents", "promotions", "purge_runs"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

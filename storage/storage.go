// Package storage persists retrieved documents and run statistics in
// SQLite, so re-runs skip content that was already fetched.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Document is a cached retrieval result.
type Document struct {
	DocumentNumber  string
	Title           string
	AgencySlug      string
	PublicationDate string
	Content         string
	ContentSource   string
	ContentLength   int
	FetchedAt       time.Time
}

// Run records the aggregate outcome of one agency retrieval run.
type Run struct {
	ID         string
	AgencySlug string
	Attempted  int
	Succeeded  int
	Failed     int
	Incomplete bool
	StartedAt  time.Time
	Elapsed    time.Duration
}

const createTablesSQL = `
CREATE TABLE IF NOT EXISTS documents (
	document_number  TEXT PRIMARY KEY,
	title            TEXT NOT NULL DEFAULT '',
	agency_slug      TEXT NOT NULL DEFAULT '',
	publication_date TEXT NOT NULL DEFAULT '',
	content          TEXT NOT NULL DEFAULT '',
	content_source   TEXT NOT NULL DEFAULT '',
	content_length   INTEGER NOT NULL DEFAULT 0,
	fetched_at       TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_agency ON documents(agency_slug);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	agency_slug TEXT NOT NULL,
	attempted   INTEGER NOT NULL,
	succeeded   INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	incomplete  INTEGER NOT NULL DEFAULT 0,
	started_at  TIMESTAMP NOT NULL,
	elapsed_ms  INTEGER NOT NULL
);
`

// New opens the SQLite database at dbPath, creates tables if they don't
// exist, and returns a Store.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: set WAL mode: %w", err)
	}

	if _, err := db.Exec(createTablesSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: create tables: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveDocument inserts or replaces a cached document.
func (s *Store) SaveDocument(doc *Document) error {
	fetchedAt := doc.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO documents
			(document_number, title, agency_slug, publication_date,
			 content, content_source, content_length, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.DocumentNumber, doc.Title, doc.AgencySlug, doc.PublicationDate,
		doc.Content, doc.ContentSource, doc.ContentLength, fetchedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: save document %s: %w", doc.DocumentNumber, err)
	}
	return nil
}

// GetDocument looks up a cached document by its document number.
// Returns nil if no document is found.
func (s *Store) GetDocument(documentNumber string) (*Document, error) {
	var doc Document
	err := s.db.QueryRow(
		`SELECT document_number, title, agency_slug, publication_date,
		        content, content_source, content_length, fetched_at
		 FROM documents WHERE document_number = ?`, documentNumber,
	).Scan(&doc.DocumentNumber, &doc.Title, &doc.AgencySlug,
		&doc.PublicationDate, &doc.Content, &doc.ContentSource,
		&doc.ContentLength, &doc.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get document %s: %w", documentNumber, err)
	}
	return &doc, nil
}

// GetDocumentsByAgency returns an agency's cached documents ordered by
// publication date, newest first. limit <= 0 means no limit.
func (s *Store) GetDocumentsByAgency(agencySlug string, limit int) ([]Document, error) {
	query := `SELECT document_number, title, agency_slug, publication_date,
	                 content, content_source, content_length, fetched_at
	          FROM documents WHERE agency_slug = ?
	          ORDER BY publication_date DESC, document_number`
	args := []any{agencySlug}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list documents for %s: %w", agencySlug, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.DocumentNumber, &doc.Title, &doc.AgencySlug,
			&doc.PublicationDate, &doc.Content, &doc.ContentSource,
			&doc.ContentLength, &doc.FetchedAt); err != nil {
			return nil, fmt.Errorf("storage: scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate documents: %w", err)
	}
	return docs, nil
}

// CountByAgency returns how many documents are cached for an agency.
func (s *Store) CountByAgency(agencySlug string) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM documents WHERE agency_slug = ?`, agencySlug,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("storage: count documents for %s: %w", agencySlug, err)
	}
	return count, nil
}

// SaveRun records the statistics of one completed run.
func (s *Store) SaveRun(run *Run) error {
	startedAt := run.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (id, agency_slug, attempted, succeeded, failed,
		                   incomplete, started_at, elapsed_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.AgencySlug, run.Attempted, run.Succeeded, run.Failed,
		run.Incomplete, startedAt, run.Elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("storage: save run %s: %w", run.ID, err)
	}
	return nil
}

// RecentRuns returns the most recent runs, newest first.
func (s *Store) RecentRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, agency_slug, attempted, succeeded, failed, incomplete,
		        started_at, elapsed_ms
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var elapsedMS int64
		if err := rows.Scan(&run.ID, &run.AgencySlug, &run.Attempted,
			&run.Succeeded, &run.Failed, &run.Incomplete,
			&run.StartedAt, &elapsedMS); err != nil {
			return nil, fmt.Errorf("storage: scan run: %w", err)
		}
		run.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate runs: %w", err)
	}
	return runs, nil
}

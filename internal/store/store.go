// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists collected table records in a SQLite database
// and serves queries over them. It is the durable sink for the
// collection stage: a record handed to the store is written before the
// handler returns.
// Implements: prd012-record-store (R1-R5);
//
//	docs/ARCHITECTURE § Record Store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/census-collector/pkg/types"
)

const (
	indexDir  = "index"
	exportDir = "export"
	dbFile    = "records.db"
)

// Store manages the records SQLite database.
type Store struct {
	db         *sql.DB
	storeDir   string
	maxResults int
}

// NewStore opens or creates the records database at
// storeDir/index/records.db, creating the schema if needed.
func NewStore(cfg types.StoreConfig) (*Store, error) {
	dbDir := filepath.Join(cfg.StoreDir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(dbDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}

	s := &Store{
		db:         db,
		storeDir:   cfg.StoreDir,
		maxResults: maxResults,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS records (
			table_id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT,
			survey TEXT,
			universe TEXT,
			year TEXT,
			vintage TEXT,
			url TEXT NOT NULL,
			geography TEXT,
			variables TEXT,
			data TEXT,
			variables_omitted INTEGER NOT NULL DEFAULT 0,
			data_omitted INTEGER NOT NULL DEFAULT 0,
			fetched_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_year ON records(year)`,
		`CREATE INDEX IF NOT EXISTS idx_records_survey ON records(survey)`,
		`CREATE TABLE IF NOT EXISTS errors (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			table_id TEXT,
			entity_id TEXT,
			error_message TEXT NOT NULL,
			fetched_at TEXT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 virtual table over titles and descriptions, with sync triggers.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='records_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE records_fts USING fts5(table_id, title, description)`,
			`CREATE TRIGGER records_ai AFTER INSERT ON records BEGIN
				INSERT INTO records_fts(table_id, title, description)
				VALUES (new.table_id, new.title, new.description);
			END`,
			`CREATE TRIGGER records_ad AFTER DELETE ON records BEGIN
				DELETE FROM records_fts WHERE table_id = old.table_id;
			END`,
			`CREATE TRIGGER records_au AFTER UPDATE ON records BEGIN
				DELETE FROM records_fts WHERE table_id = old.table_id;
				INSERT INTO records_fts(table_id, title, description)
				VALUES (new.table_id, new.title, new.description);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}

	return nil
}

// HandleRecord upserts one collected record, keyed by table identifier.
func (s *Store) HandleRecord(ctx context.Context, rec *types.OutputRecord) error {
	var variablesJSON []byte
	if rec.Variables != nil {
		var err error
		variablesJSON, err = json.Marshal(rec.Variables)
		if err != nil {
			return fmt.Errorf("marshaling variables for %s: %w", rec.TableID, err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (table_id, title, description, survey, universe, year, vintage,
			url, geography, variables, data, variables_omitted, data_omitted, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(table_id) DO UPDATE SET
			title=excluded.title, description=excluded.description, survey=excluded.survey,
			universe=excluded.universe, year=excluded.year, vintage=excluded.vintage,
			url=excluded.url, geography=excluded.geography, variables=excluded.variables,
			data=excluded.data, variables_omitted=excluded.variables_omitted,
			data_omitted=excluded.data_omitted, fetched_at=excluded.fetched_at`,
		rec.TableID, rec.Title, rec.Description, rec.Survey, rec.Universe,
		rec.Year, rec.Vintage, rec.URL, rec.Geography,
		nullableString(variablesJSON), nullableString(rec.Data),
		boolToInt(rec.VariablesOmitted), boolToInt(rec.DataOmitted), rec.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting record %s: %w", rec.TableID, err)
	}
	return nil
}

// HandleError appends one error record.
func (s *Store) HandleError(ctx context.Context, rec *types.ErrorRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO errors (table_id, entity_id, error_message, fetched_at)
		 VALUES (?, ?, ?, ?)`,
		rec.TableID, rec.EntityID, rec.ErrorMessage, rec.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting error record: %w", err)
	}
	return nil
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pdiddy/census-collector/pkg/types"
)

// QueryOptions filters record queries. Zero values mean no filter; a
// zero Limit falls back to the store's configured maximum.
type QueryOptions struct {
	// FullText matches titles and descriptions via the FTS index.
	FullText string

	// Survey filters by survey/program name (exact match).
	Survey string

	// Year filters by reference year.
	Year string

	// Limit caps the number of returned records.
	Limit int
}

// Records returns stored records matching opts, most recently fetched first.
func (s *Store) Records(ctx context.Context, opts QueryOptions) ([]types.OutputRecord, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = s.maxResults
	}

	var (
		conditions []string
		args       []any
	)

	query := `SELECT r.table_id, r.title, r.description, r.survey, r.universe, r.year,
		r.vintage, r.url, r.geography, r.variables, r.data,
		r.variables_omitted, r.data_omitted, r.fetched_at FROM records r`

	if opts.FullText != "" {
		query += ` JOIN records_fts f ON f.table_id = r.table_id`
		conditions = append(conditions, `records_fts MATCH ?`)
		args = append(args, opts.FullText)
	}
	if opts.Survey != "" {
		conditions = append(conditions, `r.survey = ?`)
		args = append(args, opts.Survey)
	}
	if opts.Year != "" {
		conditions = append(conditions, `r.year = ?`)
		args = append(args, opts.Year)
	}

	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, ` AND `)
	}
	query += ` ORDER BY r.fetched_at DESC, r.table_id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var records []types.OutputRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Errors returns stored error records, most recent first.
func (s *Store) Errors(ctx context.Context, limit int) ([]types.ErrorRecord, error) {
	if limit <= 0 {
		limit = s.maxResults
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT table_id, entity_id, error_message, fetched_at
		 FROM errors ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying errors: %w", err)
	}
	defer rows.Close()

	var records []types.ErrorRecord
	for rows.Next() {
		var rec types.ErrorRecord
		var tableID, entityID sql.NullString
		if err := rows.Scan(&tableID, &entityID, &rec.ErrorMessage, &rec.FetchedAt); err != nil {
			return nil, fmt.Errorf("scanning error record: %w", err)
		}
		rec.TableID = tableID.String
		rec.EntityID = entityID.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Counts returns the number of stored records and error records.
func (s *Store) Counts(ctx context.Context) (records, errors int, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT count(*) FROM records`).Scan(&records); err != nil {
		return 0, 0, fmt.Errorf("counting records: %w", err)
	}
	if err = s.db.QueryRowContext(ctx, `SELECT count(*) FROM errors`).Scan(&errors); err != nil {
		return 0, 0, fmt.Errorf("counting errors: %w", err)
	}
	return records, errors, nil
}

func scanRecord(rows *sql.Rows) (types.OutputRecord, error) {
	var (
		rec                           types.OutputRecord
		description, survey           sql.NullString
		universe, year, vintage       sql.NullString
		geography, variablesJSON      sql.NullString
		dataJSON                      sql.NullString
		variablesOmitted, dataOmitted int
	)

	if err := rows.Scan(&rec.TableID, &rec.Title, &description, &survey, &universe,
		&year, &vintage, &rec.URL, &geography, &variablesJSON, &dataJSON,
		&variablesOmitted, &dataOmitted, &rec.FetchedAt); err != nil {
		return types.OutputRecord{}, fmt.Errorf("scanning record: %w", err)
	}

	rec.Description = description.String
	rec.Survey = survey.String
	rec.Universe = universe.String
	rec.Year = year.String
	rec.Vintage = vintage.String
	rec.Geography = geography.String
	rec.VariablesOmitted = variablesOmitted != 0
	rec.DataOmitted = dataOmitted != 0

	if variablesJSON.Valid && variablesJSON.String != "" {
		var vars types.VariableSet
		if err := json.Unmarshal([]byte(variablesJSON.String), &vars); err != nil {
			return types.OutputRecord{}, fmt.Errorf("parsing variables for %s: %w", rec.TableID, err)
		}
		rec.Variables = &vars
	}
	if dataJSON.Valid && dataJSON.String != "" {
		rec.Data = json.RawMessage(dataJSON.String)
	}

	return rec, nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/census-collector/pkg/types"
)

// QueryFile is the on-disk representation of a table search and its
// candidates. A search can be saved to a file and replayed by the collect
// command later without re-querying the upstream APIs.
// Implements: prd010-table-search R1.6, R4.6.
type QueryFile struct {
	Query      QueryParams             `yaml:"query"`
	Config     QueryFileConfig         `yaml:"config"`
	Candidates []types.CandidateEntity `yaml:"candidates"`
	Summary    QuerySummary            `yaml:"summary"`
}

// QueryParams stores the query in a serializable form.
type QueryParams struct {
	FreeText string   `yaml:"free_text"`
	Dataset  string   `yaml:"dataset,omitempty"`
	Year     string   `yaml:"year,omitempty"`
	Terms    []string `yaml:"terms,omitempty"`
	Broad    bool     `yaml:"broad,omitempty"`
}

// QueryFileConfig stores the search configuration that produced the candidates.
type QueryFileConfig struct {
	MaxResults int `yaml:"max_results"`
	PageSize   int `yaml:"page_size"`
}

// QuerySummary stores candidate statistics and a timestamp.
type QuerySummary struct {
	Total             int       `yaml:"total"`
	DuplicatesRemoved int       `yaml:"duplicates_removed"`
	Dropped           int       `yaml:"dropped"`
	Timestamp         time.Time `yaml:"timestamp"`
}

// WriteQueryFile saves the query and its candidates to a YAML file.
func WriteQueryFile(path, query string, cfg types.SearchConfig, out Output) error {
	qf := QueryFile{
		Query: QueryParams{
			FreeText: query,
			Dataset:  cfg.Dataset,
			Year:     cfg.Year,
			Terms:    out.Terms,
			Broad:    out.Broad,
		},
		Config: QueryFileConfig{
			MaxResults: cfg.MaxResults,
			PageSize:   cfg.PageSize,
		},
		Candidates: out.Candidates,
		Summary: QuerySummary{
			Total:             len(out.Candidates),
			DuplicatesRemoved: out.DupsRemoved,
			Dropped:           out.Dropped,
			Timestamp:         time.Now().UTC(),
		},
	}

	data, err := yaml.Marshal(qf)
	if err != nil {
		return fmt.Errorf("marshaling query file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing query file %s: %w", path, err)
	}
	return nil
}

// ReadQueryFile loads a saved search from a YAML file.
func ReadQueryFile(path string) (QueryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return QueryFile{}, fmt.Errorf("reading query file %s: %w", path, err)
	}
	var qf QueryFile
	if err := yaml.Unmarshal(data, &qf); err != nil {
		return QueryFile{}, fmt.Errorf("parsing query file %s: %w", path, err)
	}
	return qf, nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "census-collector/0.1"). Per prd010-table-search R5.2.
	UserAgent string `json:"user_agent" yaml:"user_agent"`

	// APIKey is an optional upstream API key, sent as the "key" query
	// parameter when set.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
}

// SearchConfig holds settings for the search stage.
// Per prd010-table-search R1.4, R2.3, R5.1-R5.5.
type SearchConfig struct {
	HTTPConfig `yaml:",inline"`

	// MaxResults caps the number of unique candidates returned (default 20).
	MaxResults int `json:"max_results" yaml:"max_results"`

	// PageSize is the search page size; a page shorter than this signals
	// upstream exhaustion (default 25).
	PageSize int `json:"page_size" yaml:"page_size"`

	// Dataset restricts resolution probing and result filtering to one
	// dataset family (e.g. "acs/acs1").
	Dataset string `json:"dataset,omitempty" yaml:"dataset,omitempty"`

	// Year is a four-digit year, prioritized in resolution probing and
	// applied as a result filter.
	Year string `json:"year,omitempty" yaml:"year,omitempty"`

	// EarlyExitFactor scales the unique-candidate threshold at which a
	// non-broad query stops issuing further probe terms. Historical
	// variants used 1x and 2x the cap; the threshold is a heuristic, not
	// load-bearing. Zero means 1.0.
	EarlyExitFactor float64 `json:"early_exit_factor,omitempty" yaml:"early_exit_factor,omitempty"`

	// InterTermDelay is the delay between probe-term requests (default 0).
	InterTermDelay time.Duration `json:"inter_term_delay,omitempty" yaml:"inter_term_delay,omitempty"`
}

// CollectionConfig holds settings for the collection stage.
// Per prd011-collection R2.1, R5.1-R5.3.
type CollectionConfig struct {
	HTTPConfig `yaml:",inline"`

	// BatchSize is the number of identifiers fetched concurrently per
	// batch (default 20).
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// BatchDelay is the fixed delay between consecutive batches, applied
	// once per batch rather than per request (default 1s).
	BatchDelay time.Duration `json:"batch_delay" yaml:"batch_delay"`

	// MaxItems is the hard cap on emitted records (successes + errors)
	// for one run. Zero means unlimited.
	MaxItems int `json:"max_items" yaml:"max_items"`

	// SizeBudget is the maximum serialized record size in bytes before
	// the output guard starts dropping fields (default 9 MiB).
	SizeBudget int `json:"size_budget" yaml:"size_budget"`

	// Geography is an advisory geography-level filter forwarded to the
	// data endpoint when supported upstream; not enforced locally.
	Geography string `json:"geography,omitempty" yaml:"geography,omitempty"`

	// SkipData disables the data fetch entirely, collecting metadata only.
	SkipData bool `json:"skip_data,omitempty" yaml:"skip_data,omitempty"`
}

// StoreConfig holds settings for the record store.
// Per prd012-record-store R1.2, R2.3.
type StoreConfig struct {
	// StoreDir is the base directory for the store (contains index/, export/).
	StoreDir string `json:"store_dir" yaml:"store_dir"`

	// MaxResults is the default maximum number of query results (default 20).
	MaxResults int `json:"max_results" yaml:"max_results"`
}

// PipelineConfig groups all stage configurations for the pipeline.
type PipelineConfig struct {
	Search     SearchConfig     `json:"search" yaml:"search"`
	Collection CollectionConfig `json:"collection" yaml:"collection"`
	Store      StoreConfig      `json:"store" yaml:"store"`
}

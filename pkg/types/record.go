// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "encoding/json"

// VariableSet groups the normalized variable definitions of a table,
// split into measures and dimensions. The full raw upstream variable
// structure is never forwarded; only id/label (+dimension type) survive.
type VariableSet struct {
	Measures   []Variable  `json:"measures,omitempty" yaml:"measures,omitempty"`
	Dimensions []Dimension `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
}

// IsEmpty reports whether the set carries no definitions at all.
func (v VariableSet) IsEmpty() bool {
	return len(v.Measures) == 0 && len(v.Dimensions) == 0
}

// OutputRecord is the canonical normalized record for one collected table.
// TableID, Title, URL, and FetchedAt are always present; every other field
// is optional and omitted from serialization when unknown or dropped by
// the size guard.
type OutputRecord struct {
	// TableID is the fully-qualified identifier.
	TableID string `json:"table_id" yaml:"table_id"`

	// Title is the table title, or "Unavailable" when no usable title exists.
	Title string `json:"title" yaml:"title"`

	// Description is the long-form table description.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Survey is the survey/program name.
	Survey string `json:"survey,omitempty" yaml:"survey,omitempty"`

	// Universe describes the population the table covers.
	Universe string `json:"universe,omitempty" yaml:"universe,omitempty"`

	// Year is the reference year the data describes.
	Year string `json:"year,omitempty" yaml:"year,omitempty"`

	// Vintage is the publication vintage the estimates were released under.
	Vintage string `json:"vintage,omitempty" yaml:"vintage,omitempty"`

	// URL is the canonical viewer URL for the table.
	URL string `json:"url" yaml:"url"`

	// Geography is the label of the table's geography dimension item.
	Geography string `json:"geography,omitempty" yaml:"geography,omitempty"`

	// Variables holds the normalized variable definitions. Nil when the
	// size guard dropped them (see VariablesOmitted).
	Variables *VariableSet `json:"variables,omitempty" yaml:"variables,omitempty"`

	// Data is the raw data payload, forwarded verbatim. Nil when absent
	// upstream or dropped by the size guard (see DataOmitted). Excluded
	// from YAML export, which carries definitions only.
	Data json.RawMessage `json:"data,omitempty" yaml:"-"`

	// VariablesOmitted is set when the size guard dropped Variables.
	VariablesOmitted bool `json:"variables_omitted,omitempty" yaml:"variables_omitted,omitempty"`

	// DataOmitted is set when the size guard dropped Data.
	DataOmitted bool `json:"data_omitted,omitempty" yaml:"data_omitted,omitempty"`

	// FetchedAt is the capture timestamp in RFC 3339 UTC.
	FetchedAt string `json:"fetched_at" yaml:"fetched_at"`
}

// ErrorRecord reports a per-identifier failure. ErrorMessage and FetchedAt
// are always present; at most one of TableID and EntityID is populated.
type ErrorRecord struct {
	// TableID is the fully-qualified identifier, when known.
	TableID string `json:"table_id,omitempty" yaml:"table_id,omitempty"`

	// EntityID is the failing search entity's identifier, when the failure
	// happened before a fully-qualified identifier existed.
	EntityID string `json:"entity_id,omitempty" yaml:"entity_id,omitempty"`

	// ErrorMessage is the human-readable failure description.
	ErrorMessage string `json:"error_message" yaml:"error_message"`

	// FetchedAt is the capture timestamp in RFC 3339 UTC.
	FetchedAt string `json:"fetched_at" yaml:"fetched_at"`
}

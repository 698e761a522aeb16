// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the census-collector pipeline.
// Implements: prd010-table-search (CandidateEntity, TableID);
//
//	prd011-collection (MergedTable, OutputRecord, ErrorRecord);
//	docs/ARCHITECTURE § Data Structures.
package types

import (
	"fmt"
	"regexp"
	"strings"
)

// TableID is a fully-qualified table identifier: a dataset prefix, a
// four-digit year, and a bare table code, serialized as
// "{prefix}{year}.{code}" (e.g. "ACSDT1Y2021.B01001").
type TableID struct {
	// Prefix identifies the dataset family and estimate type (e.g. "ACSDT1Y").
	Prefix string

	// Year is the four-digit vintage embedded in the identifier.
	Year string

	// Code is the bare, upstream-defined table code (e.g. "B01001").
	Code string
}

// String returns the serialized dotted form. Equality of TableIDs is
// equality of this string. A raw identifier (no prefix/year) serializes
// as its code alone.
func (id TableID) String() string {
	if id.Prefix == "" && id.Year == "" {
		return id.Code
	}
	return id.Prefix + id.Year + "." + id.Code
}

// RawTableID wraps an identifier string that could not be qualified. Used
// as a last resort for directly-supplied identifiers: some endpoints
// tolerate bare codes, and if they do not, the failure surfaces as an
// ordinary error record under the caller's own identifier.
func RawTableID(s string) TableID {
	return TableID{Code: strings.TrimSpace(s)}
}

// IsZero reports whether the identifier is unset.
func (id TableID) IsZero() bool {
	return id.Prefix == "" && id.Year == "" && id.Code == ""
}

// tableIDPattern matches a fully-qualified identifier: a dataset prefix
// ending in four digits immediately before the dot, then the bare code.
var tableIDPattern = regexp.MustCompile(`^([A-Z]+[0-9A-Z]*?)(\d{4})\.([A-Za-z0-9_]+)$`)

// ParseTableID parses a serialized identifier into its components. It
// returns an error when the string does not carry a four-digit year
// immediately before the dataset/table separator.
func ParseTableID(s string) (TableID, error) {
	s = strings.TrimSpace(s)
	m := tableIDPattern.FindStringSubmatch(s)
	if m == nil {
		return TableID{}, fmt.Errorf("not a fully-qualified table identifier: %q", s)
	}
	return TableID{Prefix: m[1], Year: m[2], Code: strings.ToUpper(m[3])}, nil
}

// IsFullyQualified reports whether s parses as a fully-qualified identifier.
func IsFullyQualified(s string) bool {
	_, err := ParseTableID(s)
	return err == nil
}

// EntityHints is the opaque metadata bag carried by a search hit. Fields
// are best-effort and used only to reconstruct fallback metadata when the
// metadata endpoint fails for a search-derived candidate.
type EntityHints struct {
	// Vintage is the publication vintage hinted by the search result.
	Vintage string `json:"vintage,omitempty" yaml:"vintage,omitempty"`

	// Program is the survey/program name (e.g. "American Community Survey").
	Program string `json:"program,omitempty" yaml:"program,omitempty"`

	// Universe describes the population the table covers.
	Universe string `json:"universe,omitempty" yaml:"universe,omitempty"`

	// Dataset is the upstream dataset path (e.g. "acs/acs1"), when exposed.
	Dataset string `json:"dataset,omitempty" yaml:"dataset,omitempty"`
}

// CandidateEntity is a raw search hit prior to collection. Exactly one of
// TableID and BareCode may be empty; a hit carrying only a bare code needs
// identifier resolution before it can be collected.
type CandidateEntity struct {
	// TableID is the fully-qualified identifier, when the backend returns one.
	TableID string `json:"table_id,omitempty" yaml:"table_id,omitempty"`

	// BareCode is the dataset-agnostic table code, when that is all the
	// backend exposes.
	BareCode string `json:"bare_code,omitempty" yaml:"bare_code,omitempty"`

	// Title is the human table title as returned by the source.
	Title string `json:"title" yaml:"title"`

	// Description is the table description or summary.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Source identifies which backend found this entity.
	Source string `json:"source" yaml:"source"`

	// Hints carries vintage/program/universe metadata from the search result.
	Hints EntityHints `json:"hints,omitempty" yaml:"hints,omitempty"`
}

// ID returns the best identifier the entity carries, for diagnostics.
func (e CandidateEntity) ID() string {
	if e.TableID != "" {
		return e.TableID
	}
	return e.BareCode
}

// Variable is a single upstream variable definition, reduced to the
// fields the output schema forwards.
type Variable struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label" yaml:"label"`
}

// Dimension is a categorical breakdown variable. DimensionType identifies
// the axis (geography, time, topic, ...).
type Dimension struct {
	ID            string `json:"id" yaml:"id"`
	Label         string `json:"label" yaml:"label"`
	DimensionType string `json:"dimension_type,omitempty" yaml:"dimension_type,omitempty"`
}

// MetaDimension is a dimension as decoded from the metadata endpoint,
// still carrying its item list. The mapper reduces it to Dimension for
// output and uses the items only for geography extraction.
type MetaDimension struct {
	Dimension `yaml:",inline"`

	// Items lists the dimension's items (e.g. the geographies covered).
	Items []Variable `json:"items,omitempty" yaml:"items,omitempty"`
}

// TableMetadata is the decoded metadata object for one table, already
// flattened out of whichever response nesting the upstream used.
type TableMetadata struct {
	// Title is the metadata-content title.
	Title string

	// Description is the long-form table description.
	Description string

	// Universe describes the population the table covers.
	Universe string

	// Survey is the survey/program name (e.g. "American Community Survey").
	Survey string

	// Vintage is the dataset vintage as reported by the metadata endpoint.
	Vintage string

	// SourceURL is an explicit canonical URL, when the upstream exposes one.
	SourceURL string

	// Measures lists numeric/statistical variables.
	Measures []Variable

	// Dimensions lists categorical breakdown variables with their items.
	Dimensions []MetaDimension
}

// MergedTable is the union of fetched metadata and data for one
// identifier. Built fresh per identifier and never mutated after
// construction; metadata fields win on conflict except the data payload.
type MergedTable struct {
	// ID is the fully-qualified identifier. A zero ID is a caller bug and
	// makes mapping fail with ErrMissingTableID.
	ID TableID

	// Title is the explicit table-level title (search entity or table
	// object), preferred over Meta.Title.
	Title string

	// Meta is the decoded (or entity-derived fallback) metadata. May be nil.
	Meta *TableMetadata

	// Data is the raw data payload. Nil when the data fetch failed or was
	// deliberately skipped; absence is non-fatal.
	Data []byte

	// Year is an explicit reference year supplied by the caller (input
	// filter or search entity), taking priority over derived years.
	Year string

	// Vintage is an explicit publication vintage supplied by the caller.
	Vintage string
}

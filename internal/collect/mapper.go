// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package collect

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pdiddy/census-collector/pkg/types"
)

// ErrMissingTableID reports that a merged table reached the mapper
// without an identifier. This is a caller bug, not a runtime condition,
// and is never converted into an ErrorRecord.
var ErrMissingTableID = errors.New("merged table has no identifier")

// tableViewerBase is the canonical viewer URL prefix used when the
// upstream exposes no explicit source URL.
var tableViewerBase = "https://data.census.gov/table/"

// unavailableTitle is the single placeholder callers see for tables with
// no usable title. The upstream's own "Untitled" placeholder is folded
// into it so there is one sentinel, not two.
const unavailableTitle = "Unavailable"

// mapClock returns the capture timestamp; tests substitute a fixed clock.
var mapClock = time.Now

// MapRecord normalizes a merged table into the canonical output record.
// It fails only when the merged input lacks an identifier.
func MapRecord(m *types.MergedTable) (*types.OutputRecord, error) {
	if m.ID.IsZero() {
		return nil, fmt.Errorf("mapping %q: %w", m.Title, ErrMissingTableID)
	}
	id := m.ID.String()

	meta := m.Meta
	if meta == nil {
		meta = &types.TableMetadata{}
	}

	rec := &types.OutputRecord{
		TableID:     id,
		Title:       normalizeTitle(m.Title, meta.Title),
		Description: meta.Description,
		Survey:      meta.Survey,
		Universe:    meta.Universe,
		Year:        firstNonEmpty(m.Year, meta.Vintage, m.ID.Year),
		Vintage:     firstNonEmpty(m.Vintage, meta.Vintage, m.ID.Year),
		URL:         firstNonEmpty(meta.SourceURL, tableViewerBase+id),
		Geography:   geographyLabel(meta.Dimensions),
		Data:        m.Data,
		FetchedAt:   mapClock().UTC().Format(time.RFC3339),
	}

	vars := types.VariableSet{
		Measures:   meta.Measures,
		Dimensions: reduceDimensions(meta.Dimensions),
	}
	if !vars.IsEmpty() {
		rec.Variables = &vars
	}

	return rec, nil
}

// normalizeTitle prefers the explicit table title over the metadata
// content title and folds empty or "Untitled" values into the single
// unavailable sentinel.
func normalizeTitle(titles ...string) string {
	for _, t := range titles {
		t = strings.TrimSpace(t)
		if t == "" || strings.EqualFold(t, "untitled") || strings.EqualFold(t, "untitled table") {
			continue
		}
		return t
	}
	return unavailableTitle
}

// geographyLabel returns the item label of the first geography-typed
// dimension, or empty when no such dimension exists.
func geographyLabel(dims []types.MetaDimension) string {
	for _, d := range dims {
		if !strings.Contains(strings.ToUpper(d.DimensionType), "GEO") {
			continue
		}
		if len(d.Items) > 0 {
			return d.Items[0].Label
		}
	}
	return ""
}

// reduceDimensions strips item lists so the output carries id, label, and
// dimension type only, never the full nested upstream structure.
func reduceDimensions(dims []types.MetaDimension) []types.Dimension {
	if len(dims) == 0 {
		return nil
	}
	out := make([]types.Dimension, len(dims))
	for i, d := range dims {
		out[i] = d.Dimension
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

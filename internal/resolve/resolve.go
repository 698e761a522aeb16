// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package resolve qualifies bare table codes into fully-qualified table
// identifiers by probing candidate dataset/year combinations against the
// metadata endpoint. A miss is an ordinary outcome, not a failure: many
// probe attempts are expected to land on identifiers that do not exist.
// Implements: prd010-table-search (R3.1-R3.5);
//
//	docs/ARCHITECTURE § Resolution.
package resolve

import (
	"context"
	"errors"
	"strings"

	"github.com/pdiddy/census-collector/pkg/types"
)

// ErrNotFound reports that no dataset/year combination resolved for a
// bare code. Callers decide whether to fall back to the bare code (some
// endpoints tolerate it) or to drop the candidate.
var ErrNotFound = errors.New("no dataset/year combination resolved")

// Prober checks whether a fully-qualified identifier exists upstream.
// Implemented by the collection fetch client against the metadata endpoint.
type Prober interface {
	ProbeMetadata(ctx context.Context, id types.TableID) (bool, error)
}

// datasetPrefixes maps an upstream dataset path to the ordered list of
// identifier prefixes to probe for that family.
var datasetPrefixes = map[string][]string{
	"acs/acs1":  {"ACSDT1Y", "ACSST1Y", "ACSDP1Y"},
	"acs/acs5":  {"ACSDT5Y", "ACSST5Y", "ACSDP5Y"},
	"acs/acsse": {"ACSSE"},
	"dec/pl":    {"DECENNIALPL"},
	"dec/dhc":   {"DECENNIALDHC"},
	"dec/sf1":   {"DECENNIALSF1"},
}

// probeYears lists recent vintages, most recent first. The year filter,
// when given, is tried before any of these.
var probeYears = []string{"2023", "2022", "2021", "2020", "2019", "2018", "2017", "2016"}

// decennialYears replaces probeYears for decennial prefixes, which only
// exist for census years.
var decennialYears = []string{"2020", "2010"}

// PrefixesForDataset returns the identifier prefixes of a recognized
// dataset family, or nil for an unrecognized path. Used by the search
// stage to string-filter already-qualified identifiers.
func PrefixesForDataset(dataset string) []string {
	return datasetPrefixes[strings.ToLower(strings.TrimSpace(dataset))]
}

// Resolver qualifies bare codes by probing the metadata endpoint.
type Resolver struct {
	Prober Prober
}

// Resolve probes candidate identifiers for bareCode and returns the first
// that resolves. datasetFilter restricts the prefix list to one dataset
// family; yearFilter is tried before the fixed recent-year list for every
// prefix. This is a probe, not an exhaustive search: the first 2xx with a
// recognizable metadata body short-circuits. A miss returns ErrNotFound;
// probe transport errors are treated as misses and never escalated.
func (r *Resolver) Resolve(ctx context.Context, bareCode, datasetFilter, yearFilter string) (types.TableID, error) {
	code := strings.ToUpper(strings.TrimSpace(bareCode))
	if code == "" {
		return types.TableID{}, ErrNotFound
	}

	for _, prefix := range prefixesFor(datasetFilter, code) {
		for _, year := range yearsFor(prefix, yearFilter) {
			id := types.TableID{Prefix: prefix, Year: year, Code: code}
			found, err := r.Prober.ProbeMetadata(ctx, id)
			if err != nil {
				if ctx.Err() != nil {
					return types.TableID{}, ctx.Err()
				}
				continue
			}
			if found {
				return id, nil
			}
		}
	}
	return types.TableID{}, ErrNotFound
}

// prefixesFor returns the ordered prefix list to probe. A recognized
// dataset filter wins; otherwise the code class picks the family and the
// two most common estimate variants (1-year then 5-year) are tried.
func prefixesFor(datasetFilter, code string) []string {
	if prefixes, ok := datasetPrefixes[strings.ToLower(strings.TrimSpace(datasetFilter))]; ok {
		return prefixes
	}
	switch {
	case strings.HasPrefix(code, "DP"):
		return []string{"ACSDP1Y", "ACSDP5Y"}
	case strings.HasPrefix(code, "S") && !strings.HasPrefix(code, "SE"):
		return []string{"ACSST1Y", "ACSST5Y"}
	default:
		return []string{"ACSDT1Y", "ACSDT5Y"}
	}
}

// yearsFor builds the ordered year list: the filter year first, then the
// fixed recent years with the filter year skipped.
func yearsFor(prefix, yearFilter string) []string {
	fixed := probeYears
	if strings.HasPrefix(prefix, "DECENNIAL") {
		fixed = decennialYears
	}

	yearFilter = strings.TrimSpace(yearFilter)
	if yearFilter == "" {
		return fixed
	}

	years := make([]string, 0, len(fixed)+1)
	years = append(years, yearFilter)
	for _, y := range fixed {
		if y != yearFilter {
			years = append(years, y)
		}
	}
	return years
}

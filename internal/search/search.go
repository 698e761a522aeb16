// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search discovers candidate tables for a free-text query by
// probing expanded terms against the table-search backends, qualifying
// bare codes through the resolver, and deduplicating hits by resolved
// identifier.
// Implements: prd010-table-search (R1-R5);
//
//	docs/ARCHITECTURE § Search.
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pdiddy/census-collector/internal/expand"
	"github.com/pdiddy/census-collector/internal/resolve"
	"github.com/pdiddy/census-collector/pkg/types"
)

// Backend pages a single table-search API. Each backend implements this
// interface per the Strategy pattern: the primary search returns
// fully-qualified identifiers, the table-name search returns bare codes.
type Backend interface {
	Name() string
	// Page returns up to size hits starting at offset. A page shorter
	// than size signals upstream exhaustion for the term.
	Page(ctx context.Context, term string, offset, size int) ([]types.CandidateEntity, error)
}

// Resolver qualifies a bare code into a full identifier. Satisfied by
// *resolve.Resolver; hits that fail resolution are dropped silently.
type Resolver interface {
	Resolve(ctx context.Context, bareCode, datasetFilter, yearFilter string) (types.TableID, error)
}

// Output holds the aggregated candidates and probe statistics.
type Output struct {
	Candidates  []types.CandidateEntity
	Terms       []string
	Broad       bool
	DupsRemoved int
	Dropped     int
}

// Aggregator runs expanded probe terms against the backends and
// accumulates unique candidates. Result order is insertion order of first
// discovery; the upstream exposes no reliable relevance score across all
// response shapes, so none is invented.
type Aggregator struct {
	Backends []Backend
	Resolver Resolver
	Cfg      types.SearchConfig
}

const (
	defaultMaxResults = 20
	defaultPageSize   = 25
)

// Search expands query into probe terms and pages every backend for each
// term. Fully-qualified hits are filtered in place against the dataset
// and year filters; bare-code hits go through the resolver and are
// dropped on a miss. Candidates are deduplicated by resolved identifier
// across all terms. Broad-topic queries keep probing every expansion term
// even after the cap is reached, then truncate; non-broad queries stop
// issuing further term requests once the early-exit threshold is full.
func (a *Aggregator) Search(ctx context.Context, query string, w io.Writer) (Output, error) {
	if strings.TrimSpace(query) == "" {
		return Output{}, fmt.Errorf("query is empty: provide a search term")
	}
	if len(a.Backends) == 0 {
		return Output{}, fmt.Errorf("no search backends configured")
	}

	maxResults := a.Cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	pageSize := a.Cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	terms, broad := expand.Expand(query)
	out := Output{Terms: terms, Broad: broad}
	seen := make(map[string]bool)

	for i, term := range terms {
		if !broad && len(out.Candidates) >= a.earlyExitThreshold(maxResults) {
			break
		}
		if i > 0 && a.Cfg.InterTermDelay > 0 {
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-time.After(a.Cfg.InterTermDelay):
			}
		}

		for _, backend := range a.Backends {
			if err := a.drainTerm(ctx, backend, term, pageSize, maxResults, broad, seen, &out, w); err != nil {
				if ctx.Err() != nil {
					return out, ctx.Err()
				}
				fmt.Fprintf(w, "warning: backend %s failed for %q: %v\n", backend.Name(), term, err)
			}
		}
	}

	if len(out.Candidates) > maxResults {
		out.Candidates = out.Candidates[:maxResults]
	}
	return out, nil
}

// drainTerm pages one backend for one term until upstream exhaustion or
// until the candidate budget for this phase is full.
func (a *Aggregator) drainTerm(ctx context.Context, backend Backend, term string, pageSize, maxResults int, broad bool, seen map[string]bool, out *Output, w io.Writer) error {
	for offset := 0; ; offset += pageSize {
		// Broad queries favor completeness: every term is drained to
		// upstream exhaustion and the final result is truncated to the
		// cap afterwards. Non-broad queries stop early.
		if !broad && len(out.Candidates) >= a.earlyExitThreshold(maxResults) {
			return nil
		}

		page, err := backend.Page(ctx, term, offset, pageSize)
		if err != nil {
			return err
		}

		for _, entity := range page {
			id, ok := a.qualify(ctx, entity, w)
			if !ok {
				out.Dropped++
				continue
			}
			key := id.String()
			if seen[key] {
				out.DupsRemoved++
				continue
			}
			seen[key] = true
			entity.TableID = key
			out.Candidates = append(out.Candidates, entity)
		}

		if len(page) < pageSize {
			return nil
		}
	}
}

// qualify turns a raw hit into a fully-qualified identifier. Hits already
// carrying one are string-filtered against the dataset and year filters;
// bare codes are resolved, and a resolution miss drops the hit without an
// error (a miss is ordinary, logged once per code at most).
func (a *Aggregator) qualify(ctx context.Context, entity types.CandidateEntity, w io.Writer) (types.TableID, bool) {
	if entity.TableID != "" {
		id, err := types.ParseTableID(entity.TableID)
		if err != nil {
			return types.TableID{}, false
		}
		if !a.matchesFilters(id) {
			return types.TableID{}, false
		}
		return id, true
	}

	if entity.BareCode == "" || a.Resolver == nil {
		return types.TableID{}, false
	}
	id, err := a.Resolver.Resolve(ctx, entity.BareCode, a.Cfg.Dataset, a.Cfg.Year)
	if err != nil {
		if errors.Is(err, resolve.ErrNotFound) {
			fmt.Fprintf(w, "  unresolved: %s\n", entity.BareCode)
		}
		return types.TableID{}, false
	}
	return id, true
}

// matchesFilters string-matches a qualified identifier's prefix and year
// components against the configured filters.
func (a *Aggregator) matchesFilters(id types.TableID) bool {
	if a.Cfg.Year != "" && id.Year != a.Cfg.Year {
		return false
	}
	if a.Cfg.Dataset != "" {
		prefixes := resolve.PrefixesForDataset(a.Cfg.Dataset)
		if len(prefixes) > 0 {
			match := false
			for _, p := range prefixes {
				if id.Prefix == p {
					match = true
					break
				}
			}
			if !match {
				return false
			}
		}
	}
	return true
}

// earlyExitThreshold is the unique-candidate count at which a non-broad
// query stops issuing further requests. The factor is a tunable
// heuristic, not an invariant; historical behavior ranged from 1x to 2x.
func (a *Aggregator) earlyExitThreshold(maxResults int) int {
	factor := a.Cfg.EarlyExitFactor
	if factor <= 0 {
		factor = 1.0
	}
	threshold := int(float64(maxResults) * factor)
	if threshold < maxResults {
		threshold = maxResults
	}
	return threshold
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package expand rewrites a free-text query into probe terms for the
// table search. Upstream matches by exact substring on table names, which
// are typically singular and domain-specific, so everyday plurals and
// broad academic topics rarely hit anything without rewriting.
// Implements: prd010-table-search (R1.1-R1.5);
//
//	docs/ARCHITECTURE § Search.
package expand

import "strings"

// broadTopics maps a broad query to the concrete sub-terms that actually
// appear in table titles. A broad query returns this list verbatim; the
// literal broad term is intentionally not re-added because it almost
// never appears in a table name.
var broadTopics = map[string][]string{
	"economics":    {"income", "employment", "industry", "occupation", "business", "economic"},
	"economy":      {"income", "employment", "industry", "occupation", "business", "economic"},
	"demographics": {"age", "sex", "race", "population", "households", "ancestry"},
	"housing":      {"housing", "rent", "mortgage", "occupancy", "tenure", "units"},
	"education":    {"education", "school enrollment", "educational attainment", "degree"},
	"employment":   {"employment", "labor force", "occupation", "industry", "work"},
	"health":       {"health insurance", "disability", "fertility"},
	"poverty":      {"poverty", "income", "public assistance", "food stamps"},
	"transportation": {
		"commuting", "means of transportation", "travel time", "vehicles",
	},
}

// pluralVariants is a fixed plural↔singular lookup for variants the
// trailing-s rule cannot produce.
var pluralVariants = map[string]string{
	"industries": "industry",
	"industry":   "industries",
	"families":   "family",
	"family":     "families",
	"counties":   "county",
	"county":     "counties",
	"salaries":   "salary",
	"salary":     "salaries",
	"children":   "child",
	"child":      "children",
	"people":     "population",
	"earnings":   "income",
}

// Expand rewrites a free-text query into one or more probe terms. The
// returned slice is non-empty and, outside the broad-topic branch, always
// starts with the original query so callers degrade gracefully when
// expansion finds nothing. The broad return value reports whether the
// query hit the broad-topic table; broad searches probe every term before
// truncating to the caller's cap.
func Expand(query string) (terms []string, broad bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []string{query}, false
	}

	if subs, ok := broadTopics[q]; ok {
		return dedup(subs), true
	}

	terms = []string{q}
	if variant, ok := pluralVariants[q]; ok {
		terms = append(terms, variant)
	}
	if strings.HasSuffix(q, "s") && len(q) > 3 {
		terms = append(terms, strings.TrimSuffix(q, "s"))
	}
	return dedup(terms), false
}

// dedup removes duplicates while preserving first-seen order.
func dedup(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := terms[:0:0]
	for _, t := range terms {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pdiddy/census-collector/internal/httputil"
	"github.com/pdiddy/census-collector/pkg/types"
)

// reporterSearchBase is the Census Reporter table-search endpoint.
// Declared as a var so tests can substitute an httptest server.
var reporterSearchBase = "https://api.censusreporter.org/1.0/table/search"

// ReporterBackend queries the Census Reporter table search, a third-party
// endpoint that matches table names but returns only bare codes; hits
// need resolver qualification before collection.
type ReporterBackend struct {
	Client *http.Client
	Cfg    types.HTTPConfig
}

// Name returns the backend identifier.
func (b *ReporterBackend) Name() string { return "censusreporter" }

// Page queries the table search for term. The endpoint has no offset
// parameter and returns the full match list, so pages are sliced locally.
func (b *ReporterBackend) Page(ctx context.Context, term string, offset, size int) ([]types.CandidateEntity, error) {
	params := url.Values{"q": {term}}
	reqURL := reporterSearchBase + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", b.Cfg.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, b.Client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("censusreporter search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("censusreporter search returned HTTP %d", resp.StatusCode)
	}

	var hits []reporterHit
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return nil, fmt.Errorf("parsing censusreporter response: %w", err)
	}

	if offset >= len(hits) {
		return nil, nil
	}
	end := offset + size
	if end > len(hits) {
		end = len(hits)
	}

	var entities []types.CandidateEntity
	for _, hit := range hits[offset:end] {
		if hit.TableID == "" {
			continue
		}
		title := hit.TableName
		if title == "" {
			title = hit.SimpleTableName
		}
		entities = append(entities, types.CandidateEntity{
			BareCode: hit.TableID,
			Title:    title,
			Source:   "censusreporter",
			Hints: types.EntityHints{
				Universe: hit.Universe,
			},
		})
	}
	return entities, nil
}

// Census Reporter API JSON structure.
type reporterHit struct {
	TableID         string   `json:"table_id"`
	TableName       string   `json:"table_name"`
	SimpleTableName string   `json:"simple_table_name"`
	Universe        string   `json:"universe"`
	Topics          []string `json:"topics"`
}

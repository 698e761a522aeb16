// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pdiddy/census-collector/internal/httputil"
	"github.com/pdiddy/census-collector/pkg/types"
)

// censusSearchBase is the primary table-search endpoint. Declared as a
// var so tests can substitute an httptest server.
var censusSearchBase = "https://data.census.gov/api/search"

// CensusBackend queries the primary table search, which returns table
// objects whose instances carry fully-qualified identifiers plus
// program/vintage/universe hints.
type CensusBackend struct {
	Client *http.Client
	Cfg    types.HTTPConfig
}

// Name returns the backend identifier.
func (b *CensusBackend) Name() string { return "census" }

// Page queries one page of table results for term.
func (b *CensusBackend) Page(ctx context.Context, term string, offset, size int) ([]types.CandidateEntity, error) {
	params := url.Values{
		"q":      {term},
		"size":   {strconv.Itoa(size)},
		"offset": {strconv.Itoa(offset)},
	}
	if b.Cfg.APIKey != "" {
		params.Set("key", b.Cfg.APIKey)
	}
	reqURL := censusSearchBase + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", b.Cfg.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, b.Client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("census search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("census search returned HTTP %d", resp.StatusCode)
	}

	var csr censusSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&csr); err != nil {
		return nil, fmt.Errorf("parsing census search response: %w", err)
	}

	// Table list nesting varies; take the first populated location.
	tables := csr.Response.Tables.Tables
	if len(tables) == 0 {
		tables = csr.Tables
	}

	var entities []types.CandidateEntity
	for _, table := range tables {
		e := types.CandidateEntity{
			Title:       table.Title,
			Description: table.Description,
			Source:      "census",
			Hints: types.EntityHints{
				Program:  table.Program,
				Universe: table.Universe,
			},
		}

		// Prefer the first instance's identifier; fall back to the
		// table-level one, which some shapes carry directly.
		if len(table.Instances) > 0 {
			inst := table.Instances[0]
			e.TableID = inst.ID
			e.Hints.Vintage = string(inst.Vintage)
			e.Hints.Dataset = inst.Dataset
		} else if table.ID != "" {
			e.TableID = table.ID
		}

		if e.TableID == "" {
			continue
		}
		entities = append(entities, e)
	}
	return entities, nil
}

// Census search API JSON structures. The table list appears either under
// response.tables.tables or at the top level depending on the endpoint
// variant.
type censusSearchResponse struct {
	Response struct {
		Tables struct {
			Tables []censusTable `json:"tables"`
		} `json:"tables"`
	} `json:"response"`
	Tables []censusTable `json:"tables"`
}

type censusTable struct {
	ID          string                `json:"id"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Program     string                `json:"program"`
	Universe    string                `json:"universe"`
	Instances   []censusTableInstance `json:"instances"`
}

type censusTableInstance struct {
	ID      string     `json:"id"`
	Dataset string     `json:"dataset"`
	Vintage flexString `json:"vintage"`
}

// flexString accepts either a JSON string or number; vintages arrive as both.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package collect fetches metadata and data for resolved table
// identifiers, merges and normalizes them into output records, and drives
// the batched collection loop.
// Implements: prd011-collection (R1-R5);
//
//	docs/ARCHITECTURE § Collection.
package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pdiddy/census-collector/internal/httputil"
	"github.com/pdiddy/census-collector/pkg/types"
)

// censusAPIBase is the data API root. Declared as a var so tests can
// substitute an httptest server.
var censusAPIBase = "https://data.census.gov/api"

const (
	metadataPath = "/search/metadata/table"
	dataPath     = "/access/data/table"
)

// Client fetches table metadata and data from the upstream API.
type Client struct {
	HTTP *http.Client
	Cfg  types.HTTPConfig
}

// get issues a GET against path with params, retrying on HTTP 429.
func (c *Client) get(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	if c.Cfg.APIKey != "" {
		params.Set("key", c.Cfg.APIKey)
	}
	reqURL := censusAPIBase + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.Cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	return httputil.DoWithRetry(ctx, c.HTTP, req, 0)
}

// FetchMetadata retrieves and decodes the metadata object for id. The
// second return value is the explicit table-level title, when the
// response carries one separately from the metadata content.
func (c *Client) FetchMetadata(ctx context.Context, id string) (*types.TableMetadata, string, error) {
	resp, err := c.get(ctx, metadataPath, url.Values{"id": {id}})
	if err != nil {
		return nil, "", fmt.Errorf("metadata request for %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("metadata endpoint returned HTTP %d for %s", resp.StatusCode, id)
	}

	var env metadataEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, "", fmt.Errorf("parsing metadata response for %s: %w", id, err)
	}

	meta, title := env.flatten()
	if meta == nil {
		return nil, "", fmt.Errorf("metadata response for %s carries no recognizable content", id)
	}
	return meta, title, nil
}

// ProbeMetadata reports whether id resolves to an existing table. A
// non-2xx status or an unrecognizable body is an ordinary miss, not an
// error; only transport failures are returned.
func (c *Client) ProbeMetadata(ctx context.Context, id types.TableID) (bool, error) {
	resp, err := c.get(ctx, metadataPath, url.Values{"id": {id.String()}})
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, nil
	}

	var env metadataEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return false, nil
	}
	meta, _ := env.flatten()
	return meta != nil, nil
}

// FetchData retrieves the raw data payload for id. geography is an
// advisory filter forwarded as-is when non-empty. The payload is returned
// verbatim from whichever nesting the upstream used.
func (c *Client) FetchData(ctx context.Context, id, geography string) (json.RawMessage, error) {
	params := url.Values{"id": {id}}
	if geography != "" {
		params.Set("g", geography)
	}

	resp, err := c.get(ctx, dataPath, params)
	if err != nil {
		return nil, fmt.Errorf("data request for %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("data endpoint returned HTTP %d for %s", resp.StatusCode, id)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing data response for %s: %w", id, err)
	}

	// A bare array is already the payload; an object needs unwrapping.
	if body := strings.TrimSpace(string(raw)); strings.HasPrefix(body, "[") {
		return raw, nil
	}
	var env dataEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("parsing data response for %s: %w", id, err)
	}
	payload := env.payload()
	if payload == nil {
		return nil, fmt.Errorf("data response for %s carries no data payload", id)
	}
	return payload, nil
}

// --- upstream response decoding ---
//
// The upstream nests the same objects differently per endpoint family:
// some responses wrap content in "response", some expose it at the top
// level, and the table object may or may not accompany the metadata
// content. Each envelope decodes every candidate location and flattens by
// explicit priority rather than ad hoc optional chaining.

// flexString accepts either a JSON string or a JSON number; the vintage
// field arrives as both.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*f = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type metadataEnvelope struct {
	Response *metadataBody `json:"response"`
	metadataBody
}

type metadataBody struct {
	MetadataContent *metadataContent `json:"metadataContent"`
	Table           *tableObject     `json:"table"`
}

type tableObject struct {
	Title           string           `json:"title"`
	MetadataContent *metadataContent `json:"metadataContent"`
}

type metadataContent struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Universe    string     `json:"universe"`
	ProgramName string     `json:"programName"`
	URL         string     `json:"url"`
	Dataset     rawDataset `json:"dataset"`

	Variables []rawVariable `json:"variables"`
	// Alternate shape: measures and dimensions pre-split upstream.
	Measures   []rawVariable `json:"measures"`
	Dimensions []rawVariable `json:"dimensions"`
}

type rawDataset struct {
	Name    string     `json:"name"`
	Vintage flexString `json:"vintage"`
}

type rawVariable struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Label         string     `json:"label"`
	Type          string     `json:"type"`
	IsDimension   bool       `json:"isDimension"`
	DimensionType string     `json:"dimensionType"`
	Items         []rawItem  `json:"items"`
	Vintage       flexString `json:"vintage"`
}

type rawItem struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Label string `json:"label"`
}

// flatten picks the metadata content by priority (nested response body,
// then top level, then the table object) and converts it. The returned
// title is the explicit table-level title, when present.
func (e *metadataEnvelope) flatten() (*types.TableMetadata, string) {
	bodies := []*metadataBody{e.Response, &e.metadataBody}

	var title string
	for _, body := range bodies {
		if body == nil {
			continue
		}
		if body.Table != nil && title == "" {
			title = body.Table.Title
		}
	}
	for _, body := range bodies {
		if body == nil {
			continue
		}
		if body.MetadataContent != nil {
			return body.MetadataContent.convert(), title
		}
		if body.Table != nil && body.Table.MetadataContent != nil {
			return body.Table.MetadataContent.convert(), title
		}
	}
	return nil, title
}

func (mc *metadataContent) convert() *types.TableMetadata {
	meta := &types.TableMetadata{
		Title:       mc.Title,
		Description: mc.Description,
		Universe:    mc.Universe,
		Survey:      mc.ProgramName,
		Vintage:     string(mc.Dataset.Vintage),
		SourceURL:   mc.URL,
	}
	if meta.Survey == "" {
		meta.Survey = mc.Dataset.Name
	}

	// Single combined variable list wins; the pre-split shape is the fallback.
	vars := mc.Variables
	if len(vars) == 0 {
		for i := range mc.Measures {
			mc.Measures[i].Type = "measure"
		}
		for i := range mc.Dimensions {
			mc.Dimensions[i].IsDimension = true
		}
		vars = append(append([]rawVariable{}, mc.Measures...), mc.Dimensions...)
	}

	for _, v := range vars {
		id := v.ID
		if id == "" {
			id = v.Name
		}
		if v.isDimension() {
			dim := types.MetaDimension{
				Dimension: types.Dimension{ID: id, Label: v.Label, DimensionType: v.DimensionType},
			}
			for _, item := range v.Items {
				label := item.Label
				if label == "" {
					label = item.Name
				}
				dim.Items = append(dim.Items, types.Variable{ID: item.ID, Label: label})
			}
			meta.Dimensions = append(meta.Dimensions, dim)
			continue
		}
		meta.Measures = append(meta.Measures, types.Variable{ID: id, Label: v.Label})
	}

	if meta.Vintage == "" {
		for _, v := range vars {
			if v.Vintage != "" {
				meta.Vintage = string(v.Vintage)
				break
			}
		}
	}
	return meta
}

func (v rawVariable) isDimension() bool {
	return v.IsDimension ||
		strings.EqualFold(v.Type, "dimension") ||
		v.DimensionType != ""
}

type dataEnvelope struct {
	Response *dataBody `json:"response"`
	dataBody
}

type dataBody struct {
	Data json.RawMessage `json:"data"`
}

// payload picks the data payload by priority: nested response body, then
// top level.
func (e *dataEnvelope) payload() json.RawMessage {
	if e.Response != nil && len(e.Response.Data) > 0 {
		return e.Response.Data
	}
	if len(e.Data) > 0 {
		return e.Data
	}
	return nil
}

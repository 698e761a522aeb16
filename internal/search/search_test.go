package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/census-collector/internal/resolve"
	"github.com/pdiddy/census-collector/pkg/types"
)

// --- mocks ---

type mockBackend struct {
	name    string
	hits    map[string][]types.CandidateEntity
	err     error
	terms   []string
	offsets []int
}

func (m *mockBackend) Name() string { return m.name }

func (m *mockBackend) Page(_ context.Context, term string, offset, size int) ([]types.CandidateEntity, error) {
	m.terms = append(m.terms, term)
	m.offsets = append(m.offsets, offset)
	if m.err != nil {
		return nil, m.err
	}
	hits := m.hits[term]
	if offset >= len(hits) {
		return nil, nil
	}
	end := offset + size
	if end > len(hits) {
		end = len(hits)
	}
	return hits[offset:end], nil
}

func (m *mockBackend) probedTerms() []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range m.terms {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

type mockResolver struct {
	known map[string]types.TableID
}

func (m *mockResolver) Resolve(_ context.Context, bareCode, _, _ string) (types.TableID, error) {
	if id, ok := m.known[bareCode]; ok {
		return id, nil
	}
	return types.TableID{}, resolve.ErrNotFound
}

func qualified(id, title string) types.CandidateEntity {
	return types.CandidateEntity{TableID: id, Title: title, Source: "mock"}
}

func testCfg() types.SearchConfig {
	return types.SearchConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   10 * time.Second,
			UserAgent: "test/0.1",
		},
		MaxResults: 20,
		PageSize:   25,
	}
}

// --- Search ---

func TestSearchEmptyQuery(t *testing.T) {
	a := &Aggregator{Backends: []Backend{&mockBackend{name: "mock"}}, Cfg: testCfg()}
	var buf bytes.Buffer
	_, err := a.Search(context.Background(), "   ", &buf)
	if err == nil || !strings.Contains(err.Error(), "empty") {
		t.Errorf("expected empty query error, got: %v", err)
	}
}

func TestSearchNoBackends(t *testing.T) {
	a := &Aggregator{Cfg: testCfg()}
	var buf bytes.Buffer
	_, err := a.Search(context.Background(), "income", &buf)
	if err == nil || !strings.Contains(err.Error(), "no search backends") {
		t.Errorf("expected no backends error, got: %v", err)
	}
}

func TestSearchContinuesAfterBackendFailure(t *testing.T) {
	failing := &mockBackend{name: "failing", err: fmt.Errorf("network error")}
	working := &mockBackend{
		name: "working",
		hits: map[string][]types.CandidateEntity{
			"income": {qualified("ACSDT1Y2021.B19013", "Median Household Income")},
		},
	}

	a := &Aggregator{Backends: []Backend{failing, working}, Cfg: testCfg()}
	var buf bytes.Buffer
	out, err := a.Search(context.Background(), "income", &buf)
	if err != nil {
		t.Fatalf("Search should not fail entirely: %v", err)
	}
	if len(out.Candidates) != 1 {
		t.Errorf("len(Candidates) = %d, want 1", len(out.Candidates))
	}
	if !strings.Contains(buf.String(), "warning:") {
		t.Error("output should contain warning about failed backend")
	}
}

func TestSearchDedupAcrossTerms(t *testing.T) {
	// "industries" expands to industries/industry/industrie; the same
	// table surfacing under two terms must be reported once.
	backend := &mockBackend{
		name: "mock",
		hits: map[string][]types.CandidateEntity{
			"industries": {qualified("ACSDT1Y2021.C24030", "Sex by Industry")},
			"industry":   {qualified("ACSDT1Y2021.C24030", "Sex by Industry"), qualified("ACSDT1Y2021.B24031", "Median Earnings by Industry")},
		},
	}

	a := &Aggregator{Backends: []Backend{backend}, Cfg: testCfg()}
	var buf bytes.Buffer
	out, err := a.Search(context.Background(), "industries", &buf)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if out.DupsRemoved != 1 {
		t.Errorf("DupsRemoved = %d, want 1", out.DupsRemoved)
	}
	if len(out.Candidates) != 2 {
		t.Errorf("len(Candidates) = %d, want 2", len(out.Candidates))
	}
	if out.Candidates[0].TableID != "ACSDT1Y2021.C24030" {
		t.Errorf("first candidate = %q, want first-discovered table", out.Candidates[0].TableID)
	}
}

func TestSearchBroadProbesEveryTermThenTruncates(t *testing.T) {
	// A broad query keeps probing its remaining sub-terms even after the
	// cap is full; truncation happens once at the end.
	backend := &mockBackend{
		name: "mock",
		hits: map[string][]types.CandidateEntity{
			"health insurance": {qualified("ACSST1Y2021.S2701", "Health Insurance Coverage")},
			"disability":       {qualified("ACSST1Y2021.S1810", "Disability Characteristics")},
			"fertility":        {qualified("ACSST1Y2021.S1301", "Fertility")},
		},
	}

	cfg := testCfg()
	cfg.MaxResults = 2
	a := &Aggregator{Backends: []Backend{backend}, Cfg: cfg}
	var buf bytes.Buffer
	out, err := a.Search(context.Background(), "health", &buf)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !out.Broad {
		t.Error("Broad should be true for a broad-topic query")
	}
	probed := backend.probedTerms()
	if len(probed) != 3 {
		t.Errorf("probed terms = %v, want all 3 sub-terms", probed)
	}
	if len(out.Candidates) != 2 {
		t.Errorf("len(Candidates) = %d, want truncation to 2", len(out.Candidates))
	}
}

func TestSearchNonBroadEarlyExit(t *testing.T) {
	// "earnings" expands to earnings/income/earning; with the cap already
	// full after the first term, the remaining terms are never probed.
	backend := &mockBackend{
		name: "mock",
		hits: map[string][]types.CandidateEntity{
			"earnings": {qualified("ACSDT1Y2021.B20002", "Median Earnings")},
			"income":   {qualified("ACSDT1Y2021.B19013", "Median Household Income")},
		},
	}

	cfg := testCfg()
	cfg.MaxResults = 1
	a := &Aggregator{Backends: []Backend{backend}, Cfg: cfg}
	var buf bytes.Buffer
	out, err := a.Search(context.Background(), "earnings", &buf)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	probed := backend.probedTerms()
	if len(probed) != 1 || probed[0] != "earnings" {
		t.Errorf("probed terms = %v, want only the first term", probed)
	}
	if len(out.Candidates) != 1 {
		t.Errorf("len(Candidates) = %d, want 1", len(out.Candidates))
	}
}

func TestSearchYearFilter(t *testing.T) {
	backend := &mockBackend{
		name: "mock",
		hits: map[string][]types.CandidateEntity{
			"income": {
				qualified("ACSDT1Y2021.B19013", "Income 2021"),
				qualified("ACSDT1Y2019.B19013", "Income 2019"),
			},
		},
	}

	cfg := testCfg()
	cfg.Year = "2021"
	a := &Aggregator{Backends: []Backend{backend}, Cfg: cfg}
	var buf bytes.Buffer
	out, err := a.Search(context.Background(), "income", &buf)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(out.Candidates) != 1 {
		t.Fatalf("len(Candidates) = %d, want 1", len(out.Candidates))
	}
	if out.Candidates[0].TableID != "ACSDT1Y2021.B19013" {
		t.Errorf("candidate = %q, want the 2021 table", out.Candidates[0].TableID)
	}
	if out.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", out.Dropped)
	}
}

func TestSearchDatasetFilter(t *testing.T) {
	backend := &mockBackend{
		name: "mock",
		hits: map[string][]types.CandidateEntity{
			"income": {
				qualified("ACSDT1Y2021.B19013", "1-year detail"),
				qualified("ACSDT5Y2021.B19013", "5-year detail"),
				qualified("ACSST1Y2021.S1901", "1-year subject"),
			},
		},
	}

	cfg := testCfg()
	cfg.Dataset = "acs/acs1"
	a := &Aggregator{Backends: []Backend{backend}, Cfg: cfg}
	var buf bytes.Buffer
	out, err := a.Search(context.Background(), "income", &buf)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(out.Candidates) != 2 {
		t.Fatalf("len(Candidates) = %d, want 2 (1-year prefixes only)", len(out.Candidates))
	}
	for _, c := range out.Candidates {
		if strings.HasPrefix(c.TableID, "ACSDT5Y") {
			t.Errorf("5-year table %q should have been filtered out", c.TableID)
		}
	}
}

func TestSearchResolvesBareCodes(t *testing.T) {
	backend := &mockBackend{
		name: "mock",
		hits: map[string][]types.CandidateEntity{
			"income": {
				{BareCode: "B19013", Title: "Median Household Income", Source: "censusreporter"},
				{BareCode: "B99999", Title: "Nonexistent", Source: "censusreporter"},
			},
		},
	}
	resolver := &mockResolver{known: map[string]types.TableID{
		"B19013": {Prefix: "ACSDT1Y", Year: "2021", Code: "B19013"},
	}}

	a := &Aggregator{Backends: []Backend{backend}, Resolver: resolver, Cfg: testCfg()}
	var buf bytes.Buffer
	out, err := a.Search(context.Background(), "income", &buf)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(out.Candidates) != 1 {
		t.Fatalf("len(Candidates) = %d, want 1", len(out.Candidates))
	}
	if out.Candidates[0].TableID != "ACSDT1Y2021.B19013" {
		t.Errorf("TableID = %q, want resolved identifier", out.Candidates[0].TableID)
	}
	if out.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1 for the unresolvable code", out.Dropped)
	}
	if !strings.Contains(buf.String(), "unresolved: B99999") {
		t.Error("output should mention the unresolved code")
	}
}

func TestSearchPaginatesUntilShortPage(t *testing.T) {
	var hits []types.CandidateEntity
	for i := 0; i < 25; i++ {
		hits = append(hits, qualified(fmt.Sprintf("ACSDT1Y2021.B%05d", i), fmt.Sprintf("Table %d", i)))
	}
	backend := &mockBackend{name: "mock", hits: map[string][]types.CandidateEntity{"income": hits}}

	cfg := testCfg()
	cfg.MaxResults = 100
	cfg.PageSize = 10
	a := &Aggregator{Backends: []Backend{backend}, Cfg: cfg}
	var buf bytes.Buffer
	out, err := a.Search(context.Background(), "income", &buf)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(out.Candidates) != 25 {
		t.Errorf("len(Candidates) = %d, want 25", len(out.Candidates))
	}
	// Pages at offsets 0 and 10 are full; the short page at 20 ends the term.
	want := []int{0, 10, 20}
	if len(backend.offsets) != len(want) {
		t.Fatalf("offsets = %v, want %v", backend.offsets, want)
	}
	for i, off := range want {
		if backend.offsets[i] != off {
			t.Errorf("offsets[%d] = %d, want %d", i, backend.offsets[i], off)
		}
	}
}

func TestEarlyExitThreshold(t *testing.T) {
	tests := []struct {
		name       string
		factor     float64
		maxResults int
		want       int
	}{
		{"default", 0, 20, 20},
		{"double", 2.0, 20, 40},
		{"fractional clamps to cap", 0.5, 20, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Aggregator{Cfg: types.SearchConfig{EarlyExitFactor: tt.factor}}
			if got := a.earlyExitThreshold(tt.maxResults); got != tt.want {
				t.Errorf("earlyExitThreshold(%d) = %d, want %d", tt.maxResults, got, tt.want)
			}
		})
	}
}

// --- Census backend ---

const sampleCensusNestedJSON = `{
  "response": {
    "tables": {
      "tables": [
        {
          "title": "Age and Sex",
          "description": "Age and sex characteristics.",
          "program": "American Community Survey",
          "universe": "Total population",
          "instances": [
            {"id": "ACSST1Y2021.S0101", "dataset": "acs/acs1", "vintage": 2021},
            {"id": "ACSST5Y2021.S0101", "dataset": "acs/acs5", "vintage": "2021"}
          ]
        },
        {
          "id": "ACSDT1Y2021.B01001",
          "title": "Sex by Age"
        },
        {
          "title": "No identifier at all"
        }
      ]
    }
  }
}`

func TestCensusBackendPageNestedShape(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "age" {
			t.Errorf("q = %q, want %q", got, "age")
		}
		if got := r.URL.Query().Get("offset"); got != "0" {
			t.Errorf("offset = %q, want 0", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, sampleCensusNestedJSON)
	}))
	defer ts.Close()

	old := censusSearchBase
	censusSearchBase = ts.URL
	defer func() { censusSearchBase = old }()

	b := &CensusBackend{Client: ts.Client(), Cfg: types.HTTPConfig{UserAgent: "test/0.1"}}
	entities, err := b.Page(context.Background(), "age", 0, 25)
	if err != nil {
		t.Fatalf("CensusBackend.Page: %v", err)
	}
	if len(entities) != 2 {
		t.Fatalf("len(entities) = %d, want 2 (hit without identifier skipped)", len(entities))
	}

	e := entities[0]
	if e.TableID != "ACSST1Y2021.S0101" {
		t.Errorf("TableID = %q, want first instance identifier", e.TableID)
	}
	if e.Hints.Vintage != "2021" {
		t.Errorf("Hints.Vintage = %q, want numeric vintage normalized to string", e.Hints.Vintage)
	}
	if e.Hints.Dataset != "acs/acs1" {
		t.Errorf("Hints.Dataset = %q", e.Hints.Dataset)
	}
	if e.Hints.Program != "American Community Survey" {
		t.Errorf("Hints.Program = %q", e.Hints.Program)
	}
	if entities[1].TableID != "ACSDT1Y2021.B01001" {
		t.Errorf("entities[1].TableID = %q, want table-level identifier fallback", entities[1].TableID)
	}
}

func TestCensusBackendPageTopLevelShape(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"tables": [{"id": "ACSDT5Y2020.B19013", "title": "Median Household Income"}]}`)
	}))
	defer ts.Close()

	old := censusSearchBase
	censusSearchBase = ts.URL
	defer func() { censusSearchBase = old }()

	b := &CensusBackend{Client: ts.Client()}
	entities, err := b.Page(context.Background(), "income", 0, 25)
	if err != nil {
		t.Fatalf("CensusBackend.Page: %v", err)
	}
	if len(entities) != 1 {
		t.Fatalf("len(entities) = %d, want 1", len(entities))
	}
	if entities[0].TableID != "ACSDT5Y2020.B19013" {
		t.Errorf("TableID = %q", entities[0].TableID)
	}
}

func TestCensusBackendPageHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	old := censusSearchBase
	censusSearchBase = ts.URL
	defer func() { censusSearchBase = old }()

	b := &CensusBackend{Client: ts.Client()}
	_, err := b.Page(context.Background(), "income", 0, 25)
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Errorf("expected HTTP 500 error, got: %v", err)
	}
}

// --- Census Reporter backend ---

const sampleReporterJSON = `[
  {"table_id": "B01001", "table_name": "Sex by Age", "universe": "Total Population", "topics": ["age", "sex"]},
  {"table_id": "B19013", "simple_table_name": "Median Household Income"},
  {"table_id": "B01002", "table_name": "Median Age by Sex"}
]`

func TestReporterBackendPage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "age" {
			t.Errorf("q = %q, want %q", got, "age")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, sampleReporterJSON)
	}))
	defer ts.Close()

	old := reporterSearchBase
	reporterSearchBase = ts.URL
	defer func() { reporterSearchBase = old }()

	b := &ReporterBackend{Client: ts.Client(), Cfg: types.HTTPConfig{UserAgent: "test/0.1"}}
	entities, err := b.Page(context.Background(), "age", 0, 25)
	if err != nil {
		t.Fatalf("ReporterBackend.Page: %v", err)
	}
	if len(entities) != 3 {
		t.Fatalf("len(entities) = %d, want 3", len(entities))
	}

	e := entities[0]
	if e.BareCode != "B01001" {
		t.Errorf("BareCode = %q, want %q", e.BareCode, "B01001")
	}
	if e.TableID != "" {
		t.Errorf("TableID = %q, reporter hits carry bare codes only", e.TableID)
	}
	if e.Hints.Universe != "Total Population" {
		t.Errorf("Hints.Universe = %q", e.Hints.Universe)
	}
	if entities[1].Title != "Median Household Income" {
		t.Errorf("Title = %q, want simple_table_name fallback", entities[1].Title)
	}
}

func TestReporterBackendPageSlicesLocally(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, sampleReporterJSON)
	}))
	defer ts.Close()

	old := reporterSearchBase
	reporterSearchBase = ts.URL
	defer func() { reporterSearchBase = old }()

	b := &ReporterBackend{Client: ts.Client()}

	page, err := b.Page(context.Background(), "age", 0, 2)
	if err != nil {
		t.Fatalf("Page(0, 2): %v", err)
	}
	if len(page) != 2 {
		t.Errorf("len(page) = %d, want 2", len(page))
	}

	page, err = b.Page(context.Background(), "age", 2, 2)
	if err != nil {
		t.Fatalf("Page(2, 2): %v", err)
	}
	if len(page) != 1 {
		t.Errorf("len(page) = %d, want 1 (short page)", len(page))
	}

	page, err = b.Page(context.Background(), "age", 4, 2)
	if err != nil {
		t.Fatalf("Page(4, 2): %v", err)
	}
	if len(page) != 0 {
		t.Errorf("len(page) = %d, want 0 past the end", len(page))
	}
}

// --- Query files ---

func TestQueryFileRoundTrip(t *testing.T) {
	out := Output{
		Candidates: []types.CandidateEntity{
			{
				TableID: "ACSDT1Y2021.B19013",
				Title:   "Median Household Income",
				Source:  "census",
				Hints:   types.EntityHints{Vintage: "2021", Dataset: "acs/acs1"},
			},
		},
		Terms:       []string{"income"},
		DupsRemoved: 2,
		Dropped:     1,
	}
	cfg := testCfg()
	cfg.Dataset = "acs/acs1"
	cfg.Year = "2021"

	path := filepath.Join(t.TempDir(), "query.yaml")
	if err := WriteQueryFile(path, "income", cfg, out); err != nil {
		t.Fatalf("WriteQueryFile: %v", err)
	}

	qf, err := ReadQueryFile(path)
	if err != nil {
		t.Fatalf("ReadQueryFile: %v", err)
	}
	if qf.Query.FreeText != "income" {
		t.Errorf("FreeText = %q", qf.Query.FreeText)
	}
	if qf.Query.Dataset != "acs/acs1" || qf.Query.Year != "2021" {
		t.Errorf("filters = %q/%q, want acs/acs1 2021", qf.Query.Dataset, qf.Query.Year)
	}
	if len(qf.Candidates) != 1 {
		t.Fatalf("len(Candidates) = %d, want 1", len(qf.Candidates))
	}
	if qf.Candidates[0].Hints.Vintage != "2021" {
		t.Errorf("Hints.Vintage = %q, hints should survive the round trip", qf.Candidates[0].Hints.Vintage)
	}
	if qf.Summary.Total != 1 || qf.Summary.DuplicatesRemoved != 2 || qf.Summary.Dropped != 1 {
		t.Errorf("Summary = %+v", qf.Summary)
	}
	if qf.Summary.Timestamp.IsZero() {
		t.Error("Summary.Timestamp should be set")
	}
}

func TestReadQueryFileMissing(t *testing.T) {
	_, err := ReadQueryFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Error("expected error for missing file")
	}
}

// --- Output formatting ---

func TestFormatTable(t *testing.T) {
	out := Output{
		Candidates: []types.CandidateEntity{
			{TableID: "ACSDT1Y2021.B19013", Title: "Median Household Income", Source: "census"},
			{TableID: "ACSST1Y2021.S0101", Title: "Age and Sex", Source: "censusreporter"},
		},
		DupsRemoved: 1,
	}

	var buf bytes.Buffer
	FormatTable(out, &buf)
	s := buf.String()

	if !strings.Contains(s, "ACSDT1Y2021.B19013") {
		t.Error("table should contain the first identifier")
	}
	if !strings.Contains(s, "Age and Sex") {
		t.Error("table should contain the second title")
	}
	if !strings.Contains(s, "1 duplicates removed") {
		t.Error("table should mention duplicates removed")
	}
}

func TestFormatTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	FormatTable(Output{}, &buf)
	if !strings.Contains(buf.String(), "No tables found") {
		t.Error("empty output should say 'No tables found'")
	}
}

func TestFormatJSON(t *testing.T) {
	out := Output{
		Candidates: []types.CandidateEntity{
			{TableID: "ACSDT1Y2021.B19013", Title: "Median Household Income", Source: "census"},
		},
	}

	var buf bytes.Buffer
	if err := FormatJSON(out, &buf); err != nil {
		t.Fatalf("FormatJSON: %v", err)
	}

	var parsed []types.CandidateEntity
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if len(parsed) != 1 {
		t.Errorf("len(parsed) = %d, want 1", len(parsed))
	}
	if parsed[0].TableID != "ACSDT1Y2021.B19013" {
		t.Errorf("TableID = %q", parsed[0].TableID)
	}
}

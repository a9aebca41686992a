package regions_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projektkollen/collector/internal/regions"
)

func writeRegions(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "regions.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const validRegionsYAML = `
regions:
  - id: lst-ab
    name: Stockholm
    source: diarium
    base_url: https://diarium.lansstyrelsen.se
    search_path: /Case/CaseSearchResult.aspx
    query: "oJ/Yw8gzqEr9ng=="
  - id: trv
    name: Trafikverket
    source: transport
    base_url: https://diariet.trafikverket.se
    search_path: /Sok/SokResultat.aspx
    query: "from={{from}}&to={{to}}"
    page_param: sida
    rate_limit: 2s
    selectors:
      results_table: "#SokResultatPlaceHolder_resultatGridView"
`

func TestLoaderLoadValid(t *testing.T) {
	loader := regions.NewLoader(writeRegions(t, validRegionsYAML))

	loaded, err := loader.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	lst := loaded[0]
	assert.Equal(t, "lst-ab", lst.ID)
	assert.Equal(t, regions.SourceDiarium, lst.Source)
	// Optional fields fall back to the shared diarium defaults.
	assert.Equal(t, regions.DefaultResultsTable, lst.Selectors.ResultsTable)
	assert.Equal(t, regions.DefaultHitCount, lst.Selectors.HitCount)
	assert.Equal(t, 50, lst.PageSize)
	assert.Equal(t, time.Second, lst.RateLimit)

	trv := loaded[1]
	assert.Equal(t, 2*time.Second, trv.RateLimit)
	assert.Equal(t, "#SokResultatPlaceHolder_resultatGridView", trv.Selectors.ResultsTable)
	assert.Equal(t, regions.DefaultHitCount, trv.Selectors.HitCount)
}

func TestLoaderNumericRateLimitMeansSeconds(t *testing.T) {
	loader := regions.NewLoader(writeRegions(t, `
regions:
  - id: lst-ab
    name: Stockholm
    source: diarium
    base_url: https://diarium.lansstyrelsen.se
    search_path: /Case/CaseSearchResult.aspx
    rate_limit: 2
`))

	loaded, err := loader.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 2*time.Second, loaded[0].RateLimit)
}

func TestLoaderSkipsInvalidEntries(t *testing.T) {
	loader := regions.NewLoader(writeRegions(t, `
regions:
  - id: lst-ab
    name: Stockholm
    source: diarium
    base_url: https://diarium.lansstyrelsen.se
    search_path: /Case/CaseSearchResult.aspx
  - id: broken
    name: No endpoint
    source: diarium
  - id: lst-ab
    name: Duplicate of the first
    source: diarium
    base_url: https://diarium.lansstyrelsen.se
    search_path: /Case/CaseSearchResult.aspx
`))

	loaded, err := loader.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "lst-ab", loaded[0].ID)
}

func TestLoaderFailsWhenNothingValid(t *testing.T) {
	loader := regions.NewLoader(writeRegions(t, `
regions:
  - id: broken
    name: No endpoint
    source: diarium
`))

	_, err := loader.Load()
	assert.ErrorIs(t, err, regions.ErrNoRegions)
}

func TestLoaderMissingFile(t *testing.T) {
	loader := regions.NewLoader(filepath.Join(t.TempDir(), "absent.yml"))

	_, err := loader.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read regions file")
}

func TestLoaderRequiresPageParamForDirectPaging(t *testing.T) {
	loader := regions.NewLoader(writeRegions(t, `
regions:
  - id: trv
    name: Trafikverket
    source: transport
    base_url: https://diariet.trafikverket.se
    search_path: /Sok/SokResultat.aspx
`))

	issues, err := loader.Lint()
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Error(), "page_param")
}

func TestLoaderLint(t *testing.T) {
	loader := regions.NewLoader(writeRegions(t, `
regions:
  - id: lst-ab
    name: Stockholm
    source: diarium
    base_url: https://diarium.lansstyrelsen.se
    search_path: /Case/CaseSearchResult.aspx
  - id: bad-url
    name: Broken
    source: diarium
    base_url: "ftp://diarium.example.se"
    search_path: /Case/CaseSearchResult.aspx
  - id: lst-ab
    name: Duplicate
    source: diarium
    base_url: https://diarium.lansstyrelsen.se
    search_path: /Case/CaseSearchResult.aspx
  - id: odd
    name: Odd source
    source: gopher
    base_url: https://diarium.example.se
    search_path: /search
`))

	issues, err := loader.Lint()
	require.NoError(t, err)
	require.Len(t, issues, 3)
	assert.Contains(t, issues[0].Error(), "base_url")
	assert.Contains(t, issues[1].Error(), "duplicate of region 1")
	assert.Contains(t, issues[2].Error(), "unknown source kind")
}

func TestLoaderLintCleanFile(t *testing.T) {
	loader := regions.NewLoader(writeRegions(t, validRegionsYAML))

	issues, err := loader.Lint()
	require.NoError(t, err)
	assert.Empty(t, issues)
}

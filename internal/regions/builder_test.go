package regions_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projektkollen/collector/internal/domain"
	"github.com/projektkollen/collector/internal/regions"
)

func diariumRegion() *regions.Region {
	return &regions.Region{
		ID:         "lst-ab",
		Name:       "Stockholm",
		Source:     regions.SourceDiarium,
		BaseURL:    "https://diarium.lansstyrelsen.se",
		SearchPath: "/Case/CaseSearchResult.aspx",
		Query:      "oJ/Yw8gzqEr9ng==",
	}
}

func transportRegion() *regions.Region {
	return &regions.Region{
		ID:         "trv",
		Name:       "Trafikverket",
		Source:     regions.SourceTransport,
		BaseURL:    "https://diariet.trafikverket.se",
		SearchPath: "/Sok/SokResultat.aspx",
		Query:      "arendeslag=miljo&from={{from}}&to={{to}}",
		PageParam:  "sida",
	}
}

func TestBuildQueryDiarium(t *testing.T) {
	query, err := regions.BuildQuery(diariumRegion(), domain.Filters{}, 1)
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, query.Method)
	assert.Equal(t,
		"https://diarium.lansstyrelsen.se/Case/CaseSearchResult.aspx?query=oJ/Yw8gzqEr9ng==",
		query.URL)
	assert.Nil(t, query.Form)
}

func TestBuildQueryTransportPaging(t *testing.T) {
	filters := domain.Filters{
		FromDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ToDate:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}

	query, err := regions.BuildQuery(transportRegion(), filters, 3)
	require.NoError(t, err)

	assert.Equal(t,
		"https://diariet.trafikverket.se/Sok/SokResultat.aspx?arendeslag=miljo&from=2026-01-01&to=2026-02-01&sida=3",
		query.URL)
}

func TestBuildQueryZeroDatesExpandEmpty(t *testing.T) {
	query, err := regions.BuildQuery(transportRegion(), domain.Filters{}, 1)
	require.NoError(t, err)

	assert.Contains(t, query.URL, "from=&to=")
}

func TestBuildQueryEmptyQueryUsesPageParamOnly(t *testing.T) {
	region := transportRegion()
	region.Source = regions.SourceMunicipal
	region.Query = ""
	region.PageParam = "page"

	query, err := regions.BuildQuery(region, domain.Filters{}, 2)
	require.NoError(t, err)

	assert.Equal(t, "https://diariet.trafikverket.se/Sok/SokResultat.aspx?page=2", query.URL)
}

func TestBuildQueryHeaders(t *testing.T) {
	region := diariumRegion()
	region.Headers = map[string]string{"Accept-Language": "sv-SE"}

	query, err := regions.BuildQuery(region, domain.Filters{}, 1)
	require.NoError(t, err)

	assert.Equal(t, "sv-SE", query.Header.Get("Accept-Language"))
}

func TestBuildQueryInvalidRange(t *testing.T) {
	filters := domain.Filters{
		FromDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		ToDate:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	_, err := regions.BuildQuery(diariumRegion(), filters, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidFilter)
}

func TestBuildQueryRejectsBadPage(t *testing.T) {
	_, err := regions.BuildQuery(diariumRegion(), domain.Filters{}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page must be positive")
}

func TestBuildQueryUnknownSource(t *testing.T) {
	region := diariumRegion()
	region.Source = "rss"

	_, err := regions.BuildQuery(region, domain.Filters{}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown source kind")
}

// Package parser turns raw diarium HTML into case records. The county
// endpoints render server-side ASP.NET grids, so extraction is selector
// driven per region and tolerant of partial rows: a malformed row is a
// warning, a malformed page is an error.
package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/projektkollen/collector/internal/domain"
	"github.com/projektkollen/collector/internal/logger"
	"github.com/projektkollen/collector/internal/metrics"
	"github.com/projektkollen/collector/internal/regions"
)

// minRowCells is the column count of the diarium result grid. Rows with
// fewer cells are spacers or pager chrome, not cases.
const minRowCells = 8

// noResultsMarker appears in the page body when a search matched nothing.
const noResultsMarker = "inga träffar"

// ASP.NET WebForms hidden fields carried between postbacks.
const (
	fieldViewState     = "__VIEWSTATE"
	fieldViewStateGen  = "__VIEWSTATEGENERATOR"
	fieldEventValid    = "__EVENTVALIDATION"
	fieldEventTarget   = "__EVENTTARGET"
	fieldEventArgument = "__EVENTARGUMENT"
)

// totalHitsRe matches the counter next to the grid,
// "Sökresultat: 1-50 av 7411".
var totalHitsRe = regexp.MustCompile(`av\s+(\d+)`)

// ParseError reports a page whose markup could not be interpreted as a
// result listing at all. Recoverable row problems surface as warnings on
// the parsed page instead.
type ParseError struct {
	Region string
	Page   int
	Reason string
}

func (e *ParseError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("parse page %d of %s: %s", e.Page, e.Region, e.Reason)
	}
	return fmt.Sprintf("parse %s: %s", e.Region, e.Reason)
}

// Parser extracts case data from region result and detail pages.
type Parser struct {
	log     logger.Logger
	metrics *metrics.Metrics
}

// New creates a parser that logs skipped rows and counts parse outcomes.
func New(log logger.Logger, m *metrics.Metrics) *Parser {
	return &Parser{log: log, metrics: m}
}

// ParsePage extracts the case rows, hit totals and pagination state from
// one result page. Rows without a case number are skipped and reported in
// the page's Warnings. A missing results table is only an error on the
// first page; past that it means pagination ran out.
func (p *Parser) ParsePage(region *regions.Region, page int, body []byte) (*domain.ResultPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		p.metrics.ParseFailures.WithLabelValues(region.ID).Inc()
		return nil, &ParseError{Region: region.ID, Page: page, Reason: fmt.Sprintf("read document: %v", err)}
	}

	result := &domain.ResultPage{Number: page}

	table := doc.Find(region.Selectors.ResultsTable).First()
	if table.Length() == 0 {
		if page == 1 && !p.noResults(region, doc, body) {
			p.metrics.ParseFailures.WithLabelValues(region.ID).Inc()
			return nil, &ParseError{Region: region.ID, Page: page, Reason: "results table not found"}
		}
		return result, nil
	}

	result.TotalItems = p.totalItems(region, doc)

	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		// Header rows render th cells, the pager row a colspan cell.
		if row.Find("th").Length() > 0 || row.Find("td[colspan]").Length() > 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() < minRowCells {
			return
		}
		rec, ok := extractCase(region, cells)
		if !ok {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("page %d row %d: missing case number, row skipped", page, i))
			p.metrics.ParseWarnings.WithLabelValues(region.ID).Inc()
			p.log.Warn("skipping result row without case number",
				logger.String("region", region.ID),
				logger.Int("page", page),
				logger.Int("row", i))
			return
		}
		result.Cases = append(result.Cases, rec)
	})

	result.ItemsPerPage = region.PageSize
	if n := len(result.Cases); n > result.ItemsPerPage {
		result.ItemsPerPage = n
	}
	if result.TotalItems > 0 && result.ItemsPerPage > 0 {
		result.TotalPages = (result.TotalItems + result.ItemsPerPage - 1) / result.ItemsPerPage
	}

	if region.Source == regions.SourceDiarium {
		result.NextPageForm = nextPageForm(doc, page)
		result.HasNext = result.NextPageForm != nil
	} else {
		result.HasNext = hasMorePages(page, result)
	}

	return result, nil
}

// extractCase maps one grid row onto a case record. The second return is
// false when the row carries no case number, which the grid renders for
// withdrawn or masked entries.
func extractCase(region *regions.Region, cells *goquery.Selection) (domain.CaseRecord, bool) {
	link := caseLink(cells.Eq(0))
	caseNumber := strings.TrimSpace(link.Text())
	if caseNumber == "" {
		caseNumber = strings.TrimSpace(cells.Eq(0).Text())
	}
	if caseNumber == "" {
		return domain.CaseRecord{}, false
	}

	rec := domain.CaseRecord{
		Source:       region.ID,
		CaseNumber:   caseNumber,
		Status:       strings.TrimSpace(cells.Eq(1).Text()),
		RegisteredAt: ParseDate(cells.Eq(2).Text()),
		Title:        strings.TrimSpace(cells.Eq(3).Text()),
		Sender:       strings.TrimSpace(cells.Eq(4).Text()),
		Location:     strings.TrimSpace(cells.Eq(5).Text()),
		Municipality: strings.TrimSpace(cells.Eq(6).Text()),
		DecidedAt:    ParseDate(cells.Eq(7).Text()),
	}
	if href, ok := link.Attr("href"); ok && !strings.HasPrefix(href, "javascript:") {
		rec.URL = resolveURL(region, href)
	}
	return rec, true
}

// caseLink picks the detail anchor out of a grid cell, preferring real
// links over javascript postbacks.
func caseLink(cell *goquery.Selection) *goquery.Selection {
	links := cell.Find("a")
	result := links.First()
	links.EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if strings.HasPrefix(href, "javascript:") {
			return true
		}
		result = a
		return false
	})
	return result
}

// resolveURL makes a scraped href absolute. Diarium hrefs are relative to
// the search page's directory, e.g. "CaseInfo.aspx?caseID=1" under /Case/.
func resolveURL(region *regions.Region, href string) string {
	href = strings.TrimSpace(href)
	switch {
	case href == "":
		return ""
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		return href
	case strings.HasPrefix(href, "/"):
		return region.BaseURL + href
	default:
		dir := path.Dir(region.SearchPath)
		if dir == "/" || dir == "." {
			return region.BaseURL + "/" + href
		}
		return region.BaseURL + dir + "/" + href
	}
}

// totalItems reads the hit counter next to the grid. Zero means the
// counter is absent, not that the result set is empty.
func (p *Parser) totalItems(region *regions.Region, doc *goquery.Document) int {
	text := strings.TrimSpace(doc.Find(region.Selectors.HitCount).First().Text())
	if text == "" {
		return 0
	}
	m := totalHitsRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// noResults reports whether an empty first page is a genuine zero-hit
// search rather than an unrecognized document.
func (p *Parser) noResults(region *regions.Region, doc *goquery.Document, body []byte) bool {
	if region.Selectors.NoResults != "" && doc.Find(region.Selectors.NoResults).Length() > 0 {
		return true
	}
	return bytes.Contains(bytes.ToLower(body), []byte(noResultsMarker))
}

// nextPageForm harvests the WebForms state needed to request the page
// after the current one. The pager renders the active page as a span and
// the others as __doPostBack links; nil means the pager has run out.
func nextPageForm(doc *goquery.Document, page int) url.Values {
	pager := doc.Find("tfoot").First()
	if pager.Length() == 0 {
		return nil
	}
	if span := strings.TrimSpace(pager.Find("span").First().Text()); span != "" {
		if current, err := strconv.Atoi(span); err == nil {
			page = current
		}
	}

	next := strconv.Itoa(page + 1)
	var target string
	pager.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if strings.TrimSpace(a.Text()) != next {
			return true
		}
		href, _ := a.Attr("href")
		if !strings.Contains(href, "__doPostBack") {
			return true
		}
		if parts := strings.Split(href, "'"); len(parts) >= 2 {
			target = parts[1]
		}
		return false
	})
	if target == "" {
		return nil
	}

	form := url.Values{}
	for _, field := range []string{fieldViewState, fieldViewStateGen, fieldEventValid} {
		value, ok := doc.Find("input[name='" + field + "']").First().Attr("value")
		if !ok {
			return nil
		}
		form.Set(field, value)
	}
	form.Set(fieldEventTarget, target)
	form.Set(fieldEventArgument, "Page$"+next)
	return form
}

// hasMorePages decides continuation for sources paged by query parameter
// instead of postbacks.
func hasMorePages(page int, result *domain.ResultPage) bool {
	if len(result.Cases) == 0 {
		return false
	}
	if result.TotalPages > 0 {
		return page < result.TotalPages
	}
	return len(result.Cases) >= result.ItemsPerPage
}

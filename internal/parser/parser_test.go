package parser_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/projektkollen/collector/internal/logger"
	"github.com/projektkollen/collector/internal/metrics"
	"github.com/projektkollen/collector/internal/parser"
	"github.com/projektkollen/collector/internal/regions"
)

// resultPageHTML is a trimmed first result page: hidden WebForms state,
// the hit counter, a header row, two case rows, one masked row without a
// case number, and a pager pointing at page 2.
const resultPageHTML = `<!DOCTYPE html>
<html>
<body>
<form method="post" action="./CaseSearchResult.aspx" id="aspnetForm">
<input type="hidden" name="__VIEWSTATE" id="__VIEWSTATE" value="dDwtMTM4NzM5O3Q8cDw=">
<input type="hidden" name="__VIEWSTATEGENERATOR" id="__VIEWSTATEGENERATOR" value="CA0B0334">
<input type="hidden" name="__EVENTVALIDATION" id="__EVENTVALIDATION" value="/wEdAAQx0c7B">
<span id="SearchPlaceHolder_lblCaseCount">Sökresultat: 1-50 av 120</span>
<table id="SearchPlaceHolder_caseGridView">
  <tr>
    <th>Diarienummer</th><th>Status</th><th>In/Upp-datum</th><th>Ärenderubrik</th>
    <th>Avsändare/mottagare</th><th>Postort</th><th>Kommun</th><th>Beslutsdatum</th>
  </tr>
  <tr>
    <td><a class="sv-font-brodtext-med-bla-lankning" href="CaseInfo.aspx?caseID=4711">551-1234-2026</a></td>
    <td>Pågående</td>
    <td>2026-03-02</td>
    <td>Ansökan om tillstånd till vindkraftpark</td>
    <td>Nordvind AB</td>
    <td>Piteå</td>
    <td>Piteå</td>
    <td></td>
  </tr>
  <tr>
    <td><a class="sv-font-brodtext-med-bla-lankning" href="CaseInfo.aspx?caseID=4712">551-5678-2025</a></td>
    <td>Avslutat</td>
    <td>2025-11-20 14:30:00</td>
    <td>Anmälan om vattenverksamhet</td>
    <td>Bottenvikens Energi AB</td>
    <td>Luleå</td>
    <td>Luleå</td>
    <td>2026-04-01</td>
  </tr>
  <tr>
    <td></td>
    <td>Sekretess</td>
    <td>2026-01-15</td>
    <td></td>
    <td></td>
    <td></td>
    <td></td>
    <td></td>
  </tr>
  <tfoot>
    <tr><td colspan="8">
      <table>
        <tr>
          <td><span>1</span></td>
          <td><a href="javascript:__doPostBack('ctl00$SearchPlaceHolder$caseGridView','Page$2')">2</a></td>
          <td><a href="javascript:__doPostBack('ctl00$SearchPlaceHolder$caseGridView','Page$3')">3</a></td>
        </tr>
      </table>
    </td></tr>
  </tfoot>
</table>
</form>
</body>
</html>`

// lastPageHTML is a final page: the pager shows page 3 as current with
// only earlier pages linked.
const lastPageHTML = `<!DOCTYPE html>
<html>
<body>
<input type="hidden" name="__VIEWSTATE" value="dDwtMTM4NzM5">
<input type="hidden" name="__VIEWSTATEGENERATOR" value="CA0B0334">
<input type="hidden" name="__EVENTVALIDATION" value="/wEdAAQ">
<span id="SearchPlaceHolder_lblCaseCount">Sökresultat: 101-120 av 120</span>
<table id="SearchPlaceHolder_caseGridView">
  <tr>
    <td><a href="CaseInfo.aspx?caseID=4999">551-9999-2024</a></td>
    <td>Avslutat</td>
    <td>2024-06-10</td>
    <td>Samråd enligt miljöbalken</td>
    <td>Solpark Nord AB</td>
    <td>Boden</td>
    <td>Boden</td>
    <td>2024-12-01</td>
  </tr>
  <tfoot>
    <tr><td colspan="8">
      <table>
        <tr>
          <td><a href="javascript:__doPostBack('ctl00$SearchPlaceHolder$caseGridView','Page$1')">1</a></td>
          <td><a href="javascript:__doPostBack('ctl00$SearchPlaceHolder$caseGridView','Page$2')">2</a></td>
          <td><span>3</span></td>
        </tr>
      </table>
    </td></tr>
  </tfoot>
</table>
</body>
</html>`

// noHitsHTML is a first page for a search that matched nothing.
const noHitsHTML = `<!DOCTYPE html>
<html>
<body>
<span id="SearchPlaceHolder_lblNoHits">Din sökning gav inga träffar.</span>
</body>
</html>`

// maintenanceHTML is not a result page at all.
const maintenanceHTML = `<!DOCTYPE html>
<html>
<body><h1>Underhållsarbete pågår</h1><p>Försök igen senare.</p></body>
</html>`

// caseDetailHTML is a trimmed detail page: the two-column overview table
// followed by the document grid.
const caseDetailHTML = `<!DOCTYPE html>
<html>
<body>
<table id="CasePlaceHolder_caseOverviewTable">
  <tr><td>Diarienummer</td><td>551-1234-2026</td></tr>
  <tr><td>Diarium</td><td>Länsstyrelsen i Norrbottens län</td></tr>
  <tr><td>In/Upp-datum</td><td>2026-03-02</td></tr>
  <tr><td>Ärenderubrik</td><td>Ansökan om tillstånd till vindkraftpark</td></tr>
  <tr><td>Status</td><td>Pågående</td></tr>
  <tr><td>Beslutsdatum</td><td></td></tr>
  <tr><td>Avsändare/mottagare</td><td>Nordvind AB</td></tr>
  <tr><td>Kommun</td><td>Piteå</td></tr>
</table>
<table id="CasePlaceHolder_documentGridView">
  <tr><th>Id</th><th>Dokument</th><th>Datum</th><th>Avsändare/mottagare</th></tr>
  <tr>
    <td>1</td>
    <td><a href="Case/Download.aspx?docID=9001">Ansökan med bilagor</a></td>
    <td>2026-03-02</td>
    <td>Nordvind AB</td>
  </tr>
  <tr>
    <td>2</td>
    <td><a href="Case/Download.aspx?docID=9002">Begäran om komplettering</a></td>
    <td>2026-03-20</td>
    <td>Länsstyrelsen</td>
  </tr>
</table>
</body>
</html>`

func newParser(t *testing.T) *parser.Parser {
	t.Helper()

	return parser.New(logger.NewNop(), metrics.New(prometheus.NewRegistry()))
}

func testRegion() *regions.Region {
	return &regions.Region{
		ID:         "lst-bd",
		Name:       "Norrbottens län",
		Source:     regions.SourceDiarium,
		BaseURL:    "https://diarium.lansstyrelsen.se",
		SearchPath: "/Case/CaseSearchResult.aspx",
		PageSize:   50,
		Selectors: regions.Selectors{
			ResultsTable:   regions.DefaultResultsTable,
			HitCount:       regions.DefaultHitCount,
			NoResults:      regions.DefaultNoResults,
			DetailTable:    regions.DefaultDetailTable,
			DocumentsTable: regions.DefaultDocumentsTable,
		},
	}
}

func TestParsePage_FullListing(t *testing.T) {
	t.Parallel()

	p := newParser(t)

	page, err := p.ParsePage(testRegion(), 1, []byte(resultPageHTML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(page.Cases) != 2 {
		t.Fatalf("Cases: expected 2, got %d", len(page.Cases))
	}
	if len(page.Warnings) != 1 {
		t.Fatalf("Warnings: expected 1 for the masked row, got %d: %v", len(page.Warnings), page.Warnings)
	}

	first := page.Cases[0]
	assertEqual(t, "Source", "lst-bd", first.Source)
	assertEqual(t, "CaseNumber", "551-1234-2026", first.CaseNumber)
	assertEqual(t, "Status", "Pågående", first.Status)
	assertEqual(t, "Title", "Ansökan om tillstånd till vindkraftpark", first.Title)
	assertEqual(t, "Sender", "Nordvind AB", first.Sender)
	assertEqual(t, "Location", "Piteå", first.Location)
	assertEqual(t, "Municipality", "Piteå", first.Municipality)
	assertEqual(t, "URL", "https://diarium.lansstyrelsen.se/Case/CaseInfo.aspx?caseID=4711", first.URL)
	assertDate(t, "RegisteredAt", first.RegisteredAt, 2026, time.March, 2)
	if first.DecidedAt != nil {
		t.Errorf("DecidedAt: expected nil for undecided case, got %v", first.DecidedAt)
	}

	second := page.Cases[1]
	assertEqual(t, "CaseNumber", "551-5678-2025", second.CaseNumber)
	assertDate(t, "RegisteredAt", second.RegisteredAt, 2025, time.November, 20)
	assertDate(t, "DecidedAt", second.DecidedAt, 2026, time.April, 1)
}

func TestParsePage_Totals(t *testing.T) {
	t.Parallel()

	p := newParser(t)

	page, err := p.ParsePage(testRegion(), 1, []byte(resultPageHTML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if page.TotalItems != 120 {
		t.Errorf("TotalItems: expected 120, got %d", page.TotalItems)
	}
	if page.ItemsPerPage != 50 {
		t.Errorf("ItemsPerPage: expected 50, got %d", page.ItemsPerPage)
	}
	if page.TotalPages != 3 {
		t.Errorf("TotalPages: expected 3, got %d", page.TotalPages)
	}
}

func TestParsePage_NextPageForm(t *testing.T) {
	t.Parallel()

	p := newParser(t)

	page, err := p.ParsePage(testRegion(), 1, []byte(resultPageHTML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !page.HasNext {
		t.Fatal("HasNext: expected true when the pager links page 2")
	}
	form := page.NextPageForm
	if form == nil {
		t.Fatal("NextPageForm: expected harvested postback state, got nil")
	}

	assertEqual(t, "__EVENTTARGET", "ctl00$SearchPlaceHolder$caseGridView", form.Get("__EVENTTARGET"))
	assertEqual(t, "__EVENTARGUMENT", "Page$2", form.Get("__EVENTARGUMENT"))
	assertEqual(t, "__VIEWSTATE", "dDwtMTM4NzM5O3Q8cDw=", form.Get("__VIEWSTATE"))
	assertEqual(t, "__VIEWSTATEGENERATOR", "CA0B0334", form.Get("__VIEWSTATEGENERATOR"))
	assertEqual(t, "__EVENTVALIDATION", "/wEdAAQx0c7B", form.Get("__EVENTVALIDATION"))
}

func TestParsePage_LastPage(t *testing.T) {
	t.Parallel()

	p := newParser(t)

	page, err := p.ParsePage(testRegion(), 3, []byte(lastPageHTML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(page.Cases) != 1 {
		t.Fatalf("Cases: expected 1, got %d", len(page.Cases))
	}
	if page.HasNext {
		t.Error("HasNext: expected false on the last page")
	}
	if page.NextPageForm != nil {
		t.Errorf("NextPageForm: expected nil on the last page, got %v", page.NextPageForm)
	}
}

func TestParsePage_NoHitsFirstPage(t *testing.T) {
	t.Parallel()

	p := newParser(t)

	page, err := p.ParsePage(testRegion(), 1, []byte(noHitsHTML))
	if err != nil {
		t.Fatalf("unexpected error for a zero-hit search: %v", err)
	}

	if len(page.Cases) != 0 {
		t.Errorf("Cases: expected none, got %d", len(page.Cases))
	}
	if page.HasNext {
		t.Error("HasNext: expected false for a zero-hit search")
	}
}

func TestParsePage_UnrecognizedFirstPage(t *testing.T) {
	t.Parallel()

	p := newParser(t)

	_, err := p.ParsePage(testRegion(), 1, []byte(maintenanceHTML))
	if err == nil {
		t.Fatal("expected an error for a page without a results table or no-hits marker")
	}

	var parseErr *parser.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *parser.ParseError, got %T: %v", err, err)
	}
	assertEqual(t, "Region", "lst-bd", parseErr.Region)
	if parseErr.Page != 1 {
		t.Errorf("Page: expected 1, got %d", parseErr.Page)
	}
}

func TestParsePage_MissingTablePastFirstPage(t *testing.T) {
	t.Parallel()

	p := newParser(t)

	page, err := p.ParsePage(testRegion(), 4, []byte(maintenanceHTML))
	if err != nil {
		t.Fatalf("unexpected error past the first page: %v", err)
	}

	if len(page.Cases) != 0 || page.HasNext {
		t.Errorf("expected an empty terminal page, got %d cases, HasNext=%v", len(page.Cases), page.HasNext)
	}
}

func TestParseCaseDetails(t *testing.T) {
	t.Parallel()

	p := newParser(t)

	details, err := p.ParseCaseDetails(testRegion(), []byte(caseDetailHTML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertEqual(t, "CaseNumber", "551-1234-2026", details.CaseNumber)
	assertEqual(t, "Diarium", "Länsstyrelsen i Norrbottens län", details.Diarium)
	assertEqual(t, "Title", "Ansökan om tillstånd till vindkraftpark", details.Title)
	assertEqual(t, "Status", "Pågående", details.Status)
	assertEqual(t, "Sender", "Nordvind AB", details.Sender)
	assertEqual(t, "Municipality", "Piteå", details.Municipality)
	assertDate(t, "RegisteredAt", details.RegisteredAt, 2026, time.March, 2)
	if details.DecidedAt != nil {
		t.Errorf("DecidedAt: expected nil for an empty cell, got %v", details.DecidedAt)
	}

	if len(details.Documents) != 2 {
		t.Fatalf("Documents: expected 2, got %d", len(details.Documents))
	}
	doc := details.Documents[0]
	assertEqual(t, "Documents[0].Title", "Ansökan med bilagor", doc.Title)
	assertEqual(t, "Documents[0].Sender", "Nordvind AB", doc.Sender)
	assertEqual(t, "Documents[0].URL", "https://diarium.lansstyrelsen.se/Case/Download.aspx?docID=9001", doc.URL)
	assertDate(t, "Documents[0].Date", doc.Date, 2026, time.March, 2)
}

func TestParseCaseDetails_NoTables(t *testing.T) {
	t.Parallel()

	p := newParser(t)

	_, err := p.ParseCaseDetails(testRegion(), []byte(maintenanceHTML))
	if err == nil {
		t.Fatal("expected an error for a page without an overview table")
	}

	var parseErr *parser.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *parser.ParseError, got %T: %v", err, err)
	}
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain date", input: "2026-03-02", want: "2026-03-02"},
		{name: "datetime", input: "2025-11-20 14:30:00", want: "2025-11-20"},
		{name: "iso datetime", input: "2025-11-20T14:30:00", want: "2025-11-20"},
		{name: "fractional seconds", input: "2025-11-20 14:30:00.123456", want: "2025-11-20"},
		{name: "slash format", input: "02/03/2026", want: "2026-03-02"},
		{name: "surrounding whitespace", input: "  2026-03-02  ", want: "2026-03-02"},
		{name: "empty", input: "", want: ""},
		{name: "garbage", input: "ej angivet", want: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := parser.ParseDate(tt.input)
			if tt.want == "" {
				if got != nil {
					t.Fatalf("expected nil, got %v", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("expected %s, got nil", tt.want)
			}
			if got.Format("2006-01-02") != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got.Format("2006-01-02"))
			}
		})
	}
}

// --- test helpers ---

func assertEqual(t *testing.T, field, expected, actual string) {
	t.Helper()

	if actual != expected {
		t.Errorf("%s: expected %q, got %q", field, expected, actual)
	}
}

func assertDate(t *testing.T, field string, actual *time.Time, year int, month time.Month, day int) {
	t.Helper()

	if actual == nil {
		t.Errorf("%s: expected %04d-%02d-%02d, got nil", field, year, month, day)
		return
	}
	y, m, d := actual.Date()
	if y != year || m != month || d != day {
		t.Errorf("%s: expected %04d-%02d-%02d, got %s", field, year, month, day, actual.Format("2006-01-02"))
	}
}

package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/projektkollen/collector/internal/domain"
	"github.com/projektkollen/collector/internal/regions"
)

// Overview table labels as rendered by the diarium detail page.
const (
	labelCaseNumber   = "Diarienummer"
	labelDiarium      = "Diarium"
	labelRegistered   = "In/Upp-datum"
	labelTitle        = "Ärenderubrik"
	labelStatus       = "Status"
	labelDecided      = "Beslutsdatum"
	labelSender       = "Avsändare/mottagare"
	labelMunicipality = "Kommun"
)

// ParseCaseDetails extracts the overview fields and document list from a
// case detail page. The overview is a two-column key/value table; the
// document grid below it is optional.
func (p *Parser) ParseCaseDetails(region *regions.Region, body []byte) (*domain.CaseDetails, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		p.metrics.ParseFailures.WithLabelValues(region.ID).Inc()
		return nil, &ParseError{Region: region.ID, Reason: fmt.Sprintf("read document: %v", err)}
	}

	overview := doc.Find(region.Selectors.DetailTable).First()
	if overview.Length() == 0 {
		overview = doc.Find("table").First()
	}
	if overview.Length() == 0 {
		p.metrics.ParseFailures.WithLabelValues(region.ID).Inc()
		return nil, &ParseError{Region: region.ID, Reason: "case overview table not found"}
	}

	fields := make(map[string]string)
	overview.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() != 2 {
			return
		}
		key := strings.TrimSuffix(strings.TrimSpace(cells.Eq(0).Text()), ":")
		fields[key] = strings.TrimSpace(cells.Eq(1).Text())
	})

	details := &domain.CaseDetails{
		CaseNumber:   fields[labelCaseNumber],
		Diarium:      fields[labelDiarium],
		Title:        fields[labelTitle],
		Status:       fields[labelStatus],
		Sender:       fields[labelSender],
		Municipality: fields[labelMunicipality],
		RegisteredAt: ParseDate(fields[labelRegistered]),
		DecidedAt:    ParseDate(fields[labelDecided]),
	}
	details.Documents = extractDocuments(region, doc)

	return details, nil
}

// extractDocuments reads the document grid below the overview. A missing
// grid is normal; many cases have no published documents.
func extractDocuments(region *regions.Region, doc *goquery.Document) []domain.CaseDocument {
	table := doc.Find(region.Selectors.DocumentsTable).First()
	if table.Length() == 0 {
		table = doc.Find("table").Eq(1)
	}
	if table.Length() == 0 {
		return nil
	}

	var docs []domain.CaseDocument
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		if row.Find("th").Length() > 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() < 4 {
			return
		}
		d := domain.CaseDocument{
			Title:  strings.TrimSpace(cells.Eq(1).Text()),
			Date:   ParseDate(cells.Eq(2).Text()),
			Sender: strings.TrimSpace(cells.Eq(3).Text()),
		}
		if href, ok := cells.Eq(1).Find("a").First().Attr("href"); ok {
			d.URL = resolveFromRoot(region, href)
		}
		docs = append(docs, d)
	})
	return docs
}

// resolveFromRoot makes a document href absolute against the site root.
// Unlike case links, document downloads are rooted at the host, not the
// search directory.
func resolveFromRoot(region *regions.Region, href string) string {
	href = strings.TrimSpace(href)
	switch {
	case href == "":
		return ""
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		return href
	case strings.HasPrefix(href, "/"):
		return region.BaseURL + href
	default:
		return region.BaseURL + "/" + href
	}
}

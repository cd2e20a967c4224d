// Package extract applies the document-page field rules to a rendered page
// and produces a crawler.MetadataRecord. Every rule tolerates missing markup
// by leaving its field at the zero value.
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/docmeta-crawler/internal/crawler"
	"github.com/JakeFAU/docmeta-crawler/internal/document"
)

// Selectors locates each field on a document page.
type Selectors struct {
	Title               string
	DefinitionTables    string
	DefinitionRow       string
	DefinitionLabel     string
	DefinitionValue     string
	Sectors             string
	Locations           string
	PopulationGroupRows string
	PopulationCells     string
	DownloadButton      string
}

// DefaultSelectors matches the markup of the document detail pages.
var DefaultSelectors = Selectors{
	Title:               "h1.documentView_title.pageTitle.showFromMediumPlus",
	DefinitionTables:    "table.definitionTable tbody",
	DefinitionRow:       "tr",
	DefinitionLabel:     "th.definitionTable_title",
	DefinitionValue:     "td.definitionTable_desc",
	Sectors:             "ul.documentView_sectorList li.inlineList_item",
	Locations:           "ul.documentView_locationList li.inlineList_item",
	PopulationGroupRows: "table.documentView_popGroupTable tbody tr",
	PopulationCells:     "td",
	DownloadButton:      "a.button.-cta.-tall.-fullWidth",
}

var parenthesized = regexp.MustCompile(`\((.*?)\)`)

// Extractor implements crawler.Extractor.
type Extractor struct {
	sel Selectors
}

// New returns an Extractor using sel; zero-valued selectors fall back to
// DefaultSelectors.
func New(sel Selectors) *Extractor {
	return &Extractor{sel: withDefaults(sel)}
}

// Extract builds the record for source from doc. Unexpected panics raised by
// the DOM layer are returned as *crawler.ExtractionError.
func (e *Extractor) Extract(doc document.Document, source crawler.DocumentURL) (record crawler.MetadataRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			record = crawler.MetadataRecord{}
			err = &crawler.ExtractionError{URL: source, Cause: fmt.Errorf("panic: %v", r)}
		}
	}()
	if doc == nil {
		return crawler.MetadataRecord{}, &crawler.ExtractionError{URL: source, Cause: fmt.Errorf("nil document")}
	}

	record = crawler.NewMetadataRecord(source)
	record.ReportName = e.title(doc)
	e.definitions(doc, &record)
	record.Sectors = listItems(doc, e.sel.Sectors)
	record.Locations = listItems(doc, e.sel.Locations)
	record.PopulationGroups = e.populationGroups(doc)
	record.FileSize = e.fileSize(doc)
	return record, nil
}

func (e *Extractor) title(doc document.Node) string {
	node, ok := doc.First(e.sel.Title)
	if !ok {
		return ""
	}
	return node.Text()
}

func (e *Extractor) definitions(doc document.Node, record *crawler.MetadataRecord) {
	for _, body := range doc.Find(e.sel.DefinitionTables) {
		for _, row := range body.Find(e.sel.DefinitionRow) {
			label, ok := row.First(e.sel.DefinitionLabel)
			if !ok {
				continue
			}
			value, ok := row.First(e.sel.DefinitionValue)
			if !ok {
				continue
			}
			applyDefinition(record, strings.ToLower(label.Text()), value.Text())
		}
	}
}

// applyDefinition dispatches on a lower-cased label by substring; the first
// matching field wins.
func applyDefinition(record *crawler.MetadataRecord, label, value string) {
	switch {
	case strings.Contains(label, "document type"):
		record.DocumentType = value
	case strings.Contains(label, "document language"):
		record.DocumentLanguage = value
	case strings.Contains(label, "publish date"):
		record.PublishDate = StripAnnotation(value)
	case strings.Contains(label, "upload date"):
		record.UploadDate = StripAnnotation(value)
	case strings.Contains(label, "downloads"):
		record.Downloads = ParseDownloads(value)
	}
}

func (e *Extractor) populationGroups(doc document.Node) []string {
	groups := []string{}
	for _, row := range doc.Find(e.sel.PopulationGroupRows) {
		cells := row.Find(e.sel.PopulationCells)
		if len(cells) < 2 {
			continue
		}
		if text := cells[len(cells)-1].Text(); text != "" {
			groups = append(groups, text)
		}
	}
	return groups
}

func (e *Extractor) fileSize(doc document.Node) string {
	button, ok := doc.First(e.sel.DownloadButton)
	if !ok {
		return ""
	}
	match := parenthesized.FindStringSubmatch(button.Text())
	if match == nil {
		return ""
	}
	return strings.TrimSpace(match[1])
}

func listItems(doc document.Node, selector string) []string {
	nodes := doc.Find(selector)
	items := make([]string, 0, len(nodes))
	for _, n := range nodes {
		items = append(items, n.Text())
	}
	return items
}

// StripAnnotation drops the relative-time note pages append to dates, e.g.
// "3 Jan 2024 (2 months ago)" becomes "3 Jan 2024".
func StripAnnotation(value string) string {
	if i := strings.IndexByte(value, '('); i >= 0 {
		value = value[:i]
	}
	return strings.TrimSpace(value)
}

// ParseDownloads parses a download counter such as "12,345". Anything that is
// not a non-negative integer yields 0.
func ParseDownloads(value string) int {
	clean := strings.TrimSpace(strings.ReplaceAll(value, ",", ""))
	n, err := strconv.Atoi(clean)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func withDefaults(sel Selectors) Selectors {
	def := DefaultSelectors
	pick := func(v, fallback string) string {
		if strings.TrimSpace(v) == "" {
			return fallback
		}
		return v
	}
	return Selectors{
		Title:               pick(sel.Title, def.Title),
		DefinitionTables:    pick(sel.DefinitionTables, def.DefinitionTables),
		DefinitionRow:       pick(sel.DefinitionRow, def.DefinitionRow),
		DefinitionLabel:     pick(sel.DefinitionLabel, def.DefinitionLabel),
		DefinitionValue:     pick(sel.DefinitionValue, def.DefinitionValue),
		Sectors:             pick(sel.Sectors, def.Sectors),
		Locations:           pick(sel.Locations, def.Locations),
		PopulationGroupRows: pick(sel.PopulationGroupRows, def.PopulationGroupRows),
		PopulationCells:     pick(sel.PopulationCells, def.PopulationCells),
		DownloadButton:      pick(sel.DownloadButton, def.DownloadButton),
	}
}

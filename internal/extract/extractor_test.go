package extract

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/docmeta-crawler/internal/crawler"
	"github.com/JakeFAU/docmeta-crawler/internal/document"
)

const sourceURL = "https://data.example.org/en/documents/details/1"

func loadFixture(t *testing.T) document.Document {
	t.Helper()
	raw, err := os.ReadFile("testdata/document_page.html")
	require.NoError(t, err)
	doc, err := document.ParseString(string(raw), sourceURL)
	require.NoError(t, err)
	return doc
}

func TestExtractFullPage(t *testing.T) {
	t.Parallel()

	record, err := New(Selectors{}).Extract(loadFixture(t), sourceURL)
	require.NoError(t, err)

	assert.Equal(t, crawler.MetadataRecord{
		URL:              sourceURL,
		ReportName:       "Protection Brief – Sudan Situation (Déc 2024)",
		Sectors:          []string{"Protection", "Child Protection"},
		Locations:        []string{"Chad", "Egypt", "South Sudan"},
		PublishDate:      "3 Jan 2024",
		UploadDate:       "5 Jan 2024",
		Downloads:        12345,
		DocumentType:     "Brief",
		DocumentLanguage: "English",
		FileSize:         "1.2 MB",
		PopulationGroups: []string{"Refugees", "Asylum-seekers"},
	}, record)
}

func TestExtractEmptyPageKeepsZeroValues(t *testing.T) {
	t.Parallel()

	doc, err := document.ParseString("<html><body><p>nothing here</p></body></html>", sourceURL)
	require.NoError(t, err)

	record, err := New(Selectors{}).Extract(doc, sourceURL)
	require.NoError(t, err)

	assert.Equal(t, crawler.NewMetadataRecord(sourceURL), record)

	raw, err := json.Marshal(record)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"url": "`+sourceURL+`",
		"report_name": "",
		"sectors": [],
		"locations": [],
		"publish_date": "",
		"upload_date": "",
		"downloads": 0,
		"document_type": "",
		"document_language": "",
		"file_size": "",
		"population_groups": []
	}`, string(raw))
}

func TestExtractIsIdempotent(t *testing.T) {
	t.Parallel()

	doc := loadFixture(t)
	ex := New(Selectors{})

	first, err := ex.Extract(doc, sourceURL)
	require.NoError(t, err)
	second, err := ex.Extract(doc, sourceURL)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPopulationGroupRows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rows string
		want []string
	}{
		{name: "no table", rows: "", want: []string{}},
		{name: "single cell rows skipped", rows: `<tr><td>Refugees</td></tr>`, want: []string{}},
		{name: "last cell taken", rows: `<tr><td>a</td><td>b</td><td> IDPs </td></tr>`, want: []string{"IDPs"}},
		{name: "blank last cell skipped", rows: `<tr><td>a</td><td> </td></tr><tr><td>a</td><td>Returnees</td></tr>`, want: []string{"Returnees"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			html := "<html><body>"
			if tt.rows != "" {
				html += `<table class="documentView_popGroupTable">` + tt.rows + `</table>`
			}
			html += "</body></html>"
			doc, err := document.ParseString(html, sourceURL)
			require.NoError(t, err)

			record, err := New(Selectors{}).Extract(doc, sourceURL)
			require.NoError(t, err)
			assert.Equal(t, tt.want, record.PopulationGroups)
		})
	}
}

func TestDefinitionLabelsMatchBySubstring(t *testing.T) {
	t.Parallel()

	html := `<table class="definitionTable"><tbody>
<tr><th class="definitionTable_title"> Original DOCUMENT TYPE: </th><td class="definitionTable_desc">Report</td></tr>
<tr><th class="definitionTable_title">Total downloads</th><td class="definitionTable_desc">n/a</td></tr>
<tr><td class="definitionTable_desc">orphan value</td></tr>
</tbody></table>`
	doc, err := document.ParseString(html, sourceURL)
	require.NoError(t, err)

	record, err := New(Selectors{}).Extract(doc, sourceURL)
	require.NoError(t, err)
	assert.Equal(t, "Report", record.DocumentType)
	assert.Zero(t, record.Downloads)
}

func TestFileSizeRequiresParentheses(t *testing.T) {
	t.Parallel()

	doc, err := document.ParseString(`<a class="button -cta -tall -fullWidth">Download</a>`, sourceURL)
	require.NoError(t, err)

	record, err := New(Selectors{}).Extract(doc, sourceURL)
	require.NoError(t, err)
	assert.Empty(t, record.FileSize)
}

func TestParseDownloads(t *testing.T) {
	t.Parallel()

	tests := map[string]int{
		"12,345":    12345,
		"1,234,567": 1234567,
		" 42 ":      42,
		"0":         0,
		"":          0,
		"n/a":       0,
		"12.5":      0,
		"-7":        0,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseDownloads(in), "input %q", in)
	}
}

func TestStripAnnotation(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "3 Jan 2024", StripAnnotation("3 Jan 2024 (2 months ago)"))
	assert.Equal(t, "3 Jan 2024", StripAnnotation(" 3 Jan 2024 "))
	assert.Equal(t, "", StripAnnotation("(yesterday)"))
	assert.Equal(t, "a", StripAnnotation("a (b) (c)"))
}

type panickingDoc struct{ document.Document }

func (panickingDoc) First(string) (document.Node, bool) { panic("corrupt tree") }

func TestExtractRecoversFromPanics(t *testing.T) {
	t.Parallel()

	record, err := New(Selectors{}).Extract(panickingDoc{}, sourceURL)
	require.Error(t, err)

	var extractErr *crawler.ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, sourceURL, extractErr.URL)
	assert.Empty(t, record.URL)
}

func TestExtractNilDocument(t *testing.T) {
	t.Parallel()

	_, err := New(Selectors{}).Extract(nil, sourceURL)
	var extractErr *crawler.ExtractionError
	require.ErrorAs(t, err, &extractErr)
}

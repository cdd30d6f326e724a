package services

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/visatrack/timeline-backend/shared"
)

const bulletinFixtureHTML = `<html><body>
<h2>A. Family-Sponsored Preferences</h2>
<table>
  <tr><td>Family- Sponsored</td><td>All Chargeability Areas Except Those Listed</td><td>INDIA</td></tr>
  <tr><td>F1</td><td>01DEC15</td><td>01DEC15</td></tr>
  <tr><td>F2A</td><td>C</td><td>C</td></tr>
</table>
<h2>B. Dates for Filing of Employment-Based Visa Applications</h2>
<table>
  <tr><td>Employment- based</td><td> All Chargeability  Areas Except Those Listed</td><td>CHINA- mainland born&#160;</td><td>INDIA</td><td>MEXICO</td><td>PHILIPPINES</td></tr>
  <tr><td>1st</td><td>C</td><td>01JAN23</td><td>01MAR22</td><td>C</td><td>C</td></tr>
  <tr><td>2nd</td><td>C</td><td>01JUN21</td><td>01JAN25</td><td>C</td><td>C</td></tr>
  <tr><td>3rd</td><td>15NOV23</td><td>01SEP20</td><td>TBD</td><td>15NOV23</td><td>U</td></tr>
</table>
<h2>C. Employment-Based Final Action Dates</h2>
<table>
  <tr><td>Employment- based</td><td>All Chargeability Areas Except Those Listed</td><td>CHINA- mainland born</td><td>INDIA</td><td>MEXICO</td><td>PHILIPPINES</td></tr>
  <tr><td>1st</td><td>C</td><td>01NOV22</td><td>01FEB22</td><td>C</td><td>C</td></tr>
  <tr><td>2nd</td><td>15NOV23</td><td>01DEC20</td><td>U</td><td>15NOV23</td><td>15NOV23</td></tr>
  <tr><td>3rd</td><td>01JUN23</td><td>01MAY20</td><td>01APR13</td><td>01JUN23</td><td>01JUN23</td></tr>
</table>
<table>
  <tr><td>Employment</td><td>tiny</td></tr>
  <tr><td>too short</td><td>to match</td></tr>
</table>
</body></html>`

func fixtureDocument(t *testing.T) *goquery.Document {
	t.Helper()
	document, err := goquery.NewDocumentFromReader(strings.NewReader(bulletinFixtureHTML))
	require.NoError(t, err)
	return document
}

func TestNormalizeTableLabel(t *testing.T) {
	// Header normalization round-trip from the published bulletin's own
	// formatting quirks.
	require.Equal(t, "CHINA- MAINLAND BORN", NormalizeTableLabel(" China- Mainland Born \u00a0"))
	require.Equal(t, "ALL CHARGEABILITY AREAS EXCEPT THOSE LISTED",
		NormalizeTableLabel("  All  Chargeability Areas Except Those Listed "))
	require.Equal(t, "1ST", NormalizeTableLabel("1st"))
	require.Equal(t, "C", NormalizeTableLabel(" c "))
}

func TestExtractTablesFindsAllGrids(t *testing.T) {
	extractor := NewHTMLTableExtractor()
	grids := extractor.ExtractTables(fixtureDocument(t))

	require.Len(t, grids, 4)
	require.Len(t, grids[1].Rows, 4)
	require.Equal(t, "Employment- based", grids[1].Rows[0][0])
}

func TestClassifierSelectsEmploymentTablesInOrder(t *testing.T) {
	extractor := NewHTMLTableExtractor()
	classifier := NewEmploymentTableClassifier()

	grids := extractor.ExtractTables(fixtureDocument(t))
	filing, finalAction, err := classifier.SelectEmploymentTables(grids)
	require.NoError(t, err)

	// The filing-date table precedes the final-action table in the
	// published layout; the 2-row "Employment" table is filtered out.
	require.Equal(t, "01JAN25", filing.Rows[2][3])
	require.Equal(t, "U", finalAction.Rows[2][3])
}

func TestClassifierFailsWithFewerThanTwoMatches(t *testing.T) {
	classifier := NewEmploymentTableClassifier()

	html := `<html><body><table>
	  <tr><td>Family- Sponsored</td><td>INDIA</td></tr>
	  <tr><td>F1</td><td>01DEC15</td></tr>
	  <tr><td>F2A</td><td>C</td></tr>
	</table></body></html>`
	document, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	grids := NewHTMLTableExtractor().ExtractTables(document)
	_, _, err = classifier.SelectEmploymentTables(grids)
	require.Error(t, err)
	require.True(t, shared.HasCode(err, shared.CodeTablesNotFound))

	var serviceErr *shared.ServiceError
	require.ErrorAs(t, err, &serviceErr)
	details := serviceErr.Details.(map[string]interface{})
	require.Equal(t, 1, details["raw_table_count"])
}

func TestCutoffTableLookup(t *testing.T) {
	extractor := NewHTMLTableExtractor()
	classifier := NewEmploymentTableClassifier()

	grids := extractor.ExtractTables(fixtureDocument(t))
	filing, _, err := classifier.SelectEmploymentTables(grids)
	require.NoError(t, err)

	table := BuildCutoffTable(filing)

	value, err := table.Lookup("2ND", "INDIA")
	require.NoError(t, err)
	require.Equal(t, "01JAN25", value)

	value, err = table.Lookup("2ND", "CHINA- MAINLAND BORN")
	require.NoError(t, err)
	require.Equal(t, "01JUN21", value)

	value, err = table.Lookup("1ST", "ALL CHARGEABILITY AREAS EXCEPT THOSE LISTED")
	require.NoError(t, err)
	require.Equal(t, "C", value)
}

func TestCutoffTableLookupReportsAvailableKeys(t *testing.T) {
	grids := NewHTMLTableExtractor().ExtractTables(fixtureDocument(t))
	filing, _, err := NewEmploymentTableClassifier().SelectEmploymentTables(grids)
	require.NoError(t, err)

	table := BuildCutoffTable(filing)

	_, err = table.Lookup("5TH", "INDIA")
	require.True(t, shared.HasCode(err, shared.CodeLookupFailed))

	var serviceErr *shared.ServiceError
	require.ErrorAs(t, err, &serviceErr)
	details := serviceErr.Details.(map[string]interface{})
	require.Equal(t, "5TH", details["attempted_row"])
	require.ElementsMatch(t, []string{"1ST", "2ND", "3RD"}, details["available_rows"])

	_, err = table.Lookup("2ND", "VIETNAM")
	require.True(t, shared.HasCode(err, shared.CodeLookupFailed))
}

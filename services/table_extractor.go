package services

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/visatrack/timeline-backend/shared"
)

// TableGrid is one HTML table reduced to a grid of trimmed cell strings.
// The extractor is generic: it knows nothing about visa bulletins, it just
// turns every <table> in a document into rows and columns.
type TableGrid struct {
	Rows [][]string
}

// FirstRow returns the header candidate row, or nil for an empty grid.
func (g TableGrid) FirstRow() []string {
	if len(g.Rows) == 0 {
		return nil
	}
	return g.Rows[0]
}

// HTMLTableExtractor extracts tabular structures from HTML documents.
type HTMLTableExtractor struct{}

// NewHTMLTableExtractor creates a new table extraction service
func NewHTMLTableExtractor() *HTMLTableExtractor {
	return &HTMLTableExtractor{}
}

// ExtractTables parses every table element in the document into a TableGrid,
// preserving document order.
func (extractor *HTMLTableExtractor) ExtractTables(document *goquery.Document) []TableGrid {
	var grids []TableGrid

	document.Find("table").Each(func(tableIndex int, table *goquery.Selection) {
		var grid TableGrid

		table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			var cells []string
			tr.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, extractor.extractCellValue(cell))
			})
			if len(cells) > 0 {
				grid.Rows = append(grid.Rows, cells)
			}
		})

		if len(grid.Rows) > 0 {
			grids = append(grids, grid)
			logrus.WithFields(logrus.Fields{
				"component":   "HTMLTableExtractor",
				"table_index": tableIndex,
				"rows":        len(grid.Rows),
			}).Debug("Extracted table grid")
		}
	})

	return grids
}

// extractCellValue extracts text content from a table cell, falling back to
// nested elements when the cell's own text node is empty.
func (extractor *HTMLTableExtractor) extractCellValue(cell *goquery.Selection) string {
	text := strings.TrimSpace(cell.Text())

	if text == "" {
		cell.Find("span, div, p, a").EachWithBreak(func(_ int, nested *goquery.Selection) bool {
			text = strings.TrimSpace(nested.Text())
			return text == ""
		})
	}

	return cleanCellText(text)
}

// cleanCellText collapses internal whitespace and strips control characters.
func cleanCellText(text string) string {
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "\t", " ")
	text = strings.ReplaceAll(text, "\r", " ")
	return strings.Join(strings.Fields(text), " ")
}

// NormalizeTableLabel normalizes a row key or column header for lookup:
// non-breaking spaces stripped, whitespace trimmed and collapsed, uppercased.
func NormalizeTableLabel(label string) string {
	label = strings.ReplaceAll(label, "\u00a0", "")
	label = strings.Join(strings.Fields(label), " ")
	return strings.ToUpper(label)
}

// TableClassifier selects the domain tables of interest from the full set of
// grids found on a page. It is an interface so the content heuristic can be
// swapped without touching the extractor or the resolver.
type TableClassifier interface {
	SelectEmploymentTables(grids []TableGrid) (filing TableGrid, finalAction TableGrid, err error)
}

// EmploymentTableClassifier isolates the two employment-based tables by the
// published bulletin's own heuristic: tables with more than 2 rows whose
// first row mentions "Employment". The bulletin lays the filing-date table
// out before the final-action table, so selection is positional among the
// matches.
type EmploymentTableClassifier struct{}

// NewEmploymentTableClassifier creates a new classifier
func NewEmploymentTableClassifier() *EmploymentTableClassifier {
	return &EmploymentTableClassifier{}
}

// SelectEmploymentTables implements TableClassifier.
func (classifier *EmploymentTableClassifier) SelectEmploymentTables(grids []TableGrid) (TableGrid, TableGrid, error) {
	var matches []TableGrid

	for _, grid := range grids {
		if len(grid.Rows) <= 2 {
			continue
		}
		for _, cell := range grid.FirstRow() {
			if strings.Contains(strings.ToLower(cell), "employment") {
				matches = append(matches, grid)
				break
			}
		}
	}

	if len(matches) < 2 {
		return TableGrid{}, TableGrid{}, shared.NewServiceError(
			shared.ErrorCategoryParse,
			shared.CodeTablesNotFound,
			fmt.Sprintf("expected 2 employment tables, found %d", len(matches)),
			"EmploymentTableClassifier",
			"SelectEmploymentTables",
			false,
			nil,
		).WithDetails(map[string]interface{}{
			"raw_table_count":      len(grids),
			"matching_table_count": len(matches),
		})
	}

	return matches[0], matches[1], nil
}

// CutoffTable is a normalized two-dimensional lookup built from one
// employment table: the grid's first row promoted to column headers, its
// first column promoted to row keys, all labels normalized.
type CutoffTable struct {
	columns []string
	cells   map[string]map[string]string
}

// BuildCutoffTable normalizes a grid into a CutoffTable.
func BuildCutoffTable(grid TableGrid) CutoffTable {
	table := CutoffTable{cells: make(map[string]map[string]string)}
	if len(grid.Rows) == 0 {
		return table
	}

	header := grid.Rows[0]
	for _, column := range header {
		table.columns = append(table.columns, NormalizeTableLabel(column))
	}

	for _, row := range grid.Rows[1:] {
		if len(row) == 0 {
			continue
		}
		rowKey := NormalizeTableLabel(row[0])
		values := make(map[string]string)
		for i := 1; i < len(row) && i < len(table.columns); i++ {
			values[table.columns[i]] = row[i]
		}
		table.cells[rowKey] = values
	}

	return table
}

// RowKeys returns the normalized row keys, for diagnostics.
func (t CutoffTable) RowKeys() []string {
	keys := make([]string, 0, len(t.cells))
	for key := range t.cells {
		keys = append(keys, key)
	}
	return keys
}

// Columns returns the normalized column headers, for diagnostics.
func (t CutoffTable) Columns() []string {
	return t.columns
}

// Lookup returns the raw cell text at (rowKey, columnKey). Both keys must
// already be normalized. A miss reports the attempted and available keys so
// a header drift in the published page can be diagnosed without re-fetching.
func (t CutoffTable) Lookup(rowKey, columnKey string) (string, error) {
	row, ok := t.cells[rowKey]
	if !ok {
		return "", shared.NewServiceError(
			shared.ErrorCategoryLookup,
			shared.CodeLookupFailed,
			fmt.Sprintf("row %q not found after normalization", rowKey),
			"CutoffTable",
			"Lookup",
			false,
			nil,
		).WithDetails(map[string]interface{}{
			"attempted_row":  rowKey,
			"available_rows": t.RowKeys(),
		})
	}

	value, ok := row[columnKey]
	if !ok {
		return "", shared.NewServiceError(
			shared.ErrorCategoryLookup,
			shared.CodeLookupFailed,
			fmt.Sprintf("column %q not found after normalization", columnKey),
			"CutoffTable",
			"Lookup",
			false,
			nil,
		).WithDetails(map[string]interface{}{
			"attempted_column":  columnKey,
			"available_columns": t.columns,
		})
	}

	return value, nil
}

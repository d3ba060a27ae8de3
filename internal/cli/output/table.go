// Package output renders CLI command results as plain-text tables.
package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// TableData accumulates rows for a columnar listing.
type TableData struct {
	headers []string
	rows    [][]string
}

// NewTableData creates a table with the given column headers.
func NewTableData(headers ...string) *TableData {
	return &TableData{headers: headers}
}

// AddRow appends one row. Values align positionally with the headers.
func (t *TableData) AddRow(row ...string) {
	t.rows = append(t.rows, row)
}

// PrintTable writes the table to w in borderless list style.
func PrintTable(w io.Writer, t *TableData) error {
	tw := plainWriter(w, "")
	tw.SetHeader(t.headers)
	tw.SetAutoFormatHeaders(true)
	for _, row := range t.rows {
		tw.Append(row)
	}
	tw.Render()
	return nil
}

// SimpleTable writes key-value pairs to w, one per line.
func SimpleTable(w io.Writer, pairs [][2]string) error {
	tw := plainWriter(w, ":")
	for _, pair := range pairs {
		tw.Append([]string{pair[0], pair[1]})
	}
	tw.Render()
	return nil
}

// plainWriter configures a tablewriter without borders or separators so the
// output reads like column-aligned text.
func plainWriter(w io.Writer, colSep string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetAutoWrapText(false)
	tw.SetAutoFormatHeaders(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetCenterSeparator("")
	tw.SetColumnSeparator(colSep)
	tw.SetRowSeparator("")
	tw.SetHeaderLine(false)
	tw.SetBorder(false)
	tw.SetTablePadding("  ")
	tw.SetNoWhiteSpace(true)
	return tw
}

// Package report writes batch results to XLSX workbooks.
package report

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/address-helper/internal/enrich"
)

// Sheet names.
const (
	SheetSummary    = "summary"
	SheetProposals  = "proposals"
	SheetUnresolved = "unresolved"
)

// WriteXLSX saves res to path with one sheet of proposed tags and one of
// unresolved street tokens.
func WriteXLSX(path string, res *enrich.Result) error {
	if res == nil {
		return eris.New("report: nil result")
	}

	f := xlsx.NewFile()

	summary, err := f.AddSheet(SheetSummary)
	if err != nil {
		return eris.Wrap(err, "report: add summary sheet")
	}
	changesetID := ""
	if res.Changeset != nil {
		changesetID = res.Changeset.ID
	}
	addRow(summary, "requested", strconv.Itoa(res.Requested))
	addRow(summary, "skipped", strconv.Itoa(len(res.Skipped)))
	addRow(summary, "tagged", strconv.Itoa(len(res.Buildings)))
	addRow(summary, "applied", strconv.FormatBool(res.Applied))
	addRow(summary, "changeset", changesetID)

	proposals, err := f.AddSheet(SheetProposals)
	if err != nil {
		return eris.Wrap(err, "report: add proposals sheet")
	}
	addRow(proposals, "primitive_id", "key", "value")
	for _, p := range res.Proposals() {
		addRow(proposals, p.PrimitiveID, p.Key, p.Value)
	}

	unresolved, err := f.AddSheet(SheetUnresolved)
	if err != nil {
		return eris.Wrap(err, "report: add unresolved sheet")
	}
	addRow(unresolved, "street", "count")
	for _, sc := range res.UnresolvedStreets() {
		row := unresolved.AddRow()
		row.AddCell().SetString(sc.Street)
		row.AddCell().SetInt(sc.Count)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}

// ReadSheet returns the rows of a named sheet as strings.
func ReadSheet(path, name string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "report: open file")
	}
	sheet, ok := f.Sheet[name]
	if !ok {
		return nil, eris.Errorf("report: sheet %q not found", name)
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

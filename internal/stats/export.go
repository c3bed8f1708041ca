package stats

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"vehiclereport/internal/domain"
)

const exportSheet = "Stats"

var exportHeader = []any{"Key", "Value", "Category", "Description", "Last Updated"}

// Export writes stats as a single-sheet xlsx workbook.
func Export(w io.Writer, stats []domain.Stat) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return err
	}
	for i, st := range stats {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{st.Key, st.Value, st.Category, st.Description, st.LastUpdated.UTC().Format("2006-01-02 15:04:05")}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return fmt.Errorf("row %d: %w", i+2, err)
		}
	}
	if err := f.SetColWidth(exportSheet, "A", "A", 45); err != nil {
		return err
	}
	if err := f.SetColWidth(exportSheet, "D", "D", 60); err != nil {
		return err
	}
	_, err := f.WriteTo(w)
	return err
}

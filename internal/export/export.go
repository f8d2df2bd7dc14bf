// Package export renders reconciled history as an Excel workbook.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"comlab-status-backend/internal/reconcile"
)

// SheetName is the title of the single worksheet in the workbook.
const SheetName = "History"

var columns = []string{"Instructor", "Lab", "Time In", "Time Out", "Duration", "Status"}

// WriteHistory writes one row per session, in the given order, after a bold
// header row.
func WriteHistory(w io.Writer, sessions []reconcile.Session) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	if err := f.SetSheetRow(SheetName, "A1", &columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		endCell, _ := excelize.CoordinatesToCellName(len(columns), 1)
		_ = f.SetCellStyle(SheetName, "A1", endCell, style)
	}

	for i, s := range sessions {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		status := reconcile.InProgress
		if s.Completed {
			status = reconcile.Completed
		}
		row := []interface{}{s.Instructor, "Lab " + s.LabNumber, s.TimeInDisplay, s.TimeOutDisplay, s.Duration, status}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 28)
	_ = f.SetColWidth(SheetName, "C", "D", 24)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

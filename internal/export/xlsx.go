// Package export renders the attendance ledger as a spreadsheet report.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"faceguard/internal/attendance"
)

// SheetName is the worksheet holding the report.
const SheetName = "Attendance"

// ContentType is the MIME type of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var columns = []struct {
	header string
	width  float64
}{
	{"ID", 36},
	{"Name", 25},
	{"Date", 15},
	{"Time", 15},
	{"Status", 12},
}

// Filename returns the download name for a report generated at now.
func Filename(now time.Time) string {
	return fmt.Sprintf("Attendance_Report_%s.xlsx", now.Format(time.DateOnly))
}

// WriteXLSX writes records, in the order given, as a workbook to w.
// Dates and times are rendered in loc; nil means UTC.
func WriteXLSX(w io.Writer, records []attendance.Record, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(SheetName, cell, col.header); err != nil {
			return fmt.Errorf("write header %s: %w", col.header, err)
		}
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(SheetName, name, name, col.width); err != nil {
			return fmt.Errorf("set width %s: %w", name, err)
		}
	}
	if err := f.SetCellStyle(SheetName, "A1", "E1", header); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, rec := range records {
		ts := rec.Timestamp.In(loc)
		status := rec.Status
		if status == "" {
			status = attendance.StatusPresent
		}
		row := []any{rec.ID, rec.IdentityName, ts.Format(time.DateOnly), ts.Format(time.TimeOnly), string(status)}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Package export writes application data to spreadsheet files.
package export

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"resumatch/internal/errors"
	"resumatch/internal/types"

	"github.com/xuri/excelize/v2"
)

// Sheet names
const (
	ApplicationsSheet = "Applications"
	SummarySheet      = "Summary"
)

var applicationHeaders = []string{
	"ID", "Company", "Position", "Status", "Location", "Salary",
	"Applied", "Job URL", "Analysis", "Notes", "Updated",
}

// Row fill per status
var statusFills = map[types.ApplicationStatus]string{
	types.StatusSaved:     "F2F2F2",
	types.StatusApplied:   "DDEBF7",
	types.StatusInterview: "FFEB9C",
	types.StatusOffer:     "C6EFCE",
	types.StatusRejected:  "FFC7CE",
	types.StatusWithdrawn: "D9D9D9",
}

var thinBorder = []excelize.Border{
	{Type: "left", Color: "000000", Style: 1},
	{Type: "right", Color: "000000", Style: 1},
	{Type: "top", Color: "000000", Style: 1},
	{Type: "bottom", Color: "000000", Style: 1},
}

// ExportApplications writes apps and stats to path, adding the .xlsx
// extension when missing. It returns the path written.
func ExportApplications(path string, apps []types.Application, stats types.ApplicationStats, now time.Time) (string, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		path += ".xlsx"
	}
	path = filepath.Clean(path)

	f, err := NewWorkbook(apps, stats, now)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return "", errors.NewIOError(errors.ErrCodeFileNotWritable, "failed to save workbook", err).
			WithContext("path", path)
	}
	return path, nil
}

// WriteApplications writes the workbook to w
func WriteApplications(w io.Writer, apps []types.Application, stats types.ApplicationStats, now time.Time) error {
	f, err := NewWorkbook(apps, stats, now)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return errors.NewIOError(errors.ErrCodeFileNotWritable, "failed to write workbook", err)
	}
	return nil
}

// NewWorkbook builds the Applications and Summary sheets. The caller closes
// the returned file.
func NewWorkbook(apps []types.Application, stats types.ApplicationStats, now time.Time) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", ApplicationsSheet); err != nil {
		f.Close()
		return nil, workbookError(err)
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		f.Close()
		return nil, workbookError(err)
	}

	if err := writeApplicationsSheet(f, ApplicationsSheet, apps); err != nil {
		f.Close()
		return nil, workbookError(fmt.Errorf("applications sheet: %w", err))
	}
	if err := writeSummarySheet(f, SummarySheet, stats, len(apps), now); err != nil {
		f.Close()
		return nil, workbookError(fmt.Errorf("summary sheet: %w", err))
	}
	return f, nil
}

func workbookError(err error) error {
	return errors.NewInternalError(errors.ErrCodeInvalidFormat, "failed to build workbook", err)
}

func writeApplicationsSheet(f *excelize.File, sheet string, apps []types.Application) error {
	widths := []float64{8, 24, 28, 12, 18, 14, 12, 40, 10, 40, 18}
	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return err
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorder,
	})
	if err != nil {
		return err
	}

	for i, h := range applicationHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	lastCol, _ := excelize.ColumnNumberToName(len(applicationHeaders))
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", headerStyle); err != nil {
		return err
	}

	rowStyles := make(map[types.ApplicationStatus]int, len(statusFills))
	for status, color := range statusFills {
		style, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
			Border:    thinBorder,
		})
		if err != nil {
			return err
		}
		rowStyles[status] = style
	}

	for i, app := range apps {
		row := i + 2
		values := []any{
			app.ID,
			app.Company,
			app.Position,
			string(app.Status),
			app.Location,
			app.Salary,
			app.AppliedDate,
			app.JobURL,
			nil,
			app.Notes,
			nil,
		}
		if app.AnalysisID != 0 {
			values[8] = app.AnalysisID
		}
		if !app.UpdatedAt.IsZero() {
			values[10] = app.UpdatedAt.UTC().Format("2006-01-02 15:04")
		}

		start, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheet, start, &values); err != nil {
			return err
		}

		if style, ok := rowStyles[app.Status]; ok {
			end, _ := excelize.CoordinatesToCellName(len(applicationHeaders), row)
			if err := f.SetCellStyle(sheet, start, end, style); err != nil {
				return err
			}
		}

		if app.JobURL != "" {
			cell, _ := excelize.CoordinatesToCellName(8, row)
			if err := f.SetCellHyperLink(sheet, cell, app.JobURL, "External"); err != nil {
				return err
			}
		}
	}

	if len(apps) > 0 {
		ref := fmt.Sprintf("A1:%s%d", lastCol, len(apps)+1)
		if err := f.AutoFilter(sheet, ref, []excelize.AutoFilterOptions{}); err != nil {
			return err
		}
	}

	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func writeSummarySheet(f *excelize.File, sheet string, stats types.ApplicationStats, exported int, now time.Time) error {
	if err := f.SetColWidth(sheet, "A", "A", 24); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "B", "B", 20); err != nil {
		return err
	}

	titleStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 14, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})
	if err != nil {
		return err
	}
	labelStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	percentStyle, err := f.NewStyle(&excelize.Style{NumFmt: 10}) // 0.00%
	if err != nil {
		return err
	}

	row := 1
	set := func(label string, value any, style int) error {
		a, b := fmt.Sprintf("A%d", row), fmt.Sprintf("B%d", row)
		if err := f.SetCellValue(sheet, a, label); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, a, a, labelStyle); err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, b, value); err != nil {
			return err
		}
		if style != 0 {
			if err := f.SetCellStyle(sheet, b, b, style); err != nil {
				return err
			}
		}
		row++
		return nil
	}
	section := func(title string) error {
		a, b := fmt.Sprintf("A%d", row), fmt.Sprintf("B%d", row)
		if err := f.SetCellValue(sheet, a, title); err != nil {
			return err
		}
		if err := f.MergeCell(sheet, a, b); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, a, b, titleStyle); err != nil {
			return err
		}
		row++
		return nil
	}

	if err := section("Application Pipeline"); err != nil {
		return err
	}
	if err := set("Generated", now.UTC().Format("2006-01-02 15:04:05 UTC"), 0); err != nil {
		return err
	}
	if err := set("Total applications", stats.Total, 0); err != nil {
		return err
	}
	if err := set("Exported rows", exported, 0); err != nil {
		return err
	}
	row++

	if err := section("By Status"); err != nil {
		return err
	}
	for _, status := range types.ApplicationStatuses {
		if err := set(string(status), stats.ByStatus[status], 0); err != nil {
			return err
		}
	}
	row++

	if err := section("Rates"); err != nil {
		return err
	}
	rates := []struct {
		label string
		value float64
	}{
		{"Response rate", stats.ResponseRate},
		{"Interview rate", stats.InterviewRate},
		{"Offer rate", stats.OfferRate},
	}
	for _, r := range rates {
		if err := set(r.label, r.value/100, percentStyle); err != nil {
			return err
		}
	}
	return nil
}

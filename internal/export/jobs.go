package export

import (
	"fmt"
	"io"
	"time"

	"github.com/dunamismax/docflow/internal/domain"
	"github.com/xuri/excelize/v2"
)

const jobsSheet = "Jobs"

var jobHeaders = []string{
	"Job ID",
	"Name",
	"Document",
	"Document Key",
	"Status",
	"Progress",
	"Report Key",
	"Created",
	"Updated",
	"Error",
}

// WriteJobsXLSX writes one row per job to a single-sheet workbook.
func WriteJobsXLSX(w io.Writer, jobs []domain.Job) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", jobsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	for i, h := range jobHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(jobsSheet, cell, h)
	}

	for i, job := range jobs {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(jobsSheet, cell, v)
		}

		write(1, job.ID)
		write(2, job.DisplayName())
		write(3, job.DocumentName)
		write(4, job.DocumentKey)
		write(5, job.Status.String())
		write(6, job.Progress)
		write(7, job.ReportKey)
		write(8, formatTime(job.CreatedAt))
		write(9, formatTime(job.UpdatedAt))
		write(10, job.Error)
	}

	_ = f.SetColWidth(jobsSheet, "A", "A", 38)
	_ = f.SetColWidth(jobsSheet, "B", "D", 32)
	_ = f.SetColWidth(jobsSheet, "E", "F", 12)
	_ = f.SetColWidth(jobsSheet, "G", "G", 32)
	_ = f.SetColWidth(jobsSheet, "H", "I", 22)
	_ = f.SetColWidth(jobsSheet, "J", "J", 48)

	if err := f.SetPanes(jobsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

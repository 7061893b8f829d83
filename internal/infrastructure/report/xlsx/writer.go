package xlsx

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/conference-proceedings/internal/core/domain"
)

const (
	submissionsSheet = "Submissions"
	summarySheet     = "Summary"
)

var header = []any{
	"ID", "Title", "Authors", "Keywords", "Status", "Versions", "Conversion", "Final file", "Created", "Updated",
}

// Writer renders the organizer listing as an xlsx workbook.
type Writer struct{}

func NewWriter() Writer {
	return Writer{}
}

func (Writer) WriteSubmissions(w io.Writer, conference *domain.Conference, rows []domain.Submission, versionCounts map[int64]int) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName("Sheet1", submissionsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(submissionsSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetCellStyle(submissionsSheet, "A1", "J1", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	counts := make(map[domain.SubmissionStatus]int, len(domain.Statuses))
	for i, sub := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []any{
			sub.ID,
			sub.Title,
			sub.Authors,
			strings.Join(sub.KeywordList(), ", "),
			string(sub.Status),
			versionCounts[sub.ID],
			string(sub.ConversionState),
			sub.FinalFile,
			sub.CreatedAt.UTC().Format(time.RFC3339),
			sub.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if err := f.SetSheetRow(submissionsSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", sub.ID, err)
		}
		counts[sub.Status]++
	}

	if err := f.SetColWidth(submissionsSheet, "B", "D", 40); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetPanes(submissionsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if err := writeSummary(f, conference, counts, len(rows)); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, conference *domain.Conference, counts map[domain.SubmissionStatus]int, total int) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	summary := [][]any{
		{"Conference", conference.Title},
		{"Slug", conference.Slug},
	}
	for _, status := range domain.Statuses {
		summary = append(summary, []any{string(status), counts[status]})
	}
	summary = append(summary, []any{"total", total})

	for i, row := range summary {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary row: %w", err)
		}
	}
	return nil
}

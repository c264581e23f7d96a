// Package export reads and writes the on-disk interchange formats: the
// versioned JSON bundle consumed by import, and a spreadsheet-friendly CSV.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/znelson/joblog/app/store"
)

// csvHeader is the fixed column order of the CSV export.
var csvHeader = []string{"Title", "Company", "Status", "Date Applied", "Tags", "Notes", "Link"}

// WriteCSV writes one row per job with every cell double-quoted, embedded
// quotes doubled, and newlines in notes collapsed to spaces. Empty cells
// come out as empty quoted strings.
func WriteCSV(w io.Writer, jobs []store.Job) error {
	rows := make([][]string, 0, len(jobs)+1)
	rows = append(rows, csvHeader)
	for _, job := range jobs {
		rows = append(rows, []string{
			job.Title,
			job.Company,
			string(job.Status),
			job.DateApplied,
			job.Tags,
			collapseNewlines(job.Notes),
			job.Link,
		})
	}

	var b strings.Builder
	for i, row := range rows {
		if i > 0 {
			b.WriteString("\n")
		}
		for j, cell := range row {
			if j > 0 {
				b.WriteString(",")
			}
			b.WriteString(`"` + strings.ReplaceAll(cell, `"`, `""`) + `"`)
		}
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

func collapseNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

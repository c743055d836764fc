package store

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/examforge/examforge/internal/i18n"
	"github.com/examforge/examforge/internal/model"
)

// utf8BOM makes spreadsheet applications detect the encoding, which matters
// for Arabic student names.
const utf8BOM = "\uFEFF"

// WriteResultsCSV writes the results of one exam as CSV. Headers are
// localized through the request context. Every field is quoted so titles and
// names may carry commas freely.
func WriteResultsCSV(w io.Writer, ctx context.Context, exam model.Exam, subs []model.Submission) error {
	var b strings.Builder
	b.WriteString(utf8BOM)

	writeRow(&b,
		i18n.T(ctx, "CSVExamTitle"),
		i18n.T(ctx, "CSVStudentName"),
		i18n.T(ctx, "CSVStudentCode"),
		i18n.T(ctx, "CSVScore"),
		i18n.T(ctx, "CSVDate"),
	)
	for _, sub := range subs {
		writeRow(&b,
			exam.Title,
			sub.StudentName,
			sub.StudentCode,
			strconv.Itoa(sub.TotalScore),
			sub.SubmittedAt.Format("2006-01-02"),
		)
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func writeRow(b *strings.Builder, fields ...string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(f, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
}

// ExportFilename derives a download filename from an exam title, keeping
// letters and digits and collapsing everything else to underscores.
func ExportFilename(title string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		name = "exam"
	}
	return name + "_results.csv"
}

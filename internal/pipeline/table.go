package pipeline

import (
	"context"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/rmaraujo/fiscalflow/pkg/logger"
)

// rowTolerance groups glyphs whose baselines differ by at most this
// many points into the same visual row.
const rowTolerance = 2.5

// columnGap is the horizontal distance, in points, beyond which two
// fragments on the same row are treated as separate columns.
const columnGap = 12.0

// TableStrategy re-extracts the text layer preserving spatial layout.
// Plain extraction interleaves columns of tabular documents (slips,
// invoice detail grids), gluing labels to the wrong values; this
// strategy rebuilds rows from glyph coordinates so "Vencimento" stays
// next to its date.
type TableStrategy struct {
	passwords []string
	log       logger.Logger
}

func NewTableStrategy(passwords []string, log logger.Logger) *TableStrategy {
	return &TableStrategy{passwords: passwords, log: log.Named("table")}
}

func (s *TableStrategy) Name() string { return StrategyTable }

func (s *TableStrategy) Extract(ctx context.Context, filePath string) (string, error) {
	reader, err := openPDF(filePath, s.passwords)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content := page.Content()
		if len(content.Text) == 0 {
			continue
		}
		sb.WriteString(reflowPage(content.Text))
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String()), nil
}

// reflowPage reassembles positioned glyph runs into reading-order rows:
// cluster by Y, sort each cluster by X, mark column breaks with a wide
// separator so downstream regexes see "label  value" pairs.
func reflowPage(texts []pdf.Text) string {
	sorted := make([]pdf.Text, len(texts))
	copy(sorted, texts)
	// PDF Y grows upward; render top rows first.
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var rows [][]pdf.Text
	for _, t := range sorted {
		if t.S == "" {
			continue
		}
		if len(rows) > 0 {
			last := rows[len(rows)-1]
			if abs(last[0].Y-t.Y) <= rowTolerance {
				rows[len(rows)-1] = append(last, t)
				continue
			}
		}
		rows = append(rows, []pdf.Text{t})
	}

	var sb strings.Builder
	for _, row := range rows {
		sort.SliceStable(row, func(i, j int) bool { return row[i].X < row[j].X })
		prevEnd := -1.0
		for _, t := range row {
			if prevEnd >= 0 {
				if t.X-prevEnd > columnGap {
					sb.WriteString("  ")
				} else if t.X > prevEnd {
					sb.WriteString(" ")
				}
			}
			sb.WriteString(t.S)
			prevEnd = t.X + t.W
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

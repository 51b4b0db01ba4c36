package export

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rmaraujo/fiscalflow/internal/models"
	"github.com/rmaraujo/fiscalflow/pkg/logger"
)

func TestWriteReport(t *testing.T) {
	due := time.Date(2026, time.September, 10, 0, 0, 0, 0, time.UTC)
	processed := time.Date(2026, time.August, 24, 9, 30, 0, 0, time.UTC)

	pair := &models.DocumentPair{
		Invoice: &models.Document{
			Kind:         models.KindInvoice,
			ProcessedAt:  processed,
			EmailSubject: "Fatura setembro",
			Company:      "CSC",
			Invoice: &models.InvoiceFields{
				Number: "3406", SupplierName: "ACME", GrossValue: 1500, DueDate: &due,
			},
		},
		InvoiceValue: 1500,
		SlipValue:    1500,
		Status:       models.PairOK,
	}
	batches := []*models.Batch{{BatchID: "b1", Pairs: []*models.DocumentPair{pair}}}

	out := filepath.Join(t.TempDir(), "report", "pairs.xlsx")
	w := NewWriter(out, logger.NewTestLogger())
	path, err := w.WriteReport(batches, time.Date(2026, time.August, 24, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, out, path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Pairs")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "Due Date", rows[0][3])
	got := rows[1]
	assert.Equal(t, "Fatura setembro", got[1])
	assert.Equal(t, "CSC", got[2])
	assert.Equal(t, "10/09/2026", got[3])
	assert.Equal(t, "ACME", got[4])
	assert.Equal(t, "3406", got[5])
	assert.Equal(t, "1500.00", got[6])
	assert.Equal(t, "OK", got[7])
}

func TestWriteReportEmpty(t *testing.T) {
	out := filepath.Join(t.TempDir(), "empty.xlsx")
	w := NewWriter(out, logger.NewTestLogger())
	_, err := w.WriteReport(nil, time.Now())
	require.NoError(t, err)

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Pairs")
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

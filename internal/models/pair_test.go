package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func pairFor(invValue, slipValue float64, status PairStatus) *DocumentPair {
	return &DocumentPair{
		Invoice: &Document{
			Kind:    KindInvoice,
			Invoice: &InvoiceFields{Number: "3406", GrossValue: invValue, SupplierName: "ACME"},
		},
		Slip: &Document{
			Kind: KindPaymentSlip,
			Slip: &SlipFields{Amount: slipValue},
		},
		InvoiceValue: invValue,
		SlipValue:    slipValue,
		Status:       status,
	}
}

func TestResolvedValuePrefersSlip(t *testing.T) {
	p := pairFor(1500, 1480, PairDivergent)
	assert.Equal(t, 1480.0, p.ResolvedValue())

	// No slip amount: invoice value stands.
	p = pairFor(1500, 0, PairNeedsReview)
	assert.Equal(t, 1500.0, p.ResolvedValue())

	p.Slip = nil
	assert.Equal(t, 1500.0, p.ResolvedValue())
}

func TestRowDivergentTag(t *testing.T) {
	p := pairFor(1500, 1480, PairDivergent)
	row := p.Row(day(2026, time.August, 24))
	assert.Contains(t, row.Warnings, "[DIVERGENT] invoice 1500.00 vs slip 1480.00")
}

func TestRowForcedTag(t *testing.T) {
	p := pairFor(0, 450, PairForced)
	row := p.Row(day(2026, time.August, 24))
	assert.Contains(t, row.Warnings, "[FORCED_PAIR]")
	assert.Equal(t, 450.0, row.Value)
}

func TestRowLinkNoticeTag(t *testing.T) {
	p := &DocumentPair{
		Invoice: &Document{
			Kind:       KindLinkNotice,
			LinkNotice: &LinkNoticeFields{Value: 120, DocumentNo: "88"},
		},
		InvoiceValue: 120,
		Status:       PairNeedsReview,
	}
	row := p.Row(day(2026, time.August, 24))
	assert.Contains(t, row.Warnings, "[NO_ATTACHMENT]")
}

func TestRowMissingFieldsTag(t *testing.T) {
	p := &DocumentPair{
		Invoice: &Document{Kind: KindInvoice, Invoice: &InvoiceFields{}},
		Status:  PairNeedsReview,
	}
	row := p.Row(day(2026, time.August, 24))
	assert.Contains(t, row.Warnings, "[MISSING_FIELDS] number, value")
}

func TestRowDueDateProximityTags(t *testing.T) {
	now := day(2026, time.August, 24)

	p := pairFor(100, 100, PairOK)
	overdue := day(2026, time.August, 20)
	p.Invoice.Invoice.DueDate = &overdue
	assert.Contains(t, p.Row(now).Warnings, "[OVERDUE] due 20/08/2026")

	// Exactly at the horizon counts as due soon.
	soon := day(2026, time.August, 28)
	p.Invoice.Invoice.DueDate = &soon
	assert.Contains(t, p.Row(now).Warnings, "[DUE_SOON] due 28/08/2026")

	// Beyond the horizon: no proximity tag.
	far := day(2026, time.September, 15)
	p.Invoice.Invoice.DueDate = &far
	row := p.Row(now)
	assert.NotContains(t, row.Warnings, "[DUE_SOON]")
	assert.NotContains(t, row.Warnings, "[OVERDUE]")
}

func TestRowFallsBackToSlipFields(t *testing.T) {
	due := day(2026, time.September, 1)
	p := &DocumentPair{
		Slip: &Document{
			Kind: KindPaymentSlip,
			Slip: &SlipFields{Amount: 250, DueDate: &due, DocumentNo: "55", SupplierName: "FORNECEDOR"},
		},
		SlipValue: 250,
		Status:    PairNeedsReview,
	}
	row := p.Row(day(2026, time.August, 24))
	assert.Equal(t, "FORNECEDOR", row.Supplier)
	assert.Equal(t, "55", row.DocumentNo)
	require.NotNil(t, row.DueDate)
	assert.Equal(t, 250.0, row.Value)
}

func TestBatchAddDocumentStampsContext(t *testing.T) {
	received := day(2026, time.August, 20)
	b := &Batch{
		BatchID: "batch-1",
		Meta:    &EmailMeta{Subject: "Fatura agosto", SenderName: "Fornecedor", ReceivedAt: &received},
	}
	doc := &Document{Kind: KindInvoice, Invoice: &InvoiceFields{GrossValue: 10}}
	b.AddDocument(doc)

	assert.Equal(t, "batch-1", doc.BatchID)
	assert.Equal(t, "Fatura agosto", doc.EmailSubject)
	assert.Equal(t, "Fornecedor", doc.EmailSender)
	require.NotNil(t, doc.EmailDate)
	assert.True(t, b.HasPositiveValue())
}

func TestTotalWithheldIgnoresUnstated(t *testing.T) {
	ir := 15.0
	iss := 5.0
	f := &InvoiceFields{WithheldIR: &ir, WithheldISS: &iss}
	assert.Equal(t, 20.0, f.TotalWithheld())
	assert.Equal(t, 0.0, (&InvoiceFields{}).TotalWithheld())
}

package pairing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmaraujo/fiscalflow/internal/models"
	"github.com/rmaraujo/fiscalflow/pkg/logger"
)

func newTestEngine() *Engine {
	return NewEngine(0.01, logger.NewTestLogger())
}

func invoice(number string, value float64) *models.Document {
	return &models.Document{
		Kind:    models.KindInvoice,
		Invoice: &models.InvoiceFields{Number: number, GrossValue: value},
	}
}

func slip(docNo string, amount float64) *models.Document {
	return &models.Document{
		Kind: models.KindPaymentSlip,
		Slip: &models.SlipFields{DocumentNo: docNo, Amount: amount},
	}
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestPairByReference(t *testing.T) {
	e := newTestEngine()
	inv := invoice("3406", 1500.00)
	s := slip("", 1234.56)
	s.Slip.Reference = "NF 3406"

	pairs := e.Pair([]*models.Document{inv, s})
	require.Len(t, pairs, 1)
	assert.Equal(t, MatchedByReference, pairs[0].MatchedBy)
	// Reference identity wins even when values disagree; the mismatch
	// surfaces as divergence instead of breaking the match.
	assert.Equal(t, models.PairDivergent, pairs[0].Status)
}

func TestPairByNumber(t *testing.T) {
	e := newTestEngine()
	pairs := e.Pair([]*models.Document{
		invoice("000123", 100.00),
		slip("123", 100.00),
	})
	require.Len(t, pairs, 1)
	assert.Equal(t, MatchedByNumber, pairs[0].MatchedBy)
	assert.Equal(t, models.PairOK, pairs[0].Status)
}

func TestPairByValueExactlyAtTolerance(t *testing.T) {
	e := newTestEngine()
	pairs := e.Pair([]*models.Document{
		invoice("10", 100.00),
		slip("99", 100.01),
	})
	require.Len(t, pairs, 1)
	assert.Equal(t, MatchedByValue, pairs[0].MatchedBy)
	assert.Equal(t, models.PairOK, pairs[0].Status)
}

func TestPairValueBeyondToleranceDoesNotMatch(t *testing.T) {
	e := newTestEngine()
	pairs := e.Pair([]*models.Document{
		invoice("10", 100.00),
		slip("99", 100.02),
	})
	// No strategy claims them, not even forced (invoice value is
	// non-zero), so both surface for review.
	require.Len(t, pairs, 2)
	for _, p := range pairs {
		assert.Equal(t, models.PairNeedsReview, p.Status)
	}
}

func TestForcedPairSingleZeroInvoice(t *testing.T) {
	e := newTestEngine()
	inv := invoice("", 0)
	pairs := e.Pair([]*models.Document{inv, slip("77", 450.00)})
	require.Len(t, pairs, 1)
	assert.Equal(t, MatchedByForced, pairs[0].MatchedBy)
	assert.Equal(t, models.PairForced, pairs[0].Status)
	assert.Equal(t, 450.00, pairs[0].ResolvedValue())
}

func TestForcedPairRequiresExactlyOneOfEach(t *testing.T) {
	e := newTestEngine()

	// Two zero-value invoices: ambiguity suppresses the forced rule.
	pairs := e.Pair([]*models.Document{
		invoice("", 0),
		invoice("", 0),
		slip("77", 450.00),
	})
	require.Len(t, pairs, 3)
	for _, p := range pairs {
		assert.Equal(t, models.PairNeedsReview, p.Status)
	}

	// Two slips: same.
	pairs = e.Pair([]*models.Document{
		invoice("", 0),
		slip("77", 450.00),
		slip("78", 90.00),
	})
	require.Len(t, pairs, 3)
	for _, p := range pairs {
		assert.Equal(t, models.PairNeedsReview, p.Status)
	}
}

func TestForcedPairRequiresZeroInvoiceAndPositiveSlip(t *testing.T) {
	e := newTestEngine()

	// Non-zero invoice is never force-paired.
	pairs := e.Pair([]*models.Document{invoice("1", 200.00), slip("2", 450.00)})
	require.Len(t, pairs, 2)
	for _, p := range pairs {
		assert.Equal(t, models.PairNeedsReview, p.Status)
	}

	// Zero-value slip can't stand in for the missing invoice value.
	pairs = e.Pair([]*models.Document{invoice("", 0), slip("2", 0)})
	require.Len(t, pairs, 2)
	for _, p := range pairs {
		assert.Equal(t, models.PairNeedsReview, p.Status)
	}
}

func TestPairCountIsMaxOfSides(t *testing.T) {
	e := newTestEngine()
	// Two invoices, one slip that matches neither: three pairs, one per
	// document, never a merge.
	pairs := e.Pair([]*models.Document{
		invoice("1", 100.00),
		invoice("2", 200.00),
		slip("9", 300.00),
	})
	require.Len(t, pairs, 3)
	for _, p := range pairs {
		assert.Equal(t, models.PairNeedsReview, p.Status)
	}
}

func TestPairIdempotence(t *testing.T) {
	e := newTestEngine()
	docs := []*models.Document{
		invoice("3406", 1500.00),
		invoice("", 0),
		slip("3406", 1500.00),
		slip("88", 250.00),
	}

	first := e.Pair(docs)
	second := e.Pair(docs)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Status, second[i].Status)
		assert.Equal(t, first[i].MatchedBy, second[i].MatchedBy)
		assert.Equal(t, first[i].InvoiceValue, second[i].InvoiceValue)
		assert.Equal(t, first[i].SlipValue, second[i].SlipValue)
	}
}

func TestInheritanceFillsOnlyMissingFields(t *testing.T) {
	e := newTestEngine()

	inv := invoice("500", 120.00)
	s := slip("500", 120.00)
	s.Slip.DueDate = datePtr(2026, time.September, 10)
	inv.Invoice.SupplierName = "ACME SERVICOS LTDA"

	pairs := e.Pair([]*models.Document{inv, s})
	require.Len(t, pairs, 1)

	// Invoice had no due date: inherited from the slip.
	require.NotNil(t, inv.Invoice.DueDate)
	assert.Equal(t, *s.Slip.DueDate, *inv.Invoice.DueDate)
	// Slip had no supplier: inherited from the invoice.
	assert.Equal(t, "ACME SERVICOS LTDA", s.Slip.SupplierName)
}

func TestInheritanceNeverOverwrites(t *testing.T) {
	e := newTestEngine()

	inv := invoice("500", 120.00)
	inv.Invoice.DueDate = datePtr(2026, time.September, 1)
	inv.Invoice.SupplierName = "ACME SERVICOS LTDA"
	s := slip("500", 120.00)
	s.Slip.DueDate = datePtr(2026, time.September, 10)
	s.Slip.SupplierName = "ACME COBRANCA"

	e.Pair([]*models.Document{inv, s})

	assert.Equal(t, time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC), *inv.Invoice.DueDate)
	assert.Equal(t, "ACME COBRANCA", s.Slip.SupplierName)
}

func TestSlipReferenceScenario(t *testing.T) {
	// A slip stating "Ref. NF 3406" pairs with invoice 3406 even though
	// another invoice matches it better by value.
	e := newTestEngine()
	target := invoice("3406", 980.00)
	decoy := invoice("7777", 1000.00)
	s := slip("", 1000.00)
	s.Slip.Reference = "Ref. NF 3406"

	pairs := e.Pair([]*models.Document{target, decoy, s})
	require.Len(t, pairs, 2)

	var matched *models.DocumentPair
	for _, p := range pairs {
		if p.MatchedBy == MatchedByReference {
			matched = p
		}
	}
	require.NotNil(t, matched)
	assert.Same(t, target, matched.Invoice)
}

func TestNonFiscalDocumentsIgnored(t *testing.T) {
	e := newTestEngine()
	other := &models.Document{
		Kind:  models.KindOther,
		Other: &models.OtherFields{Subtype: "termination"},
	}
	pairs := e.Pair([]*models.Document{other})
	assert.Empty(t, pairs)
}

func TestLinkNoticePairsOnInvoiceSide(t *testing.T) {
	e := newTestEngine()
	notice := &models.Document{
		Kind:       models.KindLinkNotice,
		LinkNotice: &models.LinkNoticeFields{Value: 0},
	}
	s := slip("12", 330.00)
	s.Slip.DueDate = datePtr(2026, time.October, 5)

	pairs := e.Pair([]*models.Document{notice, s})
	require.Len(t, pairs, 1)
	assert.Equal(t, models.PairForced, pairs[0].Status)
	// Link notices inherit the slip's due date too.
	require.NotNil(t, notice.LinkNotice.DueDate)
	assert.Equal(t, *s.Slip.DueDate, *notice.LinkNotice.DueDate)
}

func TestNormalizeNumber(t *testing.T) {
	assert.Equal(t, "3406", normalizeNumber("NF-e 000.3406"))
	assert.Equal(t, "", normalizeNumber("sem numero"))
	assert.Equal(t, "", normalizeNumber("0000"))
}

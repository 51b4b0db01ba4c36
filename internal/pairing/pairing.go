// Package pairing correlates invoices with the payment slips that
// settle them. Matching strategies run in fixed priority order and the
// first success wins; the pair set is recomputed from scratch on every
// run, so pairing the same document set twice yields identical results.
package pairing

import (
	"math"
	"strings"

	"github.com/rmaraujo/fiscalflow/internal/models"
	"github.com/rmaraujo/fiscalflow/pkg/logger"
)

// Match strategy identifiers recorded on pairs.
const (
	MatchedByReference = "reference"
	MatchedByNumber    = "number"
	MatchedByValue     = "value"
	MatchedByForced    = "forced"
)

// Engine matches the invoices of one batch against its slips.
type Engine struct {
	tolerance float64
	log       logger.Logger
}

func NewEngine(tolerance float64, log logger.Logger) *Engine {
	return &Engine{tolerance: tolerance, log: log.Named("pairing")}
}

// Pair partitions the batch documents into invoice-like records and
// slips, applies the matching strategies in order, and emits one pair
// per matched combination plus one NEEDS_REVIEW pair per leftover on
// either side. Non-fiscal documents are ignored.
//
// Matched documents inherit missing fields from their counterpart:
// the invoice takes the slip's due date, the slip takes the invoice's
// supplier name. Fields already extracted are never overwritten.
func (e *Engine) Pair(docs []*models.Document) []*models.DocumentPair {
	var invoices, slips []*models.Document
	for _, d := range docs {
		switch {
		case d == nil:
		case d.IsInvoiceLike():
			invoices = append(invoices, d)
		case d.Kind == models.KindPaymentSlip:
			slips = append(slips, d)
		}
	}

	invoiceMatched := make([]bool, len(invoices))
	slipMatched := make([]bool, len(slips))
	var pairs []*models.DocumentPair

	match := func(i, j int, matchedBy string) {
		invoiceMatched[i] = true
		slipMatched[j] = true
		pairs = append(pairs, e.buildPair(invoices[i], slips[j], matchedBy))
	}

	// 1. Explicit reference: the slip names the document it pays.
	for j, s := range slips {
		ref := normalizeNumber(s.Slip.Reference)
		if ref == "" {
			continue
		}
		for i, inv := range invoices {
			if invoiceMatched[i] {
				continue
			}
			if normalizeNumber(inv.DocumentNumber()) == ref {
				match(i, j, MatchedByReference)
				break
			}
		}
	}

	// 2. Shared document number.
	for j, s := range slips {
		if slipMatched[j] {
			continue
		}
		num := normalizeNumber(s.Slip.DocumentNo)
		if num == "" {
			continue
		}
		for i, inv := range invoices {
			if invoiceMatched[i] {
				continue
			}
			if normalizeNumber(inv.DocumentNumber()) == num {
				match(i, j, MatchedByNumber)
				break
			}
		}
	}

	// 3. Value within tolerance, only for documents the identity
	// strategies could not claim.
	for j, s := range slips {
		if slipMatched[j] || s.Slip.Amount <= 0 {
			continue
		}
		for i, inv := range invoices {
			if invoiceMatched[i] || inv.Value() <= 0 {
				continue
			}
			if diff(inv.Value(), s.Slip.Amount) <= e.tolerance {
				match(i, j, MatchedByValue)
				break
			}
		}
	}

	// 4. Forced pairing: exactly one zero-value invoice and one
	// positive slip remain. The invoice had no extractable amount
	// (link-only delivery), so the slip's value stands in for it. A
	// non-zero invoice is never force-paired: that mismatch must
	// surface as divergence, not be masked.
	if ui, uj := singleUnmatched(invoiceMatched), singleUnmatched(slipMatched); ui >= 0 && uj >= 0 {
		if invoices[ui].Value() == 0 && slips[uj].Slip.Amount > 0 {
			match(ui, uj, MatchedByForced)
		}
	}

	// Leftovers each get their own review pair; a batch with two
	// unmatched invoices and one unmatched slip emits three pairs,
	// never a merge.
	for i, inv := range invoices {
		if !invoiceMatched[i] {
			pairs = append(pairs, e.reviewPair(inv, nil))
		}
	}
	for j, s := range slips {
		if !slipMatched[j] {
			pairs = append(pairs, e.reviewPair(nil, s))
		}
	}

	e.log.Debug("pairing complete",
		logger.Int("invoices", len(invoices)),
		logger.Int("slips", len(slips)),
		logger.Int("pairs", len(pairs)),
	)
	return pairs
}

func (e *Engine) buildPair(inv, slip *models.Document, matchedBy string) *models.DocumentPair {
	inherit(inv, slip)

	p := &models.DocumentPair{
		Invoice:      inv,
		Slip:         slip,
		InvoiceValue: inv.Value(),
		SlipValue:    slip.Slip.Amount,
		MatchedBy:    matchedBy,
	}
	switch {
	case matchedBy == MatchedByForced:
		p.Status = models.PairForced
	case diff(p.InvoiceValue, p.SlipValue) <= e.tolerance:
		p.Status = models.PairOK
	default:
		p.Status = models.PairDivergent
	}
	return p
}

func (e *Engine) reviewPair(inv, slip *models.Document) *models.DocumentPair {
	p := &models.DocumentPair{Invoice: inv, Slip: slip, Status: models.PairNeedsReview}
	if inv != nil {
		p.InvoiceValue = inv.Value()
	}
	if slip != nil {
		p.SlipValue = slip.Slip.Amount
	}
	return p
}

// inherit fills missing fields across a matched pair. Only nil/empty
// destinations are written.
func inherit(inv, slip *models.Document) {
	if inv.Invoice != nil {
		if inv.Invoice.DueDate == nil && slip.Slip.DueDate != nil {
			d := *slip.Slip.DueDate
			inv.Invoice.DueDate = &d
		}
	}
	if inv.LinkNotice != nil {
		if inv.LinkNotice.DueDate == nil && slip.Slip.DueDate != nil {
			d := *slip.Slip.DueDate
			inv.LinkNotice.DueDate = &d
		}
	}
	if slip.Slip.SupplierName == "" && inv.SupplierName() != "" {
		slip.Slip.SupplierName = inv.SupplierName()
	}
}

// singleUnmatched returns the index of the only false entry, or -1
// when there are zero or several.
func singleUnmatched(matched []bool) int {
	idx := -1
	for i, m := range matched {
		if m {
			continue
		}
		if idx >= 0 {
			return -1
		}
		idx = i
	}
	return idx
}

func normalizeNumber(s string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	return strings.TrimLeft(digits, "0")
}

// diff is the absolute difference rounded to whole cents. Extracted
// amounts carry two decimal places, so rounding keeps a difference of
// exactly one cent inside a 0.01 tolerance despite binary float noise.
func diff(a, b float64) float64 {
	return math.Round(math.Abs(a-b)*100) / 100
}

package models

import (
	"fmt"
	"strings"
	"time"
)

// PairStatus is derived by the pairing engine, never set by extraction.
type PairStatus string

const (
	// PairOK: matched, values agree within tolerance.
	PairOK PairStatus = "OK"
	// PairDivergent: matched by number/reference but values disagree
	// beyond tolerance.
	PairDivergent PairStatus = "DIVERGENT"
	// PairNeedsReview: one side has no counterpart.
	PairNeedsReview PairStatus = "NEEDS_REVIEW"
	// PairForced: produced by the last-resort pairing rule for
	// zero-value invoices.
	PairForced PairStatus = "FORCED_PAIR"
)

// DocumentPair links one invoice-like document with one payment slip.
// Either side may be nil. Pairs are recomputed from scratch on every
// pairing run.
type DocumentPair struct {
	Invoice *Document  `json:"invoice,omitempty"`
	Slip    *Document  `json:"slip,omitempty"`
	Status  PairStatus `json:"status"`

	InvoiceValue float64 `json:"invoiceValue"`
	SlipValue    float64 `json:"slipValue"`

	// MatchedBy names the strategy that produced the pair: "reference",
	// "number", "value", "forced" or "" for unmatched pairs.
	MatchedBy string   `json:"matchedBy,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// ResolvedValue picks the value the pair settles on: the slip amount
// when present (the payable instrument wins), otherwise the invoice
// gross value.
func (p *DocumentPair) ResolvedValue() float64 {
	if p.Slip != nil && p.SlipValue > 0 {
		return p.SlipValue
	}
	return p.InvoiceValue
}

// PairRow is the flat serialization consumed by exporters.
type PairRow struct {
	ProcessedAt time.Time
	Subject     string
	Company     string
	DueDate     *time.Time
	Supplier    string
	DocumentNo  string
	Value       float64
	Status      PairStatus
	Warnings    string
}

// dueSoonHorizon is the number of days ahead of the due date at which a
// pair is flagged [DUE_SOON].
const dueSoonHorizon = 4

// Row flattens the pair for reporting. Warning tags are concatenated
// coded markers so downstream filters can match on substrings.
func (p *DocumentPair) Row(now time.Time) PairRow {
	row := PairRow{Status: p.Status, Value: p.ResolvedValue()}

	primary := p.Invoice
	if primary == nil {
		primary = p.Slip
	}
	if primary != nil {
		row.ProcessedAt = primary.ProcessedAt
		row.Subject = primary.EmailSubject
		row.Company = primary.Company
		row.Supplier = primary.SupplierName()
		row.DocumentNo = primary.DocumentNumber()
		row.DueDate = primary.DueDate()
	}
	if row.Supplier == "" && p.Slip != nil {
		row.Supplier = p.Slip.SupplierName()
	}
	if row.DueDate == nil && p.Slip != nil {
		row.DueDate = p.Slip.DueDate()
	}
	if row.DocumentNo == "" && p.Slip != nil {
		row.DocumentNo = p.Slip.DocumentNumber()
	}

	var tags []string
	if p.Status == PairDivergent {
		tags = append(tags, fmt.Sprintf("[DIVERGENT] invoice %.2f vs slip %.2f", p.InvoiceValue, p.SlipValue))
	}
	if p.Status == PairForced {
		tags = append(tags, "[FORCED_PAIR] invoice value missing, single slip assumed")
	}
	if p.Invoice != nil && p.Invoice.Kind == KindLinkNotice {
		tags = append(tags, "[NO_ATTACHMENT]")
	}
	if row.DocumentNo == "" || row.Value == 0 {
		var missing []string
		if row.DocumentNo == "" {
			missing = append(missing, "number")
		}
		if row.Value == 0 {
			missing = append(missing, "value")
		}
		tags = append(tags, "[MISSING_FIELDS] "+strings.Join(missing, ", "))
	}
	if row.DueDate != nil {
		due := *row.DueDate
		today := now.Truncate(24 * time.Hour)
		switch {
		case due.Before(today):
			tags = append(tags, fmt.Sprintf("[OVERDUE] due %s", due.Format("02/01/2006")))
		case due.Sub(today) <= dueSoonHorizon*24*time.Hour:
			tags = append(tags, fmt.Sprintf("[DUE_SOON] due %s", due.Format("02/01/2006")))
		}
	}
	for _, w := range p.Warnings {
		tags = append(tags, w)
	}

	row.Warnings = strings.Join(tags, " | ")
	return row
}

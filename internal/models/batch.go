package models

import (
	"time"
)

// BatchStatus reflects the outcome of processing one batch.
type BatchStatus string

const (
	BatchOK      BatchStatus = "OK"
	BatchTimeout BatchStatus = "TIMEOUT"
	BatchError   BatchStatus = "ERROR"
)

// EmailMeta is the metadata record stored alongside a batch folder by
// the mailbox ingestor (metadata.json).
type EmailMeta struct {
	Subject      string     `json:"subject"`
	SenderName   string     `json:"senderName,omitempty"`
	SenderAddr   string     `json:"senderAddr,omitempty"`
	ReceivedAt   *time.Time `json:"receivedAt,omitempty"`
	BodyText     string     `json:"bodyText,omitempty"`
	HasStructure bool       `json:"hasStructuredSource"`
}

// Sender returns the display name when known, the address otherwise.
func (m *EmailMeta) Sender() string {
	if m.SenderName != "" {
		return m.SenderName
	}
	return m.SenderAddr
}

// Batch owns every document extracted from one source email. BatchID is
// unique per source email and never reused.
type Batch struct {
	BatchID      string          `json:"batchId"`
	SourceFolder string          `json:"sourceFolder,omitempty"`
	Meta         *EmailMeta      `json:"meta,omitempty"`
	Documents    []*Document     `json:"documents"`
	Pairs        []*DocumentPair `json:"pairs,omitempty"`

	Status         BatchStatus       `json:"status"`
	ProcessingTime time.Duration     `json:"processingTime,omitempty"`
	Errors         map[string]string `json:"errors,omitempty"` // file -> error
}

// AddDocument stamps the batch id and email context onto the document
// and appends it.
func (b *Batch) AddDocument(doc *Document) {
	doc.BatchID = b.BatchID
	if b.Meta != nil {
		if doc.EmailSubject == "" {
			doc.EmailSubject = b.Meta.Subject
		}
		if doc.EmailSender == "" {
			doc.EmailSender = b.Meta.Sender()
		}
		if doc.EmailDate == nil {
			doc.EmailDate = b.Meta.ReceivedAt
		}
	}
	b.Documents = append(b.Documents, doc)
}

// AddError records a per-file failure without aborting the batch.
func (b *Batch) AddError(file, msg string) {
	if b.Errors == nil {
		b.Errors = make(map[string]string)
	}
	b.Errors[file] = msg
}

// Invoices returns documents on the invoice side of pairing.
func (b *Batch) Invoices() []*Document {
	var out []*Document
	for _, d := range b.Documents {
		if d.IsInvoiceLike() {
			out = append(out, d)
		}
	}
	return out
}

// Slips returns the payment-slip documents.
func (b *Batch) Slips() []*Document {
	var out []*Document
	for _, d := range b.Documents {
		if d.Kind == KindPaymentSlip {
			out = append(out, d)
		}
	}
	return out
}

// HasPositiveValue reports whether any document carries a value > 0.
func (b *Batch) HasPositiveValue() bool {
	for _, d := range b.Documents {
		if d.Value() > 0 {
			return true
		}
	}
	return false
}

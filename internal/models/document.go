package models

import (
	"time"
)

// Kind discriminates the document variants produced by extraction.
// Branching on Kind (instead of probing for fields) keeps handling
// exhaustive and cheap.
type Kind string

const (
	KindInvoice      Kind = "invoice"       // service-tax invoice (NFS-e)
	KindGoodsInvoice Kind = "goods_invoice" // goods invoice (DANFE / NF-e, model 55)
	KindPaymentSlip  Kind = "payment_slip"  // bank payment slip (boleto)
	KindOther        Kind = "other"         // administrative / non-fiscal content
	KindLinkNotice   Kind = "link_notice"   // link-only delivery, no extractable attachment
)

// Document is the base record shared by every kind. Exactly one of the
// payload pointers is non-nil, selected by Kind. Documents are created
// once per batch run and are immutable inputs to pairing, except that
// pairing may fill previously-nil fields via inheritance.
type Document struct {
	SourceFile  string    `json:"sourceFile"`
	ProcessedAt time.Time `json:"processedAt"`
	Company     string    `json:"company,omitempty"`
	Sector      string    `json:"sector,omitempty"`
	BatchID     string    `json:"batchId"`

	EmailSubject string     `json:"emailSubject,omitempty"`
	EmailSender  string     `json:"emailSender,omitempty"`
	EmailDate    *time.Time `json:"emailDate,omitempty"`

	Kind Kind `json:"kind"`

	Invoice    *InvoiceFields    `json:"invoice,omitempty"`
	Slip       *SlipFields       `json:"slip,omitempty"`
	Other      *OtherFields      `json:"other,omitempty"`
	LinkNotice *LinkNoticeFields `json:"linkNotice,omitempty"`

	// RawSnippet keeps the first chunk of extracted text for diagnostics.
	RawSnippet string `json:"rawSnippet,omitempty"`
	// ExtractedBy names the registry descriptor that produced this record.
	ExtractedBy string `json:"extractedBy,omitempty"`
	// Strategy names the text-recovery strategy that yielded the raw text.
	Strategy string `json:"strategy,omitempty"`

	Warnings []string `json:"warnings,omitempty"`
}

// InvoiceFields holds service-tax and goods invoice data. AccessKey is
// populated only for KindGoodsInvoice (the 44-digit NF-e key).
type InvoiceFields struct {
	SupplierTaxID string     `json:"supplierTaxId,omitempty"`
	SupplierName  string     `json:"supplierName,omitempty"`
	Number        string     `json:"number,omitempty"`
	Series        string     `json:"series,omitempty"`
	GrossValue    float64    `json:"grossValue"`
	IssueDate     *time.Time `json:"issueDate,omitempty"`
	DueDate       *time.Time `json:"dueDate,omitempty"`
	PaymentMethod string     `json:"paymentMethod,omitempty"`

	// Withheld federal/municipal taxes. Nil means "not stated", zero
	// means "stated as zero".
	WithheldIR   *float64 `json:"withheldIr,omitempty"`
	WithheldINSS *float64 `json:"withheldInss,omitempty"`
	WithheldCSLL *float64 `json:"withheldCsll,omitempty"`
	WithheldISS  *float64 `json:"withheldIss,omitempty"`

	AccessKey string `json:"accessKey,omitempty"`
}

// TotalWithheld sums the withheld-tax sub-values that were stated.
func (f *InvoiceFields) TotalWithheld() float64 {
	var total float64
	for _, v := range []*float64{f.WithheldIR, f.WithheldINSS, f.WithheldCSLL, f.WithheldISS} {
		if v != nil {
			total += *v
		}
	}
	return total
}

// SlipFields holds bank payment slip (boleto) data.
type SlipFields struct {
	Amount        float64    `json:"amount"`
	DueDate       *time.Time `json:"dueDate,omitempty"`
	DigitableLine string     `json:"digitableLine,omitempty"`
	OurNumber     string     `json:"ourNumber,omitempty"`
	// Reference is an explicit document number this slip pays, when the
	// slip states one ("Ref. NF 3406").
	Reference     string `json:"reference,omitempty"`
	DocumentNo    string `json:"documentNo,omitempty"`
	BankName      string `json:"bankName,omitempty"`
	SupplierTaxID string `json:"supplierTaxId,omitempty"`
	SupplierName  string `json:"supplierName,omitempty"`
}

// OtherFields tags administrative / non-fiscal documents.
type OtherFields struct {
	Subtype    string     `json:"subtype,omitempty"`
	DocumentNo string     `json:"documentNo,omitempty"`
	Value      float64    `json:"value"`
	DueDate    *time.Time `json:"dueDate,omitempty"`
}

// LinkNoticeFields describes a link-only delivery: the fiscal document
// lives behind a portal URL instead of an attachment.
type LinkNoticeFields struct {
	URL              string     `json:"url,omitempty"`
	PortalDomain     string     `json:"portalDomain,omitempty"`
	VerificationCode string     `json:"verificationCode,omitempty"`
	DocumentNo       string     `json:"documentNo,omitempty"`
	Value            float64    `json:"value"`
	DueDate          *time.Time `json:"dueDate,omitempty"`
	// Confidence scores the body-text extraction that produced this
	// record (0.0–1.0).
	Confidence float64 `json:"confidence"`
}

// IsInvoiceLike reports whether the document participates on the invoice
// side of pairing.
func (d *Document) IsInvoiceLike() bool {
	return d.Kind == KindInvoice || d.Kind == KindGoodsInvoice || d.Kind == KindLinkNotice
}

// Value returns the monetary value carried by the document, 0 when none
// was extracted.
func (d *Document) Value() float64 {
	switch d.Kind {
	case KindInvoice, KindGoodsInvoice:
		if d.Invoice != nil {
			return d.Invoice.GrossValue
		}
	case KindPaymentSlip:
		if d.Slip != nil {
			return d.Slip.Amount
		}
	case KindOther:
		if d.Other != nil {
			return d.Other.Value
		}
	case KindLinkNotice:
		if d.LinkNotice != nil {
			return d.LinkNotice.Value
		}
	}
	return 0
}

// DocumentNumber returns the document's own number, "" when unknown.
func (d *Document) DocumentNumber() string {
	switch d.Kind {
	case KindInvoice, KindGoodsInvoice:
		if d.Invoice != nil {
			return d.Invoice.Number
		}
	case KindPaymentSlip:
		if d.Slip != nil {
			return d.Slip.DocumentNo
		}
	case KindOther:
		if d.Other != nil {
			return d.Other.DocumentNo
		}
	case KindLinkNotice:
		if d.LinkNotice != nil {
			return d.LinkNotice.DocumentNo
		}
	}
	return ""
}

// DueDate returns the document's due date, nil when unknown.
func (d *Document) DueDate() *time.Time {
	switch d.Kind {
	case KindInvoice, KindGoodsInvoice:
		if d.Invoice != nil {
			return d.Invoice.DueDate
		}
	case KindPaymentSlip:
		if d.Slip != nil {
			return d.Slip.DueDate
		}
	case KindOther:
		if d.Other != nil {
			return d.Other.DueDate
		}
	case KindLinkNotice:
		if d.LinkNotice != nil {
			return d.LinkNotice.DueDate
		}
	}
	return nil
}

// SupplierName returns the supplier/beneficiary name, "" when unknown.
func (d *Document) SupplierName() string {
	switch d.Kind {
	case KindInvoice, KindGoodsInvoice:
		if d.Invoice != nil {
			return d.Invoice.SupplierName
		}
	case KindPaymentSlip:
		if d.Slip != nil {
			return d.Slip.SupplierName
		}
	}
	return ""
}

// AddWarning appends a diagnostic warning to the document.
func (d *Document) AddWarning(w string) {
	d.Warnings = append(d.Warnings, w)
}

package extract

import (
	"regexp"
	"strings"

	"github.com/rmaraujo/fiscalflow/internal/models"
)

// GoodsInvoiceExtractor handles DANFE documents (the printable
// companion of an electronic goods invoice). The 44-digit access key is
// the defining anchor.
type GoodsInvoiceExtractor struct{}

func NewGoodsInvoiceExtractor() *GoodsInvoiceExtractor {
	return &GoodsInvoiceExtractor{}
}

func (e *GoodsInvoiceExtractor) Name() string { return "goods_invoice_danfe" }

func (e *GoodsInvoiceExtractor) CanHandle(text, filename string) bool {
	if text == "" {
		return false
	}
	upper := strings.ToUpper(StripAccents(text))
	if containsAny(upper, "DANFE", "DOCUMENTO AUXILIAR DA NOTA FISCAL ELETRONICA") {
		return true
	}
	// An access key plus goods-invoice vocabulary is enough even when
	// OCR mangles the header.
	return FindAccessKey(text) != "" &&
		containsAny(upper, "NATUREZA DA OPERACAO", "DESTINATARIO", "ICMS")
}

var danfeNumberRe = regexp.MustCompile(`(?i)N[º°o]\.?\s*[:\s]*(\d{1,3}(?:\.\d{3})*|\d{1,9})\b`)
var danfeTotalRe = regexp.MustCompile(`(?i)Valor\s+Total\s+da\s+Nota\s*[:\s]*R?\$?\s*(\d{1,3}(?:\.\d{3})*,\d{2})`)

func (e *GoodsInvoiceExtractor) Extract(text, filename string) (*models.Document, error) {
	doc := newInvoiceDocument(filename, models.KindGoodsInvoice)
	doc.Invoice.AccessKey = FindAccessKey(text)
	if m := danfeTotalRe.FindStringSubmatch(text); m != nil {
		doc.Invoice.GrossValue = ParseMoney(m[1])
	}
	if m := danfeNumberRe.FindStringSubmatch(text); m != nil {
		doc.Invoice.Number = Digits(m[1])
	}
	fillCommonInvoiceFields(doc, text)

	// The access key embeds the invoice number (positions 26-34) when
	// the printed number is unreadable.
	if doc.Invoice.Number == "" && len(doc.Invoice.AccessKey) == 44 {
		doc.Invoice.Number = strings.TrimLeft(doc.Invoice.AccessKey[25:34], "0")
	}
	if doc.Invoice.AccessKey == "" {
		return doc, &FieldError{Extractor: e.Name(), Field: "access key"}
	}
	return doc, nil
}

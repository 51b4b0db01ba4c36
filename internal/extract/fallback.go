package extract

import (
	"strings"

	"github.com/rmaraujo/fiscalflow/internal/models"
)

// ServiceInvoiceFallback is the terminal extractor: a regex safety net
// for the hundreds of municipal NFS-e layouts with no dedicated
// extractor. It claims anything that does not look like a bank slip
// and must never fail, so missing fields are left empty instead of
// producing a FieldError.
type ServiceInvoiceFallback struct{}

func NewServiceInvoiceFallback() *ServiceInvoiceFallback {
	return &ServiceInvoiceFallback{}
}

func (e *ServiceInvoiceFallback) Name() string { return "service_invoice_generic" }

func (e *ServiceInvoiceFallback) CanHandle(text, filename string) bool {
	upper := strings.ToUpper(text)
	if FindDigitableLine(text) != "" {
		return false
	}
	slipScore := countAnchors(upper, "LINHA DIGITÁVEL", "LINHA DIGITAVEL", "BENEFICIÁRIO",
		"BENEFICIARIO", "CÓDIGO DE BARRAS", "CODIGO DE BARRAS", "CEDENTE")
	return slipScore < 2
}

func (e *ServiceInvoiceFallback) Extract(text, filename string) (*models.Document, error) {
	doc := newInvoiceDocument(filename, models.KindInvoice)
	fillCommonInvoiceFields(doc, text)
	return doc, nil
}

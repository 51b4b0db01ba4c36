package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/rmaraujo/fiscalflow/internal/models"
)

// Keywords shared by bank-slip layouts.
var slipAnchors = []string{"VALOR", "VENCIMENTO", "DOCUMENTO", "CEDENTE", "SACADO", "PAGADOR"}

var dueKeywords = []string{"VENCIMENTO", "VCTO", "VENC"}

var slipValuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Valor\s+do\s+Documento\s*[:\s]*R?\$?\s*(\d{1,3}(?:\.\d{3})*,\d{2})`),
	regexp.MustCompile(`(?i)Valor\s+Cobrado\s*[:\s]*R?\$?\s*(\d{1,3}(?:\.\d{3})*,\d{2})`),
	regexp.MustCompile(`(?i)Valor\s+a\s+Pagar\s*[:\s]*R?\$?\s*(\d{1,3}(?:\.\d{3})*,\d{2})`),
	regexp.MustCompile(`(?i)Valor\s*[:\s]*R\$\s*(\d{1,3}(?:\.\d{3})*,\d{2})`),
}

var slipDocNoRe = regexp.MustCompile(`(?i)(?:N[úu]mero\s+do\s+)?Documento\s*[:\s]+([0-9][0-9./-]{2,14})`)

var ourNumberRe = regexp.MustCompile(`(?i)Nosso\s+N[úu]mero\s*[:\s]+([0-9][0-9./-]{3,20})`)

var slipReferenceRe = regexp.MustCompile(`(?i)\b(?:Ref(?:erente)?\.?\s*(?:a|à)?|NFS?-?e?)\s*(?:n[º°o]\.?\s*)?[:\s]*(\d{3,15})`)

// TradeAssociationSlipExtractor handles membership-fee slips issued by
// the local trade association (ACIMOC). These carry a "RECIBO DO
// SACADO" section and pad the form with placeholder "R$ 0,00" cells
// that hide the real amount, so value extraction must skip zeros.
type TradeAssociationSlipExtractor struct{}

func NewTradeAssociationSlipExtractor() *TradeAssociationSlipExtractor {
	return &TradeAssociationSlipExtractor{}
}

func (e *TradeAssociationSlipExtractor) Name() string { return "trade_association_slip" }

func (e *TradeAssociationSlipExtractor) CanHandle(text, filename string) bool {
	if text == "" {
		return false
	}
	upper := strings.ToUpper(text)
	compact := Compact(text)
	if !containsAny(upper, "ACIMOC", "RECIBO DO SACADO") &&
		!strings.Contains(compact, "ASSOCIACAOCOMERCIALINDUSTRIAL") {
		return false
	}
	// Fiscal and administrative documents that happen to mention the
	// association belong to other extractors.
	if containsAny(upper, "CHAVE DE ACESSO", "DANFSE", "NOTA FISCAL", "NFS-E", "NFSE",
		"DISTRATO", "ENCERRAMENTO DE CONTRATO") {
		return false
	}
	return countAnchors(upper, slipAnchors...) >= 2
}

func (e *TradeAssociationSlipExtractor) Extract(text, filename string) (*models.Document, error) {
	doc := newSlipDocument(filename)
	doc.Slip.SupplierName = "ASSOCIACAO COML. INDL. E SERVICOS DE MONTES CLAROS"
	doc.Slip.SupplierTaxID = "22677702000147"
	doc.Slip.Amount = firstNonZeroAmount(text)
	doc.Slip.DueDate = FindDateAfter(text, dueKeywords, 3)
	doc.Slip.DocumentNo = findAssociationDocNo(text)
	doc.Slip.DigitableLine = FindDigitableLine(text)
	if doc.Slip.Amount == 0 {
		return doc, &FieldError{Extractor: e.Name(), Field: "amount"}
	}
	return doc, nil
}

var assocDocNoRe = regexp.MustCompile(`(?i)(?:N[úu]mero|Documento|Boleto)\s*[:\s]+(\d{3,4}-\d{3,4})`)
var assocDocNoLooseRe = regexp.MustCompile(`\b(\d{3,4}-\d{3,4})\b`)

func findAssociationDocNo(text string) string {
	if m := assocDocNoRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := assocDocNoLooseRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// firstNonZeroAmount collects every monetary token near a value label
// and returns the best non-zero one, weighting amounts that sit on the
// label's own line. Placeholder zeros are ignored.
func firstNonZeroAmount(text string) float64 {
	lines := strings.Split(text, "\n")
	type weighted struct {
		value  float64
		weight int
	}
	var found []weighted
	for i, line := range lines {
		upper := strings.ToUpper(line)
		priority := containsAny(upper, "VALOR DO DOCUMENTO", "VALOR A PAGAR", "VALOR DO BOLETO", "VALOR")
		for off := 0; off < 3 && i+off < len(lines); off++ {
			for _, m := range moneyRe.FindAllString(lines[i+off], -1) {
				v := ParseMoney(m)
				if v <= 0 {
					continue
				}
				w := 1
				if priority && off == 0 {
					w = 2
				}
				found = append(found, weighted{v, w})
			}
		}
	}
	best := weighted{}
	for _, f := range found {
		if f.weight > best.weight || (f.weight == best.weight && f.value > best.value) {
			best = f
		}
	}
	return best.value
}

// CoopBankSlipExtractor handles slips issued through the Sicoob
// cooperative bank network, whose layout leads with the cooperative
// header and agency/code block.
type CoopBankSlipExtractor struct{}

func NewCoopBankSlipExtractor() *CoopBankSlipExtractor {
	return &CoopBankSlipExtractor{}
}

func (e *CoopBankSlipExtractor) Name() string { return "coop_bank_slip" }

func (e *CoopBankSlipExtractor) CanHandle(text, filename string) bool {
	if text == "" {
		return false
	}
	upper := strings.ToUpper(text)
	if !containsAny(upper, "SICOOB") && !strings.Contains(Compact(text), "SICOOB") {
		return false
	}
	return countAnchors(upper, slipAnchors...) >= 2 || FindDigitableLine(text) != ""
}

func (e *CoopBankSlipExtractor) Extract(text, filename string) (*models.Document, error) {
	doc := extractGenericSlip(text, filename)
	doc.Slip.BankName = "SICOOB"
	return doc, validateSlip(e.Name(), doc)
}

// BankSlipExtractor is the generic slip extractor: any document with a
// digitable payment line or enough slip vocabulary.
type BankSlipExtractor struct{}

func NewBankSlipExtractor() *BankSlipExtractor {
	return &BankSlipExtractor{}
}

func (e *BankSlipExtractor) Name() string { return "bank_slip" }

func (e *BankSlipExtractor) CanHandle(text, filename string) bool {
	if text == "" {
		return false
	}
	upper := strings.ToUpper(text)
	if FindDigitableLine(text) != "" {
		return true
	}
	return countAnchors(upper, "LINHA DIGITÁVEL", "LINHA DIGITAVEL", "BENEFICIÁRIO",
		"BENEFICIARIO", "CÓDIGO DE BARRAS", "CODIGO DE BARRAS", "CEDENTE") >= 2
}

func (e *BankSlipExtractor) Extract(text, filename string) (*models.Document, error) {
	doc := extractGenericSlip(text, filename)
	return doc, validateSlip(e.Name(), doc)
}

func newSlipDocument(filename string) *models.Document {
	return &models.Document{
		SourceFile:  filename,
		ProcessedAt: time.Now(),
		Kind:        models.KindPaymentSlip,
		Slip:        &models.SlipFields{},
	}
}

var beneficiaryRe = regexp.MustCompile(`(?i)(?:Benefici[áa]rio|Cedente)\s*[:\s]+([A-ZÀ-Ü][A-Za-zÀ-ü0-9\s&.\-]{4,80})`)

func extractGenericSlip(text, filename string) *models.Document {
	doc := newSlipDocument(filename)
	doc.Slip.Amount = FindMoney(text, slipValuePatterns)
	if doc.Slip.Amount == 0 {
		doc.Slip.Amount = firstNonZeroAmount(text)
	}
	doc.Slip.DueDate = FindDateAfter(text, dueKeywords, 3)
	doc.Slip.DigitableLine = FindDigitableLine(text)
	doc.Slip.SupplierTaxID = FindCNPJ(text)
	if m := beneficiaryRe.FindStringSubmatch(text); m != nil {
		doc.Slip.SupplierName = strings.TrimSpace(m[1])
	}
	if m := slipDocNoRe.FindStringSubmatch(text); m != nil {
		doc.Slip.DocumentNo = strings.TrimSpace(m[1])
	}
	if m := ourNumberRe.FindStringSubmatch(text); m != nil {
		doc.Slip.OurNumber = strings.TrimSpace(m[1])
	}
	if m := slipReferenceRe.FindStringSubmatch(text); m != nil {
		doc.Slip.Reference = m[1]
	}
	return doc
}

func validateSlip(name string, doc *models.Document) error {
	if doc.Slip.Amount == 0 {
		return &FieldError{Extractor: name, Field: "amount"}
	}
	if doc.Slip.DueDate == nil {
		return &FieldError{Extractor: name, Field: "due date"}
	}
	return nil
}

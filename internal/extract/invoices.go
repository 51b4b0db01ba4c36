package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/rmaraujo/fiscalflow/internal/models"
)

var invoiceValuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Valor\s+Total\s*[:\s]*R\$\s*(\d{1,3}(?:\.\d{3})*,\d{2})`),
	regexp.MustCompile(`(?i)Valor\s+da\s+Nota\s*[:\s]*R\$\s*(\d{1,3}(?:\.\d{3})*,\d{2})`),
	regexp.MustCompile(`(?i)Valor\s+Total\s*[:\s]+(\d{1,3}(?:\.\d{3})*,\d{2})\b`),
	regexp.MustCompile(`(?i)Valor\s+da\s+Nota\s*[:\s]+(\d{1,3}(?:\.\d{3})*,\d{2})\b`),
	regexp.MustCompile(`(?i)Total\s+Nota\s*[:\s]+(\d{1,3}(?:\.\d{3})*,\d{2})\b`),
	regexp.MustCompile(`(?i)Valor\s+L[íi]quido\s*[:\s]+(\d{1,3}(?:\.\d{3})*,\d{2})\b`),
	regexp.MustCompile(`(?i)TOTAL\s+A\s+PAGAR\s*[:\s]+(?:R\$\s*)?(\d{1,3}(?:\.\d{3})*,\d{2})\b`),
	regexp.MustCompile(`\bR\$\s*(\d{1,3}(?:\.\d{3})*,\d{2})\b`),
}

var invoiceNumberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)N[úu]mero\s+da\s+Nota\D{0,20}?(\d{1,15})\b`),
	regexp.MustCompile(`(?i)NFS-?e\s*(?:N[º°o]|Num)?\.?\s*[:.\-]?\s*\b(\d{1,15})\b`),
	regexp.MustCompile(`(?i)Nota\s*Fiscal\s*(?:N[º°o]|Num)?\.?\s*[:.\-]?\s*(\d{1,15})`),
	regexp.MustCompile(`(?i)Fatura\s*(?:N[º°o]|Num)?\.?\s*[:.\-]?\s*(\d{1,15})`),
}

var supplierNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Prestador[^\n]*?[:\s]+([A-ZÀ-Ü][A-Za-zÀ-ü\s&.\-]{5,100})`),
	regexp.MustCompile(`(?i)Raz[ãa]o\s+Social[^\n]*?[:\s]+([A-ZÀ-Ü][A-Za-zÀ-ü\s&.\-]{5,100})`),
}

var withheldPatterns = map[string][]*regexp.Regexp{
	"ir": {
		regexp.MustCompile(`(?i)(?:Valor\s+)?(?:do\s+)?IR\s*(?:Retido)?\s*[:\s]*R?\$?\s*(\d{1,3}(?:\.\d{3})*,\d{2})`),
		regexp.MustCompile(`(?i)Imposto\s+de\s+Renda\s*[:\s]*R?\$?\s*(\d{1,3}(?:\.\d{3})*,\d{2})`),
	},
	"inss": {
		regexp.MustCompile(`(?i)(?:Valor\s+)?(?:do\s+)?INSS\s*(?:Retido)?\s*[:\s]*R?\$?\s*(\d{1,3}(?:\.\d{3})*,\d{2})`),
	},
	"csll": {
		regexp.MustCompile(`(?i)(?:Valor\s+)?(?:da\s+)?CSLL\s*(?:Retida)?\s*[:\s]*R?\$?\s*(\d{1,3}(?:\.\d{3})*,\d{2})`),
	},
	"iss": {
		regexp.MustCompile(`(?i)(?:Valor\s+)?(?:do\s+)?ISS\s*(?:Retido)?\s*[:\s]*R?\$?\s*(\d{1,3}(?:\.\d{3})*,\d{2})`),
	},
}

func newInvoiceDocument(filename string, kind models.Kind) *models.Document {
	return &models.Document{
		SourceFile:  filename,
		ProcessedAt: time.Now(),
		Kind:        kind,
		Invoice:     &models.InvoiceFields{},
	}
}

// fillCommonInvoiceFields runs the shared service-invoice patterns.
func fillCommonInvoiceFields(doc *models.Document, text string) {
	inv := doc.Invoice
	if inv.SupplierTaxID == "" {
		inv.SupplierTaxID = FindCNPJ(text)
	}
	if inv.GrossValue == 0 {
		inv.GrossValue = FindMoney(text, invoiceValuePatterns)
	}
	if inv.Number == "" {
		inv.Number = findInvoiceNumber(text)
	}
	if inv.DueDate == nil {
		inv.DueDate = FindDateAfter(text, dueKeywords, 2)
	}
	if inv.IssueDate == nil {
		inv.IssueDate = FindDateAfter(text, []string{"EMISSÃO", "EMISSAO", "DATA DO DOCUMENTO"}, 2)
	}
	if inv.SupplierName == "" {
		for _, re := range supplierNamePatterns {
			if m := re.FindStringSubmatch(text); m != nil {
				inv.SupplierName = cleanName(m[1])
				break
			}
		}
	}
	fillWithheld(inv, text)
}

func fillWithheld(inv *models.InvoiceFields, text string) {
	find := func(key string) *float64 {
		for _, re := range withheldPatterns[key] {
			if m := re.FindStringSubmatch(text); m != nil {
				v := ParseMoney(m[1])
				return &v
			}
		}
		return nil
	}
	if inv.WithheldIR == nil {
		inv.WithheldIR = find("ir")
	}
	if inv.WithheldINSS == nil {
		inv.WithheldINSS = find("inss")
	}
	if inv.WithheldCSLL == nil {
		inv.WithheldCSLL = find("csll")
	}
	if inv.WithheldISS == nil {
		inv.WithheldISS = find("iss")
	}
}

// findInvoiceNumber strips dates and auxiliary identifiers (RPS, lot,
// series numbers) before matching, so a due date never masquerades as
// the invoice number.
func findInvoiceNumber(text string) string {
	clean := dateRe.ReplaceAllString(text, " ")
	clean = auxiliaryIDRe.ReplaceAllString(clean, " ")
	for _, re := range invoiceNumberPatterns {
		if m := re.FindStringSubmatch(clean); m != nil {
			return strings.NewReplacer(".", "", " ", "").Replace(m[1])
		}
	}
	return ""
}

var auxiliaryIDRe = regexp.MustCompile(`(?i)\b(RPS|Lote|Protocolo|Recibo|S[eé]rie)\b\D{0,10}?\d+`)

var nonLetterRe = regexp.MustCompile(`[\d]+`)

func cleanName(s string) string {
	s = nonLetterRe.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// EquipmentRentalInvoiceExtractor handles multi-page equipment rental
// statements (EMC Tecnologia). The per-item pages list unit amounts;
// the authoritative TOTAL sits on the last page, so the plain
// first-amount heuristic of the fallback extractor undercharges.
type EquipmentRentalInvoiceExtractor struct{}

func NewEquipmentRentalInvoiceExtractor() *EquipmentRentalInvoiceExtractor {
	return &EquipmentRentalInvoiceExtractor{}
}

func (e *EquipmentRentalInvoiceExtractor) Name() string { return "equipment_rental_invoice" }

func (e *EquipmentRentalInvoiceExtractor) CanHandle(text, filename string) bool {
	if text == "" {
		return false
	}
	upper := strings.ToUpper(StripAccents(text))
	isRental := strings.Contains(upper, "FATURA DE LOCACAO") ||
		(strings.Contains(upper, "FATURA") && strings.Contains(upper, "LOCACAO"))
	isEMC := strings.Contains(upper, "EMC TECNOLOGIA")
	hasEquipment := containsAny(upper, "NOTEBOOK", "COMPUTADOR", "MONITOR", "SERVIDOR") &&
		containsAny(upper, "DELL", "LENOVO")
	return (isRental && isEMC) || (isEMC && hasEquipment)
}

var rentalTotalRe = regexp.MustCompile(`(?i)TOTAL\s*(?:GERAL)?\s*[:\s]*R?\$?\s*(\d{1,3}(?:\.\d{3})*,\d{2})`)
var contractRe = regexp.MustCompile(`(?i)Contrato\s*(?:N[º°o])?\.?\s*[:\s]*(\d{2,12})`)

func (e *EquipmentRentalInvoiceExtractor) Extract(text, filename string) (*models.Document, error) {
	doc := newInvoiceDocument(filename, models.KindInvoice)
	doc.Invoice.SupplierName = "EMC TECNOLOGIA LTDA"

	// Last TOTAL wins: item pages repeat partial totals, the statement
	// total closes the document.
	if all := rentalTotalRe.FindAllStringSubmatch(text, -1); len(all) > 0 {
		doc.Invoice.GrossValue = ParseMoney(all[len(all)-1][1])
	}
	if m := contractRe.FindStringSubmatch(text); m != nil {
		doc.Invoice.Series = m[1]
	}
	fillCommonInvoiceFields(doc, text)
	if doc.Invoice.GrossValue == 0 {
		return doc, &FieldError{Extractor: e.Name(), Field: "gross value"}
	}
	return doc, nil
}

// TelecomInvoiceExtractor handles NFCom (model 62) communication-service
// invoices issued by the Telcables backbone provider: 44-digit access
// key, ICMS block, fixed header layout.
type TelecomInvoiceExtractor struct{}

func NewTelecomInvoiceExtractor() *TelecomInvoiceExtractor {
	return &TelecomInvoiceExtractor{}
}

const telcablesTaxID = "41062896000105"

func (e *TelecomInvoiceExtractor) Name() string { return "telecom_nfcom_invoice" }

func (e *TelecomInvoiceExtractor) CanHandle(text, filename string) bool {
	if text == "" {
		return false
	}
	upper := strings.ToUpper(text)
	if cnpj := FindCNPJ(text); cnpj == telcablesTaxID {
		return true
	}
	if strings.Contains(upper, "TELCABLES BRASIL") {
		return containsAny(upper, "DOCUMENTO AUXILIAR", "CHAVE DE ACESSO", "NOTA FISCAL")
	}
	return countAnchors(upper, "NFCOM", "NOTA FISCAL FATURA", "MODELO 62") >= 2
}

var nfcomNumberRe = regexp.MustCompile(`(?i)N[º°o]\.?\s*[:\s]*(\d{1,12})\s+S[ée]rie`)

func (e *TelecomInvoiceExtractor) Extract(text, filename string) (*models.Document, error) {
	doc := newInvoiceDocument(filename, models.KindInvoice)
	doc.Invoice.SupplierName = "TELCABLES BRASIL LTDA"
	doc.Invoice.SupplierTaxID = telcablesTaxID
	doc.Invoice.AccessKey = FindAccessKey(text)
	if m := nfcomNumberRe.FindStringSubmatch(text); m != nil {
		doc.Invoice.Number = m[1]
	}
	fillCommonInvoiceFields(doc, text)
	if doc.Invoice.GrossValue == 0 {
		return doc, &FieldError{Extractor: e.Name(), Field: "gross value"}
	}
	return doc, nil
}

// MunicipalPortalInvoiceExtractor handles NFS-e layouts rendered by
// municipal issuing portals: municipality header plus a verification
// code for the portal lookup.
type MunicipalPortalInvoiceExtractor struct{}

func NewMunicipalPortalInvoiceExtractor() *MunicipalPortalInvoiceExtractor {
	return &MunicipalPortalInvoiceExtractor{}
}

func (e *MunicipalPortalInvoiceExtractor) Name() string { return "municipal_portal_invoice" }

func (e *MunicipalPortalInvoiceExtractor) CanHandle(text, filename string) bool {
	if text == "" {
		return false
	}
	upper := strings.ToUpper(StripAccents(text))
	hasHeader := containsAny(upper, "PREFEITURA", "MUNICIPIO DE", "SECRETARIA DE FINANCAS",
		"SECRETARIA MUNICIPAL")
	hasVerification := containsAny(upper, "CODIGO DE VERIFICACAO", "AUTENTICIDADE")
	hasNFSe := containsAny(upper, "NFS-E", "NFSE", "NOTA FISCAL DE SERVICO",
		"NOTA FISCAL ELETRONICA DE SERVICO")
	return hasHeader && hasVerification && hasNFSe
}

var verificationCodeRe = regexp.MustCompile(`(?i)C[óo]digo\s+de\s+Verifica[çc][ãa]o\s*[:\s]*([A-Za-z0-9.\-]{4,20})`)

func (e *MunicipalPortalInvoiceExtractor) Extract(text, filename string) (*models.Document, error) {
	doc := newInvoiceDocument(filename, models.KindInvoice)
	fillCommonInvoiceFields(doc, text)
	if m := verificationCodeRe.FindStringSubmatch(text); m != nil {
		doc.Invoice.Series = strings.TrimSpace(m[1])
	}
	if doc.Invoice.Number == "" {
		return doc, &FieldError{Extractor: e.Name(), Field: "invoice number"}
	}
	return doc, nil
}

// BillingPanelInvoiceExtractor handles statements exported by the
// Pro Painel advertising-panel billing system. The layout is loose, so
// the predicate keys on the supplier brand and rejects documents that
// belong to other named suppliers.
type BillingPanelInvoiceExtractor struct{}

func NewBillingPanelInvoiceExtractor() *BillingPanelInvoiceExtractor {
	return &BillingPanelInvoiceExtractor{}
}

func (e *BillingPanelInvoiceExtractor) Name() string { return "billing_panel_invoice" }

func (e *BillingPanelInvoiceExtractor) CanHandle(text, filename string) bool {
	hint := strings.Contains(Compact(filename), "PROPAINEL")
	if text == "" && !hint {
		return false
	}
	compact := Compact(text)
	if !hint && !strings.Contains(compact, "PROPAINEL") {
		return false
	}
	// Documents naming another known supplier belong elsewhere.
	for _, other := range []string{"ACIMOC", "EMCTECNOLOGIA", "TELCABLES", "SICOOB"} {
		if strings.Contains(compact, other) {
			return false
		}
	}
	return true
}

func (e *BillingPanelInvoiceExtractor) Extract(text, filename string) (*models.Document, error) {
	doc := newInvoiceDocument(filename, models.KindInvoice)
	doc.Invoice.SupplierName = "PRO PAINEL LTDA"
	fillCommonInvoiceFields(doc, text)
	if doc.Invoice.GrossValue == 0 {
		doc.Invoice.GrossValue = firstNonZeroAmount(text)
	}
	if doc.Invoice.GrossValue == 0 {
		return doc, &FieldError{Extractor: e.Name(), Field: "gross value"}
	}
	return doc, nil
}

package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/rmaraujo/fiscalflow/internal/models"
)

// AdminDocumentExtractor catches administrative, non-fiscal paperwork
// that arrives in billing mailboxes: contracts, terminations, process
// filings. These carry no payable value; routing them here keeps them
// out of the invoice fallback.
type AdminDocumentExtractor struct{}

func NewAdminDocumentExtractor() *AdminDocumentExtractor {
	return &AdminDocumentExtractor{}
}

var adminSubtypes = []struct {
	anchor  string
	subtype string
}{
	{"DISTRATO", "termination"},
	{"RESCISORIO", "termination"},
	{"ENCERRAMENTO DE CONTRATO", "termination"},
	{"GUIA - PROCESSO", "process_filing"},
	{"PROCURACAO", "power_of_attorney"},
	{"CONTRATO DE PRESTACAO", "contract"},
	{"TERMO ADITIVO", "contract_amendment"},
}

func (e *AdminDocumentExtractor) Name() string { return "admin_document" }

func (e *AdminDocumentExtractor) CanHandle(text, filename string) bool {
	if text == "" {
		return false
	}
	upper := strings.ToUpper(StripAccents(text))
	// A digitable line or an access key means fiscal, not admin.
	if FindDigitableLine(text) != "" || FindAccessKey(text) != "" {
		return false
	}
	for _, s := range adminSubtypes {
		if strings.Contains(upper, s.anchor) {
			return true
		}
	}
	return false
}

var adminDocNoRe = regexp.MustCompile(`(?i)(?:Processo|Protocolo|Contrato)\s*(?:N[º°o])?\.?\s*[:\s]*([0-9][0-9./-]{3,25})`)

func (e *AdminDocumentExtractor) Extract(text, filename string) (*models.Document, error) {
	doc := &models.Document{
		SourceFile:  filename,
		ProcessedAt: time.Now(),
		Kind:        models.KindOther,
		Other:       &models.OtherFields{},
	}
	upper := strings.ToUpper(StripAccents(text))
	for _, s := range adminSubtypes {
		if strings.Contains(upper, s.anchor) {
			doc.Other.Subtype = s.subtype
			break
		}
	}
	if m := adminDocNoRe.FindStringSubmatch(text); m != nil {
		doc.Other.DocumentNo = strings.TrimSpace(m[1])
	}
	return doc, nil
}

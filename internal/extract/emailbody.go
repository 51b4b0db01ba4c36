package extract

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rmaraujo/fiscalflow/internal/models"
)

// EmailBodyExtractor recovers billing data from the email itself when
// no attachment carries a usable value: link-only deliveries where the
// invoice lives behind a portal URL and the amount is quoted in the
// message. It is not part of the registry; the orchestrator invokes it
// explicitly as a last resort before pairing.
type EmailBodyExtractor struct{}

func NewEmailBodyExtractor() *EmailBodyExtractor {
	return &EmailBodyExtractor{}
}

var bodyValuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`R\$\s*(\d{1,3}(?:\.\d{3})*,\d{2})`),
	regexp.MustCompile(`(?i)Valor[:\s]+(?:R\$\s*)?(\d{1,3}(?:\.\d{3})*,\d{2})`),
	regexp.MustCompile(`(?i)Total[:\s]+(?:R\$\s*)?(\d{1,3}(?:\.\d{3})*,\d{2})`),
	regexp.MustCompile(`(?i)Valor\s+(?:da\s+)?(?:NF|NFe|NFS-?e|Nota)[:\s]+(?:R\$\s*)?(\d{1,3}(?:\.\d{3})*,\d{2})`),
	regexp.MustCompile(`(?i)Valor\s+(?:do\s+)?Boleto[:\s]+(?:R\$\s*)?(\d{1,3}(?:\.\d{3})*,\d{2})`),
	regexp.MustCompile(`(?i)TOTAL\s+A\s+PAGAR[:\s]+(?:R\$\s*)?(\d{1,3}(?:\.\d{3})*,\d{2})`),
}

var bodyDuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Venc(?:imento)?\.?[:\s]+(\d{1,2}[/\-.]\d{1,2}(?:[/\-.]\d{2,4})?)`),
	regexp.MustCompile(`(?i)Data\s+(?:de\s+)?Vencimento[:\s]+(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4})`),
	regexp.MustCompile(`(?i)Vence\s+(?:em)?[:\s]+(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4})`),
	regexp.MustCompile(`(?i)At[ée]\s+(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4})`),
}

var bodyNumberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)NFS-?e\s*(?:n[º°o]\.?\s*)?(\d{3,15})`),
	regexp.MustCompile(`(?i)NF-?e?\s*(?:n[º°o]\.?\s*)?(\d{3,15})`),
	regexp.MustCompile(`(?i)Nota\s+Fiscal\s*(?:n[º°o]\.?\s*)?(\d{3,15})`),
	regexp.MustCompile(`(?i)Fatura\s*(?:n[º°o]\.?\s*)?(\d{3,15})`),
}

// Portals that deliver invoices by link rather than attachment.
var knownPortalDomains = []string{
	"nfe.prefeitura.sp.gov.br",
	"nfse.goiania.go.gov.br",
	"iss.campinas.sp.gov.br",
	"notacarioca.rio.gov.br",
	"nfse.curitiba.pr.gov.br",
	"click.omie.com.br",
	"omie.com.br",
}

var genericLinkRe = regexp.MustCompile(`(?i)(https?://[^\s<>"]*(?:nf[es]|nota|verificacao|autenticidade|/verificar/)[^\s<>"]*)`)

var linkCodePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)[?&](?:verificacao|cod|codigo|auth|token)=([A-Za-z0-9]{4,})`),
	regexp.MustCompile(`(?i)/verificar/([A-Za-z0-9]{4,})`),
	regexp.MustCompile(`(?i)/v/([A-Za-z0-9]{4,})`),
}

var textCodePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)C[óo]digo\s+(?:de\s+)?Verifica[çc][ãa]o[:\s]+([A-Za-z0-9]{4,12})`),
	regexp.MustCompile(`(?i)C[óo]digo\s+(?:de\s+)?Autenticidade[:\s]+([A-Za-z0-9]{4,12})`),
}

var htmlTagRe = regexp.MustCompile(`<[^>]+>`)
var spaceRunRe = regexp.MustCompile(`\s+`)

// ExtractNotice scans subject + body and synthesizes a link-notice
// document, or nil when nothing useful was found.
func (e *EmailBodyExtractor) ExtractNotice(bodyText, subject string) *models.Document {
	text := subject + " " + stripHTML(bodyText)

	values := findAllValues(text)
	link := findPortalLink(text)
	number := findFirst(bodyNumberPatterns, subject)
	if number == "" {
		number = findFirst(bodyNumberPatterns, text)
	}
	due := findBodyDueDate(text, subject)

	if len(values) == 0 && link == "" && number == "" {
		return nil
	}

	notice := &models.LinkNoticeFields{
		URL:        link,
		DocumentNo: number,
		DueDate:    due,
	}
	if len(values) > 0 {
		// The largest quoted amount is normally the payable total.
		notice.Value = values[0]
	}
	if link != "" {
		if u, err := url.Parse(link); err == nil {
			notice.PortalDomain = u.Hostname()
		}
		notice.VerificationCode = findFirst(linkCodePatterns, link)
	}
	if notice.VerificationCode == "" {
		notice.VerificationCode = findFirst(textCodePatterns, text)
	}
	notice.Confidence = noticeConfidence(notice, values, text)

	return &models.Document{
		SourceFile:  "email-body",
		ProcessedAt: time.Now(),
		Kind:        models.KindLinkNotice,
		LinkNotice:  notice,
		ExtractedBy: "email_body",
	}
}

func stripHTML(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(spaceRunRe.ReplaceAllString(s, " "))
}

// findAllValues returns the plausible amounts in the text, largest
// first, deduplicated.
func findAllValues(text string) []float64 {
	seen := make(map[float64]struct{})
	var out []float64
	for _, re := range bodyValuePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			v := ParseMoney(m[1])
			if v < 0.01 || v > 10_000_000 {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(out)))
	return out
}

func findBodyDueDate(text, subject string) *time.Time {
	for _, source := range []string{subject, text} {
		for _, re := range bodyDuePatterns {
			m := re.FindStringSubmatch(source)
			if m == nil {
				continue
			}
			if t := parsePossiblyPartialDate(m[1]); t != nil {
				return t
			}
		}
	}
	return nil
}

// parsePossiblyPartialDate accepts DD/MM without a year, assuming the
// current year or the next one when the month already passed.
func parsePossiblyPartialDate(s string) *time.Time {
	if t := ParseDateBR(s); t != nil {
		return t
	}
	m := regexp.MustCompile(`^(\d{1,2})[/\-.](\d{1,2})$`).FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return nil
	}
	now := time.Now()
	day := atoi(m[1])
	month := atoi(m[2])
	if day < 1 || day > 31 || month < 1 || month > 12 {
		return nil
	}
	year := now.Year()
	if month < int(now.Month()) {
		year++
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return &t
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

func findPortalLink(text string) string {
	for _, domain := range knownPortalDomains {
		re := regexp.MustCompile(`(?i)(https?://[^\s<>"]*` + regexp.QuoteMeta(domain) + `[^\s<>"]*)`)
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	if m := genericLinkRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

func findFirst(patterns []*regexp.Regexp, text string) string {
	if text == "" {
		return ""
	}
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			candidate := m[1]
			// A bare year is never a document number.
			if len(candidate) == 4 && strings.HasPrefix(candidate, "20") {
				continue
			}
			return candidate
		}
	}
	return ""
}

// noticeConfidence scores how trustworthy the synthesized notice is.
// Labeled amounts score higher than bare R$ tokens; many distinct
// amounts in one message dilute confidence.
func noticeConfidence(n *models.LinkNoticeFields, values []float64, text string) float64 {
	c := 0.5
	if n.Value > 0 {
		valueStr := formatBR(n.Value)
		if regexp.MustCompile(`(?i)Total[:\s]+R?\$?\s*` + regexp.QuoteMeta(valueStr)).MatchString(text) {
			c += 0.3
		} else if regexp.MustCompile(`(?i)Valor[:\s]+R?\$?\s*` + regexp.QuoteMeta(valueStr)).MatchString(text) {
			c += 0.2
		}
		if strings.Count(text, valueStr) > 1 {
			c += 0.1
		}
	}
	if len(values) > 5 {
		c -= 0.2
	}
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return c
}

// formatBR renders a float as a Brazilian-formatted amount string.
func formatBR(v float64) string {
	cents := int64(v*100 + 0.5)
	intPart := cents / 100
	frac := cents % 100
	digits := []byte{}
	if intPart == 0 {
		digits = []byte{'0'}
	}
	for intPart > 0 {
		digits = append([]byte{byte('0' + intPart%10)}, digits...)
		intPart /= 10
	}
	var sb strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			sb.WriteByte('.')
		}
		sb.WriteByte(d)
	}
	sb.WriteByte(',')
	sb.WriteByte(byte('0' + frac/10))
	sb.WriteByte(byte('0' + frac%10))
	return sb.String()
}

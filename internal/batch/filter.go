package batch

import (
	"regexp"
	"strings"
)

// FilterDecision explains why an email batch was accepted or skipped.
type FilterDecision struct {
	Process bool
	Reason  string
}

// RelevanceFilter decides whether an email is worth processing at all.
// The decision table, in order: sender blacklist and subject blacklist
// always skip; any attachment always wins ("golden rule": a document in
// hand beats any heuristic about the subject line); attachment-less
// mail survives only when the subject or sender carries billing
// vocabulary.
type RelevanceFilter struct {
	subjectBlacklist []*regexp.Regexp
	subjectWhitelist []*regexp.Regexp
	senderBlacklist  []*regexp.Regexp
	senderWhitelist  []*regexp.Regexp
}

func NewRelevanceFilter() *RelevanceFilter {
	return &RelevanceFilter{
		subjectBlacklist: subjectBlacklist,
		subjectWhitelist: subjectWhitelist,
		senderBlacklist:  senderBlacklist,
		senderWhitelist:  senderWhitelist,
	}
}

var subjectBlacklist = compileAll(
	`(?i)\b(feliz\s+)?(natal|ano\s*novo|p[áa]scoa|festas)\b`,
	`(?i)\bcomunicado\b`,
	`(?i)\b(hor[áa]rio|funcionamento|expediente)\b`,
	`(?i)\bnews(letter)?\b`,
	`(?i)\bconfira\b`,
	`(?i)^(re|res|fw|fwd|enc):\s*(re|res|fw|fwd|enc):`,
	`(?i)\b(promo[çc][ãa]o|oferta|desconto)\b`,
	`(?i)\binscreva-?se\b`,
	`(?i)\bpr[ée][\s-]?cobran[çc]a\b`,
	`(?i)\bajuste\s+(de\s+)?nf\b`,
	`(?i)\bdistrato\b`,
)

var subjectWhitelist = compileAll(
	`(?i)\bnota\s*fiscal\b`,
	`(?i)\bnf[\s-]?e\b`,
	`(?i)\bnf[\s-]?s[\s-]?e\b`,
	`(?i)\bnfcom\b`,
	`(?i)\bdanfe\b`,
	`(?i)\bfatura\b`,
	`(?i)\bboleto\b`,
	`(?i)\bcobran[çc]a\b`,
	`(?i)\bpagamento\b`,
	`(?i)\bvencimento\b`,
	`(?i)\bmensalidade\b`,
	`(?i)\bfaturamento\b`,
	`(?i)\bsua\s+(fatura|conta|nf)\b`,
	`(?i)\b(telecom|internet|fibra)\b`,
	`(?i)\b(energia|conta\s+de\s+luz)\b`,
)

var senderBlacklist = compileAll(
	`(?i)@(mail\.)?mailchimp\.com$`,
	`(?i)@(mail\.)?sendgrid\.(net|com)$`,
	`(?i)@(email\.)?hubspot\.com$`,
	`(?i)@(mail\.)?rdstation\.com\.br$`,
	`(?i)newsletter@`,
	`(?i)marketing@`,
	`(?i)promocoes@`,
	`(?i)ofertas@`,
	`(?i)@.*\.slack\.com$`,
	`(?i)@.*\.atlassian\.(com|net)$`,
	`(?i)@github\.com$`,
	`(?i)@linkedin\.com$`,
	`(?i)@facebookmail\.com$`,
)

var senderWhitelist = compileAll(
	`(?i)@.*\.gov\.br$`,
	`(?i)@.*omie\.com\.br$`,
	`(?i)@.*bling\.com\.br$`,
	`(?i)@.*contaazul\.com$`,
	`(?i)@.*enotas\.com\.br$`,
	`(?i)@.*totvs\.com\.br$`,
	`(?i)faturamento@`,
	`(?i)cobranca@`,
	`(?i)financeiro@`,
	`(?i)nfs?e@`,
	`(?i)notafiscal@`,
	`(?i)boleto@`,
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// Decide applies the decision table to one email.
func (f *RelevanceFilter) Decide(subject, senderAddr string, attachmentCount int) FilterDecision {
	sender := strings.TrimSpace(strings.ToLower(senderAddr))
	for _, re := range f.senderBlacklist {
		if re.MatchString(sender) {
			return FilterDecision{Process: false, Reason: "sender blacklisted: " + re.String()}
		}
	}
	for _, re := range f.subjectBlacklist {
		if re.MatchString(subject) {
			return FilterDecision{Process: false, Reason: "subject blacklisted: " + re.String()}
		}
	}
	if attachmentCount > 0 {
		return FilterDecision{Process: true, Reason: "has attachments"}
	}
	for _, re := range f.subjectWhitelist {
		if re.MatchString(subject) {
			return FilterDecision{Process: true, Reason: "billing keyword in subject"}
		}
	}
	for _, re := range f.senderWhitelist {
		if re.MatchString(sender) {
			return FilterDecision{Process: true, Reason: "billing sender"}
		}
	}
	return FilterDecision{Process: false, Reason: "no attachments and no billing signal"}
}

package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// moneyRe matches Brazilian-formatted amounts: 1.234,56 with optional
// R$ prefix captured by callers.
var moneyRe = regexp.MustCompile(`\d{1,3}(?:\.\d{3})*,\d{2}`)

// cnpjRe matches a formatted CNPJ (company tax id).
var cnpjRe = regexp.MustCompile(`\d{2}\.\d{3}\.\d{3}/\d{4}-\d{2}`)

// digitableLineRe matches the machine-readable payment line printed on
// bank slips (five blocks, 47 digits with separators).
var digitableLineRe = regexp.MustCompile(`\d{5}[.\s]\d{5}\s+\d{5}[.\s]\d{6}\s+\d{5}[.\s]\d{6}\s+\d\s+\d{14}`)

// looseDigitableRe tolerates the partial layouts OCR produces.
var looseDigitableRe = regexp.MustCompile(`\d{5}[.\s]\d{5}\s+\d{5}[.\s]\d{6}\s+\d{5}[.\s]\d{6}`)

// accessKeyRe matches the 44-digit access key of electronic goods
// invoices, with or without group spacing.
var accessKeyRe = regexp.MustCompile(`\b(?:\d{4}[\s.]?){10}\d{4}\b`)

var dateRe = regexp.MustCompile(`(\d{1,2})[/\-.](\d{1,2})[/\-.](\d{2,4})`)

// ParseMoney converts a Brazilian-formatted amount ("1.234,56") to a
// float. Returns 0 when the text is not a well-formed amount.
func ParseMoney(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// FindMoney returns the first amount matched by any of the patterns,
// preferring earlier (more specific) patterns. Zero when none match a
// positive value.
func FindMoney(text string, patterns []*regexp.Regexp) float64 {
	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if v := ParseMoney(m[len(m)-1]); v > 0 {
			return v
		}
	}
	return 0
}

// ParseDateBR parses DD/MM/YYYY and its separator/short-year variants.
func ParseDateBR(s string) *time.Time {
	m := dateRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if year < 100 {
		if year <= 50 {
			year += 2000
		} else {
			year += 1900
		}
	}
	if day < 1 || day > 31 || month < 1 || month > 12 {
		return nil
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return nil
	}
	return &t
}

// FindDateAfter scans for a keyword and returns the first parseable
// date on that line or the next few lines. Slip layouts put the label
// and the value in separate table cells, which extraction renders as
// adjacent lines.
func FindDateAfter(text string, keywords []string, lookahead int) *time.Time {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		upper := strings.ToUpper(line)
		matched := false
		for _, kw := range keywords {
			if strings.Contains(upper, kw) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		for off := 0; off <= lookahead && i+off < len(lines); off++ {
			if t := ParseDateBR(lines[i+off]); t != nil {
				return t
			}
		}
	}
	return nil
}

// FindCNPJ returns the first formatted company tax id, digits only.
func FindCNPJ(text string) string {
	m := cnpjRe.FindString(text)
	if m == "" {
		return ""
	}
	return Digits(m)
}

// FindDigitableLine returns the slip payment line with separators
// stripped, or "".
func FindDigitableLine(text string) string {
	if m := digitableLineRe.FindString(text); m != "" {
		return Digits(m)
	}
	if m := looseDigitableRe.FindString(text); m != "" {
		return Digits(m)
	}
	return ""
}

// FindAccessKey returns the 44-digit goods-invoice access key, or "".
func FindAccessKey(text string) string {
	for _, m := range accessKeyRe.FindAllString(text, -1) {
		if d := Digits(m); len(d) == 44 {
			return d
		}
	}
	return ""
}

// Digits strips everything but 0-9.
func Digits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// StripAccents replaces accented Latin letters with their base form,
// so anchors survive OCR output that drops diacritics.
func StripAccents(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if repl, ok := accentMap[r]; ok {
			sb.WriteRune(repl)
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

var accentMap = map[rune]rune{
	'á': 'a', 'à': 'a', 'â': 'a', 'ã': 'a', 'ä': 'a',
	'é': 'e', 'è': 'e', 'ê': 'e', 'ë': 'e',
	'í': 'i', 'ì': 'i', 'î': 'i', 'ï': 'i',
	'ó': 'o', 'ò': 'o', 'ô': 'o', 'õ': 'o', 'ö': 'o',
	'ú': 'u', 'ù': 'u', 'û': 'u', 'ü': 'u',
	'ç': 'c', 'ñ': 'n',
	'Á': 'A', 'À': 'A', 'Â': 'A', 'Ã': 'A', 'Ä': 'A',
	'É': 'E', 'È': 'E', 'Ê': 'E', 'Ë': 'E',
	'Í': 'I', 'Ì': 'I', 'Î': 'I', 'Ï': 'I',
	'Ó': 'O', 'Ò': 'O', 'Ô': 'O', 'Õ': 'O', 'Ö': 'O',
	'Ú': 'U', 'Ù': 'U', 'Û': 'U', 'Ü': 'U',
	'Ç': 'C', 'Ñ': 'N',
}

// Compact uppercases, strips accents and removes every non-alphanumeric
// rune. Anchor matching on compacted text tolerates OCR spacing noise.
func Compact(s string) string {
	upper := strings.ToUpper(StripAccents(s))
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, upper)
}

// containsAny reports whether upper-cased text contains any keyword.
func containsAny(textUpper string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(textUpper, kw) {
			return true
		}
	}
	return false
}

// countAnchors counts how many keywords appear in upper-cased text.
func countAnchors(textUpper string, keywords ...string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(textUpper, kw) {
			n++
		}
	}
	return n
}

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/rmaraujo/fiscalflow/pkg/logger"
)

// shortCircuitLength is the accumulated clean-text length at which the
// native strategy stops reading further pages. Fiscal documents carry
// their identifying fields on page one; later pages are terms and
// boilerplate.
const shortCircuitLength = 300

// NativeStrategy reads the embedded text layer. It is the cheapest
// strategy and handles the majority of electronically issued documents.
type NativeStrategy struct {
	passwords []string
	minLength int
	log       logger.Logger
}

func NewNativeStrategy(passwords []string, minLength int, log logger.Logger) *NativeStrategy {
	return &NativeStrategy{
		passwords: passwords,
		minLength: minLength,
		log:       log.Named("native"),
	}
}

func (s *NativeStrategy) Name() string { return StrategyNative }

func (s *NativeStrategy) Extract(ctx context.Context, filePath string) (string, error) {
	reader, err := openPDF(filePath, s.passwords)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			s.log.Debug("page text unreadable",
				logger.String("file", filePath),
				logger.Int("page", i),
				logger.Error(err),
			)
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")

		// Enough clean text already; skip the remaining pages.
		clean := strings.TrimSpace(sb.String())
		if len(clean) >= shortCircuitLength && GarbageRatio(clean) < 0.1 {
			break
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// openPDF opens a possibly password-protected PDF, cycling through the
// candidate passwords derived from the registered company tax ids.
// Issuers protect slips with the recipient's tax-id prefix.
func openPDF(filePath string, passwords []string) (*pdf.Reader, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filePath, err)
	}
	r := bytes.NewReader(content)

	next := passwordCycle(passwords)
	reader, err := pdf.NewReaderEncrypted(r, r.Size(), next)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filePath, err)
	}
	return reader, nil
}

// passwordCycle yields each candidate once, then the empty string to
// signal exhaustion to the reader.
func passwordCycle(passwords []string) func() string {
	i := 0
	return func() string {
		if i >= len(passwords) {
			return ""
		}
		pw := passwords[i]
		i++
		return pw
	}
}

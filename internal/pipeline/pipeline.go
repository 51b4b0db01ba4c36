// Package pipeline recovers raw text from document files using an
// ordered, quality-checked strategy chain: native text layer first,
// table-preserving re-extraction second, OCR last. Strategy failures
// are data, not control flow: each attempt is recorded and the chain
// only surfaces an error when every strategy is exhausted.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rmaraujo/fiscalflow/config"
	"github.com/rmaraujo/fiscalflow/pkg/logger"
)

// Strategy is one text-recovery engine. Extract returns the recovered
// text; an empty string or an error both count as a strategy-local
// failure and move the chain forward.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, filePath string) (string, error)
}

// StrategyResult records one attempt, success or not. Keeping the full
// attempt trail makes extraction failures diagnosable instead of silent.
type StrategyResult struct {
	Strategy     string
	Text         string
	Err          error
	GarbageRatio float64
	Usable       bool
}

// Extraction is the outcome of a successful pipeline run.
type Extraction struct {
	Text     string
	Strategy string
	Attempts []StrategyResult
}

// ExtractionError reports chain exhaustion: every strategy failed or
// produced text below the usability bar.
type ExtractionError struct {
	File     string
	Attempts []StrategyResult
}

func (e *ExtractionError) Error() string {
	names := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		names = append(names, a.Strategy)
	}
	return fmt.Sprintf("text extraction failed for %s after %d strategies (%s)",
		e.File, len(e.Attempts), strings.Join(names, ", "))
}

// Pipeline runs the strategy chain. It is constructed once, before
// batch processing begins, and is safe to share across workers: the
// strategy slice is never written after construction.
type Pipeline struct {
	strategies []Strategy
	cfg        config.PipelineConfig
	log        logger.Logger

	// index of the OCR strategy in the chain, -1 when absent; used by
	// hybrid mode to complement native text with OCR output.
	ocrIndex int
}

// New builds the production chain: native, table-preserving, OCR.
func New(cfg config.PipelineConfig, log logger.Logger) *Pipeline {
	passwords := config.PasswordCandidates()
	strategies := []Strategy{
		NewNativeStrategy(passwords, cfg.MinTextLength, log),
		NewTableStrategy(passwords, log),
		NewOCRStrategy(cfg, passwords, log),
	}
	return &Pipeline{
		strategies: strategies,
		cfg:        cfg,
		log:        log.Named("pipeline"),
		ocrIndex:   2,
	}
}

// NewWithStrategies builds a pipeline over an explicit chain, used by
// tests and callers that need a custom order.
func NewWithStrategies(cfg config.PipelineConfig, log logger.Logger, strategies ...Strategy) *Pipeline {
	p := &Pipeline{strategies: strategies, cfg: cfg, log: log.Named("pipeline"), ocrIndex: -1}
	for i, s := range strategies {
		if s.Name() == StrategyOCR {
			p.ocrIndex = i
		}
	}
	return p
}

// Extract walks the chain in order and returns the first usable result.
// A non-empty result whose garbage ratio exceeds the configured
// threshold is a logical failure: the text "succeeded" mechanically but
// is unusable, so the chain proceeds to the next strategy.
func (p *Pipeline) Extract(ctx context.Context, filePath string) (*Extraction, error) {
	attempts := make([]StrategyResult, 0, len(p.strategies))

	for i, s := range p.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, err := s.Extract(ctx, filePath)
		res := StrategyResult{Strategy: s.Name(), Text: text, Err: err}
		if err == nil && text != "" {
			res.GarbageRatio = GarbageRatio(text)
			res.Usable = len(strings.TrimSpace(text)) >= p.cfg.MinTextLength &&
				res.GarbageRatio < p.cfg.MojibakeThreshold
		}
		attempts = append(attempts, res)

		if !res.Usable {
			if err != nil {
				p.log.Debug("strategy failed",
					logger.String("file", filePath),
					logger.String("strategy", s.Name()),
					logger.Error(err),
				)
			} else if text != "" {
				p.log.Debug("strategy output rejected by quality heuristic",
					logger.String("file", filePath),
					logger.String("strategy", s.Name()),
					logger.Float64("garbageRatio", res.GarbageRatio),
				)
			}
			continue
		}

		out := &Extraction{Text: text, Strategy: s.Name(), Attempts: attempts}

		// Hybrid mode: OCR complements, not replaces, the native text
		// layer. Fields rendered as embedded images are invisible to
		// the native strategy, so both outputs are concatenated.
		if p.cfg.Hybrid && s.Name() == StrategyNative && p.ocrIndex > i {
			if ocrText, ocrErr := p.strategies[p.ocrIndex].Extract(ctx, filePath); ocrErr == nil && ocrText != "" {
				if GarbageRatio(ocrText) < p.cfg.MojibakeThreshold {
					out.Text = text + "\n" + ocrText
					out.Strategy = StrategyNative + "+" + StrategyOCR
				}
			}
		}
		return out, nil
	}

	return nil, &ExtractionError{File: filePath, Attempts: attempts}
}

// GarbageRatio measures the fraction of runes that are replacement
// characters or non-printable (excluding whitespace). Mojibake-heavy
// native output typically scores far above any legitimate document.
func GarbageRatio(text string) float64 {
	if text == "" {
		return 0
	}
	var total, garbage int
	for _, r := range text {
		total++
		switch {
		case r == utf8.RuneError, r == '�':
			garbage++
		case unicode.IsSpace(r):
		case !unicode.IsPrint(r):
			garbage++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(garbage) / float64(total)
}

// Strategy names, stable identifiers recorded on documents and results.
const (
	StrategyNative = "native"
	StrategyTable  = "table"
	StrategyOCR    = "ocr"
)

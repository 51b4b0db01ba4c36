package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmaraujo/fiscalflow/config"
	"github.com/rmaraujo/fiscalflow/pkg/logger"
)

type fakeStrategy struct {
	name  string
	text  string
	err   error
	calls int
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Extract(ctx context.Context, filePath string) (string, error) {
	f.calls++
	return f.text, f.err
}

func testConfig() config.PipelineConfig {
	return config.PipelineConfig{
		MinTextLength:     50,
		MojibakeThreshold: 0.40,
	}
}

func cleanText(n int) string {
	return strings.Repeat("NOTA FISCAL ", n/12+1)[:n]
}

// mojibakeText builds output where the replacement-character fraction
// is ratio, padded with clean text to the requested length.
func mojibakeText(n int, ratio float64) string {
	garbage := int(float64(n) * ratio)
	return strings.Repeat("�", garbage) + cleanText(n-garbage)
}

func TestExtractFirstUsableWins(t *testing.T) {
	native := &fakeStrategy{name: StrategyNative, text: cleanText(200)}
	ocr := &fakeStrategy{name: StrategyOCR, text: cleanText(200)}
	p := NewWithStrategies(testConfig(), logger.NewTestLogger(), native, ocr)

	res, err := p.Extract(context.Background(), "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, StrategyNative, res.Strategy)
	assert.Equal(t, 0, ocr.calls)
	require.Len(t, res.Attempts, 1)
	assert.True(t, res.Attempts[0].Usable)
}

func TestExtractGarbageOutputAdvancesChain(t *testing.T) {
	// Mechanical success with 50% replacement characters is a logical
	// failure: the chain must proceed to OCR.
	native := &fakeStrategy{name: StrategyNative, text: mojibakeText(200, 0.5)}
	ocr := &fakeStrategy{name: StrategyOCR, text: cleanText(200)}
	p := NewWithStrategies(testConfig(), logger.NewTestLogger(), native, ocr)

	res, err := p.Extract(context.Background(), "scan.pdf")
	require.NoError(t, err)
	assert.Equal(t, StrategyOCR, res.Strategy)
	assert.Equal(t, 1, native.calls)

	require.Len(t, res.Attempts, 2)
	assert.False(t, res.Attempts[0].Usable)
	assert.GreaterOrEqual(t, res.Attempts[0].GarbageRatio, 0.40)
}

func TestExtractAtThresholdAdvancesChain(t *testing.T) {
	// The threshold itself is unusable: ratio < threshold is required.
	native := &fakeStrategy{name: StrategyNative, text: mojibakeText(200, 0.40)}
	ocr := &fakeStrategy{name: StrategyOCR, text: cleanText(200)}
	p := NewWithStrategies(testConfig(), logger.NewTestLogger(), native, ocr)

	res, err := p.Extract(context.Background(), "scan.pdf")
	require.NoError(t, err)
	assert.Equal(t, StrategyOCR, res.Strategy)
}

func TestExtractShortOutputAdvancesChain(t *testing.T) {
	native := &fakeStrategy{name: StrategyNative, text: cleanText(20)}
	table := &fakeStrategy{name: StrategyTable, text: cleanText(120)}
	p := NewWithStrategies(testConfig(), logger.NewTestLogger(), native, table)

	res, err := p.Extract(context.Background(), "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, StrategyTable, res.Strategy)
}

func TestExtractExhaustionReturnsError(t *testing.T) {
	native := &fakeStrategy{name: StrategyNative, err: errors.New("no text layer")}
	table := &fakeStrategy{name: StrategyTable, text: ""}
	ocr := &fakeStrategy{name: StrategyOCR, text: cleanText(10)}
	p := NewWithStrategies(testConfig(), logger.NewTestLogger(), native, table, ocr)

	res, err := p.Extract(context.Background(), "broken.pdf")
	require.Nil(t, res)

	var exhausted *ExtractionError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "broken.pdf", exhausted.File)
	// Every attempt is preserved for diagnostics.
	require.Len(t, exhausted.Attempts, 3)
	assert.Error(t, exhausted.Attempts[0].Err)
}

func TestExtractHybridConcatenatesOCR(t *testing.T) {
	cfg := testConfig()
	cfg.Hybrid = true
	native := &fakeStrategy{name: StrategyNative, text: cleanText(200)}
	ocr := &fakeStrategy{name: StrategyOCR, text: cleanText(80)}
	p := NewWithStrategies(cfg, logger.NewTestLogger(), native, ocr)

	res, err := p.Extract(context.Background(), "mixed.pdf")
	require.NoError(t, err)
	assert.Equal(t, StrategyNative+"+"+StrategyOCR, res.Strategy)
	assert.Contains(t, res.Text, native.text)
	assert.Contains(t, res.Text, ocr.text)
	assert.Equal(t, 1, ocr.calls)
}

func TestExtractHybridSkipsGarbageOCR(t *testing.T) {
	cfg := testConfig()
	cfg.Hybrid = true
	native := &fakeStrategy{name: StrategyNative, text: cleanText(200)}
	ocr := &fakeStrategy{name: StrategyOCR, text: mojibakeText(100, 0.9)}
	p := NewWithStrategies(cfg, logger.NewTestLogger(), native, ocr)

	res, err := p.Extract(context.Background(), "mixed.pdf")
	require.NoError(t, err)
	assert.Equal(t, StrategyNative, res.Strategy)
	assert.Equal(t, native.text, res.Text)
}

func TestExtractCancelledContext(t *testing.T) {
	native := &fakeStrategy{name: StrategyNative, text: cleanText(200)}
	p := NewWithStrategies(testConfig(), logger.NewTestLogger(), native)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Extract(ctx, "doc.pdf")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, native.calls)
}

func TestGarbageRatio(t *testing.T) {
	assert.Equal(t, 0.0, GarbageRatio(""))
	assert.Equal(t, 0.0, GarbageRatio("texto limpo com acentuação"))
	assert.Equal(t, 1.0, GarbageRatio("���"))
	// Whitespace counts toward the total but never as garbage.
	assert.InDelta(t, 0.25, GarbageRatio("ab �"), 0.001)
}

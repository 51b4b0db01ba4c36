// Package batch sequences one email batch through the full pipeline:
// structured-source precedence, text extraction, extractor dispatch,
// body-text salvage and pairing. Batches are independent units of work
// and run in parallel under a bounded pool.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rmaraujo/fiscalflow/config"
	"github.com/rmaraujo/fiscalflow/internal/extract"
	"github.com/rmaraujo/fiscalflow/internal/models"
	"github.com/rmaraujo/fiscalflow/internal/pairing"
	"github.com/rmaraujo/fiscalflow/internal/pipeline"
	"github.com/rmaraujo/fiscalflow/pkg/logger"
	"github.com/rmaraujo/fiscalflow/pkg/metrics"
)

// TimeoutError marks a batch that exceeded its processing budget. The
// batch is flagged for isolated retry; siblings are unaffected.
type TimeoutError struct {
	BatchID string
	Budget  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("batch %s exceeded its %s budget", e.BatchID, e.Budget)
}

// RetryEnqueuer re-queues a timed-out batch for isolated reprocessing.
// Wired to the task queue when one is configured; nil otherwise.
type RetryEnqueuer interface {
	EnqueueBatchRetry(ctx context.Context, folder string) error
}

// Orchestrator processes batch folders end to end.
type Orchestrator struct {
	pipeline *pipeline.Pipeline
	registry *extract.Registry
	body     *extract.EmailBodyExtractor
	pairer   *pairing.Engine
	filter   *RelevanceFilter
	cfg      config.BatchConfig
	retry    RetryEnqueuer
	metrics  *metrics.Collector
	log      logger.Logger
}

func NewOrchestrator(p *pipeline.Pipeline, r *extract.Registry, pairer *pairing.Engine, cfg config.BatchConfig, log logger.Logger) *Orchestrator {
	return &Orchestrator{
		pipeline: p,
		registry: r,
		body:     extract.NewEmailBodyExtractor(),
		pairer:   pairer,
		filter:   NewRelevanceFilter(),
		cfg:      cfg,
		metrics:  metrics.NewCollector(),
		log:      log.Named("batch"),
	}
}

// SetRetryEnqueuer wires the optional retry queue.
func (o *Orchestrator) SetRetryEnqueuer(r RetryEnqueuer) { o.retry = r }

// Metrics exposes the collector for export (JSON dump, /metrics).
func (o *Orchestrator) Metrics() *metrics.Collector { return o.metrics }

// Files the ingestor drops into batch folders that are not documents.
var ignoredFiles = map[string]struct{}{
	"metadata.json": {},
	".gitkeep":      {},
	"thumbs.db":     {},
	"desktop.ini":   {},
}

// batchMetadata mirrors the metadata.json the mailbox ingestor writes
// next to the attachments.
type batchMetadata struct {
	Subject       string `json:"email_subject"`
	SenderName    string `json:"email_sender_name"`
	SenderAddress string `json:"email_sender_address"`
	ReceivedAt    string `json:"email_date"`
	BodyText      string `json:"body_text"`
}

// LoadBatch reads a batch folder: metadata.json plus the attachment
// listing. The folder name doubles as the batch id; legacy folders
// without a parseable name get a fresh one.
func LoadBatch(folder string) (*models.Batch, []string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, nil, fmt.Errorf("read batch folder %s: %w", folder, err)
	}

	id := filepath.Base(folder)
	if strings.TrimSpace(id) == "" || id == "." {
		id = uuid.NewString()
	}
	b := &models.Batch{
		BatchID:      id,
		SourceFolder: folder,
		Meta:         &models.EmailMeta{},
		Errors:       make(map[string]string),
	}

	if data, err := os.ReadFile(filepath.Join(folder, "metadata.json")); err == nil {
		var meta batchMetadata
		if err := json.Unmarshal(data, &meta); err == nil {
			b.Meta.Subject = meta.Subject
			b.Meta.SenderName = meta.SenderName
			b.Meta.SenderAddr = meta.SenderAddress
			b.Meta.BodyText = meta.BodyText
			if t, err := time.Parse(time.RFC3339, meta.ReceivedAt); err == nil {
				b.Meta.ReceivedAt = &t
			}
		}
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.ToLower(e.Name())
		if _, skip := ignoredFiles[name]; skip {
			continue
		}
		switch filepath.Ext(name) {
		case ".pdf", ".xml":
			files = append(files, filepath.Join(folder, e.Name()))
		}
	}
	sort.Strings(files)
	return b, files, nil
}

// Process runs one batch folder to completion: XML precedence, PDF
// extraction, merge, body-text salvage, pairing. Per-document failures
// are recorded on the batch; only a context error aborts it.
func (o *Orchestrator) Process(ctx context.Context, folder string) (*models.Batch, error) {
	start := time.Now()
	b, files, err := LoadBatch(folder)
	if err != nil {
		return nil, err
	}

	if dec := o.filter.Decide(b.Meta.Subject, b.Meta.SenderAddr, len(files)); !dec.Process {
		o.log.Info("batch skipped by relevance filter",
			logger.String("batchId", b.BatchID),
			logger.String("reason", dec.Reason),
		)
		o.metrics.Inc(metrics.BatchesSkipped, 1, metrics.Label{Key: "reason", Value: dec.Reason})
		b.Status = models.BatchOK
		return b, nil
	}

	var xmlFiles, pdfFiles []string
	for _, f := range files {
		if filepath.Ext(strings.ToLower(f)) == ".xml" {
			xmlFiles = append(xmlFiles, f)
		} else {
			pdfFiles = append(pdfFiles, f)
		}
	}

	// Structured sources first. A complete XML document is trusted
	// outright and suppresses its PDF rendition.
	var xmlDocs []*models.Document
	completeNumbers := make(map[string]struct{})
	for _, f := range xmlFiles {
		if err := ctx.Err(); err != nil {
			return o.abort(b, start, err)
		}
		doc, err := ParseXMLDocument(f)
		if err != nil {
			b.AddError(filepath.Base(f), err.Error())
			continue
		}
		if doc == nil {
			continue
		}
		b.Meta.HasStructure = true
		xmlDocs = append(xmlDocs, doc)
		if xmlComplete(doc) {
			completeNumbers[normalizedNumber(doc)] = struct{}{}
		}
	}

	var pdfDocs []*models.Document
	for _, f := range pdfFiles {
		if err := ctx.Err(); err != nil {
			return o.abort(b, start, err)
		}
		doc, err := o.processAttachment(ctx, f)
		if err != nil {
			var fieldErr *extract.FieldError
			if errors.As(err, &fieldErr) && doc != nil {
				// Document produced with gaps; keep it, it will surface
				// as NEEDS_REVIEW or DIVERGENT instead of vanishing.
				doc.AddWarning(fieldErr.Error())
			} else {
				b.AddError(filepath.Base(f), err.Error())
				continue
			}
		}
		if doc != nil {
			pdfDocs = append(pdfDocs, doc)
		}
	}

	for _, doc := range mergeDocuments(xmlDocs, pdfDocs, completeNumbers) {
		o.assignCompany(doc)
		b.AddDocument(doc)
		o.metrics.Inc(metrics.DocumentsExtracted, 1,
			metrics.Label{Key: "extractor", Value: doc.ExtractedBy},
			metrics.Label{Key: "strategy", Value: doc.Strategy},
		)
	}

	// Link-only deliveries: nothing extracted carries a value, so mine
	// the email body itself and synthesize the invoice-side document.
	if !b.HasPositiveValue() {
		if notice := o.body.ExtractNotice(b.Meta.BodyText, b.Meta.Subject); notice != nil {
			notice.AddWarning("[NO_ATTACHMENT] synthesized from email body")
			o.assignCompany(notice, b.Meta.Subject, b.Meta.BodyText)
			b.AddDocument(notice)
			o.metrics.Inc(metrics.LinkNotices, 1)
		}
	}

	b.Pairs = o.pairer.Pair(b.Documents)
	b.Status = models.BatchOK
	b.ProcessingTime = time.Since(start)
	for _, p := range b.Pairs {
		o.metrics.Inc(metrics.PairsCreated, 1, metrics.Label{Key: "status", Value: string(p.Status)})
	}
	o.metrics.Inc(metrics.BatchesProcessed, 1, metrics.Label{Key: "status", Value: "ok"})
	o.metrics.Observe(metrics.BatchDuration, b.ProcessingTime.Seconds())
	o.log.Info("batch processed",
		logger.String("batchId", b.BatchID),
		logger.Int("documents", len(b.Documents)),
		logger.Int("pairs", len(b.Pairs)),
		logger.Duration("elapsed", b.ProcessingTime),
	)
	return b, nil
}

func (o *Orchestrator) abort(b *models.Batch, start time.Time, err error) (*models.Batch, error) {
	b.ProcessingTime = time.Since(start)
	o.metrics.Observe(metrics.BatchDuration, b.ProcessingTime.Seconds())
	if errors.Is(err, context.DeadlineExceeded) {
		b.Status = models.BatchTimeout
		o.metrics.Inc(metrics.BatchTimeouts, 1)
		o.metrics.Inc(metrics.BatchesProcessed, 1, metrics.Label{Key: "status", Value: "timeout"})
		return b, &TimeoutError{BatchID: b.BatchID, Budget: o.cfg.Timeout}
	}
	b.Status = models.BatchError
	o.metrics.Inc(metrics.BatchesProcessed, 1, metrics.Label{Key: "status", Value: "error"})
	return b, err
}

// processAttachment runs the extraction pipeline and dispatches the
// text to the registry.
func (o *Orchestrator) processAttachment(ctx context.Context, path string) (*models.Document, error) {
	res, err := o.pipeline.Extract(ctx, path)
	if err != nil {
		return nil, err
	}
	doc, err := o.registry.Dispatch(res.Text, filepath.Base(path))
	if doc != nil {
		doc.Strategy = res.Strategy
		doc.RawSnippet = snippet(res.Text)
		doc.SourceFile = path
	}
	return doc, err
}

// assignCompany matches the document against the company registry. The
// raw text is the primary source; extracted tax ids and caller-supplied
// context cover documents without an OCR snippet (XML, email body).
func (o *Orchestrator) assignCompany(doc *models.Document, extra ...string) {
	if doc.Company != "" {
		return
	}
	parts := []string{doc.RawSnippet}
	if doc.Invoice != nil {
		parts = append(parts, doc.Invoice.SupplierTaxID)
	}
	if doc.Slip != nil {
		parts = append(parts, doc.Slip.SupplierTaxID)
	}
	parts = append(parts, extra...)
	if c := config.FindCompany(strings.Join(parts, " ")); c != nil {
		doc.Company = c.Code
		doc.Sector = c.Sector
	}
}

// mergeDocuments applies the structured-source precedence: complete XML
// documents pass through and suppress PDF duplicates carrying the same
// normalized number; incomplete XML documents are complemented by their
// matching PDF (nil fields only) rather than duplicated.
func mergeDocuments(xmlDocs, pdfDocs []*models.Document, completeNumbers map[string]struct{}) []*models.Document {
	var out []*models.Document
	pdfUsed := make([]bool, len(pdfDocs))

	for _, x := range xmlDocs {
		if _, complete := completeNumbers[normalizedNumber(x)]; complete {
			out = append(out, x)
			continue
		}
		if i := findComplementaryPDF(x, pdfDocs, pdfUsed); i >= 0 {
			complementInvoice(x, pdfDocs[i])
			pdfUsed[i] = true
		}
		out = append(out, x)
	}

	for i, p := range pdfDocs {
		if pdfUsed[i] {
			continue
		}
		// Slips routinely print the invoice number they pay as their own
		// document number; they are never duplicates of an invoice record.
		if p.Kind == models.KindPaymentSlip {
			out = append(out, p)
			continue
		}
		if num := normalizedNumber(p); num != "" {
			if _, dup := completeNumbers[num]; dup {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

// findComplementaryPDF locates the PDF rendition of an incomplete XML
// document by number, then by value.
func findComplementaryPDF(x *models.Document, pdfs []*models.Document, used []bool) int {
	xNum := normalizedNumber(x)
	for i, p := range pdfs {
		if used[i] || !p.IsInvoiceLike() {
			continue
		}
		if xNum != "" && normalizedNumber(p) == xNum {
			return i
		}
	}
	if x.Invoice == nil || x.Invoice.GrossValue == 0 {
		return -1
	}
	for i, p := range pdfs {
		if used[i] || !p.IsInvoiceLike() || p.Invoice == nil {
			continue
		}
		if p.Invoice.GrossValue == x.Invoice.GrossValue {
			return i
		}
	}
	return -1
}

// complementInvoice fills the XML document's missing fields from its
// PDF rendition. Extracted XML values always win.
func complementInvoice(x, p *models.Document) {
	if x.Invoice == nil || p.Invoice == nil {
		return
	}
	if x.Invoice.DueDate == nil && p.Invoice.DueDate != nil {
		d := *p.Invoice.DueDate
		x.Invoice.DueDate = &d
	}
	if x.Invoice.SupplierName == "" {
		x.Invoice.SupplierName = p.Invoice.SupplierName
	}
	if x.Invoice.GrossValue == 0 {
		x.Invoice.GrossValue = p.Invoice.GrossValue
	}
	if x.Invoice.PaymentMethod == "" {
		x.Invoice.PaymentMethod = p.Invoice.PaymentMethod
	}
}

func normalizedNumber(doc *models.Document) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, doc.DocumentNumber())
	return strings.TrimLeft(digits, "0")
}

func snippet(text string) string {
	const max = 2000
	if len(text) <= max {
		return text
	}
	return text[:max]
}

// ProcessRoot fans out over the batch folders under root with bounded
// parallelism and a per-batch wall-clock budget. A timed-out batch is
// flagged and, when a retry queue is wired, re-enqueued; it never
// cancels its siblings.
func (o *Orchestrator) ProcessRoot(ctx context.Context, root string) ([]*models.Batch, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read root folder %s: %w", root, err)
	}

	var folders []string
	for _, e := range entries {
		if e.IsDir() {
			folders = append(folders, filepath.Join(root, e.Name()))
		}
	}
	sort.Strings(folders)

	results := make([]*models.Batch, len(folders))
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, o.cfg.Concurrency)

	for i, folder := range folders {
		i, folder := i, folder
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return gctx.Err()
			}

			batchCtx, cancel := context.WithTimeout(gctx, o.cfg.Timeout)
			defer cancel()

			b, err := o.Process(batchCtx, folder)
			if err != nil {
				var timeout *TimeoutError
				if errors.As(err, &timeout) {
					o.log.Warn("batch timed out",
						logger.String("batchId", timeout.BatchID),
						logger.Duration("budget", timeout.Budget),
					)
					if o.retry != nil {
						if qErr := o.retry.EnqueueBatchRetry(ctx, folder); qErr != nil {
							o.log.Error("retry enqueue failed",
								logger.String("batchId", timeout.BatchID),
								logger.Error(qErr),
							)
						}
					}
					results[i] = b
					return nil
				}
				// One broken batch never takes the run down.
				o.log.Error("batch failed",
					logger.String("folder", folder),
					logger.Error(err),
				)
				results[i] = b
				return nil
			}
			results[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []*models.Batch
	for _, b := range results {
		if b != nil {
			out = append(out, b)
		}
	}
	return out, nil
}

package extract

import (
	"github.com/rmaraujo/fiscalflow/internal/models"
	"github.com/rmaraujo/fiscalflow/pkg/logger"
)

// Registry dispatches text to the first extractor whose CanHandle
// claims it. The slice is built once and never mutated, so a Registry
// is safe to share across concurrent workers.
type Registry struct {
	extractors []Extractor
	log        logger.Logger
}

// DefaultRegistry builds the production extractor chain. Order matters:
// layout-specific extractors precede the generic ones because the
// generic predicates are deliberately permissive, and the terminal
// service-invoice fallback accepts nearly everything that is not a
// slip or a goods invoice.
func DefaultRegistry(log logger.Logger) *Registry {
	return NewRegistry(log,
		NewTradeAssociationSlipExtractor(),
		NewEquipmentRentalInvoiceExtractor(),
		NewTelecomInvoiceExtractor(),
		NewMunicipalPortalInvoiceExtractor(),
		NewBillingPanelInvoiceExtractor(),
		NewCoopBankSlipExtractor(),
		NewBankSlipExtractor(),
		NewGoodsInvoiceExtractor(),
		NewAdminDocumentExtractor(),
		NewServiceInvoiceFallback(),
	)
}

// NewRegistry builds a registry over an explicit ordered chain.
func NewRegistry(log logger.Logger, extractors ...Extractor) *Registry {
	return &Registry{extractors: extractors, log: log.Named("registry")}
}

// Dispatch routes the text to the first matching extractor and returns
// its document. The chosen extractor's failure is that document's
// failure: the registry does not fall through to the next candidate,
// extractors validate ownership in CanHandle.
func (r *Registry) Dispatch(text, filename string) (*models.Document, error) {
	for _, ex := range r.extractors {
		if !ex.CanHandle(text, filename) {
			continue
		}
		r.log.Debug("extractor matched",
			logger.String("file", filename),
			logger.String("extractor", ex.Name()),
		)
		doc, err := ex.Extract(text, filename)
		if doc != nil {
			doc.ExtractedBy = ex.Name()
		}
		return doc, err
	}
	return nil, &RoutingError{Filename: filename}
}

// Extractors exposes the chain for inspection in tests.
func (r *Registry) Extractors() []Extractor {
	return r.extractors
}

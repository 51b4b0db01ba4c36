// Package extract turns raw document text into typed document records.
// A priority-ordered registry of layout extractors dispatches each text
// to the single best-matching extractor; ordering is a correctness
// invariant because the late generic extractors are intentionally
// permissive.
package extract

import (
	"fmt"

	"github.com/rmaraujo/fiscalflow/internal/models"
)

// Extractor recognizes one document layout. CanHandle must be cheap
// and side-effect free; extractors are expected to validate before
// claiming ownership, so an Extract failure after a positive CanHandle
// is reported, not silently retried.
type Extractor interface {
	Name() string
	CanHandle(text, filename string) bool
	Extract(text, filename string) (*models.Document, error)
}

// FieldError reports a required anchor missing from a claimed document.
// The document is still produced with the field empty; it participates
// in pairing and surfaces as NEEDS_REVIEW or DIVERGENT downstream.
type FieldError struct {
	Extractor string
	Field     string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: required field %q not found", e.Extractor, e.Field)
}

// RoutingError reports that no extractor claimed a text. Unreachable
// while the terminal fallback is registered; treated as a defect signal.
type RoutingError struct {
	Filename string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("no extractor matched %s", e.Filename)
}

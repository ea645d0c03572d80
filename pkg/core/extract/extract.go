// Package extract pulls raw financial facts out of heterogeneous sources
// (spreadsheets, HTML and Markdown tables, market-data APIs) into a RawRecord.
package extract

import (
	"context"

	"valuation_data/pkg/models"
)

// Kind identifies a family of sources that share an extraction strategy.
type Kind string

const (
	KindExcel    Kind = "excel"
	KindHTML     Kind = "html"
	KindMarkdown Kind = "markdown"
	KindAPI      Kind = "api"
)

// Source is what the orchestrator hands to an extractor.
type Source struct {
	Kind     Kind
	Locator  string // file path, or ticker for KindAPI
	Years    int    // most recent N fiscal years; 0 keeps everything found
	Company  models.Company
	Analyses []models.Analysis
}

// Requirements describes what an extractor needs before it can run.
type Requirements struct {
	Kind         Kind     `json:"kind"`
	Description  string   `json:"description"`
	Extensions   []string `json:"extensions,omitempty"`
	NeedsNetwork bool     `json:"needs_network"`
	Credentials  []string `json:"credentials,omitempty"` // config keys that must be set
}

// Extractor turns one source into a RawRecord.
// Implementations never fabricate values; anything not found stays absent.
type Extractor interface {
	Name() string
	Kind() Kind
	Extract(ctx context.Context, src Source) (*models.RawRecord, error)
	Requirements() Requirements
}

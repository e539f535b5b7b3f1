package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JakeFAU/apitosql/internal/restapi"
)

// Source is one API variant: where to list summaries, how to turn a summary
// into documents and which timestamp guards the upsert.
type Source interface {
	Name() string
	IndexURL(page *int) string
	Expand(ctx context.Context, fetcher Fetcher, summary restapi.Summary) ([]json.RawMessage, error)
	Timestamp(header restapi.Header) (time.Time, error)
}

// RentalContracts lists property units and loads every rental contract of
// each unit. The contract endpoint has no modification date, so documents are
// stamped with the current time and always replace the stored row.
type RentalContracts struct {
	endpoints restapi.Endpoints
	clock     Clock
}

// NewRentalContracts builds the rental contracts source.
func NewRentalContracts(endpoints restapi.Endpoints, clock Clock) *RentalContracts {
	return &RentalContracts{endpoints: endpoints, clock: clock}
}

// Name implements Source.
func (s *RentalContracts) Name() string { return "rental-contracts" }

// IndexURL implements Source.
func (s *RentalContracts) IndexURL(page *int) string {
	return s.endpoints.PropertyUnitsIndex(page)
}

// Expand fetches the contract list of a property unit and follows the first
// link of every entry.
func (s *RentalContracts) Expand(ctx context.Context, fetcher Fetcher, summary restapi.Summary) ([]json.RawMessage, error) {
	body, err := fetcher.Fetch(ctx, s.endpoints.RentalContracts(summary.ID))
	if err != nil {
		return nil, fmt.Errorf("rental contracts of %s: %w", summary.ID, err)
	}
	if body == nil {
		return nil, nil
	}
	contracts, err := restapi.DecodeContent(body)
	if err != nil {
		return nil, fmt.Errorf("rental contracts of %s: %w", summary.ID, err)
	}

	docs := make([]json.RawMessage, 0, len(contracts))
	for _, contract := range contracts {
		href, err := contract.FirstHref()
		if err != nil {
			return nil, fmt.Errorf("rental contracts of %s: %w", summary.ID, err)
		}
		doc, err := fetcher.Fetch(ctx, href)
		if err != nil {
			return nil, fmt.Errorf("rental contract %s: %w", href, err)
		}
		if doc != nil {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// Timestamp returns the current time.
func (s *RentalContracts) Timestamp(restapi.Header) (time.Time, error) {
	return s.clock.Now(), nil
}

// Valuations lists the DCF valuations of one project and loads each with its
// area units expanded.
type Valuations struct {
	endpoints restapi.Endpoints
	project   string
}

// NewValuations builds the valuations source for project.
func NewValuations(endpoints restapi.Endpoints, project string) *Valuations {
	return &Valuations{endpoints: endpoints, project: project}
}

// Name implements Source.
func (s *Valuations) Name() string { return "valuations" }

// IndexURL implements Source.
func (s *Valuations) IndexURL(page *int) string {
	return s.endpoints.ValuationsIndex(s.project, page)
}

// Expand fetches the single valuation behind summary.
func (s *Valuations) Expand(ctx context.Context, fetcher Fetcher, summary restapi.Summary) ([]json.RawMessage, error) {
	doc, err := fetcher.Fetch(ctx, s.endpoints.Valuation(summary.ID))
	if err != nil {
		return nil, fmt.Errorf("valuation %s: %w", summary.ID, err)
	}
	if doc == nil {
		return nil, nil
	}
	return []json.RawMessage{doc}, nil
}

// Timestamp parses the modification date of the valuation.
func (s *Valuations) Timestamp(header restapi.Header) (time.Time, error) {
	return header.ModifiedAt()
}

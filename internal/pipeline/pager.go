package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/apitosql/internal/restapi"
)

// ErrNoDiscovery is returned when the discovery request yields no data.
var ErrNoDiscovery = errors.New("discovery request returned no data")

// Listing is the concatenated content of every page of a listing endpoint.
type Listing struct {
	Summaries     []restapi.Summary
	TotalPages    int
	TotalElements int
	PagesFetched  int
}

// Pager walks a paginated listing endpoint.
type Pager struct {
	fetcher  Fetcher
	recorder Recorder
	logger   *zap.Logger
}

// NewPager constructs a Pager. recorder and logger may be nil.
func NewPager(fetcher Fetcher, recorder Recorder, logger *zap.Logger) *Pager {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pager{fetcher: fetcher, recorder: recorder, logger: logger}
}

// Collect asks the index endpoint for its page count, then fetches pages
// 0..totalPages-1 in order and concatenates their content. A page that
// yields no data contributes nothing.
func (p *Pager) Collect(ctx context.Context, src Source) (Listing, error) {
	discoveryURL := src.IndexURL(nil)
	body, err := p.fetcher.Fetch(ctx, discoveryURL)
	if err != nil {
		return Listing{}, fmt.Errorf("discovery request: %w", err)
	}
	if body == nil {
		return Listing{}, fmt.Errorf("%w: %s", ErrNoDiscovery, discoveryURL)
	}
	first, err := restapi.DecodeDiscovery(body)
	if err != nil {
		return Listing{}, fmt.Errorf("discovery response: %w", err)
	}

	listing := Listing{TotalPages: *first.Page.TotalPages}
	if first.Page.TotalElements != nil {
		listing.TotalElements = *first.Page.TotalElements
	}
	p.logger.Info("discovered pages",
		zap.Int("total_pages", listing.TotalPages),
		zap.Int("total_elements", listing.TotalElements),
	)

	for page := 0; page < listing.TotalPages; page++ {
		pageURL := src.IndexURL(&page)
		body, err := p.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			return listing, fmt.Errorf("page %d: %w", page, err)
		}
		if body == nil {
			p.logger.Warn("page returned no data", zap.Int("page", page), zap.String("url", pageURL))
			continue
		}
		content, err := restapi.DecodeContent(body)
		if err != nil {
			return listing, fmt.Errorf("page %d: %w", page, err)
		}
		listing.Summaries = append(listing.Summaries, content...)
		listing.PagesFetched++
		p.recorder.ObservePage()
		p.logger.Debug("page fetched", zap.Int("page", page), zap.Int("summaries", len(content)))
	}
	return listing, nil
}

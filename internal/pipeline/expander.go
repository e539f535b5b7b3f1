package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/apitosql/internal/restapi"
)

// Expander turns summaries into full documents.
type Expander struct {
	fetcher    Fetcher
	maxEntries int
	recorder   Recorder
	logger     *zap.Logger
}

// NewExpander constructs an Expander that processes at most maxEntries
// summaries. recorder and logger may be nil.
func NewExpander(fetcher Fetcher, maxEntries int, recorder Recorder, logger *zap.Logger) *Expander {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Expander{fetcher: fetcher, maxEntries: maxEntries, recorder: recorder, logger: logger}
}

// Expand fetches the documents of the first maxEntries summaries, in order.
// Summaries beyond the cap are ignored. Documents without an id, or whose
// timestamp cannot be determined, are logged and skipped.
func (e *Expander) Expand(ctx context.Context, src Source, summaries []restapi.Summary) ([]Document, error) {
	if e.maxEntries >= 0 && len(summaries) > e.maxEntries {
		e.logger.Debug("ignoring summaries beyond cap",
			zap.Int("summaries", len(summaries)),
			zap.Int("max_entries", e.maxEntries),
		)
		summaries = summaries[:e.maxEntries]
	}

	var docs []Document
	for i, summary := range summaries {
		if summary.ID == "" {
			return docs, fmt.Errorf("summary %d: %w: id", i, restapi.ErrMissingField)
		}
		raws, err := src.Expand(ctx, e.fetcher, summary)
		if err != nil {
			return docs, err
		}
		for _, raw := range raws {
			header, err := restapi.DecodeHeader(raw)
			if err != nil {
				e.logger.Warn("skipping document", zap.String("summary_id", summary.ID), zap.Error(err))
				continue
			}
			ts, err := src.Timestamp(header)
			if err != nil {
				e.logger.Warn("skipping document", zap.String("id", header.ID), zap.Error(err))
				continue
			}
			docs = append(docs, Document{ID: header.ID, ModifiedAt: ts, Raw: raw})
			e.recorder.ObserveDocument()
		}
	}
	e.logger.Info("documents expanded", zap.Int("summaries", len(summaries)), zap.Int("documents", len(docs)))
	return docs, nil
}

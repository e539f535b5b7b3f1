package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/apitosql/internal/store"
)

// ErrUnreachable is returned when the liveness ping does not answer 200.
var ErrUnreachable = errors.New("api unreachable")

const archiveContentType = "application/json"

// Config controls Pipeline behavior.
type Config struct {
	RunID      string
	PingURL    string
	MaxEntries int
	// AbortOnError stops the run at the first failed upsert instead of
	// counting it and moving on.
	AbortOnError  bool
	ArchivePrefix string
	NotifyTopic   string
	Flatten       bool
}

// Deps are the collaborators of a Pipeline. Archive, Publisher, Flattener
// and Recorder are optional.
type Deps struct {
	Fetcher   Fetcher
	Source    Source
	Sink      Sink
	Archive   BlobStore
	Publisher Publisher
	Flattener Flattener
	Recorder  Recorder
	Clock     Clock
}

// Summary describes a finished run.
type Summary struct {
	RunID           string    `json:"run_id"`
	Variant         string    `json:"variant"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	DurationSeconds float64   `json:"duration_seconds"`
	TotalPages      int       `json:"total_pages"`
	PagesFetched    int       `json:"pages_fetched"`
	Summaries       int       `json:"summaries"`
	Documents       int       `json:"documents"`
	Archived        int       `json:"archived"`
	Inserted        int       `json:"inserted"`
	Updated         int       `json:"updated"`
	Stale           int       `json:"stale"`
	Failed          int       `json:"failed"`
	Flattened       bool      `json:"flattened"`
}

// Result is what Run hands back to the caller.
type Result struct {
	Documents []Document
	Summary   Summary
}

// Pipeline executes one load for one Source.
type Pipeline struct {
	deps     Deps
	cfg      Config
	pager    *Pager
	expander *Expander
	logger   *zap.Logger
}

// New constructs a Pipeline.
func New(deps Deps, cfg Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	logger = logger.With(zap.String("run_id", cfg.RunID), zap.String("variant", deps.Source.Name()))
	return &Pipeline{
		deps:     deps,
		cfg:      cfg,
		pager:    NewPager(deps.Fetcher, deps.Recorder, logger.Named("pager")),
		expander: NewExpander(deps.Fetcher, cfg.MaxEntries, deps.Recorder, logger.Named("expander")),
		logger:   logger,
	}
}

// Run pings the API, collects and expands all summaries, then archives and
// upserts every document in fetch order. The returned Result is populated as
// far as the run got, also when an error is returned.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	start := p.deps.Clock.Now()
	result := Result{Summary: Summary{
		RunID:     p.cfg.RunID,
		Variant:   p.deps.Source.Name(),
		StartedAt: start,
	}}
	defer func() {
		elapsed := p.deps.Clock.Now().Sub(start)
		p.deps.Recorder.ObserveRun(elapsed)
		p.logger.Info("total runtime", zap.Duration("elapsed", elapsed))
	}()

	if err := p.ping(ctx); err != nil {
		return result, err
	}

	listing, err := p.pager.Collect(ctx, p.deps.Source)
	result.Summary.TotalPages = listing.TotalPages
	result.Summary.PagesFetched = listing.PagesFetched
	result.Summary.Summaries = len(listing.Summaries)
	if err != nil {
		return result, fmt.Errorf("collect %s: %w", p.deps.Source.Name(), err)
	}

	docs, err := p.expander.Expand(ctx, p.deps.Source, listing.Summaries)
	result.Documents = docs
	result.Summary.Documents = len(docs)
	if err != nil {
		return result, fmt.Errorf("expand %s: %w", p.deps.Source.Name(), err)
	}

	if err := p.persist(ctx, docs, &result.Summary); err != nil {
		return result, err
	}

	if p.cfg.Flatten && p.deps.Flattener != nil {
		if err := p.deps.Flattener.Flatten(ctx); err != nil {
			p.logger.Warn("flatten failed", zap.Error(err))
		} else {
			result.Summary.Flattened = true
		}
	}

	result.Summary.FinishedAt = p.deps.Clock.Now()
	result.Summary.DurationSeconds = result.Summary.FinishedAt.Sub(start).Seconds()
	p.notify(ctx, result.Summary)
	p.logger.Info("run finished",
		zap.Int("documents", result.Summary.Documents),
		zap.Int("inserted", result.Summary.Inserted),
		zap.Int("updated", result.Summary.Updated),
		zap.Int("stale", result.Summary.Stale),
		zap.Int("failed", result.Summary.Failed),
	)
	return result, nil
}

func (p *Pipeline) ping(ctx context.Context) error {
	status, err := p.deps.Fetcher.Status(ctx, p.cfg.PingURL)
	if err != nil {
		return fmt.Errorf("%w: ping %s: %w", ErrUnreachable, p.cfg.PingURL, err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: ping %s returned status %d", ErrUnreachable, p.cfg.PingURL, status)
	}
	p.logger.Debug("ping ok", zap.String("url", p.cfg.PingURL))
	return nil
}

func (p *Pipeline) persist(ctx context.Context, docs []Document, summary *Summary) error {
	sinkLogger := p.logger.Named("sink")
	for _, doc := range docs {
		if p.archive(ctx, doc) {
			summary.Archived++
		}

		outcome, err := p.deps.Sink.Upsert(ctx, doc)
		if err != nil {
			summary.Failed++
			p.deps.Recorder.ObserveUpsert(string(store.OutcomeFailed))
			sinkLogger.Error("upsert failed", zap.String("id", doc.ID), zap.Error(err))
			if ctx.Err() != nil || p.cfg.AbortOnError {
				return fmt.Errorf("upsert %s: %w", doc.ID, err)
			}
			continue
		}

		p.deps.Recorder.ObserveUpsert(string(outcome))
		switch outcome {
		case store.OutcomeInserted:
			summary.Inserted++
		case store.OutcomeUpdated:
			summary.Updated++
		case store.OutcomeStale:
			summary.Stale++
		}
		sinkLogger.Debug("document stored", zap.String("id", doc.ID), zap.String("outcome", string(outcome)))
	}
	return nil
}

func (p *Pipeline) archive(ctx context.Context, doc Document) bool {
	if p.deps.Archive == nil {
		return false
	}
	blobPath := p.archivePath(doc.ID)
	uri, err := p.deps.Archive.PutObject(ctx, blobPath, archiveContentType, bytes.NewReader(doc.Raw))
	if err != nil {
		p.logger.Warn("archive failed", zap.String("id", doc.ID), zap.String("path", blobPath), zap.Error(err))
		return false
	}
	p.logger.Debug("document archived", zap.String("id", doc.ID), zap.String("uri", uri))
	return true
}

func (p *Pipeline) archivePath(id string) string {
	name := url.PathEscape(id) + ".json"
	prefix := strings.Trim(p.cfg.ArchivePrefix, "/")
	if prefix == "" {
		return path.Join(p.cfg.RunID, name)
	}
	return path.Join(prefix, p.cfg.RunID, name)
}

func (p *Pipeline) notify(ctx context.Context, summary Summary) {
	if p.deps.Publisher == nil || p.cfg.NotifyTopic == "" {
		return
	}
	msgID, err := p.deps.Publisher.Publish(ctx, p.cfg.NotifyTopic, summary)
	if err != nil {
		p.logger.Warn("publish run summary failed", zap.String("topic", p.cfg.NotifyTopic), zap.Error(err))
		return
	}
	p.logger.Info("run summary published", zap.String("topic", p.cfg.NotifyTopic), zap.String("message_id", msgID))
}

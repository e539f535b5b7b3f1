// Package pipeline runs one load: liveness ping, paging through a listing
// endpoint, expanding every summary into full documents and upserting them.
//
// The two API variants plug in as a Source. Everything the pipeline talks to
// is an interface so tests run against in-memory fakes.
package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/JakeFAU/apitosql/internal/store"
)

// Document is one entity document ready to be stored.
type Document = store.Document

// Fetcher issues authenticated GET requests. Fetch returns nil, nil when the
// response carries no usable data.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (json.RawMessage, error)
	Status(ctx context.Context, url string) (int, error)
}

// Sink persists documents with last-write-wins semantics.
type Sink interface {
	Upsert(ctx context.Context, doc Document) (store.Outcome, error)
}

// Flattener derives reporting tables from stored documents.
type Flattener interface {
	Flatten(ctx context.Context) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes the run summary to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Recorder receives pipeline counters.
type Recorder interface {
	ObservePage()
	ObserveDocument()
	ObserveUpsert(outcome string)
	ObserveRun(duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObservePage()             {}
func (nopRecorder) ObserveDocument()         {}
func (nopRecorder) ObserveUpsert(string)     {}
func (nopRecorder) ObserveRun(time.Duration) {}

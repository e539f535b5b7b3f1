package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/apitosql/internal/restapi"
	"github.com/JakeFAU/apitosql/internal/store"
)

const testBase = "https://api.test/ws"

// fakeFetcher serves canned bodies by URL. A URL mapped to "" yields no data;
// an unmapped URL is a fatal error.
type fakeFetcher struct {
	mu         sync.Mutex
	bodies     map[string]string
	errs       map[string]error
	pingStatus int
	pingErr    error
	calls      []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		bodies:     map[string]string{},
		errs:       map[string]error{},
		pingStatus: 200,
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	body, ok := f.bodies[url]
	if !ok {
		return nil, fmt.Errorf("unexpected url %s", url)
	}
	if body == "" {
		return nil, nil
	}
	return json.RawMessage(body), nil
}

func (f *fakeFetcher) Status(_ context.Context, url string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	return f.pingStatus, f.pingErr
}

func (f *fakeFetcher) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type countingRecorder struct {
	pages     int
	documents int
	upserts   map[string]int
	runs      int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{upserts: map[string]int{}}
}

func (r *countingRecorder) ObservePage()               { r.pages++ }
func (r *countingRecorder) ObserveDocument()           { r.documents++ }
func (r *countingRecorder) ObserveUpsert(o string)     { r.upserts[o]++ }
func (r *countingRecorder) ObserveRun(_ time.Duration) { r.runs++ }

type erroringSink struct {
	failOn map[string]error
	inner  Sink
}

func (s erroringSink) Upsert(ctx context.Context, doc Document) (store.Outcome, error) {
	if err, ok := s.failOn[doc.ID]; ok {
		return "", err
	}
	return s.inner.Upsert(ctx, doc)
}

type recordingPublisher struct {
	topic   string
	payload any
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.topic = topic
	p.payload = payload
	return "msg-1", p.err
}

type stubFlattener struct {
	calls int
	err   error
}

func (f *stubFlattener) Flatten(context.Context) error {
	f.calls++
	return f.err
}

func endpoints() restapi.Endpoints {
	return restapi.NewEndpoints(testBase, 100)
}

func intPtr(i int) *int { return &i }

package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/apitosql/internal/store"
)

// Row mirrors one stored row of the document table.
type Row struct {
	ID         string
	Payload    json.RawMessage
	ModifiedAt time.Time
}

// DocumentStore provides an in-memory last-write-wins document table for
// dry runs and tests.
type DocumentStore struct {
	mu   sync.RWMutex
	rows map[string]Row
}

// NewDocumentStore constructs a DocumentStore.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{rows: make(map[string]Row)}
}

// Upsert inserts doc or replaces the stored row when doc is strictly newer.
func (s *DocumentStore) Upsert(ctx context.Context, doc store.Document) (store.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := doc.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	modifiedAt := doc.StoredAt()
	existing, ok := s.rows[doc.ID]
	if ok && !modifiedAt.After(existing.ModifiedAt) {
		return store.OutcomeStale, nil
	}
	s.rows[doc.ID] = Row{
		ID:         doc.ID,
		Payload:    append(json.RawMessage(nil), doc.Raw...),
		ModifiedAt: modifiedAt,
	}
	if ok {
		return store.OutcomeUpdated, nil
	}
	return store.OutcomeInserted, nil
}

// Get returns a copy of the row stored for id.
func (s *DocumentStore) Get(id string) (Row, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok {
		return Row{}, false
	}
	row.Payload = append(json.RawMessage(nil), row.Payload...)
	return row, true
}

// IDs lists the stored ids in sorted order.
func (s *DocumentStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.rows))
	for id := range s.rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

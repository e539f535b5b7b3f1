package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrInvalidDocument signals a document that cannot be stored.
var ErrInvalidDocument = errors.New("invalid document")

// MaxIDLength mirrors the width of the json_id column, in characters.
const MaxIDLength = 50

// Document is one entity document ready to be stored.
type Document struct {
	// ID is the entity id and the upsert key.
	ID string
	// ModifiedAt guards the upsert: a stored row is only replaced by a
	// strictly newer document. Stores compare it at microsecond precision,
	// the resolution of a Postgres TIMESTAMP.
	ModifiedAt time.Time
	// Raw is the document exactly as the API returned it.
	Raw json.RawMessage
}

// Validate checks the fields every store relies on.
func (d Document) Validate() error {
	switch {
	case strings.TrimSpace(d.ID) == "":
		return fmt.Errorf("%w: id is required", ErrInvalidDocument)
	case utf8.RuneCountInString(d.ID) > MaxIDLength:
		return fmt.Errorf("%w: id %q exceeds %d characters", ErrInvalidDocument, d.ID, MaxIDLength)
	case d.ModifiedAt.IsZero():
		return fmt.Errorf("%w: modification time is required for %q", ErrInvalidDocument, d.ID)
	case !json.Valid(d.Raw):
		return fmt.Errorf("%w: payload of %q is not JSON", ErrInvalidDocument, d.ID)
	}
	return nil
}

// StoredAt returns ModifiedAt as stores keep it, truncated to microseconds.
func (d Document) StoredAt() time.Time {
	return d.ModifiedAt.Truncate(time.Microsecond)
}

// Outcome reports what an upsert did.
type Outcome string

// Upsert outcomes.
const (
	// OutcomeInserted means the id was seen for the first time.
	OutcomeInserted Outcome = "inserted"
	// OutcomeUpdated means a stored row was replaced by a newer document.
	OutcomeUpdated Outcome = "updated"
	// OutcomeStale means the stored row was at least as new; nothing changed.
	OutcomeStale Outcome = "stale"
	// OutcomeFailed is reported by callers when Upsert returned an error.
	OutcomeFailed Outcome = "failed"
)

// DocumentRepository persists entity documents with last-write-wins semantics.
type DocumentRepository interface {
	// Upsert inserts doc when its id is new and replaces the stored row only
	// when doc.ModifiedAt is strictly after the stored timestamp.
	Upsert(ctx context.Context, doc Document) (Outcome, error)
}

// Package uuid mints the run id that ties the log lines, archive paths and
// notification of one load together.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// NewRunID returns a UUIDv7 string. V7 ids sort by creation time, so archive
// prefixes keyed by run id list in run order.
func NewRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id.String(), nil
}

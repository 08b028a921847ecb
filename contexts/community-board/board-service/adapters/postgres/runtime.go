package postgresadapter

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SystemClock stamps rows with wall-clock UTC time.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// TimeOrderedIDs issues UUIDv7 values so post, vote and outbox keys sort by
// creation time inside the btree indexes.
type TimeOrderedIDs struct{}

func (TimeOrderedIDs) NewID(_ context.Context) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

package recorder

import (
	"context"

	"codeberg.org/mutker/umctl/internal/meter"
	"github.com/google/uuid"
)

// Collector stores decoded readings.
type Collector interface {
	Record(ctx context.Context, reading *Reading) error
	Close() error
}

// Repository is the storage behind a Collector.
type Repository interface {
	Record(reading *Reading) error
	Close() error
}

// Reading is one snapshot tagged with the connection it came from.
type Reading struct {
	SessionID uuid.UUID
	Snapshot  meter.Snapshot
}

package ports

import (
	"context"

	"github.com/andrewrweber/pi-air/internal/domain"
)

// ReadingSink persists aggregated readings. Write-only from the
// pipeline's perspective; a failed store is logged and the reading is
// lost, never fatal.
type ReadingSink interface {
	Store(ctx context.Context, r *domain.AggregatedReading) error
	Name() string
}

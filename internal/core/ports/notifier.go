package ports

import (
	"context"

	"guildwarden/internal/core/domain"
)

// ActivitySource probes one external platform for live/upload activity on a
// watched target. Implementations live in infrastructure.
type ActivitySource interface {
	// Fetch returns the activities currently visible on the target. An
	// empty slice means nothing live; errors are transient probe failures.
	Fetch(ctx context.Context, target domain.NotifierTarget) ([]domain.Activity, error)
}

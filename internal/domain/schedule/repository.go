package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the persistence contract for schedule entries. One
// logical store exists per tier; implementations scope every query by tier.
type Repository interface {
	// FindByID retrieves an entry by its unique ID within a tier.
	FindByID(ctx context.Context, tier string, id uuid.UUID) (*Entry, error)

	// ListByTier retrieves every non-purged entry for a tier.
	ListByTier(ctx context.Context, tier string) ([]*Entry, error)

	// ListScheduled retrieves entries with status scheduled for a tier.
	ListScheduled(ctx context.Context, tier string) ([]*Entry, error)

	// Save persists a new entry.
	Save(ctx context.Context, entry *Entry) error

	// Update persists changes to an existing entry.
	Update(ctx context.Context, entry *Entry) error

	// PurgeHistory deletes terminal entries and scheduled entries whose
	// window ended before the cutoff. Returns the number of rows removed.
	PurgeHistory(ctx context.Context, tier string, endedBefore time.Time) (int, error)

	// Transact runs fn against a transactional view of the repository. The
	// admission check and the resulting write must share one serializable
	// transaction so concurrent calls cannot jointly overbook a window.
	Transact(ctx context.Context, fn func(Repository) error) error
}

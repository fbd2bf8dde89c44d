package activation

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence operations for activation records.
type Repository interface {
	// InsertPending persists a freshly ingested record. The store enforces a
	// uniqueness constraint on SourceEventID; when a record with the same
	// source event id already exists the call reports inserted=false and no
	// error, which is what makes repeated webhook delivery safe.
	InsertPending(ctx context.Context, record *Record) (inserted bool, err error)

	// FindByID retrieves a record by its unique ID.
	FindByID(ctx context.Context, id uuid.UUID) (*Record, error)

	// FindBySourceEventID retrieves a record by the upstream webhook event id.
	FindBySourceEventID(ctx context.Context, sourceEventID string) (*Record, error)

	// ListRecent retrieves the most recently updated records (admin dashboard).
	ListRecent(ctx context.Context, limit int) ([]*Record, error)

	// ListByStatus retrieves records with the given status, newest first.
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Record, error)

	// Update persists changes to an existing record.
	Update(ctx context.Context, record *Record) error
}

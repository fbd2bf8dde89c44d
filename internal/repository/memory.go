package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paris-agenda/service-promotion/internal/domain"
	activationDomain "github.com/paris-agenda/service-promotion/internal/domain/activation"
	scheduleDomain "github.com/paris-agenda/service-promotion/internal/domain/schedule"
)

// MemoryScheduleRepository is the in-memory schedule.Repository used in tests
// and when development runs without a database. A single mutex serializes
// every operation, which satisfies the per-tier linearizability requirement
// trivially.
type MemoryScheduleRepository struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*scheduleDomain.Entry
}

// NewMemoryScheduleRepository creates an empty in-memory schedule store.
func NewMemoryScheduleRepository() *MemoryScheduleRepository {
	return &MemoryScheduleRepository{entries: map[uuid.UUID]*scheduleDomain.Entry{}}
}

func cloneEntry(e *scheduleDomain.Entry) *scheduleDomain.Entry {
	return scheduleDomain.Reconstitute(
		e.ID(), e.Tier(), e.EventKey(), e.StartAt(), e.DurationHours(),
		e.Status(), e.CreatedAt(), e.UpdatedAt(),
	)
}

// FindByID retrieves an entry by its unique ID within a tier.
func (r *MemoryScheduleRepository) FindByID(_ context.Context, tier string, id uuid.UUID) (*scheduleDomain.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findByIDLocked(tier, id)
}

func (r *MemoryScheduleRepository) findByIDLocked(tier string, id uuid.UUID) (*scheduleDomain.Entry, error) {
	e, ok := r.entries[id]
	if !ok || e.Tier() != tier {
		return nil, domain.NewNotFoundError("schedule entry", id.String())
	}
	return cloneEntry(e), nil
}

// ListByTier retrieves every entry for a tier, ordered by start.
func (r *MemoryScheduleRepository) ListByTier(_ context.Context, tier string) ([]*scheduleDomain.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked(tier, false), nil
}

// ListScheduled retrieves scheduled entries for a tier, ordered by start.
func (r *MemoryScheduleRepository) ListScheduled(_ context.Context, tier string) ([]*scheduleDomain.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked(tier, true), nil
}

func (r *MemoryScheduleRepository) listLocked(tier string, scheduledOnly bool) []*scheduleDomain.Entry {
	var result []*scheduleDomain.Entry
	for _, e := range r.entries {
		if e.Tier() != tier {
			continue
		}
		if scheduledOnly && e.Status() != scheduleDomain.StatusScheduled {
			continue
		}
		result = append(result, cloneEntry(e))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartAt().Before(result[j].StartAt()) })
	return result
}

// Save persists a new entry.
func (r *MemoryScheduleRepository) Save(_ context.Context, entry *scheduleDomain.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.ID()] = cloneEntry(entry)
	return nil
}

// Update persists changes to an existing entry.
func (r *MemoryScheduleRepository) Update(_ context.Context, entry *scheduleDomain.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[entry.ID()]; !ok {
		return domain.NewNotFoundError("schedule entry", entry.ID().String())
	}
	r.entries[entry.ID()] = cloneEntry(entry)
	return nil
}

// PurgeHistory removes terminal entries and entries ended before the cutoff.
func (r *MemoryScheduleRepository) PurgeHistory(_ context.Context, tier string, endedBefore time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	purged := 0
	for id, e := range r.entries {
		if e.Tier() != tier {
			continue
		}
		terminal := e.Status() == scheduleDomain.StatusCancelled || e.Status() == scheduleDomain.StatusSuperseded
		if terminal || e.EndAt().Before(endedBefore) {
			delete(r.entries, id)
			purged++
		}
	}
	return purged, nil
}

// Transact serializes fn behind the store mutex. The nested repository view
// shares the map but skips re-locking.
func (r *MemoryScheduleRepository) Transact(_ context.Context, fn func(scheduleDomain.Repository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(&memoryScheduleTx{repo: r})
}

// memoryScheduleTx is the in-transaction view handed to Transact callbacks.
type memoryScheduleTx struct {
	repo *MemoryScheduleRepository
}

func (t *memoryScheduleTx) FindByID(_ context.Context, tier string, id uuid.UUID) (*scheduleDomain.Entry, error) {
	return t.repo.findByIDLocked(tier, id)
}

func (t *memoryScheduleTx) ListByTier(_ context.Context, tier string) ([]*scheduleDomain.Entry, error) {
	return t.repo.listLocked(tier, false), nil
}

func (t *memoryScheduleTx) ListScheduled(_ context.Context, tier string) ([]*scheduleDomain.Entry, error) {
	return t.repo.listLocked(tier, true), nil
}

func (t *memoryScheduleTx) Save(_ context.Context, entry *scheduleDomain.Entry) error {
	t.repo.entries[entry.ID()] = cloneEntry(entry)
	return nil
}

func (t *memoryScheduleTx) Update(_ context.Context, entry *scheduleDomain.Entry) error {
	if _, ok := t.repo.entries[entry.ID()]; !ok {
		return domain.NewNotFoundError("schedule entry", entry.ID().String())
	}
	t.repo.entries[entry.ID()] = cloneEntry(entry)
	return nil
}

func (t *memoryScheduleTx) PurgeHistory(_ context.Context, tier string, endedBefore time.Time) (int, error) {
	purged := 0
	for id, e := range t.repo.entries {
		if e.Tier() != tier {
			continue
		}
		terminal := e.Status() == scheduleDomain.StatusCancelled || e.Status() == scheduleDomain.StatusSuperseded
		if terminal || e.EndAt().Before(endedBefore) {
			delete(t.repo.entries, id)
			purged++
		}
	}
	return purged, nil
}

func (t *memoryScheduleTx) Transact(_ context.Context, fn func(scheduleDomain.Repository) error) error {
	// Already inside the store lock; nested transactions just run.
	return fn(t)
}

// MemoryActivationRepository is the in-memory activation.Repository.
type MemoryActivationRepository struct {
	mu       sync.Mutex
	records  map[uuid.UUID]*activationDomain.Record
	bySource map[string]uuid.UUID
}

// NewMemoryActivationRepository creates an empty in-memory activation store.
func NewMemoryActivationRepository() *MemoryActivationRepository {
	return &MemoryActivationRepository{
		records:  map[uuid.UUID]*activationDomain.Record{},
		bySource: map[string]uuid.UUID{},
	}
}

func cloneRecord(rec *activationDomain.Record) *activationDomain.Record {
	meta := make(map[string]string, len(rec.Metadata()))
	for k, v := range rec.Metadata() {
		meta[k] = v
	}
	return activationDomain.Reconstitute(
		rec.ID(),
		rec.SourceEventID(), rec.PackageKey(), rec.PaymentLinkID(), rec.CustomerEmail(), rec.CustomerName(), rec.EventName(), rec.EventURL(),
		rec.AmountTotalCents(),
		rec.Currency(),
		meta,
		rec.Status(),
		rec.FulfilledEventKey(), rec.FulfilledTier(),
		rec.FulfilledStartAt(), rec.FulfilledEndAt(), rec.FulfilledAt(),
		rec.PartnerStatsToken(), rec.Notes(),
		rec.CreatedAt(), rec.UpdatedAt(),
	)
}

// InsertPending persists a fresh record unless the source event id was seen
// before.
func (r *MemoryActivationRepository) InsertPending(_ context.Context, record *activationDomain.Record) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bySource[record.SourceEventID()]; exists {
		return false, nil
	}
	r.records[record.ID()] = cloneRecord(record)
	r.bySource[record.SourceEventID()] = record.ID()
	return true, nil
}

// FindByID retrieves a record by its unique ID.
func (r *MemoryActivationRepository) FindByID(_ context.Context, id uuid.UUID) (*activationDomain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, domain.NewNotFoundError("activation", id.String())
	}
	return cloneRecord(rec), nil
}

// FindBySourceEventID retrieves a record by the upstream webhook event id.
func (r *MemoryActivationRepository) FindBySourceEventID(_ context.Context, sourceEventID string) (*activationDomain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.bySource[sourceEventID]
	if !ok {
		return nil, domain.NewNotFoundError("activation", sourceEventID)
	}
	return cloneRecord(r.records[id]), nil
}

// ListRecent retrieves the most recently updated records.
func (r *MemoryActivationRepository) ListRecent(_ context.Context, limit int) ([]*activationDomain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*activationDomain.Record, 0, len(r.records))
	for _, rec := range r.records {
		all = append(all, cloneRecord(rec))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt().After(all[j].UpdatedAt()) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// ListByStatus retrieves records with the given status, newest first.
func (r *MemoryActivationRepository) ListByStatus(_ context.Context, status activationDomain.Status, limit int) ([]*activationDomain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*activationDomain.Record
	for _, rec := range r.records {
		if rec.Status() == status {
			matched = append(matched, cloneRecord(rec))
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt().After(matched[j].CreatedAt()) })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// Update persists changes to an existing record.
func (r *MemoryActivationRepository) Update(_ context.Context, record *activationDomain.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[record.ID()]; !ok {
		return domain.NewNotFoundError("activation", record.ID().String())
	}
	r.records[record.ID()] = cloneRecord(record)
	return nil
}

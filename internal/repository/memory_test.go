package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paris-agenda/service-promotion/internal/domain"
	activationDomain "github.com/paris-agenda/service-promotion/internal/domain/activation"
	scheduleDomain "github.com/paris-agenda/service-promotion/internal/domain/schedule"
	"github.com/paris-agenda/service-promotion/internal/repository"
)

func futureEntry(tier, eventKey string, startOffset time.Duration, hours int) *scheduleDomain.Entry {
	start := time.Now().UTC().Add(startOffset)
	return scheduleDomain.NewEntry(tier, eventKey, start, hours)
}

func TestMemorySchedule_RoundTripAndTierIsolation(t *testing.T) {
	repo := repository.NewMemoryScheduleRepository()
	ctx := context.Background()

	entry := futureEntry("spotlight", "event-a", time.Hour, 24)
	require.NoError(t, repo.Save(ctx, entry))

	found, err := repo.FindByID(ctx, "spotlight", entry.ID())
	require.NoError(t, err)
	assert.Equal(t, entry.EventKey(), found.EventKey())
	assert.True(t, entry.StartAt().Equal(found.StartAt()))

	// The same id under another tier does not resolve.
	_, err = repo.FindByID(ctx, "promoted", entry.ID())
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))

	listed, err := repo.ListByTier(ctx, "spotlight")
	require.NoError(t, err)
	assert.Len(t, listed, 1)
	listed, err = repo.ListByTier(ctx, "promoted")
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestMemorySchedule_ReturnsDetachedCopies(t *testing.T) {
	repo := repository.NewMemoryScheduleRepository()
	ctx := context.Background()

	entry := futureEntry("spotlight", "event-a", time.Hour, 24)
	require.NoError(t, repo.Save(ctx, entry))

	// Mutating a fetched aggregate must not leak into the store until Update.
	found, err := repo.FindByID(ctx, "spotlight", entry.ID())
	require.NoError(t, err)
	found.Cancel()

	fresh, err := repo.FindByID(ctx, "spotlight", entry.ID())
	require.NoError(t, err)
	assert.Equal(t, scheduleDomain.StatusScheduled, fresh.Status())

	require.NoError(t, repo.Update(ctx, found))
	fresh, err = repo.FindByID(ctx, "spotlight", entry.ID())
	require.NoError(t, err)
	assert.Equal(t, scheduleDomain.StatusCancelled, fresh.Status())
}

func TestMemorySchedule_ListScheduledOrdersByStart(t *testing.T) {
	repo := repository.NewMemoryScheduleRepository()
	ctx := context.Background()

	later := futureEntry("spotlight", "event-b", 48*time.Hour, 24)
	earlier := futureEntry("spotlight", "event-a", time.Hour, 24)
	cancelled := futureEntry("spotlight", "event-c", 12*time.Hour, 24)
	cancelled.Cancel()

	for _, e := range []*scheduleDomain.Entry{later, earlier, cancelled} {
		require.NoError(t, repo.Save(ctx, e))
	}

	scheduled, err := repo.ListScheduled(ctx, "spotlight")
	require.NoError(t, err)
	require.Len(t, scheduled, 2)
	assert.Equal(t, "event-a", scheduled[0].EventKey())
	assert.Equal(t, "event-b", scheduled[1].EventKey())
}

func TestMemorySchedule_PurgeHistory(t *testing.T) {
	repo := repository.NewMemoryScheduleRepository()
	ctx := context.Background()

	live := futureEntry("spotlight", "event-a", time.Hour, 24)
	cancelled := futureEntry("spotlight", "event-b", time.Hour, 24)
	cancelled.Cancel()
	ended := scheduleDomain.NewEntry("spotlight", "event-c", time.Now().UTC().Add(-200*time.Hour), 24)

	for _, e := range []*scheduleDomain.Entry{live, cancelled, ended} {
		require.NoError(t, repo.Save(ctx, e))
	}

	purged, err := repo.PurgeHistory(ctx, "spotlight", time.Now().UTC().Add(-72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, purged)

	remaining, err := repo.ListByTier(ctx, "spotlight")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "event-a", remaining[0].EventKey())
}

func TestMemorySchedule_TransactSerializes(t *testing.T) {
	repo := repository.NewMemoryScheduleRepository()
	ctx := context.Background()

	// Many goroutines each admit-then-save under capacity 1; the lock held by
	// Transact must leave exactly one winner.
	var wg sync.WaitGroup
	wins := make(chan uuid.UUID, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry := futureEntry("spotlight", "event-a", time.Hour, 24)
			_ = repo.Transact(ctx, func(tx scheduleDomain.Repository) error {
				others, err := tx.ListScheduled(ctx, "spotlight")
				if err != nil {
					return err
				}
				if len(others) > 0 {
					return domain.NewOverCapacityError("spotlight", 1)
				}
				if err := tx.Save(ctx, entry); err != nil {
					return err
				}
				wins <- entry.ID()
				return nil
			})
		}()
	}
	wg.Wait()
	close(wins)

	var winners []uuid.UUID
	for id := range wins {
		winners = append(winners, id)
	}
	require.Len(t, winners, 1)

	stored, err := repo.ListScheduled(ctx, "spotlight")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, winners[0], stored[0].ID())
}

func TestMemoryActivation_InsertPendingIsIdempotent(t *testing.T) {
	repo := repository.NewMemoryActivationRepository()
	ctx := context.Background()

	record := activationDomain.NewRecord("evt_1", "spotlight-week", "", "a@b.c", "", "", "", 4900, "eur", nil)
	inserted, err := repo.InsertPending(ctx, record)
	require.NoError(t, err)
	assert.True(t, inserted)

	duplicate := activationDomain.NewRecord("evt_1", "spotlight-week", "", "a@b.c", "", "", "", 4900, "eur", nil)
	inserted, err = repo.InsertPending(ctx, duplicate)
	require.NoError(t, err)
	assert.False(t, inserted)

	all, err := repo.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	found, err := repo.FindBySourceEventID(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, record.ID(), found.ID())
}

func TestMemoryActivation_InsertPendingConcurrent(t *testing.T) {
	repo := repository.NewMemoryActivationRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	insertedCount := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record := activationDomain.NewRecord("evt_race", "spotlight-week", "", "", "", "", "", 0, "eur", nil)
			inserted, err := repo.InsertPending(ctx, record)
			if !assert.NoError(t, err) {
				return
			}
			if inserted {
				mu.Lock()
				insertedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, insertedCount)
	all, err := repo.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMemoryActivation_ListsAndUpdate(t *testing.T) {
	repo := repository.NewMemoryActivationRepository()
	ctx := context.Background()

	first := activationDomain.NewRecord("evt_a", "p", "", "", "", "", "", 0, "eur", nil)
	second := activationDomain.NewRecord("evt_b", "p", "", "", "", "", "", 0, "eur", nil)
	for _, r := range []*activationDomain.Record{first, second} {
		inserted, err := repo.InsertPending(ctx, r)
		require.NoError(t, err)
		require.True(t, inserted)
	}

	require.NoError(t, second.SetStatus(activationDomain.StatusRejected, "spam"))
	require.NoError(t, repo.Update(ctx, second))

	pending, err := repo.ListByStatus(ctx, activationDomain.StatusPending, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "evt_a", pending[0].SourceEventID())

	recent, err := repo.ListRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "evt_b", recent[0].SourceEventID())

	missing := activationDomain.NewRecord("evt_zz", "p", "", "", "", "", "", 0, "eur", nil)
	err = repo.Update(ctx, missing)
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
}

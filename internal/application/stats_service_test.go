package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/paris-agenda/service-promotion/internal/adapter"
	"github.com/paris-agenda/service-promotion/internal/application"
	activationDomain "github.com/paris-agenda/service-promotion/internal/domain/activation"
	"github.com/paris-agenda/service-promotion/internal/repository"
)

type statsFixture struct {
	repo       *repository.MemoryActivationRepository
	engagement *adapter.StaticEngagementSource
	service    *application.StatsService
}

func newStatsFixture() *statsFixture {
	repo := repository.NewMemoryActivationRepository()
	engagement := adapter.NewStaticEngagementSource()
	return &statsFixture{
		repo:       repo,
		engagement: engagement,
		service:    application.NewStatsService(repo, testCatalog(), engagement, zap.NewNop()),
	}
}

// seedFulfilled inserts a fulfilled activation with a known token and a
// one-week window that ended yesterday.
func (f *statsFixture) seedFulfilled(t *testing.T, eventKey, eventName, token string) uuid.UUID {
	t.Helper()
	now := time.Now().UTC()
	start := now.Add(-8 * 24 * time.Hour)
	end := now.Add(-24 * time.Hour)
	fulfilledAt := start

	record := activationDomain.Reconstitute(
		uuid.New(),
		"evt_"+eventKey, "spotlight-week", "", "partner@example.com", "Le Trabendo", eventName, "",
		4900, "eur", nil,
		activationDomain.StatusFulfilled,
		eventKey, "spotlight",
		&start, &end, &fulfilledAt,
		token, "",
		start, start,
	)
	inserted, err := f.repo.InsertPending(context.Background(), record)
	require.NoError(t, err)
	require.True(t, inserted)
	return record.ID()
}

func TestSnapshot_Success(t *testing.T) {
	fixture := newStatsFixture()
	id := fixture.seedFulfilled(t, "event-a", "", "token-a")
	fixture.engagement.Set("event-a", adapter.EngagementCounts{
		ClickCount:         200,
		OutboundClickCount: 37,
		CalendarSyncCount:  11,
		UniqueSessionCount: 150,
	})

	result := fixture.service.Snapshot(context.Background(), id, "token-a")
	require.True(t, result.Success)
	require.NotNil(t, result.Snapshot)

	assert.Equal(t, "Concert A", result.Snapshot.EventName)
	assert.Equal(t, "event-a", result.Snapshot.EventKey)
	assert.Equal(t, "spotlight", result.Snapshot.Tier)
	assert.Equal(t, int64(200), result.Snapshot.ClickCount)
	assert.InDelta(t, 18.5, result.Snapshot.OutboundRate, 0.001)
	assert.InDelta(t, 5.5, result.Snapshot.CalendarRate, 0.001)
	assert.True(t, result.Snapshot.WindowEnd.After(result.Snapshot.WindowStart))
}

func TestSnapshot_ZeroClicksMeansZeroRates(t *testing.T) {
	fixture := newStatsFixture()
	id := fixture.seedFulfilled(t, "event-b", "", "token-b")
	fixture.engagement.Set("event-b", adapter.EngagementCounts{
		OutboundClickCount: 5,
		CalendarSyncCount:  3,
	})

	result := fixture.service.Snapshot(context.Background(), id, "token-b")
	require.True(t, result.Success)
	assert.Zero(t, result.Snapshot.OutboundRate)
	assert.Zero(t, result.Snapshot.CalendarRate)
}

func TestSnapshot_UnknownActivation(t *testing.T) {
	fixture := newStatsFixture()

	result := fixture.service.Snapshot(context.Background(), uuid.New(), "whatever")
	assert.False(t, result.Success)
	assert.Equal(t, application.StatsCodeNotFound, result.Code)
	assert.Nil(t, result.Snapshot)
}

func TestSnapshot_InvalidToken(t *testing.T) {
	fixture := newStatsFixture()
	id := fixture.seedFulfilled(t, "event-a", "", "token-a")

	for _, presented := range []string{"token-b", "", "token-a-longer"} {
		result := fixture.service.Snapshot(context.Background(), id, presented)
		assert.False(t, result.Success)
		assert.Equal(t, application.StatsCodeInvalidToken, result.Code)
	}
}

func TestSnapshot_NotReadyBeforeFulfillment(t *testing.T) {
	fixture := newStatsFixture()

	// Token already minted but no window stamped yet.
	now := time.Now().UTC()
	record := activationDomain.Reconstitute(
		uuid.New(),
		"evt_early", "spotlight-week", "", "partner@example.com", "", "", "",
		4900, "eur", nil,
		activationDomain.StatusPending,
		"", "",
		nil, nil, nil,
		"token-early", "",
		now, now,
	)
	inserted, err := fixture.repo.InsertPending(context.Background(), record)
	require.NoError(t, err)
	require.True(t, inserted)

	result := fixture.service.Snapshot(context.Background(), record.ID(), "token-early")
	assert.False(t, result.Success)
	assert.Equal(t, application.StatsCodeNotReady, result.Code)
}

func TestSnapshot_EngagementOutage(t *testing.T) {
	fixture := newStatsFixture()
	id := fixture.seedFulfilled(t, "event-a", "", "token-a")
	fixture.engagement.Fail(errors.New("connection refused"))

	result := fixture.service.Snapshot(context.Background(), id, "token-a")
	assert.False(t, result.Success)
	assert.Equal(t, application.StatsCodeUnavailable, result.Code)
}

func TestSnapshot_InvertedWindowSelfHeals(t *testing.T) {
	fixture := newStatsFixture()

	now := time.Now().UTC()
	start := now.Add(-2 * time.Hour)
	end := start.Add(-24 * time.Hour) // corrupted: ends before it starts
	record := activationDomain.Reconstitute(
		uuid.New(),
		"evt_inv", "spotlight-week", "", "partner@example.com", "", "", "",
		4900, "eur", nil,
		activationDomain.StatusFulfilled,
		"event-c", "spotlight",
		&start, &end, &start,
		"token-inv", "",
		start, start,
	)
	inserted, err := fixture.repo.InsertPending(context.Background(), record)
	require.NoError(t, err)
	require.True(t, inserted)

	result := fixture.service.Snapshot(context.Background(), record.ID(), "token-inv")
	require.True(t, result.Success)
	assert.True(t, result.Snapshot.WindowStart.Equal(start))
	assert.False(t, result.Snapshot.WindowEnd.Before(result.Snapshot.WindowStart))
}

func TestSnapshot_NameFallbackChain(t *testing.T) {
	fixture := newStatsFixture()

	// Key outside the catalog: falls back to the partner-submitted name.
	now := time.Now().UTC()
	start := now.Add(-24 * time.Hour)
	withName := activationDomain.Reconstitute(
		uuid.New(),
		"evt_n1", "spotlight-week", "", "", "", "Soiree Jazz", "",
		0, "eur", nil,
		activationDomain.StatusFulfilled,
		"off-catalog", "spotlight",
		&start, &now, &start,
		"token-n1", "",
		start, start,
	)
	inserted, err := fixture.repo.InsertPending(context.Background(), withName)
	require.NoError(t, err)
	require.True(t, inserted)

	result := fixture.service.Snapshot(context.Background(), withName.ID(), "token-n1")
	require.True(t, result.Success)
	assert.Equal(t, "Soiree Jazz", result.Snapshot.EventName)

	// No submitted name either: the raw key is shown.
	bare := activationDomain.Reconstitute(
		uuid.New(),
		"evt_n2", "spotlight-week", "", "", "", "", "",
		0, "eur", nil,
		activationDomain.StatusFulfilled,
		"off-catalog", "spotlight",
		&start, &now, &start,
		"token-n2", "",
		start, start,
	)
	inserted, err = fixture.repo.InsertPending(context.Background(), bare)
	require.NoError(t, err)
	require.True(t, inserted)

	result = fixture.service.Snapshot(context.Background(), bare.ID(), "token-n2")
	require.True(t, result.Success)
	assert.Equal(t, "off-catalog", result.Snapshot.EventName)
}

package application

import (
	"context"
	"crypto/subtle"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paris-agenda/service-promotion/internal/adapter"
	"github.com/paris-agenda/service-promotion/internal/domain"
	activationDomain "github.com/paris-agenda/service-promotion/internal/domain/activation"
)

// Stats outcome codes, chosen so the partner page can render safe, specific
// messaging without leaking detail.
const (
	StatsCodeNotFound     = "not_found"
	StatsCodeInvalidToken = "invalid_token"
	StatsCodeNotReady     = "not_ready"
	StatsCodeUnavailable  = "service_unavailable"
)

// StatsSnapshot is the metrics projection a partner sees.
type StatsSnapshot struct {
	EventName          string    `json:"event_name"`
	EventKey           string    `json:"event_key"`
	Tier               string    `json:"tier"`
	WindowStart        time.Time `json:"window_start"`
	WindowEnd          time.Time `json:"window_end"`
	ClickCount         int64     `json:"click_count"`
	OutboundClickCount int64     `json:"outbound_click_count"`
	CalendarSyncCount  int64     `json:"calendar_sync_count"`
	UniqueSessionCount int64     `json:"unique_session_count"`
	OutboundRate       float64   `json:"outbound_rate"`
	CalendarRate       float64   `json:"calendar_rate"`
}

// StatsResult is the full outcome of a snapshot request; failures carry a
// code instead of an error so the handler renders them uniformly.
type StatsResult struct {
	Success  bool           `json:"success"`
	Code     string         `json:"code,omitempty"`
	Snapshot *StatsSnapshot `json:"snapshot,omitempty"`
}

// StatsService is the token-gated, read-only metrics projection over an
// activation's promotional window. Safe to retry arbitrarily.
type StatsService struct {
	repo       activationDomain.Repository
	catalog    adapter.EventCatalog
	engagement adapter.EngagementSource
	logger     *zap.Logger
}

// NewStatsService creates a new StatsService.
func NewStatsService(
	repo activationDomain.Repository,
	catalog adapter.EventCatalog,
	engagement adapter.EngagementSource,
	logger *zap.Logger,
) *StatsService {
	return &StatsService{
		repo:       repo,
		catalog:    catalog,
		engagement: engagement,
		logger:     logger,
	}
}

// Snapshot resolves the metrics for one activation. The token comparison is
// constant-time and runs whether or not the record exists, so response
// timing does not reveal which activation ids are real.
func (s *StatsService) Snapshot(ctx context.Context, activationID uuid.UUID, token string) *StatsResult {
	record, err := s.repo.FindByID(ctx, activationID)
	if err != nil && !domain.IsCode(err, domain.CodeNotFound) {
		s.logger.Error("stats lookup failed", zap.Error(err))
		return &StatsResult{Code: StatsCodeUnavailable}
	}

	stored := ""
	if record != nil {
		stored = record.PartnerStatsToken()
	}
	matched := tokenMatches(token, stored)

	if record == nil {
		return &StatsResult{Code: StatsCodeNotFound}
	}
	if !matched {
		return &StatsResult{Code: StatsCodeInvalidToken}
	}
	if record.FulfilledEventKey() == "" || record.FulfilledTier() == "" {
		return &StatsResult{Code: StatsCodeNotReady}
	}

	start, end := s.reportingWindow(record)

	counts, err := s.engagement.WindowCounts(ctx, record.FulfilledEventKey(), record.FulfilledTier(), start, end)
	if err != nil {
		s.logger.Error("engagement lookup failed",
			zap.String("activation_id", activationID.String()),
			zap.Error(err),
		)
		return &StatsResult{Code: StatsCodeUnavailable}
	}

	return &StatsResult{
		Success: true,
		Snapshot: &StatsSnapshot{
			EventName:          s.displayName(ctx, record),
			EventKey:           record.FulfilledEventKey(),
			Tier:               record.FulfilledTier(),
			WindowStart:        start,
			WindowEnd:          end,
			ClickCount:         counts.ClickCount,
			OutboundClickCount: counts.OutboundClickCount,
			CalendarSyncCount:  counts.CalendarSyncCount,
			UniqueSessionCount: counts.UniqueSessionCount,
			OutboundRate:       percentRate(counts.OutboundClickCount, counts.ClickCount),
			CalendarRate:       percentRate(counts.CalendarSyncCount, counts.ClickCount),
		},
	}
}

// reportingWindow derives [start, end] with the documented fallbacks; an
// inverted window self-heals to [start, now].
func (s *StatsService) reportingWindow(record *activationDomain.Record) (time.Time, time.Time) {
	start := record.CreatedAt()
	if t := record.FulfilledAt(); t != nil {
		start = *t
	}
	if t := record.FulfilledStartAt(); t != nil {
		start = *t
	}

	end := time.Now().UTC()
	if t := record.FulfilledEndAt(); t != nil {
		end = *t
	}
	if end.Before(start) {
		end = time.Now().UTC()
	}
	return start, end
}

// displayName resolves a human-readable event name: catalog, then the free
// text the partner submitted, then the raw key.
func (s *StatsService) displayName(ctx context.Context, record *activationDomain.Record) string {
	if event, err := s.catalog.Resolve(ctx, record.FulfilledEventKey()); err == nil && event.Name != "" {
		return event.Name
	}
	if record.EventName() != "" {
		return record.EventName()
	}
	return record.FulfilledEventKey()
}

// tokenMatches compares the presented token against the stored one in
// constant time. An empty stored token is always a mismatch.
func tokenMatches(presented, stored string) bool {
	if stored == "" || len(presented) != len(stored) {
		// Burn a comparison anyway to keep the timing shape uniform.
		subtle.ConstantTimeCompare([]byte(presented), []byte(presented))
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(stored)) == 1
}

// percentRate is round(part/total*1000)/10: one decimal percent, 0 when the
// denominator is 0.
func percentRate(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 10
}

package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paris-agenda/service-promotion/internal/adapter"
	"github.com/paris-agenda/service-promotion/internal/config"
	"github.com/paris-agenda/service-promotion/internal/domain"
	scheduleDomain "github.com/paris-agenda/service-promotion/internal/domain/schedule"
	"github.com/paris-agenda/service-promotion/internal/events"
)

// startAtLayouts are the wall-clock formats accepted for a requested start,
// interpreted in the tier's configured timezone. RFC3339 input carries its
// own offset and is honored as-is.
var startAtLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
}

// EntryDTO is the API representation of a schedule entry, annotated with the
// derived state.
type EntryDTO struct {
	ID            uuid.UUID `json:"id"`
	Tier          string    `json:"tier"`
	EventKey      string    `json:"event_key"`
	StartAt       time.Time `json:"start_at"`
	EndAt         time.Time `json:"end_at"`
	DurationHours int       `json:"duration_hours"`
	Status        string    `json:"status"`
	State         string    `json:"state,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// QueueDTO is the full queue view for one tier.
type QueueDTO struct {
	Tier        string     `json:"tier"`
	Capacity    int        `json:"capacity"`
	Timezone    string     `json:"timezone"`
	ActiveCount int        `json:"active_count"`
	Live        []EntryDTO `json:"live"`
	History     []EntryDTO `json:"history"`
}

// SchedulerService is the admission-controlled interval scheduler for one
// promotional tier. All mutations run inside one serializable repository
// transaction so concurrent calls cannot jointly overbook a window.
type SchedulerService struct {
	tier      string
	capacity  int
	location  *time.Location
	retention time.Duration
	repo      scheduleDomain.Repository
	catalog   adapter.EventCatalog
	publisher events.Publisher
	logger    *zap.Logger
}

// NewSchedulerService creates the scheduler for one tier.
func NewSchedulerService(
	tierCfg config.TierConfig,
	location *time.Location,
	repo scheduleDomain.Repository,
	catalog adapter.EventCatalog,
	publisher events.Publisher,
	logger *zap.Logger,
) *SchedulerService {
	return &SchedulerService{
		tier:      tierCfg.Name,
		capacity:  tierCfg.Capacity,
		location:  location,
		retention: time.Duration(tierCfg.RetentionHours) * time.Hour,
		repo:      repo,
		catalog:   catalog,
		publisher: publisher,
		logger:    logger,
	}
}

// Tier returns the tier this scheduler serves.
func (s *SchedulerService) Tier() string { return s.tier }

// Schedule reserves a promotional window for eventKey. An empty
// requestedStartAt means "now". durationHours is clamped into [1,168].
func (s *SchedulerService) Schedule(ctx context.Context, eventKey, requestedStartAt string, durationHours int) (*EntryDTO, error) {
	if err := s.validateEventKey(ctx, eventKey); err != nil {
		return nil, err
	}

	startAt, err := s.resolveStartAt(requestedStartAt)
	if err != nil {
		return nil, err
	}

	entry := scheduleDomain.NewEntry(s.tier, eventKey, startAt, durationHours)

	err = s.repo.Transact(ctx, func(tx scheduleDomain.Repository) error {
		others, err := tx.ListScheduled(ctx, s.tier)
		if err != nil {
			return err
		}

		// A repeat activation replaces the not-yet-started entry for the
		// same event; the replaced window leaves admission accounting.
		var superseded []*scheduleDomain.Entry
		admissionSet := others[:0:0]
		now := time.Now().UTC()
		for _, other := range others {
			if other.EventKey() == eventKey && now.Before(other.StartAt()) {
				superseded = append(superseded, other)
				continue
			}
			admissionSet = append(admissionSet, other)
		}

		if !admits(entry.StartAt(), entry.EndAt(), admissionSet, s.capacity) {
			return domain.NewOverCapacityError(s.tier, s.capacity)
		}

		for _, old := range superseded {
			old.Supersede()
			if err := tx.Update(ctx, old); err != nil {
				return err
			}
		}
		return tx.Save(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("promotion scheduled",
		zap.String("tier", s.tier),
		zap.String("event_key", eventKey),
		zap.Time("start_at", entry.StartAt()),
		zap.Int("duration_hours", entry.DurationHours()),
	)
	s.publishChange(ctx, events.ScheduleCreated, entry)

	dto := s.toEntryDTO(entry, time.Now().UTC())
	return &dto, nil
}

// Reschedule moves an existing entry's window in place, rerunning admission
// with the entry's own prior window excluded.
func (s *SchedulerService) Reschedule(ctx context.Context, id uuid.UUID, requestedStartAt string, durationHours int) (*EntryDTO, error) {
	startAt, err := s.resolveStartAt(requestedStartAt)
	if err != nil {
		return nil, err
	}

	var moved *scheduleDomain.Entry
	err = s.repo.Transact(ctx, func(tx scheduleDomain.Repository) error {
		entry, err := tx.FindByID(ctx, s.tier, id)
		if err != nil {
			return err
		}

		others, err := tx.ListScheduled(ctx, s.tier)
		if err != nil {
			return err
		}
		admissionSet := others[:0:0]
		for _, other := range others {
			if other.ID() != id {
				admissionSet = append(admissionSet, other)
			}
		}

		end := startAt.Add(time.Duration(scheduleDomain.ClampDuration(durationHours)) * time.Hour)
		if !admits(startAt, end, admissionSet, s.capacity) {
			return domain.NewOverCapacityError(s.tier, s.capacity)
		}

		if err := entry.Move(startAt, durationHours); err != nil {
			return err
		}
		moved = entry
		return tx.Update(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("promotion rescheduled",
		zap.String("tier", s.tier),
		zap.String("entry_id", id.String()),
		zap.Time("start_at", moved.StartAt()),
	)

	dto := s.toEntryDTO(moved, time.Now().UTC())
	return &dto, nil
}

// Cancel terminates an entry and immediately frees its window for subsequent
// admission checks. Cancelling twice is a no-op success.
func (s *SchedulerService) Cancel(ctx context.Context, id uuid.UUID) error {
	var cancelled *scheduleDomain.Entry
	err := s.repo.Transact(ctx, func(tx scheduleDomain.Repository) error {
		entry, err := tx.FindByID(ctx, s.tier, id)
		if err != nil {
			return err
		}
		if entry.Status() == scheduleDomain.StatusCancelled {
			return nil
		}
		entry.Cancel()
		cancelled = entry
		return tx.Update(ctx, entry)
	})
	if err != nil {
		return err
	}

	if cancelled != nil {
		s.logger.Info("promotion cancelled",
			zap.String("tier", s.tier),
			zap.String("entry_id", id.String()),
		)
		s.publishChange(ctx, events.ScheduleCancelled, cancelled)
	}
	return nil
}

// ListQueue returns the tier's live entries and retained history, each
// annotated with the derived state, plus display metadata.
func (s *SchedulerService) ListQueue(ctx context.Context) (*QueueDTO, error) {
	entries, err := s.repo.ListByTier(ctx, s.tier)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	queue := &QueueDTO{
		Tier:     s.tier,
		Capacity: s.capacity,
		Timezone: s.location.String(),
		Live:     []EntryDTO{},
		History:  []EntryDTO{},
	}

	for _, entry := range entries {
		dto := s.toEntryDTO(entry, now)
		if s.isLive(entry, now) {
			queue.Live = append(queue.Live, dto)
			if entry.StateAt(now) == scheduleDomain.StateActive {
				queue.ActiveCount++
			}
		} else {
			queue.History = append(queue.History, dto)
		}
	}
	return queue, nil
}

// ClearQueue cancels every currently-scheduled live entry. Destructive and
// irreversible; admin only.
func (s *SchedulerService) ClearQueue(ctx context.Context) (int, error) {
	cleared := 0
	err := s.repo.Transact(ctx, func(tx scheduleDomain.Repository) error {
		entries, err := tx.ListScheduled(ctx, s.tier)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, entry := range entries {
			if !s.isLive(entry, now) {
				continue
			}
			entry.Cancel()
			if err := tx.Update(ctx, entry); err != nil {
				return err
			}
			cleared++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Warn("queue cleared", zap.String("tier", s.tier), zap.Int("cancelled", cleared))
	return cleared, nil
}

// ClearHistory purges terminal entries and windows ended past retention.
func (s *SchedulerService) ClearHistory(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.retention)
	purged, err := s.repo.PurgeHistory(ctx, s.tier, cutoff)
	if err != nil {
		return 0, err
	}
	s.logger.Warn("history cleared", zap.String("tier", s.tier), zap.Int("purged", purged))
	return purged, nil
}

// validateEventKey checks the key resolves in the external catalog. A key the
// catalog does not know is the caller's mistake, not an infrastructure fault.
func (s *SchedulerService) validateEventKey(ctx context.Context, eventKey string) error {
	if eventKey == "" {
		return domain.NewValidationError("event key is required")
	}
	if _, err := s.catalog.Resolve(ctx, eventKey); err != nil {
		if domain.IsCode(err, domain.CodeNotFound) {
			return domain.NewValidationError("unknown event key %q", eventKey)
		}
		return err
	}
	return nil
}

// resolveStartAt turns the raw requested start into an absolute instant.
// Empty input means an immediate promotion starting now.
func (s *SchedulerService) resolveStartAt(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range startAtLayouts {
		if t, err := time.ParseInLocation(layout, raw, s.location); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, domain.NewValidationError("unparsable start time %q (expected e.g. 2006-01-02T15:04 in %s)", raw, s.location)
}

func (s *SchedulerService) isLive(entry *scheduleDomain.Entry, now time.Time) bool {
	return entry.Status() == scheduleDomain.StatusScheduled && now.Before(entry.EndAt().Add(s.retention))
}

func (s *SchedulerService) toEntryDTO(entry *scheduleDomain.Entry, now time.Time) EntryDTO {
	dto := EntryDTO{
		ID:            entry.ID(),
		Tier:          entry.Tier(),
		EventKey:      entry.EventKey(),
		StartAt:       entry.StartAt(),
		EndAt:         entry.EndAt(),
		DurationHours: entry.DurationHours(),
		Status:        string(entry.Status()),
		CreatedAt:     entry.CreatedAt(),
	}
	if entry.Status() == scheduleDomain.StatusScheduled {
		dto.State = string(entry.StateAt(now))
	}
	return dto
}

func (s *SchedulerService) publishChange(ctx context.Context, eventType string, entry *scheduleDomain.Entry) {
	event := events.ScheduleChangedEvent{
		EntryID:    entry.ID(),
		Tier:       entry.Tier(),
		EventKey:   entry.EventKey(),
		StartAt:    entry.StartAt(),
		EndAt:      entry.EndAt(),
		OccurredAt: time.Now().UTC(),
	}
	ce, err := events.NewCloudEvent("service-promotion", eventType, event)
	if err != nil {
		s.logger.Error("failed to create schedule cloud event", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, events.TopicPromotionEvents, ce); err != nil {
		s.logger.Error("failed to publish schedule event", zap.Error(err))
	}
}

// admits simulates inserting the candidate window [start, end) alongside the
// given scheduled entries. Concurrency only changes at window starts, so it
// is enough to count occupancy at the candidate's start and at every other
// entry's start that falls inside the candidate window.
func admits(start, end time.Time, others []*scheduleDomain.Entry, capacity int) bool {
	points := []time.Time{start}
	for _, other := range others {
		if !other.StartAt().Before(start) && other.StartAt().Before(end) {
			points = append(points, other.StartAt())
		}
	}

	for _, point := range points {
		concurrent := 1 // the candidate itself
		for _, other := range others {
			if other.Occupies(point) {
				concurrent++
			}
		}
		if concurrent > capacity {
			return false
		}
	}
	return true
}

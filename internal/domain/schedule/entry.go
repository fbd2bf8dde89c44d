package schedule

import (
	"time"

	"github.com/google/uuid"

	"github.com/paris-agenda/service-promotion/internal/domain"
)

// Status is the persisted lifecycle status of a schedule entry.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusCancelled  Status = "cancelled"
	StatusSuperseded Status = "superseded"
)

// State is the position of a scheduled entry's window relative to "now".
// It is derived, never stored, and only meaningful while status is scheduled.
type State string

const (
	StateUpcoming State = "upcoming"
	StateActive   State = "active"
	StateEnded    State = "ended"
)

const (
	// MinDurationHours and MaxDurationHours bound the promotional window.
	// Out-of-range requests are clamped, not rejected.
	MinDurationHours = 1
	MaxDurationHours = 168
)

// Entry is the aggregate root for one promotional slot reservation. The
// effective window it occupies is [StartAt, StartAt + DurationHours).
type Entry struct {
	id            uuid.UUID
	tier          string
	eventKey      string
	startAt       time.Time
	durationHours int
	status        Status
	createdAt     time.Time
	updatedAt     time.Time
}

// ClampDuration forces durationHours into [MinDurationHours, MaxDurationHours].
func ClampDuration(hours int) int {
	if hours < MinDurationHours {
		return MinDurationHours
	}
	if hours > MaxDurationHours {
		return MaxDurationHours
	}
	return hours
}

// NewEntry creates a scheduled entry. startAt must already be resolved to an
// absolute instant by the scheduler (an empty requested start means "now").
func NewEntry(tier, eventKey string, startAt time.Time, durationHours int) *Entry {
	now := time.Now().UTC()
	return &Entry{
		id:            uuid.New(),
		tier:          tier,
		eventKey:      eventKey,
		startAt:       startAt.UTC(),
		durationHours: ClampDuration(durationHours),
		status:        StatusScheduled,
		createdAt:     now,
		updatedAt:     now,
	}
}

// Reconstitute rebuilds an Entry from persistence.
func Reconstitute(id uuid.UUID, tier, eventKey string, startAt time.Time, durationHours int, status Status, createdAt, updatedAt time.Time) *Entry {
	return &Entry{
		id:            id,
		tier:          tier,
		eventKey:      eventKey,
		startAt:       startAt,
		durationHours: durationHours,
		status:        status,
		createdAt:     createdAt,
		updatedAt:     updatedAt,
	}
}

func (e *Entry) ID() uuid.UUID        { return e.id }
func (e *Entry) Tier() string         { return e.tier }
func (e *Entry) EventKey() string     { return e.eventKey }
func (e *Entry) StartAt() time.Time   { return e.startAt }
func (e *Entry) DurationHours() int   { return e.durationHours }
func (e *Entry) Status() Status       { return e.status }
func (e *Entry) CreatedAt() time.Time { return e.createdAt }
func (e *Entry) UpdatedAt() time.Time { return e.updatedAt }

// EndAt is the exclusive end of the effective window.
func (e *Entry) EndAt() time.Time {
	return e.startAt.Add(time.Duration(e.durationHours) * time.Hour)
}

// Occupies reports whether the entry's window covers instant t.
func (e *Entry) Occupies(t time.Time) bool {
	return !t.Before(e.startAt) && t.Before(e.EndAt())
}

// Overlaps reports whether the entry's window intersects [start, end).
func (e *Entry) Overlaps(start, end time.Time) bool {
	return e.startAt.Before(end) && start.Before(e.EndAt())
}

// StateAt derives the entry's state relative to now.
func (e *Entry) StateAt(now time.Time) State {
	switch {
	case now.Before(e.startAt):
		return StateUpcoming
	case now.Before(e.EndAt()):
		return StateActive
	default:
		return StateEnded
	}
}

// Move updates the window in place. Only scheduled entries can move.
func (e *Entry) Move(startAt time.Time, durationHours int) error {
	if e.status != StatusScheduled {
		return domain.NewConflictError("cannot reschedule a %s entry", e.status)
	}
	e.startAt = startAt.UTC()
	e.durationHours = ClampDuration(durationHours)
	e.updatedAt = time.Now().UTC()
	return nil
}

// Cancel terminates the entry. Cancelling an already-cancelled entry is a
// no-op so repeated admin clicks stay safe.
func (e *Entry) Cancel() {
	if e.status == StatusCancelled {
		return
	}
	e.status = StatusCancelled
	e.updatedAt = time.Now().UTC()
}

// Supersede marks the entry as replaced by a newer reservation for the same
// event. Superseded entries leave admission accounting immediately.
func (e *Entry) Supersede() {
	if e.status != StatusScheduled {
		return
	}
	e.status = StatusSuperseded
	e.updatedAt = time.Now().UTC()
}

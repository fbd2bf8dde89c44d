package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Topic and event type constants for the promotion lifecycle stream.
const (
	TopicPromotionEvents = "promotion.events"

	ActivationReceived  = "promotion.activation.received"
	ActivationFulfilled = "promotion.activation.fulfilled"
	ScheduleCreated     = "promotion.schedule.created"
	ScheduleCancelled   = "promotion.schedule.cancelled"
)

// CloudEvent is the envelope every published message is wrapped in.
type CloudEvent struct {
	ID     string          `json:"id"`
	Source string          `json:"source"`
	Type   string          `json:"type"`
	Time   time.Time       `json:"time"`
	Data   json.RawMessage `json:"data"`
}

// NewCloudEvent wraps data in a CloudEvent envelope.
func NewCloudEvent(source, eventType string, data interface{}) (CloudEvent, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return CloudEvent{}, err
	}
	return CloudEvent{
		ID:     uuid.New().String(),
		Source: source,
		Type:   eventType,
		Time:   time.Now().UTC(),
		Data:   payload,
	}, nil
}

// ParseCloudEvent decodes a raw message into a CloudEvent envelope.
func ParseCloudEvent(raw []byte) (CloudEvent, error) {
	var ce CloudEvent
	err := json.Unmarshal(raw, &ce)
	return ce, err
}

// ParseData decodes the event payload into out.
func (ce CloudEvent) ParseData(out interface{}) error {
	return json.Unmarshal(ce.Data, out)
}

// ActivationReceivedEvent is published when a webhook delivery creates a new
// pending activation record.
type ActivationReceivedEvent struct {
	ActivationID  uuid.UUID `json:"activation_id"`
	SourceEventID string    `json:"source_event_id"`
	PackageKey    string    `json:"package_key"`
	AmountCents   int64     `json:"amount_cents"`
	Currency      string    `json:"currency"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ActivationFulfilledEvent is published when an admin fulfills an activation.
type ActivationFulfilledEvent struct {
	ActivationID uuid.UUID `json:"activation_id"`
	EventKey     string    `json:"event_key"`
	Tier         string    `json:"tier"`
	StartAt      time.Time `json:"start_at"`
	EndAt        time.Time `json:"end_at"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// ScheduleChangedEvent is published when a schedule entry is created or
// cancelled.
type ScheduleChangedEvent struct {
	EntryID    uuid.UUID `json:"entry_id"`
	Tier       string    `json:"tier"`
	EventKey   string    `json:"event_key"`
	StartAt    time.Time `json:"start_at"`
	EndAt      time.Time `json:"end_at"`
	OccurredAt time.Time `json:"occurred_at"`
}

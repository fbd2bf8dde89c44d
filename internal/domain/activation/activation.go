package activation

import (
	"time"

	"github.com/google/uuid"

	"github.com/paris-agenda/service-promotion/internal/domain"
)

// Status is the admin-driven lifecycle status of an activation record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusFulfilled Status = "fulfilled"
	StatusRefunded  Status = "refunded"
	StatusRejected  Status = "rejected"
)

// KnownStatuses lists every status an admin may assign.
var KnownStatuses = []Status{StatusPending, StatusFulfilled, StatusRefunded, StatusRejected}

// Record is the aggregate root for a paid-placement purchase awaiting (or
// having received) fulfillment. SourceEventID is the upstream webhook event
// id and doubles as the idempotency key: a second ingestion attempt with the
// same id must not create a second record.
type Record struct {
	id              uuid.UUID
	sourceEventID   string
	packageKey      string
	paymentLinkID   string
	customerEmail   string
	customerName    string
	eventName       string
	eventURL        string
	amountTotal     int64 // cents
	currency        string
	metadata        map[string]string
	status          Status
	fulfilledKey    string
	fulfilledTier   string
	fulfilledStart  *time.Time
	fulfilledEnd    *time.Time
	fulfilledAt     *time.Time
	partnerToken    string
	notes           string
	createdAt       time.Time
	updatedAt       time.Time
}

// NewRecord creates a pending activation from an ingested checkout session.
func NewRecord(sourceEventID, packageKey, paymentLinkID, customerEmail, customerName, eventName, eventURL string, amountTotal int64, currency string, metadata map[string]string) *Record {
	now := time.Now().UTC()
	if metadata == nil {
		metadata = map[string]string{}
	}
	return &Record{
		id:            uuid.New(),
		sourceEventID: sourceEventID,
		packageKey:    packageKey,
		paymentLinkID: paymentLinkID,
		customerEmail: customerEmail,
		customerName:  customerName,
		eventName:     eventName,
		eventURL:      eventURL,
		amountTotal:   amountTotal,
		currency:      currency,
		metadata:      metadata,
		status:        StatusPending,
		createdAt:     now,
		updatedAt:     now,
	}
}

// Reconstitute rebuilds a Record from persistence.
func Reconstitute(
	id uuid.UUID,
	sourceEventID, packageKey, paymentLinkID, customerEmail, customerName, eventName, eventURL string,
	amountTotal int64,
	currency string,
	metadata map[string]string,
	status Status,
	fulfilledKey, fulfilledTier string,
	fulfilledStart, fulfilledEnd, fulfilledAt *time.Time,
	partnerToken, notes string,
	createdAt, updatedAt time.Time,
) *Record {
	if metadata == nil {
		metadata = map[string]string{}
	}
	return &Record{
		id:             id,
		sourceEventID:  sourceEventID,
		packageKey:     packageKey,
		paymentLinkID:  paymentLinkID,
		customerEmail:  customerEmail,
		customerName:   customerName,
		eventName:      eventName,
		eventURL:       eventURL,
		amountTotal:    amountTotal,
		currency:       currency,
		metadata:       metadata,
		status:         status,
		fulfilledKey:   fulfilledKey,
		fulfilledTier:  fulfilledTier,
		fulfilledStart: fulfilledStart,
		fulfilledEnd:   fulfilledEnd,
		fulfilledAt:    fulfilledAt,
		partnerToken:   partnerToken,
		notes:          notes,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
	}
}

func (r *Record) ID() uuid.UUID              { return r.id }
func (r *Record) SourceEventID() string      { return r.sourceEventID }
func (r *Record) PackageKey() string         { return r.packageKey }
func (r *Record) PaymentLinkID() string      { return r.paymentLinkID }
func (r *Record) CustomerEmail() string      { return r.customerEmail }
func (r *Record) CustomerName() string       { return r.customerName }
func (r *Record) EventName() string          { return r.eventName }
func (r *Record) EventURL() string           { return r.eventURL }
func (r *Record) AmountTotalCents() int64    { return r.amountTotal }
func (r *Record) Currency() string           { return r.currency }
func (r *Record) Metadata() map[string]string { return r.metadata }
func (r *Record) Status() Status             { return r.status }
func (r *Record) FulfilledEventKey() string  { return r.fulfilledKey }
func (r *Record) FulfilledTier() string      { return r.fulfilledTier }
func (r *Record) FulfilledStartAt() *time.Time { return r.fulfilledStart }
func (r *Record) FulfilledEndAt() *time.Time { return r.fulfilledEnd }
func (r *Record) FulfilledAt() *time.Time    { return r.fulfilledAt }
func (r *Record) PartnerStatsToken() string  { return r.partnerToken }
func (r *Record) Notes() string              { return r.notes }
func (r *Record) CreatedAt() time.Time       { return r.createdAt }
func (r *Record) UpdatedAt() time.Time       { return r.updatedAt }

// Fulfill stamps the scheduled window and the freshly minted partner token
// onto the record and moves it to fulfilled.
func (r *Record) Fulfill(eventKey, tier string, startAt, endAt time.Time, token string) error {
	if r.status == StatusFulfilled {
		return domain.NewConflictError("activation %s is already fulfilled", r.id)
	}
	now := time.Now().UTC()
	r.status = StatusFulfilled
	r.fulfilledKey = eventKey
	r.fulfilledTier = tier
	start := startAt.UTC()
	end := endAt.UTC()
	r.fulfilledStart = &start
	r.fulfilledEnd = &end
	r.fulfilledAt = &now
	r.partnerToken = token
	r.updatedAt = now
	return nil
}

// SetStatus is the plain administrative transition with no scheduling side
// effects (refunded, rejected, back to pending, ...).
func (r *Record) SetStatus(status Status, notes string) error {
	known := false
	for _, s := range KnownStatuses {
		if s == status {
			known = true
			break
		}
	}
	if !known {
		return domain.NewValidationError("unknown activation status %q", status)
	}
	r.status = status
	if notes != "" {
		r.notes = notes
	}
	r.updatedAt = time.Now().UTC()
	return nil
}

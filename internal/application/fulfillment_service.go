package application

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paris-agenda/service-promotion/internal/domain"
	activationDomain "github.com/paris-agenda/service-promotion/internal/domain/activation"
	scheduleDomain "github.com/paris-agenda/service-promotion/internal/domain/schedule"
	"github.com/paris-agenda/service-promotion/internal/events"
)

// FulfillRequest holds the admin's fulfillment parameters.
type FulfillRequest struct {
	EventKey         string `json:"event_key" binding:"required"`
	Tier             string `json:"tier" binding:"required"`
	RequestedStartAt string `json:"requested_start_at"`
	DurationHours    int    `json:"duration_hours"`
}

// ActivationDTO is the API representation of an activation record.
type ActivationDTO struct {
	ID               uuid.UUID         `json:"id"`
	SourceEventID    string            `json:"source_event_id"`
	PackageKey       string            `json:"package_key"`
	PaymentLinkID    string            `json:"payment_link_id,omitempty"`
	CustomerEmail    string            `json:"customer_email"`
	CustomerName     string            `json:"customer_name"`
	EventName        string            `json:"event_name"`
	EventURL         string            `json:"event_url,omitempty"`
	AmountTotalCents int64             `json:"amount_total_cents"`
	Currency         string            `json:"currency"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	Status           string            `json:"status"`
	FulfilledKey     string            `json:"fulfilled_event_key,omitempty"`
	FulfilledTier    string            `json:"fulfilled_tier,omitempty"`
	FulfilledStartAt *time.Time        `json:"fulfilled_start_at,omitempty"`
	FulfilledEndAt   *time.Time        `json:"fulfilled_end_at,omitempty"`
	Notes            string            `json:"notes,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// FulfillmentDTO is the result of fulfilling an activation. StatsURL is the
// shareable partner link embedding the id and the fresh stats token.
type FulfillmentDTO struct {
	Activation ActivationDTO `json:"activation"`
	Entry      EntryDTO      `json:"entry"`
	StatsURL   string        `json:"stats_url"`
}

// DashboardDTO is the admin dashboard projection.
type DashboardDTO struct {
	Pending []ActivationDTO     `json:"pending"`
	Recent  []ActivationDTO     `json:"recent"`
	Queues  map[string]QueueDTO `json:"queues"`
}

// FulfillmentService orchestrates tier schedulers to satisfy pending
// activations and mints partner access tokens.
type FulfillmentService struct {
	repo       activationDomain.Repository
	schedulers map[string]*SchedulerService
	baseURL    string
	publisher  events.Publisher
	logger     *zap.Logger
}

// NewFulfillmentService creates a new FulfillmentService over the per-tier
// schedulers.
func NewFulfillmentService(
	repo activationDomain.Repository,
	schedulers map[string]*SchedulerService,
	baseURL string,
	publisher events.Publisher,
	logger *zap.Logger,
) *FulfillmentService {
	return &FulfillmentService{
		repo:       repo,
		schedulers: schedulers,
		baseURL:    baseURL,
		publisher:  publisher,
		logger:     logger,
	}
}

// Fulfill schedules the promotion for a pending activation and stamps the
// resulting window plus a fresh partner token onto it. Scheduler failures
// (validation, over capacity) surface verbatim with no retry.
func (s *FulfillmentService) Fulfill(ctx context.Context, activationID uuid.UUID, req FulfillRequest) (*FulfillmentDTO, error) {
	if req.EventKey == "" {
		return nil, domain.NewValidationError("event key is required")
	}
	scheduler, ok := s.schedulers[req.Tier]
	if !ok {
		return nil, domain.NewValidationError("unknown tier %q", req.Tier)
	}

	record, err := s.repo.FindByID(ctx, activationID)
	if err != nil {
		return nil, err
	}
	if record.Status() == activationDomain.StatusFulfilled {
		return nil, domain.NewConflictError("activation %s is already fulfilled", activationID)
	}

	if _, err := scheduler.Schedule(ctx, req.EventKey, req.RequestedStartAt, req.DurationHours); err != nil {
		return nil, err
	}

	// Re-read the queue and take the most recent window for the event as
	// authoritative: an immediate request's true start was normalized by the
	// scheduler and repeat activations of the same event may coexist.
	entry, err := s.authoritativeEntry(ctx, scheduler, req.EventKey)
	if err != nil {
		return nil, err
	}

	token, err := newPartnerToken()
	if err != nil {
		return nil, err
	}

	if err := record.Fulfill(req.EventKey, req.Tier, entry.StartAt, entry.EndAt, token); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, record); err != nil {
		// The schedule entry already exists; an orphaned window with no
		// linked activation needs manual reconciliation.
		s.logger.Warn("activation stamp failed after successful schedule",
			zap.String("activation_id", activationID.String()),
			zap.String("entry_id", entry.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("activation fulfilled",
		zap.String("activation_id", activationID.String()),
		zap.String("event_key", req.EventKey),
		zap.String("tier", req.Tier),
	)
	s.publishFulfilled(ctx, record)

	return &FulfillmentDTO{
		Activation: toActivationDTO(record),
		Entry:      *entry,
		StatsURL:   s.statsURL(activationID, token),
	}, nil
}

// UpdateStatus is the plain administrative transition with no scheduling
// side effects (refunded, rejected, ...).
func (s *FulfillmentService) UpdateStatus(ctx context.Context, id uuid.UUID, status, notes string) (*ActivationDTO, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := record.SetStatus(activationDomain.Status(status), notes); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info("activation status updated",
		zap.String("activation_id", id.String()),
		zap.String("status", status),
	)
	dto := toActivationDTO(record)
	return &dto, nil
}

// GenerateTestStatsLink seeds a synthetic activation and immediately fulfills
// it, for manual QA of the partner stats page.
func (s *FulfillmentService) GenerateTestStatsLink(ctx context.Context, req FulfillRequest) (*FulfillmentDTO, error) {
	record := activationDomain.NewRecord(
		"test_"+uuid.New().String(),
		"qa-test",
		"",
		"qa@example.test",
		"QA Seeder",
		req.EventKey,
		"",
		0,
		"eur",
		map[string]string{"synthetic": "true"},
	)
	inserted, err := s.repo.InsertPending(ctx, record)
	if err != nil {
		return nil, domain.NewUnavailableError("activation store", err)
	}
	if !inserted {
		return nil, domain.NewConflictError("synthetic activation collided, retry")
	}
	return s.Fulfill(ctx, record.ID(), req)
}

// Dashboard assembles the admin overview: pending work, recent records, and
// every tier's queue.
func (s *FulfillmentService) Dashboard(ctx context.Context) (*DashboardDTO, error) {
	pending, err := s.repo.ListByStatus(ctx, activationDomain.StatusPending, 100)
	if err != nil {
		return nil, err
	}
	recent, err := s.repo.ListRecent(ctx, 50)
	if err != nil {
		return nil, err
	}

	dashboard := &DashboardDTO{
		Pending: make([]ActivationDTO, len(pending)),
		Recent:  make([]ActivationDTO, len(recent)),
		Queues:  make(map[string]QueueDTO, len(s.schedulers)),
	}
	for i, rec := range pending {
		dashboard.Pending[i] = toActivationDTO(rec)
	}
	for i, rec := range recent {
		dashboard.Recent[i] = toActivationDTO(rec)
	}
	for tier, scheduler := range s.schedulers {
		queue, err := scheduler.ListQueue(ctx)
		if err != nil {
			return nil, err
		}
		dashboard.Queues[tier] = *queue
	}
	return dashboard, nil
}

// authoritativeEntry selects, among scheduled entries for eventKey, the one
// with the most recent start.
func (s *FulfillmentService) authoritativeEntry(ctx context.Context, scheduler *SchedulerService, eventKey string) (*EntryDTO, error) {
	queue, err := scheduler.ListQueue(ctx)
	if err != nil {
		return nil, err
	}

	var latest *EntryDTO
	for i := range queue.Live {
		entry := &queue.Live[i]
		if entry.EventKey != eventKey || entry.Status != string(scheduleDomain.StatusScheduled) {
			continue
		}
		if latest == nil || entry.StartAt.After(latest.StartAt) {
			latest = entry
		}
	}
	if latest == nil {
		return nil, domain.NewNotFoundError("scheduled entry for event", eventKey)
	}
	return latest, nil
}

func (s *FulfillmentService) statsURL(activationID uuid.UUID, token string) string {
	return fmt.Sprintf("%s/partner/stats?activation=%s&token=%s",
		s.baseURL, activationID, url.QueryEscape(token))
}

func (s *FulfillmentService) publishFulfilled(ctx context.Context, record *activationDomain.Record) {
	event := events.ActivationFulfilledEvent{
		ActivationID: record.ID(),
		EventKey:     record.FulfilledEventKey(),
		Tier:         record.FulfilledTier(),
		OccurredAt:   time.Now().UTC(),
	}
	if start := record.FulfilledStartAt(); start != nil {
		event.StartAt = *start
	}
	if end := record.FulfilledEndAt(); end != nil {
		event.EndAt = *end
	}
	ce, err := events.NewCloudEvent("service-promotion", events.ActivationFulfilled, event)
	if err != nil {
		s.logger.Error("failed to create fulfillment cloud event", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, events.TopicPromotionEvents, ce); err != nil {
		s.logger.Error("failed to publish fulfillment event", zap.Error(err))
	}
}

// newPartnerToken mints the high-entropy opaque secret a partner presents to
// read their metrics.
func newPartnerToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func toActivationDTO(rec *activationDomain.Record) ActivationDTO {
	return ActivationDTO{
		ID:               rec.ID(),
		SourceEventID:    rec.SourceEventID(),
		PackageKey:       rec.PackageKey(),
		PaymentLinkID:    rec.PaymentLinkID(),
		CustomerEmail:    rec.CustomerEmail(),
		CustomerName:     rec.CustomerName(),
		EventName:        rec.EventName(),
		EventURL:         rec.EventURL(),
		AmountTotalCents: rec.AmountTotalCents(),
		Currency:         rec.Currency(),
		Metadata:         rec.Metadata(),
		Status:           string(rec.Status()),
		FulfilledKey:     rec.FulfilledEventKey(),
		FulfilledTier:    rec.FulfilledTier(),
		FulfilledStartAt: rec.FulfilledStartAt(),
		FulfilledEndAt:   rec.FulfilledEndAt(),
		Notes:            rec.Notes(),
		CreatedAt:        rec.CreatedAt(),
		UpdatedAt:        rec.UpdatedAt(),
	}
}

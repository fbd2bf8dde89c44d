package application

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paris-agenda/service-promotion/internal/domain"
	activationDomain "github.com/paris-agenda/service-promotion/internal/domain/activation"
	"github.com/paris-agenda/service-promotion/internal/events"
)

// CheckoutCompletedType is the only webhook event type that creates a
// pending activation. Every other type is acknowledged without side effects
// so the processor stops retrying.
const CheckoutCompletedType = "checkout.session.completed"

// WebhookEnvelope is the parsed shape of one webhook delivery.
type WebhookEnvelope struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"`
	Object json.RawMessage `json:"object"`
}

// checkoutSession is the slice of the payment processor's checkout session
// this service extracts.
type checkoutSession struct {
	ID              string            `json:"id"`
	PaymentLink     string            `json:"payment_link"`
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency"`
	Metadata        map[string]string `json:"metadata"`
	CustomerDetails struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"customer_details"`
	CustomFields []struct {
		Key  string `json:"key"`
		Text struct {
			Value string `json:"value"`
		} `json:"text"`
	} `json:"custom_fields"`
}

// Key aliases partners have historically used in checkout custom fields.
var (
	eventNameFieldKeys = []string{"event_name", "eventname", "nom_event"}
	eventURLFieldKeys  = []string{"event_url", "eventurl", "lien_event"}
	packageMetaKeys    = []string{"package", "package_key"}
)

// IngestResult reports the outcome of one webhook delivery. Handled=false
// means the envelope could not be understood and the caller may reject the
// delivery; Inserted=false with Handled=true means either a non-trigger type
// or a duplicate of an already-ingested event.
type IngestResult struct {
	Handled      bool      `json:"handled"`
	Inserted     bool      `json:"inserted"`
	ActivationID uuid.UUID `json:"activation_id,omitempty"`
}

// IngestionService converts verified webhook payloads into pending
// activation records, idempotently.
type IngestionService struct {
	repo         activationDomain.Repository
	packageLinks map[string]string
	publisher    events.Publisher
	logger       *zap.Logger
}

// NewIngestionService creates a new IngestionService. packageLinks maps known
// payment-link ids to package slugs for sessions without package metadata.
func NewIngestionService(
	repo activationDomain.Repository,
	packageLinks map[string]string,
	publisher events.Publisher,
	logger *zap.Logger,
) *IngestionService {
	return &IngestionService{
		repo:         repo,
		packageLinks: packageLinks,
		publisher:    publisher,
		logger:       logger,
	}
}

// Ingest processes one verified webhook envelope. Repeated delivery of the
// same upstream event id is safe: the insert is keyed by it and a duplicate
// reports Inserted=false without creating a second record.
func (s *IngestionService) Ingest(ctx context.Context, envelope WebhookEnvelope) (IngestResult, error) {
	if envelope.ID == "" || envelope.Type == "" {
		return IngestResult{}, domain.NewValidationError("webhook envelope is missing id or type")
	}

	if envelope.Type != CheckoutCompletedType {
		s.logger.Debug("acknowledging non-trigger webhook type", zap.String("type", envelope.Type))
		return IngestResult{Handled: true}, nil
	}

	var session checkoutSession
	if err := json.Unmarshal(envelope.Object, &session); err != nil {
		return IngestResult{}, domain.NewValidationError("unparsable checkout session: %v", err)
	}

	record := s.buildRecord(envelope.ID, &session)

	inserted, err := s.repo.InsertPending(ctx, record)
	if err != nil {
		return IngestResult{}, domain.NewUnavailableError("activation store", err)
	}

	if !inserted {
		s.logger.Info("duplicate webhook delivery ignored",
			zap.String("source_event_id", envelope.ID),
		)
		return IngestResult{Handled: true, Inserted: false}, nil
	}

	s.logger.Info("activation ingested",
		zap.String("source_event_id", envelope.ID),
		zap.String("activation_id", record.ID().String()),
		zap.String("package_key", record.PackageKey()),
		zap.Int64("amount_cents", record.AmountTotalCents()),
	)
	s.publishReceived(ctx, record)

	return IngestResult{Handled: true, Inserted: true, ActivationID: record.ID()}, nil
}

// buildRecord extracts the activation fields from a checkout session,
// applying the documented fallback chains.
func (s *IngestionService) buildRecord(sourceEventID string, session *checkoutSession) *activationDomain.Record {
	packageKey := firstMetaValue(session.Metadata, packageMetaKeys)
	if packageKey == "" {
		packageKey = s.packageLinks[session.PaymentLink]
	}

	eventName := s.customField(session, eventNameFieldKeys)
	if eventName == "" {
		eventName = session.Metadata["event_name"]
	}
	eventURL := s.customField(session, eventURLFieldKeys)
	if eventURL == "" {
		eventURL = session.Metadata["event_url"]
	}

	metadata := map[string]string{}
	for k, v := range session.Metadata {
		metadata[k] = v
	}
	if session.ID != "" {
		metadata["checkout_session_id"] = session.ID
	}

	return activationDomain.NewRecord(
		sourceEventID,
		packageKey,
		session.PaymentLink,
		session.CustomerDetails.Email,
		session.CustomerDetails.Name,
		eventName,
		eventURL,
		session.AmountTotal,
		session.Currency,
		metadata,
	)
}

func (s *IngestionService) customField(session *checkoutSession, keys []string) string {
	for _, key := range keys {
		for _, field := range session.CustomFields {
			if field.Key == key && field.Text.Value != "" {
				return field.Text.Value
			}
		}
	}
	return ""
}

func firstMetaValue(metadata map[string]string, keys []string) string {
	for _, key := range keys {
		if v := metadata[key]; v != "" {
			return v
		}
	}
	return ""
}

func (s *IngestionService) publishReceived(ctx context.Context, record *activationDomain.Record) {
	event := events.ActivationReceivedEvent{
		ActivationID:  record.ID(),
		SourceEventID: record.SourceEventID(),
		PackageKey:    record.PackageKey(),
		AmountCents:   record.AmountTotalCents(),
		Currency:      record.Currency(),
		OccurredAt:    time.Now().UTC(),
	}
	ce, err := events.NewCloudEvent("service-promotion", events.ActivationReceived, event)
	if err != nil {
		s.logger.Error("failed to create activation cloud event", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, events.TopicPromotionEvents, ce); err != nil {
		s.logger.Error("failed to publish activation event", zap.Error(err))
	}
}

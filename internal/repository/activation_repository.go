package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/paris-agenda/service-promotion/internal/domain"
	activationDomain "github.com/paris-agenda/service-promotion/internal/domain/activation"
)

// ActivationModel is the GORM persistence model for the partner_activations table.
type ActivationModel struct {
	ID               uuid.UUID         `gorm:"type:uuid;primaryKey"`
	SourceEventID    string            `gorm:"type:varchar(255);uniqueIndex;not null"`
	PackageKey       string            `gorm:"type:varchar(100)"`
	PaymentLinkID    string            `gorm:"type:varchar(255)"`
	CustomerEmail    string            `gorm:"type:varchar(255)"`
	CustomerName     string            `gorm:"type:varchar(255)"`
	EventName        string            `gorm:"type:text"`
	EventURL         string            `gorm:"type:text"`
	AmountTotalCents int64             `gorm:"not null;default:0"`
	Currency         string            `gorm:"type:varchar(3)"`
	Metadata         map[string]string `gorm:"type:jsonb;serializer:json"`
	Status           string            `gorm:"type:varchar(20);not null;index"`
	FulfilledKey     string            `gorm:"type:varchar(255)"`
	FulfilledTier    string            `gorm:"type:varchar(30)"`
	FulfilledStartAt *time.Time        `gorm:"type:timestamptz"`
	FulfilledEndAt   *time.Time        `gorm:"type:timestamptz"`
	FulfilledAt      *time.Time        `gorm:"type:timestamptz"`
	PartnerToken     string            `gorm:"type:varchar(128)"`
	Notes            string            `gorm:"type:text"`
	CreatedAt        time.Time         `gorm:"type:timestamptz;not null"`
	UpdatedAt        time.Time         `gorm:"type:timestamptz;not null"`
}

// TableName specifies the table name for GORM.
func (ActivationModel) TableName() string { return "partner_activations" }

// GormActivationRepository implements activation.Repository using GORM/PostgreSQL.
type GormActivationRepository struct {
	db *gorm.DB
}

// NewGormActivationRepository creates a new GORM-based activation repository.
func NewGormActivationRepository(db *gorm.DB) *GormActivationRepository {
	return &GormActivationRepository{db: db}
}

// InsertPending persists a fresh record. The unique index on source_event_id
// makes duplicate webhook deliveries collapse into the original row; a
// conflict is reported as inserted=false, never as an error.
func (r *GormActivationRepository) InsertPending(ctx context.Context, record *activationDomain.Record) (bool, error) {
	model := toActivationModel(record)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_event_id"}},
			DoNothing: true,
		}).
		Create(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FindByID retrieves a record by its unique ID.
func (r *GormActivationRepository) FindByID(ctx context.Context, id uuid.UUID) (*activationDomain.Record, error) {
	var model ActivationModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("activation", id.String())
		}
		return nil, err
	}
	return toActivationDomain(&model), nil
}

// FindBySourceEventID retrieves a record by the upstream webhook event id.
func (r *GormActivationRepository) FindBySourceEventID(ctx context.Context, sourceEventID string) (*activationDomain.Record, error) {
	var model ActivationModel
	if err := r.db.WithContext(ctx).Where("source_event_id = ?", sourceEventID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("activation", sourceEventID)
		}
		return nil, err
	}
	return toActivationDomain(&model), nil
}

// ListRecent retrieves the most recently updated records. A non-positive
// limit means no limit.
func (r *GormActivationRepository) ListRecent(ctx context.Context, limit int) ([]*activationDomain.Record, error) {
	if limit <= 0 {
		limit = -1
	}
	var models []ActivationModel
	if err := r.db.WithContext(ctx).Order("updated_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	return toActivationDomainSlice(models), nil
}

// ListByStatus retrieves records with the given status, newest first.
func (r *GormActivationRepository) ListByStatus(ctx context.Context, status activationDomain.Status, limit int) ([]*activationDomain.Record, error) {
	if limit <= 0 {
		limit = -1
	}
	var models []ActivationModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(status)).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	return toActivationDomainSlice(models), nil
}

// Update persists changes to an existing record.
func (r *GormActivationRepository) Update(ctx context.Context, record *activationDomain.Record) error {
	model := toActivationModel(record)
	result := r.db.WithContext(ctx).Model(&ActivationModel{}).Where("id = ?", model.ID).Updates(map[string]interface{}{
		"status":             model.Status,
		"fulfilled_key":      model.FulfilledKey,
		"fulfilled_tier":     model.FulfilledTier,
		"fulfilled_start_at": model.FulfilledStartAt,
		"fulfilled_end_at":   model.FulfilledEndAt,
		"fulfilled_at":       model.FulfilledAt,
		"partner_token":      model.PartnerToken,
		"notes":              model.Notes,
		"updated_at":         model.UpdatedAt,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFoundError("activation", model.ID.String())
	}
	return nil
}

func toActivationModel(rec *activationDomain.Record) ActivationModel {
	return ActivationModel{
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
		FulfilledAt:      rec.FulfilledAt(),
		PartnerToken:     rec.PartnerStatsToken(),
		Notes:            rec.Notes(),
		CreatedAt:        rec.CreatedAt(),
		UpdatedAt:        rec.UpdatedAt(),
	}
}

func toActivationDomain(m *ActivationModel) *activationDomain.Record {
	return activationDomain.Reconstitute(
		m.ID,
		m.SourceEventID, m.PackageKey, m.PaymentLinkID, m.CustomerEmail, m.CustomerName, m.EventName, m.EventURL,
		m.AmountTotalCents,
		m.Currency,
		m.Metadata,
		activationDomain.Status(m.Status),
		m.FulfilledKey, m.FulfilledTier,
		m.FulfilledStartAt, m.FulfilledEndAt, m.FulfilledAt,
		m.PartnerToken, m.Notes,
		m.CreatedAt, m.UpdatedAt,
	)
}

func toActivationDomainSlice(models []ActivationModel) []*activationDomain.Record {
	records := make([]*activationDomain.Record, len(models))
	for i := range models {
		records[i] = toActivationDomain(&models[i])
	}
	return records
}

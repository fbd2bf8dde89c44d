package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/paris-agenda/service-promotion/internal/domain"
	scheduleDomain "github.com/paris-agenda/service-promotion/internal/domain/schedule"
)

// ScheduleEntryModel is the GORM persistence model for the schedule_entries table.
type ScheduleEntryModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	Tier          string    `gorm:"type:varchar(30);not null;index:idx_entries_tier_status,priority:1"`
	EventKey      string    `gorm:"type:varchar(255);not null;index"`
	StartAt       time.Time `gorm:"type:timestamptz;not null"`
	DurationHours int       `gorm:"not null"`
	Status        string    `gorm:"type:varchar(20);not null;index:idx_entries_tier_status,priority:2"`
	CreatedAt     time.Time `gorm:"type:timestamptz;not null"`
	UpdatedAt     time.Time `gorm:"type:timestamptz;not null"`
}

// TableName specifies the table name for GORM.
func (ScheduleEntryModel) TableName() string { return "schedule_entries" }

// GormScheduleRepository implements schedule.Repository using GORM/PostgreSQL.
type GormScheduleRepository struct {
	db *gorm.DB
}

// NewGormScheduleRepository creates a new GORM-based schedule repository.
func NewGormScheduleRepository(db *gorm.DB) *GormScheduleRepository {
	return &GormScheduleRepository{db: db}
}

// FindByID retrieves an entry by its unique ID within a tier.
func (r *GormScheduleRepository) FindByID(ctx context.Context, tier string, id uuid.UUID) (*scheduleDomain.Entry, error) {
	var model ScheduleEntryModel
	if err := r.db.WithContext(ctx).Where("tier = ? AND id = ?", tier, id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("schedule entry", id.String())
		}
		return nil, err
	}
	return toEntryDomain(&model), nil
}

// ListByTier retrieves every non-purged entry for a tier.
func (r *GormScheduleRepository) ListByTier(ctx context.Context, tier string) ([]*scheduleDomain.Entry, error) {
	var models []ScheduleEntryModel
	if err := r.db.WithContext(ctx).Where("tier = ?", tier).Order("start_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	return toEntryDomainSlice(models), nil
}

// ListScheduled retrieves entries with status scheduled for a tier.
func (r *GormScheduleRepository) ListScheduled(ctx context.Context, tier string) ([]*scheduleDomain.Entry, error) {
	var models []ScheduleEntryModel
	if err := r.db.WithContext(ctx).
		Where("tier = ? AND status = ?", tier, string(scheduleDomain.StatusScheduled)).
		Order("start_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return toEntryDomainSlice(models), nil
}

// Save persists a new entry.
func (r *GormScheduleRepository) Save(ctx context.Context, entry *scheduleDomain.Entry) error {
	model := toEntryModel(entry)
	return r.db.WithContext(ctx).Create(&model).Error
}

// Update persists changes to an existing entry.
func (r *GormScheduleRepository) Update(ctx context.Context, entry *scheduleDomain.Entry) error {
	model := toEntryModel(entry)
	result := r.db.WithContext(ctx).Model(&ScheduleEntryModel{}).Where("id = ?", model.ID).Updates(map[string]interface{}{
		"start_at":       model.StartAt,
		"duration_hours": model.DurationHours,
		"status":         model.Status,
		"updated_at":     model.UpdatedAt,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFoundError("schedule entry", model.ID.String())
	}
	return nil
}

// PurgeHistory deletes terminal entries and entries whose window ended before
// the cutoff.
func (r *GormScheduleRepository) PurgeHistory(ctx context.Context, tier string, endedBefore time.Time) (int, error) {
	result := r.db.WithContext(ctx).
		Where("tier = ?", tier).
		Where("status IN ? OR (start_at + make_interval(hours => duration_hours)) < ?",
			[]string{string(scheduleDomain.StatusCancelled), string(scheduleDomain.StatusSuperseded)},
			endedBefore.UTC(),
		).
		Delete(&ScheduleEntryModel{})
	return int(result.RowsAffected), result.Error
}

// Transact runs fn inside one serializable transaction so the admission check
// and the resulting write cannot interleave with a concurrent scheduler call.
func (r *GormScheduleRepository) Transact(ctx context.Context, fn func(scheduleDomain.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormScheduleRepository{db: tx})
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
}

func toEntryModel(e *scheduleDomain.Entry) ScheduleEntryModel {
	return ScheduleEntryModel{
		ID:            e.ID(),
		Tier:          e.Tier(),
		EventKey:      e.EventKey(),
		StartAt:       e.StartAt(),
		DurationHours: e.DurationHours(),
		Status:        string(e.Status()),
		CreatedAt:     e.CreatedAt(),
		UpdatedAt:     e.UpdatedAt(),
	}
}

func toEntryDomain(m *ScheduleEntryModel) *scheduleDomain.Entry {
	return scheduleDomain.Reconstitute(
		m.ID, m.Tier, m.EventKey, m.StartAt, m.DurationHours,
		scheduleDomain.Status(m.Status), m.CreatedAt, m.UpdatedAt,
	)
}

func toEntryDomainSlice(models []ScheduleEntryModel) []*scheduleDomain.Entry {
	entries := make([]*scheduleDomain.Entry, len(models))
	for i := range models {
		entries[i] = toEntryDomain(&models[i])
	}
	return entries
}

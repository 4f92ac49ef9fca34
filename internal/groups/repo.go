package groups

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kixikila/kixikila-backend/pkg/db/models"
	"github.com/kixikila/kixikila-backend/pkg/enums"
	"github.com/kixikila/kixikila-backend/pkg/pagination"
)

// Repository exposes savings group persistence operations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, group *models.SavingsGroup) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.SavingsGroup, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.SavingsGroup, error)
	ListPublicActive(ctx context.Context, cursor *pagination.Cursor, limit int) ([]models.SavingsGroup, error)
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
	IncrementMemberCount(ctx context.Context, id uuid.UUID, delta int) error
	IncrementPool(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
	SetCycleState(ctx context.Context, id uuid.UUID, state enums.CycleState) error
	OpenNextCycle(ctx context.Context, id uuid.UUID, nextPayout *time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the repo to the provided GORM connection.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, group *models.SavingsGroup) error {
	return r.db.WithContext(ctx).Create(group).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.SavingsGroup, error) {
	var group models.SavingsGroup
	if err := r.db.WithContext(ctx).First(&group, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

// FindByIDForUpdate locks the group row for the duration of the transaction.
// SQLite serializes writers on its own, so the locking clause is Postgres-only.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.SavingsGroup, error) {
	q := r.db.WithContext(ctx)
	if r.db.Dialector != nil && r.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var group models.SavingsGroup
	if err := q.First(&group, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *repository) ListPublicActive(ctx context.Context, cursor *pagination.Cursor, limit int) ([]models.SavingsGroup, error) {
	q := r.db.WithContext(ctx).
		Where("privacy = ? AND status = ?", enums.GroupPrivacyPublic, enums.GroupStatusActive)
	if cursor != nil {
		q = q.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var rows []models.SavingsGroup
	err := q.Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.SavingsGroup{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *repository) IncrementMemberCount(ctx context.Context, id uuid.UUID, delta int) error {
	return r.db.WithContext(ctx).
		Model(&models.SavingsGroup{}).
		Where("id = ?", id).
		Update("member_count", gorm.Expr("member_count + ?", delta)).Error
}

func (r *repository) IncrementPool(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.SavingsGroup{}).
		Where("id = ?", id).
		Update("total_pool", gorm.Expr("total_pool + ?", amount)).Error
}

func (r *repository) SetCycleState(ctx context.Context, id uuid.UUID, state enums.CycleState) error {
	return r.db.WithContext(ctx).
		Model(&models.SavingsGroup{}).
		Where("id = ?", id).
		Update("cycle_state", state).Error
}

// OpenNextCycle bumps current_cycle, zeroes the pool, and reopens the cycle.
func (r *repository) OpenNextCycle(ctx context.Context, id uuid.UUID, nextPayout *time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.SavingsGroup{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"current_cycle":    gorm.Expr("current_cycle + 1"),
			"total_pool":       decimal.Zero,
			"cycle_state":      enums.CycleStateOpen,
			"next_payout_date": nextPayout,
		}).Error
}

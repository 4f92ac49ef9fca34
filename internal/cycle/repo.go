package cycle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kixikila/kixikila-backend/pkg/db/models"
	"github.com/kixikila/kixikila-backend/pkg/enums"
)

// Repository is the cycle engine's data-access layer. It covers the three
// tables the engine mutates (savings_groups, cycle_contributions,
// payout_events) plus the rotation bookkeeping columns on memberships.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repo to the provided GORM connection.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a clone bound to the transaction handle.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// FindGroupForUpdate loads the group row under a row lock so concurrent
// engine operations on the same group serialize.
// SQLite serializes writers on its own, so the locking clause is Postgres-only.
func (r *Repository) FindGroupForUpdate(ctx context.Context, groupID uuid.UUID) (*models.SavingsGroup, error) {
	q := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var group models.SavingsGroup
	if err := q.Where("id = ?", groupID).First(&group).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

// CutRows creates a fresh unpaid contribution row for every active member of
// the group for the given cycle. Returns the number of rows created.
func (r *Repository) CutRows(ctx context.Context, tx *gorm.DB, group *models.SavingsGroup, cycleNumber int) (int, error) {
	members, err := NewRepository(tx).ActiveMembers(ctx, group.ID)
	if err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, nil
	}

	rows := make([]models.CycleContribution, 0, len(members))
	for _, member := range members {
		rows = append(rows, models.CycleContribution{
			GroupID:     group.ID,
			CycleNumber: cycleNumber,
			UserID:      member.UserID,
			AmountDue:   group.ContributionAmount,
			AmountPaid:  decimal.Zero,
		})
	}
	if err := tx.WithContext(ctx).Create(&rows).Error; err != nil {
		return 0, err
	}
	return len(rows), nil
}

// FindContribution returns the payment slot for (group, cycle, user).
func (r *Repository) FindContribution(ctx context.Context, groupID uuid.UUID, cycleNumber int, userID uuid.UUID) (*models.CycleContribution, error) {
	var row models.CycleContribution
	err := r.db.WithContext(ctx).
		Where("group_id = ? AND cycle_number = ? AND user_id = ?", groupID, cycleNumber, userID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// MarkContributionPaid flips the paid flag. The paid=false guard makes the
// update race-safe: the second of two concurrent payments affects zero rows.
func (r *Repository) MarkContributionPaid(ctx context.Context, contributionID uuid.UUID, amount decimal.Decimal, paidAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CycleContribution{}).
		Where("id = ? AND paid = ?", contributionID, false).
		Updates(map[string]any{
			"paid":        true,
			"amount_paid": amount,
			"paid_at":     &paidAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListContributions returns all payment slots for a group's cycle.
func (r *Repository) ListContributions(ctx context.Context, groupID uuid.UUID, cycleNumber int) ([]models.CycleContribution, error) {
	var rows []models.CycleContribution
	err := r.db.WithContext(ctx).
		Where("group_id = ? AND cycle_number = ?", groupID, cycleNumber).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// CountUnpaidActive counts unpaid slots belonging to currently active
// members. Zero means the cycle is complete: suspended members' unpaid rows
// are excluded from the denominator, and active members without a row
// (admitted mid-cycle) do not block completion.
func (r *Repository) CountUnpaidActive(ctx context.Context, groupID uuid.UUID, cycleNumber int) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CycleContribution{}).
		Joins("JOIN group_memberships ON group_memberships.group_id = cycle_contributions.group_id AND group_memberships.user_id = cycle_contributions.user_id").
		Where("cycle_contributions.group_id = ? AND cycle_contributions.cycle_number = ? AND cycle_contributions.paid = ?", groupID, cycleNumber, false).
		Where("group_memberships.status = ?", enums.MembershipStatusActive).
		Count(&count).Error
	return count, err
}

// CountPaid counts paid slots for a group's cycle.
func (r *Repository) CountPaid(ctx context.Context, groupID uuid.UUID, cycleNumber int) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CycleContribution{}).
		Where("group_id = ? AND cycle_number = ? AND paid = ?", groupID, cycleNumber, true).
		Count(&count).Error
	return count, err
}

// ActiveMembers lists the group's active memberships in rotation order.
func (r *Repository) ActiveMembers(ctx context.Context, groupID uuid.UUID) ([]models.GroupMembership, error) {
	var rows []models.GroupMembership
	err := r.db.WithContext(ctx).
		Where("group_id = ? AND status = ?", groupID, enums.MembershipStatusActive).
		Order("position ASC NULLS LAST").
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// MarkPaidOut flags the membership as having received its rotation payout.
func (r *Repository) MarkPaidOut(ctx context.Context, membershipID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.GroupMembership{}).
		Where("id = ?", membershipID).
		Update("has_been_paid_out", true).Error
}

// ResetRotation clears the paid-out flags of every active member so a new
// rotation can begin.
func (r *Repository) ResetRotation(ctx context.Context, groupID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.GroupMembership{}).
		Where("group_id = ? AND status = ?", groupID, enums.MembershipStatusActive).
		Update("has_been_paid_out", false).Error
}

// AddToMemberTotal increments a member's lifetime contribution total.
func (r *Repository) AddToMemberTotal(ctx context.Context, membershipID uuid.UUID, amount decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.GroupMembership{}).
		Where("id = ?", membershipID).
		Update("total_contributed", gorm.Expr("total_contributed + ?", amount)).Error
}

// AddToPool atomically increments the group's pool for the current cycle.
func (r *Repository) AddToPool(ctx context.Context, groupID uuid.UUID, amount decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.SavingsGroup{}).
		Where("id = ?", groupID).
		Update("total_pool", gorm.Expr("total_pool + ?", amount)).Error
}

// SetCycleState moves the group's cycle through open -> complete -> drawn.
func (r *Repository) SetCycleState(ctx context.Context, groupID uuid.UUID, state enums.CycleState) error {
	return r.db.WithContext(ctx).
		Model(&models.SavingsGroup{}).
		Where("id = ?", groupID).
		Update("cycle_state", state).Error
}

// CompleteGroup closes the group after its final rotation.
func (r *Repository) CompleteGroup(ctx context.Context, groupID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.SavingsGroup{}).
		Where("id = ?", groupID).
		Update("status", enums.GroupStatusCompleted).Error
}

// OpenNextCycle bumps the cycle counter and resets per-cycle state.
func (r *Repository) OpenNextCycle(ctx context.Context, groupID uuid.UUID, nextPayout *time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.SavingsGroup{}).
		Where("id = ?", groupID).
		Updates(map[string]any{
			"current_cycle":    gorm.Expr("current_cycle + 1"),
			"total_pool":       decimal.Zero,
			"cycle_state":      enums.CycleStateOpen,
			"next_payout_date": nextPayout,
		}).Error
}

// GroupsApproachingPayout lists active groups whose cycle is still open and
// whose payout date falls on or before the given instant.
func (r *Repository) GroupsApproachingPayout(ctx context.Context, by time.Time) ([]models.SavingsGroup, error) {
	var rows []models.SavingsGroup
	err := r.db.WithContext(ctx).
		Where("status = ? AND cycle_state = ?", enums.GroupStatusActive, enums.CycleStateOpen).
		Where("next_payout_date IS NOT NULL AND next_payout_date <= ?", by).
		Order("next_payout_date ASC").
		Find(&rows).Error
	return rows, err
}

// UnpaidActiveUserIDs returns the active members who still owe the cycle.
func (r *Repository) UnpaidActiveUserIDs(ctx context.Context, groupID uuid.UUID, cycleNumber int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.CycleContribution{}).
		Joins("JOIN group_memberships ON group_memberships.group_id = cycle_contributions.group_id AND group_memberships.user_id = cycle_contributions.user_id").
		Where("cycle_contributions.group_id = ? AND cycle_contributions.cycle_number = ? AND cycle_contributions.paid = ?", groupID, cycleNumber, false).
		Where("group_memberships.status = ?", enums.MembershipStatusActive).
		Order("cycle_contributions.created_at ASC").
		Pluck("cycle_contributions.user_id", &ids).Error
	return ids, err
}

// CreatePayout inserts the cycle's draw outcome. The (group, cycle) unique
// index rejects a second draw.
func (r *Repository) CreatePayout(ctx context.Context, payout *models.PayoutEvent) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

// FindPayout returns the draw outcome for (group, cycle), or nil when the
// cycle has not been drawn.
func (r *Repository) FindPayout(ctx context.Context, groupID uuid.UUID, cycleNumber int) (*models.PayoutEvent, error) {
	var payout models.PayoutEvent
	err := r.db.WithContext(ctx).
		Where("group_id = ? AND cycle_number = ?", groupID, cycleNumber).
		First(&payout).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

// ListPayouts returns the group's payout history, newest first.
func (r *Repository) ListPayouts(ctx context.Context, groupID uuid.UUID) ([]models.PayoutEvent, error) {
	var rows []models.PayoutEvent
	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("cycle_number DESC").
		Find(&rows).Error
	return rows, err
}

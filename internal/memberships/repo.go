package memberships

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kixikila/kixikila-backend/pkg/db/models"
	"github.com/kixikila/kixikila-backend/pkg/enums"
)

// Repository exposes membership persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repo to the provided GORM connection.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetMembership retrieves a membership by user and group.
func (r *Repository) GetMembership(ctx context.Context, userID, groupID uuid.UUID) (*models.GroupMembership, error) {
	var membership models.GroupMembership
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND group_id = ?", userID, groupID).
		First(&membership).Error
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

// CreateMembership persists a new membership record.
func (r *Repository) CreateMembership(ctx context.Context, groupID, userID uuid.UUID, role enums.MemberRole, invitedBy *uuid.UUID, status enums.MembershipStatus) (*models.GroupMembership, error) {
	if !role.IsValid() {
		return nil, fmt.Errorf("invalid member role %q", role)
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid membership status %q", status)
	}

	membership := &models.GroupMembership{
		GroupID:         groupID,
		UserID:          userID,
		Role:            role,
		Status:          status,
		InvitedByUserID: invitedBy,
	}

	if err := r.db.WithContext(ctx).Create(membership).Error; err != nil {
		return nil, err
	}
	return membership, nil
}

// UserHasRole reports whether the user holds one of the provided roles in the group.
func (r *Repository) UserHasRole(ctx context.Context, userID, groupID uuid.UUID, roles ...enums.MemberRole) (bool, error) {
	if len(roles) == 0 {
		return false, nil
	}

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.GroupMembership{}).
		Where("user_id = ? AND group_id = ? AND role IN ?", userID, groupID, roles).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListGroupMembers returns memberships for the group along with user metadata.
func (r *Repository) ListGroupMembers(ctx context.Context, groupID uuid.UUID) ([]GroupMemberDTO, error) {
	var rows []groupMemberRow
	err := r.db.WithContext(ctx).
		Model(&models.GroupMembership{}).
		Select("group_memberships.*, users.email, users.first_name, users.last_name").
		Joins("JOIN users ON users.id = group_memberships.user_id").
		Where("group_memberships.group_id = ?", groupID).
		Order("group_memberships.created_at").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return groupMembersFromRows(rows), nil
}

// ListActiveMembers returns active memberships for a group ordered by position.
func (r *Repository) ListActiveMembers(ctx context.Context, groupID uuid.UUID) ([]models.GroupMembership, error) {
	var rows []models.GroupMembership
	err := r.db.WithContext(ctx).
		Where("group_id = ? AND status = ?", groupID, enums.MembershipStatusActive).
		Order("position ASC NULLS LAST").
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListUserGroups returns the groups a user belongs to along with membership metadata.
func (r *Repository) ListUserGroups(ctx context.Context, userID uuid.UUID) ([]MembershipWithGroup, error) {
	var rows []membershipWithGroupRow
	err := r.db.WithContext(ctx).
		Model(&models.GroupMembership{}).
		Select("group_memberships.*, savings_groups.name AS group_name, savings_groups.status AS group_status, savings_groups.group_type AS group_type").
		Joins("JOIN savings_groups ON savings_groups.id = group_memberships.group_id").
		Where("group_memberships.user_id = ?", userID).
		Order("savings_groups.name").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return membershipRowsToDTO(rows), nil
}

// UpdateStatus transitions the membership's status.
func (r *Repository) UpdateStatus(ctx context.Context, membershipID uuid.UUID, status enums.MembershipStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid membership status %q", status)
	}
	return r.db.WithContext(ctx).
		Model(&models.GroupMembership{}).
		Where("id = ?", membershipID).
		Update("status", status).Error
}

// UpdateRole changes the membership's role.
func (r *Repository) UpdateRole(ctx context.Context, membershipID uuid.UUID, role enums.MemberRole) error {
	if !role.IsValid() {
		return fmt.Errorf("invalid member role %q", role)
	}
	return r.db.WithContext(ctx).
		Model(&models.GroupMembership{}).
		Where("id = ?", membershipID).
		Update("role", role).Error
}

// AssignPosition sets a member's rotation slot.
func (r *Repository) AssignPosition(ctx context.Context, membershipID uuid.UUID, position int) error {
	if position < 1 {
		return fmt.Errorf("position must be >= 1")
	}
	return r.db.WithContext(ctx).
		Model(&models.GroupMembership{}).
		Where("id = ?", membershipID).
		Update("position", position).Error
}

// CountByStatus counts the group's memberships in the given status.
func (r *Repository) CountByStatus(ctx context.Context, groupID uuid.UUID, status enums.MembershipStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.GroupMembership{}).
		Where("group_id = ? AND status = ?", groupID, status).
		Count(&count).Error
	return count, err
}

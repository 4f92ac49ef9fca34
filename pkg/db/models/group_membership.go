package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kixikila/kixikila-backend/pkg/enums"
)

// GroupMembership links a user with a savings group and captures their
// role/status plus rotation bookkeeping. Position orders payout turns in
// ordered groups and is unique among a group's rows when set.
type GroupMembership struct {
	ID               uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	GroupID          uuid.UUID              `gorm:"column:group_id;type:uuid;not null;uniqueIndex:ux_group_memberships_group_user"`
	UserID           uuid.UUID              `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_group_memberships_group_user"`
	Role             enums.MemberRole       `gorm:"column:role;type:member_role;not null"`
	Status           enums.MembershipStatus `gorm:"column:status;type:membership_status;not null"`
	Position         *int                   `gorm:"column:position"`
	HasBeenPaidOut   bool                   `gorm:"column:has_been_paid_out;not null;default:false"`
	TotalContributed decimal.Decimal        `gorm:"column:total_contributed;type:numeric(12,2);not null;default:0"`
	InvitedByUserID  *uuid.UUID             `gorm:"column:invited_by_user_id;type:uuid"`
	JoinedAt         time.Time              `gorm:"column:joined_at;autoCreateTime"`
	CreatedAt        time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

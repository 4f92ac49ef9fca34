package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kixikila/kixikila-backend/pkg/enums"
)

// SavingsGroup is the aggregate root for a rotating savings group. TotalPool
// mirrors the sum of paid contributions for the current cycle and is reset to
// zero when a new cycle opens. CurrentCycle is monotonic.
type SavingsGroup struct {
	ID                   uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	Name                 string                      `gorm:"column:name;type:text;not null"`
	Description          string                      `gorm:"column:description;type:text;not null;default:''"`
	ContributionAmount   decimal.Decimal             `gorm:"column:contribution_amount;type:numeric(12,2);not null"`
	Frequency            enums.ContributionFrequency `gorm:"column:contribution_frequency;type:contribution_frequency;not null"`
	MaxMembers           int                         `gorm:"column:max_members;not null"`
	MemberCount          int                         `gorm:"column:member_count;not null;default:0"`
	Type                 enums.GroupType             `gorm:"column:group_type;type:group_type;not null"`
	Privacy              enums.GroupPrivacy          `gorm:"column:privacy;type:group_privacy;not null"`
	Status               enums.GroupStatus           `gorm:"column:status;type:group_status;not null;default:draft"`
	AllowRepeatRotations bool                        `gorm:"column:allow_repeat_rotations;not null;default:false"`
	TotalPool            decimal.Decimal             `gorm:"column:total_pool;type:numeric(12,2);not null;default:0"`
	CurrentCycle         int                         `gorm:"column:current_cycle;not null;default:1"`
	CycleState           enums.CycleState            `gorm:"column:cycle_state;type:cycle_state;not null;default:open"`
	NextPayoutDate       *time.Time                  `gorm:"column:next_payout_date"`
	CreatedByUserID      uuid.UUID                   `gorm:"column:created_by_user_id;type:uuid;not null"`
	CreatedAt            time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName keeps the table out of GORM's default pluralization ("savings_groups"
// is already plural but "SavingsGroup" pluralizes awkwardly).
func (SavingsGroup) TableName() string {
	return "savings_groups"
}

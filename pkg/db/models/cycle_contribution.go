package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CycleContribution is one member's payment slot for one cycle. A fresh row
// is cut for every active member when a cycle opens; once the cycle closes
// the row is a historical record and is never mutated again. AmountPaid
// equals AmountDue whenever Paid is true (partial payments are not modeled).
type CycleContribution struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	GroupID     uuid.UUID       `gorm:"column:group_id;type:uuid;not null;uniqueIndex:ux_cycle_contributions_group_cycle_user"`
	CycleNumber int             `gorm:"column:cycle_number;not null;uniqueIndex:ux_cycle_contributions_group_cycle_user"`
	UserID      uuid.UUID       `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_cycle_contributions_group_cycle_user"`
	AmountDue   decimal.Decimal `gorm:"column:amount_due;type:numeric(12,2);not null"`
	AmountPaid  decimal.Decimal `gorm:"column:amount_paid;type:numeric(12,2);not null;default:0"`
	Paid        bool            `gorm:"column:paid;not null;default:false"`
	PaidAt      *time.Time      `gorm:"column:paid_at"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

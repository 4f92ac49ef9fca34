package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kixikila/kixikila-backend/pkg/enums"
)

// PayoutEvent records the immutable outcome of one cycle's draw. The unique
// index on (group_id, cycle_number) is the concurrency guard against double
// payouts: concurrent draws race on the insert and the loser surfaces a
// conflict to the caller.
type PayoutEvent struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	GroupID         uuid.UUID          `gorm:"column:group_id;type:uuid;not null;uniqueIndex:ux_payout_events_group_cycle"`
	CycleNumber     int                `gorm:"column:cycle_number;not null;uniqueIndex:ux_payout_events_group_cycle"`
	RecipientUserID uuid.UUID          `gorm:"column:recipient_user_id;type:uuid;not null"`
	Amount          decimal.Decimal    `gorm:"column:amount;type:numeric(12,2);not null"`
	Method          enums.PayoutMethod `gorm:"column:method;type:payout_method;not null"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
}

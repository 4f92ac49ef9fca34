package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/kixikila/kixikila-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// GroupActivatedEvent signals a group left draft and its first cycle opened.
type GroupActivatedEvent struct {
	GroupID     uuid.UUID       `json:"group_id"`
	Name        string          `json:"name"`
	Type        enums.GroupType `json:"type"`
	MemberCount int             `json:"member_count"`
	CycleNumber int             `json:"cycle_number"`
	ActivatedAt time.Time       `json:"activated_at"`
}

// GroupCompletedEvent signals the rotation finished and the group closed.
type GroupCompletedEvent struct {
	GroupID     uuid.UUID `json:"group_id"`
	FinalCycle  int       `json:"final_cycle"`
	CompletedAt time.Time `json:"completed_at"`
}

// MemberJoinedEvent is emitted when a user requests or gains membership.
type MemberJoinedEvent struct {
	GroupID uuid.UUID              `json:"group_id"`
	UserID  uuid.UUID              `json:"user_id"`
	Status  enums.MembershipStatus `json:"status"`
}

// MemberApprovedEvent marks a pending membership turning active.
type MemberApprovedEvent struct {
	GroupID    uuid.UUID `json:"group_id"`
	UserID     uuid.UUID `json:"user_id"`
	ApprovedBy uuid.UUID `json:"approved_by"`
	Position   *int      `json:"position,omitempty"`
	ApprovedAt time.Time `json:"approved_at"`
}

// MemberSuspendedEvent is emitted when an admin suspends or removes a member.
type MemberSuspendedEvent struct {
	GroupID uuid.UUID              `json:"group_id"`
	UserID  uuid.UUID              `json:"user_id"`
	Status  enums.MembershipStatus `json:"status"`
	Reason  string                 `json:"reason,omitempty"`
}

// ContributionRecordedEvent carries a single member payment into a cycle.
type ContributionRecordedEvent struct {
	GroupID     uuid.UUID       `json:"group_id"`
	CycleNumber int             `json:"cycle_number"`
	UserID      uuid.UUID       `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	PaidAt      time.Time       `json:"paid_at"`
}

// CycleCompletedEvent signals every active member has paid for the cycle.
type CycleCompletedEvent struct {
	GroupID     uuid.UUID       `json:"group_id"`
	CycleNumber int             `json:"cycle_number"`
	PoolAmount  decimal.Decimal `json:"pool_amount"`
	PaidCount   int             `json:"paid_count"`
	CompletedAt time.Time       `json:"completed_at"`
}

// PayoutSelectedEvent is emitted when a cycle's recipient is drawn.
type PayoutSelectedEvent struct {
	GroupID         uuid.UUID          `json:"group_id"`
	CycleNumber     int                `json:"cycle_number"`
	RecipientUserID uuid.UUID          `json:"recipient_user_id"`
	Amount          decimal.Decimal    `json:"amount"`
	Method          enums.PayoutMethod `json:"method"`
	SelectedAt      time.Time          `json:"selected_at"`
}

// CycleAdvancedEvent reports the group moving to the next cycle, or finishing.
type CycleAdvancedEvent struct {
	GroupID        uuid.UUID         `json:"group_id"`
	FromCycle      int               `json:"from_cycle"`
	ToCycle        int               `json:"to_cycle"`
	GroupStatus    enums.GroupStatus `json:"group_status"`
	NextPayoutDate *time.Time        `json:"next_payout_date,omitempty"`
}

// PayoutReminderDueEvent nudges members whose contribution deadline approaches.
type PayoutReminderDueEvent struct {
	GroupID        uuid.UUID   `json:"group_id"`
	CycleNumber    int         `json:"cycle_number"`
	UnpaidUserIDs  []uuid.UUID `json:"unpaid_user_ids"`
	NextPayoutDate time.Time   `json:"next_payout_date"`
}

// NotificationRequestedEvent tells the notification worker to persist an alert.
type NotificationRequestedEvent struct {
	UserID  uuid.UUID              `json:"user_id"`
	GroupID *uuid.UUID             `json:"group_id,omitempty"`
	Type    enums.NotificationType `json:"type"`
	Title   string                 `json:"title"`
	Message string                 `json:"message"`
}

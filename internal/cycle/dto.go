package cycle

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kixikila/kixikila-backend/pkg/db/models"
	"github.com/kixikila/kixikila-backend/pkg/enums"
)

// ContributionDTO is one member's payment slot for one cycle.
type ContributionDTO struct {
	ID          uuid.UUID       `json:"id"`
	GroupID     uuid.UUID       `json:"group_id"`
	CycleNumber int             `json:"cycle_number"`
	UserID      uuid.UUID       `json:"user_id"`
	AmountDue   decimal.Decimal `json:"amount_due"`
	AmountPaid  decimal.Decimal `json:"amount_paid"`
	Paid        bool            `json:"paid"`
	PaidAt      *time.Time      `json:"paid_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// PayoutDTO is the immutable outcome of one cycle's draw.
type PayoutDTO struct {
	ID              uuid.UUID          `json:"id"`
	GroupID         uuid.UUID          `json:"group_id"`
	CycleNumber     int                `json:"cycle_number"`
	RecipientUserID uuid.UUID          `json:"recipient_user_id"`
	Amount          decimal.Decimal    `json:"amount"`
	Method          enums.PayoutMethod `json:"method"`
	CreatedAt       time.Time          `json:"created_at"`
}

// DrawResult is what SelectPayoutRecipient hands back: either a payout, or
// the group transitioning to completed because the rotation finished and
// repeats are disallowed.
type DrawResult struct {
	Payout         *PayoutDTO `json:"payout,omitempty"`
	GroupCompleted bool       `json:"group_completed"`
}

// CycleStatus summarizes the in-flight cycle for one group.
type CycleStatus struct {
	GroupID      uuid.UUID        `json:"group_id"`
	CycleNumber  int              `json:"cycle_number"`
	State        enums.CycleState `json:"state"`
	Complete     bool             `json:"complete"`
	PaidCount    int              `json:"paid_count"`
	PendingCount int              `json:"pending_count"`
	TotalPool    decimal.Decimal  `json:"total_pool"`
}

// AdvanceResult describes the cycle transition performed by AdvanceCycle.
// When the rotation is exhausted and repeats are disallowed the group
// completes instead of opening a next cycle; GroupCompleted flags that and
// ToCycle stays equal to FromCycle.
type AdvanceResult struct {
	GroupID        uuid.UUID  `json:"group_id"`
	FromCycle      int        `json:"from_cycle"`
	ToCycle        int        `json:"to_cycle"`
	RowsCut        int        `json:"rows_cut"`
	NextPayoutDate *time.Time `json:"next_payout_date,omitempty"`
	GroupCompleted bool       `json:"group_completed"`
}

func contributionToDTO(row *models.CycleContribution) *ContributionDTO {
	return &ContributionDTO{
		ID:          row.ID,
		GroupID:     row.GroupID,
		CycleNumber: row.CycleNumber,
		UserID:      row.UserID,
		AmountDue:   row.AmountDue,
		AmountPaid:  row.AmountPaid,
		Paid:        row.Paid,
		PaidAt:      row.PaidAt,
		CreatedAt:   row.CreatedAt,
	}
}

func contributionsToDTO(rows []models.CycleContribution) []ContributionDTO {
	out := make([]ContributionDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *contributionToDTO(&rows[i]))
	}
	return out
}

func payoutToDTO(row *models.PayoutEvent) *PayoutDTO {
	return &PayoutDTO{
		ID:              row.ID,
		GroupID:         row.GroupID,
		CycleNumber:     row.CycleNumber,
		RecipientUserID: row.RecipientUserID,
		Amount:          row.Amount,
		Method:          row.Method,
		CreatedAt:       row.CreatedAt,
	}
}

func payoutsToDTO(rows []models.PayoutEvent) []PayoutDTO {
	out := make([]PayoutDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *payoutToDTO(&rows[i]))
	}
	return out
}

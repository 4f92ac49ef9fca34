package groups

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kixikila/kixikila-backend/pkg/db/models"
	"github.com/kixikila/kixikila-backend/pkg/enums"
)

// GroupDTO is the transport shape for a savings group.
type GroupDTO struct {
	ID                   uuid.UUID                   `json:"id"`
	Name                 string                      `json:"name"`
	Description          string                      `json:"description"`
	ContributionAmount   decimal.Decimal             `json:"contribution_amount"`
	Frequency            enums.ContributionFrequency `json:"contribution_frequency"`
	MaxMembers           int                         `json:"max_members"`
	MemberCount          int                         `json:"member_count"`
	Type                 enums.GroupType             `json:"group_type"`
	Privacy              enums.GroupPrivacy          `json:"privacy"`
	Status               enums.GroupStatus           `json:"status"`
	AllowRepeatRotations bool                        `json:"allow_repeat_rotations"`
	TotalPool            decimal.Decimal             `json:"total_pool"`
	CurrentCycle         int                         `json:"current_cycle"`
	CycleState           enums.CycleState            `json:"cycle_state"`
	NextPayoutDate       *time.Time                  `json:"next_payout_date,omitempty"`
	CreatedByUserID      uuid.UUID                   `json:"created_by_user_id"`
	CreatedAt            time.Time                   `json:"created_at"`
	UpdatedAt            time.Time                   `json:"updated_at"`
}

// CreateGroupInput captures the fields a creator supplies for a new group.
type CreateGroupInput struct {
	Name                 string                      `json:"name" validate:"required,min=3,max=120"`
	Description          string                      `json:"description" validate:"max=2000"`
	ContributionAmount   decimal.Decimal             `json:"contribution_amount" validate:"required"`
	Frequency            enums.ContributionFrequency `json:"contribution_frequency" validate:"required"`
	MaxMembers           int                         `json:"max_members" validate:"required,min=2,max=100"`
	Type                 enums.GroupType             `json:"group_type" validate:"required"`
	Privacy              enums.GroupPrivacy          `json:"privacy" validate:"required"`
	AllowRepeatRotations bool                        `json:"allow_repeat_rotations"`
}

// UpdateGroupInput carries the mutable fields. Amount/frequency/max_members
// may only change while the group is still a draft.
type UpdateGroupInput struct {
	Name               *string                      `json:"name,omitempty" validate:"omitempty,min=3,max=120"`
	Description        *string                      `json:"description,omitempty" validate:"omitempty,max=2000"`
	Privacy            *enums.GroupPrivacy          `json:"privacy,omitempty"`
	ContributionAmount *decimal.Decimal             `json:"contribution_amount,omitempty"`
	Frequency          *enums.ContributionFrequency `json:"contribution_frequency,omitempty"`
	MaxMembers         *int                         `json:"max_members,omitempty" validate:"omitempty,min=2,max=100"`
}

// GroupPage is a cursor-paginated listing result.
type GroupPage struct {
	Groups     []GroupDTO `json:"groups"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// ToDTO converts the model into the external shape.
func ToDTO(g *models.SavingsGroup) *GroupDTO {
	if g == nil {
		return nil
	}
	return &GroupDTO{
		ID:                   g.ID,
		Name:                 g.Name,
		Description:          g.Description,
		ContributionAmount:   g.ContributionAmount,
		Frequency:            g.Frequency,
		MaxMembers:           g.MaxMembers,
		MemberCount:          g.MemberCount,
		Type:                 g.Type,
		Privacy:              g.Privacy,
		Status:               g.Status,
		AllowRepeatRotations: g.AllowRepeatRotations,
		TotalPool:            g.TotalPool,
		CurrentCycle:         g.CurrentCycle,
		CycleState:           g.CycleState,
		NextPayoutDate:       g.NextPayoutDate,
		CreatedByUserID:      g.CreatedByUserID,
		CreatedAt:            g.CreatedAt,
		UpdatedAt:            g.UpdatedAt,
	}
}

func toDTOs(rows []models.SavingsGroup) []GroupDTO {
	out := make([]GroupDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *ToDTO(&rows[i]))
	}
	return out
}

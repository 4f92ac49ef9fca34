package memberships

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kixikila/kixikila-backend/pkg/db/models"
	"github.com/kixikila/kixikila-backend/pkg/enums"
)

// MembershipDTO is the transport shape for a raw membership record.
type MembershipDTO struct {
	ID               uuid.UUID              `json:"id"`
	GroupID          uuid.UUID              `json:"group_id"`
	UserID           uuid.UUID              `json:"user_id"`
	Role             enums.MemberRole       `json:"role"`
	Status           enums.MembershipStatus `json:"status"`
	Position         *int                   `json:"position,omitempty"`
	HasBeenPaidOut   bool                   `json:"has_been_paid_out"`
	TotalContributed decimal.Decimal        `json:"total_contributed"`
	InvitedByUserID  *uuid.UUID             `json:"invited_by_user_id,omitempty"`
	JoinedAt         time.Time              `json:"joined_at"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// MembershipWithGroup includes basic group metadata + membership info.
type MembershipWithGroup struct {
	MembershipID   uuid.UUID              `json:"membership_id"`
	GroupID        uuid.UUID              `json:"group_id"`
	UserID         uuid.UUID              `json:"user_id"`
	GroupName      string                 `json:"group_name"`
	GroupStatus    enums.GroupStatus      `json:"group_status"`
	GroupType      enums.GroupType        `json:"group_type"`
	Role           enums.MemberRole       `json:"role"`
	Status         enums.MembershipStatus `json:"status"`
	Position       *int                   `json:"position,omitempty"`
	HasBeenPaidOut bool                   `json:"has_been_paid_out"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// GroupMemberDTO mixes membership metadata with the associated user profile
// for group admins.
type GroupMemberDTO struct {
	MembershipID     uuid.UUID              `json:"membership_id"`
	GroupID          uuid.UUID              `json:"group_id"`
	UserID           uuid.UUID              `json:"user_id"`
	Email            string                 `json:"email"`
	FirstName        string                 `json:"first_name"`
	LastName         string                 `json:"last_name"`
	Role             enums.MemberRole       `json:"role"`
	Status           enums.MembershipStatus `json:"membership_status"`
	Position         *int                   `json:"position,omitempty"`
	HasBeenPaidOut   bool                   `json:"has_been_paid_out"`
	TotalContributed decimal.Decimal        `json:"total_contributed"`
	CreatedAt        time.Time              `json:"created_at"`
}

// ToDTO converts a model to the external DTO.
func ToDTO(m *models.GroupMembership) *MembershipDTO {
	if m == nil {
		return nil
	}

	return &MembershipDTO{
		ID:               m.ID,
		GroupID:          m.GroupID,
		UserID:           m.UserID,
		Role:             m.Role,
		Status:           m.Status,
		Position:         copyIntPointer(m.Position),
		HasBeenPaidOut:   m.HasBeenPaidOut,
		TotalContributed: m.TotalContributed,
		InvitedByUserID:  copyUUIDPointer(m.InvitedByUserID),
		JoinedAt:         m.JoinedAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func copyUUIDPointer(src *uuid.UUID) *uuid.UUID {
	if src == nil {
		return nil
	}
	dst := *src
	return &dst
}

func copyIntPointer(src *int) *int {
	if src == nil {
		return nil
	}
	dst := *src
	return &dst
}

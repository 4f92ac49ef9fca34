package memberships

import (
	"github.com/kixikila/kixikila-backend/pkg/db/models"
	"github.com/kixikila/kixikila-backend/pkg/enums"
)

type membershipWithGroupRow struct {
	models.GroupMembership
	GroupName   string            `gorm:"column:group_name"`
	GroupStatus enums.GroupStatus `gorm:"column:group_status"`
	GroupType   enums.GroupType   `gorm:"column:group_type"`
}

func membershipWithGroupFromRow(row membershipWithGroupRow) MembershipWithGroup {
	return MembershipWithGroup{
		MembershipID:   row.ID,
		GroupID:        row.GroupID,
		UserID:         row.UserID,
		GroupName:      row.GroupName,
		GroupStatus:    row.GroupStatus,
		GroupType:      row.GroupType,
		Role:           row.Role,
		Status:         row.Status,
		Position:       copyIntPointer(row.Position),
		HasBeenPaidOut: row.HasBeenPaidOut,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
}

func membershipRowsToDTO(rows []membershipWithGroupRow) []MembershipWithGroup {
	out := make([]MembershipWithGroup, 0, len(rows))
	for _, row := range rows {
		out = append(out, membershipWithGroupFromRow(row))
	}
	return out
}

type groupMemberRow struct {
	models.GroupMembership
	Email     string `gorm:"column:email"`
	FirstName string `gorm:"column:first_name"`
	LastName  string `gorm:"column:last_name"`
}

func groupMemberFromRow(row groupMemberRow) GroupMemberDTO {
	return GroupMemberDTO{
		MembershipID:     row.ID,
		GroupID:          row.GroupID,
		UserID:           row.UserID,
		Email:            row.Email,
		FirstName:        row.FirstName,
		LastName:         row.LastName,
		Role:             row.Role,
		Status:           row.Status,
		Position:         copyIntPointer(row.Position),
		HasBeenPaidOut:   row.HasBeenPaidOut,
		TotalContributed: row.TotalContributed,
		CreatedAt:        row.CreatedAt,
	}
}

func groupMembersFromRows(rows []groupMemberRow) []GroupMemberDTO {
	out := make([]GroupMemberDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, groupMemberFromRow(row))
	}
	return out
}

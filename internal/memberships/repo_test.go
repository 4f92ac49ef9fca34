package memberships

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kixikila/kixikila-backend/pkg/db/models"
	"github.com/kixikila/kixikila-backend/pkg/enums"
)

func seedGroup(t *testing.T, conn *gorm.DB, owner uuid.UUID) *models.SavingsGroup {
	t.Helper()
	group := &models.SavingsGroup{
		Name:               "Repo Pot",
		ContributionAmount: decimal.NewFromInt(25),
		Frequency:          enums.FrequencyMonthly,
		MaxMembers:         5,
		MemberCount:        1,
		Type:               enums.GroupTypeLottery,
		Privacy:            enums.GroupPrivacyPrivate,
		Status:             enums.GroupStatusDraft,
		CreatedByUserID:    owner,
	}
	require.NoError(t, conn.Create(group).Error)
	return group
}

func TestRepositoryCreateAndGetMembership(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	owner := seedUser(t, conn)
	group := seedGroup(t, conn, owner)

	created, err := repo.CreateMembership(context.Background(), group.ID, owner, enums.MemberRoleCreator, nil, enums.MembershipStatusActive)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)

	got, err := repo.GetMembership(context.Background(), owner, group.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, enums.MemberRoleCreator, got.Role)
	assert.Equal(t, enums.MembershipStatusActive, got.Status)
}

func TestRepositoryCreateMembershipRejectsInvalidEnums(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	owner := seedUser(t, conn)
	group := seedGroup(t, conn, owner)

	_, err := repo.CreateMembership(context.Background(), group.ID, owner, enums.MemberRole("boss"), nil, enums.MembershipStatusActive)
	require.Error(t, err)

	_, err = repo.CreateMembership(context.Background(), group.ID, owner, enums.MemberRoleMember, nil, enums.MembershipStatus("frozen"))
	require.Error(t, err)
}

func TestRepositoryUserHasRole(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	owner := seedUser(t, conn)
	member := seedUser(t, conn)
	group := seedGroup(t, conn, owner)

	_, err := repo.CreateMembership(context.Background(), group.ID, owner, enums.MemberRoleCreator, nil, enums.MembershipStatusActive)
	require.NoError(t, err)
	_, err = repo.CreateMembership(context.Background(), group.ID, member, enums.MemberRoleMember, nil, enums.MembershipStatusActive)
	require.NoError(t, err)

	has, err := repo.UserHasRole(context.Background(), owner, group.ID, enums.MemberRoleCreator, enums.MemberRoleAdmin)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = repo.UserHasRole(context.Background(), member, group.ID, enums.MemberRoleCreator, enums.MemberRoleAdmin)
	require.NoError(t, err)
	assert.False(t, has)

	has, err = repo.UserHasRole(context.Background(), owner, group.ID)
	require.NoError(t, err)
	assert.False(t, has, "no roles means no match")
}

func TestRepositoryListGroupMembersIncludesUserDetails(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	owner := seedUser(t, conn)
	group := seedGroup(t, conn, owner)

	_, err := repo.CreateMembership(context.Background(), group.ID, owner, enums.MemberRoleCreator, nil, enums.MembershipStatusActive)
	require.NoError(t, err)
	member := seedUser(t, conn)
	_, err = repo.CreateMembership(context.Background(), group.ID, member, enums.MemberRoleMember, nil, enums.MembershipStatusPending)
	require.NoError(t, err)

	members, err := repo.ListGroupMembers(context.Background(), group.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	for _, m := range members {
		assert.NotEmpty(t, m.Email)
		assert.NotEmpty(t, m.FirstName)
	}
}

func TestRepositoryListActiveMembersOrdersByPosition(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	owner := seedUser(t, conn)
	group := seedGroup(t, conn, owner)

	first, err := repo.CreateMembership(context.Background(), group.ID, owner, enums.MemberRoleCreator, nil, enums.MembershipStatusActive)
	require.NoError(t, err)
	second, err := repo.CreateMembership(context.Background(), group.ID, seedUser(t, conn), enums.MemberRoleMember, nil, enums.MembershipStatusActive)
	require.NoError(t, err)
	_, err = repo.CreateMembership(context.Background(), group.ID, seedUser(t, conn), enums.MemberRoleMember, nil, enums.MembershipStatusPending)
	require.NoError(t, err)

	require.NoError(t, repo.AssignPosition(context.Background(), first.ID, 2))
	require.NoError(t, repo.AssignPosition(context.Background(), second.ID, 1))

	active, err := repo.ListActiveMembers(context.Background(), group.ID)
	require.NoError(t, err)
	require.Len(t, active, 2, "pending members are excluded")
	assert.Equal(t, second.ID, active[0].ID)
	assert.Equal(t, first.ID, active[1].ID)
}

func TestRepositoryListUserGroups(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	user := seedUser(t, conn)
	groupA := seedGroup(t, conn, user)
	groupB := seedGroup(t, conn, user)
	groupB.Name = "Another Pot"
	require.NoError(t, conn.Save(groupB).Error)

	_, err := repo.CreateMembership(context.Background(), groupA.ID, user, enums.MemberRoleCreator, nil, enums.MembershipStatusActive)
	require.NoError(t, err)
	_, err = repo.CreateMembership(context.Background(), groupB.ID, user, enums.MemberRoleMember, nil, enums.MembershipStatusPending)
	require.NoError(t, err)

	memberships, err := repo.ListUserGroups(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, memberships, 2)
	assert.Equal(t, "Another Pot", memberships[0].GroupName)
	assert.Equal(t, "Repo Pot", memberships[1].GroupName)
}

func TestRepositoryUpdateStatusAndRole(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	owner := seedUser(t, conn)
	group := seedGroup(t, conn, owner)

	membership, err := repo.CreateMembership(context.Background(), group.ID, owner, enums.MemberRoleMember, nil, enums.MembershipStatusPending)
	require.NoError(t, err)

	require.Error(t, repo.UpdateStatus(context.Background(), membership.ID, enums.MembershipStatus("frozen")))
	require.Error(t, repo.UpdateRole(context.Background(), membership.ID, enums.MemberRole("boss")))
	require.Error(t, repo.AssignPosition(context.Background(), membership.ID, 0))

	require.NoError(t, repo.UpdateStatus(context.Background(), membership.ID, enums.MembershipStatusActive))
	require.NoError(t, repo.UpdateRole(context.Background(), membership.ID, enums.MemberRoleAdmin))

	got, err := repo.GetMembership(context.Background(), owner, group.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.MembershipStatusActive, got.Status)
	assert.Equal(t, enums.MemberRoleAdmin, got.Role)
}

func TestRepositoryCountByStatus(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	owner := seedUser(t, conn)
	group := seedGroup(t, conn, owner)

	_, err := repo.CreateMembership(context.Background(), group.ID, owner, enums.MemberRoleCreator, nil, enums.MembershipStatusActive)
	require.NoError(t, err)
	_, err = repo.CreateMembership(context.Background(), group.ID, seedUser(t, conn), enums.MemberRoleMember, nil, enums.MembershipStatusPending)
	require.NoError(t, err)
	_, err = repo.CreateMembership(context.Background(), group.ID, seedUser(t, conn), enums.MemberRoleMember, nil, enums.MembershipStatusPending)
	require.NoError(t, err)

	active, err := repo.CountByStatus(context.Background(), group.ID, enums.MembershipStatusActive)
	require.NoError(t, err)
	assert.EqualValues(t, 1, active)

	pending, err := repo.CountByStatus(context.Background(), group.ID, enums.MembershipStatusPending)
	require.NoError(t, err)
	assert.EqualValues(t, 2, pending)
}

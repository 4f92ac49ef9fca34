package memberships

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kixikila/kixikila-backend/pkg/db/models"
	"github.com/kixikila/kixikila-backend/pkg/enums"
	pkgerrors "github.com/kixikila/kixikila-backend/pkg/errors"
	"github.com/kixikila/kixikila-backend/pkg/outbox"
)

type txRunnerFunc struct {
	db *gorm.DB
}

func (r txRunnerFunc) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubOutbox struct {
	events []outbox.DomainEvent
}

func (s *stubOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

type fixture struct {
	db      *gorm.DB
	svc     Service
	outbox  *stubOutbox
	group   *models.SavingsGroup
	creator uuid.UUID
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&models.User{},
		&models.SavingsGroup{},
		&models.GroupMembership{},
	))
	return conn
}

func seedUser(t *testing.T, conn *gorm.DB) uuid.UUID {
	t.Helper()
	user := &models.User{
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "x",
		FirstName:    "Rui",
		LastName:     "Pereira",
		IsActive:     true,
	}
	require.NoError(t, conn.Create(user).Error)
	return user.ID
}

func newFixture(t *testing.T, groupType enums.GroupType) *fixture {
	t.Helper()
	conn := newTestDB(t)
	ob := &stubOutbox{}
	svc, err := NewService(conn, txRunnerFunc{db: conn}, ob)
	require.NoError(t, err)

	creator := seedUser(t, conn)
	group := &models.SavingsGroup{
		Name:               "Test Pot",
		ContributionAmount: decimal.NewFromInt(10),
		Frequency:          enums.FrequencyMonthly,
		MaxMembers:         4,
		MemberCount:        1,
		Type:               groupType,
		Privacy:            enums.GroupPrivacyPrivate,
		Status:             enums.GroupStatusDraft,
		CreatedByUserID:    creator,
	}
	require.NoError(t, conn.Create(group).Error)

	repo := NewRepository(conn)
	creatorMembership, err := repo.CreateMembership(context.Background(), group.ID, creator, enums.MemberRoleCreator, nil, enums.MembershipStatusActive)
	require.NoError(t, err)
	if groupType == enums.GroupTypeOrdered {
		require.NoError(t, repo.AssignPosition(context.Background(), creatorMembership.ID, 1))
	}

	return &fixture{db: conn, svc: svc, outbox: ob, group: group, creator: creator}
}

func (f *fixture) addPending(t *testing.T) uuid.UUID {
	t.Helper()
	userID := seedUser(t, f.db)
	_, err := NewRepository(f.db).CreateMembership(context.Background(), f.group.ID, userID, enums.MemberRoleMember, nil, enums.MembershipStatusPending)
	require.NoError(t, err)
	return userID
}

func (f *fixture) addActive(t *testing.T) uuid.UUID {
	t.Helper()
	userID := seedUser(t, f.db)
	_, err := NewRepository(f.db).CreateMembership(context.Background(), f.group.ID, userID, enums.MemberRoleMember, nil, enums.MembershipStatusActive)
	require.NoError(t, err)
	return userID
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr, "expected coded error, got %v", err)
	assert.Equal(t, code, appErr.Code())
}

func TestApprove_ActivatesPendingMembership(t *testing.T) {
	f := newFixture(t, enums.GroupTypeLottery)
	pending := f.addPending(t)

	approved, err := f.svc.Approve(context.Background(), f.creator, f.group.ID, pending)
	require.NoError(t, err)
	assert.Equal(t, enums.MembershipStatusActive, approved.Status)
	assert.Nil(t, approved.Position)

	var group models.SavingsGroup
	require.NoError(t, f.db.First(&group, "id = ?", f.group.ID).Error)
	assert.Equal(t, 2, group.MemberCount)

	require.Len(t, f.outbox.events, 1)
	assert.Equal(t, enums.EventMemberApproved, f.outbox.events[0].EventType)
}

func TestApprove_OrderedGroupAssignsNextSlot(t *testing.T) {
	f := newFixture(t, enums.GroupTypeOrdered)
	pending := f.addPending(t)

	approved, err := f.svc.Approve(context.Background(), f.creator, f.group.ID, pending)
	require.NoError(t, err)
	require.NotNil(t, approved.Position)
	assert.Equal(t, 2, *approved.Position)
}

func TestApprove_RejectsNonPending(t *testing.T) {
	f := newFixture(t, enums.GroupTypeLottery)
	active := f.addActive(t)

	_, err := f.svc.Approve(context.Background(), f.creator, f.group.ID, active)
	requireCode(t, err, pkgerrors.CodeStateConflict)
	assert.Equal(t, "not_pending", pkgerrors.Reason(err))
}

func TestApprove_RequiresManager(t *testing.T) {
	f := newFixture(t, enums.GroupTypeLottery)
	member := f.addActive(t)
	pending := f.addPending(t)

	_, err := f.svc.Approve(context.Background(), member, f.group.ID, pending)
	requireCode(t, err, pkgerrors.CodeForbidden)
}

func TestApprove_RespectsCapacity(t *testing.T) {
	f := newFixture(t, enums.GroupTypeLottery)
	f.group.MemberCount = f.group.MaxMembers
	require.NoError(t, f.db.Model(&models.SavingsGroup{}).
		Where("id = ?", f.group.ID).
		Update("member_count", f.group.MaxMembers).Error)
	pending := f.addPending(t)

	_, err := f.svc.Approve(context.Background(), f.creator, f.group.ID, pending)
	assert.Equal(t, "group_full", pkgerrors.Reason(err))
}

func TestSuspendAndReinstate(t *testing.T) {
	f := newFixture(t, enums.GroupTypeLottery)
	member := f.addActive(t)

	suspended, err := f.svc.Suspend(context.Background(), f.creator, f.group.ID, member, "missed two payments")
	require.NoError(t, err)
	assert.Equal(t, enums.MembershipStatusSuspended, suspended.Status)
	require.Len(t, f.outbox.events, 1)
	assert.Equal(t, enums.EventMemberSuspended, f.outbox.events[0].EventType)

	// Double suspension is a state conflict.
	_, err = f.svc.Suspend(context.Background(), f.creator, f.group.ID, member, "again")
	requireCode(t, err, pkgerrors.CodeStateConflict)

	reinstated, err := f.svc.Reinstate(context.Background(), f.creator, f.group.ID, member)
	require.NoError(t, err)
	assert.Equal(t, enums.MembershipStatusActive, reinstated.Status)
}

func TestSuspend_ProtectsCreator(t *testing.T) {
	f := newFixture(t, enums.GroupTypeLottery)
	admin := f.addActive(t)
	_, err := f.svc.Promote(context.Background(), f.creator, f.group.ID, admin)
	require.NoError(t, err)

	_, err = f.svc.Suspend(context.Background(), admin, f.group.ID, f.creator, "no")
	requireCode(t, err, pkgerrors.CodeForbidden)
}

func TestPromote_CreatorOnly(t *testing.T) {
	f := newFixture(t, enums.GroupTypeLottery)
	member := f.addActive(t)
	other := f.addActive(t)

	promoted, err := f.svc.Promote(context.Background(), f.creator, f.group.ID, member)
	require.NoError(t, err)
	assert.Equal(t, enums.MemberRoleAdmin, promoted.Role)

	// Admins cannot promote.
	_, err = f.svc.Promote(context.Background(), member, f.group.ID, other)
	requireCode(t, err, pkgerrors.CodeForbidden)

	// Promoting an admin again conflicts.
	_, err = f.svc.Promote(context.Background(), f.creator, f.group.ID, member)
	requireCode(t, err, pkgerrors.CodeStateConflict)
}

func TestListMembers_RequiresMembership(t *testing.T) {
	f := newFixture(t, enums.GroupTypeLottery)
	f.addActive(t)
	stranger := seedUser(t, f.db)

	_, err := f.svc.ListMembers(context.Background(), stranger, f.group.ID)
	requireCode(t, err, pkgerrors.CodeForbidden)

	rows, err := f.svc.ListMembers(context.Background(), f.creator, f.group.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

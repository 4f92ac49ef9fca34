package groups

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kixikila/kixikila-backend/internal/memberships"
	"github.com/kixikila/kixikila-backend/pkg/db/models"
	"github.com/kixikila/kixikila-backend/pkg/enums"
	pkgerrors "github.com/kixikila/kixikila-backend/pkg/errors"
	"github.com/kixikila/kixikila-backend/pkg/outbox"
	"github.com/kixikila/kixikila-backend/pkg/pagination"
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

type stubCutter struct {
	calls []int
	rows  int
}

func (s *stubCutter) CutRows(_ context.Context, _ *gorm.DB, _ *models.SavingsGroup, cycleNumber int) (int, error) {
	s.calls = append(s.calls, cycleNumber)
	return s.rows, nil
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
		&models.CycleContribution{},
		&models.OutboxEvent{},
	))
	return conn
}

type serviceFixture struct {
	db     *gorm.DB
	svc    Service
	outbox *stubOutbox
	cutter *stubCutter
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	conn := newTestDB(t)
	ob := &stubOutbox{}
	cutter := &stubCutter{rows: 2}
	svc, err := NewService(
		NewRepository(conn),
		memberships.NewRepository(conn),
		txRunnerFunc{db: conn},
		ob,
		cutter,
	)
	require.NoError(t, err)
	return &serviceFixture{db: conn, svc: svc, outbox: ob, cutter: cutter}
}

func seedUser(t *testing.T, conn *gorm.DB) uuid.UUID {
	t.Helper()
	user := &models.User{
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "x",
		FirstName:    "Ana",
		LastName:     "Lopes",
		IsActive:     true,
	}
	require.NoError(t, conn.Create(user).Error)
	return user.ID
}

func baseInput() CreateGroupInput {
	return CreateGroupInput{
		Name:               "Família Poupança",
		Description:        "weekly pot",
		ContributionAmount: decimal.NewFromInt(25),
		Frequency:          enums.FrequencyWeekly,
		MaxMembers:         5,
		Type:               enums.GroupTypeLottery,
		Privacy:            enums.GroupPrivacyPublic,
	}
}

func reasonOf(t *testing.T, err error) string {
	t.Helper()
	require.NotNil(t, pkgerrors.As(err), "expected coded error, got %v", err)
	return pkgerrors.Reason(err)
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr, "expected coded error, got %v", err)
	assert.Equal(t, code, appErr.Code())
}

func TestCreate_DraftGroupWithCreatorMembership(t *testing.T) {
	f := newServiceFixture(t)
	creator := seedUser(t, f.db)

	got, err := f.svc.Create(context.Background(), creator, baseInput())
	require.NoError(t, err)
	assert.Equal(t, enums.GroupStatusDraft, got.Status)
	assert.Equal(t, 1, got.CurrentCycle)
	assert.Equal(t, enums.CycleStateOpen, got.CycleState)
	assert.True(t, got.TotalPool.IsZero())

	membership, err := memberships.NewRepository(f.db).GetMembership(context.Background(), creator, got.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.MemberRoleCreator, membership.Role)
	assert.Equal(t, enums.MembershipStatusActive, membership.Status)
	assert.Nil(t, membership.Position)
}

func TestCreate_OrderedGroupAssignsCreatorFirstSlot(t *testing.T) {
	f := newServiceFixture(t)
	creator := seedUser(t, f.db)

	input := baseInput()
	input.Type = enums.GroupTypeOrdered
	got, err := f.svc.Create(context.Background(), creator, input)
	require.NoError(t, err)

	membership, err := memberships.NewRepository(f.db).GetMembership(context.Background(), creator, got.ID)
	require.NoError(t, err)
	require.NotNil(t, membership.Position)
	assert.Equal(t, 1, *membership.Position)
}

func TestCreate_RejectsBadTerms(t *testing.T) {
	f := newServiceFixture(t)
	creator := seedUser(t, f.db)

	input := baseInput()
	input.ContributionAmount = decimal.Zero
	_, err := f.svc.Create(context.Background(), creator, input)
	requireCode(t, err, pkgerrors.CodeValidation)

	input = baseInput()
	input.MaxMembers = 1
	_, err = f.svc.Create(context.Background(), creator, input)
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestActivate_RequiresTwoActiveMembers(t *testing.T) {
	f := newServiceFixture(t)
	creator := seedUser(t, f.db)
	group, err := f.svc.Create(context.Background(), creator, baseInput())
	require.NoError(t, err)

	_, err = f.svc.Activate(context.Background(), creator, group.ID)
	assert.Equal(t, "not_enough_members", reasonOf(t, err))
}

func TestActivate_OpensFirstCycle(t *testing.T) {
	f := newServiceFixture(t)
	creator := seedUser(t, f.db)
	joiner := seedUser(t, f.db)

	group, err := f.svc.Create(context.Background(), creator, baseInput())
	require.NoError(t, err)
	_, err = f.svc.Join(context.Background(), joiner, group.ID)
	require.NoError(t, err)

	activated, err := f.svc.Activate(context.Background(), creator, group.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.GroupStatusActive, activated.Status)
	assert.Equal(t, 1, activated.CurrentCycle)
	assert.Equal(t, enums.CycleStateOpen, activated.CycleState)
	require.NotNil(t, activated.NextPayoutDate)
	assert.WithinDuration(t, time.Now().UTC().AddDate(0, 0, 7), *activated.NextPayoutDate, time.Minute)

	assert.Equal(t, []int{1}, f.cutter.calls)
	require.NotEmpty(t, f.outbox.events)
	last := f.outbox.events[len(f.outbox.events)-1]
	assert.Equal(t, enums.EventGroupActivated, last.EventType)
	assert.Equal(t, group.ID, last.AggregateID)
}

func TestActivate_RejectsSecondActivation(t *testing.T) {
	f := newServiceFixture(t)
	creator := seedUser(t, f.db)
	joiner := seedUser(t, f.db)

	group, err := f.svc.Create(context.Background(), creator, baseInput())
	require.NoError(t, err)
	_, err = f.svc.Join(context.Background(), joiner, group.ID)
	require.NoError(t, err)
	_, err = f.svc.Activate(context.Background(), creator, group.ID)
	require.NoError(t, err)

	_, err = f.svc.Activate(context.Background(), creator, group.ID)
	assert.Equal(t, "not_draft_group", reasonOf(t, err))
}

func TestActivate_RequiresManagerRole(t *testing.T) {
	f := newServiceFixture(t)
	creator := seedUser(t, f.db)
	joiner := seedUser(t, f.db)

	group, err := f.svc.Create(context.Background(), creator, baseInput())
	require.NoError(t, err)
	_, err = f.svc.Join(context.Background(), joiner, group.ID)
	require.NoError(t, err)

	_, err = f.svc.Activate(context.Background(), joiner, group.ID)
	requireCode(t, err, pkgerrors.CodeForbidden)
}

func TestJoin_PublicGroupAdmitsImmediately(t *testing.T) {
	f := newServiceFixture(t)
	creator := seedUser(t, f.db)
	joiner := seedUser(t, f.db)

	group, err := f.svc.Create(context.Background(), creator, baseInput())
	require.NoError(t, err)

	membership, err := f.svc.Join(context.Background(), joiner, group.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.MembershipStatusActive, membership.Status)
	assert.Equal(t, enums.MemberRoleMember, membership.Role)

	reloaded, err := f.svc.Get(context.Background(), creator, group.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.MemberCount)

	last := f.outbox.events[len(f.outbox.events)-1]
	assert.Equal(t, enums.EventMemberJoined, last.EventType)
}

func TestJoin_PrivateGroupQueuesPending(t *testing.T) {
	f := newServiceFixture(t)
	creator := seedUser(t, f.db)
	joiner := seedUser(t, f.db)

	input := baseInput()
	input.Privacy = enums.GroupPrivacyPrivate
	group, err := f.svc.Create(context.Background(), creator, input)
	require.NoError(t, err)

	membership, err := f.svc.Join(context.Background(), joiner, group.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.MembershipStatusPending, membership.Status)

	// Pending members do not count toward capacity.
	reloaded, err := f.svc.Get(context.Background(), creator, group.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.MemberCount)
}

func TestJoin_OrderedGroupAppendsPosition(t *testing.T) {
	f := newServiceFixture(t)
	creator := seedUser(t, f.db)
	second := seedUser(t, f.db)
	third := seedUser(t, f.db)

	input := baseInput()
	input.Type = enums.GroupTypeOrdered
	group, err := f.svc.Create(context.Background(), creator, input)
	require.NoError(t, err)

	m2, err := f.svc.Join(context.Background(), second, group.ID)
	require.NoError(t, err)
	m3, err := f.svc.Join(context.Background(), third, group.ID)
	require.NoError(t, err)

	require.NotNil(t, m2.Position)
	require.NotNil(t, m3.Position)
	assert.Equal(t, 2, *m2.Position)
	assert.Equal(t, 3, *m3.Position)
}

func TestJoin_RejectsDuplicateAndFullGroups(t *testing.T) {
	f := newServiceFixture(t)
	creator := seedUser(t, f.db)
	joiner := seedUser(t, f.db)

	input := baseInput()
	input.MaxMembers = 2
	group, err := f.svc.Create(context.Background(), creator, input)
	require.NoError(t, err)

	_, err = f.svc.Join(context.Background(), joiner, group.ID)
	require.NoError(t, err)

	_, err = f.svc.Join(context.Background(), joiner, group.ID)
	requireCode(t, err, pkgerrors.CodeConflict)

	late := seedUser(t, f.db)
	_, err = f.svc.Join(context.Background(), late, group.ID)
	assert.Equal(t, "group_full", reasonOf(t, err))
}

func TestUpdate_FreezesTermsAfterActivation(t *testing.T) {
	f := newServiceFixture(t)
	creator := seedUser(t, f.db)
	joiner := seedUser(t, f.db)

	group, err := f.svc.Create(context.Background(), creator, baseInput())
	require.NoError(t, err)

	newAmount := decimal.NewFromInt(50)
	updated, err := f.svc.Update(context.Background(), creator, group.ID, UpdateGroupInput{
		ContributionAmount: &newAmount,
	})
	require.NoError(t, err)
	assert.True(t, updated.ContributionAmount.Equal(newAmount))

	_, err = f.svc.Join(context.Background(), joiner, group.ID)
	require.NoError(t, err)
	_, err = f.svc.Activate(context.Background(), creator, group.ID)
	require.NoError(t, err)

	another := decimal.NewFromInt(75)
	_, err = f.svc.Update(context.Background(), creator, group.ID, UpdateGroupInput{
		ContributionAmount: &another,
	})
	requireCode(t, err, pkgerrors.CodeStateConflict)

	// Name edits stay allowed on active groups.
	name := "Renamed Pot"
	renamed, err := f.svc.Update(context.Background(), creator, group.ID, UpdateGroupInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, renamed.Name)
}

func TestLeave_BlocksActiveRotationMembers(t *testing.T) {
	f := newServiceFixture(t)
	creator := seedUser(t, f.db)
	joiner := seedUser(t, f.db)

	group, err := f.svc.Create(context.Background(), creator, baseInput())
	require.NoError(t, err)
	_, err = f.svc.Join(context.Background(), joiner, group.ID)
	require.NoError(t, err)

	// Leaving a draft group is fine.
	require.NoError(t, f.svc.Leave(context.Background(), joiner, group.ID))
	reloaded, err := f.svc.Get(context.Background(), creator, group.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.MemberCount)

	rejoined := seedUser(t, f.db)
	_, err = f.svc.Join(context.Background(), rejoined, group.ID)
	require.NoError(t, err)
	_, err = f.svc.Activate(context.Background(), creator, group.ID)
	require.NoError(t, err)

	err = f.svc.Leave(context.Background(), rejoined, group.ID)
	assert.Equal(t, "rotation_in_progress", reasonOf(t, err))

	err = f.svc.Leave(context.Background(), creator, group.ID)
	requireCode(t, err, pkgerrors.CodeStateConflict)
}

func TestGet_PrivateGroupHiddenFromStrangers(t *testing.T) {
	f := newServiceFixture(t)
	creator := seedUser(t, f.db)
	stranger := seedUser(t, f.db)

	input := baseInput()
	input.Privacy = enums.GroupPrivacyPrivate
	group, err := f.svc.Create(context.Background(), creator, input)
	require.NoError(t, err)

	_, err = f.svc.Get(context.Background(), stranger, group.ID)
	requireCode(t, err, pkgerrors.CodeNotFound)

	got, err := f.svc.Get(context.Background(), creator, group.ID)
	require.NoError(t, err)
	assert.Equal(t, group.ID, got.ID)
}

func TestListPublic_PaginatesActiveGroups(t *testing.T) {
	f := newServiceFixture(t)
	creator := seedUser(t, f.db)
	joiner := seedUser(t, f.db)

	for i := 0; i < 3; i++ {
		group, err := f.svc.Create(context.Background(), creator, baseInput())
		require.NoError(t, err)
		_, err = f.svc.Join(context.Background(), joiner, group.ID)
		require.NoError(t, err)
		_, err = f.svc.Activate(context.Background(), creator, group.ID)
		require.NoError(t, err)
	}
	// Drafts stay hidden from the public listing.
	_, err := f.svc.Create(context.Background(), creator, baseInput())
	require.NoError(t, err)

	page, err := f.svc.ListPublic(context.Background(), pagination.Params{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Groups, 2)
	require.NotEmpty(t, page.NextCursor)

	next, err := f.svc.ListPublic(context.Background(), pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	assert.Len(t, next.Groups, 1)
	assert.Empty(t, next.NextCursor)
}

func TestListMine_ReturnsMemberships(t *testing.T) {
	f := newServiceFixture(t)
	creator := seedUser(t, f.db)

	group, err := f.svc.Create(context.Background(), creator, baseInput())
	require.NoError(t, err)

	mine, err := f.svc.ListMine(context.Background(), creator)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, group.ID, mine[0].GroupID)
	assert.Equal(t, enums.MemberRoleCreator, mine[0].Role)
}

package groups

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kixikila/kixikila-backend/internal/memberships"
	"github.com/kixikila/kixikila-backend/pkg/db"
	"github.com/kixikila/kixikila-backend/pkg/db/models"
	"github.com/kixikila/kixikila-backend/pkg/enums"
	pkgerrors "github.com/kixikila/kixikila-backend/pkg/errors"
	"github.com/kixikila/kixikila-backend/pkg/outbox"
	"github.com/kixikila/kixikila-backend/pkg/outbox/payloads"
	"github.com/kixikila/kixikila-backend/pkg/pagination"
)

const minActiveMembers = 2

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type membershipReader interface {
	ListUserGroups(ctx context.Context, userID uuid.UUID) ([]memberships.MembershipWithGroup, error)
}

// ContributionCutter creates the unpaid contribution rows when a cycle opens.
// Implemented by the cycle repository; injected here so group activation can
// open cycle 1 without owning the contribution schema.
type ContributionCutter interface {
	CutRows(ctx context.Context, tx *gorm.DB, group *models.SavingsGroup, cycleNumber int) (int, error)
}

// Service defines group lifecycle operations.
type Service interface {
	Create(ctx context.Context, creatorID uuid.UUID, input CreateGroupInput) (*GroupDTO, error)
	Get(ctx context.Context, callerID, groupID uuid.UUID) (*GroupDTO, error)
	ListPublic(ctx context.Context, params pagination.Params) (*GroupPage, error)
	ListMine(ctx context.Context, callerID uuid.UUID) ([]memberships.MembershipWithGroup, error)
	Update(ctx context.Context, callerID, groupID uuid.UUID, input UpdateGroupInput) (*GroupDTO, error)
	Activate(ctx context.Context, callerID, groupID uuid.UUID) (*GroupDTO, error)
	Join(ctx context.Context, callerID, groupID uuid.UUID) (*memberships.MembershipDTO, error)
	Leave(ctx context.Context, callerID, groupID uuid.UUID) error
}

type service struct {
	repo    Repository
	members membershipReader
	tx      txRunner
	outbox  outboxPublisher
	cutter  ContributionCutter
}

// NewService builds a group service with the required dependencies.
func NewService(repo Repository, members membershipReader, tx txRunner, outboxPub outboxPublisher, cutter ContributionCutter) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("groups repository required")
	}
	if members == nil {
		return nil, fmt.Errorf("membership reader required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxPub == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if cutter == nil {
		return nil, fmt.Errorf("contribution cutter required")
	}
	return &service{
		repo:    repo,
		members: members,
		tx:      tx,
		outbox:  outboxPub,
		cutter:  cutter,
	}, nil
}

func (s *service) Create(ctx context.Context, creatorID uuid.UUID, input CreateGroupInput) (*GroupDTO, error) {
	if creatorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid group type")
	}
	if !input.Privacy.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid privacy")
	}
	if !input.Frequency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid contribution frequency")
	}
	if !input.ContributionAmount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "contribution amount must be positive")
	}
	if input.MaxMembers < minActiveMembers {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "max members must be at least 2")
	}

	group := &models.SavingsGroup{
		Name:                 strings.TrimSpace(input.Name),
		Description:          strings.TrimSpace(input.Description),
		ContributionAmount:   input.ContributionAmount,
		Frequency:            input.Frequency,
		MaxMembers:           input.MaxMembers,
		MemberCount:          1,
		Type:                 input.Type,
		Privacy:              input.Privacy,
		Status:               enums.GroupStatusDraft,
		AllowRepeatRotations: input.AllowRepeatRotations,
		TotalPool:            decimal.Zero,
		CurrentCycle:         1,
		CycleState:           enums.CycleStateOpen,
		CreatedByUserID:      creatorID,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, group); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create group")
		}

		membershipRepo := memberships.NewRepository(tx)
		membership, err := membershipRepo.CreateMembership(ctx, group.ID, creatorID, enums.MemberRoleCreator, nil, enums.MembershipStatusActive)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create creator membership")
		}
		if group.Type == enums.GroupTypeOrdered {
			if err := membershipRepo.AssignPosition(ctx, membership.ID, 1); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign creator position")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ToDTO(group), nil
}

func (s *service) Get(ctx context.Context, callerID, groupID uuid.UUID) (*GroupDTO, error) {
	group, err := s.loadGroup(ctx, s.repo, groupID)
	if err != nil {
		return nil, err
	}
	if group.Privacy == enums.GroupPrivacyPrivate {
		visible, err := s.callerIsMember(ctx, callerID, groupID)
		if err != nil {
			return nil, err
		}
		if !visible {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "group not found")
		}
	}
	return ToDTO(group), nil
}

func (s *service) ListPublic(ctx context.Context, params pagination.Params) (*GroupPage, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)

	rows, err := s.repo.ListPublicActive(ctx, cursor, limit+1)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list groups")
	}

	page := &GroupPage{}
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	page.Groups = toDTOs(rows)
	return page, nil
}

func (s *service) ListMine(ctx context.Context, callerID uuid.UUID) ([]memberships.MembershipWithGroup, error) {
	if callerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	rows, err := s.members.ListUserGroups(ctx, callerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list memberships")
	}
	return rows, nil
}

func (s *service) Update(ctx context.Context, callerID, groupID uuid.UUID, input UpdateGroupInput) (*GroupDTO, error) {
	var updated *models.SavingsGroup
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		group, err := s.loadGroupForUpdate(ctx, repo, groupID)
		if err != nil {
			return err
		}
		if err := s.requireManager(ctx, tx, callerID, groupID); err != nil {
			return err
		}

		fields := map[string]any{}
		if input.Name != nil {
			fields["name"] = strings.TrimSpace(*input.Name)
		}
		if input.Description != nil {
			fields["description"] = strings.TrimSpace(*input.Description)
		}
		if input.Privacy != nil {
			if !input.Privacy.IsValid() {
				return pkgerrors.New(pkgerrors.CodeValidation, "invalid privacy")
			}
			fields["privacy"] = *input.Privacy
		}

		// Money/schedule/capacity changes are draft-only.
		draftOnly := map[string]any{}
		if input.ContributionAmount != nil {
			if !input.ContributionAmount.IsPositive() {
				return pkgerrors.New(pkgerrors.CodeValidation, "contribution amount must be positive")
			}
			draftOnly["contribution_amount"] = *input.ContributionAmount
		}
		if input.Frequency != nil {
			if !input.Frequency.IsValid() {
				return pkgerrors.New(pkgerrors.CodeValidation, "invalid contribution frequency")
			}
			draftOnly["contribution_frequency"] = *input.Frequency
		}
		if input.MaxMembers != nil {
			if *input.MaxMembers < group.MemberCount {
				return pkgerrors.New(pkgerrors.CodeValidation, "max members below current member count")
			}
			draftOnly["max_members"] = *input.MaxMembers
		}
		if len(draftOnly) > 0 {
			if group.Status != enums.GroupStatusDraft {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "group terms are frozen after activation")
			}
			for k, v := range draftOnly {
				fields[k] = v
			}
		}

		if err := repo.UpdateFields(ctx, groupID, fields); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update group")
		}
		updated, err = repo.FindByID(ctx, groupID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload group")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ToDTO(updated), nil
}

// Activate transitions a draft group to active and opens cycle 1.
func (s *service) Activate(ctx context.Context, callerID, groupID uuid.UUID) (*GroupDTO, error) {
	var activated *models.SavingsGroup
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		group, err := s.loadGroupForUpdate(ctx, repo, groupID)
		if err != nil {
			return err
		}
		if err := s.requireManager(ctx, tx, callerID, groupID); err != nil {
			return err
		}
		if group.Status != enums.GroupStatusDraft {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "group already activated").WithReason("not_draft_group")
		}

		membershipRepo := memberships.NewRepository(tx)
		activeCount, err := membershipRepo.CountByStatus(ctx, groupID, enums.MembershipStatusActive)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count active members")
		}
		if activeCount < minActiveMembers {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "at least two active members required").WithReason("not_enough_members")
		}

		now := time.Now().UTC()
		nextPayout := group.Frequency.Next(now)
		if err := repo.UpdateFields(ctx, groupID, map[string]any{
			"status":           enums.GroupStatusActive,
			"member_count":     int(activeCount),
			"current_cycle":    1,
			"cycle_state":      enums.CycleStateOpen,
			"total_pool":       decimal.Zero,
			"next_payout_date": &nextPayout,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "activate group")
		}

		group.Status = enums.GroupStatusActive
		group.CurrentCycle = 1
		if _, err := s.cutter.CutRows(ctx, tx, group, 1); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open first cycle")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventGroupActivated,
			AggregateType: enums.AggregateGroup,
			AggregateID:   group.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: callerID, GroupID: &group.ID},
			Data: payloads.GroupActivatedEvent{
				GroupID:     group.ID,
				Name:        group.Name,
				Type:        group.Type,
				MemberCount: int(activeCount),
				CycleNumber: 1,
				ActivatedAt: now,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}

		activated, err = repo.FindByID(ctx, groupID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload group")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ToDTO(activated), nil
}

// Join adds the caller to the group. Public groups admit immediately; private
// groups queue a pending membership for admin approval. Members admitted
// after a cycle opened get no row for the in-flight cycle.
func (s *service) Join(ctx context.Context, callerID, groupID uuid.UUID) (*memberships.MembershipDTO, error) {
	if callerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var created *models.GroupMembership
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		group, err := s.loadGroupForUpdate(ctx, repo, groupID)
		if err != nil {
			return err
		}
		if group.Status == enums.GroupStatusCompleted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "group has finished its rotation").WithReason("not_active_group")
		}
		// Existing members are reported as duplicates before the capacity
		// check so a re-join of a full group does not read as "group full".
		membershipRepo := memberships.NewRepository(tx)
		if existing, err := membershipRepo.GetMembership(ctx, callerID, groupID); err == nil {
			if existing.Status == enums.MembershipStatusRemoved {
				return pkgerrors.New(pkgerrors.CodeForbidden, "membership was removed")
			}
			return pkgerrors.New(pkgerrors.CodeConflict, "already a member")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check membership")
		}

		if group.MemberCount >= group.MaxMembers {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "group is full").WithReason("group_full")
		}

		status := enums.MembershipStatusActive
		if group.Privacy == enums.GroupPrivacyPrivate {
			status = enums.MembershipStatusPending
		}

		created, err = membershipRepo.CreateMembership(ctx, groupID, callerID, enums.MemberRoleMember, nil, status)
		if err != nil {
			if db.IsUniqueViolation(err, "ux_group_memberships_group_user") {
				return pkgerrors.New(pkgerrors.CodeConflict, "already a member")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create membership")
		}

		if status == enums.MembershipStatusActive {
			if group.Type == enums.GroupTypeOrdered {
				pos, err := assignNextPosition(ctx, tx, membershipRepo, groupID, created.ID)
				if err != nil {
					return err
				}
				created.Position = &pos
			}
			if err := repo.IncrementMemberCount(ctx, groupID, 1); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bump member count")
			}
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventMemberJoined,
			AggregateType: enums.AggregateMembership,
			AggregateID:   created.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: callerID, GroupID: &groupID},
			Data: payloads.MemberJoinedEvent{
				GroupID: groupID,
				UserID:  callerID,
				Status:  status,
			},
		}
		return s.outbox.Emit(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}
	return memberships.ToDTO(created), nil
}

func (s *service) Leave(ctx context.Context, callerID, groupID uuid.UUID) error {
	if callerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		group, err := s.loadGroupForUpdate(ctx, repo, groupID)
		if err != nil {
			return err
		}

		membershipRepo := memberships.NewRepository(tx)
		membership, err := membershipRepo.GetMembership(ctx, callerID, groupID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "membership not found").WithReason("not_a_member")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load membership")
		}
		if membership.Role == enums.MemberRoleCreator {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "creator cannot leave their group")
		}
		if group.Status == enums.GroupStatusActive && membership.Status == enums.MembershipStatusActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cannot leave an active rotation").WithReason("rotation_in_progress")
		}

		wasActive := membership.Status == enums.MembershipStatusActive
		if err := membershipRepo.UpdateStatus(ctx, membership.ID, enums.MembershipStatusRemoved); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove membership")
		}
		if wasActive {
			if err := repo.IncrementMemberCount(ctx, groupID, -1); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement member count")
			}
		}
		return nil
	})
}

func (s *service) loadGroup(ctx context.Context, repo Repository, groupID uuid.UUID) (*models.SavingsGroup, error) {
	group, err := repo.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "group not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load group")
	}
	return group, nil
}

func (s *service) loadGroupForUpdate(ctx context.Context, repo Repository, groupID uuid.UUID) (*models.SavingsGroup, error) {
	group, err := repo.FindByIDForUpdate(ctx, groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "group not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load group")
	}
	return group, nil
}

func (s *service) requireManager(ctx context.Context, tx *gorm.DB, callerID, groupID uuid.UUID) error {
	ok, err := memberships.NewRepository(tx).UserHasRole(ctx, callerID, groupID, enums.MemberRoleCreator, enums.MemberRoleAdmin)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check role")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeForbidden, "creator or admin role required")
	}
	return nil
}

func (s *service) callerIsMember(ctx context.Context, callerID, groupID uuid.UUID) (bool, error) {
	if callerID == uuid.Nil {
		return false, nil
	}
	rows, err := s.members.ListUserGroups(ctx, callerID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list memberships")
	}
	for _, row := range rows {
		if row.GroupID == groupID && row.Status != enums.MembershipStatusRemoved {
			return true, nil
		}
	}
	return false, nil
}

func assignNextPosition(ctx context.Context, tx *gorm.DB, repo *memberships.Repository, groupID, membershipID uuid.UUID) (int, error) {
	var maxPos *int
	err := tx.WithContext(ctx).
		Model(&models.GroupMembership{}).
		Where("group_id = ?", groupID).
		Select("MAX(position)").
		Scan(&maxPos).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read max position")
	}
	next := 1
	if maxPos != nil {
		next = *maxPos + 1
	}
	if err := repo.AssignPosition(ctx, membershipID, next); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign position")
	}
	return next, nil
}

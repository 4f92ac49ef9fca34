package memberships

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kixikila/kixikila-backend/pkg/db/models"
	"github.com/kixikila/kixikila-backend/pkg/enums"
	pkgerrors "github.com/kixikila/kixikila-backend/pkg/errors"
	"github.com/kixikila/kixikila-backend/pkg/outbox"
	"github.com/kixikila/kixikila-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service handles membership administration within a group. All mutating
// operations require the caller to hold the creator or admin role.
type Service interface {
	ListMembers(ctx context.Context, callerID, groupID uuid.UUID) ([]GroupMemberDTO, error)
	Approve(ctx context.Context, callerID, groupID, userID uuid.UUID) (*MembershipDTO, error)
	Suspend(ctx context.Context, callerID, groupID, userID uuid.UUID, reason string) (*MembershipDTO, error)
	Reinstate(ctx context.Context, callerID, groupID, userID uuid.UUID) (*MembershipDTO, error)
	Promote(ctx context.Context, callerID, groupID, userID uuid.UUID) (*MembershipDTO, error)
}

type service struct {
	db     *gorm.DB
	tx     txRunner
	outbox outboxPublisher
}

// NewService wires the membership admin service.
func NewService(db *gorm.DB, tx txRunner, outboxPub outboxPublisher) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxPub == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{db: db, tx: tx, outbox: outboxPub}, nil
}

func (s *service) ListMembers(ctx context.Context, callerID, groupID uuid.UUID) ([]GroupMemberDTO, error) {
	repo := NewRepository(s.db)
	if _, err := s.requireMembership(ctx, repo, callerID, groupID); err != nil {
		return nil, err
	}
	rows, err := repo.ListGroupMembers(ctx, groupID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list members")
	}
	return rows, nil
}

// Approve turns a pending membership active. Ordered groups get the next
// free rotation slot at approval time.
func (s *service) Approve(ctx context.Context, callerID, groupID, userID uuid.UUID) (*MembershipDTO, error) {
	var approved *models.GroupMembership
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		group, err := loadGroupForUpdate(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if err := s.requireManager(ctx, repo, callerID, groupID); err != nil {
			return err
		}

		membership, err := s.loadTarget(ctx, repo, userID, groupID)
		if err != nil {
			return err
		}
		if membership.Status != enums.MembershipStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "membership is not pending").WithReason("not_pending")
		}
		if group.MemberCount >= group.MaxMembers {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "group is full").WithReason("group_full")
		}

		if err := repo.UpdateStatus(ctx, membership.ID, enums.MembershipStatusActive); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve membership")
		}
		membership.Status = enums.MembershipStatusActive

		if group.Type == enums.GroupTypeOrdered {
			pos, err := nextFreePosition(ctx, tx, groupID)
			if err != nil {
				return err
			}
			if err := repo.AssignPosition(ctx, membership.ID, pos); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign position")
			}
			membership.Position = &pos
		}

		if err := tx.WithContext(ctx).
			Model(&models.SavingsGroup{}).
			Where("id = ?", groupID).
			Update("member_count", gorm.Expr("member_count + 1")).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bump member count")
		}

		approved = membership
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventMemberApproved,
			AggregateType: enums.AggregateMembership,
			AggregateID:   membership.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: callerID, GroupID: &groupID},
			Data: payloads.MemberApprovedEvent{
				GroupID:    groupID,
				UserID:     userID,
				ApprovedBy: callerID,
				Position:   membership.Position,
				ApprovedAt: time.Now().UTC(),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return ToDTO(approved), nil
}

// Suspend parks an active member. Suspended members stop counting toward
// cycle completion and payout eligibility until reinstated.
func (s *service) Suspend(ctx context.Context, callerID, groupID, userID uuid.UUID, reason string) (*MembershipDTO, error) {
	var suspended *models.GroupMembership
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		if _, err := loadGroupForUpdate(ctx, tx, groupID); err != nil {
			return err
		}
		if err := s.requireManager(ctx, repo, callerID, groupID); err != nil {
			return err
		}

		membership, err := s.loadTarget(ctx, repo, userID, groupID)
		if err != nil {
			return err
		}
		if membership.Role == enums.MemberRoleCreator {
			return pkgerrors.New(pkgerrors.CodeForbidden, "cannot suspend the group creator")
		}
		if membership.Status != enums.MembershipStatusActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "membership is not active").WithReason("not_active_member")
		}

		if err := repo.UpdateStatus(ctx, membership.ID, enums.MembershipStatusSuspended); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "suspend membership")
		}
		membership.Status = enums.MembershipStatusSuspended
		suspended = membership

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventMemberSuspended,
			AggregateType: enums.AggregateMembership,
			AggregateID:   membership.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: callerID, GroupID: &groupID},
			Data: payloads.MemberSuspendedEvent{
				GroupID: groupID,
				UserID:  userID,
				Status:  enums.MembershipStatusSuspended,
				Reason:  reason,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return ToDTO(suspended), nil
}

func (s *service) Reinstate(ctx context.Context, callerID, groupID, userID uuid.UUID) (*MembershipDTO, error) {
	var reinstated *models.GroupMembership
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		if _, err := loadGroupForUpdate(ctx, tx, groupID); err != nil {
			return err
		}
		if err := s.requireManager(ctx, repo, callerID, groupID); err != nil {
			return err
		}

		membership, err := s.loadTarget(ctx, repo, userID, groupID)
		if err != nil {
			return err
		}
		if membership.Status != enums.MembershipStatusSuspended {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "membership is not suspended").WithReason("not_suspended")
		}

		if err := repo.UpdateStatus(ctx, membership.ID, enums.MembershipStatusActive); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reinstate membership")
		}
		membership.Status = enums.MembershipStatusActive
		reinstated = membership
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ToDTO(reinstated), nil
}

// Promote grants the admin role. Only the creator can promote.
func (s *service) Promote(ctx context.Context, callerID, groupID, userID uuid.UUID) (*MembershipDTO, error) {
	var promoted *models.GroupMembership
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		ok, err := repo.UserHasRole(ctx, callerID, groupID, enums.MemberRoleCreator)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check role")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeForbidden, "creator role required")
		}

		membership, err := s.loadTarget(ctx, repo, userID, groupID)
		if err != nil {
			return err
		}
		if membership.Status != enums.MembershipStatusActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "membership is not active").WithReason("not_active_member")
		}
		if membership.Role != enums.MemberRoleMember {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "member already holds an elevated role")
		}

		if err := repo.UpdateRole(ctx, membership.ID, enums.MemberRoleAdmin); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "promote member")
		}
		membership.Role = enums.MemberRoleAdmin
		promoted = membership
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ToDTO(promoted), nil
}

func (s *service) requireManager(ctx context.Context, repo *Repository, callerID, groupID uuid.UUID) error {
	ok, err := repo.UserHasRole(ctx, callerID, groupID, enums.MemberRoleCreator, enums.MemberRoleAdmin)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check role")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeForbidden, "creator or admin role required")
	}
	return nil
}

func (s *service) requireMembership(ctx context.Context, repo *Repository, callerID, groupID uuid.UUID) (*models.GroupMembership, error) {
	membership, err := repo.GetMembership(ctx, callerID, groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "group membership required")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load membership")
	}
	if membership.Status == enums.MembershipStatusRemoved {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "group membership required")
	}
	return membership, nil
}

func (s *service) loadTarget(ctx context.Context, repo *Repository, userID, groupID uuid.UUID) (*models.GroupMembership, error) {
	membership, err := repo.GetMembership(ctx, userID, groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "membership not found").WithReason("not_a_member")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load membership")
	}
	return membership, nil
}

func loadGroupForUpdate(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) (*models.SavingsGroup, error) {
	var group models.SavingsGroup
	q := tx.WithContext(ctx)
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.Where("id = ?", groupID).First(&group).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "group not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load group")
	}
	return &group, nil
}

// nextFreePosition scans the highest assigned slot and appends after it.
func nextFreePosition(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) (int, error) {
	var maxPos *int
	err := tx.WithContext(ctx).
		Model(&models.GroupMembership{}).
		Where("group_id = ?", groupID).
		Select("MAX(position)").
		Scan(&maxPos).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read max position")
	}
	if maxPos == nil {
		return 1, nil
	}
	return *maxPos + 1, nil
}

package cycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kixikila/kixikila-backend/pkg/db"
	"github.com/kixikila/kixikila-backend/pkg/db/models"
	"github.com/kixikila/kixikila-backend/pkg/enums"
	pkgerrors "github.com/kixikila/kixikila-backend/pkg/errors"
	"github.com/kixikila/kixikila-backend/pkg/outbox"
	"github.com/kixikila/kixikila-backend/pkg/outbox/payloads"
)

var errEmptyCandidateSet = errors.New("empty candidate set")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type roleChecker interface {
	UserHasRole(ctx context.Context, userID, groupID uuid.UUID, roles ...enums.MemberRole) (bool, error)
}

// Service is the contribution/payout cycle engine. It is invoked per group
// and holds no cross-group state; every mutating operation runs in a single
// transaction with the group row locked, so concurrent calls for the same
// group serialize and conflicts surface as state errors rather than lost
// updates.
type Service interface {
	RecordContribution(ctx context.Context, callerID, groupID uuid.UUID, cycleNumber int, amount decimal.Decimal) (*ContributionDTO, error)
	CycleStatus(ctx context.Context, groupID uuid.UUID, cycleNumber int) (*CycleStatus, error)
	SelectPayoutRecipient(ctx context.Context, callerID, groupID uuid.UUID, cycleNumber int) (*DrawResult, error)
	AdvanceCycle(ctx context.Context, callerID, groupID uuid.UUID) (*AdvanceResult, error)
	ListContributions(ctx context.Context, groupID uuid.UUID, cycleNumber int) ([]ContributionDTO, error)
	ListPayouts(ctx context.Context, groupID uuid.UUID) ([]PayoutDTO, error)
}

type service struct {
	repo   *Repository
	roles  roleChecker
	tx     txRunner
	outbox outboxPublisher
}

// NewService wires the cycle engine.
func NewService(repo *Repository, roles roleChecker, tx txRunner, outboxPub outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cycle repository required")
	}
	if roles == nil {
		return nil, fmt.Errorf("role checker required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxPub == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, roles: roles, tx: tx, outbox: outboxPub}, nil
}

// RecordContribution marks the caller's payment slot paid and rolls the
// amount into the pool. When the payment closes the cycle the group moves to
// the complete state in the same transaction.
func (s *service) RecordContribution(ctx context.Context, callerID, groupID uuid.UUID, cycleNumber int, amount decimal.Decimal) (*ContributionDTO, error) {
	if callerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var recorded *models.CycleContribution
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		group, err := loadGroup(ctx, repo, groupID)
		if err != nil {
			return err
		}
		if group.Status != enums.GroupStatusActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "group is not active").WithReason("not_active_group")
		}
		if cycleNumber != group.CurrentCycle {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cycle is not the group's current cycle").WithReason("cycle_mismatch")
		}
		if err := requireActiveMember(ctx, repo, callerID, groupID); err != nil {
			return err
		}
		if !amount.Equal(group.ContributionAmount) {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("contribution must be exactly %s", group.ContributionAmount.StringFixed(2))).
				WithReason("amount_mismatch")
		}

		row, err := repo.FindContribution(ctx, groupID, cycleNumber, callerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Admitted after this cycle opened; their slot starts next cycle.
				return pkgerrors.New(pkgerrors.CodeStateConflict, "no payment slot for this cycle").WithReason("not_in_cycle")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load contribution")
		}
		if row.Paid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "contribution already paid").WithReason("already_paid")
		}

		paidAt := time.Now().UTC()
		flipped, err := repo.MarkContributionPaid(ctx, row.ID, amount, paidAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark contribution paid")
		}
		if !flipped {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "contribution already paid").WithReason("already_paid")
		}

		if err := repo.AddToPool(ctx, groupID, amount); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update pool")
		}
		membership, err := findMembership(ctx, tx, callerID, groupID)
		if err != nil {
			return err
		}
		if err := repo.AddToMemberTotal(ctx, membership.ID, amount); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update member total")
		}

		row.Paid = true
		row.AmountPaid = amount
		row.PaidAt = &paidAt
		recorded = row

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventContributionRecorded,
			AggregateType: enums.AggregateContribution,
			AggregateID:   row.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: callerID, GroupID: &groupID},
			Data: payloads.ContributionRecordedEvent{
				GroupID:     groupID,
				CycleNumber: cycleNumber,
				UserID:      callerID,
				Amount:      amount,
				PaidAt:      paidAt,
			},
		}); err != nil {
			return err
		}

		unpaid, err := repo.CountUnpaidActive(ctx, groupID, cycleNumber)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "evaluate completion")
		}
		if unpaid > 0 {
			return nil
		}

		if err := repo.SetCycleState(ctx, groupID, enums.CycleStateComplete); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close cycle")
		}
		paidCount, err := repo.CountPaid(ctx, groupID, cycleNumber)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count paid slots")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCycleCompleted,
			AggregateType: enums.AggregateGroup,
			AggregateID:   groupID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: callerID, GroupID: &groupID},
			Data: payloads.CycleCompletedEvent{
				GroupID:     groupID,
				CycleNumber: cycleNumber,
				PoolAmount:  group.TotalPool.Add(amount),
				PaidCount:   int(paidCount),
				CompletedAt: paidAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return contributionToDTO(recorded), nil
}

// CycleStatus reports whether every active member has paid for the cycle.
func (s *service) CycleStatus(ctx context.Context, groupID uuid.UUID, cycleNumber int) (*CycleStatus, error) {
	group, err := loadGroup(ctx, s.repo, groupID)
	if err != nil {
		return nil, err
	}
	if cycleNumber <= 0 {
		cycleNumber = group.CurrentCycle
	}
	unpaid, err := s.repo.CountUnpaidActive(ctx, groupID, cycleNumber)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count unpaid slots")
	}
	paid, err := s.repo.CountPaid(ctx, groupID, cycleNumber)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count paid slots")
	}
	return &CycleStatus{
		GroupID:      groupID,
		CycleNumber:  cycleNumber,
		State:        group.CycleState,
		Complete:     unpaid == 0,
		PaidCount:    int(paid),
		PendingCount: int(unpaid),
		TotalPool:    group.TotalPool,
	}, nil
}

// SelectPayoutRecipient draws the cycle's recipient once every active member
// has paid. Lottery groups draw uniformly at random from members not yet
// paid out this rotation; ordered groups take the lowest assigned position.
// When the rotation is exhausted the group either resets the rotation
// (allow_repeat_rotations) or transitions to completed.
func (s *service) SelectPayoutRecipient(ctx context.Context, callerID, groupID uuid.UUID, cycleNumber int) (*DrawResult, error) {
	if err := s.requireManager(ctx, callerID, groupID); err != nil {
		return nil, err
	}

	var result DrawResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		group, err := loadGroup(ctx, repo, groupID)
		if err != nil {
			return err
		}
		if group.Status != enums.GroupStatusActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "group is not active").WithReason("not_active_group")
		}
		if cycleNumber != group.CurrentCycle {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cycle is not the group's current cycle").WithReason("cycle_mismatch")
		}

		unpaid, err := repo.CountUnpaidActive(ctx, groupID, cycleNumber)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "evaluate completion")
		}
		if unpaid > 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cycle still has unpaid members").WithReason("cycle_not_complete")
		}

		existing, err := repo.FindPayout(ctx, groupID, cycleNumber)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing draw")
		}
		if existing != nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cycle recipient already drawn").WithReason("already_drawn")
		}

		active, err := repo.ActiveMembers(ctx, groupID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load members")
		}
		if len(active) == 0 {
			return pkgerrors.New(pkgerrors.CodeInternal, "cycle complete with no active members").WithReason("no_eligible_candidates")
		}

		candidates := eligible(active)
		if len(candidates) == 0 {
			// Everyone has had their turn.
			if !group.AllowRepeatRotations {
				if err := repo.CompleteGroup(ctx, groupID); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete group")
				}
				result.GroupCompleted = true
				return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
					EventType:     enums.EventGroupCompleted,
					AggregateType: enums.AggregateGroup,
					AggregateID:   groupID,
					Version:       1,
					Actor:         &outbox.ActorRef{UserID: callerID, GroupID: &groupID},
					Data: payloads.GroupCompletedEvent{
						GroupID:     groupID,
						FinalCycle:  cycleNumber,
						CompletedAt: time.Now().UTC(),
					},
				})
			}
			if err := repo.ResetRotation(ctx, groupID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset rotation")
			}
			candidates = active
		}

		recipient, method, err := pickRecipient(group.Type, candidates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "draw recipient")
		}

		payout := &models.PayoutEvent{
			GroupID:         groupID,
			CycleNumber:     cycleNumber,
			RecipientUserID: recipient.UserID,
			Amount:          group.ContributionAmount.Mul(decimal.NewFromInt(int64(len(active)))),
			Method:          method,
		}
		if err := repo.CreatePayout(ctx, payout); err != nil {
			if db.IsUniqueViolation(err, "ux_payout_events_group_cycle") {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "cycle recipient already drawn").WithReason("already_drawn")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payout")
		}
		if err := repo.MarkPaidOut(ctx, recipient.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag recipient")
		}
		if err := repo.SetCycleState(ctx, groupID, enums.CycleStateDrawn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark cycle drawn")
		}

		result.Payout = payoutToDTO(payout)
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutSelected,
			AggregateType: enums.AggregatePayout,
			AggregateID:   payout.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: callerID, GroupID: &groupID},
			Data: payloads.PayoutSelectedEvent{
				GroupID:         groupID,
				CycleNumber:     cycleNumber,
				RecipientUserID: recipient.UserID,
				Amount:          payout.Amount,
				Method:          method,
				SelectedAt:      time.Now().UTC(),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// AdvanceCycle opens the next cycle once the current one has been drawn:
// fresh unpaid slots for every active member, pool back to zero, payout date
// pushed out one frequency interval. If the draw just paid the rotation's
// last member and repeats are disallowed, the group completes instead.
func (s *service) AdvanceCycle(ctx context.Context, callerID, groupID uuid.UUID) (*AdvanceResult, error) {
	if err := s.requireManager(ctx, callerID, groupID); err != nil {
		return nil, err
	}

	var result AdvanceResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		group, err := loadGroup(ctx, repo, groupID)
		if err != nil {
			return err
		}
		if group.Status != enums.GroupStatusActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "group is not active").WithReason("not_active_group")
		}

		payout, err := repo.FindPayout(ctx, groupID, group.CurrentCycle)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check current draw")
		}
		if payout == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "current cycle has no payout yet").WithReason("payout_pending")
		}

		from := group.CurrentCycle
		to := from + 1

		// With repeats disallowed, the draw that paid the last unpaid
		// member ends the rotation. Complete the group here instead of
		// opening a cycle that could never be drawn from.
		if !group.AllowRepeatRotations {
			active, err := repo.ActiveMembers(ctx, groupID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load members")
			}
			if len(eligible(active)) == 0 {
				if err := repo.CompleteGroup(ctx, groupID); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete group")
				}
				result = AdvanceResult{
					GroupID:        groupID,
					FromCycle:      from,
					ToCycle:        from,
					GroupCompleted: true,
				}
				return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
					EventType:     enums.EventGroupCompleted,
					AggregateType: enums.AggregateGroup,
					AggregateID:   groupID,
					Version:       1,
					Actor:         &outbox.ActorRef{UserID: callerID, GroupID: &groupID},
					Data: payloads.GroupCompletedEvent{
						GroupID:     groupID,
						FinalCycle:  from,
						CompletedAt: time.Now().UTC(),
					},
				})
			}
		}

		base := time.Now().UTC()
		if group.NextPayoutDate != nil {
			base = *group.NextPayoutDate
		}
		next := group.Frequency.Next(base)

		rowsCut, err := repo.CutRows(ctx, tx, group, to)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cut contribution rows")
		}
		if err := repo.OpenNextCycle(ctx, groupID, &next); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open next cycle")
		}

		result = AdvanceResult{
			GroupID:        groupID,
			FromCycle:      from,
			ToCycle:        to,
			RowsCut:        rowsCut,
			NextPayoutDate: &next,
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCycleAdvanced,
			AggregateType: enums.AggregateGroup,
			AggregateID:   groupID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: callerID, GroupID: &groupID},
			Data: payloads.CycleAdvancedEvent{
				GroupID:        groupID,
				FromCycle:      from,
				ToCycle:        to,
				GroupStatus:    enums.GroupStatusActive,
				NextPayoutDate: &next,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *service) ListContributions(ctx context.Context, groupID uuid.UUID, cycleNumber int) ([]ContributionDTO, error) {
	if cycleNumber <= 0 {
		group, err := loadGroup(ctx, s.repo, groupID)
		if err != nil {
			return nil, err
		}
		cycleNumber = group.CurrentCycle
	}
	rows, err := s.repo.ListContributions(ctx, groupID, cycleNumber)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list contributions")
	}
	return contributionsToDTO(rows), nil
}

func (s *service) ListPayouts(ctx context.Context, groupID uuid.UUID) ([]PayoutDTO, error) {
	rows, err := s.repo.ListPayouts(ctx, groupID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payouts")
	}
	return payoutsToDTO(rows), nil
}

func (s *service) requireManager(ctx context.Context, callerID, groupID uuid.UUID) error {
	if callerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	ok, err := s.roles.UserHasRole(ctx, callerID, groupID, enums.MemberRoleCreator, enums.MemberRoleAdmin)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check role")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeForbidden, "creator or admin role required")
	}
	return nil
}

func loadGroup(ctx context.Context, repo *Repository, groupID uuid.UUID) (*models.SavingsGroup, error) {
	group, err := repo.FindGroupForUpdate(ctx, groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "group not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load group")
	}
	return group, nil
}

func requireActiveMember(ctx context.Context, repo *Repository, userID, groupID uuid.UUID) error {
	members, err := repo.ActiveMembers(ctx, groupID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load members")
	}
	for _, m := range members {
		if m.UserID == userID {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "active membership required").WithReason("not_a_member")
}

func findMembership(ctx context.Context, tx *gorm.DB, userID, groupID uuid.UUID) (*models.GroupMembership, error) {
	var membership models.GroupMembership
	err := tx.WithContext(ctx).
		Where("user_id = ? AND group_id = ?", userID, groupID).
		First(&membership).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load membership")
	}
	return &membership, nil
}

// eligible filters members still owed a turn in the current rotation.
func eligible(members []models.GroupMembership) []models.GroupMembership {
	out := make([]models.GroupMembership, 0, len(members))
	for _, m := range members {
		if !m.HasBeenPaidOut {
			out = append(out, m)
		}
	}
	return out
}

// pickRecipient applies the group's selection rule. Candidates arrive in
// rotation order (position ASC), so ordered groups take the head of the list.
func pickRecipient(groupType enums.GroupType, candidates []models.GroupMembership) (*models.GroupMembership, enums.PayoutMethod, error) {
	if len(candidates) == 0 {
		return nil, "", errEmptyCandidateSet
	}
	switch groupType {
	case enums.GroupTypeOrdered:
		return &candidates[0], enums.PayoutMethodOrder, nil
	default:
		idx, err := pickIndex(len(candidates))
		if err != nil {
			return nil, "", err
		}
		return &candidates[idx], enums.PayoutMethodLottery, nil
	}
}

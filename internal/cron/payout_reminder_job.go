package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/kixikila/kixikila-backend/pkg/db/models"
	"github.com/kixikila/kixikila-backend/pkg/enums"
	"github.com/kixikila/kixikila-backend/pkg/logger"
	"github.com/kixikila/kixikila-backend/pkg/outbox"
	"github.com/kixikila/kixikila-backend/pkg/outbox/payloads"
)

const (
	defaultReminderWindow = 24 * time.Hour
	reminderDedupeTTL     = 20 * time.Hour
)

type PayoutReminderJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository payoutReminderRepo
	Dedupe     reminderDedupe
	Window     time.Duration
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type payoutReminderRepo interface {
	GroupsApproachingPayout(ctx context.Context, by time.Time) ([]models.SavingsGroup, error)
	UnpaidActiveUserIDs(ctx context.Context, groupID uuid.UUID, cycleNumber int) ([]uuid.UUID, error)
}

type reminderEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type reminderDedupe interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
}

// NewPayoutReminderJob builds the job that nudges unpaid members before the
// payout date.
func NewPayoutReminderJob(params PayoutReminderJobParams, emitter reminderEmitter) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("cycle repository required")
	}
	if params.Dedupe == nil {
		return nil, fmt.Errorf("dedupe store required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	window := params.Window
	if window <= 0 {
		window = defaultReminderWindow
	}
	return &payoutReminderJob{
		logg:    params.Logger,
		db:      params.DB,
		repo:    params.Repository,
		dedupe:  params.Dedupe,
		emitter: emitter,
		window:  window,
		now:     time.Now,
	}, nil
}

type payoutReminderJob struct {
	logg    *logger.Logger
	db      txRunner
	repo    payoutReminderRepo
	dedupe  reminderDedupe
	emitter reminderEmitter
	window  time.Duration
	now     func() time.Time
}

func (j *payoutReminderJob) Name() string { return "payout-reminder" }

func (j *payoutReminderJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	groups, err := j.repo.GroupsApproachingPayout(ctx, now.Add(j.window))
	if err != nil {
		return fmt.Errorf("list groups approaching payout: %w", err)
	}

	reminded := 0
	var errs []error
	for _, group := range groups {
		sent, err := j.remind(ctx, group)
		if err != nil {
			groupCtx := j.logg.WithGroupID(ctx, group.ID.String())
			j.logg.Error(groupCtx, "payout reminder failed for group", err)
			errs = append(errs, fmt.Errorf("group %s: %w", group.ID, err))
			continue
		}
		if sent {
			reminded++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"groups_due":     len(groups),
		"reminders_sent": reminded,
	})
	j.logg.Info(logCtx, "payout reminder sweep complete")
	return multierr.Combine(errs...)
}

func (j *payoutReminderJob) remind(ctx context.Context, group models.SavingsGroup) (bool, error) {
	unpaid, err := j.repo.UnpaidActiveUserIDs(ctx, group.ID, group.CurrentCycle)
	if err != nil {
		return false, err
	}
	if len(unpaid) == 0 {
		return false, nil
	}

	// One reminder per group and cycle per sweep window, even if the worker
	// restarts in between.
	key := fmt.Sprintf("cron:payout-reminder:%s:%d", group.ID, group.CurrentCycle)
	fresh, err := j.dedupe.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), reminderDedupeTTL)
	if err != nil {
		return false, err
	}
	if !fresh {
		return false, nil
	}

	var dueDate time.Time
	if group.NextPayoutDate != nil {
		dueDate = *group.NextPayoutDate
	}

	err = j.db.WithTx(ctx, func(tx *gorm.DB) error {
		return j.emitter.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutReminderDue,
			AggregateType: enums.AggregateGroup,
			AggregateID:   group.ID,
			Data: payloads.PayoutReminderDueEvent{
				GroupID:        group.ID,
				CycleNumber:    group.CurrentCycle,
				UnpaidUserIDs:  unpaid,
				NextPayoutDate: dueDate,
			},
			Version: 1,
		})
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

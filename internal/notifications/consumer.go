package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/kixikila/kixikila-backend/pkg/db/models"
	"github.com/kixikila/kixikila-backend/pkg/enums"
	"github.com/kixikila/kixikila-backend/pkg/logger"
	"github.com/kixikila/kixikila-backend/pkg/outbox"
	"github.com/kixikila/kixikila-backend/pkg/outbox/idempotency"
	"github.com/kixikila/kixikila-backend/pkg/outbox/payloads"
	"github.com/kixikila/kixikila-backend/pkg/outbox/registry"
)

const groupNotificationConsumer = "group-notifications"

type repository interface {
	Create(ctx context.Context, notification *models.Notification) error
	CreateBatch(ctx context.Context, notifications []models.Notification) error
}

type memberLister interface {
	ListActiveMembers(ctx context.Context, groupID uuid.UUID) ([]models.GroupMembership, error)
}

// Consumer watches domain events and turns group lifecycle transitions into
// per-user in-app notifications.
type Consumer struct {
	repo         repository
	members      memberLister
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	decoders     *registry.DecoderRegistry
	logg         *logger.Logger
}

// NewConsumer builds a group notification consumer.
func NewConsumer(repo repository, members memberLister, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if members == nil {
		return nil, fmt.Errorf("member lister required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		members:      members,
		subscription: subscription,
		idempotency:  manager,
		decoders:     newPayloadDecoders(),
		logg:         logg,
	}, nil
}

func decodeAs[T any](payload json.RawMessage) (interface{}, error) {
	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func newPayloadDecoders() *registry.DecoderRegistry {
	reg := registry.NewDecoderRegistry()
	reg.Register(enums.EventGroupActivated, 1, decodeAs[payloads.GroupActivatedEvent])
	reg.Register(enums.EventGroupCompleted, 1, decodeAs[payloads.GroupCompletedEvent])
	reg.Register(enums.EventMemberApproved, 1, decodeAs[payloads.MemberApprovedEvent])
	reg.Register(enums.EventContributionRecorded, 1, decodeAs[payloads.ContributionRecordedEvent])
	reg.Register(enums.EventCycleCompleted, 1, decodeAs[payloads.CycleCompletedEvent])
	reg.Register(enums.EventPayoutSelected, 1, decodeAs[payloads.PayoutSelectedEvent])
	reg.Register(enums.EventCycleAdvanced, 1, decodeAs[payloads.CycleAdvancedEvent])
	reg.Register(enums.EventPayoutReminderDue, 1, decodeAs[payloads.PayoutReminderDueEvent])
	reg.Register(enums.EventNotificationRequested, 1, decodeAs[payloads.NotificationRequestedEvent])
	return reg
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	handler, ok := c.handlerFor(eventType)
	if !ok {
		c.logg.Info(logCtx, "skipping event without notification handler")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	payload, err := c.decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode payload", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, groupNotificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	if err := handler(ctx, payload, logCtx); err != nil {
		c.logg.Error(logCtx, "notification handling failed", err)
		_ = c.idempotency.Delete(ctx, groupNotificationConsumer, eventID)
		return processResult{nack: true}
	}
	return processResult{ack: true}
}

type eventHandler func(ctx context.Context, payload interface{}, logCtx context.Context) error

func (c *Consumer) handlerFor(eventType enums.OutboxEventType) (eventHandler, bool) {
	switch eventType {
	case enums.EventGroupActivated:
		return c.handleGroupActivated, true
	case enums.EventGroupCompleted:
		return c.handleGroupCompleted, true
	case enums.EventMemberApproved:
		return c.handleMemberApproved, true
	case enums.EventContributionRecorded:
		return c.handleContributionRecorded, true
	case enums.EventCycleCompleted:
		return c.handleCycleCompleted, true
	case enums.EventPayoutSelected:
		return c.handlePayoutSelected, true
	case enums.EventCycleAdvanced:
		return c.handleCycleAdvanced, true
	case enums.EventPayoutReminderDue:
		return c.handlePayoutReminder, true
	case enums.EventNotificationRequested:
		return c.handleNotificationRequested, true
	default:
		return nil, false
	}
}

func (c *Consumer) handleGroupActivated(ctx context.Context, raw interface{}, logCtx context.Context) error {
	payload, ok := raw.(*payloads.GroupActivatedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", raw)
	}
	message := fmt.Sprintf("%s is now active. Cycle 1 is open for contributions.", payload.Name)
	if err := c.notifyGroup(ctx, payload.GroupID, enums.NotificationTypeCycleOpened, "Group activated", message, nil); err != nil {
		return err
	}
	c.logg.Info(logCtx, "group members notified of activation")
	return nil
}

func (c *Consumer) handleGroupCompleted(ctx context.Context, raw interface{}, logCtx context.Context) error {
	payload, ok := raw.(*payloads.GroupCompletedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", raw)
	}
	message := fmt.Sprintf("The rotation finished after cycle %d. Thanks for saving together!", payload.FinalCycle)
	if err := c.notifyGroup(ctx, payload.GroupID, enums.NotificationTypeSystemAnnouncement, "Group completed", message, nil); err != nil {
		return err
	}
	c.logg.Info(logCtx, "group members notified of completion")
	return nil
}

func (c *Consumer) handleMemberApproved(ctx context.Context, raw interface{}, logCtx context.Context) error {
	payload, ok := raw.(*payloads.MemberApprovedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", raw)
	}
	if payload.UserID == uuid.Nil {
		return fmt.Errorf("user id missing")
	}
	message := "Your membership request was approved."
	if payload.Position != nil {
		message = fmt.Sprintf("Your membership request was approved. You hold rotation slot %d.", *payload.Position)
	}
	notification := &models.Notification{
		UserID:  payload.UserID,
		GroupID: &payload.GroupID,
		Type:    enums.NotificationTypeMembership,
		Title:   "Membership approved",
		Message: message,
	}
	if err := c.repo.Create(ctx, notification); err != nil {
		return err
	}
	c.logg.Info(logCtx, "member notified of approval")
	return nil
}

func (c *Consumer) handleContributionRecorded(ctx context.Context, raw interface{}, logCtx context.Context) error {
	payload, ok := raw.(*payloads.ContributionRecordedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", raw)
	}
	if payload.UserID == uuid.Nil {
		return fmt.Errorf("user id missing")
	}
	notification := &models.Notification{
		UserID:  payload.UserID,
		GroupID: &payload.GroupID,
		Type:    enums.NotificationTypeContributionReceipt,
		Title:   "Contribution received",
		Message: fmt.Sprintf("Your contribution of %s for cycle %d was recorded.", payload.Amount.StringFixed(2), payload.CycleNumber),
	}
	if err := c.repo.Create(ctx, notification); err != nil {
		return err
	}
	c.logg.Info(logCtx, "member sent contribution receipt")
	return nil
}

func (c *Consumer) handleCycleCompleted(ctx context.Context, raw interface{}, logCtx context.Context) error {
	payload, ok := raw.(*payloads.CycleCompletedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", raw)
	}
	message := fmt.Sprintf("Everyone has paid for cycle %d. Pool: %s. The draw is next.", payload.CycleNumber, payload.PoolAmount.StringFixed(2))
	if err := c.notifyGroup(ctx, payload.GroupID, enums.NotificationTypeCycleComplete, "Cycle complete", message, nil); err != nil {
		return err
	}
	c.logg.Info(logCtx, "group members notified of cycle completion")
	return nil
}

func (c *Consumer) handlePayoutSelected(ctx context.Context, raw interface{}, logCtx context.Context) error {
	payload, ok := raw.(*payloads.PayoutSelectedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", raw)
	}
	if payload.RecipientUserID == uuid.Nil {
		return fmt.Errorf("recipient user id missing")
	}
	winner := &models.Notification{
		UserID:  payload.RecipientUserID,
		GroupID: &payload.GroupID,
		Type:    enums.NotificationTypePayoutWinner,
		Title:   "You won the payout!",
		Message: fmt.Sprintf("You receive %s for cycle %d.", payload.Amount.StringFixed(2), payload.CycleNumber),
	}
	if err := c.repo.Create(ctx, winner); err != nil {
		return err
	}
	message := fmt.Sprintf("Cycle %d's payout of %s has been assigned.", payload.CycleNumber, payload.Amount.StringFixed(2))
	if err := c.notifyGroup(ctx, payload.GroupID, enums.NotificationTypeSystemAnnouncement, "Payout drawn", message, &payload.RecipientUserID); err != nil {
		return err
	}
	c.logg.Info(logCtx, "payout notifications sent")
	return nil
}

func (c *Consumer) handleCycleAdvanced(ctx context.Context, raw interface{}, logCtx context.Context) error {
	payload, ok := raw.(*payloads.CycleAdvancedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", raw)
	}
	message := fmt.Sprintf("Cycle %d is open. Contributions are due.", payload.ToCycle)
	if payload.NextPayoutDate != nil {
		message = fmt.Sprintf("Cycle %d is open. Contributions are due by %s.", payload.ToCycle, payload.NextPayoutDate.Format("2006-01-02"))
	}
	if err := c.notifyGroup(ctx, payload.GroupID, enums.NotificationTypeCycleOpened, "New cycle opened", message, nil); err != nil {
		return err
	}
	c.logg.Info(logCtx, "group members notified of new cycle")
	return nil
}

func (c *Consumer) handlePayoutReminder(ctx context.Context, raw interface{}, logCtx context.Context) error {
	payload, ok := raw.(*payloads.PayoutReminderDueEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", raw)
	}
	rows := make([]models.Notification, 0, len(payload.UnpaidUserIDs))
	for _, userID := range payload.UnpaidUserIDs {
		groupID := payload.GroupID
		rows = append(rows, models.Notification{
			UserID:  userID,
			GroupID: &groupID,
			Type:    enums.NotificationTypePayoutReminder,
			Title:   "Contribution reminder",
			Message: fmt.Sprintf("Your contribution for cycle %d is still due. The payout is scheduled for %s.", payload.CycleNumber, payload.NextPayoutDate.Format("2006-01-02")),
		})
	}
	if err := c.repo.CreateBatch(ctx, rows); err != nil {
		return err
	}
	c.logg.Info(logCtx, "unpaid members reminded")
	return nil
}

func (c *Consumer) handleNotificationRequested(ctx context.Context, raw interface{}, logCtx context.Context) error {
	payload, ok := raw.(*payloads.NotificationRequestedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", raw)
	}
	if payload.UserID == uuid.Nil {
		return fmt.Errorf("user id missing")
	}
	if !payload.Type.IsValid() {
		return fmt.Errorf("invalid notification type %q", payload.Type)
	}
	notification := &models.Notification{
		UserID:  payload.UserID,
		GroupID: payload.GroupID,
		Type:    payload.Type,
		Title:   payload.Title,
		Message: payload.Message,
	}
	if err := c.repo.Create(ctx, notification); err != nil {
		return err
	}
	c.logg.Info(logCtx, "requested notification persisted")
	return nil
}

// notifyGroup fans one message out to every active member, optionally
// skipping one user (e.g. the payout winner, who gets their own message).
func (c *Consumer) notifyGroup(ctx context.Context, groupID uuid.UUID, notifType enums.NotificationType, title, message string, skip *uuid.UUID) error {
	members, err := c.members.ListActiveMembers(ctx, groupID)
	if err != nil {
		return err
	}
	rows := make([]models.Notification, 0, len(members))
	for _, member := range members {
		if skip != nil && member.UserID == *skip {
			continue
		}
		gid := groupID
		rows = append(rows, models.Notification{
			UserID:  member.UserID,
			GroupID: &gid,
			Type:    notifType,
			Title:   title,
			Message: message,
		})
	}
	return c.repo.CreateBatch(ctx, rows)
}

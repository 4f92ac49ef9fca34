package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateGroup        OutboxAggregateType = "group"
	AggregateMembership   OutboxAggregateType = "membership"
	AggregateContribution OutboxAggregateType = "contribution"
	AggregatePayout       OutboxAggregateType = "payout"
	AggregateNotification OutboxAggregateType = "notification"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateGroup,
	AggregateMembership,
	AggregateContribution,
	AggregatePayout,
	AggregateNotification,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventGroupActivated        OutboxEventType = "group_activated"
	EventGroupCompleted        OutboxEventType = "group_completed"
	EventMemberJoined          OutboxEventType = "member_joined"
	EventMemberApproved        OutboxEventType = "member_approved"
	EventMemberSuspended       OutboxEventType = "member_suspended"
	EventContributionRecorded  OutboxEventType = "contribution_recorded"
	EventCycleCompleted        OutboxEventType = "cycle_completed"
	EventPayoutSelected        OutboxEventType = "payout_selected"
	EventCycleAdvanced         OutboxEventType = "cycle_advanced"
	EventPayoutReminderDue     OutboxEventType = "payout_reminder_due"
	EventNotificationRequested OutboxEventType = "notification_requested"
)

var validOutboxEventTypes = []OutboxEventType{
	EventGroupActivated,
	EventGroupCompleted,
	EventMemberJoined,
	EventMemberApproved,
	EventMemberSuspended,
	EventContributionRecorded,
	EventCycleCompleted,
	EventPayoutSelected,
	EventCycleAdvanced,
	EventPayoutReminderDue,
	EventNotificationRequested,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

package enums

import "fmt"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeContributionReceipt NotificationType = "contribution_receipt"
	NotificationTypeCycleComplete       NotificationType = "cycle_complete"
	NotificationTypePayoutWinner        NotificationType = "payout_winner"
	NotificationTypeCycleOpened         NotificationType = "cycle_opened"
	NotificationTypePayoutReminder      NotificationType = "payout_reminder"
	NotificationTypeMembership          NotificationType = "membership"
	NotificationTypeSystemAnnouncement  NotificationType = "system_announcement"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeContributionReceipt,
	NotificationTypeCycleComplete,
	NotificationTypePayoutWinner,
	NotificationTypeCycleOpened,
	NotificationTypePayoutReminder,
	NotificationTypeMembership,
	NotificationTypeSystemAnnouncement,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}

package enums

// NotificationType classifies in-app shop notifications.
type NotificationType string

const (
	NotificationTypeOrderReceived  NotificationType = "order_received"
	NotificationTypePayoutPaid     NotificationType = "payout_paid"
	NotificationTypePayoutFailed   NotificationType = "payout_failed"
	NotificationTypeTransferFailed NotificationType = "transfer_failed"
)

func (n NotificationType) IsValid() bool {
	return member(n,
		NotificationTypeOrderReceived,
		NotificationTypePayoutPaid,
		NotificationTypePayoutFailed,
		NotificationTypeTransferFailed,
	)
}

package domain

import "time"

// Notification is an in-app message generated by a status change.
type Notification struct {
	ID             string       `json:"id"`
	UserID         string       `json:"user_id"`
	ParcelID       string       `json:"parcel_id"`
	TrackingNumber string       `json:"tracking_number"`
	Status         ParcelStatus `json:"status"`
	Title          string       `json:"title"`
	Message        string       `json:"message"`
	Read           bool         `json:"read"`
	CreatedAt      time.Time    `json:"created_at"`
}

// NotifiesRecipient reports whether the recipient is told about status s.
// The sender is told about every status.
func NotifiesRecipient(s ParcelStatus) bool {
	return s == StatusOutForDelivery || s == StatusDelivered
}

package domain

import "time"

// TrackingEntry is one immutable line of a parcel's tracking history.
type TrackingEntry struct {
	ID          string       `json:"id"`
	ParcelID    string       `json:"parcel_id"`
	Status      ParcelStatus `json:"status"`
	Location    string       `json:"location,omitempty"`
	Description string       `json:"description,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
	UpdatedBy   string       `json:"updated_by"`
}

var defaultDescriptions = map[ParcelStatus]string{
	StatusDraft:            "Parcel saved as draft",
	StatusProcessing:       "Parcel created and processing",
	StatusPaymentPending:   "Parcel created, awaiting payment",
	StatusPaymentConfirmed: "Payment confirmed",
	StatusPickedUp:         "Parcel picked up by courier",
	StatusInTransit:        "Parcel in transit",
	StatusOutForDelivery:   "Parcel out for delivery",
	StatusDelivered:        "Parcel delivered",
	StatusDelayed:          "Delivery delayed",
	StatusReturned:         "Parcel returned to sender",
	StatusCancelled:        "Parcel cancelled",
	StatusRefunded:         "Payment refunded",
}

// DefaultDescription returns the ledger text used when the actor gave none.
func DefaultDescription(s ParcelStatus) string {
	if d, ok := defaultDescriptions[s]; ok {
		return d
	}
	return "Status updated to " + string(s)
}

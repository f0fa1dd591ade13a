package domain

import (
	"strings"
	"time"
)

// AttemptStatus is the outcome of a single delivery attempt.
type AttemptStatus string

const (
	AttemptSuccessful       AttemptStatus = "SUCCESSFUL"
	AttemptNoOneHome        AttemptStatus = "FAILED_NO_ONE_HOME"
	AttemptIncorrectAddress AttemptStatus = "FAILED_INCORRECT_ADDRESS"
	AttemptRefused          AttemptStatus = "FAILED_REFUSED"
	AttemptWeather          AttemptStatus = "FAILED_WEATHER"
	AttemptOther            AttemptStatus = "FAILED_OTHER"
)

// RedeliveryDelay is the fixed wait before the next attempt of a DELAYED parcel.
const RedeliveryDelay = 24 * time.Hour

// DeliveryAttempt records the outcome of a delivery-stage transition.
type DeliveryAttempt struct {
	ID                 string        `json:"id"`
	ParcelID           string        `json:"parcel_id"`
	CourierID          string        `json:"courier_id,omitempty"`
	AttemptNumber      int           `json:"attempt_number"`
	Status             AttemptStatus `json:"status"`
	CourierNotes       string        `json:"courier_notes,omitempty"`
	Coordinates        *Coordinates  `json:"coordinates,omitempty"`
	ProofOfDeliveryURL string        `json:"proof_of_delivery_url,omitempty"`
	AttemptedAt        time.Time     `json:"attempted_at"`
	NextAttempt        *time.Time    `json:"next_attempt,omitempty"`
}

// RecordsAttempt reports whether a transition into s produces a delivery attempt.
func RecordsAttempt(s ParcelStatus) bool {
	return s == StatusDelivered || s == StatusDelayed || s == StatusReturned
}

// ClassifyAttempt derives an attempt outcome from free-text courier notes.
// The first matching rule wins; matching is case-insensitive.
func ClassifyAttempt(newStatus ParcelStatus, notes string) AttemptStatus {
	n := strings.ToLower(notes)
	switch {
	case strings.Contains(n, "no one home"):
		return AttemptNoOneHome
	case strings.Contains(n, "wrong address"):
		return AttemptIncorrectAddress
	case strings.Contains(n, "refused"):
		return AttemptRefused
	case newStatus == StatusDelayed:
		return AttemptOther
	case newStatus == StatusDelivered:
		return AttemptSuccessful
	default:
		return AttemptOther
	}
}

// ResolveAttemptStatus prefers a structured reason from the courier app and
// falls back to ClassifyAttempt.
func ResolveAttemptStatus(newStatus ParcelStatus, notes string, reason AttemptStatus) AttemptStatus {
	if reason != "" {
		return reason
	}
	return ClassifyAttempt(newStatus, notes)
}

// NextAttemptAt returns when the parcel should be retried, or nil when no
// redelivery is scheduled.
func NextAttemptAt(newStatus ParcelStatus, at time.Time) *time.Time {
	if newStatus != StatusDelayed {
		return nil
	}
	next := at.Add(RedeliveryDelay)
	return &next
}

// ParseAttemptStatus validates a structured failure reason.
func ParseAttemptStatus(s string) (AttemptStatus, error) {
	switch a := AttemptStatus(strings.ToUpper(strings.TrimSpace(s))); a {
	case AttemptSuccessful, AttemptNoOneHome, AttemptIncorrectAddress, AttemptRefused, AttemptWeather, AttemptOther:
		return a, nil
	case "":
		return "", nil
	}
	return "", NewValidationError("failure_reason", "unknown attempt outcome %q", s)
}

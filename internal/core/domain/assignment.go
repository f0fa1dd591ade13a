package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AssignmentStatus string

const (
	AssignmentActive    AssignmentStatus = "ACTIVE"
	AssignmentCompleted AssignmentStatus = "COMPLETED"
	AssignmentCancelled AssignmentStatus = "CANCELLED"
)

// CourierAssignment links a courier to a parcel. A parcel has at most one
// ACTIVE assignment. COMPLETED is reached only through a DELIVERED transition.
type CourierAssignment struct {
	ID          string           `json:"id"`
	ParcelID    string           `json:"parcel_id"`
	CourierID   string           `json:"courier_id"`
	Status      AssignmentStatus `json:"status"`
	AssignedAt  time.Time        `json:"assigned_at"`
	AssignedBy  string           `json:"assigned_by"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	CancelledAt *time.Time       `json:"cancelled_at,omitempty"`
	Earnings    decimal.Decimal  `json:"earnings"`
}

// AssignmentCompletion is applied together with a DELIVERED transition.
type AssignmentCompletion struct {
	AssignmentID string
	CompletedAt  time.Time
	Earnings     decimal.Decimal
}

package domain

import (
	"errors"
	"testing"
)

func TestDefaultTransitions(t *testing.T) {
	tests := []struct {
		from, to ParcelStatus
		want     bool
	}{
		{StatusDraft, StatusProcessing, true},
		{StatusDraft, StatusCancelled, false},
		{StatusProcessing, StatusPickedUp, true},
		{StatusProcessing, StatusCancelled, true},
		{StatusProcessing, StatusDelivered, false},
		{StatusPaymentPending, StatusPaymentConfirmed, true},
		{StatusPaymentConfirmed, StatusPickedUp, true},
		{StatusPickedUp, StatusDelivered, true},
		{StatusPickedUp, StatusCancelled, false},
		{StatusInTransit, StatusDelayed, true},
		{StatusOutForDelivery, StatusDelivered, true},
		{StatusDelayed, StatusOutForDelivery, true},
		{StatusDelayed, StatusDelivered, false},
		{StatusDelivered, StatusReturned, false},
		{StatusInTransit, StatusInTransit, false},
	}
	for _, tc := range tests {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			if got := DefaultTransitions.Allows(tc.from, tc.to); got != tc.want {
				t.Errorf("Allows = %v, want %v", got, tc.want)
			}
		})
	}
}

// lifecycleEdges is the allowed transition set written out as plain strings,
// so the exhaustive check below does not share data with DefaultTransitions.
var lifecycleEdges = map[string]bool{
	"DRAFT->PROCESSING":                  true,
	"PROCESSING->PICKED_UP":              true,
	"PROCESSING->CANCELLED":              true,
	"PAYMENT_PENDING->PAYMENT_CONFIRMED": true,
	"PAYMENT_PENDING->CANCELLED":         true,
	"PAYMENT_CONFIRMED->PICKED_UP":       true,
	"PAYMENT_CONFIRMED->CANCELLED":       true,
	"PICKED_UP->IN_TRANSIT":              true,
	"PICKED_UP->DELIVERED":               true,
	"PICKED_UP->RETURNED":                true,
	"IN_TRANSIT->OUT_FOR_DELIVERY":       true,
	"IN_TRANSIT->DELAYED":                true,
	"IN_TRANSIT->RETURNED":               true,
	"OUT_FOR_DELIVERY->DELIVERED":        true,
	"OUT_FOR_DELIVERY->DELAYED":          true,
	"OUT_FOR_DELIVERY->RETURNED":         true,
	"DELAYED->OUT_FOR_DELIVERY":          true,
	"DELAYED->RETURNED":                  true,
}

func TestDefaultTransitions_EveryPair(t *testing.T) {
	if len(AllStatuses) != 12 {
		t.Fatalf("expected 12 statuses, got %d", len(AllStatuses))
	}
	allowed := 0
	for _, from := range AllStatuses {
		for _, to := range AllStatuses {
			edge := string(from) + "->" + string(to)
			want := lifecycleEdges[edge]
			if got := DefaultTransitions.Allows(from, to); got != want {
				t.Errorf("%s: Allows = %v, want %v", edge, got, want)
			}
			err := ValidateTransition(from, to)
			if want && err != nil {
				t.Errorf("%s: unexpected error %v", edge, err)
			}
			if !want && !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("%s: expected ErrInvalidTransition, got %v", edge, err)
			}
			if want {
				allowed++
			}
		}
	}
	if allowed != len(lifecycleEdges) {
		t.Errorf("matched %d allowed pairs, expected %d", allowed, len(lifecycleEdges))
	}
}

func TestTerminalStatuses(t *testing.T) {
	terminal := map[ParcelStatus]bool{
		StatusDelivered: true, StatusReturned: true, StatusCancelled: true, StatusRefunded: true,
	}
	for _, s := range AllStatuses {
		if got := s.IsTerminal(); got != terminal[s] {
			t.Errorf("%s: IsTerminal = %v, want %v", s, got, terminal[s])
		}
		if terminal[s] && len(DefaultTransitions.Next(s)) != 0 {
			t.Errorf("%s: terminal status has outgoing edges", s)
		}
	}
}

func TestValidateTransition_Error(t *testing.T) {
	err := ValidateTransition(StatusProcessing, StatusDelivered)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	want := "invalid status transition from PROCESSING to DELIVERED"
	if err.Error() != want {
		t.Errorf("message = %q, want %q", err.Error(), want)
	}
	if err := ValidateTransition(StatusPickedUp, StatusInTransit); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNext_LifecycleOrder(t *testing.T) {
	got := DefaultTransitions.Next(StatusPickedUp)
	want := []ParcelStatus{StatusInTransit, StatusDelivered, StatusReturned}
	if len(got) != len(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Next[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestNewTransitionTable_CopiesInput(t *testing.T) {
	edges := map[ParcelStatus][]ParcelStatus{StatusDraft: {StatusProcessing}}
	table := NewTransitionTable(edges)
	edges[StatusDraft] = append(edges[StatusDraft], StatusCancelled)

	if table.Allows(StatusDraft, StatusCancelled) {
		t.Error("table must not observe later changes to its input")
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" in_transit ")
	if err != nil || s != StatusInTransit {
		t.Errorf("ParseStatus = %s, %v", s, err)
	}
	if _, err := ParseStatus("LOST"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

package domain

// TransitionTable is an immutable adjacency map of allowed status changes.
// Build one with NewTransitionTable; the zero value allows nothing.
type TransitionTable struct {
	edges map[ParcelStatus]map[ParcelStatus]struct{}
}

// NewTransitionTable copies edges into a new table. Later changes to the
// argument do not affect the returned table.
func NewTransitionTable(edges map[ParcelStatus][]ParcelStatus) TransitionTable {
	t := TransitionTable{edges: make(map[ParcelStatus]map[ParcelStatus]struct{}, len(edges))}
	for from, targets := range edges {
		set := make(map[ParcelStatus]struct{}, len(targets))
		for _, to := range targets {
			set[to] = struct{}{}
		}
		t.edges[from] = set
	}
	return t
}

// DefaultTransitions is the parcel lifecycle. PICKED_UP may go straight to
// DELIVERED; IN_TRANSIT is not mandatory.
var DefaultTransitions = NewTransitionTable(map[ParcelStatus][]ParcelStatus{
	StatusDraft:            {StatusProcessing},
	StatusProcessing:       {StatusPickedUp, StatusCancelled},
	StatusPaymentPending:   {StatusPaymentConfirmed, StatusCancelled},
	StatusPaymentConfirmed: {StatusPickedUp, StatusCancelled},
	StatusPickedUp:         {StatusInTransit, StatusDelivered, StatusReturned},
	StatusInTransit:        {StatusOutForDelivery, StatusDelayed, StatusReturned},
	StatusOutForDelivery:   {StatusDelivered, StatusDelayed, StatusReturned},
	StatusDelayed:          {StatusOutForDelivery, StatusReturned},
	StatusDelivered:        {},
	StatusReturned:         {},
	StatusCancelled:        {},
	StatusRefunded:         {},
})

// Allows reports whether from -> to is an edge of the table.
func (t TransitionTable) Allows(from, to ParcelStatus) bool {
	_, ok := t.edges[from][to]
	return ok
}

// Next returns the statuses reachable from `from`, in lifecycle order.
func (t TransitionTable) Next(from ParcelStatus) []ParcelStatus {
	targets := t.edges[from]
	out := make([]ParcelStatus, 0, len(targets))
	for _, s := range AllStatuses {
		if _, ok := targets[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// IsTerminal reports whether s is a known status without outbound edges.
func (t TransitionTable) IsTerminal(s ParcelStatus) bool {
	targets, known := t.edges[s]
	return known && len(targets) == 0
}

// Validate returns a *TransitionError when from -> to is not allowed.
func (t TransitionTable) Validate(from, to ParcelStatus) error {
	if !t.Allows(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// ValidateTransition checks a transition against DefaultTransitions.
func ValidateTransition(from, to ParcelStatus) error {
	return DefaultTransitions.Validate(from, to)
}

package models

// transitionMap lists the statuses each target status may be entered from.
// Transitions are monotonic: terminal statuses have no outgoing edges.
var transitionMap = map[EntryStatus][]EntryStatus{
	StatusWaiting:   {StatusPendingCheckIn, StatusCalled}, // check-in, requeue
	StatusCalled:    {StatusWaiting},
	StatusInService: {StatusCalled},
	StatusCompleted: {StatusInService},
	StatusNoShow:    {StatusCalled},
	StatusCancelled: {StatusPendingCheckIn, StatusWaiting},
}

func ValidTransition(from, to EntryStatus) bool {
	allowed, ok := transitionMap[to]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == from {
			return true
		}
	}
	return false
}

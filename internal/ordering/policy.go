package ordering

import (
	"sort"
	"time"

	"github.com/carelinehq/hybrid-queue/internal/models"
)

// Order produces the total order of a provider's queue from its active-entry
// set. Entries holding the serving slot (Called/InService) come first; the
// remaining Waiting entries are merged across both arrival streams by anchor
// time, with priority boost, join time and id as tie-breakers. Entries that
// do not occupy a slot (PendingCheckIn, terminal) are dropped.
//
// The function is pure: it never mutates its input and re-running it on an
// unchanged set yields an identical order.
func Order(entries []*models.QueueEntry, grace time.Duration) []*models.QueueEntry {
	serving := make([]*models.QueueEntry, 0, 1)
	waiting := make([]*models.QueueEntry, 0, len(entries))

	for _, e := range entries {
		switch {
		case e.HoldsServingSlot():
			serving = append(serving, e)
		case e.Status == models.StatusWaiting:
			waiting = append(waiting, e)
		}
	}

	sort.Slice(waiting, func(i, j int) bool {
		return Less(waiting[i], waiting[j], grace)
	})

	return append(serving, waiting...)
}

// Less is the merge rule between scheduled and walk-in entries: anchor time
// ascending, then priority boost descending, then joined time ascending,
// then id ascending for total-order determinism.
func Less(a, b *models.QueueEntry, grace time.Duration) bool {
	aAnchor, bAnchor := a.AnchorTime(grace), b.AnchorTime(grace)
	if !aAnchor.Equal(bAnchor) {
		return aAnchor.Before(bAnchor)
	}
	if a.PriorityBoost != b.PriorityBoost {
		return a.PriorityBoost > b.PriorityBoost
	}
	if !a.JoinedAt.Equal(b.JoinedAt) {
		return a.JoinedAt.Before(b.JoinedAt)
	}
	return a.ID < b.ID
}

package ordering

import (
	"context"
	"time"

	"github.com/carelinehq/hybrid-queue/internal/models"
)

// DurationEstimator supplies the expected service duration for a
// (provider, service) pair, feeding ETA computation.
type DurationEstimator interface {
	Expect(ctx context.Context, providerID, serviceID string) time.Duration
}

// PositionedEntry pairs an entry with its derived rank. Entries holding the
// serving slot carry position 0 and a zero ETA; Waiting entries get 1-based
// positions in queue order.
type PositionedEntry struct {
	Entry    *models.QueueEntry
	Position int
	ETA      time.Duration
}

// Positions derives positions and ETAs from an ordered queue. The ETA of a
// Waiting entry is the cumulative expected duration of everything ahead of
// it, the in-service occupant included. Always a full recompute over the
// current order; the per-provider set is small enough that incremental
// patching is not worth its drift bugs.
func Positions(ctx context.Context, ordered []*models.QueueEntry, est DurationEstimator) []PositionedEntry {
	out := make([]PositionedEntry, 0, len(ordered))

	var ahead time.Duration
	pos := 0
	for _, e := range ordered {
		if e.HoldsServingSlot() {
			out = append(out, PositionedEntry{Entry: e})
			ahead += est.Expect(ctx, e.ProviderID, e.ServiceID)
			continue
		}

		pos++
		out = append(out, PositionedEntry{
			Entry:    e,
			Position: pos,
			ETA:      ahead,
		})
		ahead += est.Expect(ctx, e.ProviderID, e.ServiceID)
	}

	return out
}

// FixedEstimator returns the same expected duration for every service.
type FixedEstimator time.Duration

func (f FixedEstimator) Expect(ctx context.Context, providerID, serviceID string) time.Duration {
	return time.Duration(f)
}

package ordering

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelinehq/hybrid-queue/internal/models"
)

var baseTime = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func scheduledEntry(id string, slot time.Time, joined time.Time) *models.QueueEntry {
	s := slot
	return &models.QueueEntry{
		ID:            id,
		CenterID:      "center-1",
		ProviderID:    "provider-1",
		Kind:          models.KindScheduled,
		ScheduledTime: &s,
		JoinedAt:      joined,
		Status:        models.StatusWaiting,
	}
}

func walkInEntry(id string, checkedIn time.Time) *models.QueueEntry {
	c := checkedIn
	return &models.QueueEntry{
		ID:          id,
		CenterID:    "center-1",
		ProviderID:  "provider-1",
		Kind:        models.KindWalkIn,
		JoinedAt:    checkedIn,
		CheckedInAt: &c,
		Status:      models.StatusWaiting,
	}
}

func orderedIDs(entries []*models.QueueEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}

func TestOrder_WalkInBeforeLaterScheduledSlot(t *testing.T) {
	// Walk-in checked in at 09:00 goes ahead of a 09:05 slot holder when no
	// grace period is configured.
	w := walkInEntry("w1", baseTime)
	s := scheduledEntry("s1", baseTime.Add(5*time.Minute), baseTime.Add(-time.Hour))

	ordered := Order([]*models.QueueEntry{s, w}, 0)

	assert.Equal(t, []string{"w1", "s1"}, orderedIDs(ordered))
}

func TestOrder_GracePeriodShiftsWalkInBehindSlot(t *testing.T) {
	w := walkInEntry("w1", baseTime)
	s := scheduledEntry("s1", baseTime.Add(5*time.Minute), baseTime.Add(-time.Hour))

	ordered := Order([]*models.QueueEntry{w, s}, 10*time.Minute)

	assert.Equal(t, []string{"s1", "w1"}, orderedIDs(ordered))
}

func TestOrder_EarlyCheckInKeepsScheduledSlot(t *testing.T) {
	// A scheduled customer who checks in an hour early still anchors at the
	// booked slot, not at arrival time.
	s := scheduledEntry("s1", baseTime.Add(time.Hour), baseTime.Add(-2*time.Hour))
	early := baseTime
	s.CheckedInAt = &early

	w := walkInEntry("w1", baseTime.Add(10*time.Minute))

	ordered := Order([]*models.QueueEntry{s, w}, 0)

	assert.Equal(t, []string{"w1", "s1"}, orderedIDs(ordered))
}

func TestOrder_ServingSlotPinnedFirst(t *testing.T) {
	serving := walkInEntry("called", baseTime)
	serving.Status = models.StatusCalled

	w := walkInEntry("w1", baseTime.Add(-time.Hour))

	ordered := Order([]*models.QueueEntry{w, serving}, 0)

	require.Len(t, ordered, 2)
	assert.Equal(t, "called", ordered[0].ID)
	assert.Equal(t, "w1", ordered[1].ID)
}

func TestOrder_DropsNonSlotEntries(t *testing.T) {
	pending := scheduledEntry("p1", baseTime.Add(time.Hour), baseTime)
	pending.Status = models.StatusPendingCheckIn

	done := walkInEntry("d1", baseTime)
	done.Status = models.StatusCompleted

	w := walkInEntry("w1", baseTime)

	ordered := Order([]*models.QueueEntry{pending, done, w}, 0)

	assert.Equal(t, []string{"w1"}, orderedIDs(ordered))
}

func TestOrder_TieBreaks(t *testing.T) {
	anchor := baseTime

	boosted := walkInEntry("boosted", anchor)
	boosted.PriorityBoost = 5

	earlier := walkInEntry("earlier", anchor)
	earlier.JoinedAt = anchor.Add(-time.Minute)

	plainA := walkInEntry("a", anchor)
	plainB := walkInEntry("b", anchor)

	ordered := Order([]*models.QueueEntry{plainB, plainA, earlier, boosted}, 0)

	// Boost wins the anchor tie, then earlier join, then id.
	assert.Equal(t, []string{"boosted", "earlier", "a", "b"}, orderedIDs(ordered))
}

func TestOrder_DeterministicAndPure(t *testing.T) {
	entries := []*models.QueueEntry{
		walkInEntry("w2", baseTime.Add(2*time.Minute)),
		scheduledEntry("s1", baseTime.Add(5*time.Minute), baseTime.Add(-time.Hour)),
		walkInEntry("w1", baseTime),
	}
	inputIDs := orderedIDs(entries)

	first := Order(entries, 0)
	second := Order(entries, 0)

	assert.Equal(t, orderedIDs(first), orderedIDs(second))
	assert.Equal(t, inputIDs, orderedIDs(entries), "input slice must not be reordered")
}

func TestLess_AnchorDominatesBoost(t *testing.T) {
	early := walkInEntry("early", baseTime)
	lateBoosted := walkInEntry("late", baseTime.Add(time.Minute))
	lateBoosted.PriorityBoost = 10

	assert.True(t, Less(early, lateBoosted, 0))
	assert.False(t, Less(lateBoosted, early, 0))
}

package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotSchedulerGenerateProducesEightFixedBlocks(t *testing.T) {
	s := NewSlotScheduler(time.UTC)
	slots, err := s.Generate("drv1", "2026-08-01")
	require.NoError(t, err)
	require.Len(t, slots, len(SlotHours))
	for i, hour := range SlotHours {
		assert.Equal(t, hour, slots[i].StartHour)
		assert.Equal(t, SlotAvailable, slots[i].Status)
		assert.Equal(t, 2*time.Hour, slots[i].EndTime.Sub(slots[i].StartTime))
	}
}

func TestSlotSchedulerGenerateRejectsInvalidDate(t *testing.T) {
	s := NewSlotScheduler(time.UTC)
	_, err := s.Generate("drv1", "not-a-date")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSlotSchedulerGenerateRejectsConcurrentCallsForSameDriver(t *testing.T) {
	s := NewSlotScheduler(time.UTC)
	require.NoError(t, s.beginGeneration("drv1"))
	_, err := s.Generate("drv1", "2026-08-01")
	assert.ErrorIs(t, err, ErrGenerationInProgress)
	s.endGeneration("drv1")

	_, err = s.Generate("drv1", "2026-08-01")
	assert.NoError(t, err)
}

func TestSetSelectedRequiresOwnership(t *testing.T) {
	slot := &WorkSlot{DriverID: "drv1", StartTime: time.Now().Add(time.Hour)}
	err := SetSelected(slot, "drv2", true, time.Now())
	assert.ErrorIs(t, err, ErrSlotNotOwned)
}

func TestSetSelectedCannotDeselectOnceStarted(t *testing.T) {
	now := time.Now()
	slot := &WorkSlot{DriverID: "drv1", IsSelected: true, StartTime: now.Add(-time.Hour)}
	err := SetSelected(slot, "drv1", false, now)
	assert.ErrorIs(t, err, ErrSlotAlreadyStarted)
	assert.True(t, slot.IsSelected, "slot must remain selected when the deselect is rejected")
}

func TestSetSelectedAllowsDeselectBeforeStart(t *testing.T) {
	now := time.Now()
	slot := &WorkSlot{DriverID: "drv1", IsSelected: true, StartTime: now.Add(time.Hour)}
	err := SetSelected(slot, "drv1", false, now)
	assert.NoError(t, err)
	assert.False(t, slot.IsSelected)
}

func TestSetSelectedBatchSkipsViolatingSlotsButAppliesRest(t *testing.T) {
	now := time.Now()
	started := &WorkSlot{DriverID: "drv1", IsSelected: true, StartTime: now.Add(-time.Hour)}
	future := &WorkSlot{DriverID: "drv1", IsSelected: true, StartTime: now.Add(time.Hour)}

	applied := SetSelectedBatch([]*WorkSlot{started, future}, "drv1", false, now)
	assert.Equal(t, 1, applied)
	assert.True(t, started.IsSelected)
	assert.False(t, future.IsSelected)
}

func TestBookSlotOnlyFromAvailable(t *testing.T) {
	slot := &WorkSlot{Status: SlotAvailable}
	require.NoError(t, BookSlot(slot, "cust1"))
	assert.Equal(t, SlotBooked, slot.Status)
	assert.Equal(t, "cust1", slot.CustomerID)

	err := BookSlot(slot, "cust2")
	assert.ErrorIs(t, err, ErrSlotNotAvailable)
}

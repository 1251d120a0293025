package dispatch

import (
	"fmt"
	"sync"
	"time"
)

// concurrentGenerationWindow is the duration a generation lock is honored
// before being treated as stuck and replaced (§4.4).
const concurrentGenerationWindow = 5 * time.Second

// SlotScheduler generates and manages the eight fixed daily work slots a
// driver may select (C5, §4.4).
type SlotScheduler struct {
	mu          sync.Mutex
	generating  map[string]time.Time
	location    *time.Location
}

func NewSlotScheduler(loc *time.Location) *SlotScheduler {
	if loc == nil {
		loc = time.Local
	}
	return &SlotScheduler{generating: make(map[string]time.Time), location: loc}
}

// beginGeneration takes out the process-local concurrency guard for a
// driver, rejecting a second concurrent call within the guard window.
func (s *SlotScheduler) beginGeneration(driverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if started, ok := s.generating[driverID]; ok && time.Since(started) < concurrentGenerationWindow {
		return ErrGenerationInProgress
	}
	s.generating[driverID] = time.Now()
	return nil
}

func (s *SlotScheduler) endGeneration(driverID string) {
	s.mu.Lock()
	delete(s.generating, driverID)
	s.mu.Unlock()
}

// Generate builds the eight fixed-block slots for driver d on date D
// (YYYY-MM-DD). Callers are responsible for the delete-then-insert
// persistence transaction (§4.4's "idempotent regeneration" note); this
// method only computes the rows.
func (s *SlotScheduler) Generate(driverID, date string) ([]WorkSlot, error) {
	if err := s.beginGeneration(driverID); err != nil {
		return nil, err
	}
	defer s.endGeneration(driverID)

	day, err := time.ParseInLocation("2006-01-02", date, s.location)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", ErrValidation, date)
	}

	slots := make([]WorkSlot, 0, len(SlotHours))
	for _, startHour := range SlotHours {
		start := time.Date(day.Year(), day.Month(), day.Day(), startHour, 0, 0, 0, s.location)
		end := start.Add(2 * time.Hour)
		slots = append(slots, WorkSlot{
			ID:        fmt.Sprintf("%s_%s_%02d-%02d", driverID, date, startHour, startHour+2),
			DriverID:  driverID,
			Date:      date,
			StartHour: startHour,
			Label:     fmt.Sprintf("%02d:00 - %02d:00", startHour, startHour+2),
			StartTime: start,
			EndTime:   end,
			Status:    SlotAvailable,
		})
	}
	return slots, nil
}

// SetSelected validates one selection change per I5: ownership is
// required, and isSelected may never move true->false once the slot has
// started.
func SetSelected(slot *WorkSlot, driverID string, isSelected bool, now time.Time) error {
	if slot.DriverID != driverID {
		return ErrSlotNotOwned
	}
	if slot.IsSelected && !isSelected && !slot.StartTime.After(now) {
		return ErrSlotAlreadyStarted
	}
	slot.IsSelected = isSelected
	return nil
}

// SetSelectedBatch applies SetSelected to every slot, silently skipping
// any that would violate I5 rather than failing the whole batch.
func SetSelectedBatch(slots []*WorkSlot, driverID string, isSelected bool, now time.Time) (applied int) {
	for _, slot := range slots {
		if err := SetSelected(slot, driverID, isSelected, now); err == nil {
			applied++
		}
	}
	return applied
}

// BookSlot transitions an available slot to booked for a customer. Only
// an available slot may be booked (§4.4).
func BookSlot(slot *WorkSlot, customerID string) error {
	if slot.Status != SlotAvailable {
		return ErrSlotNotAvailable
	}
	slot.Status = SlotBooked
	slot.CustomerID = customerID
	return nil
}

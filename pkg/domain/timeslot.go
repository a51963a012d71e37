package domain

import "time"

// TimeSlot classifies a sign-in relative to the morning service window.
type TimeSlot string

// Canonical sign-in slots. SlotInvalid marks timestamps outside any
// recognized window (or zero timestamps from corrupted records).
const (
	SlotEarly     TimeSlot = "early"
	SlotOnTime    TimeSlot = "on_time"
	SlotLate      TimeSlot = "late"
	SlotAfternoon TimeSlot = "afternoon"
	SlotInvalid   TimeSlot = "invalid"
)

// Slot boundaries, minutes from midnight local time. The morning service
// starts at 09:30; doors open at 08:00.
const (
	slotDoorsOpen      = 8 * 60
	slotServiceStart   = 9*60 + 30
	slotMorningEnd     = 12 * 60
	slotAfternoonClose = 17 * 60
)

// ClassifySlot derives the time-slot classification for a sign-in timestamp.
// The classification is stored on the record at creation time so later rule
// changes do not rewrite history.
func ClassifySlot(t time.Time) TimeSlot {
	if t.IsZero() {
		return SlotInvalid
	}
	minutes := t.Hour()*60 + t.Minute()
	switch {
	case minutes >= slotDoorsOpen && minutes < slotServiceStart:
		return SlotEarly
	case minutes >= slotServiceStart && minutes <= slotServiceStart+15:
		return SlotOnTime
	case minutes > slotServiceStart+15 && minutes < slotMorningEnd:
		return SlotLate
	case minutes >= slotMorningEnd && minutes < slotAfternoonClose:
		return SlotAfternoon
	default:
		return SlotInvalid
	}
}

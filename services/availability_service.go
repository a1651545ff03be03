package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"tutorlink/apperrors"
	"tutorlink/models"

	"github.com/google/uuid"
)

const (
	SlotDurationMinutes = 30

	// Global business-hours bound, minutes from midnight.
	BusinessHoursStartMin = 6 * 60  // 06:00
	BusinessHoursEndMin   = 23 * 60 // 23:00

	// Minimum lead time before a slot may be booked.
	DefaultBufferMinutes = 180
)

// Slot is a derived 30-minute booking candidate. It is never persisted;
// callers recompute it on demand.
type Slot struct {
	Day       string    `json:"day"` // YYYY-MM-DD
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Available bool      `json:"available"`
	TutorID   uuid.UUID `json:"tutor_id"`
}

// ParseClock converts an "HH:MM" string to minutes from midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// ValidateWindows checks a weekly template before it is persisted. The
// generator trusts stored windows, so every rule is enforced here:
// parseable times, start before end, inside business hours, and no
// overlap between windows of the same weekday.
func ValidateWindows(windows []models.AvailabilityWindow) error {
	type span struct{ start, end int }
	byDay := make(map[int][]span)

	for _, w := range windows {
		if w.Weekday < 0 || w.Weekday > 6 {
			return apperrors.NewValidationError("weekday", fmt.Sprintf("must be 0-6, got %d", w.Weekday))
		}
		start, err := ParseClock(w.StartTime)
		if err != nil {
			return apperrors.NewValidationError("start_time", err.Error())
		}
		end, err := ParseClock(w.EndTime)
		if err != nil {
			return apperrors.NewValidationError("end_time", err.Error())
		}
		if start >= end {
			return apperrors.NewValidationError("start_time", "must be before end_time")
		}
		if start < BusinessHoursStartMin || end > BusinessHoursEndMin {
			return apperrors.NewValidationError("window", "must fall within business hours 06:00-23:00")
		}
		for _, other := range byDay[w.Weekday] {
			if start < other.end && end > other.start {
				return apperrors.NewValidationError("window", "windows on the same weekday must not overlap")
			}
		}
		byDay[w.Weekday] = append(byDay[w.Weekday], span{start, end})
	}
	return nil
}

// GenerateSlots turns a tutor's weekly template plus their already-booked
// sessions into discrete 30-minute slots for numDays starting at
// startDate. Both available and busy slots are returned so the caller can
// render open vs taken. An empty template yields an empty list.
//
// Rules, in order: granules starting before now+buffer are dropped,
// granules outside business hours are dropped even if stored data says
// otherwise, a granule overlapping any non-cancelled session is busy, and
// once the tutor's weekly cap is reached every remaining granule in that
// ISO week is busy regardless of overlap.
func GenerateSlots(
	tutorID uuid.UUID,
	windows []models.AvailabilityWindow,
	booked []models.Session,
	startDate time.Time,
	numDays int,
	weeklyCap *int,
	now time.Time,
	bufferMinutes int,
) []Slot {
	slots := []Slot{}
	if len(windows) == 0 || numDays <= 0 {
		return slots
	}
	if bufferMinutes <= 0 {
		bufferMinutes = DefaultBufferMinutes
	}
	earliest := now.Add(time.Duration(bufferMinutes) * time.Minute)

	byWeekday := make(map[int][]models.AvailabilityWindow)
	for _, w := range windows {
		byWeekday[w.Weekday] = append(byWeekday[w.Weekday], w)
	}

	// Existing booked-session count per ISO week, for the weekly cap.
	type isoWeek struct{ year, week int }
	weekCount := make(map[isoWeek]int)
	for _, s := range booked {
		if s.Status == models.SessionStatusCancelled {
			continue
		}
		y, w := s.StartTime.ISOWeek()
		weekCount[isoWeek{y, w}]++
	}

	loc := startDate.Location()
	dayStart := time.Date(startDate.Year(), startDate.Month(), startDate.Day(), 0, 0, 0, 0, loc)

	for d := 0; d < numDays; d++ {
		day := dayStart.AddDate(0, 0, d)
		for _, w := range byWeekday[int(day.Weekday())] {
			startMin, err := ParseClock(w.StartTime)
			if err != nil {
				continue // bad stored data, window writes validate
			}
			endMin, err := ParseClock(w.EndTime)
			if err != nil {
				continue
			}

			for m := startMin; m+SlotDurationMinutes <= endMin; m += SlotDurationMinutes {
				if m < BusinessHoursStartMin || m+SlotDurationMinutes > BusinessHoursEndMin {
					continue
				}
				slotStart := day.Add(time.Duration(m) * time.Minute)
				slotEnd := slotStart.Add(SlotDurationMinutes * time.Minute)
				if slotStart.Before(earliest) {
					continue
				}

				available := true
				if weeklyCap != nil && *weeklyCap > 0 {
					y, wk := slotStart.ISOWeek()
					if weekCount[isoWeek{y, wk}] >= *weeklyCap {
						available = false
					}
				}
				if available {
					for _, s := range booked {
						if s.Status == models.SessionStatusCancelled {
							continue
						}
						if slotStart.Before(s.EndTime) && slotEnd.After(s.StartTime) {
							available = false
							break
						}
					}
				}

				slots = append(slots, Slot{
					Day:       day.Format("2006-01-02"),
					StartTime: slotStart,
					EndTime:   slotEnd,
					Available: available,
					TutorID:   tutorID,
				})
			}
		}
	}

	return slots
}

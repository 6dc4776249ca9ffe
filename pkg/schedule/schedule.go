package schedule

import (
	"fmt"
	"time"
)

// BusinessHours declares a weekly window of activity in a specific time zone.
type BusinessHours struct {
	// StartTime and EndTime are "HH:MM" in 24-hour format, evaluated in
	// Location. StartTime must be strictly before EndTime.
	StartTime string
	EndTime   string
	// WorkingDays must contain at least one weekday.
	WorkingDays []time.Weekday
	// TimeZone is an IANA zone name, e.g. "America/New_York" or "UTC".
	TimeZone string

	startOfDay time.Duration
	endOfDay   time.Duration
	location   *time.Location
	days       map[time.Weekday]bool
}

// NewBusinessHours validates and compiles a BusinessHours value.
func NewBusinessHours(startTime, endTime string, workingDays []time.Weekday, timeZone string) (*BusinessHours, error) {
	if len(workingDays) == 0 {
		return nil, fmt.Errorf("schedule: working_days must be non-empty")
	}

	start, err := parseClock(startTime)
	if err != nil {
		return nil, fmt.Errorf("schedule: invalid start_time %q: %w", startTime, err)
	}
	end, err := parseClock(endTime)
	if err != nil {
		return nil, fmt.Errorf("schedule: invalid end_time %q: %w", endTime, err)
	}
	if start >= end {
		return nil, fmt.Errorf("schedule: start_time must be before end_time")
	}

	loc, err := time.LoadLocation(timeZone)
	if err != nil {
		return nil, fmt.Errorf("schedule: invalid time_zone %q: %w", timeZone, err)
	}

	days := make(map[time.Weekday]bool, len(workingDays))
	for _, d := range workingDays {
		days[d] = true
	}

	return &BusinessHours{
		StartTime:   startTime,
		EndTime:     endTime,
		WorkingDays: workingDays,
		TimeZone:    timeZone,
		startOfDay:  start,
		endOfDay:    end,
		location:    loc,
		days:        days,
	}, nil
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func (b *BusinessHours) activeAt(now time.Time) bool {
	local := now.In(b.location)
	if !b.days[local.Weekday()] {
		return false
	}
	sinceMidnight := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second
	return sinceMidnight >= b.startOfDay && sinceMidnight <= b.endOfDay
}

// Schedule gates whether a queue is currently active.
type Schedule struct {
	BusinessHours *BusinessHours
	StartDate     *time.Time
	EndDate       *time.Time
	Recurring     bool
	SpecificDates []time.Time
}

// IsActive evaluates the gate at instant now, per the rules: date window
// bounds first, then specific-date override, then business hours, else
// always active.
func (s *Schedule) IsActive(now time.Time) bool {
	if s.StartDate != nil && now.Before(*s.StartDate) {
		return false
	}
	if s.EndDate != nil && now.After(*s.EndDate) {
		return false
	}

	if len(s.SpecificDates) > 0 {
		for _, d := range s.SpecificDates {
			if sameDate(d, now) {
				return true
			}
		}
		return false
	}

	if s.BusinessHours != nil {
		return s.BusinessHours.activeAt(now)
	}

	return true
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// NextActivation returns the nearest future instant at which IsActive flips
// to true, scanning forward in minute increments up to 400 days. Returns
// the zero Time if no activation is found in that horizon (e.g. the window
// has already closed for good).
func (s *Schedule) NextActivation(now time.Time) time.Time {
	if s.EndDate != nil && now.After(*s.EndDate) {
		return time.Time{}
	}

	horizon := now.Add(400 * 24 * time.Hour)
	const step = time.Minute

	for t := now.Add(step); t.Before(horizon); t = t.Add(step) {
		if s.IsActive(t) {
			return t
		}
	}
	return time.Time{}
}

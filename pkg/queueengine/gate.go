package queueengine

import (
	"time"

	"github.com/queueforge/vqueue/internal/store"
	"github.com/queueforge/vqueue/pkg/schedule"
)

// compileSchedule converts a Queue's persisted schedule into the evaluable
// form pkg/schedule works with. A Queue with no business-hours gate compiles
// to a Schedule that is always active within its date bounds.
func compileSchedule(s store.Schedule) (*schedule.Schedule, error) {
	compiled := &schedule.Schedule{
		StartDate:     s.StartDate,
		EndDate:       s.EndDate,
		Recurring:     s.Recurring,
		SpecificDates: s.SpecificDates,
	}
	if s.BusinessHours != nil {
		days := make([]time.Weekday, 0, len(s.BusinessHours.WorkingDays))
		for _, d := range s.BusinessHours.WorkingDays {
			days = append(days, time.Weekday(d))
		}
		bh, err := schedule.NewBusinessHours(
			s.BusinessHours.StartTime,
			s.BusinessHours.EndTime,
			days,
			s.BusinessHours.TimeZone,
		)
		if err != nil {
			return nil, err
		}
		compiled.BusinessHours = bh
	}
	return compiled, nil
}

// isActive reports whether q currently admits new Waiting sessions and
// whether the releaser should run a tick for q, at instant now.
func isActive(q *store.Queue, now time.Time) (bool, error) {
	if !q.Active {
		return false, nil
	}
	compiled, err := compileSchedule(q.Schedule)
	if err != nil {
		return false, err
	}
	return compiled.IsActive(now), nil
}

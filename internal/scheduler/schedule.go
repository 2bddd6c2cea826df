package scheduler

import "time"

// Every fires at fixed intervals aligned to the interval boundary.
type Every time.Duration

// Next implements Schedule.
func (e Every) Next(now time.Time) time.Time {
	interval := time.Duration(e)
	next := now.Truncate(interval).Add(interval)
	if !next.After(now) {
		next = next.Add(interval)
	}
	return next
}

// WeekdaySchedule fires hourly-aligned ticks with a different stride on
// business days versus weekends.
type WeekdaySchedule struct {
	Weekday time.Duration
	Weekend time.Duration
}

// Next implements Schedule. Candidates are walked hour by hour so that the
// stride switches correctly across the Friday/Saturday boundary.
func (w WeekdaySchedule) Next(now time.Time) time.Time {
	weekdayHours := strideHours(w.Weekday)
	weekendHours := strideHours(w.Weekend)

	candidate := now.Truncate(time.Hour).Add(time.Hour)
	for i := 0; i < 24*7; i++ {
		stride := weekdayHours
		if isWeekend(candidate) {
			stride = weekendHours
		}
		if candidate.Hour()%stride == 0 {
			return candidate
		}
		candidate = candidate.Add(time.Hour)
	}
	return candidate
}

// DailyAt fires once per day at a fixed wall-clock time.
type DailyAt struct {
	Hour   int
	Minute int
}

// Next implements Schedule.
func (d DailyAt) Next(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), d.Hour, d.Minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func strideHours(d time.Duration) int {
	hours := int(d / time.Hour)
	if hours < 1 {
		hours = 1
	}
	if hours > 24 {
		hours = 24
	}
	return hours
}

func isWeekend(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return true
	default:
		return false
	}
}

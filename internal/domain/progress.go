package domain

import (
	"math"
	"time"
)

// Progress returns how far through the trip now is, as a whole percentage
// clamped to [0, 100]. A single-day trip counts as one day long.
func Progress(r DateRange, now time.Time) int {
	total := daysBetween(r.Start.Time, r.End.Time)
	if total < 1 {
		total = 1
	}
	used := daysBetween(r.Start.Time, now)
	if used < 0 {
		used = 0
	}
	if used > total {
		used = total
	}
	return int(math.Round(float64(used) / float64(total) * 100))
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// Countdown is the time remaining until a special event, split for display.
type Countdown struct {
	Days    int
	Hours   int
	Minutes int
	Seconds int
	Total   int
}

// CountdownTo returns the remaining time from now until at. Past events
// yield a zero Countdown.
func CountdownTo(at, now time.Time) Countdown {
	secs := int(at.Sub(now).Seconds())
	if secs < 0 {
		secs = 0
	}
	return Countdown{
		Days:    secs / 86400,
		Hours:   (secs % 86400) / 3600,
		Minutes: (secs % 3600) / 60,
		Seconds: secs % 60,
		Total:   secs,
	}
}

// NextEvent returns the earliest special event that has not happened yet.
func NextEvent(events []SpecialEvent, now time.Time) (SpecialEvent, bool) {
	var (
		next  SpecialEvent
		found bool
	)
	for _, e := range events {
		if !e.At.After(now) {
			continue
		}
		if !found || e.At.Before(next.At) {
			next, found = e, true
		}
	}
	return next, found
}

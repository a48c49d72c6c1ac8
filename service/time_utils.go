package service

import (
	"time"

	"cloud.google.com/go/civil"
)

// NextPayoutTime returns the first configured time of day strictly after now,
// in now's location. The bool is false when no times are configured.
func NextPayoutTime(times []civil.Time, now time.Time) (time.Time, bool) {
	if len(times) == 0 {
		return time.Time{}, false
	}

	today := civil.DateOf(now)
	var next time.Time
	for _, t := range times {
		candidate := civil.DateTime{Date: today, Time: t}.In(now.Location())
		if !candidate.After(now) {
			candidate = civil.DateTime{Date: today.AddDays(1), Time: t}.In(now.Location())
		}
		if next.IsZero() || candidate.Before(next) {
			next = candidate
		}
	}
	return next, true
}

package recurrence

import (
	"time"

	"github.com/vinayprograms/groupkit/errors"
)

// catchUpCap bounds the schedule walk in MostRecentDue so a template
// with a tiny interval and a cursor years behind cannot spin the tick.
const catchUpCap = 10000

// NextDue computes the due time of the next instance: the initial due
// time when nothing has been generated yet, otherwise one rule step
// past the generation cursor. All arithmetic happens in the template's
// timezone so clock times survive DST shifts.
func NextDue(t *Template) (time.Time, error) {
	loc, err := t.Location()
	if err != nil {
		return time.Time{}, errors.WrapWithCode(err, errors.CodeInvalidInput, "load template timezone")
	}
	if t.LastGeneratedDueTime.IsZero() {
		return t.InitialDueTime.In(loc), nil
	}
	return advance(t.LastGeneratedDueTime.In(loc), t.Kind, t.Params, anchorDay(t, loc)), nil
}

// MostRecentDue walks the schedule and returns the latest due point at
// or before now. This is the catch-up rule: a scheduler that was down
// for many periods generates exactly one instance, for the most recent
// missed due point, and resumes one-per-period from there.
func MostRecentDue(t *Template, now time.Time) (time.Time, bool, error) {
	next, err := NextDue(t)
	if err != nil {
		return time.Time{}, false, err
	}
	if now.Before(next) {
		return time.Time{}, false, nil
	}

	loc, _ := t.Location()
	anchor := anchorDay(t, loc)
	cur := next
	for i := 0; i < catchUpCap; i++ {
		n := advance(cur, t.Kind, t.Params, anchor)
		if now.Before(n) {
			return cur, true, nil
		}
		if !n.After(cur) {
			return time.Time{}, false, errors.New(errors.CodeInvalidInput, "recurrence rule does not advance")
		}
		cur = n
	}
	return cur, true, nil
}

// anchorDay is the day-of-month monthly rules aim for: the configured
// DayOfMonth, falling back to the initial due date's day. Keeping the
// anchor separate from the cursor is what lets a Jan 31 schedule clamp
// to Feb 28 and still return to Mar 31.
func anchorDay(t *Template, loc *time.Location) int {
	if t.Params.DayOfMonth > 0 {
		return t.Params.DayOfMonth
	}
	return t.InitialDueTime.In(loc).Day()
}

// advance computes the due point one rule step after cur.
func advance(cur time.Time, kind Kind, p Params, anchor int) time.Time {
	switch kind {
	case KindDaily:
		return cur.AddDate(0, 0, p.interval())
	case KindWeekly:
		return advanceWeekly(cur, p.Weekdays, p.interval())
	case KindMonthly:
		return advanceMonths(cur, p.interval(), anchor)
	case KindQuarterly:
		return advanceMonths(cur, 3*p.interval(), anchor)
	case KindCustom:
		switch {
		case p.DayOfMonth > 0:
			return advanceMonths(cur, p.interval(), anchor)
		case len(p.Weekdays) > 0:
			return advanceWeekly(cur, p.Weekdays, p.interval())
		default:
			return cur.AddDate(0, 0, p.interval())
		}
	default:
		return cur.AddDate(0, 0, p.interval())
	}
}

// advanceWeekly finds the next weekday in the set after cur. If the set
// is exhausted for the current week it jumps ahead by interval weeks
// and takes the first matching day there. Weeks start on Monday. An
// empty set degrades to whole-week steps.
func advanceWeekly(cur time.Time, weekdays []time.Weekday, interval int) time.Time {
	if len(weekdays) == 0 {
		return cur.AddDate(0, 0, 7*interval)
	}

	set := make(map[time.Weekday]bool, len(weekdays))
	for _, d := range weekdays {
		set[d] = true
	}

	sinceMonday := (int(cur.Weekday()) + 6) % 7
	for d := 1; d <= 6-sinceMonday; d++ {
		cand := cur.AddDate(0, 0, d)
		if set[cand.Weekday()] {
			return cand
		}
	}

	weekStart := cur.AddDate(0, 0, -sinceMonday+7*interval)
	for d := 0; d < 7; d++ {
		cand := weekStart.AddDate(0, 0, d)
		if set[cand.Weekday()] {
			return cand
		}
	}
	return cur.AddDate(0, 0, 7*interval)
}

// advanceMonths moves cur forward by the given number of months onto
// the anchor day, clamping to the target month's last day when the
// anchor does not exist there.
func advanceMonths(cur time.Time, months, anchor int) time.Time {
	year, month := cur.Year(), int(cur.Month())
	month += months
	year += (month - 1) / 12
	month = (month-1)%12 + 1

	day := anchor
	if last := daysInMonth(year, time.Month(month)); day > last {
		day = last
	}
	return time.Date(year, time.Month(month), day,
		cur.Hour(), cur.Minute(), cur.Second(), cur.Nanosecond(), cur.Location())
}

// daysInMonth returns the number of days in the given month.
func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

package recur

import (
	"time"

	"github.com/teambition/rrule-go"

	"planmark/internal/datetime"
)

// searchDays caps NextOnOrAfter; ten years covers every leap-day cycle.
const searchDays = 10 * 366

var rruleWeekdays = [7]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// Matches reports whether d satisfies the rule's periodic predicate and
// lies within its bound.
func Matches(r Rule, d datetime.Date) bool {
	return len(Occurrences(r, d, d)) == 1
}

// Occurrences lists every matching date in [from, to], inclusive, in order.
func Occurrences(r Rule, from, to datetime.Date) []datetime.Date {
	lo, hi, ok := r.clamp(from, to)
	if !ok {
		return nil
	}
	rr, err := r.compile(lo, nil)
	if err != nil {
		return nil
	}
	times := rr.Between(lo.UTC(), hi.UTC(), true)
	if len(times) == 0 {
		return nil
	}
	out := make([]datetime.Date, 0, len(times))
	for _, t := range times {
		out = append(out, datetime.DateOf(t))
	}
	return out
}

// NextOnOrAfter returns the first matching date on or after from. The
// search starts at the later of from and the rule's From bound and stops at
// the rule's To bound or ten years past that start, whichever is earlier.
func NextOnOrAfter(r Rule, from datetime.Date) (datetime.Date, bool) {
	start := from
	if r.From != nil && start.Before(*r.From) {
		start = *r.From
	}
	lo, hi, ok := r.clamp(start, start.AddDays(searchDays))
	if !ok {
		return datetime.Date{}, false
	}
	rr, err := r.compile(lo, &hi)
	if err != nil {
		return datetime.Date{}, false
	}
	next := rr.After(lo.UTC(), true)
	if next.IsZero() {
		return datetime.Date{}, false
	}
	return datetime.DateOf(next), true
}

// clamp intersects [from, to] with the rule's bound.
func (r Rule) clamp(from, to datetime.Date) (datetime.Date, datetime.Date, bool) {
	if r.Kind == Never || to.Before(from) {
		return from, to, false
	}
	if r.From != nil && from.Before(*r.From) {
		from = *r.From
	}
	if r.To != nil && to.After(*r.To) {
		to = *r.To
	}
	return from, to, !to.Before(from)
}

// compile builds the RRULE equivalent of r. The DTSTART is moved forward to
// the latest phase-preserving date not after start so that iteration does
// not walk from the anchor on every call.
func (r Rule) compile(start datetime.Date, limit *datetime.Date) (*rrule.RRule, error) {
	opt := rrule.ROption{
		Dtstart:  r.dtstart(start).UTC(),
		Interval: 1,
		Wkst:     rrule.MO,
	}
	until := r.To
	if limit != nil && (until == nil || limit.Before(*until)) {
		until = limit
	}
	if until != nil {
		opt.Until = until.UTC()
	}

	switch r.Kind {
	case Everyday:
		opt.Freq = rrule.DAILY
	case Weekday:
		opt.Freq = rrule.WEEKLY
		opt.Byweekday = []rrule.Weekday{rruleWeekdays[r.Weekday]}
	case IntervalWeeks:
		opt.Freq = rrule.WEEKLY
		opt.Interval = r.Interval
		opt.Byweekday = []rrule.Weekday{rruleWeekdays[r.Weekday]}
	case Monthly:
		opt.Freq = rrule.MONTHLY
		opt.Interval = r.Interval
		opt.Bymonthday = []int{r.Day}
	case YearlyFixedDate, AnnualOn:
		opt.Freq = rrule.YEARLY
		opt.Bymonth = []int{int(r.Month)}
		opt.Bymonthday = []int{r.Day}
	}
	return rrule.NewRRule(opt)
}

func (r Rule) dtstart(start datetime.Date) datetime.Date {
	switch r.Kind {
	case IntervalWeeks:
		anchor := r.Anchor()
		if !start.After(anchor) {
			return anchor
		}
		week := mondayOf(anchor)
		k := start.DaysSince(week) / 7 / r.Interval
		if k == 0 {
			return anchor
		}
		return week.AddDays(7 * r.Interval * k)

	case Monthly:
		anchor := r.Anchor()
		if !start.After(anchor) {
			return anchor
		}
		months := (start.Year-anchor.Year)*12 + int(start.Month) - int(anchor.Month)
		k := months / r.Interval
		if k == 0 {
			return anchor
		}
		return datetime.NewDate(anchor.Year, anchor.Month+time.Month(r.Interval*k), 1)

	default:
		return start
	}
}

func mondayOf(d datetime.Date) datetime.Date {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDays(-offset)
}

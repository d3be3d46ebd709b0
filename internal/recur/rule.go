// Package recur parses the free-text rules of (REPEAT: ...) tags and decides
// which calendar days they fall on.
package recur

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"planmark/internal/datetime"
)

// ErrUnparseableRule is wrapped by every Parse failure.
var ErrUnparseableRule = errors.New("unparseable repeat rule")

type Kind uint8

const (
	// Never is the kind of a rule that failed to parse. It matches no date.
	Never Kind = iota
	Everyday
	Weekday
	IntervalWeeks
	Monthly
	YearlyFixedDate
	AnnualOn
)

var kindNames = [...]string{
	Never:           "never",
	Everyday:        "everyday",
	Weekday:         "weekday",
	IntervalWeeks:   "interval-weeks",
	Monthly:         "monthly",
	YearlyFixedDate: "yearly",
	AnnualOn:        "annual",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Rule is an immutable parsed recurrence. Fields that do not apply to Kind
// are zero.
type Rule struct {
	Kind Kind
	Text string

	// Weekday is set for Weekday and IntervalWeeks. For IntervalWeeks
	// without an explicit day it is the anchor's weekday.
	Weekday time.Weekday

	// Interval counts weeks (IntervalWeeks) or months (Monthly).
	Interval int

	// Month and Day are set for YearlyFixedDate and AnnualOn; Day alone
	// for Monthly.
	Month time.Month
	Day   int

	// At is the optional "at HH:mm" time of day.
	At *datetime.Clock

	// From and To bound the rule inclusively when set.
	From *datetime.Date
	To   *datetime.Date
}

// Anchor returns the date interval rules count from: the From bound when
// present, otherwise a fixed epoch (Monday 1970-01-05 for weeks, 1970-01-01
// for months).
func (r Rule) Anchor() datetime.Date {
	if r.From != nil {
		return *r.From
	}
	if r.Kind == Monthly {
		return epochMonth
	}
	return epochWeek
}

var (
	epochWeek  = datetime.NewDate(1970, time.January, 5)
	epochMonth = datetime.NewDate(1970, time.January, 1)
)

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

var (
	everydayRE = regexp.MustCompile(`^(?:everyday|every day|daily)$`)
	weekdayRE  = regexp.MustCompile(`^(?:every |weekly on |on )?([a-z]+)$`)
	weeksRE    = regexp.MustCompile(`^(?:every (\d+) weeks?|(every other week|biweekly|fortnightly)|every week|weekly)(?: on ([a-z]+))?$`)
	monthsRE   = regexp.MustCompile(`^(?:every (\d+) months?|every month|monthly)(?: on (?:the )?(\d{1,2})(?:st|nd|rd|th)?)?$`)
	yearsRE    = regexp.MustCompile(`^(?:every year|yearly|annually)(?: on (\S+))?$`)
	dayMonthRE = regexp.MustCompile(`^(\d{1,2})[-./](\d{1,2})$`)
)

// Parse reads a rule text such as "every tuesday", "every 2 weeks on fri
// from 2025-01-03" or "15-08". On failure the returned rule has Kind Never
// and the error wraps ErrUnparseableRule.
func Parse(text string) (Rule, error) {
	r := Rule{Kind: Never, Text: text, Interval: 1}
	fail := func(format string, args ...any) (Rule, error) {
		return Rule{Kind: Never, Text: text}, fmt.Errorf("%w %q: %s", ErrUnparseableRule, text, fmt.Sprintf(format, args...))
	}

	words := strings.Fields(strings.ToLower(text))
	body := make([]string, 0, len(words))
	for i := 0; i < len(words); i++ {
		w := words[i]
		switch w {
		case "from", "starting", "to", "until", "at":
			if i+1 >= len(words) {
				return fail("%q needs a value", w)
			}
			arg := words[i+1]
			i++
			if w == "at" {
				c, ok := datetime.ParseClock(arg)
				if !ok {
					return fail("bad time %q", arg)
				}
				r.At = &c
				continue
			}
			d, ok := datetime.ParseDate(arg)
			if !ok {
				return fail("bad date %q", arg)
			}
			if w == "from" || w == "starting" {
				r.From = &d
			} else {
				r.To = &d
			}
		default:
			body = append(body, w)
		}
	}
	if r.From != nil && r.To != nil && r.To.Before(*r.From) {
		return fail("bound ends before it starts")
	}

	b := strings.Join(body, " ")
	switch {
	case b == "":
		return fail("empty rule")

	case everydayRE.MatchString(b):
		r.Kind = Everyday

	case weeksRE.MatchString(b):
		m := weeksRE.FindStringSubmatch(b)
		r.Kind = IntervalWeeks
		switch {
		case m[1] != "":
			n, _ := strconv.Atoi(m[1])
			if n < 1 {
				return fail("interval must be positive")
			}
			r.Interval = n
		case m[2] != "":
			r.Interval = 2
		}
		r.Weekday = r.Anchor().Weekday()
		if m[3] != "" {
			wd, ok := lookupWeekday(m[3])
			if !ok {
				return fail("unknown weekday %q", m[3])
			}
			r.Weekday = wd
		}

	case monthsRE.MatchString(b):
		m := monthsRE.FindStringSubmatch(b)
		r.Kind = Monthly
		if m[1] != "" {
			n, _ := strconv.Atoi(m[1])
			if n < 1 {
				return fail("interval must be positive")
			}
			r.Interval = n
		}
		r.Day = r.Anchor().Day
		if m[2] != "" {
			r.Day, _ = strconv.Atoi(m[2])
		}
		if r.Day < 1 || r.Day > 31 {
			return fail("day of month out of range")
		}

	case yearsRE.MatchString(b):
		m := yearsRE.FindStringSubmatch(b)
		r.Kind = YearlyFixedDate
		switch {
		case m[1] != "":
			month, day, ok := parseDayMonth(m[1])
			if !ok {
				return fail("bad day-month %q", m[1])
			}
			r.Month, r.Day = month, day
		case r.From != nil:
			r.Month, r.Day = r.From.Month, r.From.Day
		default:
			return fail("yearly rule needs a date or a from bound")
		}

	case dayMonthRE.MatchString(b):
		month, day, ok := parseDayMonth(b)
		if !ok {
			return fail("bad day-month %q", b)
		}
		r.Kind = AnnualOn
		r.Month, r.Day = month, day

	case weekdayRE.MatchString(b):
		wd, ok := lookupWeekday(weekdayRE.FindStringSubmatch(b)[1])
		if !ok {
			return fail("unrecognized rule")
		}
		r.Kind = Weekday
		r.Weekday = wd

	default:
		return fail("unrecognized rule")
	}
	if r.Kind != IntervalWeeks && r.Kind != Monthly {
		r.Interval = 1
	}
	return r, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(text string) Rule {
	r, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return r
}

func lookupWeekday(w string) (time.Weekday, bool) {
	if wd, ok := weekdayNames[w]; ok {
		return wd, true
	}
	// "tuesdays"
	wd, ok := weekdayNames[strings.TrimSuffix(w, "s")]
	return wd, ok
}

// parseDayMonth reads DD-MM, DD.MM or DD/MM. February 29 is accepted.
func parseDayMonth(s string) (time.Month, int, bool) {
	m := dayMonthRE.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 || day < 1 {
		return 0, 0, false
	}
	// 2000 is a leap year.
	if t := time.Date(2000, time.Month(month), day, 0, 0, 0, 0, time.UTC); t.Day() != day {
		return 0, 0, false
	}
	return time.Month(month), day, true
}

// Package datetime parses the date and time literals found in hand-typed
// documents into a canonical form.
//
// Accepted literals, tried in this order:
//
//	YYYY-MM-DD [HH:mm[-HH:mm]]
//	DD.MM.YYYY [HH:mm[-HH:mm]]
//	DD/MM/YYYY [HH:mm[-HH:mm]]
//	DD-MM-YYYY [HH:mm[-HH:mm]]
//
// The day always comes first in the non-ISO forms. Nothing here consults the
// locale or the wall clock.
package datetime

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Date is a calendar day without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate returns the normalized date; out-of-range days roll over the way
// time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) IsZero() bool { return d == Date{} }

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// UTC returns midnight of d in UTC.
func (d Date) UTC() time.Time { return d.In(time.UTC) }

func (d Date) AddDays(n int) Date { return DateOf(d.UTC().AddDate(0, 0, n)) }

func (d Date) Weekday() time.Weekday { return d.UTC().Weekday() }

// DaysSince returns the number of days from o to d.
func (d Date) DaysSince(o Date) int {
	return int(d.UTC().Sub(o.UTC()).Hours() / 24)
}

func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(int(d.Month), int(o.Month))
	default:
		return cmpInt(d.Day, o.Day)
	}
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.Compare(o) > 0 }

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	parsed, ok := ParseDate(string(b))
	if !ok {
		return fmt.Errorf("datetime: invalid date %q", string(b))
	}
	*d = parsed
	return nil
}

// Clock is a wall-clock time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) Minutes() int { return c.Hour*60 + c.Minute }

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

func (c Clock) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Clock) UnmarshalText(b []byte) error {
	parsed, ok := ParseClock(string(b))
	if !ok {
		return fmt.Errorf("datetime: invalid time %q", string(b))
	}
	*c = parsed
	return nil
}

// Moment is a parsed date literal with an optional start and end time.
type Moment struct {
	Date Date   `json:"date"`
	Time *Clock `json:"time,omitempty"`
	End  *Clock `json:"end,omitempty"`
}

// At returns the instant of m in loc; all-day moments resolve to midnight.
func (m Moment) At(loc *time.Location) time.Time {
	t := m.Date.In(loc)
	if m.Time != nil {
		t = t.Add(time.Duration(m.Time.Minutes()) * time.Minute)
	}
	return t
}

func (m Moment) String() string {
	s := m.Date.String()
	if m.Time != nil {
		s += " " + m.Time.String()
		if m.End != nil {
			s += "-" + m.End.String()
		}
	}
	return s
}

const timePart = `(?:[ T]+(\d{1,2}):(\d{2})(?:\s*-\s*(\d{1,2}):(\d{2}))?)?`

type layout struct {
	re               *regexp.Regexp
	year, month, day int
}

// layouts is the fixed precedence order; the first syntactically valid match
// wins.
var layouts = []layout{
	{re: regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})` + timePart + `$`), year: 1, month: 2, day: 3},
	{re: regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{4})` + timePart + `$`), year: 3, month: 2, day: 1},
	{re: regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})` + timePart + `$`), year: 3, month: 2, day: 1},
	{re: regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4})` + timePart + `$`), year: 3, month: 2, day: 1},
}

// Parse reads text as one of the supported literals. The boolean is false
// when no format matches or the matched values are out of range.
func Parse(text string) (Moment, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Moment{}, false
	}
	for _, l := range layouts {
		m := l.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		d, ok := validDate(atoi(m[l.year]), atoi(m[l.month]), atoi(m[l.day]))
		if !ok {
			continue
		}
		out := Moment{Date: d}
		if m[4] != "" {
			start, ok := validClock(atoi(m[4]), atoi(m[5]))
			if !ok {
				continue
			}
			out.Time = &start
			if m[6] != "" {
				end, ok := validClock(atoi(m[6]), atoi(m[7]))
				if !ok {
					continue
				}
				out.End = &end
			}
		}
		return out, true
	}
	return Moment{}, false
}

// ParseDate is Parse restricted to literals without a time part.
func ParseDate(text string) (Date, bool) {
	m, ok := Parse(text)
	if !ok || m.Time != nil {
		return Date{}, false
	}
	return m.Date, true
}

// NormalizeToISO returns the YYYY-MM-DD form of any supported literal.
func NormalizeToISO(text string) (string, bool) {
	m, ok := Parse(text)
	if !ok {
		return "", false
	}
	return m.Date.String(), true
}

var clockRE = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// ParseClock reads an HH:mm literal.
func ParseClock(text string) (Clock, bool) {
	m := clockRE.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return Clock{}, false
	}
	return validClock(atoi(m[1]), atoi(m[2]))
}

func validDate(year, month, day int) (Date, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return Date{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		// 2025-02-30 and friends
		return Date{}, false
	}
	return DateOf(t), true
}

func validClock(hour, minute int) (Clock, bool) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return Clock{}, false
	}
	return Clock{Hour: hour, Minute: minute}, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

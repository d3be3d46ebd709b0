// Package ics renders aggregated items as an iCalendar feed.
package ics

import (
	"fmt"
	"io"
	"strconv"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"planmark/internal/model"
	"planmark/internal/remind"
)

const productID = "-//planmark//agenda//EN"

// Options controls how items become events.
type Options struct {
	// Location resolves item times; nil means time.Local.
	Location *time.Location
	// Now stamps DTSTAMP.
	Now time.Time
}

// UID is stable per source line and date, so calendar clients update
// events in place when the feed is re-fetched.
func UID(it model.Item) string {
	name := it.SourceDocKey + "\x00" + strconv.Itoa(it.SourceLine) + "\x00" + it.Date.String()
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String() + "@planmark"
}

// Export builds a calendar with one VEVENT per item. All-day items become
// DATE events; timed items carry DTSTART and, when known, DTEND. Items with
// a NOTIFY tag get a DISPLAY alarm relative to the start.
func Export(items []model.Item, opts Options) *ical.Calendar {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, it := range items {
		ev := cal.AddEvent(UID(it))
		ev.SetDtStampTime(now)

		summary := it.Text
		if it.IsCheckboxTask && it.Checked {
			summary = "[x] " + summary
		}
		ev.SetSummary(summary)
		ev.SetDescription(fmt.Sprintf("%s line %d", it.SourceDocKey, it.SourceLine+1))

		start := it.Moment().At(loc)
		if it.Time == nil {
			ev.SetAllDayStartAt(start)
			ev.SetAllDayEndAt(it.Date.AddDays(1).In(loc))
		} else {
			ev.SetStartAt(start)
			if it.EndTime != nil && it.EndTime.Minutes() > it.Time.Minutes() {
				ev.SetEndAt(start.Add(time.Duration(it.EndTime.Minutes()-it.Time.Minutes()) * time.Minute))
			}
		}

		if it.NotifyAt != nil {
			if fire, ok := remind.FireMoment(it); ok {
				alarm := ev.AddAlarm()
				alarm.SetAction(ical.ActionDisplay)
				alarm.SetTrigger(trigger(start.Sub(fire.At(loc))))
			}
		}
	}
	return cal
}

// Write serializes Export(items, opts) to w.
func Write(w io.Writer, items []model.Item, opts Options) error {
	_, err := io.WriteString(w, Export(items, opts).Serialize())
	return err
}

// trigger formats lead, the time between alarm and start, as an RFC 5545
// duration relative to DTSTART.
func trigger(lead time.Duration) string {
	mins := int(lead / time.Minute)
	if mins >= 0 {
		return "-PT" + strconv.Itoa(mins) + "M"
	}
	return "PT" + strconv.Itoa(-mins) + "M"
}

// Package remind turns aggregated items into future reminders and hands new
// ones to a delivery sink on a schedule.
package remind

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"planmark/internal/datetime"
	"planmark/internal/model"
)

// namespace scopes reminder IDs; changing it changes every ID.
var namespace = uuid.MustParse("6f1c3a52-8d4e-4b8a-9a57-0c2e1f7d9b34")

// ID is stable for a (fireAt, text) pair, so repeated scans of the same
// line produce the same reminder.
func ID(fireAt time.Time, text string) string {
	return uuid.NewSHA1(namespace, []byte(fireAt.UTC().Format(time.RFC3339)+"|"+text)).String()
}

// FireMoment is the NOTIFY moment when present, else the item's own date and
// time. ok is false for all-day items without a NOTIFY tag.
func FireMoment(it model.Item) (datetime.Moment, bool) {
	switch {
	case it.NotifyAt != nil:
		return *it.NotifyAt, true
	case it.Time != nil:
		return datetime.Moment{Date: it.Date, Time: it.Time}, true
	}
	return datetime.Moment{}, false
}

// Materialize returns one reminder per distinct future fire instant and
// text, ordered by fire time. Items firing at or before now are dropped.
func Materialize(items []model.Item, now time.Time, loc *time.Location) []model.Reminder {
	if loc == nil {
		loc = time.Local
	}
	seen := make(map[string]struct{}, len(items))
	var out []model.Reminder
	for _, it := range items {
		m, ok := FireMoment(it)
		if !ok {
			continue
		}
		fireAt := m.At(loc)
		if !fireAt.After(now) {
			continue
		}
		id := ID(fireAt, it.Text)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, model.Reminder{
			ID:     id,
			Text:   it.Text,
			FireAt: fireAt,
			Source: model.SourceRef{DocKey: it.SourceDocKey, Line: it.SourceLine, Date: it.Date},
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].FireAt.Before(out[j].FireAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

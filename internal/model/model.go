package model

import (
	"time"

	"planmark/internal/datetime"
)

// ItemKind says which temporal tag placed an item on its date.
type ItemKind string

const (
	KindScheduled ItemKind = "scheduled"
	KindRepeat    ItemKind = "repeat"
)

// Item is one scheduled or recurring line resolved onto a concrete date.
// Checkbox state belongs to the source line, so every occurrence of a
// recurring line shares it.
type Item struct {
	Date    datetime.Date   `json:"date"`
	Time    *datetime.Clock `json:"time"`
	EndTime *datetime.Clock `json:"end_time,omitempty"`
	Text    string          `json:"text"`
	Kind    ItemKind        `json:"kind"`

	Checked        bool `json:"checked"`
	IsCheckboxTask bool `json:"is_checkbox_task"`

	// SourceDocKey and SourceLine address the line for edits.
	SourceDocKey string `json:"source_doc_key"`
	SourceLine   int    `json:"source_line"`

	// NotifyAt is set when the line carries a NOTIFY tag.
	NotifyAt *datetime.Moment `json:"notify_at,omitempty"`
}

// Moment is the item's date and time.
func (it Item) Moment() datetime.Moment {
	return datetime.Moment{Date: it.Date, Time: it.Time, End: it.EndTime}
}

// Less orders all-day items first, then by time, then by text.
func (it Item) Less(o Item) bool {
	if c := it.Date.Compare(o.Date); c != 0 {
		return c < 0
	}
	switch {
	case it.Time == nil && o.Time != nil:
		return true
	case it.Time != nil && o.Time == nil:
		return false
	case it.Time != nil && o.Time != nil && it.Time.Minutes() != o.Time.Minutes():
		return it.Time.Minutes() < o.Time.Minutes()
	}
	if it.Text != o.Text {
		return it.Text < o.Text
	}
	if it.SourceDocKey != o.SourceDocKey {
		return it.SourceDocKey < o.SourceDocKey
	}
	return it.SourceLine < o.SourceLine
}

// SourceRef points back at the line a reminder came from.
type SourceRef struct {
	DocKey string        `json:"doc_key"`
	Line   int           `json:"line"`
	Date   datetime.Date `json:"date"`
}

// Reminder is a future notification derived from an Item.
type Reminder struct {
	ID     string    `json:"id"`
	Text   string    `json:"text"`
	FireAt time.Time `json:"fire_at"`
	Source SourceRef `json:"source"`
}

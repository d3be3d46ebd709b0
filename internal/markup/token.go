package markup

import (
	"strconv"
	"strings"

	"planmark/internal/datetime"
)

// Kind identifies a token variant.
type Kind uint8

const (
	KindPlainText Kind = iota
	KindParagraph
	KindWikiLink
	KindCheckbox
	KindScheduledTag
	KindRepeatTag
	KindNotifyTag
	KindWidget
	KindGoal
	KindPrompt
	KindTaskSummary
	KindFutureLogItem
	KindTable
)

var kindNames = [...]string{
	KindPlainText:     "plain_text",
	KindParagraph:     "paragraph",
	KindWikiLink:      "wiki_link",
	KindCheckbox:      "checkbox",
	KindScheduledTag:  "scheduled_tag",
	KindRepeatTag:     "repeat_tag",
	KindNotifyTag:     "notify_tag",
	KindWidget:        "widget",
	KindGoal:          "goal",
	KindPrompt:        "prompt",
	KindTaskSummary:   "task_summary",
	KindFutureLogItem: "future_log_item",
	KindTable:         "table",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Span locates a token in its document. Raw is the exact consumed text.
type Span struct {
	Raw    string `json:"raw"`
	Offset int    `json:"offset"`
	Line   int    `json:"line"`
}

// Pos returns the span itself; it is promoted to every token type.
func (s Span) Pos() Span { return s }

// End is the offset just past the span.
func (s Span) End() int { return s.Offset + len(s.Raw) }

// Token is implemented by the pointer types in this file.
type Token interface {
	Kind() Kind
	Pos() Span
}

// Container is a token whose text is split further by the inline phase.
type Container interface {
	Token
	// Content returns the text handed to the inline phase and its document
	// offset.
	Content() (string, int)
	Scope() Scope
	Inline() []Token
	setInline([]Token)
}

type children struct {
	Children []Token `json:"-"`
}

func (c *children) Inline() []Token { return c.Children }
func (c *children) setInline(ts []Token) { c.Children = ts }

// PlainText is text no extension claimed.
type PlainText struct {
	Span
	Text string `json:"text"`
}

func (*PlainText) Kind() Kind { return KindPlainText }

// Paragraph is a run of block-level text between recognised blocks.
type Paragraph struct {
	Span
	children
}

func (*Paragraph) Kind() Kind { return KindParagraph }
func (p *Paragraph) Content() (string, int) { return p.Raw, p.Offset }
func (*Paragraph) Scope() Scope { return ScopeText }

// WikiLink is [[Target]] or [[Target|Alias]].
type WikiLink struct {
	Span
	Target string `json:"target"`
	Alias  string `json:"alias,omitempty"`
}

func (*WikiLink) Kind() Kind { return KindWikiLink }

// Checkbox is a "- [ ]" task line, or with InCell set, a "[x]" inside a
// table cell.
type Checkbox struct {
	Span
	Checked  bool   `json:"checked"`
	InCell   bool   `json:"in_cell,omitempty"`
	LineText string `json:"line_text"`

	// MarkerOffset is the document offset of the "[".
	MarkerOffset int `json:"marker_offset"`

	content       string
	contentOffset int
	children
}

func (*Checkbox) Kind() Kind { return KindCheckbox }
func (c *Checkbox) Content() (string, int) {
	return c.content, c.contentOffset
}
func (*Checkbox) Scope() Scope { return ScopeText }

// ScheduledTag is (SCHEDULED: date[ time[-end]]).
type ScheduledTag struct {
	Span
	Date    datetime.Date   `json:"date"`
	Time    *datetime.Clock `json:"time,omitempty"`
	EndTime *datetime.Clock `json:"end_time,omitempty"`
}

func (*ScheduledTag) Kind() Kind { return KindScheduledTag }

func (s *ScheduledTag) Moment() datetime.Moment {
	return datetime.Moment{Date: s.Date, Time: s.Time, End: s.EndTime}
}

// RepeatTag is (REPEAT: rule). The rule text is interpreted by package recur.
type RepeatTag struct {
	Span
	RuleText string `json:"rule_text"`
}

func (*RepeatTag) Kind() Kind { return KindRepeatTag }

// NotifyTag is (NOTIFY: date time).
type NotifyTag struct {
	Span
	Date datetime.Date  `json:"date"`
	Time datetime.Clock `json:"time"`
}

func (*NotifyTag) Kind() Kind { return KindNotifyTag }

func (n *NotifyTag) Moment() datetime.Moment {
	t := n.Time
	return datetime.Moment{Date: n.Date, Time: &t}
}

// Widget is a keyword-prefixed data block such as
//
//	FINANCE: summary, USD, this-month
//	- 2025-07-18, Salary, 3000.00, Salary
type Widget struct {
	Span
	// Name is the lower-cased keyword, e.g. "finance".
	Name      string   `json:"kind"`
	Command   string   `json:"command"`
	Commands  []string `json:"commands"`
	DataLines []string `json:"data_lines"`
}

func (*Widget) Kind() Kind { return KindWidget }

// Goal is GOAL[(attrs)]: label.
type Goal struct {
	Span
	Label      string            `json:"label"`
	Attributes map[string]string `json:"attributes"`
}

func (*Goal) Kind() Kind { return KindGoal }

// Prompt is PROMPT[(attrs)]: text.
type Prompt struct {
	Span
	Text       string            `json:"text"`
	Attributes map[string]string `json:"attributes"`
}

func (*Prompt) Kind() Kind { return KindPrompt }

// TaskSummary is TASKS: label.
type TaskSummary struct {
	Span
	Label string `json:"label"`
}

func (*TaskSummary) Kind() Kind { return KindTaskSummary }

// FutureLogItem is FUTURE: YYYY-MM[-DD] text.
type FutureLogItem struct {
	Span
	Month string         `json:"month"`
	Date  *datetime.Date `json:"date,omitempty"`
	Text  string         `json:"text"`
}

func (*FutureLogItem) Kind() Kind { return KindFutureLogItem }

// Table is a run of lines starting with "|".
type Table struct {
	Span
	children
}

func (*Table) Kind() Kind { return KindTable }
func (t *Table) Content() (string, int) { return t.Raw, t.Offset }
func (*Table) Scope() Scope { return ScopeCell }

// Concat joins the raw text of tokens. For the top-level tokens of a Result
// it reproduces the document.
func Concat(tokens []Token) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteString(t.Pos().Raw)
	}
	return b.String()
}

// Walk calls fn for every token in depth-first order, containers before
// their inline children.
func Walk(tokens []Token, fn func(Token)) {
	for _, t := range tokens {
		fn(t)
		if c, ok := t.(Container); ok {
			Walk(c.Inline(), fn)
		}
	}
}

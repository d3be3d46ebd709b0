package markup

import (
	"fmt"
	"regexp"
	"strings"

	"planmark/internal/datetime"
)

type inlineExt struct {
	name  string
	level Level
	probe func(src string) int
	fn    func(in Input) (Match, bool)
}

func (e *inlineExt) Name() string                    { return e.name }
func (e *inlineExt) Level() Level                    { return e.level }
func (e *inlineExt) Probe(src string) int            { return e.probe(src) }
func (e *inlineExt) Tokenize(in Input) (Match, bool) { return e.fn(in) }

func indexProbe(lit string) func(string) int {
	return func(src string) int { return strings.Index(src, lit) }
}

var wikiLinkRE = regexp.MustCompile(`^\[\[([^\[\]\n]+)\]\]`)

// WikiLinkExtension matches [[Target]] and [[Target|Alias]].
func WikiLinkExtension() Extension {
	return &inlineExt{
		name:  "wiki_link",
		level: LevelInline,
		probe: indexProbe("[["),
		fn: func(in Input) (Match, bool) {
			m := wikiLinkRE.FindStringSubmatch(in.Text)
			if m == nil {
				return Match{}, false
			}
			target, alias, _ := strings.Cut(m[1], "|")
			target = strings.TrimSpace(target)
			if target == "" {
				return Match{}, false
			}
			n := len(m[0])
			return Match{Token: &WikiLink{
				Span:   in.Span(n),
				Target: target,
				Alias:  strings.TrimSpace(alias),
			}, Len: n}, true
		},
	}
}

// tagRE matches "(KEYWORD: payload)" and captures the trimmed payload.
func tagRE(keyword string) *regexp.Regexp {
	return regexp.MustCompile(`^\(` + keyword + `:[ \t]*([^()\n]*?)[ \t]*\)`)
}

// ScheduledExtension matches (SCHEDULED: date[ time[-end]]). A payload that
// is not a date is reported and left as text.
func ScheduledExtension() Extension {
	re := tagRE("SCHEDULED")
	return &inlineExt{
		name:  "scheduled",
		level: LevelInline,
		probe: indexProbe("(SCHEDULED:"),
		fn: func(in Input) (Match, bool) {
			m := re.FindStringSubmatch(in.Text)
			if m == nil {
				return Match{}, false
			}
			mo, ok := datetime.Parse(m[1])
			if !ok {
				in.Report(fmt.Errorf("%w: %q", ErrUnparseableDate, m[1]))
				return Match{}, false
			}
			n := len(m[0])
			return Match{Token: &ScheduledTag{
				Span:    in.Span(n),
				Date:    mo.Date,
				Time:    mo.Time,
				EndTime: mo.End,
			}, Len: n}, true
		},
	}
}

// RepeatExtension matches (REPEAT: rule). The rule is kept as text.
func RepeatExtension() Extension {
	re := tagRE("REPEAT")
	return &inlineExt{
		name:  "repeat",
		level: LevelInline,
		probe: indexProbe("(REPEAT:"),
		fn: func(in Input) (Match, bool) {
			m := re.FindStringSubmatch(in.Text)
			if m == nil || m[1] == "" {
				return Match{}, false
			}
			n := len(m[0])
			return Match{Token: &RepeatTag{Span: in.Span(n), RuleText: m[1]}, Len: n}, true
		},
	}
}

// NotifyExtension matches (NOTIFY: date time). The time is required.
func NotifyExtension() Extension {
	re := tagRE("NOTIFY")
	return &inlineExt{
		name:  "notify",
		level: LevelInline,
		probe: indexProbe("(NOTIFY:"),
		fn: func(in Input) (Match, bool) {
			m := re.FindStringSubmatch(in.Text)
			if m == nil {
				return Match{}, false
			}
			mo, ok := datetime.Parse(m[1])
			if !ok || mo.Time == nil {
				in.Report(fmt.Errorf("%w: %q", ErrUnparseableDate, m[1]))
				return Match{}, false
			}
			n := len(m[0])
			return Match{Token: &NotifyTag{Span: in.Span(n), Date: mo.Date, Time: *mo.Time}, Len: n}, true
		},
	}
}

var cellCheckboxRE = regexp.MustCompile(`\[[ xX]\]`)

// CellCheckboxExtension matches a bare "[ ]" or "[x]" inside a table cell.
// LineText is the rest of the cell.
func CellCheckboxExtension() Extension {
	return &inlineExt{
		name:  "cell_checkbox",
		level: LevelCell,
		probe: func(src string) int {
			loc := cellCheckboxRE.FindStringIndex(src)
			if loc == nil {
				return -1
			}
			return loc[0]
		},
		fn: func(in Input) (Match, bool) {
			if !strings.HasPrefix(in.Text, "[") || len(in.Text) < 3 || !cellCheckboxRE.MatchString(in.Text[:3]) {
				return Match{}, false
			}
			rest, _ := firstLine(in.Text[3:])
			if i := strings.IndexByte(rest, '|'); i >= 0 {
				rest = rest[:i]
			}
			return Match{Token: &Checkbox{
				Span:         in.Span(3),
				Checked:      in.Text[1] != ' ',
				InCell:       true,
				LineText:     strings.TrimSpace(rest),
				MarkerOffset: in.Offset,
			}, Len: 3}, true
		},
	}
}

package agenda

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"planmark/internal/datetime"
	"planmark/internal/markup"
	"planmark/internal/model"
	"planmark/internal/recur"
)

// entry is one line carrying a temporal anchor, before it is resolved onto
// dates.
type entry struct {
	line    int
	text    string
	checked bool
	isTask  bool
	kind    model.ItemKind
	moment  datetime.Moment
	rule    recur.Rule
	notify  *datetime.Moment
}

type parsed struct {
	entries  []entry
	warnings []Warning
}

// lineTags collects the inline tokens found on one source line.
type lineTags struct {
	anchors []markup.Token
	notify  []*markup.NotifyTag
	box     *markup.Checkbox
}

var markerRE = regexp.MustCompile(`^\s*(?:[-*+]\s+)?(?:\[[ xX]\]\s*)?`)

func extract(reg *markup.Registry, key, text string) *parsed {
	res := reg.Tokenize(text)
	p := &parsed{}
	for _, d := range res.Diagnostics {
		p.warnings = append(p.warnings, Warning{DocKey: key, Line: d.Line, Err: d})
	}

	byLine := map[int]*lineTags{}
	at := func(line int) *lineTags {
		lt, ok := byLine[line]
		if !ok {
			lt = &lineTags{}
			byLine[line] = lt
		}
		return lt
	}
	for _, tok := range res.Tokens {
		c, ok := tok.(markup.Container)
		if !ok {
			continue
		}
		owner, _ := tok.(*markup.Checkbox)
		for _, child := range c.Inline() {
			lt := at(child.Pos().Line)
			switch v := child.(type) {
			case *markup.ScheduledTag, *markup.RepeatTag:
				lt.anchors = append(lt.anchors, v)
			case *markup.NotifyTag:
				lt.notify = append(lt.notify, v)
			case *markup.Checkbox:
				if lt.box == nil {
					lt.box = v
				}
			}
			if owner != nil {
				lt.box = owner
			}
		}
	}

	lines := make([]int, 0, len(byLine))
	for n, lt := range byLine {
		if len(lt.anchors) > 0 {
			lines = append(lines, n)
		}
	}
	sort.Ints(lines)

	starts := lineStarts(text)
	for _, n := range lines {
		lt := byLine[n]
		if len(lt.anchors) > 1 {
			p.warnings = append(p.warnings, Warning{DocKey: key, Line: n, Err: ErrConflictingAnchor})
		}
		e := entry{line: n, text: lineText(text, starts, n, lt)}
		if lt.box != nil {
			e.isTask = true
			e.checked = lt.box.Checked
		}
		if len(lt.notify) > 0 {
			m := lt.notify[0].Moment()
			e.notify = &m
		}
		switch a := lt.anchors[0].(type) {
		case *markup.ScheduledTag:
			e.kind = model.KindScheduled
			e.moment = a.Moment()
		case *markup.RepeatTag:
			rule, err := recur.Parse(a.RuleText)
			if err != nil {
				p.warnings = append(p.warnings, Warning{DocKey: key, Line: n, Err: err})
				continue
			}
			e.kind = model.KindRepeat
			e.rule = rule
		}
		p.entries = append(p.entries, e)
	}
	return p
}

// items resolves the entry onto every date in [from, to].
func (e entry) items(key string, from, to datetime.Date) []model.Item {
	base := model.Item{
		Text:           e.text,
		Kind:           e.kind,
		Checked:        e.checked,
		IsCheckboxTask: e.isTask,
		SourceDocKey:   key,
		SourceLine:     e.line,
		NotifyAt:       e.notify,
	}
	switch e.kind {
	case model.KindScheduled:
		if e.moment.Date.Before(from) || e.moment.Date.After(to) {
			return nil
		}
		it := base
		it.Date = e.moment.Date
		it.Time = e.moment.Time
		it.EndTime = e.moment.End
		return []model.Item{it}
	case model.KindRepeat:
		dates := recur.Occurrences(e.rule, from, to)
		out := make([]model.Item, 0, len(dates))
		for _, d := range dates {
			it := base
			it.Date = d
			it.Time = e.rule.At
			out = append(out, it)
		}
		return out
	}
	return nil
}

// lineText is the source line without temporal tags or its list/checkbox
// marker, with runs of whitespace collapsed.
func lineText(text string, starts []int, n int, lt *lineTags) string {
	start := starts[n]
	end := len(text)
	if n+1 < len(starts) {
		end = starts[n+1] - 1
	}
	line := text[start:end]

	spans := make([]markup.Span, 0, len(lt.anchors)+len(lt.notify))
	for _, a := range lt.anchors {
		spans = append(spans, a.Pos())
	}
	for _, t := range lt.notify {
		spans = append(spans, t.Pos())
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Offset < spans[j].Offset })

	var b strings.Builder
	cur := 0
	for _, s := range spans {
		lo, hi := s.Offset-start, s.End()-start
		if lo < cur || hi > len(line) {
			continue
		}
		b.WriteString(line[cur:lo])
		b.WriteByte(' ')
		cur = hi
	}
	b.WriteString(line[cur:])

	stripped := markerRE.ReplaceAllString(b.String(), "")
	return strings.Join(strings.Fields(stripped), " ")
}

func lineStarts(text string) []int {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// Warning is a recovered per-line problem.
type Warning struct {
	DocKey string

	// Line is zero-based; -1 when the whole document was skipped.
	Line int
	Err  error
}

func (w Warning) Error() string {
	if w.Line < 0 {
		return fmt.Sprintf("%s: %v", w.DocKey, w.Err)
	}
	return fmt.Sprintf("%s:%d: %v", w.DocKey, w.Line+1, w.Err)
}

func (w Warning) Unwrap() error { return w.Err }

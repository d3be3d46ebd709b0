package markup

import (
	"fmt"
	"regexp"
	"strings"

	"planmark/internal/datetime"
)

// lineExt is a block grammar whose candidates start at a line start.
type lineExt struct {
	name  string
	probe *regexp.Regexp
	fn    func(in Input) (Match, bool)
}

func (e *lineExt) Name() string { return e.name }
func (*lineExt) Level() Level { return LevelBlock }

func (e *lineExt) Probe(src string) int {
	loc := e.probe.FindStringIndex(src)
	if loc == nil {
		return -1
	}
	return loc[0]
}

func (e *lineExt) Tokenize(in Input) (Match, bool) { return e.fn(in) }

var (
	checkboxLineRE = regexp.MustCompile(`^([ \t]*- )\[([ xX])\]`)
	dataLineRE     = regexp.MustCompile(`^[ \t]*- (.*?)[ \t]*\r?$`)
	tableLineRE    = regexp.MustCompile(`^[ \t]*\|`)
)

// WidgetExtension matches keyword blocks: one or more "KEYWORD: command"
// lines sharing a keyword, followed by "- " data lines. Without keywords it
// never matches.
func WidgetExtension(keywords ...string) Extension {
	quoted := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToUpper(strings.TrimSpace(k))
		if k != "" {
			quoted = append(quoted, regexp.QuoteMeta(k))
		}
	}
	if len(quoted) == 0 {
		return &inlineExt{
			name:  "widget",
			level: LevelBlock,
			probe: func(string) int { return -1 },
			fn:    func(Input) (Match, bool) { return Match{}, false },
		}
	}
	alt := strings.Join(quoted, "|")
	line := regexp.MustCompile(`^(` + alt + `):[ \t]*(.*?)[ \t]*\r?$`)

	return &lineExt{
		name:  "widget",
		probe: regexp.MustCompile(`(?m)^(?:` + alt + `):`),
		fn: func(in Input) (Match, bool) {
			var (
				keyword string
				cmds    []string
				data    = []string{}
				n       int
			)
			for rest := in.Text; rest != ""; {
				text, ln := firstLine(rest)
				if m := line.FindStringSubmatch(text); m != nil && len(data) == 0 && (keyword == "" || m[1] == keyword) {
					keyword = m[1]
					if m[2] != "" {
						cmds = append(cmds, m[2])
					}
				} else if keyword != "" && !checkboxLineRE.MatchString(text) {
					d := dataLineRE.FindStringSubmatch(text)
					if d == nil {
						break
					}
					data = append(data, d[1])
				} else {
					break
				}
				n += ln
				rest = rest[ln:]
			}
			if keyword == "" {
				return Match{}, false
			}
			return Match{Token: &Widget{
				Span:      in.Span(n),
				Name:      strings.ToLower(keyword),
				Command:   strings.Join(cmds, ", "),
				Commands:  cmds,
				DataLines: data,
			}, Len: n}, true
		},
	}
}

// attrLineRE builds the pattern for KEYWORD: label, KEYWORD(attrs): label
// and the common typo KEYWORD:(attrs): label.
func attrLineRE(keyword string) *regexp.Regexp {
	return regexp.MustCompile(`^` + keyword + `(?:\(([^)\n]*)\)|:\(([^)\n]*)\))?:[ \t]*(.*?)[ \t]*\r?$`)
}

func GoalExtension() Extension {
	re := attrLineRE("GOAL")
	return &lineExt{
		name:  "goal",
		probe: regexp.MustCompile(`(?m)^GOAL[:(]`),
		fn: func(in Input) (Match, bool) {
			text, n := firstLine(in.Text)
			m := re.FindStringSubmatch(text)
			if m == nil || m[3] == "" {
				return Match{}, false
			}
			return Match{Token: &Goal{
				Span:       in.Span(n),
				Label:      m[3],
				Attributes: parseAttributes(m[1]+m[2], in),
			}, Len: n}, true
		},
	}
}

func PromptExtension() Extension {
	re := attrLineRE("PROMPT")
	return &lineExt{
		name:  "prompt",
		probe: regexp.MustCompile(`(?m)^PROMPT[:(]`),
		fn: func(in Input) (Match, bool) {
			text, n := firstLine(in.Text)
			m := re.FindStringSubmatch(text)
			if m == nil || m[3] == "" {
				return Match{}, false
			}
			return Match{Token: &Prompt{
				Span:       in.Span(n),
				Text:       m[3],
				Attributes: parseAttributes(m[1]+m[2], in),
			}, Len: n}, true
		},
	}
}

// TaskSummaryExtension matches "TASKS: label".
func TaskSummaryExtension() Extension {
	re := regexp.MustCompile(`^TASKS:[ \t]*(.*?)[ \t]*\r?$`)
	return &lineExt{
		name:  "task_summary",
		probe: regexp.MustCompile(`(?m)^TASKS:`),
		fn: func(in Input) (Match, bool) {
			text, n := firstLine(in.Text)
			m := re.FindStringSubmatch(text)
			if m == nil {
				return Match{}, false
			}
			return Match{Token: &TaskSummary{Span: in.Span(n), Label: m[1]}, Len: n}, true
		},
	}
}

// FutureLogExtension matches "FUTURE: 2025-09 text" and
// "FUTURE: 2025-09-14 text".
func FutureLogExtension() Extension {
	re := regexp.MustCompile(`^FUTURE:[ \t]*(\d{4}-\d{2})(?:-(\d{2}))?[ \t]+(.*?)[ \t]*\r?$`)
	return &lineExt{
		name:  "future_log",
		probe: regexp.MustCompile(`(?m)^FUTURE:`),
		fn: func(in Input) (Match, bool) {
			text, n := firstLine(in.Text)
			m := re.FindStringSubmatch(text)
			if m == nil || m[3] == "" {
				return Match{}, false
			}
			item := &FutureLogItem{Span: in.Span(n), Month: m[1], Text: m[3]}
			if m[2] != "" {
				d, ok := datetime.ParseDate(m[1] + "-" + m[2])
				if !ok {
					in.Report(fmt.Errorf("%w: %q", ErrUnparseableDate, m[1]+"-"+m[2]))
					return Match{}, false
				}
				item.Date = &d
			} else if _, ok := datetime.ParseDate(m[1] + "-01"); !ok {
				in.Report(fmt.Errorf("%w: %q", ErrUnparseableDate, m[1]))
				return Match{}, false
			}
			return Match{Token: item, Len: n}, true
		},
	}
}

// TableExtension matches a run of lines starting with "|".
func TableExtension() Extension {
	return &lineExt{
		name:  "table",
		probe: regexp.MustCompile(`(?m)^[ \t]*\|`),
		fn: func(in Input) (Match, bool) {
			n := 0
			for rest := in.Text; rest != ""; {
				text, ln := firstLine(rest)
				if !tableLineRE.MatchString(text) {
					break
				}
				n += ln
				rest = rest[ln:]
			}
			if n == 0 {
				return Match{}, false
			}
			return Match{Token: &Table{Span: in.Span(n)}, Len: n}, true
		},
	}
}

// CheckboxExtension matches a "- [ ] text" or "- [x] text" line. The text
// after the marker is split further by the inline phase.
func CheckboxExtension() Extension {
	return &lineExt{
		name:  "checkbox",
		probe: regexp.MustCompile(`(?m)^[ \t]*- \[[ xX]\]`),
		fn: func(in Input) (Match, bool) {
			text, n := firstLine(in.Text)
			loc := checkboxLineRE.FindStringSubmatchIndex(text)
			if loc == nil {
				return Match{}, false
			}
			content := strings.TrimSuffix(text[loc[1]:], "\r")
			return Match{Token: &Checkbox{
				Span:          in.Span(n),
				Checked:       text[loc[4]] != ' ',
				LineText:      strings.TrimSpace(content),
				MarkerOffset:  in.Offset + loc[3],
				content:       content,
				contentOffset: in.Offset + loc[1],
			}, Len: n}, true
		},
	}
}

// parseAttributes reads "key: value, key: value". Keys are kept verbatim;
// a repeated key keeps its last value.
func parseAttributes(s string, in Input) map[string]string {
	attrs := map[string]string{}
	for _, part := range strings.Split(s, ",") {
		key, val, _ := strings.Cut(part, ":")
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, dup := attrs[key]; dup {
			in.Report(fmt.Errorf("%w: %q", ErrDuplicateAttributeKey, key))
		}
		attrs[key] = strings.TrimSpace(val)
	}
	return attrs
}

// Package markup tokenizes the line-oriented planner dialect.
//
// Parsing runs in two phases. The block phase splits a document into
// blocks (widgets, goals, task lines, tables and the paragraphs between
// them); the inline phase then splits the text of every container block
// into wiki links, temporal tags and plain text. Both phases use the same
// probe/tokenize contract, so precedence is decided in one place: the
// earliest probe hit wins, ties go to the extension registered first.
package markup

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Level selects the phase an extension takes part in.
type Level uint8

const (
	LevelBlock Level = iota
	LevelInline
	// LevelCell extensions run in the inline phase of table blocks only.
	LevelCell
)

// Scope selects the inline extension set used for a container.
type Scope uint8

const (
	ScopeText Scope = iota
	ScopeCell
)

// Input is the unconsumed text at the cursor.
type Input struct {
	Text   string
	Offset int
	Line   int

	ext    string
	report func(Diagnostic)
}

// Span returns the span of the first n bytes of the input.
func (in Input) Span(n int) Span {
	return Span{Raw: in.Text[:n], Offset: in.Offset, Line: in.Line}
}

// Report records a recovered problem at the cursor.
func (in Input) Report(err error) {
	if in.report == nil {
		return
	}
	in.report(Diagnostic{Extension: in.ext, Offset: in.Offset, Line: in.Line, Err: err})
}

// Match is a successful tokenize: the token and the number of bytes it
// consumed.
type Match struct {
	Token Token
	Len   int
}

// Extension is one grammar.
type Extension interface {
	Name() string
	Level() Level
	// Probe returns the index of the first position in src where a match
	// could start, or -1. It must be cheap and may over-report.
	Probe(src string) int
	// Tokenize tries to match at the start of in.Text. Returning false
	// declines the position.
	Tokenize(in Input) (Match, bool)
}

// Registry is an ordered set of extensions.
type Registry struct {
	block  []Extension
	inline []Extension
	cell   []Extension
}

func NewRegistry(exts ...Extension) *Registry {
	r := &Registry{}
	for _, e := range exts {
		r.Register(e)
	}
	return r
}

// Default registers the built-in grammars. widgets lists the widget
// keywords (FINANCE, SLEEP, ...); an empty list disables widget blocks.
func Default(widgets []string) *Registry {
	r := NewRegistry()
	if hasKeyword(widgets) {
		r.Register(WidgetExtension(widgets...))
	}
	r.Register(GoalExtension())
	r.Register(PromptExtension())
	r.Register(TaskSummaryExtension())
	r.Register(FutureLogExtension())
	r.Register(TableExtension())
	r.Register(CheckboxExtension())

	r.Register(WikiLinkExtension())
	r.Register(ScheduledExtension())
	r.Register(RepeatExtension())
	r.Register(NotifyExtension())
	r.Register(CellCheckboxExtension())
	return r
}

func hasKeyword(words []string) bool {
	for _, w := range words {
		if strings.TrimSpace(w) != "" {
			return true
		}
	}
	return false
}

// Register appends e to the set for its level. Inline extensions also apply
// inside table cells.
func (r *Registry) Register(e Extension) {
	switch e.Level() {
	case LevelBlock:
		r.block = append(r.block, e)
	case LevelInline:
		r.inline = append(r.inline, e)
		r.cell = append(r.cell, e)
	case LevelCell:
		r.cell = append(r.cell, e)
	}
}

// Result is the output of Tokenize.
type Result struct {
	Tokens      []Token
	Diagnostics []Diagnostic
}

// Tokenize parses text. It never fails: problems come back as diagnostics
// and the affected text as plain tokens. Concat(res.Tokens) == text.
func (r *Registry) Tokenize(text string) *Result {
	res := &Result{}
	t := &tokenizer{reg: r, text: text, lines: newLineTable(text), res: res}
	res.Tokens = t.blocks()
	for _, tok := range res.Tokens {
		c, ok := tok.(Container)
		if !ok {
			continue
		}
		exts := r.inline
		if c.Scope() == ScopeCell {
			exts = r.cell
		}
		content, base := c.Content()
		c.setInline(t.inlines(content, base, exts))
	}
	return res
}

type tokenizer struct {
	reg   *Registry
	text  string
	lines lineTable
	res   *Result
}

func (t *tokenizer) input(ext Extension, src string, offset int) Input {
	return Input{
		Text:   src,
		Offset: offset,
		Line:   t.lines.at(offset),
		ext:    ext.Name(),
		report: func(d Diagnostic) { t.res.Diagnostics = append(t.res.Diagnostics, d) },
	}
}

// try runs the candidates in order and returns the first valid match.
func (t *tokenizer) try(cands []Extension, src string, offset int) (Match, bool) {
	for _, ext := range cands {
		in := t.input(ext, src, offset)
		m, ok := ext.Tokenize(in)
		if !ok {
			continue
		}
		if m.Token == nil || m.Len <= 0 || m.Len > len(src) {
			in.Report(ErrMalformedMatch)
			continue
		}
		return m, true
	}
	return Match{}, false
}

func (t *tokenizer) blocks() []Token {
	text := t.text
	var out []Token
	p := newProber(t.reg.block)
	plain := -1
	flush := func(end int) {
		if plain >= 0 && end > plain {
			out = append(out, &Paragraph{Span: Span{Raw: text[plain:end], Offset: plain, Line: t.lines.at(plain)}})
		}
		plain = -1
	}
	cur := 0
	for cur < len(text) {
		cands, at := p.next(text, cur)
		if len(cands) == 0 {
			break
		}
		if at > cur {
			if plain < 0 {
				plain = cur
			}
			cur = at
		}
		if m, ok := t.try(cands, text[cur:], cur); ok {
			flush(cur)
			out = append(out, m.Token)
			cur += m.Len
			continue
		}
		// Declined: the line becomes paragraph text.
		if plain < 0 {
			plain = cur
		}
		cur = lineEnd(text, cur)
	}
	if cur < len(text) && plain < 0 {
		plain = cur
	}
	flush(len(text))
	return out
}

func (t *tokenizer) inlines(s string, base int, exts []Extension) []Token {
	var out []Token
	p := newProber(exts)
	plain := -1
	flush := func(end int) {
		if plain >= 0 && end > plain {
			out = append(out, &PlainText{
				Span: Span{Raw: s[plain:end], Offset: base + plain, Line: t.lines.at(base + plain)},
				Text: s[plain:end],
			})
		}
		plain = -1
	}
	cur := 0
	for cur < len(s) {
		cands, at := p.next(s, cur)
		if len(cands) == 0 {
			break
		}
		if at > cur {
			if plain < 0 {
				plain = cur
			}
			cur = at
		}
		if m, ok := t.try(cands, s[cur:], base+cur); ok {
			flush(cur)
			out = append(out, m.Token)
			cur += m.Len
			continue
		}
		if plain < 0 {
			plain = cur
		}
		_, size := utf8.DecodeRuneInString(s[cur:])
		cur += size
	}
	if cur < len(s) && plain < 0 {
		plain = cur
	}
	flush(len(s))
	return out
}

// prober remembers each extension's last hit. A hit at or after the cursor
// is still the earliest one, so every extension scans each byte about once.
type prober struct {
	exts []Extension
	hits []int
}

const (
	hitUnknown = -2
	hitNone    = -1
)

func newProber(exts []Extension) *prober {
	hits := make([]int, len(exts))
	for i := range hits {
		hits[i] = hitUnknown
	}
	return &prober{exts: exts, hits: hits}
}

// next returns the extensions whose hit is the earliest at or after cur, in
// registration order, and that position.
func (p *prober) next(src string, cur int) ([]Extension, int) {
	best := -1
	for i, e := range p.exts {
		h := p.hits[i]
		if h == hitUnknown || (h >= 0 && h < cur) {
			h = hitNone
			if rel := e.Probe(src[cur:]); rel >= 0 {
				h = cur + rel
			}
			p.hits[i] = h
		}
		if h >= 0 && (best < 0 || h < best) {
			best = h
		}
	}
	if best < 0 {
		return nil, -1
	}
	var cands []Extension
	for i, e := range p.exts {
		if p.hits[i] == best {
			cands = append(cands, e)
		}
	}
	return cands, best
}

// lineTable maps offsets to zero-based line numbers.
type lineTable []int

func newLineTable(text string) lineTable {
	starts := lineTable{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func (lt lineTable) at(offset int) int {
	return sort.Search(len(lt), func(i int) bool { return lt[i] > offset }) - 1
}

// lineEnd returns the offset just past the newline ending the line at off.
func lineEnd(text string, off int) int {
	if i := strings.IndexByte(text[off:], '\n'); i >= 0 {
		return off + i + 1
	}
	return len(text)
}

// firstLine splits off the first line of s without its "\n" (a trailing
// "\r" is kept) and reports how many bytes including the newline it spans.
func firstLine(s string) (string, int) {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i], i + 1
	}
	return s, len(s)
}

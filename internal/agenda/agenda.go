// Package agenda merges the scheduled and recurring lines of every document
// into a per-date index of items.
package agenda

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"planmark/internal/datetime"
	"planmark/internal/docstore"
	appLog "planmark/internal/log"
	"planmark/internal/markup"
	"planmark/internal/model"
)

var (
	// ErrConflictingAnchor marks a line with more than one SCHEDULED or
	// REPEAT tag. The first one in the line is used.
	ErrConflictingAnchor = errors.New("line carries more than one temporal anchor")
	ErrInvalidRange      = errors.New("range end before start")
)

// Options configures an Aggregator.
type Options struct {
	// Pattern restricts the documents read (path.Match syntax). Empty means
	// all documents.
	Pattern string
	// Registry tokenizes documents; nil means markup.Default(nil).
	Registry *markup.Registry
	// Cache memoizes extraction across calls; nil disables caching.
	Cache *Cache
}

// Aggregator reads documents from a store and never writes them.
type Aggregator struct {
	store docstore.Reader
	opts  Options
}

func New(store docstore.Reader, opts Options) *Aggregator {
	if opts.Registry == nil {
		opts.Registry = markup.Default(nil)
	}
	return &Aggregator{store: store, opts: opts}
}

// Result is the date index for [From, To].
type Result struct {
	From     datetime.Date
	To       datetime.Date
	Days     map[datetime.Date][]model.Item
	Warnings []Warning
}

// Dates returns the dates that have items, in order.
func (r *Result) Dates() []datetime.Date {
	out := make([]datetime.Date, 0, len(r.Days))
	for d := range r.Days {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Items returns the ordered items of one date.
func (r *Result) Items(d datetime.Date) []model.Item { return r.Days[d] }

// All returns every item, ordered by date and then within the date.
func (r *Result) All() []model.Item {
	var out []model.Item
	for _, d := range r.Dates() {
		out = append(out, r.Days[d]...)
	}
	return out
}

// Day aggregates a single date.
func (a *Aggregator) Day(ctx context.Context, d datetime.Date) ([]model.Item, []Warning, error) {
	res, err := a.Range(ctx, d, d)
	if err != nil {
		return nil, nil, err
	}
	return res.Items(d), res.Warnings, nil
}

// Range aggregates every date in [from, to]. A document the store fails to
// return is logged, reported as a warning and skipped; only a failing key
// listing aborts.
func (a *Aggregator) Range(ctx context.Context, from, to datetime.Date) (*Result, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: %s..%s", ErrInvalidRange, from, to)
	}
	started := time.Now()
	defer func() { aggregateDuration.Observe(time.Since(started).Seconds()) }()

	keys, err := a.store.ListKeys(ctx, a.opts.Pattern)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	res := &Result{From: from, To: to, Days: map[datetime.Date][]model.Item{}}
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := a.store.Get(ctx, key)
		if err != nil {
			appLog.Warn("agenda: skipping document", "doc", key, "err", err)
			documentsSkipped.Inc()
			res.Warnings = append(res.Warnings, Warning{DocKey: key, Line: -1, Err: err})
			continue
		}
		p := a.opts.Cache.load(key, text, func() *parsed {
			return extract(a.opts.Registry, key, text)
		})
		res.Warnings = append(res.Warnings, p.warnings...)
		for _, e := range p.entries {
			for _, it := range e.items(key, from, to) {
				res.Days[it.Date] = append(res.Days[it.Date], it)
			}
		}
	}

	for d, items := range res.Days {
		sort.SliceStable(items, func(i, j int) bool { return items[i].Less(items[j]) })
		res.Days[d] = items
	}
	for _, w := range res.Warnings {
		appLog.Debug("agenda warning", "doc", w.DocKey, "line", w.Line, "err", w.Err)
	}
	return res, nil
}

package remind

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"

	"planmark/internal/agenda"
	"planmark/internal/datetime"
	appLog "planmark/internal/log"
	"planmark/internal/model"
)

var (
	remindersDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "planmark",
			Subsystem: "remind",
			Name:      "delivered_total",
			Help:      "Reminders handed to the delivery sink",
		},
	)

	// scansTotal counts scans.
	// Labels: result (success, error)
	scansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "planmark",
			Subsystem: "remind",
			Name:      "scans_total",
			Help:      "Reminder scans by result",
		},
		[]string{"result"},
	)
)

// Sink delivers reminders. Deliver is called only with reminders it has
// not successfully received before.
type Sink interface {
	Deliver(ctx context.Context, reminders []model.Reminder) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, reminders []model.Reminder) error

func (f SinkFunc) Deliver(ctx context.Context, reminders []model.Reminder) error {
	return f(ctx, reminders)
}

// LogSink writes each reminder to the application log.
type LogSink struct{}

func (LogSink) Deliver(_ context.Context, reminders []model.Reminder) error {
	for _, r := range reminders {
		appLog.Info("reminder",
			"id", r.ID,
			"fire_at", r.FireAt.Format(time.RFC3339),
			"text", r.Text,
			"doc", r.Source.DocKey,
			"line", r.Source.Line,
		)
	}
	return nil
}

// Options configures a Scanner.
type Options struct {
	Sink        Sink
	Location    *time.Location
	HorizonDays int
	// Now defaults to time.Now.
	Now func() time.Time
}

// ScanResult summarizes one scan.
type ScanResult struct {
	RunID     string    `json:"run_id"`
	At        time.Time `json:"at"`
	Found     int       `json:"found"`
	Delivered int       `json:"delivered"`
	Warnings  int       `json:"warnings"`
}

// Scanner periodically materializes reminders for [today, today+horizon]
// and delivers the ones not delivered before. The delivered ledger lives in
// memory; entries are dropped once their fire time has passed.
type Scanner struct {
	agg     *agenda.Aggregator
	sink    Sink
	loc     *time.Location
	horizon int
	now     func() time.Time

	mu        sync.Mutex
	delivered map[string]time.Time
	entropy   io.Reader
}

func NewScanner(agg *agenda.Aggregator, opts Options) *Scanner {
	s := &Scanner{
		agg:       agg,
		sink:      opts.Sink,
		loc:       opts.Location,
		horizon:   opts.HorizonDays,
		now:       opts.Now,
		delivered: map[string]time.Time{},
		entropy:   ulid.Monotonic(rand.Reader, 0),
	}
	if s.sink == nil {
		s.sink = LogSink{}
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.horizon <= 0 {
		s.horizon = 7
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Upcoming materializes reminders in the scan window without delivering
// them.
func (s *Scanner) Upcoming(ctx context.Context) ([]model.Reminder, error) {
	rems, _, err := s.collect(ctx, s.now().In(s.loc))
	return rems, err
}

func (s *Scanner) collect(ctx context.Context, now time.Time) ([]model.Reminder, *agenda.Result, error) {
	today := datetime.DateOf(now)
	res, err := s.agg.Range(ctx, today, today.AddDays(s.horizon))
	if err != nil {
		return nil, nil, err
	}
	return Materialize(res.All(), now, s.loc), res, nil
}

// Scan runs one scan. Scans are serialized. If the sink fails nothing is
// recorded, so the next scan retries the same reminders.
func (s *Scanner) Scan(ctx context.Context) (ScanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().In(s.loc)
	out := ScanResult{RunID: ulid.MustNew(ulid.Timestamp(now), s.entropy).String(), At: now}

	rems, res, err := s.collect(ctx, now)
	if err != nil {
		scansTotal.WithLabelValues("error").Inc()
		return out, fmt.Errorf("scan %s: %w", out.RunID, err)
	}
	out.Found = len(rems)
	out.Warnings = len(res.Warnings)

	for id, fireAt := range s.delivered {
		if !fireAt.After(now) {
			delete(s.delivered, id)
		}
	}
	fresh := make([]model.Reminder, 0, len(rems))
	for _, r := range rems {
		if _, ok := s.delivered[r.ID]; !ok {
			fresh = append(fresh, r)
		}
	}
	if len(fresh) > 0 {
		if err := s.sink.Deliver(ctx, fresh); err != nil {
			scansTotal.WithLabelValues("error").Inc()
			return out, fmt.Errorf("scan %s: deliver: %w", out.RunID, err)
		}
		for _, r := range fresh {
			s.delivered[r.ID] = r.FireAt
		}
	}
	out.Delivered = len(fresh)
	remindersDelivered.Add(float64(len(fresh)))
	scansTotal.WithLabelValues("success").Inc()

	appLog.Info("reminder scan complete",
		"run_id", out.RunID,
		"found", out.Found,
		"delivered", out.Delivered,
		"warnings", out.Warnings,
	)
	return out, nil
}

// Start scans once, then on every tick of the cron spec, until ctx is done.
// It returns after the last scan has finished.
func (s *Scanner) Start(ctx context.Context, spec string) error {
	c := cron.New(cron.WithLocation(s.loc))
	if _, err := c.AddFunc(spec, func() { s.logScan(ctx) }); err != nil {
		return fmt.Errorf("reminder schedule %q: %w", spec, err)
	}
	s.logScan(ctx)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// Trigger runs an out-of-schedule scan, e.g. after a document changed.
func (s *Scanner) Trigger(ctx context.Context) { s.logScan(ctx) }

func (s *Scanner) logScan(ctx context.Context) {
	if _, err := s.Scan(ctx); err != nil && !errors.Is(err, context.Canceled) {
		appLog.Error("reminder scan failed", err)
	}
}

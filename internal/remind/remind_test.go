package remind

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planmark/internal/agenda"
	"planmark/internal/datetime"
	"planmark/internal/docstore"
	"planmark/internal/model"
)

func clock(s string) *datetime.Clock {
	c, ok := datetime.ParseClock(s)
	if !ok {
		panic("bad clock " + s)
	}
	return &c
}

func TestMaterializeNotifyTime(t *testing.T) {
	d := datetime.NewDate(2025, time.July, 21)
	notify := datetime.Moment{Date: d, Time: clock("09:45")}
	items := []model.Item{{Date: d, Time: clock("10:00"), Text: "Team meeting", NotifyAt: &notify, SourceDocKey: "work"}}

	now := time.Date(2025, time.July, 21, 8, 0, 0, 0, time.UTC)
	rems := Materialize(items, now, time.UTC)
	require.Len(t, rems, 1)
	assert.Equal(t, time.Date(2025, time.July, 21, 9, 45, 0, 0, time.UTC), rems[0].FireAt)
	assert.Equal(t, "Team meeting", rems[0].Text)
	assert.Equal(t, "work", rems[0].Source.DocKey)
	assert.Equal(t, ID(rems[0].FireAt, "Team meeting"), rems[0].ID)
}

func TestMaterializeFallsBackToItemTime(t *testing.T) {
	d := datetime.NewDate(2025, time.July, 21)
	items := []model.Item{
		{Date: d, Time: clock("10:00"), Text: "timed"},
		{Date: d, Text: "all day"},
	}
	rems := Materialize(items, time.Date(2025, time.July, 20, 0, 0, 0, 0, time.UTC), time.UTC)
	require.Len(t, rems, 1)
	assert.Equal(t, "timed", rems[0].Text)
	assert.Equal(t, 10, rems[0].FireAt.Hour())
}

func TestMaterializeDropsPastAndDuplicates(t *testing.T) {
	d := datetime.NewDate(2025, time.July, 21)
	now := time.Date(2025, time.July, 21, 10, 0, 0, 0, time.UTC)
	items := []model.Item{
		{Date: d, Time: clock("10:00"), Text: "exactly now"},
		{Date: d, Time: clock("09:00"), Text: "past"},
		{Date: d, Time: clock("11:00"), Text: "same"},
		{Date: d, Time: clock("11:00"), Text: "same", SourceDocKey: "other"},
		{Date: d, Time: clock("10:30"), Text: "earlier"},
	}
	rems := Materialize(items, now, time.UTC)
	require.Len(t, rems, 2)
	assert.Equal(t, "earlier", rems[0].Text)
	assert.Equal(t, "same", rems[1].Text)
}

func TestMaterializeUsesLocation(t *testing.T) {
	seoul := time.FixedZone("KST", 9*60*60)
	d := datetime.NewDate(2025, time.July, 21)
	items := []model.Item{{Date: d, Time: clock("09:00"), Text: "x"}}
	rems := Materialize(items, time.Date(2025, time.July, 20, 0, 0, 0, 0, time.UTC), seoul)
	require.Len(t, rems, 1)
	assert.Equal(t, time.Date(2025, time.July, 21, 0, 0, 0, 0, time.UTC), rems[0].FireAt.UTC())
}

func TestIDStable(t *testing.T) {
	at := time.Date(2025, time.July, 21, 9, 45, 0, 0, time.UTC)
	assert.Equal(t, ID(at, "a"), ID(at.In(time.FixedZone("X", 3600)), "a"))
	assert.NotEqual(t, ID(at, "a"), ID(at, "b"))
	assert.NotEqual(t, ID(at, "a"), ID(at.Add(time.Minute), "a"))
}

type recordingSink struct {
	batches [][]model.Reminder
	err     error
}

func (r *recordingSink) Deliver(_ context.Context, rems []model.Reminder) error {
	if r.err != nil {
		return r.err
	}
	r.batches = append(r.batches, rems)
	return nil
}

func TestScannerDeliversOnce(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory(map[string]string{
		"work": "- [ ] Team meeting (SCHEDULED: 2025-07-21 10:00) (NOTIFY: 2025-07-21 09:45)\n" +
			"- [ ] Lunch (SCHEDULED: 2025-07-21 12:00)\n",
	})
	now := time.Date(2025, time.July, 21, 8, 0, 0, 0, time.UTC)
	sink := &recordingSink{}
	s := NewScanner(agenda.New(store, agenda.Options{}), Options{
		Sink:        sink,
		Location:    time.UTC,
		HorizonDays: 2,
		Now:         func() time.Time { return now },
	})

	res, err := s.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Found)
	assert.Equal(t, 2, res.Delivered)
	assert.NotEmpty(t, res.RunID)

	res2, err := s.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res2.Delivered)
	assert.NotEqual(t, res.RunID, res2.RunID)
	require.Len(t, sink.batches, 1)

	require.NoError(t, store.Set(ctx, "work", "- [ ] Dinner (SCHEDULED: 2025-07-21 19:00)\n"))
	now = now.Add(3 * time.Hour)
	res3, err := s.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res3.Delivered)
	require.Len(t, sink.batches, 2)
	assert.Equal(t, "Dinner", sink.batches[1][0].Text)
	assert.Len(t, s.delivered, 2, "the fired meeting reminder is pruned")
}

func TestScannerRetriesAfterSinkFailure(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory(map[string]string{"d": "x (SCHEDULED: 2025-07-21 10:00)"})
	sink := &recordingSink{err: errors.New("push gateway down")}
	s := NewScanner(agenda.New(store, agenda.Options{}), Options{
		Sink:     sink,
		Location: time.UTC,
		Now:      func() time.Time { return time.Date(2025, time.July, 21, 8, 0, 0, 0, time.UTC) },
	})

	_, err := s.Scan(ctx)
	require.Error(t, err)

	sink.err = nil
	res, err := s.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Delivered)
}

func TestUpcomingDoesNotRecord(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory(map[string]string{"d": "x (SCHEDULED: 2025-07-21 10:00)"})
	sink := &recordingSink{}
	s := NewScanner(agenda.New(store, agenda.Options{}), Options{
		Sink:     sink,
		Location: time.UTC,
		Now:      func() time.Time { return time.Date(2025, time.July, 21, 8, 0, 0, 0, time.UTC) },
	})
	rems, err := s.Upcoming(ctx)
	require.NoError(t, err)
	require.Len(t, rems, 1)

	res, err := s.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Delivered)
}

func TestStartRejectsBadSpec(t *testing.T) {
	s := NewScanner(agenda.New(docstore.NewMemory(nil), agenda.Options{}), Options{Sink: &recordingSink{}})
	err := s.Start(context.Background(), "not a cron spec")
	assert.Error(t, err)
}

func TestStartStopsWithContext(t *testing.T) {
	sink := &recordingSink{}
	s := NewScanner(agenda.New(docstore.NewMemory(nil), agenda.Options{}), Options{Sink: sink})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx, "*/5 * * * *") }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scanner did not stop")
	}
}

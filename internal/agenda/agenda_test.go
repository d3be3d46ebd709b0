package agenda

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planmark/internal/datetime"
	"planmark/internal/docstore"
	"planmark/internal/model"
	"planmark/internal/recur"
)

func day(s string) datetime.Date {
	d, ok := datetime.ParseDate(s)
	if !ok {
		panic("bad date " + s)
	}
	return d
}

func newAgg(t *testing.T, docs map[string]string) *Aggregator {
	t.Helper()
	cache, err := NewCache(16)
	require.NoError(t, err)
	return New(docstore.NewMemory(docs), Options{Cache: cache})
}

func TestScheduledItem(t *testing.T) {
	a := newAgg(t, map[string]string{"todo": "- [ ] Book flight (SCHEDULED: 2025-08-15)\n"})

	items, warnings, err := a.Day(context.Background(), day("2025-08-15"))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, items, 1)
	assert.Equal(t, "Book flight", items[0].Text)
	assert.False(t, items[0].Checked)
	assert.True(t, items[0].IsCheckboxTask)
	assert.Nil(t, items[0].Time)
	assert.Equal(t, model.KindScheduled, items[0].Kind)
	assert.Equal(t, "todo", items[0].SourceDocKey)
	assert.Equal(t, 0, items[0].SourceLine)

	items, _, err = a.Day(context.Background(), day("2025-08-16"))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRepeatingItemOnTuesdaysOnly(t *testing.T) {
	a := newAgg(t, map[string]string{"home": "- [ ] Take out the trash (REPEAT: every tuesday)\n"})
	start := day("2025-07-01")
	for i := 0; i < 21; i++ {
		d := start.AddDays(i)
		items, _, err := a.Day(context.Background(), d)
		require.NoError(t, err)
		if d.Weekday().String() == "Tuesday" {
			require.Len(t, items, 1, d.String())
			assert.Equal(t, "Take out the trash", items[0].Text)
			assert.Equal(t, model.KindRepeat, items[0].Kind)
		} else {
			assert.Empty(t, items, d.String())
		}
	}
}

func TestTimedItemWithNotify(t *testing.T) {
	a := newAgg(t, map[string]string{
		"work": "- [ ] Team meeting (SCHEDULED: 2025-07-21 10:00) (NOTIFY: 2025-07-21 09:45)",
	})
	items, _, err := a.Day(context.Background(), day("2025-07-21"))
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].Time)
	assert.Equal(t, "10:00", items[0].Time.String())
	assert.Equal(t, "Team meeting", items[0].Text)
	require.NotNil(t, items[0].NotifyAt)
	assert.Equal(t, "2025-07-21 09:45", items[0].NotifyAt.String())
}

func TestOrderingWithinDay(t *testing.T) {
	doc := "" +
		"- [ ] zebra (SCHEDULED: 2025-07-21)\n" +
		"- [ ] late (SCHEDULED: 2025-07-21 15:00)\n" +
		"- [x] apple (SCHEDULED: 2025-07-21)\n" +
		"- [ ] early (SCHEDULED: 2025-07-21 08:30)\n" +
		"Standup notes (REPEAT: every monday at 09:00)\n"
	a := newAgg(t, map[string]string{"d": doc})
	items, _, err := a.Day(context.Background(), day("2025-07-21"))
	require.NoError(t, err)

	var texts []string
	for _, it := range items {
		texts = append(texts, it.Text)
	}
	assert.Equal(t, []string{"apple", "zebra", "early", "Standup notes", "late"}, texts)
	assert.True(t, items[0].Checked)
	assert.False(t, items[3].IsCheckboxTask)
	assert.Equal(t, "09:00", items[3].Time.String())
}

func TestMutualExclusivity(t *testing.T) {
	doc := "- [ ] only repeat (REPEAT: everyday)\n- [ ] only scheduled (SCHEDULED: 2025-07-21)\n"
	a := newAgg(t, map[string]string{"d": doc})
	res, err := a.Range(context.Background(), day("2025-07-20"), day("2025-07-22"))
	require.NoError(t, err)
	for _, it := range res.All() {
		switch it.Text {
		case "only repeat":
			assert.Equal(t, model.KindRepeat, it.Kind)
		case "only scheduled":
			assert.Equal(t, model.KindScheduled, it.Kind)
			assert.Equal(t, day("2025-07-21"), it.Date)
		default:
			t.Fatalf("unexpected item %q", it.Text)
		}
	}
	assert.Len(t, res.All(), 4)
}

func TestConflictingAnchorKeepsFirst(t *testing.T) {
	a := newAgg(t, map[string]string{"d": "- [ ] both (REPEAT: everyday) (SCHEDULED: 2025-07-21)\n"})
	res, err := a.Range(context.Background(), day("2025-07-20"), day("2025-07-21"))
	require.NoError(t, err)
	assert.Len(t, res.All(), 2)
	require.Len(t, res.Warnings, 1)
	assert.ErrorIs(t, res.Warnings[0], ErrConflictingAnchor)
}

func TestBadLinesDoNotStopAggregation(t *testing.T) {
	doc := "- [ ] broken rule (REPEAT: whenever)\n" +
		"- [ ] broken date (SCHEDULED: 2025-02-30)\n" +
		"- [ ] fine (SCHEDULED: 2025-07-21)\n"
	a := newAgg(t, map[string]string{"d": doc})
	items, warnings, err := a.Day(context.Background(), day("2025-07-21"))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "fine", items[0].Text)
	require.Len(t, warnings, 2)

	var sawRule bool
	for _, w := range warnings {
		if errors.Is(w, recur.ErrUnparseableRule) {
			sawRule = true
			assert.Equal(t, 0, w.Line)
		}
	}
	assert.True(t, sawRule)
}

func TestRecurringCheckboxStateShared(t *testing.T) {
	a := newAgg(t, map[string]string{"d": "- [x] Water plants (REPEAT: every day)\n"})
	res, err := a.Range(context.Background(), day("2025-07-01"), day("2025-07-07"))
	require.NoError(t, err)
	require.Len(t, res.All(), 7)
	for _, it := range res.All() {
		assert.True(t, it.Checked)
		assert.Equal(t, 0, it.SourceLine)
	}
	assert.Len(t, res.Dates(), 7)
}

func TestTableCellTask(t *testing.T) {
	doc := "| Task | Done |\n|---|---|\n| Pay bills (SCHEDULED: 2025-07-21) | [x] |\n"
	a := newAgg(t, map[string]string{"d": doc})
	items, _, err := a.Day(context.Background(), day("2025-07-21"))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].IsCheckboxTask)
	assert.True(t, items[0].Checked)
	assert.Equal(t, 2, items[0].SourceLine)
}

func TestPatternRestrictsDocuments(t *testing.T) {
	store := docstore.NewMemory(map[string]string{
		"journal/a": "x (SCHEDULED: 2025-07-21)",
		"archive/b": "y (SCHEDULED: 2025-07-21)",
	})
	a := New(store, Options{Pattern: "journal/*"})
	items, _, err := a.Day(context.Background(), day("2025-07-21"))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "x", items[0].Text)
}

func TestInvalidRange(t *testing.T) {
	a := newAgg(t, nil)
	_, err := a.Range(context.Background(), day("2025-07-21"), day("2025-07-20"))
	assert.ErrorIs(t, err, ErrInvalidRange)
}

type flakyStore struct {
	*docstore.Memory
	listErr error
	bad     string
}

func (f flakyStore) ListKeys(ctx context.Context, pattern string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.Memory.ListKeys(ctx, pattern)
}

func (f flakyStore) Get(ctx context.Context, key string) (string, error) {
	if key == f.bad {
		return "", errors.New("disk on fire")
	}
	return f.Memory.Get(ctx, key)
}

func TestStoreFailures(t *testing.T) {
	mem := docstore.NewMemory(map[string]string{
		"a": "one (SCHEDULED: 2025-07-21)",
		"b": "two (SCHEDULED: 2025-07-21)",
	})

	a := New(flakyStore{Memory: mem, bad: "a"}, Options{})
	items, warnings, err := a.Day(context.Background(), day("2025-07-21"))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "two", items[0].Text)
	require.Len(t, warnings, 1)
	assert.Equal(t, -1, warnings[0].Line)

	a = New(flakyStore{Memory: mem, listErr: errors.New("offline")}, Options{})
	_, _, err = a.Day(context.Background(), day("2025-07-21"))
	assert.Error(t, err)
}

func TestCacheReusesUnchangedDocuments(t *testing.T) {
	store := docstore.NewMemory(map[string]string{"d": "a (SCHEDULED: 2025-07-21)"})
	cache, err := NewCache(4)
	require.NoError(t, err)
	a := New(store, Options{Cache: cache})
	ctx := context.Background()

	_, _, err = a.Day(ctx, day("2025-07-21"))
	require.NoError(t, err)
	first, ok := cache.lru.Get("d")
	require.True(t, ok)

	_, _, err = a.Day(ctx, day("2025-07-21"))
	require.NoError(t, err)
	second, _ := cache.lru.Get("d")
	assert.Same(t, first.parsed, second.parsed)

	require.NoError(t, store.Set(ctx, "d", "b (SCHEDULED: 2025-07-21)"))
	items, _, err := a.Day(ctx, day("2025-07-21"))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].Text)
	third, _ := cache.lru.Get("d")
	assert.NotSame(t, first.parsed, third.parsed)
}

func TestLineTextStripsMarkersAndTags(t *testing.T) {
	a := newAgg(t, map[string]string{
		"d": "  * [ ]   Call   [[Mum]]  (SCHEDULED: 2025-07-21 18:00)   later\r\n",
	})
	items, _, err := a.Day(context.Background(), day("2025-07-21"))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Call [[Mum]] later", items[0].Text)
}

package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planmark/internal/agenda"
	"planmark/internal/config"
	"planmark/internal/datetime"
	"planmark/internal/docstore"
	"planmark/internal/markup"
	"planmark/internal/remind"
)

var fixedNow = time.Date(2025, time.July, 21, 8, 0, 0, 0, time.UTC)

const workDoc = "# Monday\n" +
	"- [ ] Team meeting (SCHEDULED: 2025-07-21 10:00) (NOTIFY: 2025-07-21 09:45)\n" +
	"- [ ] Take out the trash (REPEAT: every tuesday)\n" +
	"GOAL(count: 25): Read 25 books\n"

func newTestServer(t *testing.T, auth *config.BasicAuthConfig) (*Server, *docstore.Memory) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.BasicAuth = auth

	store := docstore.NewMemory(map[string]string{"work": workDoc})
	reg := markup.Default(cfg.Widgets)
	now := func() time.Time { return fixedNow }
	agg := agenda.New(store, agenda.Options{Registry: reg})
	scanner := remind.NewScanner(agg, remind.Options{Location: time.UTC, HorizonDays: 7, Now: now})

	return NewServer(cfg, Deps{Store: store, Agenda: agg, Registry: reg, Scanner: scanner, Now: now}), store
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestDayDefaultsToToday(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/api/day", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Date  string `json:"date"`
		Items []struct {
			Text string `json:"text"`
			Time string `json:"time"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2025-07-21", resp.Date)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "Team meeting", resp.Items[0].Text)
	assert.Equal(t, "10:00", resp.Items[0].Time)
}

func TestDayAcceptsOtherFormats(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/api/day?date=22.07.2025", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Take out the trash")

	rec = do(t, s.Handler(), http.MethodGet, "/api/day?date=tomorrow", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAgendaRangeAndWeek(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s.Handler(), http.MethodGet, "/api/agenda?from=2025-07-21&to=2025-07-29", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Days []struct {
			Date string `json:"date"`
		} `json:"days"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	var dates []string
	for _, d := range resp.Days {
		dates = append(dates, d.Date)
	}
	assert.Equal(t, []string{"2025-07-21", "2025-07-22", "2025-07-29"}, dates)

	rec = do(t, s.Handler(), http.MethodGet, "/api/agenda?week=2025-07-23", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"from":"2025-07-21"`)
	assert.Contains(t, rec.Body.String(), `"to":"2025-07-27"`)

	rec = do(t, s.Handler(), http.MethodGet, "/api/agenda?from=2025-07-21&to=2025-07-01", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWeekStartOf(t *testing.T) {
	wed := datetime.NewDate(2025, time.July, 23)
	assert.Equal(t, datetime.NewDate(2025, time.July, 21), WeekStartOf(wed, "monday"))
	assert.Equal(t, datetime.NewDate(2025, time.July, 20), WeekStartOf(wed, "sunday"))
	sun := datetime.NewDate(2025, time.July, 20)
	assert.Equal(t, datetime.NewDate(2025, time.July, 14), WeekStartOf(sun, "monday"))
	assert.Equal(t, sun, WeekStartOf(sun, "sunday"))
}

func TestTokens(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/api/tokens?key=work", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Tokens []struct {
			Type     string          `json:"type"`
			Token    json.RawMessage `json:"token"`
			Children []struct {
				Type string `json:"type"`
			} `json:"children"`
		} `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	var types []string
	for _, tok := range resp.Tokens {
		types = append(types, tok.Type)
	}
	assert.Equal(t, []string{"paragraph", "checkbox", "checkbox", "goal"}, types)
	assert.Contains(t, string(resp.Tokens[3].Token), `"count":"25"`)
	assert.NotEmpty(t, resp.Tokens[1].Children)

	rec = do(t, s.Handler(), http.MethodGet, "/api/tokens?key=nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestToggle(t *testing.T) {
	s, store := newTestServer(t, nil)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/toggle", `{"key":"work","line":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"checked":true`)

	text, err := store.Get(testContext(t), "work")
	require.NoError(t, err)
	assert.Equal(t, strings.Replace(workDoc, "- [ ] Team", "- [x] Team", 1), text)

	rec = do(t, h, http.MethodPost, "/api/toggle", `{"key":"work","line":1,"checked":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	text, _ = store.Get(testContext(t), "work")
	assert.Contains(t, text, "- [x] Team")

	rec = do(t, h, http.MethodPost, "/api/toggle", `{"key":"work","line":0}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/toggle", `{"key":"work"`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/toggle", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestReminders(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/api/reminders", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var rems []struct {
		Text   string    `json:"text"`
		FireAt time.Time `json:"fire_at"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rems))
	require.Len(t, rems, 1)
	assert.Equal(t, "Team meeting", rems[0].Text)
	assert.True(t, rems[0].FireAt.Equal(time.Date(2025, 7, 21, 9, 45, 0, 0, time.UTC)))
}

func TestNext(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/api/next?rule=every+tuesday&from=2025-07-23", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"next":"2025-07-29"`)
	assert.Contains(t, rec.Body.String(), `"kind":"weekday"`)

	rec = do(t, s.Handler(), http.MethodGet, "/api/next?rule=whenever", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"next":null`)
	assert.Contains(t, rec.Body.String(), `"error"`)
}

func TestCalendarFeed(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/calendar.ics?days=7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))

	cal, err := ical.ParseCalendar(strings.NewReader(rec.Body.String()))
	require.NoError(t, err)
	// Meeting on the 21st, trash on the 22nd.
	assert.Len(t, cal.Events(), 2)
}

func TestMetrics(t *testing.T) {
	s, _ := newTestServer(t, nil)
	do(t, s.Handler(), http.MethodGet, "/api/day", "")
	rec := do(t, s.Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "planmark_agenda_aggregate_duration_seconds")
}

func TestBasicAuth(t *testing.T) {
	s, _ := newTestServer(t, &config.BasicAuthConfig{Username: "me", Password: "pw"})
	h := s.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "").Code)

	rec := do(t, h, http.MethodGet, "/api/day", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/api/day", nil)
	req.SetBasicAuth("me", "pw")
	ok := httptest.NewRecorder()
	h.ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/day", nil)
	req.SetBasicAuth("me", "wrong")
	bad := httptest.NewRecorder()
	h.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusUnauthorized, bad.Code)
}

// testContext mirrors testing.T.Context (Go 1.24+): a context canceled
// when the test's cleanup runs.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

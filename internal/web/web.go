package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"planmark/internal/agenda"
	"planmark/internal/config"
	"planmark/internal/datetime"
	"planmark/internal/docstore"
	"planmark/internal/edit"
	"planmark/internal/ics"
	appLog "planmark/internal/log"
	"planmark/internal/markup"
	"planmark/internal/model"
	"planmark/internal/recur"
	"planmark/internal/remind"
)

// maxRangeDays caps /api/agenda and /calendar.ics windows.
const maxRangeDays = 366

// Deps are the components the server exposes.
type Deps struct {
	Store    docstore.Store
	Agenda   *agenda.Aggregator
	Registry *markup.Registry
	Scanner  *remind.Scanner
	// Now defaults to time.Now.
	Now func() time.Time
}

// Server provides the HTTP API.
type Server struct {
	cfg  *config.Config
	deps Deps
	loc  *time.Location
	mux  *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, deps Deps) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Server{
		cfg:  cfg,
		deps: deps,
		loc:  cfg.Location(),
		mux:  http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="planmark", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/day", s.handleDay)
	s.mux.HandleFunc("GET /api/agenda", s.handleAgenda)
	s.mux.HandleFunc("GET /api/tokens", s.handleTokens)
	s.mux.HandleFunc("POST /api/toggle", s.handleToggle)
	s.mux.HandleFunc("GET /api/reminders", s.handleReminders)
	s.mux.HandleFunc("GET /api/next", s.handleNext)
	s.mux.HandleFunc("GET /calendar.ics", s.handleCalendar)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) today() datetime.Date {
	return datetime.DateOf(s.deps.Now().In(s.loc))
}

// dateParam reads a date query parameter in any supported format, or def
// when absent.
func dateParam(r *http.Request, name string, def datetime.Date) (datetime.Date, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	d, ok := datetime.ParseDate(v)
	if !ok {
		return datetime.Date{}, errors.New("invalid " + name + ": " + v)
	}
	return d, nil
}

// warningDTO is a JSON-friendly view of agenda.Warning.
type warningDTO struct {
	Doc   string `json:"doc"`
	Line  int    `json:"line"`
	Error string `json:"error"`
}

func warningDTOs(ws []agenda.Warning) []warningDTO {
	out := make([]warningDTO, 0, len(ws))
	for _, w := range ws {
		out = append(out, warningDTO{Doc: w.DocKey, Line: w.Line, Error: w.Err.Error()})
	}
	return out
}

type dayResponse struct {
	Date     datetime.Date `json:"date"`
	Items    []model.Item  `json:"items"`
	Warnings []warningDTO  `json:"warnings"`
}

// handleDay returns the items of one date.
//
// GET /api/day?date=2025-07-21 (default today)
func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	d, err := dateParam(r, "date", s.today())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, warnings, err := s.deps.Agenda.Day(r.Context(), d)
	if err != nil {
		appLog.Error("api day: aggregate failed", err, "date", d.String())
		writeError(w, http.StatusInternalServerError, "failed to aggregate")
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	writeJSON(w, http.StatusOK, dayResponse{Date: d, Items: items, Warnings: warningDTOs(warnings)})
}

type agendaDay struct {
	Date  datetime.Date `json:"date"`
	Items []model.Item  `json:"items"`
}

type agendaResponse struct {
	From      datetime.Date `json:"from"`
	To        datetime.Date `json:"to"`
	WeekStart string        `json:"week_start"`
	Days      []agendaDay   `json:"days"`
	Warnings  []warningDTO  `json:"warnings"`
}

// handleAgenda returns the date index for a range.
//
// GET /api/agenda?from=&to=    explicit range (default today..today+horizon)
// GET /api/agenda?week=D       the week containing D, honoring week_start
func (s *Server) handleAgenda(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.agendaRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.deps.Agenda.Range(r.Context(), from, to)
	if err != nil {
		appLog.Error("api agenda: aggregate failed", err, "from", from.String(), "to", to.String())
		writeError(w, http.StatusInternalServerError, "failed to aggregate")
		return
	}
	resp := agendaResponse{
		From:      from,
		To:        to,
		WeekStart: s.cfg.WeekStart,
		Days:      make([]agendaDay, 0, len(res.Days)),
		Warnings:  warningDTOs(res.Warnings),
	}
	for _, d := range res.Dates() {
		resp.Days = append(resp.Days, agendaDay{Date: d, Items: res.Items(d)})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) agendaRange(r *http.Request) (datetime.Date, datetime.Date, error) {
	today := s.today()
	if r.URL.Query().Get("week") != "" {
		d, err := dateParam(r, "week", today)
		if err != nil {
			return d, d, err
		}
		start := WeekStartOf(d, s.cfg.WeekStart)
		return start, start.AddDays(6), nil
	}
	from, err := dateParam(r, "from", today)
	if err != nil {
		return from, from, err
	}
	to, err := dateParam(r, "to", from.AddDays(s.cfg.HorizonDays))
	if err != nil {
		return from, to, err
	}
	if to.Before(from) {
		return from, to, errors.New("to is before from")
	}
	if to.DaysSince(from) > maxRangeDays {
		return from, to, errors.New("range too large")
	}
	return from, to, nil
}

// WeekStartOf returns the first day of d's week; weekStart is "monday" or
// "sunday".
func WeekStartOf(d datetime.Date, weekStart string) datetime.Date {
	first := time.Monday
	if weekStart == "sunday" {
		first = time.Sunday
	}
	back := (int(d.Weekday()) - int(first) + 7) % 7
	return d.AddDays(-back)
}

type tokensResponse struct {
	Key         string          `json:"key"`
	Tokens      []TokenNode     `json:"tokens"`
	Diagnostics []diagnosticDTO `json:"diagnostics"`
}

// TokenNode is the JSON shape of a token and its inline children.
type TokenNode struct {
	Kind     markup.Kind  `json:"type"`
	Token    markup.Token `json:"token"`
	Children []TokenNode  `json:"children,omitempty"`
}

type diagnosticDTO struct {
	Extension string `json:"extension"`
	Line      int    `json:"line"`
	Offset    int    `json:"offset"`
	Error     string `json:"error"`
}

// TokenTree converts tokens to their JSON shape.
func TokenTree(tokens []markup.Token) []TokenNode {
	out := make([]TokenNode, 0, len(tokens))
	for _, t := range tokens {
		dto := TokenNode{Kind: t.Kind(), Token: t}
		if c, ok := t.(markup.Container); ok && len(c.Inline()) > 0 {
			dto.Children = TokenTree(c.Inline())
		}
		out = append(out, dto)
	}
	return out
}

// handleTokens returns the token stream of one document.
//
// GET /api/tokens?key=journal/2025-07-21
func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing key")
		return
	}
	text, err := s.deps.Store.Get(r.Context(), key)
	if err != nil {
		s.storeError(w, "api tokens", key, err)
		return
	}
	res := s.deps.Registry.Tokenize(text)
	resp := tokensResponse{Key: key, Tokens: TokenTree(res.Tokens), Diagnostics: make([]diagnosticDTO, 0, len(res.Diagnostics))}
	for _, d := range res.Diagnostics {
		resp.Diagnostics = append(resp.Diagnostics, diagnosticDTO{Extension: d.Extension, Line: d.Line, Offset: d.Offset, Error: d.Err.Error()})
	}
	writeJSON(w, http.StatusOK, resp)
}

type toggleRequest struct {
	Key  string `json:"key"`
	Line int    `json:"line"`
	// Checked, when set, writes that state instead of flipping.
	Checked *bool `json:"checked,omitempty"`
}

type toggleResponse struct {
	Key     string `json:"key"`
	Line    int    `json:"line"`
	Checked bool   `json:"checked"`
}

// handleToggle flips (or sets) one checkbox.
//
// POST /api/toggle {"key": "...", "line": 3}
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil || req.Key == "" {
		writeError(w, http.StatusBadRequest, "body must be {\"key\": string, \"line\": int}")
		return
	}

	var (
		checked bool
		err     error
	)
	if req.Checked != nil {
		checked = *req.Checked
		err = edit.Set(r.Context(), s.deps.Store, req.Key, req.Line, checked)
	} else {
		checked, err = edit.Toggle(r.Context(), s.deps.Store, req.Key, req.Line)
	}
	if err != nil {
		s.storeError(w, "api toggle", req.Key, err)
		return
	}
	appLog.Info("checkbox updated", "doc", req.Key, "line", req.Line, "checked", checked)
	writeJSON(w, http.StatusOK, toggleResponse{Key: req.Key, Line: req.Line, Checked: checked})
}

// handleReminders lists upcoming reminders without delivering them.
func (s *Server) handleReminders(w http.ResponseWriter, r *http.Request) {
	rems, err := s.deps.Scanner.Upcoming(r.Context())
	if err != nil {
		appLog.Error("api reminders failed", err)
		writeError(w, http.StatusInternalServerError, "failed to materialize reminders")
		return
	}
	if rems == nil {
		rems = []model.Reminder{}
	}
	writeJSON(w, http.StatusOK, rems)
}

type nextResponse struct {
	Rule  string         `json:"rule"`
	Kind  string         `json:"kind"`
	From  datetime.Date  `json:"from"`
	Next  *datetime.Date `json:"next"`
	Error string         `json:"error,omitempty"`
}

// handleNext evaluates a rule text.
//
// GET /api/next?rule=every+2+weeks+on+friday&from=2025-07-01
func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("rule")
	if text == "" {
		writeError(w, http.StatusBadRequest, "missing rule")
		return
	}
	from, err := dateParam(r, "from", s.today())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rule, perr := recur.Parse(text)
	resp := nextResponse{Rule: text, Kind: rule.Kind.String(), From: from}
	if perr != nil {
		resp.Error = perr.Error()
	} else if next, ok := recur.NextOnOrAfter(rule, from); ok {
		resp.Next = &next
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCalendar serves the next days of items as an iCalendar feed.
//
// GET /calendar.ics?days=14 (default horizon_days)
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	days := parseIntDefault(r.URL.Query().Get("days"), s.cfg.HorizonDays)
	if days <= 0 || days > maxRangeDays {
		days = s.cfg.HorizonDays
	}
	from := s.today()
	res, err := s.deps.Agenda.Range(r.Context(), from, from.AddDays(days))
	if err != nil {
		appLog.Error("calendar feed: aggregate failed", err)
		writeError(w, http.StatusInternalServerError, "failed to aggregate")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := ics.Write(w, res.All(), ics.Options{Location: s.loc, Now: s.deps.Now()}); err != nil {
		appLog.Error("failed to write calendar", err)
	}
}

func (s *Server) storeError(w http.ResponseWriter, op, key string, err error) {
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		writeError(w, http.StatusNotFound, "document not found")
	case errors.Is(err, docstore.ErrInvalidKey):
		writeError(w, http.StatusBadRequest, "invalid key")
	case errors.Is(err, edit.ErrNoCheckbox), errors.Is(err, edit.ErrLineOutOfRange):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		appLog.Error(op+" failed", err, "doc", key)
		writeError(w, http.StatusInternalServerError, "store error")
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

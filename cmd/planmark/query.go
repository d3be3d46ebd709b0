package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"planmark/internal/agenda"
	"planmark/internal/config"
	"planmark/internal/datetime"
	"planmark/internal/edit"
	"planmark/internal/model"
	"planmark/internal/recur"
	"planmark/internal/remind"
	"planmark/internal/web"
)

var (
	dateColor   = color.New(color.FgCyan, color.Bold)
	timeColor   = color.New(color.FgYellow)
	doneColor   = color.New(color.FgGreen)
	warnColor   = color.New(color.FgRed)
	sourceColor = color.New(color.Faint)
)

var (
	agendaDate   string
	agendaDays   int
	reminderDays int
	nextFrom     string
)

var agendaCmd = &cobra.Command{
	Use:   "agenda",
	Short: "Print scheduled and recurring items",
	Args:  cobra.NoArgs,
	RunE:  runAgenda,
}

var tokensCmd = &cobra.Command{
	Use:   "tokens [key]",
	Short: "Print the token stream of a document as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokens,
}

var toggleCmd = &cobra.Command{
	Use:   "toggle [key] [line]",
	Short: "Flip the checkbox on a zero-based line",
	Args:  cobra.ExactArgs(2),
	RunE:  runToggle,
}

var remindersCmd = &cobra.Command{
	Use:   "reminders",
	Short: "List upcoming reminders without delivering them",
	Args:  cobra.NoArgs,
	RunE:  runReminders,
}

var nextCmd = &cobra.Command{
	Use:   "next [rule]",
	Short: "Show the next date a repeat rule falls on",
	Args:  cobra.ExactArgs(1),
	RunE:  runNext,
}

func init() {
	agendaCmd.Flags().StringVar(&agendaDate, "date", "", "first date (default today)")
	agendaCmd.Flags().IntVar(&agendaDays, "days", 1, "number of days to show")
	remindersCmd.Flags().IntVar(&reminderDays, "days", 0, "override horizon_days")
	nextCmd.Flags().StringVar(&nextFrom, "from", "", "evaluate from this date (default today)")
}

func parseDateFlag(v string, def datetime.Date) (datetime.Date, error) {
	if v == "" {
		return def, nil
	}
	d, ok := datetime.ParseDate(v)
	if !ok {
		return datetime.Date{}, fmt.Errorf("invalid date %q", v)
	}
	return d, nil
}

func runAgenda(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	from, err := parseDateFlag(agendaDate, datetime.DateOf(a.now()))
	if err != nil {
		return err
	}
	if agendaDays < 1 {
		return fmt.Errorf("--days must be positive")
	}
	res, err := a.agenda.Range(cmd.Context(), from, from.AddDays(agendaDays-1))
	if err != nil {
		return err
	}
	printAgenda(cmd.OutOrStdout(), res)
	return nil
}

// printAgenda writes one block per date; checked items get an x marker.
func printAgenda(w io.Writer, res *agenda.Result) {
	dates := res.Dates()
	if len(dates) == 0 {
		fmt.Fprintln(w, "nothing scheduled")
	}
	for i, d := range dates {
		if i > 0 {
			fmt.Fprintln(w)
		}
		dateColor.Fprintf(w, "%s %s\n", d, d.Weekday())
		for _, it := range res.Items(d) {
			printItem(w, it)
		}
	}
	for _, warn := range res.Warnings {
		warnColor.Fprintf(w, "warning: %s:%d: %v\n", warn.DocKey, warn.Line, warn.Err)
	}
}

func printItem(w io.Writer, it model.Item) {
	when := "all day    "
	if it.Time != nil {
		when = it.Time.String()
		if it.EndTime != nil {
			when += "-" + it.EndTime.String()
		} else {
			when += "      "
		}
	}
	mark := "   "
	if it.IsCheckboxTask {
		mark = "[ ]"
		if it.Checked {
			mark = doneColor.Sprint("[x]")
		}
	}
	fmt.Fprintf(w, "  %s %s %s ", timeColor.Sprint(when), mark, it.Text)
	sourceColor.Fprintf(w, "(%s:%d)\n", it.SourceDocKey, it.SourceLine)
}

func runTokens(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	text, err := a.store.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	res := a.registry.Tokenize(text)
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(web.TokenTree(res.Tokens)); err != nil {
		return err
	}
	for _, d := range res.Diagnostics {
		warnColor.Fprintf(cmd.ErrOrStderr(), "diagnostic: %v\n", d)
	}
	return nil
}

func runToggle(cmd *cobra.Command, args []string) error {
	line, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid line %q", args[1])
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	checked, err := edit.Toggle(cmd.Context(), a.store, args[0], line)
	if err != nil {
		return err
	}
	state := "unchecked"
	if checked {
		state = doneColor.Sprint("checked")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s:%d %s\n", args[0], line, state)
	return nil
}

func runReminders(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if reminderDays > 0 {
		a.scanner = remind.NewScanner(a.agenda, remind.Options{
			Location:    a.cfg.Location(),
			HorizonDays: reminderDays,
		})
	}
	rems, err := a.scanner.Upcoming(cmd.Context())
	if err != nil {
		return err
	}
	printReminders(cmd.OutOrStdout(), rems)
	return nil
}

func printReminders(w io.Writer, rems []model.Reminder) {
	if len(rems) == 0 {
		fmt.Fprintln(w, "no upcoming reminders")
		return
	}
	for _, r := range rems {
		fmt.Fprintf(w, "%s  %s ", timeColor.Sprint(r.FireAt.Format("2006-01-02 15:04")), r.Text)
		sourceColor.Fprintf(w, "(%s:%d)\n", r.Source.DocKey, r.Source.Line)
	}
}

func runNext(cmd *cobra.Command, args []string) error {
	rule, err := recur.Parse(args[0])
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	from, err := parseDateFlag(nextFrom, datetime.DateOf(timeNow().In(cfg.Location())))
	if err != nil {
		return err
	}
	next, ok := recur.NextOnOrAfter(rule, from)
	if !ok {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: no date on or after %s\n", rule.Kind, from)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", dateColor.Sprint(next.String()), next.Weekday())
	return nil
}

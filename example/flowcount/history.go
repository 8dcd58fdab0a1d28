package main

import (
	"context"
	"errors"
	"fmt"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/swdee/go-planktrack/store"
	"go.uber.org/multierr"
	"io"
	"os"
	"sort"
	"strings"
)

func historyCommand(a *app) *cobra.Command {

	var (
		location string
		limit    int
		totals   bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored counting sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.history(cmd.Context(), os.Stdout, location, limit, totals)
		},
	}

	cmd.Flags().StringVar(&location, "location", "", "Only sessions from this location")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum sessions listed, 0 for all")
	cmd.Flags().BoolVar(&totals, "totals", false, "Show species totals across the sessions")

	return cmd
}

func (a *app) history(ctx context.Context, w io.Writer, location string, limit int,
	totals bool) (err error) {

	if a.cfg.Database == "" {
		return errors.New("no session database configured")
	}

	st, err := store.Open(a.cfg.Database)

	if err != nil {
		return err
	}

	defer func() {
		err = multierr.Append(err, st.Close())
	}()

	if totals {
		counts, err := st.SpeciesTotals(ctx, location)

		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(w, totalsTable(counts))
		return err
	}

	sessions, err := st.ListSessions(ctx, location, limit)

	if err != nil {
		return err
	}

	if len(sessions) == 0 {
		_, err = fmt.Fprintln(w, "No sessions stored")
		return err
	}

	_, err = fmt.Fprintln(w, sessionsTable(sessions))

	return err
}

// sessionsTable renders one row per session with its top species
func sessionsTable(sessions []store.Session) string {

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Started", "Location", "Source", "Frames", "Duration",
		"Total", "Species"})

	for _, s := range sessions {
		t.AppendRow(table.Row{
			s.StartedAt.Local().Format("2006-01-02 15:04"),
			s.Location,
			s.Source,
			s.Frames,
			fmt.Sprintf("%.1fs", s.DurationSeconds),
			s.Total,
			topSpecies(s.Counts, 3),
		})
	}

	t.SetStyle(table.StyleLight)

	return t.Render()
}

// topSpecies lists the n most counted classes, eg: "Chlorella 12, Dunaliella 3"
func topSpecies(counts map[string]int, n int) string {

	entries := lo.Entries(counts)

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Value != entries[j].Value {
			return entries[i].Value > entries[j].Value
		}
		return entries[i].Key < entries[j].Key
	})

	if len(entries) > n {
		entries = entries[:n]
	}

	return strings.Join(lo.Map(entries, func(e lo.Entry[string, int], _ int) string {
		return fmt.Sprintf("%s %d", e.Key, e.Value)
	}), ", ")
}

func totalsTable(counts map[string]int) string {

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Species", "Count"})

	keys := lo.Keys(counts)
	sort.Strings(keys)

	for _, name := range keys {
		t.AppendRow(table.Row{name, counts[name]})
	}

	t.AppendFooter(table.Row{"Total", lo.Sum(lo.Values(counts))})
	t.SetStyle(table.StyleLight)

	return t.Render()
}

package report

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/xeptore/zotify/orchestrator"
	"github.com/xeptore/zotify/spotify/api"
	"github.com/xeptore/zotify/unit"
)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	fd := f.Fd()

	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func style(styled bool) table.Style {
	if styled {
		return table.StyleRounded
	}

	return table.StyleDefault
}

type Options struct {
	PrintSkips bool
	Styled     bool
}

// OptionsFor styles output for w.
func OptionsFor(w io.Writer, printSkips bool) Options {
	return Options{PrintSkips: printSkips, Styled: IsTerminal(w)}
}

func newTable(w io.Writer, styled bool, header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(style(styled))
	tw.AppendHeader(header)

	return tw
}

// Summary writes the totals of s, followed by a table of skipped items when
// opts.PrintSkips is set and a table of failures.
func Summary(w io.Writer, s *orchestrator.Summary, opts Options) error {
	totals := fmt.Sprintf(
		"%d completed, %d skipped, %d failed, %d planned, %s downloaded",
		s.Completed(),
		s.Skipped(),
		s.Failed(),
		s.Planned(),
		unit.FormatBytes(s.Bytes),
	)
	if opts.Styled {
		totals = text.Bold.Sprint(totals)
	}
	if _, err := fmt.Fprintln(w, totals); nil != err {
		return fmt.Errorf("failed to write summary: %v", err)
	}

	if opts.PrintSkips && s.Skipped() > 0 {
		tw := newTable(w, opts.Styled, table.Row{"#", "Collection", "ID", "Title", "Reason", "Path"})
		tw.SetTitle("Skipped")
		for _, e := range s.Entries {
			if e.Status == orchestrator.StatusSkipped {
				tw.AppendRow(table.Row{e.Ordinal, e.Collection, e.ID, e.Title, e.Reason, e.Path})
			}
		}
		tw.SetColumnConfigs([]table.ColumnConfig{{Number: 1, Align: text.AlignRight}}) //nolint:exhaustruct
		tw.Render()
	}

	if s.Failed() > 0 {
		tw := newTable(w, opts.Styled, table.Row{"#", "Collection", "ID", "Title", "State", "Error"})
		tw.SetTitle("Failed")
		for _, e := range s.Entries {
			if e.Status == orchestrator.StatusFailed {
				tw.AppendRow(table.Row{e.Ordinal, e.Collection, e.ID, e.Title, e.State.String(), e.Reason})
			}
		}
		tw.SetColumnConfigs([]table.ColumnConfig{ //nolint:exhaustruct
			{Number: 1, Align: text.AlignRight},
			{Number: 6, WidthMax: 80},
		})
		tw.Render()
	}

	return nil
}

// Plan writes the items a dry run would download.
func Plan(w io.Writer, s *orchestrator.Summary, opts Options) {
	tw := newTable(w, opts.Styled, table.Row{"#", "Collection", "ID", "Title", "Path"})
	tw.SetTitle("Planned")
	for _, e := range s.Entries {
		if e.Status == orchestrator.StatusPlanned {
			tw.AppendRow(table.Row{e.Ordinal, e.Collection, e.ID, e.Title, e.Path})
		}
	}
	tw.Render()
}

// SearchHits writes hits numbered from 1, the numbers selection refers to.
func SearchHits(w io.Writer, hits []api.SearchHit, opts Options) {
	tw := newTable(w, opts.Styled, table.Row{"#", "Category", "Name", "Detail"})
	for i, h := range hits {
		tw.AppendRow(table.Row{strconv.Itoa(i + 1), h.Category, h.Name, h.Detail})
	}
	tw.Render()
}

// Playlists writes playlists numbered from 1.
func Playlists(w io.Writer, playlists []api.PlaylistSummary, opts Options) {
	tw := newTable(w, opts.Styled, table.Row{"#", "Name", "Owner", "Tracks"})
	for i, p := range playlists {
		tw.AppendRow(table.Row{strconv.Itoa(i + 1), p.Name, p.Owner, p.TrackCount})
	}
	tw.Render()
}

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"skylight/internal/config"
	"skylight/internal/history"
)

func newHistoryCmd(stdout io.Writer) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent update activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd.Context(), stdout, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", history.DefaultLimit, "Number of entries to show")
	return cmd
}

func runHistory(ctx context.Context, w io.Writer, limit int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if config.GetBool(config.KeyHistoryDisabled) {
		_, _ = fmt.Fprintln(w, "Update history is disabled (history.disabled).")
		return nil
	}
	path, err := config.HistoryPath()
	if err != nil {
		return err
	}
	store, err := history.Open(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	entries, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}
	printHistory(w, entries)
	return nil
}

func printHistory(w io.Writer, entries []history.Entry) {
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, "No update activity recorded yet.")
		return
	}
	timeStyle := lipgloss.NewStyle().Foreground(dimColor).Width(16)
	typeStyle := lipgloss.NewStyle().Foreground(primaryColor).Bold(true).Width(14)
	failStyle := lipgloss.NewStyle().Foreground(errorColor).Bold(true).Width(14)
	detailStyle := lipgloss.NewStyle().Foreground(textColor)

	for _, e := range entries {
		kind := typeStyle.Render(e.Type)
		if e.Failed() {
			kind = failStyle.Render(e.Type)
		}
		_, _ = fmt.Fprintln(w, timeStyle.Render(humanize.Time(e.RecordedAt))+kind+detailStyle.Render(historyDetail(e)))
	}
}

func historyDetail(e history.Entry) string {
	switch {
	case e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.ErrorKind, e.ErrorMessage)
	case e.Path != "" && e.Total > 0:
		return fmt.Sprintf("%s %s (%s)", e.Version, e.Path, humanize.Bytes(e.Total))
	case e.Path != "":
		return fmt.Sprintf("%s %s", e.Version, e.Path)
	default:
		return e.Version
	}
}

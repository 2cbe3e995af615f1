package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"skylight/internal/ui"
	"skylight/internal/update"
)

var (
	primaryColor = lipgloss.Color("#7D56F4")
	dimColor     = lipgloss.Color("#6272A4")
	textColor    = lipgloss.Color("#F8F8F2")
	successColor = lipgloss.Color("#50FA7B")
	errorColor   = lipgloss.Color("#FF5555")
)

// ExitSummary holds data for the summary shown when the update screen exits.
type ExitSummary struct {
	Version           string
	Stats             ui.Stats
	InstallerLaunched bool
}

// printExitSummary prints a formatted exit summary to the writer.
// This is displayed after the screen exits alt screen mode.
func printExitSummary(w io.Writer, summary ExitSummary) {
	appStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(primaryColor)

	versionStyle := lipgloss.NewStyle().
		Foreground(dimColor)

	statsStyle := lipgloss.NewStyle().
		Foreground(textColor)

	goodStyle := lipgloss.NewStyle().
		Foreground(successColor)

	badStyle := lipgloss.NewStyle().
		Foreground(errorColor)

	versionStr := ""
	if summary.Version != "" {
		versionStr = versionStyle.Render(fmt.Sprintf(" v%s", strings.TrimPrefix(summary.Version, "v")))
	}
	sessionStr := ""
	if !summary.Stats.StartTime.IsZero() {
		sessionStr = versionStyle.Render(fmt.Sprintf(" • %s session", formatDuration(time.Since(summary.Stats.StartTime))))
	}

	var parts []string
	if summary.Stats.Checks > 0 {
		parts = append(parts, pluralize(summary.Stats.Checks, "check"))
	}
	if summary.Stats.Downloads > 0 {
		parts = append(parts, pluralize(summary.Stats.Downloads, "download"))
	}
	statsStr := "No update activity"
	if len(parts) > 0 {
		statsStr = strings.Join(parts, ", ")
	}

	var outcome string
	switch {
	case summary.InstallerLaunched:
		outcome = goodStyle.Render(fmt.Sprintf("Installer for %s launched", summary.Stats.LastVersion))
	case summary.Stats.LastPhase == update.PhaseVerified:
		outcome = goodStyle.Render(fmt.Sprintf("Version %s is ready to install", summary.Stats.LastVersion))
	case summary.Stats.LastPhase == update.PhaseAvailable:
		outcome = statsStyle.Render(fmt.Sprintf("Version %s is available", summary.Stats.LastVersion))
	case summary.Stats.LastPhase == update.PhaseNotAvailable:
		outcome = statsStyle.Render("Up to date")
	case summary.Stats.LastError != "":
		outcome = badStyle.Render("Last error: " + summary.Stats.LastError)
	}

	_, _ = fmt.Fprintln(w, appStyle.Render("Skylight")+versionStr+sessionStr)
	line := statsStyle.Render(statsStr)
	if outcome != "" {
		line += statsStyle.Render(" • ") + outcome
	}
	_, _ = fmt.Fprintln(w, line)
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// formatDuration formats a duration into a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		if secs == 0 {
			return fmt.Sprintf("%dm", mins)
		}
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	if mins == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh %dm", hours, mins)
}

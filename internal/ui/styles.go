package ui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/termenv"
)

var (
	cPurple     = lipgloss.Color("99")
	cCyan       = lipgloss.Color("39")
	cNeonGreen  = lipgloss.Color("118")
	cRed        = lipgloss.Color("203")
	cGold       = lipgloss.Color("220")
	cGray       = lipgloss.Color("240")
	cBrightGray = lipgloss.Color("246")
	cLightGray  = lipgloss.Color("250")
	cWhite      = lipgloss.Color("255")
	cField      = lipgloss.Color("63")

	styleAppHeader = lipgloss.NewStyle().
			Foreground(cWhite).
			Background(cPurple).
			Bold(true).
			Padding(0, 1)

	styleHeaderInfo = lipgloss.NewStyle().
			Foreground(cLightGray).
			Background(cPurple)

	stylePane = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(cGray)

	styleField = lipgloss.NewStyle().
			Foreground(cField).
			Bold(true).
			Width(10)

	styleVal = lipgloss.NewStyle().Foreground(cWhite)

	styleVersion = lipgloss.NewStyle().Foreground(cGold).Bold(true)

	styleSectionHeader = lipgloss.NewStyle().
				Foreground(cGold).
				Bold(true)

	styleStatusBusy  = lipgloss.NewStyle().Foreground(cCyan).Bold(true)
	styleStatusReady = lipgloss.NewStyle().Foreground(cNeonGreen).Bold(true)
	styleStatusIdle  = lipgloss.NewStyle().Foreground(cBrightGray)
	styleStatusError = lipgloss.NewStyle().Foreground(cRed).Bold(true)

	styleErrorDetail = lipgloss.NewStyle().Foreground(cRed)

	styleSpinner = lipgloss.NewStyle().Foreground(cPurple)

	styleSuccessToast = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("#00FF00")).
				Foreground(cWhite).
				Padding(0, 1)

	styleFooterMuted = lipgloss.NewStyle().
				Foreground(cBrightGray)
)

// hasDarkBackground reports the terminal background; swapped in tests.
var hasDarkBackground = termenv.HasDarkBackground

func buildMarkdownRenderer(format string, width int) func(string) string {
	fallback := func(input string) string {
		return wordwrap.String(input, width)
	}

	style := strings.ToLower(strings.TrimSpace(format))
	switch style {
	case "plain":
		return fallback
	case "", "rich":
		style = "dark"
		if !hasDarkBackground() {
			style = "light"
		}
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return fallback
	}
	return func(input string) string {
		out, err := renderer.Render(input)
		if err != nil {
			return fallback(input)
		}
		return strings.TrimSpace(out)
	}
}

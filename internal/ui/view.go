package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"

	"skylight/internal/update"
)

// View implements tea.Model.
func (m *App) View() string {
	if !m.ready {
		return "Initializing..."
	}

	sections := []string{
		m.renderHeader(),
		m.renderStatus(),
	}
	if bar := m.renderProgress(); bar != "" {
		sections = append(sections, bar)
	}
	if release := m.renderRelease(); release != "" {
		sections = append(sections, release)
	}
	if errLine := m.renderError(); errLine != "" {
		sections = append(sections, errLine)
	}
	if m.showCopyToast && m.copyText != "" {
		msg := fmt.Sprintf("Copied '%s' to clipboard.", ansi.Truncate(m.copyText, max(m.width-30, 10), "…"))
		sections = append(sections, styleSuccessToast.Render(msg))
	}
	sections = append(sections, m.renderFooter())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *App) renderHeader() string {
	title := styleAppHeader.Render("Skylight")
	info := ""
	if m.version != "" {
		info = " v" + strings.TrimPrefix(m.version, "v")
	}
	if m.strategy != "" {
		info += " • " + m.strategy + " updates"
	}
	header := title + styleHeaderInfo.Render(info+" ")
	if gap := m.width - lipgloss.Width(header); gap > 0 {
		header += styleHeaderInfo.Render(strings.Repeat(" ", gap))
	}
	return header
}

func (m *App) renderStatus() string {
	p := m.session.Phase
	label := phaseLabel(p)
	var icon string
	var style lipgloss.Style
	switch {
	case m.busy():
		icon = m.spinner.View()
		style = styleStatusBusy
	case p == update.PhaseAvailable || p == update.PhaseVerified:
		icon = "●"
		style = styleStatusReady
	case p == update.PhaseCheckFailed || p == update.PhaseDownloadFailed || p == update.PhaseVerifyFailed:
		icon = "✗"
		style = styleStatusError
	default:
		icon = "○"
		style = styleStatusIdle
	}
	line := icon + " " + style.Render(label)
	if p == update.PhaseDownloading && m.session.LastProgress != nil {
		line += styleFooterMuted.Render(" " + transferLabel(*m.session.LastProgress))
	}
	if p == update.PhaseVerified && m.session.DownloadedPath != "" {
		line += styleFooterMuted.Render(" " + m.session.DownloadedPath)
	}
	return ansi.Truncate(line, max(m.width, minViewportWidth), "…")
}

func (m *App) renderProgress() string {
	p := m.session.Phase
	switch p {
	case update.PhaseDownloading, update.PhaseDownloaded, update.PhaseVerifying, update.PhaseVerified:
	default:
		return ""
	}
	percent := 0.0
	if m.session.LastProgress != nil {
		percent = m.session.LastProgress.Percent / 100
	}
	if p != update.PhaseDownloading {
		percent = 1
	}
	return m.bar.ViewAs(percent)
}

func (m *App) renderRelease() string {
	mf := m.session.Manifest
	if mf == nil || m.session.Phase == update.PhaseNotAvailable {
		return ""
	}
	rows := []string{
		styleField.Render("Version") + styleVersion.Render(mf.Version),
	}
	if mf.ReleaseDate != "" {
		rows = append(rows, styleField.Render("Released")+styleVal.Render(mf.ReleaseDate))
	}
	if mf.DeclaredSize > 0 {
		rows = append(rows, styleField.Render("Size")+styleVal.Render(humanize.Bytes(mf.DeclaredSize)))
	}
	rows = append(rows, "", styleSectionHeader.Render("Release notes"), stylePane.Render(m.notes.View()))
	return strings.Join(rows, "\n")
}

func (m *App) renderError() string {
	rec := m.session.LastError
	if rec == nil {
		return ""
	}
	text := fmt.Sprintf("%s: %s", rec.Kind, rec.Message)
	return styleErrorDetail.Render(ansi.Truncate(text, max(m.width, minViewportWidth), "…"))
}

func (m *App) renderFooter() string {
	return m.help.View(m.activeKeys())
}

// transferLabel formats a progress snapshot as "1.2 MB / 4.0 MB (30%)".
func transferLabel(s update.ProgressSnapshot) string {
	if s.TotalBytes == 0 {
		return humanize.Bytes(s.BytesTransferred)
	}
	return fmt.Sprintf("%s / %s (%.0f%%)", humanize.Bytes(s.BytesTransferred), humanize.Bytes(s.TotalBytes), s.Percent)
}

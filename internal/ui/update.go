package ui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"skylight/internal/update"
)

const (
	opCheck    = "check"
	opDownload = "download"
	opInstall  = "install"
)

// eventMsg carries one coordinator event into the update loop.
type eventMsg struct {
	event update.Event
}

// eventsClosedMsg reports that the coordinator closed its event stream.
type eventsClosedMsg struct{}

// opDoneMsg reports the end of a user-triggered operation.
type opDoneMsg struct {
	op  string
	err error
}

type copyToastTickMsg struct{}

func waitForEvent(events <-chan update.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{event: ev}
	}
}

func scheduleCopyToastTick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return copyToastTickMsg{}
	})
}

// startOp runs op against the coordinator off the update loop.
func (m *App) startOp(op string) tea.Cmd {
	if m.coord == nil || m.inFlight != "" {
		return nil
	}
	m.inFlight = op
	coord, ctx := m.coord, m.ctx
	run := func() tea.Msg {
		var err error
		switch op {
		case opCheck:
			_, err = coord.Check(ctx)
		case opDownload:
			_, err = coord.Download(ctx)
		case opInstall:
			err = coord.Install(ctx)
		}
		return opDoneMsg{op: op, err: err}
	}
	switch op {
	case opCheck:
		m.stats.Checks++
	case opDownload:
		m.stats.Downloads++
	}
	return tea.Batch(m.spinner.Tick, run)
}

// Update implements tea.Model.
func (m *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resize()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		m.syncSession()
		var cmd tea.Cmd
		if msg.event.Type == update.EventCheck && m.inFlight == "" {
			// Feed-driven work still animates the spinner.
			cmd = m.spinner.Tick
		}
		return m, tea.Batch(cmd, m.listen())

	case eventsClosedMsg:
		return m, nil

	case opDoneMsg:
		m.inFlight = ""
		m.syncSession()
		return m, nil

	case spinner.TickMsg:
		if m.busy() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case copyToastTickMsg:
		if !m.showCopyToast {
			return m, nil
		}
		if m.now().Sub(m.copyToastStart) >= copyToastDuration {
			m.showCopyToast = false
			return m, nil
		}
		return m, scheduleCopyToastTick()
	}
	return m, nil
}

func (m *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	keys := m.activeKeys()
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, keys.Check):
		return m, m.startOp(opCheck)
	case key.Matches(msg, keys.Download):
		return m, m.startOp(opDownload)
	case key.Matches(msg, keys.Install):
		return m, m.startOp(opInstall)
	case key.Matches(msg, keys.Copy):
		return m, m.copyDetail()
	case key.Matches(msg, keys.Up):
		m.notes.LineUp(1)
	case key.Matches(msg, keys.Down):
		m.notes.LineDown(1)
	case key.Matches(msg, keys.PageUp):
		m.notes.PageUp()
	case key.Matches(msg, keys.PageDown):
		m.notes.PageDown()
	}
	return m, nil
}

// copyDetail copies the downloaded artifact path, or the last error when
// there is no artifact.
func (m *App) copyDetail() tea.Cmd {
	text := strings.TrimSpace(m.session.DownloadedPath)
	if text == "" && m.session.LastError != nil {
		text = m.session.LastError.Message
	}
	if text == "" || m.copyFn == nil {
		return nil
	}
	if err := m.copyFn(text); err != nil {
		return nil
	}
	m.copyText = text
	m.showCopyToast = true
	m.copyToastStart = m.now()
	return scheduleCopyToastTick()
}

func (m *App) syncSession() {
	if m.coord == nil {
		return
	}
	m.session = m.coord.Session()
	m.refreshNotes()
}

package ui

import (
	"context"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"skylight/internal/update"
)

const (
	minViewportWidth  = 20
	minViewportHeight = 3
	copyToastDuration = 3 * time.Second
)

// Coordinator is the slice of the update coordinator the screen drives.
type Coordinator interface {
	Check(ctx context.Context) (update.CheckOutcome, error)
	Download(ctx context.Context) (update.Verification, error)
	Install(ctx context.Context) error
	Session() update.Session
	Events() <-chan update.Event
}

// Config configures the UI application.
type Config struct {
	Coordinator  Coordinator
	Version      string // Version string to display in header
	Strategy     string
	OutputFormat string
	// CheckOnStart triggers a check as soon as the screen opens.
	CheckOnStart bool
	Context      context.Context
}

// App implements the Bubble Tea model for the update screen.
type App struct {
	coord   Coordinator
	ctx     context.Context
	keys    KeyMap
	help    help.Model
	spinner spinner.Model
	bar     progress.Model
	notes   viewport.Model

	session      update.Session
	inFlight     string
	notesVersion string
	renderNotes  func(string) string

	version      string
	strategy     string
	outputFormat string
	checkOnStart bool

	width  int
	height int
	ready  bool

	copyText       string
	showCopyToast  bool
	copyToastStart time.Time

	copyFn func(string) error
	now    func() time.Time

	stats Stats
}

// Stats summarizes what happened on the screen, for the exit summary.
type Stats struct {
	StartTime   time.Time
	Checks      int
	Downloads   int
	LastPhase   update.Phase
	LastVersion string
	LastError   string
}

// NewApp creates the update screen.
func NewApp(cfg Config) *App {
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styleSpinner))
	bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(40))
	h := help.New()

	m := &App{
		coord:        cfg.Coordinator,
		ctx:          ctx,
		keys:         DefaultKeyMap(),
		help:         h,
		spinner:      sp,
		bar:          bar,
		notes:        viewport.New(minViewportWidth, minViewportHeight),
		version:      cfg.Version,
		strategy:     cfg.Strategy,
		outputFormat: cfg.OutputFormat,
		checkOnStart: cfg.CheckOnStart,
		copyFn:       clipboard.WriteAll,
		now:          time.Now,
	}
	m.stats.StartTime = m.now()
	if m.coord != nil {
		m.session = m.coord.Session()
	}
	m.renderNotes = buildMarkdownRenderer(m.outputFormat, minViewportWidth)
	return m
}

// Init implements tea.Model.
func (m *App) Init() tea.Cmd {
	cmds := []tea.Cmd{m.listen()}
	if m.checkOnStart {
		cmds = append(cmds, m.startOp(opCheck))
	}
	return tea.Batch(cmds...)
}

// Stats returns the session summary.
func (m *App) Stats() Stats {
	s := m.stats
	s.LastPhase = m.session.Phase
	if m.session.Manifest != nil {
		s.LastVersion = m.session.Manifest.Version
	}
	if m.session.LastError != nil {
		s.LastError = m.session.LastError.Message
	}
	return s
}

// Session returns the last session snapshot the screen rendered.
func (m *App) Session() update.Session {
	return m.session
}

func (m *App) listen() tea.Cmd {
	if m.coord == nil {
		return nil
	}
	return waitForEvent(m.coord.Events())
}

func (m *App) busy() bool {
	return m.inFlight != "" || m.session.Phase.Busy()
}

// activeKeys gates actions on the current phase.
func (m *App) activeKeys() KeyMap {
	p := m.session.Phase
	idle := m.inFlight == ""
	return m.keys.withPhase(
		idle && !p.Busy(),
		idle && p == update.PhaseAvailable,
		idle && p == update.PhaseVerified,
	)
}

func (m *App) resize() {
	width := m.width - 4
	if width < minViewportWidth {
		width = minViewportWidth
	}
	height := m.height - 12
	if height < minViewportHeight {
		height = minViewportHeight
	}
	m.notes.Width = width
	m.notes.Height = height
	m.bar.Width = min(width, 60)
	m.help.Width = m.width
	m.renderNotes = buildMarkdownRenderer(m.outputFormat, width)
	m.notesVersion = ""
	m.refreshNotes()
}

// refreshNotes re-renders the release notes when the held release changes.
func (m *App) refreshNotes() {
	mf := m.session.Manifest
	if mf == nil {
		if m.notesVersion != "" {
			m.notes.SetContent("")
			m.notesVersion = ""
		}
		return
	}
	if mf.Version == m.notesVersion {
		return
	}
	m.notesVersion = mf.Version
	notes := mf.ReleaseNotes
	if notes == "" {
		notes = "_No release notes._"
	}
	m.notes.SetContent(m.renderNotes(notes))
	m.notes.GotoTop()
}

package ui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	appErrors "skylight/internal/errors"
	"skylight/internal/update"
)

type fakeCoordinator struct {
	mu      sync.Mutex
	session update.Session
	calls   []string
	err     error
	after   func(*update.Session)
	events  chan update.Event
}

func newFakeCoordinator() *fakeCoordinator {
	return &fakeCoordinator{events: make(chan update.Event, 16)}
}

func (f *fakeCoordinator) do(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	if f.after != nil {
		f.after(&f.session)
	}
	return f.err
}

func (f *fakeCoordinator) Check(context.Context) (update.CheckOutcome, error) {
	return update.CheckOutcome{}, f.do("check")
}

func (f *fakeCoordinator) Download(context.Context) (update.Verification, error) {
	return update.Verification{}, f.do("download")
}

func (f *fakeCoordinator) Install(context.Context) error { return f.do("install") }

func (f *fakeCoordinator) Session() update.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

func (f *fakeCoordinator) Events() <-chan update.Event { return f.events }

func (f *fakeCoordinator) setSession(s update.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = s
}

func (f *fakeCoordinator) opCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newTestApp(t *testing.T, coord *fakeCoordinator) *App {
	t.Helper()
	app := NewApp(Config{Coordinator: coord, Version: "1.9.0", Strategy: "manual", OutputFormat: "plain"})
	app.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return app
}

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

// runCmd executes cmd and any batched children, feeding op results back into
// the app.
func runCmd(t *testing.T, app *App, cmd tea.Cmd) {
	t.Helper()
	if cmd == nil {
		return
	}
	switch msg := cmd().(type) {
	case tea.BatchMsg:
		for _, c := range msg {
			runCmd(t, app, c)
		}
	case opDoneMsg:
		app.Update(msg)
	}
}

var availableManifest = &update.Manifest{
	Version:      "2.0.0",
	ArtifactPath: "Skylight-2.0.0.AppImage",
	DeclaredSize: 3 * 1000 * 1000,
	ReleaseNotes: "Faster sync and fewer crashes.",
	ReleaseDate:  "2026-10-01",
}

func TestCheckKeyRunsCheckAndShowsRelease(t *testing.T) {
	coord := newFakeCoordinator()
	coord.after = func(s *update.Session) {
		s.Phase = update.PhaseAvailable
		s.Manifest = availableManifest
	}
	app := newTestApp(t, coord)

	_, cmd := app.Update(runeKey('c'))
	if app.inFlight != opCheck {
		t.Fatalf("inFlight = %q, want check", app.inFlight)
	}
	runCmd(t, app, cmd)

	if got := coord.opCalls(); len(got) != 1 || got[0] != "check" {
		t.Fatalf("calls = %v", got)
	}
	if app.inFlight != "" {
		t.Fatal("operation should be cleared once done")
	}
	view := app.View()
	for _, want := range []string{"Update available", "2.0.0", "2026-10-01", "3.0 MB", "Faster sync"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
	if app.Stats().Checks != 1 {
		t.Fatalf("Checks = %d", app.Stats().Checks)
	}
}

func TestActionsGatedByPhase(t *testing.T) {
	tests := []struct {
		name  string
		phase update.Phase
		key   rune
		want  string
	}{
		{"download needs available", update.PhaseIdle, 'd', ""},
		{"download from available", update.PhaseAvailable, 'd', opDownload},
		{"install needs verified", update.PhaseAvailable, 'i', ""},
		{"install from verified", update.PhaseVerified, 'i', opInstall},
		{"no check while downloading", update.PhaseDownloading, 'c', ""},
		{"check after failure", update.PhaseCheckFailed, 'c', opCheck},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coord := newFakeCoordinator()
			coord.setSession(update.Session{Phase: tt.phase, Manifest: availableManifest})
			app := newTestApp(t, coord)
			app.Update(runeKey(tt.key))
			if app.inFlight != tt.want {
				t.Fatalf("inFlight = %q, want %q", app.inFlight, tt.want)
			}
		})
	}
}

func TestSecondOperationIgnoredWhileInFlight(t *testing.T) {
	coord := newFakeCoordinator()
	coord.setSession(update.Session{Phase: update.PhaseAvailable, Manifest: availableManifest})
	app := newTestApp(t, coord)

	app.Update(runeKey('d'))
	_, cmd := app.Update(runeKey('c'))
	if cmd != nil || app.inFlight != opDownload {
		t.Fatalf("check started during download: inFlight=%q", app.inFlight)
	}
}

func TestFailedOperationShowsError(t *testing.T) {
	coord := newFakeCoordinator()
	coord.err = errors.New("boom")
	coord.after = func(s *update.Session) {
		s.Phase = update.PhaseCheckFailed
		s.LastError = &update.ErrorRecord{Kind: appErrors.CodeNetwork, Message: "fetch latest-linux.yml: status 503"}
	}
	app := newTestApp(t, coord)

	_, cmd := app.Update(runeKey('c'))
	runCmd(t, app, cmd)

	view := app.View()
	if !strings.Contains(view, "Update check failed") || !strings.Contains(view, "status 503") {
		t.Fatalf("view missing failure:\n%s", view)
	}
	if got := app.Stats().LastError; got != "fetch latest-linux.yml: status 503" {
		t.Fatalf("LastError = %q", got)
	}
}

func TestEventsRefreshSessionAndProgress(t *testing.T) {
	coord := newFakeCoordinator()
	app := newTestApp(t, coord)

	coord.setSession(update.Session{
		Phase:        update.PhaseDownloading,
		Manifest:     availableManifest,
		LastProgress: &update.ProgressSnapshot{Phase: update.PhaseDownloading, Percent: 50, BytesTransferred: 1_500_000, TotalBytes: 3_000_000},
	})
	_, cmd := app.Update(eventMsg{event: update.Event{Type: update.EventDownload}})
	if cmd == nil {
		t.Fatal("app should keep listening for events")
	}
	view := app.View()
	if !strings.Contains(view, "Downloading") || !strings.Contains(view, "1.5 MB / 3.0 MB (50%)") {
		t.Fatalf("view missing progress:\n%s", view)
	}
}

func TestWaitForEvent(t *testing.T) {
	events := make(chan update.Event, 1)
	events <- update.Event{Type: update.EventVerified}
	if msg, ok := waitForEvent(events)().(eventMsg); !ok || msg.event.Type != update.EventVerified {
		t.Fatalf("msg = %#v", msg)
	}
	close(events)
	if _, ok := waitForEvent(events)().(eventsClosedMsg); !ok {
		t.Fatal("closed stream should report eventsClosedMsg")
	}
}

func TestCopyKeyCopiesArtifactPath(t *testing.T) {
	coord := newFakeCoordinator()
	coord.setSession(update.Session{Phase: update.PhaseVerified, Manifest: availableManifest, DownloadedPath: "/dl/Skylight-2.0.0.AppImage"})
	app := newTestApp(t, coord)
	var copied string
	app.copyFn = func(s string) error {
		copied = s
		return nil
	}

	_, cmd := app.Update(runeKey('y'))
	if cmd == nil {
		t.Fatal("expected toast tick")
	}
	if copied != "/dl/Skylight-2.0.0.AppImage" {
		t.Fatalf("copied %q", copied)
	}
	if !strings.Contains(app.View(), "Copied '/dl/Skylight-2.0.0.AppImage' to clipboard.") {
		t.Fatalf("toast missing:\n%s", app.View())
	}
}

func TestCopyKeyFallsBackToError(t *testing.T) {
	coord := newFakeCoordinator()
	coord.setSession(update.Session{Phase: update.PhaseDownloadFailed, LastError: &update.ErrorRecord{Message: "status 502"}})
	app := newTestApp(t, coord)
	var copied string
	app.copyFn = func(s string) error {
		copied = s
		return nil
	}
	app.Update(runeKey('y'))
	if copied != "status 502" {
		t.Fatalf("copied %q", copied)
	}
}

func TestQuitKey(t *testing.T) {
	app := newTestApp(t, newFakeCoordinator())
	_, cmd := app.Update(runeKey('q'))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("q should quit")
	}
}

func TestCheckOnStart(t *testing.T) {
	coord := newFakeCoordinator()
	close(coord.events) // keep the event listener from blocking
	app := NewApp(Config{Coordinator: coord, OutputFormat: "plain", CheckOnStart: true})
	runCmd(t, app, app.Init())
	if got := coord.opCalls(); len(got) != 1 || got[0] != "check" {
		t.Fatalf("calls = %v", got)
	}
}

func TestViewBeforeResize(t *testing.T) {
	app := NewApp(Config{Coordinator: newFakeCoordinator(), OutputFormat: "plain"})
	if app.View() != "Initializing..." {
		t.Fatalf("view = %q", app.View())
	}
}

package main

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"skylight/internal/config"
	appErrors "skylight/internal/errors"
	"skylight/internal/history"
	"skylight/internal/ui"
	"skylight/internal/update"
)

const testArtifactName = "Skylight-2.0.0.AppImage"

// setupConfig isolates configuration in a temp dir and applies overrides.
func setupConfig(t *testing.T, overrides map[string]any) string {
	t.Helper()
	cleanup := config.ResetForTesting(t)
	t.Cleanup(cleanup)
	dir := t.TempDir()
	base := map[string]any{
		config.KeyDownloadDir:    filepath.Join(dir, "downloads"),
		config.KeyHistoryPath:    filepath.Join(dir, "history.db"),
		config.KeyCurrentVersion: "1.9.0",
		config.KeyCheckRetries:   1,
		config.KeyOutputFormat:   "plain",
	}
	for k, v := range overrides {
		base[k] = v
	}
	if err := config.ApplyOverrides(base); err != nil {
		t.Fatalf("apply overrides: %v", err)
	}
	return dir
}

func newTestReleaseServer(t *testing.T, version string, artifact []byte) *httptest.Server {
	t.Helper()
	sum := sha512.Sum512(artifact)
	digest := base64.StdEncoding.EncodeToString(sum[:])
	manifest := fmt.Sprintf(`version: %s
files:
  - url: %s
    sha512: %s
    size: %d
path: %s
sha512: %s
releaseDate: '2026-10-01T00:00:00.000Z'
`, version, testArtifactName, digest, len(artifact), testArtifactName, digest)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/latest-linux.yml":
			_, _ = w.Write([]byte(manifest))
		case "/" + testArtifactName:
			w.Header().Set("Content-Length", fmt.Sprint(len(artifact)))
			_, _ = w.Write(artifact)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type recordingSpawner struct {
	mu       sync.Mutex
	commands []update.Command
}

func (s *recordingSpawner) Spawn(c update.Command) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, c)
	return 4242, nil
}

func linuxPipeline(spawner update.Spawner) pipelineOptions {
	return pipelineOptions{platform: update.PlatformLinux, spawner: spawner}
}

func TestFlagOverridesOnlyExplicitFlags(t *testing.T) {
	root := newRootCmd(&bytes.Buffer{}, &bytes.Buffer{})
	if err := root.ParseFlags([]string{"--server-url", " https://r.example.com ", "--debug"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	got := flagOverrides(root.Flags())
	if got[config.KeyServerURL] != "https://r.example.com" {
		t.Fatalf("server url override = %v", got[config.KeyServerURL])
	}
	if got[config.KeyDebug] != true {
		t.Fatalf("debug override = %v", got[config.KeyDebug])
	}
	if _, ok := got[config.KeyStrategy]; ok {
		t.Fatal("unset flags must not override config")
	}
}

func TestRunHeadlessCheckReportsAvailable(t *testing.T) {
	srv := newTestReleaseServer(t, "2.0.0", bytes.Repeat([]byte("x"), 4096))
	setupConfig(t, map[string]any{config.KeyServerURL: srv.URL})

	var out, errOut bytes.Buffer
	if err := runHeadless(context.Background(), &out, &errOut, headlessOptions{pipeline: linuxPipeline(nil)}); err != nil {
		t.Fatalf("runHeadless: %v", err)
	}
	for _, want := range []string{"Version", "2.0.0", "is available", "skylight update"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRunHeadlessUpToDate(t *testing.T) {
	srv := newTestReleaseServer(t, "1.9.0", []byte("same"))
	setupConfig(t, map[string]any{config.KeyServerURL: srv.URL})

	var out bytes.Buffer
	if err := runHeadless(context.Background(), &out, &bytes.Buffer{}, headlessOptions{download: true, pipeline: linuxPipeline(nil)}); err != nil {
		t.Fatalf("runHeadless: %v", err)
	}
	if !strings.Contains(out.String(), "up to date") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestRunHeadlessUpdateInstallsAndRecordsHistory(t *testing.T) {
	artifact := bytes.Repeat([]byte("skylight"), 10_000)
	srv := newTestReleaseServer(t, "2.0.0", artifact)
	dir := setupConfig(t, map[string]any{config.KeyServerURL: srv.URL})
	spawner := &recordingSpawner{}

	var out bytes.Buffer
	err := runHeadless(context.Background(), &out, &bytes.Buffer{}, headlessOptions{download: true, install: true, pipeline: linuxPipeline(spawner)})
	if err != nil {
		t.Fatalf("runHeadless: %v", err)
	}

	artifactPath := filepath.Join(dir, "downloads", testArtifactName)
	data, err := os.ReadFile(artifactPath)
	if err != nil || !bytes.Equal(data, artifact) {
		t.Fatalf("artifact not written intact: %v", err)
	}
	if len(spawner.commands) != 1 || spawner.commands[0].Path != artifactPath {
		t.Fatalf("spawned %+v", spawner.commands)
	}
	if !strings.Contains(out.String(), "Installer for") || !strings.Contains(out.String(), "Exiting so the installer") {
		t.Fatalf("output = %q", out.String())
	}

	store, err := history.Open(context.Background(), filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer func() { _ = store.Close() }()
	entries, err := store.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	var types []string
	for i := len(entries) - 1; i >= 0; i-- {
		types = append(types, entries[i].Type)
	}
	want := []string{"available", "verified", "installing"}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("history = %v, want %v", types, want)
	}
}

func TestRunHeadlessMissingServerURL(t *testing.T) {
	setupConfig(t, nil)

	var errOut bytes.Buffer
	err := runHeadless(context.Background(), &bytes.Buffer{}, &errOut, headlessOptions{pipeline: linuxPipeline(nil)})
	if !appErrors.IsCode(err, appErrors.CodeConfiguration) {
		t.Fatalf("error = %v, want configuration_error", err)
	}
	if !strings.Contains(errOut.String(), "not configured") {
		t.Fatalf("stderr missing hint: %q", errOut.String())
	}
}

type fakeProgram struct {
	app *ui.App
}

func (p *fakeProgram) Run() (tea.Model, error) { return p.app, nil }
func (p *fakeProgram) Quit()                   {}

func TestRunInteractivePrintsSummary(t *testing.T) {
	setupConfig(t, map[string]any{config.KeyHistoryDisabled: true})

	var out bytes.Buffer
	var built *fakeProgram
	err := runInteractiveWith(context.Background(), &out, linuxPipeline(nil), func(_ context.Context, app *ui.App) programRunner {
		built = &fakeProgram{app: app}
		return built
	})
	if err != nil {
		t.Fatalf("runInteractiveWith: %v", err)
	}
	if built == nil {
		t.Fatal("program factory not called")
	}
	if !strings.Contains(out.String(), "Skylight") || !strings.Contains(out.String(), "No update activity") {
		t.Fatalf("summary = %q", out.String())
	}
}

func TestRunInteractiveNilFactory(t *testing.T) {
	if err := runInteractiveWith(context.Background(), &bytes.Buffer{}, pipelineOptions{}, nil); err == nil {
		t.Fatal("expected error for nil factory")
	}
}

func TestBuildPipelineSelectsStrategy(t *testing.T) {
	setupConfig(t, map[string]any{
		config.KeyServerURL:       "https://r.example.com",
		config.KeyStrategy:        config.StrategyAuto,
		config.KeyHistoryDisabled: true,
	})
	p, err := buildPipeline(context.Background(), linuxPipeline(nil))
	if err != nil {
		t.Fatalf("buildPipeline: %v", err)
	}
	defer p.Close()
	if p.strategy != config.StrategyAuto || p.coord.Strategy().Name() != "auto" {
		t.Fatalf("strategy = %s/%s", p.strategy, p.coord.Strategy().Name())
	}
	if p.store != nil {
		t.Fatal("history should stay closed when disabled")
	}
	if got := p.coord.Config(); got.CurrentVersion != "1.9.0" || got.Platform != update.PlatformLinux {
		t.Fatalf("config = %+v", got)
	}
}

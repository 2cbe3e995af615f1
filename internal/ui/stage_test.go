package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"

	"skylight/internal/update"
)

func TestStageForEvent(t *testing.T) {
	tests := []struct {
		name       string
		event      update.Event
		wantStage  Stage
		wantDetail string
		wantOK     bool
	}{
		{"check", update.Event{Type: update.EventCheck}, StageChecking, "Contacting", true},
		{"available", update.Event{Type: update.EventAvailable, Version: "2.0.0"}, StageDone, "Version 2.0.0 is available", true},
		{"not available", update.Event{Type: update.EventNotAvailable}, StageDone, "up to date", true},
		{"download with total", update.Event{Type: update.EventDownload,
			Progress: update.EventProgress{Percent: 25, Transferred: 1_000_000, Total: 4_000_000}}, StageDownloading, "1.0 MB of 4.0 MB (25%)", true},
		{"download without total", update.Event{Type: update.EventDownload,
			Progress: update.EventProgress{Transferred: 2048}}, StageDownloading, "2.0 kB", true},
		{"downloaded", update.Event{Type: update.EventDownloaded, Progress: update.EventProgress{Transferred: 4_000_000}}, StageVerifying, "4.0 MB", true},
		{"verified", update.Event{Type: update.EventVerified, Version: "2.0.0"}, StageDone, "ready to install", true},
		{"installing", update.Event{Type: update.EventInstalling}, StageInstalling, "installer", true},
		{"error", update.Event{Type: update.EventError, Err: &update.ErrorRecord{Message: "status 500"}}, StageFailed, "status 500", true},
		{"unknown", update.Event{}, StageIdle, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage, detail, ok := StageForEvent(tt.event)
			if stage != tt.wantStage || ok != tt.wantOK {
				t.Fatalf("StageForEvent = (%v, %q, %v), want (%v, _, %v)", stage, detail, ok, tt.wantStage, tt.wantOK)
			}
			if !strings.Contains(detail, tt.wantDetail) {
				t.Fatalf("detail %q missing %q", detail, tt.wantDetail)
			}
		})
	}
}

func TestReporterFuncNilSafe(t *testing.T) {
	var f ReporterFunc
	f.Stage(StageChecking, "ignored")

	var got Stage
	ReporterFunc(func(s Stage, _ string) { got = s }).Stage(StageInstalling, "")
	if got != StageInstalling {
		t.Fatalf("stage = %v", got)
	}
}

func TestPhaseLabelCoversAllPhases(t *testing.T) {
	for p := update.PhaseIdle; p <= update.PhaseInstalling; p++ {
		if label := phaseLabel(p); label == "" || label == p.String() {
			t.Errorf("phase %s has no label", p)
		}
	}
}

func TestMarkdownRenderer(t *testing.T) {
	orig := hasDarkBackground
	hasDarkBackground = func() bool { return false }
	defer func() { hasDarkBackground = orig }()

	plain := buildMarkdownRenderer("plain", 20)
	if got := plain("one two three four five six"); !strings.Contains(got, "\n") {
		t.Fatalf("plain renderer should wrap: %q", got)
	}
	for _, format := range []string{"rich", "light", "unknown-style"} {
		out := ansi.Strip(buildMarkdownRenderer(format, 60)("**Bold** notes"))
		if !strings.Contains(out, "Bold") || !strings.Contains(out, "notes") {
			t.Fatalf("%s renderer lost text: %q", format, out)
		}
	}
}

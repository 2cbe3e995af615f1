package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"

	"skylight/internal/ui"
)

type spinnerEvent struct {
	stage  ui.Stage
	detail string
}

// progressSpinner renders headless stage reports on a single terminal line
// using a bubbles spinner frame set, without a tea program.
type progressSpinner struct {
	writer io.Writer
	style  spinner.Spinner

	events chan spinnerEvent
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once

	mu       sync.Mutex
	frameIdx int
}

var _ ui.Reporter = (*progressSpinner)(nil)

func newProgressSpinner(w io.Writer) *progressSpinner {
	return newCustomProgressSpinner(w, spinner.Line)
}

func newCustomProgressSpinner(w io.Writer, style spinner.Spinner) *progressSpinner {
	if w == nil {
		w = io.Discard
	}
	if len(style.Frames) == 0 {
		style = spinner.Line
	}
	if style.FPS <= 0 {
		style.FPS = spinner.Line.FPS
	}
	sp := &progressSpinner{
		writer: w,
		style:  style,
		events: make(chan spinnerEvent, 8),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	go sp.loop()
	return sp
}

// Stage implements ui.Reporter. Reports are dropped when the spinner is
// behind; the next one supersedes them.
func (s *progressSpinner) Stage(stage ui.Stage, detail string) {
	if s == nil {
		return
	}
	select {
	case <-s.stopCh:
		return
	default:
	}
	select {
	case s.events <- spinnerEvent{stage: stage, detail: detail}:
	default:
	}
}

// Stop clears the line and waits for the render loop to exit.
func (s *progressSpinner) Stop() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		close(s.stopCh)
		<-s.doneCh
	})
}

func (s *progressSpinner) loop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.style.FPS)
	defer ticker.Stop()

	var current spinnerEvent
	hasStage := false

	for {
		select {
		case <-s.stopCh:
			// Flush reports queued before Stop.
			for len(s.events) > 0 {
				s.render(<-s.events)
				hasStage = true
			}
			if hasStage {
				s.clearLine()
			}
			return
		case ev := <-s.events:
			current = ev
			hasStage = true
			s.render(current)
		case <-ticker.C:
			if hasStage {
				s.render(current)
			}
		}
	}
}

func (s *progressSpinner) render(ev spinnerEvent) {
	frame := s.nextFrame()
	_, _ = fmt.Fprintf(s.writer, "\r\033[2K%s %s", frame, formatStageMessage(ev.stage, ev.detail))
}

func (s *progressSpinner) clearLine() {
	_, _ = fmt.Fprint(s.writer, "\r\033[2K")
}

func (s *progressSpinner) nextFrame() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	frame := s.style.Frames[s.frameIdx%len(s.style.Frames)]
	s.frameIdx++
	return frame
}

var stageMessages = map[ui.Stage]string{
	ui.StageChecking:    "Checking for updates...",
	ui.StageDownloading: "Downloading...",
	ui.StageVerifying:   "Verifying...",
	ui.StageInstalling:  "Installing...",
}

func formatStageMessage(stage ui.Stage, detail string) string {
	label := stageMessages[stage]
	if strings.TrimSpace(label) == "" {
		label = "Working..."
	}
	detail = strings.TrimSpace(detail)
	if detail == "" {
		return label
	}
	return fmt.Sprintf("%s %s", label, detail)
}

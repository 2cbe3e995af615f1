package ui

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"skylight/internal/update"
)

// Stage enumerates the high-level steps of an update run.
type Stage int

const (
	StageIdle Stage = iota
	StageChecking
	StageDownloading
	StageVerifying
	StageInstalling
	StageDone
	StageFailed
)

// Reporter receives stage notifications during a headless update run.
// Implementations should be safe for concurrent use.
type Reporter interface {
	Stage(stage Stage, detail string)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(stage Stage, detail string)

// Stage implements Reporter.
func (f ReporterFunc) Stage(stage Stage, detail string) {
	if f == nil {
		return
	}
	f(stage, detail)
}

// StageForEvent maps a pipeline event to the stage it reports and a one-line
// detail. ok is false for events that carry nothing to show.
func StageForEvent(ev update.Event) (stage Stage, detail string, ok bool) {
	switch ev.Type {
	case update.EventCheck:
		return StageChecking, "Contacting update server...", true
	case update.EventAvailable:
		return StageDone, fmt.Sprintf("Version %s is available", ev.Version), true
	case update.EventNotAvailable:
		return StageDone, "You're up to date", true
	case update.EventDownload:
		if ev.Progress.Total > 0 {
			return StageDownloading, fmt.Sprintf("%s of %s (%.0f%%)",
				humanize.Bytes(ev.Progress.Transferred), humanize.Bytes(ev.Progress.Total), ev.Progress.Percent), true
		}
		return StageDownloading, humanize.Bytes(ev.Progress.Transferred), true
	case update.EventDownloaded:
		return StageVerifying, fmt.Sprintf("Checking %s", humanize.Bytes(ev.Progress.Transferred)), true
	case update.EventVerified:
		return StageDone, fmt.Sprintf("Version %s is ready to install", ev.Version), true
	case update.EventInstalling:
		return StageInstalling, "Launching installer...", true
	case update.EventError:
		if ev.Err != nil {
			return StageFailed, ev.Err.Message, true
		}
		return StageFailed, "update failed", true
	}
	return StageIdle, "", false
}

// phaseLabel is the status line text for a session phase.
func phaseLabel(p update.Phase) string {
	switch p {
	case update.PhaseIdle:
		return "Press c to check for updates"
	case update.PhaseChecking:
		return "Checking for updates"
	case update.PhaseAvailable:
		return "Update available"
	case update.PhaseNotAvailable:
		return "You're up to date"
	case update.PhaseCheckFailed:
		return "Update check failed"
	case update.PhaseDownloading:
		return "Downloading"
	case update.PhaseDownloaded, update.PhaseVerifying:
		return "Verifying download"
	case update.PhaseVerified:
		return "Ready to install"
	case update.PhaseDownloadFailed:
		return "Download failed"
	case update.PhaseVerifyFailed:
		return "Download rejected"
	case update.PhaseInstalling:
		return "Launching installer"
	default:
		return p.String()
	}
}

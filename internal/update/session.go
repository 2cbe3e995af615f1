package update

import (
	"encoding/json"
	"errors"
	"time"

	appErrors "skylight/internal/errors"
)

// Phase is the discrete state of an update session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseChecking
	PhaseAvailable
	PhaseNotAvailable
	PhaseCheckFailed
	PhaseDownloading
	PhaseDownloaded
	PhaseDownloadFailed
	PhaseVerifying
	PhaseVerified
	PhaseVerifyFailed
	PhaseInstalling
)

var phaseNames = map[Phase]string{
	PhaseIdle:           "idle",
	PhaseChecking:       "checking",
	PhaseAvailable:      "available",
	PhaseNotAvailable:   "not-available",
	PhaseCheckFailed:    "check-failed",
	PhaseDownloading:    "downloading",
	PhaseDownloaded:     "downloaded",
	PhaseDownloadFailed: "download-failed",
	PhaseVerifying:      "verifying",
	PhaseVerified:       "verified",
	PhaseVerifyFailed:   "verify-failed",
	PhaseInstalling:     "installing",
}

// String returns the kebab-case name used in events and logs.
func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Busy reports whether work for the session is in flight.
func (p Phase) Busy() bool {
	switch p {
	case PhaseChecking, PhaseDownloading, PhaseDownloaded, PhaseVerifying, PhaseInstalling:
		return true
	default:
		return false
	}
}

// ProgressSnapshot is one point-in-time view of a transfer.
type ProgressSnapshot struct {
	Phase            Phase     `json:"phase"`
	Percent          float64   `json:"percent"`
	BytesTransferred uint64    `json:"transferred"`
	TotalBytes       uint64    `json:"total"`
	Timestamp        time.Time `json:"-"`
}

// ErrorRecord is the last failure observed by a session.
type ErrorRecord struct {
	Kind      appErrors.Code `json:"kind"`
	Message   string         `json:"message"`
	Cause     error          `json:"-"`
	Timestamp time.Time      `json:"timestamp"`
}

// MarshalJSON adds the underlying cause text when it differs from Message.
func (r ErrorRecord) MarshalJSON() ([]byte, error) {
	type plain ErrorRecord
	out := struct {
		plain
		Cause string `json:"cause,omitempty"`
	}{plain: plain(r)}
	if r.Cause != nil {
		if inner := errors.Unwrap(r.Cause); inner != nil && inner.Error() != r.Message {
			out.Cause = inner.Error()
		}
	}
	return json.Marshal(out)
}

func newErrorRecord(err error, now time.Time) *ErrorRecord {
	if err == nil {
		return nil
	}
	return &ErrorRecord{
		Kind:      appErrors.CodeOf(err),
		Message:   err.Error(),
		Cause:     err,
		Timestamp: now,
	}
}

// Session is the per-attempt lifecycle tracked by a Coordinator.
// Values returned from Coordinator.Session are copies.
type Session struct {
	Token          uint64
	Phase          Phase
	Manifest       *Manifest
	DownloadedPath string
	Verification   *Verification
	LastProgress   *ProgressSnapshot
	LastError      *ErrorRecord
}

func (s Session) clone() Session {
	out := s
	if s.Manifest != nil {
		m := *s.Manifest
		out.Manifest = &m
	}
	if s.Verification != nil {
		v := *s.Verification
		out.Verification = &v
	}
	if s.LastProgress != nil {
		p := *s.LastProgress
		out.LastProgress = &p
	}
	if s.LastError != nil {
		e := *s.LastError
		out.LastError = &e
	}
	return out
}

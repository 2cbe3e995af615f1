package update

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	appErrors "skylight/internal/errors"
)

// Config is the per-coordinator update configuration.
type Config struct {
	ServerURL      string
	CurrentVersion string
	// DownloadDir receives artifacts. Empty selects a directory under the
	// system temp dir.
	DownloadDir       string
	AutoInstallOnExit bool
	// Platform is the platform installers are dispatched for.
	Platform PlatformKind
}

// Strategy supplies the check, fetch and verify capabilities a Coordinator
// sequences.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, cfg Config) (CheckOutcome, error)
	Fetch(ctx context.Context, cfg Config, m Manifest, progress ProgressFunc) (LocalFile, error)
	Verify(ctx context.Context, file LocalFile, m Manifest) (Verification, error)
}

// NotificationKind classifies a message from a background update feed.
type NotificationKind int

const (
	NotifyAvailable NotificationKind = iota
	NotifyNotAvailable
	NotifyDownloadStarted
	NotifyProgress
	NotifyDownloaded
	NotifyError
)

// String returns the notification name.
func (k NotificationKind) String() string {
	switch k {
	case NotifyAvailable:
		return "available"
	case NotifyNotAvailable:
		return "not-available"
	case NotifyDownloadStarted:
		return "download-started"
	case NotifyProgress:
		return "progress"
	case NotifyDownloaded:
		return "downloaded"
	case NotifyError:
		return "error"
	default:
		return "unknown"
	}
}

// Notification is one message from a background update feed.
type Notification struct {
	Kind     NotificationKind
	Manifest Manifest
	Progress ProgressSnapshot
	File     LocalFile
	Err      error
}

// Notifier is implemented by strategies that discover updates on their own.
// Watch runs until ctx ends; deliver reports whether the coordinator accepted
// the notification.
type Notifier interface {
	Watch(ctx context.Context, cfg Config, deliver func(Notification) bool) error
}

// ManualStrategy performs each step only when the coordinator asks.
type ManualStrategy struct {
	resolver   *Resolver
	downloader *Downloader
	verifier   *Verifier
}

// NewManualStrategy wires the three pipeline stages. Nil stages get defaults.
func NewManualStrategy(r *Resolver, d *Downloader, v *Verifier) *ManualStrategy {
	if r == nil {
		r = NewResolver()
	}
	if d == nil {
		d = NewDownloader()
	}
	if v == nil {
		v = NewVerifier(nil)
	}
	return &ManualStrategy{resolver: r, downloader: d, verifier: v}
}

// Name implements Strategy.
func (s *ManualStrategy) Name() string { return "manual" }

// Resolve implements Strategy.
func (s *ManualStrategy) Resolve(ctx context.Context, cfg Config) (CheckOutcome, error) {
	return s.resolver.CheckForUpdate(ctx, cfg.ServerURL, cfg.CurrentVersion)
}

// Fetch implements Strategy. The artifact lands in a staging file of its own
// and only reaches its destination after the coordinator verifies it.
func (s *ManualStrategy) Fetch(ctx context.Context, cfg Config, m Manifest, progress ProgressFunc) (LocalFile, error) {
	dest := ArtifactDestination(cfg.DownloadDir, m.ArtifactPath)
	file, err := s.downloader.Download(ctx, ArtifactURL(cfg.ServerURL, m.ArtifactPath), stagingPath(dest), progress)
	if err != nil {
		return LocalFile{}, err
	}
	file.Destination = dest
	return file, nil
}

// Verify implements Strategy.
func (s *ManualStrategy) Verify(ctx context.Context, file LocalFile, m Manifest) (Verification, error) {
	return s.verifier.Verify(ctx, file.Path, m.Digest)
}

// ArtifactDestination places the artifact's base name inside dir.
func ArtifactDestination(dir, artifactPath string) string {
	if strings.TrimSpace(dir) == "" {
		dir = filepath.Join(os.TempDir(), "skylight-updates")
	}
	p := artifactPath
	if u, err := url.Parse(artifactPath); err == nil && u.Scheme != "" {
		p = u.Path
	}
	name := path.Base(strings.ReplaceAll(p, `\`, "/"))
	if name == "." || name == "/" || name == "" || name == ".." {
		name = "skylight-update"
	}
	return filepath.Join(dir, name)
}

func stagingPath(dest string) string {
	return fmt.Sprintf("%s.%s.part", dest, uuid.NewString())
}

// promoteArtifact moves a verified staging file onto its destination.
func promoteArtifact(file LocalFile) (string, error) {
	if file.Destination == "" || file.Destination == file.Path {
		return file.Path, nil
	}
	if err := os.Rename(file.Path, file.Destination); err != nil {
		return "", appErrors.New(appErrors.CodeStorage, fmt.Sprintf("move %s into place", file.Path), err)
	}
	return file.Destination, nil
}

// discardStaged removes a staging file whose session is gone.
func discardStaged(file LocalFile) {
	if file.Destination == "" || file.Destination == file.Path {
		return
	}
	_ = os.Remove(file.Path)
}

const (
	// DefaultPollInterval is the time between background checks.
	DefaultPollInterval = 6 * time.Hour
	// DefaultPollInitialDelay is the wait before the first background check.
	DefaultPollInitialDelay = 10 * time.Second
)

// AutoStrategy adds a background feed to the manual pipeline. It polls the
// server on a schedule and, with auto-download, fetches new releases itself.
type AutoStrategy struct {
	*ManualStrategy

	interval     time.Duration
	initialDelay time.Duration
	autoDownload bool
	lastChecked  func(context.Context) (time.Time, error)
	now          func() time.Time
	logger       Logger
}

// AutoOption configures an AutoStrategy.
type AutoOption func(*AutoStrategy)

// WithPollInterval sets the time between background checks.
func WithPollInterval(d time.Duration) AutoOption {
	return func(a *AutoStrategy) {
		if d > 0 {
			a.interval = d
		}
	}
}

// WithInitialDelay sets the wait before the first background check.
func WithInitialDelay(d time.Duration) AutoOption {
	return func(a *AutoStrategy) {
		if d >= 0 {
			a.initialDelay = d
		}
	}
}

// WithAutoDownload makes the feed download releases it discovers.
func WithAutoDownload(enabled bool) AutoOption {
	return func(a *AutoStrategy) {
		a.autoDownload = enabled
	}
}

// WithLastChecked supplies the time of the previous completed check so the
// first poll can honour the interval across restarts.
func WithLastChecked(fn func(context.Context) (time.Time, error)) AutoOption {
	return func(a *AutoStrategy) {
		a.lastChecked = fn
	}
}

// WithAutoLogger sets the diagnostic logger.
func WithAutoLogger(l Logger) AutoOption {
	return func(a *AutoStrategy) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAutoStrategy wraps manual capabilities with a polling feed.
func NewAutoStrategy(manual *ManualStrategy, opts ...AutoOption) *AutoStrategy {
	if manual == nil {
		manual = NewManualStrategy(nil, nil, nil)
	}
	a := &AutoStrategy{
		ManualStrategy: manual,
		interval:       DefaultPollInterval,
		initialDelay:   DefaultPollInitialDelay,
		now:            time.Now,
		logger:         defaultLogger("feed"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements Strategy.
func (a *AutoStrategy) Name() string { return "auto" }

// Watch implements Notifier.
func (a *AutoStrategy) Watch(ctx context.Context, cfg Config, deliver func(Notification) bool) error {
	timer := time.NewTimer(a.firstDelay(ctx))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		a.poll(ctx, cfg, deliver)
		timer.Reset(a.interval)
	}
}

func (a *AutoStrategy) firstDelay(ctx context.Context) time.Duration {
	if a.lastChecked == nil {
		return a.initialDelay
	}
	last, err := a.lastChecked(ctx)
	if err != nil || last.IsZero() {
		return a.initialDelay
	}
	remaining := a.interval - a.now().Sub(last)
	if remaining < a.initialDelay {
		return a.initialDelay
	}
	return remaining
}

func (a *AutoStrategy) poll(ctx context.Context, cfg Config, deliver func(Notification) bool) {
	outcome, err := a.Resolve(ctx, cfg)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		a.logger.Warn("background check failed", "err", err)
		deliver(Notification{Kind: NotifyError, Err: err})
		return
	}
	if !outcome.Available {
		deliver(Notification{Kind: NotifyNotAvailable, Manifest: outcome.Manifest})
		return
	}
	m := outcome.Manifest
	if !deliver(Notification{Kind: NotifyAvailable, Manifest: m}) || !a.autoDownload {
		return
	}
	if !deliver(Notification{Kind: NotifyDownloadStarted, Manifest: m}) {
		a.logger.Debug("background download skipped", "version", m.Version)
		return
	}

	file, err := a.Fetch(ctx, cfg, m, func(s ProgressSnapshot) {
		deliver(Notification{Kind: NotifyProgress, Manifest: m, Progress: s})
	})
	if err != nil {
		if ctx.Err() == nil {
			deliver(Notification{Kind: NotifyError, Manifest: m, Err: err})
		}
		return
	}
	if !deliver(Notification{Kind: NotifyDownloaded, Manifest: m, File: file}) {
		discardStaged(file)
	}
}

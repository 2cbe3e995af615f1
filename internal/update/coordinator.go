package update

import (
	"context"
	"strings"
	"sync"
	"time"

	appErrors "skylight/internal/errors"
)

// Installer hands a verified artifact to the platform installer.
type Installer interface {
	Dispatch(path string, platform PlatformKind) (Dispatched, error)
}

// Recorder persists terminal update events.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Coordinator owns one update Session and sequences check, download, verify
// and install against it. All session mutation happens under one mutex;
// network and disk work runs on the caller's goroutine outside it.
type Coordinator struct {
	mu        sync.Mutex
	session   Session
	feedOwned bool
	lastBytes uint64

	cfg       Config
	strategy  Strategy
	installer Installer
	events    *ProgressChannel
	recorder  Recorder
	logger    Logger
	now       func() time.Time
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithStrategy selects the update strategy.
func WithStrategy(s Strategy) CoordinatorOption {
	return func(c *Coordinator) {
		if s != nil {
			c.strategy = s
		}
	}
}

// WithInstaller replaces the install dispatcher.
func WithInstaller(i Installer) CoordinatorOption {
	return func(c *Coordinator) {
		if i != nil {
			c.installer = i
		}
	}
}

// WithEventBuffer sets the capacity of the event stream.
func WithEventBuffer(n int) CoordinatorOption {
	return func(c *Coordinator) {
		c.events = NewProgressChannel(n)
	}
}

// WithRecorder persists terminal events.
func WithRecorder(r Recorder) CoordinatorOption {
	return func(c *Coordinator) {
		c.recorder = r
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCoordinator creates an idle Coordinator. Without options it uses the
// manual strategy and spawns real installer processes.
func NewCoordinator(cfg Config, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		cfg:    cfg,
		logger: defaultLogger("coordinator"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.strategy == nil {
		c.strategy = NewManualStrategy(nil, nil, nil)
	}
	if c.installer == nil {
		c.installer = NewDispatcher()
	}
	if c.events == nil {
		c.events = NewProgressChannel(DefaultEventBuffer)
	}
	return c
}

// Strategy returns the strategy selected at construction.
func (c *Coordinator) Strategy() Strategy {
	return c.strategy
}

// Config returns the coordinator's configuration.
func (c *Coordinator) Config() Config {
	return c.cfg
}

// Events returns the stream of UI-facing events.
func (c *Coordinator) Events() <-chan Event {
	return c.events.Events()
}

// DroppedEvents reports how many events the consumer missed.
func (c *Coordinator) DroppedEvents() uint64 {
	return c.events.Dropped()
}

// Close ends the event stream.
func (c *Coordinator) Close() {
	c.events.Close()
}

// Session returns a copy of the current session.
func (c *Coordinator) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.clone()
}

// Check resolves the published release. It starts a new session, discarding
// any manifest or artifact held by the previous one.
func (c *Coordinator) Check(ctx context.Context) (CheckOutcome, error) {
	c.mu.Lock()
	if err := c.guardLocked("check", PhaseChecking, PhaseInstalling); err != nil {
		c.mu.Unlock()
		return CheckOutcome{}, err
	}
	c.newSessionLocked(PhaseChecking)
	token := c.session.Token
	c.publishLocked(c.eventLocked(EventCheck))
	c.mu.Unlock()

	outcome, err := c.strategy.Resolve(ctx, c.cfg)

	c.mu.Lock()
	if c.session.Token != token {
		c.mu.Unlock()
		return CheckOutcome{}, staleSessionError("check")
	}
	if err != nil {
		ev := c.failLocked(PhaseCheckFailed, err)
		c.mu.Unlock()
		c.record(ctx, ev)
		return CheckOutcome{}, err
	}
	ev := c.applyOutcomeLocked(outcome)
	c.mu.Unlock()
	c.record(ctx, ev)
	return outcome, nil
}

// Download fetches and verifies the artifact named by the held manifest.
// It is only valid after a check reported an update.
func (c *Coordinator) Download(ctx context.Context) (Verification, error) {
	c.mu.Lock()
	if err := c.validateLocked(); err != nil {
		c.mu.Unlock()
		return Verification{}, err
	}
	if c.session.Phase != PhaseAvailable || c.session.Manifest == nil {
		err := c.rejectLocked("download")
		c.mu.Unlock()
		return Verification{}, err
	}
	token := c.session.Token
	manifest := *c.session.Manifest
	c.beginDownloadLocked(false)
	c.mu.Unlock()

	file, err := c.strategy.Fetch(ctx, c.cfg, manifest, func(s ProgressSnapshot) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.session.Token == token && c.session.Phase == PhaseDownloading && !c.feedOwned {
			c.progressLocked(s)
		}
	})

	c.mu.Lock()
	if c.session.Token != token {
		c.mu.Unlock()
		if err == nil {
			discardStaged(file)
		}
		return Verification{}, staleSessionError("download")
	}
	if err == nil {
		err = checkDeclaredSize(manifest, file)
	}
	if err != nil {
		ev := c.failLocked(PhaseDownloadFailed, err)
		c.mu.Unlock()
		c.record(ctx, ev)
		return Verification{}, err
	}
	c.completeDownloadLocked(file)
	c.mu.Unlock()

	return c.verify(ctx, token, file, manifest)
}

// Install launches the installer for a verified artifact. On success the
// process exit hook runs; on failure the session stays Verified.
func (c *Coordinator) Install(ctx context.Context) error {
	c.mu.Lock()
	if err := c.validateLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.session.Phase != PhaseVerified {
		err := c.rejectLocked("install")
		c.mu.Unlock()
		return err
	}
	path := c.session.DownloadedPath
	c.session.Phase = PhaseInstalling
	c.feedOwned = false
	ev := c.eventLocked(EventInstalling)
	ev.Path = path
	c.publishLocked(ev)
	c.mu.Unlock()

	c.record(ctx, ev)
	if _, err := c.installer.Dispatch(path, c.cfg.Platform); err != nil {
		c.mu.Lock()
		var failed Event
		if c.session.Phase == PhaseInstalling {
			failed = c.failLocked(PhaseVerified, err)
		}
		c.mu.Unlock()
		c.record(ctx, failed)
		return err
	}
	return nil
}

// Run drives the strategy's background feed, if it has one, until ctx ends.
// Strategies without a feed return immediately.
func (c *Coordinator) Run(ctx context.Context) error {
	n, ok := c.strategy.(Notifier)
	if !ok {
		return nil
	}
	c.mu.Lock()
	err := c.validateLocked()
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.logger.Info("background update feed started", "strategy", c.strategy.Name())
	defer c.logger.Info("background update feed stopped")
	return n.Watch(ctx, c.cfg, func(nt Notification) bool {
		return c.deliver(ctx, nt)
	})
}

func (c *Coordinator) deliver(ctx context.Context, n Notification) bool {
	c.mu.Lock()
	phase := c.session.Phase
	held := c.session.Manifest
	sameRelease := held != nil && held.SameRelease(n.Manifest)

	switch n.Kind {
	case NotifyAvailable:
		if sameRelease && (phase == PhaseAvailable || phase == PhaseVerified || phase.Busy()) {
			c.mu.Unlock()
			return true
		}
		if phase.Busy() {
			c.mu.Unlock()
			c.logger.Debug("feed release ignored while busy", "phase", phase, "version", n.Manifest.Version)
			return false
		}
		c.newSessionLocked(PhaseIdle)
		ev := c.applyOutcomeLocked(CheckOutcome{Available: true, Manifest: n.Manifest})
		c.mu.Unlock()
		c.record(ctx, ev)
		return true

	case NotifyNotAvailable:
		if phase.Busy() || phase == PhaseVerified {
			c.mu.Unlock()
			return false
		}
		c.newSessionLocked(PhaseIdle)
		ev := c.applyOutcomeLocked(CheckOutcome{Manifest: n.Manifest})
		c.mu.Unlock()
		c.record(ctx, ev)
		return true

	case NotifyDownloadStarted:
		if phase != PhaseAvailable || !sameRelease {
			c.mu.Unlock()
			return false
		}
		c.beginDownloadLocked(true)
		c.mu.Unlock()
		return true

	case NotifyProgress:
		if !c.feedOwned || phase != PhaseDownloading || !sameRelease {
			c.mu.Unlock()
			return false
		}
		c.progressLocked(n.Progress)
		c.mu.Unlock()
		return true

	case NotifyDownloaded:
		if !c.feedOwned || phase != PhaseDownloading || !sameRelease {
			c.mu.Unlock()
			return false
		}
		c.feedOwned = false
		if err := checkDeclaredSize(*held, n.File); err != nil {
			ev := c.failLocked(PhaseDownloadFailed, err)
			c.mu.Unlock()
			c.record(ctx, ev)
			return true
		}
		token := c.session.Token
		manifest := *held
		c.completeDownloadLocked(n.File)
		c.mu.Unlock()
		if _, err := c.verify(ctx, token, n.File, manifest); err != nil {
			c.logger.Warn("feed artifact rejected", "version", manifest.Version, "err", err)
		}
		return true

	case NotifyError:
		var ev Event
		if c.feedOwned && phase == PhaseDownloading {
			c.feedOwned = false
			ev = c.failLocked(PhaseDownloadFailed, n.Err)
		} else {
			ev = c.failLocked(phase, n.Err)
		}
		c.mu.Unlock()
		c.record(ctx, ev)
		return true
	}

	c.mu.Unlock()
	return false
}

func (c *Coordinator) verify(ctx context.Context, token uint64, file LocalFile, m Manifest) (Verification, error) {
	c.mu.Lock()
	if c.session.Token != token {
		c.mu.Unlock()
		discardStaged(file)
		return Verification{}, staleSessionError("verify")
	}
	c.session.Phase = PhaseVerifying
	c.mu.Unlock()

	v, err := c.strategy.Verify(ctx, file, m)

	c.mu.Lock()
	if c.session.Token != token {
		c.mu.Unlock()
		discardStaged(file)
		return Verification{}, staleSessionError("verify")
	}
	var path string
	if err == nil {
		// Only the current session's artifact reaches the destination.
		path, err = promoteArtifact(file)
	}
	if err != nil {
		ev := c.failLocked(PhaseVerifyFailed, err)
		c.mu.Unlock()
		c.record(ctx, ev)
		return Verification{}, err
	}
	v.Path = path
	c.session.DownloadedPath = path
	c.session.Verification = &v
	c.session.Phase = PhaseVerified
	ev := c.eventLocked(EventVerified)
	ev.Path = path
	c.publishLocked(ev)
	autoInstall := c.cfg.AutoInstallOnExit
	c.mu.Unlock()
	c.record(ctx, ev)

	if autoInstall {
		if err := c.Install(ctx); err != nil {
			c.logger.Warn("automatic install failed", "err", err)
		}
	}
	return v, nil
}

// newSessionLocked discards the current session. Completions still running
// for the old token are rejected when they report back.
func (c *Coordinator) newSessionLocked(phase Phase) {
	c.session = Session{Token: c.session.Token + 1, Phase: phase}
	c.feedOwned = false
	c.lastBytes = 0
}

func (c *Coordinator) applyOutcomeLocked(outcome CheckOutcome) Event {
	if outcome.Available {
		m := outcome.Manifest
		c.session.Manifest = &m
		c.session.Phase = PhaseAvailable
		ev := c.eventLocked(EventAvailable)
		ev.Manifest = &m
		c.publishLocked(ev)
		return ev
	}
	c.session.Manifest = nil
	c.session.Phase = PhaseNotAvailable
	ev := c.eventLocked(EventNotAvailable)
	ev.Version = outcome.Manifest.Version
	c.publishLocked(ev)
	return ev
}

func (c *Coordinator) beginDownloadLocked(feed bool) {
	c.session.Phase = PhaseDownloading
	c.session.DownloadedPath = ""
	c.session.Verification = nil
	c.session.LastProgress = nil
	c.feedOwned = feed
	c.lastBytes = 0
	c.publishLocked(c.eventLocked(EventDownload))
}

func (c *Coordinator) progressLocked(s ProgressSnapshot) {
	if s.BytesTransferred < c.lastBytes {
		c.logger.Warn("download progress regressed", "previous", c.lastBytes, "current", s.BytesTransferred)
	}
	c.lastBytes = s.BytesTransferred
	snap := s
	c.session.LastProgress = &snap
	if s.Phase == PhaseDownloaded {
		return
	}
	c.publishLocked(c.eventLocked(EventDownload))
}

func (c *Coordinator) completeDownloadLocked(file LocalFile) {
	c.session.DownloadedPath = file.Path
	c.session.Phase = PhaseDownloaded
	c.session.LastProgress = &ProgressSnapshot{
		Phase:            PhaseDownloaded,
		Percent:          100,
		BytesTransferred: file.Size,
		TotalBytes:       file.Size,
		Timestamp:        c.now(),
	}
	ev := c.eventLocked(EventDownloaded)
	ev.Path = file.Path
	c.publishLocked(ev)
}

// failLocked records err on the session, moves it to phase and publishes an
// error event.
func (c *Coordinator) failLocked(phase Phase, err error) Event {
	c.session.Phase = phase
	c.session.LastError = newErrorRecord(err, c.now())
	c.logger.Error("update step failed", "phase", phase, "kind", appErrors.CodeOf(err), "err", err)
	ev := c.eventLocked(EventError)
	c.publishLocked(ev)
	return ev
}

// guardLocked fails fast on configuration and on phases where op overlaps
// work already in flight.
func (c *Coordinator) guardLocked(op string, busy ...Phase) error {
	if err := c.validateLocked(); err != nil {
		return err
	}
	for _, p := range busy {
		if c.session.Phase == p {
			return c.rejectLocked(op)
		}
	}
	return nil
}

func (c *Coordinator) validateLocked() error {
	if strings.TrimSpace(c.cfg.ServerURL) != "" {
		return nil
	}
	err := configurationError("update server URL is not configured")
	c.publishErrorLocked(err)
	return err
}

func (c *Coordinator) rejectLocked(op string) error {
	err := sequencingError(op, c.session.Phase)
	c.publishErrorLocked(err)
	return err
}

// publishErrorLocked reports a rejected call without touching the session.
func (c *Coordinator) publishErrorLocked(err error) {
	c.logger.Warn("update call rejected", "err", err)
	ev := c.eventLocked(EventError)
	ev.Err = newErrorRecord(err, ev.Timestamp)
	c.publishLocked(ev)
}

func (c *Coordinator) eventLocked(t EventType) Event {
	ev := Event{
		Type:      t,
		Phase:     c.session.Phase,
		Token:     c.session.Token,
		Err:       c.session.LastError,
		Timestamp: c.now(),
	}
	if t != EventError {
		ev.Err = nil
	}
	if c.session.Manifest != nil {
		ev.Version = c.session.Manifest.Version
	}
	if p := c.session.LastProgress; p != nil {
		ev.Progress = EventProgress{Percent: p.Percent, Transferred: p.BytesTransferred, Total: p.TotalBytes}
	}
	return ev
}

func (c *Coordinator) publishLocked(ev Event) {
	c.events.Publish(ev)
}

func (c *Coordinator) record(ctx context.Context, ev Event) {
	if c.recorder == nil || ev.Type == "" {
		return
	}
	if err := c.recorder.Record(context.WithoutCancel(ctx), ev); err != nil {
		c.logger.Warn("update history not recorded", "type", ev.Type, "err", err)
	}
}

func checkDeclaredSize(m Manifest, file LocalFile) error {
	if m.DeclaredSize > 0 && file.Size != m.DeclaredSize {
		return sizeMismatchError(m.DeclaredSize, file.Size)
	}
	return nil
}

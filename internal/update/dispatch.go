package update

import (
	"os"
	"strings"
)

// Command is a fully resolved installer invocation.
type Command struct {
	Path string
	Args []string
	// CmdLine, when set, is passed to the OS verbatim instead of quoting
	// Path and Args. Only Windows honours it.
	CmdLine string
}

// String renders the command for logs and tests.
func (c Command) String() string {
	if c.CmdLine != "" {
		return c.CmdLine
	}
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Spawner starts a detached process and returns its pid.
type Spawner interface {
	Spawn(Command) (int, error)
}

// SpawnerFunc adapts a function to the Spawner interface.
type SpawnerFunc func(Command) (int, error)

// Spawn calls f.
func (f SpawnerFunc) Spawn(c Command) (int, error) {
	return f(c)
}

// Dispatched records a successfully spawned installer.
type Dispatched struct {
	Command Command
	PID     int
}

// InstallCommand builds the installer invocation for a platform.
func InstallCommand(path string, platform PlatformKind) (Command, error) {
	switch platform {
	case PlatformWindows:
		return Command{
			Path:    "cmd",
			Args:    []string{"/s", "/c", `""` + path + `""`},
			CmdLine: `cmd /s /c ""` + path + `""`,
		}, nil
	case PlatformMac:
		return Command{Path: "open", Args: []string{path}}, nil
	case PlatformLinux:
		return Command{Path: path}, nil
	default:
		return Command{}, unsupportedPlatformError(platform)
	}
}

// Dispatcher hands a verified artifact to the OS installer and then ends the
// current process.
type Dispatcher struct {
	spawner Spawner
	exit    func()
	chmod   func(string, os.FileMode) error
	logger  Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithSpawner replaces the process spawner.
func WithSpawner(s Spawner) DispatcherOption {
	return func(d *Dispatcher) {
		if s != nil {
			d.spawner = s
		}
	}
}

// WithExitFunc replaces the hook called after a successful spawn.
func WithExitFunc(exit func()) DispatcherOption {
	return func(d *Dispatcher) {
		if exit != nil {
			d.exit = exit
		}
	}
}

// WithChmod replaces the permission setter used on Linux artifacts.
func WithChmod(chmod func(string, os.FileMode) error) DispatcherOption {
	return func(d *Dispatcher) {
		if chmod != nil {
			d.chmod = chmod
		}
	}
}

// WithDispatcherLogger sets the diagnostic logger.
func WithDispatcherLogger(l Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDispatcher creates a Dispatcher that spawns real processes and exits
// with status 0 after a successful hand-off.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		spawner: ProcessSpawner{},
		exit:    func() { os.Exit(0) },
		chmod:   os.Chmod,
		logger:  defaultLogger("dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch launches the installer for path. On success the exit hook runs
// before Dispatch returns; on failure nothing is spawned and exit is not
// called.
func (d *Dispatcher) Dispatch(path string, platform PlatformKind) (Dispatched, error) {
	cmd, err := InstallCommand(path, platform)
	if err != nil {
		return Dispatched{}, err
	}
	if platform == PlatformLinux {
		if err := d.chmod(path, 0o755); err != nil {
			return Dispatched{}, installDispatchError("make installer executable", err)
		}
	}

	pid, err := d.spawner.Spawn(cmd)
	if err != nil {
		d.logger.Error("installer spawn failed", "command", cmd.String(), "err", err)
		return Dispatched{}, installDispatchError("launch installer", err)
	}
	d.logger.Info("installer launched", "command", cmd.String(), "pid", pid)

	d.exit()
	return Dispatched{Command: cmd, PID: pid}, nil
}

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

const (
	KeyServerURL         = "update.server-url"
	KeyCurrentVersion    = "update.current-version"
	KeyStrategy          = "update.strategy"
	KeyAutoDownload      = "update.auto-download"
	KeyAutoInstallOnExit = "update.auto-install-on-exit"
	KeyVersionPolicy     = "update.version-policy"
	KeyDownloadDir       = "update.download-dir"
	KeyCheckTimeout      = "update.check-timeout"
	KeyDownloadTimeout   = "update.download-timeout"
	KeyCheckRetries      = "update.check-retries"
	KeyPollInterval      = "update.poll-interval"
	KeyPollInitialDelay  = "update.poll-initial-delay"

	KeyHistoryPath     = "history.path"
	KeyHistoryDisabled = "history.disabled"

	KeyOutputFormat = "output.format"
	KeyDebug        = "debug"
)

const (
	// StrategyManual drives updates only through explicit check/download/install.
	StrategyManual = "manual"
	// StrategyAuto adds a background feed that polls for releases.
	StrategyAuto = "auto"

	DefaultCheckTimeout     = 30 * time.Second
	DefaultDownloadTimeout  = 2 * time.Minute
	DefaultCheckRetries     = 3
	DefaultPollInterval     = 6 * time.Hour
	DefaultPollInitialDelay = 10 * time.Second

	appDirName = ".skylight"
	envPrefix  = "SKY"
)

type initSettings struct {
	workingDir        string
	projectConfigPath string
	userConfigPath    string
}

// Option configures Initialize behaviour. Useful for tests to override paths.
type Option func(*initSettings)

// WithWorkingDir overrides the directory used for project config discovery.
func WithWorkingDir(dir string) Option {
	return func(cfg *initSettings) {
		cfg.workingDir = dir
	}
}

// WithProjectConfig explicitly sets the project config path instead of discovery.
func WithProjectConfig(path string) Option {
	return func(cfg *initSettings) {
		cfg.projectConfigPath = path
	}
}

// WithUserConfig overrides the default user config path.
func WithUserConfig(path string) Option {
	return func(cfg *initSettings) {
		cfg.userConfigPath = path
	}
}

var (
	configOnce sync.Once
	configMu   sync.RWMutex
	configInst *viper.Viper
	initErr    error
)

// Initialize loads configuration using the precedence:
// defaults < user config < project config < environment variables < overrides.
func Initialize(opts ...Option) error {
	configOnce.Do(func() {
		settings := initSettings{}
		for _, opt := range opts {
			opt(&settings)
		}
		initErr = configure(&settings)
	})
	return initErr
}

// ApplyOverrides injects values typically coming from CLI flags.
func ApplyOverrides(overrides map[string]any) error {
	if len(overrides) == 0 {
		return nil
	}
	if err := Initialize(); err != nil {
		return err
	}
	configMu.Lock()
	defer configMu.Unlock()
	if configInst == nil {
		return fmt.Errorf("configuration not initialized")
	}
	for k, v := range overrides {
		configInst.Set(k, v)
	}
	return nil
}

// GetString fetches a string configuration value, initializing on demand.
func GetString(key string) string {
	v, err := getViper()
	if err != nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool fetches a bool configuration value, initializing on demand.
func GetBool(key string) bool {
	v, err := getViper()
	if err != nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt fetches an integer configuration value, initializing on demand.
func GetInt(key string) int {
	v, err := getViper()
	if err != nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration fetches a duration configuration value, initializing on demand.
func GetDuration(key string) time.Duration {
	v, err := getViper()
	if err != nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set updates a configuration key at runtime, initializing on demand.
func Set(key string, value any) error {
	if err := Initialize(); err != nil {
		return err
	}
	configMu.Lock()
	defer configMu.Unlock()
	if configInst == nil {
		return fmt.Errorf("configuration not initialized")
	}
	configInst.Set(key, value)
	return nil
}

// DownloadDir returns the configured artifact directory, falling back to
// ~/Downloads/skylight-updates.
func DownloadDir() (string, error) {
	if dir := strings.TrimSpace(GetString(KeyDownloadDir)); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine user home: %w", err)
	}
	return filepath.Join(home, "Downloads", "skylight-updates"), nil
}

// HistoryPath returns the configured history database path, falling back to
// ~/.skylight/history.db.
func HistoryPath() (string, error) {
	if path := strings.TrimSpace(GetString(KeyHistoryPath)); path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine user home: %w", err)
	}
	return filepath.Join(home, appDirName, "history.db"), nil
}

func configure(settings *initSettings) error {
	workingDir := strings.TrimSpace(settings.workingDir)
	if workingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determine working directory: %w", err)
		}
		workingDir = wd
	}

	userConfigPath := strings.TrimSpace(settings.userConfigPath)
	if userConfigPath == "" {
		path, err := defaultUserConfigPath()
		if err != nil {
			return err
		}
		userConfigPath = path
	}

	projectConfigPath := strings.TrimSpace(settings.projectConfigPath)
	if projectConfigPath == "" {
		path, err := findProjectConfig(workingDir)
		if err != nil {
			return err
		}
		projectConfigPath = path
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := mergeConfigFile(v, userConfigPath); err != nil {
		return fmt.Errorf("load user config: %w", err)
	}
	if err := mergeConfigFile(v, projectConfigPath); err != nil {
		return fmt.Errorf("load project config: %w", err)
	}
	normalizeStrategy(v)

	configMu.Lock()
	defer configMu.Unlock()
	configInst = v
	return nil
}

func mergeConfigFile(v *viper.Viper, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path %s is a directory", path)
	}
	//nolint:gosec // G304: Config loader intentionally reads user and project config files
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine user home: %w", err)
	}
	return filepath.Join(home, appDirName, "config.yaml"), nil
}

func findProjectConfig(startDir string) (string, error) {
	if strings.TrimSpace(startDir) == "" {
		return "", nil
	}
	dir := startDir
	for {
		candidate := filepath.Join(dir, appDirName, "config.yaml")
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", fmt.Errorf("config path %s is a directory", candidate)
			}
			return candidate, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyServerURL, "")
	v.SetDefault(KeyCurrentVersion, "")
	v.SetDefault(KeyStrategy, StrategyManual)
	v.SetDefault(KeyAutoDownload, false)
	v.SetDefault(KeyAutoInstallOnExit, false)
	v.SetDefault(KeyVersionPolicy, "differs")
	v.SetDefault(KeyDownloadDir, "")
	v.SetDefault(KeyCheckTimeout, DefaultCheckTimeout)
	v.SetDefault(KeyDownloadTimeout, DefaultDownloadTimeout)
	v.SetDefault(KeyCheckRetries, DefaultCheckRetries)
	v.SetDefault(KeyPollInterval, DefaultPollInterval)
	v.SetDefault(KeyPollInitialDelay, DefaultPollInitialDelay)
	v.SetDefault(KeyHistoryPath, "")
	v.SetDefault(KeyHistoryDisabled, false)
	v.SetDefault(KeyOutputFormat, "rich")
	v.SetDefault(KeyDebug, false)
}

// normalizeStrategy folds unknown strategy names back to manual so a typo in
// a config file never enables background polling.
func normalizeStrategy(v *viper.Viper) {
	if v == nil {
		return
	}
	switch strings.ToLower(strings.TrimSpace(v.GetString(KeyStrategy))) {
	case StrategyAuto:
		v.Set(KeyStrategy, StrategyAuto)
	default:
		v.Set(KeyStrategy, StrategyManual)
	}
}

func getViper() (*viper.Viper, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	configMu.RLock()
	defer configMu.RUnlock()
	if configInst == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}
	return configInst, nil
}

// reset clears package state for tests.
func reset() {
	configMu.Lock()
	defer configMu.Unlock()
	configInst = nil
	initErr = nil
	configOnce = sync.Once{}
}

// ResetForTesting clears package state for tests in other packages.
// Returns a cleanup function that should be deferred.
func ResetForTesting(t interface{ TempDir() string }) func() {
	reset()
	tmp := t.TempDir()
	_ = Initialize(WithWorkingDir(tmp), WithUserConfig(filepath.Join(tmp, "user.yaml")))
	return reset
}

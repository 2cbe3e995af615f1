package main

import (
	"context"
	"net/http"
	"strings"

	"skylight/internal/config"
	"skylight/internal/debug"
	"skylight/internal/history"
	"skylight/internal/update"
)

// pipeline bundles the coordinator with the resources it owns.
type pipeline struct {
	coord    *update.Coordinator
	store    *history.Store
	strategy string
}

type pipelineOptions struct {
	// exit runs after the installer has been spawned.
	exit       func()
	spawner    update.Spawner
	httpClient *http.Client
	platform   update.PlatformKind
}

// buildPipeline wires resolver, downloader, verifier, strategy, installer and
// history from the loaded configuration.
func buildPipeline(ctx context.Context, opts pipelineOptions) (*pipeline, error) {
	platform := opts.platform
	if platform == update.PlatformUnknown {
		platform = update.DetectPlatform()
	}
	dir, err := config.DownloadDir()
	if err != nil {
		return nil, err
	}
	current := strings.TrimSpace(config.GetString(config.KeyCurrentVersion))
	if current == "" {
		current = Version
	}
	cfg := update.Config{
		ServerURL:         strings.TrimSpace(config.GetString(config.KeyServerURL)),
		CurrentVersion:    current,
		DownloadDir:       dir,
		AutoInstallOnExit: config.GetBool(config.KeyAutoInstallOnExit),
		Platform:          platform,
	}

	resolverOpts := []update.ResolverOption{
		update.WithPlatform(platform),
		update.WithVersionPolicy(update.ParseVersionPolicy(config.GetString(config.KeyVersionPolicy))),
		update.WithCheckTimeout(config.GetDuration(config.KeyCheckTimeout)),
		update.WithCheckRetries(config.GetInt(config.KeyCheckRetries)),
	}
	downloaderOpts := []update.DownloaderOption{
		update.WithDownloadTimeout(config.GetDuration(config.KeyDownloadTimeout)),
	}
	if opts.httpClient != nil {
		resolverOpts = append(resolverOpts, update.WithHTTPClient(opts.httpClient))
		downloaderOpts = append(downloaderOpts, update.WithDownloadClient(opts.httpClient))
	}
	manual := update.NewManualStrategy(
		update.NewResolver(resolverOpts...),
		update.NewDownloader(downloaderOpts...),
		update.NewVerifier(nil),
	)

	p := &pipeline{strategy: config.StrategyManual}
	if !config.GetBool(config.KeyHistoryDisabled) {
		p.store = openHistory(ctx)
	}

	var strategy update.Strategy = manual
	if strings.EqualFold(strings.TrimSpace(config.GetString(config.KeyStrategy)), config.StrategyAuto) {
		autoOpts := []update.AutoOption{
			update.WithPollInterval(config.GetDuration(config.KeyPollInterval)),
			update.WithInitialDelay(config.GetDuration(config.KeyPollInitialDelay)),
			update.WithAutoDownload(config.GetBool(config.KeyAutoDownload)),
		}
		if p.store != nil {
			autoOpts = append(autoOpts, update.WithLastChecked(p.store.LastCheckedAt))
		}
		strategy = update.NewAutoStrategy(manual, autoOpts...)
		p.strategy = config.StrategyAuto
	}

	var dispatcherOpts []update.DispatcherOption
	if opts.exit != nil {
		dispatcherOpts = append(dispatcherOpts, update.WithExitFunc(opts.exit))
	}
	if opts.spawner != nil {
		dispatcherOpts = append(dispatcherOpts, update.WithSpawner(opts.spawner))
	}
	coordOpts := []update.CoordinatorOption{
		update.WithStrategy(strategy),
		update.WithInstaller(update.NewDispatcher(dispatcherOpts...)),
	}
	if p.store != nil {
		coordOpts = append(coordOpts, update.WithRecorder(p.store))
	}
	p.coord = update.NewCoordinator(cfg, coordOpts...)
	debug.Logf("pipeline ready: strategy=%s platform=%s server=%q current=%s", p.strategy, platform, cfg.ServerURL, current)
	return p, nil
}

// openHistory opens the history store. History is best effort: a store that
// cannot be opened is logged and skipped.
func openHistory(ctx context.Context) *history.Store {
	path, err := config.HistoryPath()
	if err != nil {
		debug.Warnf("history disabled: %v", err)
		return nil
	}
	store, err := history.Open(ctx, path)
	if err != nil {
		debug.Warnf("history disabled: %v", err)
		return nil
	}
	return store
}

// Close releases the coordinator and history store.
func (p *pipeline) Close() {
	if p == nil {
		return
	}
	p.coord.Close()
	if p.store != nil {
		_ = p.store.Close()
	}
}

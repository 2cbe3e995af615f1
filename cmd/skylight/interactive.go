package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"skylight/internal/config"
	"skylight/internal/debug"
	"skylight/internal/ui"
)

type programRunner interface {
	Run() (tea.Model, error)
	Quit()
}

type programFactory func(ctx context.Context, app *ui.App) programRunner

func newTeaProgram(ctx context.Context, app *ui.App) programRunner {
	return tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
}

func runInteractive(ctx context.Context, w io.Writer) error {
	return runInteractiveWith(ctx, w, pipelineOptions{}, newTeaProgram)
}

// runInteractiveWith runs the update screen alongside the strategy's
// background feed. Launching the installer quits the screen.
func runInteractiveWith(ctx context.Context, w io.Writer, popts pipelineOptions, factory programFactory) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if factory == nil {
		return fmt.Errorf("program factory is nil")
	}

	exitCh := make(chan struct{})
	var launched atomic.Bool
	var once sync.Once
	popts.exit = func() {
		once.Do(func() {
			launched.Store(true)
			close(exitCh)
		})
	}
	p, err := buildPipeline(ctx, popts)
	if err != nil {
		return err
	}
	defer p.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	app := ui.NewApp(ui.Config{
		Coordinator:  p.coord,
		Version:      p.coord.Config().CurrentVersion,
		Strategy:     p.strategy,
		OutputFormat: config.GetString(config.KeyOutputFormat),
		CheckOnStart: p.strategy == config.StrategyManual && p.coord.Config().ServerURL != "",
		Context:      gctx,
	})
	prog := factory(gctx, app)
	if prog == nil {
		return fmt.Errorf("program is nil")
	}

	g.Go(func() error {
		defer cancel()
		if _, err := prog.Run(); err != nil {
			return fmt.Errorf("run UI: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// Feed failures are published to the screen; they do not end the session.
		if err := p.coord.Run(gctx); err != nil {
			debug.Warnf("update feed stopped: %v", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-exitCh:
			prog.Quit()
		case <-gctx.Done():
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	printExitSummary(w, ExitSummary{
		Version:           p.coord.Config().CurrentVersion,
		Stats:             app.Stats(),
		InstallerLaunched: launched.Load(),
	})
	return nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"skylight/internal/ui"
	"skylight/internal/update"
)

var (
	styleVersion = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	styleDim     = lipgloss.NewStyle().Foreground(dimColor)
)

type headlessOptions struct {
	download bool
	install  bool
	pipeline pipelineOptions
}

func newCheckCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check whether a newer release is published",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHeadless(cmd.Context(), stdout, cmd.ErrOrStderr(), headlessOptions{})
		},
	}
}

func newUpdateCmd(stdout io.Writer) *cobra.Command {
	var install bool
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Download and verify the published release",
		Long: `Check the update server and, when a release is available, download and
verify its installer. With --install the verified installer is launched and
skylight exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHeadless(cmd.Context(), stdout, cmd.ErrOrStderr(), headlessOptions{download: true, install: install})
		},
	}
	cmd.Flags().BoolVar(&install, "install", false, "Launch the installer once the download is verified")
	return cmd
}

// runHeadless drives check, download and install without the interactive
// screen, reporting progress on errw.
func runHeadless(ctx context.Context, w, errw io.Writer, opts headlessOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var exitRequested atomic.Bool
	popts := opts.pipeline
	popts.exit = func() { exitRequested.Store(true) }

	p, err := buildPipeline(ctx, popts)
	if err != nil {
		return err
	}
	defer p.Close()

	sp := newProgressSpinner(errw)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range p.coord.Events() {
			if stage, detail, ok := ui.StageForEvent(ev); ok {
				sp.Stage(stage, detail)
			}
		}
	}()

	err = runSteps(ctx, p.coord, opts)
	p.coord.Close()
	<-done
	sp.Stop()

	if err != nil {
		printFailureHint(errw, err)
		return err
	}
	printHeadlessResult(w, p.coord.Session(), p.coord.Config().CurrentVersion, opts)
	if exitRequested.Load() {
		_, _ = fmt.Fprintln(w, styleDim.Render("Exiting so the installer can replace skylight."))
	}
	return nil
}

func runSteps(ctx context.Context, coord *update.Coordinator, opts headlessOptions) error {
	outcome, err := coord.Check(ctx)
	if err != nil || !outcome.Available || !opts.download {
		return err
	}
	if _, err := coord.Download(ctx); err != nil {
		return err
	}
	if !opts.install || coord.Config().AutoInstallOnExit {
		// Auto-install already dispatched from the verified state.
		return nil
	}
	return coord.Install(ctx)
}

func printHeadlessResult(w io.Writer, s update.Session, current string, opts headlessOptions) {
	version := ""
	if s.Manifest != nil {
		version = s.Manifest.Version
	}
	switch s.Phase {
	case update.PhaseNotAvailable:
		_, _ = fmt.Fprintf(w, "skylight is up to date %s\n", styleDim.Render("("+current+")"))
	case update.PhaseAvailable:
		_, _ = fmt.Fprintf(w, "Version %s is available %s\n", styleVersion.Render(version), styleDim.Render("(current "+current+")"))
		if s.Manifest != nil && s.Manifest.DeclaredSize > 0 {
			_, _ = fmt.Fprintf(w, "Download size: %s\n", humanize.Bytes(s.Manifest.DeclaredSize))
		}
		if !opts.download {
			_, _ = fmt.Fprintln(w, styleDim.Render(`Run "skylight update" to download it.`))
		}
	case update.PhaseVerified:
		_, _ = fmt.Fprintf(w, "Version %s downloaded and verified\n", styleVersion.Render(version))
		_, _ = fmt.Fprintf(w, "Installer: %s\n", s.DownloadedPath)
		if s.Verification != nil && s.Verification.Skipped {
			_, _ = fmt.Fprintln(w, styleDim.Render("The manifest published no digest; the download was not verified."))
		}
		_, _ = fmt.Fprintln(w, styleDim.Render(`Run "skylight update --install" to install it.`))
	case update.PhaseInstalling:
		_, _ = fmt.Fprintf(w, "Installer for %s launched\n", styleVersion.Render(version))
	default:
		_, _ = fmt.Fprintf(w, "Update state: %s\n", s.Phase)
	}
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"skylight/internal/config"
	"skylight/internal/debug"
)

func main() {
	if err := fang.Execute(
		context.Background(),
		newRootCmd(os.Stdout, os.Stderr),
		fang.WithVersion(versionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	serverURL   string
	strategy    string
	downloadDir string
	debug       bool
	autoInstall bool
}

// flagKeys maps persistent flags onto the config keys they override.
var flagKeys = map[string]string{
	"server-url":   config.KeyServerURL,
	"strategy":     config.KeyStrategy,
	"download-dir": config.KeyDownloadDir,
	"debug":        config.KeyDebug,
	"auto-install": config.KeyAutoInstallOnExit,
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "skylight",
		Short: "Check for, download and install desktop shell updates",
		Long: `skylight keeps the desktop shell current. It reads the release manifest
published on the update server, downloads the installer for this platform,
verifies its digest and hands it to the platform installer.

Run without a subcommand to open the interactive update screen.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd.Flags())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			debug.Close()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInteractive(cmd.Context(), stdout)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&flags.serverURL, "server-url", "", "Update server base URL")
	pf.StringVar(&flags.strategy, "strategy", config.StrategyManual, "Update strategy (manual, auto)")
	pf.StringVar(&flags.downloadDir, "download-dir", "", "Directory for downloaded installers")
	pf.BoolVar(&flags.debug, "debug", false, "Write diagnostic logs to ~/.skylight/debug.log")
	pf.BoolVar(&flags.autoInstall, "auto-install", false, "Install as soon as a verified download is ready")

	root.AddCommand(
		newCheckCmd(stdout),
		newUpdateCmd(stdout),
		newHistoryCmd(stdout),
		newVersionCmd(stdout),
	)
	return root
}

// loadConfig initializes configuration and applies explicitly set flags on
// top of it.
func loadConfig(fs *pflag.FlagSet) error {
	if err := config.Initialize(); err != nil {
		return fmt.Errorf("initialize config: %w", err)
	}
	if err := config.ApplyOverrides(flagOverrides(fs)); err != nil {
		return fmt.Errorf("apply flag overrides: %w", err)
	}
	if err := debug.Init(config.GetBool(config.KeyDebug)); err != nil {
		return fmt.Errorf("initialize debug log: %w", err)
	}
	return nil
}

func flagOverrides(fs *pflag.FlagSet) map[string]any {
	overrides := map[string]any{}
	fs.Visit(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return
		}
		switch f.Value.Type() {
		case "bool":
			overrides[key] = f.Value.String() == "true"
		default:
			overrides[key] = strings.TrimSpace(f.Value.String())
		}
	})
	return overrides
}

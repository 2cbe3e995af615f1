package main

import (
	"fmt"
	"io"

	appErrors "skylight/internal/errors"
	"skylight/internal/update"
)

// printFailureHint writes follow-up advice for err. The error itself is
// reported by the command runner.
func printFailureHint(w io.Writer, err error) {
	if hint := failureHint(err); hint != "" {
		_, _ = fmt.Fprintf(w, "\n%s\n\n", hint)
	}
}

func failureHint(err error) string {
	if err == nil {
		return ""
	}
	if update.IsTimeout(err) {
		return "The update server did not answer in time. Check your connection, or raise\nupdate.check-timeout / update.download-timeout."
	}

	switch appErrors.CodeOf(err) {
	case appErrors.CodeConfiguration:
		return `The update server is not configured. Set it with one of:
  skylight --server-url https://updates.example.com/shell
  SKY_UPDATE_SERVER_URL=https://updates.example.com/shell
  update.server-url in ~/.skylight/config.yaml`
	case appErrors.CodeUnsupportedPlatform:
		return "Updates are only published for Windows, macOS and Linux."
	case appErrors.CodeNetwork:
		return "Could not reach the update server. Check the server URL and your connection."
	case appErrors.CodeParse:
		return "The server is publishing a release manifest that could not be read. Try again later."
	case appErrors.CodeSizeMismatch, appErrors.CodeDigestMismatch:
		return `The downloaded installer was rejected and kept for inspection.
Run "skylight update" to fetch it again.`
	case appErrors.CodeInstallDispatch:
		return `The verified installer is still on disk. Run it manually or retry with
"skylight update --install".`
	case appErrors.CodeStorage:
		return "Check that the download directory exists and is writable (--download-dir)."
	default:
		return ""
	}
}

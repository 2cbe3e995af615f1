// Package update implements skylight's self-update pipeline.
//
// A Coordinator owns one update Session and moves it through the phases
// check → download → verify → install. The work itself is supplied by a
// Strategy:
//   - ManualStrategy runs each step only when the caller asks.
//   - AutoStrategy also polls the release server in the background and
//     feeds what it finds through the same coordinator, so both flows agree
//     on one Session.
//
// The pipeline stages are usable on their own: Resolver fetches and parses
// the per-platform manifest (latest.yml, latest-mac.yml, latest-linux.yml),
// Downloader streams the artifact to disk, Verifier checks its digest, and
// Dispatcher hands it to the OS installer before ending the process.
//
// Every outcome, success or failure, is published on the coordinator's
// event stream so an interactive layer can render it without blocking:
//
//	coord := update.NewCoordinator(update.Config{
//	    ServerURL:      "https://releases.example.com/skylight",
//	    CurrentVersion: version,
//	    Platform:       update.DetectPlatform(),
//	})
//	go func() {
//	    for ev := range coord.Events() {
//	        render(ev)
//	    }
//	}()
//	if outcome, err := coord.Check(ctx); err == nil && outcome.Available {
//	    if _, err := coord.Download(ctx); err == nil {
//	        _ = coord.Install(ctx)
//	    }
//	}
package update

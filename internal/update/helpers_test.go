package update

import (
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const testArtifactName = "Skylight-2.0.0.AppImage"

func sha512Base64(data []byte) string {
	sum := sha512.Sum512(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func manifestYAML(version, artifact string, size int, digest string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "version: %s\n", version)
	fmt.Fprintf(&b, "path: %s\n", artifact)
	b.WriteString("files:\n")
	fmt.Fprintf(&b, "  - url: %s\n", artifact)
	if size > 0 {
		fmt.Fprintf(&b, "    size: %d\n", size)
	}
	if digest != "" {
		fmt.Fprintf(&b, "    sha512: %s\n", digest)
	}
	b.WriteString("releaseNotes: |\n  Bug fixes.\n")
	return b.String()
}

// releaseServer publishes one linux manifest and its artifact.
type releaseServer struct {
	*httptest.Server

	mu             sync.Mutex
	manifest       string
	manifestStatus int
	artifact       []byte
	artifactStatus int
	omitLength     bool
	artifactDelay  chan struct{}

	manifestHits atomic.Int32
	artifactHits atomic.Int32
	headHits     atomic.Int32
}

func newReleaseServer(t *testing.T, version string, artifact []byte) *releaseServer {
	t.Helper()
	rs := &releaseServer{
		artifact: artifact,
		manifest: manifestYAML(version, testArtifactName, len(artifact), sha512Base64(artifact)),
	}
	rs.Server = httptest.NewServer(http.HandlerFunc(rs.serve))
	t.Cleanup(rs.Close)
	return rs
}

func (rs *releaseServer) setManifest(doc string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.manifest = doc
}

func (rs *releaseServer) setManifestStatus(code int) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.manifestStatus = code
}

func (rs *releaseServer) setArtifactStatus(code int) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.artifactStatus = code
}

func (rs *releaseServer) setOmitLength(omit bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.omitLength = omit
}

// holdArtifact makes artifact GETs block until the returned func is called.
func (rs *releaseServer) holdArtifact() func() {
	ch := make(chan struct{})
	rs.mu.Lock()
	rs.artifactDelay = ch
	rs.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (rs *releaseServer) serve(w http.ResponseWriter, r *http.Request) {
	rs.mu.Lock()
	manifest, manifestStatus := rs.manifest, rs.manifestStatus
	artifact, artifactStatus := rs.artifact, rs.artifactStatus
	omitLength, delay := rs.omitLength, rs.artifactDelay
	rs.mu.Unlock()

	switch r.URL.Path {
	case "/latest-linux.yml":
		rs.manifestHits.Add(1)
		if manifestStatus != 0 {
			http.Error(w, "unavailable", manifestStatus)
			return
		}
		_, _ = w.Write([]byte(manifest))
	case "/" + testArtifactName:
		if r.Method == http.MethodHead {
			rs.headHits.Add(1)
			if artifactStatus != 0 {
				w.WriteHeader(artifactStatus)
				return
			}
			if !omitLength {
				w.Header().Set("Content-Length", strconv.Itoa(len(artifact)))
			}
			w.WriteHeader(http.StatusOK)
			return
		}
		rs.artifactHits.Add(1)
		if delay != nil {
			select {
			case <-delay:
			case <-r.Context().Done():
				return
			}
		}
		if artifactStatus != 0 {
			http.Error(w, "gone", artifactStatus)
			return
		}
		if omitLength {
			w.WriteHeader(http.StatusOK)
			w.(http.Flusher).Flush()
		} else {
			w.Header().Set("Content-Length", strconv.Itoa(len(artifact)))
		}
		_, _ = w.Write(artifact)
	default:
		http.NotFound(w, r)
	}
}

// countingTransport counts every request that reaches the network.
type countingTransport struct {
	calls atomic.Int32
	base  http.RoundTripper
}

func (c *countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	c.calls.Add(1)
	return c.base.RoundTrip(r)
}

func newCountingClient(t *testing.T) (*http.Client, *countingTransport) {
	t.Helper()
	base := &http.Transport{}
	t.Cleanup(base.CloseIdleConnections)
	ct := &countingTransport{base: base}
	return &http.Client{Transport: ct}, ct
}

// recordingSpawner captures installer commands instead of running them.
type recordingSpawner struct {
	mu       sync.Mutex
	commands []Command
	err      error
}

func (s *recordingSpawner) Spawn(c Command) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.commands = append(s.commands, c)
	return 4242, nil
}

func (s *recordingSpawner) spawned() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Command(nil), s.commands...)
}

func zeroBackOff() backoff.BackOff {
	return &backoff.ZeroBackOff{}
}

type coordinatorFixture struct {
	coord     *Coordinator
	server    *releaseServer
	transport *countingTransport
	spawner   *recordingSpawner
	exits     *atomic.Int32
	dir       string
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	cfg         Config
	coordOpts   []CoordinatorOption
	resolveOpts []ResolverOption
}

func withConfig(fn func(*Config)) fixtureOption {
	return func(fc *fixtureConfig) { fn(&fc.cfg) }
}

func withCoordinatorOptions(opts ...CoordinatorOption) fixtureOption {
	return func(fc *fixtureConfig) { fc.coordOpts = append(fc.coordOpts, opts...) }
}

func withResolverOptions(opts ...ResolverOption) fixtureOption {
	return func(fc *fixtureConfig) { fc.resolveOpts = append(fc.resolveOpts, opts...) }
}

func newCoordinatorFixture(t *testing.T, rs *releaseServer, opts ...fixtureOption) *coordinatorFixture {
	t.Helper()
	client, transport := newCountingClient(t)
	dir := t.TempDir()

	fc := fixtureConfig{cfg: Config{
		ServerURL:      rs.URL,
		CurrentVersion: "1.9.0",
		DownloadDir:    dir,
		Platform:       PlatformLinux,
	}}
	for _, opt := range opts {
		opt(&fc)
	}

	resolverOpts := append([]ResolverOption{
		WithHTTPClient(client),
		WithPlatform(PlatformLinux),
		WithRetryBackOff(zeroBackOff),
		WithCheckTimeout(5 * time.Second),
	}, fc.resolveOpts...)
	strategy := NewManualStrategy(
		NewResolver(resolverOpts...),
		NewDownloader(WithDownloadClient(client), WithDownloadTimeout(5*time.Second)),
		NewVerifier(nil),
	)

	spawner := &recordingSpawner{}
	exits := &atomic.Int32{}
	dispatcher := NewDispatcher(
		WithSpawner(spawner),
		WithExitFunc(func() { exits.Add(1) }),
		WithChmod(func(string, os.FileMode) error { return nil }),
	)

	coordOpts := append([]CoordinatorOption{
		WithStrategy(strategy),
		WithInstaller(dispatcher),
		WithEventBuffer(1024),
	}, fc.coordOpts...)
	coord := NewCoordinator(fc.cfg, coordOpts...)
	t.Cleanup(coord.Close)

	return &coordinatorFixture{
		coord:     coord,
		server:    rs,
		transport: transport,
		spawner:   spawner,
		exits:     exits,
		dir:       dir,
	}
}

// drain returns every event currently buffered.
func drain(c *Coordinator) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func testArtifact(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*31 + 7)
	}
	return data
}

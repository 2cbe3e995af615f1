package update

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	appErrors "skylight/internal/errors"
)

const (
	// DefaultCheckTimeout bounds a single manifest request.
	DefaultCheckTimeout = 30 * time.Second
	// DefaultCheckRetries is the number of attempts made for a manifest fetch.
	DefaultCheckRetries = 3

	maxManifestBytes = 1 << 20
	userAgent        = "skylight-updater"
)

// CheckOutcome is the result of resolving the published release.
type CheckOutcome struct {
	Available bool
	Manifest  Manifest
}

// Resolver fetches the platform manifest and decides whether it is an update.
type Resolver struct {
	client     *http.Client
	platform   PlatformKind
	policy     VersionPolicy
	timeout    time.Duration
	maxTries   uint
	newBackOff func() backoff.BackOff
	logger     Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithHTTPClient sets the HTTP client used for manifest and HEAD requests.
func WithHTTPClient(client *http.Client) ResolverOption {
	return func(r *Resolver) {
		if client != nil {
			r.client = client
		}
	}
}

// WithPlatform overrides the detected platform.
func WithPlatform(p PlatformKind) ResolverOption {
	return func(r *Resolver) {
		r.platform = p
	}
}

// WithVersionPolicy selects how versions are compared.
func WithVersionPolicy(p VersionPolicy) ResolverOption {
	return func(r *Resolver) {
		r.policy = p
	}
}

// WithCheckTimeout bounds each manifest request.
func WithCheckTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithCheckRetries sets how many attempts a manifest fetch may take.
func WithCheckRetries(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.maxTries = uint(n)
		}
	}
}

// WithRetryBackOff overrides the delay schedule between attempts.
func WithRetryBackOff(fn func() backoff.BackOff) ResolverOption {
	return func(r *Resolver) {
		if fn != nil {
			r.newBackOff = fn
		}
	}
}

// WithResolverLogger sets the diagnostic logger.
func WithResolverLogger(l Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver creates a Resolver for the running platform.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		client:   &http.Client{},
		platform: DetectPlatform(),
		policy:   PolicyDiffers,
		timeout:  DefaultCheckTimeout,
		maxTries: DefaultCheckRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
		logger: defaultLogger("resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Platform returns the platform manifests are resolved for.
func (r *Resolver) Platform() PlatformKind {
	return r.platform
}

// CheckForUpdate fetches the manifest for the platform from serverBaseURL and
// compares its version against currentVersion.
func (r *Resolver) CheckForUpdate(ctx context.Context, serverBaseURL, currentVersion string) (CheckOutcome, error) {
	base, err := normalizeBaseURL(serverBaseURL)
	if err != nil {
		return CheckOutcome{}, err
	}
	name, err := ManifestFileName(r.platform)
	if err != nil {
		return CheckOutcome{}, err
	}

	manifestURL := base + "/" + name
	data, err := r.fetchManifest(ctx, manifestURL)
	if err != nil {
		return CheckOutcome{}, err
	}
	manifest, err := ParseManifest(data)
	if err != nil {
		return CheckOutcome{}, err
	}

	available := r.policy.Available(manifest.Version, currentVersion)
	r.logger.Info("manifest resolved", "url", manifestURL, "version", manifest.Version, "current", currentVersion, "available", available)
	if !available {
		return CheckOutcome{Manifest: manifest}, nil
	}

	if manifest.DeclaredSize == 0 {
		size, err := r.probeSize(ctx, ArtifactURL(base, manifest.ArtifactPath))
		if err != nil {
			return CheckOutcome{}, err
		}
		manifest.DeclaredSize = size
	}
	return CheckOutcome{Available: true, Manifest: manifest}, nil
}

func (r *Resolver) fetchManifest(ctx context.Context, manifestURL string) ([]byte, error) {
	attempt := 0
	op := func() ([]byte, error) {
		attempt++
		reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, manifestURL, nil)
		if err != nil {
			return nil, backoff.Permanent(configurationError(fmt.Sprintf("invalid manifest URL %q: %v", manifestURL, err)))
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Cache-Control", "no-cache")

		resp, err := r.client.Do(req)
		if err != nil {
			return nil, networkError(fmt.Sprintf("fetch %s", manifestURL), err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			statusErr := networkError(fmt.Sprintf("fetch %s: status %d", manifestURL, resp.StatusCode), nil)
			if retryableStatus(resp.StatusCode) {
				return nil, statusErr
			}
			return nil, backoff.Permanent(statusErr)
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestBytes))
		if err != nil {
			return nil, networkError(fmt.Sprintf("read %s", manifestURL), err)
		}
		return data, nil
	}

	data, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(r.maxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.logger.Warn("manifest fetch failed, retrying", "attempt", attempt, "wait", wait, "err", err)
		}),
	)
	if err != nil {
		if appErrors.CodeOf(err) == appErrors.CodeUnknown {
			err = networkError(fmt.Sprintf("fetch %s", manifestURL), err)
		}
		r.logger.Error("manifest fetch failed", "url", manifestURL, "attempts", attempt, "err", err)
		return nil, err
	}
	return data, nil
}

// probeSize asks the server for the artifact length. Zero means unknown.
func (r *Resolver) probeSize(ctx context.Context, artifactURL string) (uint64, error) {
	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, artifactURL, nil)
	if err != nil {
		return 0, configurationError(fmt.Sprintf("invalid artifact URL %q: %v", artifactURL, err))
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, networkError(fmt.Sprintf("probe %s", artifactURL), err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, networkError(fmt.Sprintf("artifact %s unavailable: status %d", artifactURL, resp.StatusCode), nil)
	}
	if resp.ContentLength <= 0 {
		r.logger.Debug("artifact size unknown", "url", artifactURL)
		return 0, nil
	}
	return uint64(resp.ContentLength), nil
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func normalizeBaseURL(raw string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	if base == "" {
		return "", configurationError("update server URL is not configured")
	}
	return base, nil
}

// ArtifactURL joins the server base with an artifact path. Absolute http(s)
// artifact paths are returned unchanged.
func ArtifactURL(serverBaseURL, artifactPath string) string {
	if u, err := url.Parse(artifactPath); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return artifactPath
	}
	base := strings.TrimRight(strings.TrimSpace(serverBaseURL), "/")
	return base + "/" + strings.TrimLeft(artifactPath, "/")
}

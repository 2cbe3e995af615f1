package update

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	appErrors "skylight/internal/errors"
)

const verifyChunkSize = 64 * 1024

// Verification describes the outcome of an integrity check.
type Verification struct {
	Path      string
	Algorithm string
	Digest    string
	// Skipped is set when no digest was published and the artifact was
	// accepted unverified.
	Skipped bool
}

// Verifier checks a downloaded artifact against its published digest.
type Verifier struct {
	logger Logger
}

// NewVerifier creates a Verifier. A nil logger selects the debug sink.
func NewVerifier(logger Logger) *Verifier {
	if logger == nil {
		logger = defaultLogger("verifier")
	}
	return &Verifier{logger: logger}
}

// Verify hashes the file at path and compares it with expectedDigest.
// The file is left in place whatever the outcome.
func (v *Verifier) Verify(ctx context.Context, path, expectedDigest string) (Verification, error) {
	expectedDigest = strings.TrimSpace(expectedDigest)
	if expectedDigest == "" {
		v.logger.Warn("no digest published, artifact accepted unverified", "path", path)
		return Verification{Path: path, Skipped: true}, nil
	}

	algorithm, want, err := decodeDigest(expectedDigest)
	if err != nil {
		return Verification{}, err
	}

	//nolint:gosec // G304: path is the artifact this process just downloaded
	f, err := os.Open(path)
	if err != nil {
		return Verification{}, appErrors.New(appErrors.CodeStorage, fmt.Sprintf("open %s", path), err)
	}
	defer func() { _ = f.Close() }()

	h := newHash(algorithm)
	buf := make([]byte, verifyChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return Verification{}, appErrors.New(appErrors.CodeUnknown, "verification cancelled", err)
		}
		n, readErr := f.Read(buf)
		if n > 0 {
			_, _ = h.Write(buf[:n])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return Verification{}, appErrors.New(appErrors.CodeStorage, fmt.Sprintf("read %s", path), readErr)
		}
	}

	got := h.Sum(nil)
	if subtle.ConstantTimeCompare(got, want) != 1 {
		v.logger.Error("digest mismatch", "path", path, "algorithm", algorithm, "got", hex.EncodeToString(got))
		return Verification{}, digestMismatchError(fmt.Sprintf("%s digest mismatch for %s", algorithm, path))
	}
	v.logger.Info("artifact verified", "path", path, "algorithm", algorithm)
	return Verification{Path: path, Algorithm: algorithm, Digest: hex.EncodeToString(got)}, nil
}

func newHash(algorithm string) hash.Hash {
	if algorithm == "sha256" {
		return sha256.New()
	}
	return sha512.New()
}

// decodeDigest accepts "sha512:<hex>", "sha256:<hex>", bare hex of either
// length, or base64 sha512.
func decodeDigest(s string) (string, []byte, error) {
	if algo, rest, ok := strings.Cut(s, ":"); ok {
		algo = strings.ToLower(strings.TrimSpace(algo))
		if algo != "sha256" && algo != "sha512" {
			return "", nil, digestMismatchError(fmt.Sprintf("unsupported digest algorithm %q", algo))
		}
		sum, err := hex.DecodeString(strings.TrimSpace(rest))
		if err != nil || len(sum) != digestLen(algo) {
			return "", nil, digestMismatchError(fmt.Sprintf("malformed %s digest", algo))
		}
		return algo, sum, nil
	}

	if isHex(s) {
		switch len(s) {
		case sha512.Size * 2:
			sum, _ := hex.DecodeString(s)
			return "sha512", sum, nil
		case sha256.Size * 2:
			sum, _ := hex.DecodeString(s)
			return "sha256", sum, nil
		}
	}

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if sum, err := enc.DecodeString(s); err == nil && len(sum) == sha512.Size {
			return "sha512", sum, nil
		}
	}
	return "", nil, digestMismatchError("unrecognized digest encoding")
}

func digestLen(algo string) int {
	if algo == "sha256" {
		return sha256.Size
	}
	return sha512.Size
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

package update

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	appErrors "skylight/internal/errors"
)

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "artifact.bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVerifyDigestFormats(t *testing.T) {
	data := testArtifact(200_000)
	path := writeTemp(t, data)
	s512 := sha512.Sum512(data)
	s256 := sha256.Sum256(data)

	tests := []struct {
		name     string
		digest   string
		wantAlgo string
	}{
		{"base64 std", base64.StdEncoding.EncodeToString(s512[:]), "sha512"},
		{"base64 raw", base64.RawStdEncoding.EncodeToString(s512[:]), "sha512"},
		{"base64 url", base64.URLEncoding.EncodeToString(s512[:]), "sha512"},
		{"bare sha512 hex", hex.EncodeToString(s512[:]), "sha512"},
		{"upper hex", strings.ToUpper(hex.EncodeToString(s512[:])), "sha512"},
		{"prefixed sha512", "sha512:" + hex.EncodeToString(s512[:]), "sha512"},
		{"bare sha256 hex", hex.EncodeToString(s256[:]), "sha256"},
		{"prefixed sha256", "SHA256:" + hex.EncodeToString(s256[:]), "sha256"},
	}

	v := NewVerifier(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Verify(context.Background(), path, tt.digest)
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if got.Skipped || got.Algorithm != tt.wantAlgo || got.Path != path {
				t.Fatalf("unexpected verification %+v", got)
			}
		})
	}
}

func TestVerifySingleByteFlipFails(t *testing.T) {
	data := testArtifact(100_000)
	digest := sha512Base64(data)
	v := NewVerifier(nil)

	for _, idx := range []int{0, len(data) / 2, len(data) - 1} {
		flipped := append([]byte(nil), data...)
		flipped[idx] ^= 0x01
		path := writeTemp(t, flipped)

		_, err := v.Verify(context.Background(), path, digest)
		if !appErrors.IsCode(err, appErrors.CodeDigestMismatch) {
			t.Fatalf("flip at %d: error = %v, want digest_mismatch", idx, err)
		}
		if _, statErr := os.Stat(path); statErr != nil {
			t.Fatalf("artifact should remain on disk after mismatch: %v", statErr)
		}
	}
}

func TestVerifyEmptyDigestSkips(t *testing.T) {
	path := writeTemp(t, []byte("anything"))
	got, err := NewVerifier(nil).Verify(context.Background(), path, "  ")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !got.Skipped {
		t.Fatal("expected Skipped verification for empty digest")
	}
}

func TestVerifyRejectsUnknownEncodings(t *testing.T) {
	path := writeTemp(t, []byte("anything"))
	for _, digest := range []string{"md5:abcd", "sha512:zz", "not a digest!", "abcd"} {
		_, err := NewVerifier(nil).Verify(context.Background(), path, digest)
		if !appErrors.IsCode(err, appErrors.CodeDigestMismatch) {
			t.Errorf("Verify(%q) error = %v, want digest_mismatch", digest, err)
		}
	}
}

func TestVerifyMissingFile(t *testing.T) {
	_, err := NewVerifier(nil).Verify(context.Background(), filepath.Join(t.TempDir(), "gone"), sha512Base64([]byte("x")))
	if !appErrors.IsCode(err, appErrors.CodeStorage) {
		t.Fatalf("error = %v, want storage_error", err)
	}
}

package update

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest describes the latest published release for one platform.
type Manifest struct {
	Version      string
	ArtifactPath string
	// DeclaredSize is zero when the server did not state a size.
	DeclaredSize uint64
	Digest       string
	ReleaseNotes string
	ReleaseDate  string
}

// SameRelease reports whether two manifests describe the same artifact.
func (m Manifest) SameRelease(other Manifest) bool {
	return m.Version == other.Version &&
		m.ArtifactPath == other.ArtifactPath &&
		m.Digest == other.Digest
}

type manifestFile struct {
	URL    string `yaml:"url"`
	Size   uint64 `yaml:"size"`
	SHA512 string `yaml:"sha512"`
}

type manifestDoc struct {
	Version      string         `yaml:"version"`
	Path         string         `yaml:"path"`
	SHA512       string         `yaml:"sha512"`
	Files        []manifestFile `yaml:"files"`
	ReleaseDate  string         `yaml:"releaseDate"`
	ReleaseNotes string         `yaml:"releaseNotes"`
}

// ParseManifest decodes a release manifest in the electron-builder layout.
func ParseManifest(data []byte) (Manifest, error) {
	var doc manifestDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Manifest{}, parseError("malformed manifest", err)
	}

	version := strings.TrimSpace(doc.Version)
	if version == "" {
		return Manifest{}, parseError("manifest is missing a version", nil)
	}

	m := Manifest{
		Version:      version,
		ArtifactPath: strings.TrimSpace(doc.Path),
		Digest:       strings.TrimSpace(doc.SHA512),
		ReleaseNotes: strings.TrimSpace(doc.ReleaseNotes),
		ReleaseDate:  strings.TrimSpace(doc.ReleaseDate),
	}
	if len(doc.Files) > 0 {
		first := doc.Files[0]
		if m.ArtifactPath == "" {
			m.ArtifactPath = strings.TrimSpace(first.URL)
		}
		if d := strings.TrimSpace(first.SHA512); d != "" {
			m.Digest = d
		}
		m.DeclaredSize = first.Size
	}
	if m.ArtifactPath == "" {
		return Manifest{}, parseError(fmt.Sprintf("manifest for %s names no artifact", version), nil)
	}
	return m, nil
}

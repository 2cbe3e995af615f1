//go:build !windows

package update

import (
	"github.com/google/renameio/v2"
)

// pendingArtifact stages the download next to its destination and swaps it
// into place on Commit.
type pendingArtifact struct {
	file *renameio.PendingFile
}

func openArtifact(path string) (artifactWriter, error) {
	f, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return nil, err
	}
	return &pendingArtifact{file: f}, nil
}

func (p *pendingArtifact) Write(b []byte) (int, error) {
	return p.file.Write(b)
}

func (p *pendingArtifact) Commit() error {
	return p.file.CloseAtomicallyReplace()
}

func (p *pendingArtifact) Discard() error {
	return p.file.Cleanup()
}

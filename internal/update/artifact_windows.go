//go:build windows

package update

import "os"

// truncatingArtifact overwrites the destination in place. A failed transfer
// leaves a partial file that the next download truncates.
type truncatingArtifact struct {
	file *os.File
}

func openArtifact(path string) (artifactWriter, error) {
	//nolint:gosec // G304: destination is derived from configured download dir
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &truncatingArtifact{file: f}, nil
}

func (t *truncatingArtifact) Write(b []byte) (int, error) {
	return t.file.Write(b)
}

func (t *truncatingArtifact) Commit() error {
	if err := t.file.Sync(); err != nil {
		_ = t.file.Close()
		return err
	}
	return t.file.Close()
}

func (t *truncatingArtifact) Discard() error {
	return t.file.Close()
}

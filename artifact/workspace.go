package artifact

import (
	"fmt"
	"os"
	"path/filepath"
)

// Workspace is the root directory holding all pipeline state: artifacts,
// ledgers and per-stage metadata.
type Workspace struct {
	root string
}

// NewWorkspace creates (if needed) and returns the workspace rooted at dir.
func NewWorkspace(dir string) (*Workspace, error) {
	for _, sub := range []string{"artifacts", "ledgers", "metadata"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, fmt.Errorf("workspace: %w", err)
		}
	}
	return &Workspace{root: dir}, nil
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string { return w.root }

// ArtifactPath returns the path of a named artifact file.
func (w *Workspace) ArtifactPath(name string) string {
	return filepath.Join(w.root, "artifacts", name+".ndjson")
}

// LedgerPath returns the path of a stage's ledger file.
func (w *Workspace) LedgerPath(stage string) string {
	return filepath.Join(w.root, "ledgers", stage+".json")
}

// MetadataPath returns the path of a stage's metadata file.
func (w *Workspace) MetadataPath(stage string) string {
	return filepath.Join(w.root, "metadata", stage+".json")
}

// VectorDBPath returns the directory of the badger-backed embedding
// repository.
func (w *Workspace) VectorDBPath() string {
	return filepath.Join(w.root, "vectors")
}

// ArtifactExists reports whether a named artifact file is present.
func (w *Workspace) ArtifactExists(name string) bool {
	info, err := os.Stat(w.ArtifactPath(name))
	return err == nil && !info.IsDir()
}

// EnsureArtifact creates the named artifact file if it does not exist yet.
// An empty artifact means "produced no records", which downstream consumers
// treat differently from a missing one.
func (w *Workspace) EnsureArtifact(name string) error {
	f, err := os.OpenFile(w.ArtifactPath(name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("ensure artifact %s: %w", name, err)
	}
	return f.Close()
}

// Package projectdir owns the per-project persisted-state directory
// layout (spec.md §6 "Persisted state layout"): manifest.yaml,
// result_store/, logs/<service>.log, queue/<queue_name>/, and
// vector_store/<database_name>/, all rooted at the project directory
// unless a data-directory override is given. Grounded on the teacher's
// pkg/volume.LocalDriver directory-per-entity pattern, generalized
// from "one directory per volume" to "one well-known subdirectory per
// core component".
package projectdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	manifestFile   = "manifest.yaml"
	resultStoreDir = "result_store"
	logsDir        = "logs"
	queueDir       = "queue"
	vectorStoreDir = "vector_store"
)

// Layout resolves the well-known subdirectories of one project's
// persisted state root. Root is the project directory by default, or
// a data-directory override supplied at startup.
type Layout struct {
	Root string
}

// New returns a Layout rooted at root. root must already exist or be
// creatable by Ensure.
func New(root string) *Layout {
	return &Layout{Root: root}
}

// ManifestPath returns the path to the project's manifest.yaml.
func (l *Layout) ManifestPath() string {
	return filepath.Join(l.Root, manifestFile)
}

// ResultStoreDir returns the Result Store's directory.
func (l *Layout) ResultStoreDir() string {
	return filepath.Join(l.Root, resultStoreDir)
}

// LogPath returns the per-service log file path for serviceID.
func (l *Layout) LogPath(serviceID string) string {
	return filepath.Join(l.Root, logsDir, serviceID+".log")
}

// QueueDir returns the fs-queue root (one subdirectory per queue name,
// created by fsqueue itself).
func (l *Layout) QueueDir() string {
	return filepath.Join(l.Root, queueDir)
}

// VectorStoreDir returns the vector store's directory for databaseName.
func (l *Layout) VectorStoreDir(databaseName string) string {
	return filepath.Join(l.Root, vectorStoreDir, databaseName)
}

// DedupIndexDir returns the directory the ingestion pipeline's
// dedup.BoltIndex opens its database file in, colocated with the
// database's vector store.
func (l *Layout) DedupIndexDir(databaseName string) string {
	return l.VectorStoreDir(databaseName)
}

// Ensure creates every well-known subdirectory (result_store, logs,
// queue, and one vector_store/<name> per database) if missing. Called
// once at orchestrator or worker startup, never on the hot path.
func (l *Layout) Ensure(databaseNames []string) error {
	dirs := []string{
		l.Root,
		l.ResultStoreDir(),
		filepath.Join(l.Root, logsDir),
		l.QueueDir(),
	}
	for _, name := range databaseNames {
		dirs = append(dirs, l.VectorStoreDir(name))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

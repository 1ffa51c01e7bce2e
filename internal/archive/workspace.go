package archive

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

// Workspace is the extracted, writable contents of one archive. Each merge
// run holds two: the source (read) and the destination (merged in place).
type Workspace struct {
	root   string
	logger *log.Logger
}

// NewWorkspace extracts the archive at archivePath into parent/name and
// returns a handle on the result. logger may be nil.
func NewWorkspace(archivePath, parent, name string, logger *log.Logger) (*Workspace, error) {
	root := filepath.Join(parent, name)
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace directory: %w", err)
	}
	if err := Unpack(archivePath, root); err != nil {
		os.RemoveAll(root)
		return nil, err
	}
	return &Workspace{root: root, logger: logger}, nil
}

// Root returns the workspace directory.
func (w *Workspace) Root() string {
	return w.root
}

// File returns the path of name inside the workspace.
func (w *Workspace) File(name string) string {
	return filepath.Join(w.root, name)
}

// Release deletes the workspace tree and logs what it freed. Safe to call
// after a failed run; the workspace is never left pinned.
func (w *Workspace) Release() error {
	files, size := treeStats(w.root)
	if err := os.RemoveAll(w.root); err != nil {
		return fmt.Errorf("failed to remove workspace: %w", err)
	}
	if w.logger != nil {
		w.logger.Printf("archive: released workspace %s (%d files, %s freed)",
			w.root, files, humanize.Bytes(uint64(size)))
	}
	return nil
}

// treeStats totals the regular files under root. Errors are ignored: the
// numbers feed a log line, nothing more.
func treeStats(root string) (files int, size int64) {
	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		files++
		size += info.Size()
		return nil
	})
	return files, size
}

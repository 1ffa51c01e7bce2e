// Package sync runs the end-to-end backup merge: extract both archives,
// validate their manifests, merge the source store into the destination
// store, refresh the destination manifest, and pack the result into a new
// archive.
package sync

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rfletcher/jwlsync/internal/archive"
	"github.com/rfletcher/jwlsync/internal/db"
	"github.com/rfletcher/jwlsync/internal/digest"
	"github.com/rfletcher/jwlsync/internal/manifest"
	"github.com/rfletcher/jwlsync/internal/merge"
	"github.com/rfletcher/jwlsync/internal/progress"
)

// Extension is the suffix backup archives carry.
const Extension = ".jwlibrary"

// Options configures a Syncer.
type Options struct {
	// WorkDir is the parent directory for per-run extraction workspaces.
	// Empty means the OS temp directory.
	WorkDir string
	// Logger receives run logs. Nil discards them.
	Logger *log.Logger
	// Progress receives phase and per-table progress. Nil disables
	// reporting. Values delivered through it never decrease within a run.
	Progress progress.Func
	// KeepWorkspaces leaves the extracted trees behind for inspection.
	KeepWorkspaces bool
}

// Syncer merges backup archives. It holds no per-run state; one Syncer may
// serve concurrent runs.
type Syncer struct {
	workDir string
	logger  *log.Logger
	sink    progress.Func
	keep    bool
}

// New returns a Syncer with the given options.
func New(opts Options) *Syncer {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	sink := opts.Progress
	if sink == nil {
		sink = progress.Nop
	}
	return &Syncer{
		workDir: opts.WorkDir,
		logger:  logger,
		sink:    sink,
		keep:    opts.KeepWorkspaces,
	}
}

// BackupInfo identifies one input backup in a report.
type BackupInfo struct {
	DeviceName   string `json:"device_name"`
	LastModified string `json:"last_modified"`
}

// Report summarizes one completed merge run.
type Report struct {
	RunID         string              `json:"run_id"`
	Name          string              `json:"name"`
	Output        string              `json:"output,omitempty"`
	SchemaVersion int                 `json:"schema_version"`
	Hash          string              `json:"hash"`
	Source        BackupInfo          `json:"source"`
	Destination   BackupInfo          `json:"destination"`
	Tables        []merge.TableCounts `json:"tables"`
	Warnings      []merge.Warning     `json:"warnings,omitempty"`
	DurationMS    int64               `json:"duration_ms"`
}

// Inserted totals the inserted records across all tables.
func (r *Report) Inserted() int {
	total := 0
	for _, tc := range r.Tables {
		total += tc.Inserted
	}
	return total
}

// Duplicates totals the suppressed duplicates across all tables.
func (r *Report) Duplicates() int {
	total := 0
	for _, tc := range r.Tables {
		total += tc.Duplicates
	}
	return total
}

// Merge runs the pipeline on archive streams and writes the merged archive
// to out. The inputs are spooled to files first; archives need random
// access to read.
func (s *Syncer) Merge(source, dest io.Reader, out io.Writer) (*Report, error) {
	spool, err := os.MkdirTemp(s.workDir, "jwlsync-spool-")
	if err != nil {
		return nil, &IOFailureError{Op: "create spool directory", Err: err}
	}
	defer os.RemoveAll(spool)

	sourcePath, err := spoolArchive(spool, "source"+Extension, source)
	if err != nil {
		return nil, err
	}
	destPath, err := spoolArchive(spool, "dest"+Extension, dest)
	if err != nil {
		return nil, err
	}

	outPath, report, err := s.MergeFiles(sourcePath, destPath, filepath.Join(spool, "out"))
	if err != nil {
		return nil, err
	}
	report.Output = ""

	f, err := os.Open(outPath)
	if err != nil {
		return nil, &IOFailureError{Op: "open output archive", Err: err}
	}
	defer f.Close()
	if _, err := io.Copy(out, f); err != nil {
		return nil, &IOFailureError{Op: "stream output archive", Err: err}
	}
	return report, nil
}

// MergeFiles merges the backup at sourcePath into the backup at destPath
// and writes the result archive under outDir. It returns the output path
// and the run report.
func (s *Syncer) MergeFiles(sourcePath, destPath, outDir string) (string, *Report, error) {
	runID := uuid.New().String()
	started := time.Now()
	sink := progress.Monotonic(s.sink)
	s.logger.Printf("sync: run %s merging %s into %s", runID, sourcePath, destPath)

	runDir, err := s.runDir(runID)
	if err != nil {
		return "", nil, err
	}
	defer s.releaseRunDir(runDir)

	sink(10, "Extracting archive files...")
	srcWS, err := s.extract(sourcePath, runDir, "source")
	if err != nil {
		return "", nil, err
	}
	defer s.release(srcWS)
	dstWS, err := s.extract(destPath, runDir, "dest")
	if err != nil {
		return "", nil, err
	}
	defer s.release(dstWS)

	sink(25, "Validating backup files...")
	srcMan, srcStorePath, err := s.validate(srcWS, "source")
	if err != nil {
		return "", nil, err
	}
	dstMan, dstStorePath, err := s.validate(dstWS, "destination")
	if err != nil {
		return "", nil, err
	}
	if err := manifest.Validate(srcMan, dstMan); err != nil {
		return "", nil, &IncompatibleInputError{Reason: "backups cannot be merged", Err: err}
	}

	sink(35, "Starting database merge...")
	result, err := s.mergeStores(dstStorePath, srcStorePath, sink)
	if err != nil {
		return "", nil, err
	}

	sink(85, "Updating manifest and creating archive...")
	hash, err := digest.File(dstStorePath)
	if err != nil {
		return "", nil, &IOFailureError{Op: "hash merged store", Err: err}
	}
	name, err := manifest.Update(dstMan, srcMan, hash, time.Now())
	if err != nil {
		return "", nil, &IncompatibleInputError{Reason: "failed to update manifest", Err: err}
	}
	if err := dstMan.Save(dstWS.File(manifest.Filename)); err != nil {
		return "", nil, &IOFailureError{Op: "write merged manifest", Err: err}
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", nil, &IOFailureError{Op: "create output directory", Err: err}
	}
	outPath := filepath.Join(outDir, name+Extension)
	if err := archive.PackFile(dstWS.Root(), outPath); err != nil {
		return "", nil, &IOFailureError{Op: "create output archive", Err: err}
	}

	sink(100, "Merge completed successfully!")
	s.logger.Printf("sync: run %s wrote %s in %s", runID, outPath, time.Since(started).Round(time.Millisecond))

	report := &Report{
		RunID:         runID,
		Name:          name,
		Output:        outPath,
		SchemaVersion: dstMan.UserDataBackup.SchemaVersion,
		Hash:          hash,
		Source: BackupInfo{
			DeviceName:   srcMan.UserDataBackup.DeviceName,
			LastModified: srcMan.UserDataBackup.LastModifiedDate,
		},
		Destination: BackupInfo{
			DeviceName:   dstMan.UserDataBackup.DeviceName,
			LastModified: dstMan.UserDataBackup.LastModifiedDate,
		},
		Tables:     result.Tables,
		Warnings:   result.Warnings,
		DurationMS: time.Since(started).Milliseconds(),
	}
	return outPath, report, nil
}

// runDir creates the per-run parent for the two workspaces.
func (s *Syncer) runDir(runID string) (string, error) {
	base := s.workDir
	if base == "" {
		base = os.TempDir()
	}
	dir := filepath.Join(base, "jwlsync-"+runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", &IOFailureError{Op: "create work directory", Err: err}
	}
	return dir, nil
}

// releaseRunDir removes the per-run parent once its workspaces are gone.
func (s *Syncer) releaseRunDir(dir string) {
	if s.keep {
		s.logger.Printf("sync: keeping work directory %s", dir)
		return
	}
	os.Remove(dir)
}

func (s *Syncer) extract(archivePath, runDir, side string) (*archive.Workspace, error) {
	ws, err := archive.NewWorkspace(archivePath, runDir, side, s.logger)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &IncompatibleInputError{Reason: side + " archive does not exist", Err: err}
		}
		if errors.Is(err, zip.ErrFormat) {
			return nil, &IncompatibleInputError{Reason: side + " file is not a backup archive", Err: err}
		}
		return nil, &IOFailureError{Op: "extract " + side + " archive", Err: err}
	}
	return ws, nil
}

func (s *Syncer) release(ws *archive.Workspace) {
	if s.keep {
		return
	}
	if err := ws.Release(); err != nil {
		s.logger.Printf("sync: failed to release workspace %s: %v", ws.Root(), err)
	}
}

// validate loads the workspace manifest and confirms the store file it
// names is present inside the workspace.
func (s *Syncer) validate(ws *archive.Workspace, side string) (*manifest.Manifest, string, error) {
	m, err := manifest.Load(ws.File(manifest.Filename))
	if err != nil {
		return nil, "", &IncompatibleInputError{Reason: side + " backup manifest", Err: err}
	}

	dbName := m.UserDataBackup.DatabaseName
	if strings.ContainsAny(dbName, `/\`) || dbName != filepath.Base(dbName) {
		return nil, "", &IncompatibleInputError{
			Reason: fmt.Sprintf("%s manifest names a store outside the archive (%q)", side, dbName),
		}
	}
	storePath := ws.File(dbName)
	if _, err := os.Stat(storePath); err != nil {
		return nil, "", &IncompatibleInputError{Reason: side + " backup is missing its store file", Err: err}
	}
	return m, storePath, nil
}

// mergeStores opens both stores, merges source into dest, and closes the
// destination before returning so the store file is complete on disk for
// hashing and packing.
func (s *Syncer) mergeStores(destPath, sourcePath string, sink progress.Func) (*merge.Result, error) {
	destStore, err := db.Open(destPath)
	if err != nil {
		return nil, &IOFailureError{Op: "open destination store", Err: err}
	}
	defer destStore.Close()

	sourceStore, err := db.OpenReadOnly(sourcePath)
	if err != nil {
		return nil, &IOFailureError{Op: "open source store", Err: err}
	}
	defer sourceStore.Close()

	result, err := merge.Run(destStore.DB, sourceStore.DB, sink)
	if err != nil {
		var kindErr *merge.KindError
		if errors.As(err, &kindErr) {
			return nil, &MergeFailureError{Table: string(kindErr.Kind), Err: err}
		}
		var commitErr *merge.CommitError
		if errors.As(err, &commitErr) {
			return nil, &ConstraintViolationError{Err: err}
		}
		return nil, &MergeFailureError{Err: err}
	}

	if err := sourceStore.Close(); err != nil {
		return nil, &IOFailureError{Op: "close source store", Err: err}
	}
	if err := destStore.Close(); err != nil {
		return nil, &IOFailureError{Op: "close destination store", Err: err}
	}
	return result, nil
}

func spoolArchive(dir, name string, r io.Reader) (string, error) {
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", &IOFailureError{Op: "spool input archive", Err: err}
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", &IOFailureError{Op: "spool input archive", Err: err}
	}
	if err := f.Close(); err != nil {
		return "", &IOFailureError{Op: "spool input archive", Err: err}
	}
	return path, nil
}

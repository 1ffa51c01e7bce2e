package cli

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/rfletcher/jwlsync/internal/sync"
	"github.com/rfletcher/jwlsync/internal/testutil"
)

func resetMergeGlobals() {
	mergeOutputDir = ""
	mergeJSON = false
	mergeQuiet = false
	mergeKeepTemp = false
	mergeLogFile = ""
}

func resetInspectGlobals() {
	inspectFormat = "table"
	inspectDiff = ""
}

// isolateConfig keeps the host's config files and environment out of the
// test run.
func isolateConfig(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("JWLSYNC_OUTPUT_DIR", "")
	t.Setenv("JWLSYNC_WORK_DIR", "")
	t.Setenv("JWLSYNC_LOG_FILE", "")
	t.Setenv("JWLSYNC_KEEP_TEMP", "")

	oldCwd, _ := os.Getwd()
	t.Cleanup(func() { os.Chdir(oldCwd) })
	if err := os.Chdir(home); err != nil {
		t.Fatal(err)
	}
}

func newTestCommand() (*cobra.Command, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	return cmd, buf
}

func buildTestPair(t *testing.T) (string, string) {
	t.Helper()
	srcMan := testutil.DefaultManifest("Pixel-7", 14)
	sourcePath := testutil.BuildBackupArchive(t, srcMan, func(t *testing.T, store *sql.DB) {
		testutil.MustExec(t, store,
			`INSERT INTO Location (LocationId, BookNumber, ChapterNumber, IssueTagNumber, KeySymbol, MepsLanguage, Type, Title)
			 VALUES (1, 1, 3, 0, 'nwtsty', 0, 0, 'Genesis 3')`)
		testutil.MustExec(t, store,
			`INSERT INTO Note (NoteId, Guid, LocationId, Title, LastModified, Created)
			 VALUES (1, 'note-guid-1', 1, 'In the beginning', '2024-03-02T08:00:00Z', '2024-03-01T08:00:00Z')`)
	})
	dstMan := testutil.DefaultManifest("iPad", 14)
	destPath := testutil.BuildBackupArchive(t, dstMan, func(t *testing.T, store *sql.DB) {
		testutil.MustExec(t, store, `INSERT INTO Tag (TagId, Type, Name) VALUES (1, 1, 'Study')`)
	})
	return sourcePath, destPath
}

func TestMergeCommandWritesArchiveAndSummary(t *testing.T) {
	isolateConfig(t)
	resetMergeGlobals()
	sourcePath, destPath := buildTestPair(t)

	outDir := t.TempDir()
	mergeOutputDir = outDir

	cmd, buf := newTestCommand()
	if err := runMerge(cmd, []string{sourcePath, destPath}); err != nil {
		t.Fatalf("runMerge failed: %v", err)
	}

	output := buf.String()
	testutil.AssertStringContains(t, output, "[ 10%] Extracting archive files...")
	testutil.AssertStringContains(t, output, "Merging locations...")
	testutil.AssertStringContains(t, output, "[100%] Merge completed successfully!")
	testutil.AssertStringContains(t, output, "Merged Pixel-7 into iPad")
	testutil.AssertStringContains(t, output, "TABLE")
	testutil.AssertStringContains(t, output, "Location")
	testutil.AssertStringContains(t, output, "Wrote "+outDir)

	matches, err := filepath.Glob(filepath.Join(outDir, "merged_*.jwlibrary"))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 1, len(matches))
}

func TestMergeCommandJSONReport(t *testing.T) {
	isolateConfig(t)
	resetMergeGlobals()
	sourcePath, destPath := buildTestPair(t)

	mergeOutputDir = t.TempDir()
	mergeJSON = true

	cmd, buf := newTestCommand()
	if err := runMerge(cmd, []string{sourcePath, destPath}); err != nil {
		t.Fatalf("runMerge failed: %v", err)
	}

	// JSON mode emits the report and nothing else.
	if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Fatalf("Expected bare JSON output, got %q", buf.String())
	}
	var report sync.Report
	testutil.AssertNoError(t, json.Unmarshal(buf.Bytes(), &report))
	testutil.AssertEqual(t, 36, len(report.RunID))
	testutil.AssertEqual(t, 8, len(report.Tables))
	testutil.AssertEqual(t, "Pixel-7", report.Source.DeviceName)
}

func TestMergeCommandWritesLogFile(t *testing.T) {
	isolateConfig(t)
	resetMergeGlobals()
	sourcePath, destPath := buildTestPair(t)

	mergeOutputDir = t.TempDir()
	mergeQuiet = true
	mergeLogFile = filepath.Join(t.TempDir(), "run.log")

	cmd, _ := newTestCommand()
	if err := runMerge(cmd, []string{sourcePath, destPath}); err != nil {
		t.Fatalf("runMerge failed: %v", err)
	}

	logged := testutil.ReadFile(t, mergeLogFile)
	testutil.AssertStringContains(t, logged, "sync: run")
	testutil.AssertStringContains(t, logged, "released workspace")
}

func TestInspectCommandShowsManifestAndCounts(t *testing.T) {
	resetInspectGlobals()
	archivePath := testutil.BuildBackupArchive(t, testutil.DefaultManifest("Pixel-7", 14), func(t *testing.T, store *sql.DB) {
		testutil.MustExec(t, store,
			`INSERT INTO Location (LocationId, BookNumber, ChapterNumber, IssueTagNumber, KeySymbol, MepsLanguage, Type, Title)
			 VALUES (1, 1, 3, 0, 'nwtsty', 0, 0, 'Genesis 3')`)
		testutil.MustExec(t, store, `INSERT INTO Tag (TagId, Type, Name) VALUES (1, 1, 'Study')`)
	})

	cmd, buf := newTestCommand()
	if err := runInspect(cmd, []string{archivePath}); err != nil {
		t.Fatalf("runInspect failed: %v", err)
	}

	output := buf.String()
	testutil.AssertStringContains(t, output, "device: Pixel-7")
	testutil.AssertStringContains(t, output, "schema version: 14")
	testutil.AssertStringContains(t, output, "Location")
	testutil.AssertStringContains(t, output, "Tag")
}

func TestInspectCommandJSON(t *testing.T) {
	resetInspectGlobals()
	inspectFormat = "json"
	archivePath := testutil.BuildBackupArchive(t, testutil.DefaultManifest("Pixel-7", 14), nil)

	cmd, buf := newTestCommand()
	if err := runInspect(cmd, []string{archivePath}); err != nil {
		t.Fatalf("runInspect failed: %v", err)
	}

	var summary backupSummary
	testutil.AssertNoError(t, json.Unmarshal(buf.Bytes(), &summary))
	testutil.AssertEqual(t, "Pixel-7", summary.DeviceName)
	testutil.AssertEqual(t, 14, summary.SchemaVersion)
	testutil.AssertEqual(t, 8, len(summary.Records))
}

func TestInspectCommandDiffsManifests(t *testing.T) {
	resetInspectGlobals()
	a := testutil.BuildBackupArchive(t, testutil.DefaultManifest("Pixel-7", 14), nil)
	b := testutil.BuildBackupArchive(t, testutil.DefaultManifest("iPad", 14), nil)
	inspectDiff = b

	cmd, buf := newTestCommand()
	if err := runInspect(cmd, []string{a}); err != nil {
		t.Fatalf("runInspect failed: %v", err)
	}

	output := buf.String()
	testutil.AssertStringContains(t, output, "--- "+a)
	testutil.AssertStringContains(t, output, "+++ "+b)
	testutil.AssertStringContains(t, output, "Pixel-7")
	testutil.AssertStringContains(t, output, "iPad")
}

func TestVersionCommand(t *testing.T) {
	cmd, buf := newTestCommand()
	versionJSON = false
	if err := runVersion(cmd, nil); err != nil {
		t.Fatalf("runVersion failed: %v", err)
	}
	testutil.AssertStringContains(t, buf.String(), "jwlsync version dev")
}

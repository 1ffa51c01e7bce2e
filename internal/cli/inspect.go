package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/rfletcher/jwlsync/internal/archive"
	"github.com/rfletcher/jwlsync/internal/db"
	"github.com/rfletcher/jwlsync/internal/manifest"
	"github.com/rfletcher/jwlsync/internal/render"
	"github.com/rfletcher/jwlsync/internal/schema"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <backup>",
	Short: "Show a backup's manifest and record counts",
	Long: `Inspect a backup archive without modifying it: manifest fields plus the
number of records of each kind in its store.

Examples:
  jwlsync inspect phone.jwlibrary
  jwlsync inspect --format json phone.jwlibrary
  jwlsync inspect phone.jwlibrary --diff tablet.jwlibrary
`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

var (
	inspectFormat string
	inspectDiff   string
)

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().StringVar(&inspectFormat, "format", "table", "Output format (table, json, yaml)")
	inspectCmd.Flags().StringVar(&inspectDiff, "diff", "", "Diff the manifest against this backup's manifest instead")
}

type recordCount struct {
	Table string `json:"table" yaml:"table"`
	Rows  int    `json:"rows" yaml:"rows"`
}

type backupSummary struct {
	Archive       string        `json:"archive" yaml:"archive"`
	Name          string        `json:"name" yaml:"name"`
	DeviceName    string        `json:"device_name" yaml:"device_name"`
	LastModified  string        `json:"last_modified" yaml:"last_modified"`
	CreationDate  string        `json:"creation_date" yaml:"creation_date"`
	SchemaVersion int           `json:"schema_version" yaml:"schema_version"`
	Hash          string        `json:"hash" yaml:"hash"`
	Records       []recordCount `json:"records" yaml:"records"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	scratch, err := os.MkdirTemp("", "jwlsync-inspect-")
	if err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	m, storePath, err := loadBackup(args[0], filepath.Join(scratch, "a"))
	if err != nil {
		return err
	}

	if inspectDiff != "" {
		other, _, err := loadBackup(inspectDiff, filepath.Join(scratch, "b"))
		if err != nil {
			return err
		}
		return renderManifestDiff(cmd.OutOrStdout(), args[0], inspectDiff, m, other)
	}

	records, err := countRecords(storePath)
	if err != nil {
		return err
	}
	summary := &backupSummary{
		Archive:       args[0],
		Name:          m.Name,
		DeviceName:    m.UserDataBackup.DeviceName,
		LastModified:  m.UserDataBackup.LastModifiedDate,
		CreationDate:  m.CreationDate,
		SchemaVersion: m.UserDataBackup.SchemaVersion,
		Hash:          m.UserDataBackup.Hash,
		Records:       records,
	}

	out := cmd.OutOrStdout()
	r := render.NewRenderer(out, render.Options{Format: render.Format(inspectFormat)})
	switch render.Format(inspectFormat) {
	case render.FormatJSON:
		return r.RenderJSON(summary)
	case render.FormatYAML:
		return r.RenderYAML(summary)
	case render.FormatTable:
		return renderSummaryHuman(out, r, summary)
	default:
		return fmt.Errorf("unknown format: %s", inspectFormat)
	}
}

// loadBackup extracts the archive into dir and opens its manifest.
func loadBackup(archivePath, dir string) (*manifest.Manifest, string, error) {
	ws, err := archive.NewWorkspace(archivePath, dir, "backup", nil)
	if err != nil {
		return nil, "", err
	}
	m, err := manifest.Load(ws.File(manifest.Filename))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read backup %s: %w", archivePath, err)
	}
	dbName := m.UserDataBackup.DatabaseName
	if dbName != filepath.Base(dbName) {
		return nil, "", fmt.Errorf("backup %s names a store outside the archive (%q)", archivePath, dbName)
	}
	return m, ws.File(dbName), nil
}

func countRecords(storePath string) ([]recordCount, error) {
	store, err := db.OpenReadOnly(storePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	records := make([]recordCount, 0, len(schema.Schedule()))
	for _, step := range schema.Schedule() {
		n, err := store.CountRows(step.Table.Name())
		if err != nil {
			return nil, err
		}
		records = append(records, recordCount{Table: step.Table.Name(), Rows: n})
	}
	return records, nil
}

func renderSummaryHuman(w io.Writer, r *render.Renderer, summary *backupSummary) error {
	fmt.Fprintf(w, "archive: %s\n", summary.Archive)
	fmt.Fprintf(w, "name: %s\n", summary.Name)
	fmt.Fprintf(w, "device: %s\n", summary.DeviceName)
	fmt.Fprintf(w, "last modified: %s\n", summary.LastModified)
	fmt.Fprintf(w, "created: %s\n", summary.CreationDate)
	fmt.Fprintf(w, "schema version: %d\n", summary.SchemaVersion)
	fmt.Fprintf(w, "hash: %s\n", summary.Hash)
	fmt.Fprintln(w)

	headers := []string{"TABLE", "ROWS"}
	rows := make([][]string, 0, len(summary.Records))
	for _, rec := range summary.Records {
		rows = append(rows, []string{rec.Table, strconv.Itoa(rec.Rows)})
	}
	return r.RenderTable(headers, rows)
}

func renderManifestDiff(w io.Writer, fromName, toName string, from, to *manifest.Manifest) error {
	fromJSON, err := json.MarshalIndent(from, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	toJSON, err := json.MarshalIndent(to, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(fromJSON)),
		B:        difflib.SplitLines(string(toJSON)),
		FromFile: fromName,
		ToFile:   toName,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return fmt.Errorf("failed to diff manifests: %w", err)
	}
	if text == "" {
		fmt.Fprintln(w, "No manifest differences")
		return nil
	}
	fmt.Fprint(w, text)
	return nil
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rfletcher/jwlsync/internal/config"
	"github.com/rfletcher/jwlsync/internal/progress"
	"github.com/rfletcher/jwlsync/internal/render"
	"github.com/rfletcher/jwlsync/internal/sync"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <source> <dest>",
	Short: "Merge a source backup into a destination backup",
	Long: `Merge the records of the source backup into the destination backup and
write a new archive named merged_<timestamp>.jwlibrary. Both inputs are
left untouched.

Examples:
  jwlsync merge phone.jwlibrary tablet.jwlibrary
  jwlsync merge -o ~/backups phone.jwlibrary tablet.jwlibrary
  jwlsync merge --json phone.jwlibrary tablet.jwlibrary
`,
	Args: cobra.ExactArgs(2),
	RunE: runMerge,
}

var (
	mergeOutputDir string
	mergeJSON      bool
	mergeQuiet     bool
	mergeKeepTemp  bool
	mergeLogFile   string
)

func init() {
	rootCmd.AddCommand(mergeCmd)

	mergeCmd.Flags().StringVarP(&mergeOutputDir, "output-dir", "o", "", "Directory for the merged archive (default: current directory)")
	mergeCmd.Flags().BoolVar(&mergeJSON, "json", false, "Output the run report as JSON")
	mergeCmd.Flags().BoolVarP(&mergeQuiet, "quiet", "q", false, "Suppress progress output")
	mergeCmd.Flags().BoolVar(&mergeKeepTemp, "keep-temp", false, "Keep extraction workspaces for inspection")
	mergeCmd.Flags().StringVar(&mergeLogFile, "log-file", "", "Append run logs to this file")
}

func runMerge(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	outputDir := cfg.OutputDir
	if mergeOutputDir != "" {
		outputDir = mergeOutputDir
	}
	logFile := cfg.LogFile
	if mergeLogFile != "" {
		logFile = mergeLogFile
	}

	logger, closeLog, err := openLogger(logFile)
	if err != nil {
		return err
	}
	defer closeLog()

	var sink progress.Func
	if !mergeQuiet && !mergeJSON {
		out := cmd.OutOrStdout()
		sink = func(pct int, message string) {
			if message == "" {
				return
			}
			fmt.Fprintf(out, "[%3d%%] %s\n", pct, message)
		}
	}

	syncer := sync.New(sync.Options{
		WorkDir:        cfg.WorkDir,
		Logger:         logger,
		Progress:       sink,
		KeepWorkspaces: cfg.KeepTemp || mergeKeepTemp,
	})

	outPath, report, err := syncer.MergeFiles(args[0], args[1], outputDir)
	if err != nil {
		return err
	}

	if mergeJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}
	return renderMergeSummary(cmd.OutOrStdout(), outPath, report)
}

func renderMergeSummary(w io.Writer, outPath string, report *sync.Report) error {
	fmt.Fprintf(w, "\nMerged %s into %s: %d added, %d duplicates suppressed\n\n",
		report.Source.DeviceName, report.Destination.DeviceName,
		report.Inserted(), report.Duplicates())

	headers := []string{"TABLE", "READ", "INSERTED", "DUPLICATES", "RECOVERED"}
	rows := make([][]string, 0, len(report.Tables))
	for _, tc := range report.Tables {
		rows = append(rows, []string{
			tc.Table,
			strconv.Itoa(tc.Read),
			strconv.Itoa(tc.Inserted),
			strconv.Itoa(tc.Duplicates),
			strconv.Itoa(tc.Recovered),
		})
	}
	r := render.NewRenderer(w, render.Options{Format: render.FormatTable})
	if err := r.RenderTable(headers, rows); err != nil {
		return err
	}

	for _, warning := range report.Warnings {
		fmt.Fprintln(w, warningLine(warning.Table, warning.Column, warning.Value, warning.Reason))
	}

	size := ""
	if info, err := os.Stat(outPath); err == nil {
		size = " (" + humanize.Bytes(uint64(info.Size())) + ")"
	}
	fmt.Fprintf(w, "\nWrote %s%s\n", outPath, size)
	return nil
}

func warningLine(table, column string, value int64, reason string) string {
	if column == "" {
		return fmt.Sprintf("warning: %s: %s", table, reason)
	}
	return fmt.Sprintf("warning: %s.%s=%d: %s", table, column, value, reason)
}

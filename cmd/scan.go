package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"dupsieve/internal/cleanup"
	"dupsieve/internal/config"
	"dupsieve/internal/engine"
	"dupsieve/internal/models"
)

var (
	scanNoProgress bool
	scanDryRun     bool
)

var scanCmd = &cobra.Command{
	Use:   "scan <folder>",
	Short: "Scan a folder for duplicate images",
	Long: `Scan a folder for images and detect near-duplicates.

The scan will:
1. Find all supported images (png, jpg, jpeg, bmp, gif; svg is reported)
2. Compute a perceptual hash for each image
3. Compare every pair and group images at or above the threshold
4. Group byte-identical hashes separately as exact duplicates
5. Store results in the database for list, clean and serve

With --mode semi-auto the duplicates of exact groups are processed right
away; with --mode auto every similar group is processed. Processing means
--action move (into <folder>/Duplicates), delete or trash.

Press Ctrl+C to cancel; the partial result is reported but not stored.

Example:
  dupsieve scan ./photos
  dupsieve scan ./photos -a perceptual --hash-size 16 -t 90
  dupsieve scan ./photos --crop-resistant
  dupsieve scan ./photos --mode semi-auto --action trash`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	cfg.BindFlags(scanCmd.Flags())
	cfg.BindActionFlags(scanCmd.Flags())
	scanCmd.Flags().BoolVar(&scanNoProgress, "no-progress", false, "Don't show a progress bar")
	scanCmd.Flags().BoolVar(&scanDryRun, "dry-run", false, "Report what semi-auto or auto mode would do without touching files")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Resolve absolute path
	absFolder, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Check folder exists
	info, err := os.Stat(absFolder)
	if err != nil {
		return fmt.Errorf("folder not found: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", absFolder)
	}

	fmt.Printf("Scanning:  %s\n", absFolder)
	fmt.Printf("Algorithm: %s (size %d", cfg.Algorithm, cfg.HashSize)
	if cfg.CropResistant {
		fmt.Print(", crop-resistant")
	}
	fmt.Println(")")
	fmt.Printf("Threshold: %.1f%%\n", cfg.Threshold)
	fmt.Printf("Workers:   %d\n\n", cfg.Workers)

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	opts := []engine.Option{engine.WithStore(store), engine.WithLogger(slog.Default())}
	var bar *progressbar.ProgressBar
	if !scanNoProgress {
		bar = progressbar.Default(100, "Searching")
		opts = append(opts, engine.WithProgress(func(p float64) { bar.Set(int(p)) }))
	}

	e, err := engine.New(cfg, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := e.Run(ctx, absFolder)
	if bar != nil {
		bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	printScanSummary(result)
	if result.Cancelled || len(result.Groups) == 0 {
		return nil
	}

	if cfg.ActionMode == config.ModeManual {
		fmt.Println()
		fmt.Println("Run 'dupsieve list' to see duplicate groups")
		fmt.Println("Run 'dupsieve clean --dry-run' to preview the duplicates action")
		return nil
	}

	cleaner, err := cleanup.FromConfig(cfg, absFolder,
		cleanup.WithStore(store),
		cleanup.WithDryRun(scanDryRun),
		cleanup.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	out, err := cleaner.RunMode(cfg.ActionMode, result.Groups, result.ExactGroups)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("=== %s mode ===\n", cfg.ActionMode)
	printReport(out.Report, filepath.Join(absFolder, cfg.DuplicateFolder))
	fmt.Printf("Similar groups remaining: %d\n", len(out.Groups))
	return nil
}

func printScanSummary(result *models.Result) {
	fmt.Println()
	if result.Cancelled {
		fmt.Println("=== Scan Cancelled ===")
	} else {
		fmt.Println("=== Scan Complete ===")
	}
	fmt.Printf("Total images:     %d\n", len(result.Records))
	if len(result.Failures) > 0 {
		fmt.Printf("Skipped files:    %d\n", len(result.Failures))
		for _, f := range result.Failures {
			fmt.Printf("  %s: %v\n", f.Path, f.Err)
		}
	}
	if result.Cancelled {
		fmt.Println("Partial result, groups were not stored.")
		return
	}
	fmt.Printf("Comparisons:      %d\n", result.Comparisons)
	fmt.Printf("Duplicate groups: %d\n", len(result.Groups))
	fmt.Printf("Exact groups:     %d\n", len(result.ExactGroups))
	fmt.Printf("Duplicates found: %d\n", result.TotalDuplicates())
	fmt.Printf("Took:             %s\n", result.Duration.Round(time.Millisecond))
}

func printReport(report *cleanup.Report, destDir string) {
	verb := map[config.Action]string{
		config.ActionMove:   "Moved to " + destDir,
		config.ActionDelete: "Deleted",
		config.ActionTrash:  "Moved to trash",
	}[report.Action]
	if report.DryRun {
		verb = "Would process (" + string(report.Action) + ")"
	}

	fmt.Printf("%s: %d files (%s)\n", verb, len(report.Processed), formatSize(report.SizeMB()))
	if len(report.Skipped) > 0 {
		fmt.Printf("Already gone: %d files\n", len(report.Skipped))
	}
	if len(report.Failures) > 0 {
		fmt.Printf("Failed: %d files\n", len(report.Failures))
		for _, f := range report.Failures {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", f.Path, f.Err)
		}
	}
}

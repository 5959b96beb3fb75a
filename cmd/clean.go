package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"dupsieve/internal/cleanup"
	"dupsieve/internal/models"
	"dupsieve/internal/storage"
)

var (
	cleanDryRun    bool
	cleanNoConfirm bool
	cleanExact     bool
	cleanGroupIDs  []int
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Move, delete or trash duplicate images",
	Long: `Process the duplicates of the last scan, keeping the original of each group.

The original is the member with the highest resolution x DPI score; ties
prefer lossless formats, then the larger file.

Options:
  --action            move (default), delete or trash
  --duplicate-folder  Folder name under the scanned folder for moved files
  --dry-run           Preview what would be processed
  --exact             Clean exact-hash groups instead of similar groups
  --yes               Skip confirmation prompt
  --group             Specify group IDs to clean (can be used multiple times)

Example:
  dupsieve clean                       # Move into <folder>/Duplicates
  dupsieve clean --action trash        # Move to trash
  dupsieve clean --action delete -y    # Delete permanently, no prompt
  dupsieve clean --dry-run             # Preview only
  dupsieve clean --group=1 --group=3   # Clean only groups 1 and 3`,
	RunE: runClean,
}

func init() {
	cfg.BindActionFlags(cleanCmd.Flags())
	cleanCmd.Flags().BoolVar(&cleanDryRun, "dry-run", false, "Preview without touching files")
	cleanCmd.Flags().BoolVar(&cleanExact, "exact", false, "Clean exact-hash groups instead of similar groups")
	cleanCmd.Flags().BoolVarP(&cleanNoConfirm, "yes", "y", false, "Skip confirmation prompt")
	cleanCmd.Flags().IntSliceVarP(&cleanGroupIDs, "group", "g", nil, "Group IDs to clean (can be specified multiple times)")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	scan, err := store.LastScan()
	if errors.Is(err, storage.ErrNoScan) {
		fmt.Println("No scan recorded. Run 'dupsieve scan <folder>' first.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read last scan: %w", err)
	}

	kind := models.KindSimilar
	if cleanExact {
		kind = models.KindExact
	}
	groups, err := store.GetGroups(kind)
	if err != nil {
		return fmt.Errorf("failed to get groups: %w", err)
	}
	if len(groups) == 0 {
		fmt.Println("No duplicate groups found.")
		return nil
	}

	// Filter groups if --group is specified
	if len(cleanGroupIDs) > 0 {
		groups = lo.Filter(groups, func(g *models.DuplicateGroup, _ int) bool {
			return lo.Contains(cleanGroupIDs, g.ID)
		})
		if len(groups) == 0 {
			fmt.Printf("No matching groups found for IDs: %v\n", cleanGroupIDs)
			fmt.Println("Run 'dupsieve list' to see available group IDs.")
			return nil
		}
		fmt.Printf("Processing %d selected group(s): %v\n\n", len(groups), cleanGroupIDs)
	}

	destDir := filepath.Join(scan.Folder, cfg.DuplicateFolder)
	cleaner, err := cleanup.FromConfig(cfg, scan.Folder,
		cleanup.WithStore(store),
		cleanup.WithDryRun(cleanDryRun),
		cleanup.WithLogger(slog.Default()))
	if err != nil {
		return err
	}

	if cleanDryRun {
		report := cleaner.Apply(groups)
		fmt.Println("Files to be processed:")
		for _, rec := range report.Processed {
			fmt.Printf("  %s\n", rec.Path)
		}
		fmt.Println()
		printReport(report, destDir)
		fmt.Println("(Dry run - no files were modified)")
		return nil
	}

	// Confirm unless --yes flag is set
	count := lo.SumBy(groups, func(g *models.DuplicateGroup) int { return len(g.Duplicates) })
	if !cleanNoConfirm {
		fmt.Printf("Are you sure you want to %s %d files? [y/N]: ", cfg.DuplicatesAction, count)
		reader := bufio.NewReader(os.Stdin)
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	report := cleaner.Apply(groups)
	if err := cleanup.Forget(store, report.ProcessedIDs()); err != nil {
		return fmt.Errorf("failed to update groups: %w", err)
	}

	fmt.Println()
	printReport(report, destDir)
	return nil
}

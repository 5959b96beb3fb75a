package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"dupsieve/internal/models"
)

var (
	listJSON    bool
	listVerbose bool
	listSummary bool
	listExact   bool
	listLimit   int
	listOffset  int
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	keepStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	removeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all duplicate groups",
	Long: `Display the duplicate groups found by the last scan.

Each group shows:
- Group ID and average hash distance
- Images in the group with resolution, DPI, format and size
- The original to keep marked with ✓
- The duplicates marked with ✗

Example:
  dupsieve list              # Show first 10 groups (default)
  dupsieve list -n 0         # Show all groups
  dupsieve list -s           # Summary view (compact)
  dupsieve list --exact      # Byte-identical hash groups
  dupsieve list --offset 10  # Groups 11-20`,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	listCmd.Flags().BoolVarP(&listVerbose, "verbose", "v", false, "Show detailed image info")
	listCmd.Flags().BoolVarP(&listSummary, "summary", "s", false, "Show summary only (group counts and sizes)")
	listCmd.Flags().BoolVar(&listExact, "exact", false, "List exact-hash groups instead of similar groups")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 10, "Limit number of groups to display (0 = all)")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "Skip first N groups (for pagination)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	kind := models.KindSimilar
	if listExact {
		kind = models.KindExact
	}
	groups, err := store.GetGroups(kind)
	if err != nil {
		return fmt.Errorf("failed to get groups: %w", err)
	}

	if listJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(lo.Ternary(groups == nil, []*models.DuplicateGroup{}, groups))
	}

	if len(groups) == 0 {
		fmt.Printf("No %s duplicate groups found.\n", kind)
		fmt.Println("Run 'dupsieve scan <folder>' to scan for duplicates.")
		return nil
	}

	// Calculate totals
	totalDuplicates := lo.SumBy(groups, func(g *models.DuplicateGroup) int { return len(g.Duplicates) })
	totalSavings := lo.SumBy(groups, groupSavings)

	fmt.Println(headerStyle.Render(fmt.Sprintf("Found %d %s groups (%d duplicates, %s reclaimable)",
		len(groups), kind, totalDuplicates, formatSize(totalSavings))))
	fmt.Println()

	// Apply pagination
	totalGroups := len(groups)
	startIdx := min(listOffset, len(groups))
	groups = groups[startIdx:]
	if listLimit > 0 && listLimit < len(groups) {
		groups = groups[:listLimit]
	}

	// Display groups
	if len(groups) == 0 {
		fmt.Printf("No groups in range (offset %d exceeds total %d)\n", listOffset, totalGroups)
	} else if listSummary {
		printSummaryTable(groups)
	} else {
		for _, group := range groups {
			printGroup(group, listVerbose)
		}
	}

	// Show pagination info
	endIdx := startIdx + len(groups)
	if len(groups) > 0 {
		fmt.Println(infoStyle.Render(fmt.Sprintf("Showing groups %d-%d of %d", startIdx+1, endIdx, totalGroups)))
		if endIdx < totalGroups {
			limitArg := ""
			if listLimit > 0 {
				limitArg = fmt.Sprintf(" -n %d", listLimit)
			}
			fmt.Println(infoStyle.Render(fmt.Sprintf("Next page: dupsieve list%s --offset %d", limitArg, endIdx)))
		}
	}

	fmt.Println()
	fmt.Println("Run 'dupsieve clean --dry-run' to preview the duplicates action")
	return nil
}

func groupSavings(g *models.DuplicateGroup) float64 {
	return lo.SumBy(g.Duplicates, func(r *models.Record) float64 { return r.SizeMB })
}

func printSummaryTable(groups []*models.DuplicateGroup) {
	fmt.Println(headerStyle.Render(fmt.Sprintf("%-8s  %-8s  %-9s  %-12s  %s", "Group", "Images", "Distance", "Reclaimable", "Keep (best quality)")))
	fmt.Println(strings.Repeat("-", 78))

	for _, group := range groups {
		keepName := filepath.Base(group.Original.Path)
		if len(keepName) > 35 {
			keepName = keepName[:32] + "..."
		}

		fmt.Printf("#%-7d  %-8d  %-9.4f  %-12s  %s\n",
			group.ID, len(group.Members), group.AvgDistance, formatSize(groupSavings(group)), keepName)
	}
	fmt.Println()
}

func printGroup(group *models.DuplicateGroup, verbose bool) {
	fmt.Println(headerStyle.Render(fmt.Sprintf("Group #%d (%d images, avg distance %.4f)",
		group.ID, len(group.Members), group.AvgDistance)))
	fmt.Println(strings.Repeat("-", 60))

	for _, img := range group.Members {
		marker := removeStyle.Render("✗")
		if img.ID == group.Original.ID {
			marker = keepStyle.Render("✓")
		}

		if verbose {
			fmt.Printf("  %s %s\n", marker, img.Path)
			fmt.Printf("      Resolution: %dx%d @ %d dpi  Format: %s  Size: %s\n",
				img.Width, img.Height, img.DPI, strings.ToUpper(img.Format), formatSize(img.SizeMB))
			fmt.Printf("      Hash: %s\n", infoStyle.Render(img.Hash))
		} else {
			fmt.Printf("  %s %-40s  %dx%d  %4d dpi  %-4s  %9s\n",
				marker, shortenPath(img.Path, 40), img.Width, img.Height, img.DPI,
				strings.ToUpper(img.Format), formatSize(img.SizeMB))
		}
	}
	fmt.Println()
}

func shortenPath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}

	// Try to show filename and as much of the path as possible
	dir, file := filepath.Split(path)
	if len(file) >= maxLen-3 {
		return "..." + file[len(file)-(maxLen-3):]
	}

	remaining := maxLen - len(file) - 4 // 4 for ".../"
	if remaining > 0 && len(dir) > remaining {
		dir = dir[len(dir)-remaining:]
	}
	return "..." + dir + file
}

func formatSize(mb float64) string {
	switch {
	case mb >= 1024:
		return fmt.Sprintf("%.1f GB", mb/1024)
	case mb >= 1:
		return fmt.Sprintf("%.1f MB", mb)
	default:
		return fmt.Sprintf("%.1f KB", mb*1024)
	}
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"dupsieve/internal/match"
	"dupsieve/internal/scan"
)

var compareHashes bool

var compareCmd = &cobra.Command{
	Use:   "compare <a> <b>",
	Short: "Compare two images or two hash texts",
	Long: `Report the normalized distance and similarity of two fingerprints and
whether they count as duplicates at --threshold.

With --hashes both arguments are hash texts as printed by 'dupsieve hash'.

Example:
  dupsieve compare a.jpg b.jpg
  dupsieve compare -t 90 -a difference a.jpg b.jpg
  dupsieve compare --hashes ff00ff00ff00ff00 ff00ff00ff00ff01`,
	Args: cobra.ExactArgs(2),
	RunE: runCompare,
}

func init() {
	cfg.BindFlags(compareCmd.Flags())
	compareCmd.Flags().BoolVar(&compareHashes, "hashes", false, "Arguments are hash texts instead of files")
	rootCmd.AddCommand(compareCmd)
}

func runCompare(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	texts := args
	if !compareHashes {
		scanner, err := scan.FromConfig(cfg)
		if err != nil {
			return err
		}
		texts = make([]string, len(args))
		for i, path := range args {
			rec, err := scanner.HashFile(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			texts[i] = rec.Hash
		}
	}

	distance, dup, err := match.CompareText(texts[0], texts[1], cfg.Threshold)
	if err != nil {
		return err
	}

	fmt.Printf("A:          %s\n", texts[0])
	fmt.Printf("B:          %s\n", texts[1])
	fmt.Printf("Distance:   %.4f\n", distance)
	fmt.Printf("Similarity: %.2f%% (threshold %.0f%%)\n", (1-distance)*100, match.Similarity(cfg.Threshold)*100)
	if dup {
		fmt.Println(keepStyle.Render("Duplicate"))
	} else {
		fmt.Println(removeStyle.Render("Not a duplicate"))
	}
	return nil
}

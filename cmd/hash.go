package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dupsieve/internal/models"
	"dupsieve/internal/scan"
)

var hashJSON bool

var hashCmd = &cobra.Command{
	Use:   "hash <file>...",
	Short: "Print the fingerprint of image files",
	Long: `Decode each file and print its hash text with the configured algorithm.

Crop-resistant fingerprints print as comma-joined segment hashes.

Example:
  dupsieve hash photo.jpg
  dupsieve hash -a perceptual --hash-size 16 *.png
  dupsieve hash --crop-resistant --json photo.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runHash,
}

func init() {
	cfg.BindFlags(hashCmd.Flags())
	hashCmd.Flags().BoolVar(&hashJSON, "json", false, "Output records in JSON format")
	rootCmd.AddCommand(hashCmd)
}

func runHash(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	scanner, err := scan.FromConfig(cfg)
	if err != nil {
		return err
	}

	var records []*models.Record
	failed := 0
	for _, path := range args {
		rec, err := scanner.HashFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed++
			continue
		}
		if hashJSON {
			records = append(records, rec)
			continue
		}
		fmt.Printf("%s  %s\n", rec.Hash, rec.Path)
	}

	if hashJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files could not be hashed", failed, len(args))
	}
	return nil
}

package models

import (
	"fmt"
	"time"
)

// Record holds the hash and metadata of one processed image file
type Record struct {
	ID     int64   `json:"id"`
	Path   string  `json:"path"`
	Hash   string  `json:"hash"` // hex text, comma-joined for multi-hashes
	Width  int     `json:"width"`
	Height int     `json:"height"`
	DPI    int     `json:"dpi"`
	SizeMB float64 `json:"size_mb"`
	Format string  `json:"format"`
}

// Score is the pixel count weighted by resolution, used to pick the original
func (r *Record) Score() int64 {
	return int64(r.Width) * int64(r.Height) * int64(r.DPI)
}

// GroupKind tells how a group was formed
type GroupKind string

const (
	KindSimilar GroupKind = "similar"
	KindExact   GroupKind = "exact"
)

// DuplicateGroup represents a set of images considered the same picture
type DuplicateGroup struct {
	ID          int       `json:"id"`
	Kind        GroupKind `json:"kind"`
	Members     []*Record `json:"members"`
	Original    *Record   `json:"original"`   // Image to keep (highest score)
	Duplicates  []*Record `json:"duplicates"` // Images to move or delete
	AvgDistance float64   `json:"avg_distance"`
}

// IDs returns the member ids in member order
func (g *DuplicateGroup) IDs() []int64 {
	ids := make([]int64, len(g.Members))
	for i, m := range g.Members {
		ids[i] = m.ID
	}
	return ids
}

// FileFailure records a file that could not contribute to a run
type FileFailure struct {
	Path  string `json:"path"`
	Stage string `json:"stage"`
	Err   error  `json:"-"`
}

func (f *FileFailure) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Stage, f.Path, f.Err)
}

func (f *FileFailure) Unwrap() error {
	return f.Err
}

// Result holds the outcome of one duplicate search
type Result struct {
	Folder      string            `json:"folder"`
	Cancelled   bool              `json:"cancelled"`
	Records     []*Record         `json:"-"`
	Groups      []*DuplicateGroup `json:"groups"`
	ExactGroups []*DuplicateGroup `json:"exact_groups"`
	Failures    []*FileFailure    `json:"-"`
	Comparisons int64             `json:"comparisons"`
	Duration    time.Duration     `json:"duration"`
}

// TotalDuplicates counts images that are not the original of their group
func (r *Result) TotalDuplicates() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Duplicates)
	}
	return n
}

// FormatQualityMultiplier ranks formats when scores tie
func FormatQualityMultiplier(format string) float64 {
	switch format {
	case "png", "bmp":
		return 1.2 // Lossless formats
	case "jpeg", "jpg":
		return 1.0 // Lossy
	case "gif":
		return 0.9 // Limited colors
	default:
		return 1.0
	}
}

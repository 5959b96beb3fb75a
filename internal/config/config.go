// Package config holds the explicit run configuration passed to the engine
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"dupsieve/internal/hash"
)

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid config")

// SortOrder orders similar groups by average distance
type SortOrder string

const (
	SortAscending  SortOrder = "ascending"
	SortDescending SortOrder = "descending"
)

// IndexStrategy selects how candidate pairs are found
type IndexStrategy string

const (
	IndexPairwise IndexStrategy = "pairwise"
	IndexBKTree   IndexStrategy = "bktree"
)

// ActionMode decides which groups are processed automatically after a scan
type ActionMode string

const (
	ModeManual   ActionMode = "manual"
	ModeSemiAuto ActionMode = "semi-auto"
	ModeAuto     ActionMode = "auto"
)

// Action is what happens to a duplicate file
type Action string

const (
	ActionMove   Action = "move"
	ActionDelete Action = "delete"
	ActionTrash  Action = "trash"
)

// HashSizes lists the accepted hash sizes
var HashSizes = []int{8, 16, 32, 64, 128}

// DefaultExtensions is the file extension allow-list
var DefaultExtensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".gif", ".svg"}

type Config struct {
	Algorithm        hash.Algorithm
	HashSize         int
	BlockSize        int // ring hash, 0 derives 2*HashSize
	HighFreqFactor   int // perceptual hash, 0 derives 2*HashSize
	CropResistant    bool
	SegmentThreshold int
	MinSegmentSize   int
	LimitSegments    int
	Threshold        float64 // percent
	Recursive        bool
	Workers          int
	Sort             SortOrder
	Index            IndexStrategy
	HashTimeout      time.Duration
	Extensions       []string
	ActionMode       ActionMode
	DuplicatesAction Action
	DuplicateFolder  string
}

// Default returns the stock configuration
func Default() *Config {
	return &Config{
		Algorithm:        hash.Ring,
		HashSize:         8,
		CropResistant:    false,
		SegmentThreshold: 128,
		MinSegmentSize:   300,
		Threshold:        97.0,
		Recursive:        false,
		Workers:          runtime.NumCPU(),
		Sort:             SortAscending,
		Index:            IndexPairwise,
		HashTimeout:      30 * time.Second,
		Extensions:       slices.Clone(DefaultExtensions),
		ActionMode:       ModeManual,
		DuplicatesAction: ActionMove,
		DuplicateFolder:  "Duplicates",
	}
}

// Load returns the defaults overridden by DUPSIEVE_* environment variables
func Load() *Config {
	c := Default()
	if v := os.Getenv("DUPSIEVE_ALGORITHM"); v != "" {
		if a, err := hash.ParseAlgorithm(v); err == nil {
			c.Algorithm = a
		}
	}
	c.HashSize = getEnvInt("DUPSIEVE_HASH_SIZE", c.HashSize)
	c.BlockSize = getEnvInt("DUPSIEVE_BLOCK_SIZE", c.BlockSize)
	c.HighFreqFactor = getEnvInt("DUPSIEVE_HIGHFREQ_FACTOR", c.HighFreqFactor)
	c.CropResistant = getEnvBool("DUPSIEVE_CROP_RESISTANT", c.CropResistant)
	c.SegmentThreshold = getEnvInt("DUPSIEVE_SEGMENT_THRESHOLD", c.SegmentThreshold)
	c.MinSegmentSize = getEnvInt("DUPSIEVE_MIN_SEGMENT_SIZE", c.MinSegmentSize)
	c.LimitSegments = getEnvInt("DUPSIEVE_LIMIT_SEGMENTS", c.LimitSegments)
	c.Threshold = getEnvFloat("DUPSIEVE_THRESHOLD", c.Threshold)
	c.Recursive = getEnvBool("DUPSIEVE_RECURSIVE", c.Recursive)
	c.Workers = getEnvInt("DUPSIEVE_WORKERS", c.Workers)
	c.Sort = SortOrder(getEnv("DUPSIEVE_SORT", string(c.Sort)))
	c.Index = IndexStrategy(getEnv("DUPSIEVE_INDEX", string(c.Index)))
	c.HashTimeout = getEnvDuration("DUPSIEVE_HASH_TIMEOUT", c.HashTimeout)
	c.Extensions = getEnvList("DUPSIEVE_EXTENSIONS", c.Extensions)
	c.ActionMode = ActionMode(getEnv("DUPSIEVE_ACTION_MODE", string(c.ActionMode)))
	c.DuplicatesAction = Action(getEnv("DUPSIEVE_DUPLICATES_ACTION", string(c.DuplicatesAction)))
	c.DuplicateFolder = getEnv("DUPSIEVE_DUPLICATE_FOLDER", c.DuplicateFolder)
	return c
}

// Validate checks ranges and enum values
func (c *Config) Validate() error {
	if _, err := hash.ParseAlgorithm(c.Algorithm.String()); err != nil {
		return fmt.Errorf("%w: unknown algorithm %v", ErrInvalidConfig, c.Algorithm)
	}
	if !slices.Contains(HashSizes, c.HashSize) {
		return fmt.Errorf("%w: hash size %d not one of %v", ErrInvalidConfig, c.HashSize, HashSizes)
	}
	if c.BlockSize != 0 && !hash.IsPowerOfTwo(c.BlockSize) {
		return fmt.Errorf("%w: block size %d is not a power of two", ErrInvalidConfig, c.BlockSize)
	}
	if c.HighFreqFactor != 0 && !hash.IsPowerOfTwo(c.HighFreqFactor) {
		return fmt.Errorf("%w: high frequency factor %d is not a power of two", ErrInvalidConfig, c.HighFreqFactor)
	}
	if c.Threshold < 10 || c.Threshold > 100 {
		return fmt.Errorf("%w: threshold %.1f outside 10-100", ErrInvalidConfig, c.Threshold)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1", ErrInvalidConfig)
	}
	if c.MinSegmentSize < 1 || c.LimitSegments < 0 {
		return fmt.Errorf("%w: segment limits must be positive", ErrInvalidConfig)
	}
	if c.SegmentThreshold < 0 || c.SegmentThreshold > 255 {
		return fmt.Errorf("%w: segment threshold %d outside 0-255", ErrInvalidConfig, c.SegmentThreshold)
	}
	switch c.Sort {
	case SortAscending, SortDescending:
	default:
		return fmt.Errorf("%w: sort %q", ErrInvalidConfig, c.Sort)
	}
	switch c.Index {
	case IndexPairwise:
	case IndexBKTree:
		if c.CropResistant {
			return fmt.Errorf("%w: bktree index needs single hashes, disable crop resistance", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: index %q", ErrInvalidConfig, c.Index)
	}
	switch c.ActionMode {
	case ModeManual, ModeSemiAuto, ModeAuto:
	default:
		return fmt.Errorf("%w: action mode %q", ErrInvalidConfig, c.ActionMode)
	}
	switch c.DuplicatesAction {
	case ActionMove, ActionDelete, ActionTrash:
	default:
		return fmt.Errorf("%w: duplicates action %q", ErrInvalidConfig, c.DuplicatesAction)
	}
	if c.DuplicatesAction == ActionMove && strings.TrimSpace(c.DuplicateFolder) == "" {
		return fmt.Errorf("%w: duplicate folder name is empty", ErrInvalidConfig)
	}
	return nil
}

// AuxParam is the algorithm's second size parameter: the ring block size or
// the perceptual high-frequency factor
func (c *Config) AuxParam() int {
	switch c.Algorithm {
	case hash.Ring:
		if c.BlockSize != 0 {
			return c.BlockSize
		}
	case hash.Perceptual:
		if c.HighFreqFactor != 0 {
			return c.HighFreqFactor
		}
	default:
		return 0
	}
	return 2 * c.HashSize
}

// Hasher builds the configured single-hash algorithm
func (c *Config) Hasher() (hash.Hasher, error) {
	return hash.NewHasher(c.Algorithm, c.HashSize, c.AuxParam())
}

// CropOptions returns the segmentation options for crop-resistant hashing
func (c *Config) CropOptions() []hash.CropOption {
	return []hash.CropOption{
		hash.WithSegmentThreshold(c.SegmentThreshold),
		hash.WithMinSegmentSize(c.MinSegmentSize),
		hash.WithLimitSegments(c.LimitSegments),
	}
}

// algorithmValue adapts hash.Algorithm to pflag.Value
type algorithmValue struct {
	a *hash.Algorithm
}

func (v algorithmValue) String() string {
	if v.a == nil {
		return ""
	}
	return v.a.String()
}

func (v algorithmValue) Set(s string) error {
	a, err := hash.ParseAlgorithm(s)
	if err != nil {
		return err
	}
	*v.a = a
	return nil
}

func (v algorithmValue) Type() string {
	return "algorithm"
}

// BindFlags registers the hashing and matching settings on fs
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.VarP(algorithmValue{&c.Algorithm}, "algorithm", "a", "Hash algorithm: average, difference, perceptual, ring")
	fs.IntVar(&c.HashSize, "hash-size", c.HashSize, "Hash size (8, 16, 32, 64, 128)")
	fs.IntVar(&c.BlockSize, "block-size", c.BlockSize, "Ring hash block size (0 = 2 x hash size)")
	fs.IntVar(&c.HighFreqFactor, "highfreq-factor", c.HighFreqFactor, "Perceptual hash high frequency factor (0 = 2 x hash size)")
	fs.BoolVar(&c.CropResistant, "crop-resistant", c.CropResistant, "Hash image segments to tolerate cropping")
	fs.IntVar(&c.SegmentThreshold, "segment-threshold", c.SegmentThreshold, "Luma level separating bright and dark segments")
	fs.IntVar(&c.MinSegmentSize, "min-segment-size", c.MinSegmentSize, "Smallest segment in pixels")
	fs.IntVar(&c.LimitSegments, "limit-segments", c.LimitSegments, "Keep only the N largest segments (0 = all)")
	fs.Float64VarP(&c.Threshold, "threshold", "t", c.Threshold, "Similarity threshold in percent (10-100)")
	fs.BoolVarP(&c.Recursive, "recursive", "r", c.Recursive, "Scan subdirectories")
	fs.IntVarP(&c.Workers, "workers", "w", c.Workers, "Number of parallel workers")
	fs.StringVar((*string)(&c.Sort), "sort", string(c.Sort), "Sort similar groups by distance: ascending, descending")
	fs.StringVar((*string)(&c.Index), "index", string(c.Index), "Pair search: pairwise, bktree")
	fs.DurationVar(&c.HashTimeout, "hash-timeout", c.HashTimeout, "Timeout for hashing one image")
	fs.StringSliceVar(&c.Extensions, "extensions", c.Extensions, "File extensions to scan")
}

// BindActionFlags registers the duplicate handling settings on fs
func (c *Config) BindActionFlags(fs *pflag.FlagSet) {
	fs.StringVar((*string)(&c.ActionMode), "mode", string(c.ActionMode), "Action mode: manual, semi-auto, auto")
	fs.StringVar((*string)(&c.DuplicatesAction), "action", string(c.DuplicatesAction), "Duplicates action: move, delete, trash")
	fs.StringVar(&c.DuplicateFolder, "duplicate-folder", c.DuplicateFolder, "Folder name for moved duplicates")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		return result
	}
	return def
}

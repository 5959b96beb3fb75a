package scan

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"dupsieve/internal/config"
	"dupsieve/internal/hash"
	"dupsieve/internal/models"
)

// ErrTimeout is returned when hashing one file takes longer than allowed
var ErrTimeout = errors.New("hash timeout")

// Fingerprinter hashes a decoded image
type Fingerprinter func(img image.Image) (hash.Fingerprint, error)

// NewFingerprinter builds the configured hash, wrapped in crop-resistant
// segmentation when enabled
func NewFingerprinter(cfg *config.Config) (Fingerprinter, error) {
	hasher, err := cfg.Hasher()
	if err != nil {
		return nil, err
	}
	if !cfg.CropResistant {
		return func(img image.Image) (hash.Fingerprint, error) {
			return hasher.Hash(img)
		}, nil
	}
	opts := cfg.CropOptions()
	return func(img image.Image) (hash.Fingerprint, error) {
		return hash.CropResistantHash(img, hasher, opts...)
	}, nil
}

// Scanner scans folders for images and computes hashes
type Scanner struct {
	fingerprint Fingerprinter
	workers     int
	timeout     time.Duration
	recursive   bool
	extensions  []string
	skipDirs    []string
	progressFn  func(scanned, total int, current string)
	logger      *slog.Logger
}

// Option configures a Scanner
type Option func(*Scanner)

// WithWorkers sets the number of parallel workers
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithTimeout sets the timeout for hashing each image
func WithTimeout(d time.Duration) Option {
	return func(s *Scanner) {
		s.timeout = d
	}
}

// WithRecursive enables descending into subdirectories
func WithRecursive(r bool) Option {
	return func(s *Scanner) {
		s.recursive = r
	}
}

// WithExtensions replaces the extension allow-list
func WithExtensions(exts []string) Option {
	return func(s *Scanner) {
		if len(exts) > 0 {
			s.extensions = exts
		}
	}
}

// WithSkipDirs names directories that are never descended into
func WithSkipDirs(names ...string) Option {
	return func(s *Scanner) {
		s.skipDirs = append(s.skipDirs, names...)
	}
}

// WithProgress sets a progress callback. It is called once per file,
// including files that fail.
func WithProgress(fn func(scanned, total int, current string)) Option {
	return func(s *Scanner) {
		s.progressFn = fn
	}
}

// WithLogger sets the logger for per-file failures
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewScanner creates a new Scanner
func NewScanner(fp Fingerprinter, opts ...Option) *Scanner {
	s := &Scanner{
		fingerprint: fp,
		workers:     8,
		timeout:     30 * time.Second,
		extensions:  config.DefaultExtensions,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FromConfig creates a Scanner for cfg
func FromConfig(cfg *config.Config, opts ...Option) (*Scanner, error) {
	fp, err := NewFingerprinter(cfg)
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithWorkers(cfg.Workers),
		WithTimeout(cfg.HashTimeout),
		WithRecursive(cfg.Recursive),
		WithExtensions(cfg.Extensions),
	}
	if cfg.DuplicateFolder != "" {
		base = append(base, WithSkipDirs(cfg.DuplicateFolder))
	}
	return NewScanner(fp, append(base, opts...)...), nil
}

// Batch is the outcome of hashing a set of files
type Batch struct {
	Records  []*models.Record
	Failures []*models.FileFailure
}

// Discover lists the supported image files under folder in lexical order
func (s *Scanner) Discover(folder string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == folder {
				return err
			}
			return nil // Skip unreadable entries
		}
		if d.IsDir() {
			if path == folder {
				return nil
			}
			if !s.recursive || slices.Contains(s.skipDirs, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if IsSupportedImage(path, s.extensions) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk folder: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// ScanFolder discovers and hashes every image in folder
func (s *Scanner) ScanFolder(ctx context.Context, folder string) (*Batch, error) {
	paths, err := s.Discover(folder)
	if err != nil {
		return nil, err
	}
	return s.ScanPaths(ctx, paths)
}

// ScanPaths hashes paths on the worker pool. Records get ids 1..n in path
// order. If ctx is cancelled the partial batch is returned with ctx.Err()
// without waiting for files still being hashed.
func (s *Scanner) ScanPaths(ctx context.Context, paths []string) (*Batch, error) {
	batch := &Batch{}
	if len(paths) == 0 {
		return batch, nil
	}

	// Process images in parallel
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		scanned int64
		total   = len(paths)
	)

	// Feed work until cancelled
	work := make(chan string)
	go func() {
		defer close(work)
		for _, p := range paths {
			select {
			case work <- p:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Start workers
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range work {
				if ctx.Err() != nil {
					continue
				}
				rec, err := s.HashFileWithTimeout(ctx, path)

				mu.Lock()
				if err != nil {
					if ctx.Err() == nil {
						batch.Failures = append(batch.Failures, &models.FileFailure{Path: path, Stage: "hash", Err: err})
						s.logger.Warn("skipping image", "path", path, "error", err)
					}
				} else {
					batch.Records = append(batch.Records, rec)
				}
				mu.Unlock()

				n := atomic.AddInt64(&scanned, 1)
				if s.progressFn != nil {
					s.progressFn(int(n), total, path)
				}
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	mu.Lock()
	out := &Batch{
		Records:  slices.Clone(batch.Records),
		Failures: slices.Clone(batch.Failures),
	}
	mu.Unlock()

	sort.Slice(out.Records, func(i, j int) bool { return out.Records[i].Path < out.Records[j].Path })
	for i, r := range out.Records {
		r.ID = int64(i + 1)
	}
	sort.Slice(out.Failures, func(i, j int) bool { return out.Failures[i].Path < out.Failures[j].Path })
	return out, err
}

// HashFile decodes and hashes one image into a record without an id
func (s *Scanner) HashFile(path string) (*models.Record, error) {
	dec, err := Decode(path)
	if err != nil {
		return nil, err
	}
	fp, err := s.fingerprint(dec.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to compute hash: %w", err)
	}
	return &models.Record{
		Path:   path,
		Hash:   fp.String(),
		Width:  dec.Width,
		Height: dec.Height,
		DPI:    dec.DPI,
		SizeMB: dec.SizeMB,
		Format: dec.Format,
	}, nil
}

// HashFileWithTimeout hashes an image with a timeout
func (s *Scanner) HashFileWithTimeout(ctx context.Context, path string) (*models.Record, error) {
	done := make(chan struct{})
	var rec *models.Record
	var err error

	go func() {
		rec, err = s.HashFile(path)
		close(done)
	}()

	var timeout <-chan time.Time
	if s.timeout > 0 {
		timer := time.NewTimer(s.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-done:
		return rec, err
	case <-timeout:
		return nil, fmt.Errorf("%w: %s", ErrTimeout, path)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

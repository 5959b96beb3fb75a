// Package cleanup applies the duplicates action to grouped images and keeps
// the remaining groups consistent
package cleanup

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/samber/lo"

	"dupsieve/internal/config"
	"dupsieve/internal/fileutil"
	"dupsieve/internal/match"
	"dupsieve/internal/models"
)

// Store is the persistence cleanup updates after acting on files
type Store interface {
	DeleteRecord(id int64) error
	SaveGroups(kind models.GroupKind, groups []*models.DuplicateGroup) error
}

// GroupStore reads and rewrites persisted groups
type GroupStore interface {
	GetGroups(kind models.GroupKind) ([]*models.DuplicateGroup, error)
	SaveGroups(kind models.GroupKind, groups []*models.DuplicateGroup) error
}

// Forget removes ids from the stored groups of both kinds
func Forget(store GroupStore, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	for _, kind := range []models.GroupKind{models.KindSimilar, models.KindExact} {
		groups, err := store.GetGroups(kind)
		if err != nil {
			return err
		}
		if err := store.SaveGroups(kind, UpdateGroups(groups, ids)); err != nil {
			return err
		}
	}
	return nil
}

// Report summarises one cleanup pass
type Report struct {
	Action    config.Action
	DryRun    bool
	Processed []*models.Record
	Skipped   []*models.Record // already gone from disk
	Failures  []*models.FileFailure
}

// SizeMB is the total size of the processed files
func (r *Report) SizeMB() float64 {
	return lo.SumBy(r.Processed, func(rec *models.Record) float64 { return rec.SizeMB })
}

// ProcessedIDs returns the ids of the processed records
func (r *Report) ProcessedIDs() []int64 {
	return lo.Map(r.Processed, func(rec *models.Record, _ int) int64 { return rec.ID })
}

// Cleaner moves, trashes or deletes duplicates
type Cleaner struct {
	action  config.Action
	destDir string
	dryRun  bool
	store   Store
	logger  *slog.Logger
}

// Option configures a Cleaner
type Option func(*Cleaner)

// WithDryRun reports what would happen without touching files
func WithDryRun(dry bool) Option {
	return func(c *Cleaner) {
		c.dryRun = dry
	}
}

// WithStore removes processed records from s and saves updated groups
func WithStore(s Store) Option {
	return func(c *Cleaner) {
		c.store = s
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Cleaner) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Cleaner. destDir is only used by the move action.
func New(action config.Action, destDir string, opts ...Option) (*Cleaner, error) {
	switch action {
	case config.ActionMove:
		if destDir == "" {
			return nil, fmt.Errorf("%w: move needs a destination", config.ErrInvalidConfig)
		}
	case config.ActionDelete, config.ActionTrash:
	default:
		return nil, fmt.Errorf("%w: duplicates action %q", config.ErrInvalidConfig, action)
	}

	c := &Cleaner{action: action, destDir: destDir, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FromConfig creates a Cleaner that moves into <folder>/<duplicate folder>
func FromConfig(cfg *config.Config, folder string, opts ...Option) (*Cleaner, error) {
	return New(cfg.DuplicatesAction, filepath.Join(folder, cfg.DuplicateFolder), opts...)
}

// Apply acts on every duplicate of groups. Originals are never touched.
func (c *Cleaner) Apply(groups []*models.DuplicateGroup) *Report {
	report := &Report{Action: c.action, DryRun: c.dryRun}

	originals := make(map[int64]bool, len(groups))
	for _, g := range groups {
		if g.Original != nil {
			originals[g.Original.ID] = true
		}
	}

	seen := make(map[int64]bool)
	for _, g := range groups {
		for _, rec := range g.Duplicates {
			if seen[rec.ID] || originals[rec.ID] {
				continue
			}
			seen[rec.ID] = true

			if _, err := os.Stat(rec.Path); errors.Is(err, os.ErrNotExist) {
				report.Skipped = append(report.Skipped, rec)
				continue
			}
			if c.dryRun {
				report.Processed = append(report.Processed, rec)
				continue
			}

			if err := c.act(rec.Path); err != nil {
				c.logger.Warn("failed to process duplicate", "path", rec.Path, "action", c.action, "error", err)
				report.Failures = append(report.Failures, &models.FileFailure{Path: rec.Path, Stage: "clean", Err: err})
				continue
			}
			c.logger.Debug("processed duplicate", "path", rec.Path, "action", c.action)
			report.Processed = append(report.Processed, rec)

			if c.store != nil {
				if err := c.store.DeleteRecord(rec.ID); err != nil {
					c.logger.Warn("failed to remove record", "id", rec.ID, "error", err)
				}
			}
		}
	}
	return report
}

func (c *Cleaner) act(path string) error {
	switch c.action {
	case config.ActionMove:
		_, err := fileutil.MoveFile(path, c.destDir)
		return err
	case config.ActionDelete:
		return fileutil.Delete(path)
	default:
		return fileutil.MoveToTrash(path)
	}
}

// UpdateGroups drops processed ids from groups. Groups left with fewer than
// two members vanish; the rest get their original and distance recomputed
// and are renumbered in their existing order.
func UpdateGroups(groups []*models.DuplicateGroup, processed []int64) []*models.DuplicateGroup {
	if len(groups) == 0 {
		return nil
	}
	gone := lo.SliceToMap(processed, func(id int64) (int64, bool) { return id, true })

	byID := make(map[int64]*models.Record)
	sets := make([][]int64, 0, len(groups))
	for _, g := range groups {
		var ids []int64
		for _, m := range g.Members {
			if gone[m.ID] {
				continue
			}
			byID[m.ID] = m
			ids = append(ids, m.ID)
		}
		sets = append(sets, ids)
	}
	return match.BuildGroups(sets, byID, groups[0].Kind)
}

// Outcome is the state after a mode has been applied
type Outcome struct {
	Report      *Report
	Groups      []*models.DuplicateGroup
	ExactGroups []*models.DuplicateGroup
}

// RunMode applies mode to a search result's groups:
//   - manual leaves everything untouched
//   - semi-auto processes the exact groups, then drops those files from the
//     similar groups
//   - auto processes every similar group
func (c *Cleaner) RunMode(mode config.ActionMode, groups, exact []*models.DuplicateGroup) (*Outcome, error) {
	out := &Outcome{Groups: groups, ExactGroups: exact}

	switch mode {
	case config.ModeManual:
		out.Report = &Report{Action: c.action, DryRun: c.dryRun}
		return out, nil
	case config.ModeSemiAuto:
		out.Report = c.Apply(exact)
	case config.ModeAuto:
		out.Report = c.Apply(groups)
	default:
		return nil, fmt.Errorf("%w: action mode %q", config.ErrInvalidConfig, mode)
	}

	if c.dryRun {
		return out, nil
	}

	processed := out.Report.ProcessedIDs()
	out.Groups = UpdateGroups(groups, processed)
	out.ExactGroups = UpdateGroups(exact, processed)

	if c.store != nil {
		if err := c.store.SaveGroups(models.KindSimilar, out.Groups); err != nil {
			return out, fmt.Errorf("failed to save groups: %w", err)
		}
		if err := c.store.SaveGroups(models.KindExact, out.ExactGroups); err != nil {
			return out, fmt.Errorf("failed to save exact groups: %w", err)
		}
	}
	return out, nil
}

// Package engine runs a duplicate search over a folder: hashing, pairwise
// comparison, exact-hash scanning, grouping and sorting.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"dupsieve/internal/config"
	"dupsieve/internal/match"
	"dupsieve/internal/models"
	"dupsieve/internal/progress"
	"dupsieve/internal/scan"
	"dupsieve/internal/storage"
)

// Stage budgets in percent
const (
	weightHashing       = 60
	weightPairwise      = 20
	weightGrouping      = 5
	weightExactScan     = 10
	weightExactGrouping = 5
)

// ErrAlreadyStarted is returned when Run is called more than once
var ErrAlreadyStarted = errors.New("engine already started")

// Store is the persistence the engine needs
type Store interface {
	Reset() error
	SaveRecords(records []*models.Record) error
	GetDuplicateHashRecords() ([]*models.Record, error)
	SaveGroups(kind models.GroupKind, groups []*models.DuplicateGroup) error
	RecordScan(info storage.ScanInfo) error
}

// Engine finds groups of duplicate images. An Engine runs once.
type Engine struct {
	cfg        *config.Config
	store      Store
	logger     *slog.Logger
	progressFn func(percent float64)
	interval   time.Duration
	scanOpts   []scan.Option

	state    atomic.Int32
	stop     chan struct{}
	stopOnce sync.Once
}

// Option configures an Engine
type Option func(*Engine)

// WithStore persists records and groups to s
func WithStore(s Store) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithProgress sets the progress callback. It receives strictly increasing
// percentages and exactly 100 on success.
func WithProgress(fn func(percent float64)) Option {
	return func(e *Engine) {
		e.progressFn = fn
	}
}

// WithProgressInterval sets how often progress is published
func WithProgressInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.interval = d
	}
}

// WithScanOptions passes extra options to the scanner
func WithScanOptions(opts ...scan.Option) Option {
	return func(e *Engine) {
		e.scanOpts = append(e.scanOpts, opts...)
	}
}

// New creates an Engine for a validated copy of cfg
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := *cfg
	e := &Engine{
		cfg:    &c,
		logger: slog.Default(),
		stop:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// State returns the current state
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Stop cancels a running search. It is safe to call at any time.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
}

func (e *Engine) transition(to State) bool {
	for {
		cur := State(e.state.Load())
		if !canTransition(cur, to) {
			return false
		}
		if e.state.CompareAndSwap(int32(cur), int32(to)) {
			e.logger.Debug("engine state", "from", cur, "to", to)
			return true
		}
	}
}

// Run searches folder for duplicates. A cancelled run returns the partial
// result with Cancelled set and a nil error.
func (e *Engine) Run(ctx context.Context, folder string) (*models.Result, error) {
	if !e.state.CompareAndSwap(int32(Idle), int32(Hashing)) {
		return nil, ErrAlreadyStarted
	}
	start := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	select {
	case <-e.stop:
		cancel()
	default:
	}
	go func() {
		select {
		case <-e.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	tracker := progress.NewTracker(e.progressFn, e.interval)
	defer tracker.Stop()

	r := &run{e: e, ctx: ctx, tracker: tracker, result: &models.Result{Folder: folder}}
	err := r.execute()
	r.result.Duration = time.Since(start)

	switch {
	case err == nil:
		e.transition(Done)
		tracker.Finish()
		e.logger.Info("search complete",
			"folder", folder,
			"images", len(r.result.Records),
			"groups", len(r.result.Groups),
			"exact_groups", len(r.result.ExactGroups),
			"duration", r.result.Duration)
		return r.result, nil
	case ctx.Err() != nil:
		e.transition(Cancelled)
		r.result.Cancelled = true
		e.logger.Info("search cancelled", "folder", folder, "state", e.State())
		return r.result, nil
	default:
		e.transition(Failed)
		return nil, err
	}
}

// run carries the state of one Run
type run struct {
	e       *Engine
	ctx     context.Context
	tracker *progress.Tracker
	result  *models.Result
	byID    map[int64]*models.Record
	pairs   []match.Pair
	exact   []*models.Record
}

func (r *run) execute() error {
	steps := []struct {
		state State
		fn    func() error
	}{
		{Hashing, r.hash},
		{PairwiseComparing, r.compare},
		{FullDuplicateScanning, r.scanExact},
		{Grouping, r.group},
		{Sorted, r.sort},
	}
	for _, step := range steps {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		if step.state != Hashing && !r.e.transition(step.state) {
			return fmt.Errorf("cannot enter %s from %s", step.state, r.e.State())
		}
		if err := step.fn(); err != nil {
			return err
		}
	}
	return r.ctx.Err()
}

func (r *run) hash() error {
	var stage *progress.Stage
	opts := append([]scan.Option{scan.WithLogger(r.e.logger)}, r.e.scanOpts...)
	opts = append(opts, scan.WithProgress(func(int, int, string) { stage.Step(1) }))

	scanner, err := scan.FromConfig(r.e.cfg, opts...)
	if err != nil {
		return err
	}
	paths, err := scanner.Discover(r.result.Folder)
	if err != nil {
		return err
	}
	r.e.logger.Info("hashing images", "folder", r.result.Folder, "files", len(paths))

	stage = r.tracker.Stage(weightHashing, len(paths))
	batch, err := scanner.ScanPaths(r.ctx, paths)
	if batch != nil {
		r.result.Records = batch.Records
		r.result.Failures = batch.Failures
	}
	if err != nil {
		return err
	}
	stage.Complete()

	r.byID = make(map[int64]*models.Record, len(batch.Records))
	for _, rec := range batch.Records {
		r.byID[rec.ID] = rec
	}

	if r.e.store != nil {
		if err := r.e.store.Reset(); err != nil {
			return fmt.Errorf("failed to reset store: %w", err)
		}
		if err := r.e.store.SaveRecords(batch.Records); err != nil {
			return fmt.Errorf("failed to save records: %w", err)
		}
	}
	return nil
}

func (r *run) newMatcher() match.Matcher {
	if r.e.cfg.Index == config.IndexBKTree {
		return match.NewBKTreeMatcher(r.result.Records, r.e.cfg.Threshold)
	}
	return match.NewPairwiseMatcher(r.result.Records, r.e.cfg.Threshold)
}

func (r *run) compare() error {
	m := r.newMatcher()

	total := 0
	for i := 0; i < m.Rows(); i++ {
		total += m.RowCost(i)
	}
	stage := r.tracker.Stage(weightPairwise, total)

	var (
		mu          sync.Mutex
		pairs       []match.Pair
		comparisons atomic.Int64
	)

	g := new(errgroup.Group)
	g.SetLimit(r.e.cfg.Workers)
	for i := 0; i < m.Rows(); i++ {
		if r.ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if r.ctx.Err() != nil {
				return nil
			}
			found := m.MatchRow(i)
			if len(found) > 0 {
				mu.Lock()
				pairs = append(pairs, found...)
				mu.Unlock()
			}
			cost := m.RowCost(i)
			comparisons.Add(int64(cost))
			stage.Step(cost)
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-r.ctx.Done():
		return r.ctx.Err()
	}

	stage.Complete()
	r.pairs = pairs
	r.result.Comparisons = comparisons.Load()
	r.e.logger.Debug("pairwise comparison done", "matches", len(pairs), "comparisons", r.result.Comparisons)
	return nil
}

func (r *run) scanExact() error {
	stage := r.tracker.Stage(weightExactScan, 1)
	if r.e.store != nil {
		records, err := r.e.store.GetDuplicateHashRecords()
		if err != nil {
			return fmt.Errorf("failed to query exact duplicates: %w", err)
		}
		r.exact = records
	} else {
		r.exact = r.result.Records
	}
	stage.Complete()
	return nil
}

func (r *run) group() error {
	similar := r.tracker.Stage(weightGrouping, 1)
	r.result.Groups = match.BuildGroups(match.PairGroups(r.pairs), r.byID, models.KindSimilar)
	similar.Complete()

	if err := r.ctx.Err(); err != nil {
		return err
	}

	exact := r.tracker.Stage(weightExactGrouping, 1)
	r.result.ExactGroups = match.BuildGroups(match.ExactSets(r.exact), r.byID, models.KindExact)
	exact.Complete()
	return nil
}

func (r *run) sort() error {
	match.SortByDistance(r.result.Groups, r.e.cfg.Sort == config.SortDescending)

	if r.e.store == nil {
		return nil
	}
	if err := r.e.store.SaveGroups(models.KindSimilar, r.result.Groups); err != nil {
		return fmt.Errorf("failed to save groups: %w", err)
	}
	if err := r.e.store.SaveGroups(models.KindExact, r.result.ExactGroups); err != nil {
		return fmt.Errorf("failed to save exact groups: %w", err)
	}
	err := r.e.store.RecordScan(storage.ScanInfo{
		Folder:          r.result.Folder,
		Algorithm:       r.e.cfg.Algorithm.String(),
		Threshold:       r.e.cfg.Threshold,
		TotalImages:     len(r.result.Records),
		TotalGroups:     len(r.result.Groups),
		TotalDuplicates: r.result.TotalDuplicates(),
	})
	if err != nil {
		r.e.logger.Warn("failed to record scan history", "error", err)
	}
	return nil
}

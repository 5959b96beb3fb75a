package engine

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"dupsieve/internal/config"
	"dupsieve/internal/hash"
	"dupsieve/internal/models"
	"dupsieve/internal/storage"
)

// blockImage is a size x size image of 10x10 random gray blocks
func blockImage(seed uint64, size int) image.Image {
	rng := rand.New(rand.NewPCG(seed, seed*31+7))
	var cells [10][10]uint8
	for y := range cells {
		for x := range cells[y] {
			cells[y][x] = uint8(rng.IntN(256))
		}
	}
	img := image.NewGray(image.Rect(0, 0, size, size))
	cell := size / 10
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetGray(x, y, color.Gray{Y: cells[min(y/cell, 9)][min(x/cell, 9)]})
		}
	}
	return img
}

func writeImage(t *testing.T, dir, name string, seed uint64) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := imaging.Save(blockImage(seed, 500), path); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Algorithm = hash.Difference
	cfg.Workers = 2
	return cfg
}

func newEngine(t *testing.T, cfg *config.Config, opts ...Option) *Engine {
	t.Helper()
	e, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return e
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Threshold = 5

	if _, err := New(cfg); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestRun_GroupsDuplicates(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, dir, "a.png", 1)
	writeImage(t, dir, "b.png", 1)
	writeImage(t, dir, "c.png", 2)

	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}
	defer store.Close()

	e := newEngine(t, testConfig(), WithStore(store))
	result, err := e.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if e.State() != Done {
		t.Errorf("state = %s, want done", e.State())
	}
	if result.Cancelled {
		t.Error("result should not be cancelled")
	}
	if len(result.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(result.Records))
	}
	if result.Comparisons != 3 {
		t.Errorf("comparisons = %d, want 3", result.Comparisons)
	}

	if len(result.Groups) != 1 {
		t.Fatalf("expected 1 similar group, got %d", len(result.Groups))
	}
	g := result.Groups[0]
	if ids := g.IDs(); len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Errorf("group ids = %v, want [1 2]", ids)
	}
	if g.Original.ID != 1 {
		t.Errorf("original = %d, want 1", g.Original.ID)
	}
	if g.AvgDistance != 0 {
		t.Errorf("avg distance = %v, want 0", g.AvgDistance)
	}

	if len(result.ExactGroups) != 1 || result.ExactGroups[0].Kind != models.KindExact {
		t.Fatalf("expected 1 exact group, got %v", result.ExactGroups)
	}

	stored, err := store.GetGroups(models.KindSimilar)
	if err != nil {
		t.Fatalf("GetGroups failed: %v", err)
	}
	if len(stored) != 1 || len(stored[0].Members) != 2 {
		t.Errorf("stored groups = %v, want one pair", stored)
	}
	last, err := store.LastScan()
	if err != nil {
		t.Fatalf("LastScan failed: %v", err)
	}
	if last.Folder != dir || last.TotalDuplicates != 1 {
		t.Errorf("scan history = %+v", last)
	}
}

func TestRun_DefaultAlgorithmIdenticalCopies(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, dir, "one.png", 9)
	writeImage(t, dir, "two.png", 9)

	cfg := config.Default()
	cfg.Workers = 2
	result, err := newEngine(t, cfg).Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Groups) != 1 {
		t.Errorf("expected 1 group, got %d", len(result.Groups))
	}
}

func TestRun_DistinctImages(t *testing.T) {
	dir := t.TempDir()
	for i, name := range []string{"a.png", "b.png", "c.png"} {
		writeImage(t, dir, name, uint64(100+i))
	}

	result, err := newEngine(t, testConfig()).Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Groups) != 0 || len(result.ExactGroups) != 0 {
		t.Errorf("expected no groups, got %d similar, %d exact", len(result.Groups), len(result.ExactGroups))
	}
}

func TestRun_BKTreeIndexMatchesPairwise(t *testing.T) {
	dir := t.TempDir()
	for i, seed := range []uint64{1, 1, 2, 3, 3, 3} {
		writeImage(t, dir, string(rune('a'+i))+".png", seed)
	}

	run := func(index config.IndexStrategy) [][]int64 {
		cfg := testConfig()
		cfg.Index = index
		result, err := newEngine(t, cfg).Run(context.Background(), dir)
		if err != nil {
			t.Fatalf("Run(%s) failed: %v", index, err)
		}
		var sets [][]int64
		for _, g := range result.Groups {
			sets = append(sets, g.IDs())
		}
		return sets
	}

	pairwise := run(config.IndexPairwise)
	bktree := run(config.IndexBKTree)
	if len(pairwise) != 2 {
		t.Fatalf("expected 2 groups, got %v", pairwise)
	}
	if len(bktree) != len(pairwise) {
		t.Fatalf("bktree groups = %v, pairwise = %v", bktree, pairwise)
	}
	for i := range pairwise {
		if len(bktree[i]) != len(pairwise[i]) {
			t.Errorf("group %d: bktree %v, pairwise %v", i, bktree[i], pairwise[i])
		}
	}
}

func TestRun_FailuresDoNotStopSearch(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, dir, "a.png", 1)
	writeImage(t, dir, "b.png", 1)
	if err := os.WriteFile(filepath.Join(dir, "broken.jpg"), []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}

	result, err := newEngine(t, testConfig()).Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(result.Failures))
	}
	if len(result.Groups) != 1 {
		t.Errorf("expected 1 group, got %d", len(result.Groups))
	}
}

func TestRun_EmptyFolder(t *testing.T) {
	var last float64
	e := newEngine(t, testConfig(), WithProgress(func(p float64) { last = p }))

	result, err := e.Run(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Records) != 0 || len(result.Groups) != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
	if last != 100 {
		t.Errorf("final progress = %v, want 100", last)
	}
}

func TestRun_ProgressMonotonic(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 6; i++ {
		writeImage(t, dir, string(rune('a'+i))+".png", uint64(i%3))
	}

	var (
		mu     sync.Mutex
		values []float64
	)
	e := newEngine(t, testConfig(),
		WithProgressInterval(time.Millisecond),
		WithProgress(func(p float64) {
			mu.Lock()
			values = append(values, p)
			mu.Unlock()
		}))

	if _, err := e.Run(context.Background(), dir); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(values) == 0 {
		t.Fatal("no progress reported")
	}
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			t.Fatalf("progress decreased at %d: %v", i, values)
		}
	}
	if values[len(values)-1] != 100 {
		t.Errorf("final progress = %v, want 100", values[len(values)-1])
	}
}

func TestRun_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, dir, "a.png", 1)
	writeImage(t, dir, "b.png", 1)

	tests := []struct {
		name   string
		cancel func(e *Engine) context.Context
	}{
		{"context", func(*Engine) context.Context {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			return ctx
		}},
		{"stop", func(e *Engine) context.Context {
			e.Stop()
			return context.Background()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var last float64
			e := newEngine(t, testConfig(), WithProgress(func(p float64) { last = p }))
			ctx := tt.cancel(e)

			result, err := e.Run(ctx, dir)
			if err != nil {
				t.Fatalf("cancelled Run should not fail: %v", err)
			}
			if !result.Cancelled {
				t.Error("result should be cancelled")
			}
			if e.State() != Cancelled {
				t.Errorf("state = %s, want cancelled", e.State())
			}
			if len(result.Groups) != 0 {
				t.Errorf("cancelled run produced %d groups", len(result.Groups))
			}
			if last == 100 {
				t.Error("cancelled run should not report 100")
			}
		})
	}
}

func TestRun_StopDuringRun(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 20; i++ {
		writeImage(t, dir, string(rune('a'+i))+".png", uint64(i))
	}

	cfg := testConfig()
	cfg.Workers = 1
	var once sync.Once
	var e *Engine
	e = newEngine(t, cfg, WithProgress(func(float64) { once.Do(e.Stop) }), WithProgressInterval(time.Microsecond))

	result, err := e.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Cancelled && e.State() != Cancelled {
		t.Errorf("state = %s for a cancelled result", e.State())
	}
	if !result.Cancelled && e.State() != Done {
		t.Errorf("state = %s for a finished result", e.State())
	}
	if e.transition(Hashing) {
		t.Error("transition after a terminal state should be refused")
	}
}

func TestRun_Twice(t *testing.T) {
	e := newEngine(t, testConfig())
	if _, err := e.Run(context.Background(), t.TempDir()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, err := e.Run(context.Background(), t.TempDir()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Run err = %v, want ErrAlreadyStarted", err)
	}
}

func TestRun_MissingFolder(t *testing.T) {
	e := newEngine(t, testConfig())
	_, err := e.Run(context.Background(), filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("expected error for missing folder")
	}
	if e.State() != Failed {
		t.Errorf("state = %s, want failed", e.State())
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		expected bool
	}{
		{Idle, Hashing, true},
		{Hashing, PairwiseComparing, true},
		{PairwiseComparing, FullDuplicateScanning, true},
		{FullDuplicateScanning, Grouping, true},
		{Grouping, Sorted, true},
		{Sorted, Done, true},
		{Hashing, Grouping, false},
		{Grouping, Hashing, false},
		{Hashing, Cancelled, true},
		{Sorted, Cancelled, true},
		{Done, Cancelled, false},
		{Cancelled, Done, false},
		{Failed, Hashing, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			if got := canTransition(tt.from, tt.to); got != tt.expected {
				t.Errorf("canTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.expected)
			}
		})
	}
}

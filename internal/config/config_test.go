package config

import (
	"errors"
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"dupsieve/internal/hash"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Algorithm != hash.Ring {
		t.Errorf("Algorithm = %v, want %v", cfg.Algorithm, hash.Ring)
	}
	if cfg.HashSize != 8 {
		t.Errorf("HashSize = %d, want %d", cfg.HashSize, 8)
	}
	if cfg.Threshold != 97.0 {
		t.Errorf("Threshold = %f, want %f", cfg.Threshold, 97.0)
	}
	if cfg.Workers != runtime.NumCPU() {
		t.Errorf("Workers = %d, want %d", cfg.Workers, runtime.NumCPU())
	}
	if cfg.Sort != SortAscending {
		t.Errorf("Sort = %q, want %q", cfg.Sort, SortAscending)
	}
	if cfg.DuplicateFolder != "Duplicates" {
		t.Errorf("DuplicateFolder = %q, want %q", cfg.DuplicateFolder, "Duplicates")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("DUPSIEVE_ALGORITHM", "phash")
	t.Setenv("DUPSIEVE_HASH_SIZE", "16")
	t.Setenv("DUPSIEVE_THRESHOLD", "90.5")
	t.Setenv("DUPSIEVE_RECURSIVE", "1")
	t.Setenv("DUPSIEVE_SORT", "descending")
	t.Setenv("DUPSIEVE_HASH_TIMEOUT", "5s")
	t.Setenv("DUPSIEVE_EXTENSIONS", ".png, .jpg")
	t.Setenv("DUPSIEVE_WORKERS", "not-a-number")

	cfg := Load()

	if cfg.Algorithm != hash.Perceptual {
		t.Errorf("Algorithm = %v, want %v", cfg.Algorithm, hash.Perceptual)
	}
	if cfg.HashSize != 16 {
		t.Errorf("HashSize = %d, want %d", cfg.HashSize, 16)
	}
	if cfg.Threshold != 90.5 {
		t.Errorf("Threshold = %f, want %f", cfg.Threshold, 90.5)
	}
	if !cfg.Recursive {
		t.Error("Recursive should be true")
	}
	if cfg.Sort != SortDescending {
		t.Errorf("Sort = %q, want %q", cfg.Sort, SortDescending)
	}
	if cfg.HashTimeout != 5*time.Second {
		t.Errorf("HashTimeout = %v, want %v", cfg.HashTimeout, 5*time.Second)
	}
	if len(cfg.Extensions) != 2 || cfg.Extensions[1] != ".jpg" {
		t.Errorf("Extensions = %v, want [.png .jpg]", cfg.Extensions)
	}
	if cfg.Workers != runtime.NumCPU() {
		t.Errorf("Workers with invalid env = %d, want default %d", cfg.Workers, runtime.NumCPU())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"hash size 128", func(c *Config) { c.HashSize = 128 }, true},
		{"hash size 4", func(c *Config) { c.HashSize = 4 }, false},
		{"hash size 24", func(c *Config) { c.HashSize = 24 }, false},
		{"threshold low", func(c *Config) { c.Threshold = 9.9 }, false},
		{"threshold high", func(c *Config) { c.Threshold = 100.1 }, false},
		{"threshold 10", func(c *Config) { c.Threshold = 10 }, true},
		{"block size 6", func(c *Config) { c.BlockSize = 6 }, false},
		{"highfreq 8", func(c *Config) { c.HighFreqFactor = 8 }, true},
		{"no workers", func(c *Config) { c.Workers = 0 }, false},
		{"bad sort", func(c *Config) { c.Sort = "h-l" }, false},
		{"bad index", func(c *Config) { c.Index = "vptree" }, false},
		{"bktree with crop", func(c *Config) { c.Index = IndexBKTree; c.CropResistant = true }, false},
		{"bad mode", func(c *Config) { c.ActionMode = "yolo" }, false},
		{"bad action", func(c *Config) { c.DuplicatesAction = "shred" }, false},
		{"move without folder", func(c *Config) { c.DuplicateFolder = " " }, false},
		{"delete without folder", func(c *Config) { c.DuplicatesAction = ActionDelete; c.DuplicateFolder = "" }, true},
		{"unknown algorithm", func(c *Config) { c.Algorithm = hash.Algorithm(9) }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.valid && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestAuxParam(t *testing.T) {
	cfg := Default()
	if got := cfg.AuxParam(); got != 16 {
		t.Errorf("ring AuxParam = %d, want 16", got)
	}
	cfg.BlockSize = 4
	if got := cfg.AuxParam(); got != 4 {
		t.Errorf("ring AuxParam with block size = %d, want 4", got)
	}
	cfg.Algorithm = hash.Perceptual
	if got := cfg.AuxParam(); got != 16 {
		t.Errorf("perceptual AuxParam = %d, want 16", got)
	}
	cfg.Algorithm = hash.Average
	if got := cfg.AuxParam(); got != 0 {
		t.Errorf("average AuxParam = %d, want 0", got)
	}
}

func TestBindFlags(t *testing.T) {
	cfg := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.BindFlags(fs)
	cfg.BindActionFlags(fs)

	err := fs.Parse([]string{"-a", "dhash", "--hash-size", "16", "-t", "92", "-r", "--sort", "descending", "--mode", "semi-auto"})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Algorithm != hash.Difference {
		t.Errorf("Algorithm = %v, want %v", cfg.Algorithm, hash.Difference)
	}
	if cfg.HashSize != 16 || cfg.Threshold != 92 || !cfg.Recursive {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if cfg.Sort != SortDescending || cfg.ActionMode != ModeSemiAuto {
		t.Errorf("sort/mode = %q/%q", cfg.Sort, cfg.ActionMode)
	}

	if err := fs.Parse([]string{"--algorithm", "colorhash"}); err == nil {
		t.Error("expected error for unknown algorithm flag")
	}
}

func TestGetEnvHelpers(t *testing.T) {
	os.Setenv("TEST_DUPSIEVE_INT", "42")
	defer os.Unsetenv("TEST_DUPSIEVE_INT")
	if v := getEnvInt("TEST_DUPSIEVE_INT", 0); v != 42 {
		t.Errorf("getEnvInt = %d, want %d", v, 42)
	}
	if v := getEnvInt("NONEXISTENT_DUPSIEVE", 99); v != 99 {
		t.Errorf("getEnvInt = %d, want %d", v, 99)
	}

	os.Setenv("TEST_DUPSIEVE_BOOL", "false")
	defer os.Unsetenv("TEST_DUPSIEVE_BOOL")
	if getEnvBool("TEST_DUPSIEVE_BOOL", true) {
		t.Error("getEnvBool should return false for 'false'")
	}

	os.Setenv("TEST_DUPSIEVE_DURATION", "bogus")
	defer os.Unsetenv("TEST_DUPSIEVE_DURATION")
	if v := getEnvDuration("TEST_DUPSIEVE_DURATION", time.Minute); v != time.Minute {
		t.Errorf("getEnvDuration with invalid = %v, want %v", v, time.Minute)
	}
}

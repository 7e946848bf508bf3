package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"empty dims", func(c *Config) { c.Dims = nil }, "dims"},
		{"negative axis", func(c *Config) { c.Dims = []int{8, -1} }, "dims[1]"},
		{"gamma zero", func(c *Config) { c.Gamma = 0 }, "gamma"},
		{"gamma one", func(c *Config) { c.Gamma = 1 }, "gamma"},
		{"negative alpha", func(c *Config) { c.Alpha = -0.5 }, "alpha"},
		{"omega zero", func(c *Config) { c.Omega = 0 }, "omega"},
		{"delta zero", func(c *Config) { c.Delta = 0 }, "delta"},
		{"epsilon zero", func(c *Config) { c.Epsilon = 0 }, "epsilon"},
		{"psi_max below epsilon", func(c *Config) { c.PsiMax = 0 }, "psi_max"},
		{"drive bounds inverted", func(c *Config) { c.DriveMin = 2; c.DriveMax = 1 }, "drive"},
		{"lost ticks zero", func(c *Config) { c.LostTickLimit = 0 }, "lost_tick_limit"},
		{"negative max lag", func(c *Config) { c.MaxLag = -1 }, "max_lag"},
		{"bad boundary", func(c *Config) { c.Boundary = "open" }, "boundary"},
		{"seed out of range", func(c *Config) {
			c.Seeds = []Seed{{Cell: []int{99, 0}, Value: 1}}
		}, "seeds[0]"},
		{"source rank mismatch", func(c *Config) {
			c.Sources = []Source{{Cell: []int{1}, Strength: 1}}
		}, "sources[0]"},
		{"source window inverted", func(c *Config) {
			c.Sources = []Source{{Cell: []int{1, 1}, Strength: 1, FromTick: 10, UntilTick: 5}}
		}, "until_tick"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestParseUnknownField(t *testing.T) {
	_, err := Parse([]byte(`{"dims": [4, 4], "gammma": 0.2}`))
	if err == nil {
		t.Fatal("expected unknown field error")
	}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	payload := `{
		"dims": [16, 16],
		"gamma": 0.3,
		"boundary": "periodic",
		"sources": [{"cell": [8, 8], "strength": 2.5, "from_tick": 0}]
	}`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Gamma != 0.3 {
		t.Fatalf("expected gamma override 0.3, got %g", cfg.Gamma)
	}
	if cfg.Boundary != BoundaryPeriodic {
		t.Fatalf("expected periodic boundary, got %s", cfg.Boundary)
	}
	if cfg.Omega != Default().Omega {
		t.Fatalf("expected omega default %g, got %g", Default().Omega, cfg.Omega)
	}
	if len(cfg.Sources) != 1 || cfg.Sources[0].Strength != 2.5 {
		t.Fatalf("unexpected sources: %+v", cfg.Sources)
	}
}

package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Grid.CellSize <= 0 {
		t.Error("default cell size must be positive")
	}
	if cfg.Penalties.P45 <= cfg.Penalties.P135 {
		t.Error("sharper turns must cost more than gentle ones")
	}
	if cfg.Serve.Addr == "" {
		t.Error("default serve address missing")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "magga.toml")
	content := `
[grid]
cell_size = 75.0
octi = true

[penalties]
p_45 = 9.0

[serve]
addr = ":9999"

[serve.redis]
addr = "localhost:6379"

[cache]
dir = "/tmp/magga-cache"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Grid.CellSize != 75 {
		t.Errorf("cell size = %v", cfg.Grid.CellSize)
	}
	if !cfg.Grid.Octi {
		t.Error("octi flag lost")
	}
	if cfg.Penalties.P45 != 9 {
		t.Errorf("p_45 = %v", cfg.Penalties.P45)
	}
	// unset fields keep their defaults
	if cfg.Penalties.P90 != DefaultConfig().Penalties.P90 {
		t.Errorf("p_90 = %v, want default", cfg.Penalties.P90)
	}
	if cfg.Serve.Addr != ":9999" {
		t.Errorf("serve addr = %v", cfg.Serve.Addr)
	}
	if cfg.Serve.Redis.Addr != "localhost:6379" {
		t.Errorf("redis addr = %v", cfg.Serve.Redis.Addr)
	}
	if cfg.Cache.Dir != "/tmp/magga-cache" {
		t.Errorf("cache dir = %v", cfg.Cache.Dir)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/does/not/exist.toml"); err == nil {
		t.Error("missing config file should fail")
	}
}

func TestCacheDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cache.Dir = "/custom"
	dir, err := cacheDir(cfg)
	if err != nil || dir != "/custom" {
		t.Errorf("cacheDir = %v, %v", dir, err)
	}
}

func TestBuildDOT(t *testing.T) {
	g := sampleGraph(t)
	dot := buildDOT(g)
	for _, want := range []string{"graph lingraph", "n0 -- n1", "label"} {
		if !containsStr(dot, want) {
			t.Errorf("DOT missing %q:\n%s", want, dot)
		}
	}
}

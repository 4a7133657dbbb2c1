package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingDefaultIsEmpty(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *cfg != (Config{}) {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
}

func TestLoad_MissingExplicitFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte("ksize: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(p); err == nil {
		t.Fatal("expected YAML error")
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nested", "config.yaml")
	want := &Config{KSize: 21, Scaled: 100, ThresholdBP: 1000, Output: "/tmp/out", Workers: 3, Listen: ":9000"}
	if err := Save(p, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *got != *want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestResolve_Precedence(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".greyhound")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("ksize: 21\nscaled: 100\nworkers: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("GREYHOUND_SCALED=500\nGREYHOUND_LISTEN=:7000\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvListen, ":8000")

	cfg, err := Resolve("")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.KSize != 21 {
		t.Errorf("ksize from file: got %d", cfg.KSize)
	}
	if cfg.Scaled != 500 {
		t.Errorf("scaled from dotenv: got %d", cfg.Scaled)
	}
	if cfg.Listen != ":8000" {
		t.Errorf("listen from env: got %q", cfg.Listen)
	}
	if cfg.Workers != 2 {
		t.Errorf("workers from file: got %d", cfg.Workers)
	}
	if cfg.ThresholdBP != 50000 || cfg.Output != "outputs" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestApplyEnv_Invalid(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvKSize, "thirty-one")

	cfg := &Config{}
	if err := cfg.ApplyEnv(); err == nil {
		t.Fatal("expected parse error")
	}
}

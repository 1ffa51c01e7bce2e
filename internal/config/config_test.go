package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("JWLSYNC_OUTPUT_DIR", "")
	t.Setenv("JWLSYNC_WORK_DIR", "")
	t.Setenv("JWLSYNC_LOG_FILE", "")
	t.Setenv("JWLSYNC_KEEP_TEMP", "")

	oldCwd, _ := os.Getwd()
	defer os.Chdir(oldCwd)
	if err := os.Chdir(home); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.OutputDir != "." {
		t.Errorf("expected default output dir %q, got %q", ".", cfg.OutputDir)
	}
	if cfg.WorkDir != "" || cfg.LogFile != "" || cfg.KeepTemp {
		t.Errorf("expected zero values, got %+v", cfg)
	}
}

func TestLoadReadsYAMLConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("JWLSYNC_OUTPUT_DIR", "")
	t.Setenv("JWLSYNC_WORK_DIR", "")
	t.Setenv("JWLSYNC_LOG_FILE", "")
	t.Setenv("JWLSYNC_KEEP_TEMP", "")

	configDir := filepath.Join(home, ".config", "jwlsync")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatal(err)
	}
	yaml := "output_dir: /backups/merged\nwork_dir: /backups/tmp\nkeep_temp: true\n"
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	oldCwd, _ := os.Getwd()
	defer os.Chdir(oldCwd)
	if err := os.Chdir(home); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.OutputDir != "/backups/merged" {
		t.Errorf("expected yaml output dir, got %q", cfg.OutputDir)
	}
	if cfg.WorkDir != "/backups/tmp" {
		t.Errorf("expected yaml work dir, got %q", cfg.WorkDir)
	}
	if !cfg.KeepTemp {
		t.Error("expected keep_temp from yaml")
	}
}

func TestLoadEnvironmentOverridesYAML(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	configDir := filepath.Join(home, ".config", "jwlsync")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatal(err)
	}
	yaml := "output_dir: /backups/merged\nkeep_temp: true\n"
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("JWLSYNC_OUTPUT_DIR", "/elsewhere")
	t.Setenv("JWLSYNC_WORK_DIR", "")
	t.Setenv("JWLSYNC_LOG_FILE", "/var/log/jwlsync.log")
	t.Setenv("JWLSYNC_KEEP_TEMP", "false")

	oldCwd, _ := os.Getwd()
	defer os.Chdir(oldCwd)
	if err := os.Chdir(home); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.OutputDir != "/elsewhere" {
		t.Errorf("expected env output dir to win, got %q", cfg.OutputDir)
	}
	if cfg.LogFile != "/var/log/jwlsync.log" {
		t.Errorf("expected env log file, got %q", cfg.LogFile)
	}
	if cfg.KeepTemp {
		t.Error("expected env keep_temp=false to override yaml")
	}
}

func TestFindEnvLocal_InCurrentDir(t *testing.T) {
	// Create temp directory structure
	tmpDir := t.TempDir()
	envPath := filepath.Join(tmpDir, ".env.local")
	if err := os.WriteFile(envPath, []byte("TEST=value"), 0644); err != nil {
		t.Fatal(err)
	}

	// Change to temp dir
	oldCwd, _ := os.Getwd()
	defer os.Chdir(oldCwd)
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatal(err)
	}

	result := findEnvLocal()
	if result == "" {
		t.Error("expected to find .env.local in current directory")
	}
}

func TestFindEnvLocal_ClosestWins(t *testing.T) {
	// Create: grandparent/.env.local, grandparent/parent/.env.local, grandparent/parent/child/
	tmpDir := t.TempDir()
	parentDir := filepath.Join(tmpDir, "parent")
	childDir := filepath.Join(parentDir, "child")
	if err := os.MkdirAll(childDir, 0755); err != nil {
		t.Fatal(err)
	}

	// Create .env.local in both grandparent and parent
	if err := os.WriteFile(filepath.Join(tmpDir, ".env.local"), []byte("TEST=grandparent"), 0644); err != nil {
		t.Fatal(err)
	}
	parentEnvPath := filepath.Join(parentDir, ".env.local")
	if err := os.WriteFile(parentEnvPath, []byte("TEST=parent"), 0644); err != nil {
		t.Fatal(err)
	}

	// Change to child dir
	oldCwd, _ := os.Getwd()
	defer os.Chdir(oldCwd)
	if err := os.Chdir(childDir); err != nil {
		t.Fatal(err)
	}

	result := findEnvLocal()
	// Resolve symlinks for comparison (macOS /var -> /private/var)
	expectedResolved, _ := filepath.EvalSymlinks(parentEnvPath)
	resultResolved, _ := filepath.EvalSymlinks(result)
	if resultResolved != expectedResolved {
		t.Errorf("expected closest .env.local (%s), got %s", expectedResolved, resultResolved)
	}
}

func TestFindEnvLocal_NotFound(t *testing.T) {
	// Create temp directory with no .env.local
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	// Change to temp dir
	oldCwd, _ := os.Getwd()
	defer os.Chdir(oldCwd)
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatal(err)
	}

	result := findEnvLocal()
	if result != "" {
		t.Errorf("expected empty string when no .env.local found, got %s", result)
	}
}

package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	OutputDir string `yaml:"output_dir"`
	WorkDir   string `yaml:"work_dir"`
	LogFile   string `yaml:"log_file"`
	KeepTemp  bool   `yaml:"keep_temp"`
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables
// 2. ./.env.local (dotenv) - walks up parent directories to find it
// 3. ~/.config/jwlsync/config.yaml (YAML)
func Load() (*Config, error) {
	cfg := &Config{
		OutputDir: ".",
	}

	// Load .env.local if it exists (walking up parent directories)
	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	// Load ~/.config/jwlsync/config.yaml if it exists
	if err := loadYAMLConfig(cfg); err != nil {
		// YAML config is optional, so we don't fail if it doesn't exist
	}

	// Override with environment variables
	if outputDir := os.Getenv("JWLSYNC_OUTPUT_DIR"); outputDir != "" {
		cfg.OutputDir = outputDir
	}
	if workDir := os.Getenv("JWLSYNC_WORK_DIR"); workDir != "" {
		cfg.WorkDir = workDir
	}
	if logFile := os.Getenv("JWLSYNC_LOG_FILE"); logFile != "" {
		cfg.LogFile = logFile
	}
	if keepTemp := os.Getenv("JWLSYNC_KEEP_TEMP"); keepTemp != "" {
		if parsed, err := strconv.ParseBool(keepTemp); err == nil {
			cfg.KeepTemp = parsed
		}
	}

	return cfg, nil
}

// loadYAMLConfig loads configuration from ~/.config/jwlsync/config.yaml
func loadYAMLConfig(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(homeDir, ".config", "jwlsync", "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// findEnvLocal searches for .env.local starting from cwd and walking up
// parent directories. Stops at the user's home directory.
// Returns the path to .env.local if found, empty string otherwise.
func findEnvLocal() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// If we can't get home dir, just check cwd
		if _, err := os.Stat(".env.local"); err == nil {
			return ".env.local"
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	// Clean paths for reliable comparison
	homeDir = filepath.Clean(homeDir)
	dir := filepath.Clean(cwd)

	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}

		// Stop if we've reached home directory
		if dir == homeDir {
			break
		}

		// Get parent directory
		parent := filepath.Dir(dir)

		// Stop if we've reached the filesystem root
		if parent == dir {
			break
		}

		dir = parent
	}

	return ""
}

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// Config holds the serialized configuration options.
type Config struct {
	// DBDir is the directory holding the table files.
	DBDir string `json:"db_dir"`

	// AssetDir is the media asset directory referenced by enrichment
	// records.
	AssetDir string `json:"asset_dir"`

	// Author is the profile URL used when backfilling missing authors.
	Author string `json:"author,omitempty"`
}

// ConfigSources tracks which config files were loaded.
type ConfigSources struct {
	Global  string // path to global config if loaded, empty otherwise
	Project string // path to project config if loaded, empty otherwise
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		DBDir:    "db",
		AssetDir: "metadata",
		Author:   "https://x.com/Recuenco",
	}
}

// ConfigFileName is the default project config file name.
const ConfigFileName = ".turradb.json"

var (
	errConfigFileNotFound = errors.New("config file not found")
	errConfigInvalid      = errors.New("invalid config")
	errDBDirEmpty         = errors.New("db_dir must not be empty")
)

// globalConfigPath returns $XDG_CONFIG_HOME/turradb/config.json if set,
// otherwise ~/.config/turradb/config.json, or "" when neither resolves.
func globalConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "turradb", "config.json")
	}

	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".config", "turradb", "config.json")
	}

	return ""
}

// LoadConfig loads configuration with the following precedence (highest
// wins):
//  1. Defaults
//  2. Global user config
//  3. Project config (.turradb.json in workDir), or the explicit file
//     given via configPath, which must exist
//  4. CLI overrides
//
// Config files are JSONC: comments and trailing commas are allowed.
func LoadConfig(workDir, configPath string, overrides Config) (Config, ConfigSources, error) {
	cfg := DefaultConfig()

	var sources ConfigSources

	if globalPath := globalConfigPath(); globalPath != "" {
		globalCfg, loaded, err := loadConfigFile(globalPath, false)
		if err != nil {
			return Config{}, ConfigSources{}, err
		}

		if loaded {
			sources.Global = globalPath
			cfg = mergeConfig(cfg, globalCfg)
		}
	}

	projectFile := filepath.Join(workDir, ConfigFileName)
	mustExist := false

	if configPath != "" {
		projectFile = configPath
		if !filepath.IsAbs(projectFile) {
			projectFile = filepath.Join(workDir, projectFile)
		}

		mustExist = true
	}

	projectCfg, loaded, err := loadConfigFile(projectFile, mustExist)
	if err != nil {
		return Config{}, ConfigSources{}, err
	}

	if loaded {
		sources.Project = projectFile
		cfg = mergeConfig(cfg, projectCfg)
	}

	cfg = mergeConfig(cfg, overrides)

	if cfg.DBDir == "" {
		return Config{}, ConfigSources{}, fmt.Errorf("%w: %w", errConfigInvalid, errDBDirEmpty)
	}

	return cfg, sources, nil
}

// loadConfigFile loads one config file. When mustExist is false a missing
// file reads as an empty config.
func loadConfigFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, false, nil
		}

		if mustExist {
			return Config{}, false, fmt.Errorf("%w: %s", errConfigFileNotFound, path)
		}

		return Config{}, false, nil
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: invalid JSONC: %w", errConfigInvalid, path, err)
	}

	var cfg Config

	err = json.Unmarshal(standardized, &cfg)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: invalid JSON: %w", errConfigInvalid, path, err)
	}

	return cfg, true, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.DBDir != "" {
		base.DBDir = overlay.DBDir
	}

	if overlay.AssetDir != "" {
		base.AssetDir = overlay.AssetDir
	}

	if overlay.Author != "" {
		base.Author = overlay.Author
	}

	return base
}

// FormatConfig renders the effective config as indented JSON.
func FormatConfig(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("format config: %w", err)
	}

	return string(data), nil
}

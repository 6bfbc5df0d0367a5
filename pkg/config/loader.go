package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"prp/pkg/runerrors"
	"prp/pkg/utils"
)

const configFileName = "config.json"

// ConfigPath returns the path of the config file inside a work directory.
func ConfigPath(workDir string) string {
	return filepath.Join(workDir, DotDirName, configFileName)
}

// Load reads the config file under workDir. A missing file yields the
// defaults; a present but unreadable or invalid file is a configuration
// error, never silently ignored.
func Load(workDir string) (*Config, error) {
	path := ConfigPath(workDir)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, runerrors.NewStorage(err, "failed to read config file")
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, runerrors.NewConfiguration("malformed config file " + path + ": " + err.Error())
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config file under workDir, creating the dot directory.
func Save(workDir string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return runerrors.NewStorage(err, "failed to encode config")
	}
	data = append(data, '\n')

	dir := filepath.Join(workDir, DotDirName)
	if err := utils.EnsureDir(dir); err != nil {
		return runerrors.NewStorage(err, "failed to create "+DotDirName+" directory")
	}
	if err := utils.WriteFileAtomic(ConfigPath(workDir), data, utils.DefaultFileMode); err != nil {
		return runerrors.NewStorage(err, "failed to write config file")
	}
	return nil
}
